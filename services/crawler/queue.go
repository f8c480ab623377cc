package crawler

import (
	"sync"

	"stock_searcher_backend/models"
)

// JobQueue is an ordered, deduplicated collection of fetch jobs for one
// venue. The refresh pass replaces its contents wholesale while a consumer
// drains it; the consumer sees either the old list or the new one, never a
// partial mix.
type JobQueue struct {
	mu   sync.Mutex
	jobs []models.FetchJob
	seen map[string]struct{}
}

// NewJobQueue creates an empty queue.
func NewJobQueue() *JobQueue {
	return &JobQueue{seen: make(map[string]struct{})}
}

// Replace swaps the queue contents for the given job list, dropping
// duplicates while preserving order. The new list and set are built off the
// lock so the swap itself is a single assignment.
func (q *JobQueue) Replace(jobs []models.FetchJob) {
	deduped := make([]models.FetchJob, 0, len(jobs))
	seen := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		key := job.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, job)
	}

	q.mu.Lock()
	q.jobs = deduped
	q.seen = seen
	q.mu.Unlock()
}

// Pop removes and returns the job at the head of the queue.
func (q *JobQueue) Pop() (models.FetchJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return models.FetchJob{}, false
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	delete(q.seen, job.Key())
	return job, true
}

// Requeue puts a job back at the head so the next tick retries it. A job
// whose key is already queued is not duplicated.
func (q *JobQueue) Requeue(job models.FetchJob) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := job.Key()
	if _, ok := q.seen[key]; ok {
		return
	}
	q.seen[key] = struct{}{}
	q.jobs = append([]models.FetchJob{job}, q.jobs...)
}

// Len returns the number of queued jobs.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
