package crawler

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock_searcher_backend/models"
)

func listedJob(code, month string) models.FetchJob {
	return models.FetchJob{Code: code, Venue: models.VenueListed, PeriodKey: month}
}

func TestReplaceDeduplicatesPreservingOrder(t *testing.T) {
	q := NewJobQueue()
	q.Replace([]models.FetchJob{
		listedJob("2330", "2024-01"),
		listedJob("2330", "2024-02"),
		listedJob("2330", "2024-01"),
		listedJob("2317", "2024-01"),
	})

	assert.Equal(t, 3, q.Len())

	job, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, listedJob("2330", "2024-01"), job)

	job, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, listedJob("2330", "2024-02"), job)

	job, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, listedJob("2317", "2024-01"), job)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestReplaceSwapsWholeList(t *testing.T) {
	q := NewJobQueue()
	q.Replace([]models.FetchJob{listedJob("2330", "2024-01")})
	q.Replace([]models.FetchJob{listedJob("2317", "2024-02")})

	assert.Equal(t, 1, q.Len())
	job, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, listedJob("2317", "2024-02"), job)
}

func TestRequeuePutsJobAtFront(t *testing.T) {
	q := NewJobQueue()
	q.Replace([]models.FetchJob{
		listedJob("2330", "2024-01"),
		listedJob("2330", "2024-02"),
	})

	job, ok := q.Pop()
	require.True(t, ok)
	q.Requeue(job)

	next, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, job, next)
}

func TestRequeueKeepsRetryCount(t *testing.T) {
	q := NewJobQueue()
	job := listedJob("2330", "2024-01")
	job.Attempts = 3
	q.Requeue(job)

	got, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, got.Attempts)
}

func TestRequeueNeverDuplicates(t *testing.T) {
	q := NewJobQueue()
	q.Replace([]models.FetchJob{listedJob("2330", "2024-01")})

	// same key, different attempt count: the queued copy wins
	retried := listedJob("2330", "2024-01")
	retried.Attempts = 2
	q.Requeue(retried)

	assert.Equal(t, 1, q.Len())
}

func TestConcurrentDrainNeverExceedsDedupCount(t *testing.T) {
	q := NewJobQueue()
	jobs := make([]models.FetchJob, 0, 200)
	for i := 0; i < 200; i++ {
		// every job duplicated once
		jobs = append(jobs, listedJob(fmt.Sprintf("%04d", i/2), "2024-01"))
	}
	q.Replace(jobs)
	require.Equal(t, 100, q.Len())

	var wg sync.WaitGroup
	var mu sync.Mutex
	popped := 0
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, ok := q.Pop(); !ok {
					return
				}
				mu.Lock()
				popped++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, popped)
	assert.Equal(t, 0, q.Len())
}
