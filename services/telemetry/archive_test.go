package telemetry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	archive, err := OpenArchive(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })
	return archive
}

func TestArchiveAppendAndRecent(t *testing.T) {
	archive := openTestArchive(t)

	base := time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC)
	for i, kind := range []Kind{KindDispatched, KindSucceeded, KindNoData} {
		err := archive.Append(Event{
			Time:   base.Add(time.Duration(i) * time.Second),
			Venue:  "listed",
			Kind:   kind,
			Code:   "2330",
			Period: "2024-03",
			Count:  i,
		})
		require.NoError(t, err)
	}

	events, err := archive.Recent(10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// newest first
	assert.Equal(t, KindNoData, events[0].Kind)
	assert.Equal(t, KindDispatched, events[2].Kind)
	assert.Equal(t, "2330", events[0].Code)
	assert.Equal(t, "listed", events[0].Venue)
}

func TestArchiveRecentHonorsLimit(t *testing.T) {
	archive := openTestArchive(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, archive.Append(Event{
			Time: time.Now(),
			Kind: KindFailed,
		}))
	}

	events, err := archive.Recent(2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestArchiveRecentEmpty(t *testing.T) {
	archive := openTestArchive(t)

	events, err := archive.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
