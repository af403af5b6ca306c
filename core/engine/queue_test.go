package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mixfm/model"
)

func seededQueue(t *testing.T, n int) (*Engine, *fakeQueueRepo, []*model.Track) {
	t.Helper()
	tracks := make([]*model.Track, 0, n)
	entries := make([]*model.QueueEntry, 0, n)
	pool := make([]*model.CandidateTrack, 0, n)
	for i := int64(1); i <= int64(n); i++ {
		track := trackBy(i, fmt.Sprintf("artist-%d", i))
		tracks = append(tracks, track)
		entries = append(entries, &model.QueueEntry{TrackID: i})
		pool = append(pool, neverPlayed(i, track))
	}
	queue := &fakeQueueRepo{}
	require.NoError(t, queue.ReplaceUnplayed(1, entries))
	e := newTestEngine(&fakeAffinityRepo{candidates: pool}, queue, tracks...)
	return e, queue, tracks
}

func TestCurrentQueueOrderAndLimit(t *testing.T) {
	e, _, tracks := seededQueue(t, 6)

	got, err := e.CurrentQueue(context.Background(), 1, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i, track := range got {
		assert.Equal(t, tracks[i].ID, track.ID)
	}
}

func TestCurrentQueueCacheHitSkipsStore(t *testing.T) {
	e, queue, _ := seededQueue(t, 3)
	cache := newFakeQueueCache()
	cache.stored[1] = []*model.Track{trackBy(42, "cached")}
	e.SetCache(cache)

	got, err := e.CurrentQueue(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(42), got[0].ID)

	// The durable queue was never consulted.
	n, _ := queue.CountUnplayed(1)
	assert.Equal(t, 3, n)
}

func TestCurrentQueueMissPopulatesCache(t *testing.T) {
	e, _, _ := seededQueue(t, 3)
	cache := newFakeQueueCache()
	e.SetCache(cache)

	_, err := e.CurrentQueue(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.Len(t, cache.stored[1], 3)
}

func TestAdvanceConsumesHeadInOrder(t *testing.T) {
	e, _, tracks := seededQueue(t, 8)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		track, ok, err := e.Advance(ctx, 1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, tracks[i].ID, track.ID)
	}
}

func TestAdvanceEmptyQueue(t *testing.T) {
	e := newTestEngine(&fakeAffinityRepo{}, &fakeQueueRepo{})
	track, ok, err := e.Advance(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, track)
}

func TestAdvanceRefillsBelowLowWater(t *testing.T) {
	// Six queued: the first advance leaves five, at the mark, no refill.
	// The second leaves four, under it, and tops the queue back up.
	e, queue, _ := seededQueue(t, 6)
	ctx := context.Background()

	_, ok, err := e.Advance(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	n, _ := queue.CountUnplayed(1)
	assert.Equal(t, 5, n)

	_, ok, err = e.Advance(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	n, _ = queue.CountUnplayed(1)
	assert.Greater(t, n, 4, "refill should have replaced the dwindling queue")
}

func TestAdvanceSurvivesRefillFailure(t *testing.T) {
	// An empty candidate pool makes the refill produce nothing; the advance
	// itself must still report the consumed track.
	tracks := []*model.Track{trackBy(1, "A"), trackBy(2, "B")}
	queue := &fakeQueueRepo{}
	require.NoError(t, queue.ReplaceUnplayed(1, []*model.QueueEntry{{TrackID: 1}, {TrackID: 2}}))
	e := newTestEngine(&fakeAffinityRepo{}, queue, tracks...)

	track, ok, err := e.Advance(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), track.ID)
}

func TestClearRemovesEverything(t *testing.T) {
	e, queue, _ := seededQueue(t, 4)
	ctx := context.Background()

	_, _, err := e.Advance(ctx, 1)
	require.NoError(t, err)

	cache := newFakeQueueCache()
	cache.stored[1] = []*model.Track{trackBy(9, "stale")}
	e.SetCache(cache)

	require.NoError(t, e.Clear(ctx, 1))
	assert.Empty(t, queue.entries)
	assert.Nil(t, cache.stored[1])
}

func TestHistoryMostRecentFirst(t *testing.T) {
	e, _, tracks := seededQueue(t, 8)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := e.Advance(ctx, 1)
		require.NoError(t, err)
	}

	got, err := e.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Played in order 1, 2, 3; history reads back 3, 2, 1.
	assert.Equal(t, tracks[2].ID, got[0].ID)
	assert.Equal(t, tracks[1].ID, got[1].ID)
	assert.Equal(t, tracks[0].ID, got[2].ID)
}
