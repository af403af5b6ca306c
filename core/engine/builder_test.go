package engine

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mixfm/config"
	"mixfm/model"
)

// In-memory stores so the engine can be exercised without MySQL. The queue
// fake mirrors the transactional store's contract: positions append-only
// and strictly increasing per listener.

type fakeTrackRepo struct {
	tracks map[int64]*model.Track
}

func newFakeTrackRepo(tracks ...*model.Track) *fakeTrackRepo {
	r := &fakeTrackRepo{tracks: make(map[int64]*model.Track)}
	for _, t := range tracks {
		r.tracks[t.ID] = t
	}
	return r
}

func (r *fakeTrackRepo) CreateTrack(track *model.Track) (int64, error) {
	r.tracks[track.ID] = track
	return track.ID, nil
}

func (r *fakeTrackRepo) GetTrackByID(id int64) (*model.Track, error) {
	return r.tracks[id], nil
}

func (r *fakeTrackRepo) GetTracksByIDs(ids []int64) ([]*model.Track, error) {
	out := make([]*model.Track, 0, len(ids))
	for _, id := range ids {
		if t, ok := r.tracks[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTrackRepo) GetTrackBySourceID(sourceID string) (*model.Track, error) {
	for _, t := range r.tracks {
		if t.SourceID == sourceID {
			return t, nil
		}
	}
	return nil, nil
}

func (r *fakeTrackRepo) UpdateTrackMetadata(track *model.Track) error {
	r.tracks[track.ID] = track
	return nil
}

func (r *fakeTrackRepo) UpdateTrackCoverPath(trackID int64, coverPath string) error {
	if t, ok := r.tracks[trackID]; ok {
		t.CoverArtPath = coverPath
	}
	return nil
}

type fakeAffinityRepo struct {
	candidates []*model.CandidateTrack
	recent     []*model.CandidateTrack
}

func (r *fakeAffinityRepo) GetByListenerAndTrack(listenerID, trackID int64) (*model.Affinity, error) {
	for _, c := range r.candidates {
		if c.Affinity.TrackID == trackID {
			return c.Affinity, nil
		}
	}
	return nil, nil
}

func (r *fakeAffinityRepo) CreateAffinity(a *model.Affinity) (int64, error) { return a.ID, nil }
func (r *fakeAffinityRepo) UpdateFeedback(a *model.Affinity) error          { return nil }
func (r *fakeAffinityRepo) UpdateScore(listenerID, trackID int64, score float64) error {
	return nil
}
func (r *fakeAffinityRepo) RecordPlay(listenerID, trackID int64, playedAt time.Time) error {
	return nil
}

func (r *fakeAffinityRepo) ListCandidates(listenerID int64) ([]*model.CandidateTrack, error) {
	return r.candidates, nil
}

func (r *fakeAffinityRepo) RecentlyPlayed(listenerID int64, limit int) ([]*model.CandidateTrack, error) {
	if limit < len(r.recent) {
		return r.recent[:limit], nil
	}
	return r.recent, nil
}

func (r *fakeAffinityRepo) ListByFeedback(listenerID int64, feedback string, limit int) ([]*model.CandidateTrack, error) {
	return nil, nil
}

func (r *fakeAffinityRepo) ListByListener(listenerID int64, limit, offset int) ([]*model.CandidateTrack, error) {
	return nil, nil
}

func (r *fakeAffinityRepo) FeedbackStats(listenerID int64) (map[string]int, error) {
	return map[string]int{}, nil
}

type fakeQueueRepo struct {
	entries []*model.QueueEntry
	nextID  int64
}

func (r *fakeQueueRepo) maxPosition(listenerID int64) int64 {
	var max int64
	for _, e := range r.entries {
		if e.UserID == listenerID && e.Position > max {
			max = e.Position
		}
	}
	return max
}

func (r *fakeQueueRepo) ReplaceUnplayed(listenerID int64, entries []*model.QueueEntry) error {
	// Positions of the rows about to be deleted still count toward the max;
	// they are never reused.
	pos := r.maxPosition(listenerID) + 1

	kept := make([]*model.QueueEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.UserID != listenerID || e.Played {
			kept = append(kept, e)
		}
	}
	r.entries = kept

	for _, e := range entries {
		r.nextID++
		e.ID = r.nextID
		e.UserID = listenerID
		e.Position = pos
		pos++
		r.entries = append(r.entries, e)
	}
	return nil
}

func (r *fakeQueueRepo) unplayedSorted(listenerID int64) []*model.QueueEntry {
	out := make([]*model.QueueEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.UserID == listenerID && !e.Played {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (r *fakeQueueRepo) UnplayedEntries(listenerID int64, limit int) ([]*model.QueueEntry, error) {
	out := r.unplayedSorted(listenerID)
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeQueueRepo) PlayedEntries(listenerID int64, limit int) ([]*model.QueueEntry, error) {
	out := make([]*model.QueueEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.UserID == listenerID && e.Played {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position > out[j].Position })
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeQueueRepo) AdvanceFirstUnplayed(listenerID int64, playedAt time.Time) (*model.QueueEntry, error) {
	unplayed := r.unplayedSorted(listenerID)
	if len(unplayed) == 0 {
		return nil, nil
	}
	unplayed[0].Played = true
	return unplayed[0], nil
}

func (r *fakeQueueRepo) CountUnplayed(listenerID int64) (int, error) {
	return len(r.unplayedSorted(listenerID)), nil
}

func (r *fakeQueueRepo) DeleteAll(listenerID int64) error {
	kept := make([]*model.QueueEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.UserID != listenerID {
			kept = append(kept, e)
		}
	}
	r.entries = kept
	return nil
}

type fakeQueueCache struct {
	stored     map[int64][]*model.Track
	sets, gets int
}

func newFakeQueueCache() *fakeQueueCache {
	return &fakeQueueCache{stored: make(map[int64][]*model.Track)}
}

func (c *fakeQueueCache) Get(ctx context.Context, listenerID int64) ([]*model.Track, error) {
	c.gets++
	return c.stored[listenerID], nil
}

func (c *fakeQueueCache) Set(ctx context.Context, listenerID int64, tracks []*model.Track) error {
	c.sets++
	c.stored[listenerID] = tracks
	return nil
}

func (c *fakeQueueCache) Invalidate(ctx context.Context, listenerID int64) error {
	delete(c.stored, listenerID)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SetAlgorithm(config.AlgorithmConfig{
		DiscoveryRatio:    0.25,
		MinArtistGap:      5,
		MaxGenreRatio:     0.4,
		QueuePrefetchSize: 20,
		QueueLowWater:     5,
	})
	return cfg
}

func neverPlayed(trackID int64, track *model.Track) *model.CandidateTrack {
	return &model.CandidateTrack{
		Affinity: &model.Affinity{UserID: 1, TrackID: trackID, Score: model.DefaultScore},
		Track:    track,
	}
}

func playedDaysAgo(trackID int64, track *model.Track, days float64, feedback string) *model.CandidateTrack {
	now := time.Now()
	return &model.CandidateTrack{
		Affinity: &model.Affinity{
			UserID:     1,
			TrackID:    trackID,
			PlayCount:  3,
			LastPlayed: daysAgo(now, days),
			Feedback:   feedback,
			Score:      model.DefaultScore,
		},
		Track: track,
	}
}

func newTestEngine(affinities *fakeAffinityRepo, queue *fakeQueueRepo, tracks ...*model.Track) *Engine {
	e := NewEngine(testConfig(), newFakeTrackRepo(tracks...), affinities, queue)
	e.seed = func() int64 { return 1 }
	return e
}

func TestGenerateBatchNonPositiveCount(t *testing.T) {
	e := newTestEngine(&fakeAffinityRepo{}, &fakeQueueRepo{})
	got, err := e.GenerateBatch(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGenerateBatchEmptyPoolLeavesQueueAlone(t *testing.T) {
	queue := &fakeQueueRepo{}
	existing := []*model.QueueEntry{{TrackID: 99}}
	require.NoError(t, queue.ReplaceUnplayed(1, existing))

	e := newTestEngine(&fakeAffinityRepo{}, queue)
	got, err := e.GenerateBatch(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, _ := queue.CountUnplayed(1)
	assert.Equal(t, 1, n, "empty batch must not wipe the existing queue")
}

func TestGenerateBatchNeverIncludesDisliked(t *testing.T) {
	pool := make([]*model.CandidateTrack, 0, 11)
	for i := int64(1); i <= 10; i++ {
		pool = append(pool, neverPlayed(i, trackBy(i, fmt.Sprintf("artist-%d", i))))
	}
	disliked := playedDaysAgo(11, trackBy(11, "artist-11"), 40, model.FeedbackDislike)
	pool = append(pool, disliked)

	affinities := &fakeAffinityRepo{candidates: pool}
	e := newTestEngine(affinities, &fakeQueueRepo{}, poolTracks(pool)...)

	for seed := int64(0); seed < 50; seed++ {
		s := seed
		e.seed = func() int64 { return s }
		got, err := e.GenerateBatch(context.Background(), 1, 8)
		require.NoError(t, err)
		for _, track := range got {
			assert.NotEqual(t, int64(11), track.ID, "disliked track admitted")
		}
	}
}

func poolTracks(pool []*model.CandidateTrack) []*model.Track {
	out := make([]*model.Track, 0, len(pool))
	for _, c := range pool {
		out = append(out, c.Track)
	}
	return out
}

func likedNeverPlayed(trackID int64, track *model.Track) *model.CandidateTrack {
	now := time.Now()
	return &model.CandidateTrack{
		Affinity: &model.Affinity{
			UserID:     1,
			TrackID:    trackID,
			Feedback:   model.FeedbackLike,
			FeedbackAt: &now,
			Score:      model.DefaultScore,
		},
		Track: track,
	}
}

func TestGenerateBatchDominantLikedArtist(t *testing.T) {
	// Three liked never-played tracks by one artist against ten neutral
	// never-played tracks by distinct artists, batch of eight. The liked
	// tracks outscore every neutral one, but artist spacing admits only the
	// first: the other two are rejected in the same pass and the leftover
	// pass re-encounters them against a window that still holds the artist.
	pool := make([]*model.CandidateTrack, 0, 13)
	for i := int64(1); i <= 3; i++ {
		pool = append(pool, likedNeverPlayed(i, trackBy(i, "dominant")))
	}
	for i := int64(4); i <= 13; i++ {
		pool = append(pool, neverPlayed(i, trackBy(i, fmt.Sprintf("artist-%d", i))))
	}
	affinities := &fakeAffinityRepo{candidates: pool}
	e := newTestEngine(affinities, &fakeQueueRepo{}, poolTracks(pool)...)

	for seed := int64(0); seed < 40; seed++ {
		s := seed
		e.seed = func() int64 { return s }
		got, err := e.GenerateBatch(context.Background(), 1, 8)
		require.NoError(t, err)
		require.Len(t, got, 8)

		dominant := 0
		seen := map[int64]bool{}
		for _, track := range got {
			require.False(t, seen[track.ID], "track %d repeated", track.ID)
			seen[track.ID] = true
			if track.Artist == "dominant" {
				dominant++
			}
		}
		assert.Equal(t, 1, dominant, "seed %d: liked artist should fill exactly one slot", s)
	}
}

func TestSelectDiverseArtistSpacing(t *testing.T) {
	// Three well-liked tracks by one artist against ten fresh tracks by
	// distinct artists. Spacing must hold in admission order no matter how
	// strongly the repeated artist scores.
	now := time.Now()
	scored := make([]scoredCandidate, 0, 13)
	for i := int64(1); i <= 3; i++ {
		c := playedDaysAgo(i, trackBy(i, "dominant"), 45, model.FeedbackLike)
		scored = append(scored, scoredCandidate{cand: c, score: 2.0})
	}
	for i := int64(4); i <= 13; i++ {
		c := neverPlayed(i, trackBy(i, fmt.Sprintf("artist-%d", i)))
		scored = append(scored, scoredCandidate{cand: c, score: 1.0})
	}

	alg := testConfig().Algorithm()
	selected := selectDiverse(scored, nil, 8, alg, now)
	require.NotEmpty(t, selected)

	lastSeen := map[string]int{}
	for i, c := range selected {
		key := c.Track.ArtistKey()
		if prev, ok := lastSeen[key]; ok {
			assert.GreaterOrEqual(t, i-prev, alg.MinArtistGap,
				"artist %q repeated at positions %d and %d", key, prev, i)
		}
		lastSeen[key] = i
	}
}

func TestSelectDiverseDiscoveryShare(t *testing.T) {
	now := time.Now()
	scored := make([]scoredCandidate, 0, 20)
	// Ten discoveries, ten familiar, all distinct artists and untagged.
	for i := int64(1); i <= 10; i++ {
		c := neverPlayed(i, trackBy(i, fmt.Sprintf("new-%d", i)))
		scored = append(scored, scoredCandidate{cand: c, score: 1.3})
	}
	for i := int64(11); i <= 20; i++ {
		c := playedDaysAgo(i, trackBy(i, fmt.Sprintf("known-%d", i)), 10, "")
		scored = append(scored, scoredCandidate{cand: c, score: 1.0})
	}

	selected := selectDiverse(scored, nil, 8, testConfig().Algorithm(), now)
	require.Len(t, selected, 8)

	discoveries := 0
	for _, c := range selected {
		if isDiscovery(c.Affinity, now) {
			discoveries++
		}
	}
	// floor(8 * 0.25) = 2, and both pools have plenty to give.
	assert.Equal(t, 2, discoveries)
}

func TestSelectDiverseFallsBackWhenPoolStarved(t *testing.T) {
	now := time.Now()
	// No discoveries at all: the whole batch should still fill from the
	// familiar pool via the leftover pass.
	scored := make([]scoredCandidate, 0, 10)
	for i := int64(1); i <= 10; i++ {
		c := playedDaysAgo(i, trackBy(i, fmt.Sprintf("known-%d", i)), 10, "")
		scored = append(scored, scoredCandidate{cand: c, score: 1.0})
	}

	selected := selectDiverse(scored, nil, 8, testConfig().Algorithm(), now)
	assert.Len(t, selected, 8)
}

func TestSelectDiverseNeverRepeatsTrack(t *testing.T) {
	now := time.Now()
	scored := make([]scoredCandidate, 0, 6)
	for i := int64(1); i <= 6; i++ {
		c := neverPlayed(i, trackBy(i, fmt.Sprintf("artist-%d", i)))
		scored = append(scored, scoredCandidate{cand: c, score: 1.0})
	}

	selected := selectDiverse(scored, nil, 10, testConfig().Algorithm(), now)
	seen := map[int64]bool{}
	for _, c := range selected {
		assert.False(t, seen[c.Track.ID], "track %d selected twice", c.Track.ID)
		seen[c.Track.ID] = true
	}
	assert.Len(t, selected, 6)
}

func TestGenerateBatchPositionsMonotonic(t *testing.T) {
	pool := make([]*model.CandidateTrack, 0, 10)
	for i := int64(1); i <= 10; i++ {
		pool = append(pool, neverPlayed(i, trackBy(i, fmt.Sprintf("artist-%d", i))))
	}
	affinities := &fakeAffinityRepo{candidates: pool}
	queue := &fakeQueueRepo{}
	e := newTestEngine(affinities, queue, poolTracks(pool)...)

	ctx := context.Background()
	_, err := e.GenerateBatch(ctx, 1, 5)
	require.NoError(t, err)

	first, _ := queue.UnplayedEntries(1, 100)
	require.NotEmpty(t, first)
	maxFirst := first[len(first)-1].Position

	// Consume two, regenerate, and check the new batch starts past every
	// position ever assigned.
	_, _, err = e.Advance(ctx, 1)
	require.NoError(t, err)

	_, err = e.GenerateBatch(ctx, 1, 5)
	require.NoError(t, err)

	second, _ := queue.UnplayedEntries(1, 100)
	require.NotEmpty(t, second)
	for _, entry := range second {
		assert.Greater(t, entry.Position, maxFirst)
	}
}

func TestGenerateBatchSharesBatchID(t *testing.T) {
	pool := make([]*model.CandidateTrack, 0, 6)
	for i := int64(1); i <= 6; i++ {
		pool = append(pool, neverPlayed(i, trackBy(i, fmt.Sprintf("artist-%d", i))))
	}
	queue := &fakeQueueRepo{}
	e := newTestEngine(&fakeAffinityRepo{candidates: pool}, queue, poolTracks(pool)...)

	_, err := e.GenerateBatch(context.Background(), 1, 6)
	require.NoError(t, err)

	entries, _ := queue.UnplayedEntries(1, 100)
	require.NotEmpty(t, entries)
	batch := entries[0].BatchID
	assert.NotEmpty(t, batch)
	for _, entry := range entries {
		assert.Equal(t, batch, entry.BatchID)
	}
}

func TestGenerateBatchInvalidatesCache(t *testing.T) {
	pool := []*model.CandidateTrack{neverPlayed(1, trackBy(1, "A"))}
	e := newTestEngine(&fakeAffinityRepo{candidates: pool}, &fakeQueueRepo{}, poolTracks(pool)...)

	cache := newFakeQueueCache()
	cache.stored[1] = []*model.Track{trackBy(99, "stale")}
	e.SetCache(cache)

	_, err := e.GenerateBatch(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Nil(t, cache.stored[1])
}
