package library

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mixfm/model"
)

type memStatusSink struct {
	mu     sync.Mutex
	status map[int64]*model.SyncStatus
	writes int
}

func newMemStatusSink() *memStatusSink {
	return &memStatusSink{status: make(map[int64]*model.SyncStatus)}
}

func (s *memStatusSink) Set(ctx context.Context, listenerID int64, status *model.SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.status[listenerID] = status
	return nil
}

func (s *memStatusSink) Get(ctx context.Context, listenerID int64) (*model.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.status[listenerID]; ok {
		return st, nil
	}
	return &model.SyncStatus{State: model.SyncIdle}, nil
}

type memTrackRepo struct {
	tracks map[string]*model.Track
	nextID int64
}

func newMemTrackRepo() *memTrackRepo {
	return &memTrackRepo{tracks: make(map[string]*model.Track)}
}

func (r *memTrackRepo) CreateTrack(track *model.Track) (int64, error) {
	r.nextID++
	track.ID = r.nextID
	r.tracks[track.SourceID] = track
	return track.ID, nil
}

func (r *memTrackRepo) GetTrackByID(id int64) (*model.Track, error) {
	for _, t := range r.tracks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}

func (r *memTrackRepo) GetTracksByIDs(ids []int64) ([]*model.Track, error) { return nil, nil }

func (r *memTrackRepo) GetTrackBySourceID(sourceID string) (*model.Track, error) {
	return r.tracks[sourceID], nil
}

func (r *memTrackRepo) UpdateTrackMetadata(track *model.Track) error {
	r.tracks[track.SourceID] = track
	return nil
}

func (r *memTrackRepo) UpdateTrackCoverPath(trackID int64, coverPath string) error {
	for _, t := range r.tracks {
		if t.ID == trackID {
			t.CoverArtPath = coverPath
		}
	}
	return nil
}

type memAffinityRepo struct {
	byPair map[[2]int64]*model.Affinity
	nextID int64
}

func newMemAffinityRepo() *memAffinityRepo {
	return &memAffinityRepo{byPair: make(map[[2]int64]*model.Affinity)}
}

func (r *memAffinityRepo) GetByListenerAndTrack(listenerID, trackID int64) (*model.Affinity, error) {
	return r.byPair[[2]int64{listenerID, trackID}], nil
}

func (r *memAffinityRepo) CreateAffinity(a *model.Affinity) (int64, error) {
	r.nextID++
	a.ID = r.nextID
	r.byPair[[2]int64{a.UserID, a.TrackID}] = a
	return a.ID, nil
}

func (r *memAffinityRepo) UpdateFeedback(a *model.Affinity) error                 { return nil }
func (r *memAffinityRepo) UpdateScore(l, t int64, s float64) error                { return nil }
func (r *memAffinityRepo) RecordPlay(l, t int64, at time.Time) error              { return nil }
func (r *memAffinityRepo) ListCandidates(l int64) ([]*model.CandidateTrack, error) { return nil, nil }
func (r *memAffinityRepo) RecentlyPlayed(l int64, n int) ([]*model.CandidateTrack, error) {
	return nil, nil
}
func (r *memAffinityRepo) ListByFeedback(l int64, fb string, n int) ([]*model.CandidateTrack, error) {
	return nil, nil
}
func (r *memAffinityRepo) ListByListener(l int64, n, o int) ([]*model.CandidateTrack, error) {
	return nil, nil
}
func (r *memAffinityRepo) FeedbackStats(l int64) (map[string]int, error) { return nil, nil }

type memUnavailableRepo struct {
	cleared []int64
}

func (r *memUnavailableRepo) MarkUnavailable(trackID int64, errorType, message string, retryAfter *time.Time) error {
	return nil
}

func (r *memUnavailableRepo) ClearUnavailable(trackID int64) error {
	r.cleared = append(r.cleared, trackID)
	return nil
}

type staticProvider struct {
	items []*LibraryItem
	err   error
}

func (p *staticProvider) FetchLibrary(ctx context.Context, listenerID int64) ([]*LibraryItem, error) {
	return p.items, p.err
}

type fakeMirror struct {
	mirrored map[string]string
}

func (m *fakeMirror) MirrorCover(ctx context.Context, sourceID, coverURL string) (string, error) {
	if m.mirrored == nil {
		m.mirrored = make(map[string]string)
	}
	path := "covers/" + sourceID
	m.mirrored[sourceID] = coverURL
	return path, nil
}

func item(sourceID, title, artist string, liked bool) *LibraryItem {
	return &LibraryItem{SourceID: sourceID, Title: title, Artist: artist, Liked: liked}
}

func newTestSyncer(p Provider) (*Syncer, *memTrackRepo, *memAffinityRepo, *memUnavailableRepo, *memStatusSink) {
	tracks := newMemTrackRepo()
	affinities := newMemAffinityRepo()
	unavailable := &memUnavailableRepo{}
	status := newMemStatusSink()
	return NewSyncer(p, tracks, affinities, unavailable, status), tracks, affinities, unavailable, status
}

func TestSyncCreatesTracksAndAffinities(t *testing.T) {
	provider := &staticProvider{items: []*LibraryItem{
		item("src-1", "One", "A", false),
		item("src-2", "Two", "B", true),
	}}
	s, tracks, affinities, _, status := newTestSyncer(provider)

	require.NoError(t, s.Sync(context.Background(), 1))

	one, _ := tracks.GetTrackBySourceID("src-1")
	require.NotNil(t, one)
	assert.Equal(t, "One", one.Title)

	neutral := affinities.byPair[[2]int64{1, one.ID}]
	require.NotNil(t, neutral)
	assert.Equal(t, "library", neutral.Source)
	assert.Empty(t, neutral.Feedback)
	assert.Equal(t, model.DefaultScore, neutral.Score)

	two, _ := tracks.GetTrackBySourceID("src-2")
	liked := affinities.byPair[[2]int64{1, two.ID}]
	require.NotNil(t, liked)
	assert.Equal(t, "liked", liked.Source)
	assert.Equal(t, model.FeedbackLike, liked.Feedback)
	assert.Equal(t, model.DefaultScore*model.LikeScoreMultiplier, liked.Score)

	st, _ := status.Get(context.Background(), 1)
	assert.Equal(t, model.SyncComplete, st.State)
	assert.Equal(t, 1.0, st.Progress)
}

func TestSyncRefreshesExistingTracks(t *testing.T) {
	provider := &staticProvider{items: []*LibraryItem{item("src-1", "New Title", "A", false)}}
	s, tracks, _, unavailable, _ := newTestSyncer(provider)

	id, err := tracks.CreateTrack(&model.Track{SourceID: "src-1", Title: "Old Title", Artist: "A"})
	require.NoError(t, err)

	require.NoError(t, s.Sync(context.Background(), 1))

	got, _ := tracks.GetTrackBySourceID("src-1")
	assert.Equal(t, "New Title", got.Title)
	// Listed by the provider again: any failure record is stale.
	assert.Contains(t, unavailable.cleared, id)
}

func TestSyncDoesNotOverwriteLocalFeedback(t *testing.T) {
	provider := &staticProvider{items: []*LibraryItem{item("src-1", "One", "A", true)}}
	s, tracks, affinities, _, _ := newTestSyncer(provider)

	id, err := tracks.CreateTrack(&model.Track{SourceID: "src-1", Title: "One", Artist: "A"})
	require.NoError(t, err)
	affinities.CreateAffinity(&model.Affinity{
		UserID: 1, TrackID: id, Feedback: model.FeedbackDislike, Score: 0,
	})

	require.NoError(t, s.Sync(context.Background(), 1))

	a := affinities.byPair[[2]int64{1, id}]
	assert.Equal(t, model.FeedbackDislike, a.Feedback)
	assert.Equal(t, 0.0, a.Score)
}

func TestSyncMirrorsArtworkForNewTracks(t *testing.T) {
	it := item("src-1", "One", "A", false)
	it.CoverURL = "https://example.test/cover.jpg"
	provider := &staticProvider{items: []*LibraryItem{it}}
	s, tracks, _, _, _ := newTestSyncer(provider)
	mirror := &fakeMirror{}
	s.SetArtworkMirror(mirror)

	require.NoError(t, s.Sync(context.Background(), 1))

	assert.Equal(t, "https://example.test/cover.jpg", mirror.mirrored["src-1"])
	got, _ := tracks.GetTrackBySourceID("src-1")
	assert.Equal(t, "covers/src-1", got.CoverArtPath)
}

func TestSyncProviderFailureSetsErrorStatus(t *testing.T) {
	provider := &staticProvider{err: errors.New("upstream down")}
	s, _, _, _, status := newTestSyncer(provider)

	err := s.Sync(context.Background(), 1)
	require.Error(t, err)

	st, _ := status.Get(context.Background(), 1)
	assert.Equal(t, model.SyncError, st.State)
	assert.Contains(t, st.Message, "upstream down")
}

func TestSyncEmptyLibraryCompletes(t *testing.T) {
	s, _, _, _, status := newTestSyncer(&staticProvider{})
	require.NoError(t, s.Sync(context.Background(), 1))
	st, _ := status.Get(context.Background(), 1)
	assert.Equal(t, model.SyncComplete, st.State)
}

func TestNoopProviderFailsFast(t *testing.T) {
	s, _, _, _, _ := newTestSyncer(NoopProvider())
	err := s.Sync(context.Background(), 1)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}
