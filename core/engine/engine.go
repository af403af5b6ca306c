package engine

import (
	"context"
	"errors"
	"time"

	"mixfm/config"
	"mixfm/model"
	"mixfm/repository"
)

// ErrDislikedAdmitted signals a programming error: a disliked track made it
// through scoring and admission. The batch is discarded rather than
// silently repaired.
var ErrDislikedAdmitted = errors.New("disliked track admitted to batch")

// QueueCache is an optional read-through cache of the unplayed queue
// projection. A nil cache result means miss; cache failures are treated as
// misses, never as errors.
type QueueCache interface {
	Get(ctx context.Context, listenerID int64) ([]*model.Track, error)
	Set(ctx context.Context, listenerID int64, tracks []*model.Track) error
	Invalidate(ctx context.Context, listenerID int64) error
}

// Engine turns a listener's play history, feedback and diversity
// constraints into an ordered batch of tracks to play next. It is logically
// single-threaded per listener; distinct listeners are independent.
type Engine struct {
	cfg        *config.Config
	tracks     repository.TrackRepository
	affinities repository.AffinityRepository
	queue      repository.QueueRepository
	cache      QueueCache

	// seed feeds the per-call random source; replaced in tests.
	seed func() int64
}

// NewEngine creates a queue engine over the given stores.
func NewEngine(cfg *config.Config, tracks repository.TrackRepository, affinities repository.AffinityRepository, queue repository.QueueRepository) *Engine {
	return &Engine{
		cfg:        cfg,
		tracks:     tracks,
		affinities: affinities,
		queue:      queue,
		seed:       func() int64 { return time.Now().UnixNano() },
	}
}

// SetCache attaches an optional queue projection cache.
func (e *Engine) SetCache(cache QueueCache) {
	e.cache = cache
}

// tracksForEntries resolves queue entries to their catalog tracks,
// preserving entry order. Entries whose track is missing from the catalog
// are skipped.
func (e *Engine) tracksForEntries(entries []*model.QueueEntry) ([]*model.Track, error) {
	if len(entries) == 0 {
		return []*model.Track{}, nil
	}

	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.TrackID)
	}

	tracks, err := e.tracks.GetTracksByIDs(ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*model.Track, len(tracks))
	for _, t := range tracks {
		byID[t.ID] = t
	}

	ordered := make([]*model.Track, 0, len(entries))
	for _, entry := range entries {
		if t, ok := byID[entry.TrackID]; ok {
			ordered = append(ordered, t)
		}
	}
	return ordered, nil
}
