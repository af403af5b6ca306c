package engine

import (
	"context"
	"fmt"
	"time"

	"mixfm/logger"
	"mixfm/model"
)

// queueProjectionMax caps how much of the unplayed queue is materialized
// for the cache and for callers asking without a limit.
const queueProjectionMax = 500

// CurrentQueue returns the listener's unplayed tracks in playback order,
// at most limit of them (limit <= 0 means the full projection). The cache
// is read-through: a hit skips the database, a miss or error falls back to
// it and repopulates.
func (e *Engine) CurrentQueue(ctx context.Context, listenerID int64, limit int) ([]*model.Track, error) {
	if limit <= 0 || limit > queueProjectionMax {
		limit = queueProjectionMax
	}

	if e.cache != nil {
		cached, err := e.cache.Get(ctx, listenerID)
		if err != nil {
			logger.Warn("Queue cache read failed", logger.Int64("listenerId", listenerID), logger.ErrorField(err))
		} else if cached != nil {
			if len(cached) > limit {
				cached = cached[:limit]
			}
			return cached, nil
		}
	}

	entries, err := e.queue.UnplayedEntries(listenerID, queueProjectionMax)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue for listener %d: %w", listenerID, err)
	}

	tracks, err := e.tracksForEntries(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve queue tracks for listener %d: %w", listenerID, err)
	}

	if e.cache != nil && len(tracks) > 0 {
		if err := e.cache.Set(ctx, listenerID, tracks); err != nil {
			logger.Warn("Queue cache write failed", logger.Int64("listenerId", listenerID), logger.ErrorField(err))
		}
	}

	if len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return tracks, nil
}

// Advance consumes the head of the queue: the lowest-position unplayed
// entry is marked played, its play count and last-played time are bumped in
// the same transaction, and the consumed track is returned. With nothing
// left to consume it returns (nil, false, nil). When consumption leaves the
// queue under the low-water mark a refill batch is generated; a refill
// failure is logged, not returned, because the advance itself succeeded.
func (e *Engine) Advance(ctx context.Context, listenerID int64) (*model.Track, bool, error) {
	entry, err := e.queue.AdvanceFirstUnplayed(listenerID, time.Now())
	if err != nil {
		return nil, false, fmt.Errorf("failed to advance queue for listener %d: %w", listenerID, err)
	}
	if entry == nil {
		return nil, false, nil
	}

	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, listenerID); err != nil {
			logger.Warn("Failed to invalidate queue cache", logger.Int64("listenerId", listenerID), logger.ErrorField(err))
		}
	}

	track, err := e.tracks.GetTrackByID(entry.TrackID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load advanced track %d: %w", entry.TrackID, err)
	}

	alg := e.cfg.Algorithm()
	remaining, err := e.queue.CountUnplayed(listenerID)
	if err != nil {
		logger.Warn("Failed to count remaining queue entries", logger.Int64("listenerId", listenerID), logger.ErrorField(err))
		return track, true, nil
	}
	if remaining < alg.QueueLowWater {
		if _, err := e.GenerateBatch(ctx, listenerID, alg.QueuePrefetchSize); err != nil {
			logger.Warn("Queue refill failed after advance",
				logger.Int64("listenerId", listenerID),
				logger.Int("remaining", remaining),
				logger.ErrorField(err))
		}
	}

	return track, true, nil
}

// Clear removes the listener's queue entirely, played history included.
func (e *Engine) Clear(ctx context.Context, listenerID int64) error {
	if err := e.queue.DeleteAll(listenerID); err != nil {
		return fmt.Errorf("failed to clear queue for listener %d: %w", listenerID, err)
	}
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, listenerID); err != nil {
			logger.Warn("Failed to invalidate queue cache", logger.Int64("listenerId", listenerID), logger.ErrorField(err))
		}
	}
	return nil
}

// History returns the listener's played tracks, most recent first.
func (e *Engine) History(ctx context.Context, listenerID int64, limit int) ([]*model.Track, error) {
	if limit <= 0 || limit > queueProjectionMax {
		limit = queueProjectionMax
	}
	entries, err := e.queue.PlayedEntries(listenerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load play history for listener %d: %w", listenerID, err)
	}
	tracks, err := e.tracksForEntries(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve history tracks for listener %d: %w", listenerID, err)
	}
	return tracks, nil
}
