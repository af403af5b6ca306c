package library

import (
	"context"
	"fmt"

	"mixfm/logger"
	"mixfm/model"
	"mixfm/repository"
)

// ArtworkMirror copies provider-hosted cover art into local object storage
// and returns the stored object path. Optional: a nil mirror skips artwork.
type ArtworkMirror interface {
	MirrorCover(ctx context.Context, sourceID, coverURL string) (string, error)
}

// StatusSink is where sync progress is published. *StatusStore is the
// Redis-backed implementation.
type StatusSink interface {
	Set(ctx context.Context, listenerID int64, status *model.SyncStatus) error
	Get(ctx context.Context, listenerID int64) (*model.SyncStatus, error)
}

// Syncer reconciles a listener's upstream library into the catalog and
// affinity tables. One sync per listener runs at a time; callers gate on
// the status store before starting another.
type Syncer struct {
	provider    Provider
	tracks      repository.TrackRepository
	affinities  repository.AffinityRepository
	unavailable repository.UnavailableRepository
	status      StatusSink
	artwork     ArtworkMirror
}

// NewSyncer creates a library syncer. The artwork mirror may be nil.
func NewSyncer(provider Provider, tracks repository.TrackRepository, affinities repository.AffinityRepository,
	unavailable repository.UnavailableRepository, status StatusSink) *Syncer {
	return &Syncer{
		provider:    provider,
		tracks:      tracks,
		affinities:  affinities,
		unavailable: unavailable,
		status:      status,
	}
}

// SetArtworkMirror attaches optional cover art mirroring.
func (s *Syncer) SetArtworkMirror(m ArtworkMirror) {
	s.artwork = m
}

// Status reports the listener's current sync status.
func (s *Syncer) Status(ctx context.Context, listenerID int64) (*model.SyncStatus, error) {
	return s.status.Get(ctx, listenerID)
}

// Sync fetches the listener's library from the provider and reconciles it:
// unknown tracks are created, known ones refreshed, and every item gets an
// affinity record so it can enter the candidate pool. Tracks seen healthy
// again have their unavailability record cleared. Progress is published to
// the status store throughout.
func (s *Syncer) Sync(ctx context.Context, listenerID int64) error {
	s.setStatus(ctx, listenerID, model.SyncRunning, 0, "fetching library")

	items, err := s.provider.FetchLibrary(ctx, listenerID)
	if err != nil {
		s.setStatus(ctx, listenerID, model.SyncError, 0, err.Error())
		return fmt.Errorf("failed to fetch library for listener %d: %w", listenerID, err)
	}
	if len(items) == 0 {
		s.setStatus(ctx, listenerID, model.SyncComplete, 1, "library is empty")
		return nil
	}

	var created, refreshed int
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			s.setStatus(ctx, listenerID, model.SyncError, float64(i)/float64(len(items)), "sync cancelled")
			return err
		}

		track, err := s.reconcileTrack(ctx, item)
		if err != nil {
			s.setStatus(ctx, listenerID, model.SyncError, float64(i)/float64(len(items)), err.Error())
			return err
		}
		if track.refreshed {
			refreshed++
		} else {
			created++
		}

		if err := s.ensureAffinity(listenerID, track.id, item); err != nil {
			s.setStatus(ctx, listenerID, model.SyncError, float64(i)/float64(len(items)), err.Error())
			return err
		}

		if (i+1)%50 == 0 {
			s.setStatus(ctx, listenerID, model.SyncRunning, float64(i+1)/float64(len(items)),
				fmt.Sprintf("reconciled %d of %d tracks", i+1, len(items)))
		}
	}

	msg := fmt.Sprintf("synced %d tracks (%d new, %d refreshed)", len(items), created, refreshed)
	s.setStatus(ctx, listenerID, model.SyncComplete, 1, msg)
	logger.Info("Library sync complete",
		logger.Int64("listenerId", listenerID),
		logger.Int("created", created),
		logger.Int("refreshed", refreshed))
	return nil
}

type reconciled struct {
	id        int64
	refreshed bool
}

// reconcileTrack upserts one provider item into the catalog by source id
// and clears any stale unavailability record for it.
func (s *Syncer) reconcileTrack(ctx context.Context, item *LibraryItem) (*reconciled, error) {
	existing, err := s.tracks.GetTrackBySourceID(item.SourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up track %q: %w", item.SourceID, err)
	}

	if existing == nil {
		track := &model.Track{
			SourceID: item.SourceID,
			Title:    item.Title,
			Artist:   item.Artist,
			ArtistID: item.ArtistID,
			Album:    item.Album,
			Duration: item.Duration,
		}
		track.SetGenreTags(item.Genres)
		id, err := s.tracks.CreateTrack(track)
		if err != nil {
			return nil, fmt.Errorf("failed to create track %q: %w", item.SourceID, err)
		}
		s.mirrorArtwork(ctx, id, item)
		return &reconciled{id: id}, nil
	}

	existing.Title = item.Title
	existing.Artist = item.Artist
	existing.ArtistID = item.ArtistID
	existing.Album = item.Album
	existing.Duration = item.Duration
	existing.SetGenreTags(item.Genres)
	if err := s.tracks.UpdateTrackMetadata(existing); err != nil {
		return nil, fmt.Errorf("failed to refresh track %q: %w", item.SourceID, err)
	}

	// The provider listed it, so any recorded failure is stale.
	if err := s.unavailable.ClearUnavailable(existing.ID); err != nil {
		logger.Warn("Failed to clear unavailability record",
			logger.Int64("trackId", existing.ID), logger.ErrorField(err))
	}

	if existing.CoverArtPath == "" {
		s.mirrorArtwork(ctx, existing.ID, item)
	}
	return &reconciled{id: existing.ID, refreshed: true}, nil
}

// mirrorArtwork copies the provider cover into object storage. Failures
// are logged and skipped; artwork is never worth failing a sync over.
func (s *Syncer) mirrorArtwork(ctx context.Context, trackID int64, item *LibraryItem) {
	if s.artwork == nil || item.CoverURL == "" {
		return
	}
	path, err := s.artwork.MirrorCover(ctx, item.SourceID, item.CoverURL)
	if err != nil {
		logger.Warn("Failed to mirror cover art",
			logger.String("sourceId", item.SourceID), logger.ErrorField(err))
		return
	}
	if err := s.tracks.UpdateTrackCoverPath(trackID, path); err != nil {
		logger.Warn("Failed to store cover path",
			logger.Int64("trackId", trackID), logger.ErrorField(err))
	}
}

// ensureAffinity guarantees the listener-track pair exists so the track can
// enter the candidate pool. Provider-side favorites arrive as likes; feedback
// already given locally is never overwritten by a sync.
func (s *Syncer) ensureAffinity(listenerID, trackID int64, item *LibraryItem) error {
	existing, err := s.affinities.GetByListenerAndTrack(listenerID, trackID)
	if err != nil {
		return fmt.Errorf("failed to load affinity for listener %d track %d: %w", listenerID, trackID, err)
	}
	if existing != nil {
		return nil
	}

	a := &model.Affinity{
		UserID:  listenerID,
		TrackID: trackID,
		Source:  "library",
		Score:   model.DefaultScore,
	}
	if item.Liked {
		a.Source = "liked"
		a.Feedback = model.FeedbackLike
		a.Score = model.DefaultScore * model.LikeScoreMultiplier
	}
	if _, err := s.affinities.CreateAffinity(a); err != nil {
		return fmt.Errorf("failed to create affinity for listener %d track %d: %w", listenerID, trackID, err)
	}
	return nil
}

func (s *Syncer) setStatus(ctx context.Context, listenerID int64, state model.SyncState, progress float64, msg string) {
	status := &model.SyncStatus{State: state, Progress: progress, Message: msg}
	if err := s.status.Set(ctx, listenerID, status); err != nil {
		logger.Warn("Failed to publish sync status",
			logger.Int64("listenerId", listenerID), logger.ErrorField(err))
	}
}
