package feedback

import (
	"errors"
	"fmt"
	"math"
	"time"

	"mixfm/logger"
	"mixfm/model"
	"mixfm/repository"
)

var (
	// ErrTrackNotFound means the feedback target is not in the catalog.
	ErrTrackNotFound = errors.New("track not found")
	// ErrInvalidFeedback means the feedback value is neither like nor dislike.
	ErrInvalidFeedback = errors.New("invalid feedback value")
	// ErrNoFeedback means there is no feedback on the pair to remove.
	ErrNoFeedback = errors.New("no feedback recorded")
)

// Playback score multipliers. Plays drift the carried score up slowly,
// skips drift it down slowly; explicit feedback moves it in one jump.
const (
	playMultiplier = 1.05
	skipMultiplier = 0.95
)

// Service maintains explicit feedback and the carried affinity score. The
// score is the slow signal: the queue engine multiplies its own per-call
// bonuses on top of it.
type Service struct {
	affinities repository.AffinityRepository
	tracks     repository.TrackRepository
}

// NewService creates a feedback service over the given stores.
func NewService(affinities repository.AffinityRepository, tracks repository.TrackRepository) *Service {
	return &Service{affinities: affinities, tracks: tracks}
}

// scoreAfterFeedback applies the one-jump score transition for explicit
// feedback on an existing record.
func scoreAfterFeedback(current float64, fb string) float64 {
	switch fb {
	case model.FeedbackLike:
		return math.Min(model.MaxScore, current*model.LikeScoreMultiplier)
	case model.FeedbackDislike:
		return 0
	}
	return current
}

// initialScore is the carried score for a pair first observed through
// explicit feedback.
func initialScore(fb string) float64 {
	switch fb {
	case model.FeedbackLike:
		return model.DefaultScore * model.LikeScoreMultiplier
	case model.FeedbackDislike:
		return 0
	}
	return model.DefaultScore
}

// RecordFeedback sets like or dislike on a listener-track pair, creating
// the affinity record if the pair was never observed. Repeating the same
// feedback is idempotent in effect: the score transition applies to the
// current value, which is already capped.
func (s *Service) RecordFeedback(listenerID, trackID int64, fb string) (*model.Affinity, error) {
	if fb != model.FeedbackLike && fb != model.FeedbackDislike {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFeedback, fb)
	}

	track, err := s.tracks.GetTrackByID(trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up track %d: %w", trackID, err)
	}
	if track == nil {
		return nil, fmt.Errorf("track %d: %w", trackID, ErrTrackNotFound)
	}

	now := time.Now()
	a, err := s.affinities.GetByListenerAndTrack(listenerID, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to load affinity for listener %d track %d: %w", listenerID, trackID, err)
	}

	if a == nil {
		a = &model.Affinity{
			UserID:     listenerID,
			TrackID:    trackID,
			Source:     "feedback",
			Feedback:   fb,
			FeedbackAt: &now,
			Score:      initialScore(fb),
		}
		id, err := s.affinities.CreateAffinity(a)
		if err != nil {
			return nil, fmt.Errorf("failed to create affinity for listener %d track %d: %w", listenerID, trackID, err)
		}
		a.ID = id
	} else {
		a.Feedback = fb
		a.FeedbackAt = &now
		a.Score = scoreAfterFeedback(a.Score, fb)
		if err := s.affinities.UpdateFeedback(a); err != nil {
			return nil, fmt.Errorf("failed to update feedback for listener %d track %d: %w", listenerID, trackID, err)
		}
	}

	logger.Info("Recorded feedback",
		logger.Int64("listenerId", listenerID),
		logger.Int64("trackId", trackID),
		logger.String("feedback", fb),
		logger.Float64("score", a.Score))
	return a, nil
}

// RemoveFeedback clears the listener's feedback on a track and unwinds its
// score effect: a removed like divides the boost back out (never below the
// default), a removed dislike restores the default.
func (s *Service) RemoveFeedback(listenerID, trackID int64) (*model.Affinity, error) {
	a, err := s.affinities.GetByListenerAndTrack(listenerID, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to load affinity for listener %d track %d: %w", listenerID, trackID, err)
	}
	if a == nil || a.Feedback == "" {
		return nil, fmt.Errorf("listener %d track %d: %w", listenerID, trackID, ErrNoFeedback)
	}

	switch a.Feedback {
	case model.FeedbackLike:
		a.Score = math.Max(model.DefaultScore, a.Score/model.LikeScoreMultiplier)
	case model.FeedbackDislike:
		a.Score = model.DefaultScore
	}
	a.Feedback = ""
	a.FeedbackAt = nil

	if err := s.affinities.UpdateFeedback(a); err != nil {
		return nil, fmt.Errorf("failed to clear feedback for listener %d track %d: %w", listenerID, trackID, err)
	}
	return a, nil
}

// GetFeedback returns the affinity record of the pair, or nil when the pair
// was never observed.
func (s *Service) GetFeedback(listenerID, trackID int64) (*model.Affinity, error) {
	return s.affinities.GetByListenerAndTrack(listenerID, trackID)
}

// Playback events accepted by ScoreEvent.
const (
	EventPlayed  = "played"
	EventSkipped = "skipped"
)

// ScoreEvent applies the slow score drift for a playback event: a full
// play nudges the score up toward the cap, a skip nudges it down toward
// the skip floor. Unknown events are rejected.
func (s *Service) ScoreEvent(listenerID, trackID int64, event string) error {
	a, err := s.affinities.GetByListenerAndTrack(listenerID, trackID)
	if err != nil {
		return fmt.Errorf("failed to load affinity for listener %d track %d: %w", listenerID, trackID, err)
	}
	if a == nil {
		return nil // Pair never observed; nothing to drift
	}

	var next float64
	switch event {
	case EventPlayed:
		next = math.Min(model.MaxScore, a.Score*playMultiplier)
	case EventSkipped:
		next = math.Max(model.MinSkipScore, a.Score*skipMultiplier)
	default:
		return fmt.Errorf("unknown playback event %q", event)
	}

	if next == a.Score {
		return nil
	}
	return s.affinities.UpdateScore(listenerID, trackID, next)
}

// LikedTracks returns the listener's liked tracks with their affinities.
func (s *Service) LikedTracks(listenerID int64, limit int) ([]*model.CandidateTrack, error) {
	return s.affinities.ListByFeedback(listenerID, model.FeedbackLike, limit)
}

// DislikedTracks returns the listener's disliked tracks with their affinities.
func (s *Service) DislikedTracks(listenerID int64, limit int) ([]*model.CandidateTrack, error) {
	return s.affinities.ListByFeedback(listenerID, model.FeedbackDislike, limit)
}

// AllForListener pages through every affinity of the listener.
func (s *Service) AllForListener(listenerID int64, limit, offset int) ([]*model.CandidateTrack, error) {
	return s.affinities.ListByListener(listenerID, limit, offset)
}

// Stats returns the listener's feedback counts keyed liked, disliked and
// neutral.
func (s *Service) Stats(listenerID int64) (map[string]int, error) {
	return s.affinities.FeedbackStats(listenerID)
}
