package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"mixfm/config"
	"mixfm/logger"
	"mixfm/model"
)

type scoredCandidate struct {
	cand  *model.CandidateTrack
	score float64
}

// GenerateBatch produces up to count tracks balancing discovery share,
// artist spacing and genre ratios, persists them as the listener's new
// unplayed queue, and returns them in playback order. An empty candidate
// pool yields an empty batch, not an error; the previous queue is left
// untouched in that case.
func (e *Engine) GenerateBatch(ctx context.Context, listenerID int64, count int) ([]*model.Track, error) {
	if count <= 0 {
		return []*model.Track{}, nil
	}

	alg := e.cfg.Algorithm()

	// Recent-play context, twice the batch size (or as much as exists).
	recent, err := e.affinities.RecentlyPlayed(listenerID, count*2)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent plays for listener %d: %w", listenerID, err)
	}

	candidates, err := e.affinities.ListCandidates(listenerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates for listener %d: %w", listenerID, err)
	}
	if len(candidates) == 0 {
		logger.Warn("No candidate tracks for listener", logger.Int64("listenerId", listenerID))
		return []*model.Track{}, nil
	}

	now := time.Now()
	// Per-call random source; never shared across calls or listeners.
	rng := rand.New(rand.NewSource(e.seed()))

	scored := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		score := scoreAffinity(c.Affinity, now, rng)
		if score > 0 {
			scored = append(scored, scoredCandidate{cand: c, score: score})
		}
	}

	selected := selectDiverse(scored, recent, count, alg, now)

	// A disliked track past this point is a bug in scoring or admission,
	// never data to be repaired quietly.
	for _, c := range selected {
		if c.Affinity.Feedback == model.FeedbackDislike {
			return nil, fmt.Errorf("listener %d track %d: %w", listenerID, c.Track.ID, ErrDislikedAdmitted)
		}
	}

	if len(selected) == 0 {
		logger.Warn("Diversity constraints starved the batch",
			logger.Int64("listenerId", listenerID),
			logger.Int("candidates", len(scored)))
		return []*model.Track{}, nil
	}

	// Admission order carries score and pool signal; playback order must
	// not. Diversity was enforced at admission time.
	rng.Shuffle(len(selected), func(i, j int) {
		selected[i], selected[j] = selected[j], selected[i]
	})

	batchID := uuid.NewString()
	entries := make([]*model.QueueEntry, 0, len(selected))
	for _, c := range selected {
		entries = append(entries, &model.QueueEntry{
			UserID:  listenerID,
			TrackID: c.Track.ID,
			BatchID: batchID,
		})
	}

	if err := e.queue.ReplaceUnplayed(listenerID, entries); err != nil {
		return nil, fmt.Errorf("failed to persist batch for listener %d: %w", listenerID, err)
	}

	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, listenerID); err != nil {
			logger.Warn("Failed to invalidate queue cache", logger.Int64("listenerId", listenerID), logger.ErrorField(err))
		}
	}

	tracks := make([]*model.Track, 0, len(selected))
	for _, c := range selected {
		tracks = append(tracks, c.Track)
	}

	logger.Info("Generated queue batch",
		logger.Int64("listenerId", listenerID),
		logger.String("batchId", batchID),
		logger.Int("requested", count),
		logger.Int("generated", len(tracks)))

	return tracks, nil
}

// selectDiverse partitions scored candidates into discovery and familiar
// pools, fills each to its target share in score order through the live
// diversity window, then tops the batch up from whatever remains.
func selectDiverse(scored []scoredCandidate, recent []*model.CandidateTrack, count int, alg config.AlgorithmConfig, now time.Time) []*model.CandidateTrack {
	discoveries := make([]scoredCandidate, 0, len(scored))
	familiar := make([]scoredCandidate, 0, len(scored))
	for _, sc := range scored {
		if isDiscovery(sc.cand.Affinity, now) {
			discoveries = append(discoveries, sc)
		} else {
			familiar = append(familiar, sc)
		}
	}

	sortByScore(discoveries)
	sortByScore(familiar)

	targetDiscoveries := int(float64(count) * alg.DiscoveryRatio)
	targetFamiliar := count - targetDiscoveries

	window := newDiversityWindow(recent, alg.MinArtistGap, alg.MaxGenreRatio)
	selected := make([]*model.CandidateTrack, 0, count)
	selectedIDs := make(map[int64]bool)

	fill := func(pool []scoredCandidate, target int) {
		taken := 0
		for _, sc := range pool {
			if taken >= target {
				break
			}
			if selectedIDs[sc.cand.Track.ID] {
				continue
			}
			if !window.admit(sc.cand.Track) {
				continue
			}
			selected = append(selected, sc.cand)
			selectedIDs[sc.cand.Track.ID] = true
			window.record(sc.cand.Track)
			taken++
		}
	}

	fill(discoveries, targetDiscoveries)
	fill(familiar, targetFamiliar)

	// Pools exhausted or constraints too strict: one more pass over every
	// remaining candidate, any pool, still in score order.
	if len(selected) < count {
		remaining := make([]scoredCandidate, 0, len(scored))
		for _, sc := range scored {
			if !selectedIDs[sc.cand.Track.ID] {
				remaining = append(remaining, sc)
			}
		}
		sortByScore(remaining)
		fill(remaining, count-len(selected))
	}

	return selected
}

func sortByScore(pool []scoredCandidate) {
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].score > pool[j].score
	})
}
