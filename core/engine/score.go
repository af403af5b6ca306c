package engine

import (
	"math"
	"math/rand"
	"time"

	"mixfm/model"
)

// Scoring constants. The carried affinity score is adjusted elsewhere (by
// the feedback component); these factors shape the per-call ranking score.
const (
	likeBoost        = 1.5
	rediscoveryBoost = 1.3
	popularityBoost  = 1.1
	popularityPlays  = 5
	rediscoveryDays  = 30
	minRecencyFactor = 0.1
	jitterLow        = 0.8
	jitterHigh       = 1.2
)

// daysSincePlayed returns the age of the last play in days, or +Inf for a
// track that was never played.
func daysSincePlayed(a *model.Affinity, now time.Time) float64 {
	if a.LastPlayed == nil {
		return math.Inf(1)
	}
	return now.Sub(*a.LastPlayed).Hours() / 24
}

// isDiscovery reports whether the track counts as a discovery: never played,
// or not played in the rediscovery window. Same predicate as the
// rediscovery bonus in baseScore.
func isDiscovery(a *model.Affinity, now time.Time) bool {
	return daysSincePlayed(a, now) > rediscoveryDays
}

// baseScore computes the deterministic bonus part of the score. Disliked
// tracks score exactly 0 and are excluded no matter what else applies.
func baseScore(a *model.Affinity, now time.Time) float64 {
	if a.Feedback == model.FeedbackDislike {
		return 0
	}

	score := 1.0
	if a.Feedback == model.FeedbackLike {
		score *= likeBoost
	}
	if daysSincePlayed(a, now) > rediscoveryDays {
		score *= rediscoveryBoost
	}
	if a.PlayCount >= popularityPlays {
		score *= popularityBoost
	}
	return score
}

// recencyPenalty dampens tracks played recently. Anything played within a
// day is floored at 0.1 regardless of bonuses; within a week the penalty
// eases off as 1 - 1/days; beyond that there is none.
func recencyPenalty(days float64) float64 {
	if days < 1 {
		return minRecencyFactor
	}
	if days < 7 {
		return math.Max(minRecencyFactor, 1-1/days)
	}
	return 1.0
}

// scoreAffinity produces the final ranking score: bonuses times recency
// penalty times a uniform multiplier in [jitterLow, jitterHigh). The
// multiplier is drawn fresh for every candidate on every call, so repeated
// generations differ in order while staying statistically similar.
func scoreAffinity(a *model.Affinity, now time.Time, rng *rand.Rand) float64 {
	base := baseScore(a, now)
	if base == 0 {
		return 0
	}
	jitter := jitterLow + rng.Float64()*(jitterHigh-jitterLow)
	return base * recencyPenalty(daysSincePlayed(a, now)) * jitter
}
