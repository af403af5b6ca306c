package engine

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mixfm/model"
)

func daysAgo(now time.Time, days float64) *time.Time {
	t := now.Add(-time.Duration(days * 24 * float64(time.Hour)))
	return &t
}

func TestBaseScoreDislikedIsZero(t *testing.T) {
	now := time.Now()
	a := &model.Affinity{
		Feedback:   model.FeedbackDislike,
		PlayCount:  10,
		LastPlayed: daysAgo(now, 60),
	}
	// Dislike wins over every bonus.
	assert.Equal(t, 0.0, baseScore(a, now))
}

func TestScoreAffinityNeverAdmitsDisliked(t *testing.T) {
	now := time.Now()
	a := &model.Affinity{Feedback: model.FeedbackDislike}
	for seed := int64(0); seed < 100; seed++ {
		rng := rand.New(rand.NewSource(seed))
		assert.Equal(t, 0.0, scoreAffinity(a, now, rng))
	}
}

func TestBaseScoreBonuses(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		a    *model.Affinity
		want float64
	}{
		{"neutral recent", &model.Affinity{LastPlayed: daysAgo(now, 10)}, 1.0},
		{"liked", &model.Affinity{Feedback: model.FeedbackLike, LastPlayed: daysAgo(now, 10)}, 1.5},
		{"rediscovery", &model.Affinity{LastPlayed: daysAgo(now, 45)}, 1.3},
		{"never played", &model.Affinity{}, 1.3},
		{"popular", &model.Affinity{PlayCount: 5, LastPlayed: daysAgo(now, 10)}, 1.1},
		{"liked rediscovery popular", &model.Affinity{
			Feedback:   model.FeedbackLike,
			PlayCount:  12,
			LastPlayed: daysAgo(now, 90),
		}, 1.5 * 1.3 * 1.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, baseScore(tt.a, now), 1e-9)
		})
	}
}

func TestRecencyPenalty(t *testing.T) {
	// Inside a day the floor applies regardless of bonuses.
	assert.Equal(t, 0.1, recencyPenalty(0.5))
	// Exactly one day: 1 - 1/1 = 0, floored.
	assert.Equal(t, 0.1, recencyPenalty(1))
	assert.InDelta(t, 0.5, recencyPenalty(2), 1e-9)
	assert.InDelta(t, 1-1.0/6, recencyPenalty(6), 1e-9)
	assert.Equal(t, 1.0, recencyPenalty(7))
	assert.Equal(t, 1.0, recencyPenalty(400))
	assert.Equal(t, 1.0, recencyPenalty(math.Inf(1)))
}

func TestScoreAffinityJitterBounds(t *testing.T) {
	now := time.Now()
	// Never played, no feedback: base 1.3, no recency penalty. The drawn
	// score divided by the base must stay inside the jitter interval.
	a := &model.Affinity{}
	for seed := int64(0); seed < 200; seed++ {
		rng := rand.New(rand.NewSource(seed))
		ratio := scoreAffinity(a, now, rng) / 1.3
		assert.GreaterOrEqual(t, ratio, jitterLow)
		assert.Less(t, ratio, jitterHigh)
	}
}

func TestScoreAffinityVariesBetweenCalls(t *testing.T) {
	now := time.Now()
	a := &model.Affinity{LastPlayed: daysAgo(now, 10)}
	rng := rand.New(rand.NewSource(7))
	first := scoreAffinity(a, now, rng)
	second := scoreAffinity(a, now, rng)
	assert.NotEqual(t, first, second)
}
