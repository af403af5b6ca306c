package model

import "time"

// Feedback values for an Affinity. An empty string means neutral.
const (
	FeedbackLike    = "like"
	FeedbackDislike = "dislike"
)

// Score bounds and multipliers applied by the feedback component.
const (
	DefaultScore        = 1.0
	MaxScore            = 2.0
	MinSkipScore        = 0.5
	LikeScoreMultiplier = 1.5
)

// Affinity is the mutable relationship between one listener and one track:
// play history, feedback and the carried score. Created on first observation
// of the pair, never deleted.
type Affinity struct {
	ID         int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID     int64      `json:"userId" gorm:"not null;uniqueIndex:uq_listener_track,priority:1"`
	TrackID    int64      `json:"trackId" gorm:"not null;uniqueIndex:uq_listener_track,priority:2"`
	Source     string     `json:"source" gorm:"size:32"` // how the pair was first observed: liked, history, library, feedback
	PlayCount  int        `json:"playCount" gorm:"default:0"`
	LastPlayed *time.Time `json:"lastPlayed"`
	Feedback   string     `json:"feedback" gorm:"size:16"` // like, dislike or empty
	FeedbackAt *time.Time `json:"feedbackAt"`
	Score      float64    `json:"score" gorm:"default:1.0"` // carried score, adjusted by the feedback component
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// CandidateTrack pairs an affinity record with its catalog track, as
// returned by the joined candidate and recent-play queries.
type CandidateTrack struct {
	Affinity *Affinity `json:"affinity"`
	Track    *Track    `json:"track"`
}
