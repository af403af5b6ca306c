package model

import "time"

// Error types for unavailable tracks.
const (
	UnavailableErrorPermanent   = "unavailable"
	UnavailableErrorRateLimited = "rate_limited"
	UnavailableErrorOther       = "other"
)

// UnavailableTrack records a track that failed to resolve at the provider.
// Permanent failures are excluded from the candidate pool outright;
// rate-limited ones only until RetryAfter has passed.
type UnavailableTrack struct {
	TrackID      int64      `json:"trackId" gorm:"primaryKey"`
	ErrorType    string     `json:"errorType" gorm:"size:32;not null"`
	ErrorMessage string     `json:"errorMessage" gorm:"type:text"`
	FailedAt     time.Time  `json:"failedAt"`
	RetryAfter   *time.Time `json:"retryAfter"`
}
