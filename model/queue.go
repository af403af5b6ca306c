package model

import "time"

// QueueEntry is one ordered row of a listener's playback queue. Positions
// are append-only and strictly increasing per listener; the current track is
// the lowest-position unplayed entry. Entries are never reordered in place.
type QueueEntry struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    int64     `json:"userId" gorm:"not null;uniqueIndex:uq_listener_position,priority:1"`
	TrackID   int64     `json:"trackId" gorm:"not null"`
	Position  int64     `json:"position" gorm:"not null;uniqueIndex:uq_listener_position,priority:2"`
	Played    bool      `json:"played" gorm:"default:false"`
	BatchID   string    `json:"batchId" gorm:"size:36"` // generation batch this entry belongs to
	CreatedAt time.Time `json:"createdAt"`
}
