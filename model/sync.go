package model

import "time"

// SyncState is the lifecycle of a library sync for one listener.
type SyncState string

const (
	SyncIdle     SyncState = "idle"
	SyncRunning  SyncState = "syncing"
	SyncComplete SyncState = "complete"
	SyncError    SyncState = "error"
)

// SyncStatus is the keyed per-listener sync state, held in Redis rather
// than in process memory so it survives restarts and never leaks across
// listeners.
type SyncStatus struct {
	State     SyncState `json:"status"`
	Progress  float64   `json:"progress"` // 0.0 to 1.0
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updatedAt"`
}
