package repository

import (
	"database/sql"
	"fmt"
	"time"

	"mixfm/db"
)

// UnavailableRepository tracks provider-side failures so the candidate pool
// can exclude tracks that cannot currently be resolved.
type UnavailableRepository interface {
	MarkUnavailable(trackID int64, errorType, message string, retryAfter *time.Time) error
	ClearUnavailable(trackID int64) error
}

type mysqlUnavailableRepository struct {
	DB *sql.DB
}

// NewMySQLUnavailableRepository creates a new instance of mysqlUnavailableRepository.
func NewMySQLUnavailableRepository() UnavailableRepository {
	return &mysqlUnavailableRepository{DB: db.DB}
}

// MarkUnavailable upserts a failure record for the track.
func (r *mysqlUnavailableRepository) MarkUnavailable(trackID int64, errorType, message string, retryAfter *time.Time) error {
	query := `INSERT INTO unavailable_tracks (track_id, error_type, error_message, failed_at, retry_after)
	           VALUES (?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE error_type = VALUES(error_type), error_message = VALUES(error_message),
	                                   failed_at = VALUES(failed_at), retry_after = VALUES(retry_after)`
	_, err := r.DB.Exec(query, trackID, errorType, message, time.Now(), retryAfter)
	if err != nil {
		return fmt.Errorf("failed to mark track %d unavailable: %w", trackID, err)
	}
	return nil
}

// ClearUnavailable drops the failure record, restoring the track to the
// candidate pool. Called when a sync observes the track healthy again.
func (r *mysqlUnavailableRepository) ClearUnavailable(trackID int64) error {
	if _, err := r.DB.Exec(`DELETE FROM unavailable_tracks WHERE track_id = ?`, trackID); err != nil {
		return fmt.Errorf("failed to clear unavailable record for track %d: %w", trackID, err)
	}
	return nil
}
