package repository

import (
	"database/sql"
	"fmt"
	"time"

	"mixfm/db"
	"mixfm/model"
)

// QueueRepository is the durable ordered queue store. Batch replacement and
// playback advance each run as a single transaction per listener so two
// concurrent calls cannot interleave positions or double-advance.
type QueueRepository interface {
	ReplaceUnplayed(listenerID int64, entries []*model.QueueEntry) error
	UnplayedEntries(listenerID int64, limit int) ([]*model.QueueEntry, error)
	PlayedEntries(listenerID int64, limit int) ([]*model.QueueEntry, error)
	AdvanceFirstUnplayed(listenerID int64, playedAt time.Time) (*model.QueueEntry, error)
	CountUnplayed(listenerID int64) (int, error)
	DeleteAll(listenerID int64) error
}

type mysqlQueueRepository struct {
	DB *sql.DB
}

// NewMySQLQueueRepository creates a new instance of mysqlQueueRepository.
func NewMySQLQueueRepository() QueueRepository {
	return &mysqlQueueRepository{DB: db.DB}
}

// ReplaceUnplayed deletes the listener's unplayed entries and appends the
// given batch starting at max(position)+1 over all entries that ever
// existed, played included, so positions are never reused. The entries'
// Position fields are assigned here, in slice order.
func (r *mysqlQueueRepository) ReplaceUnplayed(listenerID int64, entries []*model.QueueEntry) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for ReplaceUnplayed: %w", err)
	}
	defer tx.Rollback()

	// The max must be read before the delete so positions of the removed
	// unplayed rows are never handed out again.
	var maxPos sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(position) FROM queue_entries WHERE user_id = ?`, listenerID).Scan(&maxPos); err != nil {
		return fmt.Errorf("failed to query max position for listener %d: %w", listenerID, err)
	}
	startPosition := int64(0)
	if maxPos.Valid {
		startPosition = maxPos.Int64 + 1
	}

	if _, err := tx.Exec(`DELETE FROM queue_entries WHERE user_id = ? AND played = FALSE`, listenerID); err != nil {
		return fmt.Errorf("failed to delete unplayed entries for listener %d: %w", listenerID, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO queue_entries (user_id, track_id, position, played, batch_id, created_at) VALUES (?, ?, ?, FALSE, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert for ReplaceUnplayed: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i, entry := range entries {
		entry.UserID = listenerID
		entry.Position = startPosition + int64(i)
		entry.Played = false
		entry.CreatedAt = now
		if _, err := stmt.Exec(entry.UserID, entry.TrackID, entry.Position, entry.BatchID, now); err != nil {
			return fmt.Errorf("failed to insert queue entry at position %d for listener %d: %w", entry.Position, listenerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ReplaceUnplayed for listener %d: %w", listenerID, err)
	}
	return nil
}

// UnplayedEntries returns the unplayed prefix in position order.
func (r *mysqlQueueRepository) UnplayedEntries(listenerID int64, limit int) ([]*model.QueueEntry, error) {
	query := `SELECT id, user_id, track_id, position, played, batch_id, created_at
	           FROM queue_entries WHERE user_id = ? AND played = FALSE
	           ORDER BY position ASC LIMIT ?`
	return r.queryEntries(query, listenerID, limit)
}

// PlayedEntries returns played entries, most recent position first.
func (r *mysqlQueueRepository) PlayedEntries(listenerID int64, limit int) ([]*model.QueueEntry, error) {
	query := `SELECT id, user_id, track_id, position, played, batch_id, created_at
	           FROM queue_entries WHERE user_id = ? AND played = TRUE
	           ORDER BY position DESC LIMIT ?`
	return r.queryEntries(query, listenerID, limit)
}

func (r *mysqlQueueRepository) queryEntries(query string, args ...interface{}) ([]*model.QueueEntry, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*model.QueueEntry, 0)
	for rows.Next() {
		entry := &model.QueueEntry{}
		var batchID sql.NullString
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.TrackID, &entry.Position, &entry.Played, &batchID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entry.BatchID = batchID.String
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in queue query: %w", err)
	}

	return entries, nil
}

// AdvanceFirstUnplayed marks the lowest-position unplayed entry played and
// bumps the matching affinity's play count and last-played timestamp in the
// same transaction. Returns the advanced entry, or nil when the unplayed
// queue is empty (in which case nothing is mutated).
func (r *mysqlQueueRepository) AdvanceFirstUnplayed(listenerID int64, playedAt time.Time) (*model.QueueEntry, error) {
	tx, err := r.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for AdvanceFirstUnplayed: %w", err)
	}
	defer tx.Rollback()

	entry := &model.QueueEntry{}
	var batchID sql.NullString
	row := tx.QueryRow(`SELECT id, user_id, track_id, position, played, batch_id, created_at
	                     FROM queue_entries WHERE user_id = ? AND played = FALSE
	                     ORDER BY position ASC LIMIT 1 FOR UPDATE`, listenerID)
	err = row.Scan(&entry.ID, &entry.UserID, &entry.TrackID, &entry.Position, &entry.Played, &batchID, &entry.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Nothing to advance
		}
		return nil, fmt.Errorf("failed to scan current entry for listener %d: %w", listenerID, err)
	}
	entry.BatchID = batchID.String

	if _, err := tx.Exec(`UPDATE queue_entries SET played = TRUE WHERE id = ?`, entry.ID); err != nil {
		return nil, fmt.Errorf("failed to mark entry %d played: %w", entry.ID, err)
	}

	if _, err := tx.Exec(`UPDATE affinities SET play_count = play_count + 1, last_played = ?, updated_at = ? WHERE user_id = ? AND track_id = ?`,
		playedAt, time.Now(), listenerID, entry.TrackID); err != nil {
		return nil, fmt.Errorf("failed to record play for listener %d track %d: %w", listenerID, entry.TrackID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit AdvanceFirstUnplayed for listener %d: %w", listenerID, err)
	}

	entry.Played = true
	return entry, nil
}

// CountUnplayed returns the number of unplayed entries for the listener.
func (r *mysqlQueueRepository) CountUnplayed(listenerID int64) (int, error) {
	var count int
	err := r.DB.QueryRow(`SELECT COUNT(*) FROM queue_entries WHERE user_id = ? AND played = FALSE`, listenerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unplayed entries for listener %d: %w", listenerID, err)
	}
	return count, nil
}

// DeleteAll removes every queue entry for the listener, played included.
func (r *mysqlQueueRepository) DeleteAll(listenerID int64) error {
	if _, err := r.DB.Exec(`DELETE FROM queue_entries WHERE user_id = ?`, listenerID); err != nil {
		return fmt.Errorf("failed to delete queue entries for listener %d: %w", listenerID, err)
	}
	return nil
}
