package repository

import (
	"database/sql"
	"fmt"
	"time"

	"mixfm/db"
	"mixfm/model"
)

// AffinityRepository defines the listener-track relationship operations the
// engine, feedback component and library sync rely on. Candidate and
// recent-play reads come back with their catalog track joined.
type AffinityRepository interface {
	GetByListenerAndTrack(listenerID, trackID int64) (*model.Affinity, error)
	CreateAffinity(a *model.Affinity) (int64, error)
	UpdateFeedback(a *model.Affinity) error
	UpdateScore(listenerID, trackID int64, score float64) error
	RecordPlay(listenerID, trackID int64, playedAt time.Time) error
	ListCandidates(listenerID int64) ([]*model.CandidateTrack, error)
	RecentlyPlayed(listenerID int64, limit int) ([]*model.CandidateTrack, error)
	ListByFeedback(listenerID int64, feedback string, limit int) ([]*model.CandidateTrack, error)
	ListByListener(listenerID int64, limit, offset int) ([]*model.CandidateTrack, error)
	FeedbackStats(listenerID int64) (map[string]int, error)
}

type mysqlAffinityRepository struct {
	DB *sql.DB
}

// NewMySQLAffinityRepository creates a new instance of mysqlAffinityRepository.
func NewMySQLAffinityRepository() AffinityRepository {
	return &mysqlAffinityRepository{DB: db.DB}
}

const affinityColumns = `a.id, a.user_id, a.track_id, a.source, a.play_count, a.last_played, a.feedback, a.feedback_at, a.score, a.created_at, a.updated_at`

const joinedColumns = affinityColumns + `, t.id, t.source_id, t.title, t.artist, t.artist_id, t.album, t.duration, t.cover_art_path, t.genres, t.created_at, t.updated_at`

func scanAffinity(scanner interface{ Scan(...interface{}) error }) (*model.Affinity, error) {
	a := &model.Affinity{}
	var source, feedback sql.NullString
	var lastPlayed, feedbackAt sql.NullTime
	err := scanner.Scan(&a.ID, &a.UserID, &a.TrackID, &source, &a.PlayCount, &lastPlayed,
		&feedback, &feedbackAt, &a.Score, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Source = source.String
	a.Feedback = feedback.String
	if lastPlayed.Valid {
		t := lastPlayed.Time
		a.LastPlayed = &t
	}
	if feedbackAt.Valid {
		t := feedbackAt.Time
		a.FeedbackAt = &t
	}
	return a, nil
}

func scanCandidate(scanner interface{ Scan(...interface{}) error }) (*model.CandidateTrack, error) {
	a := &model.Affinity{}
	t := &model.Track{}
	var source, feedback sql.NullString
	var lastPlayed, feedbackAt sql.NullTime
	var artistID, album, coverPath, genres sql.NullString
	err := scanner.Scan(
		&a.ID, &a.UserID, &a.TrackID, &source, &a.PlayCount, &lastPlayed,
		&feedback, &feedbackAt, &a.Score, &a.CreatedAt, &a.UpdatedAt,
		&t.ID, &t.SourceID, &t.Title, &t.Artist, &artistID, &album,
		&t.Duration, &coverPath, &genres, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Source = source.String
	a.Feedback = feedback.String
	if lastPlayed.Valid {
		lp := lastPlayed.Time
		a.LastPlayed = &lp
	}
	if feedbackAt.Valid {
		fa := feedbackAt.Time
		a.FeedbackAt = &fa
	}
	t.ArtistID = artistID.String
	t.Album = album.String
	t.CoverArtPath = coverPath.String
	t.Genres = genres.String
	return &model.CandidateTrack{Affinity: a, Track: t}, nil
}

func (r *mysqlAffinityRepository) queryCandidates(query string, args ...interface{}) ([]*model.CandidateTrack, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query affinities: %w", err)
	}
	defer rows.Close()

	candidates := make([]*model.CandidateTrack, 0)
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan joined affinity row: %w", err)
		}
		candidates = append(candidates, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}

	return candidates, nil
}

// GetByListenerAndTrack retrieves one affinity record, or nil when the pair
// has never been observed.
func (r *mysqlAffinityRepository) GetByListenerAndTrack(listenerID, trackID int64) (*model.Affinity, error) {
	query := `SELECT ` + affinityColumns + ` FROM affinities a WHERE a.user_id = ? AND a.track_id = ?`
	a, err := scanAffinity(r.DB.QueryRow(query, listenerID, trackID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Pair never observed
		}
		return nil, fmt.Errorf("failed to scan affinity for listener %d track %d: %w", listenerID, trackID, err)
	}
	return a, nil
}

// CreateAffinity records the first observation of a listener-track pair.
func (r *mysqlAffinityRepository) CreateAffinity(a *model.Affinity) (int64, error) {
	query := `INSERT INTO affinities (user_id, track_id, source, play_count, last_played, feedback, feedback_at, score, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateAffinity: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(a.UserID, a.TrackID, a.Source, a.PlayCount, a.LastPlayed,
		nullString(a.Feedback), a.FeedbackAt, a.Score, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateAffinity: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateAffinity: %w", err)
	}
	return id, nil
}

// UpdateFeedback persists the feedback, feedback timestamp and carried score
// of an affinity record.
func (r *mysqlAffinityRepository) UpdateFeedback(a *model.Affinity) error {
	query := `UPDATE affinities SET feedback = ?, feedback_at = ?, score = ?, updated_at = ? WHERE user_id = ? AND track_id = ?`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for UpdateFeedback: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(nullString(a.Feedback), a.FeedbackAt, a.Score, time.Now(), a.UserID, a.TrackID)
	if err != nil {
		return fmt.Errorf("failed to execute UpdateFeedback for listener %d track %d: %w", a.UserID, a.TrackID, err)
	}
	return nil
}

// UpdateScore persists only the carried score.
func (r *mysqlAffinityRepository) UpdateScore(listenerID, trackID int64, score float64) error {
	query := `UPDATE affinities SET score = ?, updated_at = ? WHERE user_id = ? AND track_id = ?`
	_, err := r.DB.Exec(query, score, time.Now(), listenerID, trackID)
	if err != nil {
		return fmt.Errorf("failed to execute UpdateScore for listener %d track %d: %w", listenerID, trackID, err)
	}
	return nil
}

// RecordPlay increments the play count and stamps last_played.
func (r *mysqlAffinityRepository) RecordPlay(listenerID, trackID int64, playedAt time.Time) error {
	query := `UPDATE affinities SET play_count = play_count + 1, last_played = ?, updated_at = ? WHERE user_id = ? AND track_id = ?`
	_, err := r.DB.Exec(query, playedAt, time.Now(), listenerID, trackID)
	if err != nil {
		return fmt.Errorf("failed to execute RecordPlay for listener %d track %d: %w", listenerID, trackID, err)
	}
	return nil
}

// ListCandidates returns every affinity of the listener with its track,
// excluding tracks known to be unavailable (permanently, or rate-limited
// with the retry window still open).
func (r *mysqlAffinityRepository) ListCandidates(listenerID int64) ([]*model.CandidateTrack, error) {
	query := `SELECT ` + joinedColumns + `
	           FROM affinities a JOIN tracks t ON a.track_id = t.id
	           WHERE a.user_id = ?
	             AND a.track_id NOT IN (
	               SELECT track_id FROM unavailable_tracks
	               WHERE error_type = ? OR (retry_after IS NOT NULL AND retry_after > ?)
	             )`
	return r.queryCandidates(query, listenerID, model.UnavailableErrorPermanent, time.Now())
}

// RecentlyPlayed returns the listener's most recently played tracks, most
// recent first.
func (r *mysqlAffinityRepository) RecentlyPlayed(listenerID int64, limit int) ([]*model.CandidateTrack, error) {
	query := `SELECT ` + joinedColumns + `
	           FROM affinities a JOIN tracks t ON a.track_id = t.id
	           WHERE a.user_id = ? AND a.last_played IS NOT NULL
	           ORDER BY a.last_played DESC LIMIT ?`
	return r.queryCandidates(query, listenerID, limit)
}

// ListByFeedback returns tracks with the given feedback, most recent
// feedback first.
func (r *mysqlAffinityRepository) ListByFeedback(listenerID int64, feedback string, limit int) ([]*model.CandidateTrack, error) {
	query := `SELECT ` + joinedColumns + `
	           FROM affinities a JOIN tracks t ON a.track_id = t.id
	           WHERE a.user_id = ? AND a.feedback = ?
	           ORDER BY a.feedback_at DESC LIMIT ?`
	return r.queryCandidates(query, listenerID, feedback, limit)
}

// ListByListener pages through the listener's whole library, most recently
// played first with never-played tracks last. limit <= 0 means no limit.
func (r *mysqlAffinityRepository) ListByListener(listenerID int64, limit, offset int) ([]*model.CandidateTrack, error) {
	query := `SELECT ` + joinedColumns + `
	           FROM affinities a JOIN tracks t ON a.track_id = t.id
	           WHERE a.user_id = ?
	           ORDER BY a.last_played IS NULL, a.last_played DESC`
	if limit > 0 {
		return r.queryCandidates(query+` LIMIT ? OFFSET ?`, listenerID, limit, offset)
	}
	return r.queryCandidates(query, listenerID)
}

// FeedbackStats counts the listener's affinities per feedback bucket. Keys
// are "liked", "disliked" and "neutral".
func (r *mysqlAffinityRepository) FeedbackStats(listenerID int64) (map[string]int, error) {
	query := `SELECT COALESCE(feedback, ''), COUNT(*) FROM affinities WHERE user_id = ? GROUP BY feedback`
	rows, err := r.DB.Query(query, listenerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{"liked": 0, "disliked": 0, "neutral": 0}
	for rows.Next() {
		var feedback string
		var count int
		if err := rows.Scan(&feedback, &count); err != nil {
			return nil, fmt.Errorf("failed to scan feedback stats row: %w", err)
		}
		switch feedback {
		case model.FeedbackLike:
			stats["liked"] = count
		case model.FeedbackDislike:
			stats["disliked"] = count
		default:
			stats["neutral"] += count
		}
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in FeedbackStats: %w", err)
	}

	return stats, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
