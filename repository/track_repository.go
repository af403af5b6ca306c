package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"mixfm/db"
	"mixfm/model"
)

// TrackRepository defines the catalog lookup operations. The catalog is
// read-mostly: tracks are created and refreshed by the library sync and
// never mutated by the queue engine.
type TrackRepository interface {
	CreateTrack(track *model.Track) (int64, error)
	GetTrackByID(id int64) (*model.Track, error)
	GetTracksByIDs(ids []int64) ([]*model.Track, error)
	GetTrackBySourceID(sourceID string) (*model.Track, error)
	UpdateTrackMetadata(track *model.Track) error
	UpdateTrackCoverPath(trackID int64, coverPath string) error
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

const trackColumns = `id, source_id, title, artist, artist_id, album, duration, cover_art_path, genres, created_at, updated_at`

func scanTrack(scanner interface{ Scan(...interface{}) error }) (*model.Track, error) {
	track := &model.Track{}
	var artistID, album, coverPath, genres sql.NullString
	err := scanner.Scan(&track.ID, &track.SourceID, &track.Title, &track.Artist, &artistID,
		&album, &track.Duration, &coverPath, &genres, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		return nil, err
	}
	track.ArtistID = artistID.String
	track.Album = album.String
	track.CoverArtPath = coverPath.String
	track.Genres = genres.String
	return track, nil
}

// CreateTrack adds a new track to the catalog.
func (r *mysqlTrackRepository) CreateTrack(track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (source_id, title, artist, artist_id, album, duration, cover_art_path, genres, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(track.SourceID, track.Title, track.Artist, track.ArtistID, track.Album,
		track.Duration, track.CoverArtPath, track.Genres, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}
	return id, nil
}

// GetTrackByID retrieves a track by its ID.
func (r *mysqlTrackRepository) GetTrackByID(id int64) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	track, err := scanTrack(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// GetTracksByIDs retrieves a set of tracks by id. Order of the result is
// unspecified; missing ids are silently absent.
func (r *mysqlTrackRepository) GetTracksByIDs(ids []int64) ([]*model.Track, error) {
	if len(ids) == 0 {
		return []*model.Track{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id IN (` + placeholders + `)`
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks by ids: %w", err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0, len(ids))
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in GetTracksByIDs: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetTracksByIDs: %w", err)
	}

	return tracks, nil
}

// GetTrackBySourceID retrieves a track by its provider-side identifier.
func (r *mysqlTrackRepository) GetTrackBySourceID(sourceID string) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE source_id = ?`
	track, err := scanTrack(r.DB.QueryRow(query, sourceID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by source ID %s: %w", sourceID, err)
	}
	return track, nil
}

// UpdateTrackMetadata refreshes the mutable metadata columns of a track.
func (r *mysqlTrackRepository) UpdateTrackMetadata(track *model.Track) error {
	query := `UPDATE tracks SET title = ?, artist = ?, artist_id = ?, album = ?, duration = ?, genres = ?, updated_at = ? WHERE id = ?`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for UpdateTrackMetadata: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(track.Title, track.Artist, track.ArtistID, track.Album, track.Duration, track.Genres, time.Now(), track.ID)
	if err != nil {
		return fmt.Errorf("failed to execute UpdateTrackMetadata for track ID %d: %w", track.ID, err)
	}
	return nil
}

// UpdateTrackCoverPath updates the cover art object path for a given track ID.
func (r *mysqlTrackRepository) UpdateTrackCoverPath(trackID int64, coverPath string) error {
	query := `UPDATE tracks SET cover_art_path = ?, updated_at = ? WHERE id = ?`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for UpdateTrackCoverPath: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(coverPath, time.Now(), trackID)
	if err != nil {
		return fmt.Errorf("failed to execute UpdateTrackCoverPath for track ID %d: %w", trackID, err)
	}
	return nil
}
