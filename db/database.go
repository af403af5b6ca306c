package db

import (
	"database/sql"
	"fmt"
	"log"

	"mixfm/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB initializes the database schema, creating tables if they don't exist.
func InitDB() error {
	stmts := []struct {
		name  string
		query string
	}{
		{"users", `
	CREATE TABLE IF NOT EXISTS users (
		id INT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(100) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);`},
		{"tracks", `
	CREATE TABLE IF NOT EXISTS tracks (
		id INT AUTO_INCREMENT PRIMARY KEY,
		source_id VARCHAR(64) NOT NULL,
		title VARCHAR(255) NOT NULL,
		artist VARCHAR(255) NOT NULL,
		artist_id VARCHAR(64),
		album VARCHAR(255),
		duration FLOAT,
		cover_art_path VARCHAR(767),
		genres TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		CONSTRAINT uq_track_source UNIQUE (source_id),
		INDEX idx_tracks_artist_id (artist_id)
	);`},
		{"affinities", `
	CREATE TABLE IF NOT EXISTS affinities (
		id INT AUTO_INCREMENT PRIMARY KEY,
		user_id INT NOT NULL,
		track_id INT NOT NULL,
		source VARCHAR(32),
		play_count INT DEFAULT 0,
		last_played TIMESTAMP NULL DEFAULT NULL,
		feedback VARCHAR(16),
		feedback_at TIMESTAMP NULL DEFAULT NULL,
		score DOUBLE DEFAULT 1.0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		CONSTRAINT fk_affinity_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		CONSTRAINT fk_affinity_track FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE,
		CONSTRAINT uq_listener_track UNIQUE (user_id, track_id),
		INDEX idx_affinities_last_played (user_id, last_played)
	);`},
		{"queue_entries", `
	CREATE TABLE IF NOT EXISTS queue_entries (
		id INT AUTO_INCREMENT PRIMARY KEY,
		user_id INT NOT NULL,
		track_id INT NOT NULL,
		position BIGINT NOT NULL,
		played BOOLEAN DEFAULT FALSE,
		batch_id VARCHAR(36),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_queue_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		CONSTRAINT uq_listener_position UNIQUE (user_id, position),
		INDEX idx_queue_unplayed (user_id, played, position)
	);`},
		{"unavailable_tracks", `
	CREATE TABLE IF NOT EXISTS unavailable_tracks (
		track_id INT PRIMARY KEY,
		error_type VARCHAR(32) NOT NULL,
		error_message TEXT,
		failed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		retry_after TIMESTAMP NULL DEFAULT NULL
	);`},
	}

	for _, stmt := range stmts {
		if _, err := DB.Exec(stmt.query); err != nil {
			return fmt.Errorf("failed to create %s table: %w", stmt.name, err)
		}
	}

	log.Println("Database schema initialized successfully (or already exists).")
	return nil
}
