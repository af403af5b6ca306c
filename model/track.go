package model

import (
	"encoding/json"
	"time"
)

// Track represents a playable item in the catalog. Tracks are owned by the
// library sync and are never mutated by the queue engine.
type Track struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	SourceID     string    `json:"sourceId" gorm:"size:64;uniqueIndex"` // provider-side identifier
	Title        string    `json:"title" gorm:"size:255;not null"`
	Artist       string    `json:"artist" gorm:"size:255;not null"`
	ArtistID     string    `json:"artistId" gorm:"size:64;index"` // stable artist id, preferred over the display name
	Album        string    `json:"album" gorm:"size:255"`
	Duration     float32   `json:"duration"`                     // duration in seconds
	CoverArtPath string    `json:"coverArtPath" gorm:"size:767"` // object path in the artwork store
	Genres       string    `json:"-" gorm:"type:text"`           // JSON array of genre tags
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// GenreTags decodes the stored genre list. Malformed or empty data yields nil.
func (t *Track) GenreTags() []string {
	if t.Genres == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(t.Genres), &tags); err != nil {
		return nil
	}
	return tags
}

// SetGenreTags encodes the genre list for storage.
func (t *Track) SetGenreTags(tags []string) {
	if len(tags) == 0 {
		t.Genres = "[]"
		return
	}
	data, err := json.Marshal(tags)
	if err != nil {
		t.Genres = "[]"
		return
	}
	t.Genres = string(data)
}

// ArtistKey returns the identifier used for artist spacing: the stable
// artist id when present, the display name otherwise.
func (t *Track) ArtistKey() string {
	if t.ArtistID != "" {
		return t.ArtistID
	}
	return t.Artist
}
