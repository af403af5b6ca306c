package library

import (
	"context"
	"errors"
)

// ErrProviderNotConfigured is returned by the noop provider used when no
// upstream library source is wired in.
var ErrProviderNotConfigured = errors.New("library provider not configured")

// LibraryItem is one track as described by the upstream provider, before it
// is reconciled into the catalog.
type LibraryItem struct {
	SourceID string   `json:"sourceId"`
	Title    string   `json:"title"`
	Artist   string   `json:"artist"`
	ArtistID string   `json:"artistId"`
	Album    string   `json:"album"`
	Duration float32  `json:"duration"`
	CoverURL string   `json:"coverUrl"`
	Genres   []string `json:"genres"`
	Liked    bool     `json:"liked"` // provider-side favorite flag
}

// Provider fetches a listener's library from the upstream music source.
// Implementations own authentication and paging; the syncer only sees the
// flattened item list.
type Provider interface {
	FetchLibrary(ctx context.Context, listenerID int64) ([]*LibraryItem, error)
}

// noopProvider stands in when no upstream source is configured. Sync
// attempts fail fast instead of silently emptying the catalog.
type noopProvider struct{}

func (noopProvider) FetchLibrary(ctx context.Context, listenerID int64) ([]*LibraryItem, error) {
	return nil, ErrProviderNotConfigured
}

// NoopProvider returns the provider used when nothing upstream is wired in.
func NoopProvider() Provider {
	return noopProvider{}
}
