package library

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"mixfm/model"
)

const (
	syncStatusKeyFmt = "library:sync:%d"
	syncStatusTTL    = 24 * time.Hour
)

// StatusStore keeps per-listener sync status in Redis so it survives
// process restarts and is visible from every instance.
type StatusStore struct {
	client *redis.Client
}

// NewStatusStore creates a sync status store over the given Redis client.
func NewStatusStore(client *redis.Client) *StatusStore {
	return &StatusStore{client: client}
}

func syncStatusKey(listenerID int64) string {
	return fmt.Sprintf(syncStatusKeyFmt, listenerID)
}

// Set writes the listener's sync status with a fresh timestamp.
func (s *StatusStore) Set(ctx context.Context, listenerID int64, status *model.SyncStatus) error {
	status.UpdatedAt = time.Now()
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal sync status: %w", err)
	}
	if err := s.client.Set(ctx, syncStatusKey(listenerID), data, syncStatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to store sync status for listener %d: %w", listenerID, err)
	}
	return nil
}

// Get reads the listener's sync status. A listener who never synced (or
// whose status expired) reads back as idle.
func (s *StatusStore) Get(ctx context.Context, listenerID int64) (*model.SyncStatus, error) {
	data, err := s.client.Get(ctx, syncStatusKey(listenerID)).Bytes()
	if err == redis.Nil {
		return &model.SyncStatus{State: model.SyncIdle}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync status for listener %d: %w", listenerID, err)
	}
	status := &model.SyncStatus{}
	if err := json.Unmarshal(data, status); err != nil {
		return nil, fmt.Errorf("failed to decode sync status for listener %d: %w", listenerID, err)
	}
	return status, nil
}
