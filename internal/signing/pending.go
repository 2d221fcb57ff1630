// Package signing keeps actions that wait for a signature in Redis, so any
// server replica can confirm them.
package signing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/reqflow/internal/requisition"
)

const keyPrefix = "reqflow:pending:"

// PendingStore implements requisition.PendingStore on Redis.
type PendingStore struct {
	client *redis.Client
}

var _ requisition.PendingStore = (*PendingStore)(nil)

// NewPendingStore constructs a PendingStore.
func NewPendingStore(client *redis.Client) *PendingStore {
	return &PendingStore{client: client}
}

// Save stores pending until ttl elapses.
func (s *PendingStore) Save(ctx context.Context, pending requisition.PendingSignature, ttl time.Duration) error {
	if pending.ID == "" {
		return errors.New("signing: pending id required")
	}
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("signing: encode: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+pending.ID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("signing: save: %w", err)
	}
	return nil
}

// Get returns the pending action without consuming it.
func (s *PendingStore) Get(ctx context.Context, id string) (requisition.PendingSignature, error) {
	return decode(s.client.Get(ctx, keyPrefix+id).Bytes())
}

// Take atomically removes and returns the pending action.
func (s *PendingStore) Take(ctx context.Context, id string) (requisition.PendingSignature, error) {
	return decode(s.client.GetDel(ctx, keyPrefix+id).Bytes())
}

func decode(raw []byte, err error) (requisition.PendingSignature, error) {
	if errors.Is(err, redis.Nil) {
		return requisition.PendingSignature{}, requisition.ErrPendingNotFound
	}
	if err != nil {
		return requisition.PendingSignature{}, fmt.Errorf("signing: load: %w", err)
	}
	var pending requisition.PendingSignature
	if err := json.Unmarshal(raw, &pending); err != nil {
		return requisition.PendingSignature{}, fmt.Errorf("signing: decode: %w", err)
	}
	return pending, nil
}
