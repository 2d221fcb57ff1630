// Package notify delivers workflow notifications to people.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/reqflow/internal/requisition"
)

const (
	inboxPrefix       = "reqflow:inbox:"
	defaultInboxLimit = 200
)

// Inbox keeps the latest notifications of every user in a bounded Redis list.
type Inbox struct {
	client *redis.Client
	limit  int64
}

var (
	_ requisition.Inbox    = (*Inbox)(nil)
	_ requisition.Notifier = (*Inbox)(nil)
)

// NewInbox constructs an Inbox retaining at most limit entries per user.
func NewInbox(client *redis.Client, limit int) *Inbox {
	if limit <= 0 {
		limit = defaultInboxLimit
	}
	return &Inbox{client: client, limit: int64(limit)}
}

// Deliver prepends n to the recipient's inbox and trims the oldest entries.
func (i *Inbox) Deliver(ctx context.Context, n requisition.Notification) error {
	if n.Recipient == "" {
		return fmt.Errorf("notify: recipient required")
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: encode: %w", err)
	}
	key := inboxPrefix + n.Recipient
	_, err = i.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, i.limit-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("notify: deliver: %w", err)
	}
	return nil
}

// Notify delivers synchronously; used when no worker runs.
func (i *Inbox) Notify(ctx context.Context, n requisition.Notification) error {
	return i.Deliver(ctx, n)
}

// Recent returns up to limit notifications, newest first.
func (i *Inbox) Recent(ctx context.Context, recipient string, limit int) ([]requisition.Notification, error) {
	if limit <= 0 || int64(limit) > i.limit {
		limit = int(i.limit)
	}
	raw, err := i.client.LRange(ctx, inboxPrefix+recipient, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("notify: recent: %w", err)
	}
	out := make([]requisition.Notification, 0, len(raw))
	for _, item := range raw {
		var n requisition.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			return nil, fmt.Errorf("notify: decode: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}
