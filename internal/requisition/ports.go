package requisition

import (
	"context"
	"io"
	"time"
)

// Filter narrows List results. Zero fields are ignored.
type Filter struct {
	Type          Type
	Stage         Stage
	RequesterID   string
	ParentID      string
	ActiveOnly    bool
	UpdatedBefore time.Time
	Limit         int
}

// Match reports whether req satisfies f. Stores without query support use it directly.
func (f Filter) Match(req Requisition) bool {
	if f.Type != "" && req.Type != f.Type {
		return false
	}
	if f.Stage != "" && req.Stage != f.Stage {
		return false
	}
	if f.RequesterID != "" && req.Requester.ID != f.RequesterID {
		return false
	}
	if f.ParentID != "" && req.ParentID != f.ParentID {
		return false
	}
	if f.ActiveOnly && (req.Stage.Terminal() || req.Stage.Editable()) {
		return false
	}
	if !f.UpdatedBefore.IsZero() && !req.UpdatedAt.Before(f.UpdatedBefore) {
		return false
	}
	return true
}

// Store persists requisition aggregates.
//
// Replace and SaveSplit write only when the stored version equals expectedVersion
// and fail with ErrConflict otherwise. SaveSplit writes the parent and every child
// in one atomic unit.
type Store interface {
	Create(ctx context.Context, req Requisition) error
	Get(ctx context.Context, id string) (Requisition, error)
	List(ctx context.Context, filter Filter) ([]Requisition, error)
	Replace(ctx context.Context, req Requisition, expectedVersion int64) error
	SaveSplit(ctx context.Context, parent Requisition, expectedVersion int64, children []Requisition) error
	IncrementReminder(ctx context.Context, id string) error
}

// Notifier delivers notifications. Failures never roll back a transition.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// StoredBlob is what an AttachmentStore returns for a blob.
type StoredBlob struct {
	Ref      string
	Checksum string
	Size     int64
}

// AttachmentStore keeps uploaded blobs. Refs are opaque to the engine.
type AttachmentStore interface {
	Put(ctx context.Context, name, contentType string, body io.Reader) (StoredBlob, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Directory is the identity provider.
type Directory interface {
	UsersByRole(ctx context.Context, role Role) ([]User, error)
	// Reverify checks password for userID and is used only to mint signature stamps.
	Reverify(ctx context.Context, userID, password string) (User, error)
}

// PendingStore keeps actions waiting for a signature.
type PendingStore interface {
	Save(ctx context.Context, pending PendingSignature, ttl time.Duration) error
	Get(ctx context.Context, id string) (PendingSignature, error)
	// Take removes and returns the pending action; only one caller can win.
	Take(ctx context.Context, id string) (PendingSignature, error)
}

// Metrics receives workflow counters.
type Metrics interface {
	ObserveAction(t Type, action Action, outcome string)
	ObserveNotificationFailure()
}
