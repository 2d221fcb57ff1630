package requisition

import (
	"io"
	"time"
)

// Command is an explicit action intent against one requisition.
type Command struct {
	RequisitionID string  `json:"requisition_id"`
	Action        Action  `json:"action"`
	Payload       Payload `json:"payload"`
}

// Payload carries action-specific input.
type Payload struct {
	Comment    string   `json:"comment,omitempty"`
	Items      []Item   `json:"items,omitempty"`
	Amount     *float64 `json:"amount,omitempty"`
	Title      string   `json:"title,omitempty"`
	Department string   `json:"department,omitempty"`
	Urgency    Urgency  `json:"urgency,omitempty"`
	// Attachments are filled once Uploads have been stored.
	Attachments []Attachment `json:"attachments,omitempty"`
	Uploads     []Upload     `json:"-"`
}

// Upload is a blob supplied with an action.
type Upload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// CreateInput starts a new requisition.
type CreateInput struct {
	Type       Type    `json:"type" validate:"required"`
	Department string  `json:"department" validate:"required,max=120"`
	Urgency    Urgency `json:"urgency" validate:"omitempty,oneof=ROUTINE URGENT CRITICAL"`
	Title      string  `json:"title" validate:"max=200"`
	Items      []Item  `json:"items"`
	// Amount is the lump sum of the emergency types.
	Amount  float64  `json:"amount"`
	Uploads []Upload `json:"-"`
}

// PendingSignature is an action held until its actor signs.
type PendingSignature struct {
	ID            string    `json:"id"`
	Command       Command   `json:"command"`
	Actor         User      `json:"actor"`
	Stage         Stage     `json:"stage"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	RequisitionID string    `json:"requisition_id"`
}

// OutcomeStatus tells whether an action was committed.
type OutcomeStatus string

const (
	OutcomePending   OutcomeStatus = "PENDING_SIGNATURE"
	OutcomeCommitted OutcomeStatus = "COMMITTED"
)

// Outcome is returned by Begin and ConfirmSignature.
type Outcome struct {
	Status      OutcomeStatus     `json:"status"`
	Pending     *PendingSignature `json:"pending,omitempty"`
	Requisition *Requisition      `json:"requisition,omitempty"`
	Children    []Requisition     `json:"children,omitempty"`
}
