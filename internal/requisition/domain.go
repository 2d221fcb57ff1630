package requisition

import (
	"time"
)

// Type identifies the kind of requisition. It is fixed at creation.
type Type string

const (
	TypeLabPurchaseOrder      Type = "LAB_PURCHASE_ORDER"
	TypeEquipmentRequest      Type = "EQUIPMENT_REQUEST"
	TypePharmacyPurchaseOrder Type = "PHARMACY_PURCHASE_ORDER"
	TypeHistologyPayment      Type = "OUTSOURCED_HISTOLOGY_PAYMENT"
	TypeEmergencyWeek         Type = "EMERGENCY_1_WEEK"
	TypeEmergencyMonth        Type = "EMERGENCY_1_MONTH"
)

// Types lists every requisition type in display order.
var Types = []Type{
	TypeLabPurchaseOrder,
	TypeEquipmentRequest,
	TypePharmacyPurchaseOrder,
	TypeHistologyPayment,
	TypeEmergencyWeek,
	TypeEmergencyMonth,
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// IsEmergency reports whether the type is a lump-sum emergency cash request.
func (t Type) IsEmergency() bool {
	return t == TypeEmergencyWeek || t == TypeEmergencyMonth
}

// Stage is a position in the approval journey.
type Stage string

const (
	StageDraft            Stage = "DRAFT"
	StageChairmanReview   Stage = "CHAIRMAN_REVIEW"
	StageStoreFulfillment Stage = "STORE_FULFILLMENT"
	StageAudit1           Stage = "AUDIT_1"
	StageAudit2           Stage = "AUDIT_2"
	StageFinalApproval    Stage = "FINAL_APPROVAL"
	StageFinanceApproval  Stage = "FINANCE_APPROVAL"
	StageApproved         Stage = "APPROVED"
	StageRejected         Stage = "REJECTED"
	StageReturned         Stage = "RETURNED"
	StageSplit            Stage = "SPLIT"
)

// Terminal reports whether no further workflow action is possible.
func (s Stage) Terminal() bool {
	return s == StageApproved || s == StageRejected || s == StageSplit
}

// Editable reports whether the requester owns the requisition again.
func (s Stage) Editable() bool {
	return s == StageReturned || s == StageDraft
}

// IdleStages are the stages where no approver is expected to act.
var IdleStages = []Stage{StageApproved, StageRejected, StageSplit, StageReturned, StageDraft}

// Action is an actor-initiated intent evaluated against the workflow.
type Action string

const (
	ActionCreate        Action = "CREATE"
	ActionResubmit      Action = "RESUBMITTED"
	ActionEdit          Action = "EDIT"
	ActionApprove       Action = "APPROVE"
	ActionFinalApprove  Action = "FINAL_APPROVE"
	ActionReject        Action = "REJECT"
	ActionReturn        Action = "RETURN"
	ActionFulfill       Action = "FULFILL"
	ActionUpdateItems   Action = "UPDATE_ITEMS"
	ActionRouteToAudit  Action = "ROUTE_TO_AUDIT"
	ActionRouteToStore  Action = "ROUTE_TO_STORE"
	ActionAdvise        Action = "ADVISE"
	ActionSplit         Action = "SPLIT"
	ActionRecordPayment Action = "RECORD_PAYMENT"
)

// Role is the organisational role of an actor.
type Role string

const (
	RoleRequester Role = "REQUESTER"
	RoleChairman  Role = "CHAIRMAN"
	RoleAuditor   Role = "AUDITOR"
	RoleStore     Role = "STORE"
	RolePharmacy  Role = "PHARMACY"
	RoleFinance   Role = "FINANCE"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleRequester, RoleChairman, RoleAuditor, RoleStore, RolePharmacy, RoleFinance:
		return true
	}
	return false
}

// Urgency is informational; it never changes routing.
type Urgency string

const (
	UrgencyRoutine  Urgency = "ROUTINE"
	UrgencyUrgent   Urgency = "URGENT"
	UrgencyCritical Urgency = "CRITICAL"
)

// PaymentStatus is derived from the payment ledger.
type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "UNPAID"
	PaymentPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentFullyPaid     PaymentStatus = "FULLY_PAID"
)

// User is the acting identity supplied by the identity provider.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role"`
}

// Party is the immutable requester reference stored on a requisition.
type Party struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Requisition is the aggregate root.
type Requisition struct {
	ID            string        `json:"id"`
	Type          Type          `json:"type"`
	Requester     Party         `json:"requester"`
	Department    string        `json:"department"`
	Urgency       Urgency       `json:"urgency"`
	Title         string        `json:"title,omitempty"`
	Stage         Stage         `json:"stage"`
	Items         []Item        `json:"items"`
	TotalCost     float64       `json:"total_cost"`
	AmountPaid    float64       `json:"amount_paid"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	AuditTrail    []AuditEntry  `json:"audit_trail"`
	Attachments   []Attachment  `json:"attachments"`
	Payments      []Payment     `json:"payments"`
	ParentID      string        `json:"parent_id,omitempty"`
	Version       int64         `json:"version"`
	ReminderCount int           `json:"reminder_count"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Outstanding returns the unpaid balance.
func (r Requisition) Outstanding() float64 {
	out := round2(r.TotalCost - r.AmountPaid)
	if out < 0 {
		return 0
	}
	return out
}

// BlobRefs lists every stored blob the requisition points at: attachments,
// signature images and payment receipts.
func (r Requisition) BlobRefs() []string {
	var refs []string
	for _, att := range r.Attachments {
		refs = append(refs, att.Ref)
	}
	for _, entry := range r.AuditTrail {
		if entry.Signature != nil && entry.Signature.ImageRef != "" {
			refs = append(refs, entry.Signature.ImageRef)
		}
	}
	for _, p := range r.Payments {
		if p.ReceiptRef != "" {
			refs = append(refs, p.ReceiptRef)
		}
	}
	return refs
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (r Requisition) Clone() Requisition {
	out := r
	out.Items = cloneItems(r.Items)
	out.AuditTrail = append([]AuditEntry(nil), r.AuditTrail...)
	out.Attachments = append([]Attachment(nil), r.Attachments...)
	out.Payments = append([]Payment(nil), r.Payments...)
	return out
}

// SignatureKind distinguishes hand-drawn images from generated stamps.
type SignatureKind string

const (
	SignatureImage SignatureKind = "IMAGE"
	SignatureStamp SignatureKind = "STAMP"
)

// Signature is the artifact bound to an audit entry.
type Signature struct {
	Kind     SignatureKind `json:"kind"`
	ImageRef string        `json:"image_ref,omitempty"`
	Stamp    string        `json:"stamp,omitempty"`
}

// AuditEntry is one immutable ledger line.
type AuditEntry struct {
	ID        string     `json:"id"`
	At        time.Time  `json:"at"`
	ActorID   string     `json:"actor_id"`
	ActorName string     `json:"actor_name"`
	ActorRole Role       `json:"actor_role"`
	Action    Action     `json:"action"`
	FromStage Stage      `json:"from_stage,omitempty"`
	ToStage   Stage      `json:"to_stage,omitempty"`
	Comment   string     `json:"comment,omitempty"`
	Signature *Signature `json:"signature,omitempty"`
}

// Attachment references a stored blob. Names are unique per requisition.
type Attachment struct {
	Name        string    `json:"name"`
	Ref         string    `json:"ref"`
	ContentType string    `json:"content_type"`
	Checksum    string    `json:"checksum"`
	Size        int64     `json:"size"`
	AddedBy     string    `json:"added_by"`
	AddedAt     time.Time `json:"added_at"`
}

// Payment is one append-only payment ledger line.
type Payment struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	Amount     float64   `json:"amount"`
	Reference  string    `json:"reference"`
	RecordedBy string    `json:"recorded_by"`
	ReceiptRef string    `json:"receipt_ref,omitempty"`
}

// Severity classifies notifications.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is handed to the Notifier after a committed action.
type Notification struct {
	Recipient string    `json:"recipient"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	RelatedID string    `json:"related_id"`
	Severity  Severity  `json:"severity"`
	At        time.Time `json:"at"`
}
