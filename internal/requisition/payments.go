package requisition

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentInput describes one payment against an approved requisition.
type PaymentInput struct {
	Amount     float64   `json:"amount" validate:"gt=0"`
	Date       time.Time `json:"date"`
	Reference  string    `json:"reference" validate:"required,max=120"`
	ReceiptRef string    `json:"receipt_ref,omitempty"`
	Receipt    *Upload   `json:"-"`
}

// RecordPayment appends a payment to a clone of req and re-derives the financial fields.
func RecordPayment(req Requisition, in PaymentInput, actor User, now time.Time) (Requisition, error) {
	if actor.Role != RoleFinance {
		return Requisition{}, &AuthorizationError{UserID: actor.ID, Role: actor.Role, Action: ActionRecordPayment, Stage: req.Stage}
	}
	if req.Stage != StageApproved {
		return Requisition{}, invalid("stage", "payments can only be recorded on approved requisitions")
	}
	if req.PaymentStatus == PaymentFullyPaid {
		return Requisition{}, invalid("amount", "requisition is already fully paid")
	}
	amount := round2(in.Amount)
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || amount <= 0 {
		return Requisition{}, invalid("amount", "amount must be greater than zero")
	}
	outstanding := req.Outstanding()
	if amount > outstanding {
		return Requisition{}, invalid("amount", fmt.Sprintf("amount %.2f exceeds the outstanding balance %.2f", amount, outstanding))
	}
	reference := strings.TrimSpace(in.Reference)
	if reference == "" {
		return Requisition{}, invalid("reference", "payment reference is required")
	}
	date := in.Date
	if date.IsZero() {
		date = now
	}

	out := req.Clone()
	out.Payments = append(out.Payments, Payment{
		ID:         uuid.NewString(),
		Date:       date.UTC(),
		Amount:     amount,
		Reference:  reference,
		RecordedBy: actor.ID,
		ReceiptRef: in.ReceiptRef,
	})
	Reconcile(&out)
	out.AuditTrail = Append(out.AuditTrail, NewEntry(actor, ActionRecordPayment, out.Stage, out.Stage,
		fmt.Sprintf("Payment %.2f ref %s", amount, reference), nil, now))
	out.UpdatedAt = now
	return out, nil
}

// Reconcile derives AmountPaid and PaymentStatus from the payment ledger.
func Reconcile(req *Requisition) {
	var sum float64
	for _, p := range req.Payments {
		sum += p.Amount
	}
	req.AmountPaid = round2(sum)
	switch {
	case req.Stage == StageApproved && req.TotalCost <= 0:
		// nothing is owed on a zero-cost approval
		req.PaymentStatus = PaymentFullyPaid
	case len(req.Payments) == 0:
		req.PaymentStatus = PaymentUnpaid
	case req.AmountPaid >= req.TotalCost:
		req.PaymentStatus = PaymentFullyPaid
	default:
		req.PaymentStatus = PaymentPartiallyPaid
	}
}
