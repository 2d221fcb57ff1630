package requisition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func approvedRequisition(total float64) Requisition {
	return Requisition{
		ID:            "REQ-5",
		Type:          TypeEmergencyWeek,
		Stage:         StageApproved,
		Requester:     Party{ID: requester.ID, Name: requester.Name},
		Items:         []Item{{Name: "Emergency", Quantity: 1, UnitCost: total}},
		TotalCost:     total,
		PaymentStatus: PaymentUnpaid,
		Version:       4,
	}
}

func paymentSum(req Requisition) float64 {
	var sum float64
	for _, p := range req.Payments {
		sum += p.Amount
	}
	return round2(sum)
}

func TestRecordPaymentKeepsLedgerAndAmountPaidInSync(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	req := approvedRequisition(50000)

	for i, amount := range []float64{12000.5, 7999.5, 30000} {
		next, err := RecordPayment(req, PaymentInput{Amount: amount, Reference: "TRX"}, finance, now)
		require.NoError(t, err)
		require.Equal(t, paymentSum(next), next.AmountPaid)
		require.Len(t, next.Payments, i+1)
		require.Len(t, req.Payments, i, "input must not be mutated")
		req = next
	}
	require.Equal(t, PaymentFullyPaid, req.PaymentStatus)
	require.Zero(t, req.Outstanding())

	_, err := RecordPayment(req, PaymentInput{Amount: 1, Reference: "late"}, finance, now)
	require.ErrorIs(t, err, ErrValidation)
}

func TestRecordPaymentPartial(t *testing.T) {
	next, err := RecordPayment(approvedRequisition(1000), PaymentInput{Amount: 400, Reference: "CHQ-1"}, finance, time.Now())
	require.NoError(t, err)
	require.Equal(t, PaymentPartiallyPaid, next.PaymentStatus)
	require.Equal(t, 600.0, next.Outstanding())
	require.Equal(t, ActionRecordPayment, next.AuditTrail[len(next.AuditTrail)-1].Action)
}

func TestRecordPaymentRejectsOverpayment(t *testing.T) {
	req := approvedRequisition(1000)
	req, err := RecordPayment(req, PaymentInput{Amount: 600, Reference: "A"}, finance, time.Now())
	require.NoError(t, err)

	_, err = RecordPayment(req, PaymentInput{Amount: 400.01, Reference: "B"}, finance, time.Now())
	require.ErrorIs(t, err, ErrValidation)
	require.Len(t, req.Payments, 1)
	require.Equal(t, 600.0, req.AmountPaid)
}

func TestRecordPaymentPreconditions(t *testing.T) {
	req := approvedRequisition(1000)

	_, err := RecordPayment(req, PaymentInput{Amount: 0, Reference: "A"}, finance, time.Now())
	require.ErrorIs(t, err, ErrValidation)
	_, err = RecordPayment(req, PaymentInput{Amount: -5, Reference: "A"}, finance, time.Now())
	require.ErrorIs(t, err, ErrValidation)
	_, err = RecordPayment(req, PaymentInput{Amount: 5}, finance, time.Now())
	require.ErrorIs(t, err, ErrValidation)
	_, err = RecordPayment(req, PaymentInput{Amount: 5, Reference: "A"}, chairman, time.Now())
	require.ErrorIs(t, err, ErrForbidden)

	req.Stage = StageFinalApproval
	_, err = RecordPayment(req, PaymentInput{Amount: 5, Reference: "A"}, finance, time.Now())
	require.ErrorIs(t, err, ErrValidation)
}

func TestNoPaymentOfferedWithoutOutstandingBalance(t *testing.T) {
	req := approvedRequisition(0)
	require.False(t, CanRecordPayment(req, finance))
	Reconcile(&req)
	require.Equal(t, PaymentFullyPaid, req.PaymentStatus)

	owed := approvedRequisition(100)
	require.True(t, CanRecordPayment(owed, finance))
	Reconcile(&owed)
	require.Equal(t, PaymentUnpaid, owed.PaymentStatus)
}
