package requisition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func at(t Type, stage Stage) Requisition {
	return Requisition{ID: "REQ-1", Type: t, Stage: stage, Requester: Party{ID: requester.ID, Name: requester.Name}}
}

func testWorkflow() *Workflow {
	policy := DefaultPolicy()
	policy.SecondAuditorID = secondAuditor.ID
	return NewWorkflow(policy)
}

func TestEntryStages(t *testing.T) {
	w := testWorkflow()
	require.Equal(t, StageChairmanReview, w.EntryStage(TypeLabPurchaseOrder))
	require.Equal(t, StageFinalApproval, w.EntryStage(TypeEquipmentRequest))
	require.Equal(t, StageAudit1, w.EntryStage(TypePharmacyPurchaseOrder))
	require.Equal(t, StageAudit1, w.EntryStage(TypeHistologyPayment))
	require.Equal(t, StageAudit1, w.EntryStage(TypeEmergencyWeek))
	require.Equal(t, StageAudit2, w.EntryStage(TypeEmergencyMonth))
}

func TestApprovePaths(t *testing.T) {
	w := testWorkflow()
	type step struct {
		actor  User
		action Action
		to     Stage
	}
	paths := map[Type][]step{
		TypeLabPurchaseOrder: {
			{chairman, ActionApprove, StageStoreFulfillment},
			{storeKeeper, ActionFulfill, StageAudit1},
			{auditor, ActionApprove, StageFinalApproval},
			{chairman, ActionFinalApprove, StageApproved},
		},
		TypeEquipmentRequest: {
			{chairman, ActionRouteToAudit, StageAudit1},
			{auditor, ActionAdvise, StageFinalApproval},
			{chairman, ActionFinalApprove, StageApproved},
		},
		TypePharmacyPurchaseOrder: {
			{auditor, ActionRouteToStore, StageStoreFulfillment},
			{pharmacist, ActionFulfill, StageAudit1},
			{auditor, ActionApprove, StageFinalApproval},
			{chairman, ActionFinalApprove, StageApproved},
		},
		TypeHistologyPayment: {
			{auditor, ActionApprove, StageFinalApproval},
			{chairman, ActionFinalApprove, StageApproved},
		},
		TypeEmergencyWeek: {
			{auditor, ActionApprove, StageFinalApproval},
			{chairman, ActionFinalApprove, StageApproved},
		},
		TypeEmergencyMonth: {
			{secondAuditor, ActionApprove, StageAudit1},
			{auditor, ActionApprove, StageChairmanReview},
			{chairman, ActionApprove, StageFinanceApproval},
			{finance, ActionFinalApprove, StageApproved},
		},
	}
	for typ, steps := range paths {
		t.Run(string(typ), func(t *testing.T) {
			req := at(typ, w.EntryStage(typ))
			for _, s := range steps {
				tr, err := w.Resolve(req, s.action, s.actor)
				require.NoError(t, err, "%s at %s", s.action, req.Stage)
				require.Equal(t, s.to, tr.To)
				req.Stage = tr.To
			}
			require.True(t, req.Stage.Terminal())
		})
	}
}

func TestApproveNeverReachesApproved(t *testing.T) {
	w := testWorkflow()
	for _, typ := range Types {
		for _, stage := range []Stage{StageChairmanReview, StageStoreFulfillment, StageAudit1, StageAudit2, StageFinalApproval, StageFinanceApproval} {
			if tr, ok := w.Lookup(typ, stage, ActionApprove); ok {
				require.NotEqual(t, StageApproved, tr.To, "%s %s", typ, stage)
			}
			if tr, ok := w.Lookup(typ, stage, ActionFinalApprove); ok {
				require.Contains(t, []Stage{StageFinalApproval, StageFinanceApproval}, tr.From)
			}
		}
	}
}

func TestAudit2AlwaysAdvancesToAudit1(t *testing.T) {
	w := testWorkflow()
	tr, err := w.Resolve(at(TypeEmergencyMonth, StageAudit2), ActionApprove, secondAuditor)
	require.NoError(t, err)
	require.Equal(t, StageAudit1, tr.To)
}

func TestEveryActiveStageCanRejectAndReturn(t *testing.T) {
	w := testWorkflow()
	for key := range w.rows {
		if key.stage.Editable() {
			continue
		}
		rej, ok := w.Lookup(key.typ, key.stage, ActionReject)
		require.True(t, ok, "%s %s", key.typ, key.stage)
		require.Equal(t, StageRejected, rej.To)
		require.True(t, rej.Effects.Has(EffectRequireComment))
		ret, ok := w.Lookup(key.typ, key.stage, ActionReturn)
		require.True(t, ok)
		require.Equal(t, StageReturned, ret.To)
		require.True(t, ret.Effects.Has(EffectRequireComment))
	}
}

func TestSplitCheckOnlyOnLabFulfillment(t *testing.T) {
	w := testWorkflow()
	for key, rows := range w.rows {
		for _, row := range rows {
			if !row.Effects.Has(EffectCheckSplit) || row.Action == ActionEdit {
				continue
			}
			require.Equal(t, TypeLabPurchaseOrder, key.typ)
			require.Equal(t, StageStoreFulfillment, key.stage)
			require.Equal(t, ActionFulfill, row.Action)
		}
	}
	update, ok := w.Lookup(TypeLabPurchaseOrder, StageStoreFulfillment, ActionUpdateItems)
	require.True(t, ok)
	require.False(t, update.Effects.Has(EffectCheckSplit))
	require.Equal(t, StageStoreFulfillment, update.To)
}

func TestResolveRefusesWrongHolder(t *testing.T) {
	w := testWorkflow()
	_, err := w.Resolve(at(TypeLabPurchaseOrder, StageChairmanReview), ActionApprove, auditor)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = w.Resolve(at(TypeEmergencyMonth, StageAudit2), ActionApprove, auditor)
	require.ErrorIs(t, err, ErrForbidden, "only the designated second auditor acts at AUDIT_2")

	_, err = w.Resolve(at(TypeHistologyPayment, StageAudit1), ActionApprove, secondAuditor)
	require.ErrorIs(t, err, ErrForbidden, "the second auditor does not act at AUDIT_1")

	_, err = w.Resolve(at(TypeHistologyPayment, StageAudit1), ActionFulfill, auditor)
	require.ErrorIs(t, err, ErrValidation)

	_, err = w.Resolve(at(TypeHistologyPayment, StageApproved), ActionApprove, chairman)
	require.ErrorIs(t, err, ErrValidation)
}

func TestLegalActionsDeriveFromTable(t *testing.T) {
	w := testWorkflow()

	returned := at(TypeLabPurchaseOrder, StageReturned)
	require.Equal(t, []Action{ActionEdit}, w.LegalActions(returned, requester))
	require.Empty(t, w.LegalActions(returned, chairman))

	review := at(TypeLabPurchaseOrder, StageChairmanReview)
	require.ElementsMatch(t, []Action{ActionApprove, ActionReject, ActionReturn, ActionUpdateItems}, w.LegalActions(review, chairman))
	require.Empty(t, w.LegalActions(review, requester))
	require.False(t, w.IsActionableBy(review, storeKeeper))

	store := at(TypeLabPurchaseOrder, StageStoreFulfillment)
	require.True(t, w.IsActionableBy(store, storeKeeper))
	require.True(t, w.IsActionableBy(store, pharmacist))

	approved := at(TypeEmergencyWeek, StageApproved)
	approved.PaymentStatus = PaymentPartiallyPaid
	require.Equal(t, []Action{ActionRecordPayment}, w.LegalActions(approved, finance))
	approved.PaymentStatus = PaymentFullyPaid
	require.Empty(t, w.LegalActions(approved, finance))

	for key := range w.rows {
		req := at(key.typ, key.stage)
		for _, u := range []User{requester, chairman, auditor, secondAuditor, storeKeeper, finance} {
			for _, action := range w.LegalActions(req, u) {
				_, err := w.Resolve(req, action, u)
				require.NoError(t, err, "%s offered %s at %s/%s but cannot resolve it", u.ID, action, key.typ, key.stage)
			}
		}
	}
}

func TestEquipmentAuditModeIsPolicy(t *testing.T) {
	advisory := testWorkflow()
	_, err := advisory.Resolve(at(TypeEquipmentRequest, StageAudit1), ActionApprove, auditor)
	require.ErrorIs(t, err, ErrValidation)
	tr, err := advisory.Resolve(at(TypeEquipmentRequest, StageAudit1), ActionAdvise, auditor)
	require.NoError(t, err)
	require.True(t, tr.Effects.Has(EffectRequireComment))
	require.False(t, tr.Effects.Has(EffectRequireSignature))

	policy, err := ParsePolicy([]byte("types:\n  EQUIPMENT_REQUEST:\n    audit_mode: approval\n"))
	require.NoError(t, err)
	approval := NewWorkflow(policy)
	tr, err = approval.Resolve(at(TypeEquipmentRequest, StageAudit1), ActionApprove, auditor)
	require.NoError(t, err)
	require.Equal(t, StageFinalApproval, tr.To)
	require.True(t, tr.Effects.Has(EffectRequireSignature))
}

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy([]byte(`
second_auditor_id: aud-9
types:
  LAB_PURCHASE_ORDER:
    split_on_create: false
`))
	require.NoError(t, err)
	require.Equal(t, "aud-9", policy.SecondAuditorID)
	require.False(t, policy.For(TypeLabPurchaseOrder).SplitOnCreate)
	require.True(t, policy.For(TypePharmacyPurchaseOrder).SplitOnCreate)
	require.Equal(t, AuditAdvisory, policy.For(TypeEquipmentRequest).AuditMode)

	_, err = ParsePolicy([]byte("types:\n  HISTOLOGY:\n    split_on_create: true\n"))
	require.Error(t, err)
	_, err = ParsePolicy([]byte("types:\n  LAB_PURCHASE_ORDER:\n    audit_mode: approval\n"))
	require.Error(t, err)
	_, err = ParsePolicy([]byte("types:\n  EQUIPMENT_REQUEST:\n    audit_mode: veto\n"))
	require.Error(t, err)
	_, err = ParsePolicy([]byte("types:\n  EMERGENCY_1_WEEK:\n    split_on_create: true\n"))
	require.Error(t, err)
}

func TestValidationAndAuthorizationErrorsAreDistinct(t *testing.T) {
	err := error(&ValidationError{Field: "comment", Message: "a comment is required to reject"})
	require.True(t, errors.Is(err, ErrValidation))
	require.False(t, errors.Is(err, ErrForbidden))
	require.Contains(t, UserMessage(err), "Nothing was saved")
	require.True(t, NothingHappened(err))

	perr := error(&PersistenceError{Op: "approve", Err: errors.New("disk full")})
	require.True(t, errors.Is(perr, ErrPersistence))
	require.Contains(t, UserMessage(perr), "may have partially applied")
	require.False(t, NothingHappened(perr))
}

func TestAudit2SignerDoesNotHoldAudit1(t *testing.T) {
	w := NewWorkflow(DefaultPolicy())
	req := at(TypeEmergencyMonth, StageAudit1)
	req.AuditTrail = []AuditEntry{
		{ID: "e-1", ActorID: requester.ID, Action: ActionCreate, ToStage: StageAudit2},
		{ID: "e-2", ActorID: auditor.ID, ActorRole: RoleAuditor, Action: ActionApprove, FromStage: StageAudit2, ToStage: StageAudit1},
	}
	require.False(t, w.Holds(req, auditor))
	require.True(t, w.Holds(req, secondAuditor))
	require.False(t, w.IsActionableBy(req, auditor))

	_, err := w.Resolve(req, ActionApprove, auditor)
	require.ErrorIs(t, err, ErrForbidden)

	histology := at(TypeHistologyPayment, StageAudit1)
	require.True(t, w.Holds(histology, auditor))
}
