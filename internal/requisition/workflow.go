package requisition

import "sort"

// Effect is a side effect a transition requires from the orchestrator.
type Effect uint16

const (
	// EffectNotifyNextApprovers sends "Approval Required" to the holders of the target stage.
	EffectNotifyNextApprovers Effect = 1 << iota
	// EffectNotifyRequester tells the requester about the outcome, with Transition.Severity.
	EffectNotifyRequester
	// EffectCheckSplit splits the requisition when the resulting items span several suppliers.
	EffectCheckSplit
	// EffectRequireComment refuses the action without a non-empty comment.
	EffectRequireComment
	// EffectRequireSignature holds the action until a signature is confirmed.
	EffectRequireSignature
	// EffectReplaceItems takes the item set from the payload.
	EffectReplaceItems
)

// Has reports whether all bits of f are set.
func (e Effect) Has(f Effect) bool { return e&f == f }

// Transition is one row of the workflow table.
type Transition struct {
	Action   Action
	From     Stage
	To       Stage
	Effects  Effect
	Severity Severity
	// Record is the action written to the ledger when it differs from Action.
	Record Action
}

// Recorded returns the action kind written to the audit trail.
func (t Transition) Recorded() Action {
	if t.Record != "" {
		return t.Record
	}
	return t.Action
}

type stageKey struct {
	typ   Type
	stage Stage
}

// Workflow is the single routing table for every requisition type.
type Workflow struct {
	policy Policy
	entry  map[Type]Stage
	rows   map[stageKey][]Transition
}

const (
	advance  = EffectNotifyNextApprovers
	signed   = EffectRequireSignature | EffectNotifyNextApprovers
	finalize = EffectRequireSignature | EffectNotifyRequester
)

// NewWorkflow builds the table for policy.
func NewWorkflow(policy Policy) *Workflow {
	w := &Workflow{
		policy: policy,
		entry: map[Type]Stage{
			TypeLabPurchaseOrder:      StageChairmanReview,
			TypeEquipmentRequest:      StageFinalApproval,
			TypePharmacyPurchaseOrder: StageAudit1,
			TypeHistologyPayment:      StageAudit1,
			TypeEmergencyWeek:         StageAudit1,
			TypeEmergencyMonth:        StageAudit2,
		},
		rows: make(map[stageKey][]Transition),
	}

	w.add(TypeLabPurchaseOrder,
		Transition{Action: ActionApprove, From: StageChairmanReview, To: StageStoreFulfillment, Effects: signed},
		Transition{Action: ActionFulfill, From: StageStoreFulfillment, To: StageAudit1, Effects: signed | EffectReplaceItems | EffectCheckSplit},
		Transition{Action: ActionApprove, From: StageAudit1, To: StageFinalApproval, Effects: signed},
		Transition{Action: ActionFinalApprove, From: StageFinalApproval, To: StageApproved, Effects: finalize, Severity: SeveritySuccess},
	)

	equipmentAudit := Transition{Action: ActionAdvise, From: StageAudit1, To: StageFinalApproval, Effects: advance | EffectRequireComment}
	if policy.For(TypeEquipmentRequest).AuditMode == AuditApproval {
		equipmentAudit = Transition{Action: ActionApprove, From: StageAudit1, To: StageFinalApproval, Effects: signed}
	}
	w.add(TypeEquipmentRequest,
		Transition{Action: ActionFinalApprove, From: StageFinalApproval, To: StageApproved, Effects: finalize, Severity: SeveritySuccess},
		Transition{Action: ActionRouteToAudit, From: StageFinalApproval, To: StageAudit1, Effects: advance},
		equipmentAudit,
	)

	w.add(TypePharmacyPurchaseOrder,
		Transition{Action: ActionRouteToStore, From: StageAudit1, To: StageStoreFulfillment, Effects: advance},
		Transition{Action: ActionApprove, From: StageAudit1, To: StageFinalApproval, Effects: signed},
		Transition{Action: ActionFulfill, From: StageStoreFulfillment, To: StageAudit1, Effects: signed | EffectReplaceItems},
		Transition{Action: ActionFinalApprove, From: StageFinalApproval, To: StageApproved, Effects: finalize, Severity: SeveritySuccess},
	)

	for _, t := range []Type{TypeHistologyPayment, TypeEmergencyWeek} {
		w.add(t,
			Transition{Action: ActionApprove, From: StageAudit1, To: StageFinalApproval, Effects: signed},
			Transition{Action: ActionFinalApprove, From: StageFinalApproval, To: StageApproved, Effects: finalize, Severity: SeveritySuccess},
		)
	}

	w.add(TypeEmergencyMonth,
		Transition{Action: ActionApprove, From: StageAudit2, To: StageAudit1, Effects: signed},
		Transition{Action: ActionApprove, From: StageAudit1, To: StageChairmanReview, Effects: signed},
		Transition{Action: ActionApprove, From: StageChairmanReview, To: StageFinanceApproval, Effects: signed},
		Transition{Action: ActionFinalApprove, From: StageFinanceApproval, To: StageApproved, Effects: finalize, Severity: SeveritySuccess},
	)

	for _, t := range Types {
		w.addCommon(t)
	}
	return w
}

func (w *Workflow) add(t Type, rows ...Transition) {
	for _, row := range rows {
		key := stageKey{typ: t, stage: row.From}
		w.rows[key] = append(w.rows[key], row)
	}
}

// addCommon adds reject, return, in-place item updates and resubmission to every active stage of t.
func (w *Workflow) addCommon(t Type) {
	active := make([]Stage, 0, 4)
	seen := make(map[Stage]bool)
	for key := range w.rows {
		if key.typ == t && !seen[key.stage] {
			seen[key.stage] = true
			active = append(active, key.stage)
		}
	}
	sortStages(active)
	for _, stage := range active {
		w.add(t,
			Transition{Action: ActionReject, From: stage, To: StageRejected, Effects: EffectRequireComment | EffectNotifyRequester, Severity: SeverityError},
			Transition{Action: ActionReturn, From: stage, To: StageReturned, Effects: EffectRequireComment | EffectNotifyRequester, Severity: SeverityWarning},
		)
		if !t.IsEmergency() {
			w.add(t, Transition{Action: ActionUpdateItems, From: stage, To: stage, Effects: EffectReplaceItems})
		}
	}

	resubmit := EffectReplaceItems | EffectNotifyNextApprovers
	if w.policy.For(t).SplitOnCreate {
		resubmit |= EffectCheckSplit
	}
	for _, stage := range []Stage{StageReturned, StageDraft} {
		w.add(t, Transition{Action: ActionEdit, From: stage, To: w.entry[t], Effects: resubmit, Record: ActionResubmit})
	}
}

// Policy returns the policy the table was built from.
func (w *Workflow) Policy() Policy { return w.policy }

// EntryStage is where a new or resubmitted requisition of type t starts.
func (w *Workflow) EntryStage(t Type) Stage { return w.entry[t] }

// SplitsOnCreate reports whether creation of t checks for a supplier split.
func (w *Workflow) SplitsOnCreate(t Type) bool { return w.policy.For(t).SplitOnCreate }

// Transitions lists the rows defined for (t, stage) in table order.
func (w *Workflow) Transitions(t Type, stage Stage) []Transition {
	return append([]Transition(nil), w.rows[stageKey{typ: t, stage: stage}]...)
}

// Lookup finds the row for (t, stage, action) without checking the actor.
func (w *Workflow) Lookup(t Type, stage Stage, action Action) (Transition, bool) {
	for _, row := range w.rows[stageKey{typ: t, stage: stage}] {
		if row.Action == action {
			return row, true
		}
	}
	return Transition{}, false
}

// Resolve maps (type, stage, action, actor) to a transition. It fails with an
// AuthorizationError when actor does not hold the stage and a ValidationError
// when the action is not defined there.
func (w *Workflow) Resolve(req Requisition, action Action, actor User) (Transition, error) {
	if req.Stage.Terminal() {
		return Transition{}, &ValidationError{Field: "stage", Message: "requisition is " + string(req.Stage) + " and can no longer change"}
	}
	if !w.Holds(req, actor) {
		return Transition{}, &AuthorizationError{UserID: actor.ID, Role: actor.Role, Action: action, Stage: req.Stage}
	}
	row, ok := w.Lookup(req.Type, req.Stage, action)
	if !ok {
		return Transition{}, &ValidationError{Field: "action", Message: string(action) + " is not available at " + string(req.Stage)}
	}
	return row, nil
}

var stageOrder = map[Stage]int{
	StageDraft:            0,
	StageAudit2:           1,
	StageAudit1:           2,
	StageChairmanReview:   3,
	StageStoreFulfillment: 4,
	StageFinalApproval:    5,
	StageFinanceApproval:  6,
	StageReturned:         7,
}

func sortStages(stages []Stage) {
	sort.Slice(stages, func(i, j int) bool { return stageOrder[stages[i]] < stageOrder[stages[j]] })
}
