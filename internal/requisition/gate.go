package requisition

// StageRoles lists the roles that can hold stage. AUDIT_1 and AUDIT_2 share the
// auditor role and are told apart by identity in Holds.
func StageRoles(stage Stage) []Role {
	switch stage {
	case StageChairmanReview, StageFinalApproval:
		return []Role{RoleChairman}
	case StageAudit1, StageAudit2:
		return []Role{RoleAuditor}
	case StageStoreFulfillment:
		return []Role{RoleStore, RolePharmacy}
	case StageFinanceApproval:
		return []Role{RoleFinance}
	}
	return nil
}

// Holds reports whether user is the party expected to act on req now.
func (w *Workflow) Holds(req Requisition, user User) bool {
	if user.ID == "" {
		return false
	}
	if req.Stage.Editable() {
		return user.ID == req.Requester.ID
	}
	second := w.policy.SecondAuditorID
	switch req.Stage {
	case StageAudit2:
		return user.Role == RoleAuditor && (second == "" || user.ID == second)
	case StageAudit1:
		if user.Role != RoleAuditor || (second != "" && user.ID == second) {
			return false
		}
		return !clearedAudit2(req, user.ID)
	}
	for _, role := range StageRoles(req.Stage) {
		if user.Role == role {
			return true
		}
	}
	return false
}

// clearedAudit2 reports whether userID moved req from AUDIT_2 into its current
// AUDIT_1 pass; both audits need different people.
func clearedAudit2(req Requisition, userID string) bool {
	entry, ok := LatestAtStage(req.AuditTrail, StageAudit2)
	return ok && entry.ToStage == StageAudit1 && entry.ActorID == userID
}

// LegalActions returns the actions user may take on req, derived from the table.
func (w *Workflow) LegalActions(req Requisition, user User) []Action {
	if req.Stage.Editable() {
		if user.ID != "" && user.ID == req.Requester.ID {
			return []Action{ActionEdit}
		}
		return nil
	}
	if CanRecordPayment(req, user) {
		return []Action{ActionRecordPayment}
	}
	if req.Stage.Terminal() || !w.Holds(req, user) {
		return nil
	}
	rows := w.Transitions(req.Type, req.Stage)
	actions := make([]Action, 0, len(rows))
	for _, row := range rows {
		actions = append(actions, row.Action)
	}
	return actions
}

// IsActionableBy reports whether user has any mutating action on req.
func (w *Workflow) IsActionableBy(req Requisition, user User) bool {
	return len(w.LegalActions(req, user)) > 0
}

// CanRecordPayment reports whether user may add a payment to req.
func CanRecordPayment(req Requisition, user User) bool {
	return user.Role == RoleFinance && req.Stage == StageApproved &&
		req.PaymentStatus != PaymentFullyPaid && req.Outstanding() > 0
}
