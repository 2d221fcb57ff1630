package requisition

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewEntry builds an audit entry for actor. The entry is immutable once appended.
func NewEntry(actor User, action Action, from, to Stage, comment string, sig *Signature, at time.Time) AuditEntry {
	entry := AuditEntry{
		ID:        uuid.NewString(),
		At:        at.UTC(),
		ActorID:   actor.ID,
		ActorName: actor.Name,
		ActorRole: actor.Role,
		Action:    action,
		FromStage: from,
		ToStage:   to,
		Comment:   strings.TrimSpace(comment),
	}
	if sig != nil {
		copied := *sig
		entry.Signature = &copied
	}
	return entry
}

// Append returns a new trail with entry at the end. The input slice is never written to.
func Append(trail []AuditEntry, entry AuditEntry) []AuditEntry {
	out := make([]AuditEntry, len(trail), len(trail)+1)
	copy(out, trail)
	return append(out, entry)
}

// LatestByRole scans the trail in reverse for the newest entry by role.
// When actions is non-empty only those action kinds match.
func LatestByRole(trail []AuditEntry, role Role, actions ...Action) (AuditEntry, bool) {
	for i := len(trail) - 1; i >= 0; i-- {
		entry := trail[i]
		if entry.ActorRole != role || !matchesAction(entry.Action, actions) {
			continue
		}
		return entry, true
	}
	return AuditEntry{}, false
}

// LatestByActor scans the trail in reverse for the newest entry by a specific identity.
func LatestByActor(trail []AuditEntry, actorID string, actions ...Action) (AuditEntry, bool) {
	for i := len(trail) - 1; i >= 0; i-- {
		entry := trail[i]
		if entry.ActorID != actorID || !matchesAction(entry.Action, actions) {
			continue
		}
		return entry, true
	}
	return AuditEntry{}, false
}

// LatestAtStage returns the newest entry that left stage.
func LatestAtStage(trail []AuditEntry, stage Stage) (AuditEntry, bool) {
	for i := len(trail) - 1; i >= 0; i-- {
		if trail[i].FromStage == stage {
			return trail[i], true
		}
	}
	return AuditEntry{}, false
}

func matchesAction(action Action, actions []Action) bool {
	if len(actions) == 0 {
		return true
	}
	for _, candidate := range actions {
		if candidate == action {
			return true
		}
	}
	return false
}
