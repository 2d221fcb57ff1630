package requisition

import (
	"fmt"
	"sort"
	"time"
)

// SplitResult is the outcome of a supplier split.
type SplitResult struct {
	Parent   Requisition
	Children []Requisition
}

// GroupBySupplier partitions items by supplier key, preserving item order inside each group.
// Keys are returned in ascending order.
func GroupBySupplier(items []Item) ([]string, map[string][]Item) {
	groups := make(map[string][]Item)
	for _, item := range items {
		key := SupplierKey(item)
		groups[key] = append(groups[key], item)
	}
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, groups
}

// SplitBySupplier decomposes parent into one child per supplier when items
// name more than one supplier. Children enter childStage; the parent becomes SPLIT.
// sig, when set, is the signature of the action that caused the split.
// It reports false when there is a single group and nothing was split.
func SplitBySupplier(parent Requisition, items []Item, actor User, childStage Stage, now time.Time, sig *Signature) (SplitResult, bool) {
	keys, groups := GroupBySupplier(items)
	if len(keys) <= 1 {
		return SplitResult{}, false
	}

	children := make([]Requisition, 0, len(keys))
	for i, key := range keys {
		child := parent.Clone()
		child.ID = parent.ID + "-" + childSuffix(i)
		child.ParentID = parent.ID
		child.Stage = childStage
		child.Items = cloneItems(groups[key])
		child.TotalCost = TotalOf(child.Items)
		child.AmountPaid = 0
		child.PaymentStatus = PaymentUnpaid
		child.Payments = nil
		child.Version = 1
		child.ReminderCount = 0
		child.UpdatedAt = now
		child.AuditTrail = Append(parent.AuditTrail,
			NewEntry(actor, ActionSplit, parent.Stage, childStage, fmt.Sprintf("Split from %s for supplier %s", parent.ID, key), sig, now))
		children = append(children, child)
	}

	out := parent.Clone()
	out.Items = cloneItems(items)
	out.TotalCost = TotalOf(items)
	out.AuditTrail = Append(parent.AuditTrail,
		NewEntry(actor, ActionSplit, parent.Stage, StageSplit, fmt.Sprintf("Split into %d supplier orders", len(children)), sig, now))
	out.Stage = StageSplit
	out.UpdatedAt = now
	return SplitResult{Parent: out, Children: children}, true
}

// childSuffix maps 0 → A, 25 → Z, 26 → AA.
func childSuffix(i int) string {
	suffix := ""
	for n := i; n >= 0; n = n/26 - 1 {
		suffix = string(rune('A'+n%26)) + suffix
	}
	return suffix
}
