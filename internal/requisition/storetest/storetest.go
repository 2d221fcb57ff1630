// Package storetest holds the behaviour every requisition.Store must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/reqflow/internal/requisition"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) requisition.Store

var base = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

func sample(id string, typ requisition.Type, stage requisition.Stage, at time.Time) requisition.Requisition {
	return requisition.Requisition{
		ID:         id,
		Type:       typ,
		Requester:  requisition.Party{ID: "req-1", Name: "Ada Requester"},
		Department: "Pharmacy",
		Urgency:    requisition.UrgencyRoutine,
		Stage:      stage,
		Items: []requisition.Item{{
			Name:     "Paracetamol",
			Quantity: 10,
			UnitCost: 5,
			Supplier: "Emzor",
			Detail:   requisition.PharmacyDetail{DosageForm: "tablet"},
		}},
		TotalCost:     50,
		PaymentStatus: requisition.PaymentUnpaid,
		AuditTrail: []requisition.AuditEntry{{
			ID: "e-1", At: at, ActorID: "req-1", Action: requisition.ActionCreate, ToStage: stage,
		}},
		Version:   1,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Run exercises newStore against the Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		req := sample("REQ-1", requisition.TypePharmacyPurchaseOrder, requisition.StageAudit1, base)
		require.NoError(t, store.Create(ctx, req))

		got, err := store.Get(ctx, "REQ-1")
		require.NoError(t, err)
		require.Equal(t, req.ID, got.ID)
		require.Equal(t, req.Stage, got.Stage)
		require.Equal(t, req.Items, got.Items)
		require.Equal(t, int64(1), got.Version)
		require.True(t, req.CreatedAt.Equal(got.CreatedAt))
		require.Len(t, got.AuditTrail, 1)

		require.ErrorIs(t, store.Create(ctx, req), requisition.ErrConflict)
		_, err = store.Get(ctx, "REQ-404")
		require.ErrorIs(t, err, requisition.ErrNotFound)
	})

	t.Run("ReplaceIsVersioned", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		req := sample("REQ-1", requisition.TypeHistologyPayment, requisition.StageAudit1, base)
		require.NoError(t, store.Create(ctx, req))
		require.NoError(t, store.IncrementReminder(ctx, req.ID))

		next := req.Clone()
		next.Stage = requisition.StageFinalApproval
		next.Version = 2
		next.UpdatedAt = base.Add(time.Hour)
		require.NoError(t, store.Replace(ctx, next, 1))

		stale := req.Clone()
		stale.Stage = requisition.StageRejected
		stale.Version = 2
		require.ErrorIs(t, store.Replace(ctx, stale, 1), requisition.ErrConflict)

		got, err := store.Get(ctx, req.ID)
		require.NoError(t, err)
		require.Equal(t, requisition.StageFinalApproval, got.Stage)
		require.Equal(t, int64(2), got.Version)
		require.Equal(t, 1, got.ReminderCount)

		missing := sample("REQ-404", requisition.TypeHistologyPayment, requisition.StageAudit1, base)
		require.ErrorIs(t, store.Replace(ctx, missing, 1), requisition.ErrNotFound)
		require.ErrorIs(t, store.IncrementReminder(ctx, "REQ-404"), requisition.ErrNotFound)
	})

	t.Run("SaveSplitIsAtomic", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		parent := sample("REQ-1", requisition.TypePharmacyPurchaseOrder, requisition.StageSplit, base)
		childA := sample("REQ-1-A", requisition.TypePharmacyPurchaseOrder, requisition.StageAudit1, base)
		childA.ParentID = parent.ID
		childB := sample("REQ-1-B", requisition.TypePharmacyPurchaseOrder, requisition.StageAudit1, base)
		childB.ParentID = parent.ID
		require.NoError(t, store.SaveSplit(ctx, parent, 0, []requisition.Requisition{childA, childB}))

		children, err := store.List(ctx, requisition.Filter{ParentID: parent.ID})
		require.NoError(t, err)
		require.Len(t, children, 2)
		require.Equal(t, "REQ-1-A", children[0].ID)

		other := sample("REQ-2", requisition.TypeLabPurchaseOrder, requisition.StageAudit1, base)
		require.NoError(t, store.Create(ctx, other))
		split := other.Clone()
		split.Stage = requisition.StageSplit
		split.Version = 2
		clash := sample("REQ-1-A", requisition.TypeLabPurchaseOrder, requisition.StageAudit1, base)
		err = store.SaveSplit(ctx, split, 1, []requisition.Requisition{clash})
		require.ErrorIs(t, err, requisition.ErrConflict)

		got, err := store.Get(ctx, other.ID)
		require.NoError(t, err)
		require.Equal(t, requisition.StageAudit1, got.Stage, "parent must roll back with its children")
		require.Equal(t, int64(1), got.Version)

		require.ErrorIs(t, store.SaveSplit(ctx, split, 7, nil), requisition.ErrConflict)
	})

	t.Run("ListFilters", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		fixtures := []requisition.Requisition{
			sample("REQ-1", requisition.TypePharmacyPurchaseOrder, requisition.StageAudit1, base),
			sample("REQ-2", requisition.TypeEquipmentRequest, requisition.StageFinalApproval, base.Add(time.Hour)),
			sample("REQ-3", requisition.TypeEquipmentRequest, requisition.StageApproved, base.Add(2*time.Hour)),
			sample("REQ-4", requisition.TypeHistologyPayment, requisition.StageReturned, base.Add(3*time.Hour)),
		}
		for _, req := range fixtures {
			require.NoError(t, store.Create(ctx, req))
		}

		ids := func(reqs []requisition.Requisition) []string {
			out := make([]string, 0, len(reqs))
			for _, r := range reqs {
				out = append(out, r.ID)
			}
			return out
		}

		all, err := store.List(ctx, requisition.Filter{})
		require.NoError(t, err)
		require.Equal(t, []string{"REQ-1", "REQ-2", "REQ-3", "REQ-4"}, ids(all))

		equipment, err := store.List(ctx, requisition.Filter{Type: requisition.TypeEquipmentRequest})
		require.NoError(t, err)
		require.Equal(t, []string{"REQ-2", "REQ-3"}, ids(equipment))

		approved, err := store.List(ctx, requisition.Filter{Stage: requisition.StageApproved})
		require.NoError(t, err)
		require.Equal(t, []string{"REQ-3"}, ids(approved))

		active, err := store.List(ctx, requisition.Filter{ActiveOnly: true})
		require.NoError(t, err)
		require.Equal(t, []string{"REQ-1", "REQ-2"}, ids(active))

		stale, err := store.List(ctx, requisition.Filter{ActiveOnly: true, UpdatedBefore: base.Add(30 * time.Minute)})
		require.NoError(t, err)
		require.Equal(t, []string{"REQ-1"}, ids(stale))

		limited, err := store.List(ctx, requisition.Filter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, limited, 2)

		mine, err := store.List(ctx, requisition.Filter{RequesterID: "someone-else"})
		require.NoError(t, err)
		require.Empty(t, mine)
	})
}
