package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/g960059/hostkeep/internal/model"
	"github.com/g960059/hostkeep/internal/reconcile"
)

func newTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := ApplyMigrations(ctx, store.DB()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return store, ctx
}

func seedProperty(t *testing.T, store *Store, ctx context.Context, name string) model.Property {
	t.Helper()
	p, err := store.CreateProperty(ctx, model.Property{Name: name})
	if err != nil {
		t.Fatalf("create property %s: %v", name, err)
	}
	return p
}

func TestPropertyLifecycle(t *testing.T) {
	store, ctx := newTestStore(t)

	p := seedProperty(t, store, ctx, "  Beach house ")
	if p.PropertyID == "" || p.Name != "Beach house" {
		t.Fatalf("unexpected created property: %+v", p)
	}
	if _, err := store.CreateProperty(ctx, model.Property{Name: "Beach house"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := store.CreateProperty(ctx, model.Property{Name: " "}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	p.Address = "1 Shore Rd"
	updated, err := store.UpdateProperty(ctx, p)
	if err != nil {
		t.Fatalf("update property: %v", err)
	}
	if updated.Address != "1 Shore Rd" || !updated.CreatedAt.Equal(p.CreatedAt) {
		t.Fatalf("unexpected updated property: %+v", updated)
	}

	list, err := store.ListProperties(ctx)
	if err != nil {
		t.Fatalf("list properties: %v", err)
	}
	if len(list) != 1 || list[0].PropertyID != p.PropertyID {
		t.Fatalf("unexpected property list: %+v", list)
	}

	if err := store.DeleteProperty(ctx, p.PropertyID); err != nil {
		t.Fatalf("delete property: %v", err)
	}
	if _, err := store.GetProperty(ctx, p.PropertyID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteProperty(ctx, p.PropertyID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := store.UpdateProperty(ctx, p); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update of deleted property, got %v", err)
	}
}

func TestChecklistAppendsAndOrders(t *testing.T) {
	store, ctx := newTestStore(t)
	p := seedProperty(t, store, ctx, "Cabin")

	for _, title := range []string{"Strip beds", "Mop floors", "Restock coffee"} {
		if _, err := store.CreateChecklistItem(ctx, model.ChecklistItem{PropertyID: p.PropertyID, Title: title}); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	items, err := store.ListChecklist(ctx, p.PropertyID)
	if err != nil {
		t.Fatalf("list checklist: %v", err)
	}
	for i, it := range items {
		if it.Position != i+1 {
			t.Fatalf("item %d has position %d: %+v", i, it.Position, items)
		}
	}
	if items[2].Title != "Restock coffee" {
		t.Fatalf("expected creation order, got %+v", items)
	}

	if _, err := store.ListChecklist(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing property, got %v", err)
	}
	if _, err := store.CreateChecklistItem(ctx, model.ChecklistItem{PropertyID: "missing", Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound creating under missing property, got %v", err)
	}
}

func TestUpdateChecklistPositionsIsAtomic(t *testing.T) {
	store, ctx := newTestStore(t)
	p := seedProperty(t, store, ctx, "Loft")
	var items []model.ChecklistItem
	for _, title := range []string{"a", "b", "c"} {
		it, err := store.CreateChecklistItem(ctx, model.ChecklistItem{PropertyID: p.PropertyID, Title: title})
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		items = append(items, it)
	}

	res, err := reconcile.Reorder(items, items[2].ItemID, 0)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if err := store.UpdateChecklistPositions(ctx, p.PropertyID, res.Changes); err != nil {
		t.Fatalf("update positions: %v", err)
	}
	got, err := store.ListChecklist(ctx, p.PropertyID)
	if err != nil {
		t.Fatalf("list checklist: %v", err)
	}
	if got[0].Title != "c" || got[1].Title != "a" || got[2].Title != "b" {
		t.Fatalf("unexpected order after reorder: %+v", got)
	}

	bad := []reconcile.Change{{ID: got[0].ItemID, Position: 3}, {ID: "ghost", Position: 1}}
	if err := store.UpdateChecklistPositions(ctx, p.PropertyID, bad); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
	after, err := store.ListChecklist(ctx, p.PropertyID)
	if err != nil {
		t.Fatalf("list checklist: %v", err)
	}
	if after[0].ItemID != got[0].ItemID || after[0].Position != 1 {
		t.Fatalf("failed batch must roll back, got %+v", after)
	}
}

func TestUpdateChecklistItemScopedToProperty(t *testing.T) {
	store, ctx := newTestStore(t)
	p1 := seedProperty(t, store, ctx, "One")
	p2 := seedProperty(t, store, ctx, "Two")
	it, err := store.CreateChecklistItem(ctx, model.ChecklistItem{PropertyID: p1.PropertyID, Title: "Towels"})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	it.Done = true
	if _, err := store.UpdateChecklistItem(ctx, it); err != nil {
		t.Fatalf("update item: %v", err)
	}
	it.PropertyID = p2.PropertyID
	if _, err := store.UpdateChecklistItem(ctx, it); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating through another property, got %v", err)
	}
	if err := store.DeleteChecklistItem(ctx, p2.PropertyID, it.ItemID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting through another property, got %v", err)
	}
	if err := store.DeleteChecklistItem(ctx, p1.PropertyID, it.ItemID); err != nil {
		t.Fatalf("delete item: %v", err)
	}
}

func TestInventoryContactsAndManual(t *testing.T) {
	store, ctx := newTestStore(t)
	p := seedProperty(t, store, ctx, "Chalet")

	inv, err := store.UpsertInventoryItem(ctx, model.InventoryItem{PropertyID: p.PropertyID, Name: "Towels", Quantity: 6, Location: "Closet"})
	if err != nil {
		t.Fatalf("create inventory: %v", err)
	}
	inv.Quantity = 4
	if _, err := store.UpsertInventoryItem(ctx, inv); err != nil {
		t.Fatalf("update inventory: %v", err)
	}
	if _, err := store.UpsertInventoryItem(ctx, model.InventoryItem{PropertyID: p.PropertyID, Name: "Soap", Quantity: -1}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for negative quantity, got %v", err)
	}
	invList, err := store.ListInventory(ctx, p.PropertyID)
	if err != nil || len(invList) != 1 || invList[0].Quantity != 4 {
		t.Fatalf("unexpected inventory %+v (%v)", invList, err)
	}

	c, err := store.UpsertContact(ctx, model.Contact{PropertyID: p.PropertyID, Name: "Ana", Role: "cleaner"})
	if err != nil {
		t.Fatalf("create contact: %v", err)
	}
	c.Phone = "555-0100"
	if _, err := store.UpsertContact(ctx, c); err != nil {
		t.Fatalf("update contact: %v", err)
	}
	other := seedProperty(t, store, ctx, "Other")
	c.PropertyID = other.PropertyID
	if _, err := store.UpsertContact(ctx, c); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected contact move to be rejected, got %v", err)
	}
	contacts, err := store.ListContacts(ctx, p.PropertyID)
	if err != nil || len(contacts) != 1 || contacts[0].Phone != "555-0100" {
		t.Fatalf("unexpected contacts %+v (%v)", contacts, err)
	}

	for _, section := range []string{"Wifi", "Parking"} {
		if _, err := store.UpsertManualEntry(ctx, model.ManualEntry{PropertyID: p.PropertyID, Section: section}); err != nil {
			t.Fatalf("create manual %s: %v", section, err)
		}
	}
	manual, err := store.ListManual(ctx, p.PropertyID)
	if err != nil || len(manual) != 2 || manual[1].Section != "Parking" || manual[1].Position != 2 {
		t.Fatalf("unexpected manual %+v (%v)", manual, err)
	}

	if err := store.DeleteProperty(ctx, p.PropertyID); err != nil {
		t.Fatalf("delete property: %v", err)
	}
	var remaining int
	if err := store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts WHERE property_id = ?`, p.PropertyID).Scan(&remaining); err != nil {
		t.Fatalf("count contacts: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected cascade delete, %d contacts remain", remaining)
	}
}

func TestCheckpointAfterWrites(t *testing.T) {
	store, ctx := newTestStore(t)
	seedProperty(t, store, ctx, "Cabin")
	if err := store.Checkpoint(ctx); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	list, err := store.ListProperties(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected data to survive checkpoint, got %+v (%v)", list, err)
	}
}
