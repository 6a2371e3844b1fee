package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/g960059/hostkeep/internal/db"
	"github.com/g960059/hostkeep/internal/model"
)

func NewStore(t *testing.T) (*db.Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(ctx, filepath.Join(t.TempDir(), "hostkeep-test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := db.ApplyMigrations(ctx, store.DB()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return store, ctx
}

// SeedProperty creates a property with the given checklist titles in order.
func SeedProperty(t *testing.T, store *db.Store, ctx context.Context, name string, checklist ...string) model.Property {
	t.Helper()
	p, err := store.CreateProperty(ctx, model.Property{Name: name})
	if err != nil {
		t.Fatalf("seed property: %v", err)
	}
	for _, title := range checklist {
		if _, err := store.CreateChecklistItem(ctx, model.ChecklistItem{PropertyID: p.PropertyID, Title: title}); err != nil {
			t.Fatalf("seed checklist item %q: %v", title, err)
		}
	}
	return p
}

func SeedContact(t *testing.T, store *db.Store, ctx context.Context, propertyID, name, role string) model.Contact {
	t.Helper()
	c, err := store.UpsertContact(ctx, model.Contact{PropertyID: propertyID, Name: name, Role: role})
	if err != nil {
		t.Fatalf("seed contact: %v", err)
	}
	return c
}
