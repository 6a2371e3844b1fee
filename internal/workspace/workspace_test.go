package workspace

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/g960059/hostkeep/internal/api"
	"github.com/g960059/hostkeep/internal/appclient"
	"github.com/g960059/hostkeep/internal/config"
	"github.com/g960059/hostkeep/internal/daemon"
	"github.com/g960059/hostkeep/internal/db"
	"github.com/g960059/hostkeep/internal/model"
	"github.com/g960059/hostkeep/internal/reconcile"
	"github.com/g960059/hostkeep/internal/syncengine"
	"github.com/g960059/hostkeep/internal/testutil"
)

type fixture struct {
	ctx    context.Context
	store  *db.Store
	client *appclient.Client
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store, ctx := testutil.NewStore(t)
	srv := httptest.NewServer(daemon.NewServerWithDeps(config.DefaultConfig(), store, nil).Handler())
	t.Cleanup(srv.Close)
	return fixture{ctx: ctx, store: store, client: appclient.NewWithClient(srv.URL, srv.Client())}
}

type failingPositions struct {
	Remote
	err error
}

func (f failingPositions) UpdateChecklistPositions(context.Context, string, []reconcile.Change) (api.PositionsResponse, error) {
	return api.PositionsResponse{}, f.err
}

type blockingChecklist struct {
	Remote
	release chan struct{}
}

func (b blockingChecklist) ListChecklist(ctx context.Context, propertyID string) ([]model.ChecklistItem, error) {
	select {
	case <-b.release:
		return b.Remote.ListChecklist(ctx, propertyID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type recordingContacts struct {
	Remote
	sent []api.ContactRequest
}

func (r *recordingContacts) UpdateContact(ctx context.Context, propertyID, contactID string, req api.ContactRequest) (model.Contact, error) {
	r.sent = append(r.sent, req)
	return r.Remote.UpdateContact(ctx, propertyID, contactID, req)
}

func titles(items []model.ChecklistItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Title)
	}
	return out
}

func positions(items []model.ChecklistItem) []int {
	out := make([]int, 0, len(items))
	for _, it := range items {
		out = append(out, it.Position)
	}
	return out
}

func TestPropertyViewFollowsSelection(t *testing.T) {
	fx := newFixture(t)
	p1 := testutil.SeedProperty(t, fx.store, fx.ctx, "Cabin", "a", "b", "c")
	p2 := testutil.SeedProperty(t, fx.store, fx.ctx, "Loft", "x")
	testutil.SeedContact(t, fx.store, fx.ctx, p1.PropertyID, "Ana", "cleaner")

	ws := New(fx.client, nil)
	view := ws.OpenPropertyView(fx.ctx)
	defer view.Close()
	require.Equal(t, syncengine.StatusIdle, view.Checklist.State().Status)

	require.True(t, ws.Select(p1.PropertyID))
	view.Wait()
	st := view.Checklist.State()
	require.Equal(t, syncengine.StatusLoaded, st.Status)
	require.Equal(t, []string{"a", "b", "c"}, titles(st.Data))
	require.Len(t, view.Contacts.State().Data, 1)
	require.Equal(t, syncengine.StatusLoaded, view.Manual.State().Status)

	require.False(t, ws.Select(p1.PropertyID), "same property must not rebind")

	ws.Select(p2.PropertyID)
	view.Wait()
	st = view.Checklist.State()
	require.Equal(t, p2.PropertyID, st.Key)
	require.Equal(t, []string{"x"}, titles(st.Data))
	require.Empty(t, view.Contacts.State().Data)

	ws.Selector().Clear()
	require.Equal(t, syncengine.StatusIdle, view.Checklist.State().Status)
	require.False(t, view.Checklist.State().HasData)
}

func TestReorderChecklistPersists(t *testing.T) {
	fx := newFixture(t)
	p := testutil.SeedProperty(t, fx.store, fx.ctx, "Cabin", "a", "b", "c")
	ws := New(fx.client, nil)
	view := ws.OpenPropertyView(fx.ctx)
	defer view.Close()
	ws.Select(p.PropertyID)
	view.Wait()

	items := view.Checklist.State().Data
	changes, err := view.ReorderChecklist(fx.ctx, items[2].ItemID, 0)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	st := view.Checklist.State()
	require.Equal(t, []string{"c", "a", "b"}, titles(st.Data))
	require.Equal(t, []int{1, 2, 3}, positions(st.Data))

	stored, err := fx.store.ListChecklist(fx.ctx, p.PropertyID)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b"}, titles(stored))

	changes, err = view.ReorderChecklist(fx.ctx, st.Data[0].ItemID, 0)
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestReorderRollsBackWhenCommitFails(t *testing.T) {
	fx := newFixture(t)
	p := testutil.SeedProperty(t, fx.store, fx.ctx, "Cabin", "a", "b", "c")
	boom := errors.New("daemon unavailable")
	ws := New(failingPositions{Remote: fx.client, err: boom}, nil)
	view := ws.OpenPropertyView(fx.ctx)
	defer view.Close()
	ws.Select(p.PropertyID)
	view.Wait()

	var seen [][]string
	cancel := view.Checklist.Subscribe(func(st syncengine.LoadState[string, []model.ChecklistItem]) {
		seen = append(seen, titles(st.Data))
	})
	defer cancel()

	items := view.Checklist.State().Data
	_, err := view.ReorderChecklist(fx.ctx, items[2].ItemID, 0)
	require.ErrorIs(t, err, syncengine.ErrCommitFailed)
	require.ErrorIs(t, err, boom)
	require.Equal(t, [][]string{{"c", "a", "b"}, {"a", "b", "c"}}, seen)
	require.Equal(t, []string{"a", "b", "c"}, titles(view.Checklist.State().Data))
}

func TestReorderRejectsInvalidMove(t *testing.T) {
	fx := newFixture(t)
	p := testutil.SeedProperty(t, fx.store, fx.ctx, "Cabin", "a", "b")
	ws := New(fx.client, nil)
	view := ws.OpenPropertyView(fx.ctx)
	defer view.Close()

	_, err := view.ReorderChecklist(fx.ctx, "any", 0)
	require.ErrorIs(t, err, ErrNoProperty)

	ws.Select(p.PropertyID)
	view.Wait()
	items := view.Checklist.State().Data
	_, err = view.ReorderChecklist(fx.ctx, items[0].ItemID, 2)
	require.ErrorIs(t, err, reconcile.ErrInvalidReorder)
	_, err = view.ReorderChecklist(fx.ctx, "ghost", 0)
	require.ErrorIs(t, err, reconcile.ErrInvalidReorder)
}

func TestChecklistItemEdits(t *testing.T) {
	fx := newFixture(t)
	p := testutil.SeedProperty(t, fx.store, fx.ctx, "Cabin", "Strip beds")
	ws := New(fx.client, nil)
	view := ws.OpenPropertyView(fx.ctx)
	defer view.Close()
	ws.Select(p.PropertyID)
	view.Wait()
	itemID := view.Checklist.State().Data[0].ItemID

	toggled, err := view.ToggleChecklistItem(fx.ctx, itemID)
	require.NoError(t, err)
	require.True(t, toggled.Done)
	require.True(t, view.Checklist.State().Data[0].Done)

	renamed, err := view.RenameChecklistItem(fx.ctx, itemID, "Strip and wash beds")
	require.NoError(t, err)
	require.Equal(t, "Strip and wash beds", renamed.Title)

	_, err = view.RenameChecklistItem(fx.ctx, itemID, "  ")
	require.Error(t, err)
	_, err = view.ToggleChecklistItem(fx.ctx, "ghost")
	require.ErrorIs(t, err, ErrItemNotFound)

	stored, err := fx.store.ListChecklist(fx.ctx, p.PropertyID)
	require.NoError(t, err)
	require.True(t, stored[0].Done)
	require.Equal(t, "Strip and wash beds", stored[0].Title)

	added, err := view.AddChecklistItem(fx.ctx, "Restock coffee")
	require.NoError(t, err)
	view.Wait()
	require.Equal(t, []string{"Strip and wash beds", "Restock coffee"}, titles(view.Checklist.State().Data))

	require.NoError(t, view.DeleteChecklistItem(fx.ctx, added.ItemID))
	require.Equal(t, []string{"Strip and wash beds"}, titles(view.Checklist.State().Data))
	stored, err = fx.store.ListChecklist(fx.ctx, p.PropertyID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestEditsReloadOtherViews(t *testing.T) {
	fx := newFixture(t)
	p := testutil.SeedProperty(t, fx.store, fx.ctx, "Cabin", "a")
	c := testutil.SeedContact(t, fx.store, fx.ctx, p.PropertyID, "Ana", "cleaner")
	ws := New(fx.client, nil)
	editor := ws.OpenPropertyView(fx.ctx)
	defer editor.Close()
	viewer := ws.OpenPropertyView(fx.ctx)
	defer viewer.Close()
	ws.Select(p.PropertyID)
	editor.Wait()
	viewer.Wait()

	_, err := editor.ToggleChecklistItem(fx.ctx, editor.Checklist.State().Data[0].ItemID)
	require.NoError(t, err)
	_, err = editor.UpdateContact(fx.ctx, c.ContactID, api.ContactRequest{Name: "Ana", Role: "cleaner", Phone: "555-0100"})
	require.NoError(t, err)

	viewer.Wait()
	require.True(t, viewer.Checklist.State().Data[0].Done)
	require.Equal(t, "555-0100", viewer.Contacts.State().Data[0].Phone)
}

func TestUpdateContactSendsTrimmedName(t *testing.T) {
	fx := newFixture(t)
	p := testutil.SeedProperty(t, fx.store, fx.ctx, "Cabin")
	c := testutil.SeedContact(t, fx.store, fx.ctx, p.PropertyID, "Ana", "cleaner")
	remote := &recordingContacts{Remote: fx.client}
	ws := New(remote, nil)
	view := ws.OpenPropertyView(fx.ctx)
	defer view.Close()
	ws.Select(p.PropertyID)
	view.Wait()

	saved, err := view.UpdateContact(fx.ctx, c.ContactID, api.ContactRequest{Name: "  Ana Lima  ", Role: "cleaner"})
	require.NoError(t, err)
	require.Equal(t, "Ana Lima", saved.Name)
	require.Len(t, remote.sent, 1)
	require.Equal(t, "Ana Lima", remote.sent[0].Name)
	require.Equal(t, "Ana Lima", view.Contacts.State().Data[0].Name)

	stored, err := fx.store.ListContacts(fx.ctx, p.PropertyID)
	require.NoError(t, err)
	require.Equal(t, "Ana Lima", stored[0].Name)
}

func TestCloseDropsLateResults(t *testing.T) {
	fx := newFixture(t)
	p := testutil.SeedProperty(t, fx.store, fx.ctx, "Cabin", "a")
	remote := blockingChecklist{Remote: fx.client, release: make(chan struct{})}
	ws := New(remote, nil)
	view := ws.OpenPropertyView(fx.ctx)
	ws.Select(p.PropertyID)
	require.Equal(t, syncengine.StatusLoading, view.Checklist.State().Status)

	view.Close()
	close(remote.release)
	st := view.Checklist.State()
	require.Equal(t, syncengine.StatusLoading, st.Status)
	require.False(t, st.HasData)

	ws.Select("")
	require.Equal(t, syncengine.StatusLoading, view.Checklist.State().Status, "closed view must not follow the selection")
}

func TestPropertyListIsShared(t *testing.T) {
	fx := newFixture(t)
	p := testutil.SeedProperty(t, fx.store, fx.ctx, "Cabin")
	testutil.SeedProperty(t, fx.store, fx.ctx, "Loft")
	ws := New(fx.client, nil)

	first := ws.OpenPropertyList(fx.ctx)
	second := ws.OpenPropertyList(fx.ctx)
	require.Equal(t, 1, ws.lists.Len())
	first.Wait()
	require.Len(t, first.State().Data, 2)
	require.Equal(t, first.State().Data, second.State().Data)

	updated, err := first.UpdateProperty(fx.ctx, p.PropertyID, api.PropertyRequest{Name: "Cabin by the lake", CoverPhotoURL: "https://img/cabin.jpg"})
	require.NoError(t, err)
	require.Equal(t, "Cabin by the lake", updated.Name)
	second.Wait()
	stored, err := fx.store.GetProperty(fx.ctx, p.PropertyID)
	require.NoError(t, err)
	require.Equal(t, "https://img/cabin.jpg", stored.CoverPhotoURL)

	_, err = first.UpdateProperty(fx.ctx, "missing", api.PropertyRequest{Name: "Nope"})
	require.ErrorIs(t, err, syncengine.ErrCommitFailed)
	require.True(t, appclient.IsNotFound(err))

	first.Close()
	first.Close()
	require.Equal(t, 1, ws.lists.Len())
	second.Close()
	require.Equal(t, 0, ws.lists.Len())
}
