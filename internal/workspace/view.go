package workspace

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/g960059/hostkeep/internal/api"
	"github.com/g960059/hostkeep/internal/events"
	"github.com/g960059/hostkeep/internal/logging"
	"github.com/g960059/hostkeep/internal/metrics"
	"github.com/g960059/hostkeep/internal/model"
	"github.com/g960059/hostkeep/internal/reconcile"
	"github.com/g960059/hostkeep/internal/scope"
	"github.com/g960059/hostkeep/internal/syncengine"
)

// PropertyView shows the four collections of the selected property. All
// loaders share one gate, so Close silences them together.
type PropertyView struct {
	ws     *Workspace
	ctx    context.Context
	origin string
	gate   *syncengine.Gate
	logger *zap.Logger

	Checklist *syncengine.Loader[string, []model.ChecklistItem]
	Inventory *syncengine.Loader[string, []model.InventoryItem]
	Contacts  *syncengine.Loader[string, []model.Contact]
	Manual    *syncengine.Loader[string, []model.ManualEntry]

	cancels []func()
}

// OpenPropertyView binds a new view to the current selection and follows it
// until Close. ctx supplies values to fetches; fetches are canceled by Close.
func (w *Workspace) OpenPropertyView(ctx context.Context) *PropertyView {
	gate := syncengine.NewGate()
	loaderLog := w.logger.Named(logging.ComponentLoader)
	opts := []syncengine.Option{syncengine.WithGate(gate), syncengine.WithLogger(loaderLog)}
	v := &PropertyView{
		ws:     w,
		ctx:    ctx,
		origin: newOrigin(),
		gate:   gate,
		logger: w.logger.With(zap.String("view", "property")),
	}
	v.Checklist = syncengine.NewLoader(string(model.KindChecklist), w.remote.ListChecklist, opts...)
	v.Inventory = syncengine.NewLoader(string(model.KindInventory), w.remote.ListInventory, opts...)
	v.Contacts = syncengine.NewLoader(string(model.KindContacts), w.remote.ListContacts, opts...)
	v.Manual = syncengine.NewLoader(string(model.KindManual), w.remote.ListManual, opts...)

	v.cancels = append(v.cancels,
		w.selector.Subscribe(func(c scope.Change) { v.bind(c.Current) }),
		events.Subscribe(w.bus, EntityChanged, v.onEntityChanged),
	)
	v.bind(w.selector.Current())
	return v
}

func (v *PropertyView) PropertyID() string {
	return v.Checklist.Key()
}

func (v *PropertyView) bind(propertyID string) {
	v.logger.Debug("binding property", zap.String("property_id", propertyID))
	v.Checklist.Load(v.ctx, propertyID)
	v.Inventory.Load(v.ctx, propertyID)
	v.Contacts.Load(v.ctx, propertyID)
	v.Manual.Load(v.ctx, propertyID)
}

func (v *PropertyView) onEntityChanged(ev events.Event[EntityChange]) {
	change := ev.Payload
	if change.Origin == v.origin || change.PropertyID != v.PropertyID() {
		return
	}
	switch change.Kind {
	case model.KindChecklist:
		v.Checklist.InvalidateAndReload(v.ctx)
	case model.KindInventory:
		v.Inventory.InvalidateAndReload(v.ctx)
	case model.KindContacts:
		v.Contacts.InvalidateAndReload(v.ctx)
	case model.KindManual:
		v.Manual.InvalidateAndReload(v.ctx)
	}
}

// Refresh refetches every collection of the bound property.
func (v *PropertyView) Refresh() {
	v.Checklist.InvalidateAndReload(v.ctx)
	v.Inventory.InvalidateAndReload(v.ctx)
	v.Contacts.InvalidateAndReload(v.ctx)
	v.Manual.InvalidateAndReload(v.ctx)
}

// Retry reloads the collections whose last fetch failed.
func (v *PropertyView) Retry() {
	if v.Checklist.State().Status == syncengine.StatusError {
		v.Checklist.Retry(v.ctx)
	}
	if v.Inventory.State().Status == syncengine.StatusError {
		v.Inventory.Retry(v.ctx)
	}
	if v.Contacts.State().Status == syncengine.StatusError {
		v.Contacts.Retry(v.ctx)
	}
	if v.Manual.State().Status == syncengine.StatusError {
		v.Manual.Retry(v.ctx)
	}
}

// Wait blocks until all fetches started so far have been handled.
func (v *PropertyView) Wait() {
	v.Checklist.Wait()
	v.Inventory.Wait()
	v.Contacts.Wait()
	v.Manual.Wait()
}

// Close stops following the selection and drops every later result.
func (v *PropertyView) Close() {
	for _, cancel := range v.cancels {
		cancel()
	}
	v.cancels = nil
	v.gate.Unmount()
	v.Checklist.Unmount()
	v.Inventory.Unmount()
	v.Contacts.Unmount()
	v.Manual.Unmount()
	v.Wait()
}

func (v *PropertyView) ToggleChecklistItem(ctx context.Context, itemID string) (model.ChecklistItem, error) {
	return v.editChecklistItem(ctx, itemID, func(it *model.ChecklistItem) {
		it.Done = !it.Done
	})
}

func (v *PropertyView) RenameChecklistItem(ctx context.Context, itemID, title string) (model.ChecklistItem, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.ChecklistItem{}, fmt.Errorf("checklist title is required")
	}
	return v.editChecklistItem(ctx, itemID, func(it *model.ChecklistItem) {
		it.Title = title
	})
}

// editChecklistItem shows edit applied to one item and writes that item
// back. The property id is taken from the item so a write never lands on a
// property selected after the edit began.
func (v *PropertyView) editChecklistItem(ctx context.Context, itemID string, edit func(*model.ChecklistItem)) (model.ChecklistItem, error) {
	if _, ok := findChecklistItem(v.Checklist.State().Data, itemID); !ok {
		return model.ChecklistItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	var edited model.ChecklistItem
	_, err := v.Checklist.Mutate(ctx, func(items []model.ChecklistItem) []model.ChecklistItem {
		for i := range items {
			if items[i].ItemID == itemID {
				edit(&items[i])
				edited = items[i]
			}
		}
		return items
	}, func(ctx context.Context, _ []model.ChecklistItem) error {
		if edited.ItemID == "" {
			return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
		}
		saved, err := v.ws.remote.UpdateChecklistItem(ctx, edited.PropertyID, edited.ItemID, api.ChecklistItemRequest{
			Title:    edited.Title,
			Done:     edited.Done,
			Position: edited.Position,
		})
		if err != nil {
			return err
		}
		edited = saved
		return nil
	})
	if err != nil {
		return model.ChecklistItem{}, err
	}
	v.ws.announce(v.origin, edited.PropertyID, model.KindChecklist)
	return edited, nil
}

// AddChecklistItem creates an item at the end of the list. The server
// assigns the id, so the list is refetched instead of shown optimistically.
func (v *PropertyView) AddChecklistItem(ctx context.Context, title string) (model.ChecklistItem, error) {
	propertyID := v.PropertyID()
	if propertyID == "" {
		return model.ChecklistItem{}, ErrNoProperty
	}
	created, err := v.ws.remote.CreateChecklistItem(ctx, propertyID, api.ChecklistItemRequest{Title: title})
	if err != nil {
		return model.ChecklistItem{}, err
	}
	v.Checklist.InvalidateAndReload(v.ctx)
	v.ws.announce(v.origin, propertyID, model.KindChecklist)
	return created, nil
}

func (v *PropertyView) DeleteChecklistItem(ctx context.Context, itemID string) error {
	target, ok := findChecklistItem(v.Checklist.State().Data, itemID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	_, err := v.Checklist.Mutate(ctx, func(items []model.ChecklistItem) []model.ChecklistItem {
		out := items[:0]
		for _, it := range items {
			if it.ItemID != itemID {
				out = append(out, it)
			}
		}
		return out
	}, func(ctx context.Context, _ []model.ChecklistItem) error {
		return v.ws.remote.DeleteChecklistItem(ctx, target.PropertyID, itemID)
	})
	if err != nil {
		return err
	}
	v.ws.announce(v.origin, target.PropertyID, model.KindChecklist)
	return nil
}

// ReorderChecklist moves itemID to targetIndex, shows the new order at once
// and persists the changed positions as one batch. Reorders of the same list
// run one at a time; each starts from the order the previous one left.
func (v *PropertyView) ReorderChecklist(ctx context.Context, itemID string, targetIndex int) ([]reconcile.Change, error) {
	propertyID := v.PropertyID()
	if propertyID == "" {
		return nil, ErrNoProperty
	}
	var changes []reconcile.Change
	err := v.ws.reorders.Do(ctx, string(model.KindChecklist)+"|"+propertyID, func(ctx context.Context) error {
		st := v.Checklist.State()
		if !st.Current() || st.Key != propertyID {
			return fmt.Errorf("reorder checklist: %w", syncengine.ErrNoData)
		}
		if _, err := reconcile.Reorder(st.Data, itemID, targetIndex); err != nil {
			return err
		}
		var reorderErr error
		_, err := v.Checklist.Mutate(ctx, func(items []model.ChecklistItem) []model.ChecklistItem {
			res, err := reconcile.Reorder(items, itemID, targetIndex)
			if err != nil {
				reorderErr = err
				return items
			}
			changes = res.Changes
			return res.Items
		}, func(ctx context.Context, next []model.ChecklistItem) error {
			if reorderErr != nil {
				return reorderErr
			}
			if len(changes) == 0 {
				return nil
			}
			_, err := v.ws.remote.UpdateChecklistPositions(ctx, next[0].PropertyID, changes)
			return err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.ReorderChanges(string(model.KindChecklist), len(changes))
	if len(changes) > 0 {
		v.ws.announce(v.origin, propertyID, model.KindChecklist)
	}
	return changes, nil
}

func (v *PropertyView) UpdateContact(ctx context.Context, contactID string, req api.ContactRequest) (model.Contact, error) {
	req.Name = strings.TrimSpace(req.Name)
	var edited model.Contact
	found := false
	for _, c := range v.Contacts.State().Data {
		if c.ContactID == contactID {
			found = true
		}
	}
	if !found {
		return model.Contact{}, fmt.Errorf("%w: %s", ErrItemNotFound, contactID)
	}
	_, err := v.Contacts.Mutate(ctx, func(contacts []model.Contact) []model.Contact {
		for i := range contacts {
			if contacts[i].ContactID == contactID {
				contacts[i].Name = req.Name
				contacts[i].Role = req.Role
				contacts[i].Phone = req.Phone
				contacts[i].Email = req.Email
				edited = contacts[i]
			}
		}
		return contacts
	}, func(ctx context.Context, _ []model.Contact) error {
		if edited.ContactID == "" {
			return fmt.Errorf("%w: %s", ErrItemNotFound, contactID)
		}
		saved, err := v.ws.remote.UpdateContact(ctx, edited.PropertyID, contactID, req)
		if err != nil {
			return err
		}
		edited = saved
		return nil
	})
	if err != nil {
		return model.Contact{}, err
	}
	v.ws.announce(v.origin, edited.PropertyID, model.KindContacts)
	return edited, nil
}

func findChecklistItem(items []model.ChecklistItem, itemID string) (model.ChecklistItem, bool) {
	for _, it := range items {
		if it.ItemID == itemID {
			return it, true
		}
	}
	return model.ChecklistItem{}, false
}
