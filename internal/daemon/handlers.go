package daemon

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/g960059/hostkeep/internal/api"
	"github.com/g960059/hostkeep/internal/model"
	"github.com/g960059/hostkeep/internal/reconcile"
)

func (s *Server) propertiesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listProperties(w, r)
	case http.MethodPost:
		s.createProperty(w, r)
	default:
		s.methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// propertyRouteHandler serves everything below /v1/properties/{id}.
func (s *Server) propertyRouteHandler(w http.ResponseWriter, r *http.Request) {
	tail := strings.TrimPrefix(r.URL.Path, "/v1/properties/")
	rawParts := strings.Split(strings.Trim(tail, "/"), "/")
	parts := make([]string, 0, len(rawParts))
	for _, raw := range rawParts {
		part, err := url.PathUnescape(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, model.ErrRefInvalid, "invalid path encoding")
			return
		}
		parts = append(parts, strings.TrimSpace(part))
	}
	if len(parts) == 0 || parts[0] == "" {
		s.writeError(w, http.StatusNotFound, model.ErrRefNotFound, "property not found")
		return
	}
	propertyID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.getProperty(w, r, propertyID)
		case http.MethodPut:
			s.updateProperty(w, r, propertyID)
		case http.MethodDelete:
			s.deleteProperty(w, r, propertyID)
		default:
			s.methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
		return
	}

	kind, err := model.ParseItemKind(parts[1])
	if err != nil {
		s.writeError(w, http.StatusNotFound, model.ErrRefNotFound, "property route not found")
		return
	}
	switch len(parts) {
	case 2:
		switch r.Method {
		case http.MethodGet:
			s.listItems(w, r, propertyID, kind)
		case http.MethodPost:
			s.writeItem(w, r, propertyID, kind, "")
		default:
			s.methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case 3:
		if kind == model.KindChecklist && parts[2] == "positions" {
			if r.Method != http.MethodPost {
				s.methodNotAllowed(w, http.MethodPost)
				return
			}
			s.updatePositions(w, r, propertyID)
			return
		}
		if parts[2] == "" {
			s.writeError(w, http.StatusBadRequest, model.ErrRefInvalid, "item id is required")
			return
		}
		switch r.Method {
		case http.MethodPut:
			s.writeItem(w, r, propertyID, kind, parts[2])
		case http.MethodDelete:
			s.deleteItem(w, r, propertyID, kind, parts[2])
		default:
			s.methodNotAllowed(w, http.MethodPut, http.MethodDelete)
		}
	default:
		s.writeError(w, http.StatusNotFound, model.ErrRefNotFound, "property route not found")
	}
}

func (s *Server) listProperties(w http.ResponseWriter, r *http.Request) {
	props, err := s.store.ListProperties(r.Context())
	if err != nil {
		s.writeStoreError(w, "properties", err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ListEnvelope[api.PropertyResponse]{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Items:         api.Responses(props, api.FromProperty),
	})
}

func (s *Server) getProperty(w http.ResponseWriter, r *http.Request, propertyID string) {
	p, err := s.store.GetProperty(r.Context(), propertyID)
	if err != nil {
		s.writeStoreError(w, "property", err)
		return
	}
	s.writeJSON(w, http.StatusOK, itemEnvelope(api.FromProperty(p)))
}

func (s *Server) createProperty(w http.ResponseWriter, r *http.Request) {
	var req api.PropertyRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	p, err := s.store.CreateProperty(r.Context(), model.Property{
		Name:          req.Name,
		Address:       strings.TrimSpace(req.Address),
		CoverPhotoURL: strings.TrimSpace(req.CoverPhotoURL),
	})
	if err != nil {
		s.writeStoreError(w, "property", err)
		return
	}
	s.logger.Info("property created", zap.String("property_id", p.PropertyID))
	s.writeJSON(w, http.StatusCreated, itemEnvelope(api.FromProperty(p)))
}

func (s *Server) updateProperty(w http.ResponseWriter, r *http.Request, propertyID string) {
	var req api.PropertyRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	p, err := s.store.UpdateProperty(r.Context(), model.Property{
		PropertyID:    propertyID,
		Name:          req.Name,
		Address:       strings.TrimSpace(req.Address),
		CoverPhotoURL: strings.TrimSpace(req.CoverPhotoURL),
	})
	if err != nil {
		s.writeStoreError(w, "property", err)
		return
	}
	s.writeJSON(w, http.StatusOK, itemEnvelope(api.FromProperty(p)))
}

func (s *Server) deleteProperty(w http.ResponseWriter, r *http.Request, propertyID string) {
	if err := s.store.DeleteProperty(r.Context(), propertyID); err != nil {
		s.writeStoreError(w, "property", err)
		return
	}
	s.logger.Info("property deleted", zap.String("property_id", propertyID))
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Deleted:       propertyID,
	})
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request, propertyID string, kind model.ItemKind) {
	ctx := r.Context()
	var (
		payload any
		err     error
	)
	switch kind {
	case model.KindChecklist:
		var items []model.ChecklistItem
		if items, err = s.store.ListChecklist(ctx, propertyID); err == nil {
			payload = listEnvelope(propertyID, api.Responses(items, api.FromChecklistItem))
		}
	case model.KindInventory:
		var items []model.InventoryItem
		if items, err = s.store.ListInventory(ctx, propertyID); err == nil {
			payload = listEnvelope(propertyID, api.Responses(items, api.FromInventoryItem))
		}
	case model.KindContacts:
		var items []model.Contact
		if items, err = s.store.ListContacts(ctx, propertyID); err == nil {
			payload = listEnvelope(propertyID, api.Responses(items, api.FromContact))
		}
	case model.KindManual:
		var items []model.ManualEntry
		if items, err = s.store.ListManual(ctx, propertyID); err == nil {
			payload = listEnvelope(propertyID, api.Responses(items, api.FromManualEntry))
		}
	}
	if err != nil {
		s.writeStoreError(w, string(kind), err)
		return
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// writeItem creates an item when itemID is empty and replaces it otherwise.
func (s *Server) writeItem(w http.ResponseWriter, r *http.Request, propertyID string, kind model.ItemKind, itemID string) {
	ctx := r.Context()
	status := http.StatusOK
	if itemID == "" {
		status = http.StatusCreated
	}
	var (
		payload any
		err     error
	)
	switch kind {
	case model.KindChecklist:
		var req api.ChecklistItemRequest
		if !s.decodeBody(w, r, &req) {
			return
		}
		in := model.ChecklistItem{ItemID: itemID, PropertyID: propertyID, Title: req.Title, Done: req.Done, Position: req.Position}
		var out model.ChecklistItem
		if itemID == "" {
			out, err = s.store.CreateChecklistItem(ctx, in)
		} else {
			out, err = s.store.UpdateChecklistItem(ctx, in)
		}
		payload = itemEnvelope(api.FromChecklistItem(out))
	case model.KindInventory:
		var req api.InventoryItemRequest
		if !s.decodeBody(w, r, &req) {
			return
		}
		var out model.InventoryItem
		out, err = s.store.UpsertInventoryItem(ctx, model.InventoryItem{ItemID: itemID, PropertyID: propertyID, Name: req.Name, Quantity: req.Quantity, Location: req.Location})
		payload = itemEnvelope(api.FromInventoryItem(out))
	case model.KindContacts:
		var req api.ContactRequest
		if !s.decodeBody(w, r, &req) {
			return
		}
		var out model.Contact
		out, err = s.store.UpsertContact(ctx, model.Contact{ContactID: itemID, PropertyID: propertyID, Name: req.Name, Role: req.Role, Phone: req.Phone, Email: req.Email})
		payload = itemEnvelope(api.FromContact(out))
	case model.KindManual:
		var req api.ManualEntryRequest
		if !s.decodeBody(w, r, &req) {
			return
		}
		var out model.ManualEntry
		out, err = s.store.UpsertManualEntry(ctx, model.ManualEntry{EntryID: itemID, PropertyID: propertyID, Section: req.Section, Body: req.Body, Position: req.Position})
		payload = itemEnvelope(api.FromManualEntry(out))
	}
	if err != nil {
		s.writeStoreError(w, string(kind), err)
		return
	}
	s.writeJSON(w, status, payload)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request, propertyID string, kind model.ItemKind, itemID string) {
	ctx := r.Context()
	var err error
	switch kind {
	case model.KindChecklist:
		err = s.store.DeleteChecklistItem(ctx, propertyID, itemID)
	case model.KindInventory:
		err = s.store.DeleteInventoryItem(ctx, propertyID, itemID)
	case model.KindContacts:
		err = s.store.DeleteContact(ctx, propertyID, itemID)
	case model.KindManual:
		err = s.store.DeleteManualEntry(ctx, propertyID, itemID)
	}
	if err != nil {
		s.writeStoreError(w, string(kind), err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Deleted:       itemID,
	})
}

func (s *Server) updatePositions(w http.ResponseWriter, r *http.Request, propertyID string) {
	var req api.PositionsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if msg := validateChanges(req.Changes); msg != "" {
		s.writeError(w, http.StatusBadRequest, model.ErrInvalidReorder, msg)
		return
	}
	unlock := s.lockList(string(model.KindChecklist) + "|" + propertyID)
	defer unlock()

	if err := s.store.UpdateChecklistPositions(r.Context(), propertyID, req.Changes); err != nil {
		s.writeStoreError(w, "checklist item", err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.PositionsResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		PropertyID:    propertyID,
		Updated:       len(req.Changes),
	})
}

func validateChanges(changes []reconcile.Change) string {
	seen := make(map[string]struct{}, len(changes))
	for _, c := range changes {
		if strings.TrimSpace(c.ID) == "" {
			return "change id is required"
		}
		if c.Position < reconcile.Base {
			return fmt.Sprintf("position of %s must be at least %d", c.ID, reconcile.Base)
		}
		if _, dup := seen[c.ID]; dup {
			return "duplicate change for " + c.ID
		}
		seen[c.ID] = struct{}{}
	}
	return ""
}

func listEnvelope[T any](propertyID string, items []T) api.ListEnvelope[T] {
	return api.ListEnvelope[T]{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		PropertyID:    propertyID,
		Items:         items,
	}
}

func itemEnvelope[T any](item T) api.ItemEnvelope[T] {
	return api.ItemEnvelope[T]{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Item:          item,
	}
}
