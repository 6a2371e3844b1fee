package api

import (
	"fmt"
	"time"

	"github.com/g960059/hostkeep/internal/model"
)

func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", field, err)
	}
	return t, nil
}

func FromProperty(p model.Property) PropertyResponse {
	return PropertyResponse{
		PropertyID:    p.PropertyID,
		Name:          p.Name,
		Address:       p.Address,
		CoverPhotoURL: p.CoverPhotoURL,
		CreatedAt:     FormatTime(p.CreatedAt),
		UpdatedAt:     FormatTime(p.UpdatedAt),
	}
}

func (r PropertyResponse) Model() (model.Property, error) {
	created, err := parseTime("created_at", r.CreatedAt)
	if err != nil {
		return model.Property{}, err
	}
	updated, err := parseTime("updated_at", r.UpdatedAt)
	if err != nil {
		return model.Property{}, err
	}
	return model.Property{
		PropertyID:    r.PropertyID,
		Name:          r.Name,
		Address:       r.Address,
		CoverPhotoURL: r.CoverPhotoURL,
		CreatedAt:     created,
		UpdatedAt:     updated,
	}, nil
}

func FromChecklistItem(it model.ChecklistItem) ChecklistItemResponse {
	return ChecklistItemResponse{
		ItemID:     it.ItemID,
		PropertyID: it.PropertyID,
		Title:      it.Title,
		Done:       it.Done,
		Position:   it.Position,
		UpdatedAt:  FormatTime(it.UpdatedAt),
	}
}

func (r ChecklistItemResponse) Model() (model.ChecklistItem, error) {
	updated, err := parseTime("updated_at", r.UpdatedAt)
	if err != nil {
		return model.ChecklistItem{}, err
	}
	return model.ChecklistItem{
		ItemID:     r.ItemID,
		PropertyID: r.PropertyID,
		Title:      r.Title,
		Done:       r.Done,
		Position:   r.Position,
		UpdatedAt:  updated,
	}, nil
}

func FromInventoryItem(it model.InventoryItem) InventoryItemResponse {
	return InventoryItemResponse{
		ItemID:     it.ItemID,
		PropertyID: it.PropertyID,
		Name:       it.Name,
		Quantity:   it.Quantity,
		Location:   it.Location,
		UpdatedAt:  FormatTime(it.UpdatedAt),
	}
}

func (r InventoryItemResponse) Model() (model.InventoryItem, error) {
	updated, err := parseTime("updated_at", r.UpdatedAt)
	if err != nil {
		return model.InventoryItem{}, err
	}
	return model.InventoryItem{
		ItemID:     r.ItemID,
		PropertyID: r.PropertyID,
		Name:       r.Name,
		Quantity:   r.Quantity,
		Location:   r.Location,
		UpdatedAt:  updated,
	}, nil
}

func FromContact(c model.Contact) ContactResponse {
	return ContactResponse{
		ContactID:  c.ContactID,
		PropertyID: c.PropertyID,
		Name:       c.Name,
		Role:       c.Role,
		Phone:      c.Phone,
		Email:      c.Email,
		UpdatedAt:  FormatTime(c.UpdatedAt),
	}
}

func (r ContactResponse) Model() (model.Contact, error) {
	updated, err := parseTime("updated_at", r.UpdatedAt)
	if err != nil {
		return model.Contact{}, err
	}
	return model.Contact{
		ContactID:  r.ContactID,
		PropertyID: r.PropertyID,
		Name:       r.Name,
		Role:       r.Role,
		Phone:      r.Phone,
		Email:      r.Email,
		UpdatedAt:  updated,
	}, nil
}

func FromManualEntry(e model.ManualEntry) ManualEntryResponse {
	return ManualEntryResponse{
		EntryID:    e.EntryID,
		PropertyID: e.PropertyID,
		Section:    e.Section,
		Body:       e.Body,
		Position:   e.Position,
		UpdatedAt:  FormatTime(e.UpdatedAt),
	}
}

func (r ManualEntryResponse) Model() (model.ManualEntry, error) {
	updated, err := parseTime("updated_at", r.UpdatedAt)
	if err != nil {
		return model.ManualEntry{}, err
	}
	return model.ManualEntry{
		EntryID:    r.EntryID,
		PropertyID: r.PropertyID,
		Section:    r.Section,
		Body:       r.Body,
		Position:   r.Position,
		UpdatedAt:  updated,
	}, nil
}

// Models converts a decoded list with the given per-item conversion.
func Models[R any, M any](items []R, convert func(R) (M, error)) ([]M, error) {
	out := make([]M, 0, len(items))
	for i, it := range items {
		m, err := convert(it)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Responses is the inverse of Models.
func Responses[M any, R any](items []M, convert func(M) R) []R {
	out := make([]R, 0, len(items))
	for _, it := range items {
		out = append(out, convert(it))
	}
	return out
}
