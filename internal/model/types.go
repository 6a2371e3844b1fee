package model

import (
	"fmt"
	"time"
)

type Property struct {
	PropertyID    string
	Name          string
	Address       string
	CoverPhotoURL string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChecklistItem is one line of a property's cleaning checklist. Position is
// 1-based and contiguous after every reorder.
type ChecklistItem struct {
	ItemID     string
	PropertyID string
	Title      string
	Done       bool
	Position   int
	UpdatedAt  time.Time
}

func (c ChecklistItem) OrderID() string {
	return c.ItemID
}

func (c ChecklistItem) OrderPosition() int {
	return c.Position
}

func (c ChecklistItem) WithPosition(position int) ChecklistItem {
	c.Position = position
	return c
}

type InventoryItem struct {
	ItemID     string
	PropertyID string
	Name       string
	Quantity   int
	Location   string
	UpdatedAt  time.Time
}

type Contact struct {
	ContactID  string
	PropertyID string
	Name       string
	Role       string
	Phone      string
	Email      string
	UpdatedAt  time.Time
}

// ManualEntry is one section of the house manual.
type ManualEntry struct {
	EntryID    string
	PropertyID string
	Section    string
	Body       string
	Position   int
	UpdatedAt  time.Time
}

func (m ManualEntry) OrderID() string {
	return m.EntryID
}

func (m ManualEntry) OrderPosition() int {
	return m.Position
}

func (m ManualEntry) WithPosition(position int) ManualEntry {
	m.Position = position
	return m
}

// ItemKind names a per-property collection.
type ItemKind string

const (
	KindChecklist ItemKind = "checklist"
	KindInventory ItemKind = "inventory"
	KindContacts  ItemKind = "contacts"
	KindManual    ItemKind = "manual"
)

var ItemKinds = []ItemKind{KindChecklist, KindInventory, KindContacts, KindManual}

func ParseItemKind(raw string) (ItemKind, error) {
	for _, k := range ItemKinds {
		if string(k) == raw {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown item kind %q", raw)
}

// Error codes defined by API contract.
const (
	ErrRefInvalid         = "E_REF_INVALID"
	ErrRefNotFound        = "E_REF_NOT_FOUND"
	ErrPreconditionFailed = "E_PRECONDITION_FAILED"
	ErrConflict           = "E_CONFLICT"
	ErrInvalidReorder     = "E_INVALID_REORDER"
)
