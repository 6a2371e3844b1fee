package api

import (
	"time"

	"github.com/g960059/hostkeep/internal/reconcile"
)

const SchemaVersion = "v1"

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Error         APIError  `json:"error"`
}

type PropertyResponse struct {
	PropertyID    string `json:"property_id"`
	Name          string `json:"name"`
	Address       string `json:"address,omitempty"`
	CoverPhotoURL string `json:"cover_photo_url,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type ChecklistItemResponse struct {
	ItemID     string `json:"item_id"`
	PropertyID string `json:"property_id"`
	Title      string `json:"title"`
	Done       bool   `json:"done"`
	Position   int    `json:"position"`
	UpdatedAt  string `json:"updated_at"`
}

type InventoryItemResponse struct {
	ItemID     string `json:"item_id"`
	PropertyID string `json:"property_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	Location   string `json:"location,omitempty"`
	UpdatedAt  string `json:"updated_at"`
}

type ContactResponse struct {
	ContactID  string `json:"contact_id"`
	PropertyID string `json:"property_id"`
	Name       string `json:"name"`
	Role       string `json:"role,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	UpdatedAt  string `json:"updated_at"`
}

type ManualEntryResponse struct {
	EntryID    string `json:"entry_id"`
	PropertyID string `json:"property_id"`
	Section    string `json:"section"`
	Body       string `json:"body,omitempty"`
	Position   int    `json:"position"`
	UpdatedAt  string `json:"updated_at"`
}

// ListEnvelope wraps every collection response. PropertyID is empty for the
// property list itself.
type ListEnvelope[T any] struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	PropertyID    string    `json:"property_id,omitempty"`
	Items         []T       `json:"items"`
}

type ItemEnvelope[T any] struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Item          T         `json:"item"`
}

type PropertyRequest struct {
	Name          string `json:"name"`
	Address       string `json:"address,omitempty"`
	CoverPhotoURL string `json:"cover_photo_url,omitempty"`
}

type ChecklistItemRequest struct {
	Title    string `json:"title"`
	Done     bool   `json:"done"`
	Position int    `json:"position,omitempty"`
}

type InventoryItemRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Location string `json:"location,omitempty"`
}

type ContactRequest struct {
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type ManualEntryRequest struct {
	Section  string `json:"section"`
	Body     string `json:"body,omitempty"`
	Position int    `json:"position,omitempty"`
}

// PositionsRequest is one reorder batch. The daemon applies it atomically.
type PositionsRequest struct {
	Changes []reconcile.Change `json:"changes"`
}

type PositionsResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	PropertyID    string    `json:"property_id"`
	Updated       int       `json:"updated"`
}

type DeleteResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Deleted       string    `json:"deleted"`
}
