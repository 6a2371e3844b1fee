package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/g960059/hostkeep/internal/model"
	"github.com/g960059/hostkeep/internal/reconcile"
)

func (s *Store) ListChecklist(ctx context.Context, propertyID string) ([]model.ChecklistItem, error) {
	if err := requireProperty(ctx, s.db, propertyID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT item_id, property_id, title, done, position, updated_at
FROM checklist_items
WHERE property_id = ?
ORDER BY position ASC, item_id ASC
`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list checklist: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.ChecklistItem{}
	for rows.Next() {
		var (
			it        model.ChecklistItem
			done      int
			updatedAt string
		)
		if err := rows.Scan(&it.ItemID, &it.PropertyID, &it.Title, &done, &it.Position, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		it.Done = done == 1
		if it.UpdatedAt, err = parseTS(updatedAt); err != nil {
			return nil, fmt.Errorf("parse checklist updated_at: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklist: %w", err)
	}
	return out, nil
}

// CreateChecklistItem appends the item to the end of the list when Position
// is zero.
func (s *Store) CreateChecklistItem(ctx context.Context, it model.ChecklistItem) (model.ChecklistItem, error) {
	it.Title = strings.TrimSpace(it.Title)
	if it.Title == "" {
		return model.ChecklistItem{}, fmt.Errorf("%w: checklist title is required", ErrInvalid)
	}
	if err := requireProperty(ctx, s.db, it.PropertyID); err != nil {
		return model.ChecklistItem{}, err
	}
	if it.ItemID == "" {
		it.ItemID = uuid.NewString()
	}
	if it.Position <= 0 {
		next, err := s.nextPosition(ctx, "checklist_items", it.PropertyID)
		if err != nil {
			return model.ChecklistItem{}, err
		}
		it.Position = next
	}
	it.UpdatedAt = s.now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO checklist_items(item_id, property_id, title, done, position, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`, it.ItemID, it.PropertyID, it.Title, boolToInt(it.Done), it.Position, ts(it.UpdatedAt))
	if err != nil {
		if isUniqueErr(err) {
			return model.ChecklistItem{}, ErrDuplicate
		}
		return model.ChecklistItem{}, fmt.Errorf("insert checklist item: %w", err)
	}
	return it, nil
}

func (s *Store) UpdateChecklistItem(ctx context.Context, it model.ChecklistItem) (model.ChecklistItem, error) {
	it.Title = strings.TrimSpace(it.Title)
	if it.Title == "" {
		return model.ChecklistItem{}, fmt.Errorf("%w: checklist title is required", ErrInvalid)
	}
	if it.Position < 1 {
		return model.ChecklistItem{}, fmt.Errorf("%w: checklist position must be positive", ErrInvalid)
	}
	it.UpdatedAt = s.now()
	res, err := s.db.ExecContext(ctx, `
UPDATE checklist_items
SET title = ?, done = ?, position = ?, updated_at = ?
WHERE item_id = ? AND property_id = ?
`, it.Title, boolToInt(it.Done), it.Position, ts(it.UpdatedAt), it.ItemID, it.PropertyID)
	if err != nil {
		return model.ChecklistItem{}, fmt.Errorf("update checklist item: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return model.ChecklistItem{}, err
	}
	return it, nil
}

func (s *Store) DeleteChecklistItem(ctx context.Context, propertyID, itemID string) error {
	return s.deleteItem(ctx, "checklist_items", "item_id", propertyID, itemID)
}

// UpdateChecklistPositions writes a reorder batch in one transaction. A
// change naming an item outside the property fails the whole batch with
// ErrNotFound.
func (s *Store) UpdateChecklistPositions(ctx context.Context, propertyID string, changes []reconcile.Change) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin positions tx: %w", err)
	}
	now := ts(s.now())
	for _, c := range changes {
		if c.Position < 1 {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("%w: position %d for %s", ErrInvalid, c.Position, c.ID)
		}
		res, err := tx.ExecContext(ctx, `
UPDATE checklist_items SET position = ?, updated_at = ?
WHERE item_id = ? AND property_id = ?
`, c.Position, now, c.ID, propertyID)
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("update position for %s: %w", c.ID, err)
		}
		if err := expectOneRow(res); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("checklist item %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit positions: %w", err)
	}
	return nil
}

func (s *Store) ListInventory(ctx context.Context, propertyID string) ([]model.InventoryItem, error) {
	if err := requireProperty(ctx, s.db, propertyID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT item_id, property_id, name, quantity, location, updated_at
FROM inventory_items
WHERE property_id = ?
ORDER BY name ASC, item_id ASC
`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.InventoryItem{}
	for rows.Next() {
		var (
			it        model.InventoryItem
			updatedAt string
		)
		if err := rows.Scan(&it.ItemID, &it.PropertyID, &it.Name, &it.Quantity, &it.Location, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory item: %w", err)
		}
		if it.UpdatedAt, err = parseTS(updatedAt); err != nil {
			return nil, fmt.Errorf("parse inventory updated_at: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory: %w", err)
	}
	return out, nil
}

func (s *Store) UpsertInventoryItem(ctx context.Context, it model.InventoryItem) (model.InventoryItem, error) {
	it.Name = strings.TrimSpace(it.Name)
	if it.Name == "" {
		return model.InventoryItem{}, fmt.Errorf("%w: inventory name is required", ErrInvalid)
	}
	if it.Quantity < 0 {
		return model.InventoryItem{}, fmt.Errorf("%w: quantity must not be negative", ErrInvalid)
	}
	if err := requireProperty(ctx, s.db, it.PropertyID); err != nil {
		return model.InventoryItem{}, err
	}
	if it.ItemID == "" {
		it.ItemID = uuid.NewString()
	} else if err := s.checkOwner(ctx, "inventory_items", "item_id", it.PropertyID, it.ItemID); err != nil {
		return model.InventoryItem{}, err
	}
	it.UpdatedAt = s.now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO inventory_items(item_id, property_id, name, quantity, location, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(item_id) DO UPDATE SET
	name=excluded.name,
	quantity=excluded.quantity,
	location=excluded.location,
	updated_at=excluded.updated_at
`, it.ItemID, it.PropertyID, it.Name, it.Quantity, it.Location, ts(it.UpdatedAt))
	if err != nil {
		return model.InventoryItem{}, fmt.Errorf("upsert inventory item: %w", err)
	}
	return it, nil
}

func (s *Store) DeleteInventoryItem(ctx context.Context, propertyID, itemID string) error {
	return s.deleteItem(ctx, "inventory_items", "item_id", propertyID, itemID)
}

func (s *Store) ListContacts(ctx context.Context, propertyID string) ([]model.Contact, error) {
	if err := requireProperty(ctx, s.db, propertyID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT contact_id, property_id, name, role, phone, email, updated_at
FROM contacts
WHERE property_id = ?
ORDER BY name ASC, contact_id ASC
`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Contact{}
	for rows.Next() {
		var (
			c         model.Contact
			updatedAt string
		)
		if err := rows.Scan(&c.ContactID, &c.PropertyID, &c.Name, &c.Role, &c.Phone, &c.Email, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		if c.UpdatedAt, err = parseTS(updatedAt); err != nil {
			return nil, fmt.Errorf("parse contact updated_at: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return out, nil
}

func (s *Store) UpsertContact(ctx context.Context, c model.Contact) (model.Contact, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return model.Contact{}, fmt.Errorf("%w: contact name is required", ErrInvalid)
	}
	if err := requireProperty(ctx, s.db, c.PropertyID); err != nil {
		return model.Contact{}, err
	}
	if c.ContactID == "" {
		c.ContactID = uuid.NewString()
	} else if err := s.checkOwner(ctx, "contacts", "contact_id", c.PropertyID, c.ContactID); err != nil {
		return model.Contact{}, err
	}
	c.UpdatedAt = s.now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO contacts(contact_id, property_id, name, role, phone, email, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(contact_id) DO UPDATE SET
	name=excluded.name,
	role=excluded.role,
	phone=excluded.phone,
	email=excluded.email,
	updated_at=excluded.updated_at
`, c.ContactID, c.PropertyID, c.Name, c.Role, c.Phone, c.Email, ts(c.UpdatedAt))
	if err != nil {
		return model.Contact{}, fmt.Errorf("upsert contact: %w", err)
	}
	return c, nil
}

func (s *Store) DeleteContact(ctx context.Context, propertyID, contactID string) error {
	return s.deleteItem(ctx, "contacts", "contact_id", propertyID, contactID)
}

func (s *Store) ListManual(ctx context.Context, propertyID string) ([]model.ManualEntry, error) {
	if err := requireProperty(ctx, s.db, propertyID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT entry_id, property_id, section, body, position, updated_at
FROM manual_entries
WHERE property_id = ?
ORDER BY position ASC, entry_id ASC
`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list manual: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.ManualEntry{}
	for rows.Next() {
		var (
			e         model.ManualEntry
			updatedAt string
		)
		if err := rows.Scan(&e.EntryID, &e.PropertyID, &e.Section, &e.Body, &e.Position, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan manual entry: %w", err)
		}
		if e.UpdatedAt, err = parseTS(updatedAt); err != nil {
			return nil, fmt.Errorf("parse manual updated_at: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manual: %w", err)
	}
	return out, nil
}

func (s *Store) UpsertManualEntry(ctx context.Context, e model.ManualEntry) (model.ManualEntry, error) {
	e.Section = strings.TrimSpace(e.Section)
	if e.Section == "" {
		return model.ManualEntry{}, fmt.Errorf("%w: manual section is required", ErrInvalid)
	}
	if err := requireProperty(ctx, s.db, e.PropertyID); err != nil {
		return model.ManualEntry{}, err
	}
	if e.EntryID == "" {
		e.EntryID = uuid.NewString()
	} else if err := s.checkOwner(ctx, "manual_entries", "entry_id", e.PropertyID, e.EntryID); err != nil {
		return model.ManualEntry{}, err
	}
	if e.Position <= 0 {
		next, err := s.nextPosition(ctx, "manual_entries", e.PropertyID)
		if err != nil {
			return model.ManualEntry{}, err
		}
		e.Position = next
	}
	e.UpdatedAt = s.now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO manual_entries(entry_id, property_id, section, body, position, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(entry_id) DO UPDATE SET
	section=excluded.section,
	body=excluded.body,
	position=excluded.position,
	updated_at=excluded.updated_at
`, e.EntryID, e.PropertyID, e.Section, e.Body, e.Position, ts(e.UpdatedAt))
	if err != nil {
		return model.ManualEntry{}, fmt.Errorf("upsert manual entry: %w", err)
	}
	return e, nil
}

func (s *Store) DeleteManualEntry(ctx context.Context, propertyID, entryID string) error {
	return s.deleteItem(ctx, "manual_entries", "entry_id", propertyID, entryID)
}

// table and idColumn are always package constants, never request input.
func (s *Store) deleteItem(ctx context.Context, table, idColumn, propertyID, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = ? AND property_id = ?`, table, idColumn), id, propertyID)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return expectOneRow(res)
}

// checkOwner rejects an upsert that would move an existing row to another
// property. A row that does not exist yet passes.
func (s *Store) checkOwner(ctx context.Context, table, idColumn, propertyID, id string) error {
	var owner string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT property_id FROM %s WHERE %s = ?`, table, idColumn), id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check owner in %s: %w", table, err)
	}
	if owner != propertyID {
		return fmt.Errorf("%s %s belongs to another property: %w", table, id, ErrNotFound)
	}
	return nil
}

func (s *Store) nextPosition(ctx context.Context, table, propertyID string) (int, error) {
	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT MAX(position) FROM %s WHERE property_id = ?`, table), propertyID).Scan(&max); err != nil {
		return 0, fmt.Errorf("max position in %s: %w", table, err)
	}
	if !max.Valid {
		return 1, nil
	}
	return int(max.Int64) + 1, nil
}
