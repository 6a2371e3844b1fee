// Package workspace wires scoped loaders to the daemon for one client
// session: a property list shared between screens and per-property views
// that follow the selected property.
package workspace

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/g960059/hostkeep/internal/api"
	"github.com/g960059/hostkeep/internal/events"
	"github.com/g960059/hostkeep/internal/logging"
	"github.com/g960059/hostkeep/internal/model"
	"github.com/g960059/hostkeep/internal/reconcile"
	"github.com/g960059/hostkeep/internal/scope"
	"github.com/g960059/hostkeep/internal/syncengine"
)

// AccountScope is the scope key of resources that do not depend on the
// selected property.
const AccountScope = "account"

var (
	ErrNoProperty   = errors.New("no property selected")
	ErrItemNotFound = errors.New("item not loaded")
)

// Remote is the slice of the daemon API the workspace reads and writes.
// *appclient.Client implements it.
type Remote interface {
	ListProperties(ctx context.Context) ([]model.Property, error)
	UpdateProperty(ctx context.Context, propertyID string, req api.PropertyRequest) (model.Property, error)

	ListChecklist(ctx context.Context, propertyID string) ([]model.ChecklistItem, error)
	CreateChecklistItem(ctx context.Context, propertyID string, req api.ChecklistItemRequest) (model.ChecklistItem, error)
	UpdateChecklistItem(ctx context.Context, propertyID, itemID string, req api.ChecklistItemRequest) (model.ChecklistItem, error)
	DeleteChecklistItem(ctx context.Context, propertyID, itemID string) error
	UpdateChecklistPositions(ctx context.Context, propertyID string, changes []reconcile.Change) (api.PositionsResponse, error)

	ListInventory(ctx context.Context, propertyID string) ([]model.InventoryItem, error)
	ListContacts(ctx context.Context, propertyID string) ([]model.Contact, error)
	UpdateContact(ctx context.Context, propertyID, contactID string, req api.ContactRequest) (model.Contact, error)
	ListManual(ctx context.Context, propertyID string) ([]model.ManualEntry, error)
}

// EntityChange announces a committed write. Views reload the matching
// resource unless they made the write themselves.
type EntityChange struct {
	Origin     string
	PropertyID string
	Kind       model.ItemKind
}

// KindProperty marks changes to the property record itself.
const KindProperty model.ItemKind = "property"

var EntityChanged = events.NewTopic[EntityChange]("entity.changed")

type Workspace struct {
	remote   Remote
	bus      *events.Bus
	selector *scope.Selector
	logger   *zap.Logger
	reorders *reconcile.Serializer
	lists    *syncengine.Registry[string, []model.Property]
}

func New(remote Remote, logger *zap.Logger) *Workspace {
	logger = logging.OrNop(logger)
	bus := events.NewBus(logger)
	w := &Workspace{
		remote:   remote,
		bus:      bus,
		selector: scope.NewSelector(bus),
		logger:   logger.Named(logging.ComponentWorkspace),
		reorders: reconcile.NewSerializer(),
	}
	w.lists = syncengine.NewRegistry(func(name string) *syncengine.Loader[string, []model.Property] {
		return syncengine.NewLoader(name, func(ctx context.Context, _ string) ([]model.Property, error) {
			return w.remote.ListProperties(ctx)
		}, syncengine.WithLogger(logger.Named(logging.ComponentLoader)))
	})
	return w
}

func (w *Workspace) Bus() *events.Bus {
	return w.bus
}

func (w *Workspace) Selector() *scope.Selector {
	return w.selector
}

// Select switches every open property view to propertyID.
func (w *Workspace) Select(propertyID string) bool {
	return w.selector.Select(propertyID)
}

func (w *Workspace) announce(origin, propertyID string, kind model.ItemKind) {
	events.Publish(w.bus, EntityChanged, EntityChange{Origin: origin, PropertyID: propertyID, Kind: kind})
}

func newOrigin() string {
	return uuid.NewString()
}
