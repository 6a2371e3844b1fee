package workspace

import (
	"context"
	"fmt"
	"strings"

	"github.com/g960059/hostkeep/internal/api"
	"github.com/g960059/hostkeep/internal/events"
	"github.com/g960059/hostkeep/internal/model"
	"github.com/g960059/hostkeep/internal/syncengine"
)

const propertyListName = "properties"

// PropertyList is one holder of the shared property collection. Every open
// list uses the same loader; it is torn down when the last one closes.
type PropertyList struct {
	ws      *Workspace
	ctx     context.Context
	origin  string
	loader  *syncengine.Loader[string, []model.Property]
	release func()
	cancel  func()
}

func (w *Workspace) OpenPropertyList(ctx context.Context) *PropertyList {
	loader, release := w.lists.Acquire(propertyListName)
	l := &PropertyList{
		ws:      w,
		ctx:     ctx,
		origin:  newOrigin(),
		loader:  loader,
		release: release,
	}
	l.cancel = events.Subscribe(w.bus, EntityChanged, func(ev events.Event[EntityChange]) {
		if ev.Payload.Kind == KindProperty && ev.Payload.Origin != l.origin {
			l.loader.InvalidateAndReload(l.ctx)
		}
	})
	loader.Load(ctx, AccountScope)
	return l
}

func (l *PropertyList) State() syncengine.LoadState[string, []model.Property] {
	return l.loader.State()
}

func (l *PropertyList) Subscribe(fn func(syncengine.LoadState[string, []model.Property])) (cancel func()) {
	return l.loader.Subscribe(fn)
}

func (l *PropertyList) Refresh() {
	l.loader.InvalidateAndReload(l.ctx)
}

func (l *PropertyList) Wait() {
	l.loader.Wait()
}

// UpdateProperty shows the edited name, address and cover photo at once and
// rolls them back if the daemon rejects the write.
func (l *PropertyList) UpdateProperty(ctx context.Context, propertyID string, req api.PropertyRequest) (model.Property, error) {
	req.Name = strings.TrimSpace(req.Name)
	var saved model.Property
	_, err := l.loader.Mutate(ctx, func(props []model.Property) []model.Property {
		for i := range props {
			if props[i].PropertyID == propertyID {
				props[i].Name = req.Name
				props[i].Address = req.Address
				props[i].CoverPhotoURL = req.CoverPhotoURL
			}
		}
		return props
	}, func(ctx context.Context, _ []model.Property) error {
		p, err := l.ws.remote.UpdateProperty(ctx, propertyID, req)
		if err != nil {
			return fmt.Errorf("update property %s: %w", propertyID, err)
		}
		saved = p
		return nil
	})
	if err != nil {
		return model.Property{}, err
	}
	l.ws.announce(l.origin, propertyID, KindProperty)
	return saved, nil
}

// Close releases this holder. Close is idempotent.
func (l *PropertyList) Close() {
	l.cancel()
	l.release()
}
