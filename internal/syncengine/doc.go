// Package syncengine keeps a view's copy of a remote collection in step with
// the scope the view is looking at.
//
// A Loader is bound to one resource kind and one view. Every call to Load names
// the scope key the view currently shows; the loader fetches at most once per
// distinct key, never runs two fetches for the same key at the same time, and
// only publishes a result if it still belongs to the key the view is bound to
// and the view is still mounted. The last key passed to Load always decides
// the final published state, whatever order the fetches complete in.
//
// The zero value of the key type means "nothing selected": the loader
// publishes an idle state and fetches nothing.
//
// Edits go through a Mutator: the new value is published immediately, the
// remote write runs, and on failure the previous value is published again
// before the error is returned.
//
//	loader := syncengine.NewLoader("checklist", fetchChecklist, syncengine.WithLogger(log))
//	cancel := loader.Subscribe(render)
//	defer cancel()
//	loader.Load(ctx, propertyID)
//	...
//	_, err := loader.Mutate(ctx, markDone(itemID), saveChecklistItem)
package syncengine
