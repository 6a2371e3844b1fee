package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/g960059/hostkeep/internal/api"
	"github.com/g960059/hostkeep/internal/appclient"
	"github.com/g960059/hostkeep/internal/config"
	"github.com/g960059/hostkeep/internal/model"
	"github.com/g960059/hostkeep/internal/reconcile"
	"github.com/g960059/hostkeep/internal/workspace"
)

type Runner struct {
	socketPath string
	client     *appclient.Client
	settings   *config.Config
	logger     *zap.Logger
	out        io.Writer
	errOut     io.Writer
}

func NewRunner(socketPath string, out, errOut io.Writer) *Runner {
	r := NewRunnerWithClient(appclient.New(socketPath), out, errOut)
	r.socketPath = socketPath
	return r
}

func NewRunnerWithClient(client *appclient.Client, out, errOut io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Runner{
		client: client,
		logger: zap.NewNop(),
		out:    out,
		errOut: errOut,
	}
}

// WithConfig applies the timeout and retry settings of cfg to the client,
// including one created later for a --socket override.
func (r *Runner) WithConfig(cfg config.Config) *Runner {
	r.settings = &cfg
	r.client = r.configure(r.client)
	return r
}

func (r *Runner) configure(c *appclient.Client) *appclient.Client {
	if r.settings == nil {
		return c
	}
	return c.WithUnaryTimeout(r.settings.UnaryTimeout).
		WithReadRetries(r.settings.ReadRetries, r.settings.RetryBackoff)
}

// WithLogger sets the logger handed to the sync engine for list edits.
func (r *Runner) WithLogger(logger *zap.Logger) *Runner {
	if logger != nil {
		r.logger = logger
	}
	return r
}

func (r *Runner) Run(ctx context.Context, args []string) int {
	socketPath, rest, err := parseGlobalArgs(args)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if socketPath != "" && r.socketPath != "" && socketPath != r.socketPath {
		r.client = r.configure(appclient.New(socketPath))
		r.socketPath = socketPath
	}
	if len(rest) == 0 {
		r.printUsage()
		return 2
	}
	switch rest[0] {
	case "health":
		return r.runHealth(ctx, rest[1:])
	case "property":
		return r.runProperty(ctx, rest[1:])
	case "checklist":
		return r.runChecklist(ctx, rest[1:])
	case "inventory":
		return r.runInventory(ctx, rest[1:])
	case "contact":
		return r.runContact(ctx, rest[1:])
	case "manual":
		return r.runManual(ctx, rest[1:])
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown command: %s\n", rest[0])
		r.printUsage()
		return 2
	}
}

func parseGlobalArgs(args []string) (string, []string, error) {
	socket := ""
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "--socket" {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--socket requires value")
			}
			socket = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	return socket, rest, nil
}

func (r *Runner) runHealth(ctx context.Context, args []string) int {
	fs := newFlagSet("health")
	jsonOut := fs.Bool("json", false, "output JSON")
	if !r.parse(fs, args) {
		return 2
	}
	health, err := r.client.Health(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeJSON(health)
	}
	_, _ = fmt.Fprintf(r.out, "%s\tproperties=%d\n", health.Status, health.Properties)
	return 0
}

func (r *Runner) runProperty(ctx context.Context, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(r.errOut, "usage: hostkeep property <list|add|update|remove>")
		return 2
	}
	switch args[0] {
	case "list":
		fs := newFlagSet("property list")
		jsonOut := fs.Bool("json", false, "output JSON")
		if !r.parse(fs, args[1:]) {
			return 2
		}
		props, err := r.client.ListProperties(ctx)
		if err != nil {
			return r.handleErr(err)
		}
		if *jsonOut {
			return r.writeJSON(api.Responses(props, api.FromProperty))
		}
		for _, p := range props {
			_, _ = fmt.Fprintf(r.out, "%s\t%s\t%s\n", p.PropertyID, p.Name, p.Address)
		}
		return 0
	case "add", "update":
		fs := newFlagSet("property " + args[0])
		name := fs.String("name", "", "property name")
		address := fs.String("address", "", "street address")
		cover := fs.String("cover", "", "cover photo URL")
		want := 0
		if args[0] == "update" {
			want = 1
		}
		ids, ok := r.parsePositional(fs, args[1:], want)
		if !ok {
			return 2
		}
		req := api.PropertyRequest{Name: *name, Address: *address, CoverPhotoURL: *cover}
		if args[0] == "add" {
			p, err := r.client.CreateProperty(ctx, req)
			if err != nil {
				return r.handleErr(err)
			}
			_, _ = fmt.Fprintf(r.out, "added property %s (%s)\n", p.Name, p.PropertyID)
			return 0
		}
		list := workspace.New(r.client, r.logger).OpenPropertyList(ctx)
		defer list.Close()
		list.Wait()
		if err := list.State().Err; err != nil {
			return r.handleErr(err)
		}
		p, err := list.UpdateProperty(ctx, ids[0], req)
		if err != nil {
			return r.handleErr(err)
		}
		_, _ = fmt.Fprintf(r.out, "updated property %s\n", p.PropertyID)
		return 0
	case "remove":
		ids, ok := r.parsePositional(newFlagSet("property remove"), args[1:], 1)
		if !ok {
			return 2
		}
		if err := r.client.DeleteProperty(ctx, ids[0]); err != nil {
			return r.handleErr(err)
		}
		_, _ = fmt.Fprintf(r.out, "removed property %s\n", ids[0])
		return 0
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown property command: %s\n", args[0])
		return 2
	}
}

func (r *Runner) runChecklist(ctx context.Context, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(r.errOut, "usage: hostkeep checklist <list|add|toggle|rename|remove|move|normalize> <property-id> ...")
		return 2
	}
	switch args[0] {
	case "list":
		fs := newFlagSet("checklist list")
		jsonOut := fs.Bool("json", false, "output JSON")
		ids, ok := r.parsePositional(fs, args[1:], 1)
		if !ok {
			return 2
		}
		items, err := r.client.ListChecklist(ctx, ids[0])
		if err != nil {
			return r.handleErr(err)
		}
		if *jsonOut {
			return r.writeJSON(api.Responses(items, api.FromChecklistItem))
		}
		for _, it := range items {
			mark := " "
			if it.Done {
				mark = "x"
			}
			_, _ = fmt.Fprintf(r.out, "%d\t[%s]\t%s\t%s\n", it.Position, mark, it.Title, it.ItemID)
		}
		return 0
	case "add":
		fs := newFlagSet("checklist add")
		title := fs.String("title", "", "item title")
		ids, ok := r.parsePositional(fs, args[1:], 1)
		if !ok {
			return 2
		}
		return r.withView(ctx, ids[0], func(v *workspace.PropertyView) error {
			it, err := v.AddChecklistItem(ctx, *title)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(r.out, "added %s at position %d\n", it.ItemID, it.Position)
			return nil
		})
	case "toggle":
		ids, ok := r.parsePositional(newFlagSet("checklist toggle"), args[1:], 2)
		if !ok {
			return 2
		}
		return r.withView(ctx, ids[0], func(v *workspace.PropertyView) error {
			it, err := v.ToggleChecklistItem(ctx, ids[1])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(r.out, "%s done=%t\n", it.ItemID, it.Done)
			return nil
		})
	case "rename":
		fs := newFlagSet("checklist rename")
		title := fs.String("title", "", "new title")
		ids, ok := r.parsePositional(fs, args[1:], 2)
		if !ok {
			return 2
		}
		return r.withView(ctx, ids[0], func(v *workspace.PropertyView) error {
			it, err := v.RenameChecklistItem(ctx, ids[1], *title)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(r.out, "renamed %s to %q\n", it.ItemID, it.Title)
			return nil
		})
	case "remove":
		ids, ok := r.parsePositional(newFlagSet("checklist remove"), args[1:], 2)
		if !ok {
			return 2
		}
		return r.withView(ctx, ids[0], func(v *workspace.PropertyView) error {
			if err := v.DeleteChecklistItem(ctx, ids[1]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(r.out, "removed %s\n", ids[1])
			return nil
		})
	case "move":
		fs := newFlagSet("checklist move")
		to := fs.Int("to", 0, "target index, 0 is the top of the list")
		ids, ok := r.parsePositional(fs, args[1:], 2)
		if !ok {
			return 2
		}
		return r.withView(ctx, ids[0], func(v *workspace.PropertyView) error {
			changes, err := v.ReorderChecklist(ctx, ids[1], *to)
			if err != nil {
				return err
			}
			r.printChanges(changes)
			return nil
		})
	case "normalize":
		ids, ok := r.parsePositional(newFlagSet("checklist normalize"), args[1:], 1)
		if !ok {
			return 2
		}
		items, err := r.client.ListChecklist(ctx, ids[0])
		if err != nil {
			return r.handleErr(err)
		}
		res := reconcile.Normalize(items)
		if len(res.Changes) > 0 {
			if _, err := r.client.UpdateChecklistPositions(ctx, ids[0], res.Changes); err != nil {
				return r.handleErr(err)
			}
		}
		r.printChanges(res.Changes)
		return 0
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown checklist command: %s\n", args[0])
		return 2
	}
}

func (r *Runner) runInventory(ctx context.Context, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(r.errOut, "usage: hostkeep inventory <list|set|remove> <property-id> ...")
		return 2
	}
	switch args[0] {
	case "list":
		fs := newFlagSet("inventory list")
		jsonOut := fs.Bool("json", false, "output JSON")
		ids, ok := r.parsePositional(fs, args[1:], 1)
		if !ok {
			return 2
		}
		items, err := r.client.ListInventory(ctx, ids[0])
		if err != nil {
			return r.handleErr(err)
		}
		if *jsonOut {
			return r.writeJSON(api.Responses(items, api.FromInventoryItem))
		}
		for _, it := range items {
			_, _ = fmt.Fprintf(r.out, "%s\t%d\t%s\t%s\n", it.Name, it.Quantity, it.Location, it.ItemID)
		}
		return 0
	case "set":
		fs := newFlagSet("inventory set")
		id := fs.String("id", "", "existing item id; empty creates a new item")
		name := fs.String("name", "", "item name")
		qty := fs.Int("qty", 0, "quantity on hand")
		location := fs.String("location", "", "storage location")
		ids, ok := r.parsePositional(fs, args[1:], 1)
		if !ok {
			return 2
		}
		req := api.InventoryItemRequest{Name: *name, Quantity: *qty, Location: *location}
		var (
			it  model.InventoryItem
			err error
		)
		if strings.TrimSpace(*id) == "" {
			it, err = r.client.CreateInventoryItem(ctx, ids[0], req)
		} else {
			it, err = r.client.UpdateInventoryItem(ctx, ids[0], *id, req)
		}
		if err != nil {
			return r.handleErr(err)
		}
		_, _ = fmt.Fprintf(r.out, "%s\t%d\t%s\n", it.Name, it.Quantity, it.ItemID)
		return 0
	case "remove":
		ids, ok := r.parsePositional(newFlagSet("inventory remove"), args[1:], 2)
		if !ok {
			return 2
		}
		if err := r.client.DeleteInventoryItem(ctx, ids[0], ids[1]); err != nil {
			return r.handleErr(err)
		}
		_, _ = fmt.Fprintf(r.out, "removed %s\n", ids[1])
		return 0
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown inventory command: %s\n", args[0])
		return 2
	}
}

func (r *Runner) runContact(ctx context.Context, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(r.errOut, "usage: hostkeep contact <list|add|update|remove> <property-id> ...")
		return 2
	}
	switch args[0] {
	case "list":
		fs := newFlagSet("contact list")
		jsonOut := fs.Bool("json", false, "output JSON")
		ids, ok := r.parsePositional(fs, args[1:], 1)
		if !ok {
			return 2
		}
		contacts, err := r.client.ListContacts(ctx, ids[0])
		if err != nil {
			return r.handleErr(err)
		}
		if *jsonOut {
			return r.writeJSON(api.Responses(contacts, api.FromContact))
		}
		for _, c := range contacts {
			_, _ = fmt.Fprintf(r.out, "%s\t%s\t%s\t%s\t%s\n", c.Name, c.Role, c.Phone, c.Email, c.ContactID)
		}
		return 0
	case "add", "update":
		fs := newFlagSet("contact " + args[0])
		name := fs.String("name", "", "contact name")
		role := fs.String("role", "", "role, e.g. cleaner")
		phone := fs.String("phone", "", "phone number")
		email := fs.String("email", "", "email address")
		want := 1
		if args[0] == "update" {
			want = 2
		}
		ids, ok := r.parsePositional(fs, args[1:], want)
		if !ok {
			return 2
		}
		req := api.ContactRequest{Name: *name, Role: *role, Phone: *phone, Email: *email}
		if args[0] == "add" {
			c, err := r.client.CreateContact(ctx, ids[0], req)
			if err != nil {
				return r.handleErr(err)
			}
			_, _ = fmt.Fprintf(r.out, "added contact %s (%s)\n", c.Name, c.ContactID)
			return 0
		}
		return r.withView(ctx, ids[0], func(v *workspace.PropertyView) error {
			c, err := v.UpdateContact(ctx, ids[1], req)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(r.out, "updated contact %s\n", c.ContactID)
			return nil
		})
	case "remove":
		ids, ok := r.parsePositional(newFlagSet("contact remove"), args[1:], 2)
		if !ok {
			return 2
		}
		if err := r.client.DeleteContact(ctx, ids[0], ids[1]); err != nil {
			return r.handleErr(err)
		}
		_, _ = fmt.Fprintf(r.out, "removed %s\n", ids[1])
		return 0
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown contact command: %s\n", args[0])
		return 2
	}
}

func (r *Runner) runManual(ctx context.Context, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(r.errOut, "usage: hostkeep manual <list|add|remove> <property-id> ...")
		return 2
	}
	switch args[0] {
	case "list":
		fs := newFlagSet("manual list")
		jsonOut := fs.Bool("json", false, "output JSON")
		ids, ok := r.parsePositional(fs, args[1:], 1)
		if !ok {
			return 2
		}
		entries, err := r.client.ListManual(ctx, ids[0])
		if err != nil {
			return r.handleErr(err)
		}
		if *jsonOut {
			return r.writeJSON(api.Responses(entries, api.FromManualEntry))
		}
		for _, e := range entries {
			_, _ = fmt.Fprintf(r.out, "%d\t%s\t%s\n", e.Position, e.Section, e.Body)
		}
		return 0
	case "add":
		fs := newFlagSet("manual add")
		section := fs.String("section", "", "section heading")
		body := fs.String("body", "", "section text")
		ids, ok := r.parsePositional(fs, args[1:], 1)
		if !ok {
			return 2
		}
		e, err := r.client.CreateManualEntry(ctx, ids[0], api.ManualEntryRequest{Section: *section, Body: *body})
		if err != nil {
			return r.handleErr(err)
		}
		_, _ = fmt.Fprintf(r.out, "added %s at position %d\n", e.EntryID, e.Position)
		return 0
	case "remove":
		ids, ok := r.parsePositional(newFlagSet("manual remove"), args[1:], 2)
		if !ok {
			return 2
		}
		if err := r.client.DeleteManualEntry(ctx, ids[0], ids[1]); err != nil {
			return r.handleErr(err)
		}
		_, _ = fmt.Fprintf(r.out, "removed %s\n", ids[1])
		return 0
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown manual command: %s\n", args[0])
		return 2
	}
}

// withView loads propertyID into a fresh property view, runs fn against it
// and closes the view.
func (r *Runner) withView(ctx context.Context, propertyID string, fn func(*workspace.PropertyView) error) int {
	ws := workspace.New(r.client, r.logger)
	view := ws.OpenPropertyView(ctx)
	defer view.Close()
	ws.Select(propertyID)
	view.Wait()
	for _, err := range []error{
		view.Checklist.State().Err,
		view.Contacts.State().Err,
	} {
		if err != nil {
			return r.handleErr(err)
		}
	}
	if err := fn(view); err != nil {
		return r.handleErr(err)
	}
	return 0
}

func (r *Runner) printChanges(changes []reconcile.Change) {
	if len(changes) == 0 {
		_, _ = fmt.Fprintln(r.out, "no position changes")
		return
	}
	for _, c := range changes {
		_, _ = fmt.Fprintf(r.out, "%s\t%d\n", c.ID, c.Position)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (r *Runner) parse(fs *flag.FlagSet, args []string) bool {
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return false
	}
	return true
}

// parsePositional accepts positional ids before or after the flags and
// requires exactly want of them.
func (r *Runner) parsePositional(fs *flag.FlagSet, args []string, want int) ([]string, bool) {
	var positional []string
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		positional = append(positional, args[0])
		args = args[1:]
	}
	if !r.parse(fs, args) {
		return nil, false
	}
	positional = append(positional, fs.Args()...)
	if len(positional) != want {
		_, _ = fmt.Fprintf(r.errOut, "error: %s expects %d argument(s), got %d\n", fs.Name(), want, len(positional))
		return nil, false
	}
	for _, id := range positional {
		if strings.TrimSpace(id) == "" {
			_, _ = fmt.Fprintf(r.errOut, "error: %s: empty id\n", fs.Name())
			return nil, false
		}
	}
	return positional, true
}

func (r *Runner) writeJSON(v any) int {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return r.handleErr(err)
	}
	return 0
}

func (r *Runner) handleErr(err error) int {
	var reqErr *appclient.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode >= 500 {
		r.logger.Warn("daemon request failed", zap.Int("status", reqErr.StatusCode), zap.Error(err))
	}
	_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
	return 1
}

func (r *Runner) printUsage() {
	_, _ = fmt.Fprintln(r.errOut, "usage: hostkeep [--socket <path>] <health|property|checklist|inventory|contact|manual> ...")
}
