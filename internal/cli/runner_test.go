package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/g960059/hostkeep/internal/api"
	"github.com/g960059/hostkeep/internal/appclient"
	"github.com/g960059/hostkeep/internal/config"
	"github.com/g960059/hostkeep/internal/daemon"
	"github.com/g960059/hostkeep/internal/db"
	"github.com/g960059/hostkeep/internal/reconcile"
	"github.com/g960059/hostkeep/internal/testutil"
)

type harness struct {
	t      *testing.T
	ctx    context.Context
	store  *db.Store
	runner *Runner
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, ctx := testutil.NewStore(t)
	srv := httptest.NewServer(daemon.NewServerWithDeps(config.DefaultConfig(), store, nil).Handler())
	t.Cleanup(srv.Close)
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &harness{
		t:      t,
		ctx:    ctx,
		store:  store,
		runner: NewRunnerWithClient(appclient.NewWithClient(srv.URL, srv.Client()), out, errOut),
		out:    out,
		errOut: errOut,
	}
}

func (h *harness) run(args ...string) int {
	h.t.Helper()
	h.out.Reset()
	h.errOut.Reset()
	return h.runner.Run(h.ctx, args)
}

func TestUsageErrors(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: nil},
		{name: "unknown command", args: []string{"garage"}},
		{name: "missing property id", args: []string{"checklist", "list"}},
		{name: "extra argument", args: []string{"property", "remove", "a", "b"}},
		{name: "unknown flag", args: []string{"property", "list", "--bogus"}},
		{name: "socket without value", args: []string{"--socket"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if code := h.run(tc.args...); code != 2 {
				t.Fatalf("expected exit 2, got %d (stderr=%q)", code, h.errOut.String())
			}
		})
	}
}

func TestPropertyCommands(t *testing.T) {
	h := newHarness(t)
	if code := h.run("property", "add", "--name", "Cabin", "--address", "1 Lake Rd"); code != 0 {
		t.Fatalf("property add: exit %d stderr=%q", code, h.errOut.String())
	}
	if code := h.run("property", "list", "--json"); code != 0 {
		t.Fatalf("property list: exit %d", code)
	}
	var props []api.PropertyResponse
	if err := json.Unmarshal(h.out.Bytes(), &props); err != nil {
		t.Fatalf("decode property list: %v (%q)", err, h.out.String())
	}
	if len(props) != 1 || props[0].Address != "1 Lake Rd" {
		t.Fatalf("unexpected properties: %+v", props)
	}

	id := props[0].PropertyID
	if code := h.run("property", "update", id, "--name", "Lake cabin", "--cover", "https://img/c.jpg"); code != 0 {
		t.Fatalf("property update: exit %d stderr=%q", code, h.errOut.String())
	}
	stored, err := h.store.GetProperty(h.ctx, id)
	if err != nil {
		t.Fatalf("get property: %v", err)
	}
	if stored.Name != "Lake cabin" || stored.CoverPhotoURL != "https://img/c.jpg" {
		t.Fatalf("unexpected stored property: %+v", stored)
	}

	if code := h.run("property", "add", "--name", "Lake cabin"); code != 1 {
		t.Fatalf("duplicate add: expected exit 1, got %d", code)
	}
	if !strings.Contains(h.errOut.String(), "E_CONFLICT") {
		t.Fatalf("expected conflict code, got %q", h.errOut.String())
	}

	if code := h.run("property", "remove", id); code != 0 {
		t.Fatalf("property remove: exit %d", code)
	}
	if code := h.run("checklist", "list", id); code != 1 || !strings.Contains(h.errOut.String(), "E_REF_NOT_FOUND") {
		t.Fatalf("expected not found after remove, exit=%d stderr=%q", code, h.errOut.String())
	}
}

func TestChecklistCommands(t *testing.T) {
	h := newHarness(t)
	p := testutil.SeedProperty(t, h.store, h.ctx, "Cabin", "a", "b", "c")

	if code := h.run("checklist", "add", p.PropertyID, "--title", "d"); code != 0 {
		t.Fatalf("checklist add: exit %d stderr=%q", code, h.errOut.String())
	}
	items, err := h.store.ListChecklist(h.ctx, p.PropertyID)
	if err != nil || len(items) != 4 {
		t.Fatalf("expected 4 items, got %+v (%v)", items, err)
	}

	if code := h.run("checklist", "move", p.PropertyID, items[3].ItemID, "--to", "0"); code != 0 {
		t.Fatalf("checklist move: exit %d stderr=%q", code, h.errOut.String())
	}
	if lines := strings.Count(h.out.String(), "\n"); lines != 4 {
		t.Fatalf("expected 4 position changes, got %q", h.out.String())
	}
	if code := h.run("checklist", "toggle", p.PropertyID, items[0].ItemID); code != 0 {
		t.Fatalf("checklist toggle: exit %d stderr=%q", code, h.errOut.String())
	}

	if code := h.run("checklist", "list", p.PropertyID); code != 0 {
		t.Fatalf("checklist list: exit %d", code)
	}
	want := "1\t[ ]\td\t" + items[3].ItemID + "\n" +
		"2\t[x]\ta\t" + items[0].ItemID + "\n" +
		"3\t[ ]\tb\t" + items[1].ItemID + "\n" +
		"4\t[ ]\tc\t" + items[2].ItemID + "\n"
	if h.out.String() != want {
		t.Fatalf("unexpected checklist output:\n%s\nwant:\n%s", h.out.String(), want)
	}

	if code := h.run("checklist", "move", p.PropertyID, items[0].ItemID, "--to", "9"); code != 1 {
		t.Fatalf("out of range move: expected exit 1, got %d", code)
	}
	if !strings.Contains(h.errOut.String(), reconcile.ErrInvalidReorder.Error()) {
		t.Fatalf("expected invalid reorder error, got %q", h.errOut.String())
	}

	if code := h.run("checklist", "remove", p.PropertyID, items[1].ItemID); code != 0 {
		t.Fatalf("checklist remove: exit %d", code)
	}
	if code := h.run("checklist", "normalize", p.PropertyID); code != 0 {
		t.Fatalf("checklist normalize: exit %d", code)
	}
	if !strings.Contains(h.out.String(), items[2].ItemID+"\t3") {
		t.Fatalf("expected c renumbered to 3, got %q", h.out.String())
	}
	if code := h.run("checklist", "normalize", p.PropertyID); code != 0 || h.out.String() != "no position changes\n" {
		t.Fatalf("second normalize should be a no-op, got exit=%d out=%q", code, h.out.String())
	}
}

func TestContactInventoryAndManualCommands(t *testing.T) {
	h := newHarness(t)
	p := testutil.SeedProperty(t, h.store, h.ctx, "Chalet")
	c := testutil.SeedContact(t, h.store, h.ctx, p.PropertyID, "Ana", "cleaner")

	if code := h.run("contact", "update", p.PropertyID, c.ContactID, "--name", "Ana", "--phone", "555-0100"); code != 0 {
		t.Fatalf("contact update: exit %d stderr=%q", code, h.errOut.String())
	}
	if code := h.run("contact", "list", p.PropertyID); code != 0 || !strings.Contains(h.out.String(), "555-0100") {
		t.Fatalf("contact list: exit %d out=%q", code, h.out.String())
	}

	if code := h.run("inventory", "set", p.PropertyID, "--name", "Towels", "--qty", "6"); code != 0 {
		t.Fatalf("inventory set: exit %d stderr=%q", code, h.errOut.String())
	}
	if code := h.run("inventory", "set", p.PropertyID, "--name", "Soap", "--qty", "-2"); code != 1 {
		t.Fatalf("negative quantity: expected exit 1, got %d", code)
	}

	if code := h.run("manual", "add", p.PropertyID, "--section", "Wifi", "--body", "guest"); code != 0 {
		t.Fatalf("manual add: exit %d stderr=%q", code, h.errOut.String())
	}
	if code := h.run("manual", "list", p.PropertyID); code != 0 || h.out.String() != "1\tWifi\tguest\n" {
		t.Fatalf("manual list: exit %d out=%q", code, h.out.String())
	}

	if code := h.run("health"); code != 0 || h.out.String() != "ok\tproperties=1\n" {
		t.Fatalf("health: exit %d out=%q", code, h.out.String())
	}
}
