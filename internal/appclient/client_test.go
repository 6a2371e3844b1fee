package appclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/g960059/hostkeep/internal/api"
	"github.com/g960059/hostkeep/internal/config"
	"github.com/g960059/hostkeep/internal/daemon"
	"github.com/g960059/hostkeep/internal/model"
	"github.com/g960059/hostkeep/internal/reconcile"
	"github.com/g960059/hostkeep/internal/testutil"
)

func TestGetRetriesRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/properties", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-02-13T00:00:00Z","error":{"code":"E_PRECONDITION_FAILED","message":"boom"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-02-13T00:00:00Z","items":[{"property_id":"p1","name":"Cabin","created_at":"2026-02-13T00:00:00Z","updated_at":"2026-02-13T00:00:00Z"}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewWithClient(srv.URL, srv.Client()).WithReadRetries(2, time.Millisecond)
	props, err := client.ListProperties(context.Background())
	if err != nil {
		t.Fatalf("list properties: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls", calls.Load())
	}
	if len(props) != 1 || props[0].Name != "Cabin" {
		t.Fatalf("unexpected properties: %+v", props)
	}
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/properties/missing", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-02-13T00:00:00Z","error":{"code":"E_REF_NOT_FOUND","message":"property not found"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewWithClient(srv.URL, srv.Client()).WithReadRetries(3, time.Millisecond)
	_, err := client.GetProperty(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Retryable() {
		t.Fatalf("expected non-retryable RequestError, got %#v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single call, got %d", calls.Load())
	}
}

func TestGetGivesUpAfterReadRetries(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewWithClient(srv.URL, srv.Client()).WithReadRetries(2, time.Millisecond)
	_, err := client.Health(context.Background())
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 RequestError, got %v", err)
	}
	if reqErr.Code != "HTTP_503" {
		t.Fatalf("expected synthesized code, got %q", reqErr.Code)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d", calls.Load())
	}
}

func TestWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/properties", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewWithClient(srv.URL, srv.Client()).WithReadRetries(3, time.Millisecond)
	if _, err := client.CreateProperty(context.Background(), api.PropertyRequest{Name: "x"}); err == nil {
		t.Fatalf("expected create to fail")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single POST, got %d", calls.Load())
	}
}

func TestUnaryTimeoutApplies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewWithClient(srv.URL, srv.Client()).WithUnaryTimeout(30 * time.Millisecond).WithReadRetries(0, 0)
	started := time.Now()
	if _, err := client.Health(context.Background()); err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("unary timeout not applied, took %s", elapsed)
	}
}

func TestClientAgainstDaemonHandler(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	srv := httptest.NewServer(daemon.NewServerWithDeps(config.DefaultConfig(), store, nil).Handler())
	defer srv.Close()
	client := NewWithClient(srv.URL, srv.Client())

	p, err := client.CreateProperty(ctx, api.PropertyRequest{Name: "Cabin"})
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	for _, title := range []string{"a", "b", "c"} {
		if _, err := client.CreateChecklistItem(ctx, p.PropertyID, api.ChecklistItemRequest{Title: title}); err != nil {
			t.Fatalf("create item %s: %v", title, err)
		}
	}
	items, err := client.ListChecklist(ctx, p.PropertyID)
	if err != nil {
		t.Fatalf("list checklist: %v", err)
	}
	res, err := reconcile.Reorder(items, items[0].ItemID, 2)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	resp, err := client.UpdateChecklistPositions(ctx, p.PropertyID, res.Changes)
	if err != nil {
		t.Fatalf("update positions: %v", err)
	}
	if resp.Updated != len(res.Changes) {
		t.Fatalf("expected %d updates, got %d", len(res.Changes), resp.Updated)
	}
	items, err = client.ListChecklist(ctx, p.PropertyID)
	if err != nil {
		t.Fatalf("list checklist: %v", err)
	}
	if items[2].Title != "a" {
		t.Fatalf("expected a last, got %+v", items)
	}

	contact, err := client.CreateContact(ctx, p.PropertyID, api.ContactRequest{Name: "Ana", Role: "cleaner"})
	if err != nil {
		t.Fatalf("create contact: %v", err)
	}
	contact, err = client.UpdateContact(ctx, p.PropertyID, contact.ContactID, api.ContactRequest{Name: "Ana", Role: "cleaner", Phone: "555-0100"})
	if err != nil || contact.Phone != "555-0100" {
		t.Fatalf("update contact: %+v (%v)", contact, err)
	}

	if err := client.DeleteProperty(ctx, p.PropertyID); err != nil {
		t.Fatalf("delete property: %v", err)
	}
	if _, err := client.ListContacts(ctx, p.PropertyID); !IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	var reqErr *RequestError
	_, err = client.CreateChecklistItem(ctx, p.PropertyID, api.ChecklistItemRequest{Title: "x"})
	if !errors.As(err, &reqErr) || reqErr.Code != model.ErrRefNotFound {
		t.Fatalf("expected %s, got %v", model.ErrRefNotFound, err)
	}
}
