package appclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	json "github.com/goccy/go-json"

	"github.com/g960059/hostkeep/internal/api"
	"github.com/g960059/hostkeep/internal/model"
	"github.com/g960059/hostkeep/internal/reconcile"
)

type Client struct {
	baseURL      string
	client       *http.Client
	unaryTimeout time.Duration
	readRetries  int
	retryBackoff time.Duration
}

const (
	defaultUnaryTimeout = 10 * time.Second
	defaultReadRetries  = 2
	defaultRetryBackoff = 250 * time.Millisecond
)

func New(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return NewWithClient("http://unix", &http.Client{Transport: transport})
}

func NewWithClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		unaryTimeout: defaultUnaryTimeout,
		readRetries:  defaultReadRetries,
		retryBackoff: defaultRetryBackoff,
	}
}

func (c *Client) WithUnaryTimeout(timeout time.Duration) *Client {
	if c == nil {
		return nil
	}
	clone := *c
	clone.unaryTimeout = timeout
	return &clone
}

// WithReadRetries sets how often a failed GET is retried. Writes are never
// retried.
func (c *Client) WithReadRetries(retries int, wait time.Duration) *Client {
	if c == nil {
		return nil
	}
	clone := *c
	if retries < 0 {
		retries = 0
	}
	clone.readRetries = retries
	clone.retryBackoff = wait
	return &clone
}

type RequestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	message := strings.TrimSpace(e.Message)
	if code != "" && message != "" {
		return fmt.Sprintf("%s: %s", code, message)
	}
	if code != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("http %d: %s", e.StatusCode, code)
		}
		return code
	}
	if message != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("http %d: %s", e.StatusCode, message)
		}
		return message
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return "http error"
}

func (e *RequestError) Retryable() bool {
	if e == nil {
		return false
	}
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout {
		return true
	}
	return e.StatusCode >= 500
}

// IsNotFound reports whether err is a daemon-side E_REF_NOT_FOUND.
func IsNotFound(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Code == model.ErrRefNotFound
}

func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var resp api.HealthResponse
	err := c.getJSON(ctx, "/v1/health", &resp)
	return resp, err
}

func (c *Client) ListProperties(ctx context.Context) ([]model.Property, error) {
	var env api.ListEnvelope[api.PropertyResponse]
	if err := c.getJSON(ctx, "/v1/properties", &env); err != nil {
		return nil, err
	}
	return api.Models(env.Items, api.PropertyResponse.Model)
}

func (c *Client) GetProperty(ctx context.Context, propertyID string) (model.Property, error) {
	var env api.ItemEnvelope[api.PropertyResponse]
	if err := c.getJSON(ctx, propertyPath(propertyID), &env); err != nil {
		return model.Property{}, err
	}
	return env.Item.Model()
}

func (c *Client) CreateProperty(ctx context.Context, req api.PropertyRequest) (model.Property, error) {
	var env api.ItemEnvelope[api.PropertyResponse]
	if err := c.sendJSON(ctx, http.MethodPost, "/v1/properties", req, &env); err != nil {
		return model.Property{}, err
	}
	return env.Item.Model()
}

func (c *Client) UpdateProperty(ctx context.Context, propertyID string, req api.PropertyRequest) (model.Property, error) {
	var env api.ItemEnvelope[api.PropertyResponse]
	if err := c.sendJSON(ctx, http.MethodPut, propertyPath(propertyID), req, &env); err != nil {
		return model.Property{}, err
	}
	return env.Item.Model()
}

func (c *Client) DeleteProperty(ctx context.Context, propertyID string) error {
	return c.sendJSON(ctx, http.MethodDelete, propertyPath(propertyID), nil, nil)
}

func (c *Client) ListChecklist(ctx context.Context, propertyID string) ([]model.ChecklistItem, error) {
	return listItems(ctx, c, propertyID, model.KindChecklist, api.ChecklistItemResponse.Model)
}

func (c *Client) CreateChecklistItem(ctx context.Context, propertyID string, req api.ChecklistItemRequest) (model.ChecklistItem, error) {
	return writeItem(ctx, c, http.MethodPost, itemsPath(propertyID, model.KindChecklist), req, api.ChecklistItemResponse.Model)
}

func (c *Client) UpdateChecklistItem(ctx context.Context, propertyID, itemID string, req api.ChecklistItemRequest) (model.ChecklistItem, error) {
	return writeItem(ctx, c, http.MethodPut, itemPath(propertyID, model.KindChecklist, itemID), req, api.ChecklistItemResponse.Model)
}

func (c *Client) DeleteChecklistItem(ctx context.Context, propertyID, itemID string) error {
	return c.sendJSON(ctx, http.MethodDelete, itemPath(propertyID, model.KindChecklist, itemID), nil, nil)
}

// UpdateChecklistPositions persists a reorder as one batch. The daemon applies
// all changes or none.
func (c *Client) UpdateChecklistPositions(ctx context.Context, propertyID string, changes []reconcile.Change) (api.PositionsResponse, error) {
	var resp api.PositionsResponse
	path := itemsPath(propertyID, model.KindChecklist) + "/positions"
	err := c.sendJSON(ctx, http.MethodPost, path, api.PositionsRequest{Changes: changes}, &resp)
	return resp, err
}

func (c *Client) ListInventory(ctx context.Context, propertyID string) ([]model.InventoryItem, error) {
	return listItems(ctx, c, propertyID, model.KindInventory, api.InventoryItemResponse.Model)
}

func (c *Client) CreateInventoryItem(ctx context.Context, propertyID string, req api.InventoryItemRequest) (model.InventoryItem, error) {
	return writeItem(ctx, c, http.MethodPost, itemsPath(propertyID, model.KindInventory), req, api.InventoryItemResponse.Model)
}

func (c *Client) UpdateInventoryItem(ctx context.Context, propertyID, itemID string, req api.InventoryItemRequest) (model.InventoryItem, error) {
	return writeItem(ctx, c, http.MethodPut, itemPath(propertyID, model.KindInventory, itemID), req, api.InventoryItemResponse.Model)
}

func (c *Client) DeleteInventoryItem(ctx context.Context, propertyID, itemID string) error {
	return c.sendJSON(ctx, http.MethodDelete, itemPath(propertyID, model.KindInventory, itemID), nil, nil)
}

func (c *Client) ListContacts(ctx context.Context, propertyID string) ([]model.Contact, error) {
	return listItems(ctx, c, propertyID, model.KindContacts, api.ContactResponse.Model)
}

func (c *Client) CreateContact(ctx context.Context, propertyID string, req api.ContactRequest) (model.Contact, error) {
	return writeItem(ctx, c, http.MethodPost, itemsPath(propertyID, model.KindContacts), req, api.ContactResponse.Model)
}

func (c *Client) UpdateContact(ctx context.Context, propertyID, contactID string, req api.ContactRequest) (model.Contact, error) {
	return writeItem(ctx, c, http.MethodPut, itemPath(propertyID, model.KindContacts, contactID), req, api.ContactResponse.Model)
}

func (c *Client) DeleteContact(ctx context.Context, propertyID, contactID string) error {
	return c.sendJSON(ctx, http.MethodDelete, itemPath(propertyID, model.KindContacts, contactID), nil, nil)
}

func (c *Client) ListManual(ctx context.Context, propertyID string) ([]model.ManualEntry, error) {
	return listItems(ctx, c, propertyID, model.KindManual, api.ManualEntryResponse.Model)
}

func (c *Client) CreateManualEntry(ctx context.Context, propertyID string, req api.ManualEntryRequest) (model.ManualEntry, error) {
	return writeItem(ctx, c, http.MethodPost, itemsPath(propertyID, model.KindManual), req, api.ManualEntryResponse.Model)
}

func (c *Client) UpdateManualEntry(ctx context.Context, propertyID, entryID string, req api.ManualEntryRequest) (model.ManualEntry, error) {
	return writeItem(ctx, c, http.MethodPut, itemPath(propertyID, model.KindManual, entryID), req, api.ManualEntryResponse.Model)
}

func (c *Client) DeleteManualEntry(ctx context.Context, propertyID, entryID string) error {
	return c.sendJSON(ctx, http.MethodDelete, itemPath(propertyID, model.KindManual, entryID), nil, nil)
}

func listItems[R any, M any](ctx context.Context, c *Client, propertyID string, kind model.ItemKind, convert func(R) (M, error)) ([]M, error) {
	var env api.ListEnvelope[R]
	if err := c.getJSON(ctx, itemsPath(propertyID, kind), &env); err != nil {
		return nil, err
	}
	return api.Models(env.Items, convert)
}

func writeItem[R any, M any](ctx context.Context, c *Client, method, path string, req any, convert func(R) (M, error)) (M, error) {
	var env api.ItemEnvelope[R]
	if err := c.sendJSON(ctx, method, path, req, &env); err != nil {
		var zero M
		return zero, err
	}
	return convert(env.Item)
}

func propertyPath(propertyID string) string {
	return "/v1/properties/" + url.PathEscape(strings.TrimSpace(propertyID))
}

func itemsPath(propertyID string, kind model.ItemKind) string {
	return propertyPath(propertyID) + "/" + string(kind)
}

func itemPath(propertyID string, kind model.ItemKind, itemID string) string {
	return itemsPath(propertyID, kind) + "/" + url.PathEscape(strings.TrimSpace(itemID))
}

// getJSON retries transport failures and retryable statuses with a constant
// backoff. Client errors and context cancellation end the loop at once.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	var payload []byte
	op := func() error {
		body, err := c.request(ctx, http.MethodGet, path, nil)
		if err != nil {
			var reqErr *RequestError
			if errors.As(err, &reqErr) && !reqErr.Retryable() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		payload = body
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryBackoff), uint64(c.readRetries)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, method, path string, req, out any) error {
	body, err := c.request(ctx, method, path, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	u := c.baseURL + path
	reqCtx := ctx
	if c.unaryTimeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > c.unaryTimeout {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.unaryTimeout)
			defer cancel()
		}
	}
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var er api.ErrorResponse
		if err := json.Unmarshal(payload, &er); err == nil && er.Error.Code != "" {
			return nil, &RequestError{
				StatusCode: resp.StatusCode,
				Code:       er.Error.Code,
				Message:    er.Error.Message,
			}
		}
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:    strings.TrimSpace(string(payload)),
		}
	}
	return payload, nil
}
