package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

// Error is a failure reported by the remote API: a non-2xx status or a
// well-formed response with success=false. Callers inspect Msg to recognize
// benign conditions (e.g. removing a line that is already gone).
type Error struct {
	StatusCode int
	Msg        string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("api: %s (status %d)", e.Msg, e.StatusCode)
	}
	return fmt.Sprintf("api: request failed with status %d", e.StatusCode)
}

// TokenProvider supplies the current bearer token, or "" when the session is
// unauthenticated. Token storage itself lives outside this package.
type TokenProvider func() string

type Config struct {
	BaseURL string
	Token   TokenProvider
	Timeout time.Duration
}

// Client talks JSON over HTTP to the remote cart and product endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      TokenProvider
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	token := cfg.Token
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		token:      token,
	}
}

// GetCart fetches the authenticated user's server cart.
func (c *Client) GetCart(ctx context.Context) (*Cart, error) {
	var resp cartResponse
	if err := c.do(ctx, http.MethodGet, "/cart", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Cart == nil {
		return &Cart{}, nil
	}
	return resp.Cart, nil
}

// SyncCart submits a staged guest cart to the bulk-sync endpoint and returns
// the resulting server cart.
func (c *Client) SyncCart(ctx context.Context, entries []SyncEntry) (*Cart, error) {
	var resp cartResponse
	if err := c.do(ctx, http.MethodPost, "/cart/sync", entries, &resp); err != nil {
		return nil, err
	}
	if resp.Cart == nil {
		return &Cart{}, nil
	}
	return resp.Cart, nil
}

// AddToCart adds or replaces a line server-side with the given quantity.
// variantID may be empty for products without variants.
func (c *Client) AddToCart(ctx context.Context, productID string, quantity int, variantID string) error {
	body := map[string]any{
		"productId": productID,
		"quantity":  quantity,
		"variantId": nullable(variantID),
	}
	var resp statusResponse
	return c.do(ctx, http.MethodPost, "/cart/add", body, &resp)
}

// RemoveFromCart removes a line server-side.
func (c *Client) RemoveFromCart(ctx context.Context, productID, variantID string) error {
	body := map[string]any{
		"productId": productID,
		"variantId": nullable(variantID),
	}
	var resp statusResponse
	return c.do(ctx, http.MethodPost, "/cart/remove", body, &resp)
}

// AdjustQuantity asks the server to move a line's quantity by delta in the
// given direction. The authoritative result must be re-fetched afterwards.
func (c *Client) AdjustQuantity(ctx context.Context, productID, variantID string, delta int, action AdjustAction) error {
	body := map[string]any{
		"productId": productID,
		"variantId": nullable(variantID),
		"quantity":  delta,
		"action":    action,
	}
	var resp statusResponse
	return c.do(ctx, http.MethodPost, "/cart/quantity", body, &resp)
}

// ClearCart empties the server cart.
func (c *Client) ClearCart(ctx context.Context) error {
	var resp statusResponse
	return c.do(ctx, http.MethodPost, "/cart/clear", nil, &resp)
}

// GetProductByID fetches the full product detail document. Unauthenticated.
func (c *Client) GetProductByID(ctx context.Context, id string) (*Product, error) {
	var resp productResponse
	if err := c.do(ctx, http.MethodGet, "/product/"+id, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Product == nil {
		return nil, &Error{StatusCode: http.StatusNotFound, Msg: "product not found"}
	}
	return resp.Product, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if requestID, err := uuid.NewV4(); err == nil {
		req.Header.Set("X-Request-ID", requestID.String())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	// Error bodies still follow the {success, msg} envelope; surface the msg
	// so callers can distinguish benign failures.
	var envelope statusResponse
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &envelope); err != nil {
			envelope = statusResponse{}
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("api request rejected")
		return &Error{StatusCode: resp.StatusCode, Msg: envelope.Msg}
	}
	if len(payload) > 0 && !envelope.Success {
		return &Error{StatusCode: resp.StatusCode, Msg: envelope.Msg}
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}

// nullable maps an empty variant id to JSON null, which is what the cart
// endpoints expect for products without variants.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// IsNotFound reports whether err is an API error with a 404 status.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
