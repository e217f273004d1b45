// Package rest wraps the JCR application's request/response collaborators:
// the membership/permission check and the payment provider's intent
// endpoint. Both speak the app-wide convention of a {"data": ...} payload
// on success and an HTTP status plus {"error": "..."} body on failure.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"union-live/internal/common/logger"
)

// APIError is a non-2xx collaborator response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type Client struct {
	base  string
	http  *http.Client
	token string
	lg    *logger.Logger
}

func NewClient(base, token string, lg *logger.Logger) *Client {
	if lg == nil {
		lg = logger.New("rest-client")
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		http:  &http.Client{Timeout: 10 * time.Second},
		token: token,
		lg:    lg,
	}
}

// Membership is the capability set the auth collaborator resolves a
// token to. Authentication internals stay out of scope.
type Membership struct {
	Member       string   `json:"member"`
	Capabilities []string `json:"capabilities"`
}

func (m Membership) Has(capability string) bool {
	for _, c := range m.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

const (
	CapBarAdmin  = "bar.admin"
	CapSwapAdmin = "swap.admin"
)

// CheckMembership resolves a bearer token to a membership. The token
// overrides the client's own when non-empty, so the hub can check its
// callers' tokens through one client.
func (c *Client) CheckMembership(ctx context.Context, token string) (Membership, error) {
	var m Membership
	if err := c.do(ctx, http.MethodGet, "/memberships/me", token, nil, &m); err != nil {
		return Membership{}, err
	}
	return m, nil
}

// PaymentIntent is the provider-side handle a client confirms the
// payment against.
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
}

type createIntentRequest struct {
	Member string `json:"member"`
	Amount int64  `json:"amount"`
}

// CreateIntent asks the payment provider for a donation intent of amount
// minor currency units on the member's behalf.
func (c *Client) CreateIntent(ctx context.Context, member string, amountMinor int64) (PaymentIntent, error) {
	var intent PaymentIntent
	req := createIntentRequest{Member: member, Amount: amountMinor}
	if err := c.do(ctx, http.MethodPost, "/payments/intents", "", req, &intent); err != nil {
		return PaymentIntent{}, err
	}
	return intent, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token == "" {
		token = c.token
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		c.lg.Warn("collaborator_rejected", map[string]any{"path": path, "status": resp.StatusCode, "error": e.Error})
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if err := json.Unmarshal(wrapper.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", path, err)
	}
	return nil
}
