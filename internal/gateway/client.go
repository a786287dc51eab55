// Package gateway talks to the external payment provider. The provider is the
// source of truth for payment status; this client only reads and cancels, it
// never collects payment itself.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"shopcheckout/internal/metrics"
	"shopcheckout/internal/models"
)

// ErrNotFound means the gateway has no payment for the given reference. In the
// pay flow that usually indicates a forged or garbage reference from the
// client and is not worth an automatic retry.
var ErrNotFound = errors.New("gateway: payment not found")

// ResponseError is a semantic rejection from the gateway, e.g. cancelling a
// payment that is not cancellable. Transport failures are plain wrapped errors
// and never of this type.
type ResponseError struct {
	Code    int
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("gateway rejected request (code %d): %s", e.Code, e.Message)
}

type Config struct {
	APIKey       string
	APISecret    string
	EndpointBase string
	Timeout      time.Duration
}

type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.EndpointBase, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		client:    &http.Client{Timeout: timeout},
	}
}

// FindByReference fetches the gateway's record for a payment reference.
func (c *Client) FindByReference(ctx context.Context, ref string) (*models.PaymentMeta, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	start := time.Now()
	meta, err := c.getPayment(ctx, c.baseURL+"/payments/"+ref)
	metrics.ObserveGatewayRequest("find", time.Since(start))
	return meta, err
}

// Cancel asks the gateway to cancel the payment behind ref, recording reason.
// Returns the gateway's post-cancel record on success.
func (c *Client) Cancel(ctx context.Context, reason, ref string) (*models.PaymentMeta, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	body := map[string]string{
		"reference": ref,
		"reason":    reason,
	}
	start := time.Now()
	meta, err := c.postPayment(ctx, c.baseURL+"/payments/cancel", body)
	metrics.ObserveGatewayRequest("cancel", time.Since(start))
	return meta, err
}

func (c *Client) getPayment(ctx context.Context, endpoint string) (*models.PaymentMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.doPayment(req)
}

func (c *Client) postPayment(ctx context.Context, endpoint string, body any) (*models.PaymentMeta, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doPayment(req)
}

type envelope struct {
	Code     int             `json:"code"`
	Message  string          `json:"message"`
	Response json.RawMessage `json:"response"`
}

func (c *Client) doPayment(req *http.Request) (*models.PaymentMeta, error) {
	token, err := c.accessToken(req.Context())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway response read failed: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("gateway response decode failed: %w", err)
	}
	if env.Code != 0 {
		// The gateway reports "no such payment" through the envelope as
		// well as through HTTP 404.
		if strings.Contains(strings.ToLower(env.Message), "not found") {
			return nil, ErrNotFound
		}
		return nil, &ResponseError{Code: env.Code, Message: env.Message}
	}
	if len(env.Response) == 0 {
		return nil, ErrNotFound
	}

	var meta models.PaymentMeta
	if err := json.Unmarshal(env.Response, &meta); err != nil {
		return nil, fmt.Errorf("gateway payment decode failed: %w", err)
	}
	meta.Raw = append(json.RawMessage(nil), env.Response...)
	return &meta, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiredAt   int64  `json:"expired_at"`
}

// accessToken returns a cached auth token, fetching a fresh one from the
// gateway when the cached one is missing or about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	payload, err := json.Marshal(map[string]string{
		"api_key":    c.apiKey,
		"api_secret": c.apiSecret,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users/getToken", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway auth failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gateway auth returned status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("gateway auth decode failed: %w", err)
	}
	if env.Code != 0 {
		return "", &ResponseError{Code: env.Code, Message: env.Message}
	}

	var tok tokenResponse
	if err := json.Unmarshal(env.Response, &tok); err != nil {
		return "", fmt.Errorf("gateway auth decode failed: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("gateway auth returned empty token")
	}

	c.token = tok.AccessToken
	if tok.ExpiredAt > 0 {
		// Renew a little early so requests never ride an expiring token.
		c.tokenExpiry = time.Unix(tok.ExpiredAt, 0).Add(-30 * time.Second)
	} else {
		c.tokenExpiry = time.Now().Add(5 * time.Minute)
	}
	return c.token, nil
}
