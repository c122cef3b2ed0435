// Package coopbank wraps the Co-op Bank mobile-money gateway: OAuth token
// acquisition, STK push dispatch and transaction status queries. All outbound
// calls run through a circuit breaker and surface a typed error so callers
// can tell "provider unreachable" from "provider rejected".
package coopbank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wendani/giving/internal/cache"
)

var (
	// ErrUnavailable marks transport failures, auth failures, gateway 5xx
	// responses and an open circuit breaker.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrRejected marks a well-formed request the gateway refused.
	ErrRejected = errors.New("provider rejected request")
)

type Config struct {
	TokenURL     string
	STKURL       string
	StatusURL    string
	AuthHeader   string // pre-built basic auth header for the token endpoint
	OperatorCode string
	UserID       string
	CallbackURL  string
}

// Detail is one itemized entry of a push request, keyed by purpose.
type Detail struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type PushRequest struct {
	Phone     string
	Amount    int64 // whole currency units
	Reference string
	Narration string
	Details   []Detail
}

type PushResponse struct {
	MessageReference  string `json:"MessageReference"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResponseCode      string `json:"ResponseCode"`
	Description       string `json:"ResponseDescription"`
}

type StatusResponse struct {
	Code        string `json:"ResultCode"`
	Receipt     string `json:"ReceiptNumber"`
	Date        string `json:"TransactionDate"`
	Description string `json:"ResultDescription"`
}

type Client struct {
	cfg     Config
	http    *http.Client
	tokens  cache.TokenCache
	breaker *gobreaker.CircuitBreaker
}

func NewClient(cfg Config, tokens cache.TokenCache) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "coopbank",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 10 * time.Second},
		tokens:  tokens,
		breaker: breaker,
	}
}

// Authenticate returns a bearer token for the gateway, from the cache when a
// live one exists, otherwise via the client-credentials grant.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if token, ok, err := c.tokens.Get(ctx); err == nil && ok {
		return token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL,
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.AuthHeader)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, status, err := c.send(req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint status %d: %s", ErrUnavailable, status, body)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", ErrUnavailable, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: token response missing access_token", ErrUnavailable)
	}

	// Cache slightly short of the reported expiry so a token never goes
	// stale mid-request.
	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl > time.Minute {
		ttl -= time.Minute
	}
	if ttl > 0 {
		if err := c.tokens.Set(ctx, tok.AccessToken, ttl); err != nil {
			return tok.AccessToken, nil
		}
	}
	return tok.AccessToken, nil
}

// Push dispatches an STK push prompt to the payer's phone.
func (c *Client) Push(ctx context.Context, pr PushRequest) (*PushResponse, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"MessageReference":    pr.Reference,
		"CallBackUrl":         c.cfg.CallbackURL,
		"OperatorCode":        c.cfg.OperatorCode,
		"UserId":              c.cfg.UserID,
		"TransactionCurrency": "KES",
		"MobileNumber":        pr.Phone,
		"Narration":           pr.Narration,
		"Amount":              pr.Amount,
		"MessageDateTime":     time.Now().UTC().Format(time.RFC3339),
		"OtherDetails":        pr.Details,
	}
	body, err := c.postJSON(ctx, c.cfg.STKURL, token, payload)
	if err != nil {
		return nil, err
	}

	var out PushResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode push response: %v", ErrUnavailable, err)
	}
	return &out, nil
}

// QueryStatus asks the gateway for the current state of a dispatched push.
func (c *Client) QueryStatus(ctx context.Context, reference string) (*StatusResponse, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"MessageReference": reference,
		"OperatorCode":     c.cfg.OperatorCode,
		"UserId":           c.cfg.UserID,
	}
	body, err := c.postJSON(ctx, c.cfg.StatusURL, token, payload)
	if err != nil {
		return nil, err
	}

	var out StatusResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode status response: %v", ErrUnavailable, err)
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, url, token string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.send(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, status, body)
	}
	return body, nil
}

type httpResult struct {
	status int
	body   []byte
}

// send executes the request through the circuit breaker. Transport errors and
// 5xx responses count against the breaker; application-level rejections pass
// through and do not trip it.
func (c *Client) send(req *http.Request) ([]byte, int, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return httpResult{resp.StatusCode, body},
				fmt.Errorf("gateway status %d: %s", resp.StatusCode, body)
		}
		return httpResult{resp.StatusCode, body}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, 0, fmt.Errorf("%w: circuit open: %v", ErrUnavailable, err)
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	res := result.(httpResult)
	return res.body, res.status, nil
}
