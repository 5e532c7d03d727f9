// Package cloudflare is a client for the tunnel provider's control-plane API:
// tunnel configuration, tunnel and zone info, DNS records and token checks.
package cloudflare

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

	"golang.org/x/time/rate"

	"github.com/edvin/devtunnel/internal/metrics"
	"github.com/edvin/devtunnel/internal/model"
)

const (
	provider = "cloudflare"

	DefaultBaseURL = "https://api.cloudflare.com/client/v4"

	defaultRPS   = 4
	defaultBurst = 8
)

// Account holds the identifiers and credential a call is made with. It is
// built from the stored settings on every operation.
type Account struct {
	ID       string
	ZoneID   string
	TunnelID string
	Token    string
}

// AccountFrom builds an Account from settings, failing with a
// NotConfiguredError when any required field is missing.
func AccountFrom(s *model.TunnelSettings) (Account, error) {
	if err := s.Complete(); err != nil {
		return Account{}, err
	}
	return Account{ID: s.AccountID, ZoneID: s.ZoneID, TunnelID: s.TunnelID, Token: s.APIToken}, nil
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

type Option func(*Client)

// WithRateLimit overrides the client-side request rate.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client. Every request is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(defaultRPS, defaultBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the response wrapper every v4 endpoint uses.
type envelope struct {
	Success  bool            `json:"success"`
	Errors   []apiMessage    `json:"errors"`
	Messages []apiMessage    `json:"messages"`
	Result   json.RawMessage `json:"result"`
}

type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func joinMessages(msgs []apiMessage) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Code != 0 {
			parts = append(parts, fmt.Sprintf("%s (code %d)", m.Message, m.Code))
		} else {
			parts = append(parts, m.Message)
		}
	}
	return strings.Join(parts, "; ")
}

// do performs one API call and decodes envelope.result into out.
func (c *Client) do(ctx context.Context, acct Account, op, method, path string, body, out any) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream(provider, op, time.Since(start).Seconds(), err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return c.upstreamErr(op, 0, "", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+acct.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.upstreamErr(op, 0, "", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.upstreamErr(op, resp.StatusCode, "", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		msg := strings.TrimSpace(string(respBody))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return c.upstreamErr(op, resp.StatusCode, msg, err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		msg := joinMessages(env.Errors)
		if msg == "" {
			msg = "request was not successful"
		}
		return c.upstreamErr(op, resp.StatusCode, msg, nil)
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return c.upstreamErr(op, resp.StatusCode, "decode result", err)
		}
	}
	return nil
}

func (c *Client) upstreamErr(op string, status int, msg string, err error) *model.UpstreamError {
	ue := &model.UpstreamError{Provider: provider, Op: op, StatusCode: status, Message: msg, Err: err}
	if err != nil && isTimeout(err) {
		ue.Timeout = true
	}
	return ue
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
