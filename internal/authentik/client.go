// Package authentik talks to the identity provider that guards published
// routes with a forward-auth reverse proxy.
package authentik

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/edvin/devtunnel/internal/metrics"
	"github.com/edvin/devtunnel/internal/model"
)

const provider = "authentik"

// Endpoint is the identity provider base URL and API token, loaded from the
// stored settings on every operation.
type Endpoint struct {
	URL   string
	Token string
}

type Client struct {
	httpClient *http.Client
}

// NewClient creates a client bounded by timeout. tlsConfig may be nil.
func NewClient(timeout time.Duration, tlsConfig *tls.Config) *Client {
	hc := &http.Client{Timeout: timeout}
	if tlsConfig != nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = tlsConfig
		hc.Transport = tr
	}
	return &Client{httpClient: hc}
}

// ProxyProviderParams describes a forward-auth proxy provider.
type ProxyProviderParams struct {
	Name              string `json:"name"`
	Mode              string `json:"mode"`
	ExternalHost      string `json:"external_host"`
	InternalHost      string `json:"internal_host"`
	AuthorizationFlow string `json:"authorization_flow"`
	InvalidationFlow  string `json:"invalidation_flow,omitempty"`
	SkipPathRegex     string `json:"skip_path_regex,omitempty"`
	InternalHostSSL   bool   `json:"internal_host_ssl_validation"`
}

// ProxyProvider is a created proxy provider.
type ProxyProvider struct {
	PK   int    `json:"pk"`
	Name string `json:"name"`
}

// ApplicationParams describes an application bound to a provider.
type ApplicationParams struct {
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Provider      int    `json:"provider"`
	MetaLaunchURL string `json:"meta_launch_url,omitempty"`
}

// Application is a created application.
type Application struct {
	PK   string `json:"pk"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type outpost struct {
	PK        string `json:"pk"`
	Name      string `json:"name"`
	Providers []int  `json:"providers"`
}

// CreateProxyProvider creates a proxy-mode provider.
func (c *Client) CreateProxyProvider(ctx context.Context, ep Endpoint, params ProxyProviderParams) (*ProxyProvider, error) {
	if params.Mode == "" {
		params.Mode = "proxy"
	}
	var p ProxyProvider
	if err := c.doJSON(ctx, ep, "create_provider", http.MethodPost, "/api/v3/providers/proxy/", params, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProxyProvider deletes a provider by primary key.
func (c *Client) DeleteProxyProvider(ctx context.Context, ep Endpoint, providerID string) error {
	path := fmt.Sprintf("/api/v3/providers/proxy/%s/", providerID)
	return c.doJSON(ctx, ep, "delete_provider", http.MethodDelete, path, nil, nil)
}

// CreateApplication creates an application referencing a provider.
func (c *Client) CreateApplication(ctx context.Context, ep Endpoint, params ApplicationParams) (*Application, error) {
	var a Application
	if err := c.doJSON(ctx, ep, "create_application", http.MethodPost, "/api/v3/core/applications/", params, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteApplication deletes an application by slug.
func (c *Client) DeleteApplication(ctx context.Context, ep Endpoint, slug string) error {
	path := fmt.Sprintf("/api/v3/core/applications/%s/", slug)
	return c.doJSON(ctx, ep, "delete_application", http.MethodDelete, path, nil, nil)
}

// AddProviderToOutpost appends providerID to the outpost's provider list.
// Adding a provider that is already bound is a no-op.
func (c *Client) AddProviderToOutpost(ctx context.Context, ep Endpoint, outpostID, providerID string) error {
	pk, err := strconv.Atoi(providerID)
	if err != nil {
		return fmt.Errorf("provider id %q: %w", providerID, err)
	}
	path := fmt.Sprintf("/api/v3/outposts/instances/%s/", outpostID)

	var o outpost
	if err := c.doJSON(ctx, ep, "get_outpost", http.MethodGet, path, nil, &o); err != nil {
		return err
	}
	for _, p := range o.Providers {
		if p == pk {
			return nil
		}
	}
	providers := append(o.Providers, pk)
	sort.Ints(providers)

	body := map[string]any{"providers": providers}
	return c.doJSON(ctx, ep, "update_outpost", http.MethodPatch, path, body, nil)
}

// doJSON performs one API call. Non-2xx responses become UpstreamError with
// the provider's detail message.
func (c *Client) doJSON(ctx context.Context, ep Endpoint, op, method, path string, body, out any) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream(provider, op, time.Since(start).Seconds(), err) }()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	url := strings.TrimRight(ep.URL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+ep.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return upstreamErr(op, 0, "", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return upstreamErr(op, resp.StatusCode, "", err)
	}

	if resp.StatusCode >= 300 {
		return upstreamErr(op, resp.StatusCode, errorDetail(respBody), nil)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return upstreamErr(op, resp.StatusCode, "decode response", err)
		}
	}
	return nil
}

// errorDetail extracts a message from a DRF error body: {"detail": "..."} or
// a map of field name to messages.
func errorDetail(body []byte) string {
	var detail struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &detail) == nil && detail.Detail != "" {
		return detail.Detail
	}
	var fields map[string]json.RawMessage
	if json.Unmarshal(body, &fields) == nil && len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			var msgs []string
			if json.Unmarshal(fields[k], &msgs) == nil {
				parts = append(parts, k+": "+strings.Join(msgs, ", "))
			} else {
				parts = append(parts, k+": "+string(fields[k]))
			}
		}
		return strings.Join(parts, "; ")
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func upstreamErr(op string, status int, msg string, err error) *model.UpstreamError {
	ue := &model.UpstreamError{Provider: provider, Op: op, StatusCode: status, Message: msg, Err: err}
	if err != nil {
		var te interface{ Timeout() bool }
		ue.Timeout = errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &te) && te.Timeout())
	}
	return ue
}
