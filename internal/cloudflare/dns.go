package cloudflare

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// DNSRecord is a zone DNS record.
type DNSRecord struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Proxied bool   `json:"proxied"`
	TTL     int    `json:"ttl"`
	Comment string `json:"comment,omitempty"`
}

// Zone is the provider's view of a DNS zone.
type Zone struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// TokenStatus is the result of a token verification.
type TokenStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// GetZone returns the configured zone.
func (c *Client) GetZone(ctx context.Context, acct Account) (*Zone, error) {
	var z Zone
	if err := c.do(ctx, acct, "get_zone", http.MethodGet, "/zones/"+acct.ZoneID, nil, &z); err != nil {
		return nil, err
	}
	return &z, nil
}

// CreateDNSRecord creates a proxied CNAME for name pointing at target.
func (c *Client) CreateDNSRecord(ctx context.Context, acct Account, name, target string) (*DNSRecord, error) {
	body := DNSRecord{
		Type:    "CNAME",
		Name:    name,
		Content: target,
		Proxied: true,
		TTL:     1,
		Comment: "managed by devtunnel",
	}
	var rec DNSRecord
	path := fmt.Sprintf("/zones/%s/dns_records", acct.ZoneID)
	if err := c.do(ctx, acct, "create_dns_record", http.MethodPost, path, body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindDNSRecord looks up the CNAME record for name. Returns nil, nil when no
// record exists.
func (c *Client) FindDNSRecord(ctx context.Context, acct Account, name string) (*DNSRecord, error) {
	q := url.Values{}
	q.Set("type", "CNAME")
	q.Set("name", name)
	path := fmt.Sprintf("/zones/%s/dns_records?%s", acct.ZoneID, q.Encode())

	var recs []DNSRecord
	if err := c.do(ctx, acct, "find_dns_record", http.MethodGet, path, nil, &recs); err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].Name == name {
			return &recs[i], nil
		}
	}
	return nil, nil
}

// DeleteDNSRecord deletes a record by id.
func (c *Client) DeleteDNSRecord(ctx context.Context, acct Account, recordID string) error {
	path := fmt.Sprintf("/zones/%s/dns_records/%s", acct.ZoneID, recordID)
	return c.do(ctx, acct, "delete_dns_record", http.MethodDelete, path, nil, nil)
}

// VerifyToken checks that the API token is valid and active.
func (c *Client) VerifyToken(ctx context.Context, acct Account) (*TokenStatus, error) {
	var ts TokenStatus
	if err := c.do(ctx, acct, "verify_token", http.MethodGet, "/user/tokens/verify", nil, &ts); err != nil {
		return nil, err
	}
	return &ts, nil
}
