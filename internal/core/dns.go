package core

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/edvin/devtunnel/internal/cloudflare"
	"github.com/edvin/devtunnel/internal/model"
	"github.com/edvin/devtunnel/internal/platform"
)

// DNSManager maintains the CNAME records pointing published hostnames at the
// tunnel.
type DNSManager struct {
	api    TunnelAPI
	logger zerolog.Logger
}

func NewDNSManager(api TunnelAPI, logger zerolog.Logger) *DNSManager {
	return &DNSManager{api: api, logger: logger.With().Str("component", "dns").Logger()}
}

// Ensure creates the record for hostname. Creation commonly fails because a
// retried operation already created it, so on any failure an existing record
// is looked up and taken as authoritative. The create error is returned only
// when no record exists.
func (m *DNSManager) Ensure(ctx context.Context, acct cloudflare.Account, hostname string) (string, error) {
	rec, err := m.api.CreateDNSRecord(ctx, acct, hostname, platform.TunnelCNAMETarget(acct.TunnelID))
	if err == nil {
		return rec.ID, nil
	}
	existing, findErr := m.api.FindDNSRecord(ctx, acct, hostname)
	if findErr == nil && existing != nil {
		m.logger.Debug().Str("hostname", hostname).Str("record_id", existing.ID).Err(err).
			Msg("dns record already exists, reusing")
		return existing.ID, nil
	}
	return "", err
}

// Find returns the record for hostname, or nil when none exists.
func (m *DNSManager) Find(ctx context.Context, acct cloudflare.Account, hostname string) (*cloudflare.DNSRecord, error) {
	return m.api.FindDNSRecord(ctx, acct, hostname)
}

// Delete removes a record by id. A record that is already gone is success.
func (m *DNSManager) Delete(ctx context.Context, acct cloudflare.Account, recordID string) error {
	err := m.api.DeleteDNSRecord(ctx, acct, recordID)
	if err != nil && model.IsUpstreamStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

// Remove deletes the record for hostname, by stored id when known and by
// lookup otherwise. It reports whether a record was found.
func (m *DNSManager) Remove(ctx context.Context, acct cloudflare.Account, hostname string, recordID *string) (bool, error) {
	id := ""
	if recordID != nil {
		id = *recordID
	}
	if id == "" {
		rec, err := m.api.FindDNSRecord(ctx, acct, hostname)
		if err != nil {
			return false, err
		}
		if rec == nil {
			return false, nil
		}
		id = rec.ID
	}
	if err := m.Delete(ctx, acct, id); err != nil {
		return true, err
	}
	return true, nil
}
