package core

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/edvin/devtunnel/internal/authentik"
	"github.com/edvin/devtunnel/internal/model"
	"github.com/edvin/devtunnel/internal/platform"
)

var errIdentityNotConfigured = errors.New("identity provider is not configured")

// ProtectionManager puts an identity-provider proxy in front of a hostname.
// The provider, application and outpost binding form one unit that is
// either fully present or absent. Protection is optional, so failures come
// back as warnings and never as errors.
type ProtectionManager struct {
	api    IdentityAPI
	logger zerolog.Logger
}

func NewProtectionManager(api IdentityAPI, logger zerolog.Logger) *ProtectionManager {
	return &ProtectionManager{api: api, logger: logger.With().Str("component", "protection").Logger()}
}

func endpoint(s *model.TunnelSettings) authentik.Endpoint {
	return authentik.Endpoint{URL: s.IdentityURL, Token: s.IdentityToken}
}

// Enable creates the provider, the application and the outpost binding. On
// any failure the objects already created are deleted best-effort and nil is
// returned with warnings.
func (m *ProtectionManager) Enable(ctx context.Context, settings *model.TunnelSettings, hostname, origin string) (*model.Protection, []model.Warning) {
	if m.api == nil || !settings.IdentityConfigured() {
		return nil, []model.Warning{model.NewWarning("protection", errIdentityNotConfigured)}
	}
	ep := endpoint(settings)
	log := m.logger.With().Str("hostname", hostname).Logger()

	provider, err := m.api.CreateProxyProvider(ctx, ep, authentik.ProxyProviderParams{
		Name:              "devtunnel " + hostname,
		Mode:              "proxy",
		ExternalHost:      "https://" + hostname,
		InternalHost:      origin,
		AuthorizationFlow: settings.AuthorizationFlow,
		InvalidationFlow:  settings.InvalidationFlow,
	})
	if err != nil {
		log.Warn().Err(err).Msg("create proxy provider failed")
		return nil, []model.Warning{model.NewWarning("protection", err)}
	}
	providerID := strconv.Itoa(provider.PK)

	app, err := m.api.CreateApplication(ctx, ep, authentik.ApplicationParams{
		Name:          hostname,
		Slug:          platform.Slug(hostname),
		Provider:      provider.PK,
		MetaLaunchURL: "https://" + hostname,
	})
	if err != nil {
		log.Warn().Err(err).Msg("create application failed, rolling back provider")
		warnings := []model.Warning{model.NewWarning("protection", err)}
		return nil, append(warnings, m.rollback(ctx, ep, "", providerID)...)
	}

	if err := m.api.AddProviderToOutpost(ctx, ep, settings.OutpostID, providerID); err != nil {
		log.Warn().Err(err).Msg("bind outpost failed, rolling back application and provider")
		warnings := []model.Warning{model.NewWarning("protection", err)}
		return nil, append(warnings, m.rollback(ctx, ep, app.Slug, providerID)...)
	}

	log.Info().Str("app_slug", app.Slug).Str("provider_id", providerID).Msg("protection enabled")
	return &model.Protection{AppID: app.PK, AppSlug: app.Slug, ProviderID: providerID}, nil
}

// Disable deletes the application, then the provider. Objects already gone
// count as deleted. A failure on one does not stop the other.
func (m *ProtectionManager) Disable(ctx context.Context, settings *model.TunnelSettings, p model.Protection) []model.Warning {
	if m.api == nil || settings.IdentityURL == "" || settings.IdentityToken == "" {
		return []model.Warning{model.NewWarning("protection", errIdentityNotConfigured)}
	}
	warnings := m.rollback(ctx, endpoint(settings), p.AppSlug, p.ProviderID)
	if len(warnings) == 0 {
		m.logger.Info().Str("app_slug", p.AppSlug).Msg("protection disabled")
	}
	return warnings
}

func (m *ProtectionManager) rollback(ctx context.Context, ep authentik.Endpoint, appSlug, providerID string) []model.Warning {
	var warnings []model.Warning
	if appSlug != "" {
		if err := m.api.DeleteApplication(ctx, ep, appSlug); err != nil && !model.IsUpstreamStatus(err, http.StatusNotFound) {
			m.logger.Warn().Err(err).Str("app_slug", appSlug).Msg("delete application failed")
			warnings = append(warnings, model.NewWarning("protection", err))
		}
	}
	if providerID != "" {
		if err := m.api.DeleteProxyProvider(ctx, ep, providerID); err != nil && !model.IsUpstreamStatus(err, http.StatusNotFound) {
			m.logger.Warn().Err(err).Str("provider_id", providerID).Msg("delete provider failed")
			warnings = append(warnings, model.NewWarning("protection", err))
		}
	}
	return warnings
}
