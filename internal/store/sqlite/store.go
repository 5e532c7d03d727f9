// Package sqlite stores routes, tunnel settings and projects in a local
// SQLite database. It is the default backend for a single developer host.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edvin/devtunnel/internal/model"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps an open, migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const routeColumns = `hostname, subdomain, local_host, local_port, scheme, service, websocket_enabled,
	description, status, dns_record_id, project_id, protection_enabled, app_id, app_slug, provider_id,
	error_message, last_checked_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoute(row rowScanner) (*model.Route, error) {
	var r model.Route
	err := row.Scan(&r.Hostname, &r.Subdomain, &r.LocalHost, &r.LocalPort, &r.Scheme, &r.Service,
		&r.WebsocketEnabled, &r.Description, &r.Status, &r.DNSRecordID, &r.ProjectID,
		&r.ProtectionEnabled, &r.AppID, &r.AppSlug, &r.ProviderID, &r.ErrorMessage,
		&r.LastCheckedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func routeArgs(r *model.Route) []any {
	return []any{r.Hostname, r.Subdomain, r.LocalHost, r.LocalPort, r.Scheme, r.Service,
		r.WebsocketEnabled, r.Description, r.Status, r.DNSRecordID, r.ProjectID,
		r.ProtectionEnabled, r.AppID, r.AppSlug, r.ProviderID, r.ErrorMessage,
		r.LastCheckedAt, r.CreatedAt, r.UpdatedAt}
}

const routePlaceholders = `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`

// GetRoute returns the route or a NotFoundError.
func (s *Store) GetRoute(ctx context.Context, hostname string) (*model.Route, error) {
	r, err := s.FindRoute(ctx, hostname)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &model.NotFoundError{Kind: "route", Key: hostname}
	}
	return r, nil
}

// FindRoute returns the route, or nil when absent.
func (s *Store) FindRoute(ctx context.Context, hostname string) (*model.Route, error) {
	r, err := scanRoute(s.db.QueryRowContext(ctx,
		`SELECT `+routeColumns+` FROM routes WHERE hostname = ?`, hostname))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get route %s: %w", hostname, err)
	}
	return r, nil
}

// ListRoutes returns routes ordered by hostname.
func (s *Store) ListRoutes(ctx context.Context, filter model.RouteFilter) ([]model.Route, error) {
	var (
		where []string
		args  []any
	)
	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	query := `SELECT ` + routeColumns + ` FROM routes`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY hostname`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	routes := []model.Route{}
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		routes = append(routes, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routes: %w", err)
	}
	return routes, nil
}

// CreateRoute inserts a route. A duplicate hostname is a conflict.
func (s *Store) CreateRoute(ctx context.Context, r *model.Route) error {
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO routes (`+routeColumns+`) VALUES (`+routePlaceholders+`)`, routeArgs(r)...)
	if isUniqueViolation(err) {
		return &model.ValidationError{Field: "hostname", Message: fmt.Sprintf("route %s already exists", r.Hostname), Conflict: true}
	}
	if err != nil {
		return fmt.Errorf("insert route %s: %w", r.Hostname, err)
	}
	return nil
}

// UpdateRoute writes every mutable field of an existing route.
func (s *Store) UpdateRoute(ctx context.Context, r *model.Route) error {
	r.UpdatedAt = s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE routes SET subdomain = ?, local_host = ?, local_port = ?, scheme = ?, service = ?,
		 websocket_enabled = ?, description = ?, status = ?, dns_record_id = ?, project_id = ?,
		 protection_enabled = ?, app_id = ?, app_slug = ?, provider_id = ?, error_message = ?,
		 last_checked_at = ?, updated_at = ?
		 WHERE hostname = ?`,
		r.Subdomain, r.LocalHost, r.LocalPort, r.Scheme, r.Service,
		r.WebsocketEnabled, r.Description, r.Status, r.DNSRecordID, r.ProjectID,
		r.ProtectionEnabled, r.AppID, r.AppSlug, r.ProviderID, r.ErrorMessage,
		r.LastCheckedAt, r.UpdatedAt, r.Hostname)
	if err != nil {
		return fmt.Errorf("update route %s: %w", r.Hostname, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update route %s: %w", r.Hostname, err)
	}
	if affected == 0 {
		return &model.NotFoundError{Kind: "route", Key: r.Hostname}
	}
	return nil
}

// UpsertRoute inserts or fully replaces a route, keeping its created_at.
func (s *Store) UpsertRoute(ctx context.Context, r *model.Route) error {
	now := s.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO routes (`+routeColumns+`) VALUES (`+routePlaceholders+`)
		 ON CONFLICT (hostname) DO UPDATE SET
		 subdomain = excluded.subdomain, local_host = excluded.local_host, local_port = excluded.local_port,
		 scheme = excluded.scheme, service = excluded.service, websocket_enabled = excluded.websocket_enabled,
		 description = excluded.description, status = excluded.status, dns_record_id = excluded.dns_record_id,
		 project_id = excluded.project_id, protection_enabled = excluded.protection_enabled,
		 app_id = excluded.app_id, app_slug = excluded.app_slug, provider_id = excluded.provider_id,
		 error_message = excluded.error_message, last_checked_at = excluded.last_checked_at,
		 updated_at = excluded.updated_at`,
		routeArgs(r)...)
	if err != nil {
		return fmt.Errorf("upsert route %s: %w", r.Hostname, err)
	}
	return nil
}

// DeleteRoute removes a route or returns a NotFoundError.
func (s *Store) DeleteRoute(ctx context.Context, hostname string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM routes WHERE hostname = ?`, hostname)
	if err != nil {
		return fmt.Errorf("delete route %s: %w", hostname, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete route %s: %w", hostname, err)
	}
	if affected == 0 {
		return &model.NotFoundError{Kind: "route", Key: hostname}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}
