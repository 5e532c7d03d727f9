// Package postgres stores routes, tunnel settings and projects in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/devtunnel/internal/model"
)

const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db  DB
	now func() time.Time
}

func New(db DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const routeColumns = `hostname, subdomain, local_host, local_port, scheme, service, websocket_enabled,
	description, status, dns_record_id, project_id, protection_enabled, app_id, app_slug, provider_id,
	error_message, last_checked_at, created_at, updated_at`

func scanRoute(row pgx.Row) (*model.Route, error) {
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
	r, err := scanRoute(s.db.QueryRow(ctx,
		`SELECT `+routeColumns+` FROM routes WHERE hostname = $1`, hostname))
	if errors.Is(err, pgx.ErrNoRows) {
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
		args = append(args, filter.ProjectID)
		where = append(where, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + routeColumns + ` FROM routes`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY hostname`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()

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
	_, err := s.db.Exec(ctx,
		`INSERT INTO routes (`+routeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		routeArgs(r)...)
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
	tag, err := s.db.Exec(ctx,
		`UPDATE routes SET subdomain = $2, local_host = $3, local_port = $4, scheme = $5, service = $6,
		 websocket_enabled = $7, description = $8, status = $9, dns_record_id = $10, project_id = $11,
		 protection_enabled = $12, app_id = $13, app_slug = $14, provider_id = $15, error_message = $16,
		 last_checked_at = $17, updated_at = $18
		 WHERE hostname = $1`,
		append(routeArgs(r)[:17], r.UpdatedAt)...)
	if err != nil {
		return fmt.Errorf("update route %s: %w", r.Hostname, err)
	}
	if tag.RowsAffected() == 0 {
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
	_, err := s.db.Exec(ctx,
		`INSERT INTO routes (`+routeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 ON CONFLICT (hostname) DO UPDATE SET
		 subdomain = EXCLUDED.subdomain, local_host = EXCLUDED.local_host, local_port = EXCLUDED.local_port,
		 scheme = EXCLUDED.scheme, service = EXCLUDED.service, websocket_enabled = EXCLUDED.websocket_enabled,
		 description = EXCLUDED.description, status = EXCLUDED.status, dns_record_id = EXCLUDED.dns_record_id,
		 project_id = EXCLUDED.project_id, protection_enabled = EXCLUDED.protection_enabled,
		 app_id = EXCLUDED.app_id, app_slug = EXCLUDED.app_slug, provider_id = EXCLUDED.provider_id,
		 error_message = EXCLUDED.error_message, last_checked_at = EXCLUDED.last_checked_at,
		 updated_at = EXCLUDED.updated_at`,
		routeArgs(r)...)
	if err != nil {
		return fmt.Errorf("upsert route %s: %w", r.Hostname, err)
	}
	return nil
}

// DeleteRoute removes a route or returns a NotFoundError.
func (s *Store) DeleteRoute(ctx context.Context, hostname string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM routes WHERE hostname = $1`, hostname)
	if err != nil {
		return fmt.Errorf("delete route %s: %w", hostname, err)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Kind: "route", Key: hostname}
	}
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRow(ctx, `SELECT 1`).Scan(&one)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
