package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/devtunnel/internal/model"
)

// ListProjects returns the database-known projects ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, path, created_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		p := model.Project{Source: model.ProjectSourceDatabase}
		if err := rows.Scan(&p.ID, &p.Name, &p.Path, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// GetProject returns a project or a NotFoundError.
func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	p := model.Project{Source: model.ProjectSourceDatabase}
	err := s.db.QueryRow(ctx, `SELECT id, name, path, created_at FROM projects WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Path, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{Kind: "project", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return &p, nil
}

// CreateProject registers a project. A duplicate id or path is a conflict.
func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	p.CreatedAt = s.now()
	p.Source = model.ProjectSourceDatabase
	_, err := s.db.Exec(ctx,
		`INSERT INTO projects (id, name, path, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.Name, p.Path, p.CreatedAt)
	if isUniqueViolation(err) {
		return &model.ValidationError{Field: "path", Message: fmt.Sprintf("project %s already exists", p.Path), Conflict: true}
	}
	if err != nil {
		return fmt.Errorf("insert project %s: %w", p.Name, err)
	}
	return nil
}
