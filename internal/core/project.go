package core

import (
	"context"
	"path/filepath"

	"github.com/edvin/devtunnel/internal/model"
	"github.com/edvin/devtunnel/internal/platform"
)

type ProjectService struct {
	projects  ProjectStore
	routes    RouteStore
	inventory Inventory
}

func NewProjectService(projects ProjectStore, routes RouteStore, inv Inventory) *ProjectService {
	return &ProjectService{projects: projects, routes: routes, inventory: inv}
}

// List returns every known project with its declared port and whether that
// port is live.
func (s *ProjectService) List(ctx context.Context) ([]model.ProjectPort, error) {
	snap, err := s.inventory.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.ProjectPorts(), nil
}

// Create registers a project in the database.
func (s *ProjectService) Create(ctx context.Context, p *model.Project) error {
	if p.Name == "" {
		return &model.ValidationError{Field: "name", Message: "name is required"}
	}
	if !filepath.IsAbs(p.Path) {
		return &model.ValidationError{Field: "path", Message: "path must be absolute"}
	}
	if p.ID == "" {
		p.ID = platform.NewID()
	}
	p.Path = filepath.Clean(p.Path)
	p.Source = model.ProjectSourceDatabase
	return s.projects.CreateProject(ctx, p)
}

// Routes lists the routes stored against projectID.
func (s *ProjectService) Routes(ctx context.Context, projectID string) ([]model.Route, error) {
	return s.routes.ListRoutes(ctx, model.RouteFilter{ProjectID: projectID})
}
