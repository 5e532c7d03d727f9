package model

import "time"

// Project sources.
const (
	ProjectSourceDatabase   = "database"
	ProjectSourceFilesystem = "filesystem"
)

// Project match methods, highest confidence first.
const (
	MatchDeclaredPort  = "claude-md-port"
	MatchProjectID     = "project-id"
	MatchSubdomainName = "subdomain-fuzzy"
	MatchProcessCwd    = "process-cwd"
)

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ProjectMatch describes how a route was linked to a local project.
type ProjectMatch struct {
	ProjectID   string  `json:"project_id"`
	ProjectName string  `json:"project_name"`
	ProjectPath string  `json:"project_path"`
	Method      string  `json:"method"`
	Confidence  float64 `json:"confidence"`
	// Port is set when the project declares or owns a port.
	Port int `json:"port,omitempty"`
	// Process is set for process-cwd matches.
	Process string `json:"process,omitempty"`
}

// RouteMapping pairs a route with its classification.
type RouteMapping struct {
	Route    Route         `json:"route"`
	Match    *ProjectMatch `json:"match,omitempty"`
	Orphaned bool          `json:"orphaned"`
}

// ProjectPort is a project together with its declared port, if any.
type ProjectPort struct {
	Project
	DeclaredPort int    `json:"declared_port,omitempty"`
	Listening    bool   `json:"listening"`
	Process      string `json:"process,omitempty"`
}
