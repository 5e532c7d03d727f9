package core

import (
	"strings"

	"github.com/edvin/devtunnel/internal/inventory"
	"github.com/edvin/devtunnel/internal/model"
)

// Matcher links a route to a local project. Matchers are pure and only read
// the snapshot.
type Matcher func(model.Route, *inventory.Snapshot) (*model.ProjectMatch, bool)

// Matchers in precedence order. The declared port is the source of truth.
var Matchers = []Matcher{
	MatchDeclaredPort,
	MatchProjectID,
	MatchSubdomain,
	MatchProcessCwd,
}

// Classify returns the first match, or nil for an orphaned route.
func Classify(r model.Route, snap *inventory.Snapshot) *model.ProjectMatch {
	for _, m := range Matchers {
		if pm, ok := m(r, snap); ok {
			return pm
		}
	}
	return nil
}

func newMatch(p model.Project, method string, confidence float64, port int) *model.ProjectMatch {
	return &model.ProjectMatch{
		ProjectID:   p.ID,
		ProjectName: p.Name,
		ProjectPath: p.Path,
		Method:      method,
		Confidence:  confidence,
		Port:        port,
	}
}

// MatchDeclaredPort links a route whose port a project declares in its
// manifest.
func MatchDeclaredPort(r model.Route, snap *inventory.Snapshot) (*model.ProjectMatch, bool) {
	p, ok := snap.ProjectByPort(r.LocalPort)
	if !ok {
		return nil, false
	}
	return newMatch(p, model.MatchDeclaredPort, 1.0, r.LocalPort), true
}

// MatchProjectID links a route through its stored project id.
func MatchProjectID(r model.Route, snap *inventory.Snapshot) (*model.ProjectMatch, bool) {
	if r.ProjectID == nil || *r.ProjectID == "" {
		return nil, false
	}
	p, ok := snap.ProjectByID(*r.ProjectID)
	if !ok {
		return nil, false
	}
	port, _ := snap.PortOf(p.Path)
	return newMatch(p, model.MatchProjectID, 0.9, port), true
}

// MatchSubdomain links a route whose subdomain contains, or is contained in,
// a project name once dashes and underscores are ignored.
func MatchSubdomain(r model.Route, snap *inventory.Snapshot) (*model.ProjectMatch, bool) {
	sub := squash(r.Subdomain)
	if sub == "" {
		return nil, false
	}
	for _, p := range snap.Projects {
		name := squash(p.Name)
		if name == "" {
			continue
		}
		if strings.Contains(sub, name) || strings.Contains(name, sub) {
			port, _ := snap.PortOf(p.Path)
			return newMatch(p, model.MatchSubdomainName, 0.6, port), true
		}
	}
	return nil, false
}

// MatchProcessCwd links a route whose port is held by a process running
// inside a project directory.
func MatchProcessCwd(r model.Route, snap *inventory.Snapshot) (*model.ProjectMatch, bool) {
	sock, ok := snap.Sockets[r.LocalPort]
	if !ok || sock.Cwd == "" {
		return nil, false
	}
	p, ok := snap.ProjectForCwd(sock.Cwd)
	if !ok {
		return nil, false
	}
	m := newMatch(p, model.MatchProcessCwd, 0.5, r.LocalPort)
	m.Process = sock.Process
	return m, true
}

func squash(s string) string {
	return strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(s))
}
