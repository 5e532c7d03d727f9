package inventory

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/devtunnel/internal/model"
)

// Snapshot is a read-only view of projects, declared ports and listening
// sockets, valid for one reconciliation pass.
type Snapshot struct {
	Root     string
	Projects []model.Project
	Sockets  map[int]Socket

	byPort map[int]model.Project
	portOf map[string]int
	byID   map[string]model.Project
	byPath map[string]model.Project
}

// newSnapshot indexes projects by declared port. On a duplicate port the
// first project in order wins.
func newSnapshot(root string, projects []model.Project, declared map[string]int, sockets map[int]Socket, logger zerolog.Logger) *Snapshot {
	s := &Snapshot{
		Root:     root,
		Projects: projects,
		Sockets:  sockets,
		byPort:   make(map[int]model.Project),
		portOf:   make(map[string]int),
		byID:     make(map[string]model.Project, len(projects)),
		byPath:   make(map[string]model.Project, len(projects)),
	}
	if s.Sockets == nil {
		s.Sockets = map[int]Socket{}
	}
	for _, p := range projects {
		if _, ok := s.byID[p.ID]; !ok {
			s.byID[p.ID] = p
		}
		s.byPath[p.Path] = p

		port, ok := declared[p.Path]
		if !ok {
			continue
		}
		if owner, taken := s.byPort[port]; taken {
			logger.Warn().Int("port", port).Str("owner", owner.Name).Str("ignored", p.Name).
				Msg("duplicate declared port")
			continue
		}
		s.byPort[port] = p
		s.portOf[p.Path] = port
	}
	return s
}

// NewSnapshot builds a snapshot from already gathered data.
func NewSnapshot(root string, projects []model.Project, declared map[string]int, sockets map[int]Socket) *Snapshot {
	return newSnapshot(filepath.Clean(root), projects, declared, sockets, zerolog.Nop())
}

// ProjectByPort returns the project declaring port.
func (s *Snapshot) ProjectByPort(port int) (model.Project, bool) {
	p, ok := s.byPort[port]
	return p, ok
}

// PortOf returns the declared port of the project at path.
func (s *Snapshot) PortOf(path string) (int, bool) {
	port, ok := s.portOf[path]
	return port, ok
}

// ProjectByID returns the project with the given id.
func (s *Snapshot) ProjectByID(id string) (model.Project, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// ProjectForCwd resolves a working directory to the project it lies in: the
// first path segment below the root. Directories outside the root do not
// resolve.
func (s *Snapshot) ProjectForCwd(cwd string) (model.Project, bool) {
	if cwd == "" || s.Root == "" {
		return model.Project{}, false
	}
	rel, err := filepath.Rel(s.Root, filepath.Clean(cwd))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return model.Project{}, false
	}
	name, _, _ := strings.Cut(rel, string(filepath.Separator))
	path := filepath.Join(s.Root, name)
	if p, ok := s.byPath[path]; ok {
		return p, true
	}
	return model.Project{ID: name, Name: name, Path: path, Source: model.ProjectSourceFilesystem}, true
}

// ProjectPorts lists every project with its declared port and whether
// something is listening on it.
func (s *Snapshot) ProjectPorts() []model.ProjectPort {
	out := make([]model.ProjectPort, 0, len(s.Projects))
	for _, p := range s.Projects {
		pp := model.ProjectPort{Project: p}
		if port, ok := s.portOf[p.Path]; ok {
			pp.DeclaredPort = port
			if sock, ok := s.Sockets[port]; ok {
				pp.Listening = true
				pp.Process = sock.Process
			}
		}
		out = append(out, pp)
	}
	return out
}

// ListeningPorts returns the live ports in ascending order.
func (s *Snapshot) ListeningPorts() []int {
	ports := make([]int, 0, len(s.Sockets))
	for p := range s.Sockets {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}
