// Package inventory discovers local projects, their declared ports and the
// processes listening on the host.
package inventory

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/devtunnel/internal/model"
)

// maxManifestSize bounds how much of a manifest is read.
const maxManifestSize = 1 << 20

// FileSystem is the subset of filesystem access the inventory needs. Paths
// are absolute.
type FileSystem interface {
	ReadDir(name string) ([]fs.DirEntry, error)
	ReadFile(name string) ([]byte, error)
}

// OSFileSystem reads the real filesystem.
type OSFileSystem struct{}

func (OSFileSystem) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }

func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxManifestSize))
}

// ProjectSource lists projects known to the database.
type ProjectSource interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
}

// Inventory builds per-pass snapshots of projects and listening sockets.
type Inventory struct {
	fsys     FileSystem
	source   ProjectSource
	sockets  SocketInspector
	root     string
	manifest string
	logger   zerolog.Logger
}

// New creates an Inventory. source and sockets may be nil.
func New(fsys FileSystem, source ProjectSource, sockets SocketInspector, root, manifest string, logger zerolog.Logger) *Inventory {
	return &Inventory{
		fsys:     fsys,
		source:   source,
		sockets:  sockets,
		root:     filepath.Clean(root),
		manifest: manifest,
		logger:   logger.With().Str("component", "inventory").Logger(),
	}
}

// Root returns the projects root directory.
func (inv *Inventory) Root() string { return inv.root }

// Snapshot builds the project-port map and the live-socket map concurrently.
// Socket inspection failure degrades to an empty socket map.
func (inv *Inventory) Snapshot(ctx context.Context) (*Snapshot, error) {
	var (
		projects []model.Project
		declared map[string]int
		sockets  map[int]Socket
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		projects, err = inv.Projects(gctx)
		if err != nil {
			return err
		}
		declared = inv.declaredPorts(projects)
		return nil
	})
	g.Go(func() error {
		sockets = inv.listening(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return newSnapshot(inv.root, projects, declared, sockets, inv.logger), nil
}

// Projects unions database-known projects with the directories directly
// under the projects root. The union key is the cleaned path and the
// database entry wins. Database projects sort first, then by name.
func (inv *Inventory) Projects(ctx context.Context) ([]model.Project, error) {
	var db []model.Project
	if inv.source != nil {
		var err error
		db, err = inv.source.ListProjects(ctx)
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(db))
	out := make([]model.Project, 0, len(db))
	for _, p := range db {
		p.Path = filepath.Clean(p.Path)
		p.Source = model.ProjectSourceDatabase
		if seen[p.Path] {
			continue
		}
		seen[p.Path] = true
		out = append(out, p)
	}

	for _, p := range inv.scanRoot() {
		if seen[p.Path] {
			continue
		}
		seen[p.Path] = true
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source == model.ProjectSourceDatabase
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (inv *Inventory) scanRoot() []model.Project {
	entries, err := inv.fsys.ReadDir(inv.root)
	if err != nil {
		inv.logger.Warn().Err(err).Str("root", inv.root).Msg("cannot list projects root")
		return nil
	}
	var out []model.Project
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		out = append(out, model.Project{
			ID:     name,
			Name:   name,
			Path:   filepath.Join(inv.root, name),
			Source: model.ProjectSourceFilesystem,
		})
	}
	return out
}

// DeclaredPort reads the manifest at the project root.
func (inv *Inventory) DeclaredPort(p model.Project) (int, bool) {
	data, err := inv.fsys.ReadFile(filepath.Join(p.Path, inv.manifest))
	if err != nil {
		return 0, false
	}
	return ParseManifestPort(data)
}

func (inv *Inventory) declaredPorts(projects []model.Project) map[string]int {
	out := make(map[string]int)
	for _, p := range projects {
		if port, ok := inv.DeclaredPort(p); ok {
			out[p.Path] = port
		}
	}
	return out
}

func (inv *Inventory) listening(ctx context.Context) map[int]Socket {
	if inv.sockets == nil {
		return map[int]Socket{}
	}
	sockets, err := inv.sockets.Listening(ctx)
	if err != nil {
		inv.logger.Warn().Err(err).Msg("socket inspection failed")
	}
	if sockets == nil {
		return map[int]Socket{}
	}
	return sockets
}
