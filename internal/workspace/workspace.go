package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Manager handles the per-identity host directories that are bind-mounted
// into each container. The directories outlive the containers.
type Manager struct {
	root string
}

// Dirs are the host paths for one identity.
type Dirs struct {
	Root      string
	Workspace string
	Config    string
}

func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// Dirs returns the host paths for key without touching the filesystem.
// key must already be safe as a single path element.
func (m *Manager) Dirs(key string) Dirs {
	base := filepath.Join(m.root, key)
	return Dirs{
		Root:      base,
		Workspace: filepath.Join(base, "workspace"),
		Config:    filepath.Join(base, "claude-config"),
	}
}

// Prepare creates the directories for key if they do not exist.
func (m *Manager) Prepare(key string) (Dirs, error) {
	d := m.Dirs(key)
	for _, p := range []string{d.Workspace, d.Config} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return Dirs{}, fmt.Errorf("create %s: %w", p, err)
		}
	}
	return d, nil
}

// Exists reports whether key's workspace directory is present.
func (m *Manager) Exists(key string) bool {
	info, err := os.Stat(m.Dirs(key).Workspace)
	return err == nil && info.IsDir()
}

// List returns the keys that have a data directory, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			keys = append(keys, e.Name())
		}
	}
	sort.Strings(keys)
	return keys, nil
}
