package plugin

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ayusman/mudra/internal/session"
)

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

// Manager manages plugin discovery and access.
type Manager struct {
	pluginDir string
	plugins   map[string]*Plugin
	mu        sync.RWMutex
}

// NewManager creates a new plugin Manager with the given plugin directory.
func NewManager(pluginDir string) *Manager {
	return &Manager{
		pluginDir: pluginDir,
		plugins:   make(map[string]*Plugin),
	}
}

// Discover scans the plugin directory for manifests and loads them. Each
// subdirectory is expected to be a plugin with a plugin.json manifest; a
// missing directory is not an error.
func (m *Manager) Discover() error {
	plugins := make(map[string]*Plugin)

	info, err := os.Stat(m.pluginDir)
	if os.IsNotExist(err) {
		m.replace(plugins)
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		m.replace(plugins)
		return nil
	}

	entries, err := os.ReadDir(m.pluginDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginPath := filepath.Join(m.pluginDir, entry.Name())
		p, err := loadPlugin(pluginPath)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Printf("Skipping plugin %s: %v", entry.Name(), err)
			}
			continue
		}
		m.register(plugins, p)
	}

	m.replace(plugins)
	return nil
}

func loadPlugin(path string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(path, ManifestFile))
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	if manifest.Name == "" || manifest.Executable == "" {
		return nil, errors.New("manifest needs a name and an executable")
	}

	return &Plugin{
		Manifest:   manifest,
		Path:       path,
		Executable: filepath.Join(path, manifest.Executable),
	}, nil
}

func (m *Manager) register(plugins map[string]*Plugin, p *Plugin) {
	if _, dup := plugins[p.Manifest.Name]; dup {
		log.Printf("Skipping duplicate plugin %q at %s", p.Manifest.Name, p.Path)
		return
	}
	plugins[p.Manifest.Name] = p
}

func (m *Manager) replace(plugins map[string]*Plugin) {
	m.mu.Lock()
	m.plugins = plugins
	m.mu.Unlock()
}

// Get returns a plugin by name.
// Returns ErrPluginNotFound if the plugin does not exist.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugin, ok := m.plugins[name]
	if !ok {
		return nil, ErrPluginNotFound
	}

	return plugin, nil
}

// List returns all discovered plugins ordered by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugins := make([]*Plugin, 0, len(m.plugins))
	for _, plugin := range m.plugins {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Manifest.Name < plugins[j].Manifest.Name
	})

	return plugins
}

// Subscribers returns the plugins handling events of type t, ordered by
// name.
func (m *Manager) Subscribers(t session.EventType) []*Plugin {
	var out []*Plugin
	for _, p := range m.List() {
		if p.Subscribes(t) {
			out = append(out, p)
		}
	}
	return out
}

// PluginDir returns the plugin directory path.
func (m *Manager) PluginDir() string {
	return m.pluginDir
}
