// Package config persists application settings and server definitions
// as a TOML file under the user's config directory.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
)

// FileName is the config file name inside the app config directory.
const FileName = "config.toml"

// appDirName is the directory created under the user config root.
const appDirName = "journal-transporter"

var (
	// ErrNotInitialized indicates the config file does not exist yet.
	ErrNotInitialized = errors.New("not initialized; run 'jt init' first")

	// ErrServerNotFound indicates the named server is not defined.
	ErrServerNotFound = errors.New("server not defined")
)

// Settings holds application-level defaults.
type Settings struct {
	// DataDirectory is where fetched mirror trees are stored.
	DataDirectory string `toml:"data_directory"`

	// DefaultSource names the server used as source when none is given.
	DefaultSource string `toml:"default_source,omitempty"`

	// DefaultTarget names the server used as target when none is given.
	DefaultTarget string `toml:"default_target,omitempty"`

	// Keep controls whether completed transfers are snapshotted.
	Keep bool `toml:"keep"`

	// KeepMax bounds how many snapshots are retained.
	KeepMax int `toml:"keep_max,omitempty"`
}

// Server holds the connection definition for one endpoint.
type Server struct {
	Type     string `toml:"type"`
	Host     string `toml:"host"`
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
	Port     int    `toml:"port,omitempty"`
}

// Config is the full persisted configuration.
type Config struct {
	Settings Settings          `toml:"settings"`
	Servers  map[string]Server `toml:"servers,omitempty"`
}

// DefaultPath returns the standard config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, appDirName, FileName), nil
}

// Manager provides thread-safe access to the config file.
type Manager struct {
	mu   sync.Mutex
	path string
}

// NewManager creates a Manager for the config file at path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the config file location.
func (m *Manager) Path() string {
	return m.path
}

// Load reads the config from disk.
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.loadLocked()
}

func (m *Manager) loadLocked() (*Config, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotInitialized, m.path)
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Servers == nil {
		cfg.Servers = map[string]Server{}
	}
	return &cfg, nil
}

func (m *Manager) saveLocked(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	// 0600: the file may hold server passwords.
	if err := os.WriteFile(m.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Create initializes the config file with the given data directory.
// An existing config keeps its servers and other settings.
func (m *Manager) Create(dataDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.loadLocked()
	if err != nil {
		if !errors.Is(err, ErrNotInitialized) {
			return err
		}
		cfg = &Config{Servers: map[string]Server{}}
	}
	cfg.Settings.DataDirectory = dataDir
	return m.saveLocked(cfg)
}

// Update applies fn to the loaded config and persists the result.
func (m *Manager) Update(fn func(*Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.loadLocked()
	if err != nil {
		return err
	}
	fn(cfg)
	return m.saveLocked(cfg)
}

// DefineServer creates or replaces a server definition.
func (m *Manager) DefineServer(name string, server Server) error {
	return m.Update(func(cfg *Config) {
		cfg.Servers[name] = server
	})
}

// DeleteServer removes a server definition.
func (m *Manager) DeleteServer(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.loadLocked()
	if err != nil {
		return err
	}
	if _, ok := cfg.Servers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, name)
	}
	delete(cfg.Servers, name)
	return m.saveLocked(cfg)
}

// Server returns the named server definition.
func (m *Manager) Server(name string) (Server, error) {
	cfg, err := m.Load()
	if err != nil {
		return Server{}, err
	}
	server, ok := cfg.Servers[name]
	if !ok {
		return Server{}, fmt.Errorf("%w: %s", ErrServerNotFound, name)
	}
	return server, nil
}

// ServerNames returns the defined server names, sorted.
func (m *Manager) ServerNames() ([]string, error) {
	cfg, err := m.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
