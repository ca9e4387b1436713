package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	ErrPresetNotFound = errors.New("preset not found")
	ErrInvalidPreset  = errors.New("invalid preset")
)

var presetExtensions = []string{".yaml", ".yml"}

// Manager handles preset loading and caching
type Manager struct {
	presetDir     string
	defaultPreset *Preset
	presets       map[string]*Preset
	mu            sync.RWMutex
}

// NewManager creates a preset manager over presetDir. An empty presetDir
// yields a manager that only knows the built-in default.
func NewManager(presetDir string) (*Manager, error) {
	if presetDir != "" {
		if _, err := os.Stat(presetDir); os.IsNotExist(err) {
			return nil, fmt.Errorf("preset directory does not exist: %s", presetDir)
		}
	}

	m := &Manager{
		presetDir: presetDir,
		presets:   make(map[string]*Preset),
	}

	if err := m.loadDefaultPreset(); err != nil {
		return nil, fmt.Errorf("failed to load default preset: %w", err)
	}

	return m, nil
}

// Load returns a preset by name
func (m *Manager) Load(name string) (*Preset, error) {
	name = strings.TrimSpace(name)

	m.mu.RLock()
	if p, exists := m.presets[name]; exists {
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if p, exists := m.presets[name]; exists {
		return p, nil
	}

	p, err := m.readPreset(name)
	if errors.Is(err, ErrPresetNotFound) && name == DefaultPresetName {
		p, err = BuiltinDefault(), nil
	}
	if err != nil {
		return nil, err
	}

	m.presets[name] = p
	return p, nil
}

func (m *Manager) readPreset(name string) (*Preset, error) {
	if m.presetDir == "" || name == "" || strings.ContainsAny(name, `/\`) {
		return nil, ErrPresetNotFound
	}

	base := name
	for _, ext := range presetExtensions {
		base = strings.TrimSuffix(base, ext)
	}

	for _, ext := range presetExtensions {
		data, err := os.ReadFile(filepath.Join(m.presetDir, base+ext))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read preset file: %w", err)
		}
		p, err := ParsePreset(base, data)
		if err != nil {
			return nil, err
		}
		// The file name is the preset id
		p.Name = base
		return p, nil
	}
	return nil, ErrPresetNotFound
}

// ParsePreset decodes and validates a YAML preset. A missing name is filled
// from fallbackName.
func ParsePreset(fallbackName string, data []byte) (*Preset, error) {
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse preset: %w", err)
	}
	if p.Name == "" {
		p.Name = fallbackName
	}
	if err := ValidatePreset(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPreset, err)
	}
	return &p, nil
}

// List returns every valid preset, the default first and the rest by name
func (m *Manager) List() ([]*Preset, error) {
	names := map[string]bool{DefaultPresetName: true}

	if m.presetDir != "" {
		entries, err := os.ReadDir(m.presetDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read preset directory: %w", err)
		}
		for _, entry := range entries {
			ext := filepath.Ext(entry.Name())
			if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
				continue
			}
			names[strings.TrimSuffix(entry.Name(), ext)] = true
		}
	}

	var presets []*Preset
	for name := range names {
		p, err := m.Load(name)
		if err != nil {
			// Skip invalid presets
			continue
		}
		presets = append(presets, p)
	}

	sort.Slice(presets, func(i, j int) bool {
		if presets[i].Name == DefaultPresetName {
			return true
		}
		if presets[j].Name == DefaultPresetName {
			return false
		}
		return presets[i].Name < presets[j].Name
	})
	return presets, nil
}

// Default returns the default preset
func (m *Manager) Default() *Preset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultPreset
}

// SetDefault sets the default preset by name
func (m *Manager) SetDefault(name string) error {
	p, err := m.Load(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultPreset = p
	return nil
}

// Save writes a preset to disk and caches it
func (m *Manager) Save(p *Preset) error {
	if err := ValidatePreset(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPreset, err)
	}
	if m.presetDir == "" {
		return fmt.Errorf("no preset directory configured")
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal preset: %w", err)
	}

	path := filepath.Join(m.presetDir, p.Name+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write preset file: %w", err)
	}

	m.mu.Lock()
	m.presets[p.Name] = p
	m.mu.Unlock()
	return nil
}

// Refresh drops the cache and reloads the default preset
func (m *Manager) Refresh() error {
	m.mu.Lock()
	m.presets = make(map[string]*Preset)
	m.mu.Unlock()
	return m.loadDefaultPreset()
}

// Count returns the number of cached presets
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.presets)
}

func (m *Manager) loadDefaultPreset() error {
	p, err := m.Load(DefaultPresetName)
	if err != nil {
		// A broken default.yaml falls back to the built-in board
		p = BuiltinDefault()
	}

	m.mu.Lock()
	m.defaultPreset = p
	m.mu.Unlock()
	return nil
}
