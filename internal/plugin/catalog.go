package plugin

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// FactoryParams is handed to a factory when a manifest entry is instantiated.
type FactoryParams struct {
	Name            string
	PreferencesPath string
	Settings        map[string]any
	Logger          *slog.Logger
}

// Setting returns a string setting or fallback when absent.
func (p FactoryParams) Setting(key, fallback string) string {
	if v, ok := p.Settings[key]; ok {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return fallback
}

// Factory constructs one plugin instance.
type Factory func(FactoryParams) (Plugin, error)

// Catalog maps manifest type keys to factories.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory under key. Keys are case-insensitive and must be unique.
func (c *Catalog) Register(key string, factory Factory) error {
	key = normalizeKey(key)
	if key == "" {
		return fmt.Errorf("register factory: empty key")
	}
	if factory == nil {
		return fmt.Errorf("register factory %q: nil factory", key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[key]; exists {
		return fmt.Errorf("register factory %q: already registered", key)
	}
	c.factories[key] = factory
	return nil
}

// MustRegister is Register that panics on error. Intended for init-time wiring.
func (c *Catalog) MustRegister(key string, factory Factory) {
	if err := c.Register(key, factory); err != nil {
		panic(err)
	}
}

// Factory returns the factory for key.
func (c *Catalog) Factory(key string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[normalizeKey(key)]
	return f, ok
}

// Keys returns the registered keys in sorted order.
func (c *Catalog) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.factories))
	for k := range c.factories {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
