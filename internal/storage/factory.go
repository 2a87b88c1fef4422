package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/momofin/momofin-backend/internal/config"
)

// FactoryFunc builds a backend from the application config
type FactoryFunc func(*config.Config) (Storage, error)

var factories = make(map[string]FactoryFunc)

// Register makes a backend available under name
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewStorage creates the backend named by storage.default_backend
func NewStorage(cfg *config.Config) (Storage, error) {
	factory, ok := factories[cfg.Storage.DefaultBackend]
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %q (registered: %s)",
			cfg.Storage.DefaultBackend, strings.Join(registered(), ", "))
	}
	return factory(cfg)
}

func registered() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
