package game

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds an adapter for the configured chat markers.
type Factory func(markers Markers) Adapter

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// New builds the adapter registered under name. Empty marker fields fall
// back to DefaultMarkers.
func New(name string, markers Markers) (Adapter, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("game: no adapter for %q", name)
	}
	if markers.Chat == "" {
		markers.Chat = DefaultMarkers.Chat
	}
	if markers.Shell == "" {
		markers.Shell = DefaultMarkers.Shell
	}
	return factory(markers), nil
}

func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for k := range factories {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
