package schema

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]*Schema{}
)

// Register makes a code-declared schema available by name. It panics on a
// malformed schema or a duplicate name, both of which are programming errors.
func Register(s *Schema) *Schema {
	MustCheck(s)
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[s.Name]; exists {
		panic(fmt.Sprintf("schema %q registered twice", s.Name))
	}
	registry[s.Name] = s
	return s
}

// Get returns a registered schema by name.
func Get(name string) (*Schema, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("schema not found: %s", name)
	}
	return s, nil
}

// Names returns all registered schema names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
