package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrTemplateNotFound is returned for unknown template keys.
var ErrTemplateNotFound = errors.New("template not found")

// SourceBuiltin marks definitions compiled into the binary.
const SourceBuiltin = "builtin"

// Registry holds template definitions by key. It is safe for concurrent
// use; the file watcher swaps definitions while requests read them.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]TemplateDefinition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]TemplateDefinition)}
}

// defaultRegistry receives built-in templates at init time.
var defaultRegistry = NewRegistry()

// DefaultRegistry returns the registry built-in templates register into.
func DefaultRegistry() *Registry { return defaultRegistry }

// Register adds a built-in definition to the default registry.
// Panics on invalid or duplicate definitions.
func Register(def TemplateDefinition) {
	if def.Source == "" {
		def.Source = SourceBuiltin
	}
	if err := defaultRegistry.Add(def); err != nil {
		panic(err)
	}
}

// Add checks def and stores it. Keys must be unique.
func (r *Registry) Add(def TemplateDefinition) error {
	def, err := prepare(def)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Info.Key]; exists {
		return fmt.Errorf("template already registered: %s", def.Info.Key)
	}
	r.defs[def.Info.Key] = def
	return nil
}

// ReplaceSource swaps every definition loaded from source for defs in one
// step. Keys owned by another source are rejected and nothing changes.
func (r *Registry) ReplaceSource(source string, defs []TemplateDefinition) error {
	prepared := make(map[string]TemplateDefinition, len(defs))
	for _, def := range defs {
		def.Source = source
		p, err := prepare(def)
		if err != nil {
			return err
		}
		if _, dup := prepared[p.Info.Key]; dup {
			return fmt.Errorf("%s: template %s defined twice", source, p.Info.Key)
		}
		prepared[p.Info.Key] = p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range prepared {
		if cur, ok := r.defs[key]; ok && cur.Source != source {
			return fmt.Errorf("%s: template %s already registered by %s", source, key, cur.Source)
		}
	}
	for key, def := range r.defs {
		if def.Source == source {
			delete(r.defs, key)
		}
	}
	for key, def := range prepared {
		r.defs[key] = def
	}
	return nil
}

// RemoveSource drops every definition loaded from source and returns how
// many were removed.
func (r *Registry) RemoveSource(source string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, def := range r.defs {
		if def.Source == source {
			delete(r.defs, key)
			n++
		}
	}
	return n
}

// Get returns a definition by key.
func (r *Registry) Get(key string) (TemplateDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[key]
	return def, ok
}

// Lookup is Get with ErrTemplateNotFound for unknown keys.
func (r *Registry) Lookup(key string) (TemplateDefinition, error) {
	def, ok := r.Get(key)
	if !ok {
		return TemplateDefinition{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, key)
	}
	return def, nil
}

// All returns every definition sorted by group, then key.
func (r *Registry) All() []TemplateDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]TemplateDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Info.Group != result[j].Info.Group {
			return result[i].Info.Group < result[j].Info.Group
		}
		return result[i].Info.Key < result[j].Info.Key
	})
	return result
}

// ByGroup returns the definitions of one group sorted by key.
func (r *Registry) ByGroup(group string) []TemplateDefinition {
	var result []TemplateDefinition
	for _, def := range r.All() {
		if def.Info.Group == group {
			result = append(result, def)
		}
	}
	return result
}

// Groups returns all group names sorted alphabetically.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for _, def := range r.defs {
		seen[def.Info.Group] = true
	}
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Count returns the number of registered templates.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Clone returns an independent registry with the same definitions.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := NewRegistry()
	for k, v := range r.defs {
		c.defs[k] = v
	}
	return c
}
