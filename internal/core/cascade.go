package core

import "slices"

// CascadeMap maps parent option values to the child options they allow.
// Keys keep insertion order so rendered option blocks are deterministic.
type CascadeMap struct {
	keys     []string
	children map[string][]string
}

// NewCascadeMap returns an empty map.
func NewCascadeMap() *CascadeMap {
	return &CascadeMap{children: make(map[string][]string)}
}

// Add appends children under parent.
func (m *CascadeMap) Add(parent string, children ...string) *CascadeMap {
	if _, ok := m.children[parent]; !ok {
		m.keys = append(m.keys, parent)
	}
	m.children[parent] = append(m.children[parent], children...)
	return m
}

// Set replaces the children of parent.
func (m *CascadeMap) Set(parent string, children []string) *CascadeMap {
	if _, ok := m.children[parent]; !ok {
		m.keys = append(m.keys, parent)
	}
	m.children[parent] = slices.Clone(children)
	return m
}

// Keys returns parent values in insertion order.
func (m *CascadeMap) Keys() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.keys)
}

// Children returns the options allowed under parent.
func (m *CascadeMap) Children(parent string) []string {
	if m == nil {
		return nil
	}
	return m.children[parent]
}

// Len is the number of parent values.
func (m *CascadeMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Clone returns a deep copy.
func (m *CascadeMap) Clone() *CascadeMap {
	c := NewCascadeMap()
	if m == nil {
		return c
	}
	for _, k := range m.keys {
		c.Set(k, m.children[k])
	}
	return c
}
