package transport

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// PathDef describes one transport path before it is built.
type PathDef struct {
	Entry uint32
	Speed float64
	Accel float64
	Nodes []Node
}

// Registry builds templates once and shares them across every map.
type Registry struct {
	mu        sync.RWMutex
	templates map[uint32]*Template
}

// NewRegistry creates an empty path registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[uint32]*Template)}
}

// Load builds every definition. Broken paths are logged and skipped.
func (r *Registry) Load(defs []PathDef) int {
	loaded := 0
	for _, d := range defs {
		if err := r.Add(d); err != nil {
			slog.Warn("skip transport path", "entry", d.Entry, "error", err)
			continue
		}
		loaded++
	}
	slog.Info("transport templates loaded", "count", loaded)
	return loaded
}

// Add builds and registers one template.
func (r *Registry) Add(d PathDef) error {
	tmpl, err := BuildTemplate(d.Entry, d.Nodes, d.Speed, d.Accel)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.templates[d.Entry] = tmpl
	r.mu.Unlock()
	return nil
}

// Template returns the template of entry.
func (r *Registry) Template(entry uint32) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[entry]
	if !ok {
		return nil, fmt.Errorf("transport %d: %w", entry, ErrUnknownEntry)
	}
	return t, nil
}

// ForMap returns templates whose path starts on mapID, sorted by entry.
func (r *Registry) ForMap(mapID uint32) []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Template
	for _, t := range r.templates {
		if t.Legs[0].MapID == mapID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b *Template) int { return cmp.Compare(a.Entry, b.Entry) })
	return out
}
