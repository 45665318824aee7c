// Package script runs instance scripts written in Lua.
package script

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// Registry holds compiled scripts by name. Every instance gets its own Lua state
// built from the shared compiled chunk.
type Registry struct {
	mu     sync.RWMutex
	protos map[string]*lua.FunctionProto
}

// NewRegistry creates an empty script registry.
func NewRegistry() *Registry {
	return &Registry{protos: make(map[string]*lua.FunctionProto)}
}

// LoadDir compiles every <name>.lua in dir. A missing directory is not an error.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read scripts dir %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		src, err := os.ReadFile(path)
		if err != nil {
			return loaded, fmt.Errorf("read script %s: %w", path, err)
		}
		name := strings.TrimSuffix(entry.Name(), ".lua")
		if err := r.LoadSource(name, string(src)); err != nil {
			return loaded, err
		}
		loaded++
		slog.Debug("loaded instance script", "name", name, "file", path)
	}
	return loaded, nil
}

// LoadSource compiles src under name, replacing any previous version.
func (r *Registry) LoadSource(name, src string) error {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return fmt.Errorf("parse script %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return fmt.Errorf("compile script %s: %w", name, err)
	}
	r.mu.Lock()
	r.protos[name] = proto
	r.mu.Unlock()
	return nil
}

// Has reports whether a script is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.protos[name]
	return ok
}

// CreateInstanceData starts a fresh Lua state running script name for one instance.
func (r *Registry) CreateInstanceData(name string, info Info, host Host) (*Instance, error) {
	r.mu.RLock()
	proto, ok := r.protos[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("instance script %q: %w", name, ErrUnknownScript)
	}
	return newInstance(name, proto, info, host)
}
