package worker

import (
	"fmt"
	"sort"
	"sync"

	errspkg "github.com/neematajs/neemata-go/internal/errors"
	loggingpkg "github.com/neematajs/neemata-go/internal/logging"
)

// Registry collects modules and materializes their procedures, tasks, and
// commands into flat, name-addressed maps. Load fails fast with
// DuplicateName on any collision within a namespace; Clear resets the
// registry so a fresh Load can follow, once the container has been
// disposed.
type Registry struct {
	mu      sync.RWMutex
	modules []*Module
	loaded  bool

	procedures map[string]*Procedure
	tasks      map[string]*Task
	commands   map[string]CommandFunc

	logger loggingpkg.ServiceLogger
}

// NewRegistry constructs an empty, unloaded Registry.
func NewRegistry(logger loggingpkg.ServiceLogger) *Registry {
	return &Registry{logger: logger}
}

// Register appends a module. Valid only before Load or after Clear.
func (r *Registry) Register(m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = append(r.modules, m)
}

// Load walks every registered module and materializes its procedures,
// tasks, and commands into flat maps, failing with DuplicateName on any
// collision.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	procedures := make(map[string]*Procedure)
	tasks := make(map[string]*Task)
	commands := make(map[string]CommandFunc)

	for _, m := range r.modules {
		for _, p := range m.procedures {
			key := namespacedKey(m.Name, p.Name)
			if _, exists := procedures[key]; exists {
				return errspkg.New(errspkg.DuplicateName, fmt.Sprintf("procedure %q already registered", key))
			}
			procedures[key] = p
		}
		for _, t := range m.tasks {
			key := namespacedKey(m.Name, t.Name)
			if _, exists := tasks[key]; exists {
				return errspkg.New(errspkg.DuplicateName, fmt.Sprintf("task %q already registered", key))
			}
			tasks[key] = t
		}
		for name, fn := range m.commands {
			key := namespacedKey(m.Name, name)
			if _, exists := commands[key]; exists {
				return errspkg.New(errspkg.DuplicateName, fmt.Sprintf("command %q already registered", key))
			}
			commands[key] = fn
		}
	}

	r.procedures = procedures
	r.tasks = tasks
	r.commands = commands
	r.loaded = true
	return nil
}

// Clear resets the registry to its unloaded state. The caller must have
// disposed the associated container beforehand; Clear itself does not
// touch the container.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procedures = nil
	r.tasks = nil
	r.commands = nil
	r.loaded = false
}

// Loaded reports whether Load has run since construction or the last
// Clear.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Procedure looks up a loaded procedure by its namespaced name.
func (r *Registry) Procedure(name string) (*Procedure, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return nil, errspkg.ErrRegistryNotLoaded
	}
	p, ok := r.procedures[name]
	if !ok {
		return nil, errspkg.New(errspkg.NotFound, fmt.Sprintf("procedure %q not registered", name))
	}
	return p, nil
}

// Task looks up a loaded task by its namespaced name.
func (r *Registry) Task(name string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return nil, errspkg.ErrRegistryNotLoaded
	}
	t, ok := r.tasks[name]
	if !ok {
		return nil, errspkg.New(errspkg.NotFound, fmt.Sprintf("task %q not registered", name))
	}
	return t, nil
}

// Command looks up a loaded command by its namespaced name.
func (r *Registry) Command(name string) (CommandFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return nil, errspkg.ErrRegistryNotLoaded
	}
	fn, ok := r.commands[name]
	if !ok {
		return nil, errspkg.New(errspkg.NotFound, fmt.Sprintf("command %q not registered", name))
	}
	return fn, nil
}

// ProcedureNames returns every loaded procedure name, sorted.
func (r *Registry) ProcedureNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.procedures)
}

// TaskNames returns every loaded task name, sorted.
func (r *Registry) TaskNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.tasks)
}

// Print writes a hierarchical listing of modules, procedures, tasks, and
// commands to the registry's logger sink.
func (r *Registry) Print() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.logger == nil {
		return
	}
	for _, m := range r.modules {
		r.logger.Info("module", loggingpkg.LogFields{"name": m.Name})
		for _, p := range m.procedures {
			r.logger.Info("  procedure", loggingpkg.LogFields{"name": namespacedKey(m.Name, p.Name)})
		}
		for _, t := range m.tasks {
			r.logger.Info("  task", loggingpkg.LogFields{"name": namespacedKey(m.Name, t.Name)})
		}
		for name := range m.commands {
			r.logger.Info("  command", loggingpkg.LogFields{"name": namespacedKey(m.Name, name)})
		}
	}
}

func namespacedKey(module, name string) string {
	if module == "" {
		return name
	}
	return module + "." + name
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
