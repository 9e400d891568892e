package nodes

import (
	"sort"
	"sync"

	"github.com/docuflow/docuflow/pkg/schema"
)

// Registry is the thread-safe node executor registry. Kinds are resolved
// through it once at graph-load time.
type Registry struct {
	mu        sync.RWMutex
	executors map[schema.NodeKind]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[schema.NodeKind]Executor),
	}
}

// Register adds an executor to the registry. Returns error on duplicate kind.
func (r *Registry) Register(exec Executor) error {
	if exec == nil {
		return schema.NewError(schema.ErrCodeValidation, "executor is nil")
	}
	kind := exec.Kind()
	if kind == "" {
		return schema.NewError(schema.ErrCodeValidation, "executor kind is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[kind]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "node kind %q already registered", kind)
	}

	r.executors[kind] = exec
	return nil
}

// MustRegister registers a batch of executors, panicking on duplicates.
// Intended for process start-up wiring only.
func (r *Registry) MustRegister(execs ...Executor) {
	for _, e := range execs {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
}

// Get retrieves the executor for a node kind.
func (r *Registry) Get(kind schema.NodeKind) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, ok := r.executors[kind]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownNodeKind, "node kind %q not registered", kind)
	}
	return exec, nil
}

// Has checks if a node kind is registered.
func (r *Registry) Has(kind schema.NodeKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[kind]
	return ok
}

// Kinds returns all registered kinds, sorted.
func (r *Registry) Kinds() []schema.NodeKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]schema.NodeKind, 0, len(r.executors))
	for k := range r.executors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Schemas returns the published config schema per registered kind, for the
// designer's form rendering.
func (r *Registry) Schemas() map[schema.NodeKind][]schema.ConfigField {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[schema.NodeKind][]schema.ConfigField, len(r.executors))
	for k, e := range r.executors {
		out[k] = e.Schema()
	}
	return out
}
