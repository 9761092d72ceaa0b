// Package synapse holds the process-wide synapse model table and the
// per-edge parameter spec consumed by builders.
//
// The table is append-only: type ids are assigned at registration, never
// reused, and the registry is frozen once network construction starts.
// Numerical weight-update dynamics live with external collaborators; the
// registry only carries what the connection infrastructure needs to store
// and route edges of a type.
package synapse

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nest/nest-simulator-sub010/model"
)

var (
	// ErrRegistryFrozen is returned when registering after Freeze.
	ErrRegistryFrozen = errors.New("synapse: registry is frozen")

	// ErrRegistryFull is returned when the type-id space is exhausted.
	ErrRegistryFull = errors.New("synapse: synapse type table full")

	// ErrDuplicateModel is returned when a model name is registered twice.
	ErrDuplicateModel = errors.New("synapse: duplicate model name")

	// ErrNilFactory is returned when a model has no connection factory.
	ErrNilFactory = errors.New("synapse: model factory is nil")
)

// ErrUnknownModel indicates a model name or id that is not registered.
type ErrUnknownModel struct {
	Name string
	ID   model.SynapseTypeID
}

func (e *ErrUnknownModel) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("synapse: unknown model %q", e.Name)
	}
	return fmt.Sprintf("synapse: unknown synapse type id %d", e.ID)
}

// Spec carries the per-edge parameters of one connect request.
type Spec struct {
	// Model is the registered synapse model name.
	Model string

	// Weight is the synaptic efficacy.
	Weight float64

	// DelayMS is the transmission delay in milliseconds. Zero means
	// "use one resolution step".
	DelayMS float64

	// Receptor selects the port on the target node.
	Receptor int

	// Label is an optional user tag for introspection filters; -1 when
	// unset.
	Label int

	// Params are model-specific parameters forwarded to the factory.
	Params map[string]float64
}

// Factory produces one connection record for a spec. Weight, delay and
// label are filled in by the caller after validation; the factory owns the
// model-specific state.
//
// This is the collaborator seam: synapse dynamics packages register a
// factory and the connection infrastructure never looks inside Params.
type Factory func(spec Spec) (model.Connection, error)

// Model describes one registered synapse type.
type Model struct {
	// Name is the unique model name used in specs.
	Name string

	// Primary is true for spike-delivering models; false for models
	// carrying continuous signals through the secondary event channel.
	Primary bool

	// HasDelay is false for models whose events bypass delay bookkeeping
	// (rate connections resolved within the communication interval).
	HasDelay bool

	// RequiresSymmetric marks models that must be created as symmetric
	// pairs (gap junctions).
	RequiresSymmetric bool

	// Factory builds connection records of this type.
	Factory Factory
}

// StaticFactory is the default factory: a record with no model-specific
// state.
func StaticFactory(Spec) (model.Connection, error) {
	return model.Connection{}, nil
}

// Registry is the process-wide synapse model table. Registration happens
// at startup; Freeze makes it immutable, after which reads are lock-free
// on the caller side (the slice is never reallocated once frozen).
type Registry struct {
	mu     sync.RWMutex
	frozen bool
	models []Model
	byName map[string]model.SynapseTypeID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]model.SynapseTypeID)}
}

// Register appends a model and returns its assigned type id.
func (r *Registry) Register(m Model) (model.SynapseTypeID, error) {
	if m.Factory == nil {
		return 0, ErrNilFactory
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return 0, ErrRegistryFrozen
	}
	if _, ok := r.byName[m.Name]; ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateModel, m.Name)
	}
	if len(r.models) >= model.MaxSynapseTypes {
		return 0, ErrRegistryFull
	}
	id := model.SynapseTypeID(len(r.models))
	r.models = append(r.models, m)
	r.byName[m.Name] = id
	return id, nil
}

// Freeze makes the registry immutable.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether the registry is immutable.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// ByName resolves a model name to its type id.
func (r *Registry) ByName(name string) (model.SynapseTypeID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return 0, &ErrUnknownModel{Name: name}
	}
	return id, nil
}

// Get returns the model for a type id.
func (r *Registry) Get(id model.SynapseTypeID) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.models) {
		return Model{}, &ErrUnknownModel{ID: id}
	}
	return r.models[id], nil
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Names returns the registered model names in id order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.models))
	for i, m := range r.models {
		names[i] = m.Name
	}
	return names
}
