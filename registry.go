// Package modrun is the root package of the module runtime: ModuleBase
// registration, the Module runtime wrapper, SubmoduleRequest, and the
// ModuleManager. Grounded on the teacher's global module registry
// (_examples/caddyserver-caddy/modules.go: RegisterModule, GetModule(s),
// the sync.RWMutex-guarded package-level map), generalized from "HTTP
// server module types" to "computational-kernel constructors."
package modrun

import (
	"fmt"
	"sync"

	"github.com/modrun/modrun/field"
	"github.com/modrun/modrun/modrunerr"
	"github.com/modrun/modrun/proptype"
)

// ModuleDescriptor is what a ModuleBase declares about itself: the property
// types it satisfies, any additional inputs/results/submodule requests not
// covered by those property types, and descriptive metadata. Grounded on
// module_base.hpp's add_property_type/add_input/add_result/add_submodule
// declaration surface.
type ModuleDescriptor struct {
	PropertyTypes []proptype.PropertyType
	ExtraInputs   field.InputMap
	ExtraResults  field.ResultMap
	// Submodules maps a submodule slot name to the property type required
	// of whatever Module eventually fills it.
	Submodules  map[string]proptype.PropertyType
	Description string
	Citations   []string
	// NonMemoizableByDefault starts the instantiated Module with memoization
	// off rather than on. Set by facade/lambda modules (see
	// NewFacadeModule), whose wrapped callable cannot be fingerprinted.
	NonMemoizableByDefault bool
}

// ModuleBase is the developer-authored algorithm: its declared field
// surface (via Describe) plus the computation itself (via Run). ModuleBase
// implementations are registered once at init() time and are treated as
// immutable blueprints; the runtime-owned, per-instance mutable state lives
// in Module, not here.
type ModuleBase interface {
	// Describe returns this ModuleBase's declared property types, extra
	// fields, submodule requests, and metadata. Called once per
	// registration; the returned maps are used as the template every
	// Module instance clones its own overlay from.
	Describe() ModuleDescriptor

	// Run performs the computation. inputs is the merged, ready effective
	// input map; submods gives access to bound, ready submodules. Run must
	// populate and return a ResultMap matching the declared result
	// surface.
	Run(ctx Context, inputs field.InputMap, submods SubmoduleMap) (field.ResultMap, error)
}

// Constructor builds a fresh ModuleBase instance. Registered types are
// instantiated lazily, once per ModuleManager.AddModule call, mirroring the
// teacher's "new instance per use" module-instantiation discipline
// (modules.go's ModuleInfo.New).
type Constructor func() ModuleBase

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// RegisterModuleType registers a named ModuleBase constructor. Call from an
// init() function; panics on a duplicate id or a nil constructor, the same
// fail-fast discipline as caddy.RegisterModule.
func RegisterModuleType(id string, ctor Constructor) {
	if ctor == nil {
		panic(fmt.Sprintf("modrun: nil constructor for module type %q", id))
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[id]; ok {
		panic(fmt.Sprintf("modrun: module type %q already registered", id))
	}
	registry[id] = ctor
}

// NewModuleBase instantiates the registered constructor for id. Fails with
// MissingKey if id was never registered.
func NewModuleBase(id string) (ModuleBase, error) {
	registryMu.RLock()
	ctor, ok := registry[id]
	registryMu.RUnlock()
	if !ok {
		return nil, modrunerr.Newf(modrunerr.MissingKey, "new_module_base: no module type registered under %q", id)
	}
	return ctor(), nil
}

// RegisteredTypes lists every registered module type id, for
// introspection/CLI use.
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for id := range registry {
		out = append(out, id)
	}
	return out
}

var (
	propRegistryMu sync.RWMutex
	propRegistry   = make(map[string]proptype.PropertyType)
)

// RegisterPropertyType records pt under its own Name() so a
// name-addressed caller — a declarative config document, a CLI flag — can
// look it up without importing the concrete Go type. Panics on a
// duplicate name, the same fail-fast discipline as RegisterModuleType.
func RegisterPropertyType(pt proptype.PropertyType) {
	propRegistryMu.Lock()
	defer propRegistryMu.Unlock()
	if _, ok := propRegistry[pt.Name()]; ok {
		panic(fmt.Sprintf("modrun: property type %q already registered", pt.Name()))
	}
	propRegistry[pt.Name()] = pt
}

// LookupPropertyType resolves a property type previously registered with
// RegisterPropertyType. Fails with MissingKey if name is unknown.
func LookupPropertyType(name string) (proptype.PropertyType, error) {
	propRegistryMu.RLock()
	defer propRegistryMu.RUnlock()
	pt, ok := propRegistry[name]
	if !ok {
		return nil, modrunerr.Newf(modrunerr.MissingKey, "lookup_property_type: no property type registered under %q", name)
	}
	return pt, nil
}
