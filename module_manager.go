package modrun

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/modrun/modrun/cache"
	"github.com/modrun/modrun/field"
	"github.com/modrun/modrun/modrunerr"
	"github.com/modrun/modrun/modrunmetrics"
	"github.com/modrun/modrun/proptype"
)

type defaultBinding struct {
	key       string
	inputMap  field.InputMap
}

// ModuleManager is the registry of live Module instances: module-key to
// Module, property-type to default module-key, and the shared cache
// subsystem. Grounded on module_manager_pimpl.hpp, with the auto-wiring
// traversal generalized from the teacher's Context.LoadModule
// (_examples/caddyserver-caddy/context.go) and concurrent-lookup
// deduplication borrowed from the teacher's golang.org/x/sync dependency
// via singleflight.
type ModuleManager struct {
	mu       sync.RWMutex
	modules  map[string]*Module
	defaults map[string]defaultBinding
	caches   *cache.ManagerCache
	runtime  any
	group    singleflight.Group
}

// NewModuleManager returns an empty ModuleManager.
func NewModuleManager() *ModuleManager {
	return &ModuleManager{
		modules:  make(map[string]*Module),
		defaults: make(map[string]defaultBinding),
		caches:   cache.NewManagerCache(),
	}
}

// SetRuntime installs the opaque parallel-runtime handle passed through to
// every module's Context. The core never interprets it.
func (mm *ModuleManager) SetRuntime(runtime any) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.runtime = runtime
}

// Runtime returns the currently installed runtime handle.
func (mm *ModuleManager) Runtime() any {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.runtime
}

// Count reports whether key is registered (0 or 1, matching the original's
// map-like count semantics).
func (mm *ModuleManager) Count(key string) int {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	if _, ok := mm.modules[key]; ok {
		return 1
	}
	return 0
}

// Size reports the number of registered modules.
func (mm *ModuleManager) Size() int {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return len(mm.modules)
}

// Keys lists every registered module key.
func (mm *ModuleManager) Keys() []string {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	out := make([]string, 0, len(mm.modules))
	for k := range mm.modules {
		out = append(out, k)
	}
	return out
}

// AddModule instantiates the registered ModuleBase type under typeID and
// registers it under key. Fails with DuplicateKey on collision.
func (mm *ModuleManager) AddModule(key, typeID string) (*Module, error) {
	base, err := NewModuleBase(typeID)
	if err != nil {
		return nil, err
	}
	return mm.AddModuleBase(key, typeID, base)
}

// AddModuleBase registers an already-constructed ModuleBase under key,
// tagging it with typeID as its cache-dimension RTTI key. Exposed
// separately from AddModule so tests and facades can register a ModuleBase
// value directly without going through the global constructor registry.
func (mm *ModuleManager) AddModuleBase(key, typeID string, base ModuleBase) (*Module, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if _, ok := mm.modules[key]; ok {
		return nil, modrunerr.Newf(modrunerr.DuplicateKey, "add_module: module key %q already registered", key)
	}
	m := newModule(base, typeID, base.Describe())
	m.manager = mm
	m.key = key
	m.resultCache = mm.caches.ModuleCache(key)
	m.userCache = mm.caches.UserCache(key)
	mm.modules[key] = m
	return m, nil
}

// CopyModule produces an unlocked copy of src under dst, sharing the same
// underlying ModuleBase but owning fresh per-instance state. Fails with
// DuplicateKey if dst is already registered or MissingKey if src is not.
func (mm *ModuleManager) CopyModule(src, dst string) (*Module, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if _, ok := mm.modules[dst]; ok {
		return nil, modrunerr.Newf(modrunerr.DuplicateKey, "copy_module: module key %q already registered", dst)
	}
	srcModule, ok := mm.modules[src]
	if !ok {
		return nil, modrunerr.Newf(modrunerr.MissingKey, "copy_module: no module registered under %q", src)
	}
	cp := srcModule.UnlockedCopy()
	cp.manager = mm
	cp.key = dst
	cp.resultCache = mm.caches.ModuleCache(dst)
	cp.userCache = mm.caches.UserCache(dst)
	mm.modules[dst] = cp
	return cp, nil
}

// RenameModule re-keys an existing module entry, updating any default
// binding that pointed at the old key. Supplements spec.md's §6 API
// listing, which names rename_module without elaborating it in §4.7 (see
// SPEC_FULL.md §4).
func (mm *ModuleManager) RenameModule(oldKey, newKey string) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	m, ok := mm.modules[oldKey]
	if !ok {
		return modrunerr.Newf(modrunerr.MissingKey, "rename_module: no module registered under %q", oldKey)
	}
	if _, ok := mm.modules[newKey]; ok {
		return modrunerr.Newf(modrunerr.DuplicateKey, "rename_module: module key %q already registered", newKey)
	}
	delete(mm.modules, oldKey)
	m.key = newKey
	mm.modules[newKey] = m
	mm.caches.Rekey(oldKey, newKey)
	for pt, d := range mm.defaults {
		if d.key == oldKey {
			d.key = newKey
			mm.defaults[pt] = d
		}
	}
	return nil
}

// Erase removes the module entry under key. Cache entries are retained;
// they may still be referenced by prior At() results.
func (mm *ModuleManager) Erase(key string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	delete(mm.modules, key)
	mm.caches.Release(key)
}

// ChangeSubmod binds submodKey's module into the named submodule slot of
// moduleKey.
func (mm *ModuleManager) ChangeSubmod(moduleKey, slotKey, submodKey string) error {
	mm.mu.RLock()
	m, ok := mm.modules[moduleKey]
	sub, subOK := mm.modules[submodKey]
	mm.mu.RUnlock()
	if !ok {
		return modrunerr.Newf(modrunerr.MissingKey, "change_submod: no module registered under %q", moduleKey)
	}
	if !subOK {
		return modrunerr.Newf(modrunerr.MissingKey, "change_submod: no module registered under %q", submodKey)
	}
	return m.ChangeSubmod(slotKey, sub)
}

// SetDefault records that any unsatisfied submodule request of property
// type p should be auto-wired, during At traversal, to the Module under
// key, using inputMap to fill the candidate's own inputs before its
// readiness is checked.
func (mm *ModuleManager) SetDefault(p proptype.PropertyType, key string, inputMap field.InputMap) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if _, ok := mm.modules[key]; !ok {
		return modrunerr.Newf(modrunerr.MissingKey, "set_default: no module registered under %q", key)
	}
	mm.defaults[p.Name()] = defaultBinding{key: key, inputMap: inputMap}
	return nil
}

// SetDefaultByName resolves propertyTypeName via LookupPropertyType and
// forwards to SetDefault. Lets a name-addressed config document
// (modrunconfig.Document.Defaults) declare default wiring without the
// caller holding a concrete proptype.PropertyType value.
func (mm *ModuleManager) SetDefaultByName(propertyTypeName, key string, inputMap field.InputMap) error {
	pt, err := LookupPropertyType(propertyTypeName)
	if err != nil {
		return err
	}
	return mm.SetDefault(pt, key, inputMap)
}

// At returns the Module under key after recursively auto-wiring any
// unbound submodule request whose declared property type has a default and
// whose default candidate is ready once the stored input map is applied.
// Concurrent At calls for the same key are deduplicated via singleflight,
// since the traversal is pure and idempotent. Fails with CycleDetected if
// the submodule graph loops back on a key already being resolved.
func (mm *ModuleManager) At(key string) (*Module, error) {
	v, err, _ := mm.group.Do(key, func() (any, error) {
		return mm.resolve(key, make(map[string]bool))
	})
	if err != nil {
		return nil, err
	}
	return v.(*Module), nil
}

func (mm *ModuleManager) resolve(key string, inProgress map[string]bool) (*Module, error) {
	if inProgress[key] {
		return nil, modrunerr.Newf(modrunerr.CycleDetected, "at: cycle detected involving module %q", key)
	}
	inProgress[key] = true
	defer delete(inProgress, key)

	mm.mu.RLock()
	m, ok := mm.modules[key]
	mm.mu.RUnlock()
	if !ok {
		return nil, modrunerr.Newf(modrunerr.MissingKey, "at: no module registered under %q", key)
	}

	for _, req := range m.submods {
		if req.Bound() != nil {
			continue
		}
		ptName := req.PropertyType().Name()
		mm.mu.RLock()
		def, hasDefault := mm.defaults[ptName]
		mm.mu.RUnlock()
		if !hasDefault {
			continue
		}
		candidate, err := mm.resolve(def.key, inProgress)
		if err != nil {
			if modrunerr.Is(err, modrunerr.CycleDetected) {
				return nil, err
			}
			continue
		}
		for name, v := range def.inputMap {
			_ = candidate.ChangeInput(name, v.RawValue())
		}
		if candidate.Ready() {
			req.Change(candidate)
			modrunmetrics.DefaultWiringsTotal.WithLabelValues(ptName).Inc()
		}
	}
	return m, nil
}

// Describe renders the human-readable state dump (Module.String) for the
// module under key, after running the same auto-wiring traversal At does,
// so the printed submodule bindings reflect any defaults that would be
// applied on use. Fails with MissingKey if key is not registered.
func (mm *ModuleManager) Describe(key string) (string, error) {
	m, err := mm.At(key)
	if err != nil {
		return "", err
	}
	return m.String(), nil
}

// RunAs resolves key via At, wraps args into its input map under p's
// declared order, and runs it, returning the raw ResultMap.
func (mm *ModuleManager) RunAs(ctx context.Context, key string, p proptype.PropertyType, args ...any) (field.ResultMap, error) {
	m, err := mm.At(key)
	if err != nil {
		return nil, err
	}
	return m.RunAs(ctx, p, args...)
}

// RunAs1 resolves key, runs it as p, and unwraps a single typed result.
func RunAs1[A any](mm *ModuleManager, ctx context.Context, key string, p proptype.PropertyType, args ...any) (A, error) {
	var zero A
	results, err := mm.RunAs(ctx, key, p, args...)
	if err != nil {
		return zero, err
	}
	return proptype.Unwrap1[A](p, results)
}

// RunAs2 is RunAs1 for a two-result property type.
func RunAs2[A, B any](mm *ModuleManager, ctx context.Context, key string, p proptype.PropertyType, args ...any) (A, B, error) {
	var za A
	var zb B
	results, err := mm.RunAs(ctx, key, p, args...)
	if err != nil {
		return za, zb, err
	}
	return proptype.Unwrap2[A, B](p, results)
}

// RunAs3 is RunAs1 for a three-result property type.
func RunAs3[A, B, C any](mm *ModuleManager, ctx context.Context, key string, p proptype.PropertyType, args ...any) (A, B, C, error) {
	var za A
	var zb B
	var zc C
	results, err := mm.RunAs(ctx, key, p, args...)
	if err != nil {
		return za, zb, zc, err
	}
	return proptype.Unwrap3[A, B, C](p, results)
}
