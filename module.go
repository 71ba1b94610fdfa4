package modrun

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/modrun/modrun/anyfield"
	"github.com/modrun/modrun/cache"
	"github.com/modrun/modrun/field"
	"github.com/modrun/modrun/modrunerr"
	"github.com/modrun/modrun/modrunlog"
	"github.com/modrun/modrun/modrunmetrics"
	"github.com/modrun/modrun/proptype"
)

var tracer = otel.Tracer("github.com/modrun/modrun")

// ProfileInfo records the timing a Module has accumulated across calls,
// including nested submodule time, per spec.md §4.5 step 7. Grounded on
// module_pimpl.hpp's timer member; String formats the call count with
// dustin/go-humanize and the durations with time.Duration's own String.
type ProfileInfo struct {
	Calls        int
	TotalElapsed time.Duration
	LastElapsed  time.Duration
}

func (p ProfileInfo) String() string {
	return fmt.Sprintf("%s call(s), last %s, total %s",
		humanize.Comma(int64(p.Calls)), p.LastElapsed, p.TotalElapsed)
}

// NotReadyReport names which inputs and submodules are keeping a Module
// from being ready, the detail the original's list_not_ready (surfaced
// abstractly in spec.md §4.5 step 3) names but the distilled spec.md
// doesn't elaborate.
type NotReadyReport struct {
	Inputs     []string
	Submodules []string
}

func (r NotReadyReport) Empty() bool { return len(r.Inputs) == 0 && len(r.Submodules) == 0 }

// Module is the runtime-owned instance wrapping a ModuleBase: per-instance
// input/submodule overlays, locking, memoization, fingerprinting, and
// identity. Grounded on detail_/module_pimpl.hpp.
type Module struct {
	mu sync.Mutex

	base       ModuleBase
	baseTypeID string
	key        string
	id         uuid.UUID
	name       string
	hasName    bool

	description string
	citations   []string

	inputs        field.InputMap
	submods       SubmoduleMap
	propertyTypes map[string]proptype.PropertyType

	locked  bool
	memoize bool

	resultCache *cache.Cache
	userCache   *cache.Cache

	lastResults field.ResultMap
	profile     ProfileInfo

	manager *ModuleManager
}

func newModule(base ModuleBase, baseTypeID string, d ModuleDescriptor) *Module {
	m := &Module{
		base:          base,
		baseTypeID:    baseTypeID,
		id:            uuid.New(),
		description:   d.Description,
		citations:     append([]string(nil), d.Citations...),
		inputs:        make(field.InputMap),
		submods:       make(SubmoduleMap),
		propertyTypes: make(map[string]proptype.PropertyType),
		memoize:       !d.NonMemoizableByDefault,
	}
	for name, in := range d.ExtraInputs {
		m.inputs[name] = in.Clone()
	}
	for _, pt := range d.PropertyTypes {
		m.propertyTypes[pt.Name()] = pt
		eff, err := proptype.EffectiveInputs(pt)
		if err == nil {
			for i := 0; i < eff.Len(); i++ {
				name := eff.NameAt(i)
				if _, exists := m.inputs[name]; !exists {
					m.inputs[name] = eff.FieldAt(i).Clone()
				}
			}
		}
	}
	for name, pt := range d.Submodules {
		m.submods[name] = NewSubmoduleRequest(pt)
	}
	return m
}

// UUID returns this Module instance's identity.
func (m *Module) UUID() uuid.UUID { return m.id }

// Locked reports whether the Module has transitioned to frozen.
func (m *Module) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// SetName assigns a user-visible name. Fails with Locked if the module is
// already locked.
func (m *Module) SetName(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return modrunerr.Newf(modrunerr.Locked, "set_name: module is locked")
	}
	m.name = name
	m.hasName = true
	return nil
}

func (m *Module) HasName() bool        { return m.hasName }
func (m *Module) Name() string         { return m.name }
func (m *Module) HasDescription() bool { return m.description != "" }
func (m *Module) Description() string { return m.description }
func (m *Module) Citations() []string  { return append([]string(nil), m.citations...) }

// Satisfies reports whether this Module's declared property-type set
// contains the given property type name.
func (m *Module) Satisfies(propertyTypeName string) bool {
	_, ok := m.propertyTypes[propertyTypeName]
	return ok
}

// PropertyTypeNames lists the satisfied property types.
func (m *Module) PropertyTypeNames() []string {
	out := make([]string, 0, len(m.propertyTypes))
	for name := range m.propertyTypes {
		out = append(out, name)
	}
	return out
}

// Inputs returns a clone of the current input overlay.
func (m *Module) Inputs() field.InputMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	return field.CloneInputs(m.inputs)
}

// Submods returns the submodule request map (not cloned: bound Module
// pointers are part of the live graph).
func (m *Module) Submods() SubmoduleMap { return m.submods }

// Results returns the ResultMap produced by the most recent Run call, or
// nil if Run has never been called.
func (m *Module) Results() field.ResultMap { return m.lastResults }

// ChangeInput binds v to the named input. Fails with Locked once the
// module has locked.
func (m *Module) ChangeInput(name string, v anyfield.AnyField) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return modrunerr.Newf(modrunerr.Locked, "change_input: module is locked")
	}
	in, ok := m.inputs[name]
	if !ok {
		return modrunerr.Newf(modrunerr.MissingKey, "change_input: no input named %q", name)
	}
	return field.Change(in, v)
}

// ChangeSubmod binds sub into the named submodule slot. Fails with Locked
// once the module has locked.
func (m *Module) ChangeSubmod(name string, sub *Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return modrunerr.Newf(modrunerr.Locked, "change_submod: module is locked")
	}
	req, ok := m.submods[name]
	if !ok {
		return modrunerr.Newf(modrunerr.MissingKey, "change_submod: no submodule slot named %q", name)
	}
	req.Change(sub)
	return nil
}

// AddCELCheck compiles expr and appends it as a named validity check on
// the named input, the config-driven analogue of calling
// field.AddCheck/AddCELCheck directly against a developer-held *Input.
// Fails with Locked once the module has locked, or with MissingKey if no
// such input exists.
func (m *Module) AddCELCheck(name, expr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return modrunerr.Newf(modrunerr.Locked, "add_cel_check: module is locked")
	}
	in, ok := m.inputs[name]
	if !ok {
		return modrunerr.Newf(modrunerr.MissingKey, "add_cel_check: no input named %q", name)
	}
	return field.AddCELCheck(in, expr)
}

// ListNotReady names the unset, non-optional inputs and the unready
// submodule slots.
func (m *Module) ListNotReady() NotReadyReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listNotReadyLocked(m.inputs)
}

func (m *Module) listNotReadyLocked(effective field.InputMap) NotReadyReport {
	var r NotReadyReport
	for name, in := range effective {
		if !in.Ready() {
			r.Inputs = append(r.Inputs, name)
		}
	}
	for name, req := range m.submods {
		if !req.Ready() {
			r.Submodules = append(r.Submodules, name)
		}
	}
	return r
}

// Ready reports whether every non-optional input has a value and every
// submodule is bound and ready.
func (m *Module) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listNotReadyLocked(m.inputs).Empty()
}

// ResetCache clears the shared result cache.
func (m *Module) ResetCache() {
	if m.resultCache != nil {
		m.resultCache.ResetCache()
	}
}

// ResetInternalCache clears the developer-scratch user cache.
func (m *Module) ResetInternalCache() {
	if m.userCache != nil {
		m.userCache.ResetCache()
	}
}

// UserCache returns the per-module developer-scratch cache; kept on Module
// since the cache is vended once per module key and shared by every call.
// Context does not carry it, so a ModuleBase's Run reaches it only through a
// handle to the Module.
func (m *Module) UserCache() *cache.Cache { return m.userCache }

// IsMemoizable reports whether results may be cached: the flag is on, the
// module has identity (always true here, a UUID is assigned at
// construction), and every bound submodule is itself memoizable.
func (m *Module) IsMemoizable() bool {
	m.mu.Lock()
	memoize := m.memoize
	m.mu.Unlock()
	if !memoize {
		return false
	}
	for _, req := range m.submods {
		if req.Bound() != nil && !req.Bound().IsMemoizable() {
			return false
		}
	}
	return true
}

func (m *Module) TurnOnMemoization() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memoize = true
}

func (m *Module) TurnOffMemoization() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memoize = false
}

// Lock transitions the Module to frozen (write-once) and recursively locks
// every currently bound submodule.
func (m *Module) Lock() {
	m.mu.Lock()
	already := m.locked
	m.locked = true
	m.mu.Unlock()
	if already {
		return
	}
	for _, req := range m.submods {
		if b := req.Bound(); b != nil {
			b.Lock()
		}
	}
}

// UnlockedCopy yields a fresh Module carrying the same effective state
// (inputs, submodule bindings, property types) but unlocked, sharing the
// same underlying ModuleBase.
func (m *Module) UnlockedCopy() *Module {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &Module{
		base:          m.base,
		baseTypeID:    m.baseTypeID,
		id:            uuid.New(),
		description:   m.description,
		citations:     append([]string(nil), m.citations...),
		inputs:        field.CloneInputs(m.inputs),
		submods:       make(SubmoduleMap, len(m.submods)),
		propertyTypes: m.propertyTypes,
		memoize:       m.memoize,
		resultCache:   m.resultCache,
		userCache:     m.userCache,
		manager:       m.manager,
	}
	for name, req := range m.submods {
		out.submods[name] = req.Clone()
	}
	return out
}

// SubmodUUIDs reports the UUID of every currently bound submodule, keyed by
// slot name, for introspection/debugging.
func (m *Module) SubmodUUIDs() map[string]uuid.UUID {
	out := make(map[string]uuid.UUID)
	for name, req := range m.submods {
		if b := req.Bound(); b != nil {
			out[name] = b.UUID()
		}
	}
	return out
}

// ProfileInfo reports the accumulated timing for this Module.
func (m *Module) ProfileInfo() ProfileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile
}

// Run executes the seven-step algorithm from spec.md §4.5: validate caller
// inputs, merge with the bound overlay, check readiness, lock, fingerprint,
// probe the cache, and on a miss invoke the ModuleBase and store the
// result.
func (m *Module) Run(ctx context.Context, callerInputs field.InputMap) (field.ResultMap, error) {
	m.mu.Lock()

	// 1. Validate caller-supplied inputs.
	for name, in := range callerInputs {
		if in.HasValue() && !in.IsValid() {
			m.mu.Unlock()
			return nil, modrunerr.Newf(modrunerr.BoundsCheckFailure, "run: caller-supplied input %q fails its checks", name)
		}
	}

	// 2. Merge: effective = caller_inputs ∪ bound_inputs (caller overrides bound).
	effective := field.CloneInputs(m.inputs)
	for name, in := range callerInputs {
		if _, ok := effective[name]; !ok {
			m.mu.Unlock()
			return nil, modrunerr.Newf(modrunerr.MissingKey, "run: caller supplied unknown input %q", name)
		}
		if in.HasValue() {
			effective[name] = in.Clone()
		}
	}

	// 3. Readiness.
	report := m.listNotReadyLocked(effective)
	if !report.Empty() {
		m.mu.Unlock()
		return nil, modrunerr.Newf(modrunerr.NotReady, "run: not ready, unset inputs %v, unready submodules %v", report.Inputs, report.Submodules)
	}

	submodsSnapshot := m.submods
	memoize := m.IsMemoizableLocked()
	resultCache := m.resultCache
	m.mu.Unlock()

	// 4. Lock.
	m.Lock()

	// 5. Fingerprint.
	fp := m.fingerprint(effective)

	// 6. Cache probe.
	if memoize && resultCache != nil {
		if cached, err := resultCache.Uncache(fp); err == nil {
			modrunmetrics.RunsTotal.WithLabelValues(m.key, "hit").Inc()
			modrunlog.L().Debug("module run: cache hit", zapKey(m)...)
			m.mu.Lock()
			m.lastResults = cached
			m.mu.Unlock()
			return cached, nil
		}
	}

	// 7. Miss path.
	spanCtx, span := tracer.Start(ctx, "modrun.module.run",
		trace.WithAttributes(
			attribute.String("modrun.module_key", m.key),
			attribute.String("modrun.module_type", m.baseTypeID),
		))
	defer span.End()

	start := time.Now()
	rctx := newContext(spanCtx, m.runtimeHandle())
	results, err := m.base.Run(rctx, effective, submodsSnapshot)
	elapsed := time.Since(start)

	m.mu.Lock()
	m.profile.Calls++
	m.profile.LastElapsed = elapsed
	m.profile.TotalElapsed += elapsed
	m.mu.Unlock()

	modrunmetrics.RunsTotal.WithLabelValues(m.key, "miss").Inc()
	modrunmetrics.RunDuration.WithLabelValues(m.key).Observe(elapsed.Seconds())

	if err != nil {
		span.RecordError(err)
		modrunlog.L().Warn("module run: failed", append(zapKey(m), zapErr(err))...)
		return nil, err
	}

	m.mu.Lock()
	m.lastResults = results
	m.mu.Unlock()

	if memoize && resultCache != nil {
		resultCache.Set(fp, results, cache.Permanent)
	}

	modrunlog.L().Debug("module run: miss path completed", zapKey(m)...)
	return results, nil
}

// IsMemoizableLocked is IsMemoizable for a caller already holding m.mu; it
// re-enters submodules' own (unlocked, independent) mutex, which is safe
// since those are distinct Module instances.
func (m *Module) IsMemoizableLocked() bool {
	if !m.memoize {
		return false
	}
	for _, req := range m.submods {
		if req.Bound() != nil && !req.Bound().IsMemoizable() {
			return false
		}
	}
	return true
}

func (m *Module) runtimeHandle() any {
	if m.manager == nil {
		return nil
	}
	return m.manager.Runtime()
}

func (m *Module) fingerprint(effective field.InputMap) cache.Fingerprint {
	b := cache.NewBuilder()
	b.WriteModuleUUID(m.id)
	b.WriteOpaqueInputs(effective)
	m.writeSubmoduleFingerprints(b, "")
	return b.Finish()
}

func (m *Module) writeSubmoduleFingerprints(b *cache.Builder, prefix string) {
	for name, req := range m.submods {
		bound := req.Bound()
		if bound == nil {
			continue
		}
		path := prefix + "/" + name
		b.WriteSubmoduleUUID(path, bound.UUID())
		bound.writeSubmoduleFingerprints(b, path)
	}
}

// RunAs wraps args into an input map under p's effective (own-then-base)
// field order, merges with the module's bound inputs, runs, and returns the
// result map. This is the module-runtime's run_as<P>.
func (m *Module) RunAs(ctx context.Context, p proptype.PropertyType, args ...any) (field.ResultMap, error) {
	eff, err := proptype.EffectiveInputs(p)
	if err != nil {
		return nil, err
	}
	caller := make(field.InputMap, eff.Len())
	m.mu.Lock()
	for i := 0; i < eff.Len(); i++ {
		name := eff.NameAt(i)
		base, ok := m.inputs[name]
		if !ok {
			m.mu.Unlock()
			return nil, modrunerr.Newf(modrunerr.MissingKey, "run_as: module has no input named %q required by %s", name, p.Name())
		}
		caller[name] = base.Clone()
	}
	m.mu.Unlock()
	if err := proptype.WrapInputs(p, caller, args...); err != nil {
		return nil, err
	}
	return m.Run(ctx, caller)
}

// String renders a human-readable dump of the module's declared state:
// key, type, lock/memoization flags, and every input/result/submodule
// slot with its current value. Stands in for the original's
// print_inputs.hpp/print_results.hpp/print_submodules.hpp routines, which
// the core keeps as module-state pretty-printing rather than the excluded
// reST-doc-emission layer.
func (m *Module) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "module %q (type %s, uuid %s)\n", m.key, m.baseTypeID, m.id)
	fmt.Fprintf(&b, "  locked=%t memoizable=%t\n", m.locked, m.IsMemoizableLocked())

	names := make([]string, 0, len(m.inputs))
	for name := range m.inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "  input  %s: %s\n", name, m.inputs[name])
	}

	subNames := make([]string, 0, len(m.submods))
	for name := range m.submods {
		subNames = append(subNames, name)
	}
	sort.Strings(subNames)
	for _, name := range subNames {
		req := m.submods[name]
		status := "unbound"
		if b := req.Bound(); b != nil {
			status = b.key
		}
		fmt.Fprintf(&b, "  submod %s (%s): %s\n", name, req.PropertyType().Name(), status)
	}

	for name, r := range m.lastResults {
		fmt.Fprintf(&b, "  result %s: %s\n", name, r)
	}
	return b.String()
}
