package modrun

import (
	"github.com/modrun/modrun/field"
	"github.com/modrun/modrun/modrunerr"
	"github.com/modrun/modrun/proptype"
)

// SubmoduleRequest is a named, typed dependency "hole" on a Module: a
// required property type, and an optional Module bound to fill it.
// Grounded on src/python/export_submodule_request.cpp and
// SDE_Test/TestSubmoduleRequest.cpp (the original source has no standalone
// submodule_request.hpp).
type SubmoduleRequest struct {
	required proptype.PropertyType
	bound    *Module
}

// NewSubmoduleRequest fixes the required property type for a slot.
func NewSubmoduleRequest(required proptype.PropertyType) *SubmoduleRequest {
	return &SubmoduleRequest{required: required}
}

// PropertyType reports the required property type.
func (s *SubmoduleRequest) PropertyType() proptype.PropertyType { return s.required }

// Change binds a concrete Module to this slot.
func (s *SubmoduleRequest) Change(m *Module) { s.bound = m }

// Bound returns the currently bound Module, or nil.
func (s *SubmoduleRequest) Bound() *Module { return s.bound }

// Ready reports whether a Module is bound, that Module's satisfied
// property-type set contains the declared tag, and that Module is ready
// under the required property type's inputs: an unset input that the
// property type supplies on every RunAs call does not count against it.
func (s *SubmoduleRequest) Ready() bool {
	if s.bound == nil {
		return false
	}
	if !s.bound.Satisfies(s.required.Name()) {
		return false
	}
	eff, err := proptype.EffectiveInputs(s.required)
	if err != nil {
		return false
	}
	supplied := make(map[string]bool, eff.Len())
	for i := 0; i < eff.Len(); i++ {
		supplied[eff.NameAt(i)] = true
	}
	report := s.bound.ListNotReady()
	for _, name := range report.Inputs {
		if !supplied[name] {
			return false
		}
	}
	return len(report.Submodules) == 0
}

// RunAs forwards to the bound Module's RunAs, failing with NotReady if
// nothing is bound.
func (s *SubmoduleRequest) RunAs(ctx Context, p proptype.PropertyType, args ...any) (field.ResultMap, error) {
	if s.bound == nil {
		return nil, modrunerr.Newf(modrunerr.NotReady, "run_as: submodule slot has no bound module")
	}
	return s.bound.RunAs(ctx, p, args...)
}

// Clone returns an independent copy of the request (used when a Module is
// copied). The bound Module reference is shared, not deep-copied — the
// submodule Module itself is a separate registry entry.
func (s *SubmoduleRequest) Clone() *SubmoduleRequest {
	out := *s
	return &out
}

// SubmoduleMap is the name-indexed set of submodule requests threaded
// through to a ModuleBase's Run.
type SubmoduleMap map[string]*SubmoduleRequest

// Clone returns an independent copy of m; bound Module pointers are shared.
func (m SubmoduleMap) Clone() SubmoduleMap {
	out := make(SubmoduleMap, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}
