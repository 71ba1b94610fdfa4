// Package cache implements the fingerprint-keyed result store shared by
// every Module, and the ModuleManagerCache that vends a module cache
// (result memoization) and a user cache (developer scratch) per registered
// module key. Grounded on pluginplay/cache/cache.hpp from the original
// source (there is no separate module_cache.hpp there; module- and
// user-scoped caches are both instances of that one type), and on the
// teacher's UsagePool reference counting pattern
// (_examples/caddyserver-caddy/usagepool_test.go) for per-key cache
// vending.
package cache

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/modrun/modrun/anyfield"
	"github.com/modrun/modrun/field"
)

// Fingerprint is the deterministic key a Module's call folds its opaque
// inputs and submodule UUIDs into. 64 bits, via xxhash, which the spec's
// "wide enough that collision probability is negligible" leaves to the
// implementer's judgment (see DESIGN.md).
type Fingerprint [8]byte

// Builder accumulates the pieces of a fingerprint in a stable order before
// finalizing, so call sites never hash their own data directly.
type Builder struct {
	h *xxhash.Digest
}

// NewBuilder returns an empty fingerprint builder.
func NewBuilder() *Builder {
	return &Builder{h: xxhash.New()}
}

// WriteModuleUUID folds in the identity of the module instance being
// fingerprinted.
func (b *Builder) WriteModuleUUID(id uuid.UUID) {
	bs, _ := id.MarshalBinary()
	_, _ = b.h.Write(bs)
}

// WriteSubmoduleUUID folds in a path-qualified submodule identity (the
// slot name disambiguates position in the submodule map; the UUID
// disambiguates which concrete Module is bound there).
func (b *Builder) WriteSubmoduleUUID(path string, id uuid.UUID) {
	_, _ = b.h.Write([]byte(path))
	bs, _ := id.MarshalBinary()
	_, _ = b.h.Write(bs)
}

// WriteOpaqueInputs folds in every opaque (non-transparent) input's bound
// value, in a stable (sorted-by-name) order so map iteration order never
// affects the fingerprint.
func (b *Builder) WriteOpaqueInputs(inputs field.InputMap) {
	names := make([]string, 0, len(inputs))
	for name, in := range inputs {
		if in.IsTransparent() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = b.h.Write([]byte(name))
		in := inputs[name]
		writeAnyField(b.h, in.RawValue())
	}
}

func writeAnyField(h *xxhash.Digest, f anyfield.AnyField) {
	_, _ = h.Write([]byte(f.String()))
	if t := f.Type(); t != nil {
		_, _ = h.Write([]byte(t.String()))
	}
}

// Finish finalizes the fingerprint.
func (b *Builder) Finish() Fingerprint {
	var fp Fingerprint
	binary.BigEndian.PutUint64(fp[:], b.h.Sum64())
	return fp
}
