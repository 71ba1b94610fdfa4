// Package modrunerr centralizes the typed error kinds raised across the
// module runtime, grounded on the teacher's convention of wrapped,
// errors.Is-discriminable sentinel errors (see caddy's use of %w chains
// rather than string status codes) instead of ad hoc string matching.
package modrunerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error kinds named by the runtime's error
// surface. Kinds are compared with errors.Is, never by string matching.
type Kind error

var (
	// DuplicateKey: registering a module-key or field name already present.
	DuplicateKey Kind = errors.New("duplicate key")
	// MissingKey: looking up a module or cache entry not present, no default supplied.
	MissingKey Kind = errors.New("missing key")
	// CacheMiss: Cache.Uncache on an absent key with no default.
	CacheMiss Kind = errors.New("cache miss")
	// TypeNotSet: using a field before its type has been declared.
	TypeNotSet Kind = errors.New("type not set")
	// TypeMismatch: a cast or bind to an incompatible type.
	TypeMismatch Kind = errors.New("type mismatch")
	// BoundsCheckFailure: a bound value fails one or more validity checks.
	BoundsCheckFailure Kind = errors.New("bounds check failure")
	// NotReady: Module.Run called while inputs or submodules are not ready.
	NotReady Kind = errors.New("not ready")
	// Locked: mutating a Module after it has locked.
	Locked Kind = errors.New("locked")
	// ReferenceEscape: requesting a reference an AnyField's storage mode forbids.
	ReferenceEscape Kind = errors.New("reference escape")
	// CycleDetected: ModuleManager.At finds a cycle while auto-wiring submodules.
	CycleDetected Kind = errors.New("cycle detected")
)

// wrapped pairs a Kind with a formatted message while keeping errors.Is
// working against the Kind sentinel.
type wrapped struct {
	kind Kind
	msg  string
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.kind }

// Newf builds an error of the given kind with a formatted message.
// errors.Is(err, kind) is true for the result.
func Newf(kind Kind, format string, args ...any) error {
	return &wrapped{kind: kind, msg: fmt.Sprintf("%s: %s", kind.Error(), fmt.Sprintf(format, args...))}
}

// Is reports whether err was built from the given kind.
func Is(err error, kind Kind) bool { return errors.Is(err, kind) }
