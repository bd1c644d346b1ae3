// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"errors"
	"fmt"
)

// Kind classifies why a read against an image failed. It is a closed set.
// Errors raised through the View (Derva, DervaOffset, RVA conversions) and
// by the newer parsers carry a Kind that ErrKind recovers; the older
// directory parsers still return plain sentinel errors (for example
// ErrInvalidExportDirectorySize), for which ErrKind reports ok=false.
type Kind int

const (
	// KindNull is returned when dereferencing a zero pointer or RVA.
	KindNull Kind = iota

	// KindBounds is returned when an RVA, offset, or typed read lies
	// outside the mapped image.
	KindBounds

	// KindMisalign is returned when a typed reference would violate the
	// target type's alignment requirement.
	KindMisalign

	// KindBadMagic is returned when a header signature check fails.
	KindBadMagic

	// KindUnmapped is returned when an address is valid in virtual space
	// but absent from a File view (e.g. BSS, zero-filled at load time).
	KindUnmapped

	// KindZeroFill is returned when a typed slice straddles the
	// raw/virtual-size boundary of a section.
	KindZeroFill

	// KindInvalid is returned for structurally malformed directory
	// contents: a bad forwarder, an overrunning relocation block, a
	// resource-tree cycle, an import table running past its directory.
	KindInvalid

	// KindOverflow is returned on arithmetic overflow in an RVA computation.
	KindOverflow
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBounds:
		return "bounds"
	case KindMisalign:
		return "misalign"
	case KindBadMagic:
		return "bad magic"
	case KindUnmapped:
		return "unmapped"
	case KindZeroFill:
		return "zero fill"
	case KindInvalid:
		return "invalid"
	case KindOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by view and directory-parsing
// operations. Op names the operation that failed (e.g. "derva", "va_to_rva")
// so a logged error is actionable without a stack trace.
type Error struct {
	Kind Kind
	Op   string
	RVA  uint32
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pelite: %s at rva 0x%x: %s: %v", e.Op, e.RVA, e.Kind, e.Err)
	}
	return fmt.Sprintf("pelite: %s at rva 0x%x: %s", e.Op, e.RVA, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error carrying the same Kind, so callers
// can write `errors.Is(err, &pelite.Error{Kind: pelite.KindBounds})`.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func errOf(kind Kind, op string, rva uint32, err error) *Error {
	return &Error{Kind: kind, Op: op, RVA: rva, Err: err}
}

// ErrKind extracts the Kind a pelite error was raised with. Errors that do
// not originate from this package (an os.Open failure, say) report
// KindInvalid with ok=false.
func ErrKind(err error) (kind Kind, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindInvalid, false
}
