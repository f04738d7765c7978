// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package werrors implements the closed error-kind taxonomy of the
// hiding core (UnsupportedFilesystem, InsufficientSpace,
// CorruptStructure, IOFailure, PreconditionViolated). Kinds are
// identified with errors.Is against a sentinel value per kind rather
// than with a type switch, so callers can use the stdlib errors
// package throughout.
package werrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the five error categories a caller of the
// hiding core can distinguish and act on.
type Kind error

var (
	// UnsupportedFilesystem: the detector could not classify the
	// stream, or classified it as a variant with no technique backend.
	UnsupportedFilesystem Kind = errors.New("unsupported filesystem")
	// InsufficientSpace: the payload exceeds the technique's capacity.
	InsufficientSpace Kind = errors.New("insufficient hiding space")
	// CorruptStructure: a parser read values that violate a variant's
	// invariants (negative derived offset, cyclic cluster chain, ...).
	CorruptStructure Kind = errors.New("corrupt filesystem structure")
	// IOFailure: the underlying device read/write failed.
	IOFailure Kind = errors.New("device i/o failure")
	// PreconditionViolated: a slack region the technique expected to
	// be empty was not, in a way that prevents reliable recovery.
	PreconditionViolated Kind = errors.New("technique precondition violated")
)

// wrapped pairs a Kind with a specific message, preserving errors.Is
// against the Kind and errors.Unwrap down to any underlying cause.
type wrapped struct {
	kind Kind
	msg  string
	err  error
}

func (w *wrapped) Error() string {
	if w.err != nil {
		return fmt.Sprintf("%s: %s: %s", w.kind, w.msg, w.err)
	}
	return fmt.Sprintf("%s: %s", w.kind, w.msg)
}

func (w *wrapped) Unwrap() error { return w.err }

func (w *wrapped) Is(target error) bool {
	return target == w.kind
}

// New builds an error of the given kind carrying a human-readable
// message. Every failure surfaces one; nothing is swallowed silently.
func New(kind Kind, format string, args ...any) error {
	return &wrapped{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of the given kind around an underlying cause,
// preserved for errors.Unwrap/errors.As.
func Wrap(kind Kind, err error, format string, args ...any) error {
	return &wrapped{kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

// Is reports whether err (or anything it wraps) is of the given kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}
