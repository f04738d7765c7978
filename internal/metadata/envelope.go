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

// Package metadata implements the recovery-metadata envelope: a small
// keyed document mapping filenames to the technique-specific record a
// write operation emitted, persisted out-of-band by the caller. Keys
// are insertion-ordered so enumeration stays deterministic.
package metadata

import (
	"github.com/google/uuid"
)

// TechniqueMetadata is the marker every technique's metadata variant
// implements. Module returns the technique identifier the envelope
// codec uses as the tagged-union discriminator.
type TechniqueMetadata interface {
	Module() string
}

// FileEntry pairs a filename with the technique metadata recorded for
// it.
type FileEntry struct {
	Filename string
	Module   string
	Metadata TechniqueMetadata
}

// Envelope holds the metadata entries of one hiding session. Entries
// are immutable after emission; AddFile appends, nothing rewrites.
type Envelope struct {
	module  string
	entries []FileEntry
	index   map[string]int
}

func New() *Envelope {
	return &Envelope{index: make(map[string]int)}
}

// SetModule records which technique last wrote through this envelope.
func (e *Envelope) SetModule(id string) { e.module = id }

// Module returns the identifier of the last writing technique.
func (e *Envelope) Module() string { return e.module }

// AddFile appends an entry under name and returns the key used. An
// empty name gets a generated one, stable for the lifetime of the
// entry.
func (e *Envelope) AddFile(name string, m TechniqueMetadata) string {
	if name == "" {
		name = uuid.NewString()
	}
	e.index[name] = len(e.entries)
	e.entries = append(e.entries, FileEntry{
		Filename: name,
		Module:   m.Module(),
		Metadata: m,
	})
	return name
}

// GetFile looks an entry up by filename.
func (e *Envelope) GetFile(name string) (FileEntry, bool) {
	i, ok := e.index[name]
	if !ok {
		return FileEntry{}, false
	}
	return e.entries[i], true
}

// Files returns every entry in insertion order.
func (e *Envelope) Files() []FileEntry {
	out := make([]FileEntry, len(e.entries))
	copy(out, e.entries)
	return out
}
