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
package metadata

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// DecodeFunc rebuilds one technique's metadata variant from its raw
// JSON payload. Each technique registers its own at init time, keyed
// by module identifier; the codec dispatches on the module tag.
type DecodeFunc func(raw json.RawMessage) (TechniqueMetadata, error)

var decoders = map[string]DecodeFunc{}

// RegisterCodec installs the decoder for one module identifier.
// Registering the same identifier twice is a programming error.
func RegisterCodec(module string, decode DecodeFunc) {
	if _, ok := decoders[module]; ok {
		panic("metadata: duplicate codec registration for module " + module)
	}
	decoders[module] = decode
}

type headerLine struct {
	Module string `json:"module"`
}

type entryLine struct {
	Filename string          `json:"filename"`
	Module   string          `json:"module"`
	Metadata json.RawMessage `json:"metadata"`
}

// Writer streams an envelope out as JSON Lines: one header line
// carrying the last-writer module, then one line per file entry, in
// insertion order so write-then-read round-trips to an equal envelope.
type Writer struct {
	bw  *bufio.Writer
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	return &Writer{bw: bw, enc: json.NewEncoder(bw)}
}

func (w *Writer) WriteHeader(module string) error {
	return w.enc.Encode(headerLine{Module: module})
}

func (w *Writer) WriteEntry(e FileEntry) error {
	raw, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata for %q: %w", e.Filename, err)
	}
	return w.enc.Encode(entryLine{Filename: e.Filename, Module: e.Module, Metadata: raw})
}

func (w *Writer) Close() error {
	return w.bw.Flush()
}

// WriteEnvelope serializes a whole envelope.
func WriteEnvelope(w io.Writer, e *Envelope) error {
	ew := NewWriter(w)
	if err := ew.WriteHeader(e.Module()); err != nil {
		return err
	}
	for _, entry := range e.Files() {
		if err := ew.WriteEntry(entry); err != nil {
			return err
		}
	}
	return ew.Close()
}

// ReadEnvelope deserializes an envelope, rebuilding each entry's
// typed metadata through the registered decoder for its module tag.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	dec := json.NewDecoder(bufio.NewReader(r))

	var hdr headerLine
	if err := dec.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("reading envelope header: %w", err)
	}

	env := New()
	env.SetModule(hdr.Module)

	for {
		var line entryLine
		if err := dec.Decode(&line); err == io.EOF {
			return env, nil
		} else if err != nil {
			return nil, fmt.Errorf("reading envelope entry: %w", err)
		}

		decode, ok := decoders[line.Module]
		if !ok {
			return nil, fmt.Errorf("no codec registered for module %q", line.Module)
		}
		m, err := decode(line.Metadata)
		if err != nil {
			return nil, fmt.Errorf("decoding metadata for %q: %w", line.Filename, err)
		}
		env.AddFile(line.Filename, m)
	}
}
