// Package persist stores state values in files through a pluggable codec.
package persist

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// File extensions for supported codecs.
const (
	jsonExtension = ".json"
	gobExtension  = ".gob"
)

// Codec names accepted by CodecByName.
const (
	CodecGob  = "gob"
	CodecJSON = "json"
)

const defaultIndent = "  "

// ErrUnknownCodec is returned by CodecByName for unsupported names.
var ErrUnknownCodec = errors.New("persist: unknown codec")

// Codec defines how state is serialized and deserialized.
type Codec interface {
	Encode(w io.Writer, state any) error
	Decode(r io.Reader, state any) error
	// Extension returns the file extension for this codec, dot included.
	Extension() string
}

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case CodecGob:
		return NewGobCodec(), nil
	case CodecJSON:
		return NewJSONCodec(), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

// JSONCodec implements Codec using JSON encoding with optional indentation.
type JSONCodec struct {
	// Indent is the indentation string. Empty means compact JSON.
	Indent string
}

// NewJSONCodec creates a JSON codec with two-space indentation.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

// Encode implements Codec.
func (c *JSONCodec) Encode(w io.Writer, state any) error {
	encoder := json.NewEncoder(w)
	if c.Indent != "" {
		encoder.SetIndent("", c.Indent)
	}

	err := encoder.Encode(state)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.
func (c *JSONCodec) Decode(r io.Reader, state any) error {
	err := json.NewDecoder(r).Decode(state)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.
func (c *JSONCodec) Extension() string {
	return jsonExtension
}

// GobCodec implements Codec using gob encoding.
type GobCodec struct{}

// NewGobCodec creates a gob codec.
func NewGobCodec() *GobCodec {
	return &GobCodec{}
}

// Encode implements Codec.
func (c *GobCodec) Encode(w io.Writer, state any) error {
	err := gob.NewEncoder(w).Encode(state)
	if err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}

	return nil
}

// Decode implements Codec.
func (c *GobCodec) Decode(r io.Reader, state any) error {
	err := gob.NewDecoder(r).Decode(state)
	if err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}

	return nil
}

// Extension implements Codec.
func (c *GobCodec) Extension() string {
	return gobExtension
}
