// Package schema holds the server-provided structural type definitions used
// to decode and encode typed frame payloads. The schema arrives once per
// session as a blob during the handshake; decoding is a generic interpreter
// over the descriptors rather than generated per-type code.
package schema

import (
	"fmt"
	"strings"

	"github.com/gazebo-web/gzweb-sub000/errors"
)

// Primitive field type tags understood by the interpreter.
const (
	TypeBool   = "bool"
	TypeInt32  = "int32"
	TypeUint32 = "uint32"
	TypeInt64  = "int64"
	TypeUint64 = "uint64"
	TypeFloat  = "float"
	TypeDouble = "double"
	TypeString = "string"
	TypeBytes  = "bytes"
)

var primitives = map[string]bool{
	TypeBool:   true,
	TypeInt32:  true,
	TypeUint32: true,
	TypeInt64:  true,
	TypeUint64: true,
	TypeFloat:  true,
	TypeDouble: true,
	TypeString: true,
	TypeBytes:  true,
}

// IsPrimitive reports whether tag names a primitive field type.
func IsPrimitive(tag string) bool {
	return primitives[tag]
}

// FieldDescriptor describes one field of a structured message type. Type is
// either a primitive tag or the fully-qualified name of another type in the
// same schema.
type FieldDescriptor struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Repeated bool   `json:"repeated,omitempty"`
}

// TypeDescriptor describes one structured message type. Raw marks types whose
// payload is delivered as opaque bytes (compressed image data) and bypasses
// the interpreter entirely.
type TypeDescriptor struct {
	Name   string            `json:"name"`
	Raw    bool              `json:"raw,omitempty"`
	Fields []FieldDescriptor `json:"fields,omitempty"`
}

// validate checks a descriptor for structural soundness against the full
// type set it belongs to.
func (td *TypeDescriptor) validate(types map[string]*TypeDescriptor) error {
	if td.Name == "" {
		return errors.WrapInvalid(errors.ErrDecodeFailed,
			"schema", "validate", "descriptor with empty type name")
	}
	seen := make(map[string]bool, len(td.Fields))
	for _, f := range td.Fields {
		if f.Name == "" {
			return errors.WrapInvalid(errors.ErrDecodeFailed,
				"schema", "validate", fmt.Sprintf("type %s has a field with empty name", td.Name))
		}
		if seen[f.Name] {
			return errors.WrapInvalid(errors.ErrDecodeFailed,
				"schema", "validate", fmt.Sprintf("type %s repeats field %s", td.Name, f.Name))
		}
		seen[f.Name] = true
		if !IsPrimitive(f.Type) {
			if _, ok := types[f.Type]; !ok {
				return errors.WrapInvalid(errors.ErrUnknownType,
					"schema", "validate",
					fmt.Sprintf("type %s field %s references undefined type %s", td.Name, f.Name, f.Type))
			}
		}
	}
	return nil
}

// Image message names always treated as raw-payload types, matching the
// server's lighter-weight image delivery mode.
var imageTypeSuffixes = []string{".Image", ".ImageStamped"}

// isImageName reports whether a type name denotes image content by naming
// convention alone.
func isImageName(name string) bool {
	for _, suffix := range imageTypeSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
