package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/gazebo-web/gzweb-sub000/errors"
)

// Registry maps fully-qualified type names to their structural descriptors.
// It is populated exactly once per session from the handshake schema blob
// and is immutable until Reset.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*TypeDescriptor
}

// NewRegistry creates an empty, unloaded registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// schemaBlob is the wire layout of the handshake schema document.
type schemaBlob struct {
	Types []*TypeDescriptor `json:"types"`
}

// Load parses the schema blob and populates the registry. Loading an
// already-populated registry is an error; the schema is fixed for the
// lifetime of a session.
func (r *Registry) Load(blob []byte) error {
	var doc schemaBlob
	if err := json.Unmarshal(blob, &doc); err != nil {
		return errors.WrapInvalid(err, "Registry", "Load", "parse schema blob")
	}
	if len(doc.Types) == 0 {
		return errors.WrapInvalid(errors.ErrDecodeFailed, "Registry", "Load", "schema blob defines no types")
	}

	types := make(map[string]*TypeDescriptor, len(doc.Types))
	for _, td := range doc.Types {
		if _, exists := types[td.Name]; exists {
			return errors.WrapInvalid(errors.ErrDecodeFailed,
				"Registry", "Load", fmt.Sprintf("duplicate type %s", td.Name))
		}
		types[td.Name] = td
	}
	for _, td := range types {
		if err := td.validate(types); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.types != nil {
		return errors.WrapFatal(errors.ErrSchemaLoaded, "Registry", "Load", "reload schema")
	}
	r.types = types
	return nil
}

// Reset clears the registry so a new session can load a fresh schema.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.types = nil
	r.mu.Unlock()
}

// Loaded reports whether a schema has been loaded for the current session.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types != nil
}

// Lookup returns the descriptor for a fully-qualified type name.
func (r *Registry) Lookup(name string) (*TypeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	td, ok := r.types[name]
	return td, ok
}

// TypeNames returns the sorted names of all registered types.
func (r *Registry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsImage reports whether typeName denotes image content, whose payload
// bypasses the interpreter and is delivered as raw bytes. A type is an image
// type when its descriptor is Raw-flagged or its name follows the image
// message naming convention.
func (r *Registry) IsImage(typeName string) bool {
	if isImageName(typeName) {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if td, ok := r.types[typeName]; ok {
		return td.Raw
	}
	return false
}
