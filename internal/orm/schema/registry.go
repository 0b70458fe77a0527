package schema

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownEntity is returned when an entity key is not registered
var ErrUnknownEntity = errors.New("unknown entity")

// Registry is the process-lifetime table of entity metadata. It is built once
// by NewRegistry and is read-only afterwards, so it needs no locking.
type Registry struct {
	entities map[string]*EntityMetadata
	keys     []string
}

// NewRegistry validates and registers the given definitions
func NewRegistry(definitions ...*EntityMetadata) (*Registry, error) {
	r := &Registry{
		entities: make(map[string]*EntityMetadata, len(definitions)),
	}

	validator := NewValidator()
	for _, def := range definitions {
		if def == nil {
			return nil, errors.New("nil entity definition")
		}
		if _, exists := r.entities[def.Key]; exists {
			return nil, fmt.Errorf("entity %s is already registered", def.Key)
		}
		if err := validator.Validate(def); err != nil {
			return nil, fmt.Errorf("schema validation failed for %s: %w", def.Key, err)
		}
		r.entities[def.Key] = def
		r.keys = append(r.keys, def.Key)
	}
	sort.Strings(r.keys)

	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on invalid definitions
func MustNewRegistry(definitions ...*EntityMetadata) *Registry {
	r, err := NewRegistry(definitions...)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the metadata for an entity key. Every storage access goes
// through this lookup first.
func (r *Registry) Get(key string) (*EntityMetadata, error) {
	meta, ok := r.entities[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, key)
	}
	return meta, nil
}

// Exists checks if an entity key is registered
func (r *Registry) Exists(key string) bool {
	_, ok := r.entities[key]
	return ok
}

// Keys returns the registered entity keys in sorted order
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Count returns the number of registered entities
func (r *Registry) Count() int {
	return len(r.entities)
}

// IsUnknownEntity returns true if the error is ErrUnknownEntity
func IsUnknownEntity(err error) bool {
	return errors.Is(err, ErrUnknownEntity)
}
