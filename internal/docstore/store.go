// Package docstore exposes a small document-database capability: documents
// grouped in collections, addressed by id, with atomic per-document field
// updates and field-equality queries. Backends are in-memory, PostgreSQL
// (JSONB) and DynamoDB.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the addressed document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrExists indicates a create collided with an existing document.
	ErrExists = errors.New("document already exists")
	// ErrInvalidPath indicates an update path is empty or traverses a non-object field.
	ErrInvalidPath = errors.New("invalid field path")
)

// Update is a single field mutation. Path is dot separated ("members.uid").
// When Delete is set the field is removed instead of written.
type Update struct {
	Path   string
	Value  any
	Delete bool
}

// Set returns an update writing value at path.
func Set(path string, value any) Update {
	return Update{Path: path, Value: value}
}

// Remove returns an update deleting the field at path.
func Remove(path string) Update {
	return Update{Path: path, Delete: true}
}

// Path joins segments into a field path.
func Path(segments ...string) string {
	return strings.Join(segments, ".")
}

// Snapshot is a document returned from a query.
type Snapshot struct {
	ID     string
	decode func(dst any) error
}

// Decode unmarshals the document body into dst.
func (s Snapshot) Decode(dst any) error {
	if s.decode == nil {
		return fmt.Errorf("decode %s: empty snapshot", s.ID)
	}
	return s.decode(dst)
}

// Store is the document database capability used by the repositories.
type Store interface {
	// Get loads the document into dst or returns ErrNotFound.
	Get(ctx context.Context, collection, id string, dst any) error
	// Create writes doc under id and fails with ErrExists when id is taken.
	Create(ctx context.Context, collection, id string, doc any) error
	// Add writes doc under a store-assigned id.
	Add(ctx context.Context, collection string, doc any) (string, error)
	// Update applies updates atomically to an existing document.
	Update(ctx context.Context, collection, id string, updates ...Update) error
	// Upsert applies updates, creating an empty document first when absent.
	Upsert(ctx context.Context, collection, id string, updates ...Update) error
	// Delete removes the document. Deleting an absent document succeeds.
	Delete(ctx context.Context, collection, id string) error
	// Query returns documents whose top-level field equals value.
	Query(ctx context.Context, collection, field string, value any) ([]Snapshot, error)
}

func jsonSnapshot(id string, body []byte) Snapshot {
	return Snapshot{ID: id, decode: func(dst any) error {
		return json.Unmarshal(body, dst)
	}}
}

// toObject converts a document value into its generic JSON object form.
func toObject(doc any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("document is not an object: %w", err)
	}
	if obj == nil {
		obj = map[string]any{}
	}
	return obj, nil
}

func toGeneric(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}

// applyUpdates mutates obj in place. Missing intermediate objects are created.
func applyUpdates(obj map[string]any, updates []Update) error {
	for _, u := range updates {
		segments := strings.Split(u.Path, ".")
		if u.Path == "" {
			return ErrInvalidPath
		}

		parent := obj
		for _, seg := range segments[:len(segments)-1] {
			if seg == "" {
				return fmt.Errorf("%w: %q", ErrInvalidPath, u.Path)
			}
			next, ok := parent[seg]
			if !ok || next == nil {
				if u.Delete {
					parent = nil
					break
				}
				child := map[string]any{}
				parent[seg] = child
				parent = child
				continue
			}
			child, ok := next.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: %q crosses a non-object field", ErrInvalidPath, u.Path)
			}
			parent = child
		}

		leaf := segments[len(segments)-1]
		if leaf == "" {
			return fmt.Errorf("%w: %q", ErrInvalidPath, u.Path)
		}
		if u.Delete {
			if parent != nil {
				delete(parent, leaf)
			}
			continue
		}

		value, err := toGeneric(u.Value)
		if err != nil {
			return fmt.Errorf("update %s: %w", u.Path, err)
		}
		parent[leaf] = value
	}
	return nil
}

func validateUpdates(updates []Update) error {
	for _, u := range updates {
		if u.Path == "" {
			return ErrInvalidPath
		}
		for _, seg := range strings.Split(u.Path, ".") {
			if seg == "" {
				return fmt.Errorf("%w: %q", ErrInvalidPath, u.Path)
			}
		}
	}
	return nil
}
