package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and local development.
// Documents are held as encoded JSON so callers never share mutable state.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, collection, id string, dst any) error {
	m.mu.RLock()
	body, ok := m.collections[collection][id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return nil
}

func (m *Memory) Create(_ context.Context, collection, id string, doc any) error {
	obj, err := toObject(doc)
	if err != nil {
		return err
	}
	body, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.collectionLocked(collection)
	if _, exists := docs[id]; exists {
		return ErrExists
	}
	docs[id] = body
	return nil
}

func (m *Memory) Add(ctx context.Context, collection string, doc any) (string, error) {
	id := uuid.NewString()
	if err := m.Create(ctx, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Memory) Update(_ context.Context, collection, id string, updates ...Update) error {
	return m.mutate(collection, id, false, updates)
}

func (m *Memory) Upsert(_ context.Context, collection, id string, updates ...Update) error {
	return m.mutate(collection, id, true, updates)
}

func (m *Memory) mutate(collection, id string, create bool, updates []Update) error {
	if err := validateUpdates(updates); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.collectionLocked(collection)
	obj := map[string]any{}
	body, ok := docs[id]
	switch {
	case ok:
		if err := json.Unmarshal(body, &obj); err != nil {
			return fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
	case !create:
		return ErrNotFound
	}

	if err := applyUpdates(obj, updates); err != nil {
		return err
	}

	encoded, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	docs[id] = encoded
	return nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	delete(m.collections[collection], id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Query(_ context.Context, collection, field string, value any) ([]Snapshot, error) {
	want, err := toGeneric(value)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.collections[collection]))
	for id := range m.collections[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Snapshot
	for _, id := range ids {
		body := m.collections[collection][id]
		var obj map[string]any
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		got, ok := obj[field]
		if !ok || !reflect.DeepEqual(got, want) {
			continue
		}
		out = append(out, jsonSnapshot(id, body))
	}
	return out, nil
}

// Has reports whether a document exists. Useful for tests.
func (m *Memory) Has(collection, id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[collection][id]
	return ok
}

func (m *Memory) collectionLocked(collection string) map[string][]byte {
	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string][]byte)
		m.collections[collection] = docs
	}
	return docs
}

var _ Store = (*Memory)(nil)
