package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

type memory struct {
	mu   sync.RWMutex
	data map[string]Record
}

// NewMemory returns a concurrency-safe in-memory Store.
// Useful for tests, demos, or as a default ephemeral backend.
func NewMemory() Store {
	return &memory{data: make(map[string]Record)}
}

func (m *memory) CreateDocument(_ context.Context, rec Record) error {
	cloned, err := cloneRecord(rec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[rec.DID]; exists {
		return ErrConflict
	}
	m.data[rec.DID] = cloned
	return nil
}

func (m *memory) GetDocument(_ context.Context, did string) (Record, error) {
	m.mu.RLock()
	rec, ok := m.data[did]
	m.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec)
}

func (m *memory) UpdateDocument(_ context.Context, rec Record) error {
	cloned, err := cloneRecord(rec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[rec.DID]; !exists {
		return ErrNotFound
	}
	m.data[rec.DID] = cloned
	return nil
}

// cloneRecord deep-copies rec through its JSON form so callers never share
// slices or maps with the store.
func cloneRecord(rec Record) (Record, error) {
	raw, err := json.Marshal(rec.Document)
	if err != nil {
		return Record{}, fmt.Errorf("marshal document: %w", err)
	}
	out := Record{DID: rec.DID, Metadata: rec.Metadata}
	if err := json.Unmarshal(raw, &out.Document); err != nil {
		return Record{}, fmt.Errorf("unmarshal document: %w", err)
	}
	if rec.Metadata.EquivalentID != nil {
		out.Metadata.EquivalentID = append([]string(nil), rec.Metadata.EquivalentID...)
	}
	return out, nil
}
