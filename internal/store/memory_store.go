package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process. Mostly for tests and development.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Document
	now  func() time.Time
	last time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]Document),
		now:  time.Now,
	}
}

func (m *MemoryStore) Create(ctx context.Context, collection string, data json.RawMessage) (Document, error) {
	return m.Insert(ctx, collection, uuid.NewString(), data)
}

func (m *MemoryStore) Insert(_ context.Context, collection, id string, data json.RawMessage) (Document, error) {
	if err := checkID(id); err != nil {
		return Document{}, err
	}
	if err := checkJSON(data); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[collection][id]; ok {
		return Document{}, ErrAlreadyExists
	}
	now := m.now().UTC()
	// creation order must survive coarse clocks
	if !now.After(m.last) {
		now = m.last.Add(time.Nanosecond)
	}
	m.last = now
	doc := Document{
		ID:        id,
		Version:   1,
		Data:      cloneRaw(data),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]Document)
	}
	m.data[collection][doc.ID] = doc
	return copyDoc(doc), nil
}

func (m *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.data[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return copyDoc(doc), nil
}

func (m *MemoryStore) Update(_ context.Context, collection, id string, data json.RawMessage, expectedVersion int64) (Document, error) {
	if err := checkJSON(data); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.data[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	if doc.Version != expectedVersion {
		return Document{}, ErrVersionConflict
	}
	doc.Version++
	doc.Data = cloneRaw(data)
	doc.UpdatedAt = m.now().UTC()
	m.data[collection][id] = doc
	return copyDoc(doc), nil
}

func (m *MemoryStore) Query(_ context.Context, collection string, filters []Filter, order Order) ([]Document, error) {
	if err := checkFields(filters, order); err != nil {
		return nil, err
	}
	m.mu.RLock()
	docs := make([]Document, 0, len(m.data[collection]))
	for _, doc := range m.data[collection] {
		docs = append(docs, copyDoc(doc))
	}
	m.mu.RUnlock()
	return filterAndSort(docs, filters, order), nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func cloneRaw(data json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), data...)
}

func copyDoc(d Document) Document {
	d.Data = cloneRaw(d.Data)
	return d
}
