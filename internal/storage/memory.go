package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps encoded payloads in process memory. It runs the same
// envelope codec as Store so load behaviour is identical.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]memRecord
	settings map[string]string
	logger   *slog.Logger
}

type memRecord struct {
	payload   []byte
	updatedAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]memRecord),
		settings: make(map[string]string),
		logger:   slog.Default(),
	}
}

func (m *MemoryStore) Load(key string) (json.RawMessage, bool) {
	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	items, err := decodePayload(rec.payload)
	if err != nil {
		m.logger.Warn("discarding unreadable record", "key", key, "error", err)
		return nil, false
	}
	return items, true
}

func (m *MemoryStore) Save(key string, items any) error {
	payload, err := encodePayload(items)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	m.mu.Lock()
	m.records[key] = memRecord{payload: payload, updatedAt: time.Now().UTC()}
	m.mu.Unlock()
	return nil
}

// PutRaw stores payload as-is, bypassing the envelope encoder.
func (m *MemoryStore) PutRaw(key string, payload []byte) {
	m.mu.Lock()
	m.records[key] = memRecord{payload: append([]byte(nil), payload...), updatedAt: time.Now().UTC()}
	m.mu.Unlock()
}

// Raw returns the stored bytes for key.
func (m *MemoryStore) Raw(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), rec.payload...), true
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; !ok {
		return ErrNotFound
	}
	delete(m.records, key)
	return nil
}

func (m *MemoryStore) Records() ([]RecordInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordInfo, 0, len(m.records))
	for k, rec := range m.records {
		out = append(out, RecordInfo{Key: k, Size: len(rec.payload), UpdatedAt: rec.updatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) SetSetting(key, value string) error {
	m.mu.Lock()
	m.settings[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetSetting(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.settings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) GetAllSettings() (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}
