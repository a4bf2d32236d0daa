package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Object is an object held by MemoryStore
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryStore is an in-memory Store that records every request.
// Failures can be injected per key with FailPut.
type MemoryStore struct {
	mu          sync.Mutex
	objects     map[string]Object
	puts        []string
	deletes     [][]string
	failPut     map[string]error
	failDeletes error
}

// NewMemoryStore returns an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]Object),
		failPut: make(map[string]error),
	}
}

// Get implements Store
func (m *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), obj.Data...))), nil
}

// Put implements Store
func (m *MemoryStore) Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.puts = append(m.puts, key)
	if err, ok := m.failPut[key]; ok {
		return err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch for %s: declared %d, read %d", key, size, len(data))
	}

	m.objects[key] = Object{Data: data, ContentType: contentType}
	return nil
}

// DeleteMany implements Store
func (m *MemoryStore) DeleteMany(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.deletes = append(m.deletes, append([]string(nil), keys...))
	if m.failDeletes != nil {
		return m.failDeletes
	}
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil
}

// FailPut makes every Put to key return err
func (m *MemoryStore) FailPut(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPut[key] = err
}

// FailDeletes makes every DeleteMany return err. A nil err clears the failure.
func (m *MemoryStore) FailDeletes(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failDeletes = err
}

// ClearFailures removes all injected failures
func (m *MemoryStore) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPut = make(map[string]error)
	m.failDeletes = nil
}

// Seed stores an object without recording a request
func (m *MemoryStore) Seed(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Data: data}
}

// Object returns the object at key
func (m *MemoryStore) Object(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Keys returns all stored keys, sorted
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Puts returns the keys of every Put call in order, failed ones included
func (m *MemoryStore) Puts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.puts...)
}

// Deletes returns the key batches of every DeleteMany call
func (m *MemoryStore) Deletes() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]string, len(m.deletes))
	for i, batch := range m.deletes {
		out[i] = append([]string(nil), batch...)
	}
	return out
}

// ResetRequests forgets recorded requests but keeps the objects
func (m *MemoryStore) ResetRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = nil
	m.deletes = nil
}

var _ Store = (*MemoryStore)(nil)

// ErrInjected is a generic failure for FailPut and FailDeletes
var ErrInjected = errors.New("injected failure")
