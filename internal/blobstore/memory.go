package blobstore

import (
	"context"
	"sync"
)

// MemoryStore keeps blobs in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*Object
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*Object)}
}

// Put stores a copy of data
func (s *MemoryStore) Put(_ context.Context, prefix, filename, contentType string, data []byte) (string, error) {
	key := NewKey(prefix, filename)
	obj := &Object{
		Key:         key,
		Filename:    SanitizeFilename(filename),
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        append([]byte(nil), data...),
	}

	s.mu.Lock()
	s.objects[key] = obj
	s.mu.Unlock()
	return key, nil
}

// Get returns a copy of the stored blob
func (s *MemoryStore) Get(_ context.Context, key string) (*Object, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	c := *obj
	c.Data = append([]byte(nil), obj.Data...)
	return &c, nil
}

// Delete removes a blob
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored blobs
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
