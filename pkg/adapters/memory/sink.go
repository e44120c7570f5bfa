package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// Sink implements ports.ExportSink by keeping artifacts in memory.
type Sink struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewSink creates an empty Sink.
func NewSink() *Sink {
	return &Sink{objects: make(map[string][]byte)}
}

// Put stores a copy of data under key.
func (s *Sink) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = slices.Clone(data)
	return nil
}

// Get returns the artifact stored under key.
func (s *Sink) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}

// Keys lists the stored keys in lexical order.
func (s *Sink) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
