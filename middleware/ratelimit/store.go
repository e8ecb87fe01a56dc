package ratelimit

import (
	"sync"
	"time"
)

// Store tracks request counts per fixed window. Decrement exists for
// failure-only counting: the middleware charges every request up front
// and hands the slot back when the outcome should not burn budget.
type Store interface {
	Get(key string) (count int, resetTime time.Time, exists bool)
	Increment(key string, resetTime time.Time) (count int)
	Decrement(key string)
	Reset(key string)
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*window
	stop chan struct{}
}

type window struct {
	count     int
	resetTime time.Time
}

func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		data: make(map[string]*window),
		stop: make(chan struct{}),
	}

	go store.cleanup()

	return store
}

func (s *MemoryStore) Get(key string) (count int, resetTime time.Time, exists bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if w, ok := s.data[key]; ok && time.Now().Before(w.resetTime) {
		return w.count, w.resetTime, true
	}

	return 0, time.Time{}, false
}

func (s *MemoryStore) Increment(key string, resetTime time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.data[key]; ok && time.Now().Before(w.resetTime) {
		w.count++
		return w.count
	}

	s.data[key] = &window{
		count:     1,
		resetTime: resetTime,
	}

	return 1
}

// Decrement gives one previously charged slot back. Expired or unknown
// windows are left alone; a window refunded down to zero is removed so
// the next request starts it fresh.
func (s *MemoryStore) Decrement(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.data[key]
	if !ok || !time.Now().Before(w.resetTime) {
		return
	}

	w.count--
	if w.count <= 0 {
		delete(s.data, key)
	}
}

func (s *MemoryStore) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
}

// Close stops the background cleanup goroutine. Safe to call more than
// once.
func (s *MemoryStore) Close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for key, w := range s.data {
				if now.After(w.resetTime) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
