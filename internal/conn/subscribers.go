package conn

import (
	"log/slog"
	"sync"
)

// subscribers is an ordered fan-out list. Delivery is synchronous per
// subscriber, in subscription order; a panicking subscriber is logged and
// never reaches the caller's state machine. Unsubscribing mid-delivery
// does not affect in-flight delivery to others.
type subscribers[T any] struct {
	mu   sync.Mutex
	next int
	list []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// add registers fn and returns its unsubscribe function. Unsubscribe is
// idempotent.
func (s *subscribers[T]) add(fn func(T)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.list = append(s.list, subscriber[T]{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.list {
			if sub.id == id {
				s.list = append(s.list[:i], s.list[i+1:]...)
				return
			}
		}
	}
}

// emit delivers v to every current subscriber.
func (s *subscribers[T]) emit(v T) {
	s.mu.Lock()
	snapshot := make([]subscriber[T], len(s.list))
	copy(snapshot, s.list)
	s.mu.Unlock()

	for _, sub := range snapshot {
		deliver(sub.fn, v)
	}
}

func deliver[T any](fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Subscriber panicked", "panic", r)
		}
	}()
	fn(v)
}
