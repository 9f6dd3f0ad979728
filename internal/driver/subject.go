package driver

import "sync"

// Subject holds the latest value of a projection and pushes every new value
// to its observers. New observers receive the current value first.
type Subject[T any] struct {
	mu        sync.Mutex
	value     T
	closed    bool
	nextID    int
	observers map[int]func(T)
	subs      map[int]*subscription[T]
}

// NewSubject creates a subject holding initial.
func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{
		value:     initial,
		observers: make(map[int]func(T)),
		subs:      make(map[int]*subscription[T]),
	}
}

// Value returns the latest published value.
func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Publish stores v and hands it to every observer. It is a no-op once closed.
func (s *Subject[T]) Publish(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.value = v
	observers := make([]func(T), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(v)
	}
}

// Observe calls fn with the current value and then with every published one,
// until the returned function is called.
func (s *Subject[T]) Observe(fn func(T)) func() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	current := s.value
	s.mu.Unlock()

	fn(current)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// Subscribe streams values on a channel. A slow reader only sees the latest
// value; intermediate ones are dropped. The channel is closed by the returned
// function or when the subject closes.
func (s *Subject[T]) Subscribe() (<-chan T, func()) {
	sub := &subscription[T]{ch: make(chan T, 1)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.observers[id] = sub.push
	s.subs[id] = sub
	current := s.value
	s.mu.Unlock()

	sub.push(current)

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			delete(s.subs, id)
			s.mu.Unlock()
			sub.close()
		})
	}
}

// Close drops every observer and closes subscription channels.
func (s *Subject[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.observers = make(map[int]func(T))
	subs := s.subs
	s.subs = make(map[int]*subscription[T])
	s.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

type subscription[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool
}

func (s *subscription[T]) push(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- v:
		return
	default:
	}
	// Replace the unread value.
	select {
	case <-s.ch:
	default:
	}
	s.ch <- v
}

func (s *subscription[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
