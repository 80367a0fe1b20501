package utils

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

// ErrDequeTimeout is returned by Get/GetContext when no item arrives before
// the deadline.
var ErrDequeTimeout = errors.New("kasa: timed out waiting on deque")

// Deque is a blocking, unbounded double-ended queue. smart.Queue uses one
// instance per device, seeded with a single token, as the primitive behind
// "at most one in-flight request per device session": acquiring the slot is
// a Get, releasing it is a Put, and a context.Context (rather than a bare
// second count) lets a caller give up waiting for its turn when its own
// deadline elapses instead of only when the item never arrives.
type Deque struct {
	sync.RWMutex
	notEmptyNotify chan struct{}
	container      *list.List
}

func NewDeque() *Deque {
	return &Deque{container: list.New(), notEmptyNotify: make(chan struct{}, 1)}
}

func (s *Deque) Put(item interface{}) {
	s.Lock()
	s.container.PushFront(item)
	s.Unlock()
	select {
	case s.notEmptyNotify <- struct{}{}:
	default:
	}
}

// Get blocks up to timeout seconds for an item.
func (s *Deque) Get(timeout int) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()
	return s.GetContext(ctx)
}

// GetContext blocks until an item is available or ctx is done, whichever
// comes first.
func (s *Deque) GetContext(ctx context.Context) (interface{}, error) {
	s.Lock()
	for s.container.Back() == nil {
		s.Unlock()
		select {
		case <-s.notEmptyNotify:
		case <-ctx.Done():
			return nil, ErrDequeTimeout
		}
		s.Lock()
	}
	item := s.container.Remove(s.container.Back())
	s.Unlock()
	return item, nil
}
