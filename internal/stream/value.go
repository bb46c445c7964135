// Package stream holds a replay-latest observable value.
//
// A Value keeps the current value and broadcasts every change to its
// subscribers. Each subscriber channel holds at most one pending value: a
// slow reader skips intermediate values and always ends on the latest one.
package stream

import "sync"

// Value is a replay-latest observable cell. The zero value is not usable,
// create one with New.
type Value[T any] struct {
	mu      sync.Mutex
	cur     T
	version uint64
	nextID  int
	subs    map[int]chan T
	closed  bool
}

// New returns a Value holding initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{
		cur:  initial,
		subs: make(map[int]chan T),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Version counts the values published through Set. The initial value is
// version 0.
func (v *Value[T]) Version() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.version
}

// Set publishes next to every subscriber.
func (v *Value[T]) Set(next T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.cur = next
	v.version++
	for _, ch := range v.subs {
		offer(ch, next)
	}
}

// Subscribe returns a channel that immediately carries the current value and
// then every later one. The cancel func releases the subscription and closes
// the channel; calling it more than once is safe.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan T, 1)
	if v.closed {
		close(ch)
		return ch, func() {}
	}

	id := v.nextID
	v.nextID++
	v.subs[id] = ch
	ch <- v.cur

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if sub, ok := v.subs[id]; ok {
				delete(v.subs, id)
				close(sub)
			}
		})
	}
}

// Close ends every subscription. Set is a no-op afterwards.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
}

// offer replaces whatever is pending on ch with val. Only Set sends, under
// the lock, so the second send never blocks.
func offer[T any](ch chan T, val T) {
	select {
	case ch <- val:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- val
	}
}
