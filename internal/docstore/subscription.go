package docstore

import (
	"context"
	"sync"
)

// Subscription is a live query handle.
type Subscription struct {
	store      *Store
	collection string
	filter     Filter

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	dirty chan struct{}
	out   chan Snapshot
}

func newSubscription(parent context.Context, s *Store, collection string, filter Filter) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	sub := &Subscription{
		store:      s,
		collection: collection,
		filter:     filter,
		ctx:        ctx,
		cancel:     cancel,
		dirty:      make(chan struct{}, 1),
		out:        make(chan Snapshot),
	}
	sub.markDirty()
	return sub
}

// Snapshots delivers query results in the order they were computed. The
// channel is closed once the subscription ends.
func (sub *Subscription) Snapshots() <-chan Snapshot {
	return sub.out
}

// Cancel ends the subscription and releases its goroutine. Safe to call more
// than once.
func (sub *Subscription) Cancel() {
	sub.once.Do(func() {
		sub.cancel()
		sub.store.remove(sub)
		sub.store.logger.Debug("docstore subscription cancelled", "collection", sub.collection)
	})
}

func (sub *Subscription) markDirty() {
	select {
	case sub.dirty <- struct{}{}:
	default:
	}
}

// pump re-runs the query whenever the collection changed. Pending change
// signals coalesce, so a burst of writes yields one snapshot of the final
// state.
func (sub *Subscription) pump() {
	defer close(sub.out)
	defer sub.Cancel()

	for {
		select {
		case <-sub.ctx.Done():
			return
		case <-sub.dirty:
		}

		docs, err := sub.store.Query(sub.ctx, sub.collection, sub.filter)
		if sub.ctx.Err() != nil {
			return
		}
		snap := Snapshot{Docs: docs, Err: err}

		select {
		case sub.out <- snap:
		case <-sub.ctx.Done():
			return
		}
	}
}
