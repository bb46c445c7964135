package todo

import (
	"context"

	"github.com/idilsaglam/tada/internal/docstore"
)

// Subscription is a live query handle.
type Subscription interface {
	Snapshots() <-chan docstore.Snapshot
	Cancel()
}

// Remote is the document store the todo list is kept in.
type Remote interface {
	Create(ctx context.Context, collection string, fields docstore.Fields) (string, error)
	Update(ctx context.Context, collection, id string, fields docstore.Fields, where ...docstore.Filter) error
	Delete(ctx context.Context, collection, id string, where ...docstore.Filter) error
	Subscribe(ctx context.Context, collection string, filter docstore.Filter) (Subscription, error)
}

type docstoreRemote struct {
	*docstore.Store
}

var _ Remote = docstoreRemote{}

// FromDocstore adapts a docstore.Store to Remote.
func FromDocstore(s *docstore.Store) Remote {
	return docstoreRemote{Store: s}
}

func (r docstoreRemote) Subscribe(ctx context.Context, collection string, filter docstore.Filter) (Subscription, error) {
	sub, err := r.Store.Subscribe(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
