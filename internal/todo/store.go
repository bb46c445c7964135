// Package todo keeps a live, per-user projection of the todo list and sends
// mutations to the document store.
//
// The visible list only ever changes when a snapshot arrives from the live
// query; mutations never touch it. Each binding is tagged with a generation
// and snapshots from an older generation are dropped, so a late delivery for
// a previous user can never land in the current list.
package todo

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/idilsaglam/tada/internal/dispatch"
	"github.com/idilsaglam/tada/internal/docstore"
	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/stream"
)

var (
	// ErrEmptyTitle is reported when a title is blank; nothing is sent.
	ErrEmptyTitle = errors.New("empty title")
	// ErrNotBound is reported when no user is bound; nothing is sent.
	ErrNotBound = errors.New("no user bound")
	// ErrMissingID is reported when a mutation has no target id.
	ErrMissingID = errors.New("missing item id")
)

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

type readiness struct {
	done chan struct{}
	err  error
	once sync.Once
}

func newReadiness() *readiness {
	return &readiness{done: make(chan struct{})}
}

func (r *readiness) resolve(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Store is the todo list of one bound user.
type Store struct {
	remote  Remote
	logger  *slog.Logger
	metrics *Metrics
	queue   *dispatch.Queue
	ctx     context.Context
	cancel  context.CancelFunc

	items *stream.Value[[]model.TodoItem]
	errs  *stream.Value[error]

	mu     sync.Mutex
	gen    uint64
	userID string
	sub    Subscription
	ready  *readiness
}

// New returns an unbound Store with an empty list.
func New(remote Remote, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		remote: remote,
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
		items:  stream.New([]model.TodoItem{}),
		errs:   stream.New[error](nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	s.queue = dispatch.NewQueue(ctx)
	return s
}

// Items streams the list, replaying the current one first. Received slices
// are shared and must not be modified.
func (s *Store) Items() (<-chan []model.TodoItem, func()) {
	return s.items.Subscribe()
}

// List returns the current list. The slice must not be modified.
func (s *Store) List() []model.TodoItem {
	return s.items.Get()
}

// Errors streams the live query error state: the last snapshot error, or nil
// once a good snapshot arrived again.
func (s *Store) Errors() (<-chan error, func()) {
	return s.errs.Subscribe()
}

// Metrics returns the collectors the store reports to.
func (s *Store) Metrics() *Metrics {
	return s.metrics
}

// UserID returns the bound user, or "".
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Bind opens the live query for userID, replacing any previous binding.
// Binding the user that is already bound does nothing; an empty userID
// clears the store.
func (s *Store) Bind(userID string) {
	if userID == "" {
		s.Clear()
		return
	}

	s.mu.Lock()
	if s.userID == userID && s.sub != nil {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	s.gen++
	gen := s.gen
	s.userID = userID
	ready := newReadiness()
	s.ready = ready
	s.mu.Unlock()

	sub, err := s.remote.Subscribe(s.ctx, model.Collection, docstore.Eq(model.FieldOwnerID, userID))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Warn("todo subscribe failed", "user_id", userID, "error", err)
		s.metrics.SnapshotErrors.Inc()
		if s.gen == gen {
			s.errs.Set(err)
		}
		ready.resolve(err)
		return
	}
	if s.gen != gen {
		sub.Cancel()
		return
	}
	s.sub = sub
	s.logger.Debug("todo list bound", "user_id", userID, "generation", gen)
	go s.pump(gen, userID, sub, ready)
}

// Unbind cancels the live query and empties the list. Safe to call when
// nothing is bound.
func (s *Store) Unbind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

// Clear is Unbind; callers use it when the session signs out.
func (s *Store) Clear() {
	s.Unbind()
}

// Ready waits for the first snapshot of the current binding.
func (s *Store) Ready(ctx context.Context) error {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	if ready == nil {
		return ErrNotBound
	}
	select {
	case <-ready.done:
		return ready.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Add creates a pending item for the bound user.
func (s *Store) Add(title string) *dispatch.Op {
	return s.AddItem(title, false)
}

// AddItem creates an item with the given completed flag; import and undo
// use it to bring entries back as they were.
func (s *Store) AddItem(title string, completed bool) *dispatch.Op {
	title, ok := model.CleanTitle(title)
	if !ok {
		return dispatch.Resolved(ErrEmptyTitle)
	}
	owner := s.UserID()
	if owner == "" {
		return dispatch.Resolved(ErrNotBound)
	}
	fields := docstore.Fields{
		model.FieldTitle:     title,
		model.FieldCompleted: completed,
		model.FieldOwnerID:   owner,
	}
	return s.send("create", func(ctx context.Context) error {
		_, err := s.remote.Create(ctx, model.Collection, fields)
		return err
	})
}

// UpdateTitle renames an item.
func (s *Store) UpdateTitle(id, title string) *dispatch.Op {
	title, ok := model.CleanTitle(title)
	if !ok {
		return dispatch.Resolved(ErrEmptyTitle)
	}
	return s.mutate("update_title", id, func(ctx context.Context, owner docstore.Filter) error {
		return s.remote.Update(ctx, model.Collection, id, docstore.Fields{model.FieldTitle: title}, owner)
	})
}

// ToggleComplete sets the completed flag to exactly completed.
func (s *Store) ToggleComplete(id string, completed bool) *dispatch.Op {
	return s.mutate("toggle_complete", id, func(ctx context.Context, owner docstore.Filter) error {
		return s.remote.Update(ctx, model.Collection, id, docstore.Fields{model.FieldCompleted: completed}, owner)
	})
}

// Remove deletes an item.
func (s *Store) Remove(id string) *dispatch.Op {
	return s.mutate("remove", id, func(ctx context.Context, owner docstore.Filter) error {
		return s.remote.Delete(ctx, model.Collection, id, owner)
	})
}

// Close unbinds and waits for queued mutations.
func (s *Store) Close(ctx context.Context) error {
	s.Unbind()
	err := s.queue.Close(ctx)
	s.cancel()
	s.items.Close()
	s.errs.Close()
	return err
}

// mutate targets one item of the bound user. The owner filter makes the
// store refuse documents belonging to somebody else.
func (s *Store) mutate(op, id string, fn func(ctx context.Context, owner docstore.Filter) error) *dispatch.Op {
	if id == "" {
		return dispatch.Resolved(ErrMissingID)
	}
	owner := s.UserID()
	if owner == "" {
		return dispatch.Resolved(ErrNotBound)
	}
	filter := docstore.Eq(model.FieldOwnerID, owner)
	return s.send(op, func(ctx context.Context) error {
		return fn(ctx, filter)
	})
}

func (s *Store) send(op string, fn func(ctx context.Context) error) *dispatch.Op {
	return s.queue.Do(func(ctx context.Context) error {
		err := fn(ctx)
		s.metrics.mutation(op, err)
		if err != nil {
			s.logger.Warn("todo mutation failed", "op", op, "error", err)
		}
		return err
	})
}

func (s *Store) teardownLocked() {
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	if s.ready != nil {
		s.ready.resolve(ErrNotBound)
		s.ready = nil
	}
	if s.userID != "" {
		s.logger.Debug("todo list unbound", "user_id", s.userID, "generation", s.gen)
	}
	s.gen++
	s.userID = ""
	if len(s.items.Get()) > 0 {
		s.items.Set([]model.TodoItem{})
		s.metrics.Items.Set(0)
	}
	if s.errs.Get() != nil {
		s.errs.Set(nil)
	}
}

func (s *Store) pump(gen uint64, userID string, sub Subscription, ready *readiness) {
	for snap := range sub.Snapshots() {
		s.apply(gen, userID, snap, ready)
	}
}

func (s *Store) apply(gen uint64, userID string, snap docstore.Snapshot, ready *readiness) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.metrics.SnapshotsStale.Inc()
		s.logger.Debug("stale snapshot dropped", "generation", gen, "current", s.gen)
		return
	}
	if snap.Err != nil {
		// keep the last good list; the error is published separately
		s.metrics.SnapshotErrors.Inc()
		s.logger.Warn("todo snapshot error", "user_id", userID, "error", snap.Err)
		s.errs.Set(snap.Err)
		ready.resolve(snap.Err)
		return
	}

	items := make([]model.TodoItem, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		item := fromDocument(doc)
		if item.OwnerID != userID {
			s.logger.Warn("foreign document in snapshot", "id", doc.ID, "user_id", userID)
			continue
		}
		items = append(items, item)
	}
	s.items.Set(items)
	s.metrics.SnapshotsApplied.Inc()
	s.metrics.Items.Set(float64(len(items)))
	if s.errs.Get() != nil {
		s.errs.Set(nil)
	}
	ready.resolve(nil)
}

func fromDocument(doc docstore.Document) model.TodoItem {
	return model.TodoItem{
		ID:        doc.ID,
		Title:     doc.String(model.FieldTitle),
		Completed: doc.Bool(model.FieldCompleted),
		OwnerID:   doc.String(model.FieldOwnerID),
	}
}
