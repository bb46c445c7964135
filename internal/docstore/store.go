package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	collection TEXT NOT NULL,
	data       TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection, seq);
`

type record struct {
	bun.BaseModel `bun:"table:documents,alias:doc"`

	Seq        int64     `bun:"seq,pk,autoincrement"`
	ID         string    `bun:"id,notnull"`
	Collection string    `bun:"collection,notnull"`
	Data       string    `bun:"data,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

func (r *record) document() (Document, error) {
	fields, err := decodeFields(r.Data)
	if err != nil {
		return Document{}, fmt.Errorf("document %s: %w", r.ID, err)
	}
	return Document{ID: r.ID, Fields: fields}, nil
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger used for subscription lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock injects the clock used for timestamps (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides how document ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// Store is a document store on top of a bun database.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

// New prepares the documents schema on db and returns a Store. The caller
// keeps ownership of db.
func New(ctx context.Context, db *bun.DB, opts ...Option) (*Store, error) {
	s := &Store{
		db:     db,
		logger: slog.Default(),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		subs:   make(map[string]map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// Create inserts fields as a new document and returns its id.
func (s *Store) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	data, err := encodeFields(fields)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	rec := &record{
		ID:         s.newID(),
		Collection: collection,
		Data:       data,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.db.NewInsert().Model(rec).ExcludeColumn("seq").Exec(ctx); err != nil {
		return "", unavailable("insert", err)
	}
	s.notify(collection)
	return rec.ID, nil
}

// Update merges fields into the document. Every filter in where must match
// the stored document, otherwise ErrPermissionDenied is returned and nothing
// is written.
func (s *Store) Update(ctx context.Context, collection, id string, fields Fields, where ...Filter) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		rec, current, err := s.load(ctx, tx, collection, id, where)
		if err != nil {
			return err
		}
		for k, v := range fields {
			current[k] = v
		}
		data, err := encodeFields(current)
		if err != nil {
			return err
		}
		rec.Data = data
		rec.UpdatedAt = s.now().UTC()
		if _, err := tx.NewUpdate().Model(rec).Column("data", "updated_at").WherePK().Exec(ctx); err != nil {
			return unavailable("update", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(collection)
	return nil
}

// Delete removes the document. Filters in where behave as in Update.
func (s *Store) Delete(ctx context.Context, collection, id string, where ...Filter) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		rec, _, err := s.load(ctx, tx, collection, id, where)
		if err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model(rec).WherePK().Exec(ctx); err != nil {
			return unavailable("delete", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(collection)
	return nil
}

// Get returns one document.
func (s *Store) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := s.checkOpen(); err != nil {
		return Document{}, err
	}
	rec := new(record)
	err := s.db.NewSelect().Model(rec).
		Where("id = ?", id).
		Where("collection = ?", collection).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return Document{}, unavailable("select", err)
	}
	return rec.document()
}

// Query returns the documents of collection matching filter in insertion order.
func (s *Store) Query(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var recs []record
	q := s.db.NewSelect().Model(&recs).Where("collection = ?", collection)
	if !filter.IsZero() {
		q = q.Where("json_extract(data, ?) = ?", "$."+filter.Field, filter.Value)
	}
	if err := q.Order("seq ASC").Scan(ctx); err != nil {
		return nil, unavailable("query", err)
	}

	docs := make([]Document, 0, len(recs))
	for i := range recs {
		doc, err := recs[i].document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Subscribe opens a live query. The first snapshot is delivered right away,
// then a new one after every committed write to collection. The subscription
// ends when Cancel is called, ctx is done, or the store closes.
func (s *Store) Subscribe(ctx context.Context, collection string, filter Filter) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	sub := newSubscription(ctx, s, collection, filter)
	if s.subs[collection] == nil {
		s.subs[collection] = make(map[*Subscription]struct{})
	}
	s.subs[collection][sub] = struct{}{}
	go sub.pump()

	s.logger.Debug("docstore subscription opened", "collection", collection, "field", filter.Field)
	return sub, nil
}

// Close cancels every live subscription. It does not close the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var all []*Subscription
	for _, set := range s.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range all {
		sub.Cancel()
	}
	return nil
}

func (s *Store) load(ctx context.Context, tx bun.Tx, collection, id string, where []Filter) (*record, Fields, error) {
	rec := new(record)
	err := tx.NewSelect().Model(rec).
		Where("id = ?", id).
		Where("collection = ?", collection).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, nil, unavailable("select", err)
	}
	current, err := decodeFields(rec.Data)
	if err != nil {
		return nil, nil, err
	}
	for _, f := range where {
		if !f.Match(current) {
			return nil, nil, fmt.Errorf("%s/%s: %w", collection, id, ErrPermissionDenied)
		}
	}
	return rec, current, nil
}

func (s *Store) notify(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs[collection] {
		sub.markDirty()
	}
}

func (s *Store) remove(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.subs[sub.collection]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(s.subs, sub.collection)
		}
	}
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}
