package docstore

import (
	"context"
	"sync"
	"time"
)

type subscription struct {
	collection string
	query      Query
	ch         chan []Document
}

// MemoryStore is an in-process Store used in development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	docs    map[string]Document
	seq     int64
	writes  int
	failErr error

	subs    map[int]*subscription
	nextSub int

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]Document),
		subs: make(map[int]*subscription),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Writes returns the number of successful Put and Delete calls.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// FailWrites makes every following Put and Delete return err. A nil err
// restores normal behaviour.
func (s *MemoryStore) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

func (s *MemoryStore) Get(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if _, _, err := Split(path); err != nil {
		return Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[path]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *MemoryStore) Put(ctx context.Context, path string, doc any, opts ...PutOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	collection, id, err := Split(path)
	if err != nil {
		return err
	}
	data, err := encodeObject(doc)
	if err != nil {
		return err
	}
	o := applyPutOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return s.failErr
	}

	existing, exists := s.docs[path]
	if o.checkVer {
		if o.ifVersion == 0 && exists {
			return ErrConflict
		}
		if o.ifVersion > 0 && (!exists || existing.Version != o.ifVersion) {
			return ErrConflict
		}
	}

	now := s.now()
	if exists {
		if o.merge {
			data, err = mergeObjects(existing.Data, data)
			if err != nil {
				return err
			}
		}
		existing.Data = data
		existing.Version++
		existing.UpdatedAt = now
		s.docs[path] = existing
	} else {
		s.seq++
		s.docs[path] = Document{
			Path:      path,
			ID:        id,
			Data:      data,
			Version:   1,
			Seq:       s.seq,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	s.writes++

	s.notifyLocked(collection)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	collection, _, err := Split(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return s.failErr
	}
	if _, ok := s.docs[path]; !ok {
		return nil
	}
	delete(s.docs, path)
	s.writes++

	s.notifyLocked(collection)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listLocked(collection, q), nil
}

func (s *MemoryStore) listLocked(collection string, q Query) []Document {
	var docs []Document
	for path, doc := range s.docs {
		c, _, err := Split(path)
		if err != nil || c != collection {
			continue
		}
		docs = append(docs, doc)
	}
	return applyQuery(docs, q)
}

func (s *MemoryStore) Watch(ctx context.Context, collection string, q Query) (<-chan []Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &subscription{
		collection: collection,
		query:      q,
		ch:         make(chan []Document, 1),
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	sub.ch <- s.listLocked(collection, q)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(sub.ch)
		s.mu.Unlock()
	}()

	return sub.ch, nil
}

// notifyLocked delivers the latest snapshot to every subscriber of
// collection. Slow subscribers only ever see the newest snapshot.
func (s *MemoryStore) notifyLocked(collection string) {
	for _, sub := range s.subs {
		if sub.collection != collection {
			continue
		}
		snapshot := s.listLocked(collection, sub.query)
		select {
		case sub.ch <- snapshot:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- snapshot
		}
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
