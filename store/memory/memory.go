// Package memory is an in-process RecordStore. It backs tests, demos and
// offline development, and offers admin helpers that stand in for the
// out-of-band workflow that creates, revokes and deletes codes.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-activation-go/store"
)

// Store keeps records in a map guarded by a mutex.
type Store struct {
	mu          sync.Mutex
	records     map[string]*model.ActivationCode
	subs        map[string]map[*subscription]struct{}
	unavailable error
	gets        atomic.Int64
}

var (
	_ store.RecordStore        = (*Store)(nil)
	_ store.ConditionalUpdater = (*Store)(nil)
)

// New creates an empty store
func New() *Store {
	return &Store{
		records: make(map[string]*model.ActivationCode),
		subs:    make(map[string]map[*subscription]struct{}),
	}
}

// Get returns a copy of the record for codeID.
func (s *Store) Get(_ context.Context, codeID string) (*model.ActivationCode, error) {
	s.gets.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, s.unavailable)
	}

	rec, ok := s.records[codeID]
	if !ok {
		return nil, store.ErrNotFound
	}

	return rec.Clone().Normalize(), nil
}

// Update merges patch into the record and notifies subscribers.
func (s *Store) Update(ctx context.Context, codeID string, patch store.Patch) error {
	return s.UpdateIf(ctx, codeID, patch, nil)
}

// UpdateIf applies patch only when guard accepts the current record.
func (s *Store) UpdateIf(_ context.Context, codeID string, patch store.Patch, guard store.Guard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable != nil {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, s.unavailable)
	}

	rec, ok := s.records[codeID]
	if !ok {
		return store.ErrNotFound
	}

	if guard != nil {
		if err := guard(rec.Clone().Normalize()); err != nil {
			return err
		}
	}

	patch.Apply(rec)
	s.publishLocked(codeID)

	return nil
}

// Subscribe opens a change stream for codeID. A missing record is delivered
// as a deletion.
func (s *Store) Subscribe(ctx context.Context, codeID string) (store.Subscription, error) {
	sub := &subscription{
		store:  s,
		codeID: codeID,
		out:    make(chan store.Event),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.unavailable != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, s.unavailable)
	}

	if s.subs[codeID] == nil {
		s.subs[codeID] = make(map[*subscription]struct{})
	}

	s.subs[codeID][sub] = struct{}{}
	sub.push(s.eventLocked(codeID))
	s.mu.Unlock()

	go sub.run()

	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Put creates or replaces a record.
func (s *Store) Put(rec *model.ActivationCode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = rec.Clone().Normalize()
	s.publishLocked(rec.ID)
}

// Mutate edits a record in place. It returns store.ErrNotFound when absent.
func (s *Store) Mutate(codeID string, fn func(rec *model.ActivationCode)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[codeID]
	if !ok {
		return store.ErrNotFound
	}

	fn(rec)
	rec.Normalize()
	s.publishLocked(codeID)

	return nil
}

// Delete removes a record and notifies subscribers with a deletion.
func (s *Store) Delete(codeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, codeID)
	s.publishLocked(codeID)
}

// SetUnavailable makes every call fail with err wrapped in store.ErrUnavailable.
// A nil err restores the store.
func (s *Store) SetUnavailable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unavailable = err
}

// Gets reports how many times Get was called.
func (s *Store) Gets() int64 {
	return s.gets.Load()
}

// Subscribers reports the number of live subscriptions for codeID.
func (s *Store) Subscribers(codeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.subs[codeID])
}

func (s *Store) eventLocked(codeID string) store.Event {
	rec, ok := s.records[codeID]
	if !ok {
		return store.Event{Deleted: true}
	}

	return store.Event{Record: rec.Clone().Normalize()}
}

func (s *Store) publishLocked(codeID string) {
	for sub := range s.subs[codeID] {
		sub.push(s.eventLocked(codeID))
	}
}

func (s *Store) remove(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subs[sub.codeID], sub)

	if len(s.subs[sub.codeID]) == 0 {
		delete(s.subs, sub.codeID)
	}
}

// subscription queues events without bound so a slow consumer never blocks
// writers, and hands them to the consumer one at a time.
type subscription struct {
	store  *Store
	codeID string
	out    chan store.Event
	notify chan struct{}
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	queue []store.Event
}

func (s *subscription) Events() <-chan store.Event {
	return s.out
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.store.remove(s)
	})
}

func (s *subscription) push(ev store.Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()

			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}

		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
