// Package redis stores activation codes as JSON documents in Redis and
// pushes changes to watchers over pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-activation-go/store"
	"github.com/LerianStudio/lib-commons/commons/log"
	goredis "github.com/redis/go-redis/v9"
)

// maxTxAttempts bounds optimistic transaction retries when a watched key
// changes between read and write.
const maxTxAttempts = 5

const changedMessage = "changed"

// Store implements store.RecordStore and store.ConditionalUpdater.
type Store struct {
	client *goredis.Client
	prefix string
	logger log.Logger
}

var (
	_ store.RecordStore        = (*Store)(nil)
	_ store.ConditionalUpdater = (*Store)(nil)
)

// Connect initializes a Redis client from a redis:// URL or a host:port address.
func Connect(redisURL string) (*goredis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := goredis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}

		return goredis.NewClient(opt), nil
	}

	return goredis.NewClient(&goredis.Options{Addr: redisURL}), nil
}

// New creates a store keeping records under "<collection>:<code>".
func New(client *goredis.Client, collection string, logger log.Logger) *Store {
	if collection == "" {
		collection = cn.DefaultCollection
	}

	return &Store{client: client, prefix: collection, logger: logger}
}

func (s *Store) key(codeID string) string {
	return s.prefix + ":" + codeID
}

func (s *Store) channel(codeID string) string {
	return s.prefix + ":changes:" + codeID
}

// Get fetches and normalizes the record for codeID.
func (s *Store) Get(ctx context.Context, codeID string) (*model.ActivationCode, error) {
	data, err := s.client.Get(ctx, s.key(codeID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, store.ErrNotFound
		}

		return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	return decode(codeID, data)
}

// Update merges patch into the record for codeID.
func (s *Store) Update(ctx context.Context, codeID string, patch store.Patch) error {
	return s.UpdateIf(ctx, codeID, patch, nil)
}

// UpdateIf applies patch inside a WATCH transaction. Guard errors are
// returned unchanged. When the key keeps changing under the transaction,
// store.ErrPreconditionFailed is returned.
func (s *Store) UpdateIf(ctx context.Context, codeID string, patch store.Patch, guard store.Guard) error {
	key := s.key(codeID)

	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		var txErr error

		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			txErr = s.apply(ctx, tx, codeID, patch, guard)
			return txErr
		}, key)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, goredis.TxFailedErr):
			s.logger.Debugf("Record %s changed during update, retrying (%d/%d)", codeID, attempt, maxTxAttempts)
			continue
		case txErr != nil:
			return txErr
		default:
			return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
		}
	}

	return fmt.Errorf("%w: %w", store.ErrPreconditionFailed, goredis.TxFailedErr)
}

func (s *Store) apply(ctx context.Context, tx *goredis.Tx, codeID string, patch store.Patch, guard store.Guard) error {
	key := s.key(codeID)

	data, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return store.ErrNotFound
		}

		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	rec, err := decode(codeID, data)
	if err != nil {
		return err
	}

	if guard != nil {
		if err := guard(rec.Clone()); err != nil {
			return err
		}
	}

	patch.Apply(rec)

	payload, err := json.Marshal(rec.Normalize())
	if err != nil {
		return err
	}

	_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, key, payload, 0)
		p.Publish(ctx, s.channel(codeID), changedMessage)

		return nil
	})
	if err != nil && !errors.Is(err, goredis.TxFailedErr) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	return err
}

// Put creates or replaces a record and notifies watchers.
func (s *Store) Put(ctx context.Context, rec *model.ActivationCode) error {
	payload, err := json.Marshal(rec.Clone().Normalize())
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, s.key(rec.ID), payload, 0)
		p.Publish(ctx, s.channel(rec.ID), changedMessage)

		return nil
	})

	return err
}

// Delete removes a record and notifies watchers.
func (s *Store) Delete(ctx context.Context, codeID string) error {
	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, s.key(codeID))
		p.Publish(ctx, s.channel(codeID), changedMessage)

		return nil
	})

	return err
}

// Subscribe listens on the record's change channel. Every notification
// re-reads the record, so watchers always observe the latest state.
func (s *Store) Subscribe(ctx context.Context, codeID string) (store.Subscription, error) {
	pubsub := s.client.Subscribe(ctx, s.channel(codeID))

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	sub := &subscription{
		store:  s,
		codeID: codeID,
		pubsub: pubsub,
		out:    make(chan store.Event),
		ctx:    subCtx,
		cancel: cancel,
	}

	go sub.run()

	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-subCtx.Done():
		}
	}()

	return sub, nil
}

type subscription struct {
	store  *Store
	codeID string
	pubsub *goredis.PubSub
	out    chan store.Event
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (s *subscription) Events() <-chan store.Event {
	return s.out
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()

		if err := s.pubsub.Close(); err != nil {
			s.store.logger.Debugf("Closing subscription for %s: %v", s.codeID, err)
		}
	})
}

func (s *subscription) run() {
	defer close(s.out)

	messages := s.pubsub.Channel()

	if !s.emit(s.current()) {
		return
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case _, ok := <-messages:
			if !ok {
				return
			}

			if !s.emit(s.current()) {
				return
			}
		}
	}
}

func (s *subscription) current() store.Event {
	rec, err := s.store.Get(s.ctx, s.codeID)

	switch {
	case errors.Is(err, store.ErrNotFound):
		return store.Event{Deleted: true}
	case err != nil:
		return store.Event{Err: err}
	}

	return store.Event{Record: rec}
}

func (s *subscription) emit(ev store.Event) bool {
	if s.ctx.Err() != nil {
		return false
	}

	select {
	case s.out <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func decode(codeID string, data []byte) (*model.ActivationCode, error) {
	var rec model.ActivationCode
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", codeID, err)
	}

	if rec.ID == "" {
		rec.ID = codeID
	}

	return rec.Normalize(), nil
}
