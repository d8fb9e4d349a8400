// Package firestore keeps activation codes as documents of a Firestore
// collection and streams document snapshots to watchers.
package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	fs "cloud.google.com/go/firestore"
	cn "github.com/LerianStudio/lib-activation-go/constant"
	libErr "github.com/LerianStudio/lib-activation-go/error"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-activation-go/store"
	"github.com/LerianStudio/lib-commons/commons/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Store implements store.RecordStore and store.ConditionalUpdater on a
// Firestore collection.
type Store struct {
	client     *fs.Client
	collection string
	logger     log.Logger
}

var (
	_ store.RecordStore        = (*Store)(nil)
	_ store.ConditionalUpdater = (*Store)(nil)
)

// New connects to projectID. An empty credentialsFile uses application
// default credentials.
func New(ctx context.Context, projectID, credentialsFile, collection string, logger log.Logger) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := fs.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}

	return NewWithClient(client, collection, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *fs.Client, collection string, logger log.Logger) *Store {
	if collection == "" {
		collection = cn.DefaultCollection
	}

	return &Store{client: client, collection: collection, logger: logger}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) doc(codeID string) *fs.DocumentRef {
	return s.client.Collection(s.collection).Doc(codeID)
}

// Get fetches and normalizes the record for codeID.
func (s *Store) Get(ctx context.Context, codeID string) (*model.ActivationCode, error) {
	snap, err := s.doc(codeID).Get(ctx)
	if err != nil {
		return nil, classify(err)
	}

	return decode(snap.Ref.ID, snap.Data())
}

// Update merges patch into the document. Devices are appended with
// ArrayUnion so concurrent writers never drop each other's entries.
func (s *Store) Update(ctx context.Context, codeID string, patch store.Patch) error {
	updates := encodePatch(patch)
	if len(updates) == 0 {
		return nil
	}

	if _, err := s.doc(codeID).Update(ctx, updates); err != nil {
		return classify(err)
	}

	return nil
}

// UpdateIf applies patch in a transaction after guard accepts the current
// document. Guard errors are returned unchanged.
func (s *Store) UpdateIf(ctx context.Context, codeID string, patch store.Patch, guard store.Guard) error {
	ref := s.doc(codeID)

	var guardErr error

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *fs.Transaction) error {
		guardErr = nil

		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}

		rec, err := decode(codeID, snap.Data())
		if err != nil {
			return err
		}

		if guard != nil {
			if guardErr = guard(rec.Clone()); guardErr != nil {
				return guardErr
			}
		}

		updates := encodePatch(patch)
		if len(updates) == 0 {
			return nil
		}

		return tx.Update(ref, updates)
	})

	switch {
	case err == nil:
		return nil
	case guardErr != nil:
		return guardErr
	default:
		return classify(err)
	}
}

// Subscribe streams document snapshots. The first snapshot carries the
// current state; a missing document is delivered as a deletion.
func (s *Store) Subscribe(ctx context.Context, codeID string) (store.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)

	sub := &subscription{
		codeID: codeID,
		iter:   s.doc(codeID).Snapshots(subCtx),
		out:    make(chan store.Event),
		ctx:    subCtx,
		cancel: cancel,
		logger: s.logger,
	}

	go sub.run()

	return sub, nil
}

type subscription struct {
	codeID string
	iter   *fs.DocumentSnapshotIterator
	out    chan store.Event
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	logger log.Logger
}

func (s *subscription) Events() <-chan store.Event {
	return s.out
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		s.iter.Stop()
	})
}

func (s *subscription) run() {
	defer close(s.out)

	for {
		snap, err := s.iter.Next()

		var ev store.Event

		switch {
		case errors.Is(err, iterator.Done) || s.ctx.Err() != nil:
			return
		case err != nil:
			s.logger.Errorf("Snapshot stream for %s failed: %v", s.codeID, err)
			ev.Err = classify(err)
		case !snap.Exists():
			ev.Deleted = true
		default:
			ev.Record, ev.Err = decode(s.codeID, snap.Data())
		}

		select {
		case s.out <- ev:
		case <-s.ctx.Done():
			return
		}

		if err != nil {
			return
		}
	}
}

// classify maps Firestore errors onto store errors.
func classify(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return store.ErrNotFound
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	if libErr.IsConnectionError(err) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	return fmt.Errorf("firestore: %w", err)
}

// encodePatch converts patch into field updates.
func encodePatch(patch store.Patch) []fs.Update {
	var updates []fs.Update

	if patch.Status != nil {
		updates = append(updates, fs.Update{Path: "status", Value: *patch.Status})
	}

	if patch.ActivatedAt != nil {
		updates = append(updates, fs.Update{Path: "activatedAt", Value: patch.ActivatedAt.UTC()})
	}

	if patch.ActualExpiresAt != nil {
		updates = append(updates, fs.Update{Path: "actualExpiresAt", Value: patch.ActualExpiresAt.UTC()})
	}

	if patch.LastUsedAt != nil {
		updates = append(updates, fs.Update{Path: "lastUsedAt", Value: patch.LastUsedAt.UTC()})
	}

	if len(patch.AppendDevices) > 0 {
		entries := make([]any, 0, len(patch.AppendDevices))
		for _, d := range patch.AppendDevices {
			entries = append(entries, encodeEntry(d))
		}

		updates = append(updates, fs.Update{Path: "activatedDevices", Value: fs.ArrayUnion(entries...)})
	}

	return updates
}

func encodeEntry(d model.DeviceActivationEntry) map[string]any {
	return map[string]any{
		"generated_device_id": d.GeneratedDeviceID,
		"activationTimestamp": d.ActivationTimestamp.UTC(),
		"system_username":     d.SystemUsername,
		"hostname":            d.Hostname,
		"local_ip":            d.LocalIP,
		"os_platform":         d.OSPlatform,
		"os_version":          d.OSVersion,
		"os_release":          d.OSRelease,
		"architecture":        d.Architecture,
		"public_ip":           d.PublicIP,
	}
}

// decode converts document data into a normalized record. Firestore
// timestamps arrive as time.Time and integers as int64; both survive the
// JSON hop into the record's own field mapping.
func decode(codeID string, data map[string]any) (*model.ActivationCode, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document %s: %w", codeID, err)
	}

	var rec model.ActivationCode
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", codeID, err)
	}

	rec.ID = codeID

	return rec.Normalize(), nil
}
