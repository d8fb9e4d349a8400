// Package store defines the remote record store used to fetch, update and
// watch activation codes, independently of the backend holding them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/LerianStudio/lib-activation-go/model"
)

// ErrNotFound is returned when no record exists for a code.
var ErrNotFound = errors.New("activation code not found")

// ErrUnavailable wraps transport failures talking to the backend.
var ErrUnavailable = errors.New("record store unavailable")

// ErrPreconditionFailed is returned by UpdateIf when the guard rejects the current record.
var ErrPreconditionFailed = errors.New("record precondition failed")

// RecordStore is the remote, authoritative source of activation codes.
// Implementations never retry.
type RecordStore interface {
	// Get fetches and normalizes the record for codeID.
	Get(ctx context.Context, codeID string) (*model.ActivationCode, error)
	// Update merges patch into the record for codeID.
	Update(ctx context.Context, codeID string, patch Patch) error
	// Subscribe opens a change stream for codeID. The first event carries
	// the current state.
	Subscribe(ctx context.Context, codeID string) (Subscription, error)
}

// Guard inspects the current record inside a conditional update.
type Guard func(current *model.ActivationCode) error

// ConditionalUpdater is implemented by stores that can apply a patch only
// when a guard accepts the record, atomically with respect to other writers.
type ConditionalUpdater interface {
	UpdateIf(ctx context.Context, codeID string, patch Patch, guard Guard) error
}

// Subscription is a live change stream for one record.
type Subscription interface {
	// Events is closed after Unsubscribe or when the stream ends.
	Events() <-chan Event
	// Unsubscribe ends the stream. It is safe to call more than once.
	Unsubscribe()
}

// Event is one delivery of a change stream: a record, a deletion or an error.
type Event struct {
	Record  *model.ActivationCode
	Deleted bool
	Err     error
}

// Patch lists the fields an update may touch. Nil fields are left unchanged.
type Patch struct {
	Status          *string
	ActivatedAt     *time.Time
	ActualExpiresAt *time.Time
	LastUsedAt      *time.Time
	// AppendDevices are added to activatedDevices unless an equal entry is present.
	AppendDevices []model.DeviceActivationEntry
}

// Apply merges the patch into rec in place.
func (p Patch) Apply(rec *model.ActivationCode) {
	if p.Status != nil {
		rec.Status = *p.Status
	}

	if p.ActivatedAt != nil {
		t := p.ActivatedAt.UTC()
		rec.ActivatedAt = &t
	}

	if p.ActualExpiresAt != nil {
		t := p.ActualExpiresAt.UTC()
		rec.ActualExpiresAt = &t
	}

	if p.LastUsedAt != nil {
		t := p.LastUsedAt.UTC()
		rec.LastUsedAt = &t
	}

	rec.ActivatedDevices = AppendUnique(rec.ActivatedDevices, p.AppendDevices...)
}

// AppendUnique appends each entry not already present by structural equality.
func AppendUnique(list []model.DeviceActivationEntry, entries ...model.DeviceActivationEntry) []model.DeviceActivationEntry {
	for _, e := range entries {
		present := false

		for _, existing := range list {
			if existing.Equal(e) {
				present = true
				break
			}
		}

		if !present {
			list = append(list, e)
		}
	}

	return list
}
