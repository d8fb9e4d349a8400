package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-activation-go/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub store.Subscription) store.Event {
	t.Helper()

	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return store.Event{}
	}
}

func TestGetNormalizesAndCopies(t *testing.T) {
	s := New()
	s.Put(&model.ActivationCode{ID: "C1", Status: "unused"})

	rec, err := s.Get(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, "UNUSED", rec.Status)
	assert.Equal(t, 1, rec.DeviceLimit)
	assert.Equal(t, "none", rec.ValidityDuration.Unit)
	assert.NotNil(t, rec.ActivatedDevices)

	rec.Status = "REVOKED"

	again, err := s.Get(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, "UNUSED", again.Status)
	assert.EqualValues(t, 2, s.Gets())
}

func TestGetMissingAndUnavailable(t *testing.T) {
	s := New()

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	s.SetUnavailable(errors.New("dial tcp: connection refused"))
	_, err = s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrUnavailable)

	s.SetUnavailable(nil)
	_, err = s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateIfGuard(t *testing.T) {
	s := New()
	s.Put(&model.ActivationCode{ID: "C1", Status: "ACTIVE", DeviceLimit: 1})

	full := errors.New("full")
	guard := func(rec *model.ActivationCode) error {
		if rec.IsFull() {
			return full
		}

		return nil
	}

	entry := model.NewDeviceActivationEntry("device-a", model.DeviceInfo{}, time.Now())
	require.NoError(t, s.UpdateIf(context.Background(), "C1", store.Patch{AppendDevices: []model.DeviceActivationEntry{entry}}, guard))

	other := model.NewDeviceActivationEntry("device-b", model.DeviceInfo{}, time.Now())
	err := s.UpdateIf(context.Background(), "C1", store.Patch{AppendDevices: []model.DeviceActivationEntry{other}}, guard)
	assert.ErrorIs(t, err, full)

	rec, err := s.Get(context.Background(), "C1")
	require.NoError(t, err)
	assert.Len(t, rec.ActivatedDevices, 1)
}

func TestUpdateMissing(t *testing.T) {
	err := New().Update(context.Background(), "nope", store.Patch{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubscribeDeliversCurrentStateThenChanges(t *testing.T) {
	s := New()
	s.Put(&model.ActivationCode{ID: "C1", Status: "ACTIVE"})

	sub, err := s.Subscribe(context.Background(), "C1")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	first := receive(t, sub)
	require.NotNil(t, first.Record)
	assert.Equal(t, "ACTIVE", first.Record.Status)

	require.NoError(t, s.Mutate("C1", func(rec *model.ActivationCode) { rec.Status = "REVOKED" }))
	s.Delete("C1")

	second := receive(t, sub)
	require.NotNil(t, second.Record)
	assert.Equal(t, "REVOKED", second.Record.Status)

	third := receive(t, sub)
	assert.True(t, third.Deleted)
	assert.Nil(t, third.Record)
}

func TestSubscribeMissingRecordIsDeletion(t *testing.T) {
	sub, err := New().Subscribe(context.Background(), "ghost")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.True(t, receive(t, sub).Deleted)
}

func TestUnsubscribeClosesStream(t *testing.T) {
	s := New()
	s.Put(&model.ActivationCode{ID: "C1", Status: "ACTIVE"})

	sub, err := s.Subscribe(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Subscribers("C1"))

	sub.Unsubscribe()
	sub.Unsubscribe()

	assert.Equal(t, 0, s.Subscribers("C1"))
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Events():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestContextCancelUnsubscribes(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := s.Subscribe(ctx, "C1")
	require.NoError(t, err)

	cancel()

	assert.Eventually(t, func() bool { return s.Subscribers("C1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestConcurrentConditionalUpdatesNeverOverfill(t *testing.T) {
	s := New()
	s.Put(&model.ActivationCode{ID: "C1", Status: "ACTIVE", DeviceLimit: 3})

	guard := func(rec *model.ActivationCode) error {
		if rec.IsFull() {
			return store.ErrPreconditionFailed
		}

		return nil
	}

	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			entry := model.NewDeviceActivationEntry(string(rune('a'+i))+"-device", model.DeviceInfo{}, time.Now())
			_ = s.UpdateIf(context.Background(), "C1", store.Patch{AppendDevices: []model.DeviceActivationEntry{entry}}, guard)
		}(i)
	}

	wg.Wait()

	rec, err := s.Get(context.Background(), "C1")
	require.NoError(t, err)
	assert.Len(t, rec.ActivatedDevices, 3)
}
