package redis_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-activation-go/store"
	"github.com/LerianStudio/lib-activation-go/store/redis"
	"github.com/LerianStudio/lib-activation-go/test/helper/testlogger"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := redis.Connect("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return redis.New(client, "", testlogger.New()), mr
}

func device(id string) model.DeviceActivationEntry {
	return model.NewDeviceActivationEntry(id, model.DeviceInfo{Hostname: "host"}, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

func next(t *testing.T, sub store.Subscription) store.Event {
	t.Helper()

	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return store.Event{}
	}
}

func TestConnectAcceptsBareAddress(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := redis.Connect(mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestGet(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "CODE")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, mr.Set("activation_codes:CODE", `{"status":"active","deviceLimit":0}`))

	rec, err := s.Get(ctx, "CODE")
	require.NoError(t, err)
	assert.Equal(t, "CODE", rec.ID)
	assert.Equal(t, "ACTIVE", rec.Status)
	assert.Equal(t, 1, rec.DeviceLimit)
	assert.NotNil(t, rec.ActivatedDevices)

	mr.Close()

	_, err = s.Get(ctx, "CODE")
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestUpdateAppendsDevicesOnce(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &model.ActivationCode{ID: "CODE", Status: "UNUSED", DeviceLimit: 2}))

	active := "ACTIVE"
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	patch := store.Patch{Status: &active, ActivatedAt: &now, AppendDevices: []model.DeviceActivationEntry{device("device-A-000001")}}

	require.NoError(t, s.Update(ctx, "CODE", patch))
	require.NoError(t, s.Update(ctx, "CODE", patch))

	rec, err := s.Get(ctx, "CODE")
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", rec.Status)
	assert.True(t, rec.ActivatedAt.Equal(now))
	assert.Len(t, rec.ActivatedDevices, 1)

	assert.ErrorIs(t, s.Update(ctx, "MISSING", patch), store.ErrNotFound)
}

func TestUpdateIfReturnsGuardError(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &model.ActivationCode{ID: "CODE", Status: "ACTIVE"}))

	blocked := errors.New("blocked")
	err := s.UpdateIf(ctx, "CODE", store.Patch{AppendDevices: []model.DeviceActivationEntry{device("device-A-000001")}},
		func(*model.ActivationCode) error { return blocked })
	assert.Same(t, blocked, err)

	rec, err := s.Get(ctx, "CODE")
	require.NoError(t, err)
	assert.Empty(t, rec.ActivatedDevices)
}

func TestUpdateIfNeverOverfills(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &model.ActivationCode{ID: "CODE", Status: "ACTIVE", DeviceLimit: 2}))

	full := errors.New("full")

	var wg sync.WaitGroup

	for i := 0; i < 6; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			_ = s.UpdateIf(ctx, "CODE",
				store.Patch{AppendDevices: []model.DeviceActivationEntry{device("device-" + string(rune('A'+i)) + "-000001")}},
				func(current *model.ActivationCode) error {
					if current.IsFull() {
						return full
					}

					return nil
				})
		}(i)
	}

	wg.Wait()

	rec, err := s.Get(ctx, "CODE")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(rec.ActivatedDevices), 2)
	assert.NotEmpty(t, rec.ActivatedDevices)
}

func TestSubscribe(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &model.ActivationCode{ID: "CODE", Status: "UNUSED"}))

	sub, err := s.Subscribe(ctx, "CODE")
	require.NoError(t, err)

	first := next(t, sub)
	require.NoError(t, first.Err)
	assert.Equal(t, "UNUSED", first.Record.Status)

	require.NoError(t, s.Update(ctx, "CODE", store.Patch{AppendDevices: []model.DeviceActivationEntry{device("device-A-000001")}}))

	second := next(t, sub)
	require.NotNil(t, second.Record)
	assert.Len(t, second.Record.ActivatedDevices, 1)

	require.NoError(t, s.Delete(ctx, "CODE"))

	third := next(t, sub)
	assert.True(t, third.Deleted)

	sub.Unsubscribe()
	sub.Unsubscribe()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Events():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribeMissingRecordIsDeletion(t *testing.T) {
	s, _ := newStore(t)

	sub, err := s.Subscribe(context.Background(), "CODE")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.True(t, next(t, sub).Deleted)
}

func TestSubscribeEndsWithContext(t *testing.T) {
	s, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := s.Subscribe(ctx, "CODE")
	require.NoError(t, err)

	next(t, sub)
	cancel()

	assert.Eventually(t, func() bool {
		_, ok := <-sub.Events()
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribeUnavailable(t *testing.T) {
	s, mr := newStore(t)
	mr.Close()

	_, err := s.Subscribe(context.Background(), "CODE")
	assert.ErrorIs(t, err, store.ErrUnavailable)
}
