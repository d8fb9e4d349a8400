package activation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LerianStudio/lib-activation-go/activation"
	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/internal/cache"
	"github.com/LerianStudio/lib-activation-go/internal/config"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-activation-go/test/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestVerifyWithRetryWithoutLocalActivation(t *testing.T) {
	e := newEnv(t, setup{})

	assert.NoError(t, e.coordinator.VerifyWithRetry(context.Background()))
	assert.Zero(t, e.store.Gets())
}

func TestVerifyWithRetryFallsBackOffline(t *testing.T) {
	e := newEnv(t, setup{})
	activated(t, e, cn.UnitDays, 30)

	e.store.SetUnavailable(errors.New("connection refused"))

	require.NoError(t, e.coordinator.VerifyWithRetry(context.Background()))

	v := e.coordinator.CurrentVerdict(context.Background())
	assert.True(t, v.Valid)
	assert.True(t, v.Offline)
	assert.Equal(t, cn.ReasonValidOffline, v.Reason)
}

func TestVerifyWithRetryRevokedNotifiesLapse(t *testing.T) {
	var seen lapses

	e := newEnv(t, setup{opts: []activation.Option{activation.WithLapseHandler(seen.handle)}})
	activated(t, e, cn.UnitDays, 30)

	require.NoError(t, e.store.Mutate("CODE", func(rec *model.ActivationCode) { rec.Status = cn.StatusRevoked }))

	gets := e.store.Gets()
	err := e.coordinator.VerifyWithRetry(context.Background())
	assert.ErrorIs(t, err, cn.ErrCodeRevoked)
	assert.Equal(t, gets+1, e.store.Gets(), "definitive verdicts are not retried")

	eval, ok := seen.get("CODE")
	require.True(t, ok)
	assert.Equal(t, cn.StatusRevoked, eval.Status)

	_, err = e.coordinator.CheckLocal()
	assert.ErrorIs(t, err, cn.ErrNoLocalActivation)
}

func TestVerifyWithRetryRetriesStoreFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	rs := mocks.NewMockRecordStore(ctrl)

	var seen lapses

	e := newEnv(t, setup{
		rs:    rs,
		tweak: func(cfg *config.ClientConfig) { cfg.RetryAttempts = 3 },
		opts:  []activation.Option{activation.WithLapseHandler(seen.handle)},
	})

	require.NoError(t, cache.NewFile(e.cfg.StatusFile, e.logger).Save(model.LocalActivationRecord{
		IsActivated:         true,
		ActivationCode:      "CODE",
		ActivatedByDeviceID: "device-A-000001",
		ActivatedAtISO:      base.Format(time.RFC3339),
	}))

	rs.EXPECT().Get(gomock.Any(), "CODE").Return(nil, errors.New("permission denied")).Times(3)

	err := e.coordinator.VerifyWithRetry(context.Background())
	assert.ErrorIs(t, err, cn.ErrOnlineVerification)
	assert.Zero(t, seen.count())

	v := e.coordinator.CurrentVerdict(context.Background())
	assert.False(t, v.Valid)
	assert.Equal(t, cn.ReasonOnlineFailed, v.Reason)
}

func TestBackgroundRefreshDetectsRevocation(t *testing.T) {
	var seen lapses

	e := newEnv(t, setup{
		tweak: func(cfg *config.ClientConfig) { cfg.RefreshInterval = 10 * time.Millisecond },
		opts:  []activation.Option{activation.WithLapseHandler(seen.handle)},
	})
	activated(t, e, cn.UnitDays, 30)

	e.coordinator.StartBackgroundRefresh(context.Background())
	e.coordinator.StartBackgroundRefresh(context.Background())

	require.NoError(t, e.store.Mutate("CODE", func(rec *model.ActivationCode) { rec.Status = cn.StatusExpired }))

	assert.Eventually(t, func() bool {
		eval, ok := seen.get("CODE")
		return ok && eval.Status == cn.StatusExpired
	}, 2*time.Second, 10*time.Millisecond)

	e.coordinator.ShutdownBackgroundRefresh()
}
