package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/LerianStudio/lib-activation-go/activation"
	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/internal/config"
	"github.com/LerianStudio/lib-activation-go/internal/validity"
	"github.com/LerianStudio/lib-activation-go/middleware"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-activation-go/pkg"
	"github.com/LerianStudio/lib-activation-go/store"
	"github.com/LerianStudio/lib-activation-go/store/memory"
	"github.com/LerianStudio/lib-activation-go/test/helper/testlogger"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var now = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

type identity struct{}

func (identity) Resolve() model.DeviceIdentity {
	return model.DeviceIdentity{ID: "device-A-000001", Persistent: true}
}

func (identity) CollectDeviceInfo(context.Context) model.DeviceInfo {
	return model.DeviceInfo{Hostname: "box"}
}

func newCoordinator(t *testing.T, rs store.RecordStore, statusFile string) (*activation.Coordinator, *testlogger.TestLogger) {
	t.Helper()

	cfg := config.NewConfigForDir(t.TempDir())
	cfg.RetryInterval = time.Millisecond
	cfg.RetryAttempts = 1

	if statusFile != "" {
		cfg.StatusFile = statusFile
	}

	logger := testlogger.New()

	c, err := activation.New(&cfg, rs, logger,
		activation.WithIdentity(identity{}),
		activation.WithClock(validity.NewWithNow(func() time.Time { return now }, logger)),
	)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return c, logger
}

func activatedCoordinator(t *testing.T) (*activation.Coordinator, *memory.Store) {
	t.Helper()

	return activatedCoordinatorAt(t, "")
}

func activatedCoordinatorAt(t *testing.T, statusFile string) (*activation.Coordinator, *memory.Store) {
	t.Helper()

	rs := memory.New()
	rs.Put(&model.ActivationCode{
		ID:               "CODE",
		Status:           cn.StatusUnused,
		ValidityDuration: model.ValidityDuration{Unit: cn.UnitDays, Value: model.IntPtr(10)},
	})

	c, _ := newCoordinator(t, rs, statusFile)

	_, err := c.Activate(context.Background(), "CODE")
	require.NoError(t, err)

	return c, rs
}

func setupFiberApp(guard *middleware.ActivationGuard) *fiber.App {
	app := fiber.New()

	app.Use(guard.Middleware())

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendString("success")
	})

	return app
}

func TestMiddlewareAllowsValidActivation(t *testing.T) {
	c, _ := activatedCoordinator(t)
	app := setupFiberApp(middleware.NewActivationGuard(c))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "valid", resp.Header.Get(cn.ActivationStatusHeader))
	assert.Equal(t, now.Add(10*24*time.Hour).Format(time.RFC3339), resp.Header.Get(cn.ActivationExpiresHeader))
}

func TestMiddlewareRejectsWithoutActivation(t *testing.T) {
	c, logger := newCoordinator(t, memory.New(), "")
	app := setupFiberApp(middleware.NewActivationGuard(c))

	assert.True(t, logger.Contains("ERROR", "ACTIVATION INVALID"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "invalid", resp.Header.Get(cn.ActivationStatusHeader))

	var body pkg.ResponseError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, cn.ErrNoLocalActivation.Error(), body.Code)
}

func TestMiddlewareRejectsAfterRevocation(t *testing.T) {
	c, rs := activatedCoordinator(t)
	app := setupFiberApp(middleware.NewActivationGuard(c))

	require.NoError(t, rs.Mutate("CODE", func(rec *model.ActivationCode) { rec.Status = cn.StatusRevoked }))
	require.Error(t, c.VerifyWithRetry(context.Background()))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "invalid", resp.Header.Get(cn.ActivationStatusHeader))
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}

func TestMiddlewareAcceptsOfflineActivation(t *testing.T) {
	statusFile := filepath.Join(t.TempDir(), cn.DefaultStatusFileName)
	activatedCoordinatorAt(t, statusFile)

	unreachable := memory.New()
	unreachable.SetUnavailable(context.DeadlineExceeded)

	c, _ := newCoordinator(t, unreachable, statusFile)
	app := setupFiberApp(middleware.NewActivationGuard(c))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "offline", resp.Header.Get(cn.ActivationStatusHeader))
}

func TestNilGuardPassesThrough(t *testing.T) {
	var guard *middleware.ActivationGuard

	resp, err := setupFiberApp(guard).Test(httptest.NewRequest(http.MethodGet, "/test", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	called := false
	_, err = guard.UnaryServerInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{},
		func(context.Context, any) (any, error) {
			called = true
			return nil, nil
		})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestUnaryInterceptor(t *testing.T) {
	handler := func(context.Context, any) (any, error) { return "ok", nil }

	valid, _ := activatedCoordinator(t)

	res, err := middleware.NewActivationGuard(valid).UnaryServerInterceptor()(
		context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Call"}, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", res)

	invalid, _ := newCoordinator(t, memory.New(), "")

	_, err = middleware.NewActivationGuard(invalid).UnaryServerInterceptor()(
		context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Call"}, handler)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), cn.ErrNoLocalActivation.Error())
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f fakeStream) Context() context.Context { return f.ctx }

func TestStreamInterceptor(t *testing.T) {
	invalid, _ := newCoordinator(t, memory.New(), "")

	called := false
	err := middleware.NewActivationGuard(invalid).StreamServerInterceptor()(
		nil, fakeStream{ctx: context.Background()}, &grpc.StreamServerInfo{},
		func(any, grpc.ServerStream) error {
			called = true
			return nil
		})

	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	assert.False(t, called)

	valid, _ := activatedCoordinator(t)

	err = middleware.NewActivationGuard(valid).StreamServerInterceptor()(
		nil, fakeStream{ctx: context.Background()}, &grpc.StreamServerInfo{},
		func(any, grpc.ServerStream) error {
			called = true
			return nil
		})

	require.NoError(t, err)
	assert.True(t, called)
}
