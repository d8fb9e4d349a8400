// Package activation binds an installation to a remote activation code and
// keeps the local verdict in step with the remote record.
package activation

import (
	"context"
	"errors"
	"time"

	cn "github.com/LerianStudio/lib-activation-go/constant"
	libErr "github.com/LerianStudio/lib-activation-go/error"
	"github.com/LerianStudio/lib-activation-go/internal/cache"
	"github.com/LerianStudio/lib-activation-go/internal/config"
	"github.com/LerianStudio/lib-activation-go/internal/identity"
	"github.com/LerianStudio/lib-activation-go/internal/lapse"
	"github.com/LerianStudio/lib-activation-go/internal/listener"
	"github.com/LerianStudio/lib-activation-go/internal/refresh"
	"github.com/LerianStudio/lib-activation-go/internal/telemetry"
	"github.com/LerianStudio/lib-activation-go/internal/validity"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-activation-go/pkg"
	"github.com/LerianStudio/lib-activation-go/store"
	"github.com/LerianStudio/lib-commons/commons/log"
	"github.com/LerianStudio/lib-commons/commons/zap"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const entityType = "ActivationCode"

// DeviceIdentity supplies the identifier and snapshot of this installation.
type DeviceIdentity interface {
	Resolve() model.DeviceIdentity
	CollectDeviceInfo(ctx context.Context) model.DeviceInfo
}

// Coordinator is the activation state machine. It is safe for concurrent use.
type Coordinator struct {
	config    config.ClientConfig
	store     store.RecordStore
	local     *cache.File
	verdicts  *cache.Manager
	clock     *validity.Clock
	identity  DeviceIdentity
	listeners *listener.Manager
	lapse     *lapse.Manager
	refresher *refresh.Manager
	metrics   *telemetry.Metrics
	limiter   *rate.Limiter
	verifying singleflight.Group
	logger    log.Logger

	meterProvider metric.MeterProvider
}

// Option customizes a Coordinator
type Option func(*Coordinator)

// WithClock replaces the wall clock
func WithClock(clock *validity.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithIdentity replaces the file-backed device identity
func WithIdentity(id DeviceIdentity) Option {
	return func(c *Coordinator) { c.identity = id }
}

// WithMeterProvider records metrics on provider instead of the global one
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *Coordinator) { c.meterProvider = provider }
}

// WithLapseHandler is invoked when a watched activation stops being valid
func WithLapseHandler(handler lapse.Handler) Option {
	return func(c *Coordinator) { c.lapse.SetHandler(handler) }
}

// New creates a Coordinator. rs may be nil: remote operations then fail with
// constant.ErrNotInitialized while cached activations still verify offline.
func New(cfg *config.ClientConfig, rs store.RecordStore, logger log.Logger, opts ...Option) (*Coordinator, error) {
	if logger == nil {
		logger = zap.InitializeLogger()
	}

	if cfg == nil {
		def := config.NewDefaultConfig()
		cfg = &def
	}

	if err := cfg.Validate(logger); err != nil {
		return nil, err
	}

	verdicts, err := cache.New(logger)
	if err != nil {
		logger.Errorf("Failed to initialize verdict cache: %s", err.Error())
		return nil, err
	}

	c := &Coordinator{
		config:   *cfg,
		store:    rs,
		local:    cache.NewFile(cfg.StatusFile, logger),
		verdicts: verdicts,
		lapse:    lapse.New(logger),
		logger:   logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.clock == nil {
		c.clock = validity.New(logger)
	}

	if c.identity == nil {
		c.identity = identity.NewResolver(cfg.DeviceIDFile, cfg.PublicIPEndpoints, logger)
	}

	c.metrics, err = telemetry.New(c.meterProvider)
	if err != nil {
		logger.Warnf("Metrics disabled: %v", err)
	}

	if _, ok := rs.(store.ConditionalUpdater); cfg.StrictDeviceLimit && rs != nil && !ok {
		logger.Warnf("Strict device limit requested but the record store has no conditional updates, device limit is enforced best-effort")
	}

	if cfg.AttemptsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.AttemptsPerMinute)), cfg.AttemptsPerMinute)
	}

	c.listeners = listener.New(rs, c.metrics, logger)
	c.refresher = refresh.New(c, cfg.RefreshInterval, logger)

	return c, nil
}

// Close stops listeners and background refresh and releases caches
func (c *Coordinator) Close() {
	c.refresher.Shutdown()
	c.listeners.StopAll()
	c.verdicts.Close()
}

// Logger returns the logger used by the coordinator
func (c *Coordinator) Logger() log.Logger {
	return c.logger
}

// DeviceID returns this installation's identifier
func (c *Coordinator) DeviceID() model.DeviceIdentity {
	return c.identity.Resolve()
}

// DeviceInfo collects this installation's device snapshot
func (c *Coordinator) DeviceInfo(ctx context.Context) model.DeviceInfo {
	return c.identity.CollectDeviceInfo(ctx)
}

// Initialized reports whether a record store is configured
func (c *Coordinator) Initialized() bool {
	return c.store != nil
}

var reasons = map[error]string{
	cn.ErrNotInitialized:      cn.ReasonNotInitialized,
	cn.ErrCodeNotFound:        cn.ReasonCodeNotFound,
	cn.ErrEmptyCode:           cn.ReasonEmptyCode,
	cn.ErrEphemeralDevice:     cn.ReasonEphemeralDevice,
	cn.ErrDeviceLimitReached:  cn.ReasonDeviceLimit,
	cn.ErrRaceAnomaly:         cn.ReasonDeviceLimit,
	cn.ErrCodeRevoked:         cn.ReasonRevoked,
	cn.ErrCodeExpired:         cn.ReasonExpired,
	cn.ErrStatusNotActive:     cn.ReasonNotActive,
	cn.ErrInvalidStatus:       cn.ReasonInvalidStatus,
	cn.ErrDeviceNotAuthorized: cn.ReasonDeviceRemoved,
	cn.ErrOnlineVerification:  cn.ReasonOnlineFailed,
	cn.ErrNoLocalActivation:   cn.ReasonNoLocalActivation,
	cn.ErrTooManyAttempts:     cn.ReasonTooManyAttempts,
	cn.ErrCodeDeleted:         cn.ReasonDeleted,
	cn.ErrActivationFailed:    cn.ReasonActivationFailed,
	cn.ErrStoreUnavailable:    cn.ReasonStoreUnavailable,
}

// failure builds the structured result and typed error for sentinel.
func failure(sentinel error, code string, rec *model.ActivationCode) (model.Result, error) {
	reason, ok := reasons[sentinel]
	if !ok {
		reason = sentinel.Error()
	}

	return model.Result{
		Success: false,
		Reason:  reason,
		Code:    sentinel.Error(),
		Record:  rec,
	}, pkg.ValidateBusinessError(sentinel, entityType, code)
}

// isUnreachable reports whether err means the store could not be contacted,
// as opposed to the store answering with a failure.
func isUnreachable(err error) bool {
	return errors.Is(err, store.ErrUnavailable) || libErr.IsConnectionError(err)
}

// localRecordFor builds the on-disk mirror of rec for deviceID.
func (c *Coordinator) localRecordFor(rec *model.ActivationCode, deviceID string, fallback model.DeviceInfo) model.LocalActivationRecord {
	activatedAt := c.clock.Now()
	info := fallback

	for _, d := range rec.ActivatedDevices {
		if d.GeneratedDeviceID == deviceID {
			activatedAt = d.ActivationTimestamp
			info = d.DeviceInfo

			break
		}
	}

	local := model.LocalActivationRecord{
		IsActivated:                true,
		ActivationCode:             rec.ID,
		ActivatedByDeviceID:        deviceID,
		ActivatedAtISO:             validity.FormatISO(activatedAt),
		DeviceInfoAtActivation:     info,
		ValidityDurationFromServer: rec.ValidityDuration,
		DeviceLimitFromServer:      rec.DeviceLimit,
	}

	if rec.ActualExpiresAt != nil {
		iso := validity.FormatISO(*rec.ActualExpiresAt)
		local.ActualExpiresAtISO = &iso
	}

	return local
}

// remember persists rec as the last known-good verdict for deviceID.
func (c *Coordinator) remember(rec *model.ActivationCode, deviceID string, info model.DeviceInfo) {
	if err := c.local.Save(c.localRecordFor(rec, deviceID, info)); err != nil {
		c.logger.Errorf("Failed to persist local activation for code %s: %v", rec.ID, err)
	}

	c.verdicts.Store(rec.ID, model.Verdict{
		Valid:          true,
		Reason:         cn.ReasonValid,
		ActivationCode: rec.ID,
		ExpiresAt:      rec.ActualExpiresAt,
		CheckedAt:      c.clock.Now(),
	})
}

// forget drops every local trace of code. The activation file is kept when
// it belongs to another code.
func (c *Coordinator) forget(code string) {
	if local, err := c.local.Load(); err == nil && local.ActivationCode != code {
		c.verdicts.Invalidate(code)
		return
	}

	if err := c.local.Clear(); err != nil {
		c.logger.Errorf("Failed to clear local activation for code %s: %v", code, err)
	}

	c.verdicts.Invalidate(code)
}
