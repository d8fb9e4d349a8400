package activation

import (
	"context"
	"errors"
	"time"

	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/internal/validity"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-activation-go/store"
)

// VerifyOnline re-checks a cached activation against the record store.
// When the store is not configured or cannot be reached, the verdict falls
// back to the local cache. Concurrent calls for the same code and device
// share one round trip, which is not cancelled by any single caller; a
// caller whose ctx ends first gets the local verdict instead.
func (c *Coordinator) VerifyOnline(ctx context.Context, code, deviceID string) (model.Result, error) {
	shared := context.WithoutCancel(ctx)

	ch := c.verifying.DoChan(code+"\x00"+deviceID, func() (any, error) {
		return c.verifyOnline(shared, code, deviceID)
	})

	var (
		res model.Result
		err error
	)

	select {
	case r := <-ch:
		res, _ = r.Val.(model.Result)
		err = r.Err
	case <-ctx.Done():
		c.logger.Warnf("Online verification of code %s abandoned: %v", code, ctx.Err())
		res, err = c.verifyOffline(code, deviceID, cn.ErrOnlineVerification)
	}

	c.metrics.RecordVerification(ctx, "online", res.Success, res.Offline)

	return res, err
}

func (c *Coordinator) verifyOnline(ctx context.Context, code, deviceID string) (model.Result, error) {
	if c.store == nil {
		c.logger.Warnf("Record store not initialized, verifying code %s offline", code)
		return c.verifyOffline(code, deviceID, cn.ErrNotInitialized)
	}

	rec, err := c.store.Get(ctx, code)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.forget(code)
			return failure(cn.ErrCodeNotFound, code, nil)
		case isUnreachable(err):
			c.logger.Warnf("Record store unreachable, verifying code %s offline: %v", code, err)
			return c.verifyOffline(code, deviceID, cn.ErrOnlineVerification)
		}

		c.logger.Errorf("Online verification of code %s failed: %v", code, err)

		return failure(cn.ErrOnlineVerification, code, nil)
	}

	if sentinel := onlineBlocker(rec, deviceID, c.clock.Now()); sentinel != nil {
		c.logger.Warnf("Code %s is no longer valid for device %s: %s", code, deviceID, reasons[sentinel])
		c.forget(code)

		return failure(sentinel, code, rec)
	}

	c.remember(rec, deviceID, model.DeviceInfo{})

	return model.Result{Success: true, Reason: cn.ReasonValid, Record: rec}, nil
}

// onlineBlocker returns the sentinel explaining why rec does not authorize deviceID at now.
func onlineBlocker(rec *model.ActivationCode, deviceID string, now time.Time) error {
	switch {
	case rec.Status == cn.StatusRevoked:
		return cn.ErrCodeRevoked
	case rec.Status == cn.StatusExpired:
		return cn.ErrCodeExpired
	case rec.Status != cn.StatusActive:
		return cn.ErrStatusNotActive
	case rec.IsExpiredAt(now):
		return cn.ErrCodeExpired
	case !rec.HasDevice(deviceID):
		return cn.ErrDeviceNotAuthorized
	}

	return nil
}

// verifyOffline accepts the cached activation when it belongs to code and
// deviceID and has not expired. cause is reported when it does not.
func (c *Coordinator) verifyOffline(code, deviceID string, cause error) (model.Result, error) {
	local, err := c.CheckLocal()
	if err == nil && local.Local.ActivationCode == code && local.Local.ActivatedByDeviceID == deviceID {
		return model.Result{Success: true, Reason: cn.ReasonValidOffline, Offline: true, Local: local.Local}, nil
	}

	res, ferr := failure(cause, code, nil)
	res.Offline = true
	res.Local = local.Local

	return res, ferr
}

// CheckLocal verifies the cached activation without contacting the store.
// An expired activation is reported invalid but still carries the cached
// code and device.
func (c *Coordinator) CheckLocal() (model.Result, error) {
	local, err := c.local.Load()
	if err != nil {
		c.logger.Debugf("No usable local activation: %v", err)
		return failure(cn.ErrNoLocalActivation, "", nil)
	}

	if !local.IsActivated || local.ActivationCode == "" || local.ActivatedByDeviceID == "" {
		return failure(cn.ErrNoLocalActivation, local.ActivationCode, nil)
	}

	if local.ActualExpiresAtISO != nil {
		expiresAt, err := validity.ParseISO(*local.ActualExpiresAtISO)
		if err != nil {
			c.logger.Warnf("Local activation has an unreadable expiry: %v", err)
			return failure(cn.ErrNoLocalActivation, local.ActivationCode, nil)
		}

		if !c.clock.Now().Before(expiresAt) {
			res, ferr := failure(cn.ErrCodeExpired, local.ActivationCode, nil)
			res.Local = &local

			return res, ferr
		}
	}

	return model.Result{Success: true, Reason: cn.ReasonValid, Local: &local}, nil
}

// CurrentVerdict returns the cached verdict for the local activation,
// verifying online on a cache miss.
func (c *Coordinator) CurrentVerdict(ctx context.Context) model.Verdict {
	local, err := c.local.Load()
	if err != nil || local.ActivationCode == "" {
		return model.Verdict{
			Valid:     false,
			Reason:    cn.ReasonNoLocalActivation,
			Code:      cn.ErrNoLocalActivation.Error(),
			CheckedAt: c.clock.Now(),
		}
	}

	if v, found := c.verdicts.Get(local.ActivationCode); found {
		return v
	}

	res, _ := c.VerifyOnline(ctx, local.ActivationCode, local.ActivatedByDeviceID)
	verdict := c.verdictFrom(local.ActivationCode, res)
	c.verdicts.Store(local.ActivationCode, verdict)

	return verdict
}

func (c *Coordinator) verdictFrom(code string, res model.Result) model.Verdict {
	v := model.Verdict{
		Valid:          res.Success,
		Reason:         res.Reason,
		Code:           res.Code,
		ActivationCode: code,
		Offline:        res.Offline,
		CheckedAt:      c.clock.Now(),
	}

	switch {
	case res.Record != nil:
		v.ExpiresAt = res.Record.ActualExpiresAt
	case res.Local != nil && res.Local.ActualExpiresAtISO != nil:
		if t, err := validity.ParseISO(*res.Local.ActualExpiresAtISO); err == nil {
			v.ExpiresAt = &t
		}
	}

	return v
}
