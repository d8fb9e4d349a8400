package activation

import (
	"context"
	"errors"
	"strings"

	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-activation-go/store"
)

// maxConditionalAttempts bounds re-reads when a strict update loses a race.
const maxConditionalAttempts = 3

// errAlreadyListed aborts a conditional update whose device was added concurrently.
var errAlreadyListed = errors.New("device already listed")

// Activate binds this installation to code.
func (c *Coordinator) Activate(ctx context.Context, code string) (model.Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return c.recordActivation(ctx, code)(failure(cn.ErrEmptyCode, code, nil))
	}

	id := c.identity.Resolve()
	if !id.Persistent {
		return c.recordActivation(ctx, code)(failure(cn.ErrEphemeralDevice, code, nil))
	}

	return c.ActivateDevice(ctx, code, id, c.identity.CollectDeviceInfo(ctx))
}

// ActivateDevice binds the given device to code. Repeating it for a device
// already listed succeeds without changing the remote record.
func (c *Coordinator) ActivateDevice(ctx context.Context, code string, device model.DeviceIdentity, info model.DeviceInfo) (model.Result, error) {
	record := c.recordActivation(ctx, code)

	code = strings.TrimSpace(code)
	if code == "" {
		return record(failure(cn.ErrEmptyCode, code, nil))
	}

	if !device.Persistent || strings.TrimSpace(device.ID) == "" {
		c.logger.Errorf("Refusing to activate code %s with non-persistent device %s", code, device.ID)
		return record(failure(cn.ErrEphemeralDevice, code, nil))
	}

	if c.limiter != nil && !c.limiter.Allow() {
		c.logger.Warnf("Activation of code %s throttled", code)
		return record(failure(cn.ErrTooManyAttempts, code, nil))
	}

	if c.store == nil {
		return record(failure(cn.ErrNotInitialized, code, nil))
	}

	for attempt := 1; ; attempt++ {
		res, retry, err := c.activateOnce(ctx, code, device.ID, info)
		if !retry || attempt >= maxConditionalAttempts {
			return record(res, err)
		}

		c.logger.Warnf("Code %s changed during activation, retrying (%d/%d)", code, attempt, maxConditionalAttempts)
	}
}

func (c *Coordinator) recordActivation(ctx context.Context, code string) func(model.Result, error) (model.Result, error) {
	return func(res model.Result, err error) (model.Result, error) {
		c.metrics.RecordActivation(ctx, res.Success, code)

		if res.Success {
			c.logger.Infof("Activation of code %s succeeded: %s", code, res.Reason)
		} else {
			c.logger.Warnf("Activation of code %s failed: %s", code, res.Reason)
		}

		return res, err
	}
}

func (c *Coordinator) activateOnce(ctx context.Context, code, deviceID string, info model.DeviceInfo) (model.Result, bool, error) {
	rec, err := c.store.Get(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return final(failure(cn.ErrCodeNotFound, code, nil))
		}

		c.logger.Errorf("Failed to fetch code %s: %v", code, err)

		return final(failure(storeFailure(err), code, nil))
	}

	if blocker := activationBlocker(rec, deviceID); blocker != nil {
		if errors.Is(blocker, errAlreadyListed) {
			c.remember(rec, deviceID, info)
			return model.Result{Success: true, Reason: cn.ReasonAlreadyActivated, Record: rec}, false, nil
		}

		return final(failure(blocker, code, rec))
	}

	now := c.clock.Now()
	patch := store.Patch{
		LastUsedAt:    &now,
		AppendDevices: []model.DeviceActivationEntry{model.NewDeviceActivationEntry(deviceID, info, now)},
	}

	if rec.Status == cn.StatusUnused {
		active := cn.StatusActive
		patch.Status = &active
		patch.ActivatedAt = &now
		patch.ActualExpiresAt = c.clock.CalculateExpiry(now, rec.ValidityDuration)
	}

	if err := c.submit(ctx, code, rec.Status, deviceID, patch); err != nil {
		switch {
		case errors.Is(err, store.ErrPreconditionFailed):
			res, ferr := failure(cn.ErrActivationFailed, code, rec)
			return res, true, ferr
		case errors.Is(err, errAlreadyListed):
			return c.activateOnce(ctx, code, deviceID, info)
		case isSentinel(err):
			return final(failure(err, code, rec))
		}

		c.logger.Errorf("Failed to update code %s: %v", code, err)

		return final(failure(storeFailure(err), code, rec))
	}

	fresh, err := c.store.Get(ctx, code)
	if err != nil {
		c.logger.Warnf("Activated code %s but could not re-fetch it: %v", code, err)

		fresh = rec.Clone()
		patch.Apply(fresh)
	}

	c.remember(fresh, deviceID, info)

	return model.Result{Success: true, Reason: cn.ReasonActivated, Record: fresh}, false, nil
}

// storeFailure tells an unreachable store apart from one that answered with
// an error, so callers know when a retry may help.
func storeFailure(err error) error {
	if isUnreachable(err) {
		return cn.ErrStoreUnavailable
	}

	return cn.ErrActivationFailed
}

// final marks a result as not worth retrying.
func final(res model.Result, err error) (model.Result, bool, error) {
	return res, false, err
}

// activationBlocker returns the sentinel that prevents deviceID from being
// added to rec, errAlreadyListed for an idempotent repeat, or nil.
func activationBlocker(rec *model.ActivationCode, deviceID string) error {
	switch rec.Status {
	case cn.StatusRevoked:
		return cn.ErrCodeRevoked
	case cn.StatusExpired:
		return cn.ErrCodeExpired
	}

	if rec.HasDevice(deviceID) {
		return errAlreadyListed
	}

	if rec.IsFull() {
		if rec.Status == cn.StatusUnused {
			return cn.ErrRaceAnomaly
		}

		return cn.ErrDeviceLimitReached
	}

	if rec.Status != cn.StatusUnused && rec.Status != cn.StatusActive {
		return cn.ErrInvalidStatus
	}

	return nil
}

// submit writes patch. With a strict device limit and a store able to do so,
// the write only lands if the record still admits the device in the status
// the patch was computed from.
func (c *Coordinator) submit(ctx context.Context, code, observedStatus, deviceID string, patch store.Patch) error {
	conditional, ok := c.store.(store.ConditionalUpdater)
	if !c.config.StrictDeviceLimit || !ok {
		return c.store.Update(ctx, code, patch)
	}

	return conditional.UpdateIf(ctx, code, patch, func(current *model.ActivationCode) error {
		if err := activationBlocker(current, deviceID); err != nil {
			return err
		}

		if current.Status != observedStatus {
			return store.ErrPreconditionFailed
		}

		return nil
	})
}

func isSentinel(err error) bool {
	_, ok := reasons[err]
	return ok
}
