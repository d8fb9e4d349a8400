package activation

import (
	"context"
	"errors"
	"time"

	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/internal/lapse"
	"github.com/LerianStudio/lib-activation-go/internal/listener"
	"github.com/LerianStudio/lib-activation-go/model"
)

// ErrDeleted is delivered to listeners when the watched record is removed.
var ErrDeleted = listener.ErrDeleted

// ChangeFunc receives raw change notifications, see Listen.
type ChangeFunc = listener.ChangeFunc

// WatchFunc receives the effective status of every change to a watched code.
type WatchFunc func(eval model.Evaluation, record *model.ActivationCode)

// Listen subscribes onChange to changes of code, replacing any previous
// subscription for it. Deliveries are sequential.
func (c *Coordinator) Listen(ctx context.Context, code string, onChange ChangeFunc) error {
	return c.listeners.Listen(ctx, code, onChange)
}

// Stop ends the subscription for code. It is idempotent.
func (c *Coordinator) Stop(code string) {
	c.listeners.Stop(code)
}

// Listening reports whether code has a live subscription.
func (c *Coordinator) Listening(code string) bool {
	return c.listeners.Active(code)
}

// Watch listens to code on behalf of this device. Valid deliveries refresh
// the local caches. When the activation lapses the local activation is
// cleared, the subscription stopped and the lapse handler notified before
// onChange runs.
func (c *Coordinator) Watch(ctx context.Context, code string, onChange WatchFunc) error {
	deviceID := c.identity.Resolve().ID

	return c.listeners.Listen(ctx, code, func(rec *model.ActivationCode, err error) {
		eval := c.Evaluate(rec, err, deviceID)

		switch {
		case eval.Valid:
			c.remember(rec, deviceID, model.DeviceInfo{})
		case lapsed(eval.Status):
			c.ClearLocal(code)
			c.lapse.Notify(code, eval)
		default:
			c.logger.Warnf("Watch on code %s reported %s: %s", code, eval.Status, eval.Reason)
		}

		if onChange != nil {
			onChange(eval, rec)
		}
	})
}

// SetLapseHandler replaces the handler notified when a watched activation lapses.
func (c *Coordinator) SetLapseHandler(handler lapse.Handler) {
	c.lapse.SetHandler(handler)
}

// ClearLocal forgets the local activation of code and stops watching it.
func (c *Coordinator) ClearLocal(code string) {
	c.listeners.Stop(code)
	c.forget(code)
}

// Evaluate computes the effective status of a change notification for deviceID.
func (c *Coordinator) Evaluate(rec *model.ActivationCode, err error, deviceID string) model.Evaluation {
	return evaluate(rec, err, deviceID, c.clock.Now())
}

func evaluate(rec *model.ActivationCode, err error, deviceID string, now time.Time) model.Evaluation {
	switch {
	case errors.Is(err, ErrDeleted):
		return model.Evaluation{Status: cn.StatusDeleted, Reason: cn.ReasonDeleted}
	case err != nil:
		return model.Evaluation{Status: cn.StatusUnknown, Reason: err.Error()}
	case rec == nil:
		return model.Evaluation{Status: cn.StatusUnknown, Reason: cn.ReasonCodeNotFound}
	}

	eval := model.Evaluation{
		Status:    rec.Status,
		ExpiresAt: rec.ActualExpiresAt,
		Remaining: model.RemainingText(rec.ActualExpiresAt, now),
	}

	switch {
	case rec.Status == cn.StatusRevoked:
		eval.Reason = cn.ReasonRevoked
	case rec.Status == cn.StatusExpired:
		eval.Reason = cn.ReasonExpired
	case rec.Status != cn.StatusActive:
		eval.Reason = cn.ReasonNotActive
	case rec.IsExpiredAt(now):
		eval.Status = cn.StatusExpired
		eval.Reason = cn.ReasonExpired
	case !rec.HasDevice(deviceID):
		eval.Status = cn.StatusDeviceRemoved
		eval.Reason = cn.ReasonDeviceRemoved
	default:
		eval.Valid = true
		eval.Reason = cn.ReasonValid
	}

	return eval
}

func lapsed(status string) bool {
	switch status {
	case cn.StatusRevoked, cn.StatusExpired, cn.StatusDeviceRemoved, cn.StatusDeleted:
		return true
	}

	return false
}
