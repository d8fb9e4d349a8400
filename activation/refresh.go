package activation

import (
	"context"
	"errors"
	"time"

	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/cenkalti/backoff/v5"
)

// VerifyWithRetry re-verifies the local activation, retrying with
// exponential backoff while the store cannot answer. Definitive negative
// verdicts are not retried; they clear the local activation and notify the
// lapse handler. Without a local activation there is nothing to do.
func (c *Coordinator) VerifyWithRetry(ctx context.Context) error {
	local, err := c.local.Load()
	if err != nil || local.ActivationCode == "" {
		c.logger.Debug("No local activation to re-verify")
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.RetryInterval

	res, err := backoff.Retry(ctx, func() (model.Result, error) {
		res, err := c.VerifyOnline(ctx, local.ActivationCode, local.ActivatedByDeviceID)
		if err != nil && !errors.Is(err, cn.ErrOnlineVerification) {
			return res, backoff.Permanent(err)
		}

		return res, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.config.RetryAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warnf("Re-verification of code %s failed, retrying in %s: %v", local.ActivationCode, next, err)
		}),
	)

	if res.Reason == "" {
		// Cancelled before any attempt produced a verdict.
		return err
	}

	verdict := c.verdictFrom(local.ActivationCode, res)
	c.verdicts.Store(local.ActivationCode, verdict)

	if err == nil {
		return nil
	}

	if status := statusFor(err); status != cn.StatusUnknown {
		c.lapse.Notify(local.ActivationCode, model.Evaluation{
			Status:    status,
			Reason:    res.Reason,
			ExpiresAt: verdict.ExpiresAt,
		})
	}

	return err
}

// StartBackgroundRefresh periodically re-verifies the local activation.
func (c *Coordinator) StartBackgroundRefresh(ctx context.Context) {
	c.refresher.Start(ctx)
}

// ShutdownBackgroundRefresh stops the periodic re-verification.
func (c *Coordinator) ShutdownBackgroundRefresh() {
	c.refresher.Shutdown()
}

func statusFor(err error) string {
	switch {
	case errors.Is(err, cn.ErrCodeRevoked):
		return cn.StatusRevoked
	case errors.Is(err, cn.ErrCodeExpired):
		return cn.StatusExpired
	case errors.Is(err, cn.ErrDeviceNotAuthorized):
		return cn.StatusDeviceRemoved
	case errors.Is(err, cn.ErrCodeNotFound):
		return cn.StatusDeleted
	default:
		return cn.StatusUnknown
	}
}
