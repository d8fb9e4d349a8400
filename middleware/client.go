// Package middleware gates fiber and gRPC servers on the local activation verdict.
package middleware

import (
	"context"
	"sync"

	"github.com/LerianStudio/lib-activation-go/activation"
	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-activation-go/pkg"
	"github.com/LerianStudio/lib-commons/commons/log"
)

// ActivationGuard wraps a coordinator with request gates
type ActivationGuard struct {
	coordinator *activation.Coordinator
	// initOnce ensures startup verification and background refresh happen only once
	// even when both HTTP middleware and gRPC interceptors are used
	initOnce sync.Once
}

// NewActivationGuard creates a guard over coordinator
func NewActivationGuard(coordinator *activation.Coordinator) *ActivationGuard {
	return &ActivationGuard{coordinator: coordinator}
}

// Coordinator returns the wrapped coordinator
func (g *ActivationGuard) Coordinator() *activation.Coordinator {
	if g == nil {
		return nil
	}

	return g.coordinator
}

// ShutdownBackgroundRefresh stops the background refresh process
func (g *ActivationGuard) ShutdownBackgroundRefresh() {
	if g != nil && g.coordinator != nil {
		g.coordinator.ShutdownBackgroundRefresh()
	}
}

// GetLogger returns the logger used by the guard
func (g *ActivationGuard) GetLogger() log.Logger {
	return g.coordinator.Logger()
}

// startupValidation performs common startup steps for both HTTP and gRPC.
// An invalid activation is logged; requests are rejected until it recovers.
func (g *ActivationGuard) startupValidation() {
	if g == nil || g.coordinator == nil {
		return
	}

	g.initOnce.Do(func() {
		l := g.coordinator.Logger()
		bgCtx := context.Background()

		if err := g.coordinator.VerifyWithRetry(bgCtx); err != nil {
			l.Errorf("ACTIVATION INVALID: startup verification failed (code %s): %v", pkg.ErrorCode(err), err)
		}

		g.logActivationStatus(g.coordinator.CurrentVerdict(bgCtx))

		g.coordinator.StartBackgroundRefresh(bgCtx)
	})
}

func (g *ActivationGuard) logActivationStatus(v model.Verdict) {
	l := g.coordinator.Logger()

	switch {
	case !v.Valid:
		l.Errorf("ACTIVATION INVALID: %s - application access will be denied", v.Reason)
	case v.Offline:
		l.Warnf("Activation for code %s verified offline, %s", v.ActivationCode, model.RemainingText(v.ExpiresAt, v.CheckedAt))
	default:
		l.Infof("Activation for code %s is valid, %s", v.ActivationCode, model.RemainingText(v.ExpiresAt, v.CheckedAt))
	}
}

// verdictError returns the typed error explaining an invalid verdict.
func verdictError(v model.Verdict) error {
	sentinel := cn.FromCode(v.Code)
	if sentinel == nil {
		sentinel = cn.ErrNoLocalActivation
	}

	return pkg.ValidateBusinessError(sentinel, "ActivationCode", v.ActivationCode)
}

// statusHeader summarizes a verdict for the status response header.
func statusHeader(v model.Verdict) string {
	switch {
	case !v.Valid:
		return "invalid"
	case v.Offline:
		return "offline"
	default:
		return "valid"
	}
}
