package middleware

import (
	"time"

	cn "github.com/LerianStudio/lib-activation-go/constant"
	pkgHTTP "github.com/LerianStudio/lib-activation-go/pkg/net/http"
	"github.com/gofiber/fiber/v2"
)

// Middleware creates a Fiber middleware that rejects requests while the
// activation is not valid, and manages background refresh
func (g *ActivationGuard) Middleware() fiber.Handler {
	// Perform startup validation
	g.startupValidation()

	return func(ctx *fiber.Ctx) error {
		if g == nil || g.coordinator == nil {
			return ctx.Next()
		}

		v := g.coordinator.CurrentVerdict(ctx.UserContext())

		ctx.Set(cn.ActivationStatusHeader, statusHeader(v))

		if !v.Valid {
			g.coordinator.Logger().Errorf("Request rejected (code %s): %s", v.Code, v.Reason)
			return pkgHTTP.WithError(ctx, verdictError(v))
		}

		if v.ExpiresAt != nil {
			ctx.Set(cn.ActivationExpiresHeader, v.ExpiresAt.UTC().Format(time.RFC3339))
		}

		return ctx.Next()
	}
}
