package http

import (
	"errors"

	"github.com/LerianStudio/lib-activation-go/pkg"
	commonsHttp "github.com/LerianStudio/lib-commons/commons/net/http"
	"github.com/gofiber/fiber/v2"
)

// WithError writes the HTTP response matching the typed error.
func WithError(c *fiber.Ctx, err error) error {
	switch e := err.(type) {
	case pkg.EntityNotFoundError:
		return commonsHttp.NotFound(c, e.Code, e.Title, e.Message)
	case pkg.EntityConflictError:
		return commonsHttp.Conflict(c, e.Code, e.Title, e.Message)
	case pkg.ValidationError:
		return commonsHttp.BadRequest(c, pkg.ValidationKnownFieldsError{
			Code:    e.Code,
			Title:   e.Title,
			Message: e.Message,
			Fields:  nil,
		})
	case pkg.UnprocessableOperationError:
		return commonsHttp.UnprocessableEntity(c, e.Code, e.Title, e.Message)
	case pkg.FailedPreconditionError:
		return commonsHttp.Forbidden(c, e.Code, e.Title, e.Message)
	case pkg.UnauthorizedError:
		return commonsHttp.Unauthorized(c, e.Code, e.Title, e.Message)
	case pkg.ServiceUnavailableError:
		return c.Status(fiber.StatusServiceUnavailable).JSON(pkg.ResponseError{
			Code:    e.Code,
			Title:   e.Title,
			Message: e.Message,
		})
	case pkg.ValidationKnownFieldsError:
		return commonsHttp.BadRequest(c, e)
	default:
		var iErr pkg.InternalServerError
		_ = errors.As(pkg.ValidateInternalError(err, ""), &iErr)

		return commonsHttp.InternalServerError(c, iErr.Code, iErr.Title, iErr.Message)
	}
}
