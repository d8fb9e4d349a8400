package pkg

import (
	"fmt"
	"strings"

	"github.com/LerianStudio/lib-activation-go/constant"
)

// EntityNotFoundError records an error indicating an entity was not found in any case that caused it.
// It represents a missing remote code as well as a missing local activation.
type EntityNotFoundError struct {
	EntityType string
	Title      string
	Message    string
	Code       string
	Err        error
}

// Error implements the error interface.
func (e EntityNotFoundError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		if strings.TrimSpace(e.EntityType) != "" {
			return fmt.Sprintf("Entity %s not found", e.EntityType)
		}

		if e.Err != nil {
			return e.Err.Error()
		}

		return "entity not found"
	}

	return e.Message
}

// Unwrap implements the error interface introduced in Go 1.13 to unwrap the internal error.
func (e EntityNotFoundError) Unwrap() error {
	return e.Err
}

// ValidationError records an error indicating the caller supplied unusable input.
type ValidationError struct {
	EntityType string `json:"entityType,omitempty"`
	Title      string
	Message    string
	Code       string
	Err        error `json:"err,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if strings.TrimSpace(e.Code) != "" {
		return fmt.Sprintf("%s - %s", e.Code, e.Message)
	}

	return e.Message
}

// Unwrap implements the error interface introduced in Go 1.13 to unwrap the internal error.
func (e ValidationError) Unwrap() error {
	return e.Err
}

// EntityConflictError records an error indicating the remote record cannot take another device.
type EntityConflictError struct {
	EntityType string
	Title      string
	Message    string
	Code       string
	Err        error
}

// Error implements the error interface.
func (e EntityConflictError) Error() string {
	if e.Err != nil && strings.TrimSpace(e.Message) == "" {
		return e.Err.Error()
	}

	return e.Message
}

// Unwrap implements the error interface introduced in Go 1.13 to unwrap the internal error.
func (e EntityConflictError) Unwrap() error {
	return e.Err
}

// UnauthorizedError indicates this device is no longer entitled to run.
type UnauthorizedError struct {
	EntityType string `json:"entityType,omitempty"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Code       string `json:"code,omitempty"`
	Err        error  `json:"err,omitempty"`
}

func (e UnauthorizedError) Error() string {
	return e.Message
}

// Unwrap implements the error interface introduced in Go 1.13 to unwrap the internal error.
func (e UnauthorizedError) Unwrap() error {
	return e.Err
}

// UnprocessableOperationError indicates an operation that couldn't be performed right now.
type UnprocessableOperationError struct {
	EntityType string
	Title      string
	Message    string
	Code       string
	Err        error
}

func (e UnprocessableOperationError) Error() string {
	return e.Message
}

// Unwrap implements the error interface introduced in Go 1.13 to unwrap the internal error.
func (e UnprocessableOperationError) Unwrap() error {
	return e.Err
}

// FailedPreconditionError indicates the record is in a state that forbids the operation.
type FailedPreconditionError struct {
	EntityType string `json:"entityType,omitempty"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Code       string `json:"code,omitempty"`
	Err        error  `json:"err,omitempty"`
}

func (e FailedPreconditionError) Error() string {
	return e.Message
}

// Unwrap implements the error interface introduced in Go 1.13 to unwrap the internal error.
func (e FailedPreconditionError) Unwrap() error {
	return e.Err
}

// ServiceUnavailableError indicates the record store could not be reached.
type ServiceUnavailableError struct {
	EntityType string `json:"entityType,omitempty"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Code       string `json:"code,omitempty"`
	Err        error  `json:"err,omitempty"`
}

func (e ServiceUnavailableError) Error() string {
	return e.Message
}

// Unwrap implements the error interface introduced in Go 1.13 to unwrap the internal error.
func (e ServiceUnavailableError) Unwrap() error {
	return e.Err
}

// InternalServerError indicates an unexpected failure.
type InternalServerError struct {
	EntityType string `json:"entityType,omitempty"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Code       string `json:"code,omitempty"`
	Err        error  `json:"err,omitempty"`
}

func (e InternalServerError) Error() string {
	return e.Message
}

// Unwrap implements the error interface introduced in Go 1.13 to unwrap the internal error.
func (e InternalServerError) Unwrap() error {
	return e.Err
}

// ResponseError is a struct used to return errors to the client.
type ResponseError struct {
	Code    string `json:"code,omitempty"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

// Error returns the message of the ResponseError.
func (r ResponseError) Error() string {
	return r.Message
}

// ValidationKnownFieldsError records an error that occurred during a validation of known fields.
type ValidationKnownFieldsError struct {
	EntityType string           `json:"entityType,omitempty"`
	Title      string           `json:"title,omitempty"`
	Code       string           `json:"code,omitempty"`
	Message    string           `json:"message,omitempty"`
	Fields     FieldValidations `json:"fields,omitempty"`
}

// Error returns the error message for a ValidationKnownFieldsError.
func (r ValidationKnownFieldsError) Error() string {
	return r.Message
}

// FieldValidations is a map of known fields and their validation errors.
type FieldValidations map[string]string

// ValidateInternalError validates the error and returns an appropriate InternalServerError.
//
// Parameters:
// - err: The error to be validated.
// - entityType: The type of the entity associated with the error.
//
// Returns:
// - An InternalServerError with the appropriate code, title, message.
func ValidateInternalError(err error, entityType string) error {
	return InternalServerError{
		EntityType: entityType,
		Code:       constant.ErrInternalServer.Error(),
		Title:      "Internal Server Error",
		Message:    "The activation engine encountered an unexpected error. Please try again later or contact support.",
		Err:        err,
	}
}

// ValidateBusinessError maps a sentinel from constant to the typed error carrying
// its code, title and message. Unknown errors are returned unchanged.
func ValidateBusinessError(err error, entityType string, args ...any) error {
	arg := ""
	if len(args) > 0 {
		arg = fmt.Sprint(args[0])
	}

	errorMap := map[error]error{
		constant.ErrNotInitialized: FailedPreconditionError{
			EntityType: entityType,
			Code:       constant.ErrNotInitialized.Error(),
			Title:      "Record store not initialized",
			Message:    "The remote record store is not configured. Only a cached activation can be verified.",
			Err:        err,
		},
		constant.ErrCodeNotFound: EntityNotFoundError{
			EntityType: entityType,
			Code:       constant.ErrCodeNotFound.Error(),
			Title:      "Activation code not found",
			Message:    fmt.Sprintf("The activation code '%s' does not exist. Please verify the code and try again.", arg),
			Err:        err,
		},
		constant.ErrEmptyCode: ValidationError{
			EntityType: entityType,
			Code:       constant.ErrEmptyCode.Error(),
			Title:      "Activation code is empty",
			Message:    "An activation code must be provided.",
			Err:        err,
		},
		constant.ErrEphemeralDevice: ValidationError{
			EntityType: entityType,
			Code:       constant.ErrEphemeralDevice.Error(),
			Title:      "Device identifier is not persistent",
			Message:    "The device identifier could not be saved to disk. Activation requires a persistent identifier.",
			Err:        err,
		},
		constant.ErrDeviceLimitReached: EntityConflictError{
			EntityType: entityType,
			Code:       constant.ErrDeviceLimitReached.Error(),
			Title:      "Device limit reached",
			Message:    fmt.Sprintf("The activation code '%s' is already in use on the maximum number of devices.", arg),
			Err:        err,
		},
		constant.ErrRaceAnomaly: EntityConflictError{
			EntityType: entityType,
			Code:       constant.ErrRaceAnomaly.Error(),
			Title:      "Device limit reached",
			Message:    fmt.Sprintf("The activation code '%s' is unused but its device list is already full.", arg),
			Err:        fmt.Errorf("%w: %w", constant.ErrRaceAnomaly, constant.ErrDeviceLimitReached),
		},
		constant.ErrCodeRevoked: FailedPreconditionError{
			EntityType: entityType,
			Code:       constant.ErrCodeRevoked.Error(),
			Title:      "Activation code revoked",
			Message:    fmt.Sprintf("The activation code '%s' has been revoked.", arg),
			Err:        err,
		},
		constant.ErrCodeExpired: FailedPreconditionError{
			EntityType: entityType,
			Code:       constant.ErrCodeExpired.Error(),
			Title:      "Activation code expired",
			Message:    fmt.Sprintf("The activation code '%s' has expired.", arg),
			Err:        err,
		},
		constant.ErrInvalidStatus: FailedPreconditionError{
			EntityType: entityType,
			Code:       constant.ErrInvalidStatus.Error(),
			Title:      "Status not valid for activation",
			Message:    fmt.Sprintf("The activation code '%s' is in a status that does not allow activation.", arg),
			Err:        err,
		},
		constant.ErrStatusNotActive: UnauthorizedError{
			EntityType: entityType,
			Code:       constant.ErrStatusNotActive.Error(),
			Title:      "Subscription not active",
			Message:    fmt.Sprintf("The subscription for code '%s' is not active.", arg),
			Err:        err,
		},
		constant.ErrDeviceNotAuthorized: UnauthorizedError{
			EntityType: entityType,
			Code:       constant.ErrDeviceNotAuthorized.Error(),
			Title:      "Device no longer authorized",
			Message:    fmt.Sprintf("This device was removed from activation code '%s'.", arg),
			Err:        err,
		},
		constant.ErrOnlineVerification: ServiceUnavailableError{
			EntityType: entityType,
			Code:       constant.ErrOnlineVerification.Error(),
			Title:      "Could not verify online",
			Message:    "The record store could not be reached to verify the activation.",
			Err:        err,
		},
		constant.ErrNoLocalActivation: EntityNotFoundError{
			EntityType: entityType,
			Code:       constant.ErrNoLocalActivation.Error(),
			Title:      "No valid local activation",
			Message:    "No usable activation was found on this device.",
			Err:        err,
		},
		constant.ErrTooManyAttempts: UnprocessableOperationError{
			EntityType: entityType,
			Code:       constant.ErrTooManyAttempts.Error(),
			Title:      "Too many activation attempts",
			Message:    "Too many activation attempts. Please wait before trying again.",
			Err:        err,
		},
		constant.ErrCodeDeleted: EntityNotFoundError{
			EntityType: entityType,
			Code:       constant.ErrCodeDeleted.Error(),
			Title:      "Activation code deleted",
			Message:    fmt.Sprintf("The activation code '%s' was deleted.", arg),
			Err:        err,
		},
		constant.ErrStoreUnavailable: ServiceUnavailableError{
			EntityType: entityType,
			Code:       constant.ErrStoreUnavailable.Error(),
			Title:      "Record store unavailable",
			Message:    fmt.Sprintf("The record store could not be reached while activating code '%s'. Please try again later.", arg),
			Err:        err,
		},
		constant.ErrActivationFailed: UnprocessableOperationError{
			EntityType: entityType,
			Code:       constant.ErrActivationFailed.Error(),
			Title:      "Activation failed",
			Message:    fmt.Sprintf("The activation of code '%s' could not be completed. Please try again.", arg),
			Err:        err,
		},
	}

	if mappedError, found := errorMap[err]; found {
		return mappedError
	}

	return err
}

// ErrorCode extracts the structured code carried by a typed error.
func ErrorCode(err error) string {
	switch e := err.(type) {
	case EntityNotFoundError:
		return e.Code
	case ValidationError:
		return e.Code
	case EntityConflictError:
		return e.Code
	case UnauthorizedError:
		return e.Code
	case UnprocessableOperationError:
		return e.Code
	case FailedPreconditionError:
		return e.Code
	case ServiceUnavailableError:
		return e.Code
	case InternalServerError:
		return e.Code
	default:
		return ""
	}
}
