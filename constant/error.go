package constant

import "errors"

// Structured error codes for activation results
var (
	ErrNotInitialized      = errors.New("ACT-0001")
	ErrCodeNotFound        = errors.New("ACT-0002")
	ErrEmptyCode           = errors.New("ACT-0003")
	ErrEphemeralDevice     = errors.New("ACT-0004")
	ErrDeviceLimitReached  = errors.New("ACT-0005")
	ErrRaceAnomaly         = errors.New("ACT-0006")
	ErrCodeRevoked         = errors.New("ACT-0007")
	ErrCodeExpired         = errors.New("ACT-0008")
	ErrStatusNotActive     = errors.New("ACT-0009")
	ErrInvalidStatus       = errors.New("ACT-0010")
	ErrDeviceNotAuthorized = errors.New("ACT-0011")
	ErrOnlineVerification  = errors.New("ACT-0012")
	ErrNoLocalActivation   = errors.New("ACT-0013")
	ErrTooManyAttempts     = errors.New("ACT-0014")
	ErrCodeDeleted         = errors.New("ACT-0015")
	ErrActivationFailed    = errors.New("ACT-0016")
	ErrInternalServer      = errors.New("ACT-0017")
	ErrStoreUnavailable    = errors.New("ACT-0018")
)

var byCode = func() map[string]error {
	m := make(map[string]error)
	for _, err := range []error{
		ErrNotInitialized, ErrCodeNotFound, ErrEmptyCode, ErrEphemeralDevice,
		ErrDeviceLimitReached, ErrRaceAnomaly, ErrCodeRevoked, ErrCodeExpired,
		ErrStatusNotActive, ErrInvalidStatus, ErrDeviceNotAuthorized, ErrOnlineVerification,
		ErrNoLocalActivation, ErrTooManyAttempts, ErrCodeDeleted, ErrActivationFailed,
		ErrInternalServer, ErrStoreUnavailable,
	} {
		m[err.Error()] = err
	}

	return m
}()

// FromCode returns the sentinel whose code is code, or nil.
func FromCode(code string) error {
	return byCode[code]
}
