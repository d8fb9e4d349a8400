package constant

// Status values of a remote activation code
const (
	StatusUnused  = "UNUSED"
	StatusActive  = "ACTIVE"
	StatusExpired = "EXPIRED"
	StatusRevoked = "REVOKED"
	StatusUnknown = "UNKNOWN"
)

// Effective statuses reported for push updates on top of the remote ones
const (
	StatusDeviceRemoved = "DEVICE_REMOVED"
	StatusDeleted       = "DELETED"
)

// Validity duration units
const (
	UnitNone    = "none"
	UnitDays    = "days"
	UnitHours   = "hours"
	UnitMinutes = "minutes"
)

// DefaultDeviceLimit applies when a record carries no limit
const DefaultDeviceLimit = 1

// Identity file constraints
const (
	// MinDeviceIDLength below which a stored identifier is regenerated
	MinDeviceIDLength = 10
	// EphemeralDeviceSuffix marks identifiers that could not be persisted
	EphemeralDeviceSuffix = "-inmemory"
)

// Reasons reported in results and listener callbacks
const (
	ReasonActivated         = "activated successfully"
	ReasonAlreadyActivated  = "already activated on this device"
	ReasonCodeNotFound      = "code not found"
	ReasonRevoked           = "code has been revoked"
	ReasonExpired           = "code has expired"
	ReasonDeviceLimit       = "device limit reached"
	ReasonInvalidStatus     = "status not valid for activation"
	ReasonNotActive         = "subscription status is not active"
	ReasonDeviceRemoved     = "device no longer authorized"
	ReasonOnlineFailed      = "could not verify online"
	ReasonNoLocalActivation = "no valid local activation"
	ReasonValid             = "subscription is valid"
	ReasonValidOffline      = "valid (offline)"
	ReasonDeleted           = "deleted"
	ReasonEmptyCode         = "activation code is empty"
	ReasonEphemeralDevice   = "device identifier could not be persisted"
	ReasonNotInitialized    = "record store is not initialized"
	ReasonTooManyAttempts   = "too many activation attempts"
	ReasonActivationFailed  = "activation could not be completed"
	ReasonStoreUnavailable  = "record store unreachable, try again later"
)
