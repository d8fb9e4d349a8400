package model

// LocalActivationRecord is the on-disk mirror of the last known-good verdict.
type LocalActivationRecord struct {
	IsActivated                bool             `json:"is_activated"`
	ActivationCode             string           `json:"activation_code"`
	ActivatedByDeviceID        string           `json:"activated_by_device_id"`
	ActivatedAtISO             string           `json:"activated_at_iso"`
	DeviceInfoAtActivation     DeviceInfo       `json:"device_info_at_activation"`
	ActualExpiresAtISO         *string          `json:"actualExpiresAt_iso"`
	ValidityDurationFromServer ValidityDuration `json:"validityDuration_from_server"`
	DeviceLimitFromServer      int              `json:"deviceLimit_from_server"`
}
