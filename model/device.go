package model

import "time"

// DeviceIdentity is the per-installation identifier. Persistent is false when
// the identifier could not be written to disk and only lives in memory.
type DeviceIdentity struct {
	ID         string
	Persistent bool
}

// DeviceInfo is a best-effort snapshot of the machine, recorded with each activation.
type DeviceInfo struct {
	SystemUsername string `json:"system_username"`
	Hostname       string `json:"hostname"`
	LocalIP        string `json:"local_ip"`
	OSPlatform     string `json:"os_platform"`
	OSVersion      string `json:"os_version"`
	OSRelease      string `json:"os_release"`
	Architecture   string `json:"architecture"`
	PublicIP       string `json:"public_ip"`
}

// DeviceActivationEntry is one element of ActivationCode.ActivatedDevices.
// The device snapshot is flattened next to the identifier on the wire.
type DeviceActivationEntry struct {
	GeneratedDeviceID   string    `json:"generated_device_id"`
	ActivationTimestamp time.Time `json:"activationTimestamp"`
	DeviceInfo
}

// NewDeviceActivationEntry builds the entry appended on activation.
func NewDeviceActivationEntry(deviceID string, info DeviceInfo, at time.Time) DeviceActivationEntry {
	return DeviceActivationEntry{
		GeneratedDeviceID:   deviceID,
		ActivationTimestamp: at.UTC(),
		DeviceInfo:          info,
	}
}

// Equal reports structural equality, the rule used by append-unique updates.
func (e DeviceActivationEntry) Equal(o DeviceActivationEntry) bool {
	return e.GeneratedDeviceID == o.GeneratedDeviceID &&
		e.ActivationTimestamp.Equal(o.ActivationTimestamp) &&
		e.DeviceInfo == o.DeviceInfo
}
