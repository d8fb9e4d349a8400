package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	cn "github.com/LerianStudio/lib-activation-go/constant"
)

// ValidityDuration describes how long an activation lasts once first used.
// A nil Value means the code never expires.
type ValidityDuration struct {
	Unit         string `json:"unit"`
	Value        *int   `json:"value"`
	ValueHours   *int   `json:"value_hours,omitempty"`
	ValueMinutes *int   `json:"value_minutes,omitempty"`
}

// UnmarshalJSON accepts the numeric fields as JSON numbers or numeric
// strings. Fractions are truncated toward zero.
func (v *ValidityDuration) UnmarshalJSON(data []byte) error {
	var raw struct {
		Unit         string          `json:"unit"`
		Value        json.RawMessage `json:"value"`
		ValueHours   json.RawMessage `json:"value_hours"`
		ValueMinutes json.RawMessage `json:"value_minutes"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := ValidityDuration{Unit: raw.Unit}

	for _, f := range []struct {
		name string
		raw  json.RawMessage
		dst  **int
	}{
		{"value", raw.Value, &out.Value},
		{"value_hours", raw.ValueHours, &out.ValueHours},
		{"value_minutes", raw.ValueMinutes, &out.ValueMinutes},
	} {
		n, err := looseInt(f.raw)
		if err != nil {
			return fmt.Errorf("validityDuration.%s: %w", f.name, err)
		}

		*f.dst = n
	}

	*v = out

	return nil
}

func looseInt(raw json.RawMessage) (*int, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, nil
	}

	s = strings.TrimSpace(strings.Trim(s, `"`))
	if s == "" {
		return nil, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%s is not a number", raw)
	}

	n := int(f)

	return &n, nil
}

// ActivationCode is the remote, authoritative record of a license code.
type ActivationCode struct {
	ID               string                  `json:"id"`
	Status           string                  `json:"status"`
	DeviceLimit      int                     `json:"deviceLimit"`
	ActivatedDevices []DeviceActivationEntry `json:"activatedDevices"`
	ValidityDuration ValidityDuration        `json:"validityDuration"`
	CreatedAt        *time.Time              `json:"createdAt,omitempty"`
	ActivatedAt      *time.Time              `json:"activatedAt,omitempty"`
	ActualExpiresAt  *time.Time              `json:"actualExpiresAt,omitempty"`
	LastUsedAt       *time.Time              `json:"lastUsedAt,omitempty"`
	RevokedAt        *time.Time              `json:"revokedAt,omitempty"`
}

// Normalize applies record defaults and converts every timestamp to UTC.
// Stores call it on every fetch and every push delivery.
func (a *ActivationCode) Normalize() *ActivationCode {
	if a == nil {
		return nil
	}

	a.Status = strings.ToUpper(strings.TrimSpace(a.Status))
	if a.Status == "" {
		a.Status = cn.StatusUnknown
	}

	if a.DeviceLimit <= 0 {
		a.DeviceLimit = cn.DefaultDeviceLimit
	}

	if a.ActivatedDevices == nil {
		a.ActivatedDevices = []DeviceActivationEntry{}
	}

	for i := range a.ActivatedDevices {
		a.ActivatedDevices[i].ActivationTimestamp = a.ActivatedDevices[i].ActivationTimestamp.UTC()
	}

	if strings.TrimSpace(a.ValidityDuration.Unit) == "" {
		a.ValidityDuration.Unit = cn.UnitNone
	}

	a.ValidityDuration.Unit = strings.ToLower(a.ValidityDuration.Unit)

	a.CreatedAt = utcPtr(a.CreatedAt)
	a.ActivatedAt = utcPtr(a.ActivatedAt)
	a.ActualExpiresAt = utcPtr(a.ActualExpiresAt)
	a.LastUsedAt = utcPtr(a.LastUsedAt)
	a.RevokedAt = utcPtr(a.RevokedAt)

	return a
}

// HasDevice reports whether deviceID appears in the activated devices.
func (a *ActivationCode) HasDevice(deviceID string) bool {
	for _, d := range a.ActivatedDevices {
		if d.GeneratedDeviceID == deviceID {
			return true
		}
	}

	return false
}

// IsFull reports whether no further device can be added.
func (a *ActivationCode) IsFull() bool {
	return len(a.ActivatedDevices) >= a.DeviceLimit
}

// IsExpiredAt reports whether the computed expiry lies at or before now.
// A record without expiry never expires.
func (a *ActivationCode) IsExpiredAt(now time.Time) bool {
	if a.ActualExpiresAt == nil {
		return false
	}

	return !now.Before(*a.ActualExpiresAt)
}

// IsTerminal reports whether the record can no longer be activated.
func (a *ActivationCode) IsTerminal() bool {
	return a.Status == cn.StatusRevoked || a.Status == cn.StatusExpired
}

// Clone returns a deep copy.
func (a *ActivationCode) Clone() *ActivationCode {
	if a == nil {
		return nil
	}

	c := *a
	c.ActivatedDevices = append([]DeviceActivationEntry(nil), a.ActivatedDevices...)
	c.ValidityDuration = a.ValidityDuration.clone()
	c.CreatedAt = copyTime(a.CreatedAt)
	c.ActivatedAt = copyTime(a.ActivatedAt)
	c.ActualExpiresAt = copyTime(a.ActualExpiresAt)
	c.LastUsedAt = copyTime(a.LastUsedAt)
	c.RevokedAt = copyTime(a.RevokedAt)

	return &c
}

func (v ValidityDuration) clone() ValidityDuration {
	return ValidityDuration{
		Unit:         v.Unit,
		Value:        copyInt(v.Value),
		ValueHours:   copyInt(v.ValueHours),
		ValueMinutes: copyInt(v.ValueMinutes),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	u := t.UTC()

	return &u
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	c := *t

	return &c
}

func copyInt(i *int) *int {
	if i == nil {
		return nil
	}

	c := *i

	return &c
}

// IntPtr is a convenience for building validity durations.
func IntPtr(i int) *int {
	return &i
}
