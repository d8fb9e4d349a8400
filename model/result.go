package model

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Result is returned by every coordinator operation. Reason is always set;
// Code carries the structured error code when Success is false.
type Result struct {
	Success bool            `json:"success"`
	Reason  string          `json:"reason"`
	Code    string          `json:"code,omitempty"`
	Offline bool            `json:"offline,omitempty"`
	Record  *ActivationCode `json:"record,omitempty"`

	// Local is set by local-only checks, including failed ones that can still
	// surface the cached code and device.
	Local *LocalActivationRecord `json:"local,omitempty"`
}

// Verdict is the cached outcome used by request guards.
type Verdict struct {
	Valid          bool       `json:"valid"`
	Reason         string     `json:"reason"`
	Code           string     `json:"code,omitempty"`
	ActivationCode string     `json:"activationCode,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	Offline        bool       `json:"offline,omitempty"`
	CheckedAt      time.Time  `json:"checkedAt"`
}

// Remaining renders the time left before expiry, e.g. "3 days left".
func (v Verdict) Remaining(now time.Time) string {
	return RemainingText(v.ExpiresAt, now)
}

// RemainingText renders the time between now and expiresAt for humans.
func RemainingText(expiresAt *time.Time, now time.Time) string {
	if expiresAt == nil {
		return "never expires"
	}

	if !now.Before(*expiresAt) {
		return "expired " + humanize.RelTime(*expiresAt, now, "ago", "from now")
	}

	return humanize.RelTime(now, *expiresAt, "left", "ago")
}

// Evaluation is the effective status of a pushed record for this device.
type Evaluation struct {
	Status    string     `json:"status"`
	Valid     bool       `json:"valid"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Remaining string     `json:"remaining,omitempty"`
}
