// Package validity normalizes timestamps and computes activation expiry.
package validity

import (
	"fmt"
	"strings"
	"time"

	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-commons/commons/log"
	"github.com/LerianStudio/lib-commons/commons/zap"
)

// isoLayouts are accepted by ParseISO; zone-less layouts are read as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

// Clock supplies the current instant and expiry arithmetic.
type Clock struct {
	now    func() time.Time
	logger log.Logger
}

// New creates a clock backed by time.Now
func New(logger log.Logger) *Clock {
	return NewWithNow(time.Now, logger)
}

// NewWithNow creates a clock reading the current instant from now
func NewWithNow(now func() time.Time, logger log.Logger) *Clock {
	if logger == nil {
		logger = zap.InitializeLogger()
	}

	if now == nil {
		now = time.Now
	}

	return &Clock{now: now, logger: logger}
}

// Now returns the current instant in UTC
func (c *Clock) Now() time.Time {
	return c.now().UTC()
}

// Normalize converts t to UTC. Applying it twice yields the same instant.
func Normalize(t time.Time) time.Time {
	return t.UTC()
}

// FormatISO renders t as an RFC 3339 UTC string.
func FormatISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseISO parses an ISO 8601 timestamp. Input without a zone is assumed UTC.
func ParseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid ISO timestamp %q", s)
}

// CalculateExpiry returns the instant at which an activation made at
// activation lapses, or nil when it never does.
func (c *Clock) CalculateExpiry(activation time.Time, d model.ValidityDuration) *time.Time {
	if d.Value == nil {
		return nil
	}

	var span time.Duration

	switch strings.ToLower(strings.TrimSpace(d.Unit)) {
	case cn.UnitNone, "":
		return nil
	case cn.UnitDays:
		span = time.Duration(*d.Value)*24*time.Hour + optional(d.ValueHours)*time.Hour + optional(d.ValueMinutes)*time.Minute
	case cn.UnitHours:
		span = time.Duration(*d.Value)*time.Hour + optional(d.ValueMinutes)*time.Minute
	case cn.UnitMinutes:
		span = time.Duration(*d.Value) * time.Minute
	default:
		c.logger.Warnf("Unknown validity unit %q, treating activation as permanent", d.Unit)
		return nil
	}

	expiry := Normalize(activation).Add(span)

	return &expiry
}

func optional(v *int) time.Duration {
	if v == nil {
		return 0
	}

	return time.Duration(*v)
}
