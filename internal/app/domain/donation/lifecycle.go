package donation

import (
	"errors"
	"math"
	"time"
)

// Sentinel rejections returned by lifecycle checks. Callers translate these
// to protocol-level errors; the functions here never perform I/O.
var (
	// ErrNotAvailable rejects a claim on a donation that is no longer available.
	ErrNotAvailable = errors.New("donation is no longer available")

	// ErrExpired rejects a claim on a donation whose expiry has passed.
	ErrExpired = errors.New("donation has expired")
)

// PriorityLevel classifies how urgently a donation should be picked up.
type PriorityLevel string

const (
	PriorityCritical PriorityLevel = "critical"
	PriorityHigh     PriorityLevel = "high"
	PriorityNormal   PriorityLevel = "normal"
)

// Priority is advisory metadata for receivers, derived from time-to-expiry.
// It is not a stored status.
type Priority struct {
	Level            PriorityLevel `json:"priority"`
	Hint             string        `json:"priorityHint"`
	HoursUntilExpiry int           `json:"hoursUntilExpiry"`
}

// IsExpired reports whether the donation should be treated as expired: it is
// still marked available but its expiry is not in the future. The boundary is
// exclusive on the available side, so expiry == now counts as expired.
func IsExpired(d Donation, now time.Time) bool {
	return d.Status == StatusAvailable && !now.Before(d.Expiry)
}

// CanClaim reports whether a claim attempt against the donation may proceed.
func CanClaim(d Donation, now time.Time) bool {
	return d.Status == StatusAvailable && !IsExpired(d, now)
}

// CheckClaimable returns the typed rejection for an unclaimable donation, or
// nil when a claim may proceed.
func CheckClaimable(d Donation, now time.Time) error {
	if d.Status != StatusAvailable {
		return ErrNotAvailable
	}
	if IsExpired(d, now) {
		return ErrExpired
	}
	return nil
}

// PriorityOf classifies pickup urgency. Hours remaining round up to whole
// hours and never go negative; 6h or less is critical, 24h or less is high,
// anything beyond is normal. Rounding up keeps the boundaries exact: a
// donation expiring in 6h01m already counts as 7 hours out.
func PriorityOf(d Donation, now time.Time) Priority {
	hours := int(math.Ceil(d.Expiry.Sub(now).Hours()))
	if hours < 0 {
		hours = 0
	}

	level := PriorityNormal
	hint := "Pickup can be scheduled normally."
	switch {
	case hours <= 6:
		level = PriorityCritical
		hint = "Expires soon, prioritize this pickup."
	case hours <= 24:
		level = PriorityHigh
		hint = "Pickup within the same day is recommended."
	}

	return Priority{Level: level, Hint: hint, HoursUntilExpiry: hours}
}

// EffectiveStatus resolves the status a reader should observe without
// mutating storage: a stale available row past its expiry reads as expired.
func EffectiveStatus(d Donation, now time.Time) Status {
	if IsExpired(d, now) {
		return StatusExpired
	}
	return d.Status
}
