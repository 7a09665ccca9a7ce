package donation

import (
	"testing"
	"time"
)

func available(expiry time.Time) Donation {
	return Donation{ID: "d1", Status: StatusAvailable, Expiry: expiry}
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if IsExpired(available(now.Add(time.Hour)), now) {
		t.Fatalf("future expiry should not be expired")
	}
	if !IsExpired(available(now), now) {
		t.Fatalf("expiry exactly now must count as expired")
	}
	if !IsExpired(available(now.Add(-time.Second)), now) {
		t.Fatalf("past expiry must count as expired")
	}
	// Only available donations participate in lazy expiry.
	d := available(now.Add(-time.Hour))
	d.Status = StatusClaimed
	if IsExpired(d, now) {
		t.Fatalf("claimed donation is never lazily expired")
	}
}

func TestCanClaim(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if !CanClaim(available(now.Add(time.Minute)), now) {
		t.Fatalf("available unexpired donation should be claimable")
	}
	if CanClaim(available(now), now) {
		t.Fatalf("donation expiring exactly now must not be claimable")
	}
	d := available(now.Add(time.Hour))
	d.Status = StatusCompleted
	if CanClaim(d, now) {
		t.Fatalf("completed donation must not be claimable")
	}
}

func TestCheckClaimable(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := CheckClaimable(available(now.Add(time.Hour)), now); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}

	d := available(now.Add(time.Hour))
	d.Status = StatusClaimed
	if err := CheckClaimable(d, now); err != ErrNotAvailable {
		t.Fatalf("expected ErrNotAvailable, got %v", err)
	}

	if err := CheckClaimable(available(now.Add(-time.Second)), now); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestPriorityBoundaries(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		until time.Duration
		level PriorityLevel
		hours int
	}{
		{"two hours", 2 * time.Hour, PriorityCritical, 2},
		{"exactly six hours", 6 * time.Hour, PriorityCritical, 6},
		{"just past six hours", 6*time.Hour + time.Minute, PriorityHigh, 7},
		{"exactly twenty-four hours", 24 * time.Hour, PriorityHigh, 24},
		{"just past twenty-four hours", 24*time.Hour + time.Minute, PriorityNormal, 25},
		{"already expired", -time.Second, PriorityCritical, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := PriorityOf(available(now.Add(tc.until)), now)
			if p.Level != tc.level {
				t.Fatalf("level = %s, want %s", p.Level, tc.level)
			}
			if p.HoursUntilExpiry != tc.hours {
				t.Fatalf("hours = %d, want %d", p.HoursUntilExpiry, tc.hours)
			}
			if p.Hint == "" {
				t.Fatalf("expected a hint")
			}
		})
	}
}

func TestPriorityIsPure(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := available(now.Add(5 * time.Hour))

	first := PriorityOf(d, now)
	second := PriorityOf(d, now)
	if first != second {
		t.Fatalf("same inputs must yield identical priority: %#v vs %#v", first, second)
	}
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if got := EffectiveStatus(available(now.Add(time.Hour)), now); got != StatusAvailable {
		t.Fatalf("expected available, got %s", got)
	}
	if got := EffectiveStatus(available(now.Add(-time.Hour)), now); got != StatusExpired {
		t.Fatalf("expected expired, got %s", got)
	}

	d := available(now.Add(-time.Hour))
	d.Status = StatusInTransit
	if got := EffectiveStatus(d, now); got != StatusInTransit {
		t.Fatalf("in_transit must not be rewritten, got %s", got)
	}
}
