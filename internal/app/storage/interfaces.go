// Package storage defines the persistence interfaces services depend on.
// Implementations live in the postgres and memory subpackages; services
// receive them explicitly so tests can substitute doubles.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/greenchain/greenchain/internal/app/domain/claim"
	"github.com/greenchain/greenchain/internal/app/domain/donation"
	"github.com/greenchain/greenchain/internal/app/domain/user"
	"github.com/greenchain/greenchain/internal/app/domain/verification"
)

// Sentinels shared by all store implementations for stable error mapping.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation (e.g. email taken).
	ErrConflict = errors.New("conflict")
)

// UserStore persists user accounts.
type UserStore interface {
	// CreateUser inserts a user. Returns ErrConflict when the email is taken.
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
}

// DonationFilter narrows donation listings. Zero values mean "no constraint".
type DonationFilter struct {
	Status        donation.Status
	DonorID       string
	ExpiresAfter  time.Time
	OrderByExpiry bool // soonest first; default is newest created first
	Limit         int
	Offset        int
}

// DonationStore persists donation listings.
type DonationStore interface {
	CreateDonation(ctx context.Context, d donation.Donation) (donation.Donation, error)
	UpdateDonation(ctx context.Context, d donation.Donation) (donation.Donation, error)
	GetDonation(ctx context.Context, id string) (donation.Donation, error)
	ListDonations(ctx context.Context, f DonationFilter) ([]donation.Donation, error)
	DeleteDonation(ctx context.Context, id string) error

	// MarkDonationExpired conditionally flips an available donation to
	// expired. Returns false when the donation was not available anymore.
	MarkDonationExpired(ctx context.Context, id string) (bool, error)

	// ExpireDonations persists the expired status for every available
	// donation whose expiry is not after now. Returns the number of rows
	// updated. Used by the periodic sweeper.
	ExpireDonations(ctx context.Context, now time.Time) (int64, error)
}

// ClaimStore persists claims. ClaimDonation and UpdateClaimStatus mutate the
// claim and its donation as one atomic unit; they are the only operations
// allowed to touch both.
type ClaimStore interface {
	// ClaimDonation atomically flips the donation from available to claimed
	// and inserts a pending claim for the receiver. Exactly one of N
	// concurrent calls on the same donation succeeds; the rest observe
	// donation.ErrNotAvailable.
	ClaimDonation(ctx context.Context, donationID, receiverID string, now time.Time) (claim.Claim, error)

	// UpdateClaimStatus persists the claim status and the derived donation
	// status together.
	UpdateClaimStatus(ctx context.Context, claimID string, status claim.Status, donationStatus donation.Status) (claim.Claim, error)

	GetClaim(ctx context.Context, id string) (claim.Claim, error)

	// GetActiveClaim returns the non-cancelled claim for the pair, or
	// ErrNotFound when none exists.
	GetActiveClaim(ctx context.Context, donationID, receiverID string) (claim.Claim, error)

	ListClaimsByReceiver(ctx context.Context, receiverID string) ([]claim.Claim, error)
	ListClaimsByDonation(ctx context.Context, donationID string) ([]claim.Claim, error)

	// CountActiveClaims returns the number of non-cancelled claims on the
	// donation. Guards donation deletion.
	CountActiveClaims(ctx context.Context, donationID string) (int, error)
}

// VerificationStore persists verification events.
type VerificationStore interface {
	CreateEvent(ctx context.Context, e verification.Event) (verification.Event, error)
	GetEventByCode(ctx context.Context, code string) (verification.Event, error)
	ListEventsByDonation(ctx context.Context, donationID string) ([]verification.Event, error)

	// VerifyEvent performs the one-way transition: it sets verified_at and
	// the supplied fields only when the event is still unverified. Returns
	// verification.ErrAlreadyVerified otherwise, ErrNotFound for unknown
	// codes. Once set, verified_at is never overwritten.
	VerifyEvent(ctx context.Context, code string, verifiedAt time.Time, dataHash, txRef, notes string) (verification.Event, error)
}
