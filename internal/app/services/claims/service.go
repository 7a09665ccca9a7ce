// Package claims implements the claim workflow: a receiver reserves an
// available donation and then drives the claim through its status changes.
package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/greenchain/greenchain/internal/app/domain/claim"
	"github.com/greenchain/greenchain/internal/app/domain/donation"
	"github.com/greenchain/greenchain/internal/app/services"
	"github.com/greenchain/greenchain/internal/app/storage"
	"github.com/greenchain/greenchain/pkg/logger"
)

// Service manages claims.
type Service struct {
	claims    storage.ClaimStore
	donations storage.DonationStore
	log       *logger.Logger
	now       func() time.Time
}

// New constructs a claim service.
func New(claims storage.ClaimStore, donations storage.DonationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("claims")
	}
	return &Service{claims: claims, donations: donations, log: log, now: time.Now}
}

// Claim reserves a donation for the receiver. The checks run in order so the
// caller gets the most specific rejection: unknown donation, not available,
// expired, already claimed by this receiver. The final flip is atomic in the
// store, so two racing receivers cannot both win.
func (s *Service) Claim(ctx context.Context, donationID, receiverID string) (claim.Claim, error) {
	if donationID == "" || receiverID == "" {
		return claim.Claim{}, services.InvalidInput("missing required fields")
	}

	d, err := s.donations.GetDonation(ctx, donationID)
	if err != nil {
		return claim.Claim{}, err
	}

	now := s.now()
	if donation.IsExpired(d, now) {
		// Persist the lapse so the row stops showing up as available.
		if _, err := s.donations.MarkDonationExpired(ctx, donationID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.log.WithError(err).WithField("donation_id", donationID).Warn("persist expiry failed")
		}
		return claim.Claim{}, donation.ErrExpired
	}
	if d.Status != donation.StatusAvailable {
		return claim.Claim{}, donation.ErrNotAvailable
	}

	if _, err := s.claims.GetActiveClaim(ctx, donationID, receiverID); err == nil {
		return claim.Claim{}, claim.ErrAlreadyClaimed
	} else if !errors.Is(err, storage.ErrNotFound) {
		return claim.Claim{}, fmt.Errorf("check existing claim: %w", err)
	}

	c, err := s.claims.ClaimDonation(ctx, donationID, receiverID, now)
	if err != nil {
		return claim.Claim{}, err
	}

	s.log.WithField("claim_id", c.ID).
		WithField("donation_id", donationID).
		WithField("receiver_id", receiverID).
		Info("donation claimed")
	return c, nil
}

// UpdateStatus moves the receiver's claim to the target status and persists
// the derived donation status in the same store transaction. Claims owned by
// other receivers surface as not found.
func (s *Service) UpdateStatus(ctx context.Context, claimID, receiverID string, target claim.Status) (claim.Claim, error) {
	if !target.Valid() {
		return claim.Claim{}, claim.ErrInvalidTransition
	}

	c, err := s.claims.GetClaim(ctx, claimID)
	if err != nil {
		return claim.Claim{}, err
	}
	if c.ReceiverID != receiverID {
		return claim.Claim{}, storage.ErrNotFound
	}

	donationStatus, err := claim.ApplyStatusChange(c.Status, target)
	if err != nil {
		return claim.Claim{}, err
	}

	updated, err := s.claims.UpdateClaimStatus(ctx, claimID, target, donationStatus)
	if err != nil {
		return claim.Claim{}, fmt.Errorf("update claim status: %w", err)
	}

	s.log.WithField("claim_id", claimID).
		WithField("status", string(target)).
		Info("claim status updated")
	return updated, nil
}

// View is a claim joined with a trimmed view of its donation.
type View struct {
	claim.Claim
	Donation *donation.Donation `json:"donation,omitempty"`
}

// ListMine returns the receiver's claims, newest first, with their
// donations attached.
func (s *Service) ListMine(ctx context.Context, receiverID string) ([]View, error) {
	rows, err := s.claims.ListClaimsByReceiver(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}

	result := make([]View, 0, len(rows))
	for _, c := range rows {
		v := View{Claim: c}
		if d, err := s.donations.GetDonation(ctx, c.DonationID); err == nil {
			v.Donation = &d
		}
		result = append(result, v)
	}
	return result, nil
}
