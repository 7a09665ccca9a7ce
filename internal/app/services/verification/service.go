// Package verification implements verification event lookup and the one-way
// verify operation.
package verification

import (
	"context"
	"strings"
	"time"

	"github.com/greenchain/greenchain/internal/app/domain/donation"
	domain "github.com/greenchain/greenchain/internal/app/domain/verification"
	"github.com/greenchain/greenchain/internal/app/services"
	"github.com/greenchain/greenchain/internal/app/storage"
	"github.com/greenchain/greenchain/pkg/logger"
)

// Service manages verification events.
type Service struct {
	events    storage.VerificationStore
	donations storage.DonationStore
	log       *logger.Logger
	now       func() time.Time
}

// New constructs a verification service.
func New(events storage.VerificationStore, donations storage.DonationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("verification")
	}
	return &Service{events: events, donations: donations, log: log, now: time.Now}
}

// View is an event joined with its donation.
type View struct {
	domain.Event
	Donation *donation.Donation `json:"donation,omitempty"`
}

// Get looks up an event by its verification code.
func (s *Service) Get(ctx context.Context, code string) (View, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return View{}, storage.ErrNotFound
	}

	e, err := s.events.GetEventByCode(ctx, code)
	if err != nil {
		return View{}, err
	}

	v := View{Event: e}
	if d, err := s.donations.GetDonation(ctx, e.DonationID); err == nil {
		v.Donation = &d
	}
	return v, nil
}

// Verify marks the event verified. The transition is one way; a second call
// on the same code returns domain.ErrAlreadyVerified. The returned event
// carries a mock transaction reference, a placeholder for a future on-chain
// anchor.
func (s *Service) Verify(ctx context.Context, code, dataHash, notes string) (domain.Event, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Event{}, services.InvalidInput("missing required fields")
	}

	e, err := s.events.VerifyEvent(ctx, code, s.now(), dataHash, domain.NewTxRef(), notes)
	if err != nil {
		return domain.Event{}, err
	}

	s.log.WithField("code", code).WithField("donation_id", e.DonationID).Info("event verified")
	return e, nil
}
