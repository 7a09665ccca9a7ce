// Package donations manages donation listings: creation, querying with
// read-time expiry, updates, deletion and donor/receiver statistics.
package donations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/greenchain/greenchain/internal/app/domain/claim"
	"github.com/greenchain/greenchain/internal/app/domain/donation"
	"github.com/greenchain/greenchain/internal/app/domain/user"
	"github.com/greenchain/greenchain/internal/app/domain/verification"
	"github.com/greenchain/greenchain/internal/app/services"
	"github.com/greenchain/greenchain/internal/app/storage"
	"github.com/greenchain/greenchain/pkg/logger"
)

// ErrHasActiveClaims rejects deletion of a donation somebody has claimed.
var ErrHasActiveClaims = errors.New("donation has active claims")

// ExpiringSoonWindow bounds the receiver-facing "expiring soon" stat.
const ExpiringSoonWindow = 24 * time.Hour

const defaultPageSize = 50

// Service manages donation listings.
type Service struct {
	donations storage.DonationStore
	users     storage.UserStore
	claims    storage.ClaimStore
	events    storage.VerificationStore
	log       *logger.Logger
	now       func() time.Time
}

// New constructs a donation service.
func New(donations storage.DonationStore, users storage.UserStore, claims storage.ClaimStore, events storage.VerificationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("donations")
	}
	return &Service{
		donations: donations,
		users:     users,
		claims:    claims,
		events:    events,
		log:       log,
		now:       time.Now,
	}
}

// ClaimView is a claim with its receiver summary, embedded in donation views.
type ClaimView struct {
	claim.Claim
	Receiver *user.Summary `json:"receiver,omitempty"`
}

// View is a donation as served to clients: the stored row plus the
// read-time effective status, priority for available rows, the donor
// summary and, on detail views, the claims and verification events.
type View struct {
	donation.Donation
	Status   donation.Status      `json:"status"`
	Priority *donation.Priority   `json:"priority,omitempty"`
	Donor    *user.Summary        `json:"donor,omitempty"`
	Claims   []ClaimView          `json:"claims,omitempty"`
	Events   []verification.Event `json:"verificationEvents,omitempty"`
}

// CreateInput carries the fields a donor supplies for a new listing.
type CreateInput struct {
	Title    string
	Category string
	Quantity float64
	Unit     string
	Location string
	Expiry   time.Time
	Notes    string
	ImageURL string
}

// Create registers a new donation and schedules its pickup verification
// event.
func (s *Service) Create(ctx context.Context, donorID string, in CreateInput) (View, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	in.Unit = strings.TrimSpace(in.Unit)
	in.Location = strings.TrimSpace(in.Location)
	if donorID == "" || in.Title == "" || in.Category == "" || in.Unit == "" || in.Location == "" || in.Expiry.IsZero() {
		return View{}, services.InvalidInput("missing required fields")
	}
	if in.Quantity <= 0 {
		return View{}, services.InvalidInput("quantity must be positive")
	}
	now := s.now()
	if !in.Expiry.After(now) {
		return View{}, services.InvalidInput("expiry date must be in the future")
	}

	d, err := s.donations.CreateDonation(ctx, donation.Donation{
		DonorID:  donorID,
		Title:    in.Title,
		Category: in.Category,
		Quantity: in.Quantity,
		Unit:     in.Unit,
		Location: in.Location,
		Expiry:   in.Expiry.UTC(),
		Notes:    strings.TrimSpace(in.Notes),
		ImageURL: strings.TrimSpace(in.ImageURL),
		Status:   donation.StatusAvailable,
	})
	if err != nil {
		return View{}, fmt.Errorf("create donation: %w", err)
	}

	if _, err := s.events.CreateEvent(ctx, verification.Event{
		DonationID:   d.ID,
		Type:         verification.EventPickup,
		ScheduledFor: d.Expiry,
	}); err != nil {
		// The listing exists either way; surface the miss in the logs.
		s.log.WithError(err).WithField("donation_id", d.ID).Warn("create pickup verification event failed")
	}

	s.log.WithField("donation_id", d.ID).WithField("donor_id", donorID).Info("donation created")
	return s.view(ctx, d, false), nil
}

// Get returns a single donation with donor and claim details.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	d, err := s.donations.GetDonation(ctx, id)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, d, true), nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Status donation.Status
	Limit  int
	Offset int
}

// List returns donations newest first, expiry applied at read time.
func (s *Service) List(ctx context.Context, f ListFilter) ([]View, error) {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	filter := storage.DonationFilter{
		Status: f.Status,
		Limit:  f.Limit,
		Offset: f.Offset,
	}
	// A stale available row renders as expired, so it must not match an
	// available filter. It joins the expired listing once the sweeper
	// persists the lapse.
	if f.Status == donation.StatusAvailable {
		filter.ExpiresAfter = s.now()
	}
	rows, err := s.donations.ListDonations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	return s.views(ctx, rows, false), nil
}

// ListAvailable returns claimable donations, soonest expiry first, each
// enriched with its pickup priority.
func (s *Service) ListAvailable(ctx context.Context, limit, offset int) ([]View, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	rows, err := s.donations.ListDonations(ctx, storage.DonationFilter{
		Status:        donation.StatusAvailable,
		ExpiresAfter:  s.now(),
		OrderByExpiry: true,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list available donations: %w", err)
	}
	return s.views(ctx, rows, false), nil
}

// ListMine returns the donor's own listings, newest first, with claims.
func (s *Service) ListMine(ctx context.Context, donorID string) ([]View, error) {
	rows, err := s.donations.ListDonations(ctx, storage.DonationFilter{DonorID: donorID})
	if err != nil {
		return nil, fmt.Errorf("list donor donations: %w", err)
	}
	return s.views(ctx, rows, true), nil
}

// UpdateInput carries the mutable donation fields. Nil pointers leave the
// stored value untouched.
type UpdateInput struct {
	Title    *string
	Category *string
	Quantity *float64
	Unit     *string
	Location *string
	Expiry   *time.Time
	Notes    *string
	ImageURL *string
}

// Update applies a partial update to the donor's own donation. Unknown ids
// and foreign donations both surface as not found.
func (s *Service) Update(ctx context.Context, donorID, id string, in UpdateInput) (View, error) {
	d, err := s.donations.GetDonation(ctx, id)
	if err != nil {
		return View{}, err
	}
	if d.DonorID != donorID {
		return View{}, storage.ErrNotFound
	}

	if in.Title != nil {
		d.Title = strings.TrimSpace(*in.Title)
	}
	if in.Category != nil {
		d.Category = strings.TrimSpace(*in.Category)
	}
	if in.Quantity != nil {
		d.Quantity = *in.Quantity
	}
	if in.Unit != nil {
		d.Unit = strings.TrimSpace(*in.Unit)
	}
	if in.Location != nil {
		d.Location = strings.TrimSpace(*in.Location)
	}
	if in.Expiry != nil {
		d.Expiry = in.Expiry.UTC()
	}
	if in.Notes != nil {
		d.Notes = strings.TrimSpace(*in.Notes)
	}
	if in.ImageURL != nil {
		d.ImageURL = strings.TrimSpace(*in.ImageURL)
	}
	if d.Title == "" || d.Category == "" || d.Unit == "" || d.Location == "" {
		return View{}, services.InvalidInput("missing required fields")
	}
	if d.Quantity <= 0 {
		return View{}, services.InvalidInput("quantity must be positive")
	}

	updated, err := s.donations.UpdateDonation(ctx, d)
	if err != nil {
		return View{}, fmt.Errorf("update donation: %w", err)
	}
	return s.view(ctx, updated, true), nil
}

// Delete removes the donor's own donation. Donations with a live claim are
// kept so receivers never lose a pickup they arranged.
func (s *Service) Delete(ctx context.Context, donorID, id string) error {
	d, err := s.donations.GetDonation(ctx, id)
	if err != nil {
		return err
	}
	if d.DonorID != donorID {
		return storage.ErrNotFound
	}

	active, err := s.claims.CountActiveClaims(ctx, id)
	if err != nil {
		return fmt.Errorf("count claims: %w", err)
	}
	if active > 0 {
		return ErrHasActiveClaims
	}

	if err := s.donations.DeleteDonation(ctx, id); err != nil {
		return fmt.Errorf("delete donation: %w", err)
	}
	s.log.WithField("donation_id", id).Info("donation deleted")
	return nil
}

// DonorStats summarizes a donor's listings.
type DonorStats struct {
	Total    int                     `json:"total"`
	ByStatus map[donation.Status]int `json:"byStatus"`
}

// StatsForDonor aggregates the donor's donations by effective status.
func (s *Service) StatsForDonor(ctx context.Context, donorID string) (DonorStats, error) {
	rows, err := s.donations.ListDonations(ctx, storage.DonationFilter{DonorID: donorID})
	if err != nil {
		return DonorStats{}, fmt.Errorf("list donor donations: %w", err)
	}

	now := s.now()
	stats := DonorStats{ByStatus: make(map[donation.Status]int)}
	for _, d := range rows {
		stats.Total++
		stats.ByStatus[donation.EffectiveStatus(d, now)]++
	}
	return stats, nil
}

// ReceiverStats summarizes what a receiver can act on right now.
type ReceiverStats struct {
	Available    int `json:"available"`
	ExpiringSoon int `json:"expiringSoon"`
}

// StatsForReceiver counts claimable donations and how many of them expire
// within the next day.
func (s *Service) StatsForReceiver(ctx context.Context) (ReceiverStats, error) {
	now := s.now()
	rows, err := s.donations.ListDonations(ctx, storage.DonationFilter{
		Status:       donation.StatusAvailable,
		ExpiresAfter: now,
	})
	if err != nil {
		return ReceiverStats{}, fmt.Errorf("list available donations: %w", err)
	}

	stats := ReceiverStats{Available: len(rows)}
	cutoff := now.Add(ExpiringSoonWindow)
	for _, d := range rows {
		if !d.Expiry.After(cutoff) {
			stats.ExpiringSoon++
		}
	}
	return stats, nil
}

func (s *Service) views(ctx context.Context, rows []donation.Donation, withDetails bool) []View {
	result := make([]View, 0, len(rows))
	for _, d := range rows {
		result = append(result, s.view(ctx, d, withDetails))
	}
	return result
}

func (s *Service) view(ctx context.Context, d donation.Donation, withDetails bool) View {
	now := s.now()
	v := View{Donation: d, Status: donation.EffectiveStatus(d, now)}

	if v.Status == donation.StatusAvailable {
		p := donation.PriorityOf(d, now)
		v.Priority = &p
	}

	if donor, err := s.users.GetUser(ctx, d.DonorID); err == nil {
		summary := donor.Summarize()
		v.Donor = &summary
	}

	if withDetails {
		claims, err := s.claims.ListClaimsByDonation(ctx, d.ID)
		if err != nil {
			s.log.WithError(err).WithField("donation_id", d.ID).Warn("load claims for donation failed")
			return v
		}
		for _, c := range claims {
			cv := ClaimView{Claim: c}
			if receiver, err := s.users.GetUser(ctx, c.ReceiverID); err == nil {
				summary := receiver.Summarize()
				cv.Receiver = &summary
			}
			v.Claims = append(v.Claims, cv)
		}

		if events, err := s.events.ListEventsByDonation(ctx, d.ID); err == nil {
			v.Events = events
		}
	}
	return v
}
