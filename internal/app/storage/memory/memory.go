// Package memory provides an in-memory store implementation. It is safe for
// concurrent use and is primarily intended for tests and local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/greenchain/greenchain/internal/app/domain/claim"
	"github.com/greenchain/greenchain/internal/app/domain/donation"
	"github.com/greenchain/greenchain/internal/app/domain/user"
	"github.com/greenchain/greenchain/internal/app/domain/verification"
	"github.com/greenchain/greenchain/internal/app/storage"
)

// Store is the in-memory implementation of the storage interfaces. A single
// mutex serializes every mutation, which trivially provides the atomicity
// the claim path requires.
type Store struct {
	mu           sync.RWMutex
	users        map[string]user.User
	usersByEmail map[string]string
	donations    map[string]donation.Donation
	claims       map[string]claim.Claim
	events       map[string]verification.Event // keyed by code
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.DonationStore = (*Store)(nil)
var _ storage.ClaimStore = (*Store)(nil)
var _ storage.VerificationStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:        make(map[string]user.User),
		usersByEmail: make(map[string]string),
		donations:    make(map[string]donation.Donation),
		claims:       make(map[string]claim.Claim),
		events:       make(map[string]verification.Event),
	}
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(u.Email))
	if _, exists := s.usersByEmail[email]; exists {
		return user.User{}, storage.ErrConflict
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = email
	u.CreatedAt = time.Now().UTC()

	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return s.users[id], nil
}

// DonationStore implementation ------------------------------------------------

func (s *Store) CreateDonation(_ context.Context, d donation.Donation) (donation.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = donation.StatusAvailable
	}
	d.CreatedAt = time.Now().UTC()

	s.donations[d.ID] = d
	return d, nil
}

func (s *Store) UpdateDonation(_ context.Context, d donation.Donation) (donation.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.donations[d.ID]
	if !ok {
		return donation.Donation{}, storage.ErrNotFound
	}

	d.DonorID = original.DonorID
	d.CreatedAt = original.CreatedAt
	s.donations[d.ID] = d
	return d, nil
}

func (s *Store) GetDonation(_ context.Context, id string) (donation.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.donations[id]
	if !ok {
		return donation.Donation{}, storage.ErrNotFound
	}
	return d, nil
}

func (s *Store) ListDonations(_ context.Context, f storage.DonationFilter) ([]donation.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []donation.Donation
	for _, d := range s.donations {
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.DonorID != "" && d.DonorID != f.DonorID {
			continue
		}
		if !f.ExpiresAfter.IsZero() && !d.Expiry.After(f.ExpiresAfter) {
			continue
		}
		result = append(result, d)
	}

	if f.OrderByExpiry {
		sort.Slice(result, func(i, j int) bool { return result[i].Expiry.Before(result[j].Expiry) })
	} else {
		sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	}

	if f.Offset > 0 {
		if f.Offset >= len(result) {
			return nil, nil
		}
		result = result[f.Offset:]
	}
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (s *Store) DeleteDonation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.donations[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.donations, id)
	for claimID, c := range s.claims {
		if c.DonationID == id {
			delete(s.claims, claimID)
		}
	}
	for code, e := range s.events {
		if e.DonationID == id {
			delete(s.events, code)
		}
	}
	return nil
}

func (s *Store) MarkDonationExpired(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.donations[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if d.Status != donation.StatusAvailable {
		return false, nil
	}
	d.Status = donation.StatusExpired
	s.donations[id] = d
	return true, nil
}

func (s *Store) ExpireDonations(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, d := range s.donations {
		if d.Status == donation.StatusAvailable && !now.Before(d.Expiry) {
			d.Status = donation.StatusExpired
			s.donations[id] = d
			count++
		}
	}
	return count, nil
}

// ClaimStore implementation ---------------------------------------------------

func (s *Store) ClaimDonation(_ context.Context, donationID, receiverID string, now time.Time) (claim.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.donations[donationID]
	if !ok {
		return claim.Claim{}, storage.ErrNotFound
	}
	if d.Status != donation.StatusAvailable {
		return claim.Claim{}, donation.ErrNotAvailable
	}

	d.Status = donation.StatusClaimed
	s.donations[donationID] = d

	c := claim.Claim{
		ID:         uuid.NewString(),
		DonationID: donationID,
		ReceiverID: receiverID,
		Status:     claim.StatusPending,
		ClaimedAt:  now.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	s.claims[c.ID] = c
	return c, nil
}

func (s *Store) UpdateClaimStatus(_ context.Context, claimID string, status claim.Status, donationStatus donation.Status) (claim.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[claimID]
	if !ok {
		return claim.Claim{}, storage.ErrNotFound
	}
	d, ok := s.donations[c.DonationID]
	if !ok {
		return claim.Claim{}, storage.ErrNotFound
	}

	c.Status = status
	d.Status = donationStatus
	s.claims[claimID] = c
	s.donations[d.ID] = d
	return c, nil
}

func (s *Store) GetClaim(_ context.Context, id string) (claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.claims[id]
	if !ok {
		return claim.Claim{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) GetActiveClaim(_ context.Context, donationID, receiverID string) (claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.claims {
		if c.DonationID == donationID && c.ReceiverID == receiverID && c.Status != claim.StatusCancelled {
			return c, nil
		}
	}
	return claim.Claim{}, storage.ErrNotFound
}

func (s *Store) ListClaimsByReceiver(_ context.Context, receiverID string) ([]claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []claim.Claim
	for _, c := range s.claims {
		if c.ReceiverID == receiverID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) ListClaimsByDonation(_ context.Context, donationID string) ([]claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []claim.Claim
	for _, c := range s.claims {
		if c.DonationID == donationID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) CountActiveClaims(_ context.Context, donationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, c := range s.claims {
		if c.DonationID == donationID && c.Status != claim.StatusCancelled {
			count++
		}
	}
	return count, nil
}

// VerificationStore implementation --------------------------------------------

func (s *Store) CreateEvent(_ context.Context, e verification.Event) (verification.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Code == "" {
		e.Code = verification.NewCode()
	}
	if _, exists := s.events[e.Code]; exists {
		return verification.Event{}, storage.ErrConflict
	}
	e.CreatedAt = time.Now().UTC()

	s.events[e.Code] = e
	return e, nil
}

func (s *Store) GetEventByCode(_ context.Context, code string) (verification.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[code]
	if !ok {
		return verification.Event{}, storage.ErrNotFound
	}
	return e, nil
}

func (s *Store) ListEventsByDonation(_ context.Context, donationID string) ([]verification.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []verification.Event
	for _, e := range s.events {
		if e.DonationID == donationID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) VerifyEvent(_ context.Context, code string, verifiedAt time.Time, dataHash, txRef, notes string) (verification.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[code]
	if !ok {
		return verification.Event{}, storage.ErrNotFound
	}
	if e.VerifiedAt != nil {
		return verification.Event{}, verification.ErrAlreadyVerified
	}

	ts := verifiedAt.UTC()
	e.VerifiedAt = &ts
	e.DataHash = dataHash
	e.TxRef = txRef
	e.Notes = notes
	s.events[code] = e
	return e, nil
}
