// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/greenchain/greenchain/internal/app/domain/claim"
	"github.com/greenchain/greenchain/internal/app/domain/donation"
	"github.com/greenchain/greenchain/internal/app/domain/user"
	"github.com/greenchain/greenchain/internal/app/domain/verification"
	"github.com/greenchain/greenchain/internal/app/storage"
)

const uniqueViolation = "23505"

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.DonationStore = (*Store)(nil)
var _ storage.ClaimStore = (*Store)(nil)
var _ storage.VerificationStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return storage.ErrConflict
	}
	return err
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, created_at)
		VALUES ($1, lower($2), $3, $4, $5, $6)
	`, u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.CreatedAt)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, role, created_at
		FROM users
		WHERE id = $1
	`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, role, created_at
		FROM users
		WHERE email = lower($1)
	`, email))
}

func (s *Store) scanUser(row *sql.Row) (user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.CreatedAt); err != nil {
		return user.User{}, mapError(err)
	}
	return u, nil
}

// --- DonationStore ----------------------------------------------------------

const donationColumns = `id, donor_id, title, category, quantity, unit, location, expiry_date, notes, image_url, status, created_at`

func (s *Store) CreateDonation(ctx context.Context, d donation.Donation) (donation.Donation, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = donation.StatusAvailable
	}
	d.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO donations (id, donor_id, title, category, quantity, unit, location, expiry_date, notes, image_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, d.ID, d.DonorID, d.Title, d.Category, d.Quantity, d.Unit, d.Location, d.Expiry.UTC(), d.Notes, d.ImageURL, d.Status, d.CreatedAt)
	if err != nil {
		return donation.Donation{}, mapError(err)
	}
	return d, nil
}

func (s *Store) UpdateDonation(ctx context.Context, d donation.Donation) (donation.Donation, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE donations
		SET title = $2, category = $3, quantity = $4, unit = $5, location = $6,
		    expiry_date = $7, notes = $8, image_url = $9, status = $10
		WHERE id = $1
	`, d.ID, d.Title, d.Category, d.Quantity, d.Unit, d.Location, d.Expiry.UTC(), d.Notes, d.ImageURL, d.Status)
	if err != nil {
		return donation.Donation{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return donation.Donation{}, storage.ErrNotFound
	}
	return s.GetDonation(ctx, d.ID)
}

func (s *Store) GetDonation(ctx context.Context, id string) (donation.Donation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+donationColumns+`
		FROM donations
		WHERE id = $1
	`, id)

	d, err := scanDonation(row)
	if err != nil {
		return donation.Donation{}, err
	}
	return d, nil
}

func (s *Store) ListDonations(ctx context.Context, f storage.DonationFilter) ([]donation.Donation, error) {
	order := "created_at DESC"
	if f.OrderByExpiry {
		order = "expiry_date ASC"
	}
	// LIMIT NULL means no limit in postgres.
	limit := sql.NullInt64{}
	if f.Limit > 0 {
		limit = sql.NullInt64{Int64: int64(f.Limit), Valid: true}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+donationColumns+`
		FROM donations
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR donor_id = $2)
		  AND ($3::timestamptz IS NULL OR expiry_date > $3)
		ORDER BY `+order+`
		LIMIT $4 OFFSET $5
	`, string(f.Status), f.DonorID, toNullTime(f.ExpiresAfter), limit, f.Offset)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []donation.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// DeleteDonation removes the donation together with its claims and
// verification events. The child rows go first; their foreign keys would
// otherwise reject the donation delete.
func (s *Store) DeleteDonation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM verification_events WHERE donation_id = $1
	`, id); err != nil {
		return mapError(err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM claims WHERE donation_id = $1
	`, id); err != nil {
		return mapError(err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM donations WHERE id = $1
	`, id)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return mapError(tx.Commit())
}

func (s *Store) MarkDonationExpired(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE donations SET status = 'expired'
		WHERE id = $1 AND status = 'available'
	`, id)
	if err != nil {
		return false, mapError(err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (s *Store) ExpireDonations(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE donations SET status = 'expired'
		WHERE status = 'available' AND expiry_date <= $1
	`, now.UTC())
	if err != nil {
		return 0, mapError(err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDonation(row rowScanner) (donation.Donation, error) {
	var (
		d     donation.Donation
		notes sql.NullString
		image sql.NullString
	)
	if err := row.Scan(&d.ID, &d.DonorID, &d.Title, &d.Category, &d.Quantity, &d.Unit, &d.Location, &d.Expiry, &notes, &image, &d.Status, &d.CreatedAt); err != nil {
		return donation.Donation{}, mapError(err)
	}
	d.Notes = notes.String
	d.ImageURL = image.String
	return d, nil
}

// --- ClaimStore -------------------------------------------------------------

const claimColumns = `id, donation_id, receiver_id, status, claimed_at, created_at`

// ClaimDonation holds the concurrency contract for claiming: the conditional
// donation update and the claim insert run in one transaction, so two
// simultaneous claims on the same donation cannot both succeed.
func (s *Store) ClaimDonation(ctx context.Context, donationID, receiverID string, now time.Time) (claim.Claim, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return claim.Claim{}, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE donations SET status = 'claimed'
		WHERE id = $1 AND status = 'available'
	`, donationID)
	if err != nil {
		return claim.Claim{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// Either the donation does not exist or another claim won the race.
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM donations WHERE id = $1)`, donationID).Scan(&exists); err != nil {
			return claim.Claim{}, mapError(err)
		}
		if !exists {
			return claim.Claim{}, storage.ErrNotFound
		}
		return claim.Claim{}, donation.ErrNotAvailable
	}

	c := claim.Claim{
		ID:         uuid.NewString(),
		DonationID: donationID,
		ReceiverID: receiverID,
		Status:     claim.StatusPending,
		ClaimedAt:  now.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO claims (id, donation_id, receiver_id, status, claimed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.DonationID, c.ReceiverID, c.Status, c.ClaimedAt, c.CreatedAt); err != nil {
		return claim.Claim{}, mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return claim.Claim{}, mapError(err)
	}
	return c, nil
}

func (s *Store) UpdateClaimStatus(ctx context.Context, claimID string, status claim.Status, donationStatus donation.Status) (claim.Claim, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return claim.Claim{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		UPDATE claims SET status = $2
		WHERE id = $1
		RETURNING `+claimColumns+`
	`, claimID, status)

	c, err := scanClaim(row)
	if err != nil {
		return claim.Claim{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE donations SET status = $2 WHERE id = $1
	`, c.DonationID, donationStatus); err != nil {
		return claim.Claim{}, mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return claim.Claim{}, mapError(err)
	}
	return c, nil
}

func (s *Store) GetClaim(ctx context.Context, id string) (claim.Claim, error) {
	return scanClaim(s.db.QueryRowContext(ctx, `
		SELECT `+claimColumns+`
		FROM claims
		WHERE id = $1
	`, id))
}

func (s *Store) GetActiveClaim(ctx context.Context, donationID, receiverID string) (claim.Claim, error) {
	return scanClaim(s.db.QueryRowContext(ctx, `
		SELECT `+claimColumns+`
		FROM claims
		WHERE donation_id = $1 AND receiver_id = $2 AND status <> 'cancelled'
		ORDER BY created_at DESC
		LIMIT 1
	`, donationID, receiverID))
}

func (s *Store) ListClaimsByReceiver(ctx context.Context, receiverID string) ([]claim.Claim, error) {
	return s.listClaims(ctx, `
		SELECT `+claimColumns+`
		FROM claims
		WHERE receiver_id = $1
		ORDER BY created_at DESC
	`, receiverID)
}

func (s *Store) ListClaimsByDonation(ctx context.Context, donationID string) ([]claim.Claim, error) {
	return s.listClaims(ctx, `
		SELECT `+claimColumns+`
		FROM claims
		WHERE donation_id = $1
		ORDER BY created_at DESC
	`, donationID)
}

func (s *Store) CountActiveClaims(ctx context.Context, donationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM claims
		WHERE donation_id = $1 AND status <> 'cancelled'
	`, donationID).Scan(&count)
	if err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

func (s *Store) listClaims(ctx context.Context, query string, args ...interface{}) ([]claim.Claim, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []claim.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func scanClaim(row rowScanner) (claim.Claim, error) {
	var c claim.Claim
	if err := row.Scan(&c.ID, &c.DonationID, &c.ReceiverID, &c.Status, &c.ClaimedAt, &c.CreatedAt); err != nil {
		return claim.Claim{}, mapError(err)
	}
	return c, nil
}

// --- VerificationStore ------------------------------------------------------

const eventColumns = `id, donation_id, verification_code, event_type, scheduled_for, verified_at, data_hash, tx_ref, notes, created_at`

func (s *Store) CreateEvent(ctx context.Context, e verification.Event) (verification.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Code == "" {
		e.Code = verification.NewCode()
	}
	e.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_events (id, donation_id, verification_code, event_type, scheduled_for, verified_at, data_hash, tx_ref, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.DonationID, e.Code, e.Type, e.ScheduledFor.UTC(), ptrNullTime(e.VerifiedAt), e.DataHash, e.TxRef, e.Notes, e.CreatedAt)
	if err != nil {
		return verification.Event{}, mapError(err)
	}
	return e, nil
}

func (s *Store) GetEventByCode(ctx context.Context, code string) (verification.Event, error) {
	return scanEvent(s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM verification_events
		WHERE verification_code = $1
	`, code))
}

func (s *Store) ListEventsByDonation(ctx context.Context, donationID string) ([]verification.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM verification_events
		WHERE donation_id = $1
		ORDER BY created_at ASC
	`, donationID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []verification.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// VerifyEvent guards the one-way transition with a conditional update so a
// verified_at already set can never be overwritten.
func (s *Store) VerifyEvent(ctx context.Context, code string, verifiedAt time.Time, dataHash, txRef, notes string) (verification.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE verification_events
		SET verified_at = $2, data_hash = $3, tx_ref = $4, notes = $5
		WHERE verification_code = $1 AND verified_at IS NULL
		RETURNING `+eventColumns+`
	`, code, verifiedAt.UTC(), dataHash, txRef, notes)

	e, err := scanEvent(row)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return verification.Event{}, err
	}

	// Nothing updated: distinguish unknown code from already-verified.
	if _, lookupErr := s.GetEventByCode(ctx, code); lookupErr != nil {
		return verification.Event{}, lookupErr
	}
	return verification.Event{}, verification.ErrAlreadyVerified
}

func scanEvent(row rowScanner) (verification.Event, error) {
	var (
		e          verification.Event
		verifiedAt sql.NullTime
		dataHash   sql.NullString
		txRef      sql.NullString
		notes      sql.NullString
	)
	if err := row.Scan(&e.ID, &e.DonationID, &e.Code, &e.Type, &e.ScheduledFor, &verifiedAt, &dataHash, &txRef, &notes, &e.CreatedAt); err != nil {
		return verification.Event{}, mapError(err)
	}
	if verifiedAt.Valid {
		ts := verifiedAt.Time.UTC()
		e.VerifiedAt = &ts
	}
	e.DataHash = dataHash.String
	e.TxRef = txRef.String
	e.Notes = notes.String
	return e, nil
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func ptrNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
