package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"

	"github.com/greenchain/greenchain/internal/app/domain/donation"
	"github.com/greenchain/greenchain/internal/app/domain/user"
	"github.com/greenchain/greenchain/internal/app/domain/verification"
	"github.com/greenchain/greenchain/internal/app/storage"
)

func TestClaimDonationLosesRace(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	// The conditional update matches zero rows, the donation exists, so the
	// caller must observe the not-available rejection and no claim insert.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE donations SET status = 'claimed'").
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	store := New(db)
	_, err = store.ClaimDonation(context.Background(), "d1", "r1", time.Now())
	if !errors.Is(err, donation.ErrNotAvailable) {
		t.Fatalf("expected ErrNotAvailable, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClaimDonationUnknownDonation(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE donations SET status = 'claimed'").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	store := New(db)
	_, err = store.ClaimDonation(context.Background(), "missing", "r1", time.Now())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimDonationWinsRace(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE donations SET status = 'claimed'").
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO claims").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := New(db)
	c, err := store.ClaimDonation(context.Background(), "d1", "r1", time.Now())
	if err != nil {
		t.Fatalf("claim donation: %v", err)
	}
	if c.DonationID != "d1" || c.ReceiverID != "r1" {
		t.Fatalf("unexpected claim %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestVerifyEventAlreadyVerified(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	eventRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"id", "donation_id", "verification_code", "event_type", "scheduled_for",
			"verified_at", "data_hash", "tx_ref", "notes", "created_at",
		}).AddRow("e1", "d1", "VC-AB12CD", "pickup", now, now, "hash", "0xabc", "", now)
	}

	// The conditional update matches nothing, the follow-up lookup finds the
	// event, so the already-verified rejection surfaces.
	mock.ExpectQuery("UPDATE verification_events").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM verification_events").
		WithArgs("VC-AB12CD").
		WillReturnRows(eventRows())

	store := New(db)
	_, err = store.VerifyEvent(context.Background(), "VC-AB12CD", now, "hash2", "0xdef", "")
	if !errors.Is(err, verification.ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestVerifyEventUnknownCode(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("UPDATE verification_events").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM verification_events").
		WithArgs("VC-NOPE00").
		WillReturnError(sql.ErrNoRows)

	store := New(db)
	_, err = store.VerifyEvent(context.Background(), "VC-NOPE00", time.Now(), "", "", "")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteDonationRemovesChildRows(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	// The claims and verification_events foreign keys have no cascade, so
	// the children must go in the same transaction as the donation. Every
	// donation has at least its pickup event, and cancelled claims survive
	// the active-claims guard.
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM verification_events WHERE donation_id").
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM claims WHERE donation_id").
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM donations WHERE id").
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := New(db)
	if err := store.DeleteDonation(context.Background(), "d1"); err != nil {
		t.Fatalf("delete donation: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteDonationUnknownID(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM verification_events WHERE donation_id").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM claims WHERE donation_id").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM donations WHERE id").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	store := New(db)
	if err := store.DeleteDonation(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := New(db)
	ctx := context.Background()

	donor, err := store.CreateUser(ctx, user.User{Email: "donor@example.com", PasswordHash: "x", Name: "Donor", Role: user.RoleDonor})
	if err != nil {
		t.Fatalf("create donor: %v", err)
	}

	if _, err := store.CreateUser(ctx, user.User{Email: "donor@example.com", PasswordHash: "x", Name: "Dup", Role: user.RoleDonor}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}

	receiver, err := store.CreateUser(ctx, user.User{Email: "receiver@example.com", PasswordHash: "x", Name: "Receiver", Role: user.RoleReceiver})
	if err != nil {
		t.Fatalf("create receiver: %v", err)
	}

	d, err := store.CreateDonation(ctx, donation.Donation{
		DonorID:  donor.ID,
		Title:    "Surplus bread",
		Category: "bakery",
		Quantity: 12,
		Unit:     "loaves",
		Location: "Main St shelter",
		Expiry:   time.Now().Add(8 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create donation: %v", err)
	}

	c, err := store.ClaimDonation(ctx, d.ID, receiver.ID, time.Now())
	if err != nil {
		t.Fatalf("claim donation: %v", err)
	}

	if _, err := store.ClaimDonation(ctx, d.ID, receiver.ID, time.Now()); !errors.Is(err, donation.ErrNotAvailable) {
		t.Fatalf("second claim should lose, got %v", err)
	}

	if _, err := store.GetClaim(ctx, c.ID); err != nil {
		t.Fatalf("get claim: %v", err)
	}
}
