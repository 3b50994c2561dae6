package repositories

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestClaimPropagatesExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	dbErr := errors.New("database is locked")
	mock.ExpectExec("UPDATE webhook_deliveries").WillReturnError(dbErr)

	repo := NewDeliveryRepository(db)
	claimed, err := repo.Claim("del_x", 1700000000)
	if claimed {
		t.Error("claim must not succeed on exec error")
	}
	if !errors.Is(err, dbErr) {
		t.Errorf("expected underlying error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetSubscriptionScanError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	// A row with the wrong column count fails the scan.
	rows := sqlmock.NewRows([]string{"id"}).AddRow("sub_x")
	mock.ExpectQuery("SELECT (.+) FROM webhook_subscriptions").WillReturnRows(rows)

	repo := NewSubscriptionRepository(db)
	if _, err := repo.GetByID("sub_x"); err == nil {
		t.Error("expected scan error for malformed row")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	dbErr := errors.New("disk I/O error")
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM webhook_deliveries").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM webhook_subscriptions").WillReturnError(dbErr)
	mock.ExpectRollback()

	repo := NewSubscriptionRepository(db)
	if err := repo.Delete("sub_x"); !errors.Is(err, dbErr) {
		t.Errorf("expected underlying error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
