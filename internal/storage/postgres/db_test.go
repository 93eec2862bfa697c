package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/avstrong/pension/internal/booking"
	"github.com/avstrong/pension/internal/logger"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = sqlDB.Close()
	})

	return New(sqlDB, logger.Nop()), mock
}

func q(s string) string {
	return regexp.QuoteMeta(s)
}

func day(d int) time.Time {
	return time.Date(2024, time.July, d, 0, 0, 0, 0, time.UTC)
}

func TestMigrateAppliesEveryStatement(t *testing.T) {
	db, mock := newMock(t)

	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, db.Migrate(context.Background()))
}

func TestGetRoomsByType(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(q("FROM rooms")).
		WithArgs("standard").
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "name", "max_guests"}).
			AddRow("std-101", "standard", "Standard 101", 2).
			AddRow("std-102", "standard", "Standard 102", 4))

	rooms, err := db.GetRoomsByType(context.Background(), "standard")
	require.NoError(t, err)

	assert.Equal(t, []booking.Room{
		{ID: "std-101", Type: "standard", Name: "Standard 101", MaxGuests: 2},
		{ID: "std-102", Type: "standard", Name: "Standard 102", MaxGuests: 4},
	}, rooms)
}

func TestGetProgramByID(t *testing.T) {
	db, mock := newMock(t)

	columns := []string{"id", "name", "available", "max_participants", "stock_quantity", "time_slots"}

	mock.ExpectQuery(q("FROM programs")).
		WithArgs("farm-experience").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("farm-experience", "Farm", true, 10, 5, "{10:00,14:00}"))
	mock.ExpectQuery(q("FROM programs")).
		WithArgs("kayak").
		WillReturnError(sql.ErrNoRows)

	p, err := db.GetProgramByID(context.Background(), "farm-experience")
	require.NoError(t, err)

	assert.Equal(t, booking.Program{
		ID:              "farm-experience",
		Name:            "Farm",
		Available:       true,
		MaxParticipants: 10,
		StockQuantity:   5,
		TimeSlots:       []string{"10:00", "14:00"},
	}, *p)

	_, err = db.GetProgramByID(context.Background(), "kayak")
	require.ErrorIs(t, err, booking.ErrRecordNotFound)
}

func TestFindOverlapping(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(q("FROM reservations")).
		WithArgs("std-101", sqlmock.AnyArg(), day(1), day(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "room_id", "check_in", "check_out", "status"}).
			AddRow("r1", "std-101", day(3), day(5), "confirmed"))

	found, err := db.FindOverlapping(context.Background(), "std-101", day(1), day(3), booking.ActiveStatuses)
	require.NoError(t, err)

	require.Len(t, found, 1)
	assert.Equal(t, booking.StatusConfirmed, found[0].Status)
}

func TestSumBookedQuantity(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(q("FROM reservation_programs")).
		WithArgs("farm-experience", "2024-07-02", sqlmock.AnyArg(), "10:00").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(3))

	booked, err := db.SumBookedQuantity(context.Background(), "farm-experience", day(2), "10:00")
	require.NoError(t, err)
	assert.Equal(t, 3, booked)
}

func TestSaveReservationRequiresTransaction(t *testing.T) {
	db, _ := newMock(t)

	//nolint:exhaustruct
	err := db.SaveReservation(context.Background(), &booking.Reservation{ID: "r1"})
	require.ErrorIs(t, err, ErrTransactionNotFoundInCtx)
}

func TestBeginTransactionUnknownIsolation(t *testing.T) {
	db, _ := newMock(t)

	_, err := db.BeginTransaction(context.Background(), "SNAPSHOT")
	require.ErrorIs(t, err, ErrUnknownIsolationLevel)
}

func roomReservation() *booking.Reservation {
	//nolint:exhaustruct
	return &booking.Reservation{
		ID:        "r2",
		Guest:     booking.Guest{Name: "Choi", Email: "choi@example.com"},
		RoomID:    "std-101",
		RoomType:  "standard",
		CheckIn:   day(3),
		CheckOut:  day(4),
		Adults:    2,
		Status:    booking.StatusPending,
		Breakdown: booking.PriceBreakdown{Items: []booking.LineItem{}, Total: 150000},
		CreatedAt: day(1),
	}
}

func programReservation() *booking.Reservation {
	//nolint:exhaustruct
	return &booking.Reservation{
		ID:     "r3",
		Guest:  booking.Guest{Name: "Choi", Email: "choi@example.com"},
		Adults: 1,
		Programs: []booking.ProgramSelection{
			{ProgramID: "farm-experience", Date: day(2), TimeSlot: "10:00", Quantity: 2},
		},
		Status:    booking.StatusPending,
		Breakdown: booking.PriceBreakdown{Items: []booking.LineItem{}, Total: 40000},
		CreatedAt: day(1),
	}
}

func TestSaveReservationRoomConflict(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT EXISTS")).WithArgs("r2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(q("FROM rooms WHERE id = $1 FOR UPDATE")).WithArgs("std-101").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("std-101"))
	mock.ExpectQuery(q("SELECT COUNT(*)")).WithArgs("std-101", sqlmock.AnyArg(), day(3), day(4)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	ctx, err := db.BeginTransaction(context.Background(), "SERIALIZABLE")
	require.NoError(t, err)

	err = db.SaveReservation(ctx, roomReservation())

	var conflict *booking.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, booking.ReasonDateConflict, conflict.Reason)
	assert.Equal(t, 1, conflict.Conflicting)

	require.NoError(t, db.RollbackTransaction(ctx))
}

func TestSaveReservationStockConflict(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT EXISTS")).WithArgs("r3").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(q("SELECT stock_quantity FROM programs")).WithArgs("farm-experience").
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(5))
	mock.ExpectQuery(q("FROM reservation_programs")).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(4))
	mock.ExpectRollback()

	ctx, err := db.BeginTransaction(context.Background(), "SERIALIZABLE")
	require.NoError(t, err)

	err = db.SaveReservation(ctx, programReservation())

	var conflict *booking.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, booking.ReasonInsufficientStock, conflict.Reason)
	assert.Equal(t, 1, conflict.AvailableStock)

	require.NoError(t, db.RollbackTransaction(ctx))
}

func TestSaveReservationInsertsRows(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT EXISTS")).WithArgs("r3").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(q("SELECT stock_quantity FROM programs")).WithArgs("farm-experience").
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(5))
	mock.ExpectQuery(q("FROM reservation_programs")).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(3))
	mock.ExpectExec(q("INSERT INTO reservations")).
		WithArgs(
			"r3", "key-1", sqlmock.AnyArg(), nil, "", sqlmock.AnyArg(), sqlmock.AnyArg(),
			1, 0, sqlmock.AnyArg(), "pending", sqlmock.AnyArg(), int64(40000), day(1),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO reservation_programs")).
		WithArgs("r3", "farm-experience", "2024-07-02", "10:00", 2, "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := booking.NewContextWithIdempotencyKey(context.Background(), "key-1")

	ctx, err := db.BeginTransaction(ctx, "SERIALIZABLE")
	require.NoError(t, err)

	require.NoError(t, db.SaveReservation(ctx, programReservation()))
	require.NoError(t, db.CommitTransaction(ctx))
}

func TestSaveReservationSkipsStoredID(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT EXISTS")).WithArgs("r2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()

	ctx, err := db.BeginTransaction(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, db.SaveReservation(ctx, roomReservation()))
	require.NoError(t, db.CommitTransaction(ctx))
}

func TestGetReservationByIdempotencyKey(t *testing.T) {
	db, mock := newMock(t)

	columns := []string{
		"id", "guest", "room_id", "room_type", "check_in", "check_out", "adults", "children",
		"options", "status", "breakdown", "created_at",
	}

	mock.ExpectQuery(q("WHERE idempotency_key = $1")).WithArgs("key-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"r1", []byte(`{"name":"Choi","email":"choi@example.com"}`), "std-101", "standard", day(1), day(3), 2, 0,
			[]byte(`[{"type":"breakfast"}]`), "pending", []byte(`{"items":[],"total":320000}`), day(1),
		))
	mock.ExpectQuery(q("FROM reservation_programs")).WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"program_id", "date", "time_slot", "quantity"}))
	mock.ExpectQuery(q("WHERE idempotency_key = $1")).WithArgs("key-2").
		WillReturnError(sql.ErrNoRows)

	ctx := booking.NewContextWithIdempotencyKey(context.Background(), "key-1")

	r, err := db.GetReservationByIdempotencyKey(ctx)
	require.NoError(t, err)

	assert.Equal(t, "std-101", r.RoomID)
	assert.Equal(t, "choi@example.com", r.Guest.Email)
	assert.Equal(t, booking.Options{booking.BreakfastOption{}}, r.Options)
	assert.Equal(t, int64(320000), r.Breakdown.Total)

	_, err = db.GetReservationByIdempotencyKey(booking.NewContextWithIdempotencyKey(context.Background(), "key-2"))
	require.ErrorIs(t, err, booking.ErrRecordNotFound)

	_, err = db.GetReservationByIdempotencyKey(context.Background())
	require.ErrorIs(t, err, booking.ErrIdempotencyKey)
}

func TestQueryErrorsAreWrapped(t *testing.T) {
	db, mock := newMock(t)

	errDown := errors.New("connection refused")

	mock.ExpectQuery(q("FROM rooms")).WillReturnError(errDown)

	_, err := db.GetRoomsByType(context.Background(), "standard")
	require.ErrorIs(t, err, errDown)
}

func TestSaveReservationReportsTakenIdempotencyKey(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT EXISTS")).WithArgs("r2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(q("FROM rooms WHERE id = $1 FOR UPDATE")).WithArgs("std-101").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("std-101"))
	mock.ExpectQuery(q("SELECT COUNT(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(q("INSERT INTO reservations")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: idempotencyKeyConstraint}) //nolint:exhaustruct
	mock.ExpectRollback()

	ctx := booking.NewContextWithIdempotencyKey(context.Background(), "key-1")

	ctx, err := db.BeginTransaction(ctx, "READ COMMITTED")
	require.NoError(t, err)

	err = db.SaveReservation(ctx, roomReservation())
	require.ErrorIs(t, err, booking.ErrIdempotencyKeyTaken)

	require.NoError(t, db.RollbackTransaction(ctx))
}

func TestSaveReservationKeepsOtherUniqueViolations(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT EXISTS")).WithArgs("r2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(q("FROM rooms WHERE id = $1 FOR UPDATE")).WithArgs("std-101").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("std-101"))
	mock.ExpectQuery(q("SELECT COUNT(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(q("INSERT INTO reservations")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "reservations_pkey"}) //nolint:exhaustruct
	mock.ExpectRollback()

	ctx, err := db.BeginTransaction(context.Background(), "READ COMMITTED")
	require.NoError(t, err)

	err = db.SaveReservation(ctx, roomReservation())
	require.Error(t, err)
	assert.NotErrorIs(t, err, booking.ErrIdempotencyKeyTaken)

	var pqErr *pq.Error
	require.ErrorAs(t, err, &pqErr)

	require.NoError(t, db.RollbackTransaction(ctx))
}
