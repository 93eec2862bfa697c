package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/avstrong/pension/internal/booking"
	"github.com/avstrong/pension/internal/logger"
	"github.com/lib/pq"
)

var (
	ErrTransactionNotFoundInCtx = errors.New("no postgres transaction found in ctx")
	ErrUnknownIsolationLevel    = errors.New("unknown isolation level")
)

type Config struct {
	L   *logger.Logger
	DSN string
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type DB struct {
	db *sql.DB
	l  *logger.Logger
}

func Open(ctx context.Context, conf Config) (*DB, error) {
	sqlDB, err := sql.Open("postgres", conf.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()

		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return New(sqlDB, conf.L), nil
}

func New(sqlDB *sql.DB, l *logger.Logger) *DB {
	return &DB{db: sqlDB, l: l}
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) q(ctx context.Context) querier {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}

	return db.db
}

func isolation(level string) (sql.IsolationLevel, error) {
	switch level {
	case "":
		return sql.LevelDefault, nil
	case "READ COMMITTED":
		return sql.LevelReadCommitted, nil
	case "REPEATABLE READ":
		return sql.LevelRepeatableRead, nil
	case "SERIALIZABLE":
		return sql.LevelSerializable, nil
	default:
		return 0, fmt.Errorf("%q: %w", level, ErrUnknownIsolationLevel)
	}
}

func (db *DB) BeginTransaction(ctx context.Context, level string) (context.Context, error) {
	lvl, err := isolation(level)
	if err != nil {
		return nil, err
	}

	tx, err := db.db.BeginTx(ctx, &sql.TxOptions{Isolation: lvl, ReadOnly: false})
	if err != nil {
		return nil, fmt.Errorf("begin postgres transaction: %w", err)
	}

	return withTx(ctx, tx), nil
}

func (db *DB) CommitTransaction(ctx context.Context) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ErrTransactionNotFoundInCtx
	}

	return tx.Commit()
}

func (db *DB) RollbackTransaction(ctx context.Context) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ErrTransactionNotFoundInCtx
	}

	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}

	return nil
}

func statusStrings(statuses []booking.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}

	return out
}

func (db *DB) GetRoomsByType(ctx context.Context, roomType string) ([]booking.Room, error) {
	rows, err := db.q(ctx).QueryContext(ctx, `
		SELECT id, type, name, max_guests
		FROM rooms
		WHERE type = $1
		ORDER BY position
	`, roomType)
	if err != nil {
		return nil, fmt.Errorf("query rooms of type %s: %w", roomType, err)
	}
	defer rows.Close()

	var rooms []booking.Room

	for rows.Next() {
		var room booking.Room
		if err := rows.Scan(&room.ID, &room.Type, &room.Name, &room.MaxGuests); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}

		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *DB) GetProgramByID(ctx context.Context, id string) (*booking.Program, error) {
	var program booking.Program

	err := db.q(ctx).QueryRowContext(ctx, `
		SELECT id, name, available, max_participants, stock_quantity, time_slots
		FROM programs
		WHERE id = $1
	`, id).Scan(
		&program.ID,
		&program.Name,
		&program.Available,
		&program.MaxParticipants,
		&program.StockQuantity,
		pq.Array(&program.TimeSlots),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("program %s: %w", id, booking.ErrRecordNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("query program %s: %w", id, err)
	}

	return &program, nil
}

func (db *DB) FindOverlapping(
	ctx context.Context,
	roomID string,
	checkIn, checkOut time.Time,
	statuses []booking.Status,
) ([]booking.ExistingReservation, error) {
	rows, err := db.q(ctx).QueryContext(ctx, `
		SELECT id, room_id, check_in, check_out, status
		FROM reservations
		WHERE room_id = $1
		  AND status = ANY($2)
		  AND check_in <= $4
		  AND check_out >= $3
		ORDER BY check_in
	`, roomID, pq.Array(statusStrings(statuses)), checkIn, checkOut)
	if err != nil {
		return nil, fmt.Errorf("query overlapping reservations of room %s: %w", roomID, err)
	}
	defer rows.Close()

	var result []booking.ExistingReservation

	for rows.Next() {
		var r booking.ExistingReservation
		if err := rows.Scan(&r.ID, &r.RoomID, &r.CheckIn, &r.CheckOut, &r.Status); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}

		result = append(result, r)
	}

	return result, rows.Err()
}

func (db *DB) SumBookedQuantity(ctx context.Context, programID string, date time.Time, timeSlot string) (int, error) {
	var booked int

	err := db.q(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM reservation_programs
		WHERE program_id = $1
		  AND date = $2::date
		  AND status = ANY($3)
		  AND ($4 = '' OR time_slot = $4)
	`, programID, date.UTC().Format(time.DateOnly), pq.Array(statusStrings(booking.ActiveStatuses)), timeSlot).Scan(&booked)
	if err != nil {
		return 0, fmt.Errorf("sum booked quantity of program %s: %w", programID, err)
	}

	return booked, nil
}

func (db *DB) SaveRooms(ctx context.Context, rooms []booking.Room) error {
	for _, room := range rooms {
		_, err := db.q(ctx).ExecContext(ctx, `
			INSERT INTO rooms (id, type, name, max_guests)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET type = $2, name = $3, max_guests = $4
		`, room.ID, room.Type, room.Name, room.MaxGuests)
		if err != nil {
			return fmt.Errorf("upsert room %s: %w", room.ID, err)
		}
	}

	return nil
}

func (db *DB) SavePrograms(ctx context.Context, programs []booking.Program) error {
	for _, p := range programs {
		_, err := db.q(ctx).ExecContext(ctx, `
			INSERT INTO programs (id, name, available, max_participants, stock_quantity, time_slots)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE
			SET name = $2, available = $3, max_participants = $4, stock_quantity = $5, time_slots = $6
		`, p.ID, p.Name, p.Available, p.MaxParticipants, p.StockQuantity, pq.Array(p.TimeSlots))
		if err != nil {
			return fmt.Errorf("upsert program %s: %w", p.ID, err)
		}
	}

	return nil
}

// SaveReservation locks the room and program rows it touches and re-checks
// conflicts before inserting, so concurrent writers cannot double-book.
// Saving an id that is already stored is a no-op.
func (db *DB) SaveReservation(ctx context.Context, r *booking.Reservation) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ErrTransactionNotFoundInCtx
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)`, r.ID).Scan(&exists); err != nil {
		return fmt.Errorf("look up reservation %s: %w", r.ID, err)
	}

	if exists {
		db.l.LogDebugf("Reservation %s is already stored", r.ID)

		return nil
	}

	if err := db.checkRoom(ctx, tx, r); err != nil {
		return err
	}

	for _, row := range r.ProgramBookings() {
		if err := db.checkStock(ctx, tx, row); err != nil {
			return err
		}
	}

	guest, err := json.Marshal(r.Guest)
	if err != nil {
		return fmt.Errorf("encode guest: %w", err)
	}

	options, err := json.Marshal(r.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}

	breakdown, err := json.Marshal(r.Breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}

	var key, roomID sql.NullString

	if k, ok := booking.IdempotencyKeyFromContext(ctx); ok {
		key = sql.NullString{String: k, Valid: true}
	}

	if r.RoomID != "" {
		roomID = sql.NullString{String: r.RoomID, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservations (
			id, idempotency_key, guest, room_id, room_type, check_in, check_out,
			adults, children, options, status, breakdown, total, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		r.ID, key, guest, roomID, r.RoomType, r.CheckIn, r.CheckOut,
		r.Adults, r.Children, options, string(r.Status), breakdown, r.Breakdown.Total, r.CreatedAt,
	)
	if isIdempotencyKeyViolation(err) {
		return fmt.Errorf("insert reservation %s: %w", r.ID, booking.ErrIdempotencyKeyTaken)
	}

	if err != nil {
		return fmt.Errorf("insert reservation %s: %w", r.ID, err)
	}

	for _, row := range r.ProgramBookings() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reservation_programs (reservation_id, program_id, date, time_slot, quantity, status)
			VALUES ($1, $2, $3::date, $4, $5, $6)
		`, row.ReservationID, row.ProgramID, row.Date.UTC().Format(time.DateOnly), row.TimeSlot, row.Quantity, string(row.Status))
		if err != nil {
			return fmt.Errorf("insert program %s of reservation %s: %w", row.ProgramID, r.ID, err)
		}
	}

	return nil
}

const idempotencyKeyConstraint = "reservations_idempotency_key_key"

// isIdempotencyKeyViolation reports whether a concurrent transaction already
// committed a reservation under the same key.
func isIdempotencyKeyViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	return pqErr.Code.Name() == "unique_violation" && pqErr.Constraint == idempotencyKeyConstraint
}

func (db *DB) checkRoom(ctx context.Context, tx *sql.Tx, r *booking.Reservation) error {
	if r.RoomID == "" || !slices.Contains(booking.ActiveStatuses, r.Status) {
		return nil
	}

	var locked string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM rooms WHERE id = $1 FOR UPDATE`, r.RoomID).Scan(&locked); err != nil {
		return fmt.Errorf("lock room %s: %w", r.RoomID, err)
	}

	var conflicting int

	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM reservations
		WHERE room_id = $1
		  AND status = ANY($2)
		  AND check_in <= $4
		  AND check_out >= $3
	`, r.RoomID, pq.Array(statusStrings(booking.ActiveStatuses)), r.CheckIn, r.CheckOut).Scan(&conflicting)
	if err != nil {
		return fmt.Errorf("count conflicts of room %s: %w", r.RoomID, err)
	}

	if conflicting > 0 {
		return booking.NewRoomConflict(r.RoomID, conflicting)
	}

	return nil
}

func (db *DB) checkStock(ctx context.Context, tx *sql.Tx, row booking.ProgramBooking) error {
	if !slices.Contains(booking.ActiveStatuses, row.Status) {
		return nil
	}

	var stock int

	err := tx.QueryRowContext(ctx, `SELECT stock_quantity FROM programs WHERE id = $1 FOR UPDATE`, row.ProgramID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("program %s: %w", row.ProgramID, booking.ErrRecordNotFound)
	}

	if err != nil {
		return fmt.Errorf("lock program %s: %w", row.ProgramID, err)
	}

	if stock <= 0 {
		return nil
	}

	booked, err := db.SumBookedQuantity(ctx, row.ProgramID, row.Date, row.TimeSlot)
	if err != nil {
		return err
	}

	if left := stock - booked; left < row.Quantity {
		return booking.NewStockConflict(row.ProgramID, max(left, 0))
	}

	return nil
}

func (db *DB) SaveEvent(ctx context.Context, event *booking.Event) error {
	_, err := db.q(ctx).ExecContext(ctx, `
		INSERT INTO reservation_events (id, reservation_id, type, created_at)
		VALUES ($1, $2, $3, $4)
	`, event.ID, event.ReservationID, event.Type, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", event.ID, err)
	}

	return nil
}

func (db *DB) GetReservationByIdempotencyKey(ctx context.Context) (*booking.Reservation, error) {
	key, ok := booking.IdempotencyKeyFromContext(ctx)
	if !ok {
		return nil, booking.ErrIdempotencyKey
	}

	var (
		r                         booking.Reservation
		roomID                    sql.NullString
		guest, options, breakdown []byte
	)

	err := db.q(ctx).QueryRowContext(ctx, `
		SELECT id, guest, room_id, room_type, check_in, check_out, adults, children,
		       options, status, breakdown, created_at
		FROM reservations
		WHERE idempotency_key = $1
	`, key).Scan(
		&r.ID, &guest, &roomID, &r.RoomType, &r.CheckIn, &r.CheckOut, &r.Adults, &r.Children,
		&options, &r.Status, &breakdown, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrRecordNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("query reservation by idempotency key: %w", err)
	}

	r.RoomID = roomID.String

	if err := json.Unmarshal(guest, &r.Guest); err != nil {
		return nil, fmt.Errorf("decode guest: %w", err)
	}

	if err := json.Unmarshal(options, &r.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}

	if err := json.Unmarshal(breakdown, &r.Breakdown); err != nil {
		return nil, fmt.Errorf("decode breakdown: %w", err)
	}

	programs, err := db.reservationPrograms(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	r.Programs = programs

	return &r, nil
}

func (db *DB) reservationPrograms(ctx context.Context, reservationID string) ([]booking.ProgramSelection, error) {
	rows, err := db.q(ctx).QueryContext(ctx, `
		SELECT program_id, date, time_slot, quantity
		FROM reservation_programs
		WHERE reservation_id = $1
	`, reservationID)
	if err != nil {
		return nil, fmt.Errorf("query programs of reservation %s: %w", reservationID, err)
	}
	defer rows.Close()

	var programs []booking.ProgramSelection

	for rows.Next() {
		var p booking.ProgramSelection
		if err := rows.Scan(&p.ProgramID, &p.Date, &p.TimeSlot, &p.Quantity); err != nil {
			return nil, fmt.Errorf("scan reservation program: %w", err)
		}

		programs = append(programs, p)
	}

	return programs, rows.Err()
}
