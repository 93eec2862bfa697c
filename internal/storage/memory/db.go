package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/avstrong/pension/internal/booking"
	"github.com/avstrong/pension/internal/logger"
	"github.com/google/uuid"
)

type Config struct {
	L *logger.Logger
}

// transaction stages writes until commit, so rollback only has to drop it.
type transaction struct {
	id             string
	idempotencyKey string
	rooms          []booking.Room
	programs       []booking.Program
	reservations   []*booking.Reservation
	events         map[uuid.UUID]*booking.Event
}

type DB struct {
	mu                         sync.Mutex
	l                          *logger.Logger
	rooms                      []booking.Room
	programs                   map[string]booking.Program
	reservations               map[string]*booking.Reservation
	events                     map[uuid.UUID]*booking.Event
	transactions               map[string]*transaction
	nextTrxID                  int64
	reservationIdempotencyKeys map[string]*booking.Reservation
}

func New(conf Config) *DB {
	l := conf.L
	if l == nil {
		l = logger.Nop()
	}

	//nolint:exhaustruct
	return &DB{
		l:                          l,
		programs:                   make(map[string]booking.Program),
		reservations:               make(map[string]*booking.Reservation),
		events:                     make(map[uuid.UUID]*booking.Event),
		transactions:               make(map[string]*transaction),
		reservationIdempotencyKeys: make(map[string]*booking.Reservation),
	}
}

func (db *DB) BeginTransaction(ctx context.Context, _ string) (context.Context, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	trxID := fmt.Sprintf("trx-%d", db.nextTrxID)
	db.nextTrxID++

	key, _ := booking.IdempotencyKeyFromContext(ctx)

	//nolint:exhaustruct
	db.transactions[trxID] = &transaction{
		id:             trxID,
		idempotencyKey: key,
		events:         make(map[uuid.UUID]*booking.Event),
	}

	return withTransactionID(ctx, trxID), nil
}

// trx must be called with db.mu held.
func (db *DB) trx(ctx context.Context) (*transaction, error) {
	trxID, ok := transactionIDFromContext(ctx)
	if !ok || trxID == "" {
		return nil, ErrTransactionIDNotFoundInCtx
	}

	trx, exists := db.transactions[trxID]
	if !exists {
		return nil, fmt.Errorf("transaction %s not found: %w", trxID, ErrTransactionNotFound)
	}

	return trx, nil
}

// CommitTransaction is where the authoritative conflict check happens: staged
// reservations are re-validated against committed ones under the lock.
func (db *DB) CommitTransaction(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.trx(ctx)
	if err != nil {
		return err
	}

	delete(db.transactions, trx.id)

	if err := db.checkIdempotencyKey(trx); err != nil {
		db.l.LogWarnf("Transaction %s rejected at commit: %v", trx.id, err.Error())

		return err
	}

	for i, reservation := range trx.reservations {
		if err := db.checkConflicts(trx, reservation, trx.reservations[:i]); err != nil {
			db.l.LogWarnf("Transaction %s rejected at commit: %v", trx.id, err.Error())

			return err
		}
	}

	for _, room := range trx.rooms {
		db.upsertRoom(room)
	}

	for _, program := range trx.programs {
		db.programs[program.ID] = program
	}

	for _, reservation := range trx.reservations {
		if _, stored := db.reservations[reservation.ID]; stored {
			continue
		}

		db.reservations[reservation.ID] = reservation

		if trx.idempotencyKey != "" {
			db.reservationIdempotencyKeys[trx.idempotencyKey] = reservation
		}
	}

	for id, event := range trx.events {
		db.events[id] = event
	}

	return nil
}

func (db *DB) RollbackTransaction(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.trx(ctx)
	if err != nil {
		return err
	}

	delete(db.transactions, trx.id)

	return nil
}

func (db *DB) upsertRoom(room booking.Room) {
	for i := range db.rooms {
		if db.rooms[i].ID == room.ID {
			db.rooms[i] = room

			return
		}
	}

	db.rooms = append(db.rooms, room)
}

// program resolves staged catalog writes before committed ones.
func (db *DB) program(trx *transaction, id string) (booking.Program, bool) {
	for i := len(trx.programs) - 1; i >= 0; i-- {
		if trx.programs[i].ID == id {
			return trx.programs[i], true
		}
	}

	program, ok := db.programs[id]

	return program, ok
}

// checkIdempotencyKey rejects a transaction whose key already points at a
// reservation it does not carry itself.
func (db *DB) checkIdempotencyKey(trx *transaction) error {
	if trx.idempotencyKey == "" || len(trx.reservations) == 0 {
		return nil
	}

	stored, ok := db.reservationIdempotencyKeys[trx.idempotencyKey]
	if !ok {
		return nil
	}

	for _, reservation := range trx.reservations {
		if reservation.ID == stored.ID {
			return nil
		}
	}

	return fmt.Errorf("key %s: %w", trx.idempotencyKey, booking.ErrIdempotencyKeyTaken)
}

func (db *DB) checkConflicts(trx *transaction, reservation *booking.Reservation, staged []*booking.Reservation) error {
	if !slices.Contains(booking.ActiveStatuses, reservation.Status) {
		return nil
	}

	if _, stored := db.reservations[reservation.ID]; stored {
		return nil
	}

	if reservation.RoomID != "" {
		overlapping := db.overlapping(reservation.RoomID, reservation.CheckIn, reservation.CheckOut, booking.ActiveStatuses)
		for _, other := range staged {
			if other.RoomID == reservation.RoomID &&
				booking.Overlaps(other.CheckIn, other.CheckOut, reservation.CheckIn, reservation.CheckOut) {
				overlapping = append(overlapping, booking.ExistingReservation{ID: other.ID}) //nolint:exhaustruct
			}
		}

		if len(overlapping) > 0 {
			return booking.NewRoomConflict(reservation.RoomID, len(overlapping))
		}
	}

	for _, row := range reservation.ProgramBookings() {
		program, ok := db.program(trx, row.ProgramID)
		if !ok || program.StockQuantity <= 0 {
			continue
		}

		booked := db.bookedQuantity(row.ProgramID, row.Date, row.TimeSlot)
		for _, other := range staged {
			booked += sumRows(other.ProgramBookings(), row.ProgramID, row.Date, row.TimeSlot)
		}

		if left := program.StockQuantity - booked; left < row.Quantity {
			return booking.NewStockConflict(row.ProgramID, max(left, 0))
		}
	}

	return nil
}

func (db *DB) SaveRooms(ctx context.Context, rooms []booking.Room) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.trx(ctx)
	if err != nil {
		return err
	}

	trx.rooms = append(trx.rooms, rooms...)

	return nil
}

func (db *DB) SavePrograms(ctx context.Context, programs []booking.Program) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.trx(ctx)
	if err != nil {
		return err
	}

	trx.programs = append(trx.programs, programs...)

	return nil
}

func (db *DB) SaveReservation(ctx context.Context, reservation *booking.Reservation) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.trx(ctx)
	if err != nil {
		return err
	}

	for _, staged := range trx.reservations {
		if staged.ID == reservation.ID {
			return nil
		}
	}

	trx.reservations = append(trx.reservations, reservation)

	return nil
}

func (db *DB) SaveEvent(ctx context.Context, event *booking.Event) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.trx(ctx)
	if err != nil {
		return err
	}

	trx.events[event.ID] = event

	return nil
}

func (db *DB) GetRoomsByType(_ context.Context, roomType string) ([]booking.Room, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var rooms []booking.Room

	for _, room := range db.rooms {
		if room.Type == roomType {
			rooms = append(rooms, room)
		}
	}

	return rooms, nil
}

func (db *DB) GetProgramByID(_ context.Context, id string) (*booking.Program, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	program, ok := db.programs[id]
	if !ok {
		return nil, fmt.Errorf("program %s: %w", id, booking.ErrRecordNotFound)
	}

	return &program, nil
}

func (db *DB) FindOverlapping(
	_ context.Context,
	roomID string,
	checkIn, checkOut time.Time,
	statuses []booking.Status,
) ([]booking.ExistingReservation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.overlapping(roomID, checkIn, checkOut, statuses), nil
}

func (db *DB) overlapping(roomID string, checkIn, checkOut time.Time, statuses []booking.Status) []booking.ExistingReservation {
	var result []booking.ExistingReservation

	for _, r := range db.reservations {
		if r.RoomID != roomID || !slices.Contains(statuses, r.Status) {
			continue
		}

		if booking.Overlaps(r.CheckIn, r.CheckOut, checkIn, checkOut) {
			result = append(result, booking.ExistingReservation{
				ID:       r.ID,
				RoomID:   r.RoomID,
				CheckIn:  r.CheckIn,
				CheckOut: r.CheckOut,
				Status:   r.Status,
			})
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].CheckIn.Before(result[j].CheckIn) })

	return result
}

func (db *DB) SumBookedQuantity(_ context.Context, programID string, date time.Time, timeSlot string) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.bookedQuantity(programID, date, timeSlot), nil
}

func (db *DB) bookedQuantity(programID string, date time.Time, timeSlot string) int {
	var booked int

	for _, r := range db.reservations {
		booked += sumRows(r.ProgramBookings(), programID, date, timeSlot)
	}

	return booked
}

// sumRows counts active rows for the program on the date; an empty slot matches every slot.
func sumRows(rows []booking.ProgramBooking, programID string, date time.Time, timeSlot string) int {
	var sum int

	for _, row := range rows {
		if row.ProgramID != programID || !slices.Contains(booking.ActiveStatuses, row.Status) {
			continue
		}

		if !booking.SameDay(row.Date, date) || (timeSlot != "" && row.TimeSlot != timeSlot) {
			continue
		}

		sum += row.Quantity
	}

	return sum
}

func (db *DB) GetReservationByIdempotencyKey(ctx context.Context) (*booking.Reservation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	key, ok := booking.IdempotencyKeyFromContext(ctx)
	if !ok {
		return nil, booking.ErrIdempotencyKey
	}

	reservation, exists := db.reservationIdempotencyKeys[key]
	if exists {
		return reservation, nil
	}

	return nil, booking.ErrRecordNotFound
}

func (db *DB) GetReservation(_ context.Context, id string) (*booking.Reservation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	reservation, ok := db.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", id, booking.ErrRecordNotFound)
	}

	return reservation, nil
}
