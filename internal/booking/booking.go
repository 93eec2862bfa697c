package booking

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/avstrong/pension/internal/logger"
	"github.com/google/uuid"
)

type idGenerator interface {
	GetID(ctx context.Context) (string, error)
}

type storageReader interface {
	GetReservationByIdempotencyKey(ctx context.Context) (*Reservation, error)
}

type storageWriter interface {
	BeginTransaction(ctx context.Context, level string) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
	SaveReservation(ctx context.Context, reservation *Reservation) error
	SaveEvent(ctx context.Context, event *Event) error
}

type storage interface {
	storageReader
	storageWriter
}

type eventPublisher interface {
	Publish(ctx context.Context, event *Event) error
}

type Conf struct {
	Rates  RateTable
	Limits Limits
	// Publisher is optional; events are always stored with the reservation.
	Publisher eventPublisher
	Now       func() time.Time
}

type Manager struct {
	l           *logger.Logger
	storage     storage
	idGenerator idGenerator
	checker     *Checker
	rates       RateTable
	limits      Limits
	publisher   eventPublisher
	now         func() time.Time
}

func New(l *logger.Logger, storage storage, idGenerator idGenerator, checker *Checker, conf Conf) *Manager {
	now := conf.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		l:           l,
		storage:     storage,
		idGenerator: idGenerator,
		checker:     checker,
		rates:       conf.Rates,
		limits:      conf.Limits,
		publisher:   conf.Publisher,
		now:         now,
	}
}

func (r *Request) normalize() {
	r.CheckIn = r.CheckIn.UTC()
	r.CheckOut = r.CheckOut.UTC()

	for idx := range r.Programs {
		r.Programs[idx].Date = r.Programs[idx].Date.UTC()
	}
}

func (m *Manager) validate(req Request) (Violations, error) {
	violations := Validate(req, m.limits)
	if !violations.Blocking() {
		return violations, nil
	}

	inputErr := newInputError()
	inputErr.addViolations(violations)

	return violations, inputErr
}

func (b *BookInput) validate(limits Limits, now time.Time) error {
	inputErr := newInputError()

	if _, err := mail.ParseAddress(b.Guest.Email); err != nil {
		inputErr.addError("guest.email", "provide valid email")
	}

	if b.Guest.Name == "" {
		inputErr.addError("guest.name", "provide guest name")
	}

	inputErr.addViolations(Validate(b.Request, limits))

	today := now.UTC().Truncate(day)

	if b.Request.IsRoomBooking() && b.Request.CheckIn.Before(today) {
		inputErr.addError("check_in", "checkin must not be in the past")
	}

	for i, p := range b.Request.Programs {
		if !p.Date.IsZero() && p.Date.Before(today) {
			inputErr.addError(fmt.Sprintf("programs[%d].date", i), "program date must not be in the past")
		}
	}

	if inputErr.fieldsCount() > 0 {
		return inputErr
	}

	return nil
}

// Quote validates, checks availability and prices a request without persisting anything.
// The breakdown is only computed when the request is available.
func (m *Manager) Quote(ctx context.Context, req Request) (*Quote, error) {
	req.normalize()

	violations, err := m.validate(req)
	if err != nil {
		return nil, err
	}

	quote := &Quote{
		Warnings:  violations.Warnings(),
		Verdict:   m.checker.CheckAvailability(ctx, req),
		Breakdown: nil,
	}

	if !quote.Verdict.Available {
		return quote, nil
	}

	breakdown, err := ComputeTotal(req, m.rates)
	if err != nil {
		return nil, fmt.Errorf("compute total: %w", err)
	}

	quote.Breakdown = &breakdown

	return quote, nil
}

func (m *Manager) CheckAvailability(ctx context.Context, req Request) (Verdict, error) {
	req.normalize()

	if _, err := m.validate(req); err != nil {
		return Verdict{}, err //nolint:exhaustruct
	}

	return m.checker.CheckAvailability(ctx, req), nil
}

func (m *Manager) buildReservation(
	ctx context.Context,
	input *BookInput,
	verdict Verdict,
	breakdown PriceBreakdown,
) (*Reservation, *Event, error) {
	id, err := m.idGenerator.GetID(ctx)
	if err != nil {
		return nil, nil, ErrNextID
	}

	req := input.Request

	//nolint:exhaustruct
	reservation := &Reservation{
		ID:        id,
		Guest:     input.Guest,
		RoomType:  req.RoomType,
		CheckIn:   req.CheckIn,
		CheckOut:  req.CheckOut,
		Adults:    req.Adults,
		Children:  req.Children,
		Options:   req.Options,
		Programs:  req.Programs,
		Status:    StatusPending,
		Breakdown: breakdown,
		CreatedAt: m.now().UTC(),
	}

	if verdict.Room != nil {
		reservation.RoomID = verdict.Room.ID
	}

	event := &Event{
		ID:            uuid.New(),
		ReservationID: reservation.ID,
		Type:          EventReservationCreated,
		CreatedAt:     m.now().UTC(),
	}

	return reservation, event, nil
}

// CreateReservation books the request. A replayed idempotency key returns the
// reservation stored under it. A conflict detected by the store at write time is
// returned as an *AvailabilityError even though the advisory check passed.
func (m *Manager) CreateReservation(ctx context.Context, input *BookInput) (*Reservation, error) {
	input.Request.normalize()

	if err := input.validate(m.limits, m.now()); err != nil {
		return nil, err
	}

	reservation, err := m.storage.GetReservationByIdempotencyKey(ctx)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, fmt.Errorf("get reservation by idempotency key: %w", err)
	}

	if !errors.Is(err, ErrRecordNotFound) {
		return reservation, nil
	}

	verdict := m.checker.CheckAvailability(ctx, input.Request)
	if !verdict.Available {
		return nil, NewAvailabilityError(verdict)
	}

	breakdown, err := ComputeTotal(input.Request, m.rates)
	if err != nil {
		return nil, fmt.Errorf("compute total: %w", err)
	}

	reservation, event, err := m.buildReservation(ctx, input, verdict, breakdown)
	if err != nil {
		return nil, fmt.Errorf("build reservation: %w", err)
	}

	if err := m.persist(ctx, reservation, event); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return nil, NewAvailabilityError(conflict.verdict())
		}

		if errors.Is(err, ErrIdempotencyKeyTaken) {
			m.l.LogInfo("Idempotency key was taken by a concurrent request, replaying the stored reservation")

			stored, lookupErr := m.storage.GetReservationByIdempotencyKey(ctx)
			if lookupErr != nil {
				return nil, fmt.Errorf("get reservation by idempotency key after a concurrent write: %w", lookupErr)
			}

			return stored, nil
		}

		return nil, fmt.Errorf("persist reservation %v: %w", reservation.ID, err)
	}

	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, event); err != nil {
			m.l.LogErrorf("Could not publish event %v for reservation %v: %v", event.ID, reservation.ID, err.Error())
		}
	}

	return reservation, nil
}

func (m *Manager) persist(ctx context.Context, reservation *Reservation, event *Event) (err error) {
	ctx, err = m.storage.BeginTransaction(ctx, "READ COMMITTED")
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := m.storage.RollbackTransaction(ctx); rbErr != nil {
				m.l.LogErrorf("Could not rollback booking transaction after panic %v", p)
			}

			m.l.LogInfo("Transaction has been roll backed after panic")

			panic(p)
		}

		if err != nil {
			if rbErr := m.storage.RollbackTransaction(ctx); rbErr != nil {
				m.l.LogErrorf("Could not rollback booking transaction after error %v", rbErr.Error())
			}

			m.l.LogInfo("Transaction has been roll backed after error")

			return
		}

		if err = m.storage.CommitTransaction(ctx); err != nil {
			m.l.LogErrorf("Could not commit booking transaction, err %v", err.Error())

			err = fmt.Errorf("commit transaction: %w", err)

			return
		}

		m.l.LogInfo("Transaction has been committed")
	}()

	if err = m.storage.SaveReservation(ctx, reservation); err != nil {
		return fmt.Errorf("save reservation to storage: %w", err)
	}

	if err = m.storage.SaveEvent(ctx, event); err != nil {
		return fmt.Errorf("save event to storage: %w", err)
	}

	return nil
}
