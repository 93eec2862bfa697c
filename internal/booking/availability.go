package booking

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type Reason string

const (
	ReasonNone              Reason = "NONE"
	ReasonRoomUnavailable   Reason = "ROOM_UNAVAILABLE"
	ReasonCapacityExceeded  Reason = "CAPACITY_EXCEEDED"
	ReasonDateConflict      Reason = "DATE_CONFLICT"
	ReasonProgramNotFound   Reason = "PROGRAM_NOT_FOUND"
	ReasonInsufficientStock Reason = "INSUFFICIENT_STOCK"
	ReasonCheckError        Reason = "CHECK_ERROR"
)

type ProgramConflict struct {
	ProgramID string  `json:"program_id"`
	Reason    Reason  `json:"reason"`
	Details   Details `json:"details"`
}

type Details struct {
	AvailableStock          *int              `json:"available_stock,omitempty"`
	MaxParticipants         *int              `json:"max_participants,omitempty"`
	ConflictingReservations int               `json:"conflicting_reservations,omitempty"`
	Conflicts               []ProgramConflict `json:"conflicts,omitempty"`
	Error                   string            `json:"error,omitempty"`
}

type Verdict struct {
	Available bool    `json:"available"`
	Reason    Reason  `json:"reason"`
	Room      *Room   `json:"room,omitempty"`
	Details   Details `json:"details"`
}

func unavailable(reason Reason) Verdict {
	//nolint:exhaustruct
	return Verdict{Available: false, Reason: reason}
}

func checkError(err error) Verdict {
	v := unavailable(ReasonCheckError)
	v.Details.Error = err.Error()

	return v
}

type Catalog interface {
	GetRoomsByType(ctx context.Context, roomType string) ([]Room, error)
	// GetProgramByID returns ErrRecordNotFound when the program does not exist.
	GetProgramByID(ctx context.Context, id string) (*Program, error)
}

type ReservationLookup interface {
	FindOverlapping(
		ctx context.Context,
		roomID string,
		checkIn, checkOut time.Time,
		statuses []Status,
	) ([]ExistingReservation, error)
	SumBookedQuantity(ctx context.Context, programID string, date time.Time, timeSlot string) (int, error)
}

type Checker struct {
	catalog            Catalog
	reservations       ReservationLookup
	programConcurrency int
}

func NewChecker(catalog Catalog, reservations ReservationLookup, programConcurrency int) *Checker {
	if programConcurrency < 1 {
		programConcurrency = 1
	}

	return &Checker{
		catalog:            catalog,
		reservations:       reservations,
		programConcurrency: programConcurrency,
	}
}

// CheckAvailability evaluates the room first and the programs only when the
// room is available. The result is advisory: stores re-check at write time.
func (c *Checker) CheckAvailability(ctx context.Context, req Request) Verdict {
	verdict := Verdict{Available: true, Reason: ReasonNone} //nolint:exhaustruct

	if req.IsRoomBooking() {
		verdict = c.checkRoom(ctx, req)
		if !verdict.Available {
			annotate(ctx, verdict)

			return verdict
		}
	}

	if conflicts := c.checkPrograms(ctx, req); len(conflicts) > 0 {
		room := verdict.Room
		verdict = unavailable(conflicts[0].Reason)
		verdict.Room = room
		verdict.Details.Conflicts = conflicts
	}

	annotate(ctx, verdict)

	return verdict
}

func annotate(ctx context.Context, v Verdict) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Bool("booking.available", v.Available),
		attribute.String("booking.reason", string(v.Reason)),
	)
}

func (c *Checker) checkRoom(ctx context.Context, req Request) Verdict {
	rooms, err := c.catalog.GetRoomsByType(ctx, req.RoomType)
	if err != nil {
		return checkError(err)
	}

	if len(rooms) == 0 {
		return unavailable(ReasonRoomUnavailable)
	}

	party := req.PartySize()
	candidates := make([]Room, 0, len(rooms))

	for _, room := range rooms {
		if room.MaxGuests >= party {
			candidates = append(candidates, room)
		}
	}

	if len(candidates) == 0 {
		return unavailable(ReasonCapacityExceeded)
	}

	var (
		lookupErr   error
		conflicting int
	)

	for _, room := range candidates {
		existing, err := c.reservations.FindOverlapping(ctx, room.ID, req.CheckIn, req.CheckOut, ActiveStatuses)
		if err != nil {
			lookupErr = errors.Join(lookupErr, err)

			continue
		}

		if len(existing) == 0 {
			//nolint:exhaustruct
			return Verdict{Available: true, Reason: ReasonNone, Room: &room}
		}

		conflicting += len(existing)
	}

	if lookupErr != nil {
		return checkError(lookupErr)
	}

	v := unavailable(ReasonDateConflict)
	v.Details.ConflictingReservations = conflicting

	return v
}

// checkPrograms evaluates every selection independently; one failing lookup
// does not stop the others from being checked.
func (c *Checker) checkPrograms(ctx context.Context, req Request) []ProgramConflict {
	if len(req.Programs) == 0 {
		return nil
	}

	results := make([]*ProgramConflict, len(req.Programs))

	var g errgroup.Group

	g.SetLimit(c.programConcurrency)

	for i, sel := range req.Programs {
		g.Go(func() error {
			results[i] = c.checkProgram(ctx, sel, req.PartySize())

			return nil
		})
	}

	_ = g.Wait()

	var conflicts []ProgramConflict

	for _, r := range results {
		if r != nil {
			conflicts = append(conflicts, *r)
		}
	}

	return conflicts
}

func (c *Checker) checkProgram(ctx context.Context, sel ProgramSelection, party int) *ProgramConflict {
	conflict := func(reason Reason, details Details) *ProgramConflict {
		return &ProgramConflict{ProgramID: sel.ProgramID, Reason: reason, Details: details}
	}

	program, err := c.catalog.GetProgramByID(ctx, sel.ProgramID)
	if errors.Is(err, ErrRecordNotFound) {
		return conflict(ReasonProgramNotFound, Details{}) //nolint:exhaustruct
	}

	if err != nil {
		return conflict(ReasonCheckError, Details{Error: err.Error()}) //nolint:exhaustruct
	}

	if program == nil || !program.Available {
		return conflict(ReasonProgramNotFound, Details{}) //nolint:exhaustruct
	}

	// A slot the program does not run is treated like a missing program.
	if sel.TimeSlot != "" && len(program.TimeSlots) > 0 && !slices.Contains(program.TimeSlots, sel.TimeSlot) {
		return conflict(ReasonProgramNotFound, Details{}) //nolint:exhaustruct
	}

	if program.MaxParticipants > 0 && party > program.MaxParticipants {
		maxParticipants := program.MaxParticipants

		return conflict(ReasonCapacityExceeded, Details{MaxParticipants: &maxParticipants}) //nolint:exhaustruct
	}

	if program.StockQuantity <= 0 {
		return nil
	}

	booked, err := c.reservations.SumBookedQuantity(ctx, sel.ProgramID, sel.Date, sel.TimeSlot)
	if err != nil {
		return conflict(ReasonCheckError, Details{Error: err.Error()}) //nolint:exhaustruct
	}

	availableStock := program.StockQuantity - booked
	if availableStock < sel.RequestedQuantity() {
		availableStock = max(availableStock, 0)

		return conflict(ReasonInsufficientStock, Details{AvailableStock: &availableStock}) //nolint:exhaustruct
	}

	return nil
}
