package booking_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/avstrong/pension/internal/booking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLookup = errors.New("lookup failed")

type fakeCatalog struct {
	rooms    map[string][]booking.Room
	programs map[string]booking.Program
	roomsErr error
	failing  map[string]bool
}

func (c *fakeCatalog) GetRoomsByType(_ context.Context, roomType string) ([]booking.Room, error) {
	if c.roomsErr != nil {
		return nil, c.roomsErr
	}

	return c.rooms[roomType], nil
}

func (c *fakeCatalog) GetProgramByID(_ context.Context, id string) (*booking.Program, error) {
	if c.failing[id] {
		return nil, errLookup
	}

	p, ok := c.programs[id]
	if !ok {
		return nil, booking.ErrRecordNotFound
	}

	return &p, nil
}

type fakeLookup struct {
	mu       sync.Mutex
	existing []booking.ExistingReservation
	booked   map[string]int
	failing  map[string]bool
	queried  []string
}

func (l *fakeLookup) FindOverlapping(
	_ context.Context,
	roomID string,
	checkIn, checkOut time.Time,
	statuses []booking.Status,
) ([]booking.ExistingReservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.queried = append(l.queried, roomID)

	if l.failing[roomID] {
		return nil, errLookup
	}

	var out []booking.ExistingReservation

	for _, r := range l.existing {
		if r.RoomID == roomID && slices.Contains(statuses, r.Status) &&
			booking.Overlaps(r.CheckIn, r.CheckOut, checkIn, checkOut) {
			out = append(out, r)
		}
	}

	return out, nil
}

func (l *fakeLookup) SumBookedQuantity(_ context.Context, programID string, _ time.Time, _ string) (int, error) {
	if l.failing[programID] {
		return 0, errLookup
	}

	return l.booked[programID], nil
}

func newCatalog() *fakeCatalog {
	//nolint:exhaustruct
	return &fakeCatalog{
		rooms: map[string][]booking.Room{
			"standard": {
				{ID: "std-101", Type: "standard", MaxGuests: 2},
				{ID: "std-102", Type: "standard", MaxGuests: 4},
			},
		},
		programs: map[string]booking.Program{
			"farm-experience": {
				ID: "farm-experience", Available: true, MaxParticipants: 10, StockQuantity: 5, TimeSlots: []string{"10:00", "14:00"},
			},
			"bbq-night":       {ID: "bbq-night", Available: true},
			"river-rafting":   {ID: "river-rafting", Available: false},
		},
	}
}

func existing(id, roomID string, in, out time.Time, status booking.Status) booking.ExistingReservation {
	return booking.ExistingReservation{ID: id, RoomID: roomID, CheckIn: in, CheckOut: out, Status: status}
}

func TestCheckAvailabilityFiltersByCapacity(t *testing.T) {
	lookup := &fakeLookup{} //nolint:exhaustruct
	checker := booking.NewChecker(newCatalog(), lookup, 2)

	req := roomRequest()
	req.Adults = 3

	v := checker.CheckAvailability(context.Background(), req)

	require.True(t, v.Available)
	assert.Equal(t, booking.ReasonNone, v.Reason)
	require.NotNil(t, v.Room)
	assert.Equal(t, "std-102", v.Room.ID)
	assert.Equal(t, []string{"std-102"}, lookup.queried)
}

func TestCheckAvailabilityRoomVerdicts(t *testing.T) {
	tests := []struct {
		name     string
		adults   int
		roomType string
		existing []booking.ExistingReservation
		reason   booking.Reason
		roomID   string
	}{
		{name: "first free room", adults: 2, roomType: "standard", reason: booking.ReasonNone, roomID: "std-101"},
		{name: "no rooms of type", adults: 2, roomType: "suite", reason: booking.ReasonRoomUnavailable},
		{name: "party too large", adults: 5, roomType: "standard", reason: booking.ReasonCapacityExceeded},
		{
			name:     "falls through to next room",
			adults:   2,
			roomType: "standard",
			existing: []booking.ExistingReservation{
				existing("r1", "std-101", date(2024, 7, 2), date(2024, 7, 4), booking.StatusConfirmed),
			},
			reason: booking.ReasonNone,
			roomID: "std-102",
		},
		{
			name:     "boundary day conflicts",
			adults:   3,
			roomType: "standard",
			existing: []booking.ExistingReservation{
				existing("r1", "std-102", date(2024, 7, 3), date(2024, 7, 5), booking.StatusPending),
			},
			reason: booking.ReasonDateConflict,
		},
		{
			name:     "cancelled reservations are ignored",
			adults:   3,
			roomType: "standard",
			existing: []booking.ExistingReservation{
				existing("r1", "std-102", date(2024, 7, 1), date(2024, 7, 3), booking.StatusCancelled),
			},
			reason: booking.ReasonNone,
			roomID: "std-102",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := booking.NewChecker(newCatalog(), &fakeLookup{existing: tt.existing}, 1) //nolint:exhaustruct

			req := roomRequest()
			req.RoomType = tt.roomType
			req.Adults = tt.adults

			v := checker.CheckAvailability(context.Background(), req)

			assert.Equal(t, tt.reason, v.Reason)
			assert.Equal(t, tt.reason == booking.ReasonNone, v.Available)

			if tt.roomID != "" {
				require.NotNil(t, v.Room)
				assert.Equal(t, tt.roomID, v.Room.ID)
			}
		})
	}
}

func TestCheckAvailabilityDateConflictCountsReservations(t *testing.T) {
	lookup := &fakeLookup{ //nolint:exhaustruct
		existing: []booking.ExistingReservation{
			existing("r1", "std-101", date(2024, 6, 30), date(2024, 7, 1), booking.StatusConfirmed),
			existing("r2", "std-102", date(2024, 7, 2), date(2024, 7, 3), booking.StatusPending),
			existing("r3", "std-102", date(2024, 7, 3), date(2024, 7, 9), booking.StatusConfirmed),
		},
	}

	v := booking.NewChecker(newCatalog(), lookup, 1).CheckAvailability(context.Background(), roomRequest())

	assert.False(t, v.Available)
	assert.Equal(t, booking.ReasonDateConflict, v.Reason)
	assert.Equal(t, 3, v.Details.ConflictingReservations)
}

func TestCheckAvailabilityLookupErrors(t *testing.T) {
	t.Run("catalog", func(t *testing.T) {
		catalog := newCatalog()
		catalog.roomsErr = errLookup

		v := booking.NewChecker(catalog, &fakeLookup{}, 1).CheckAvailability(context.Background(), roomRequest()) //nolint:exhaustruct

		assert.False(t, v.Available)
		assert.Equal(t, booking.ReasonCheckError, v.Reason)
		assert.Contains(t, v.Details.Error, errLookup.Error())
	})

	t.Run("every candidate fails", func(t *testing.T) {
		lookup := &fakeLookup{failing: map[string]bool{"std-101": true, "std-102": true}} //nolint:exhaustruct

		v := booking.NewChecker(newCatalog(), lookup, 1).CheckAvailability(context.Background(), roomRequest())

		assert.Equal(t, booking.ReasonCheckError, v.Reason)
	})

	t.Run("another candidate is free", func(t *testing.T) {
		lookup := &fakeLookup{failing: map[string]bool{"std-101": true}} //nolint:exhaustruct

		v := booking.NewChecker(newCatalog(), lookup, 1).CheckAvailability(context.Background(), roomRequest())

		require.True(t, v.Available)
		assert.Equal(t, "std-102", v.Room.ID)
	})

	t.Run("failed candidate with conflict elsewhere", func(t *testing.T) {
		lookup := &fakeLookup{ //nolint:exhaustruct
			failing: map[string]bool{"std-101": true},
			existing: []booking.ExistingReservation{
				existing("r1", "std-102", date(2024, 7, 1), date(2024, 7, 2), booking.StatusConfirmed),
			},
		}

		v := booking.NewChecker(newCatalog(), lookup, 1).CheckAvailability(context.Background(), roomRequest())

		assert.Equal(t, booking.ReasonCheckError, v.Reason)
	})
}

func programRequest(selections ...booking.ProgramSelection) booking.Request {
	//nolint:exhaustruct
	return booking.Request{Adults: 2, Programs: selections}
}

func TestCheckAvailabilityInsufficientStock(t *testing.T) {
	lookup := &fakeLookup{booked: map[string]int{"farm-experience": 5}} //nolint:exhaustruct

	req := programRequest(booking.ProgramSelection{ProgramID: "farm-experience", Date: date(2024, 7, 2), Quantity: 1}) //nolint:exhaustruct

	v := booking.NewChecker(newCatalog(), lookup, 2).CheckAvailability(context.Background(), req)

	assert.False(t, v.Available)
	assert.Equal(t, booking.ReasonInsufficientStock, v.Reason)
	require.Len(t, v.Details.Conflicts, 1)
	require.NotNil(t, v.Details.Conflicts[0].Details.AvailableStock)
	assert.Equal(t, 0, *v.Details.Conflicts[0].Details.AvailableStock)
}

func TestCheckAvailabilityStockBoundary(t *testing.T) {
	lookup := &fakeLookup{booked: map[string]int{"farm-experience": 3}} //nolint:exhaustruct
	checker := booking.NewChecker(newCatalog(), lookup, 2)

	fits := programRequest(booking.ProgramSelection{ProgramID: "farm-experience", Date: date(2024, 7, 2), Quantity: 2}) //nolint:exhaustruct
	assert.True(t, checker.CheckAvailability(context.Background(), fits).Available)

	over := programRequest(booking.ProgramSelection{ProgramID: "farm-experience", Date: date(2024, 7, 2), Quantity: 3}) //nolint:exhaustruct
	v := checker.CheckAvailability(context.Background(), over)
	require.Len(t, v.Details.Conflicts, 1)
	assert.Equal(t, 2, *v.Details.Conflicts[0].Details.AvailableStock)
}

func TestCheckAvailabilityProgramVerdicts(t *testing.T) {
	tests := []struct {
		name      string
		programID string
		adults    int
		reason    booking.Reason
	}{
		{name: "unknown program", programID: "kayak", adults: 2, reason: booking.ReasonProgramNotFound},
		{name: "unavailable program", programID: "river-rafting", adults: 2, reason: booking.ReasonProgramNotFound},
		{name: "too many participants", programID: "farm-experience", adults: 11, reason: booking.ReasonCapacityExceeded},
		{name: "unlimited stock", programID: "bbq-night", adults: 30, reason: booking.ReasonNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := programRequest(booking.ProgramSelection{ProgramID: tt.programID, Date: date(2024, 7, 2)}) //nolint:exhaustruct
			req.Adults = tt.adults

			v := booking.NewChecker(newCatalog(), &fakeLookup{}, 2).CheckAvailability(context.Background(), req) //nolint:exhaustruct

			assert.Equal(t, tt.reason, v.Reason)
		})
	}
}

func TestCheckAvailabilityTimeSlots(t *testing.T) {
	tests := []struct {
		name      string
		programID string
		slot      string
		reason    booking.Reason
	}{
		{name: "offered slot", programID: "farm-experience", slot: "14:00", reason: booking.ReasonNone},
		{name: "any slot", programID: "farm-experience", slot: "", reason: booking.ReasonNone},
		{name: "slot not offered", programID: "farm-experience", slot: "23:00", reason: booking.ReasonProgramNotFound},
		{name: "program without slots", programID: "bbq-night", slot: "19:00", reason: booking.ReasonNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			//nolint:exhaustruct
			req := programRequest(booking.ProgramSelection{ProgramID: tt.programID, Date: date(2024, 7, 2), TimeSlot: tt.slot})

			v := booking.NewChecker(newCatalog(), &fakeLookup{}, 1).CheckAvailability(context.Background(), req) //nolint:exhaustruct

			assert.Equal(t, tt.reason, v.Reason)
			assert.Equal(t, tt.reason == booking.ReasonNone, v.Available)
		})
	}
}

func TestCheckAvailabilityAggregatesProgramConflicts(t *testing.T) {
	lookup := &fakeLookup{booked: map[string]int{"farm-experience": 5}} //nolint:exhaustruct

	//nolint:exhaustruct
	req := programRequest(
		booking.ProgramSelection{ProgramID: "kayak", Date: date(2024, 7, 2)},
		booking.ProgramSelection{ProgramID: "bbq-night", Date: date(2024, 7, 2)},
		booking.ProgramSelection{ProgramID: "farm-experience", Date: date(2024, 7, 2)},
	)

	v := booking.NewChecker(newCatalog(), lookup, 3).CheckAvailability(context.Background(), req)

	assert.False(t, v.Available)
	assert.Equal(t, booking.ReasonProgramNotFound, v.Reason)

	reasons := make([]booking.Reason, 0, len(v.Details.Conflicts))
	for _, c := range v.Details.Conflicts {
		reasons = append(reasons, c.Reason)
	}

	assert.Equal(t, []booking.Reason{
		booking.ReasonProgramNotFound,
		booking.ReasonInsufficientStock,
	}, reasons)
}

func TestCheckAvailabilityProgramLookupError(t *testing.T) {
	catalog := newCatalog()
	catalog.failing = map[string]bool{"farm-experience": true}

	req := programRequest(booking.ProgramSelection{ProgramID: "farm-experience", Date: date(2024, 7, 2)}) //nolint:exhaustruct

	v := booking.NewChecker(catalog, &fakeLookup{}, 1).CheckAvailability(context.Background(), req) //nolint:exhaustruct

	assert.Equal(t, booking.ReasonCheckError, v.Reason)
	require.Len(t, v.Details.Conflicts, 1)
	assert.Equal(t, errLookup.Error(), v.Details.Conflicts[0].Details.Error)
}

func TestCheckAvailabilityRoomAndPrograms(t *testing.T) {
	lookup := &fakeLookup{booked: map[string]int{"farm-experience": 5}} //nolint:exhaustruct
	checker := booking.NewChecker(newCatalog(), lookup, 2)

	req := roomRequest()
	req.Programs = []booking.ProgramSelection{{ProgramID: "farm-experience", Date: date(2024, 7, 2)}} //nolint:exhaustruct

	v := checker.CheckAvailability(context.Background(), req)

	assert.False(t, v.Available)
	assert.Equal(t, booking.ReasonInsufficientStock, v.Reason)
	require.NotNil(t, v.Room)
	assert.Equal(t, "std-101", v.Room.ID)

	req.RoomType = "suite"
	v = checker.CheckAvailability(context.Background(), req)

	assert.Equal(t, booking.ReasonRoomUnavailable, v.Reason)
	assert.Empty(t, v.Details.Conflicts)
}
