package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the statuses that hold a room or consume program stock.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

type Room struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	MaxGuests int    `json:"max_guests"`
}

type Program struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Available       bool     `json:"available"`
	MaxParticipants int      `json:"max_participants,omitempty"`
	StockQuantity   int      `json:"stock_quantity,omitempty"`
	TimeSlots       []string `json:"time_slots,omitempty"`
}

type ExistingReservation struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"room_id"`
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
	Status   Status    `json:"status"`
}

type ProgramBooking struct {
	ReservationID string    `json:"reservation_id"`
	ProgramID     string    `json:"program_id"`
	Date          time.Time `json:"date"`
	TimeSlot      string    `json:"time_slot,omitempty"`
	Quantity      int       `json:"quantity"`
	Status        Status    `json:"status"`
}

type ProgramSelection struct {
	ProgramID string    `json:"program_id"`
	Date      time.Time `json:"date"`
	TimeSlot  string    `json:"time_slot,omitempty"`
	Quantity  int       `json:"quantity,omitempty"`
}

// RequestedQuantity returns the quantity with the default of one applied.
func (p ProgramSelection) RequestedQuantity() int {
	if p.Quantity <= 0 {
		return 1
	}

	return p.Quantity
}

// Request is built per booking attempt and owns no persistent state.
type Request struct {
	RoomType string             `json:"room_type,omitempty"`
	CheckIn  time.Time          `json:"check_in"`
	CheckOut time.Time          `json:"check_out"`
	Adults   int                `json:"adults"`
	Children int                `json:"children"`
	Options  Options            `json:"options,omitempty"`
	Programs []ProgramSelection `json:"programs,omitempty"`
}

func (r *Request) PartySize() int {
	return r.Adults + r.Children
}

func (r *Request) IsRoomBooking() bool {
	return r.RoomType != ""
}

// Nights is ceil((checkOut-checkIn)/day); zero when the range is empty or inverted.
func (r *Request) Nights() int {
	d := r.CheckOut.Sub(r.CheckIn)
	if d <= 0 {
		return 0
	}

	return int((d + day - 1) / day)
}

const day = 24 * time.Hour

type Rate struct {
	BasePrice      int64 `json:"base_price"`
	BaseCapacity   int   `json:"base_capacity"`
	ExtraPersonFee int64 `json:"extra_person_fee"`
}

type ShuttleRate struct {
	Fee            int64 `json:"fee"`
	PriceOnRequest bool  `json:"price_on_request"`
}

// RateTable is read-only while a price is computed.
type RateTable struct {
	Rooms              map[string]Rate  `json:"rooms"`
	Programs           map[string]Rate  `json:"programs"`
	BBQTiers           map[string]int64 `json:"bbq_tiers"`
	BreakfastUnitPrice int64            `json:"breakfast_unit_price"`
	Shuttle            ShuttleRate      `json:"shuttle"`
}

type Limits struct {
	MaxQuantity        map[OptionKind]int
	BBQTiers           []string
	MaxProgramQuantity int
}

type LineKind string

const (
	LineBaseStay       LineKind = "base_stay"
	LineProgram        LineKind = "program"
	LineExtraOccupancy LineKind = "extra_occupancy"
	LineBBQ            LineKind = "bbq"
	LineBreakfast      LineKind = "breakfast"
	LineShuttle        LineKind = "shuttle"
)

type LineItem struct {
	Kind           LineKind `json:"kind"`
	Label          string   `json:"label"`
	Quantity       int      `json:"quantity"`
	UnitPrice      int64    `json:"unit_price"`
	Amount         int64    `json:"amount"`
	PriceOnRequest bool     `json:"price_on_request,omitempty"`
}

type PriceBreakdown struct {
	Items []LineItem `json:"items"`
	Total int64      `json:"total"`
}

type Guest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type BookInput struct {
	Guest   Guest   `json:"guest"`
	Request Request `json:"request"`
}

type Reservation struct {
	ID        string             `json:"id"`
	Guest     Guest              `json:"guest"`
	RoomID    string             `json:"room_id,omitempty"`
	RoomType  string             `json:"room_type,omitempty"`
	CheckIn   time.Time          `json:"check_in"`
	CheckOut  time.Time          `json:"check_out"`
	Adults    int                `json:"adults"`
	Children  int                `json:"children"`
	Options   Options            `json:"options,omitempty"`
	Programs  []ProgramSelection `json:"programs,omitempty"`
	Status    Status             `json:"status"`
	Breakdown PriceBreakdown     `json:"breakdown"`
	CreatedAt time.Time          `json:"created_at"`
}

// ProgramBookings expands the reservation into the rows that consume program stock.
func (r *Reservation) ProgramBookings() []ProgramBooking {
	rows := make([]ProgramBooking, 0, len(r.Programs))

	for _, p := range r.Programs {
		rows = append(rows, ProgramBooking{
			ReservationID: r.ID,
			ProgramID:     p.ProgramID,
			Date:          p.Date,
			TimeSlot:      p.TimeSlot,
			Quantity:      p.RequestedQuantity(),
			Status:        r.Status,
		})
	}

	return rows
}

type Quote struct {
	Warnings  Violations      `json:"warnings,omitempty"`
	Verdict   Verdict         `json:"verdict"`
	Breakdown *PriceBreakdown `json:"breakdown,omitempty"`
}

const EventReservationCreated = "reservation.created"

type Event struct {
	ID            uuid.UUID `json:"id"`
	ReservationID string    `json:"reservation_id"`
	Type          string    `json:"type"`
	CreatedAt     time.Time `json:"created_at"`
}

// Overlaps applies the inclusive rule: ranges touching on a boundary day conflict.
func Overlaps(existingIn, existingOut, checkIn, checkOut time.Time) bool {
	return !existingIn.After(checkOut) && !existingOut.Before(checkIn)
}

// SameDay compares calendar dates in UTC.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()

	return ay == by && am == bm && ad == bd
}
