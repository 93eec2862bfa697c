package migration

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/avstrong/pension/internal/booking"
	"github.com/avstrong/pension/internal/logger"
)

type storage interface {
	BeginTransaction(ctx context.Context, level string) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
	SaveRooms(ctx context.Context, rooms []booking.Room) error
	SavePrograms(ctx context.Context, programs []booking.Program) error
	SaveReservation(ctx context.Context, reservation *booking.Reservation) error
}

func date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func Rooms() []booking.Room {
	return []booking.Room{
		{ID: "std-101", Type: "standard", Name: "Standard 101", MaxGuests: 2},
		{ID: "std-102", Type: "standard", Name: "Standard 102", MaxGuests: 4},
		{ID: "fam-201", Type: "family", Name: "Family 201", MaxGuests: 6},
	}
}

func Programs() []booking.Program {
	return []booking.Program{
		{
			ID:              "farm-experience",
			Name:            "Farm experience",
			Available:       true,
			MaxParticipants: 10,
			StockQuantity:   5,
			TimeSlots:       []string{"10:00", "14:00"},
		},
		{
			ID:        "bbq-night",
			Name:      "BBQ night",
			Available: true,
		},
		{
			ID:        "river-rafting",
			Name:      "River rafting",
			Available: false,
		},
	}
}

// Reservations returns existing bookings, including a cancelled one that must not block anything.
func Reservations() []*booking.Reservation {
	//nolint:exhaustruct
	return []*booking.Reservation{
		{
			ID:       "seed-1",
			Guest:    booking.Guest{Name: "Kim", Email: "kim@example.com"},
			RoomID:   "std-101",
			RoomType: "standard",
			CheckIn:  date(2024, 7, 1),
			CheckOut: date(2024, 7, 3),
			Adults:   2,
			Status:   booking.StatusConfirmed,
		},
		{
			ID:       "seed-2",
			Guest:    booking.Guest{Name: "Lee", Email: "lee@example.com"},
			RoomID:   "fam-201",
			RoomType: "family",
			CheckIn:  date(2024, 7, 1),
			CheckOut: date(2024, 7, 5),
			Adults:   4,
			Status:   booking.StatusCancelled,
		},
		{
			ID:     "seed-3",
			Guest:  booking.Guest{Name: "Park", Email: "park@example.com"},
			Adults: 3,
			Programs: []booking.ProgramSelection{
				{ProgramID: "farm-experience", Date: date(2024, 7, 2), TimeSlot: "10:00", Quantity: 3},
			},
			Status: booking.StatusPending,
		},
	}
}

// Up seeds the catalog and a few existing reservations in one transaction.
func Up(ctx context.Context, l *logger.Logger, storage storage) (err error) {
	ctx, err = storage.BeginTransaction(ctx, "")
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := storage.RollbackTransaction(ctx); rbErr != nil {
				l.LogErrorf("Could not rollback migration transaction after panic %v", p)
			}

			l.LogInfo("Migration transaction has been roll backed after panic")

			panic(p)
		}

		if err != nil {
			if rbErr := storage.RollbackTransaction(ctx); rbErr != nil {
				l.LogErrorf("Could not rollback migration transaction after error %v", rbErr.Error())
			}

			l.LogInfo("Migration transaction has been roll backed after error")

			return
		}

		if err = storage.CommitTransaction(ctx); err != nil {
			l.LogErrorf("Could not commit migration transaction, err %v", err.Error())

			return
		}

		l.LogInfo("Migration transaction has been committed")
	}()

	if err = storage.SaveRooms(ctx, Rooms()); err != nil {
		return fmt.Errorf("save rooms to storage: %w", err)
	}

	if err = storage.SavePrograms(ctx, Programs()); err != nil {
		return fmt.Errorf("save programs to storage: %w", err)
	}

	for _, reservation := range Reservations() {
		if err = storage.SaveReservation(ctx, reservation); err != nil {
			return fmt.Errorf("save reservation %v to storage: %w", reservation.ID, err)
		}
	}

	return nil
}

// RoomTypes lists the distinct room types of the seed catalog.
func RoomTypes() []string {
	var types []string

	for _, room := range Rooms() {
		if !slices.Contains(types, room.Type) {
			types = append(types, room.Type)
		}
	}

	return types
}

func ProgramIDs() []string {
	programs := Programs()

	ids := make([]string, 0, len(programs))
	for _, p := range programs {
		ids = append(ids, p.ID)
	}

	return ids
}
