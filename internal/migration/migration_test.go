package migration_test

import (
	"context"
	"testing"
	"time"

	"github.com/avstrong/pension/internal/booking"
	"github.com/avstrong/pension/internal/logger"
	"github.com/avstrong/pension/internal/migration"
	"github.com/avstrong/pension/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpSeedsCatalogAndReservations(t *testing.T) {
	ctx := context.Background()
	db := memory.New(memory.Config{L: logger.Nop()})

	require.NoError(t, migration.Up(ctx, logger.Nop(), db))

	rooms, err := db.GetRoomsByType(ctx, "standard")
	require.NoError(t, err)
	assert.Len(t, rooms, 2)

	program, err := db.GetProgramByID(ctx, "farm-experience")
	require.NoError(t, err)
	assert.Equal(t, 5, program.StockQuantity)

	july := func(d int) time.Time { return time.Date(2024, time.July, d, 0, 0, 0, 0, time.UTC) }

	active, err := db.FindOverlapping(ctx, "fam-201", july(1), july(5), booking.ActiveStatuses)
	require.NoError(t, err)
	assert.Empty(t, active, "the cancelled seed reservation must not be active")

	booked, err := db.SumBookedQuantity(ctx, "farm-experience", july(2), "10:00")
	require.NoError(t, err)
	assert.Equal(t, 3, booked)
}

func TestUpIsRepeatable(t *testing.T) {
	ctx := context.Background()
	db := memory.New(memory.Config{L: logger.Nop()})

	require.NoError(t, migration.Up(ctx, logger.Nop(), db))
	require.NoError(t, migration.Up(ctx, logger.Nop(), db))

	rooms, err := db.GetRoomsByType(ctx, "standard")
	require.NoError(t, err)
	assert.Len(t, rooms, 2)

	booked, err := db.SumBookedQuantity(ctx, "farm-experience", time.Date(2024, time.July, 2, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	assert.Equal(t, 3, booked)
}

func TestCacheKeysCoverSeed(t *testing.T) {
	assert.Equal(t, []string{"standard", "family"}, migration.RoomTypes())
	assert.Equal(t, []string{"farm-experience", "bbq-night", "river-rafting"}, migration.ProgramIDs())
}
