package numbering

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newCounterDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE invoice_counters (
		key TEXT PRIMARY KEY,
		next BIGINT NOT NULL
	)`).Error)
	return db
}

func TestNextStartsAtOneAndIncrements(t *testing.T) {
	db := newCounterDB(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 1; i <= 250; i++ {
		var number string
		err := db.Transaction(func(tx *gorm.DB) error {
			var err error
			number, err = Next(ctx, tx, 2025)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("WM-2025-%06d", i), number)
		assert.False(t, seen[number], "number %s minted twice", number)
		seen[number] = true
	}
}

func TestNextKeepsYearsIndependent(t *testing.T) {
	db := newCounterDB(t)
	ctx := context.Background()

	mint := func(year int) string {
		var number string
		err := db.Transaction(func(tx *gorm.DB) error {
			var err error
			number, err = Next(ctx, tx, year)
			return err
		})
		require.NoError(t, err)
		return number
	}

	assert.Equal(t, "WM-2025-000001", mint(2025))
	assert.Equal(t, "WM-2025-000002", mint(2025))
	assert.Equal(t, "WM-2026-000001", mint(2026))
	assert.Equal(t, "WM-2025-000003", mint(2025))
}

func TestNextRollbackReleasesReservation(t *testing.T) {
	db := newCounterDB(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := Next(ctx, tx, 2025)
		require.NoError(t, err)
		return fmt.Errorf("force rollback")
	})
	require.Error(t, err)

	var number string
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		number, err = Next(ctx, tx, 2025)
		return err
	})
	require.NoError(t, err)
	// The rolled-back reservation is released with the transaction, so
	// the next mint starts over at one.
	assert.Equal(t, "WM-2025-000001", number)
}

func TestFormatZeroPads(t *testing.T) {
	assert.Equal(t, "WM-0987-000042", Format(987, 42))
	assert.Equal(t, "WM-2025-123456", Format(2025, 123456))
}
