package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bollette/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "bollette.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func testBill(id string, billType core.BillType, year int, confirmed bool) core.Bill {
	unit := core.Kilowatt
	if billType == core.Gas {
		unit = core.CubicMeter
	}
	return core.Bill{
		ID:          id,
		BillType:    billType,
		Period:      "2024-03",
		Cost:        decimal.NewFromInt(100),
		Consumption: decimal.NewFromInt(50),
		Unit:        unit,
		Year:        year,
		Month:       3,
		Confirmed:   confirmed,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestCreateAndGetBill(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	want := testBill("b-1", core.Energy, 2024, false)
	want.Notes = "Confidence: 92.0%"
	require.NoError(t, repo.CreateBill(ctx, want))

	got, err := repo.GetBill(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, core.Energy, got.BillType)
	assert.Equal(t, "2024-03", got.Period)
	assert.True(t, got.Cost.Equal(decimal.NewFromInt(100)))
	assert.True(t, got.Consumption.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, core.Kilowatt, got.Unit)
	assert.Equal(t, 2024, got.Year)
	assert.Equal(t, 3, got.Month)
	assert.Equal(t, "Confidence: 92.0%", got.Notes)
	assert.False(t, got.Confirmed)
	assert.WithinDuration(t, want.CreatedAt, got.CreatedAt, time.Second)
}

func TestGetBillNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetBill(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestBillWithoutMonthRoundTrips(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	b := testBill("b-nm", core.Gas, 2022, false)
	b.Month = 0
	b.Notes = ""
	require.NoError(t, repo.CreateBill(ctx, b))

	got, err := repo.GetBill(ctx, "b-nm")
	require.NoError(t, err)
	assert.Zero(t, got.Month)
	assert.Empty(t, got.Notes)
}

func TestListPendingAndConfirmed(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p1 := testBill("p-1", core.Energy, 2024, false)
	p1.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	p2 := testBill("p-2", core.Gas, 2024, false)
	p2.CreatedAt = time.Now().UTC().Add(-1 * time.Hour)
	c1 := testBill("c-1", core.Energy, 2024, true)
	c2 := testBill("c-2", core.Energy, 2023, true)
	for _, b := range []core.Bill{p1, p2, c1, c2} {
		require.NoError(t, repo.CreateBill(ctx, b))
	}

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "p-2", pending[0].ID) // newest first
	assert.Equal(t, "p-1", pending[1].ID)

	confirmed, err := repo.ListConfirmed(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, confirmed, 2)

	confirmed2024, err := repo.ListConfirmed(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, confirmed2024, 1)
	assert.Equal(t, "c-1", confirmed2024[0].ID)
}

func TestListConfirmedByType(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateBill(ctx, testBill("e-1", core.Energy, 2024, true)))
	require.NoError(t, repo.CreateBill(ctx, testBill("e-2", core.Energy, 2024, false)))
	require.NoError(t, repo.CreateBill(ctx, testBill("g-1", core.Gas, 2024, true)))
	require.NoError(t, repo.CreateBill(ctx, testBill("e-3", core.Energy, 2023, true)))

	energy, err := repo.ListConfirmedByType(ctx, core.Energy, 2024)
	require.NoError(t, err)
	require.Len(t, energy, 1)
	assert.Equal(t, "e-1", energy[0].ID)

	gas, err := repo.ListConfirmedByType(ctx, core.Gas, 2024)
	require.NoError(t, err)
	assert.Len(t, gas, 1)
}

func TestSetConfirmed(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateBill(ctx, testBill("b-1", core.Energy, 2024, false)))

	require.NoError(t, repo.SetConfirmed(ctx, "b-1"))
	got, err := repo.GetBill(ctx, "b-1")
	require.NoError(t, err)
	assert.True(t, got.Confirmed)

	// Idempotent on an already-confirmed bill.
	require.NoError(t, repo.SetConfirmed(ctx, "b-1"))

	assert.ErrorIs(t, repo.SetConfirmed(ctx, "missing"), core.ErrNotFound)
}

func TestDeleteBill(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateBill(ctx, testBill("b-1", core.Energy, 2024, false)))
	require.NoError(t, repo.DeleteBill(ctx, "b-1"))

	_, err := repo.GetBill(ctx, "b-1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.ErrorIs(t, repo.DeleteBill(ctx, "b-1"), core.ErrNotFound)
}

func TestGetOrCreateYearlyStats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	stats, err := repo.GetOrCreateYearlyStats(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, 2024, stats.Year)
	assert.True(t, stats.EnergyTotalCost.IsZero())
	assert.Zero(t, stats.EnergyBillCount)

	// Second call returns the same lazily created row.
	again, err := repo.GetOrCreateYearlyStats(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, 2024, again.Year)
	assert.True(t, again.CombinedTotalCost.IsZero())
}

func TestUpdateYearlyStatsOverwrites(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetOrCreateYearlyStats(ctx, 2024)
	require.NoError(t, err)

	s := core.NewYearlyStats(2024)
	s.EnergyTotalCost = decimal.RequireFromString("100.50")
	s.EnergyTotalConsumed = decimal.NewFromInt(50)
	s.EnergyBillCount = 1
	s.GasTotalCost = decimal.RequireFromString("60.25")
	s.GasTotalConsumed = decimal.NewFromInt(20)
	s.GasBillCount = 1
	s.CombinedTotalCost = decimal.RequireFromString("160.75")
	require.NoError(t, repo.UpdateYearlyStats(ctx, s))

	got, err := repo.GetOrCreateYearlyStats(ctx, 2024)
	require.NoError(t, err)
	assert.True(t, got.EnergyTotalCost.Equal(decimal.RequireFromString("100.50")))
	assert.True(t, got.CombinedTotalCost.Equal(decimal.RequireFromString("160.75")))
	assert.Equal(t, 1, got.EnergyBillCount)
	assert.Equal(t, 1, got.GasBillCount)

	// A later overwrite replaces every derived field, including back to zero.
	require.NoError(t, repo.UpdateYearlyStats(ctx, core.NewYearlyStats(2024)))
	got, err = repo.GetOrCreateYearlyStats(ctx, 2024)
	require.NoError(t, err)
	assert.True(t, got.EnergyTotalCost.IsZero())
	assert.Zero(t, got.EnergyBillCount)
}
