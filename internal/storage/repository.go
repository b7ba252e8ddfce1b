package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"bollette/internal/core"
)

// SQLiteRepository owns the relational representation of bills and yearly stats.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const billColumns = "id, bill_type, period, cost, consumption, unit, year, month, notes, confirmed, created_at"

// CreateBill inserts a new bill row. The caller assigns the id and created_at.
func (r *SQLiteRepository) CreateBill(ctx context.Context, b core.Bill) error {
	month := sql.NullInt64{Int64: int64(b.Month), Valid: b.Month != 0}
	notes := sql.NullString{String: b.Notes, Valid: b.Notes != ""}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bills (`+billColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, string(b.BillType), b.Period, b.Cost.String(), b.Consumption.String(),
		string(b.Unit), b.Year, month, notes, boolToInt(b.Confirmed),
		b.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert bill: %w", err)
	}

	slog.InfoContext(ctx, "Bill saved",
		"id", b.ID,
		"bill_type", b.BillType,
		"year", b.Year,
		"confirmed", b.Confirmed)

	return nil
}

// GetBill returns the bill with the given id, or core.ErrNotFound.
func (r *SQLiteRepository) GetBill(ctx context.Context, id string) (core.Bill, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+billColumns+` FROM bills WHERE id = ?`, id)

	b, err := scanBill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Bill{}, core.ErrNotFound
	}
	if err != nil {
		return core.Bill{}, fmt.Errorf("get bill %s: %w", id, err)
	}
	return b, nil
}

// ListPending returns unconfirmed bills, newest first.
func (r *SQLiteRepository) ListPending(ctx context.Context) ([]core.Bill, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+billColumns+` FROM bills WHERE confirmed = 0 ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list pending bills: %w", err)
	}
	return collectBills(rows)
}

// ListConfirmed returns confirmed bills, newest first. A zero year means all years.
func (r *SQLiteRepository) ListConfirmed(ctx context.Context, year int) ([]core.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE confirmed = 1`
	args := []any{}
	if year != 0 {
		query += ` AND year = ?`
		args = append(args, year)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list confirmed bills: %w", err)
	}
	return collectBills(rows)
}

// ListConfirmedByType returns the confirmed bills of one utility type for a year.
// This is the read the aggregate recomputation is built on.
func (r *SQLiteRepository) ListConfirmedByType(ctx context.Context, billType core.BillType, year int) ([]core.Bill, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+billColumns+` FROM bills WHERE year = ? AND bill_type = ? AND confirmed = 1`,
		year, string(billType))
	if err != nil {
		return nil, fmt.Errorf("list confirmed %s bills for %d: %w", billType, year, err)
	}
	return collectBills(rows)
}

// SetConfirmed marks a bill confirmed. Confirming an already-confirmed bill is a
// no-op that still succeeds.
func (r *SQLiteRepository) SetConfirmed(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE bills SET confirmed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("confirm bill %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("confirm bill %s: %w", id, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// DeleteBill removes a bill row, or returns core.ErrNotFound.
func (r *SQLiteRepository) DeleteBill(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bills WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete bill %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete bill %s: %w", id, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

const statsColumns = `year, energy_total_cost, energy_total_consumed, energy_bill_count,
	gas_total_cost, gas_total_consumed, gas_bill_count, combined_total_cost`

// GetOrCreateYearlyStats returns the stats row for a year, inserting an all-zero
// row on first access.
func (r *SQLiteRepository) GetOrCreateYearlyStats(ctx context.Context, year int) (core.YearlyStats, error) {
	stats, err := r.getYearlyStats(ctx, year)
	if err == nil {
		return stats, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return core.YearlyStats{}, fmt.Errorf("get yearly stats %d: %w", year, err)
	}

	if _, err := r.db.ExecContext(ctx, `INSERT INTO yearly_stats (year) VALUES (?)`, year); err != nil {
		// A concurrent request may have created the row in between.
		if stats, getErr := r.getYearlyStats(ctx, year); getErr == nil {
			return stats, nil
		}
		return core.YearlyStats{}, fmt.Errorf("create yearly stats %d: %w", year, err)
	}

	return core.NewYearlyStats(year), nil
}

// UpdateYearlyStats overwrites every derived field of the year's stats row with
// freshly computed values. Never an increment.
func (r *SQLiteRepository) UpdateYearlyStats(ctx context.Context, s core.YearlyStats) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE yearly_stats SET
			energy_total_cost = ?, energy_total_consumed = ?, energy_bill_count = ?,
			gas_total_cost = ?, gas_total_consumed = ?, gas_bill_count = ?,
			combined_total_cost = ?
		WHERE year = ?`,
		s.EnergyTotalCost.String(), s.EnergyTotalConsumed.String(), s.EnergyBillCount,
		s.GasTotalCost.String(), s.GasTotalConsumed.String(), s.GasBillCount,
		s.CombinedTotalCost.String(), s.Year)
	if err != nil {
		return fmt.Errorf("update yearly stats %d: %w", s.Year, err)
	}
	return nil
}

func (r *SQLiteRepository) getYearlyStats(ctx context.Context, year int) (core.YearlyStats, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+statsColumns+` FROM yearly_stats WHERE year = ?`, year)

	var (
		s                                      core.YearlyStats
		energyCost, energyConsumed             string
		gasCost, gasConsumed, combinedTotal    string
	)
	err := row.Scan(&s.Year, &energyCost, &energyConsumed, &s.EnergyBillCount,
		&gasCost, &gasConsumed, &s.GasBillCount, &combinedTotal)
	if err != nil {
		return core.YearlyStats{}, err
	}

	if s.EnergyTotalCost, err = decimal.NewFromString(energyCost); err != nil {
		return core.YearlyStats{}, fmt.Errorf("parse energy total cost: %w", err)
	}
	if s.EnergyTotalConsumed, err = decimal.NewFromString(energyConsumed); err != nil {
		return core.YearlyStats{}, fmt.Errorf("parse energy total consumed: %w", err)
	}
	if s.GasTotalCost, err = decimal.NewFromString(gasCost); err != nil {
		return core.YearlyStats{}, fmt.Errorf("parse gas total cost: %w", err)
	}
	if s.GasTotalConsumed, err = decimal.NewFromString(gasConsumed); err != nil {
		return core.YearlyStats{}, fmt.Errorf("parse gas total consumed: %w", err)
	}
	if s.CombinedTotalCost, err = decimal.NewFromString(combinedTotal); err != nil {
		return core.YearlyStats{}, fmt.Errorf("parse combined total cost: %w", err)
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (core.Bill, error) {
	var (
		b                 core.Bill
		billType, unit    string
		cost, consumption string
		month             sql.NullInt64
		notes             sql.NullString
		confirmed         int
		createdAt         string
	)
	err := row.Scan(&b.ID, &billType, &b.Period, &cost, &consumption, &unit,
		&b.Year, &month, &notes, &confirmed, &createdAt)
	if err != nil {
		return core.Bill{}, err
	}

	b.BillType = core.BillType(billType)
	b.Unit = core.Unit(unit)
	b.Month = int(month.Int64)
	b.Notes = notes.String
	b.Confirmed = confirmed != 0

	if b.Cost, err = decimal.NewFromString(cost); err != nil {
		return core.Bill{}, fmt.Errorf("parse cost: %w", err)
	}
	if b.Consumption, err = decimal.NewFromString(consumption); err != nil {
		return core.Bill{}, fmt.Errorf("parse consumption: %w", err)
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return core.Bill{}, fmt.Errorf("parse created_at: %w", err)
	}
	return b, nil
}

func collectBills(rows *sql.Rows) ([]core.Bill, error) {
	defer rows.Close()

	var bills []core.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bills: %w", err)
	}
	return bills, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
