package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Energy BillType = "energy"
	Gas    BillType = "gas"

	Kilowatt   Unit = "kW"
	CubicMeter Unit = "m³"
)

type (
	// BillType distinguishes electricity from gas bills.
	BillType string

	// Unit is the consumption unit printed on the bill.
	Unit string

	// Bill is a single utility bill, either pending human review or confirmed.
	Bill struct {
		ID          string
		BillType    BillType
		Period      string // free text as extracted from the bill
		Cost        decimal.Decimal
		Consumption decimal.Decimal
		Unit        Unit
		Year        int
		Month       int // 0 when the month could not be determined
		Notes       string
		Confirmed   bool
		CreatedAt   time.Time
	}

	// YearlyStats is the materialized per-year aggregate over confirmed bills.
	// It is always recomputed in full, never adjusted incrementally.
	YearlyStats struct {
		Year                int
		EnergyTotalCost     decimal.Decimal
		EnergyTotalConsumed decimal.Decimal
		EnergyBillCount     int
		GasTotalCost        decimal.Decimal
		GasTotalConsumed    decimal.Decimal
		GasBillCount        int
		CombinedTotalCost   decimal.Decimal
	}
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("Bill not found")

	ErrInvalidBillType = errors.New("invalid bill type")
	ErrInvalidUnit     = errors.New("invalid unit")
	ErrEmptyPeriod     = errors.New("empty billing period")
	ErrInvalidAmount   = errors.New("amount must be positive")
)

func (t BillType) Valid() bool {
	switch t {
	case Energy, Gas:
		return true
	}
	return false
}

func (u Unit) Valid() bool {
	switch u {
	case Kilowatt, CubicMeter:
		return true
	}
	return false
}

// Status returns the externally visible lifecycle state.
func (b Bill) Status() string {
	if b.Confirmed {
		return "confirmed"
	}
	return "pending"
}

func (b Bill) Validate() error {
	if !b.BillType.Valid() {
		return ErrInvalidBillType
	}
	if len(strings.TrimSpace(b.Period)) == 0 {
		return ErrEmptyPeriod
	}
	if !b.Cost.IsPositive() {
		return ErrInvalidAmount
	}
	if !b.Consumption.IsPositive() {
		return ErrInvalidAmount
	}
	if !b.Unit.Valid() {
		return ErrInvalidUnit
	}
	return nil
}

// NewYearlyStats returns the all-zero aggregate row for a year.
func NewYearlyStats(year int) YearlyStats {
	return YearlyStats{
		Year:                year,
		EnergyTotalCost:     decimal.Zero,
		EnergyTotalConsumed: decimal.Zero,
		GasTotalCost:        decimal.Zero,
		GasTotalConsumed:    decimal.Zero,
		CombinedTotalCost:   decimal.Zero,
	}
}
