package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bollette/internal/amqp"
	"bollette/internal/core"
	"bollette/internal/storage"
)

// BillInput carries the fields produced by the extraction oracle (or entered by
// hand). The upstream extractor is responsible for supplying complete data;
// ingestion only re-checks presence and enum validity.
type BillInput struct {
	BillType    core.BillType
	Period      string
	Cost        decimal.Decimal
	Consumption decimal.Decimal
	Unit        core.Unit
	Confidence  float64
	Notes       string
}

// Recomputer is the slice of StatsAggregator the bill lifecycle needs.
type Recomputer interface {
	Recompute(ctx context.Context, year int) (core.YearlyStats, error)
}

// BillService orchestrates the bill lifecycle: ingestion from the extraction
// oracle, human confirmation and deletion, each followed by a stats recompute
// when confirmed bills are involved.
type BillService struct {
	storage    *storage.SQLiteRepository
	stats      Recomputer
	amqpClient *amqp.Client
}

func NewBillService(storage *storage.SQLiteRepository, stats Recomputer, amqpClient *amqp.Client) *BillService {
	return &BillService{
		storage:    storage,
		stats:      stats,
		amqpClient: amqpClient,
	}
}

// Ingest persists a freshly extracted bill. The year (and optional month) are
// derived from the free-text period once, at creation; they are never recomputed
// afterwards. When the bill arrives already confirmed, the year's stats are
// recomputed before returning.
func (s *BillService) Ingest(ctx context.Context, in BillInput, confirmed bool) (core.Bill, error) {
	period := core.ExtractPeriod(in.Period)

	notes := in.Notes
	if strings.TrimSpace(notes) == "" {
		notes = fmt.Sprintf("Confidence: %.1f%%", in.Confidence*100)
	}

	bill := core.Bill{
		ID:          uuid.NewString(),
		BillType:    in.BillType,
		Period:      in.Period,
		Cost:        in.Cost,
		Consumption: in.Consumption,
		Unit:        in.Unit,
		Year:        period.Year,
		Month:       period.Month,
		Notes:       notes,
		Confirmed:   confirmed,
		CreatedAt:   time.Now().UTC(),
	}
	if err := bill.Validate(); err != nil {
		return core.Bill{}, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}

	if err := s.storage.CreateBill(ctx, bill); err != nil {
		return core.Bill{}, fmt.Errorf("save bill: %w", err)
	}

	if confirmed {
		if _, err := s.stats.Recompute(ctx, bill.Year); err != nil {
			return core.Bill{}, fmt.Errorf("recompute stats: %w", err)
		}
	}

	return bill, nil
}

// Confirm transitions a bill to confirmed. Confirming an already-confirmed bill
// succeeds and still re-triggers aggregation.
func (s *BillService) Confirm(ctx context.Context, id string) (core.Bill, error) {
	bill, err := s.storage.GetBill(ctx, id)
	if err != nil {
		return core.Bill{}, err
	}

	if err := s.storage.SetConfirmed(ctx, id); err != nil {
		return core.Bill{}, err
	}
	bill.Confirmed = true

	if _, err := s.stats.Recompute(ctx, bill.Year); err != nil {
		return core.Bill{}, fmt.Errorf("recompute stats: %w", err)
	}

	s.publishEvent(ctx, bill.ID, bill.Year, amqp.ActionConfirmed)

	return bill, nil
}

// Delete removes a bill. Stats are re-derived only when the bill had been
// confirmed; pending bills never contributed to aggregates.
func (s *BillService) Delete(ctx context.Context, id string) error {
	bill, err := s.storage.GetBill(ctx, id)
	if err != nil {
		return err
	}

	if err := s.storage.DeleteBill(ctx, id); err != nil {
		return err
	}

	if bill.Confirmed {
		if _, err := s.stats.Recompute(ctx, bill.Year); err != nil {
			return fmt.Errorf("recompute stats: %w", err)
		}
		s.publishEvent(ctx, bill.ID, bill.Year, amqp.ActionDeleted)
	}

	return nil
}

// ListPending returns unconfirmed bills, newest first.
func (s *BillService) ListPending(ctx context.Context) ([]core.Bill, error) {
	return s.storage.ListPending(ctx)
}

// ListConfirmed returns confirmed bills, optionally restricted to a year.
func (s *BillService) ListConfirmed(ctx context.Context, year int) ([]core.Bill, error) {
	return s.storage.ListConfirmed(ctx, year)
}

func (s *BillService) publishEvent(ctx context.Context, billID string, year int, action string) {
	if s.amqpClient == nil {
		return
	}
	// Event delivery is best-effort: the bill change and stats recompute already
	// committed, so a broker failure must not fail the request.
	if err := s.amqpClient.PublishBillEvent(ctx, amqp.NewBillEventMessage(billID, year, action)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish bill event",
			"bill_id", billID, "action", action, "error", err)
	}
}

// Close releases the service's storage and broker connections.
func (s *BillService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close bill service: %v", errs)
	}
	return nil
}
