package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"bollette/internal/core"
)

func init() {
	// The API speaks plain JSON numbers for costs and consumption.
	decimal.MarshalJSONWithoutQuotes = true
}

// errorEnvelope is the uniform error body for every failed request.
type errorEnvelope struct {
	Success       bool   `json:"success"`
	StatusCode    int    `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{
		Success:       false,
		StatusCode:    status,
		StatusMessage: message,
	})
}

// billView is the JSON shape of a bill in API responses.
type billView struct {
	ID          string          `json:"id"`
	BillType    core.BillType   `json:"billType"`
	Period      string          `json:"period"`
	Cost        decimal.Decimal `json:"cost"`
	Consumption decimal.Decimal `json:"consumption"`
	Unit        core.Unit       `json:"unit"`
	Status      string          `json:"status"`
	Notes       string          `json:"notes,omitempty"`
	Year        int             `json:"year"`
	Month       int             `json:"month,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func toBillView(b core.Bill) billView {
	return billView{
		ID:          b.ID,
		BillType:    b.BillType,
		Period:      b.Period,
		Cost:        b.Cost,
		Consumption: b.Consumption,
		Unit:        b.Unit,
		Status:      b.Status(),
		Notes:       b.Notes,
		Year:        b.Year,
		Month:       b.Month,
		CreatedAt:   b.CreatedAt,
	}
}

// statsView is the JSON shape of a year's aggregates.
type statsView struct {
	Year                int             `json:"year"`
	EnergyTotalCost     decimal.Decimal `json:"energyTotalCost"`
	EnergyTotalConsumed decimal.Decimal `json:"energyTotalConsumed"`
	GasTotalCost        decimal.Decimal `json:"gasTotalCost"`
	GasTotalConsumed    decimal.Decimal `json:"gasTotalConsumed"`
	CombinedTotalCost   decimal.Decimal `json:"combinedTotalCost"`
	EnergyBillCount     int             `json:"energyBillCount"`
	GasBillCount        int             `json:"gasBillCount"`
}

func toStatsView(st core.YearlyStats) statsView {
	return statsView{
		Year:                st.Year,
		EnergyTotalCost:     st.EnergyTotalCost,
		EnergyTotalConsumed: st.EnergyTotalConsumed,
		GasTotalCost:        st.GasTotalCost,
		GasTotalConsumed:    st.GasTotalConsumed,
		CombinedTotalCost:   st.CombinedTotalCost,
		EnergyBillCount:     st.EnergyBillCount,
		GasBillCount:        st.GasBillCount,
	}
}
