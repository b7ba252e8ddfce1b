package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bollette/internal/core"
	"bollette/internal/export"
	"bollette/internal/services"
	"bollette/internal/storage"
	"bollette/internal/vision"
)

type stubParser struct {
	extraction vision.Extraction
	err        error
	calls      int
	lastFile   string
}

func (p *stubParser) Parse(_ context.Context, _ []byte, fileName string) (vision.Extraction, error) {
	p.calls++
	p.lastFile = fileName
	if p.err != nil {
		return vision.Extraction{}, p.err
	}
	return p.extraction, nil
}

func validExtraction() vision.Extraction {
	return vision.Extraction{
		BillType:    "energy",
		Period:      "2024-03",
		Cost:        decimal.RequireFromString("120.50"),
		Consumption: decimal.NewFromInt(340),
		Unit:        "kW",
		Confidence:  0.9,
		Notes:       "",
	}
}

func newTestServer(t *testing.T, parser BillParser) (*Server, *services.BillService) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "bollette.db"))
	require.NoError(t, err)
	agg := services.NewStatsAggregator(repo)
	bills := services.NewBillService(repo, agg, nil)
	t.Cleanup(func() { _ = bills.Close() })
	return NewServer(":0", bills, agg, parser, export.NewService(repo, nil)), bills
}

func doRequest(t *testing.T, srv *Server, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func uploadRequest(t *testing.T, fieldName, fileName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(fieldName, fileName)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/bills/parse", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func ingestBill(t *testing.T, bills *services.BillService, billType core.BillType, period string, cost, consumption int64, confirmed bool) core.Bill {
	t.Helper()
	unit := core.Kilowatt
	if billType == core.Gas {
		unit = core.CubicMeter
	}
	bill, err := bills.Ingest(context.Background(), services.BillInput{
		BillType:    billType,
		Period:      period,
		Cost:        decimal.NewFromInt(cost),
		Consumption: decimal.NewFromInt(consumption),
		Unit:        unit,
		Confidence:  0.8,
	}, confirmed)
	require.NoError(t, err)
	return bill
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, &stubParser{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rec, _ := doRequest(t, srv, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestListBillsDefaultsToPending(t *testing.T) {
	srv, bills := newTestServer(t, &stubParser{})
	pending := ingestBill(t, bills, core.Energy, "2024-01", 100, 50, false)
	ingestBill(t, bills, core.Gas, "2024-02", 60, 20, true)

	rec, body := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/api/bills", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, true, body["success"])
	assert.Equal(t, "pending", body["status"])
	got := body["bills"].([]any)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].(map[string]any)["id"])
	assert.Equal(t, "pending", got[0].(map[string]any)["status"])
}

func TestListBillsConfirmedByYear(t *testing.T) {
	srv, bills := newTestServer(t, &stubParser{})
	ingestBill(t, bills, core.Energy, "2024-01", 100, 50, true)
	ingestBill(t, bills, core.Gas, "2023-05", 60, 20, true)

	rec, body := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/api/bills?status=confirmed&year=2024", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	got := body["bills"].([]any)
	require.Len(t, got, 1)
	assert.Equal(t, float64(2024), got[0].(map[string]any)["year"])
}

func TestParseBillUploadValidation(t *testing.T) {
	tests := []struct {
		name        string
		request     func(t *testing.T) *http.Request
		wantMessage string
	}{
		{
			name: "no multipart body",
			request: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/bills/parse", strings.NewReader("not multipart"))
			},
			wantMessage: "No file provided",
		},
		{
			name: "wrong field name",
			request: func(t *testing.T) *http.Request {
				return uploadRequest(t, "document", "bill.jpg", []byte("img"))
			},
			wantMessage: "File field is required",
		},
		{
			name: "oversized file",
			request: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "bill.jpg", make([]byte, maxUploadSize+1))
			},
			wantMessage: "File size exceeds 10MB limit (10.00MB)",
		},
		{
			name: "unsupported extension",
			request: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "bill.txt", []byte("text"))
			},
			wantMessage: "Invalid file type. Please upload JPG, PNG, or PDF (received: .txt)",
		},
		{
			name: "pdf extension",
			request: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "bill.pdf", []byte("%PDF-1.4"))
			},
			wantMessage: pdfRejectionMessage,
		},
		{
			name: "pdf magic bytes behind image extension",
			request: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "bill.jpg", []byte("%PDF-1.4 sneaky"))
			},
			wantMessage: pdfHeaderMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := &stubParser{extraction: validExtraction()}
			srv, _ := newTestServer(t, parser)

			rec, body := doRequest(t, srv, tt.request(t))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, float64(http.StatusBadRequest), body["statusCode"])
			assert.Equal(t, tt.wantMessage, body["statusMessage"])
			assert.Zero(t, parser.calls, "rejected uploads must not reach the extraction oracle")
		})
	}
}

func TestParseBillSuccess(t *testing.T) {
	parser := &stubParser{extraction: validExtraction()}
	srv, bills := newTestServer(t, parser)

	rec, body := doRequest(t, srv, uploadRequest(t, "file", "march.jpg", []byte("fake image")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, true, body["success"])
	assert.Equal(t, "march.jpg", parser.lastFile)

	bill := body["bill"].(map[string]any)
	assert.Equal(t, "energy", bill["billType"])
	assert.Equal(t, "2024-03", bill["period"])
	assert.Equal(t, 120.5, bill["cost"])
	assert.Equal(t, float64(340), bill["consumption"])
	assert.Equal(t, false, bill["confirmed"])
	assert.Equal(t, "Confidence: 90.0%", bill["notes"])

	ai := body["aiParsedData"].(map[string]any)
	assert.Equal(t, "energy", ai["billType"])
	assert.InDelta(t, 0.9, ai["confidence"], 1e-9)

	// The bill lands in the pending queue, not in the aggregates.
	pending, err := bills.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2024, pending[0].Year)
	assert.Equal(t, 3, pending[0].Month)
}

func TestParseBillExtractionFailure(t *testing.T) {
	parser := &stubParser{err: vision.ErrExtraction}
	srv, _ := newTestServer(t, parser)

	rec, body := doRequest(t, srv, uploadRequest(t, "file", "bill.jpg", []byte("img")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["statusMessage"])
}

func TestConfirmBillUpdatesStats(t *testing.T) {
	srv, bills := newTestServer(t, &stubParser{})
	bill := ingestBill(t, bills, core.Energy, "2024-03", 100, 50, false)
	ingestBill(t, bills, core.Gas, "2024-05", 60, 20, true)

	rec, body := doRequest(t, srv, httptest.NewRequest(http.MethodPost, "/api/bills/"+bill.ID+"/confirm", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	confirmed := body["bill"].(map[string]any)
	assert.Equal(t, bill.ID, confirmed["id"])
	assert.Equal(t, "confirmed", confirmed["status"])

	rec, body = doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/api/stats?year=2024", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	stats := body["stats"].(map[string]any)
	assert.Equal(t, float64(2024), body["year"])
	assert.Equal(t, float64(100), stats["energyTotalCost"])
	assert.Equal(t, float64(60), stats["gasTotalCost"])
	assert.Equal(t, float64(160), stats["combinedTotalCost"])
	assert.Equal(t, float64(1), stats["energyBillCount"])
	assert.Equal(t, float64(1), stats["gasBillCount"])
}

func TestConfirmMissingBill(t *testing.T) {
	srv, _ := newTestServer(t, &stubParser{})

	rec, body := doRequest(t, srv, httptest.NewRequest(http.MethodPost, "/api/bills/nope/confirm", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Bill not found", body["statusMessage"])
}

func TestDeleteBill(t *testing.T) {
	srv, bills := newTestServer(t, &stubParser{})
	bill := ingestBill(t, bills, core.Energy, "2024-03", 100, 50, true)

	rec, body := doRequest(t, srv, httptest.NewRequest(http.MethodDelete, "/api/bills/"+bill.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bill deleted successfully", body["message"])

	// Its contribution is gone from the year's aggregates.
	rec, body = doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/api/stats?year=2024", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["stats"].(map[string]any)["combinedTotalCost"])
}

func TestDeleteMissingBill(t *testing.T) {
	srv, _ := newTestServer(t, &stubParser{})

	rec, body := doRequest(t, srv, httptest.NewRequest(http.MethodDelete, "/api/bills/nope", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Bill not found", body["statusMessage"])
}

func TestStatsDefaultsToCurrentYear(t *testing.T) {
	srv, _ := newTestServer(t, &stubParser{})

	rec, body := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, float64(time.Now().Year()), body["year"])
}

func TestExportBills(t *testing.T) {
	srv, bills := newTestServer(t, &stubParser{})
	ingestBill(t, bills, core.Energy, "2024-03", 100, 50, true)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/export?year=2024", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "bills-2024.xlsx")

	data, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
