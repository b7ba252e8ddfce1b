package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"bollette/internal/core"
	"bollette/internal/services"
	"bollette/internal/vision"
)

const maxUploadSize = 10 << 20 // 10MB

var validExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "pdf": true,
}

const pdfRejectionMessage = "PDF files cannot be processed directly by the AI image analysis system. " +
	"Please convert your PDF to an image first: " +
	"1) Take a photo of the bill, " +
	"2) Use an online PDF-to-JPG converter (search \"PDF to JPG\"), " +
	"3) Open PDF and take a screenshot, or " +
	"4) Use a free tool like SmallPDF or ILovePDF. " +
	"Then upload the JPG or PNG image instead."

const pdfHeaderMessage = "PDF files are not supported for direct AI analysis. " +
	"Please convert your PDF to JPG or PNG format first. " +
	"Use an online converter like SmallPDF.com or ILovePDF.com"

const incompleteExtractionMessage = "Failed to extract required bill information. " +
	"Please ensure the file is a clear, readable image of a utility bill " +
	"with visible cost and consumption amounts."

type listBillsResponse struct {
	Success bool       `json:"success"`
	Status  string     `json:"status"`
	Bills   []billView `json:"bills"`
}

// handleListBills serves GET /api/bills?status=pending|confirmed&year=YYYY.
// Unknown status values fall back to pending, matching the review workflow
// where the pending queue is the default view.
func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = "pending"
	}
	year := 0
	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}

	var (
		bills []core.Bill
		err   error
	)
	if status == "confirmed" {
		bills, err = s.bills.ListConfirmed(r.Context(), year)
	} else {
		bills, err = s.bills.ListPending(r.Context())
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed listing bills", "status", status, "year", year, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch bills")
		return
	}

	views := make([]billView, 0, len(bills))
	for _, b := range bills {
		views = append(views, toBillView(b))
	}

	writeJSON(w, http.StatusOK, listBillsResponse{Success: true, Status: status, Bills: views})
}

// parsedBillView is the bill as returned right after extraction, before
// confirmation. Confidence travels alongside so the UI can flag shaky reads.
type parsedBillView struct {
	ID          string          `json:"id"`
	BillType    string          `json:"billType"`
	Period      string          `json:"period"`
	Cost        decimal.Decimal `json:"cost"`
	Consumption decimal.Decimal `json:"consumption"`
	Unit        string          `json:"unit"`
	Confidence  float64         `json:"confidence"`
	Notes       string          `json:"notes"`
	Confirmed   bool            `json:"confirmed"`
}

type parseBillResponse struct {
	Success      bool              `json:"success"`
	Bill         parsedBillView    `json:"bill"`
	AIParsedData vision.Extraction `json:"aiParsedData"`
}

// handleParseBill serves POST /api/bills/parse: accepts a multipart image
// upload, runs it through the extraction oracle, and stores the result as a
// pending bill awaiting human confirmation.
func (s *Server) handleParseBill(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize + 1<<20); err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "File field is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed reading upload", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read uploaded file")
		return
	}

	if len(data) > maxUploadSize {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("File size exceeds 10MB limit (%.2fMB)", float64(len(data))/(1024*1024)))
		return
	}

	fileName := header.Filename
	if fileName == "" {
		fileName = "bill"
	}

	parts := strings.Split(strings.ToLower(fileName), ".")
	ext := parts[len(parts)-1]
	if !validExtensions[ext] {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid file type. Please upload JPG, PNG, or PDF (received: .%s)", ext))
		return
	}

	// PDFs pass the extension whitelist only to get a targeted error message;
	// the extraction oracle accepts images exclusively.
	if ext == "pdf" {
		writeError(w, http.StatusBadRequest, pdfRejectionMessage)
		return
	}
	if bytes.HasPrefix(data, []byte("%PDF")) {
		writeError(w, http.StatusBadRequest, pdfHeaderMessage)
		return
	}

	extraction, err := s.parser.Parse(r.Context(), data, fileName)
	if err != nil {
		slog.ErrorContext(r.Context(), "Bill extraction failed", "file", fileName, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	bill, err := s.bills.Ingest(r.Context(), services.BillInput{
		BillType:    core.BillType(extraction.BillType),
		Period:      extraction.Period,
		Cost:        extraction.Cost,
		Consumption: extraction.Consumption,
		Unit:        core.Unit(extraction.Unit),
		Confidence:  extraction.Confidence,
		Notes:       extraction.Notes,
	}, false)
	if err != nil {
		if errors.Is(err, core.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, incompleteExtractionMessage)
			return
		}
		slog.ErrorContext(r.Context(), "Failed saving parsed bill", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to parse bill")
		return
	}

	writeJSON(w, http.StatusOK, parseBillResponse{
		Success: true,
		Bill: parsedBillView{
			ID:          bill.ID,
			BillType:    string(bill.BillType),
			Period:      bill.Period,
			Cost:        bill.Cost,
			Consumption: bill.Consumption,
			Unit:        string(bill.Unit),
			Confidence:  extraction.Confidence,
			Notes:       bill.Notes,
			Confirmed:   bill.Confirmed,
		},
		AIParsedData: extraction,
	})
}

type confirmBillResponse struct {
	Success bool            `json:"success"`
	Bill    confirmBillView `json:"bill"`
}

type confirmBillView struct {
	ID          string          `json:"id"`
	BillType    string          `json:"billType"`
	Period      string          `json:"period"`
	Cost        decimal.Decimal `json:"cost"`
	Consumption decimal.Decimal `json:"consumption"`
	Unit        string          `json:"unit"`
	Status      string          `json:"status"`
}

// handleConfirmBill serves POST /api/bills/{id}/confirm.
func (s *Server) handleConfirmBill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Bill ID is required")
		return
	}

	bill, err := s.bills.Confirm(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed confirming bill", "bill_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, confirmBillResponse{
		Success: true,
		Bill: confirmBillView{
			ID:          bill.ID,
			BillType:    string(bill.BillType),
			Period:      bill.Period,
			Cost:        bill.Cost,
			Consumption: bill.Consumption,
			Unit:        string(bill.Unit),
			Status:      bill.Status(),
		},
	})
}

type deleteBillResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleDeleteBill serves DELETE /api/bills/{id}.
func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Bill ID is required")
		return
	}

	if err := s.bills.Delete(r.Context(), id); err != nil {
		slog.ErrorContext(r.Context(), "Failed deleting bill", "bill_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, deleteBillResponse{Success: true, Message: "Bill deleted successfully"})
}
