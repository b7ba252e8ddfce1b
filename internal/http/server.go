// Package http exposes the JSON API for uploading, confirming, and
// aggregating utility bills.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bollette/internal/services"
	"bollette/internal/vision"
)

// BillParser extracts structured bill data from an uploaded image.
// *vision.Client implements it; tests substitute a stub.
type BillParser interface {
	Parse(ctx context.Context, image []byte, fileName string) (vision.Extraction, error)
}

// Exporter produces an XLSX workbook of a year's confirmed bills.
type Exporter interface {
	ExportYearXLSX(ctx context.Context, year int) ([]byte, error)
}

type Server struct {
	http.Server
	bills       *services.BillService
	stats       *services.StatsAggregator
	parser      BillParser
	exporter    Exporter
	rateLimiter *rateLimiter
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, bills *services.BillService, stats *services.StatsAggregator, parser BillParser, exporter Exporter) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		bills:       bills,
		stats:       stats,
		parser:      parser,
		exporter:    exporter,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("GET /api/bills", s.withRequestLog(s.handleListBills))
	mux.HandleFunc("POST /api/bills/parse", s.withRequestLog(s.handleParseBill))
	mux.HandleFunc("POST /api/bills/{id}/confirm", s.withRequestLog(s.handleConfirmBill))
	mux.HandleFunc("DELETE /api/bills/{id}", s.withRequestLog(s.handleDeleteBill))
	mux.HandleFunc("GET /api/stats", s.withRequestLog(s.handleStats))
	mux.HandleFunc("GET /api/export", s.withRequestLog(s.handleExport))

	return s
}

type contextKey string

const requestIDKey contextKey = "request_id"

// withRequestLog adds security headers, rate limiting, and request logging.
func (s *Server) withRequestLog(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		// Rate limit mutating requests; uploads hit a paid extraction API.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
