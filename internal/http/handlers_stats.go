package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type statsResponse struct {
	Success bool      `json:"success"`
	Year    int       `json:"year"`
	Stats   statsView `json:"stats"`
}

// handleStats serves GET /api/stats?year=YYYY, defaulting to the current year.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	year := yearParam(r)

	stats, err := s.stats.Stats(r.Context(), year)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed fetching stats", "year", year, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch statistics")
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{Success: true, Year: year, Stats: toStatsView(stats)})
}

// handleExport serves GET /api/export?year=YYYY as an XLSX download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	year := yearParam(r)

	data, err := s.exporter.ExportYearXLSX(r.Context(), year)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed exporting bills", "year", year, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to export bills")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="bills-%d.xlsx"`, year))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func yearParam(r *http.Request) int {
	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			return y
		}
	}
	return time.Now().Year()
}
