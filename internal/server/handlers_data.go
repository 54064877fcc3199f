package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/patchnotes/internal/query"
)

// defaultLatestDays is the window of GET /data/latest.
const defaultLatestDays = 7

// maxLatestDays bounds GET /data/latest/{days}.
const maxLatestDays = 3650

// handleLatest serves GET /data/latest and GET /data/latest/{days}.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	days := defaultLatestDays
	if raw := r.PathValue("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLatestDays {
			writeError(w, &ErrValidation{Field: "days", Message: "must be a whole number between 1 and 3650"})
			return
		}
		days = n
	}

	data, err := s.query.Latest(r.Context(), r.URL.Query().Get("collections"), days, s.now())
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, data)
}

// handleDateRange serves GET /data/{from}..{to} and GET /data/{date}. Dates
// are YYYY-MM-DD in UTC; the end date is inclusive.
func (s *Server) handleDateRange(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r.PathValue("range"))
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := s.query.QueryRange(r.Context(), r.URL.Query().Get("collections"), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, data)
}

// parseDateRange accepts "2024-01-01..2024-01-31" or "2024-01-01".
func parseDateRange(raw string) (time.Time, time.Time, error) {
	fromRaw, toRaw, isRange := strings.Cut(raw, "..")
	if !isRange {
		toRaw = fromRaw
	}
	from, err := time.Parse(time.DateOnly, fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, &ErrValidation{Field: "from", Message: "must be a date in YYYY-MM-DD form"}
	}
	to, err := time.Parse(time.DateOnly, toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, &ErrValidation{Field: "to", Message: "must be a date in YYYY-MM-DD form"}
	}
	return query.StartOfDay(from), query.EndOfDay(to), nil
}
