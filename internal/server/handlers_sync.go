package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jonathan/patchnotes/internal/pipeline"
)

// syncResponse summarizes a forced cycle.
type syncResponse struct {
	Ran         bool           `json:"ran"`
	From        *time.Time     `json:"from,omitempty"`
	To          *time.Time     `json:"to,omitempty"`
	Inserted    map[string]int `json:"inserted"`
	Errors      []string       `json:"errors,omitempty"`
	LastUpdated *time.Time     `json:"last_updated,omitempty"`
}

func newSyncResponse(result *pipeline.CycleResult) syncResponse {
	resp := syncResponse{Inserted: map[string]int{}}
	if result == nil {
		return resp
	}
	resp.Ran = result.Ran
	if result.Ran {
		from, to := result.From, result.To
		resp.From, resp.To = &from, &to
		resp.Inserted = result.Inserted()
	}
	for _, pr := range result.Results {
		if pr.Err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s %s: %v", pr.Source, pr.Kind, pr.Err))
		}
	}
	if result.Checkpoint != nil {
		last := result.Checkpoint.LastUpdated
		resp.LastUpdated = &last
	}
	return resp
}

// handleSyncStatus serves GET /sync/status.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.sync.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, status)
}

// handleForceSync serves POST /sync. A partially failed cycle answers 502
// with the per-call errors.
func (s *Server) handleForceSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.sync.ForceSync(r.Context())
	if err != nil && result == nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = HTTPStatus(err)
	}
	jsonResponse(w, status, newSyncResponse(result))
}
