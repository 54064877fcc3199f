package server

import (
	"log"
	"net/http"

	"github.com/jonathan/patchnotes/internal/summarize"
	"github.com/jonathan/patchnotes/internal/types"
)

// handleSummarize serves POST /summarize for a stored record
// ({"record_id","type"}) or free text ({"prompt"}).
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if s.summarizer == nil {
		writeError(w, &ErrUnavailable{Feature: "summarization"})
		return
	}

	var req types.SummarizeRequest
	if !decodeAndValidate(w, r, s.authHandler.validator, &req) {
		return
	}

	var (
		summary string
		err     error
	)
	if req.RecordID != nil {
		kind, kindErr := types.ParseKind(req.Type)
		if kindErr != nil {
			writeError(w, kindErr)
			return
		}
		summary, err = s.summarizer.Record(r.Context(), kind, *req.RecordID)
	} else {
		summary, err = s.summarizer.Prompt(r.Context(), req.Prompt)
	}

	if err != nil {
		if HTTPStatus(err) == http.StatusNotFound {
			writeError(w, err)
			return
		}
		log.Printf("[summarize] %v", err)
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"message": "Failed to summarize"})
		return
	}
	if summary == "" {
		summary = summarize.NoSummary
	}
	jsonResponse(w, http.StatusOK, map[string]string{"summary": summary})
}
