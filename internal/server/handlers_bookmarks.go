package server

import (
	"net/http"

	"github.com/jonathan/patchnotes/internal/server/middleware"
	"github.com/jonathan/patchnotes/internal/types"
)

// bookmarkResponse reports the state of a bookmark after a toggle.
type bookmarkResponse struct {
	Bookmarked bool            `json:"bookmarked"`
	Message    string          `json:"message"`
	Bookmarks  types.Bookmarks `json:"bookmarks"`
}

// handleToggleBookmark serves POST /bookmarks. Posting an existing bookmark removes it.
func (s *Server) handleToggleBookmark(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		errorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req types.BookmarkRequest
	if !decodeAndValidate(w, r, s.authHandler.validator, &req) {
		return
	}
	kind, err := types.ParseKind(req.Type)
	if err != nil {
		writeError(w, err)
		return
	}

	user, added, err := s.userService.ToggleBookmark(r.Context(), userID, types.Bookmark{Kind: kind, RecordID: req.ID})
	if err != nil {
		writeError(w, err)
		return
	}

	message := "Item successfully unbookmarked"
	if added {
		message = "Item successfully bookmarked"
	}
	jsonResponse(w, http.StatusOK, bookmarkResponse{Bookmarked: added, Message: message, Bookmarks: user.Bookmarks})
}

// handleListBookmarks serves GET /bookmarks: bookmarked records grouped by
// bookmark type. Bookmarks whose records are gone are omitted.
func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		errorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	user, err := s.userService.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := s.query.Bookmarked(r.Context(), user.Bookmarks)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, records)
}
