package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dylanmazurek/resolvarr/internal/config"
	"github.com/dylanmazurek/resolvarr/internal/logger"
	"github.com/dylanmazurek/resolvarr/internal/request"
	"github.com/dylanmazurek/resolvarr/pkg/debrid"
	"github.com/dylanmazurek/resolvarr/pkg/debrid/types"
	"github.com/dylanmazurek/resolvarr/pkg/version"
	"github.com/go-chi/chi/v5"
)

// Stable error vocabulary exposed to callers.
const (
	codeAccessFailed        = "access_failed"
	codeUnexpectedFailure   = "unexpected_failure"
	codeAvailabilityUnknown = "availability_unknown"
	codeNotFound            = "not_found"
	codeBadRequest          = "bad_request"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code string, status int) {
	request.JSONResponse(w, errorBody{Error: code}, status)
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	apiKey := s.apiKey(r)
	if apiKey == "" {
		writeError(w, codeAccessFailed, http.StatusUnauthorized)
		return
	}

	hashes := r.URL.Query()["hash"]
	if len(hashes) == 0 {
		writeError(w, codeBadRequest, http.StatusBadRequest)
		return
	}

	entries, err := s.svc.CheckAvailability(r.Context(), apiKey, hashes)
	if err != nil {
		if errors.Is(err, types.ErrBadToken) || errors.Is(err, types.ErrAccessDenied) {
			writeError(w, codeAccessFailed, http.StatusForbidden)
			return
		}
		// A failed check means availability unknown, not "none cached".
		writeError(w, codeAvailabilityUnknown, http.StatusBadGateway)
		return
	}

	request.JSONResponse(w, entries, http.StatusOK)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	fileIndex, err := strconv.Atoi(chi.URLParam(r, "fileIndex"))
	if err != nil || fileIndex < 0 {
		writeError(w, codeBadRequest, http.StatusBadRequest)
		return
	}

	// The delimited token form ends here; below this point only the
	// structured token travels.
	token := types.ResolutionToken{
		APIKey:    chi.URLParam(r, "credential"),
		InfoHash:  chi.URLParam(r, "infohash"),
		FileIndex: fileIndex,
		ClientIP:  clientIP(r),
	}

	url, err := s.svc.Resolve(r.Context(), token)
	if err != nil {
		if errors.Is(err, debrid.ErrAccessFailed) {
			writeError(w, codeAccessFailed, http.StatusForbidden)
			return
		}
		writeError(w, codeUnexpectedFailure, http.StatusBadGateway)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

func (s *Server) handleTorrents(w http.ResponseWriter, r *http.Request) {
	apiKey := s.apiKey(r)
	if apiKey == "" {
		writeError(w, codeAccessFailed, http.StatusUnauthorized)
		return
	}

	torrents, err := s.svc.Torrents(r.Context(), apiKey)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	request.JSONResponse(w, torrents, http.StatusOK)
}

func (s *Server) handleTorrent(w http.ResponseWriter, r *http.Request) {
	apiKey := s.apiKey(r)
	if apiKey == "" {
		writeError(w, codeAccessFailed, http.StatusUnauthorized)
		return
	}

	torrent, err := s.svc.Torrent(r.Context(), apiKey, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	request.JSONResponse(w, torrent, http.StatusOK)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrBadToken), errors.Is(err, types.ErrAccessDenied):
		writeError(w, codeAccessFailed, http.StatusForbidden)
	case errors.Is(err, types.ErrNotFound):
		writeError(w, codeNotFound, http.StatusNotFound)
	default:
		writeError(w, codeUnexpectedFailure, http.StatusBadGateway)
	}
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(logger.GetLogsBuffer()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := config.Get()

	status := map[string]any{
		"name":     "resolvarr",
		"version":  version.GetInfo(),
		"provider": cfg.Provider.Name,
		"host":     cfg.Provider.Host,
	}

	if stats, err := s.svc.Stats(); err == nil {
		status["availability"] = stats
	}

	request.JSONResponse(w, status, http.StatusOK)
}
