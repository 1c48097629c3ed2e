package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/skypro1111/meetscribe/internal/capture"
	"github.com/skypro1111/meetscribe/internal/session"
)

// stopWait bounds how long a stop request waits for the final segment
const stopWait = 2 * time.Second

type createSessionRequest struct {
	Mode string `json:"mode"`
}

type muteRequest struct {
	Muted *bool `json:"muted"`
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

func (h *HTTPServer) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	return s, true
}

// decodeBody decodes an optional JSON body; an empty body leaves v untouched
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// handleListSessions implements GET /sessions
func (h *HTTPServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.List()
	statuses := make([]session.Status, 0, len(sessions))
	for _, s := range sessions {
		statuses = append(statuses, s.Status())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_sessions": len(statuses),
		"timestamp":      time.Now().UTC(),
		"sessions":       statuses,
	})
}

// handleCreateSession implements POST /sessions
func (h *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	mode, err := capture.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s, err := h.sessions.Create(r.Context(), mode)
	if err != nil {
		if errors.Is(err, session.ErrTooManySessions) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		// Acquisition failures: permission denied, no audio track, missing backend
		h.logger.Warn("Session start rejected",
			slog.String("mode", string(mode)),
			slog.String("error", err.Error()))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, s.Status())
}

// handleGetSession implements GET /sessions/{id}
func (h *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

// handleDeleteSession implements DELETE /sessions/{id}
func (h *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), stopWait)
	defer cancel()

	err := h.sessions.Remove(ctx, r.PathValue("id"))
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case err != nil && !errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"removed": r.PathValue("id"),
		})
	}
}

// handleStopSession implements POST /sessions/{id}/stop. It answers 200 once
// the session is idle, or 202 while the final segment is still resolving.
func (h *HTTPServer) handleStopSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), stopWait)
	defer cancel()

	err := s.Stop(ctx)
	switch {
	case errors.Is(err, session.ErrNotRecording):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusAccepted, s.Status())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, s.Status())
	}
}

// handleMute implements POST /sessions/{id}/mute
func (h *HTTPServer) handleMute(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req muteRequest
	if err := decodeBody(r, &req); err != nil || req.Muted == nil {
		writeError(w, http.StatusBadRequest, `Expected {"muted": true|false}`)
		return
	}

	if err := s.SetMicrophoneMuted(*req.Muted); err != nil {
		if errors.Is(err, session.ErrNotRecording) || errors.Is(err, capture.ErrMuteUnsupported) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":    s.ID(),
		"muted": *req.Muted,
	})
}

// handleVisibility implements POST /sessions/{id}/visibility
func (h *HTTPServer) handleVisibility(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req visibilityRequest
	if err := decodeBody(r, &req); err != nil || req.Visible == nil {
		writeError(w, http.StatusBadRequest, `Expected {"visible": true|false}`)
		return
	}

	backend := s.SetVisible(r.Context(), *req.Visible)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":         s.ID(),
		"visible":    *req.Visible,
		"keep_awake": backend,
	})
}

// handleTranscript implements GET /sessions/{id}/transcript
func (h *HTTPServer) handleTranscript(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, s.Transcript())
}

// handleGetSummary implements GET /sessions/{id}/summary
func (h *HTTPServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, summaryBody(s))
}

// handleRequestSummary implements POST /sessions/{id}/summary
func (h *HTTPServer) handleRequestSummary(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := s.RequestSummary(); err != nil {
		switch {
		case errors.Is(err, session.ErrNoSummarizer):
			writeError(w, http.StatusNotImplemented, err.Error())
		case errors.Is(err, session.ErrStillRecording):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, summaryBody(s))
}

func summaryBody(s *session.Session) map[string]interface{} {
	state, text, err := s.Summary()
	body := map[string]interface{}{
		"id":    s.ID(),
		"state": state,
	}
	if text != "" {
		body["summary"] = text
	}
	if err != nil {
		body["error"] = err.Error()
	}
	return body
}
