/* handlers.go
 * Contains the HTTP handlers for the draft, the published match and the admin operations
 * Authors: Zachary Bower
 */

package web

import (
	"encoding/json"
	"errors"
	"inhouse-bot/api/api"
	"inhouse-bot/api/logic"
	"inhouse-bot/api/store"
	"net/http"

	"go.uber.org/zap"
)

// GetDraft returns the current draft
func (s *Server) GetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.api.GetDraft(r.Context())
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GetMatch returns the published match
func (s *Server) GetMatch(w http.ResponseWriter, r *http.Request) {
	m, found, err := s.api.GetMatch(r.Context())
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no match has been published")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetMatchConfig serves the config the game server loads. The v query parameter only busts caches
func (s *Server) GetMatchConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.api.MatchConfig(r.Context())
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, cfg)
}

// JoinQueue adds the caller to the queue
func (s *Server) JoinQueue(w http.ResponseWriter, r *http.Request) {
	d, err := s.api.JoinQueue(r.Context(), playerID(r))
	s.writeDraft(w, d, err)
}

// LeaveQueue removes the caller from the queue
func (s *Server) LeaveQueue(w http.ResponseWriter, r *http.Request) {
	d, err := s.api.LeaveQueue(r.Context(), playerID(r))
	s.writeDraft(w, d, err)
}

// PickPlayer drafts a player onto the caller's team
func (s *Server) PickPlayer(w http.ResponseWriter, r *http.Request) {
	var req pickRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := s.api.PickPlayer(r.Context(), playerID(r), req.PlayerID)
	s.writeDraft(w, d, err)
}

// BanMap bans a map for the caller's team
func (s *Server) BanMap(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := s.api.BanMap(r.Context(), playerID(r), req.Map)
	s.writeDraft(w, d, err)
}

// RequestFinalize records the caller's confirmation that the match is over
func (s *Server) RequestFinalize(w http.ResponseWriter, r *http.Request) {
	d, reset, err := s.api.RequestFinalize(r.Context(), playerID(r))
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, finalizeResponse{Draft: d, Reset: reset})
}

// Cancel resets the draft and the match. The reset stands even if the cancel command fails
func (s *Server) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := s.api.Cancel(r.Context()); err != nil {
		if !errors.Is(err, api.ErrRestartFailed) {
			s.writeAPIError(w, err)
			return
		}
		s.logger.Warn("cancel command failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "COMMAND_FAILED", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Publish runs a manual publication
func (s *Server) Publish(w http.ResponseWriter, r *http.Request) {
	res := s.api.Publish(r.Context())
	body := publishResponse{Status: res.Status}
	status := http.StatusOK
	switch res.Status {
	case api.PublishNotReady, api.PublishLocked:
		status = http.StatusConflict
	case api.PublishFailed:
		status = http.StatusInternalServerError
	}
	if res.Err != nil {
		body.Error = res.Err.Error()
	}
	writeJSON(w, status, body)
}

// Start runs a manual server start
func (s *Server) Start(w http.ResponseWriter, r *http.Request) {
	res := s.api.StartMatchIfReady(r.Context())
	body := startResponse{Status: res.Status, ConfigURL: res.ConfigURL}
	status := http.StatusOK
	switch res.Status {
	case api.StartNotFound:
		status = http.StatusNotFound
	case api.StartNotReady, api.StartLocked:
		status = http.StatusConflict
	case api.StartUnauthenticated, api.StartFailed:
		status = http.StatusBadGateway
	}
	if res.Err != nil {
		body.Error = res.Err.Error()
	}
	writeJSON(w, status, body)
}

// Helper that returns the authenticated player's id
func playerID(r *http.Request) string {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.Subject
}

func (s *Server) writeDraft(w http.ResponseWriter, d store.Draft, err error) {
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Helper that maps api errors to status codes. Input errors are 4xx, contention is 409 and retryable
func (s *Server) writeAPIError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, logic.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "UNAUTHORIZED", err.Error())
	case errors.Is(err, logic.ErrInvalidPlayer),
		errors.Is(err, logic.ErrInvalidMap),
		errors.Is(err, logic.ErrNotAvailable),
		errors.Is(err, logic.ErrAlreadyAssigned):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", err.Error())
	case errors.Is(err, logic.ErrWrongState),
		errors.Is(err, logic.ErrCapacityExceeded),
		errors.Is(err, logic.ErrNotYourTurn),
		errors.Is(err, logic.ErrWrongTurn),
		errors.Is(err, logic.ErrTeamFull):
		writeError(w, http.StatusConflict, "REJECTED", err.Error())
	case errors.Is(err, logic.ErrTooEarly):
		writeError(w, http.StatusTooEarly, "TOO_EARLY", err.Error())
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, api.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}
