package httpapi

import (
	"errors"
	"net/http"

	"github.com/officeshinyujun/sien/internal/domain"
	"github.com/officeshinyujun/sien/internal/logging"
	"github.com/officeshinyujun/sien/internal/store"
)

type createSessionRequest struct {
	RoomID int64 `json:"room_id"`
}

type createShotRequest struct {
	BallPositions []domain.BallState `json:"ball_positions"`
	Type          domain.ShotType    `json:"type"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RoomID <= 0 {
		s.respondError(w, http.StatusBadRequest, "room_id is required")
		return
	}

	session, err := s.store.CreateSession(r.Context(), req.RoomID, currentUser(r).ID)
	if err != nil {
		logging.FromContext(r.Context()).Error("session creation failed", "room_id", req.RoomID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleCreateShot(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var req createShotRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type != domain.ShotTypeLaunch && req.Type != domain.ShotTypeStop {
		s.respondError(w, http.StatusBadRequest, "type must be LAUNCH or STOP")
		return
	}

	// Resolve the session first: a missing session must fail the request
	// before any broadcast message exists.
	session, err := s.store.SessionByID(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "Session not found")
			return
		}
		logging.FromContext(r.Context()).Error("session lookup failed", "session_id", sessionID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	shot, err := s.store.CreateShot(r.Context(), sessionID, req.BallPositions, req.Type)
	if err != nil {
		logging.FromContext(r.Context()).Error("shot creation failed", "session_id", sessionID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// The shot is durable; everyone in the room hears about it.
	s.notifier.ShotSaved(session.RoomID, shot, currentUser(r).ID)

	s.respondJSON(w, http.StatusCreated, shot)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	session, err := s.store.EndSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "Session not found")
			return
		}
		logging.FromContext(r.Context()).Error("session end failed", "session_id", sessionID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.notifier.SessionEnded(session.RoomID, session, currentUser(r).ID)

	s.respondJSON(w, http.StatusOK, session)
}
