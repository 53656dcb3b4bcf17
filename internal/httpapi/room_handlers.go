package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/officeshinyujun/sien/internal/store"
)

const (
	defaultRoomLimit = 100

	defaultMaxPlayers  = 4
	defaultRestitution = 0.9
	defaultFriction    = 0.1
)

type createRoomRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	MaxPlayers  *int     `json:"max_players"`
	Point       *int     `json:"point"`
	Restitution *float64 `json:"restitution"`
	Friction    *float64 `json:"friction"`
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", defaultRoomLimit)

	rooms, err := s.store.Rooms(r.Context(), skip, limit)
	if err != nil {
		s.logger.Error("room listing failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.respondJSON(w, http.StatusOK, rooms)
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	spec := store.RoomSpec{
		Name:        req.Name,
		Description: req.Description,
		MaxPlayers:  defaultMaxPlayers,
		Restitution: defaultRestitution,
		Friction:    defaultFriction,
	}
	if req.MaxPlayers != nil {
		spec.MaxPlayers = *req.MaxPlayers
	}
	if req.Point != nil {
		spec.Point = *req.Point
	}
	if req.Restitution != nil {
		spec.Restitution = *req.Restitution
	}
	if req.Friction != nil {
		spec.Friction = *req.Friction
	}

	image, err := s.avatars.Generate()
	if err != nil {
		s.logger.Error("room image generation failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	spec.Image = image

	room, err := s.store.CreateRoom(r.Context(), spec, currentUser(r).ID)
	if err != nil {
		s.logger.Error("room creation failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.respondJSON(w, http.StatusCreated, room)
}

func (s *Server) handleActiveUsers(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r, "roomID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	users, err := s.store.ActiveUsers(r.Context(), roomID)
	if err != nil {
		s.logger.Error("active user listing failed", "room_id", roomID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.respondJSON(w, http.StatusOK, users)
}

func (s *Server) handleLatestShot(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r, "roomID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	shot, err := s.store.LatestShot(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "No shots in room")
			return
		}
		s.logger.Error("latest shot lookup failed", "room_id", roomID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.respondJSON(w, http.StatusOK, shot)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
