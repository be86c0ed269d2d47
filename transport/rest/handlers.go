package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roomplay/tictactoe-backend/internal/apperror"
	"github.com/roomplay/tictactoe-backend/internal/entity"
)

type joinRequest struct {
	ClientID string `json:"client_id"`
}

type roomResponse struct {
	Room *entity.Room `json:"room,omitempty"`
	Side string       `json:"side,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (that *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

func (that *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleCreateRoom")

	room, err := that.roomUseCase.CreateRoom(r.Context())
	if err != nil {
		log.Error("failed to create room", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	log.Info("room created", "code", room.Code)

	writeJSON(w, http.StatusCreated, roomResponse{Room: room})
}

func (that *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleJoinRoom")

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	room, side, err := that.roomUseCase.JoinRoom(r.Context(), r.PathValue("code"), req.ClientID)
	if err != nil {
		log.Warn("join rejected", "code", r.PathValue("code"), "error", err)
		writeError(w, joinStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, roomResponse{Room: room, Side: side})
}

func (that *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleListRooms")

	rooms, err := that.roomUseCase.ListRooms(r.Context())
	if err != nil {
		log.Error("failed to list rooms", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}

	writeJSON(w, http.StatusOK, rooms)
}

func (that *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleDeleteRoom")

	if err := that.roomUseCase.DeleteRoom(r.Context(), r.PathValue("code")); err != nil {
		if errors.Is(err, apperror.ErrInvalidRoomCode) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		log.Error("failed to delete room", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete room")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func joinStatus(err error) int {
	switch {
	case errors.Is(err, apperror.ErrInvalidRoomCode):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrRoomFull), errors.Is(err, apperror.ErrNoSlotAvailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
