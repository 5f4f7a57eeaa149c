package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/scrumpoker/scrumpoker/globals"
	"github.com/scrumpoker/scrumpoker/persistence"
	"github.com/scrumpoker/scrumpoker/room"
	"github.com/scrumpoker/scrumpoker/types"
)

// Handler is the synchronous request surface, mirroring the realtime
// operations for non-persistent clients. Mutations through this surface do
// not fan out to websocket connections; connected clients converge on their
// next event.
type Handler struct {
	manager *room.Manager
	started time.Time
}

func NewHandler(manager *room.Manager) *Handler {
	return &Handler{manager: manager, started: time.Now()}
}

// Routes registers the REST endpoints on the router.
func (h *Handler) Routes(router *mux.Router) {
	router.HandleFunc("/api/rooms", h.listRooms).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms", h.createRoom).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{roomId}", h.getRoom).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{roomId}/join", h.joinRoom).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{roomId}/leave", h.leaveRoom).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{roomId}/next-round", h.nextRound).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{roomId}/reset-round", h.resetRound).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{roomId}/history", h.roundHistory).Methods(http.MethodGet)
	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		globals.AppLogger.Error("could not encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respond(w, status, envelope{Success: false, Message: message})
}

// storeError maps a manager error onto the HTTP reply.
func storeError(w http.ResponseWriter, err error, logMessage string) {
	if err == persistence.ErrNotFound {
		respondError(w, http.StatusNotFound, "Room not found")
		return
	}
	globals.AppLogger.Error(logMessage, "error", err)
	respondError(w, http.StatusInternalServerError, "Internal server error")
}

type createRoomRequest struct {
	Name          string `json:"name"`
	CreatedBy     string `json:"createdBy"`
	UserId        string `json:"userId"`
	RoundCount    int    `json:"roundCount"`
	QuestionTimer int    `json:"questionTimer"`
	Description   string `json:"description"`
}

func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	req := createRoomRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.CreatedBy == "" || req.UserId == "" {
		respondError(w, http.StatusBadRequest, "Room name, creator name, and user ID are required")
		return
	}
	created, err := h.manager.CreateRoom(req.Name, req.CreatedBy, req.UserId, req.Description, req.RoundCount, req.QuestionTimer)
	if err != nil {
		globals.AppLogger.Error("error creating room", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respond(w, http.StatusCreated, envelope{Success: true, Data: map[string]interface{}{
		"roomId":       created.RoomId,
		"name":         created.Name,
		"createdBy":    created.CreatedBy,
		"createdAt":    created.CreatedAt,
		"participants": created.Participants,
		"currentRound": created.CurrentRound,
		"roundStats":   created.GetRoundStats(),
	}})
}

func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.manager.ListRooms()
	if err != nil {
		globals.AppLogger.Error("error getting all rooms", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	summaries := make([]map[string]interface{}, 0, len(rooms))
	for _, rm := range rooms {
		summaries = append(summaries, map[string]interface{}{
			"roomId":           rm.RoomId,
			"name":             rm.Name,
			"createdBy":        rm.CreatedBy,
			"participants":     rm.Participants,
			"currentRound":     rm.CurrentRound,
			"createdAt":        rm.CreatedAt,
			"participantCount": len(rm.Participants),
		})
	}
	respond(w, http.StatusOK, envelope{Success: true, Data: summaries})
}

func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	roomId := mux.Vars(r)["roomId"]
	userId := r.URL.Query().Get("userId")
	rm, err := h.manager.GetRoom(roomId)
	if err != nil {
		storeError(w, err, "error getting room")
		return
	}
	respond(w, http.StatusOK, envelope{Success: true, Data: map[string]interface{}{
		"roomId":           rm.RoomId,
		"name":             rm.Name,
		"createdBy":        rm.CreatedBy,
		"description":      rm.Description,
		"participants":     rm.Participants,
		"currentRound":     rm.CurrentRound,
		"roundStats":       rm.GetRoundStats(),
		"canControlRounds": userId != "" && rm.CanControlRounds(userId),
		"createdAt":        rm.CreatedAt,
	}})
}

type joinRoomRequest struct {
	UserId   string `json:"userId"`
	Username string `json:"username"`
}

func (h *Handler) joinRoom(w http.ResponseWriter, r *http.Request) {
	roomId := mux.Vars(r)["roomId"]
	req := joinRoomRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserId == "" {
		respondError(w, http.StatusBadRequest, "User ID is required")
		return
	}
	username := req.Username
	if username == "" {
		username = req.UserId
	}
	rm, err := h.manager.AddParticipant(roomId, req.UserId, username)
	if err != nil {
		storeError(w, err, "error joining room")
		return
	}
	respond(w, http.StatusOK, envelope{Success: true, Data: map[string]interface{}{
		"roomId":           rm.RoomId,
		"name":             rm.Name,
		"createdBy":        rm.CreatedBy,
		"participants":     rm.Participants,
		"currentRound":     rm.CurrentRound,
		"roundStats":       rm.GetRoundStats(),
		"canControlRounds": rm.CanControlRounds(req.UserId),
	}})
}

type userIdRequest struct {
	UserId string `json:"userId"`
}

func (h *Handler) leaveRoom(w http.ResponseWriter, r *http.Request) {
	roomId := mux.Vars(r)["roomId"]
	req := userIdRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserId == "" {
		respondError(w, http.StatusBadRequest, "User ID is required")
		return
	}
	deleted, rm, err := h.manager.RemoveParticipant(roomId, req.UserId)
	if err != nil {
		storeError(w, err, "error leaving room")
		return
	}
	if deleted {
		respond(w, http.StatusOK, envelope{Success: true, Data: map[string]interface{}{
			"roomId":  roomId,
			"message": "Room deleted - you were the last participant",
			"deleted": true,
		}})
		return
	}
	respond(w, http.StatusOK, envelope{Success: true, Data: map[string]interface{}{
		"roomId":       rm.RoomId,
		"message":      "Successfully left the room",
		"participants": rm.Participants,
		"currentRound": rm.CurrentRound,
		"roundStats":   rm.GetRoundStats(),
		"deleted":      false,
	}})
}

// requireControl loads the room and checks the creator capability for the
// round-control endpoints.
func (h *Handler) requireControl(w http.ResponseWriter, roomId, userId string) bool {
	rm, err := h.manager.GetRoom(roomId)
	if err != nil {
		storeError(w, err, "error getting room")
		return false
	}
	if !rm.CanControlRounds(userId) {
		respondError(w, http.StatusForbidden, "Only the room creator can control rounds")
		return false
	}
	return true
}

func (h *Handler) nextRound(w http.ResponseWriter, r *http.Request) {
	roomId := mux.Vars(r)["roomId"]
	req := userIdRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserId == "" {
		respondError(w, http.StatusBadRequest, "User ID is required")
		return
	}
	if !h.requireControl(w, roomId, req.UserId) {
		return
	}
	rm, err := h.manager.NextRound(roomId)
	if err != nil {
		storeError(w, err, "error creating next round")
		return
	}
	respond(w, http.StatusOK, envelope{Success: true, Data: map[string]interface{}{
		"roomId":       rm.RoomId,
		"currentRound": rm.CurrentRound,
		"roundStats":   rm.GetRoundStats(),
	}})
}

func (h *Handler) resetRound(w http.ResponseWriter, r *http.Request) {
	roomId := mux.Vars(r)["roomId"]
	req := userIdRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserId == "" {
		respondError(w, http.StatusBadRequest, "User ID is required")
		return
	}
	if !h.requireControl(w, roomId, req.UserId) {
		return
	}
	rm, err := h.manager.ResetRound(roomId)
	if err != nil {
		storeError(w, err, "error resetting round")
		return
	}
	respond(w, http.StatusOK, envelope{Success: true, Data: map[string]interface{}{
		"roomId":       rm.RoomId,
		"currentRound": rm.CurrentRound,
		"roundStats":   rm.GetRoundStats(),
	}})
}

func (h *Handler) roundHistory(w http.ResponseWriter, r *http.Request) {
	roomId := mux.Vars(r)["roomId"]
	rm, err := h.manager.GetRoom(roomId)
	if err != nil {
		storeError(w, err, "error getting round history")
		return
	}
	respond(w, http.StatusOK, envelope{Success: true, Data: types.RoundHistoryPayload{
		RoomId:       rm.RoomId,
		RoundHistory: rm.RoundHistory(),
		TotalRounds:  len(rm.Rounds),
	}})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]interface{}{
		"status":    "OK",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(h.started).Seconds(),
	})
}
