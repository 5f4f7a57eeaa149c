package ws

import (
	"github.com/scrumpoker/scrumpoker/globals"
	"github.com/scrumpoker/scrumpoker/persistence"
	"github.com/scrumpoker/scrumpoker/types"
)

// The session coordinator: every inbound event is validated, mapped onto one
// persisted room operation and answered with events to the affected
// audiences. After a mutation the handlers only work with the re-fetched
// canonical state returned by the manager, never with the in-memory mutation
// result, since operations from other connections may have interleaved.
func (h *Hub) handleEvent(c *Client, event string, req types.EventRequest) {
	switch event {
	case types.EventJoinRoom:
		h.handleJoinRoom(c, req)

	case types.EventLeaveRoom:
		h.handleLeaveRoom(c, req)

	case types.EventVote:
		h.handleVote(c, req)

	case types.EventRevealVotes:
		h.handleRevealVotes(c, req)

	case types.EventNextRound:
		h.handleNextRound(c, req)

	case types.EventResetRound:
		h.handleResetRound(c, req)

	case types.EventStartTimer:
		h.handleStartTimer(c, req)

	case types.EventGetTimerStatus:
		h.handleGetTimerStatus(c, req)

	case types.EventGetRoomStatus:
		h.handleGetRoomStatus(c, req)

	case types.EventGetRoundHistory:
		h.handleGetRoundHistory(c, req)

	default:
		globals.AppLogger.Debug("unknown event", "event", event)
	}
}

func (c *Client) sendError(message string) {
	c.SendEvent(types.EventError, types.ErrorPayload{Message: message})
}

// currentVotes returns the current round's votes for the event payloads,
// never nil.
func currentVotes(room *types.Room) []types.Vote {
	if round := room.GetCurrentRound(); round != nil {
		votes := make([]types.Vote, len(round.Votes))
		copy(votes, round.Votes)
		return votes
	}
	return []types.Vote{}
}

func (h *Hub) handleJoinRoom(c *Client, req types.EventRequest) {
	if req.RoomId == "" || req.UserId == "" {
		c.sendError("Room ID and User ID are required")
		return
	}
	username := req.Username
	if username == "" {
		username = c.GuestName
	}
	if username == "" {
		username = req.UserId
	}
	if _, err := h.Manager.GetRoom(req.RoomId); err != nil {
		if err == persistence.ErrNotFound {
			c.sendError("Room not found")
		} else {
			globals.AppLogger.Error("error joining room", "roomId", req.RoomId, "error", err)
			c.sendError("Failed to join room")
		}
		return
	}
	updated, err := h.Manager.AddParticipant(req.RoomId, req.UserId, username)
	if err != nil {
		globals.AppLogger.Error("error joining room", "roomId", req.RoomId, "error", err)
		c.sendError("Failed to join room")
		return
	}

	h.JoinRoom(req.RoomId, c)
	c.RoomId = req.RoomId
	c.UserId = req.UserId
	c.Username = username

	h.SendToRoomExcept(req.RoomId, c, types.EventUserJoined, types.UserJoinedPayload{
		UserId:       req.UserId,
		Username:     username,
		Participants: updated.Participants,
		CurrentRound: updated.CurrentRound,
		RoundStats:   updated.GetRoundStats(),
		CurrentVotes: currentVotes(updated),
	})

	c.SendEvent(types.EventRoomJoined, types.RoomJoinedPayload{
		RoomId:           req.RoomId,
		Name:             updated.Name,
		Participants:     updated.Participants,
		CurrentRound:     updated.CurrentRound,
		RoundStats:       updated.GetRoundStats(),
		CanControlRounds: updated.CanControlRounds(req.UserId),
		TimerStatus:      updated.GetTimerStatus(),
		CurrentVotes:     currentVotes(updated),
	})

	globals.AppLogger.Info("user joined room", "userId", req.UserId, "username", username, "roomId", req.RoomId)
}

func (h *Hub) handleLeaveRoom(c *Client, req types.EventRequest) {
	if req.RoomId == "" || req.UserId == "" {
		c.sendError("Room ID and User ID are required")
		return
	}
	// the bound identity wins over the payload, mirroring the disconnect path
	userId := c.UserId
	if userId == "" {
		userId = req.UserId
	}
	deleted, updated, err := h.Manager.RemoveParticipant(req.RoomId, userId)
	if err != nil {
		if err == persistence.ErrNotFound {
			c.sendError("Room not found")
		} else {
			globals.AppLogger.Error("error leaving room", "roomId", req.RoomId, "error", err)
			c.sendError("Failed to leave room")
		}
		return
	}

	h.LeaveRoom(req.RoomId, c)
	c.RoomId = ""
	c.UserId = ""
	c.Username = ""

	message := "Successfully left the room"
	if deleted {
		message = "Room deleted - you were the last participant"
		h.SendToRoom(req.RoomId, types.EventRoomDeleted, types.RoomDeletedPayload{
			RoomId:  req.RoomId,
			Message: "Room has been deleted because all participants left",
		})
		h.DropRoom(req.RoomId)
		globals.AppLogger.Info("room deleted, all participants left", "roomId", req.RoomId)
	} else {
		h.SendToRoom(req.RoomId, types.EventUserLeft, types.UserLeftPayload{
			UserId:       userId,
			Participants: updated.Participants,
			CurrentRound: updated.CurrentRound,
			RoundStats:   updated.GetRoundStats(),
			CurrentVotes: currentVotes(updated),
		})
	}

	c.SendEvent(types.EventRoomLeft, types.RoomLeftPayload{RoomId: req.RoomId, Message: message})
	globals.AppLogger.Info("user left room", "userId", userId, "roomId", req.RoomId)
}

func (h *Hub) handleVote(c *Client, req types.EventRequest) {
	if req.RoomId == "" || req.UserId == "" || !req.HasValue {
		c.sendError("Room ID, User ID, and vote value are required")
		return
	}
	updated, err := h.Manager.CastVote(req.RoomId, req.UserId, req.Value)
	if err != nil {
		switch err {
		case persistence.ErrNotFound:
			c.sendError("Room not found")
		case types.ErrNoActiveRound, types.ErrAlreadyRevealed:
			c.sendError(err.Error())
		default:
			globals.AppLogger.Error("error casting vote", "roomId", req.RoomId, "error", err)
			c.sendError("Failed to cast vote")
		}
		return
	}

	// an anonymized signal only, the value is not broadcast before the reveal
	h.SendToRoomExcept(req.RoomId, c, types.EventVotesUpdated, types.VotesUpdatedPayload{
		UserId:       req.UserId,
		HasVoted:     true,
		CurrentRound: updated.CurrentRound,
		RoundStats:   updated.GetRoundStats(),
	})

	c.SendEvent(types.EventVoteConfirmed, types.VoteConfirmedPayload{
		UserId:       req.UserId,
		Value:        req.Value,
		CurrentRound: updated.CurrentRound,
	})

	globals.AppLogger.Info("vote cast", "userId", req.UserId, "round", updated.CurrentRound, "roomId", req.RoomId)
}

func (h *Hub) handleRevealVotes(c *Client, req types.EventRequest) {
	if req.RoomId == "" || req.UserId == "" {
		c.sendError("Room ID and User ID are required")
		return
	}
	if !h.requireControl(c, req, "Only the room creator can reveal votes") {
		return
	}
	updated, err := h.Manager.RevealVotes(req.RoomId)
	if err != nil {
		globals.AppLogger.Error("error revealing votes", "roomId", req.RoomId, "error", err)
		c.sendError("Failed to reveal votes")
		return
	}

	h.SendToRoom(req.RoomId, types.EventVotesRevealed, types.VotesRevealedPayload{
		Votes:        updated.GetCurrentRoundVotes(),
		Participants: updated.Participants,
		CurrentRound: updated.CurrentRound,
		RoundStats:   updated.GetRoundStats(),
	})

	globals.AppLogger.Info("votes revealed", "round", updated.CurrentRound, "roomId", req.RoomId)
}

func (h *Hub) handleNextRound(c *Client, req types.EventRequest) {
	if req.RoomId == "" || req.UserId == "" {
		c.sendError("Room ID and User ID are required")
		return
	}
	if !h.requireControl(c, req, "Only the room creator can control rounds") {
		return
	}
	updated, err := h.Manager.NextRound(req.RoomId)
	if err != nil {
		globals.AppLogger.Error("error creating next round", "roomId", req.RoomId, "error", err)
		c.sendError("Failed to create next round")
		return
	}

	h.SendToRoom(req.RoomId, types.EventNextRound, types.RoundChangedPayload{
		CurrentRound: updated.CurrentRound,
		RoundStats:   updated.GetRoundStats(),
		Participants: updated.Participants,
		TimerStatus:  updated.GetTimerStatus(),
		CurrentVotes: currentVotes(updated),
	})

	globals.AppLogger.Info("next round started", "round", updated.CurrentRound, "roomId", req.RoomId)
}

func (h *Hub) handleResetRound(c *Client, req types.EventRequest) {
	if req.RoomId == "" || req.UserId == "" {
		c.sendError("Room ID and User ID are required")
		return
	}
	if !h.requireControl(c, req, "Only the room creator can control rounds") {
		return
	}
	updated, err := h.Manager.ResetRound(req.RoomId)
	if err != nil {
		globals.AppLogger.Error("error resetting round", "roomId", req.RoomId, "error", err)
		c.sendError("Failed to reset round")
		return
	}

	h.SendToRoom(req.RoomId, types.EventRoundReset, types.RoundChangedPayload{
		CurrentRound: updated.CurrentRound,
		RoundStats:   updated.GetRoundStats(),
		Participants: updated.Participants,
		TimerStatus:  updated.GetTimerStatus(),
		CurrentVotes: currentVotes(updated),
	})

	globals.AppLogger.Info("round reset", "round", updated.CurrentRound, "roomId", req.RoomId)
}

func (h *Hub) handleStartTimer(c *Client, req types.EventRequest) {
	if req.RoomId == "" || req.UserId == "" {
		c.sendError("Room ID and User ID are required")
		return
	}
	if !h.requireControl(c, req, "Only the room creator can start the timer") {
		return
	}
	updated, err := h.Manager.StartTimer(req.RoomId)
	if err != nil {
		globals.AppLogger.Error("error starting timer", "roomId", req.RoomId, "error", err)
		c.sendError("Failed to start timer")
		return
	}

	h.SendToRoom(req.RoomId, types.EventTimerStarted, types.TimerStartedPayload{
		TimerStatus:  updated.GetTimerStatus(),
		Participants: updated.Participants,
	})

	globals.AppLogger.Info("timer started", "roomId", req.RoomId)
}

func (h *Hub) handleGetTimerStatus(c *Client, req types.EventRequest) {
	if req.RoomId == "" {
		c.sendError("Room ID is required")
		return
	}
	room, err := h.Manager.GetRoom(req.RoomId)
	if err != nil {
		if err == persistence.ErrNotFound {
			c.sendError("Room not found")
		} else {
			globals.AppLogger.Error("error getting timer status", "roomId", req.RoomId, "error", err)
			c.sendError("Failed to get timer status")
		}
		return
	}
	c.SendEvent(types.EventTimerStatus, types.TimerStatusPayload{
		RoomId:      room.RoomId,
		TimerStatus: room.GetTimerStatus(),
	})
}

func (h *Hub) handleGetRoomStatus(c *Client, req types.EventRequest) {
	if req.RoomId == "" {
		c.sendError("Room ID is required")
		return
	}
	room, err := h.Manager.GetRoom(req.RoomId)
	if err != nil {
		if err == persistence.ErrNotFound {
			c.sendError("Room not found")
		} else {
			globals.AppLogger.Error("error getting room status", "roomId", req.RoomId, "error", err)
			c.sendError("Failed to get room status")
		}
		return
	}
	c.SendEvent(types.EventRoomStatus, types.RoomStatusPayload{
		RoomId:           room.RoomId,
		Name:             room.Name,
		Participants:     room.Participants,
		CurrentRound:     room.CurrentRound,
		RoundStats:       room.GetRoundStats(),
		CanControlRounds: req.UserId != "" && room.CanControlRounds(req.UserId),
		TimerStatus:      room.GetTimerStatus(),
	})
}

func (h *Hub) handleGetRoundHistory(c *Client, req types.EventRequest) {
	if req.RoomId == "" {
		c.sendError("Room ID is required")
		return
	}
	room, err := h.Manager.GetRoom(req.RoomId)
	if err != nil {
		if err == persistence.ErrNotFound {
			c.sendError("Room not found")
		} else {
			globals.AppLogger.Error("error getting round history", "roomId", req.RoomId, "error", err)
			c.sendError("Failed to get round history")
		}
		return
	}
	c.SendEvent(types.EventRoundHistory, types.RoundHistoryPayload{
		RoomId:       room.RoomId,
		RoundHistory: room.RoundHistory(),
		TotalRounds:  len(room.Rounds),
	})
}

// requireControl loads the room and checks the creator capability. It sends
// the appropriate error to the caller and reports false when the operation
// must not proceed.
func (h *Hub) requireControl(c *Client, req types.EventRequest, denyMessage string) bool {
	room, err := h.Manager.GetRoom(req.RoomId)
	if err != nil {
		if err == persistence.ErrNotFound {
			c.sendError("Room not found")
		} else {
			globals.AppLogger.Error("could not load room", "roomId", req.RoomId, "error", err)
			c.sendError("Failed to load room")
		}
		return false
	}
	if !room.CanControlRounds(req.UserId) {
		c.sendError(denyMessage)
		return false
	}
	return true
}

// Disconnect is the implicit leave: when a bound connection goes away its
// participant entry is removed, with the same room-deletion branching as an
// explicit leave (minus the confirmation to the sender, which is gone).
func (h *Hub) Disconnect(c *Client) {
	if c.RoomId == "" || c.UserId == "" {
		return
	}
	roomId, userId := c.RoomId, c.UserId
	deleted, updated, err := h.Manager.RemoveParticipant(roomId, userId)
	if err != nil {
		if err != persistence.ErrNotFound {
			globals.AppLogger.Error("error removing user from room on disconnect", "roomId", roomId, "userId", userId, "error", err)
		}
		return
	}
	if deleted {
		h.SendToRoomExcept(roomId, c, types.EventRoomDeleted, types.RoomDeletedPayload{
			RoomId:  roomId,
			Message: "Room has been deleted because all participants left",
		})
		h.DropRoom(roomId)
		globals.AppLogger.Info("room deleted, all participants disconnected", "roomId", roomId)
	} else {
		h.SendToRoomExcept(roomId, c, types.EventUserLeft, types.UserLeftPayload{
			UserId:       userId,
			Participants: updated.Participants,
			CurrentRound: updated.CurrentRound,
			RoundStats:   updated.GetRoundStats(),
			CurrentVotes: currentVotes(updated),
		})
	}
	globals.AppLogger.Info("user disconnected from room", "userId", userId, "roomId", roomId)
}
