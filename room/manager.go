package room

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/scrumpoker/scrumpoker/config"
	"github.com/scrumpoker/scrumpoker/globals"
	"github.com/scrumpoker/scrumpoker/persistence"
	"github.com/scrumpoker/scrumpoker/types"
)

// Manager implements the persisted room operations. Every mutating operation
// is a full read-modify-write of one room document: load the aggregate from
// the persister, apply the entity mutator, store (or delete, when the
// participant collection drains), and return the freshly re-fetched canonical
// state. The room is never cached across operations, the persister is the
// single source of truth.
type Manager struct {
	persister persistence.Persister
	cfg       *config.Config
}

func NewManager(persister persistence.Persister, cfg *config.Config) *Manager {
	return &Manager{persister: persister, cfg: cfg}
}

// CreateRoom creates a room with roundCount pre-built rounds (round 1
// current) and a fixed timer duration. The creator is not added as a
// participant, they join through the regular join path.
func (m *Manager) CreateRoom(name, createdBy, creatorUserId, description string, roundCount, timerDuration int) (*types.Room, error) {
	if roundCount <= 0 {
		roundCount = m.cfg.RoomConfig.DefaultRoundCount
	}
	if timerDuration <= 0 {
		timerDuration = m.cfg.RoomConfig.DefaultTimerDuration
	}
	now := time.Now()
	rounds := make(types.Rounds, 0, roundCount)
	for i := 0; i < roundCount; i++ {
		rounds = append(rounds, types.Round{
			RoundNumber: i + 1,
			Votes:       []types.Vote{},
			CreatedAt:   now,
		})
	}
	room := &types.Room{
		RoomId:        newRoomId(),
		Name:          name,
		CreatedBy:     createdBy,
		CreatorUserId: creatorUserId,
		Description:   description,
		Participants:  types.Participants{},
		CurrentRound:  1,
		Rounds:        rounds,
		IsActive:      true,
		TimerDuration: timerDuration,
		CreatedAt:     now,
	}
	if err := m.persister.StoreRoom(*room); err != nil {
		return nil, err
	}
	globals.AppLogger.Info("created room", "roomId", room.RoomId, "name", name, "rounds", roundCount)
	return room, nil
}

// newRoomId returns a short, externally shareable room id.
func newRoomId() string {
	return strings.ToUpper(uuid.New().String()[:8])
}

// GetRoom loads one room. Returns persistence.ErrNotFound when it does not
// exist.
func (m *Manager) GetRoom(roomId string) (*types.Room, error) {
	room := &types.Room{RoomId: roomId}
	if err := m.persister.GetRoom(room); err != nil {
		return nil, err
	}
	room.Sanitize()
	return room, nil
}

// ListRooms returns all rooms.
func (m *Manager) ListRooms() ([]*types.Room, error) {
	rooms, err := m.persister.GetRooms()
	if err != nil {
		return nil, err
	}
	for _, room := range rooms {
		room.Sanitize()
	}
	return rooms, nil
}

// AddParticipant upserts the participant and returns the fresh room state.
func (m *Manager) AddParticipant(roomId, userId, username string) (*types.Room, error) {
	room, err := m.GetRoom(roomId)
	if err != nil {
		return nil, err
	}
	room.AddParticipant(userId, username)
	if err := m.persister.StoreRoom(*room); err != nil {
		return nil, err
	}
	return m.GetRoom(roomId)
}

// RemoveParticipant removes the participant. When the last participant
// leaves, the room is deleted instead of saved (rooms never exist with zero
// participants) and deleted reports true with a nil room.
func (m *Manager) RemoveParticipant(roomId, userId string) (deleted bool, room *types.Room, err error) {
	room, err = m.GetRoom(roomId)
	if err != nil {
		return false, nil, err
	}
	room.RemoveParticipant(userId)
	if len(room.Participants) == 0 {
		globals.AppLogger.Info("room has no participants left, deleting room", "roomId", roomId)
		if err := m.persister.DeleteRoom(room); err != nil {
			return false, nil, err
		}
		return true, nil, nil
	}
	if err := m.persister.StoreRoom(*room); err != nil {
		return false, nil, err
	}
	room, err = m.GetRoom(roomId)
	return false, room, err
}

// CastVote upserts the user's vote in the current round and returns the
// fresh room state. Fails with types.ErrNoActiveRound or
// types.ErrAlreadyRevealed without touching the store.
func (m *Manager) CastVote(roomId, userId, value string) (*types.Room, error) {
	room, err := m.GetRoom(roomId)
	if err != nil {
		return nil, err
	}
	if err := room.CastVote(userId, value); err != nil {
		return nil, err
	}
	if err := m.persister.StoreRoom(*room); err != nil {
		return nil, err
	}
	return m.GetRoom(roomId)
}

// RevealVotes marks the current round revealed and returns the fresh room
// state.
func (m *Manager) RevealVotes(roomId string) (*types.Room, error) {
	room, err := m.GetRoom(roomId)
	if err != nil {
		return nil, err
	}
	if err := room.RevealVotes(); err != nil {
		return nil, err
	}
	if err := m.persister.StoreRoom(*room); err != nil {
		return nil, err
	}
	return m.GetRoom(roomId)
}

// NextRound appends a new round, makes it current and clears a running
// timer.
func (m *Manager) NextRound(roomId string) (*types.Room, error) {
	room, err := m.GetRoom(roomId)
	if err != nil {
		return nil, err
	}
	room.CreateNewRound()
	if err := m.persister.StoreRoom(*room); err != nil {
		return nil, err
	}
	return m.GetRoom(roomId)
}

// ResetRound clears the votes and the reveal state of the current round and
// clears a running timer.
func (m *Manager) ResetRound(roomId string) (*types.Room, error) {
	room, err := m.GetRoom(roomId)
	if err != nil {
		return nil, err
	}
	room.ResetCurrentRound()
	if err := m.persister.StoreRoom(*room); err != nil {
		return nil, err
	}
	return m.GetRoom(roomId)
}

// StartTimer stamps the countdown deadline.
func (m *Manager) StartTimer(roomId string) (*types.Room, error) {
	room, err := m.GetRoom(roomId)
	if err != nil {
		return nil, err
	}
	room.StartTimer()
	if err := m.persister.StoreRoom(*room); err != nil {
		return nil, err
	}
	return m.GetRoom(roomId)
}

// ForceReveal reveals the current round and stops the timer in one write.
// Used by the timer sweep on expiry.
func (m *Manager) ForceReveal(roomId string) (*types.Room, error) {
	room, err := m.GetRoom(roomId)
	if err != nil {
		return nil, err
	}
	if err := room.RevealVotes(); err != nil {
		return nil, err
	}
	room.StopTimer()
	if err := m.persister.StoreRoom(*room); err != nil {
		return nil, err
	}
	return m.GetRoom(roomId)
}

// DeleteRoom removes the room document.
func (m *Manager) DeleteRoom(roomId string) error {
	return m.persister.DeleteRoom(&types.Room{RoomId: roomId})
}
