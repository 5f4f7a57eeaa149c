package room

import (
	"testing"
	"time"

	"github.com/scrumpoker/scrumpoker/config"
	"github.com/scrumpoker/scrumpoker/persistence"
	"github.com/scrumpoker/scrumpoker/types"
	"github.com/stretchr/testify/assert"
)

func newTestManager(t *testing.T) *Manager {
	cfg := &config.Config{
		RoomConfig: config.RoomConfig{
			DefaultTimerDuration: 60,
			DefaultRoundCount:    1,
		},
	}
	cfg.PersistenceConfig.BuntDBConfig.Name = ":memory:"
	persister, err := persistence.NewPersister(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if persister == nil {
		t.Fatal("no persister")
	}
	return NewManager(persister, cfg)
}

func TestCreateRoom(t *testing.T) {
	manager := newTestManager(t)

	created, err := manager.CreateRoom("sprint planning", "alice", "user-alice", "estimation", 3, 30)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 8, len(created.RoomId))
	assert.Equal(t, "sprint planning", created.Name)
	assert.Equal(t, "alice", created.CreatedBy)
	assert.Equal(t, "user-alice", created.CreatorUserId)
	assert.Equal(t, "estimation", created.Description)
	assert.Equal(t, 1, created.CurrentRound)
	assert.Equal(t, 3, len(created.Rounds))
	assert.Equal(t, 30, created.TimerDuration)
	assert.Equal(t, true, created.IsActive)
	assert.Equal(t, 0, len(created.Participants))

	stored, err := manager.GetRoom(created.RoomId)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, created.RoomId, stored.RoomId)
	assert.Equal(t, 3, len(stored.Rounds))
}

func TestCreateRoomDefaults(t *testing.T) {
	manager := newTestManager(t)

	created, err := manager.CreateRoom("quick", "bob", "user-bob", "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, len(created.Rounds))
	assert.Equal(t, 60, created.TimerDuration)
}

func TestGetRoomNotFound(t *testing.T) {
	manager := newTestManager(t)
	_, err := manager.GetRoom("NOPE1234")
	assert.Equal(t, persistence.ErrNotFound, err)
}

func TestParticipants(t *testing.T) {
	manager := newTestManager(t)
	created, err := manager.CreateRoom("room", "alice", "user-alice", "", 1, 60)
	if err != nil {
		t.Fatal(err)
	}

	updated, err := manager.AddParticipant(created.RoomId, "user-1", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, len(updated.Participants))

	updated, err = manager.AddParticipant(created.RoomId, "user-2", "Bob")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, len(updated.Participants))

	deleted, updated, err := manager.RemoveParticipant(created.RoomId, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, false, deleted)
	assert.Equal(t, 1, len(updated.Participants))
	assert.Equal(t, "user-2", updated.Participants[0].UserId)
}

func TestLastParticipantLeavesDeletesRoom(t *testing.T) {
	manager := newTestManager(t)
	created, err := manager.CreateRoom("room", "alice", "user-alice", "", 1, 60)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := manager.AddParticipant(created.RoomId, "user-1", "Alice"); err != nil {
		t.Fatal(err)
	}

	deleted, updated, err := manager.RemoveParticipant(created.RoomId, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, true, deleted)
	assert.Nil(t, updated)

	_, err = manager.GetRoom(created.RoomId)
	assert.Equal(t, persistence.ErrNotFound, err)
}

func TestVotingFlow(t *testing.T) {
	manager := newTestManager(t)
	created, err := manager.CreateRoom("room", "alice", "user-alice", "", 1, 60)
	if err != nil {
		t.Fatal(err)
	}
	roomId := created.RoomId
	if _, err := manager.AddParticipant(roomId, "user-1", "Alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := manager.AddParticipant(roomId, "user-2", "Bob"); err != nil {
		t.Fatal(err)
	}

	updated, err := manager.CastVote(roomId, "user-1", "5")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, updated.GetRoundStats().TotalVotes)
	assert.Nil(t, updated.GetCurrentRoundVotes())

	if _, err := manager.CastVote(roomId, "user-2", "8"); err != nil {
		t.Fatal(err)
	}

	updated, err = manager.RevealVotes(roomId)
	if err != nil {
		t.Fatal(err)
	}
	votes := updated.GetCurrentRoundVotes()
	assert.Equal(t, 2, len(votes))

	// no voting in a revealed round
	_, err = manager.CastVote(roomId, "user-1", "13")
	assert.Equal(t, types.ErrAlreadyRevealed, err)

	updated, err = manager.NextRound(roomId)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, updated.CurrentRound)
	assert.Equal(t, 2, len(updated.Rounds))
	assert.Equal(t, 0, updated.GetRoundStats().TotalVotes)

	if _, err := manager.CastVote(roomId, "user-1", "3"); err != nil {
		t.Fatal(err)
	}
	updated, err = manager.ResetRound(roomId)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, updated.CurrentRound)
	assert.Equal(t, 0, updated.GetRoundStats().TotalVotes)

	history := updated.RoundHistory()
	assert.Equal(t, 1, len(history))
	assert.Equal(t, 1, history[0].RoundNumber)
}

func TestTimerOperations(t *testing.T) {
	manager := newTestManager(t)
	created, err := manager.CreateRoom("room", "alice", "user-alice", "", 1, 45)
	if err != nil {
		t.Fatal(err)
	}
	roomId := created.RoomId
	if _, err := manager.AddParticipant(roomId, "user-1", "Alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := manager.CastVote(roomId, "user-1", "5"); err != nil {
		t.Fatal(err)
	}

	updated, err := manager.StartTimer(roomId)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, true, updated.IsTimerRunning)
	assert.Equal(t, 45, updated.GetTimerStatus().TotalTime)
	assert.NotNil(t, updated.TimerEndTime)
	assert.Equal(t, true, updated.TimerEndTime.After(time.Now()))

	updated, err = manager.ForceReveal(roomId)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, false, updated.IsTimerRunning)
	assert.Nil(t, updated.TimerEndTime)
	assert.Equal(t, 1, len(updated.GetCurrentRoundVotes()))
}
