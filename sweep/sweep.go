package sweep

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/scrumpoker/scrumpoker/globals"
	"github.com/scrumpoker/scrumpoker/room"
	"github.com/scrumpoker/scrumpoker/types"
	"github.com/scrumpoker/scrumpoker/ws"
)

// Sweeper holds the two recurring background jobs: the timer sweep that
// auto-reveals rounds whose countdown expired, and the reaper that deletes
// rooms left with zero participants by crashed connections.
type Sweeper struct {
	manager *room.Manager
	hub     *ws.Hub
}

func New(manager *room.Manager, hub *ws.Hub) *Sweeper {
	return &Sweeper{manager: manager, hub: hub}
}

// Start registers both jobs on a cron runner and starts it. The specs use
// robfig/cron syntax ("@every 1s", "@every 5m").
func (s *Sweeper) Start(timerSpec, cleanupSpec string) (*cron.Cron, error) {
	runner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := runner.AddFunc(timerSpec, s.CheckTimers); err != nil {
		return nil, err
	}
	if _, err := runner.AddFunc(cleanupSpec, s.CleanupRooms); err != nil {
		return nil, err
	}
	runner.Start()
	globals.AppLogger.Info("sweep jobs scheduled", "timer", timerSpec, "cleanup", cleanupSpec)
	return runner, nil
}

// CheckTimers scans the rooms with a running timer and force-reveals the
// current round of every expired one. An error in one room never aborts the
// scan of the others.
func (s *Sweeper) CheckTimers() {
	rooms, err := s.manager.ListRooms()
	if err != nil {
		globals.AppLogger.Error("error during timer check", "error", err)
		return
	}
	for _, r := range rooms {
		if !r.IsTimerRunning || !r.IsTimerExpired() {
			continue
		}
		updated, err := s.manager.ForceReveal(r.RoomId)
		if err != nil {
			globals.AppLogger.Error("error during timer check", "roomId", r.RoomId, "error", err)
			continue
		}
		s.hub.SendToRoom(r.RoomId, types.EventVotesRevealed, types.VotesRevealedPayload{
			Votes:        updated.GetCurrentRoundVotes(),
			Participants: updated.Participants,
			CurrentRound: updated.CurrentRound,
			RoundStats:   updated.GetRoundStats(),
			AutoRevealed: true,
		})
		globals.AppLogger.Info("timer expired, auto-revealed votes", "roomId", r.RoomId, "round", updated.CurrentRound)
	}
}

// CleanupRooms deletes rooms with an empty participant collection. The
// primary deletion path is the synchronous remove-participant one, so under
// normal operation this finds nothing.
func (s *Sweeper) CleanupRooms() {
	rooms, err := s.manager.ListRooms()
	if err != nil {
		globals.AppLogger.Error("error during room cleanup", "error", err)
		return
	}
	for _, r := range rooms {
		if len(r.Participants) > 0 {
			continue
		}
		if err := s.manager.DeleteRoom(r.RoomId); err != nil {
			globals.AppLogger.Error("error during room cleanup", "roomId", r.RoomId, "error", err)
			continue
		}
		globals.AppLogger.Info("cleaned up empty room", "roomId", r.RoomId)
	}
}
