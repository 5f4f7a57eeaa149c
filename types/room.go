package types

import (
	"errors"
	"math"
	"time"
)

var (
	ErrNoActiveRound   = errors.New("no active round found")
	ErrAlreadyRevealed = errors.New("cannot vote after votes have been revealed")
)

// Vote is one participant's estimate in a round. The value is an opaque
// string, the scale is not enforced here.
type Vote struct {
	UserId    string    `json:"userId"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Round is one voting cycle inside a room. Exactly one round is "current" at
// a time (the one whose RoundNumber equals Room.CurrentRound).
type Round struct {
	RoundNumber int        `json:"roundNumber"`
	Votes       []Vote     `json:"votes"`
	IsRevealed  bool       `json:"isRevealed"`
	CreatedAt   time.Time  `json:"createdAt"`
	RevealedAt  *time.Time `json:"revealedAt,omitempty"`
}

// Room is the root aggregate, persisted as one document per room.
type Room struct {
	RoomId        string       `json:"roomId" gorm:"primaryKey"`
	Name          string       `json:"name"`
	CreatedBy     string       `json:"createdBy"`
	CreatorUserId string       `json:"creatorUserId"` // may be empty for legacy rooms
	Description   string       `json:"description,omitempty"`
	Participants  Participants `json:"participants"`
	CurrentRound  int          `json:"currentRound"`
	Rounds        Rounds       `json:"rounds"`
	IsActive      bool         `json:"isActive"`

	TimerDuration  int        `json:"timerDuration"` // seconds
	TimerStartTime *time.Time `json:"timerStartTime"`
	TimerEndTime   *time.Time `json:"timerEndTime"`
	IsTimerRunning bool       `json:"isTimerRunning"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"-"`
}

// TimerStatus is the wall-clock derived countdown state.
type TimerStatus struct {
	IsRunning     bool `json:"isRunning"`
	TimeRemaining int  `json:"timeRemaining"` // seconds, clamped >= 0
	TotalTime     int  `json:"totalTime"`
}

// RoundStats is the derived per-round view attached to most outbound events.
type RoundStats struct {
	RoundNumber  int    `json:"roundNumber"`
	TotalVotes   int    `json:"totalVotes"`
	IsRevealed   bool   `json:"isRevealed"`
	Participants int    `json:"participants"`
	Votes        []Vote `json:"votes,omitempty"`
}

// RevealedRound is one entry of the round history (revealed rounds only).
type RevealedRound struct {
	RoundNumber int        `json:"roundNumber"`
	Votes       []Vote     `json:"votes"`
	RevealedAt  *time.Time `json:"revealedAt,omitempty"`
	TotalVotes  int        `json:"totalVotes"`
}

// AddParticipant inserts the user or, if the user id is already present,
// updates the username in place. Existing votes are never touched.
func (r *Room) AddParticipant(userId, username string) {
	for i := range r.Participants {
		if r.Participants[i].UserId == userId {
			r.Participants[i].Username = username
			return
		}
	}
	r.Participants = append(r.Participants, Participant{UserId: userId, Username: username})
}

// RemoveParticipant removes the matching entry, if any.
func (r *Room) RemoveParticipant(userId string) {
	for i := range r.Participants {
		if r.Participants[i].UserId == userId {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			return
		}
	}
}

// GetCurrentRound returns the round matching CurrentRound, or nil. By
// invariant the round exists, but callers on the sweep paths treat absence
// defensively.
func (r *Room) GetCurrentRound() *Round {
	for i := range r.Rounds {
		if r.Rounds[i].RoundNumber == r.CurrentRound {
			return &r.Rounds[i]
		}
	}
	return nil
}

// CreateNewRound appends a fresh round, makes it current and clears any
// running timer.
func (r *Room) CreateNewRound() {
	newRoundNumber := r.CurrentRound + 1
	r.Rounds = append(r.Rounds, Round{
		RoundNumber: newRoundNumber,
		Votes:       []Vote{},
		CreatedAt:   time.Now(),
	})
	r.CurrentRound = newRoundNumber
	r.clearTimer()
}

// ResetCurrentRound clears the votes and the reveal state of the current
// round only. The round number does not change, previous rounds are left
// untouched. Any running timer is cleared.
func (r *Room) ResetCurrentRound() {
	if round := r.GetCurrentRound(); round != nil {
		round.Votes = []Vote{}
		round.IsRevealed = false
		round.RevealedAt = nil
	}
	r.clearTimer()
}

// CastVote upserts the user's vote in the current round, refreshing the
// timestamp. Voting fails once the round is revealed.
func (r *Room) CastVote(userId, value string) error {
	round := r.GetCurrentRound()
	if round == nil {
		return ErrNoActiveRound
	}
	if round.IsRevealed {
		return ErrAlreadyRevealed
	}
	for i := range round.Votes {
		if round.Votes[i].UserId == userId {
			round.Votes[i].Value = value
			round.Votes[i].Timestamp = time.Now()
			return nil
		}
	}
	round.Votes = append(round.Votes, Vote{UserId: userId, Value: value, Timestamp: time.Now()})
	return nil
}

// AllParticipantsVoted reports whether every current participant has voted in
// the current, not yet revealed round. Advisory only, it does not gate the
// reveal.
func (r *Room) AllParticipantsVoted() bool {
	round := r.GetCurrentRound()
	if round == nil || round.IsRevealed {
		return false
	}
	voted := make(map[string]struct{}, len(round.Votes))
	for _, vote := range round.Votes {
		voted[vote.UserId] = struct{}{}
	}
	return len(r.Participants) > 0 && len(voted) == len(r.Participants)
}

// RevealVotes marks the current round revealed and stamps the reveal time.
func (r *Room) RevealVotes() error {
	round := r.GetCurrentRound()
	if round == nil {
		return ErrNoActiveRound
	}
	now := time.Now()
	round.IsRevealed = true
	round.RevealedAt = &now
	return nil
}

// GetCurrentRoundVotes returns the votes of the current round, or nil while
// the round is not revealed.
func (r *Room) GetCurrentRoundVotes() []Vote {
	round := r.GetCurrentRound()
	if round == nil || !round.IsRevealed {
		return nil
	}
	votes := make([]Vote, len(round.Votes))
	copy(votes, round.Votes)
	return votes
}

// CanControlRounds reports whether the user holds the creator capability.
// Legacy rooms without a stored creator id grant it to no one.
func (r *Room) CanControlRounds(userId string) bool {
	return r.CreatorUserId != "" && r.CreatorUserId == userId
}

// GetRoundStats returns the derived statistics of the current round. When no
// current round exists (defensive case) the votes key is omitted.
func (r *Room) GetRoundStats() RoundStats {
	round := r.GetCurrentRound()
	if round == nil {
		return RoundStats{
			RoundNumber:  r.CurrentRound,
			Participants: len(r.Participants),
		}
	}
	votes := make([]Vote, len(round.Votes))
	copy(votes, round.Votes)
	return RoundStats{
		RoundNumber:  round.RoundNumber,
		TotalVotes:   len(round.Votes),
		IsRevealed:   round.IsRevealed,
		Participants: len(r.Participants),
		Votes:        votes,
	}
}

// RoundHistory returns the revealed rounds, oldest first.
func (r *Room) RoundHistory() []RevealedRound {
	history := make([]RevealedRound, 0, len(r.Rounds))
	for _, round := range r.Rounds {
		if !round.IsRevealed {
			continue
		}
		votes := make([]Vote, len(round.Votes))
		copy(votes, round.Votes)
		history = append(history, RevealedRound{
			RoundNumber: round.RoundNumber,
			Votes:       votes,
			RevealedAt:  round.RevealedAt,
			TotalVotes:  len(round.Votes),
		})
	}
	return history
}

// StartTimer stamps the countdown deadline from the room's fixed duration.
func (r *Room) StartTimer() {
	start := time.Now()
	end := start.Add(time.Duration(r.TimerDuration) * time.Second)
	r.TimerStartTime = &start
	r.TimerEndTime = &end
	r.IsTimerRunning = true
}

// StopTimer clears the countdown state.
func (r *Room) StopTimer() {
	r.clearTimer()
}

func (r *Room) clearTimer() {
	r.IsTimerRunning = false
	r.TimerStartTime = nil
	r.TimerEndTime = nil
}

// GetTimerStatus derives the countdown state from the wall clock. Once the
// deadline has passed it reports not running and zero remaining, even before
// the sweep got around to stopping the timer.
func (r *Room) GetTimerStatus() TimerStatus {
	if !r.IsTimerRunning || r.TimerEndTime == nil {
		return TimerStatus{TotalTime: r.TimerDuration}
	}
	remaining := int(math.Ceil(time.Until(*r.TimerEndTime).Seconds()))
	if remaining <= 0 {
		return TimerStatus{TotalTime: r.TimerDuration}
	}
	return TimerStatus{
		IsRunning:     true,
		TimeRemaining: remaining,
		TotalTime:     r.TimerDuration,
	}
}

// IsTimerExpired reports whether a running countdown has passed its deadline.
func (r *Room) IsTimerExpired() bool {
	if !r.IsTimerRunning || r.TimerEndTime == nil {
		return false
	}
	return !time.Now().Before(*r.TimerEndTime)
}

// Sanitize normalizes the participant collection on the load/save boundary:
// legacy string-only records become {userId, userId}, entries without a user
// id are dropped, duplicates keep the first occurrence. It reports whether
// anything changed.
func (r *Room) Sanitize() bool {
	cleaned := make(Participants, 0, len(r.Participants))
	seen := make(map[string]struct{}, len(r.Participants))
	changed := false
	for _, p := range r.Participants {
		if p.UserId == "" {
			changed = true
			continue
		}
		if _, ok := seen[p.UserId]; ok {
			changed = true
			continue
		}
		seen[p.UserId] = struct{}{}
		if p.Username == "" {
			p.Username = p.UserId
			changed = true
		}
		if p.legacy {
			p.legacy = false
			changed = true
		}
		cleaned = append(cleaned, p)
	}
	if len(cleaned) != len(r.Participants) {
		changed = true
	}
	r.Participants = cleaned
	return changed
}
