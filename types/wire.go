package types

import "encoding/json"

// Event names received from clients.
const (
	EventJoinRoom        = "joinRoom"
	EventLeaveRoom       = "leaveRoom"
	EventVote            = "vote"
	EventRevealVotes     = "revealVotes"
	EventNextRound       = "nextRound"
	EventResetRound      = "resetRound"
	EventStartTimer      = "startTimer"
	EventGetTimerStatus  = "getTimerStatus"
	EventGetRoomStatus   = "getRoomStatus"
	EventGetRoundHistory = "getRoundHistory"
)

// Event names sent to clients.
const (
	EventRoomJoined    = "roomJoined"
	EventUserJoined    = "userJoined"
	EventUserLeft      = "userLeft"
	EventRoomLeft      = "roomLeft"
	EventRoomDeleted   = "roomDeleted"
	EventVoteConfirmed = "voteConfirmed"
	EventVotesUpdated  = "votesUpdated"
	EventVotesRevealed = "votesRevealed"
	EventRoundReset    = "roundReset"
	EventTimerStarted  = "timerStarted"
	EventTimerStatus   = "timerStatus"
	EventRoomStatus    = "roomStatus"
	EventRoundHistory  = "roundHistory"
	EventError         = "error"
)

// JSON-serialized WebsocketMessage is what is actually sent via the Websocket connection
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EventRequest is the union of all inbound event payload fields. Each handler
// validates the fields it requires.
type EventRequest struct {
	RoomId   string `json:"roomId" mapstructure:"roomId"`
	UserId   string `json:"userId" mapstructure:"userId"`
	Username string `json:"username" mapstructure:"username"`
	Value    string `json:"value" mapstructure:"value"`

	// HasValue records whether the value key was present in the payload;
	// an empty string is a valid vote.
	HasValue bool `json:"-" mapstructure:"-"`
}

// The outbound payloads mirror the shapes the frontend consumes.

type ErrorPayload struct {
	Message string `json:"message"`
}

type RoomJoinedPayload struct {
	RoomId           string       `json:"roomId"`
	Name             string       `json:"name"`
	Participants     Participants `json:"participants"`
	CurrentRound     int          `json:"currentRound"`
	RoundStats       RoundStats   `json:"roundStats"`
	CanControlRounds bool         `json:"canControlRounds"`
	TimerStatus      TimerStatus  `json:"timerStatus"`
	CurrentVotes     []Vote       `json:"currentVotes"`
}

type UserJoinedPayload struct {
	UserId       string       `json:"userId"`
	Username     string       `json:"username"`
	Participants Participants `json:"participants"`
	CurrentRound int          `json:"currentRound"`
	RoundStats   RoundStats   `json:"roundStats"`
	CurrentVotes []Vote       `json:"currentVotes"`
}

type UserLeftPayload struct {
	UserId       string       `json:"userId"`
	Participants Participants `json:"participants"`
	CurrentRound int          `json:"currentRound"`
	RoundStats   RoundStats   `json:"roundStats"`
	CurrentVotes []Vote       `json:"currentVotes"`
}

type RoomLeftPayload struct {
	RoomId  string `json:"roomId"`
	Message string `json:"message"`
}

type RoomDeletedPayload struct {
	RoomId  string `json:"roomId"`
	Message string `json:"message"`
}

type VoteConfirmedPayload struct {
	UserId       string `json:"userId"`
	Value        string `json:"value"`
	CurrentRound int    `json:"currentRound"`
}

type VotesUpdatedPayload struct {
	UserId       string     `json:"userId"`
	HasVoted     bool       `json:"hasVoted"`
	CurrentRound int        `json:"currentRound"`
	RoundStats   RoundStats `json:"roundStats"`
}

type VotesRevealedPayload struct {
	Votes        []Vote       `json:"votes"`
	Participants Participants `json:"participants"`
	CurrentRound int          `json:"currentRound"`
	RoundStats   RoundStats   `json:"roundStats"`
	AutoRevealed bool         `json:"autoRevealed,omitempty"`
}

// RoundChangedPayload is shared by the nextRound and roundReset events.
type RoundChangedPayload struct {
	CurrentRound int          `json:"currentRound"`
	RoundStats   RoundStats   `json:"roundStats"`
	Participants Participants `json:"participants"`
	TimerStatus  TimerStatus  `json:"timerStatus"`
	CurrentVotes []Vote       `json:"currentVotes"`
}

type TimerStartedPayload struct {
	TimerStatus  TimerStatus  `json:"timerStatus"`
	Participants Participants `json:"participants"`
}

type TimerStatusPayload struct {
	RoomId      string      `json:"roomId"`
	TimerStatus TimerStatus `json:"timerStatus"`
}

type RoomStatusPayload struct {
	RoomId           string       `json:"roomId"`
	Name             string       `json:"name"`
	Participants     Participants `json:"participants"`
	CurrentRound     int          `json:"currentRound"`
	RoundStats       RoundStats   `json:"roundStats"`
	CanControlRounds bool         `json:"canControlRounds"`
	TimerStatus      TimerStatus  `json:"timerStatus"`
}

type RoundHistoryPayload struct {
	RoomId       string          `json:"roomId"`
	RoundHistory []RevealedRound `json:"roundHistory"`
	TotalRounds  int             `json:"totalRounds"`
}
