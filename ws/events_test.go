package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/scrumpoker/scrumpoker/config"
	"github.com/scrumpoker/scrumpoker/persistence"
	"github.com/scrumpoker/scrumpoker/room"
	"github.com/scrumpoker/scrumpoker/types"
	"github.com/stretchr/testify/assert"
)

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
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
	manager := room.NewManager(persister, cfg)
	hub := NewHub(cfg, manager)
	go hub.Run()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		doneChan := make(chan struct{})
		client := NewClient(hub, conn, "", doneChan)
		client.Add(1)
		hub.Register <- client
		client.Wait()
		defer func() {
			hub.Unregister <- client
		}()
		client.Add(2)
		go client.ReadLoop()
		go client.WriteLoop()
		<-doneChan
	}))
	return hub, srv
}

func dialTestServer(t *testing.T, srv *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, req types.EventRequest) {
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	message, err := json.Marshal(types.WebsocketMessage{Event: event, Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
		t.Fatal(err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn, payload interface{}) string {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	message := types.WebsocketMessage{}
	if err := json.Unmarshal(raw, &message); err != nil {
		t.Fatal(err)
	}
	if payload != nil {
		if err := json.Unmarshal(message.Data, payload); err != nil {
			t.Fatal(err)
		}
	}
	return message.Event
}

func TestJoinVoteRevealFlow(t *testing.T) {
	hub, srv := newTestServer(t)
	defer srv.Close()

	created, err := hub.Manager.CreateRoom("sprint planning", "Alice", "user-alice", "", 1, 60)
	if err != nil {
		t.Fatal(err)
	}
	roomId := created.RoomId

	alice := dialTestServer(t, srv)
	defer alice.Close()
	sendEvent(t, alice, types.EventJoinRoom, types.EventRequest{RoomId: roomId, UserId: "user-alice", Username: "Alice"})
	joined := types.RoomJoinedPayload{}
	assert.Equal(t, types.EventRoomJoined, readEvent(t, alice, &joined))
	assert.Equal(t, roomId, joined.RoomId)
	assert.Equal(t, "sprint planning", joined.Name)
	assert.Equal(t, true, joined.CanControlRounds)
	assert.Equal(t, 1, joined.CurrentRound)
	assert.Equal(t, 1, len(joined.Participants))

	bob := dialTestServer(t, srv)
	defer bob.Close()
	sendEvent(t, bob, types.EventJoinRoom, types.EventRequest{RoomId: roomId, UserId: "user-bob", Username: "Bob"})
	joined = types.RoomJoinedPayload{}
	assert.Equal(t, types.EventRoomJoined, readEvent(t, bob, &joined))
	assert.Equal(t, false, joined.CanControlRounds)
	assert.Equal(t, 2, len(joined.Participants))

	userJoined := types.UserJoinedPayload{}
	assert.Equal(t, types.EventUserJoined, readEvent(t, alice, &userJoined))
	assert.Equal(t, "user-bob", userJoined.UserId)
	assert.Equal(t, "Bob", userJoined.Username)
	assert.Equal(t, 2, len(userJoined.Participants))

	// bob votes: the value stays between bob and the store
	sendEvent(t, bob, types.EventVote, types.EventRequest{RoomId: roomId, UserId: "user-bob", Value: "8"})
	confirmed := types.VoteConfirmedPayload{}
	assert.Equal(t, types.EventVoteConfirmed, readEvent(t, bob, &confirmed))
	assert.Equal(t, "8", confirmed.Value)
	votesUpdated := types.VotesUpdatedPayload{}
	assert.Equal(t, types.EventVotesUpdated, readEvent(t, alice, &votesUpdated))
	assert.Equal(t, "user-bob", votesUpdated.UserId)
	assert.Equal(t, true, votesUpdated.HasVoted)
	assert.Equal(t, 1, votesUpdated.RoundStats.TotalVotes)

	sendEvent(t, alice, types.EventVote, types.EventRequest{RoomId: roomId, UserId: "user-alice", Value: "5"})
	assert.Equal(t, types.EventVoteConfirmed, readEvent(t, alice, nil))
	assert.Equal(t, types.EventVotesUpdated, readEvent(t, bob, nil))

	// only the creator may reveal
	sendEvent(t, bob, types.EventRevealVotes, types.EventRequest{RoomId: roomId, UserId: "user-bob"})
	errPayload := types.ErrorPayload{}
	assert.Equal(t, types.EventError, readEvent(t, bob, &errPayload))
	assert.Equal(t, "Only the room creator can reveal votes", errPayload.Message)

	sendEvent(t, alice, types.EventRevealVotes, types.EventRequest{RoomId: roomId, UserId: "user-alice"})
	revealed := types.VotesRevealedPayload{}
	assert.Equal(t, types.EventVotesRevealed, readEvent(t, alice, &revealed))
	assert.Equal(t, 2, len(revealed.Votes))
	assert.Equal(t, false, revealed.AutoRevealed)
	revealed = types.VotesRevealedPayload{}
	assert.Equal(t, types.EventVotesRevealed, readEvent(t, bob, &revealed))
	assert.Equal(t, 2, len(revealed.Votes))

	sendEvent(t, alice, types.EventNextRound, types.EventRequest{RoomId: roomId, UserId: "user-alice"})
	changed := types.RoundChangedPayload{}
	assert.Equal(t, types.EventNextRound, readEvent(t, alice, &changed))
	assert.Equal(t, 2, changed.CurrentRound)
	assert.Equal(t, 0, changed.RoundStats.TotalVotes)
	assert.Equal(t, types.EventNextRound, readEvent(t, bob, nil))
}

func TestDisconnectCleanup(t *testing.T) {
	hub, srv := newTestServer(t)
	defer srv.Close()

	created, err := hub.Manager.CreateRoom("room", "Alice", "user-alice", "", 1, 60)
	if err != nil {
		t.Fatal(err)
	}
	roomId := created.RoomId

	alice := dialTestServer(t, srv)
	defer alice.Close()
	sendEvent(t, alice, types.EventJoinRoom, types.EventRequest{RoomId: roomId, UserId: "user-alice", Username: "Alice"})
	assert.Equal(t, types.EventRoomJoined, readEvent(t, alice, nil))

	bob := dialTestServer(t, srv)
	sendEvent(t, bob, types.EventJoinRoom, types.EventRequest{RoomId: roomId, UserId: "user-bob", Username: "Bob"})
	assert.Equal(t, types.EventRoomJoined, readEvent(t, bob, nil))
	assert.Equal(t, types.EventUserJoined, readEvent(t, alice, nil))

	// bob's connection dies without a leaveRoom event
	bob.Close()
	userLeft := types.UserLeftPayload{}
	assert.Equal(t, types.EventUserLeft, readEvent(t, alice, &userLeft))
	assert.Equal(t, "user-bob", userLeft.UserId)
	assert.Equal(t, 1, len(userLeft.Participants))

	stored, err := hub.Manager.GetRoom(roomId)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, len(stored.Participants))
	assert.Equal(t, "user-alice", stored.Participants[0].UserId)

	// the last connection dropping deletes the room
	alice.Close()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err = hub.Manager.GetRoom(roomId)
		if err == persistence.ErrNotFound {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("room was not deleted after the last disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestVoteValuePresence(t *testing.T) {
	hub, srv := newTestServer(t)
	defer srv.Close()

	created, err := hub.Manager.CreateRoom("room", "Alice", "user-alice", "", 1, 60)
	if err != nil {
		t.Fatal(err)
	}
	roomId := created.RoomId

	conn := dialTestServer(t, srv)
	defer conn.Close()
	sendEvent(t, conn, types.EventJoinRoom, types.EventRequest{RoomId: roomId, UserId: "user-alice", Username: "Alice"})
	assert.Equal(t, types.EventRoomJoined, readEvent(t, conn, nil))

	// an empty string is an opaque, valid vote value
	sendEvent(t, conn, types.EventVote, types.EventRequest{RoomId: roomId, UserId: "user-alice", Value: ""})
	confirmed := types.VoteConfirmedPayload{}
	assert.Equal(t, types.EventVoteConfirmed, readEvent(t, conn, &confirmed))
	assert.Equal(t, "", confirmed.Value)

	// a payload without the value key is rejected
	raw := []byte(`{"event":"vote","data":{"roomId":"` + roomId + `","userId":"user-alice"}}`)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatal(err)
	}
	errPayload := types.ErrorPayload{}
	assert.Equal(t, types.EventError, readEvent(t, conn, &errPayload))
	assert.Equal(t, "Room ID, User ID, and vote value are required", errPayload.Message)
}

func TestJoinUnknownRoom(t *testing.T) {
	_, srv := newTestServer(t)
	defer srv.Close()

	conn := dialTestServer(t, srv)
	defer conn.Close()

	sendEvent(t, conn, types.EventJoinRoom, types.EventRequest{RoomId: "NOPE1234", UserId: "user-1"})
	errPayload := types.ErrorPayload{}
	assert.Equal(t, types.EventError, readEvent(t, conn, &errPayload))
	assert.Equal(t, "Room not found", errPayload.Message)

	sendEvent(t, conn, types.EventJoinRoom, types.EventRequest{})
	errPayload = types.ErrorPayload{}
	assert.Equal(t, types.EventError, readEvent(t, conn, &errPayload))
	assert.Equal(t, "Room ID and User ID are required", errPayload.Message)
}

func TestLastParticipantLeaveDeletesRoom(t *testing.T) {
	hub, srv := newTestServer(t)
	defer srv.Close()

	created, err := hub.Manager.CreateRoom("room", "Alice", "user-alice", "", 1, 60)
	if err != nil {
		t.Fatal(err)
	}
	roomId := created.RoomId

	conn := dialTestServer(t, srv)
	defer conn.Close()
	sendEvent(t, conn, types.EventJoinRoom, types.EventRequest{RoomId: roomId, UserId: "user-alice", Username: "Alice"})
	assert.Equal(t, types.EventRoomJoined, readEvent(t, conn, nil))

	sendEvent(t, conn, types.EventLeaveRoom, types.EventRequest{RoomId: roomId, UserId: "user-alice"})
	left := types.RoomLeftPayload{}
	assert.Equal(t, types.EventRoomLeft, readEvent(t, conn, &left))
	assert.Equal(t, "Room deleted - you were the last participant", left.Message)

	_, err = hub.Manager.GetRoom(roomId)
	assert.Equal(t, persistence.ErrNotFound, err)
}

func TestReadOnlyQueries(t *testing.T) {
	hub, srv := newTestServer(t)
	defer srv.Close()

	created, err := hub.Manager.CreateRoom("room", "Alice", "user-alice", "", 1, 30)
	if err != nil {
		t.Fatal(err)
	}
	roomId := created.RoomId

	conn := dialTestServer(t, srv)
	defer conn.Close()
	sendEvent(t, conn, types.EventJoinRoom, types.EventRequest{RoomId: roomId, UserId: "user-alice", Username: "Alice"})
	assert.Equal(t, types.EventRoomJoined, readEvent(t, conn, nil))

	sendEvent(t, conn, types.EventStartTimer, types.EventRequest{RoomId: roomId, UserId: "user-alice"})
	started := types.TimerStartedPayload{}
	assert.Equal(t, types.EventTimerStarted, readEvent(t, conn, &started))
	assert.Equal(t, true, started.TimerStatus.IsRunning)
	assert.Equal(t, 30, started.TimerStatus.TotalTime)

	sendEvent(t, conn, types.EventGetTimerStatus, types.EventRequest{RoomId: roomId})
	timerStatus := types.TimerStatusPayload{}
	assert.Equal(t, types.EventTimerStatus, readEvent(t, conn, &timerStatus))
	assert.Equal(t, roomId, timerStatus.RoomId)
	assert.Equal(t, true, timerStatus.TimerStatus.IsRunning)

	sendEvent(t, conn, types.EventGetRoomStatus, types.EventRequest{RoomId: roomId, UserId: "user-alice"})
	roomStatus := types.RoomStatusPayload{}
	assert.Equal(t, types.EventRoomStatus, readEvent(t, conn, &roomStatus))
	assert.Equal(t, "room", roomStatus.Name)
	assert.Equal(t, true, roomStatus.CanControlRounds)
	assert.Equal(t, 1, len(roomStatus.Participants))

	sendEvent(t, conn, types.EventGetRoundHistory, types.EventRequest{RoomId: roomId})
	history := types.RoundHistoryPayload{}
	assert.Equal(t, types.EventRoundHistory, readEvent(t, conn, &history))
	assert.Equal(t, roomId, history.RoomId)
	assert.Equal(t, 0, len(history.RoundHistory))
	assert.Equal(t, 1, history.TotalRounds)
}
