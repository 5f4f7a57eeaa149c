package ws

import (
	"testing"
	"time"

	"github.com/scrumpoker/scrumpoker/config"
	"github.com/scrumpoker/scrumpoker/types"
)

func TestSendToRoomSkipsDeadClient(t *testing.T) {
	hub := NewHub(&config.Config{}, nil)
	doneChan := make(chan struct{})
	client := NewClient(hub, nil, "", doneChan)
	hub.JoinRoom("ROOM0001", client)

	// a dead write pump never drains the buffer
	for i := 0; i < sendChannelSize; i++ {
		client.Send <- []byte("x")
	}
	close(doneChan)

	done := make(chan struct{})
	go func() {
		hub.SendToRoom("ROOM0001", types.EventError, types.ErrorPayload{Message: "m"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a client with a full send buffer")
	}
}
