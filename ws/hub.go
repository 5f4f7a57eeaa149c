package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/scrumpoker/scrumpoker/config"
	"github.com/scrumpoker/scrumpoker/globals"
	"github.com/scrumpoker/scrumpoker/room"
	"github.com/scrumpoker/scrumpoker/types"
)

const (
	maxMessageSize = 4096
	pongWait       = 2 * time.Minute
	pingPeriod     = time.Minute
	writeWait      = 10 * time.Second
)

// Hub tracks all connected clients and the room each bound client belongs
// to. It is the registry behind the SendToRoom / SendToRoomExcept fan-out
// primitives; one client is a member of at most one room at a time.
type Hub struct {
	// Registered clients.
	clients map[*Client]struct{}

	// room membership, keyed by room id
	rooms map[string]map[*Client]struct{}

	// Register a new client to the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	// global configuration
	Cfg *config.Config

	// persisted room operations
	Manager *room.Manager

	// mutex for manipulating the clients and the room membership
	sync.RWMutex
}

func NewHub(cfg *config.Config, manager *room.Manager) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Cfg:        cfg,
		Manager:    manager,
	}
}

// NoClients returns the number of clients registered
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// Run is the main hub event loop handling register and unregister events.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			globals.AppLogger.Debug("register new client")
			h.Lock()
			h.clients[client] = struct{}{}
			h.Unlock()
			client.Done()

		case client := <-h.Unregister:
			h.RLock()
			_, ok := h.clients[client]
			h.RUnlock()
			if !ok {
				continue
			}
			globals.AppLogger.Debug("unregister client")
			// run the disconnect cleanup (participant removal and the
			// resulting broadcasts) before the client is dropped from the
			// registry, it still needs the fan-out primitives
			h.Disconnect(client)
			h.Lock()
			delete(h.clients, client)
			h.removeFromRoomLocked(client)
			client.conn.Close()
			// wait for all loops and write operations to be finished, then
			// it is safe to close the send channel (all writers hold the hub
			// RLock and check the registry first)
			client.Wait()
			close(client.Send)
			h.Unlock()
		}
	}
}

// JoinRoom adds the client to the room's membership set.
func (h *Hub) JoinRoom(roomId string, client *Client) {
	h.Lock()
	defer h.Unlock()
	members := h.rooms[roomId]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[roomId] = members
	}
	members[client] = struct{}{}
}

// LeaveRoom removes the client from the room's membership set.
func (h *Hub) LeaveRoom(roomId string, client *Client) {
	h.Lock()
	defer h.Unlock()
	h.leaveRoomLocked(roomId, client)
}

func (h *Hub) leaveRoomLocked(roomId string, client *Client) {
	if members, ok := h.rooms[roomId]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, roomId)
		}
	}
}

func (h *Hub) removeFromRoomLocked(client *Client) {
	for roomId, members := range h.rooms {
		if _, ok := members[client]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, roomId)
			}
		}
	}
}

// DropRoom force-removes every connection from the room's membership set,
// used when the room itself has been deleted. Bindings on other clients are
// left to their own disconnect/leave paths, which tolerate a missing room.
func (h *Hub) DropRoom(roomId string) {
	h.Lock()
	defer h.Unlock()
	delete(h.rooms, roomId)
}

// SendToRoom broadcasts one event to every connection in the room.
func (h *Hub) SendToRoom(roomId string, event string, payload interface{}) {
	h.sendToRoom(roomId, nil, event, payload)
}

// SendToRoomExcept broadcasts one event to every connection in the room
// except the originating one.
func (h *Hub) SendToRoomExcept(roomId string, exclude *Client, event string, payload interface{}) {
	h.sendToRoom(roomId, exclude, event, payload)
}

func (h *Hub) sendToRoom(roomId string, exclude *Client, event string, payload interface{}) {
	message, err := marshalEvent(event, payload)
	if err != nil {
		globals.AppLogger.Error("could not marshal event", "event", event, "error", err)
		return
	}
	var wg sync.WaitGroup
	h.RLock()
	for client := range h.rooms[roomId] {
		if client == exclude {
			continue
		}
		wg.Add(1)
		client.Add(1)
		go func(c *Client) {
			defer wg.Done()
			defer c.Done()
			select {
			case c.Send <- message:
			case <-c.doneChan:
				// connection is gone, do not block on a full buffer
			}
		}(client)
	}
	wg.Wait()
	h.RUnlock()
}

func marshalEvent(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(types.WebsocketMessage{Event: event, Data: data})
}
