package websocket

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/roomplay/tictactoe-backend/internal/entity"
)

const (
	actionConnect   = "connect"
	actionRoomJoin  = "room:join"
	actionRoomMove  = "room:move"
	actionRoomReset = "room:reset"
	actionRoomLeave = "room:leave"

	// pushed by the server for every committed write in the room
	actionRoomUpdate = "room:update"
)

// Message is the envelope for everything on the wire, both directions.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Payload struct {
	ClientID string       `json:"client_id,omitempty"`
	Code     string       `json:"code,omitempty"`
	Cell     *int         `json:"cell,omitempty"`
	Side     string       `json:"side,omitempty"`
	Room     *entity.Room `json:"room,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// client is one connected peer. The write mutex serializes the read-loop's
// replies with the subscription pump; gorilla connections allow only one
// concurrent writer.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	clientID string

	watchMu   sync.Mutex
	stopWatch func()
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn}
}

func (that *client) send(action string, payload Payload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	that.writeMu.Lock()
	defer that.writeMu.Unlock()

	if err = that.conn.WriteJSON(Message{Action: action, Payload: raw}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (that *client) sendError(action, errorMsg string) error {
	return that.send(action, Payload{Error: errorMsg})
}

// watch replaces the client's room subscription. Joining another room
// stops the previous pump first; a client follows one room at a time.
func (that *client) watch(stop func()) {
	that.watchMu.Lock()
	defer that.watchMu.Unlock()

	if that.stopWatch != nil {
		that.stopWatch()
	}
	that.stopWatch = stop
}

func (that *client) stopWatching() {
	that.watchMu.Lock()
	defer that.watchMu.Unlock()

	if that.stopWatch != nil {
		that.stopWatch()
		that.stopWatch = nil
	}
}
