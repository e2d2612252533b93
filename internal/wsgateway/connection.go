package wsgateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/WorldsMadeReal/world-host/core"
)

// wsConnection pairs one websocket.Conn with the core.Session it was bound
// to at Connect time, running the read and write pumps until either side
// closes.
type wsConnection struct {
	gateway *Gateway
	conn    *websocket.Conn
	session *core.Session

	writeMu sync.Mutex
}

func (c *wsConnection) run() {
	defer func() {
		c.gateway.sessions.Disconnect(c.session.SessionID())
		_ = c.conn.Close()
	}()

	done := make(chan struct{})
	go c.writePump(done)
	c.readPump()
	close(done)
}

// readPump decodes inbound frames and dispatches them through the Session
// Manager; it owns the connection's read side exclusively, per
// gorilla/websocket's single-reader requirement.
func (c *wsConnection) readPump() {
	timeout := c.gateway.connectionTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

		reply := c.handleFrame(raw)
		if reply != nil {
			c.session.Deliver(reply)
		}
	}
}

// writePump drains the session's outbound channel and a heartbeat ticker,
// serializing every write onto the connection's single writer.
func (c *wsConnection) writePump(done <-chan struct{}) {
	interval := c.gateway.heartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.session.Outbound():
			if !ok {
				return
			}
			if err := c.writeJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (c *wsConnection) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// frameEnvelope reads just the discriminator field; the concrete payload
// is decoded a second time into its typed struct once the type is known.
type frameEnvelope struct {
	Type string `json:"type"`
}

// handleFrame decodes raw's "type" field, builds the matching typed
// message, and dispatches it through the Session Manager. Unknown types
// and malformed frames produce a protocol error reply instead of
// terminating the connection.
func (c *wsConnection) handleFrame(raw []byte) any {
	var env frameEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return core.NewErrorMessage(core.ErrCodeInvalidMessage, "malformed frame")
	}

	switch env.Type {
	case "hello":
		return nil // hello_ok was already sent at Connect time

	case "login":
		var msg core.LoginMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return core.NewErrorMessage(core.ErrCodeInvalidMessage, err.Error())
		}
		return c.gateway.sessions.Dispatch(c.session.SessionID(), "login", msg)

	case "logout":
		return c.gateway.sessions.Dispatch(c.session.SessionID(), "logout", core.LogoutMessage{})

	case "set_view":
		var msg core.SetViewMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return core.NewErrorMessage(core.ErrCodeInvalidMessage, err.Error())
		}
		return c.gateway.sessions.Dispatch(c.session.SessionID(), "set_view", msg)

	case "subscribe_chunks":
		var msg core.SubscribeChunksMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return core.NewErrorMessage(core.ErrCodeInvalidMessage, err.Error())
		}
		return c.gateway.sessions.Dispatch(c.session.SessionID(), "subscribe_chunks", msg)

	case "unsubscribe_chunks":
		var msg core.UnsubscribeChunksMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return core.NewErrorMessage(core.ErrCodeInvalidMessage, err.Error())
		}
		return c.gateway.sessions.Dispatch(c.session.SessionID(), "unsubscribe_chunks", msg)

	case "move":
		var msg core.MoveMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return core.NewErrorMessage(core.ErrCodeInvalidMessage, err.Error())
		}
		return c.gateway.sessions.Dispatch(c.session.SessionID(), "move", msg)

	case "move_dir":
		var msg core.MoveDirMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return core.NewErrorMessage(core.ErrCodeInvalidMessage, err.Error())
		}
		return c.gateway.sessions.Dispatch(c.session.SessionID(), "move_dir", msg)

	case "add_contract":
		msg, err := decodeAddContract(raw)
		if err != nil {
			return core.NewErrorMessage(core.ErrCodeInvalidMessage, err.Error())
		}
		return c.gateway.sessions.Dispatch(c.session.SessionID(), "add_contract", msg)

	case "remove_contract":
		var msg core.RemoveContractMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return core.NewErrorMessage(core.ErrCodeInvalidMessage, err.Error())
		}
		return c.gateway.sessions.Dispatch(c.session.SessionID(), "remove_contract", msg)

	case "interact":
		var msg core.InteractMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return core.NewErrorMessage(core.ErrCodeInvalidMessage, err.Error())
		}
		return c.gateway.sessions.Dispatch(c.session.SessionID(), "interact", msg)

	default:
		return core.NewErrorMessage(core.ErrCodeUnknownMessageType, "unrecognized message type: "+env.Type)
	}
}

// decodeAddContract decodes the wire shape {"type":"add_contract",
// "entityId":..., "contract": {"kind": ..., ...fields}} into an
// AddContractMessage, using core.DecodeComponent for the nested contract
// object since Component is an interface with no JSON unmarshaler.
func decodeAddContract(raw []byte) (core.AddContractMessage, error) {
	var wire struct {
		EntityID string          `json:"entityId"`
		Contract json.RawMessage `json:"contract"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return core.AddContractMessage{}, err
	}
	contract, err := core.DecodeComponent(wire.Contract)
	if err != nil {
		return core.AddContractMessage{}, err
	}
	return core.AddContractMessage{EntityID: wire.EntityID, Contract: contract}, nil
}
