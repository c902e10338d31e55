package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collabforge/core/internal/apierr"
	"github.com/collabforge/core/internal/logging"
	"github.com/collabforge/core/internal/session"
)

// upgrader uses a permissive
// origin check left to an outer reverse proxy, buffer sizes sized for JSON
// operation envelopes rather than large binary frames.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn adapts one live WebSocket connection to a session.Registry: it pumps
// inbound op frames into the registry (any other event_type is answered with
// an error envelope) and relays the registry's broadcast Subscription back
// out as envelopes.
type Conn struct {
	ws        *websocket.Conn
	registry  *session.Registry
	sessionID string
	userID    string
}

// ServeWS upgrades r into a WebSocket, joins userID to sessionID, and pumps
// messages until the connection closes. Errors from Join are written back
// as a single "error" envelope before the upgrade is abandoned.
func ServeWS(w http.ResponseWriter, r *http.Request, registry *session.Registry, sessionID, userID string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	if err := registry.Join(sessionID, userID); err != nil {
		_ = ws.WriteJSON(ErrorEnvelope(sessionID, userID, errorKind(err), err.Error()))
		return
	}
	defer registry.Leave(sessionID, userID)

	sub, err := registry.Subscribe(sessionID, userID)
	if err != nil {
		_ = ws.WriteJSON(ErrorEnvelope(sessionID, userID, errorKind(err), err.Error()))
		return
	}
	defer sub.Unsubscribe()

	c := &Conn{ws: ws, registry: registry, sessionID: sessionID, userID: userID}

	done := make(chan struct{})
	go c.writePump(sub, done)
	c.readPump()
	close(done)
}

// writePump relays broadcast events to the client until the subscription
// ends (close or lag) or done fires because readPump returned.
func (c *Conn) writePump(sub *session.Subscription, done chan struct{}) {
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.Closed {
				_ = c.ws.WriteJSON(ErrorEnvelope(c.sessionID, c.userID, "closed", "session closed"))
				return
			}
			if ev.Lagged {
				_ = c.ws.WriteJSON(ErrorEnvelope(c.sessionID, c.userID, "lagged", "subscriber buffer overflowed"))
				return
			}
			if err := c.ws.WriteJSON(BroadcastEnvelope(c.sessionID, ev.Op.Author, ev.Op)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readPump decodes inbound envelopes and dispatches them to the registry,
// writing back ack/conflict/error envelopes per the wire protocol.
func (c *Conn) readPump() {
	for {
		var env Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			return
		}

		switch env.EventType {
		case EventOp:
			c.handleOp(env)
		default:
			_ = c.ws.WriteJSON(ErrorEnvelope(c.sessionID, c.userID, "invalid_operation", "unrecognized event_type"))
		}
	}
}

func (c *Conn) handleOp(env Envelope) {
	var payload OpPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		_ = c.ws.WriteJSON(ErrorEnvelope(c.sessionID, c.userID, "invalid_operation", "malformed op payload"))
		return
	}

	op := payload.ToOperation(c.userID)
	version, err := c.registry.Submit(c.sessionID, op)
	if err != nil {
		var conflict *apierr.Conflict
		if errors.As(err, &conflict) {
			report, derr := c.registry.DetectConflicts(c.sessionID, c.userID, op.Version)
			if derr == nil {
				_ = c.ws.WriteJSON(ConflictEnvelope(c.sessionID, c.userID, report.ConflictingOperations, time.Now()))
				return
			}
		}
		_ = c.ws.WriteJSON(ErrorEnvelope(c.sessionID, c.userID, errorKind(err), err.Error()))
		return
	}
	_ = c.ws.WriteJSON(AckEnvelope(c.sessionID, c.userID, version))
}

// errorKind maps the apierr taxonomy to the short string the wire protocol
// surfaces in an "error" envelope's Kind field.
func errorKind(err error) string {
	switch {
	case errors.As(err, new(*apierr.NotFound)):
		return "not_found"
	case errors.As(err, new(*apierr.NotInSession)):
		return "not_in_session"
	case errors.As(err, new(*apierr.InvalidOperation)):
		return "invalid_operation"
	case errors.As(err, new(*apierr.Forbidden)):
		return "forbidden"
	case errors.As(err, new(*apierr.Conflict)):
		return "conflict"
	case errors.As(err, new(*apierr.ExternalTimeout)):
		return "external_timeout"
	case errors.As(err, new(*apierr.StoreFailure)):
		return "store_failure"
	default:
		return "error"
	}
}
