// websocket.go - Session progress over WebSocket
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/plc-visualizer/logparse/internal/logging"
)

// WebSocket message types
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeProgress  = "progress"
	MsgTypeComplete  = "complete"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSErrorResponse is the payload of an error frame.
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler pushes session snapshots to WebSocket clients until the
// parse finishes.
type WebSocketHandler struct {
	sessionMgr SessionManager
	upgrader   websocket.Upgrader
	interval   time.Duration
	logger     *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket progress handler
func NewWebSocketHandler(sessionMgr SessionManager, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		sessionMgr: sessionMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		interval: progressInterval,
		logger:   logging.WithComponent(logger, "websocket"),
	}
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) send(msgType, id string, payload any) error {
	msg := WSMessage{Type: msgType, ID: id, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		msg.Payload = raw
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

// HandleProgressSocket upgrades the connection and streams progress frames
// for one session, ending with a complete or error frame.
func (h *WebSocketHandler) HandleProgressSocket(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}
	if _, ok := h.sessionMgr.GetSession(id); !ok {
		return NewNotFoundError("session", id)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	conn := &wsConn{ws: ws}
	log := h.logger.With("session", shortSessionID(id))
	log.Debug("client connected")

	closed := make(chan struct{})
	go h.readLoop(conn, id, closed, log)

	if err := conn.send(MsgTypeConnected, id, nil); err != nil {
		return nil
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	timeout := time.NewTimer(progressTimeout)
	defer timeout.Stop()

	for {
		sess, ok := h.sessionMgr.GetSession(id)
		if !ok {
			_ = conn.send(MsgTypeError, id, WSErrorResponse{Message: "session not found", Code: "NOT_FOUND"})
			return nil
		}

		msgType := MsgTypeProgress
		if isTerminal(sess.Status) {
			msgType = MsgTypeComplete
		}
		if err := conn.send(msgType, id, sess); err != nil {
			log.Debug("send failed", "error", err)
			return nil
		}
		if msgType == MsgTypeComplete {
			h.closeNormally(conn)
			return nil
		}
		h.sessionMgr.TouchSession(id)

		select {
		case <-closed:
			log.Debug("client disconnected")
			return nil
		case <-timeout.C:
			_ = conn.send(MsgTypeError, id, WSErrorResponse{Message: "stream timeout", Code: "TIMEOUT"})
			return nil
		case <-ticker.C:
		}
	}
}

// readLoop answers pings and reports when the client goes away.
func (h *WebSocketHandler) readLoop(conn *wsConn, id string, closed chan<- struct{}, log *slog.Logger) {
	defer close(closed)
	for {
		var msg WSMessage
		if err := conn.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("connection error", "error", err)
			}
			return
		}
		switch msg.Type {
		case MsgTypePing:
			_ = conn.send(MsgTypePong, id, nil)
		default:
			_ = conn.send(MsgTypeError, id, WSErrorResponse{Message: "unknown message type: " + msg.Type, Code: "INVALID_TYPE"})
		}
	}
}

func (h *WebSocketHandler) closeNormally(conn *wsConn) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	_ = conn.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "parse finished"),
		time.Now().Add(time.Second))
}

func shortSessionID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
