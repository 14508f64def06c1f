package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/CentreForDigitalHumanities/tscan/internal/logging"
	"github.com/CentreForDigitalHumanities/tscan/internal/models"
	"github.com/CentreForDigitalHumanities/tscan/internal/status"
	"github.com/CentreForDigitalHumanities/tscan/internal/storage"
)

// WebSocket message types for the progress protocol
const (
	// Client -> Server messages
	MsgTypeSubscribe   = "subscribe"
	MsgTypeUnsubscribe = "unsubscribe"
	MsgTypePing        = "ping"

	// Server -> Client messages
	MsgTypeConnected  = "connected"
	MsgTypeSubscribed = "subscribed"
	MsgTypeProgress   = "progress"
	MsgTypeComplete   = "complete"
	MsgTypeError      = "error"
	MsgTypePong       = "pong"
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// SubscribePayload selects the project whose status file is followed
type SubscribePayload struct {
	Owner   string `json:"owner"`
	Project string `json:"project"`
}

// WSProgressResponse carries one status record
type WSProgressResponse struct {
	Completion int    `json:"completion"`
	Message    string `json:"message"`
	Time       int64  `json:"time"`
}

// WSCompleteResponse is sent once a followed project finishes
type WSCompleteResponse struct {
	Project  models.Project `json:"project"`
	State    string         `json:"state"`
	ExitCode int            `json:"exitCode"`
	Aborted  bool           `json:"aborted"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// subscription is the project a connection follows.
type subscription struct {
	id      string
	project models.Project
	dir     string
	last    *models.StatusRecord
}

// WebSocketHandler pushes status file changes to connected clients
type WebSocketHandler struct {
	projects     *ProjectHandlerImpl
	upgrader     websocket.Upgrader
	pollInterval time.Duration
	log          *log.Logger
}

// NewWebSocketHandler creates a new progress WebSocket handler
func NewWebSocketHandler(projects *ProjectHandlerImpl) *WebSocketHandler {
	return &WebSocketHandler{
		projects: projects,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		pollInterval: projects.pollInterval,
		log:          logging.New("WebSocket"),
	}
}

// HandleWebSocket upgrades the connection and follows the subscribed
// project's status file. All writes happen on this goroutine; a reader
// goroutine forwards client messages.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	wsh.log.Info("Client connected for progress")
	wsh.sendMessage(ws, WSMessage{Type: MsgTypeConnected, Timestamp: time.Now().UnixMilli()})

	incoming := make(chan WSMessage)
	go func() {
		defer close(incoming)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					wsh.log.Warnf("Connection error: %v", err)
				}
				return
			}
			incoming <- msg
		}
	}()

	ticker := time.NewTicker(wsh.pollInterval)
	defer ticker.Stop()

	var sub *subscription
	for {
		select {
		case msg, ok := <-incoming:
			if !ok {
				wsh.log.Info("Client disconnected")
				return nil
			}
			switch msg.Type {
			case MsgTypePing:
				wsh.sendMessage(ws, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
			case MsgTypeSubscribe:
				sub = wsh.subscribe(ws, msg)
				if sub != nil && wsh.poll(ws, sub) {
					sub = nil
				}
			case MsgTypeUnsubscribe:
				sub = nil
			default:
				wsh.sendError(ws, msg.ID, "Unknown message type: "+msg.Type, "INVALID_TYPE")
			}

		case <-ticker.C:
			if sub != nil && wsh.poll(ws, sub) {
				sub = nil
			}
		}
	}
}

func (wsh *WebSocketHandler) subscribe(ws *websocket.Conn, msg WSMessage) *subscription {
	var payload SubscribePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, msg.ID, "Invalid subscribe payload: "+err.Error(), "INVALID_PAYLOAD")
		return nil
	}

	p, err := wsh.projects.lookup(payload.Owner, payload.Project)
	if err != nil {
		code := "INVALID_PROJECT"
		if apiErr, ok := err.(*APIError); ok {
			code = apiErr.Code
		}
		wsh.sendError(ws, msg.ID, err.Error(), code)
		return nil
	}

	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeSubscribed,
		ID:        msg.ID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(p),
	})
	wsh.log.Infof("Following %s/%s", p.Owner, p.Name)

	return &subscription{
		id:      msg.ID,
		project: p,
		dir:     wsh.projects.layout.ProjectDir(p.Owner, p.Name),
	}
}

// poll sends the latest status record if it changed and reports whether
// the project has finished.
func (wsh *WebSocketHandler) poll(ws *websocket.Conn, sub *subscription) bool {
	rec, err := status.ReadLatest(filepath.Join(sub.dir, storage.StatusFile))
	if err == nil && !sameRecord(sub.last, rec) {
		sub.last = &rec
		wsh.sendMessage(ws, WSMessage{
			Type:      MsgTypeProgress,
			ID:        sub.id,
			Timestamp: time.Now().UnixMilli(),
			Payload: mustJSON(WSProgressResponse{
				Completion: rec.Completion,
				Message:    rec.Message,
				Time:       rec.Time.Unix(),
			}),
		})
	}

	if !finished(sub.dir, sub.last) {
		return false
	}

	p := sub.project
	p.ExitCode = status.ReadExitCode(sub.dir)
	if p.ExitCode != status.ExitNotFinished {
		p.Status = models.StatusDone
	}
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeComplete,
		ID:        sub.id,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSCompleteResponse{
			Project:  p,
			State:    p.State().String(),
			ExitCode: p.ExitCode,
			Aborted:  status.IsAborted(sub.dir),
		}),
	})
	return true
}

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msg WSMessage) {
	if err := ws.WriteJSON(msg); err != nil {
		wsh.log.Warnf("Failed to send message: %v", err)
	}
}

func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, id, message, code string) {
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeError,
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSErrorResponse{
			Message: message,
			Code:    code,
		}),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
