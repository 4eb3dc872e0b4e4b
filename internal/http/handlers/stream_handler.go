// README: WebSocket stream pushing trip snapshots and debounced place suggestions.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"smartride/internal/http/middleware"
	"smartride/internal/modules/location"
	"smartride/internal/modules/trip"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxClientFrame = 4 << 10
)

type StreamHandler struct {
	places   location.Searcher
	debounce time.Duration
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewStreamHandler(places location.Searcher, debounce time.Duration, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		places:   places,
		debounce: debounce,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// streamMessage is what the server pushes: "snapshot" or "suggestions".
type streamMessage struct {
	Type   string           `json:"type"`
	Trip   *trip.Snapshot   `json:"trip,omitempty"`
	Text   string           `json:"text,omitempty"`
	Places []location.Place `json:"places,omitempty"`
}

// clientMessage is what the client sends; only "search" is understood.
type clientMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (h *StreamHandler) Stream(c *gin.Context) {
	o := middleware.TripFrom(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	snaps, unsubscribe := o.Subscribe()
	defer unsubscribe()

	suggestions := make(chan streamMessage, 1)
	deb := location.NewDebouncer(h.places, h.debounce)
	defer deb.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.readLoop(cancel, conn, deb, suggestions)

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "trip closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := h.write(conn, streamMessage{Type: "snapshot", Trip: &snap}); err != nil {
				return
			}
		case msg := <-suggestions:
			if err := h.write(conn, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) readLoop(cancel context.CancelFunc, conn *websocket.Conn, deb *location.Debouncer, out chan streamMessage) {
	defer cancel()

	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("stream closed", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "search" {
			continue
		}
		// deliver runs under the debouncer lock, so out has a single writer.
		deb.Input(msg.Text, func(text string, places []location.Place) {
			select {
			case <-out:
			default:
			}
			out <- streamMessage{Type: "suggestions", Text: text, Places: places}
		})
	}
}

func (h *StreamHandler) write(conn *websocket.Conn, msg streamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
