package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	ws "github.com/homestay-booking/backend/internal/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// WebSocketUpgrade returns a handler that upgrades HTTP connections to
// WebSocket. An empty allowedOrigins or a "*" entry accepts any origin.
func WebSocketUpgrade(hub *ws.Hub, allowedOrigins []string, logger *zap.SugaredLogger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warnw("websocket upgrade failed", "error", err)
			return
		}

		client := ws.NewClient(hub)
		hub.Register(client)

		go writePump(conn, client)
		go readPump(conn, client, hub, logger)
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set[origin]
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func writePump(conn *websocket.Conn, client *ws.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case reply := <-client.Replies():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads client commands until the connection closes.
func readPump(conn *websocket.Conn, client *ws.Client, hub *ws.Hub, logger *zap.SugaredLogger) {
	defer func() {
		hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(65536)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debugw("websocket read error", "error", err)
			}
			return
		}

		if data, err := handleClientMessage(message).JSON(); err == nil {
			client.Reply(data)
		}
	}
}

// handleClientMessage answers a client command. Only ping is understood.
func handleClientMessage(message []byte) ws.Message {
	var cmd struct {
		Type ws.MessageType `json:"type"`
	}
	if err := json.Unmarshal(message, &cmd); err != nil {
		return ws.NewMessage(ws.TypeError, ws.ErrorPayload{Code: "invalid_message", Message: "Message must be a JSON object with a type"})
	}

	if cmd.Type == ws.TypePing {
		return ws.NewMessage(ws.TypePong, nil)
	}
	return ws.NewMessage(ws.TypeError, ws.ErrorPayload{
		Code:         "unknown_type",
		Message:      "Unsupported message type",
		OriginalType: string(cmd.Type),
	})
}
