package api

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// wsMessage is what clients send. Only "subscribe" is understood: it sets
// the campaign filter ("" for all campaigns).
type wsMessage struct {
	Type     string `json:"type"`
	Campaign string `json:"campaign"`
}

// wsResponse wraps everything sent to the client.
type wsResponse struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// handleWebSocket mirrors the SSE stream over a websocket. The client may
// change its campaign filter at any time with a subscribe message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var filter atomic.Value
	filter.Store(r.URL.Query().Get("campaign"))

	id, ch := s.Sched.Subscribe()
	defer s.Sched.Unsubscribe(id)

	// Reader: tracks filter changes and detects close.
	closed := make(chan struct{})
	changed := make(chan string, 1)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
			if msg.Type != "subscribe" {
				continue
			}
			filter.Store(msg.Campaign)
			select {
			case changed <- msg.Campaign:
			default:
			}
		}
	}()

	send := func(resp wsResponse) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(resp); err != nil {
			slog.Debug("websocket write error", "error", err)
			return false
		}
		return true
	}
	catchUp := func(f string) bool {
		for _, n := range s.catchUp(f) {
			if !send(wsResponse{Type: string(n.Kind), Payload: n}) {
				return false
			}
		}
		return true
	}

	if !catchUp(filter.Load().(string)) {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case f := <-changed:
			if !send(wsResponse{Type: "subscribed", Payload: map[string]string{"campaign": f}}) || !catchUp(f) {
				return
			}
		case n, ok := <-ch:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			if !wantsCampaign(filter.Load().(string), n) {
				continue
			}
			if !send(wsResponse{Type: string(n.Kind), Payload: n}) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
