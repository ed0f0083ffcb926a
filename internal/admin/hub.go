package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout = 30 * time.Second
	wsHeartbeat   = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// hub fans out JSON-encoded events to every subscriber of one kind ("logs"
// or "progress"). The process-wide connection cap is enforced by the
// owning Server before serve is ever called.
type hub struct {
	name   string
	logger *slog.Logger

	mu    sync.Mutex
	conns map[*hubConn]struct{}
}

type hubConn struct {
	ws   *websocket.Conn
	send chan []byte
}

func newHub(name string, logger *slog.Logger) *hub {
	return &hub{name: name, logger: logger, conns: make(map[*hubConn]struct{})}
}

func (h *hub) broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("marshal broadcast event", "hub", h.name, "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		select {
		case c.send <- b:
		default:
			h.logger.Warn("dropping slow websocket subscriber", "hub", h.name)
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// serve upgrades the request to a websocket and pumps broadcasts to it
// until the client disconnects or its read deadline lapses without a pong.
func (h *hub) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "hub", h.name, "error", err)
		return
	}

	c := &hubConn{ws: ws, send: make(chan []byte, 32)}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
		close(c.send)
		ws.Close()
	}()

	ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Client frames carry no protocol meaning here; reading them only
		// drives pong receipt (gorilla dispatches pongs from ReadMessage)
		// and detects client-initiated close.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.writePump(ws, c, done)
}

func (h *hub) writePump(ws *websocket.Conn, c *hubConn, done <-chan struct{}) {
	ticker := time.NewTicker(wsHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-c.send:
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
