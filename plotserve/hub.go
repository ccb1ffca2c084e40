package plotserve

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tsawler/wastenet/logging"
)

// hub tracks connected dashboard pages and pushes plot events to all of
// them. Writes are serialized by the mutex; gorilla allows at most one
// concurrent writer per connection.
type hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
	log   *logging.Logger
}

func newHub(log *logging.Logger) *hub {
	return &hub{
		conns: make(map[*websocket.Conn]bool),
		log:   log,
	}
}

// add registers a connection and starts the read loop that notices when the
// browser goes away
func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()
	go h.watch(conn)
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

// watch drains incoming frames so close frames get processed. Dashboards
// only listen; the payload is ignored.
func (h *hub) watch(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(conn)
			return
		}
	}
}

// broadcast sends msg to every connected page, dropping connections whose
// write fails
func (h *hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Debug("dropping dashboard connection", "error", err)
			delete(h.conns, conn)
			conn.Close()
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
