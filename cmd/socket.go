package cmd

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// hub fans websocket messages out to every connected browser. Writes are
// serialized under mu since a gorilla connection allows one writer.
type hub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	logger *zap.SugaredLogger
}

func newHub(logger *zap.SugaredLogger) *hub {
	return &hub{conns: make(map[*websocket.Conn]struct{}), logger: logger}
}

func (h *hub) add(conn *websocket.Conn, initial config.WebsocketMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.writeLocked(conn, initial); err != nil {
		return err
	}
	h.conns[conn] = struct{}{}
	return nil
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		conn.Close()
	}
}

func (h *hub) broadcast(msg config.WebsocketMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := h.writeLocked(conn, msg); err != nil {
			h.logger.Errorf("writing websocket message: %s", err)
			delete(h.conns, conn)
			conn.Close()
		}
	}
}

func (h *hub) writeLocked(conn *websocket.Conn, msg config.WebsocketMessage) error {
	j, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, j)
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}

func (s *WebServer) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("upgrading websocket connection: %s", err)
		return
	}

	stateJSON, err := json.Marshal(s.snapshot())
	if err != nil {
		s.logger.Errorf("marshalling panel state: %s", err)
		conn.Close()
		return
	}
	if err := s.panel.hub.add(conn, config.WebsocketMessage{Channel: stateChannel, Message: string(stateJSON)}); err != nil {
		s.logger.Errorf("writing initial websocket message: %s", err)
		conn.Close()
		return
	}

	// the relay is one way, reads only detect the peer going away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.panel.hub.remove(conn)
			return
		}
	}
}
