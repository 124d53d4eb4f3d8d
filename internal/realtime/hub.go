package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/pkg/logger"
)

const (
	// Ping/Pong settings
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second

	sendBuffer = 32
)

type subscriber struct {
	conn       *websocket.Conn
	universeID string // "" = 전체
	send       chan contracts.SnapshotEvent
}

func (s *subscriber) wants(ev contracts.SnapshotEvent) bool {
	return s.universeID == "" || s.universeID == ev.UniverseID
}

// Hub fans snapshot events out to websocket subscribers.
// Slow subscribers are dropped instead of blocking publishers.
// ⭐ SSOT: 실시간 이벤트 브로드캐스트는 여기서만
type Hub struct {
	upgrader websocket.Upgrader
	latest   *LatestEvents
	logger   *logger.Logger

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewHub creates a hub
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		latest: NewLatestEvents(),
		logger: log.WithComponent("realtime"),
		subs:   make(map[*subscriber]struct{}),
	}
}

// Publish implements snapshot.Publisher
func (h *Hub) Publish(ev contracts.SnapshotEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	h.latest.Update(ev)

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if !s.wants(ev) {
			continue
		}
		select {
		case s.send <- ev:
		default:
			h.logger.WithField("universe_id", s.universeID).Warn("subscriber too slow, dropping")
			h.removeLocked(s)
		}
	}
}

// Subscribers returns the number of connected clients
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Latest returns the newest event seen for a universe
func (h *Hub) Latest(universeID string) (contracts.SnapshotEvent, bool) {
	return h.latest.Get(universeID)
}

// ServeHTTP upgrades the request; ?universe_id= narrows the stream
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	s := &subscriber{
		conn:       conn,
		universeID: r.URL.Query().Get("universe_id"),
		send:       make(chan contracts.SnapshotEvent, sendBuffer),
	}
	// 늦게 붙은 구독자에게 최신 상태 먼저 전달
	if s.universeID != "" {
		if ev, ok := h.latest.Get(s.universeID); ok {
			s.send <- ev
		}
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	h.logger.WithField("universe_id", s.universeID).Debug("subscriber connected")

	go h.writeLoop(s)
	h.readLoop(s)
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		h.removeLocked(s)
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *subscriber) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.send)
}

// readLoop only tracks pongs and detects disconnects
func (h *Hub) readLoop(s *subscriber) {
	defer func() {
		h.remove(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(ev); err != nil {
				h.logger.WithError(err).Debug("write failed")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
