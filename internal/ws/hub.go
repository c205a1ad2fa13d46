package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Hub keeps the local connections of every room. A room's set is dropped
// with its last connection.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*connSet
}

func NewHub() *Hub { return &Hub{rooms: make(map[string]*connSet)} }

// Broadcast is called by the Redis subscriber.
func (h *Hub) Broadcast(roomID string, msg []byte) {
	h.mu.Lock()
	s, ok := h.rooms[roomID]
	h.mu.Unlock()
	if !ok {
		return
	}
	for _, c := range s.broadcast(msg) {
		h.Leave(roomID, c)
	}
}

func (h *Hub) Join(roomID string, c *clientConn) {
	h.mu.Lock()
	s, ok := h.rooms[roomID]
	if !ok {
		s = newConnSet()
		h.rooms[roomID] = s
	}
	s.add(c)
	h.mu.Unlock()
}

func (h *Hub) Leave(roomID string, c *clientConn) {
	h.mu.Lock()
	if s, ok := h.rooms[roomID]; ok && s.remove(c) == 0 {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()
	c.close(websocket.CloseNormalClosure, "")
}

// Count reports the local connections of roomID.
func (h *Hub) Count(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.rooms[roomID]; ok {
		return s.len()
	}
	return 0
}

type connSet struct {
	mu    sync.RWMutex
	conns map[*clientConn]struct{}
}

func newConnSet() *connSet { return &connSet{conns: map[*clientConn]struct{}{}} }

func (s *connSet) add(c *clientConn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *connSet) remove(c *clientConn) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
	return len(s.conns)
}

func (s *connSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// broadcast writes msg to every connection and returns the ones that failed.
func (s *connSet) broadcast(msg []byte) []*clientConn {
	s.mu.RLock()
	conns := make([]*clientConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	// I/O outside the lock
	var failed []*clientConn
	for _, c := range conns {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			failed = append(failed, c)
		}
	}
	return failed
}
