package realtime

import (
	"sync"

	"go.uber.org/zap"
)

type userKey struct {
	tenantID int64
	userID   int64
}

// Hub fans notifications out to every open socket of a user.
type Hub struct {
	mu    sync.RWMutex
	conns map[userKey]map[*Conn]struct{}
	log   *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		conns: make(map[userKey]map[*Conn]struct{}),
		log:   log,
	}
}

func (h *Hub) Register(tenantID, userID int64, conn *Conn) {
	k := userKey{tenantID, userID}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[k] == nil {
		h.conns[k] = make(map[*Conn]struct{})
	}
	h.conns[k][conn] = struct{}{}
}

func (h *Hub) Unregister(tenantID, userID int64, conn *Conn) {
	k := userKey{tenantID, userID}
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.conns[k]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.conns, k)
		}
	}
}

// Push queues v on every socket of the user. Slow sockets drop the message.
func (h *Hub) Push(tenantID, userID int64, v any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.conns[userKey{tenantID, userID}] {
		if !conn.enqueue(v) {
			h.log.Warn("[ws][push] send buffer full, message dropped",
				zap.Int64("tenant_id", tenantID), zap.Int64("user_id", userID))
		}
	}
}

// Connections returns the number of open sockets of a user.
func (h *Hub) Connections(tenantID, userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userKey{tenantID, userID}])
}
