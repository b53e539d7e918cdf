package relay

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"
)

// lockedConn serializes frame writes from the writer goroutine and the
// control-frame replies issued while reading.
type lockedConn struct {
	net.Conn
	mu *sync.Mutex
}

func (c lockedConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.Write(p)
}

// ServeHTTP upgrades the request to a WebSocket and relays every text frame
// the peer sends to all other peers. A peer receives only frames broadcast
// after its registration.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.Debug("relay upgrade failed", zap.Error(err))
		return
	}
	// Server read and write timeouts would otherwise outlive the upgrade.
	_ = raw.SetDeadline(time.Time{})
	conn := lockedConn{Conn: raw, mu: &sync.Mutex{}}

	peer := NewPeer(h.queueSize)
	if !h.Register(peer) {
		_ = raw.Close()
		return
	}
	go h.writeLoop(peer, conn)

	for {
		data, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			break
		}
		if op != ws.OpText {
			continue
		}
		h.Broadcast(peer, data)
	}
	h.Unregister(peer)
}

// writeLoop drains the peer's queue until the hub closes it. A failed write
// removes the peer; the connection is closed on exit.
func (h *Hub) writeLoop(peer *Peer, conn lockedConn) {
	defer conn.Close()
	failed := false
	for data := range peer.out {
		if failed {
			continue
		}
		if err := wsutil.WriteServerMessage(conn, ws.OpText, data); err != nil {
			h.logger.Debug("relay write failed, dropping peer", zap.String("peer", peer.ID), zap.Error(err))
			failed = true
			_ = conn.Close()
			h.Unregister(peer)
		}
	}
}
