// Package relay fans signaling frames out to every other connected peer.
package relay

import (
	"context"

	"go.uber.org/zap"

	"supernova/api/internal/logging"
	"supernova/api/internal/util"
)

const DefaultQueueSize = 64

// Peer is one registered connection. The hub enqueues frames into its
// outbound queue; a single writer drains it.
type Peer struct {
	ID  string
	out chan []byte
}

func NewPeer(queueSize int) *Peer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Peer{ID: util.NewID("peer"), out: make(chan []byte, queueSize)}
}

// Outbound is closed once the hub drops the peer.
func (p *Peer) Outbound() <-chan []byte {
	return p.out
}

type frame struct {
	from *Peer
	data []byte
}

// Hub owns the peer set. All mutations arrive over channels and are applied
// by the Run goroutine.
type Hub struct {
	register   chan *Peer
	unregister chan *Peer
	broadcast  chan frame
	count      chan chan int
	done       chan struct{}
	started    chan struct{}

	queueSize int
	logger    *zap.Logger
}

func NewHub(queueSize int, logger *zap.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		register:   make(chan *Peer),
		unregister: make(chan *Peer),
		broadcast:  make(chan frame),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		started:    make(chan struct{}),
		queueSize:  queueSize,
		logger:     logging.OrNop(logger),
	}
}

// Run serves the hub until ctx is done, then drops every peer.
func (h *Hub) Run(ctx context.Context) error {
	peers := make(map[*Peer]struct{})
	drop := func(p *Peer) {
		if _, ok := peers[p]; !ok {
			return
		}
		delete(peers, p)
		close(p.out)
	}
	defer close(h.done)
	defer func() {
		for p := range peers {
			drop(p)
		}
	}()
	close(h.started)

	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-h.register:
			peers[p] = struct{}{}
			h.logger.Debug("relay peer connected", zap.String("peer", p.ID), zap.Int("peers", len(peers)))
		case p := <-h.unregister:
			drop(p)
			h.logger.Debug("relay peer disconnected", zap.String("peer", p.ID), zap.Int("peers", len(peers)))
		case f := <-h.broadcast:
			if _, ok := peers[f.from]; !ok {
				continue
			}
			targets := make([]*Peer, 0, len(peers))
			for p := range peers {
				if p != f.from {
					targets = append(targets, p)
				}
			}
			for _, p := range targets {
				select {
				case p.out <- f.data:
				default:
					h.logger.Warn("relay peer queue full, dropping peer", zap.String("peer", p.ID))
					drop(p)
				}
			}
		case reply := <-h.count:
			reply <- len(peers)
		}
	}
}

// Running reports whether Run has started and not yet stopped.
func (h *Hub) Running() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case <-h.started:
		return true
	default:
		return false
	}
}

// Register adds p to the active set. It returns false once the hub has
// stopped.
func (h *Hub) Register(p *Peer) bool {
	select {
	case h.register <- p:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes p and closes its outbound queue. Removing an unknown
// peer is a no-op.
func (h *Hub) Unregister(p *Peer) {
	select {
	case h.unregister <- p:
	case <-h.done:
	}
}

// Broadcast forwards data verbatim to every peer except from.
func (h *Hub) Broadcast(from *Peer, data []byte) {
	select {
	case h.broadcast <- frame{from: from, data: data}:
	case <-h.done:
	}
}

// Count returns the number of active peers, or 0 once stopped.
func (h *Hub) Count() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}
