// Package udp implements transport.Host over plain UDP datagrams.
// A client is connected on its first datagram and disconnected once it has
// been silent for longer than the idle timeout.
package udp

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LemmyAI/peerhost/internal/transport"
)

// Host implements transport.Host using UDP.
type Host struct {
	config transport.Config
	conn   *net.UDPConn
	log    *zap.Logger
	queue  *transport.Queue

	// Track known clients for connect/disconnect events
	clients   map[string]*peer
	clientsMu sync.Mutex

	// Disconnects requested by the owning goroutine. They bypass the queue
	// because that goroutine is the only one draining it.
	pending   []transport.Event
	pendingMu sync.Mutex

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type peer struct {
	host     *Host
	addr     *net.UDPAddr
	lastSeen time.Time
}

// Listen binds a UDP socket on cfg.Addr() and starts the receive loop.
func Listen(cfg transport.Config, log *zap.Logger) (*Host, error) {
	if log == nil {
		log = zap.NewNop()
	}

	udpAddr, err := net.ResolveUDPAddr("udp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("resolve udp addr: %w", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}

	h := &Host{
		config:  cfg,
		conn:    conn,
		log:     log.Named("udp"),
		queue:   transport.NewQueue(cfg.QueueSize),
		clients: make(map[string]*peer),
		stopCh:  make(chan struct{}),
	}

	h.wg.Add(2)
	go h.receiveLoop()
	go h.reapLoop()

	return h, nil
}

// Service returns the next pending or queued event without waiting.
func (h *Host) Service() (transport.Event, bool) {
	h.pendingMu.Lock()
	if len(h.pending) > 0 {
		ev := h.pending[0]
		h.pending = h.pending[1:]
		h.pendingMu.Unlock()
		return ev, true
	}
	h.pendingMu.Unlock()
	return h.queue.TryPop()
}

// Flush is a no-op; datagrams are written immediately.
func (h *Host) Flush() {}

// Close shuts down the host.
func (h *Host) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.stopCh)
		err = h.conn.Close()
		h.queue.Close()
		h.wg.Wait()
	})
	return err
}

// LocalAddr returns the local address.
func (h *Host) LocalAddr() string {
	return h.conn.LocalAddr().String()
}

// Send writes data as a single datagram. Plain UDP has no reliable mode,
// so reliable sends degrade to unreliable ones.
func (p *peer) Send(data []byte, reliable bool) error {
	select {
	case <-p.host.stopCh:
		return transport.ErrClosed
	default:
	}
	_, err := p.host.conn.WriteToUDP(data, p.addr)
	return err
}

// Disconnect forgets the client and reports it as gone on the next Service.
func (p *peer) Disconnect() {
	h := p.host
	if gone, ok := h.forget(p.addr.String()); ok {
		h.pendingMu.Lock()
		h.pending = append(h.pending, transport.Event{Type: transport.EventDisconnect, Peer: gone})
		h.pendingMu.Unlock()
	}
}

// Addr returns the remote address.
func (p *peer) Addr() string {
	return p.addr.String()
}

// receiveLoop handles incoming UDP packets.
func (h *Host) receiveLoop() {
	defer h.wg.Done()

	buf := make([]byte, h.config.MaxMessageSize)

	for {
		n, addr, err := h.conn.ReadFromUDP(buf)
		if err != nil {
			// Check if we're shutting down
			select {
			case <-h.stopCh:
				return
			default:
				h.log.Debug("read failed", zap.Error(err))
				continue
			}
		}

		// Copy data (buf will be reused)
		data := make([]byte, n)
		copy(data, buf[:n])

		p, isNew := h.trackClient(addr)
		if isNew {
			h.queue.Push(transport.Event{Type: transport.EventConnect, Peer: p})
		}
		h.queue.Push(transport.Event{Type: transport.EventReceive, Peer: p, Data: data})
	}
}

// trackClient returns the peer for addr, reporting whether it is new.
// Events are pushed by the caller; the queue may block and must not be
// entered with clientsMu held.
func (h *Host) trackClient(addr *net.UDPAddr) (*peer, bool) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	key := addr.String()
	p, exists := h.clients[key]
	if exists {
		p.lastSeen = time.Now()
		return p, false
	}

	p = &peer{host: h, addr: addr, lastSeen: time.Now()}
	h.clients[key] = p
	return p, true
}

// forget removes a client from the table and returns it.
func (h *Host) forget(key string) (*peer, bool) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	p, exists := h.clients[key]
	if !exists {
		return nil, false
	}
	delete(h.clients, key)
	return p, true
}

// reapLoop disconnects clients that went silent.
func (h *Host) reapLoop() {
	defer h.wg.Done()

	if h.config.IdleTimeout <= 0 {
		<-h.stopCh
		return
	}

	ticker := time.NewTicker(h.config.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case now := <-ticker.C:
			var idle []string
			h.clientsMu.Lock()
			for key, p := range h.clients {
				if now.Sub(p.lastSeen) > h.config.IdleTimeout {
					idle = append(idle, key)
				}
			}
			h.clientsMu.Unlock()

			for _, key := range idle {
				if p, ok := h.forget(key); ok {
					h.log.Debug("client idle", zap.String("addr", key))
					h.queue.Push(transport.Event{Type: transport.EventDisconnect, Peer: p})
				}
			}
		}
	}
}
