// Package kcp implements transport.Host over KCP sessions.
// KCP is reliable-only: unreliable sends are delivered reliably.
package kcp

import (
	"fmt"
	"sync"
	"time"

	kcpgo "github.com/xtaci/kcp-go/v5"
	"go.uber.org/zap"

	"github.com/LemmyAI/peerhost/internal/transport"
)

// Host implements transport.Host using a KCP listener.
type Host struct {
	config   transport.Config
	listener *kcpgo.Listener
	log      *zap.Logger
	queue    *transport.Queue

	sessions   map[*session]struct{}
	sessionsMu sync.Mutex

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type session struct {
	host      *Host
	conn      *kcpgo.UDPSession
	addr      string
	closeOnce sync.Once
}

// Listen binds a KCP listener on cfg.Addr() and starts accepting sessions.
func Listen(cfg transport.Config, log *zap.Logger) (*Host, error) {
	if log == nil {
		log = zap.NewNop()
	}

	listener, err := kcpgo.ListenWithOptions(cfg.Addr(), nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("listen kcp: %w", err)
	}

	h := &Host{
		config:   cfg,
		listener: listener,
		log:      log.Named("kcp"),
		queue:    transport.NewQueue(cfg.QueueSize),
		sessions: make(map[*session]struct{}),
		stopCh:   make(chan struct{}),
	}

	h.wg.Add(1)
	go h.acceptLoop()

	return h, nil
}

// Service returns the next queued event without waiting.
func (h *Host) Service() (transport.Event, bool) {
	return h.queue.TryPop()
}

// Flush is a no-op; write delay is disabled so every Write goes out immediately.
func (h *Host) Flush() {}

// Close shuts down the listener and every session.
func (h *Host) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.stopCh)
		err = h.listener.Close()

		h.sessionsMu.Lock()
		for s := range h.sessions {
			_ = s.conn.Close()
		}
		h.sessionsMu.Unlock()

		h.queue.Close()
		h.wg.Wait()
	})
	return err
}

// LocalAddr returns the local address.
func (h *Host) LocalAddr() string {
	return h.listener.Addr().String()
}

// Send writes one KCP message. The reliable flag is ignored.
func (s *session) Send(data []byte, reliable bool) error {
	if s.host.config.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.host.config.WriteTimeout))
	}
	if _, err := s.conn.Write(data); err != nil {
		return fmt.Errorf("kcp write: %w", err)
	}
	return nil
}

// Disconnect closes the session; the read loop reports the disconnect.
func (s *session) Disconnect() {
	s.close()
}

// Addr returns the remote address.
func (s *session) Addr() string {
	return s.addr
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

func (h *Host) acceptLoop() {
	defer h.wg.Done()

	for {
		conn, err := h.listener.AcceptKCP()
		if err != nil {
			select {
			case <-h.stopCh:
				return
			default:
			}
			// Accept only fails once the listener's socket is gone.
			h.log.Warn("accept failed", zap.Error(err))
			return
		}

		conn.SetStreamMode(false)
		conn.SetWriteDelay(false)
		conn.SetNoDelay(1, 10, 2, 1)
		conn.SetWindowSize(128, 128)

		s := &session{host: h, conn: conn, addr: conn.RemoteAddr().String()}

		h.sessionsMu.Lock()
		select {
		case <-h.stopCh:
			h.sessionsMu.Unlock()
			_ = conn.Close()
			return
		default:
		}
		h.sessions[s] = struct{}{}
		h.sessionsMu.Unlock()

		h.queue.Push(transport.Event{Type: transport.EventConnect, Peer: s})

		h.wg.Add(1)
		go h.readLoop(s)
	}
}

// readLoop delivers messages until the session fails or goes idle.
func (h *Host) readLoop(s *session) {
	defer h.wg.Done()
	defer func() {
		s.close()
		h.sessionsMu.Lock()
		delete(h.sessions, s)
		h.sessionsMu.Unlock()
		h.queue.Push(transport.Event{Type: transport.EventDisconnect, Peer: s})
	}()

	buf := make([]byte, h.config.MaxMessageSize)

	for {
		if h.config.IdleTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(h.config.IdleTimeout))
		}

		n, err := s.conn.Read(buf)
		if err != nil {
			h.log.Debug("session closed", zap.String("addr", s.addr), zap.Error(err))
			return
		}

		// Copy data (buf will be reused)
		data := make([]byte, n)
		copy(data, buf[:n])
		h.queue.Push(transport.Event{Type: transport.EventReceive, Peer: s, Data: data})
	}
}
