// Package ws implements transport.Host over WebSocket connections, for
// browser clients that cannot open UDP sockets. Every message is delivered
// reliably and in order.
package ws

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/LemmyAI/peerhost/internal/transport"
)

// Host implements transport.Host using a WebSocket endpoint.
type Host struct {
	config   transport.Config
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader
	log      *zap.Logger
	queue    *transport.Queue

	conns   map[*conn]struct{}
	connsMu sync.Mutex

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type conn struct {
	host      *Host
	ws        *websocket.Conn
	addr      string
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Listen binds a TCP listener on cfg.Addr() and serves WebSocket upgrades on cfg.Path.
func Listen(cfg transport.Config, log *zap.Logger) (*Host, error) {
	if log == nil {
		log = zap.NewNop()
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("listen tcp: %w", err)
	}

	h := &Host{
		config:   cfg,
		listener: ln,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.MaxMessageSize,
			WriteBufferSize: cfg.MaxMessageSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:    log.Named("ws"),
		queue:  transport.NewQueue(cfg.QueueSize),
		conns:  make(map[*conn]struct{}),
		stopCh: make(chan struct{}),
	}

	path := cfg.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, h.handleUpgrade)
	h.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Error("serve failed", zap.Error(err))
		}
	}()

	return h, nil
}

// Service returns the next queued event without waiting.
func (h *Host) Service() (transport.Event, bool) {
	return h.queue.TryPop()
}

// Flush is a no-op; each message is written as one frame.
func (h *Host) Flush() {}

// Close stops the HTTP server and closes every connection.
func (h *Host) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.stopCh)
		err = h.server.Close()

		// Hijacked connections are not closed by http.Server.
		h.connsMu.Lock()
		for c := range h.conns {
			_ = c.ws.Close()
		}
		h.connsMu.Unlock()

		h.queue.Close()
		h.wg.Wait()
	})
	return err
}

// LocalAddr returns the local address.
func (h *Host) LocalAddr() string {
	return h.listener.Addr().String()
}

// Send writes one binary message. The reliable flag is ignored.
func (c *conn) Send(data []byte, reliable bool) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.host.config.WriteTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.host.config.WriteTimeout))
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return transport.ErrClosed
		}
		return fmt.Errorf("ws write: %w", err)
	}
	return nil
}

// Disconnect sends a close frame and closes the socket; the read loop
// reports the disconnect.
func (c *conn) Disconnect() {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
}

// Addr returns the remote address.
func (c *conn) Addr() string {
	return c.addr
}

func (h *Host) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	wsConn.SetReadLimit(int64(h.config.MaxMessageSize))

	c := &conn{host: h, ws: wsConn, addr: wsConn.RemoteAddr().String()}

	h.connsMu.Lock()
	select {
	case <-h.stopCh:
		h.connsMu.Unlock()
		_ = wsConn.Close()
		return
	default:
	}
	h.conns[c] = struct{}{}
	h.wg.Add(1)
	h.connsMu.Unlock()
	defer h.wg.Done()

	h.queue.Push(transport.Event{Type: transport.EventConnect, Peer: c})
	h.readLoop(c)
}

// readLoop delivers messages until the connection fails or goes idle.
func (h *Host) readLoop(c *conn) {
	defer func() {
		_ = c.ws.Close()
		h.connsMu.Lock()
		delete(h.conns, c)
		h.connsMu.Unlock()
		h.queue.Push(transport.Event{Type: transport.EventDisconnect, Peer: c})
	}()

	for {
		if h.config.IdleTimeout > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(h.config.IdleTimeout))
		}

		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			h.log.Debug("connection closed", zap.String("addr", c.addr), zap.Error(err))
			return
		}
		if msgType != websocket.BinaryMessage && msgType != websocket.TextMessage {
			continue
		}
		h.queue.Push(transport.Event{Type: transport.EventReceive, Peer: c, Data: data})
	}
}
