package transport

import (
	"sync"
)

// MockHost is a mock implementation for testing.
type MockHost struct {
	addr    string
	queue   []Event
	sent    []MockMessage
	flushes int
	closed  bool
	mu      sync.Mutex
}

// MockMessage records a sent message.
type MockMessage struct {
	Addr     string
	Data     []byte
	Reliable bool
}

// MockPeer is the peer handle handed out by MockHost.
type MockPeer struct {
	host         *MockHost
	addr         string
	disconnected bool
}

// NewMockHost creates a new mock host.
func NewMockHost(addr string) *MockHost {
	return &MockHost{
		addr: addr,
		sent: make([]MockMessage, 0),
	}
}

// Service pops the next simulated event.
func (h *MockHost) Service() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return Event{}, false
	}
	ev := h.queue[0]
	h.queue = h.queue[1:]
	return ev, true
}

// Flush counts flushes.
func (h *MockHost) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushes++
}

// Close marks the host closed.
func (h *MockHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// LocalAddr returns the mock address.
func (h *MockHost) LocalAddr() string {
	return h.addr
}

// Send records the message as sent.
func (p *MockPeer) Send(data []byte, reliable bool) error {
	p.host.mu.Lock()
	defer p.host.mu.Unlock()
	if p.host.closed {
		return ErrClosed
	}
	p.host.sent = append(p.host.sent, MockMessage{Addr: p.addr, Data: data, Reliable: reliable})
	return nil
}

// Disconnect queues a disconnect event, as a real host would after the
// remote acknowledges.
func (p *MockPeer) Disconnect() {
	p.host.mu.Lock()
	defer p.host.mu.Unlock()
	if p.disconnected {
		return
	}
	p.disconnected = true
	p.host.queue = append(p.host.queue, Event{Type: EventDisconnect, Peer: p})
}

// Addr returns the peer address.
func (p *MockPeer) Addr() string {
	return p.addr
}

// Disconnected reports whether the peer has been disconnected.
func (p *MockPeer) Disconnected() bool {
	p.host.mu.Lock()
	defer p.host.mu.Unlock()
	return p.disconnected
}

// --- Test helpers ---

// SimulateConnect simulates a client connecting and returns its handle.
func (h *MockHost) SimulateConnect(addr string) *MockPeer {
	p := &MockPeer{host: h, addr: addr}
	h.push(Event{Type: EventConnect, Peer: p})
	return p
}

// SimulateMessage simulates receiving a message from peer.
func (h *MockHost) SimulateMessage(p *MockPeer, data []byte) {
	h.push(Event{Type: EventReceive, Peer: p, Data: data})
}

// SimulateDisconnect simulates a client disconnecting.
func (h *MockHost) SimulateDisconnect(p *MockPeer) {
	h.mu.Lock()
	p.disconnected = true
	h.mu.Unlock()
	h.push(Event{Type: EventDisconnect, Peer: p})
}

func (h *MockHost) push(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queue = append(h.queue, ev)
}

// SentMessages returns all sent messages.
func (h *MockHost) SentMessages() []MockMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]MockMessage{}, h.sent...)
}

// Flushes returns how many times Flush was called.
func (h *MockHost) Flushes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flushes
}

// Closed reports whether Close was called.
func (h *MockHost) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Clear clears all recorded messages and flush counts.
func (h *MockHost) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = h.sent[:0]
	h.flushes = 0
}
