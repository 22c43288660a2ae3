// Package transport provides the host abstraction the network layer polls.
// This allows swapping ENet, KCP, WebSocket, raw UDP or mock implementations
// without changing the peer registry or dispatch code.
package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrClosed is returned when sending through a peer whose host or connection is gone.
	ErrClosed = errors.New("transport closed")

	// ErrUnknownKind is returned for a transport kind no backend implements.
	ErrUnknownKind = errors.New("unknown transport kind")
)

// Kinds lists the supported transport kinds.
var Kinds = []string{"enet", "kcp", "ws", "udp"}

// SupportedKind reports whether kind names a backend.
func SupportedKind(kind string) bool {
	kind = strings.ToLower(strings.TrimSpace(kind))
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Host is a bound server socket that is polled once per tick.
// A Host is owned by a single goroutine; implementations that read on
// background goroutines hand events over through a Queue.
type Host interface {
	// Service returns the next queued event without waiting.
	// ok is false once nothing is buffered.
	Service() (ev Event, ok bool)

	// Flush pushes any queued outgoing packets onto the wire.
	Flush()

	// Close shuts down the host and releases the socket.
	Close() error

	// LocalAddr returns the address we're bound to.
	LocalAddr() string
}

// Peer is an opaque connection handle owned by a Host.
// A Host returns the same Peer value for every event of one connection,
// so peers can be used as map keys.
type Peer interface {
	// Send queues data for the peer, reliably or not.
	Send(data []byte, reliable bool) error

	// Disconnect asks the peer to close; the host reports the disconnect
	// event on a later Service call.
	Disconnect()

	// Addr returns the remote address.
	Addr() string
}

// EventType classifies host events.
type EventType int

const (
	EventConnect EventType = iota + 1
	EventReceive
	EventDisconnect
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventReceive:
		return "receive"
	case EventDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is a single connect, receive or disconnect notification.
// Data is only set for EventReceive and is owned by the receiver.
type Event struct {
	Type EventType
	Peer Peer
	Data []byte
}

// Config holds transport configuration.
type Config struct {
	Kind           string        `mapstructure:"kind" yaml:"kind"`
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           uint16        `mapstructure:"port" yaml:"port"`
	MaxPeers       int           `mapstructure:"max_peers" yaml:"max_peers"`
	Channels       int           `mapstructure:"channels" yaml:"channels"`
	MaxMessageSize int           `mapstructure:"max_message_size" yaml:"max_message_size"`
	QueueSize      int           `mapstructure:"queue_size" yaml:"queue_size"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	Path           string        `mapstructure:"path" yaml:"path"` // websocket only
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Kind:           "enet",
		Port:           9000,
		MaxPeers:       32,
		Channels:       2,
		MaxMessageSize: 1400, // Safe for UDP
		QueueSize:      1024,
		IdleTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Second,
		Path:           "/",
	}
}

// Addr returns the listen address in host:port form.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
