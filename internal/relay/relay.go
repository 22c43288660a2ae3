// Package relay runs the tick loop of the demo chat relay on top of network.Server.
package relay

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LemmyAI/peerhost/internal/network"
	"github.com/LemmyAI/peerhost/internal/protocol"
)

// Config for the relay loop.
type Config struct {
	TickRate int
	Welcome  bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickRate: 60,
		Welcome:  true,
	}
}

// Relay polls the server once per tick and relays chat to every other client.
type Relay struct {
	server   *network.Server
	config   Config
	instance string
	log      *zap.Logger
	tick     uint64
}

// New creates a relay and installs its connect/disconnect callbacks on server.
func New(server *network.Server, config Config, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	if config.TickRate <= 0 {
		config.TickRate = DefaultConfig().TickRate
	}

	r := &Relay{
		server:   server,
		config:   config,
		instance: uuid.NewString(),
	}
	r.log = log.Named("relay").With(zap.String("instance", r.instance))

	server.OnConnect(r.handleConnect)
	server.OnDisconnect(r.handleDisconnect)
	return r
}

// Instance returns the id generated for this relay process.
func (r *Relay) Instance() string {
	return r.instance
}

// CurrentTick returns the number of ticks processed.
func (r *Relay) CurrentTick() uint64 {
	return r.tick
}

// Run ticks at the configured rate until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(r.config.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info("relay started", zap.Int("tick_rate", r.config.TickRate), zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopped", zap.Uint64("ticks", r.tick))
			return ctx.Err()
		case <-ticker.C:
			r.Tick()
		}
	}
}

// Tick processes one tick: poll, then relay every chat packet received.
func (r *Relay) Tick() {
	r.tick++

	for _, pkt := range r.server.Poll() {
		r.handlePacket(pkt)
	}
}

func (r *Relay) handlePacket(pkt network.Packet) {
	if pkt.From == network.NoClient {
		return
	}

	msg, err := protocol.Decode(pkt.Data)
	if err != nil {
		r.log.Debug("dropping undecodable packet", zap.Uint32("client", uint32(pkt.From)), zap.Error(err))
		return
	}
	chat, err := protocol.AsChat(msg)
	if err != nil {
		r.log.Debug("dropping packet", zap.Uint32("client", uint32(pkt.From)), zap.Error(err))
		return
	}

	// The sender id is always stamped by the server
	chat.From = uint32(pkt.From)
	data, err := protocol.Encode(protocol.NewChat(chat))
	if err != nil {
		r.log.Error("encode chat", zap.Error(err))
		return
	}
	r.server.ReliableBroadcastExcept(data, pkt.From)
}

func (r *Relay) handleConnect(id network.ClientID) {
	r.log.Info("client joined", zap.Uint32("client", uint32(id)), zap.Int("clients", r.server.ClientCount()))
	if !r.config.Welcome {
		return
	}

	data, err := protocol.Encode(protocol.NewWelcome(protocol.Welcome{
		ClientID: uint32(id),
		TickRate: uint32(r.config.TickRate),
		Instance: r.instance,
	}))
	if err != nil {
		r.log.Error("encode welcome", zap.Error(err))
		return
	}
	r.server.ReliableSend(id, data)
}

func (r *Relay) handleDisconnect(id network.ClientID) {
	r.log.Info("client left", zap.Uint32("client", uint32(id)), zap.Int("clients", r.server.ClientCount()))
}
