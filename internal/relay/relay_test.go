package relay

import (
	"context"
	"testing"
	"time"

	"github.com/LemmyAI/peerhost/internal/network"
	"github.com/LemmyAI/peerhost/internal/protocol"
	"github.com/LemmyAI/peerhost/internal/transport"
)

func newTestRelay(config Config) (*Relay, *transport.MockHost) {
	host := transport.NewMockHost(":9000")
	server := network.NewServer(host, nil)
	return New(server, config, nil), host
}

func encodeChat(t *testing.T, text string) []byte {
	t.Helper()
	data, err := protocol.Encode(protocol.NewChat(protocol.Chat{From: 999, Text: text}))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return data
}

func TestRelay_WelcomeOnConnect(t *testing.T) {
	r, host := newTestRelay(DefaultConfig())

	host.SimulateConnect("127.0.0.1:1")
	r.Tick()

	sent := host.SentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 welcome, got %d messages", len(sent))
	}
	if !sent[0].Reliable {
		t.Error("expected welcome to be reliable")
	}

	msg, err := protocol.Decode(sent[0].Data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	w, err := protocol.AsWelcome(msg)
	if err != nil {
		t.Fatalf("AsWelcome failed: %v", err)
	}
	if w.ClientID != 0 || w.TickRate != 60 || w.Instance != r.Instance() {
		t.Errorf("unexpected welcome: %+v", w)
	}
}

func TestRelay_NoWelcome(t *testing.T) {
	r, host := newTestRelay(Config{TickRate: 30, Welcome: false})

	host.SimulateConnect("127.0.0.1:1")
	r.Tick()

	if n := len(host.SentMessages()); n != 0 {
		t.Errorf("expected no messages, got %d", n)
	}
}

func TestRelay_ChatRelayedToOthers(t *testing.T) {
	r, host := newTestRelay(Config{TickRate: 60, Welcome: false})

	a := host.SimulateConnect("127.0.0.1:1")
	host.SimulateConnect("127.0.0.1:2")
	host.SimulateConnect("127.0.0.1:3")
	r.Tick()

	host.SimulateMessage(a, encodeChat(t, "hi all"))
	r.Tick()

	sent := host.SentMessages()
	if len(sent) != 2 {
		t.Fatalf("expected relay to 2 clients, got %d", len(sent))
	}
	for _, m := range sent {
		if m.Addr == "127.0.0.1:1" {
			t.Error("expected sender to be excluded")
		}
		msg, err := protocol.Decode(m.Data)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		chat, err := protocol.AsChat(msg)
		if err != nil {
			t.Fatalf("AsChat failed: %v", err)
		}
		if chat.From != 0 {
			t.Errorf("expected sender stamped as 0, got %d", chat.From)
		}
		if chat.Text != "hi all" {
			t.Errorf("expected 'hi all', got %q", chat.Text)
		}
	}
}

func TestRelay_DropsGarbage(t *testing.T) {
	r, host := newTestRelay(Config{TickRate: 60, Welcome: false})

	a := host.SimulateConnect("127.0.0.1:1")
	host.SimulateConnect("127.0.0.1:2")
	r.Tick()

	host.SimulateMessage(a, []byte{0xff, 0xff, 0xff})
	welcome, _ := protocol.Encode(protocol.NewWelcome(protocol.Welcome{}))
	host.SimulateMessage(a, welcome)
	r.Tick()

	if n := len(host.SentMessages()); n != 0 {
		t.Errorf("expected nothing relayed, got %d", n)
	}
}

func TestRelay_Run(t *testing.T) {
	r, _ := newTestRelay(Config{TickRate: 200})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := r.Run(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if r.CurrentTick() < 1 {
		t.Errorf("expected at least 1 tick, got %d", r.CurrentTick())
	}
}
