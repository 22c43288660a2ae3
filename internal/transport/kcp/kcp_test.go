package kcp

import (
	"testing"
	"time"

	kcpgo "github.com/xtaci/kcp-go/v5"

	"github.com/LemmyAI/peerhost/internal/transport"
)

func waitEvent(t *testing.T, h *Host, timeout time.Duration) transport.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ev, ok := h.Service(); ok {
			return ev
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for event")
	return transport.Event{}
}

func TestHost_RoundTrip(t *testing.T) {
	cfg := transport.DefaultConfig()
	cfg.Kind = "kcp"
	cfg.Host = "127.0.0.1"
	cfg.Port = 0

	h, err := Listen(cfg, nil)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer h.Close()

	client, err := kcpgo.DialWithOptions(h.LocalAddr(), nil, 0, 0)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()
	client.SetStreamMode(false)
	client.SetWriteDelay(false)
	client.SetNoDelay(1, 10, 2, 1)

	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	ev := waitEvent(t, h, 3*time.Second)
	if ev.Type != transport.EventConnect {
		t.Fatalf("expected connect, got %v", ev.Type)
	}
	peer := ev.Peer

	ev = waitEvent(t, h, 3*time.Second)
	if ev.Type != transport.EventReceive || ev.Peer != peer {
		t.Fatalf("expected receive from peer, got %+v", ev)
	}
	if string(ev.Data) != "hello" {
		t.Errorf("expected 'hello', got '%s'", ev.Data)
	}

	// Unreliable is delivered over the reliable KCP stream anyway
	if err := peer.Send([]byte("pong"), false); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	h.Flush()

	_ = client.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 64)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf[:n]) != "pong" {
		t.Errorf("expected 'pong', got '%s'", buf[:n])
	}

	peer.Disconnect()
	if ev := waitEvent(t, h, 3*time.Second); ev.Type != transport.EventDisconnect || ev.Peer != peer {
		t.Fatalf("expected disconnect for peer, got %+v", ev)
	}
}
