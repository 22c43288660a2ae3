package ws

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"

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

func listenLoopback(t *testing.T) *Host {
	t.Helper()
	cfg := transport.DefaultConfig()
	cfg.Kind = "ws"
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.Path = "/play"

	h, err := Listen(cfg, nil)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestHost_RoundTrip(t *testing.T) {
	h := listenLoopback(t)

	client, _, err := websocket.DefaultDialer.Dial("ws://"+h.LocalAddr()+"/play", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	ev := waitEvent(t, h, 2*time.Second)
	if ev.Type != transport.EventConnect {
		t.Fatalf("expected connect, got %v", ev.Type)
	}
	peer := ev.Peer

	if err := client.WriteMessage(websocket.BinaryMessage, []byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	ev = waitEvent(t, h, 2*time.Second)
	if ev.Type != transport.EventReceive || ev.Peer != peer {
		t.Fatalf("expected receive from peer, got %+v", ev)
	}
	if string(ev.Data) != "hello" {
		t.Errorf("expected 'hello', got '%s'", ev.Data)
	}

	if err := peer.Send([]byte("pong"), false); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if msgType != websocket.BinaryMessage || string(data) != "pong" {
		t.Errorf("expected binary 'pong', got %d '%s'", msgType, data)
	}
}

func TestHost_ClientClose(t *testing.T) {
	h := listenLoopback(t)

	client, _, err := websocket.DefaultDialer.Dial("ws://"+h.LocalAddr()+"/play", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	ev := waitEvent(t, h, 2*time.Second)
	if ev.Type != transport.EventConnect {
		t.Fatalf("expected connect, got %v", ev.Type)
	}

	_ = client.Close()

	ev2 := waitEvent(t, h, 2*time.Second)
	if ev2.Type != transport.EventDisconnect || ev2.Peer != ev.Peer {
		t.Fatalf("expected disconnect for peer, got %+v", ev2)
	}
}

func TestHost_ServerDisconnect(t *testing.T) {
	h := listenLoopback(t)

	client, _, err := websocket.DefaultDialer.Dial("ws://"+h.LocalAddr()+"/play", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	ev := waitEvent(t, h, 2*time.Second)
	ev.Peer.Disconnect()

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := client.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal closure, got %v", err)
	}

	if ev2 := waitEvent(t, h, 2*time.Second); ev2.Type != transport.EventDisconnect {
		t.Fatalf("expected disconnect, got %v", ev2.Type)
	}
}
