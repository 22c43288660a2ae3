package backend

import (
	"errors"
	"net"
	"strconv"
	"testing"

	"github.com/LemmyAI/peerhost/internal/transport"
)

func TestOpen_UnknownKind(t *testing.T) {
	cfg := transport.DefaultConfig()
	cfg.Kind = "carrier-pigeon"

	_, err := Open(cfg, nil)
	if !errors.Is(err, transport.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestOpen_UDP(t *testing.T) {
	cfg := transport.DefaultConfig()
	cfg.Kind = "udp"
	cfg.Host = "127.0.0.1"
	cfg.Port = 0

	host, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer host.Close()

	if _, ok := host.Service(); ok {
		t.Error("expected no events on a fresh host")
	}
}

func TestOpen_BindFailure(t *testing.T) {
	cfg := transport.DefaultConfig()
	cfg.Kind = "udp"
	cfg.Host = "127.0.0.1"
	cfg.Port = 0

	first, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer first.Close()

	// Bind the port the first host already holds
	taken, err := udpPort(first.LocalAddr())
	if err != nil {
		t.Fatalf("parse addr: %v", err)
	}
	cfg.Port = taken

	if _, err := Open(cfg, nil); err == nil {
		t.Fatal("expected bind failure on a taken port")
	}
}

func udpPort(addr string) (uint16, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(port, 10, 16)
	return uint16(n), err
}
