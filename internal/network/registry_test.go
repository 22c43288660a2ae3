package network

import (
	"fmt"
	"testing"

	"github.com/LemmyAI/peerhost/internal/transport"
)

func TestRegistry_SequentialIDs(t *testing.T) {
	host := transport.NewMockHost(":9000")
	r := NewRegistry(nil)

	const n = 5
	for i := 0; i < n; i++ {
		peer := host.SimulateConnect(fmt.Sprintf("127.0.0.1:%d", 1000+i))
		id := r.Register(peer)
		if id != ClientID(i) {
			t.Errorf("expected id %d, got %d", i, id)
		}
	}

	if r.Len() != n {
		t.Errorf("expected %d peers, got %d", n, r.Len())
	}
	ids := r.IDs()
	for i, id := range ids {
		if id != ClientID(i) {
			t.Errorf("expected ids in ascending order, got %v", ids)
			break
		}
	}
}

func TestRegistry_UnregisterRemovesOnlyThatID(t *testing.T) {
	host := transport.NewMockHost(":9000")
	r := NewRegistry(nil)

	a := host.SimulateConnect("127.0.0.1:1")
	b := host.SimulateConnect("127.0.0.1:2")
	c := host.SimulateConnect("127.0.0.1:3")
	r.Register(a)
	idB := r.Register(b)
	r.Register(c)

	id, ok := r.Unregister(b)
	if !ok || id != idB {
		t.Fatalf("expected to unregister id %d, got %d (ok=%v)", idB, id, ok)
	}

	ids := r.IDs()
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 2 {
		t.Errorf("expected [0 2], got %v", ids)
	}
	if _, ok := r.Resolve(idB); ok {
		t.Error("expected removed id to no longer resolve")
	}

	// Unknown peer is a no-op
	if _, ok := r.Unregister(b); ok {
		t.Error("expected second unregister to be a no-op")
	}
}

func TestRegistry_IDsNeverReused(t *testing.T) {
	host := transport.NewMockHost(":9000")
	r := NewRegistry(nil)

	first := host.SimulateConnect("127.0.0.1:1")
	r.Register(first)
	r.Unregister(first)

	// Same address reconnecting is a new peer and a new id
	again := host.SimulateConnect("127.0.0.1:1")
	if id := r.Register(again); id != 1 {
		t.Errorf("expected id 1 after reconnect, got %d", id)
	}
}

func TestRegistry_RegisterTwiceKeepsID(t *testing.T) {
	host := transport.NewMockHost(":9000")
	r := NewRegistry(nil)

	peer := host.SimulateConnect("127.0.0.1:1")
	first := r.Register(peer)
	second := r.Register(peer)

	if first != second {
		t.Errorf("expected same id, got %d and %d", first, second)
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 peer, got %d", r.Len())
	}
}

func TestRegistry_Callbacks(t *testing.T) {
	host := transport.NewMockHost(":9000")
	r := NewRegistry(nil)

	var connected, disconnected []ClientID
	r.OnConnect(func(id ClientID) { connected = append(connected, id) })
	r.OnDisconnect(func(id ClientID) { disconnected = append(disconnected, id) })

	a := host.SimulateConnect("127.0.0.1:1")
	b := host.SimulateConnect("127.0.0.1:2")
	r.Register(a)
	r.Register(b)
	r.Unregister(a)

	if len(connected) != 2 || connected[0] != 0 || connected[1] != 1 {
		t.Errorf("expected connect callbacks [0 1], got %v", connected)
	}
	if len(disconnected) != 1 || disconnected[0] != 0 {
		t.Errorf("expected disconnect callback [0], got %v", disconnected)
	}
}

func TestRegistry_NoCallbacksTolerated(t *testing.T) {
	host := transport.NewMockHost(":9000")
	r := NewRegistry(nil)

	peer := host.SimulateConnect("127.0.0.1:1")
	r.Register(peer)
	if _, ok := r.Unregister(peer); !ok {
		t.Error("expected unregister to succeed without callbacks")
	}
}

func TestRegistry_RefusesWhenIDsExhausted(t *testing.T) {
	host := transport.NewMockHost(":9000")
	r := NewRegistry(nil)
	r.next = NoClient - 1

	var connected []ClientID
	r.OnConnect(func(id ClientID) { connected = append(connected, id) })

	last := r.Register(host.SimulateConnect("127.0.0.1:1"))
	if last != NoClient-1 {
		t.Fatalf("expected last usable id %d, got %d", NoClient-1, last)
	}

	refused := host.SimulateConnect("127.0.0.1:2")
	if id := r.Register(refused); id != NoClient {
		t.Errorf("expected NoClient once ids run out, got %d", id)
	}
	if _, ok := r.Lookup(refused); ok {
		t.Error("expected refused peer to stay unregistered")
	}
	if r.Len() != 1 || len(connected) != 1 {
		t.Errorf("expected 1 peer and 1 callback, got %d/%d", r.Len(), len(connected))
	}
}
