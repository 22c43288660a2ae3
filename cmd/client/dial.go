package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	goenet "github.com/codecat/go-enet"
	"github.com/gorilla/websocket"
	kcpgo "github.com/xtaci/kcp-go/v5"
)

// conn is the client side of one transport kind.
type conn interface {
	Send(data []byte) error
	// Incoming delivers received messages; it is closed when the connection ends.
	Incoming() <-chan []byte
	Close() error
}

func dial(kind, addr string) (conn, error) {
	switch kind {
	case "enet":
		return dialENet(addr)
	case "kcp":
		return dialKCP(addr)
	case "ws":
		return dialWS(addr)
	case "udp":
		return dialUDP(addr)
	default:
		return nil, fmt.Errorf("unknown transport kind %q", kind)
	}
}

// --- streams over net.Conn (kcp, udp) ---

type netConn struct {
	c  net.Conn
	in chan []byte
}

func newNetConn(c net.Conn) *netConn {
	nc := &netConn{c: c, in: make(chan []byte, 64)}
	go nc.readLoop()
	return nc
}

func (n *netConn) Send(data []byte) error {
	_, err := n.c.Write(data)
	return err
}

func (n *netConn) Incoming() <-chan []byte { return n.in }

func (n *netConn) Close() error { return n.c.Close() }

func (n *netConn) readLoop() {
	defer close(n.in)
	buf := make([]byte, 64*1024)
	for {
		k, err := n.c.Read(buf)
		if err != nil {
			return
		}
		data := make([]byte, k)
		copy(data, buf[:k])
		n.in <- data
	}
}

func dialKCP(addr string) (conn, error) {
	sess, err := kcpgo.DialWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("dial kcp: %w", err)
	}
	sess.SetStreamMode(false)
	sess.SetWriteDelay(false)
	sess.SetNoDelay(1, 10, 2, 1)
	return newNetConn(sess), nil
}

func dialUDP(addr string) (conn, error) {
	c, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return newNetConn(c), nil
}

// --- websocket ---

type wsConn struct {
	ws *websocket.Conn
	in chan []byte
}

func dialWS(addr string) (conn, error) {
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("dial ws: %w", err)
	}
	c := &wsConn{ws: ws, in: make(chan []byte, 64)}
	go func() {
		defer close(c.in)
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			c.in <- data
		}
	}()
	return c, nil
}

func (c *wsConn) Send(data []byte) error {
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsConn) Incoming() <-chan []byte { return c.in }

func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}

// --- enet ---

// enetConn runs the ENet host on a single goroutine; sends are handed to it
// over a channel.
type enetConn struct {
	out  chan []byte
	in   chan []byte
	done chan struct{}
}

func dialENet(addr string) (conn, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("parse addr: %w", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("parse port: %w", err)
	}
	if host == "" {
		host = "127.0.0.1"
	}

	goenet.Initialize()
	client, err := goenet.NewHost(nil, 1, 2, 0, 0)
	if err != nil {
		goenet.Deinitialize()
		return nil, fmt.Errorf("create enet client: %w", err)
	}
	peer, err := client.Connect(goenet.NewAddress(host, uint16(port)), 2, 0)
	if err != nil {
		client.Destroy()
		goenet.Deinitialize()
		return nil, fmt.Errorf("connect enet: %w", err)
	}

	c := &enetConn{
		out:  make(chan []byte, 64),
		in:   make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go c.loop(client, peer)
	return c, nil
}

func (c *enetConn) loop(client goenet.Host, peer goenet.Peer) {
	defer func() {
		close(c.in)
		client.Destroy()
		goenet.Deinitialize()
	}()

	for {
		select {
		case <-c.done:
			peer.Disconnect(0)
			client.Service(100)
			return
		case data := <-c.out:
			_ = peer.SendBytes(data, 0, goenet.PacketFlagReliable)
		default:
		}

		ev := client.Service(10)
		switch ev.GetType() {
		case goenet.EventReceive:
			packet := ev.GetPacket()
			src := packet.GetData()
			data := make([]byte, len(src))
			copy(data, src)
			packet.Destroy()
			c.in <- data
		case goenet.EventDisconnect:
			return
		}
	}
}

func (c *enetConn) Send(data []byte) error {
	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return net.ErrClosed
	}
}

func (c *enetConn) Incoming() <-chan []byte { return c.in }

func (c *enetConn) Close() error {
	close(c.done)
	return nil
}
