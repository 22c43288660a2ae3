// Command client is a simple chat client for the relay server.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/LemmyAI/peerhost/internal/config"
	"github.com/LemmyAI/peerhost/internal/logging"
	"github.com/LemmyAI/peerhost/internal/protocol"
)

func main() {
	serverAddr := flag.String("addr", "127.0.0.1:9000", "server address")
	kind := flag.String("backend", "enet", "transport kind: enet, kcp, ws or udp")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	logCfg := config.Default().Log
	logCfg.Development = true
	logCfg.Outputs = []string{"stderr"}
	if *verbose {
		logCfg.Level = "debug"
	}
	log, err := logging.Setup(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("connecting", zap.String("addr", *serverAddr), zap.String("backend", *kind))

	c, err := dial(*kind, *serverAddr)
	if err != nil {
		log.Fatal("dial failed", zap.Error(err))
	}
	defer c.Close()

	// UDP has no handshake: say something so the server registers us
	if *kind == "udp" {
		hello, _ := protocol.Encode(protocol.NewChat(protocol.Chat{Text: "joined"}))
		_ = c.Send(hello)
	}

	go func() {
		for data := range c.Incoming() {
			printMessage(log, data)
		}
		log.Info("connection closed")
		os.Exit(0)
	}()

	fmt.Println("Type a line and press Enter to chat. Type 'quit' to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "quit" {
			break
		}
		if line == "" {
			continue
		}

		data, err := protocol.Encode(protocol.NewChat(protocol.Chat{Text: line}))
		if err != nil {
			log.Error("encode failed", zap.Error(err))
			continue
		}
		if err := c.Send(data); err != nil {
			log.Error("send failed", zap.Error(err))
			continue
		}
		log.Debug("sent chat", zap.Int("size", len(data)))
	}

	log.Info("goodbye")
}

func printMessage(log *zap.Logger, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Warn("invalid message", zap.Error(err))
		return
	}

	switch protocol.MessageType(msg) {
	case protocol.TypeWelcome:
		w, _ := protocol.AsWelcome(msg)
		log.Info("welcome",
			zap.Uint32("client", w.ClientID),
			zap.Uint32("tick_rate", w.TickRate),
			zap.String("instance", w.Instance),
		)
	case protocol.TypeChat:
		chat, _ := protocol.AsChat(msg)
		fmt.Printf("[%d] %s\n", chat.From, chat.Text)
	default:
		log.Debug("ignoring message", zap.String("type", protocol.MessageType(msg)))
	}
}
