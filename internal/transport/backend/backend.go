// Package backend opens the transport.Host named by a config.
package backend

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/LemmyAI/peerhost/internal/transport"
	"github.com/LemmyAI/peerhost/internal/transport/enet"
	"github.com/LemmyAI/peerhost/internal/transport/kcp"
	"github.com/LemmyAI/peerhost/internal/transport/udp"
	"github.com/LemmyAI/peerhost/internal/transport/ws"
)

// Open binds the host for cfg.Kind. Any error is fatal for the caller;
// there is no partial host to recover.
func Open(cfg transport.Config, log *zap.Logger) (transport.Host, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var (
		host transport.Host
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "enet", "":
		host, err = enet.Listen(cfg, log)
	case "kcp":
		host, err = kcp.Listen(cfg, log)
	case "ws":
		host, err = ws.Listen(cfg, log)
	case "udp":
		host, err = udp.Listen(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", transport.ErrUnknownKind, cfg.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s transport on port %d: %w", cfg.Kind, cfg.Port, err)
	}

	log.Info("transport listening",
		zap.String("kind", cfg.Kind),
		zap.String("addr", host.LocalAddr()),
	)
	return host, nil
}
