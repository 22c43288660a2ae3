// Command server runs the peerhost chat relay.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LemmyAI/peerhost/internal/config"
	"github.com/LemmyAI/peerhost/internal/logging"
	"github.com/LemmyAI/peerhost/internal/network"
	"github.com/LemmyAI/peerhost/internal/relay"
	"github.com/LemmyAI/peerhost/internal/transport/backend"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	port       uint16
	backend    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "peerhost",
		Short:        "Reliable-UDP game server host",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Bind the transport and run the relay tick loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	serve.Flags().Uint16Var(&opts.port, "port", 0, "listen port (overrides config)")
	serve.Flags().StringVar(&opts.backend, "backend", "", "transport kind: enet, kcp, ws or udp (overrides config)")

	show := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	root.AddCommand(serve, show)
	return root
}

func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
		cfg.Transport.Port = opts.port
	}
	if f := cmd.Flags().Lookup("backend"); f != nil && f.Changed {
		cfg.Transport.Kind = opts.backend
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("peerhost starting",
		zap.String("transport", cfg.Transport.Kind),
		zap.Uint16("port", cfg.Transport.Port),
	)

	host, err := backend.Open(cfg.Transport, logger)
	if err != nil {
		logger.Error("network initialization failed", zap.Error(err))
		return err
	}

	server := network.NewServer(host, logger)
	defer func() {
		if err := server.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	r := relay.New(server, relay.Config{
		TickRate: cfg.Server.TickRate,
		Welcome:  cfg.Server.Welcome,
	}, logger)

	if ctx == nil {
		ctx = context.Background()
	}
	// Wait for shutdown signal
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("server ready", zap.String("addr", server.LocalAddr()), zap.String("instance", r.Instance()))

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutting down")
	return nil
}
