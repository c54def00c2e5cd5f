package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BioHazard786/roomrelay/internal/config"
	"github.com/BioHazard786/roomrelay/internal/metrics"
	"github.com/BioHazard786/roomrelay/internal/registry"
	"github.com/BioHazard786/roomrelay/internal/relay"
	"github.com/BioHazard786/roomrelay/internal/server"
)

var (
	flagServeAddr    string
	flagServeOrigins string
	flagServeRooms   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling relay",
	Long: `Run the WebSocket signaling relay.

Clients connect to /ws, join a room and exchange offers and answers with the
other members. The relay never inspects signal payloads.

Examples:
  roomrelay serve
  PORT=8080 roomrelay serve
  roomrelay serve --addr 127.0.0.1:3000 --origins https://app.example --expose-rooms`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer(config.ServerOptions{
			ConfigPath:     flagConfigPath,
			ListenAddr:     flagServeAddr,
			AllowedOrigins: flagServeOrigins,
			ExposeRooms:    flagServeRooms,
		})
		if err != nil {
			return NewError("load config", err)
		}
		return runServe(cmd.Context(), cfg, slog.Default())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&flagServeAddr, "addr", "a", "", "Listen address (env: LISTEN_ADDR or PORT, default :3000)")
	serveCmd.Flags().StringVar(&flagServeOrigins, "origins", "", "Comma-separated allowed origins, * for any (env: ALLOWED_ORIGINS)")
	serveCmd.Flags().BoolVar(&flagServeRooms, "expose-rooms", false, "Serve the room listing at /rooms (env: EXPOSE_ROOMS)")
}

// runServe runs the hub and the HTTP server until ctx ends or either fails.
func runServe(ctx context.Context, cfg *config.Server, logger *slog.Logger) error {
	m := metrics.New()
	hub := relay.NewHub(relay.Config{
		MaxMessageBytes: cfg.MaxMessageBytes,
		OutboxLimit:     cfg.OutboxLimit,
	}, registry.New(), m, logger)
	srv := server.New(cfg, hub, m, logger)

	l, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return NewError("listen", err)
	}

	logger.Info("starting signaling relay",
		"addr", l.Addr().String(),
		"origins", cfg.AllowedOrigins,
		"expose_rooms", cfg.ExposeRooms,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		if err := srv.Serve(l); err != nil && !errors.Is(err, server.ErrServerClosed) {
			return NewError("serve", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return NewError("shutdown", err)
		}
		return nil
	})

	return g.Wait()
}
