package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vibe-presenting/server/internal/config"
	"github.com/vibe-presenting/server/internal/handlers"
	mcpserver "github.com/vibe-presenting/server/internal/mcp"
)

var (
	envFileFlag string
	mcpRoomFlag string
	mcpURLFlag  string
)

var rootCmd = &cobra.Command{
	Use:           "vibe-presenting",
	Short:         "Real-time presentation server",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCommand(cmd.Context())
	},
}

// serveCmd runs the HTTP and WebSocket server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	Long: `Serve the presentation rooms over WebSocket together with the REST API,
the media endpoints, the MCP endpoint at /mcp and the static frontend.

Configuration is read from the environment and from an optional .env file.

Examples:
  vibe-presenting serve
  PORT=9000 STORE_DRIVER=file vibe-presenting serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCommand(cmd.Context())
	},
}

// mcpCmd bridges a stdio agent to a running server
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Bridge the agent tools of a running server to MCP stdio",
	Long: `Serve the Model Context Protocol on stdin/stdout so a local AI agent can
create and drive presentations. Every tool call is forwarded to the /mcp
endpoint of a running "serve" process, which owns the rooms, so the agent's
changes reach the connected browsers.

The server URL defaults to this host's PORT, over https when TLS_ENABLED is set.

Examples:
  vibe-presenting mcp
  vibe-presenting mcp --room keynote
  vibe-presenting mcp --url https://slides.example.com/mcp`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpCommand(cmd.Context(), mcpURLFlag, mcpRoomFlag)
	},
}

// versionCmd prints the build version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "vibe-presenting", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "dotenv file loaded before reading the environment")
	mcpCmd.Flags().StringVar(&mcpRoomFlag, "room", "main", "default room for tools called without one")
	mcpCmd.Flags().StringVar(&mcpURLFlag, "url", "", "MCP endpoint of the running server (default: this host's /mcp)")

	rootCmd.AddCommand(serveCmd, mcpCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(envFileFlag); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFileFlag, err)
	}
	return config.Load()
}

func serveCommand(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(os.Stdout, cfg.Log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		return err
	}
	defer a.Close()

	// Initialize services
	rooms := a.rooms(ctx)
	go rooms.Run(ctx)
	defer rooms.Stop()

	mcpSrv := mcpserver.New(mcpserver.Deps{
		Rooms:   rooms,
		Store:   a.store,
		Version: version,
	})

	// Initialize handlers
	var media handlers.MediaService
	if a.ai != nil {
		media = a.ai
	}
	var remotes *handlers.RemoteHandler
	if a.remotes != nil {
		remotes = handlers.NewRemoteHandler(rooms, a.remotes)
	}
	router := handlers.SetupRoutes(handlers.Routes{
		WebSocket:      handlers.NewWebSocketHandler(rooms, cfg.Server.AllowedOrigins, cfg.Server.AdminToken),
		Presentations:  handlers.NewPresentationHandler(a.store, rooms),
		Media:          handlers.NewMediaHandler(media),
		Remotes:        remotes,
		Static:         handlers.NewStaticHandler(cfg.Server.StaticDir),
		MCP:            mcpSrv.HTTPHandler(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// Configure server
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		// Configure TLS if enabled
		if cfg.TLS.Enabled {
			server.TLSConfig = &tls.Config{
				MinVersion: getTLSVersion(cfg.TLS.MinVersion),
			}
			slog.Info("starting HTTPS server",
				"addr", server.Addr,
				"cert", cfg.TLS.CertFile,
				"key", cfg.TLS.KeyFile,
				"min_version", cfg.TLS.MinVersion,
			)
			errc <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		slog.Info("starting HTTP server", "addr", server.Addr)
		slog.Warn("HTTP mode is not recommended for production")
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}

func mcpCommand(ctx context.Context, url, room string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// stdout carries the protocol
	setupLogging(os.Stderr, cfg.Log)

	if url == "" {
		url = cfg.LocalURL("/mcp")
	}

	proxy, err := mcpserver.Dial(ctx, mcpserver.ProxyOptions{
		URL:         url,
		DefaultRoom: room,
		Version:     version,
	})
	if err != nil {
		slog.Error("presentation server unreachable, start it with 'vibe-presenting serve'", "url", url, "error", err)
		return err
	}
	return proxy.ServeStdio()
}

// getTLSVersion converts string version to tls.Version constant
func getTLSVersion(version string) uint16 {
	switch version {
	case "1.0":
		return tls.VersionTLS10
	case "1.1":
		return tls.VersionTLS11
	case "1.2":
		return tls.VersionTLS12
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}
