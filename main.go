// Command snakeserver starts the real-time snake session server.
//
// It supports two modes:
//  1. "serve" (default) – runs the HTTP server exposing /ping, the REST API, the WebSocket game stream and an /mcp endpoint
//  2. "stdio-mcp" – runs an MCP stdio server against a running server, or an internal one if none answers
//
// Flags control host/port, the presets and policy directories, logging and
// optional ngrok tunneling for easy external access during development.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/mcp-training/snakeserver/logging"
	"github.com/wricardo/mcp-training/snakeserver/transport/mcp"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Snake Session Server"
)

func main() {
	// Load .env file if it exists so its values feed the env-backed flags
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: error loading .env file: %v\n", err)
	}

	cmd := newRootCommand()
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd.Name, err)
		os.Exit(1)
	}
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:           "snakeserver",
		Usage:          AppName,
		Version:        Version,
		DefaultCommand: "serve",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "0.0.0.0", Usage: "HTTP server host", Sources: cli.EnvVars("HOST")},
			&cli.IntFlag{Name: "port", Value: 8765, Usage: "HTTP server port", Sources: cli.EnvVars("PORT")},
			&cli.StringFlag{Name: "presets-dir", Value: "presets", Usage: "directory of start_game preset YAML files", Sources: cli.EnvVars("PRESETS_DIR")},
			&cli.StringFlag{Name: "policy-dir", Value: "data", Usage: "directory for learned policy tables", Sources: cli.EnvVars("POLICY_DIR")},
			&cli.StringFlag{Name: "default-policy", Value: "autopilot", Usage: "fallback policy: autopilot or random", Sources: cli.EnvVars("DEFAULT_POLICY")},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error", Sources: cli.EnvVars("LOG_LEVEL")},
			&cli.StringFlag{Name: "log-format", Value: "console", Usage: "console or json", Sources: cli.EnvVars("LOG_FORMAT")},
			&cli.Uint64Flag{Name: "seed", Usage: "base seed for food placement and policies (0 = time based)", Sources: cli.EnvVars("SEED")},
			&cli.IntFlag{Name: "max-decider-failures", Usage: "detach a decision source after this many consecutive failures (0 = never)", Sources: cli.EnvVars("MAX_DECIDER_FAILURES")},
			&cli.BoolFlag{Name: "ngrok", Usage: "enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server", "http"},
				Usage:   "run the HTTP server with REST API, WebSocket and MCP endpoint",
				Action:  runServe,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp", "mcp-stdio"},
				Usage:   "run an MCP stdio server",
				Action:  runStdioMCP,
			},
		},
	}
}

// configFromCommand reads the resolved flag values.
func configFromCommand(cmd *cli.Command) appConfig {
	cfg := appConfig{
		Host:               cmd.String("host"),
		Port:               int(cmd.Int("port")),
		PresetsDir:         cmd.String("presets-dir"),
		PolicyDir:          cmd.String("policy-dir"),
		DefaultPolicy:      cmd.String("default-policy"),
		Seed:               uint64(cmd.Uint64("seed")),
		MaxDeciderFailures: int(cmd.Int("max-decider-failures")),
	}
	// The bundled presets directory is optional; an explicit one is not.
	if !cmd.IsSet("presets-dir") {
		if _, err := os.Stat(cfg.PresetsDir); os.IsNotExist(err) {
			cfg.PresetsDir = ""
		}
	}
	return cfg
}

func newLogger(cmd *cli.Command) (*zap.Logger, error) {
	return logging.New(cmd.String("log-level"), cmd.String("log-format"))
}

// runServe starts the HTTP server with REST API, WebSocket game stream and
// an /mcp endpoint. If ngrok is enabled it also provisions a public tunnel.
func runServe(ctx context.Context, cmd *cli.Command) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := configFromCommand(cmd)
	log.Info("starting", zap.String("app", AppName), zap.String("version", Version))

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		a.shutdown()
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	// MCP tools call back into this server's REST API
	a.api.SetMCP(mcp.NewClient(loopbackURL(listener.Addr())).GetMCPServer())

	httpServer := &http.Server{
		Handler:     a.api,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening",
			zap.String("addr", listener.Addr().String()),
			zap.String("websocket", "/ws"),
			zap.String("mcp", "/mcp"))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if cmd.Bool("ngrok") {
		go runNgrok(ctx, cmd, a.api, log)
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", zap.Error(err))
	}
	a.shutdown()

	log.Info("server stopped")
	return nil
}

// runNgrok serves the handler through an ngrok tunnel until ctx ends.
func runNgrok(ctx context.Context, cmd *cli.Command, handler http.Handler, log *zap.Logger) {
	authToken := cmd.String("ngrok-auth")
	if authToken == "" {
		log.Warn("ngrok enabled but no auth token provided (use --ngrok-auth or NGROK_AUTHTOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if domain := cmd.String("ngrok-domain"); domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		log.Info("using custom ngrok domain", zap.String("domain", domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.Error("failed to start ngrok tunnel", zap.Error(err))
		return
	}
	defer tun.Close()

	log.Info("ngrok tunnel established",
		zap.String("url", tun.URL()),
		zap.String("websocket", tun.URL()+"/ws"),
		zap.String("mcp", tun.URL()+"/mcp"))

	go func() {
		<-ctx.Done()
		tun.Close()
	}()
	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		log.Warn("ngrok server error", zap.Error(err))
	}
	log.Info("ngrok tunnel closed")
}

// runStdioMCP runs an MCP stdio server. It reuses a server answering /ping on
// the configured port; otherwise it starts an internal one on a loopback port.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := configFromCommand(cmd)
	externalURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)

	baseURL := externalURL
	if !pingServer(externalURL) {
		log.Info("no external server found, starting internal HTTP server")

		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize services: %w", err)
		}
		defer a.shutdown()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		httpServer := &http.Server{Handler: a.api}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("internal HTTP server error", zap.Error(err))
			}
		}()
		defer httpServer.Close()

		baseURL = loopbackURL(listener.Addr())
	}

	log.Info("MCP stdio server ready", zap.String("api", baseURL))
	return server.ServeStdio(mcp.NewClient(baseURL).GetMCPServer())
}

func pingServer(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/ping")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// loopbackURL turns a listener address into a URL reachable from this host.
func loopbackURL(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return "http://" + addr.String()
	}
	host := tcp.IP.String()
	if tcp.IP == nil || tcp.IP.IsUnspecified() {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, fmt.Sprint(tcp.Port)))
}
