package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"chat-edge/internal/assets"
	"chat-edge/internal/client"
	"chat-edge/internal/config"
	"chat-edge/internal/handler"
	"chat-edge/internal/metrics"
	"chat-edge/internal/middleware"
	"chat-edge/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := config.LoadDotEnv(envFile()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("chat-edge"),
		kong.Description("Edge router for the chat app: proxies /api/chat, serves the UI."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(options(&cli)).Run()
}

// envFile returns the dotenv file to load, ENV_FILE or ".env".
func envFile() string {
	if p := os.Getenv("ENV_FILE"); p != "" {
		return p
	}
	return ".env"
}

func options(cli *config.CLI) fx.Option {
	return fx.Options(
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		fx.Provide(
			func() *config.CLI { return cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			client.NewBackendClient,
			service.NewProxyService,
			assets.NewBinding,
			assets.NewAdapter,
			handler.NewRouterHandler,
			handler.NewHealthHandler,
			handler.NewErrorHandler,
			newEcho,
			newAdminServer,
		),
		fx.Invoke(
			handler.RegisterRoutes,
			registerAdminRoutes,
			warnConfig,
			startServer,
			startAdminServer,
		),
	)
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

// newEcho builds the public listener. Every failure ends in errorHandler.
// Boundary wraps the chain twice: the inner one turns router panics into
// errors that logging and metrics still observe, the outer one catches panics
// raised by the middleware themselves.
//
// Chat requests above server.body_max_bytes are answered 413 by BodyLimit and
// never forwarded; it is the only case where the relay does not pass a
// request through.
func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, errorHandler echo.HTTPErrorHandler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	// WriteTimeout is disabled (0) so slow chat answers are not cut off.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(middleware.Boundary(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.MetricsMiddleware(m))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.Boundary(logger))

	return e
}

// adminServer is the listener for health, status and metrics. It is a
// distinct type so fx can tell it apart from the public *echo.Echo.
type adminServer struct {
	*echo.Echo
}

func newAdminServer() *adminServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.ReadHeaderTimeout = 5 * time.Second

	e.Use(echomw.Recover())

	return &adminServer{Echo: e}
}

func registerAdminRoutes(a *adminServer, cfg *config.Config, health *handler.HealthHandler, m *metrics.Metrics) {
	if !cfg.Admin.Enabled {
		return
	}
	handler.RegisterAdminRoutes(a.Echo, cfg, health, m)
}

func warnConfig(cfg *config.Config, logger *slog.Logger) {
	cfg.Warn(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	serve(lc, e, cfg.Server.Addr(), logger.With("server", "public"))
}

func startAdminServer(lc fx.Lifecycle, a *adminServer, cfg *config.Config, logger *slog.Logger) {
	if !cfg.Admin.Enabled {
		return
	}
	serve(lc, a.Echo, cfg.Admin.Addr, logger.With("server", "admin"))
}

// serve binds addr on start, so a busy port fails startup, and shuts e down
// gracefully on stop.
func serve(lc fx.Lifecycle, e *echo.Echo, addr string, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "addr", addr)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}
