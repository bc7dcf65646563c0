// routes.go - Route registration and server setup
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/plc-visualizer/logparse/internal/config"
	"github.com/plc-visualizer/logparse/internal/logging"
	"github.com/plc-visualizer/logparse/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store          storage.Store // nil disables the /api/files routes
	SessionMgr     SessionManager
	Dialects       DialectLister
	DefaultWorkers int
	Version        string
	Logger         *slog.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health HealthHandler
	Files  FileHandler
	Parse  ParseHandler
	Socket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	h := &Handlers{
		Health: NewHealthHandler(deps.Version, deps.Dialects),
		Parse:  NewParseHandler(deps.Store, deps.SessionMgr, deps.DefaultWorkers),
		Socket: NewWebSocketHandler(deps.SessionMgr, deps.Logger),
	}
	if deps.Store != nil {
		h.Files = NewFileHandler(deps.Store)
	}
	return h
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/health", handlers.Health.HandleHealth)
	apiGroup.GET("/dialects", handlers.Health.HandleDialects)

	if handlers.Files != nil {
		fileGroup := apiGroup.Group("/files")
		fileGroup.POST("/upload", handlers.Files.HandleUploadFile)
		fileGroup.POST("/upload/binary", handlers.Files.HandleUploadBinary)
		fileGroup.GET("/recent", handlers.Files.HandleGetRecentFiles)
		fileGroup.GET("/:id", handlers.Files.HandleGetFile)
		fileGroup.DELETE("/:id", handlers.Files.HandleDeleteFile)
	}

	// Parse session routes
	parseGroup := apiGroup.Group("/parse")
	parseGroup.POST("", handlers.Parse.HandleStartParse)
	parseGroup.GET("/:sessionId/status", handlers.Parse.HandleParseStatus)
	parseGroup.POST("/:sessionId/keepalive", handlers.Parse.HandleSessionKeepAlive)
	parseGroup.GET("/:sessionId/progress", handlers.Parse.HandleParseProgressStream)
	if handlers.Socket != nil {
		parseGroup.GET("/:sessionId/ws", handlers.Socket.HandleProgressSocket)
	}
	parseGroup.GET("/:sessionId/result", handlers.Parse.HandleGetResult)
	parseGroup.GET("/:sessionId/entries", handlers.Parse.HandleParseEntries)
	parseGroup.GET("/:sessionId/entries/msgpack", handlers.Parse.HandleParseEntriesMsgpack)
	parseGroup.GET("/:sessionId/signals", handlers.Parse.HandleGetSignals)
	parseGroup.GET("/:sessionId/errors", handlers.Parse.HandleGetErrors)
	parseGroup.DELETE("/:sessionId", handlers.Parse.HandleDeleteSession)
}

// NewEcho builds the Echo instance with the configured middleware and the
// API routes registered.
func NewEcho(cfg config.ServerConfig, handlers *Handlers, logger *slog.Logger) *echo.Echo {
	logger = logging.WithComponent(logger, "http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(false)

	if cfg.EnableRequestLogging {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return strings.HasSuffix(path, "/status") ||
					strings.HasSuffix(path, "/progress") ||
					path == "/api/health"
			},
			LogMethod:  true,
			LogURI:     true,
			LogStatus:  true,
			LogLatency: true,
			LogError:   true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
				if v.Error != nil {
					logger.Warn("request failed", append(attrs, "error", v.Error)...)
					return nil
				}
				logger.Info("request", attrs...)
				return nil
			},
		}))
	}

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("handler panic", "error", err, "stack", string(stack))
			return err
		},
	}))

	if cfg.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Skipper: func(c echo.Context) bool {
				return strings.HasSuffix(c.Request().URL.Path, "/progress") ||
					strings.HasSuffix(c.Request().URL.Path, "/ws") ||
					c.Request().Header.Get("Accept") == "text/event-stream"
			},
		}))
	}

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	RegisterRoutes(e, handlers)
	return e
}

// Serve runs e on addr until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, e *echo.Echo, addr string, cfg config.ServerConfig) error {
	s := &http.Server{
		Addr:         addr,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.StartServer(s)
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
