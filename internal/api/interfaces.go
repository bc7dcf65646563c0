// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/plc-visualizer/logparse/internal/models"
	"github.com/plc-visualizer/logparse/internal/session"
)

// ParseHandler handles parsing session operations
type ParseHandler interface {
	HandleStartParse(c echo.Context) error
	HandleParseStatus(c echo.Context) error
	HandleParseProgressStream(c echo.Context) error
	HandleParseEntries(c echo.Context) error
	HandleParseEntriesMsgpack(c echo.Context) error
	HandleGetSignals(c echo.Context) error
	HandleGetErrors(c echo.Context) error
	HandleGetResult(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
}

// FileHandler handles uploaded log files
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadBinary(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
	HandleDialects(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	StartSession(req session.Request) (models.ParseSession, error)
	GetSession(id string) (models.ParseSession, bool)
	TouchSession(id string) bool
	Result(id string) (*models.ParseResult, error)
	Signals(id string) ([]models.SignalInfo, error)
	Errors(id string) ([]models.ParseError, error)
	Entries(ctx context.Context, id, signalKey string, offset, limit int) (session.EntryPage, error)
	DeleteSession(id string) bool
}

// DialectLister reports the registered dialect names.
type DialectLister interface {
	Dialects() []string
}
