// handlers_parse.go - Parse session operation handlers
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/plc-visualizer/logparse/internal/export"
	"github.com/plc-visualizer/logparse/internal/models"
	"github.com/plc-visualizer/logparse/internal/session"
	"github.com/plc-visualizer/logparse/internal/storage"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 10000

	progressInterval = 100 * time.Millisecond
	progressTimeout  = 5 * time.Minute
)

// ParseHandlerImpl implements the ParseHandler interface
type ParseHandlerImpl struct {
	store          storage.Store
	sessionMgr     SessionManager
	defaultWorkers int
}

// NewParseHandler creates a new parse handler instance. store resolves
// uploaded file IDs and may be nil when uploads are disabled. Requests
// without a worker count use defaultWorkers.
func NewParseHandler(store storage.Store, sessionMgr SessionManager, defaultWorkers int) ParseHandler {
	if defaultWorkers < 1 {
		defaultWorkers = 1
	}
	return &ParseHandlerImpl{
		store:          store,
		sessionMgr:     sessionMgr,
		defaultWorkers: defaultWorkers,
	}
}

// HandleStartParse starts a new parsing session for one or more files
func (h *ParseHandlerImpl) HandleStartParse(c echo.Context) error {
	var req startParseRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	paths := req.normalizePaths()
	if fileIDs := req.normalizeFileIDs(); len(fileIDs) > 0 {
		resolved, err := h.resolveFilePaths(fileIDs)
		if err != nil {
			return err
		}
		paths = append(paths, resolved...)
	}
	if len(paths) == 0 {
		return NewValidationError("path, paths, fileId or fileIds")
	}
	if req.Workers < 0 {
		return NewValidationError("workers")
	}
	workers := req.Workers
	if workers == 0 {
		workers = h.defaultWorkers
	}

	sess, err := h.sessionMgr.StartSession(session.Request{
		Paths:   paths,
		Dialect: req.Dialect,
		Workers: workers,
	})
	switch {
	case errors.Is(err, session.ErrNoFiles):
		return NewValidationError("path, paths, fileId or fileIds")
	case errors.Is(err, session.ErrTooManySessions):
		return NewServiceUnavailableError("too many active sessions, try again later")
	case err != nil:
		return NewInternalError("failed to start session", err)
	}

	return c.JSON(http.StatusAccepted, sess)
}

// HandleParseStatus returns the current status of a parsing session
func (h *ParseHandlerImpl) HandleParseStatus(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	// Touch session to prevent cleanup while being viewed
	h.sessionMgr.TouchSession(id)

	return c.JSON(http.StatusOK, sess)
}

// HandleSessionKeepAlive extends session lifetime for active viewing
func (h *ParseHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	if ok := h.sessionMgr.TouchSession(id); !ok {
		return NewNotFoundError("session", id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleDeleteSession drops a session and its stored rows
func (h *ParseHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	if ok := h.sessionMgr.DeleteSession(id); !ok {
		return NewNotFoundError("session", id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleParseProgressStream streams parsing progress via SSE
func (h *ParseHandlerImpl) HandleParseProgressStream(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		h.sendSSEError(c, "session not found")
		return nil
	}
	h.sendSSEData(c, sess)
	if isTerminal(sess.Status) {
		return nil
	}

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	timeout := time.NewTimer(progressTimeout)
	defer timeout.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			sess, ok := h.sessionMgr.GetSession(id)
			if !ok {
				h.sendSSEError(c, "session not found")
				return nil
			}

			h.sendSSEData(c, sess)
			if isTerminal(sess.Status) {
				return nil
			}

		case <-timeout.C:
			h.sendSSEError(c, "stream timeout")
			return nil
		}
	}
}

// HandleParseEntries returns a page of entries for a finished session
func (h *ParseHandlerImpl) HandleParseEntries(c echo.Context) error {
	page, err := h.entryPage(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// HandleParseEntriesMsgpack returns the same page as HandleParseEntries in MessagePack format
func (h *ParseHandlerImpl) HandleParseEntriesMsgpack(c echo.Context) error {
	page, err := h.entryPage(c)
	if err != nil {
		return err
	}
	body, err := export.MarshalMsgpack(page)
	if err != nil {
		return NewInternalError("failed to encode entries", err)
	}
	return c.Blob(http.StatusOK, export.ContentTypeMsgpack, body)
}

// HandleGetSignals returns the signal index of a session in first-seen order
func (h *ParseHandlerImpl) HandleGetSignals(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	signals, err := h.sessionMgr.Signals(id)
	if err != nil {
		return sessionError(err, id)
	}

	return c.JSON(http.StatusOK, signals)
}

// HandleGetErrors returns the line and file errors of a session
func (h *ParseHandlerImpl) HandleGetErrors(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	errs, err := h.sessionMgr.Errors(id)
	if err != nil {
		return sessionError(err, id)
	}
	if errs == nil {
		errs = []models.ParseError{}
	}

	return c.JSON(http.StatusOK, errorsResponse{Errors: errs, Count: len(errs)})
}

// HandleGetResult returns the complete parse result. format=msgpack
// switches the encoding.
func (h *ParseHandlerImpl) HandleGetResult(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	res, err := h.sessionMgr.Result(id)
	if err != nil {
		return sessionError(err, id)
	}

	switch strings.ToLower(c.QueryParam("format")) {
	case "", "json":
		return c.JSON(http.StatusOK, res)
	case "msgpack":
		body, err := export.MarshalMsgpack(res)
		if err != nil {
			return NewInternalError("failed to encode result", err)
		}
		return c.Blob(http.StatusOK, export.ContentTypeMsgpack, body)
	default:
		return NewValidationError("format")
	}
}

// Request/Response types

type startParseRequest struct {
	Path    string   `json:"path"`
	Paths   []string `json:"paths"`
	FileID  string   `json:"fileId"`
	FileIDs []string `json:"fileIds"`
	Dialect string   `json:"dialect"`
	Workers int      `json:"workers"`
}

func (r *startParseRequest) normalizeFileIDs() []string {
	if len(r.FileIDs) > 0 {
		return r.FileIDs
	}
	if r.FileID != "" {
		return []string{r.FileID}
	}
	return nil
}

func (r *startParseRequest) normalizePaths() []string {
	var out []string
	for _, p := range r.Paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		return out
	}
	if p := strings.TrimSpace(r.Path); p != "" {
		return []string{p}
	}
	return nil
}

type errorsResponse struct {
	Errors []models.ParseError `json:"errors"`
	Count  int                 `json:"count"`
}

// Helper methods

func (h *ParseHandlerImpl) resolveFilePaths(fileIDs []string) ([]string, error) {
	if h.store == nil {
		return nil, NewBadRequestError("file uploads are not enabled", nil)
	}

	filePaths := make([]string, 0, len(fileIDs))
	for _, fid := range fileIDs {
		path, err := h.store.GetFilePath(fid)
		if err != nil {
			if errors.Is(err, storage.ErrFileNotFound) {
				return nil, NewNotFoundError("file", fid)
			}
			return nil, NewInternalError("failed to get file path", err)
		}
		filePaths = append(filePaths, path)
	}
	return filePaths, nil
}

func (h *ParseHandlerImpl) entryPage(c echo.Context) (session.EntryPage, error) {
	id := c.Param("sessionId")
	if id == "" {
		return session.EntryPage{}, NewValidationError("sessionId")
	}

	offset, err := intParam(c, "offset", 0)
	if err != nil || offset < 0 {
		return session.EntryPage{}, NewValidationError("offset")
	}
	limit, err := intParam(c, "limit", defaultPageLimit)
	if err != nil || limit < 1 {
		return session.EntryPage{}, NewValidationError("limit")
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	ctx := c.Request().Context()
	page, err := h.sessionMgr.Entries(ctx, id, c.QueryParam("signal"), offset, limit)
	if err != nil {
		return session.EntryPage{}, sessionError(err, id)
	}
	if page.Entries == nil {
		page.Entries = []models.LogEntry{}
	}
	return page, nil
}

// sessionError maps session manager errors onto API errors.
func sessionError(err error, id string) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return NewNotFoundError("session", id)
	case errors.Is(err, session.ErrSessionNotReady):
		return NewConflictError(fmt.Sprintf("session %s is still parsing", id))
	default:
		return NewInternalError("session query failed", err)
	}
}

func isTerminal(s models.SessionStatus) bool {
	return s == models.SessionStatusComplete || s == models.SessionStatusError
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (h *ParseHandlerImpl) sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func (h *ParseHandlerImpl) sendSSEError(c echo.Context, message string) {
	h.sendSSEData(c, map[string]string{"error": message})
}
