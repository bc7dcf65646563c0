// handlers_parse_test.go - Tests for parse handlers
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/plc-visualizer/logparse/internal/export"
	"github.com/plc-visualizer/logparse/internal/models"
	"github.com/plc-visualizer/logparse/internal/session"
	"github.com/plc-visualizer/logparse/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// MockSessionManager is a mock implementation for testing
type MockSessionManager struct {
	sessions map[string]*models.ParseSession
	results  map[string]*models.ParseResult
	startErr error
	lastReq  session.Request
}

func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{
		sessions: make(map[string]*models.ParseSession),
		results:  make(map[string]*models.ParseResult),
	}
}

func (m *MockSessionManager) StartSession(req session.Request) (models.ParseSession, error) {
	m.lastReq = req
	if m.startErr != nil {
		return models.ParseSession{}, m.startErr
	}
	sess := models.NewParseSession("test-session-123", req.Paths, req.Dialect, req.Workers)
	m.sessions[sess.ID] = sess
	return *sess, nil
}

func (m *MockSessionManager) GetSession(id string) (models.ParseSession, bool) {
	sess, ok := m.sessions[id]
	if !ok {
		return models.ParseSession{}, false
	}
	return *sess, true
}

func (m *MockSessionManager) TouchSession(id string) bool {
	_, ok := m.sessions[id]
	return ok
}

func (m *MockSessionManager) Result(id string) (*models.ParseResult, error) {
	if _, ok := m.sessions[id]; !ok {
		return nil, session.ErrSessionNotFound
	}
	res, ok := m.results[id]
	if !ok {
		return nil, session.ErrSessionNotReady
	}
	return res, nil
}

func (m *MockSessionManager) Signals(id string) ([]models.SignalInfo, error) {
	res, err := m.Result(id)
	if err != nil {
		return nil, err
	}
	return res.Data.Signals.List(), nil
}

func (m *MockSessionManager) Errors(id string) ([]models.ParseError, error) {
	res, err := m.Result(id)
	if err != nil {
		return nil, err
	}
	return res.Errors, nil
}

func (m *MockSessionManager) Entries(ctx context.Context, id, signalKey string, offset, limit int) (session.EntryPage, error) {
	res, err := m.Result(id)
	if err != nil {
		return session.EntryPage{}, err
	}
	var out []models.LogEntry
	for _, e := range res.Data.Entries {
		if signalKey == "" || e.Key() == signalKey {
			out = append(out, e)
		}
	}
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return session.EntryPage{Entries: out, Total: total, Offset: offset, Limit: limit}, nil
}

func (m *MockSessionManager) DeleteSession(id string) bool {
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	delete(m.results, id)
	return true
}

// addCompleted registers a finished session with two signals.
func (m *MockSessionManager) addCompleted(id string) {
	m.sessions[id] = &models.ParseSession{ID: id, Status: models.SessionStatusComplete}

	entries := []models.LogEntry{
		{DeviceID: "PLC1", SignalName: "RUN", Value: true, SignalType: models.SignalTypeBoolean, Line: 1},
		{DeviceID: "PLC1", SignalName: "SPEED", Value: int64(10), SignalType: models.SignalTypeInteger, Line: 2},
		{DeviceID: "PLC1", SignalName: "RUN", Value: false, SignalType: models.SignalTypeBoolean, Line: 3},
	}
	idx := models.NewSignalIndex()
	idx.Insert(&models.SignalInfo{Key: "PLC1::RUN", DeviceID: "PLC1", SignalName: "RUN", Type: models.SignalTypeBoolean, Count: 2})
	idx.Insert(&models.SignalInfo{Key: "PLC1::SPEED", DeviceID: "PLC1", SignalName: "SPEED", Type: models.SignalTypeInteger, Count: 1})

	res := models.SucceededResult(&models.ParsedLog{
		Entries:    entries,
		Signals:    idx,
		Devices:    []string{"PLC1"},
		EntryCount: len(entries),
	}, []models.ParseError{{Line: 4, Content: "garbage", Reason: "invalid line format"}})
	m.results[id] = &res
}

func newContext(method, target string, body []byte, sessionID string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if sessionID != "-" {
		c.SetParamNames("sessionId")
		c.SetParamValues(sessionID)
	}
	return c, rec
}

func assertAPIError(t *testing.T, err error, wantStatus int, wantCode string) {
	t.Helper()
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.Truef(t, ok, "expected APIError, got %T", err)
	assert.Equal(t, wantStatus, apiErr.Status)
	assert.Equal(t, wantCode, apiErr.Code)
}

func TestParseHandler_HandleStartParse(t *testing.T) {
	tests := []struct {
		name        string
		request     startParseRequest
		startErr    error
		wantStatus  int
		wantErr     bool
		errCode     string
		wantPaths   []string
		wantWorkers int
	}{
		{
			name:        "single file parse",
			request:     startParseRequest{Path: "/logs/a.log", Dialect: "plc_debug"},
			wantStatus:  http.StatusAccepted,
			wantPaths:   []string{"/logs/a.log"},
			wantWorkers: 4,
		},
		{
			name:        "multi file parse",
			request:     startParseRequest{Paths: []string{"/logs/a.log", " ", "/logs/b.log"}, Workers: 2},
			wantStatus:  http.StatusAccepted,
			wantPaths:   []string{"/logs/a.log", "/logs/b.log"},
			wantWorkers: 2,
		},
		{
			name:       "no file specified",
			request:    startParseRequest{},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "negative workers",
			request:    startParseRequest{Path: "/logs/a.log", Workers: -1},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "session limit reached",
			request:    startParseRequest{Path: "/logs/a.log"},
			startErr:   session.ErrTooManySessions,
			wantStatus: http.StatusServiceUnavailable,
			wantErr:    true,
			errCode:    "SERVICE_UNAVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessionMgr := NewMockSessionManager()
			sessionMgr.startErr = tt.startErr
			handler := NewParseHandler(nil, sessionMgr, 4)

			body, _ := json.Marshal(tt.request)
			c, rec := newContext(http.MethodPost, "/api/parse", body, "-")

			err := handler.HandleStartParse(c)

			if tt.wantErr {
				assertAPIError(t, err, tt.wantStatus, tt.errCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var response models.ParseSession
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			assert.NotEmpty(t, response.ID)
			assert.Equal(t, tt.wantPaths, sessionMgr.lastReq.Paths)
			assert.Equal(t, tt.wantWorkers, sessionMgr.lastReq.Workers)
			assert.Equal(t, tt.request.Dialect, sessionMgr.lastReq.Dialect)
		})
	}
}

func TestParseHandler_HandleStartParse_BadBody(t *testing.T) {
	handler := NewParseHandler(nil, NewMockSessionManager(), 1)
	c, _ := newContext(http.MethodPost, "/api/parse", []byte("{not json"), "-")

	err := handler.HandleStartParse(c)
	assertAPIError(t, err, http.StatusBadRequest, "BAD_REQUEST")
}

func TestParseHandler_HandleParseStatus(t *testing.T) {
	tests := []struct {
		name         string
		sessionID    string
		setupSession *models.ParseSession
		wantStatus   int
		wantErr      bool
		errCode      string
	}{
		{
			name:      "existing session",
			sessionID: "test-session-1",
			setupSession: &models.ParseSession{
				ID:     "test-session-1",
				Status: models.SessionStatusComplete,
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing session id",
			sessionID:  "",
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "non-existent session",
			sessionID:  "does-not-exist",
			wantStatus: http.StatusNotFound,
			wantErr:    true,
			errCode:    "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessionMgr := NewMockSessionManager()
			if tt.setupSession != nil {
				sessionMgr.sessions[tt.setupSession.ID] = tt.setupSession
			}
			handler := NewParseHandler(nil, sessionMgr, 1)
			c, rec := newContext(http.MethodGet, "/api/parse/:sessionId/status", nil, tt.sessionID)

			err := handler.HandleParseStatus(c)

			if tt.wantErr {
				assertAPIError(t, err, tt.wantStatus, tt.errCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var response models.ParseSession
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			assert.Equal(t, models.SessionStatusComplete, response.Status)
		})
	}
}

func TestParseHandler_HandleSessionKeepAlive(t *testing.T) {
	sessionMgr := NewMockSessionManager()
	sessionMgr.addCompleted("s1")
	handler := NewParseHandler(nil, sessionMgr, 1)

	c, rec := newContext(http.MethodPost, "/api/parse/:sessionId/keepalive", nil, "s1")
	require.NoError(t, handler.HandleSessionKeepAlive(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	c, _ = newContext(http.MethodPost, "/api/parse/:sessionId/keepalive", nil, "missing")
	assertAPIError(t, handler.HandleSessionKeepAlive(c), http.StatusNotFound, "NOT_FOUND")
}

func TestParseHandler_HandleGetSignals(t *testing.T) {
	tests := []struct {
		name       string
		sessionID  string
		completed  bool
		pending    bool
		wantStatus int
		errCode    string
	}{
		{name: "completed session", sessionID: "s1", completed: true, wantStatus: http.StatusOK},
		{name: "still parsing", sessionID: "s2", pending: true, wantStatus: http.StatusConflict, errCode: "CONFLICT"},
		{name: "unknown session", sessionID: "nope", wantStatus: http.StatusNotFound, errCode: "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessionMgr := NewMockSessionManager()
			if tt.completed {
				sessionMgr.addCompleted(tt.sessionID)
			}
			if tt.pending {
				sessionMgr.sessions[tt.sessionID] = &models.ParseSession{ID: tt.sessionID, Status: models.SessionStatusParsing}
			}
			handler := NewParseHandler(nil, sessionMgr, 1)
			c, rec := newContext(http.MethodGet, "/api/parse/:sessionId/signals", nil, tt.sessionID)

			err := handler.HandleGetSignals(c)

			if tt.errCode != "" {
				assertAPIError(t, err, tt.wantStatus, tt.errCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var signals []models.SignalInfo
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signals))
			require.Len(t, signals, 2)
			assert.Equal(t, "PLC1::RUN", signals[0].Key)
			assert.Equal(t, "PLC1::SPEED", signals[1].Key)
		})
	}
}

func TestParseHandler_HandleParseEntries(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantLines []int
		wantTotal int
		errCode   string
	}{
		{name: "default page", query: "", wantLines: []int{1, 2, 3}, wantTotal: 3},
		{name: "offset and limit", query: "?offset=1&limit=1", wantLines: []int{2}, wantTotal: 3},
		{name: "signal filter", query: "?signal=PLC1::RUN", wantLines: []int{1, 3}, wantTotal: 2},
		{name: "bad limit", query: "?limit=0", errCode: "VALIDATION_ERROR"},
		{name: "bad offset", query: "?offset=abc", errCode: "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessionMgr := NewMockSessionManager()
			sessionMgr.addCompleted("s1")
			handler := NewParseHandler(nil, sessionMgr, 1)
			c, rec := newContext(http.MethodGet, "/api/parse/s1/entries"+tt.query, nil, "s1")

			err := handler.HandleParseEntries(c)

			if tt.errCode != "" {
				assertAPIError(t, err, http.StatusBadRequest, tt.errCode)
				return
			}
			require.NoError(t, err)

			var page session.EntryPage
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
			assert.Equal(t, tt.wantTotal, page.Total)
			lines := make([]int, 0, len(page.Entries))
			for _, e := range page.Entries {
				lines = append(lines, e.Line)
			}
			assert.Equal(t, tt.wantLines, lines)
		})
	}
}

func TestParseHandler_HandleParseEntriesMsgpack(t *testing.T) {
	sessionMgr := NewMockSessionManager()
	sessionMgr.addCompleted("s1")
	handler := NewParseHandler(nil, sessionMgr, 1)
	c, rec := newContext(http.MethodGet, "/api/parse/s1/entries/msgpack?limit=2", nil, "s1")

	require.NoError(t, handler.HandleParseEntriesMsgpack(c))
	assert.Equal(t, export.ContentTypeMsgpack, rec.Header().Get(echo.HeaderContentType))

	var page session.EntryPage
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "SPEED", page.Entries[1].SignalName)
}

func TestParseHandler_HandleGetErrors(t *testing.T) {
	sessionMgr := NewMockSessionManager()
	sessionMgr.addCompleted("s1")
	handler := NewParseHandler(nil, sessionMgr, 1)
	c, rec := newContext(http.MethodGet, "/api/parse/s1/errors", nil, "s1")

	require.NoError(t, handler.HandleGetErrors(c))

	var response errorsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 1, response.Count)
	assert.Equal(t, 4, response.Errors[0].Line)
}

func TestParseHandler_HandleGetResult(t *testing.T) {
	sessionMgr := NewMockSessionManager()
	sessionMgr.addCompleted("s1")
	handler := NewParseHandler(nil, sessionMgr, 1)

	t.Run("json", func(t *testing.T) {
		c, rec := newContext(http.MethodGet, "/api/parse/s1/result", nil, "s1")
		require.NoError(t, handler.HandleGetResult(c))

		res, err := export.ReadJSON(rec.Body)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 3, res.Data.EntryCount)
		assert.Equal(t, int64(10), res.Data.Entries[1].Value)
	})

	t.Run("msgpack", func(t *testing.T) {
		c, rec := newContext(http.MethodGet, "/api/parse/s1/result?format=msgpack", nil, "s1")
		require.NoError(t, handler.HandleGetResult(c))

		res, err := export.ReadMsgpack(rec.Body)
		require.NoError(t, err)
		assert.Equal(t, []string{"PLC1::RUN", "PLC1::SPEED"}, res.Data.Signals.Keys())
	})

	t.Run("unknown format", func(t *testing.T) {
		c, _ := newContext(http.MethodGet, "/api/parse/s1/result?format=xml", nil, "s1")
		assertAPIError(t, handler.HandleGetResult(c), http.StatusBadRequest, "VALIDATION_ERROR")
	})
}

func TestParseHandler_HandleDeleteSession(t *testing.T) {
	sessionMgr := NewMockSessionManager()
	sessionMgr.addCompleted("s1")
	handler := NewParseHandler(nil, sessionMgr, 1)

	c, rec := newContext(http.MethodDelete, "/api/parse/s1", nil, "s1")
	require.NoError(t, handler.HandleDeleteSession(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	c, _ = newContext(http.MethodDelete, "/api/parse/s1", nil, "s1")
	assertAPIError(t, handler.HandleDeleteSession(c), http.StatusNotFound, "NOT_FOUND")
}

func TestParseHandler_HandleParseProgressStream(t *testing.T) {
	sessionMgr := NewMockSessionManager()
	sessionMgr.addCompleted("s1")
	handler := NewParseHandler(nil, sessionMgr, 1)

	c, rec := newContext(http.MethodGet, "/api/parse/s1/progress", nil, "s1")
	require.NoError(t, handler.HandleParseProgressStream(c))
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"status":"complete"`)

	c, rec = newContext(http.MethodGet, "/api/parse/x/progress", nil, "x")
	require.NoError(t, handler.HandleParseProgressStream(c))
	assert.Contains(t, rec.Body.String(), `data: {"error":"session not found"}`)
}

func TestParseHandler_HandleStartParse_FileIDs(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), 0)
	require.NoError(t, err)
	info, err := store.Save("plc.log", strings.NewReader("x"))
	require.NoError(t, err)
	storedPath, err := store.GetFilePath(info.ID)
	require.NoError(t, err)

	tests := []struct {
		name      string
		store     storage.Store
		request   startParseRequest
		wantPaths []string
		errStatus int
		errCode   string
	}{
		{
			name:      "uploaded file",
			store:     store,
			request:   startParseRequest{FileID: info.ID},
			wantPaths: []string{storedPath},
		},
		{
			name:      "path and upload together",
			store:     store,
			request:   startParseRequest{Path: "/logs/a.log", FileIDs: []string{info.ID}},
			wantPaths: []string{"/logs/a.log", storedPath},
		},
		{
			name:      "unknown upload",
			store:     store,
			request:   startParseRequest{FileID: "non-existent"},
			errStatus: http.StatusNotFound,
			errCode:   "NOT_FOUND",
		},
		{
			name:      "uploads disabled",
			request:   startParseRequest{FileID: info.ID},
			errStatus: http.StatusBadRequest,
			errCode:   "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessionMgr := NewMockSessionManager()
			handler := NewParseHandler(tt.store, sessionMgr, 1)

			body, _ := json.Marshal(tt.request)
			c, rec := newContext(http.MethodPost, "/api/parse", body, "-")

			err := handler.HandleStartParse(c)

			if tt.errCode != "" {
				assertAPIError(t, err, tt.errStatus, tt.errCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, http.StatusAccepted, rec.Code)
			assert.Equal(t, tt.wantPaths, sessionMgr.lastReq.Paths)
		})
	}
}
