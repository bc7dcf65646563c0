// Package session runs parses in the background for the HTTP API.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plc-visualizer/logparse/internal/logging"
	"github.com/plc-visualizer/logparse/internal/models"
	"github.com/plc-visualizer/logparse/internal/parser"
	"github.com/plc-visualizer/logparse/internal/store"
)

// DefaultMaxSessions limits concurrent sessions to prevent memory exhaustion
const DefaultMaxSessions = 10

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionNotReady = errors.New("session not complete")
	ErrTooManySessions = errors.New("too many active sessions")
	ErrNoFiles         = errors.New("no files to parse")
)

// Request describes one parse job. Several paths are parsed one after the
// other and merged.
type Request struct {
	Paths   []string
	Dialect string
	Workers int
}

// Manager handles active log parsing sessions.
type Manager struct {
	sessions    map[string]*SessionState
	mu          sync.RWMutex
	registry    *parser.Registry
	store       *store.DuckStore
	logger      *slog.Logger
	maxSessions int
	merge       parser.MergeConfig

	beforePersist func(id string) // test hook, runs between the session check and Save
}

// SessionState holds the session metadata and its parse result.
type SessionState struct {
	Session      *models.ParseSession
	Result       *models.ParseResult
	LastAccessed time.Time // Last time the session was accessed (for keep-alive)
	done         chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore persists every completed session in ds and serves entries from it.
func WithStore(ds *store.DuckStore) Option {
	return func(m *Manager) { m.store = ds }
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMaxSessions overrides DefaultMaxSessions.
func WithMaxSessions(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxSessions = n
		}
	}
}

// WithMergeConfig sets how multi-file sessions are merged.
func WithMergeConfig(cfg parser.MergeConfig) Option {
	return func(m *Manager) { m.merge = cfg }
}

// NewManager creates a session manager that parses with registry.
func NewManager(registry *parser.Registry, opts ...Option) *Manager {
	m := &Manager{
		sessions:    make(map[string]*SessionState),
		registry:    registry,
		logger:      logging.Discard(),
		maxSessions: DefaultMaxSessions,
		merge:       parser.DefaultMergeConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.WithComponent(m.logger, "session")
	return m
}

// Registry returns the registry sessions are parsed with.
func (m *Manager) Registry() *parser.Registry {
	return m.registry
}

// StartSession registers a new session and parses it in the background.
func (m *Manager) StartSession(req Request) (models.ParseSession, error) {
	if len(req.Paths) == 0 {
		return models.ParseSession{}, ErrNoFiles
	}
	if req.Workers < 1 {
		req.Workers = 1
	}

	// Clean up old sessions if at limit
	if !m.cleanupOldSessionsIfNeeded() {
		return models.ParseSession{}, ErrTooManySessions
	}

	sessionID := uuid.New().String()
	session := models.NewParseSession(sessionID, append([]string(nil), req.Paths...), req.Dialect, req.Workers)
	session.Status = models.SessionStatusParsing

	state := &SessionState{
		Session:      session,
		LastAccessed: time.Now(),
		done:         make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[sessionID] = state
	snapshot := *state.Session
	m.mu.Unlock()

	// Run parsing in a background goroutine
	go m.runParse(sessionID, req, state.done)

	return snapshot, nil
}

func (m *Manager) runParse(sessionID string, req Request, done chan struct{}) {
	log := m.logger.With("session", shortID(sessionID))

	// Recover from panics to prevent backend crash
	defer func() {
		if r := recover(); r != nil {
			log.Error("parse panicked", "panic", r)
			m.updateSessionError(sessionID, fmt.Sprintf("parse panicked: %v", r))
		}
		close(done)
	}()

	start := time.Now()
	log.Info("parse started", "files", len(req.Paths), "dialect", req.Dialect, "workers", req.Workers)

	results := make([]models.ParseResult, 0, len(req.Paths))
	nFiles := float64(len(req.Paths))
	for i, path := range req.Paths {
		fileIdx := float64(i)
		result := m.registry.ParseWithOptions(path, req.Dialect, parser.Options{
			Workers: req.Workers,
			OnProgress: func(linesDone, totalLines int) {
				// 0-90% is parsing, the rest is merge and persistence.
				progress := (fileIdx + float64(linesDone)/float64(max(totalLines, 1))) / nFiles * 90
				m.setProgress(sessionID, progress)
			},
		})
		log.Debug("file parsed", "path", path, "success", result.Success, "errors", len(result.Errors))
		results = append(results, result)
	}

	result := results[0]
	if len(results) > 1 {
		result = parser.MergeResults(results, m.merge)
		result.FilePath = ""
	}

	if !result.Success {
		reason := "parse failed"
		if len(result.Errors) > 0 {
			reason = result.Errors[0].Reason
		}
		log.Warn("parse failed", "reason", reason)
		m.finish(sessionID, &result, reason, start)
		return
	}

	if _, ok := m.GetSession(sessionID); !ok {
		log.Debug("session deleted while parsing")
		return
	}
	if m.store != nil {
		if m.beforePersist != nil {
			m.beforePersist(sessionID)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		err := m.store.Save(ctx, sessionID, result.Data)
		cancel()
		if err != nil {
			log.Error("persist failed", "error", err)
			m.finish(sessionID, &result, fmt.Sprintf("persist failed: %v", err), start)
			return
		}
		// A delete that raced the save may have run before the rows existed.
		if _, ok := m.GetSession(sessionID); !ok {
			log.Debug("session deleted while persisting")
			m.dropPersisted(sessionID)
			return
		}
	}

	m.finish(sessionID, &result, "", start)
	log.Info("parse complete",
		"entries", result.Data.EntryCount,
		"signals", result.Data.Signals.Len(),
		"errors", len(result.Errors),
		"elapsed", time.Since(start),
	)
}

func (m *Manager) setProgress(sessionID string, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.sessions[sessionID]; ok && progress > state.Session.Progress {
		state.Session.Progress = progress
	}
}

// finish records the outcome. A non-empty failure marks the session as errored.
func (m *Manager) finish(sessionID string, result *models.ParseResult, failure string, start time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	state.Result = result
	s := state.Session
	s.ProcessingTimeMs = time.Since(start).Milliseconds()
	s.ErrorCount = len(result.Errors)
	s.Dialect = result.Dialect

	if failure != "" {
		s.Status = models.SessionStatusError
		s.Message = failure
		return
	}

	s.Status = models.SessionStatusComplete
	s.Progress = 100
	s.EntryCount = result.Data.EntryCount
	s.SignalCount = result.Data.Signals.Len()
	if tr := result.Data.TimeRange; tr != nil {
		s.StartTime = tr.Start.UnixMilli()
		s.EndTime = tr.End.UnixMilli()
	}
}

func (m *Manager) updateSessionError(sessionID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	state.Session.Status = models.SessionStatusError
	state.Session.Message = reason
}

func isFinished(s *models.ParseSession) bool {
	return s.Status == models.SessionStatusComplete || s.Status == models.SessionStatusError
}

// cleanupOldSessionsIfNeeded removes finished sessions until there is room
// for one more. It reports false when every slot holds a running parse.
func (m *Manager) cleanupOldSessionsIfNeeded() bool {
	ok, evicted := m.evictForCapacity()
	m.dropPersisted(evicted...)
	return ok
}

func (m *Manager) evictForCapacity() (bool, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < m.maxSessions {
		return true, nil
	}

	var evicted []string

	// Oldest access first
	toFree := len(m.sessions) - m.maxSessions + 1
	for toFree > 0 {
		var oldestID string
		var oldest time.Time
		for id, state := range m.sessions {
			if !isFinished(state.Session) {
				continue
			}
			if oldestID == "" || state.LastAccessed.Before(oldest) {
				oldestID, oldest = id, state.LastAccessed
			}
		}
		if oldestID == "" {
			return false, evicted
		}
		delete(m.sessions, oldestID)
		evicted = append(evicted, oldestID)
		m.logger.Info("evicted session to free capacity", "session", shortID(oldestID))
		toFree--
	}
	return true, evicted
}

// CleanupOldSessions removes finished sessions not accessed within maxAge,
// but keeps sessions that have been accessed within SessionKeepAliveWindow.
// It returns the number of sessions removed.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	removed := m.removeAged(maxAge)
	m.dropPersisted(removed...)
	return len(removed)
}

func (m *Manager) removeAged(maxAge time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	var removed []string
	for id, state := range m.sessions {
		// Only clean up completed/error sessions
		if !isFinished(state.Session) {
			continue
		}
		// Don't clean up sessions that are actively being used
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			delete(m.sessions, id)
			removed = append(removed, id)
			m.logger.Info("cleaned up aged session",
				"session", shortID(id),
				"idle", time.Since(state.LastAccessed).Round(time.Second))
		}
	}
	return removed
}

// RunCleanup sweeps aged sessions every interval until ctx is done.
func (m *Manager) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupOldSessions(maxAge)
		}
	}
}

// dropPersisted deletes the stored rows of sessions already removed from
// the table. It must be called without m.mu held.
func (m *Manager) dropPersisted(ids ...string) {
	if m.store == nil {
		return
	}
	for _, id := range ids {
		if err := m.store.Delete(context.Background(), id); err != nil {
			m.logger.Warn("failed to delete persisted session", "session", shortID(id), "error", err)
		}
	}
}

// GetSession returns a snapshot of a session by ID.
func (m *Manager) GetSession(id string) (models.ParseSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return models.ParseSession{}, false
	}
	return *state.Session, true
}

// TouchSession updates the LastAccessed timestamp for a session.
// This should be called whenever a session is actively being used
// to prevent it from being cleaned up.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// Wait blocks until the session's parse has finished or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (models.ParseSession, error) {
	m.mu.RLock()
	state, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return models.ParseSession{}, ErrSessionNotFound
	}

	select {
	case <-state.done:
	case <-ctx.Done():
		return models.ParseSession{}, ctx.Err()
	}
	s, ok := m.GetSession(id)
	if !ok {
		return models.ParseSession{}, ErrSessionNotFound
	}
	return s, nil
}

// result returns the finished result of a session and marks it as accessed.
func (m *Manager) result(id string) (*models.ParseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if state.Result == nil {
		return nil, ErrSessionNotReady
	}
	state.LastAccessed = time.Now()
	return state.Result, nil
}

// Result returns the full parse result of a finished session.
func (m *Manager) Result(id string) (*models.ParseResult, error) {
	return m.result(id)
}

// Signals returns the signal index of a completed session in first-occurrence order.
func (m *Manager) Signals(id string) ([]models.SignalInfo, error) {
	res, err := m.result(id)
	if err != nil {
		return nil, err
	}
	if res.Data == nil {
		return []models.SignalInfo{}, nil
	}
	list := res.Data.Signals.List()
	if list == nil {
		list = []models.SignalInfo{}
	}
	return list, nil
}

// Errors returns the line and file errors of a finished session.
func (m *Manager) Errors(id string) ([]models.ParseError, error) {
	res, err := m.result(id)
	if err != nil {
		return nil, err
	}
	return res.Errors, nil
}

// EntryPage is one page of entries plus the total matching the filter.
type EntryPage struct {
	Entries []models.LogEntry `json:"entries" msgpack:"entries"`
	Total   int               `json:"total" msgpack:"total"`
	Offset  int               `json:"offset" msgpack:"offset"`
	Limit   int               `json:"limit" msgpack:"limit"`
}

// Entries returns a page of a completed session's entries in file order.
// A non-empty signalKey restricts the page to that signal. Entries come
// from the DuckDB store when one is configured.
func (m *Manager) Entries(ctx context.Context, id, signalKey string, offset, limit int) (EntryPage, error) {
	res, err := m.result(id)
	if err != nil {
		return EntryPage{}, err
	}
	if res.Data == nil {
		return EntryPage{Entries: []models.LogEntry{}, Offset: offset, Limit: limit}, nil
	}

	total := res.Data.EntryCount
	if signalKey != "" {
		total = 0
		if info, ok := res.Data.Signals.Get(signalKey); ok {
			total = info.Count
		}
	}
	page := EntryPage{Total: total, Offset: offset, Limit: limit}

	if m.store != nil {
		entries, err := m.store.Entries(ctx, id, signalKey, offset, limit)
		if err != nil {
			return EntryPage{}, err
		}
		page.Entries = entries
		return page, nil
	}

	page.Entries = pageEntries(res.Data.Entries, signalKey, offset, limit)
	return page, nil
}

func pageEntries(all []models.LogEntry, signalKey string, offset, limit int) []models.LogEntry {
	out := make([]models.LogEntry, 0, max(limit, 0))
	skipped := 0
	for _, e := range all {
		if signalKey != "" && e.Key() != signalKey {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// DeleteSession removes a session. Running parses finish in the background
// and their result is discarded.
func (m *Manager) DeleteSession(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.dropPersisted(id)
	return true
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// shortID safely truncates an ID for logging (handles short IDs gracefully)
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
