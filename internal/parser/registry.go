package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/plc-visualizer/logparse/internal/logging"
	"github.com/plc-visualizer/logparse/internal/models"
)

// AutoDialect asks Parse to detect the dialect from the file contents.
const AutoDialect = "auto"

// DefaultDialect is used when Parse is called with an empty dialect name.
const DefaultDialect = PLCDebugName

// detectSampleLines is how many non-blank lines Detect reads.
const detectSampleLines = 10

var (
	ErrDuplicateDialect = errors.New("dialect already registered")
	ErrInvalidDialect   = errors.New("invalid dialect registration")
	ErrNoDialect        = errors.New("no suitable dialect found")
)

// Registry maps dialect names to line parsers and drives a full parse.
// Registration is expected to happen before the first Parse; lookups are
// safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	parsers      map[string]registeredDialect // keyed by lowercase name
	names        []string                     // registration order, as given
	logger       *slog.Logger
	maxLineBytes int
}

type registeredDialect struct {
	name   string
	parser LineParser
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for detection and parse traces.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMaxLineBytes sets the longest line ReadLines accepts.
func WithMaxLineBytes(n int) RegistryOption {
	return func(r *Registry) {
		r.maxLineBytes = n
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		parsers:      make(map[string]registeredDialect),
		logger:       logging.Discard(),
		maxLineBytes: DefaultMaxLineBytes,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.WithComponent(r.logger, "registry")
	return r
}

// NewDefaultRegistry returns a registry with every shipped dialect.
func NewDefaultRegistry(opts ...RegistryOption) *Registry {
	r := NewRegistry(opts...)
	r.MustRegister(PLCDebugName, NewPLCDebugParser())
	r.MustRegister(PLCTabName, NewPLCTabParser())
	r.MustRegister(CSVSignalName, NewCSVSignalParser())
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry with the shipped dialects.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewDefaultRegistry()
	})
	return defaultRegistry
}

// Register adds p under name. Names are compared case-insensitively.
func (r *Registry) Register(name string, p LineParser) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDialect)
	}
	if p == nil {
		return fmt.Errorf("%w: nil parser for %q", ErrInvalidDialect, name)
	}
	key := strings.ToLower(name)
	if key == AutoDialect {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidDialect, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.parsers[key]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateDialect, name)
	}
	r.parsers[key] = registeredDialect{name: name, parser: p}
	r.names = append(r.names, name)
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(name string, p LineParser) {
	if err := r.Register(name, p); err != nil {
		panic(err)
	}
}

// Lookup returns the parser registered under name.
func (r *Registry) Lookup(name string) (LineParser, bool) {
	d, ok := r.lookup(name)
	return d.parser, ok
}

func (r *Registry) lookup(name string) (registeredDialect, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.parsers[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// Dialects lists registered names in registration order.
func (r *Registry) Dialects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Detect samples the top of path and returns the first dialect, in
// registration order, whose Detector accepts the sample.
func (r *Registry) Detect(path string) (string, error) {
	sample, err := ReadSample(path, detectSampleLines)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.names {
		det, ok := r.parsers[strings.ToLower(name)].parser.(Detector)
		if !ok {
			continue
		}
		if det.CanParse(sample) {
			r.logger.Debug("dialect detected", "path", path, "dialect", name)
			return name, nil
		}
	}
	r.logger.Debug("no dialect matched", "path", path, "sampleLines", len(sample))
	return "", fmt.Errorf("%w for %s", ErrNoDialect, path)
}

// Options tunes a single parse.
type Options struct {
	// Workers bounds the number of chunk workers; values below 1 mean 1.
	Workers int
	// OnProgress, if set, is called after each chunk finishes, on that
	// chunk's worker goroutine. Calls are serialized.
	OnProgress ProgressCallback
}

// Parse reads path and parses it with the named dialect using up to
// workers goroutines. It never returns an error: failures are reported in
// the result.
func (r *Registry) Parse(path, dialect string, workers int) models.ParseResult {
	return r.ParseWithOptions(path, dialect, Options{Workers: workers})
}

// ParseWithOptions is Parse with progress reporting.
func (r *Registry) ParseWithOptions(path, dialect string, opts Options) models.ParseResult {
	name, p, perr := r.resolve(path, dialect)
	if perr != nil {
		res := models.FailedResult(*perr)
		res.FilePath = path
		res.Dialect = dialect
		return res
	}

	start := time.Now()
	lines, err := ReadLines(path, r.maxLineBytes)
	if err != nil {
		res := models.FailedResult(models.ParseError{
			Reason:   fmt.Sprintf("failed to read file: %v", err),
			FilePath: path,
		})
		res.FilePath = path
		res.Dialect = name
		return res
	}

	workers := normalizeWorkers(opts.Workers, len(lines))
	r.logger.Debug("parse started", "path", path, "dialect", name, "lines", len(lines), "workers", workers)

	entries, errs := runParallel(lines, p, workers, opts.OnProgress)
	for i := range errs {
		errs[i].FilePath = path
	}
	data := Assemble(entries)

	r.logger.Debug("parse finished",
		"path", path,
		"dialect", name,
		"entries", data.EntryCount,
		"signals", data.Signals.Len(),
		"errors", len(errs),
		"elapsed", time.Since(start),
	)

	res := models.SucceededResult(data, errs)
	res.FilePath = path
	res.Dialect = name
	return res
}

// resolve maps the requested dialect to a registered parser without
// touching the file unless detection was asked for.
func (r *Registry) resolve(path, dialect string) (string, LineParser, *models.ParseError) {
	name := strings.TrimSpace(dialect)
	if name == "" {
		name = DefaultDialect
	}

	if strings.EqualFold(name, AutoDialect) {
		detected, err := r.Detect(path)
		if err != nil {
			return "", nil, &models.ParseError{Reason: err.Error(), FilePath: path}
		}
		name = detected
	}

	d, ok := r.lookup(name)
	if !ok {
		return "", nil, &models.ParseError{
			Reason:   fmt.Sprintf("unknown dialect %q", dialect),
			FilePath: path,
		}
	}
	return d.name, d.parser, nil
}
