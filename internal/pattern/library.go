package pattern

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// FileExtension is the suffix LoadDir picks up.
const FileExtension = ".csv"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// Logger defines the logging interface used by the Library.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Summary describes a library entry without its frames.
type Summary struct {
	Name   string  `json:"name"`
	Length float64 `json:"length"`
	Frames int     `json:"frames"`
}

// Library holds named patterns in memory.
//
// Patterns are immutable, so Get hands out the stored pointer. Uploaded
// patterns are not written back to disk and are lost on restart.
//
// All public methods are thread-safe.
type Library struct {
	mu       sync.RWMutex
	patterns map[string]*Pattern
	logger   Logger
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{
		patterns: make(map[string]*Pattern),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the library.
func (l *Library) SetLogger(logger Logger) {
	l.logger = logger
}

// LoadDir loads every *.csv file in dir, naming each pattern after its file
// name without the extension.
//
// Files that fail to parse are logged and skipped so one bad file does not
// block startup. A missing directory loads nothing.
//
// Returns:
//   - int: number of patterns loaded
//   - error: non-nil only when the directory exists but cannot be read
func (l *Library) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("pattern directory not found", "dir", dir)
			return 0, nil
		}
		return 0, fmt.Errorf("reading pattern directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), FileExtension) {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		path := filepath.Join(dir, entry.Name())

		p, err := LoadFile(path)
		if err != nil {
			l.logger.Warn("skipping pattern file", "path", path, "error", err)
			continue
		}
		if err := l.Put(name, p); err != nil {
			l.logger.Warn("skipping pattern file", "path", path, "error", err)
			continue
		}
		loaded++
	}

	l.logger.Info("patterns loaded", "dir", dir, "count", loaded)
	return loaded, nil
}

// Put stores p under name, replacing any previous pattern with that name.
func (l *Library) Put(name string, p *Pattern) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if p == nil || len(p.Frames) == 0 {
		return &MalformedPatternError{Reason: "no usable frames"}
	}

	l.mu.Lock()
	l.patterns[name] = p
	l.mu.Unlock()

	l.logger.Debug("pattern stored", "name", name, "frames", len(p.Frames), "length", p.Length)
	return nil
}

// Get returns the pattern stored under name.
// Returns ErrPatternNotFound if there is none.
func (l *Library) Get(name string) (*Pattern, error) {
	l.mu.RLock()
	p, ok := l.patterns[name]
	l.mu.RUnlock()

	if !ok {
		return nil, ErrPatternNotFound
	}
	return p, nil
}

// List returns a summary of every pattern ordered by name.
func (l *Library) List() []Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summaries := make([]Summary, 0, len(l.patterns))
	for name, p := range l.patterns {
		summaries = append(summaries, Summary{Name: name, Length: p.Length, Frames: len(p.Frames)})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
	return summaries
}

// Delete removes the pattern stored under name.
// Returns ErrPatternNotFound if there is none.
//
// Assignments already playing keep their pointer and are unaffected.
func (l *Library) Delete(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.patterns[name]; !ok {
		return ErrPatternNotFound
	}
	delete(l.patterns, name)
	return nil
}

// Count returns the number of stored patterns.
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.patterns)
}
