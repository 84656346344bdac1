// Package applog records warnings and errors from every lens command in a
// JSONL file under the data directory, so failures from earlier runs can
// be inspected with `lens errors`.
package applog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codelens-dev/lens/internal/config"
	"github.com/sirupsen/logrus"
)

// Entry is one line of the error log.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Level     string    `json:"level"` // "error", "warn"
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	Op        string    `json:"op,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// MaxRecent is the number of entries kept in memory.
const MaxRecent = 100

// ErrorLog is a logrus hook that appends warn and error entries to a file
// and keeps the latest MaxRecent of them in a ring buffer.
type ErrorLog struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	recent   []Entry
	writeIdx int
	count    int
}

// DefaultPath returns <data dir>/errors.log.
func DefaultPath() string {
	return filepath.Join(config.DataDir(), "errors.log")
}

// Open opens (creating if needed) the log at path for appending.
func Open(path string) (*ErrorLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	return &ErrorLog{
		file:   file,
		path:   path,
		recent: make([]Entry, MaxRecent),
	}, nil
}

func (e *ErrorLog) Path() string { return e.path }

// Levels implements logrus.Hook.
func (e *ErrorLog) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

// Fire implements logrus.Hook.
func (e *ErrorLog) Fire(le *logrus.Entry) error {
	entry := Entry{
		Timestamp: le.Time,
		Level:     levelName(le.Level),
		Message:   le.Message,
	}
	if err, ok := le.Data[logrus.ErrorKey].(error); ok {
		entry.Error = err.Error()
	}
	if op, ok := le.Data["op"]; ok {
		entry.Op = fmt.Sprint(op)
	}
	if id, ok := le.Data["request_id"].(string); ok {
		entry.RequestID = id
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	e.add(entry)
	return nil
}

func (e *ErrorLog) add(entry Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file != nil {
		if data, err := json.Marshal(entry); err == nil {
			_, _ = e.file.Write(append(data, '\n'))
		}
	}

	e.recent[e.writeIdx] = entry
	e.writeIdx = (e.writeIdx + 1) % MaxRecent
	if e.count < MaxRecent {
		e.count++
	}
}

// Recent returns the buffered entries, newest first.
func (e *ErrorLog) Recent() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.count == 0 {
		return nil
	}
	out := make([]Entry, e.count)
	idx := (e.writeIdx - 1 + MaxRecent) % MaxRecent
	for i := range out {
		out[i] = e.recent[idx]
		idx = (idx - 1 + MaxRecent) % MaxRecent
	}
	return out
}

// Count24h counts buffered entries from the last 24 hours.
func (e *ErrorLog) Count24h() int {
	cutoff := time.Now().Add(-24 * time.Hour)
	n := 0
	for _, entry := range e.Recent() {
		if entry.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

func (e *ErrorLog) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

// ReadFile returns the last n entries of the log at path, newest first.
// A missing file yields no entries. Lines that do not parse are skipped.
func ReadFile(path string, n int) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if n <= 0 {
		n = MaxRecent
	}
	ring := make([]Entry, 0, n)
	next := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var entry Entry
		if json.Unmarshal(sc.Bytes(), &entry) != nil {
			continue
		}
		if len(ring) < n {
			ring = append(ring, entry)
		} else {
			ring[next] = entry
		}
		next = (next + 1) % n
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	out := make([]Entry, len(ring))
	idx := (next - 1 + len(ring)) % max(len(ring), 1)
	for i := range out {
		out[i] = ring[idx]
		idx = (idx - 1 + len(ring)) % len(ring)
	}
	return out, nil
}

func levelName(l logrus.Level) string {
	if l == logrus.WarnLevel {
		return "warn"
	}
	return "error"
}

