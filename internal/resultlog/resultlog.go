// Package resultlog persists run artifacts as plain text files that are
// rewritten in full on every update.
//
// Each Append replaces the destination with the complete accumulated text
// via a temp file and rename, so a reader always sees a whole prefix of the
// final log and never a half-written record.
package resultlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log is one run-scoped destination file. It is safe for concurrent use,
// though each logical phase is expected to own its own Log.
type Log struct {
	mu      sync.Mutex
	path    string
	entries []string
}

// New returns a Log for path. Nothing is written until the first Append.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the destination path.
func (l *Log) Path() string { return l.path }

// Append adds lines to the log and rewrites the destination with every
// entry so far, joined by newlines. On a write error the lines stay in
// memory and are written by the next successful Append.
func (l *Log) Append(lines ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, lines...)
	return writeAtomic(l.path, strings.Join(l.entries, "\n"))
}

// Replace discards the accumulated entries, keeps lines, and rewrites the
// destination.
func (l *Log) Replace(lines ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries[:0:0], lines...)
	return writeAtomic(l.path, strings.Join(l.entries, "\n"))
}

// Content returns the text last handed to the destination.
func (l *Log) Content() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.entries, "\n")
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func writeAtomic(path, content string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// NextAvailableDir returns base when it does not exist or is an empty
// directory, otherwise the first of base_1, base_2, ... that is free. The
// returned directory is not created.
func NextAvailableDir(base string) (string, error) {
	free, err := dirIsFree(base)
	if err != nil {
		return "", err
	}
	if free {
		return base, nil
	}

	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		free, err := dirIsFree(candidate)
		if err != nil {
			return "", err
		}
		if free {
			return candidate, nil
		}
	}
}

func dirIsFree(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	switch {
	case os.IsNotExist(err):
		return true, nil
	case err != nil:
		return false, fmt.Errorf("inspect %s: %w", path, err)
	default:
		return len(entries) == 0, nil
	}
}
