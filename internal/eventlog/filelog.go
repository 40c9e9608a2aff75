// Package eventlog provides a local append-only ad event log stored as JSON lines.
package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ignite/adserving/internal/domain"
	"github.com/ignite/adserving/internal/pkg/logger"
)

// ErrInvalidEvent is returned when an event is missing required fields.
var ErrInvalidEvent = errors.New("invalid ad event")

// FileLog appends events to a single JSON-lines file.
type FileLog struct {
	mu   sync.Mutex
	path string
}

// NewFileLog creates the parent directory if needed.
func NewFileLog(path string) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	return &FileLog{path: path}, nil
}

// RecordEvent appends event.
func (l *FileLog) RecordEvent(_ context.Context, event domain.AdEvent) error {
	if event.ID == "" || event.CreativeInstanceID == "" || !event.Type.IsValid() {
		return fmt.Errorf("%w: id=%q creative=%q type=%q", ErrInvalidEvent, event.ID, event.CreativeInstanceID, event.Type)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// GetAllEvents returns every event of adType in append order. A missing file is an empty log.
func (l *FileLog) GetAllEvents(_ context.Context, adType domain.AdType) ([]domain.AdEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()

	var events []domain.AdEvent
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e domain.AdEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			logger.Warn("skipping corrupt event log line", "path", l.path, "line", line, "error", err)
			continue
		}
		if e.AdType == adType {
			events = append(events, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	return events, nil
}
