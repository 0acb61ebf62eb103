package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Journal is an append-only record of engine activity, one JSON object per line.
type Journal interface {
	Append(event string, data any) error
	Close() error
}

type NopJournal struct{}

func NewNopJournal() *NopJournal             { return &NopJournal{} }
func (*NopJournal) Append(string, any) error { return nil }
func (*NopJournal) Close() error             { return nil }

type FileJournal struct {
	mu  sync.Mutex
	f   *os.File
	now func() time.Time
}

func NewFileJournal(path string) (*FileJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f, now: time.Now}, nil
}

func (j *FileJournal) Append(event string, data any) error {
	line, err := json.Marshal(struct {
		Timestamp string `json:"timestamp"`
		Event     string `json:"event"`
		Data      any    `json:"data"`
	}{j.now().UTC().Format(time.RFC3339Nano), event, data})
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = fmt.Fprintln(j.f, string(line))
	return err
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

var _ Journal = (*NopJournal)(nil)
var _ Journal = (*FileJournal)(nil)
