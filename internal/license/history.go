package license

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ExpiringSoonWindow is how far ahead of expiry an entry starts
// classifying as ExpiringSoon.
const ExpiringSoonWindow = 30 * 24 * time.Hour

// HistoryStatus classifies a history entry relative to "now" at query
// time; it is derived, never stored.
type HistoryStatus string

const (
	StatusAll          HistoryStatus = "all"
	StatusActive       HistoryStatus = "active"
	StatusExpiringSoon HistoryStatus = "expiring_soon"
	StatusExpired      HistoryStatus = "expired"
	StatusLifetime     HistoryStatus = "lifetime"
)

// ParseHistoryStatus normalizes a user-supplied status filter.
func ParseHistoryStatus(s string) (HistoryStatus, error) {
	switch HistoryStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusAll, "":
		return StatusAll, nil
	case StatusActive:
		return StatusActive, nil
	case StatusExpiringSoon:
		return StatusExpiringSoon, nil
	case StatusExpired:
		return StatusExpired, nil
	case StatusLifetime:
		return StatusLifetime, nil
	default:
		return "", fmt.Errorf("unknown status filter %q", s)
	}
}

// HistoryEntry is one audit row, written once at issuance and immutable
// afterwards except for operator-initiated deletion.
type HistoryEntry struct {
	ID           string
	CustomerName string
	HardwareID   string
	Duration     DurationPreset
	GeneratedAt  time.Time
	ExpiresAt    time.Time
	Token        string
}

// StatusAt classifies the entry against the given instant.
func (e HistoryEntry) StatusAt(now time.Time) HistoryStatus {
	if e.ExpiresAt.Equal(LifetimeExpiry) {
		return StatusLifetime
	}
	if now.After(e.ExpiresAt) {
		return StatusExpired
	}
	if e.ExpiresAt.Sub(now) <= ExpiringSoonWindow {
		return StatusExpiringSoon
	}
	return StatusActive
}

var historyHeader = []string{"id", "customer_name", "hardware_id", "duration", "generated_at", "expires_at", "token"}

// ErrEntryNotFound is returned by Delete for an unknown entry id.
var ErrEntryNotFound = errors.New("history entry not found")

// HistoryStore is the operator-side append-mostly audit log, kept as a
// flat CSV file so it stays human-readable and greppable. One process
// writes at a time; appends go through O_APPEND and deletions rewrite
// the file via temp-and-rename so a normal exit never corrupts it.
type HistoryStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewHistoryStore creates a store over the given CSV file path. The
// file is created lazily on first append.
func NewHistoryStore(path string, logger *slog.Logger) *HistoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryStore{
		path:   path,
		logger: logger.With(slog.String("component", "license_history")),
	}
}

// Path returns the backing file location.
func (s *HistoryStore) Path() string {
	return s.path
}

// Append writes one issuance row. The row is flushed and synced before
// Append returns; on any error the file is left without a partial row
// (csv.Writer buffers the full record before the single write).
func (s *HistoryStore) Append(entry *HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	writeHeader := false
	if info, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) || (err == nil && info.Size() == 0) {
		writeHeader = true
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(historyHeader); err != nil {
			return fmt.Errorf("failed to write history header: %w", err)
		}
	}
	if err := w.Write(entry.record()); err != nil {
		return fmt.Errorf("failed to write history row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush history row: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync history file: %w", err)
	}

	s.logger.Info("history entry appended",
		slog.String("id", entry.ID),
		slog.String("customer", entry.CustomerName),
	)
	return nil
}

// List returns all entries in issuance order. A missing file is an
// empty history, not an error.
func (s *HistoryStore) List() ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Search returns entries whose customer name or hardware id contains
// the query, case-insensitively. An empty query matches everything.
func (s *HistoryStore) Search(query string) ([]HistoryEntry, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return entries, nil
	}
	var matched []HistoryEntry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.CustomerName), query) ||
			strings.Contains(strings.ToLower(e.HardwareID), query) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// FilterStatus returns entries whose derived status matches the filter
// at the given instant. StatusAll passes everything through.
func (s *HistoryStore) FilterStatus(status HistoryStatus, now time.Time) ([]HistoryEntry, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	if status == StatusAll {
		return entries, nil
	}
	var matched []HistoryEntry
	for _, e := range entries {
		if e.StatusAt(now) == status {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// Delete removes one entry by id, rewriting the whole file through a
// temp file and rename.
func (s *HistoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}

	kept := entries[:0]
	found := false
	for _, e := range entries {
		if e.ID == id {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}

	if err := s.rewrite(kept); err != nil {
		return err
	}
	s.logger.Info("history entry deleted", slog.String("id", id))
	return nil
}

func (s *HistoryStore) read() ([]HistoryEntry, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(historyHeader)

	var entries []HistoryEntry
	first := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read history file: %w", err)
		}
		if first {
			first = false
			if row[0] == historyHeader[0] {
				continue
			}
		}
		entry, err := entryFromRecord(row)
		if err != nil {
			return nil, fmt.Errorf("corrupt history row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *HistoryStore) rewrite(entries []HistoryEntry) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.Write(historyHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write history header: %w", err)
	}
	for _, e := range entries {
		if err := w.Write(e.record()); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write history row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush history file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp history file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}

func (e HistoryEntry) record() []string {
	return []string{
		e.ID,
		e.CustomerName,
		e.HardwareID,
		string(e.Duration),
		e.GeneratedAt.UTC().Format(time.RFC3339),
		e.ExpiresAt.UTC().Format(time.RFC3339),
		e.Token,
	}
}

func entryFromRecord(row []string) (HistoryEntry, error) {
	generatedAt, err := time.Parse(time.RFC3339, row[4])
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("bad generated_at %q: %w", row[4], err)
	}
	expiresAt, err := time.Parse(time.RFC3339, row[5])
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("bad expires_at %q: %w", row[5], err)
	}
	return HistoryEntry{
		ID:           row[0],
		CustomerName: row[1],
		HardwareID:   row[2],
		Duration:     DurationPreset(row[3]),
		GeneratedAt:  generatedAt,
		ExpiresAt:    expiresAt,
		Token:        row[6],
	}, nil
}
