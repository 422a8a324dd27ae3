package commands

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ggmhub/hub/internal/logger"
)

// DefaultJournalLimit is the number of ids kept when the journal is
// compacted on open.
const DefaultJournalLimit = 5000

type journalEntry struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}

// Journal is the set of command ids this node has claimed. With a path it
// is also appended to a JSONL file and reloaded on open, so ids survive a
// restart; without one it lives only in memory.
type Journal struct {
	path   string
	limit  int
	logger *logger.Logger

	mu   sync.Mutex
	seen map[string]struct{}
	now  func() time.Time
}

// NewMemoryJournal returns a process-lifetime journal.
func NewMemoryJournal() *Journal {
	return &Journal{seen: make(map[string]struct{}), logger: logger.Nop(), now: time.Now}
}

// OpenJournal loads the journal at path, keeping only the newest limit ids
// (DefaultJournalLimit when limit <= 0). An empty path gives a memory journal.
func OpenJournal(path string, limit int, log *logger.Logger) (*Journal, error) {
	j := NewMemoryJournal()
	if path == "" {
		return j, nil
	}
	if limit <= 0 {
		limit = DefaultJournalLimit
	}
	if log != nil {
		j.logger = log.Component("journal")
	}
	j.path, j.limit = path, limit

	entries, err := j.load()
	if err != nil {
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
		if err := j.rewrite(entries); err != nil {
			return nil, err
		}
		j.logger.Info("journal compacted", logger.Field{Key: "kept", Value: len(entries)})
	}
	for _, e := range entries {
		j.seen[e.ID] = struct{}{}
	}
	return j, nil
}

func (j *Journal) load() ([]journalEntry, error) {
	file, err := os.Open(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var entries []journalEntry
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e journalEntry
		if err := json.Unmarshal(line, &e); err != nil || e.ID == "" {
			j.logger.Warn("skipping malformed journal line",
				logger.Field{Key: "file", Value: j.path},
				logger.Field{Key: "line", Value: lineNum})
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}

func (j *Journal) rewrite(entries []journalEntry) error {
	tmp := j.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("compact journal: %w", err)
	}
	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			file.Close()
			return fmt.Errorf("compact journal: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("compact journal: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("compact journal: %w", err)
	}
	return os.Rename(tmp, j.path)
}

// Seen reports whether id has been claimed.
func (j *Journal) Seen(id string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.seen[id]
	return ok
}

// Claim records id. It returns false when id was already claimed. The id
// stays claimed in memory even if persisting it fails.
func (j *Journal) Claim(id string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.seen[id]; ok {
		return false, nil
	}
	j.seen[id] = struct{}{}

	if j.path == "" {
		return true, nil
	}
	return true, j.append(journalEntry{ID: id, At: j.now().UTC()})
}

func (j *Journal) append(e journalEntry) error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}
	file, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open journal for append: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// Len returns the number of claimed ids.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.seen)
}

// Path is the backing file, or "" for a memory journal.
func (j *Journal) Path() string { return j.path }
