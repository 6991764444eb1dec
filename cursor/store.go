// Package cursor persists the last delivered post id per account.
package cursor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/renameio/v2"
	log "github.com/sirupsen/logrus"
)

// ErrRegression is returned when a save would move a cursor backwards
var ErrRegression = errors.New("cursor would move backwards")

// Store is a JSON file mapping account ids to the last delivered post id.
// Ids are kept as strings on disk so the file stays readable by older tooling.
type Store struct {
	path  string
	mu    sync.Mutex
	state map[string]string
}

// Open loads the store at path. A missing or unreadable file yields an empty
// store, the relay then bootstraps as if it never ran.
func Open(path string) *Store {
	s := &Store{path: path, state: map[string]string{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.WithFields(log.Fields{"path": path, "error": err}).Warn("Cursor file unreadable, starting without cursor")
		}
		return s
	}

	if err := json.Unmarshal(data, &s.state); err != nil {
		log.WithFields(log.Fields{"path": path, "error": err}).Warn("Cursor file corrupt, starting without cursor")
		s.state = map[string]string{}
	}
	return s
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Load returns the cursor for account, false when none is stored
func (s *Store) Load(account string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.state[account]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.WithFields(log.Fields{"account": account, "value": raw}).Warn("Ignoring malformed cursor")
		return 0, false
	}
	return id, true
}

// Save records id as the cursor for account and atomically replaces the
// file. The file is durable when Save returns.
func (s *Store) Save(account string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if raw, ok := s.state[account]; ok {
		if current, err := strconv.ParseInt(raw, 10, 64); err == nil && id < current {
			return fmt.Errorf("%w: %d < %d", ErrRegression, id, current)
		}
	}

	next := make(map[string]string, len(s.state)+1)
	for k, v := range s.state {
		next[k] = v
	}
	next[account] = strconv.FormatInt(id, 10)

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cursor state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cursor directory: %w", err)
		}
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write cursor file: %w", err)
	}

	s.state = next
	return nil
}
