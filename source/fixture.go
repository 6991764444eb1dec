package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"postrelay/models"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/samber/lo"
)

// Fixture is a recorded list of posts, deduplicated by id and kept in
// ascending id order on disk
type Fixture struct {
	path string
	mu   sync.Mutex
}

func NewFixture(path string) *Fixture {
	return &Fixture{path: path}
}

func (f *Fixture) Path() string {
	return f.path
}

// Load reads every recorded post. A missing file is an empty fixture.
func (f *Fixture) Load() ([]models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.read()
	if err != nil {
		return nil, err
	}
	return lo.Map(records, func(r models.FixturePost, _ int) models.Post {
		return fromFixture(r)
	}), nil
}

// Append merges posts into the fixture, skipping ids already recorded
func (f *Fixture) Append(posts []models.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, err := f.read()
	if err != nil {
		// An unreadable fixture is rebuilt from scratch
		existing = nil
	}

	known := lo.SliceToMap(existing, func(r models.FixturePost) (string, struct{}) {
		return r.ID, struct{}{}
	})
	added := 0
	for _, p := range posts {
		record := p.ToFixture()
		if _, ok := known[record.ID]; ok {
			continue
		}
		known[record.ID] = struct{}{}
		existing = append(existing, record)
		added++
	}
	if added == 0 {
		return nil
	}

	sort.SliceStable(existing, func(i, j int) bool {
		return existing[i].NumericID() < existing[j].NumericID()
	})

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create fixture dir: %w", err)
		}
	}
	if err := renameio.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	return nil
}

func (f *Fixture) read() ([]models.FixturePost, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	var records []models.FixturePost
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return records, nil
}

func fromFixture(r models.FixturePost) models.Post {
	created, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		created = time.Now().UTC()
	}
	return models.Post{
		ID:        r.NumericID(),
		Text:      r.Text,
		CreatedAt: created,
	}
}
