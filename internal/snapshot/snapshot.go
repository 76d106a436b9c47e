// Package snapshot persists pipeline runs as JSON files so they can be
// listed, re-read and served without recomputing.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/trialfunnel-cli/internal/pipeline"
	"github.com/KaramelBytes/trialfunnel-cli/internal/utils"
)

// ErrNotFound is returned when no snapshot matches an ID.
var ErrNotFound = errors.New("snapshot not found")

// Source describes one input file of a run.
type Source struct {
	Role    string    `json:"role"`
	Path    string    `json:"path"`
	Rows    int       `json:"rows"`
	ModTime time.Time `json:"mod_time"`
}

// Snapshot is one persisted run.
type Snapshot struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	CreatedAt    time.Time        `json:"created_at"`
	Sources      []Source         `json:"sources"`
	ConfigDigest string           `json:"config_digest"`
	Output       *pipeline.Output `json:"output"`
}

// Summary is the listing view of a snapshot.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Clients   int       `json:"clients"`
	Converted int       `json:"converted"`
	Retained  int       `json:"retained"`
	Excluded  int       `json:"excluded"`
}

// New wraps out in a snapshot with a fresh ID.
func New(name string, sources []Source, digest string, out *pipeline.Output) *Snapshot {
	return &Snapshot{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		CreatedAt:    time.Now().UTC(),
		Sources:      sources,
		ConfigDigest: digest,
		Output:       out,
	}
}

// Summary condenses s for listings.
func (s *Snapshot) Summary() Summary {
	sum := Summary{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt}
	if s.Output != nil {
		sum.Clients = len(s.Output.NewClientRecords)
		sum.Converted = s.Output.Stats.Converted
		sum.Retained = s.Output.Stats.Retained
		sum.Excluded = s.Output.Stats.Excluded
	}
	return sum
}

// Store keeps one <id>.json per snapshot in Dir.
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store { return &Store{Dir: dir} }

// Save writes s atomically.
func (st *Store) Save(s *Snapshot) error {
	if s == nil || s.ID == "" {
		return errors.New("snapshot has no id")
	}
	if err := utils.EnsureDir(st.Dir); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	data, err := utils.PrettyJSON(s)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(st.Dir, s.ID+".json"), data)
}

// Load reads a snapshot by full ID or unique ID prefix.
func (st *Store) Load(id string) (*Snapshot, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	path := filepath.Join(st.Dir, id+".json")
	if _, err := os.Stat(path); err != nil {
		ids, lerr := st.ids()
		if lerr != nil {
			return nil, lerr
		}
		var hits []string
		for _, x := range ids {
			if strings.HasPrefix(x, id) {
				hits = append(hits, x)
			}
		}
		switch len(hits) {
		case 0:
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		case 1:
			path = filepath.Join(st.Dir, hits[0]+".json")
		default:
			return nil, fmt.Errorf("snapshot id %q is ambiguous (%d matches)", id, len(hits))
		}
	}
	return readFile(path)
}

// List returns summaries, newest first.
func (st *Store) List() ([]Summary, error) {
	ids, err := st.ids()
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		s, err := readFile(filepath.Join(st.Dir, id+".json"))
		if err != nil {
			return nil, err
		}
		out = append(out, s.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Latest returns the most recently created snapshot.
func (st *Store) Latest() (*Snapshot, error) {
	list, err := st.List()
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return st.Load(list[0].ID)
}

func (st *Store) ids() ([]string, error) {
	entries, err := os.ReadDir(st.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshots dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func readFile(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", filepath.Base(path), err)
	}
	return &s, nil
}
