// Package storage keeps the conversation index: one metadata record per
// chat, persisted as an append-only JSONL log that is compacted as it grows.
// Message payloads live in the cache subpackage.
package storage

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNoMatches is returned when no conversations match the query.
	ErrNoMatches = errors.New("no conversations found")
	// ErrManyMatches is returned when multiple conversations match the query.
	ErrManyMatches = errors.New("multiple conversations matched the input")
	// ErrInvalidID is returned for IDs outside [A-Za-z0-9_-].
	ErrInvalidID = errors.New("invalid conversation id")
)

const (
	indexFileName = "index.jsonl"
	// MemoryStore opens a throwaway store in a temp directory.
	MemoryStore = ":memory:"

	compactMinOps      = 256
	compactScaleFactor = 4
)

// Conversation is the metadata of one chat.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Agent     string    `json:"agent,omitempty"`
	API       string    `json:"api,omitempty"`
	Model     string    `json:"model,omitempty"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DB is the conversation index.
type DB struct {
	mu      sync.RWMutex
	journal *journal
	convos  map[string]Conversation
	ops     int
	tempDir string
	now     func() time.Time
}

// Open loads the index stored in dir, creating dir if needed. MemoryStore
// opens a temporary index that Close removes.
func Open(dir string) (*DB, error) {
	db := &DB{
		convos: map[string]Conversation{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	if dir == MemoryStore {
		tmp, err := os.MkdirTemp("", "superagent-conversations-*")
		if err != nil {
			return nil, fmt.Errorf("create temp store: %w", err)
		}
		dir, db.tempDir = tmp, tmp
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db.journal = newJournal(dir)
	n, err := db.journal.replay(db.apply)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Join(dir, indexFileName), err)
	}
	db.ops = n
	return db, nil
}

// Close removes the directory of a MemoryStore index.
func (db *DB) Close() error {
	if db.tempDir == "" {
		return nil
	}
	if err := os.RemoveAll(db.tempDir); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Save upserts c. CreatedAt is kept from an existing record; UpdatedAt is
// always set to now.
func (db *DB) Save(c Conversation) error {
	if !ValidID(c.ID) {
		return fmt.Errorf("save: %w: %q", ErrInvalidID, c.ID)
	}
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		return fmt.Errorf("save %s: empty title", c.ID)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	c.UpdatedAt = db.now()
	if prev, ok := db.convos[c.ID]; ok {
		c.CreatedAt = prev.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}

	if err := db.journal.append(entry{Op: opUpsert, Conversation: &c}); err != nil {
		return fmt.Errorf("save %s: %w", c.ID, err)
	}
	db.convos[c.ID] = c
	db.ops++
	return db.maybeCompact()
}

// Delete removes the conversation with the given ID.
func (db *DB) Delete(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.convos[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNoMatches, id)
	}
	if err := db.journal.append(entry{Op: opDelete, ID: id}); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	delete(db.convos, id)
	db.ops++
	return db.maybeCompact()
}

// Get returns the conversation with exactly this ID.
func (db *DB) Get(id string) (Conversation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.convos[id]
	if !ok {
		return Conversation{}, fmt.Errorf("%w: %s", ErrNoMatches, id)
	}
	return c, nil
}

// Find resolves in as an ID, an ID prefix of at least MinPrefixLen
// characters, or an exact title.
func (db *DB) Find(in string) (Conversation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if c, ok := db.convos[in]; ok {
		return c, nil
	}
	var found []Conversation
	for _, c := range db.convos {
		if c.Title == in || (len(in) >= MinPrefixLen && strings.HasPrefix(c.ID, in)) {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return Conversation{}, fmt.Errorf("%w: %s", ErrNoMatches, in)
	case 1:
		return found[0], nil
	default:
		return Conversation{}, fmt.Errorf("%w: %s", ErrManyMatches, in)
	}
}

// Latest returns the most recently updated conversation.
func (db *DB) Latest() (Conversation, error) {
	list := db.List()
	if len(list) == 0 {
		return Conversation{}, ErrNoMatches
	}
	return list[0], nil
}

// List returns all conversations, most recently updated first.
func (db *DB) List() []Conversation {
	return db.filter(func(Conversation) bool { return true })
}

// ListOlderThan returns conversations not updated within d.
func (db *DB) ListOlderThan(d time.Duration) []Conversation {
	cutoff := db.now().Add(-d)
	return db.filter(func(c Conversation) bool { return c.UpdatedAt.Before(cutoff) })
}

// Completions returns "value\tdescription" shell completion candidates
// for IDs and titles starting with in.
func (db *DB) Completions(in string) []string {
	var out []string
	for _, c := range db.List() {
		if strings.HasPrefix(c.ID, in) {
			id := c.ID
			if len(in) < ShortIDLen {
				id = ShortID(id)
			}
			out = append(out, id+"\t"+c.Title)
		}
		if c.Title != "" && strings.HasPrefix(c.Title, in) {
			out = append(out, c.Title+"\t"+ShortID(c.ID))
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (db *DB) filter(keep func(Conversation) bool) []Conversation {
	db.mu.RLock()
	out := make([]Conversation, 0, len(db.convos))
	for _, c := range db.convos {
		if keep(c) {
			out = append(out, c)
		}
	}
	db.mu.RUnlock()

	slices.SortFunc(out, func(a, b Conversation) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (db *DB) apply(e entry) error {
	switch e.Op {
	case opUpsert:
		if e.Conversation == nil || e.Conversation.ID == "" {
			return errors.New("upsert without conversation id")
		}
		db.convos[e.Conversation.ID] = *e.Conversation
	case opDelete:
		if e.ID == "" {
			return errors.New("delete without id")
		}
		delete(db.convos, e.ID)
	default:
		return fmt.Errorf("unknown index op %q", e.Op)
	}
	return nil
}

// maybeCompact rewrites the log once it holds several times more entries
// than live conversations. Callers hold db.mu.
func (db *DB) maybeCompact() error {
	if db.ops < compactMinOps || db.ops < len(db.convos)*compactScaleFactor {
		return nil
	}
	convos := make([]Conversation, 0, len(db.convos))
	for _, c := range db.convos {
		convos = append(convos, c)
	}
	slices.SortFunc(convos, func(a, b Conversation) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if err := db.journal.rewrite(convos); err != nil {
		return fmt.Errorf("compact: %w", err)
	}
	db.ops = len(convos)
	return nil
}
