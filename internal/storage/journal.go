package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

type op string

const (
	opUpsert op = "upsert"
	opDelete op = "delete"
)

type entry struct {
	Op           op            `json:"op"`
	ID           string        `json:"id,omitempty"`
	Conversation *Conversation `json:"conversation,omitempty"`
}

// journal is the on-disk append-only log behind DB. Every method takes the
// cross-process file lock.
type journal struct {
	path string
	lock *flock.Flock
}

func newJournal(dir string) *journal {
	return &journal{
		path: filepath.Join(dir, indexFileName),
		lock: flock.New(filepath.Join(dir, "index.lock")),
	}
}

func (j *journal) locked(fn func() error) error {
	if err := j.lock.Lock(); err != nil {
		return fmt.Errorf("lock index: %w", err)
	}
	defer func() { _ = j.lock.Unlock() }()
	return fn()
}

// replay feeds every entry in the log to apply and returns how many there
// were.
func (j *journal) replay(apply func(entry) error) (int, error) {
	var n int
	err := j.locked(func() error {
		f, err := os.Open(j.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer f.Close() //nolint:errcheck

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			var e entry
			if err := json.Unmarshal([]byte(line), &e); err != nil {
				return fmt.Errorf("parse index line %d: %w", n+1, err)
			}
			if err := apply(e); err != nil {
				return err
			}
			n++
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("scan index: %w", err)
		}
		return nil
	})
	return n, err
}

func (j *journal) append(e entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal index entry: %w", err)
	}
	line = append(line, '\n')

	return j.locked(func() error {
		f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		if _, err := f.Write(line); err != nil {
			_ = f.Close()
			return fmt.Errorf("write index: %w", err)
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return fmt.Errorf("sync index: %w", err)
		}
		return f.Close()
	})
}

// rewrite atomically replaces the log with one upsert per conversation.
func (j *journal) rewrite(convos []Conversation) error {
	return j.locked(func() error {
		tmp := j.path + ".tmp"
		f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open compacted index: %w", err)
		}
		enc := json.NewEncoder(f)
		for i := range convos {
			if err := enc.Encode(entry{Op: opUpsert, Conversation: &convos[i]}); err != nil {
				_ = f.Close()
				return fmt.Errorf("write compacted index: %w", err)
			}
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return fmt.Errorf("sync compacted index: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close compacted index: %w", err)
		}
		if err := os.Rename(tmp, j.path); err != nil {
			return fmt.Errorf("replace index: %w", err)
		}
		if d, err := os.Open(filepath.Dir(j.path)); err == nil {
			_ = d.Sync()
			_ = d.Close()
		}
		return nil
	})
}
