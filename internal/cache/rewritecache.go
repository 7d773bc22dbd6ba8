package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
)

// Entry is one cached optimizer rewrite.
type Entry struct {
	Model          string    `json:"model"`
	Classification string    `json:"classification"`
	HTML           string    `json:"html"`
	SavedAt        time.Time `json:"saved_at"`
}

// RewriteCache stores optimizer rewrites on disk as <key>.json, keyed by a
// digest of the model and the full prompt. Reads touch the file mtime so
// age-based purging keeps recently used entries.
type RewriteCache struct {
	Dir string
	// StrictPerms enforces 0700 directories and 0600 files.
	StrictPerms bool
}

// KeyFrom builds a cache key from model and prompt.
func KeyFrom(model string, prompt string) string {
	h := sha256.Sum256([]byte(model + "\n\n" + prompt))
	return hex.EncodeToString(h[:])
}

func (c *RewriteCache) ensureDir() error {
	if c == nil || c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	perm := os.FileMode(0o755)
	if c.StrictPerms {
		perm = 0o700
	}
	if err := os.MkdirAll(c.Dir, perm); err != nil {
		return err
	}
	if c.StrictPerms {
		if info, err := os.Stat(c.Dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(c.Dir, 0o700)
		}
	}
	return nil
}

func (c *RewriteCache) pathFor(key string) string {
	return filepath.Join(c.Dir, key+".json")
}

// Get returns the entry for key. A missing or unreadable entry is a miss,
// not an error.
func (c *RewriteCache) Get(_ context.Context, key string) (Entry, bool, error) {
	if err := c.ensureDir(); err != nil {
		return Entry{}, false, err
	}
	p := c.pathFor(key)
	b, err := os.ReadFile(p)
	if err != nil {
		return Entry{}, false, nil
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, false, nil
	}
	now := time.Now()
	_ = os.Chtimes(p, now, now)
	return e, true, nil
}

// Put writes e under key via a temp file and rename.
func (c *RewriteCache) Put(_ context.Context, key string, e Entry) error {
	if err := c.ensureDir(); err != nil {
		return err
	}
	if e.SavedAt.IsZero() {
		e.SavedAt = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	// Each writer gets its own temp file; concurrent writers of one key race
	// only on the rename.
	f, err := os.CreateTemp(c.Dir, key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}
	tmp := f.Name()
	_, werr := f.Write(data)
	cerr := f.Close()
	if err := multierr.Combine(werr, cerr); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write entry: %w", err)
	}
	mode := os.FileMode(0o644)
	if c.StrictPerms {
		mode = 0o600
	}
	if err := os.Chmod(tmp, mode); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("chmod entry: %w", err)
	}
	if err := os.Rename(tmp, c.pathFor(key)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename entry: %w", err)
	}
	return nil
}
