package app

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gosimple/slug"
	"go.uber.org/multierr"

	"github.com/hyperifyio/pagemigrate/internal/pipeline"
)

// artifactWriter persists per-section stage snapshots under
// <base>/<run-id>/<nn>-<slug>/<stage>.html|json. Snapshots arrive from
// concurrent section pipelines; write failures are collected, not fatal.
type artifactWriter struct {
	dir string

	mu   sync.Mutex
	errs error
}

func newArtifactWriter(base, runID string) (*artifactWriter, error) {
	dir := filepath.Join(base, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir artifacts: %w", err)
	}
	return &artifactWriter{dir: dir}, nil
}

// sectionDirName is stable for a given section index and id.
func sectionDirName(index int, id string) string {
	s := slug.Make(id)
	if s == "" {
		s = "section"
	}
	return fmt.Sprintf("%02d-%s", index, s)
}

func (w *artifactWriter) snapshot(s pipeline.Snapshot) {
	rel := filepath.Join(sectionDirName(s.Section, s.SectionID), string(s.Stage))
	w.write(rel+".html", []byte(s.HTML))
	if s.Data != nil {
		w.writeJSON(rel+".json", s.Data)
	}
}

func (w *artifactWriter) result(r pipeline.Result) {
	w.writeJSON(filepath.Join(sectionDirName(r.Index, r.ID), "result.json"), r)
}

func (w *artifactWriter) writeJSON(rel string, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		w.fail(fmt.Errorf("encode %s: %w", rel, err))
		return
	}
	w.write(rel, b)
}

func (w *artifactWriter) write(rel string, b []byte) {
	p := filepath.Join(w.dir, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		w.fail(err)
		return
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		w.fail(err)
	}
}

func (w *artifactWriter) fail(err error) {
	w.mu.Lock()
	w.errs = multierr.Append(w.errs, err)
	w.mu.Unlock()
}

// finish writes SHA256SUMS over every artifact and returns the collected
// write errors.
func (w *artifactWriter) finish() error {
	if err := writeSHA256SUMS(w.dir); err != nil {
		w.fail(fmt.Errorf("checksums: %w", err))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.errs
}

// writeSHA256SUMS lists every file below dir with its digest, using
// slash-separated relative paths in lexical order.
func writeSHA256SUMS(dir string) error {
	var b strings.Builder
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || p == filepath.Join(dir, "SHA256SUMS") {
			return nil
		}
		sum, err := sha256File(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "%s  %s\n", sum, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "SHA256SUMS"), []byte(b.String()), 0o644)
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
