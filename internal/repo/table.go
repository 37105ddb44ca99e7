// Package repo implements persistence for the marketplace.
//
// Domain records live in flat JSON files, one document per table, read and
// rewritten whole. Idempotency records for unsafe HTTP requests live in a
// small SQLite database (see db.go).
package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNoChange may be returned by an Update callback to skip the write.
var ErrNoChange = errors.New("repo: no change")

// normalizer is implemented by table documents that need their nil
// collections replaced before being written.
type normalizer interface {
	Normalize()
}

// Table is a JSON document stored in a single file.
//
// The file and its directory are created with the empty document on first
// use. A missing, empty or unparsable file reads as the empty document, so a
// corrupt table never takes the process down. The next write first moves an
// unparsable file to <path>.corrupt-<unix seconds> so its records can be
// recovered by hand. Writes go to <path>.tmp and are renamed over the
// original, so readers see either the old or the new file.
//
// A Table serializes its own operations; sequences spanning several tables
// are not atomic.
type Table[T any] struct {
	path  string
	empty func() T
	mu    sync.Mutex
	// corrupt is set when the last load could not parse the file.
	corrupt bool
	now     func() time.Time
}

// NewTable returns a table stored at path whose empty document is built by empty.
func NewTable[T any](path string, empty func() T) *Table[T] {
	return &Table[T]{path: path, empty: empty, now: time.Now}
}

// Path returns the backing file path.
func (t *Table[T]) Path() string { return t.path }

// Read loads the current document.
func (t *Table[T]) Read(ctx context.Context) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load()
}

// Write replaces the document.
func (t *Table[T]) Write(ctx context.Context, doc T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.load(); err != nil {
		return err
	}
	return t.store(doc)
}

// Update loads the document, passes it to fn and writes it back. If fn fails
// nothing is written and its error is returned, except ErrNoChange which
// skips the write and yields nil.
func (t *Table[T]) Update(ctx context.Context, fn func(doc *T) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	doc, err := t.load()
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}
	return t.store(doc)
}

func (t *Table[T]) load() (T, error) {
	if err := t.ensure(); err != nil {
		var zero T
		return zero, err
	}
	raw, err := os.ReadFile(t.path)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("read %s: %w", t.path, err)
	}
	t.corrupt = false
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return t.fresh(), nil
	}
	doc := t.empty()
	if err := json.Unmarshal(raw, &doc); err != nil {
		log.Warn().Err(err).Str("table", t.path).Msg("unparsable table, using empty document")
		t.corrupt = true
		return t.fresh(), nil
	}
	if n, ok := any(&doc).(normalizer); ok {
		n.Normalize()
	}
	return doc, nil
}

func (t *Table[T]) store(doc T) error {
	if err := t.ensureDir(); err != nil {
		return err
	}
	if n, ok := any(&doc).(normalizer); ok {
		n.Normalize()
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", t.path, err)
	}
	if t.corrupt {
		if err := t.setAside(); err != nil {
			return err
		}
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// setAside renames the unparsable file out of the way of the next write.
func (t *Table[T]) setAside() error {
	dst := fmt.Sprintf("%s.corrupt-%d", t.path, t.now().Unix())
	if err := os.Rename(t.path, dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("set aside %s: %w", t.path, err)
	}
	log.Warn().Str("table", t.path).Str("saved_as", dst).Msg("unparsable table moved aside")
	t.corrupt = false
	return nil
}

func (t *Table[T]) fresh() T {
	doc := t.empty()
	if n, ok := any(&doc).(normalizer); ok {
		n.Normalize()
	}
	return doc
}

func (t *Table[T]) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", t.path, err)
	}
	return nil
}

// ensure creates the file holding the empty document when it does not exist.
func (t *Table[T]) ensure() error {
	if _, err := os.Stat(t.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", t.path, err)
	}
	return t.store(t.fresh())
}
