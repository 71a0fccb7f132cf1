// Package local persists translation output, terminology and resume cursors
// on the local filesystem.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/workflow-translator/internal/translate"
)

// Default subdirectory names under the base directory.
const (
	DefaultTranslationDir = "translation"
	DefaultCursorDir      = "config"
	DefaultTermDir        = "term"
)

// StoreConfig locates the output tree.
type StoreConfig struct {
	BaseDir        string `mapstructure:"base_dir"`
	TranslationDir string `mapstructure:"translation_dir"`
	CursorDir      string `mapstructure:"cursor_dir"`
	TermDir        string `mapstructure:"term_dir"`
}

// Store writes run output beneath a base directory.
type Store struct {
	translationDir string
	cursorDir      string
	termDir        string

	// appendMu serializes appends so concurrent callers never interleave lines.
	appendMu sync.Mutex
}

var _ translate.Store = (*Store)(nil)

// NewStore creates the output directories and verifies they are writable.
func NewStore(cfg StoreConfig) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		cfg.BaseDir = "."
	}
	if cfg.TranslationDir == "" {
		cfg.TranslationDir = DefaultTranslationDir
	}
	if cfg.CursorDir == "" {
		cfg.CursorDir = DefaultCursorDir
	}
	if cfg.TermDir == "" {
		cfg.TermDir = DefaultTermDir
	}
	s := &Store{}
	for _, d := range []struct {
		name string
		dst  *string
	}{
		{cfg.TranslationDir, &s.translationDir},
		{cfg.CursorDir, &s.cursorDir},
		{cfg.TermDir, &s.termDir},
	} {
		dir, err := within(cfg.BaseDir, d.name)
		if err != nil {
			return nil, err
		}
		if err := ensureDir(dir); err != nil {
			return nil, err
		}
		*d.dst = dir
	}
	return s, nil
}

// TranslationPath is translation/{base}_{src}2{tgt}.txt.
func (s *Store) TranslationPath(base string, langs translate.Langs) (string, error) {
	return fileIn(s.translationDir, fmt.Sprintf("%s_%s2%s.txt", base, langs.Source, langs.Target))
}

// TermPath is term/{base}_term.txt.
func (s *Store) TermPath(base string) (string, error) {
	return fileIn(s.termDir, base+"_term.txt")
}

// CursorPath is config/{base}.json.
func (s *Store) CursorPath(base string) (string, error) {
	return fileIn(s.cursorDir, base+".json")
}

// AppendTranslation appends text and a newline to the translation file.
func (s *Store) AppendTranslation(_ context.Context, base string, langs translate.Langs, text string) error {
	path, err := s.TranslationPath(base, langs)
	if err != nil {
		return err
	}
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	// #nosec G304 -- path is confined to the translation directory.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("open translation file: %w", err)
	}
	if _, err := f.WriteString(text + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("append translation: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close translation file: %w", err)
	}
	return nil
}

// RewriteTerminology replaces the terminology file. Empty terminology is not written.
func (s *Store) RewriteTerminology(_ context.Context, base string, term string) error {
	if term == "" {
		return nil
	}
	path, err := s.TermPath(base)
	if err != nil {
		return err
	}
	if err := writeAtomic(path, []byte(term)); err != nil {
		return fmt.Errorf("rewrite terminology: %w", err)
	}
	return nil
}

// RewriteCursor replaces the cursor document.
func (s *Store) RewriteCursor(_ context.Context, base string, cursor translate.Cursor) error {
	path, err := s.CursorPath(base)
	if err != nil {
		return err
	}
	data, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("rewrite cursor: %w", err)
	}
	return nil
}

// LoadCursor reads the cursor for base. ok is false when none has been written.
func (s *Store) LoadCursor(_ context.Context, base string) (translate.Cursor, bool, error) {
	path, err := s.CursorPath(base)
	if err != nil {
		return translate.Cursor{}, false, err
	}
	// #nosec G304 -- path is confined to the cursor directory.
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return translate.Cursor{}, false, nil
	}
	if err != nil {
		return translate.Cursor{}, false, fmt.Errorf("read cursor: %w", err)
	}
	var cursor translate.Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return translate.Cursor{}, false, fmt.Errorf("decode cursor %s: %w", path, err)
	}
	return cursor, true, nil
}

// fileIn validates name as a single path element inside dir.
func fileIn(dir, name string) (string, error) {
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", errPathTraversal, name)
	}
	return within(dir, name)
}
