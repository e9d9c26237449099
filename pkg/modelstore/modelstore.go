// Package modelstore encapsulates path knowledge for the OCR model storage
// directory and keeps it populated with the language models recognition
// needs. Models are fetched once, at build or startup time, so the first
// request never pays the download cost.
package modelstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// ErrUnknownLanguage is returned for language codes that do not look like
// Tesseract traineddata names (e.g. "eng", "chi_sim").
var ErrUnknownLanguage = errors.New("modelstore: unknown language code")

var langPattern = regexp.MustCompile(`^[a-z]{3}(_[a-z]+)*$`)

// Store is a value object that resolves paths within the model storage
// directory. No I/O is performed by the accessors; use EnsureStructure to
// create the layout.
type Store struct {
	root string
}

// DefaultRoot returns the default model storage directory, a fixed location
// under the system temp directory so it survives as a cache but never needs
// elevated permissions.
func DefaultRoot() string {
	return filepath.Join(os.TempDir(), ".specsmith")
}

// New creates a Store rooted at the given path. An empty root falls back to
// DefaultRoot. The path is converted to an absolute path.
func New(root string) Store {
	if root == "" {
		root = DefaultRoot()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return Store{root: abs}
}

// Root returns the absolute path to the model storage directory.
func (s Store) Root() string { return s.root }

// ModelsDir returns the directory holding traineddata files. Tesseract's
// TESSDATA_PREFIX should point here.
func (s Store) ModelsDir() string { return filepath.Join(s.root, "models") }

// UserNetworkDir returns the directory reserved for user-supplied custom
// recognition networks.
func (s Store) UserNetworkDir() string { return filepath.Join(s.root, "user_network") }

// DownloadDir returns the staging directory for in-flight downloads.
func (s Store) DownloadDir() string { return filepath.Join(s.root, "downloads") }

// LanguagePath returns the traineddata path for a language code.
func (s Store) LanguagePath(lang string) string {
	return filepath.Join(s.ModelsDir(), lang+".traineddata")
}

// HasLanguage reports whether the traineddata file for lang is present.
func (s Store) HasLanguage(lang string) bool {
	info, err := os.Stat(s.LanguagePath(lang))
	return err == nil && !info.IsDir() && info.Size() > 0
}

// EnsureStructure creates the directory layout if it does not exist.
func (s Store) EnsureStructure() error {
	for _, dir := range []string{s.root, s.ModelsDir(), s.UserNetworkDir(), s.DownloadDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("modelstore: create %s: %w", dir, err)
		}
	}
	return nil
}

// ValidateLanguage checks that lang is a plausible traineddata name.
func ValidateLanguage(lang string) error {
	if !langPattern.MatchString(lang) {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	return nil
}
