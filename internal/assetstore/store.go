package assetstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"memebox/internal/catalogue"
	"memebox/internal/fileutil"
	"memebox/internal/logging"
)

// Ref is the asset reference type shared with the catalogue.
type Ref = catalogue.AssetRef

// ErrNotFound means the requested asset is not in the store.
var ErrNotFound = errors.New("asset not found")

// tempPrefix marks in-flight ingestion files. They are never valid assets.
const tempPrefix = ".ingest-"

// Store is a flat directory of audio files addressed by bare file name.
type Store struct {
	dir    string
	logger *slog.Logger
}

// Open returns a store rooted at dir, creating the directory if needed.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("asset directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset directory: %w", err)
	}
	return &Store{dir: dir, logger: logging.NewComponentLogger(logger, "assetstore")}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute location of ref for collaborators that need a
// filesystem path, such as ffmpeg. It does not check existence.
func (s *Store) Path(ref Ref) string {
	return filepath.Join(s.dir, filepath.Base(string(ref)))
}

// Exists reports whether ref names a regular file in the store.
func (s *Store) Exists(ref Ref) bool {
	if !valid(ref) {
		return false
	}
	info, err := os.Stat(s.Path(ref))
	return err == nil && info.Mode().IsRegular()
}

// Open returns a reader for ref or ErrNotFound.
func (s *Store) Open(ref Ref) (io.ReadCloser, error) {
	if !valid(ref) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, ref)
	}
	f, err := os.Open(s.Path(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("open asset %s: %w", ref, err)
	}
	return f, nil
}

// Stat returns file information for ref or ErrNotFound.
func (s *Store) Stat(ref Ref) (fs.FileInfo, error) {
	if !valid(ref) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, ref)
	}
	info, err := os.Stat(s.Path(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, err
	}
	return info, nil
}

// Write stores the contents of r under ref atomically.
func (s *Store) Write(ref Ref, r io.Reader) error {
	if !valid(ref) {
		return fmt.Errorf("invalid asset reference %q", ref)
	}
	if err := fileutil.WriteFileAtomic(s.Path(ref), r, 0o644); err != nil {
		return fmt.Errorf("write asset %s: %w", ref, err)
	}
	return nil
}

// Remove deletes ref. Removing an absent asset is not an error.
func (s *Store) Remove(ref Ref) error {
	if !valid(ref) {
		return nil
	}
	if err := os.Remove(s.Path(ref)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove asset %s: %w", ref, err)
	}
	return nil
}

// CreateTemp creates a uniquely named scratch file inside the store for an
// in-flight ingestion. suffix is appended to the generated name. The caller
// owns the file and must remove it.
func (s *Store) CreateTemp(suffix string) (*os.File, error) {
	name := tempPrefix + uuid.NewString() + suffix
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create ingestion temp file: %w", err)
	}
	return f, nil
}

// List returns the asset references present in the store, excluding
// ingestion scratch files.
func (s *Store) List() ([]Ref, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	refs := make([]Ref, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), tempPrefix) || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		refs = append(refs, Ref(entry.Name()))
	}
	return refs, nil
}

// Sweep removes ingestion scratch files older than maxAge, left behind when
// the process died mid-ingestion. It returns the number of files removed.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("sweep assets: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove stale ingestion file",
				logging.String("path", path),
				logging.Error(err),
			)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("removed stale ingestion files", logging.Int("count", removed))
	}
	return removed, nil
}

func valid(ref Ref) bool {
	name := string(ref)
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && !strings.HasPrefix(name, tempPrefix)
}
