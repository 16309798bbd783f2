package catalogue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"memebox/internal/fileutil"
	"memebox/internal/logging"
	"memebox/internal/textutil"
)

const lockRetryDelay = 25 * time.Millisecond

// Registry owns the durable catalogue file and serves lock-free reads from
// an in-memory snapshot. Mutations are serialized in-process by a mutex and
// across processes by an advisory file lock; each mutation re-reads the file
// under the lock so edits made by another process are never lost.
type Registry struct {
	path   string
	assets AssetChecker
	logger *slog.Logger

	mu   sync.Mutex
	lock *flock.Flock
	snap atomic.Pointer[Catalogue]
}

// Open loads the catalogue at path, creating and persisting an empty one when
// the file does not exist. The loaded catalogue is normalized once and
// written back if normalization changed it. A file that cannot be parsed
// yields ErrCatalogueCorrupt.
func Open(path string, assets AssetChecker, logger *slog.Logger) (*Registry, error) {
	if path == "" {
		return nil, errors.New("catalogue path is required")
	}
	if assets == nil {
		return nil, errors.New("catalogue requires an asset checker")
	}
	logger = logging.NewComponentLogger(logger, "catalogue")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalogue directory: %w", err)
	}

	r := &Registry{
		path:   path,
		assets: assets,
		logger: logger,
		lock:   flock.New(path + ".lock"),
	}

	ctx := context.Background()
	if err := r.withFileLock(ctx, func() error {
		loaded, exists, err := r.readDurable()
		if err != nil {
			return err
		}
		normalized, issues := normalize(loaded)
		for _, issue := range issues {
			logging.WarnWithContext(logger, "catalogue entry normalized", "catalogue_normalized",
				logging.String(logging.FieldCategory, issue.Category),
				logging.String(logging.FieldMemeKey, issue.Key),
				logging.String("problem", issue.Problem),
				logging.Bool("dropped", issue.Dropped),
				logging.String(logging.FieldErrorHint, "run 'memebox catalogue check' to review"),
				logging.String(logging.FieldImpact, "entry served under its normalized form"),
			)
		}
		if !exists || !equal(normalized, loaded) {
			if err := r.persist(normalized); err != nil {
				return err
			}
		}
		r.snap.Store(&normalized)
		return nil
	}); err != nil {
		return nil, err
	}

	snap := r.Snapshot()
	logger.Info("catalogue loaded",
		logging.String("path", path),
		logging.Int("entries", snap.Len()),
		logging.Int("categories", len(snap.Categories)),
	)
	return r, nil
}

// Path returns the durable catalogue location.
func (r *Registry) Path() string {
	return r.path
}

// Snapshot returns the current immutable catalogue view.
func (r *Registry) Snapshot() Catalogue {
	if c := r.snap.Load(); c != nil {
		return *c
	}
	return Catalogue{}
}

// LookupExact finds key in any scope, returning the first match in
// enumeration order.
func (r *Registry) LookupExact(key Key) (Entry, error) {
	if e, ok := r.Snapshot().Lookup(key); ok {
		return e, nil
	}
	return Entry{}, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
}

// LookupInCategory finds key within one category. Root addresses the
// uncategorised scope.
func (r *Registry) LookupInCategory(category string, key Key) (Entry, error) {
	snap := r.Snapshot()
	if category != Root && !snap.HasCategory(category) {
		return Entry{}, fmt.Errorf("%w: %q", ErrCategoryNotFound, category)
	}
	if e, ok := snap.LookupIn(category, key); ok {
		return e, nil
	}
	return Entry{}, fmt.Errorf("%w: %q in %q", ErrKeyNotFound, key, category)
}

// Categories returns category names in insertion order.
func (r *Registry) Categories() []string {
	return r.Snapshot().CategoryNames()
}

// KeysIn returns the ordered keys of a category.
func (r *Registry) KeysIn(category string) ([]Key, error) {
	items, ok := r.Snapshot().Items(category)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCategoryNotFound, category)
	}
	keys := make([]Key, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.Key)
	}
	return keys, nil
}

// Put registers a new entry. The asset must already be in the store and the
// key must be unused in its scope.
func (r *Registry) Put(ctx context.Context, e Entry) error {
	e, err := r.validateEntry(e)
	if err != nil {
		return err
	}
	_, err = r.mutate(ctx, func(c Catalogue) (Catalogue, error) {
		if _, ok := c.LookupIn(e.Category, e.Key); ok {
			return c, fmt.Errorf("%w: %q", ErrKeyExists, e.Key)
		}
		if c.nameTaken(e.Category, e.Key) {
			return c, fmt.Errorf("%w: %q clashes with an existing category or root key", ErrKeyExists, e.Key)
		}
		return c.withEntry(e), nil
	})
	if err != nil {
		return err
	}
	r.logger.Info("catalogue entry added",
		logging.String(logging.FieldEventType, "catalogue_put"),
		logging.String(logging.FieldCategory, e.Category),
		logging.String(logging.FieldMemeKey, string(e.Key)),
		logging.String("asset", string(e.Asset)),
	)
	return nil
}

// Replace points an existing entry at a new asset and returns the asset it
// previously referenced.
func (r *Registry) Replace(ctx context.Context, e Entry) (AssetRef, error) {
	e, err := r.validateEntry(e)
	if err != nil {
		return "", err
	}
	var previous AssetRef
	_, err = r.mutate(ctx, func(c Catalogue) (Catalogue, error) {
		next, ok := c.withUpdate(e.Category, e.Key, func(item Item) Item {
			previous = item.Asset
			item.Asset = e.Asset
			return item
		})
		if !ok {
			return c, fmt.Errorf("%w: %q", ErrKeyNotFound, e.Key)
		}
		return next, nil
	})
	if err != nil {
		return "", err
	}
	r.logger.Info("catalogue entry replaced",
		logging.String(logging.FieldEventType, "catalogue_replace"),
		logging.String(logging.FieldCategory, e.Category),
		logging.String(logging.FieldMemeKey, string(e.Key)),
		logging.String("asset", string(e.Asset)),
		logging.String("previous_asset", string(previous)),
	)
	return previous, nil
}

// Rename changes the key of an entry in place, keeping its position.
func (r *Registry) Rename(ctx context.Context, category string, from, to Key) error {
	to, err := ParseKey(string(to))
	if err != nil {
		return err
	}
	if category, err = ParseCategory(category); err != nil {
		return err
	}
	from = Key(textutil.NormalizeLabel(string(from)))
	if !PayloadFits(category, to) {
		return fmt.Errorf("%w: %q is too long for menu buttons", ErrInvalidKey, to)
	}
	_, err = r.mutate(ctx, func(c Catalogue) (Catalogue, error) {
		if _, ok := c.LookupIn(category, to); ok {
			return c, fmt.Errorf("%w: %q", ErrKeyExists, to)
		}
		if c.nameTaken(category, to) {
			return c, fmt.Errorf("%w: %q clashes with an existing category", ErrKeyExists, to)
		}
		next, ok := c.withUpdate(category, from, func(item Item) Item {
			item.Key = to
			return item
		})
		if !ok {
			return c, fmt.Errorf("%w: %q", ErrKeyNotFound, from)
		}
		return next, nil
	})
	if err != nil {
		return err
	}
	r.logger.Info("catalogue entry renamed",
		logging.String(logging.FieldEventType, "catalogue_rename"),
		logging.String(logging.FieldCategory, category),
		logging.String("from", string(from)),
		logging.String("to", string(to)),
	)
	return nil
}

// Reload re-reads the durable file into the snapshot. A missing or corrupt
// file leaves the current snapshot in place and returns the error.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.withFileLock(ctx, func() error {
		loaded, exists, err := r.readDurable()
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("catalogue %s disappeared: %w", r.path, fs.ErrNotExist)
		}
		normalized, _ := normalize(loaded)
		if equal(normalized, r.Snapshot()) {
			return nil
		}
		r.snap.Store(&normalized)
		r.logger.Info("catalogue reloaded",
			logging.String(logging.FieldEventType, "catalogue_reloaded"),
			logging.Int("entries", normalized.Len()),
		)
		return nil
	})
}

// validateEntry returns e with its fields in normalized form.
func (r *Registry) validateEntry(e Entry) (Entry, error) {
	key, err := ParseKey(string(e.Key))
	if err != nil {
		return Entry{}, err
	}
	category, err := ParseCategory(e.Category)
	if err != nil {
		return Entry{}, err
	}
	if !PayloadFits(category, key) {
		return Entry{}, fmt.Errorf("%w: %q is too long for menu buttons", ErrInvalidKey, key)
	}
	ref, err := ParseAssetRef(string(e.Asset))
	if err != nil {
		return Entry{}, err
	}
	if !r.assets.Exists(ref) {
		return Entry{}, fmt.Errorf("%w: %s", ErrAssetMissing, ref)
	}
	return Entry{Category: category, Key: key, Asset: ref}, nil
}

// mutate applies fn to the durable catalogue under both locks and persists
// the result. The snapshot always reflects the durable state afterwards.
func (r *Registry) mutate(ctx context.Context, fn func(Catalogue) (Catalogue, error)) (Catalogue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result Catalogue
	err := r.withFileLock(ctx, func() error {
		current, exists, err := r.readDurable()
		if err != nil {
			return err
		}
		if !exists {
			current = r.Snapshot()
		}
		current, _ = normalize(current)
		r.snap.Store(&current)

		next, err := fn(current)
		if err != nil {
			return err
		}
		if err := r.persist(next); err != nil {
			return err
		}
		r.snap.Store(&next)
		result = next
		return nil
	})
	return result, err
}

func (r *Registry) withFileLock(ctx context.Context, fn func() error) error {
	locked, err := r.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire catalogue lock: %w", err)
	}
	if !locked {
		return errors.New("acquire catalogue lock: not acquired")
	}
	defer func() {
		if err := r.lock.Unlock(); err != nil {
			r.logger.Warn("failed to release catalogue lock", logging.Error(err))
		}
	}()
	return fn()
}

func (r *Registry) readDurable() (Catalogue, bool, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Catalogue{}, false, nil
		}
		return Catalogue{}, false, fmt.Errorf("read catalogue: %w", err)
	}
	c, err := Decode(data)
	if err != nil {
		return Catalogue{}, true, fmt.Errorf("%s: %w", r.path, err)
	}
	return c, true, nil
}

func (r *Registry) persist(c Catalogue) error {
	data, err := Encode(c)
	if err != nil {
		return fmt.Errorf("encode catalogue: %w", err)
	}
	if err := fileutil.WriteFileAtomic(r.path, bytes.NewReader(data), 0o644); err != nil {
		return fmt.Errorf("persist catalogue: %w", err)
	}
	return nil
}
