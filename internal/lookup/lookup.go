package lookup

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"memebox/internal/catalogue"
	"memebox/internal/textutil"
)

// MenuQuery is the inline query text that behaves like an empty query.
const MenuQuery = "menu"

// Snapshotter yields the catalogue view lookups run against.
type Snapshotter interface {
	Snapshot() catalogue.Catalogue
}

// AssetChecker reports whether an asset file is present.
type AssetChecker interface {
	Exists(ref catalogue.AssetRef) bool
}

// Options configures an Engine.
type Options struct {
	Registry    Snapshotter
	Assets      AssetChecker
	BaseURL     string
	AssetPrefix string
	PageSize    int
}

// Engine answers playback, navigation and search requests. It never mutates
// the catalogue.
type Engine struct {
	registry Snapshotter
	assets   AssetChecker
	baseURL  string
	prefix   string
	pageSize int
}

// New constructs an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, errors.New("lookup requires a registry")
	}
	if opts.Assets == nil {
		return nil, errors.New("lookup requires an asset checker")
	}
	prefix := "/" + strings.Trim(strings.TrimSpace(opts.AssetPrefix), "/") + "/"
	if prefix == "//" {
		prefix = "/memes/"
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Engine{
		registry: opts.Registry,
		assets:   opts.Assets,
		baseURL:  strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		prefix:   prefix,
		pageSize: pageSize,
	}, nil
}

// Asset is a playable meme resolved against the asset store.
type Asset struct {
	Category string
	Key      catalogue.Key
	Ref      catalogue.AssetRef
	URL      string
}

// Title is the display name shown for the asset.
func (a Asset) Title() string {
	return string(a.Key)
}

// URL returns the public address of ref.
func (e *Engine) URL(ref catalogue.AssetRef) string {
	return e.baseURL + e.prefix + url.PathEscape(string(ref))
}

// Play resolves key in any scope. A key that is registered but whose file is
// gone yields catalogue.ErrAssetMissing rather than ErrKeyNotFound.
func (e *Engine) Play(key string) (Asset, error) {
	k := catalogue.Key(textutil.NormalizeLabel(key))
	entry, ok := e.registry.Snapshot().Lookup(k)
	if !ok {
		return Asset{}, fmt.Errorf("%w: %q", catalogue.ErrKeyNotFound, k)
	}
	return e.resolve(entry)
}

// PlayInCategory resolves key within category.
func (e *Engine) PlayInCategory(category, key string) (Asset, error) {
	k := catalogue.Key(textutil.NormalizeLabel(key))
	category = textutil.NormalizeLabel(category)
	snap := e.registry.Snapshot()
	if category != catalogue.Root && !snap.HasCategory(category) {
		return Asset{}, fmt.Errorf("%w: %q", catalogue.ErrCategoryNotFound, category)
	}
	entry, ok := snap.LookupIn(category, k)
	if !ok {
		return Asset{}, fmt.Errorf("%w: %q", catalogue.ErrKeyNotFound, k)
	}
	return e.resolve(entry)
}

func (e *Engine) resolve(entry catalogue.Entry) (Asset, error) {
	if !e.assets.Exists(entry.Asset) {
		return Asset{}, fmt.Errorf("%w: %q is registered as %s", catalogue.ErrAssetMissing, entry.Key, entry.Asset)
	}
	return Asset{
		Category: entry.Category,
		Key:      entry.Key,
		Ref:      entry.Asset,
		URL:      e.URL(entry.Asset),
	}, nil
}

// List returns every entry in enumeration order.
func (e *Engine) List() []catalogue.Entry {
	var out []catalogue.Entry
	for entry := range e.registry.Snapshot().Entries() {
		out = append(out, entry)
	}
	return out
}
