package catalogue

import (
	"fmt"
	"iter"
	"path"
	"strings"

	"memebox/internal/textutil"
)

// MaxPayloadBytes is the platform limit on callback payloads. The longest
// payload derived from an entry is "meme_<category>_<key>".
const MaxPayloadBytes = 64

// Root names the uncategorised scope.
const Root = ""

// Key is a normalized meme key.
type Key string

func (k Key) String() string { return string(k) }

// AssetRef is the bare file name of an audio asset inside the asset store.
// It never carries directory components.
type AssetRef string

func (r AssetRef) String() string { return string(r) }

// ParseAssetRef turns a stored or user-supplied reference into an AssetRef by
// stripping any directory components. Both slash styles are treated as
// separators.
func ParseAssetRef(raw string) (AssetRef, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, "\\", "/"))
	base := path.Base(cleaned)
	if cleaned == "" || base == "." || base == ".." || base == "/" || textutil.HasControl(base) {
		return "", fmt.Errorf("%w: asset reference %q", ErrInvalidKey, raw)
	}
	return AssetRef(base), nil
}

// ParseKey normalizes a human-typed key and validates it.
func ParseKey(raw string) (Key, error) {
	normalized := textutil.NormalizeLabel(raw)
	if normalized == "" {
		return "", fmt.Errorf("%w: key is empty", ErrInvalidKey)
	}
	if strings.ContainsAny(normalized, `/\`) || textutil.HasControl(normalized) {
		return "", fmt.Errorf("%w: key %q contains a path separator or control character", ErrInvalidKey, raw)
	}
	return Key(normalized), nil
}

// ParseCategory normalizes a category name. The empty string denotes Root.
// Category names may not contain underscores or whitespace because both act
// as delimiters in callback payloads and inline queries.
func ParseCategory(raw string) (string, error) {
	normalized := textutil.NormalizeLabel(raw)
	if normalized == "" {
		return Root, nil
	}
	if strings.ContainsAny(normalized, "_ /\\") || textutil.HasControl(normalized) {
		return "", fmt.Errorf("%w: category %q may not contain '_', whitespace or path separators", ErrInvalidKey, raw)
	}
	return normalized, nil
}

// PayloadFits reports whether an entry's callback payload fits the platform limit.
func PayloadFits(category string, key Key) bool {
	return len("meme_")+len(category)+len("_")+len(key) <= MaxPayloadBytes
}

// Item is a single key to asset binding inside a scope.
type Item struct {
	Key   Key
	Asset AssetRef
}

// Group is a named category with its ordered items.
type Group struct {
	Name  string
	Items []Item
}

// Entry is an Item qualified by the scope it lives in.
type Entry struct {
	Category string
	Key      Key
	Asset    AssetRef
}

// Catalogue is an ordered, immutable snapshot of the registry. Values returned
// by a Registry must not be modified; mutation methods return fresh copies.
type Catalogue struct {
	Root       []Item
	Categories []Group
}

// Len returns the number of entries across every scope.
func (c Catalogue) Len() int {
	n := len(c.Root)
	for _, g := range c.Categories {
		n += len(g.Items)
	}
	return n
}

// Nested reports whether the catalogue has any category.
func (c Catalogue) Nested() bool {
	return len(c.Categories) > 0
}

// Lookup returns the first entry with key in enumeration order: root items
// first, then categories in insertion order.
func (c Catalogue) Lookup(key Key) (Entry, bool) {
	for e := range c.Entries() {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// LookupIn returns the entry for key within one scope.
func (c Catalogue) LookupIn(category string, key Key) (Entry, bool) {
	items, ok := c.Items(category)
	if !ok {
		return Entry{}, false
	}
	for _, item := range items {
		if item.Key == key {
			return Entry{Category: category, Key: item.Key, Asset: item.Asset}, true
		}
	}
	return Entry{}, false
}

// Items returns the ordered items of a scope. Root always exists.
func (c Catalogue) Items(category string) ([]Item, bool) {
	if category == Root {
		return c.Root, true
	}
	idx := c.groupIndex(category)
	if idx < 0 {
		return nil, false
	}
	return c.Categories[idx].Items, true
}

// CategoryNames returns category names in insertion order.
func (c Catalogue) CategoryNames() []string {
	names := make([]string, 0, len(c.Categories))
	for _, g := range c.Categories {
		names = append(names, g.Name)
	}
	return names
}

// HasCategory reports whether a named category exists.
func (c Catalogue) HasCategory(name string) bool {
	return name != Root && c.groupIndex(name) >= 0
}

// Entries enumerates every entry in order. The sequence may be ranged over
// any number of times.
func (c Catalogue) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, item := range c.Root {
			if !yield(Entry{Category: Root, Key: item.Key, Asset: item.Asset}) {
				return
			}
		}
		for _, g := range c.Categories {
			for _, item := range g.Items {
				if !yield(Entry{Category: g.Name, Key: item.Key, Asset: item.Asset}) {
					return
				}
			}
		}
	}
}

// ReferencesAsset reports whether any entry points at ref.
func (c Catalogue) ReferencesAsset(ref AssetRef) bool {
	for e := range c.Entries() {
		if e.Asset == ref {
			return true
		}
	}
	return false
}

func (c Catalogue) groupIndex(name string) int {
	for i, g := range c.Categories {
		if g.Name == name {
			return i
		}
	}
	return -1
}

// nameTaken reports whether adding key to category would collide with a
// top-level JSON member of the other kind.
func (c Catalogue) nameTaken(category string, key Key) bool {
	if category == Root {
		return c.HasCategory(string(key))
	}
	if c.HasCategory(category) {
		return false
	}
	_, ok := c.LookupIn(Root, Key(category))
	return ok
}

// clone copies the slice headers that a mutation is about to touch.
func (c Catalogue) clone() Catalogue {
	out := Catalogue{
		Root:       append([]Item(nil), c.Root...),
		Categories: make([]Group, len(c.Categories)),
	}
	for i, g := range c.Categories {
		out.Categories[i] = Group{Name: g.Name, Items: append([]Item(nil), g.Items...)}
	}
	return out
}

// withEntry returns a copy of c with e appended to its scope, creating the
// category at the end when needed.
func (c Catalogue) withEntry(e Entry) Catalogue {
	out := c.clone()
	item := Item{Key: e.Key, Asset: e.Asset}
	if e.Category == Root {
		out.Root = append(out.Root, item)
		return out
	}
	idx := out.groupIndex(e.Category)
	if idx < 0 {
		out.Categories = append(out.Categories, Group{Name: e.Category, Items: []Item{item}})
		return out
	}
	out.Categories[idx].Items = append(out.Categories[idx].Items, item)
	return out
}

// withUpdate returns a copy of c where the item for (category, key) has been
// replaced by fn's result. The second return is false when the key is absent.
func (c Catalogue) withUpdate(category string, key Key, fn func(Item) Item) (Catalogue, bool) {
	out := c.clone()
	var items []Item
	if category == Root {
		items = out.Root
	} else {
		idx := out.groupIndex(category)
		if idx < 0 {
			return c, false
		}
		items = out.Categories[idx].Items
	}
	for i := range items {
		if items[i].Key == key {
			items[i] = fn(items[i])
			return out, true
		}
	}
	return c, false
}
