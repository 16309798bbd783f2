package catalogue

import (
	"fmt"
	"strings"

	"memebox/internal/textutil"
)

// Issue describes one problem found while normalizing or auditing a catalogue.
type Issue struct {
	Category string
	Key      string
	Problem  string
	// Dropped is true when normalization removed the entry.
	Dropped bool
}

func (i Issue) String() string {
	scope := i.Category
	if scope == Root {
		scope = "(root)"
	}
	return fmt.Sprintf("%s/%s: %s", scope, i.Key, i.Problem)
}

// AssetChecker reports whether an asset is present in the store.
type AssetChecker interface {
	Exists(ref AssetRef) bool
}

// Normalize rewrites keys, category names and asset references into their
// canonical forms, merges categories that normalize to the same name, and
// drops entries that cannot be repaired or that duplicate an earlier key in
// the same scope. It reports whether anything changed. Normalize is
// idempotent: Normalize(Normalize(c)) returns the same catalogue and false.
func Normalize(c Catalogue) (Catalogue, bool) {
	out, _ := normalize(c)
	return out, !equal(out, c)
}

// Audit lists every problem in c without modifying it: entries normalization
// would drop or rewrite, payloads too long for callback buttons, and assets
// missing from the store (when assets is non-nil).
func Audit(c Catalogue, assets AssetChecker) []Issue {
	normalized, issues := normalize(c)
	for e := range normalized.Entries() {
		if !PayloadFits(e.Category, e.Key) {
			issues = append(issues, Issue{Category: e.Category, Key: string(e.Key), Problem: fmt.Sprintf("callback payload exceeds %d bytes; no menu button", MaxPayloadBytes)})
		}
		if assets != nil && !assets.Exists(e.Asset) {
			issues = append(issues, Issue{Category: e.Category, Key: string(e.Key), Problem: fmt.Sprintf("asset %s missing from store", e.Asset)})
		}
	}
	for _, item := range normalized.Root {
		if normalized.HasCategory(string(item.Key)) {
			issues = append(issues, Issue{Key: string(item.Key), Problem: "root key shadows a category of the same name"})
		}
	}
	return issues
}

func normalize(c Catalogue) (Catalogue, []Issue) {
	var issues []Issue
	out := Catalogue{}

	root := normalizeItems(Root, c.Root, &issues)
	out.Root = root

	for _, g := range c.Categories {
		name, ok := repairCategoryName(g.Name)
		if !ok {
			issues = append(issues, Issue{Category: g.Name, Problem: "category name cannot be repaired", Dropped: true})
			continue
		}
		if name != g.Name {
			issues = append(issues, Issue{Category: g.Name, Problem: fmt.Sprintf("category renamed to %q", name)})
		}
		items := normalizeItems(name, g.Items, &issues)
		if name == Root {
			out.Root = mergeItems(Root, out.Root, items, &issues)
			continue
		}
		if idx := out.groupIndex(name); idx >= 0 {
			out.Categories[idx].Items = mergeItems(name, out.Categories[idx].Items, items, &issues)
			continue
		}
		out.Categories = append(out.Categories, Group{Name: name, Items: items})
	}
	return out, issues
}

func normalizeItems(category string, items []Item, issues *[]Issue) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		key, err := ParseKey(string(item.Key))
		if err != nil {
			*issues = append(*issues, Issue{Category: category, Key: string(item.Key), Problem: err.Error(), Dropped: true})
			continue
		}
		ref, err := ParseAssetRef(string(item.Asset))
		if err != nil {
			*issues = append(*issues, Issue{Category: category, Key: string(item.Key), Problem: err.Error(), Dropped: true})
			continue
		}
		if key != item.Key {
			*issues = append(*issues, Issue{Category: category, Key: string(item.Key), Problem: fmt.Sprintf("key normalized to %q", key)})
		}
		if ref != item.Asset {
			*issues = append(*issues, Issue{Category: category, Key: string(key), Problem: fmt.Sprintf("asset reference normalized to %q", ref)})
		}
		out = mergeItems(category, out, []Item{{Key: key, Asset: ref}}, issues)
	}
	return out
}

func mergeItems(category string, dst, src []Item, issues *[]Issue) []Item {
	for _, item := range src {
		duplicate := false
		for _, existing := range dst {
			if existing.Key == item.Key {
				duplicate = true
				break
			}
		}
		if duplicate {
			*issues = append(*issues, Issue{Category: category, Key: string(item.Key), Problem: "duplicate key; first occurrence kept", Dropped: true})
			continue
		}
		dst = append(dst, item)
	}
	return dst
}

// repairCategoryName maps a stored category name onto a valid one. Spaces
// and underscores become hyphens. An empty result denotes Root.
func repairCategoryName(raw string) (string, bool) {
	normalized := textutil.NormalizeLabel(raw)
	normalized = strings.NewReplacer(" ", "-", "_", "-", "/", "-", "\\", "-").Replace(normalized)
	name, err := ParseCategory(normalized)
	if err != nil {
		return "", false
	}
	return name, true
}

func equal(a, b Catalogue) bool {
	if !equalItems(a.Root, b.Root) || len(a.Categories) != len(b.Categories) {
		return false
	}
	for i := range a.Categories {
		if a.Categories[i].Name != b.Categories[i].Name || !equalItems(a.Categories[i].Items, b.Categories[i].Items) {
			return false
		}
	}
	return true
}

func equalItems(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
