package lookup

import (
	"iter"
	"strings"

	"memebox/internal/catalogue"
	"memebox/internal/textutil"
)

// Match is one search hit.
type Match struct {
	Category string
	Key      catalogue.Key
	Ref      catalogue.AssetRef
	URL      string
}

// Title is the display name of the hit.
func (m Match) Title() string {
	return string(m.Key)
}

// SearchResult holds either the category menu (for an empty query) or the
// matching assets.
type SearchResult struct {
	Menu    *Menu
	Scope   string
	Matches iter.Seq[Match]
}

// Search matches query case-insensitively against every key. An empty query
// or the word "menu" returns the whole top-level menu as a single page
// instead. When the first word
// of the query names a category and more text follows, only that category
// is searched with the remaining text.
//
// Matches is evaluated lazily against the snapshot taken when Search was
// called and may be ranged over repeatedly. Entries whose asset file is
// missing are skipped because the platform could not fetch them.
func (e *Engine) Search(query string) SearchResult {
	query = strings.TrimSpace(query)
	if query == "" || strings.EqualFold(query, MenuQuery) {
		menu := Menu{Category: catalogue.Root, Options: rootOptions(e.registry.Snapshot()), Pages: 1}
		return SearchResult{Menu: &menu}
	}

	snap := e.registry.Snapshot()
	scope, needle, scoped := splitScope(snap, query)

	matches := func(yield func(Match) bool) {
		for entry := range snap.Entries() {
			if scoped && entry.Category != scope {
				continue
			}
			if !textutil.ContainsFold(string(entry.Key), needle) {
				continue
			}
			if !e.assets.Exists(entry.Asset) {
				continue
			}
			if !yield(Match{
				Category: entry.Category,
				Key:      entry.Key,
				Ref:      entry.Asset,
				URL:      e.URL(entry.Asset),
			}) {
				return
			}
		}
	}
	result := SearchResult{Matches: matches}
	if scoped {
		result.Scope = scope
	}
	return result
}

func splitScope(snap catalogue.Catalogue, query string) (string, string, bool) {
	head, rest, found := strings.Cut(query, " ")
	rest = strings.TrimSpace(rest)
	if !found || rest == "" {
		return catalogue.Root, query, false
	}
	category := textutil.NormalizeLabel(head)
	if !snap.HasCategory(category) {
		return catalogue.Root, query, false
	}
	return category, rest, true
}
