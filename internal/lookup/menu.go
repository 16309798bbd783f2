package lookup

import (
	"fmt"

	"memebox/internal/catalogue"
	"memebox/internal/textutil"
)

// OptionKind distinguishes menu entries that open a category from entries
// that play a meme.
type OptionKind int

const (
	OptionCategory OptionKind = iota
	OptionMeme
)

// Option is one button of a menu.
type Option struct {
	Kind     OptionKind
	Label    string
	Category string
	Key      catalogue.Key
}

// Menu is a platform-agnostic list of options. Page is zero based.
type Menu struct {
	Category string
	Options  []Option
	Page     int
	Pages    int
}

// HasPrev reports whether an earlier page exists.
func (m Menu) HasPrev() bool { return m.Page > 0 }

// HasNext reports whether a later page exists.
func (m Menu) HasNext() bool { return m.Page+1 < m.Pages }

// Categories builds the first page of the top-level menu.
func (e *Engine) Categories() Menu {
	return e.rootMenu(e.registry.Snapshot(), 0)
}

// rootMenu pages the top-level options like any category.
func (e *Engine) rootMenu(snap catalogue.Catalogue, page int) Menu {
	return e.paginate(catalogue.Root, rootOptions(snap), page)
}

// rootOptions lists categories followed by root keys. Flat catalogues
// therefore list their keys directly.
func rootOptions(snap catalogue.Catalogue) []Option {
	options := make([]Option, 0, len(snap.Categories)+len(snap.Root))
	for _, name := range snap.CategoryNames() {
		options = append(options, Option{Kind: OptionCategory, Label: name, Category: name})
	}
	for _, item := range snap.Root {
		options = append(options, Option{Kind: OptionMeme, Label: string(item.Key), Key: item.Key})
	}
	return options
}

// Keys builds the member menu of category, paged by the engine's page size.
// The root scope pages the top-level menu. Pages beyond the end are clamped
// to the last page.
func (e *Engine) Keys(category string, page int) (Menu, error) {
	category = textutil.NormalizeLabel(category)
	snap := e.registry.Snapshot()
	if category == catalogue.Root {
		return e.rootMenu(snap, page), nil
	}
	items, ok := snap.Items(category)
	if !ok {
		return Menu{}, fmt.Errorf("%w: %q", catalogue.ErrCategoryNotFound, category)
	}
	options := make([]Option, 0, len(items))
	for _, item := range items {
		options = append(options, Option{
			Kind:     OptionMeme,
			Label:    string(item.Key),
			Category: category,
			Key:      item.Key,
		})
	}
	return e.paginate(category, options, page), nil
}

func (e *Engine) paginate(category string, options []Option, page int) Menu {
	pages := max(1, (len(options)+e.pageSize-1)/e.pageSize)
	page = min(max(page, 0), pages-1)
	start := page * e.pageSize
	end := min(start+e.pageSize, len(options))
	return Menu{Category: category, Options: options[start:end:end], Page: page, Pages: pages}
}
