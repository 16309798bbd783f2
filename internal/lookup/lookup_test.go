package lookup_test

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"memebox/internal/catalogue"
	"memebox/internal/lookup"
)

type staticRegistry struct {
	snap catalogue.Catalogue
}

func (r *staticRegistry) Snapshot() catalogue.Catalogue { return r.snap }

type fakeAssets map[catalogue.AssetRef]bool

func (f fakeAssets) Exists(ref catalogue.AssetRef) bool { return f[ref] }

func newEngine(t *testing.T, snap catalogue.Catalogue, assets fakeAssets, pageSize int) *lookup.Engine {
	t.Helper()
	engine, err := lookup.New(lookup.Options{
		Registry:    &staticRegistry{snap: snap},
		Assets:      assets,
		BaseURL:     "https://memes.example.com/",
		AssetPrefix: "memes",
		PageSize:    pageSize,
	})
	if err != nil {
		t.Fatalf("lookup.New: %v", err)
	}
	return engine
}

func decode(t *testing.T, raw string) catalogue.Catalogue {
	t.Helper()
	c, err := catalogue.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	normalized, _ := catalogue.Normalize(c)
	return normalized
}

func TestPlayDistinguishesMissingFile(t *testing.T) {
	assets := fakeAssets{"airhorn_123.ogg": true}
	engine := newEngine(t, decode(t, `{"airhorn": "airhorn_123.ogg"}`), assets, 0)

	asset, err := engine.Play("airhorn")
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if asset.Ref != "airhorn_123.ogg" || asset.Title() != "airhorn" {
		t.Fatalf("unexpected asset %#v", asset)
	}
	if asset.URL != "https://memes.example.com/memes/airhorn_123.ogg" {
		t.Fatalf("unexpected url %q", asset.URL)
	}
	again, err := engine.Play("airhorn")
	if err != nil || again != asset {
		t.Fatalf("repeated play differs: %#v %v", again, err)
	}

	delete(assets, "airhorn_123.ogg")
	_, err = engine.Play("airhorn")
	if !errors.Is(err, catalogue.ErrAssetMissing) {
		t.Fatalf("expected ErrAssetMissing, got %v", err)
	}
	if errors.Is(err, catalogue.ErrKeyNotFound) {
		t.Fatal("missing file must not be reported as an unknown key")
	}

	if _, err := engine.Play("foghorn"); !errors.Is(err, catalogue.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestPlayNormalizesKey(t *testing.T) {
	engine := newEngine(t, decode(t, `{"air horn": "a.ogg"}`), fakeAssets{"a.ogg": true}, 0)
	if _, err := engine.Play("  Air   HORN "); err != nil {
		t.Fatalf("expected normalized lookup to succeed: %v", err)
	}
}

func TestPlayInCategory(t *testing.T) {
	engine := newEngine(t,
		decode(t, `{"sfx": {"boing": "boing.ogg"}, "music": {"boing": "boing2.ogg"}}`),
		fakeAssets{"boing.ogg": true, "boing2.ogg": true}, 0)

	asset, err := engine.PlayInCategory("music", "boing")
	if err != nil || asset.Ref != "boing2.ogg" {
		t.Fatalf("unexpected result %#v %v", asset, err)
	}
	if _, err := engine.PlayInCategory("nope", "boing"); !errors.Is(err, catalogue.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
	if _, err := engine.PlayInCategory("sfx", "laugh"); !errors.Is(err, catalogue.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func collect(seq func(func(lookup.Match) bool)) []lookup.Match {
	var out []lookup.Match
	for m := range seq {
		out = append(out, m)
	}
	return out
}

func TestSearchScopedToCategory(t *testing.T) {
	engine := newEngine(t,
		decode(t, `{"sfx": {"boing": "boing.ogg"}, "music": {"boing bass": "bass.ogg"}}`),
		fakeAssets{"boing.ogg": true, "bass.ogg": true}, 0)

	result := engine.Search("sfx boin")
	if result.Menu != nil {
		t.Fatal("expected matches, got menu")
	}
	if result.Scope != "sfx" {
		t.Fatalf("expected sfx scope, got %q", result.Scope)
	}
	matches := collect(result.Matches)
	if len(matches) != 1 {
		t.Fatalf("expected exactly one match, got %#v", matches)
	}
	if matches[0].Title() != "boing" || matches[0].Ref != "boing.ogg" {
		t.Fatalf("unexpected match %#v", matches[0])
	}
	if matches[0].URL != "https://memes.example.com/memes/boing.ogg" {
		t.Fatalf("unexpected url %q", matches[0].URL)
	}
}

func TestSearchUnscopedMatchesEveryCategory(t *testing.T) {
	engine := newEngine(t,
		decode(t, `{"sfx": {"boing": "boing.ogg"}, "music": {"Boing Bass": "bass.ogg", "drum": "drum.ogg"}}`),
		fakeAssets{"boing.ogg": true, "bass.ogg": true, "drum.ogg": true}, 0)

	result := engine.Search("BOIN")
	matches := collect(result.Matches)
	var titles []string
	for _, m := range matches {
		titles = append(titles, m.Title())
	}
	if !slices.Equal(titles, []string{"boing", "boing bass"}) {
		t.Fatalf("unexpected titles %v", titles)
	}

	// A leading word that is not a category is part of the needle.
	if got := collect(engine.Search("boing bass").Matches); len(got) != 1 || got[0].Ref != "bass.ogg" {
		t.Fatalf("unexpected matches %#v", got)
	}
	// A category name alone searches keys rather than scoping.
	if got := collect(engine.Search("music").Matches); len(got) != 0 {
		t.Fatalf("expected no key to contain 'music', got %#v", got)
	}
}

func TestSearchIsRestartable(t *testing.T) {
	engine := newEngine(t, decode(t, `{"a1": "a1.ogg", "a2": "a2.ogg", "b": "b.ogg"}`),
		fakeAssets{"a1.ogg": true, "a2.ogg": true, "b.ogg": true}, 0)

	result := engine.Search("a")
	first := collect(result.Matches)
	second := collect(result.Matches)
	if len(first) != 2 || !slices.Equal(first, second) {
		t.Fatalf("sequence not restartable: %v vs %v", first, second)
	}

	for m := range result.Matches {
		if m.Key != "a1" {
			t.Fatalf("unexpected first match %v", m)
		}
		break
	}
}

func TestSearchSkipsMissingAssets(t *testing.T) {
	engine := newEngine(t, decode(t, `{"laugh": "laugh.ogg", "laughing": "gone.ogg"}`),
		fakeAssets{"laugh.ogg": true}, 0)
	matches := collect(engine.Search("laugh").Matches)
	if len(matches) != 1 || matches[0].Key != "laugh" {
		t.Fatalf("unexpected matches %#v", matches)
	}
}

func TestSearchEmptyReturnsMenu(t *testing.T) {
	engine := newEngine(t, decode(t, `{"sfx": {"boing": "boing.ogg"}, "music": {"drum": "drum.ogg"}}`), fakeAssets{}, 0)

	for _, query := range []string{"", "   ", "menu", "MENU"} {
		result := engine.Search(query)
		if result.Menu == nil {
			t.Fatalf("query %q: expected menu", query)
		}
		if len(result.Menu.Options) != 2 || result.Menu.Options[0].Label != "sfx" {
			t.Fatalf("query %q: unexpected menu %#v", query, result.Menu)
		}
	}
}

func TestCategoriesOrderingIsStable(t *testing.T) {
	engine := newEngine(t, decode(t, `{"root": "r.ogg", "zeta": {"a": "a.ogg"}, "alpha": {"b": "b.ogg"}}`), fakeAssets{}, 0)

	first := engine.Categories()
	second := engine.Categories()
	if !slices.Equal(first.Options, second.Options) {
		t.Fatal("menu differs between renders")
	}
	want := []lookup.Option{
		{Kind: lookup.OptionCategory, Label: "zeta", Category: "zeta"},
		{Kind: lookup.OptionCategory, Label: "alpha", Category: "alpha"},
		{Kind: lookup.OptionMeme, Label: "root", Key: "root"},
	}
	if !slices.Equal(first.Options, want) {
		t.Fatalf("unexpected options %#v", first.Options)
	}
}

func TestCategoriesFlatListsKeys(t *testing.T) {
	engine := newEngine(t, decode(t, `{"b": "b.ogg", "a": "a.ogg"}`), fakeAssets{}, 0)
	menu := engine.Categories()
	if len(menu.Options) != 2 || menu.Options[0].Kind != lookup.OptionMeme || menu.Options[0].Key != "b" {
		t.Fatalf("unexpected flat menu %#v", menu)
	}
}

func TestCategoriesPagesFlatCatalogue(t *testing.T) {
	var raw strings.Builder
	raw.WriteString("{")
	for i := range 150 {
		if i > 0 {
			raw.WriteString(",")
		}
		fmt.Fprintf(&raw, `"k%03d": "k%03d.ogg"`, i, i)
	}
	raw.WriteString("}")
	engine := newEngine(t, decode(t, raw.String()), fakeAssets{}, 20)

	first := engine.Categories()
	if first.Pages != 8 || len(first.Options) != 20 || !first.HasNext() || first.Options[0].Key != "k000" {
		t.Fatalf("unexpected first page: pages=%d options=%d", first.Pages, len(first.Options))
	}
	last, err := engine.Keys(catalogue.Root, 7)
	if err != nil {
		t.Fatal(err)
	}
	if last.Page != 7 || len(last.Options) != 10 || last.Options[9].Key != "k149" || last.HasNext() {
		t.Fatalf("unexpected last page: page=%d options=%d", last.Page, len(last.Options))
	}

	result := engine.Search("menu")
	if result.Menu == nil || len(result.Menu.Options) != 150 {
		t.Fatal("inline menu should carry every top-level option")
	}
}

func TestRootPagesListCategoriesFirst(t *testing.T) {
	engine := newEngine(t, decode(t, `{"a": "a.ogg", "b": "b.ogg", "sfx": {"x": "x.ogg"}, "music": {"y": "y.ogg"}}`), fakeAssets{}, 3)

	first := engine.Categories()
	if first.Pages != 2 || first.Options[0].Kind != lookup.OptionCategory || first.Options[2].Key != "a" {
		t.Fatalf("unexpected first page %#v", first)
	}
	second, err := engine.Keys(catalogue.Root, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Options) != 1 || second.Options[0].Key != "b" || second.Category != catalogue.Root {
		t.Fatalf("unexpected second page %#v", second)
	}
}

func TestKeysPaging(t *testing.T) {
	engine := newEngine(t,
		decode(t, `{"sfx": {"a": "a.ogg", "b": "b.ogg", "c": "c.ogg", "d": "d.ogg", "e": "e.ogg"}}`),
		fakeAssets{}, 2)

	menu, err := engine.Keys("sfx", 0)
	if err != nil {
		t.Fatal(err)
	}
	if menu.Pages != 3 || menu.HasPrev() || !menu.HasNext() || len(menu.Options) != 2 {
		t.Fatalf("unexpected first page %#v", menu)
	}
	last, err := engine.Keys("sfx", 9)
	if err != nil {
		t.Fatal(err)
	}
	if last.Page != 2 || len(last.Options) != 1 || last.Options[0].Key != "e" || last.HasNext() {
		t.Fatalf("unexpected last page %#v", last)
	}
	if last.Options[0].Category != "sfx" {
		t.Fatalf("options should carry their category, got %#v", last.Options[0])
	}
	if _, err := engine.Keys("nope", 0); !errors.Is(err, catalogue.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestURLEscapesFileName(t *testing.T) {
	engine := newEngine(t, catalogue.Catalogue{}, fakeAssets{}, 0)
	if got := engine.URL("air horn.ogg"); got != "https://memes.example.com/memes/air%20horn.ogg" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestList(t *testing.T) {
	engine := newEngine(t, decode(t, `{"x": "x.ogg", "sfx": {"y": "y.ogg"}}`), fakeAssets{}, 0)
	entries := engine.List()
	if len(entries) != 2 || entries[0].Key != "x" || entries[1].Category != "sfx" {
		t.Fatalf("unexpected list %#v", entries)
	}
}
