package bot

import (
	"context"
	"fmt"

	"memebox/internal/catalogue"
	"memebox/internal/lookup"
)

const (
	// maxInlineResults is the platform cap on results per answer.
	maxInlineResults = 50
	// maxInlineButtons keeps category keyboards within platform limits.
	maxInlineButtons = 100
)

func (d *Dispatcher) handleInline(ctx context.Context, ev Event) error {
	result := d.lookup.Search(ev.Query)

	var results []InlineResult
	if result.Menu != nil {
		results = d.menuResults(*result.Menu)
	} else {
		for m := range result.Matches {
			results = append(results, InlineResult{
				Kind:  InlineVoice,
				ID:    fmt.Sprintf("m_%d", len(results)),
				Title: "🎤 " + m.Title(),
				URL:   m.URL,
			})
			if len(results) == maxInlineResults {
				break
			}
		}
	}
	return d.messenger.AnswerInline(ctx, ev.InlineID, results, d.inlineCache)
}

// menuResults renders the first menu as inline results: one article per
// category whose keyboard fills the search box with "<category> <key>", and
// one voice result per root key.
func (d *Dispatcher) menuResults(menu lookup.Menu) []InlineResult {
	results := make([]InlineResult, 0, len(menu.Options))
	for i, opt := range menu.Options {
		if len(results) == maxInlineResults {
			break
		}
		switch opt.Kind {
		case lookup.OptionCategory:
			results = append(results, InlineResult{
				Kind:        InlineArticle,
				ID:          fmt.Sprintf("cat_%d", i),
				Title:       "📂 " + opt.Label,
				Description: "Choose a meme from this category",
				Text:        fmt.Sprintf("📂 Category: %s\nChoose a meme from this category", opt.Label),
				Keyboard:    d.categorySwitchKeyboard(opt.Category),
			})
		case lookup.OptionMeme:
			asset, err := d.lookup.PlayInCategory(catalogue.Root, string(opt.Key))
			if err != nil {
				continue
			}
			results = append(results, InlineResult{
				Kind:  InlineVoice,
				ID:    fmt.Sprintf("m_%d", i),
				Title: "🎤 " + asset.Title(),
				URL:   asset.URL,
			})
		}
	}
	return results
}

func (d *Dispatcher) categorySwitchKeyboard(category string) Keyboard {
	items, _ := d.registry.Snapshot().Items(category)
	kb := make(Keyboard, 0, min(len(items), maxInlineButtons))
	for _, item := range items {
		if len(kb) == maxInlineButtons {
			break
		}
		kb = append(kb, []Button{{Text: string(item.Key), SwitchInline: category + " " + string(item.Key)}})
	}
	return kb
}
