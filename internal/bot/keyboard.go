package bot

import (
	"fmt"
	"slices"

	"memebox/internal/callback"
	"memebox/internal/catalogue"
	"memebox/internal/lookup"
)

func menuKeyboard(menu lookup.Menu) Keyboard {
	kb := make(Keyboard, 0, len(menu.Options)+1)
	for _, opt := range menu.Options {
		switch opt.Kind {
		case lookup.OptionCategory:
			kb = append(kb, []Button{{Text: "📂 " + opt.Label, Data: callback.Category(opt.Category)}})
		case lookup.OptionMeme:
			kb = append(kb, []Button{{Text: "🎤 " + opt.Label, Data: callback.Meme(opt.Category, opt.Key)}})
		}
	}

	var nav []Button
	if menu.HasPrev() {
		nav = append(nav, Button{Text: "◀️", Data: callback.Page(menu.Category, menu.Page-1)})
	}
	if menu.Category != catalogue.Root || menu.Pages > 1 {
		nav = append(nav, Button{Text: "⬆️ Categories", Data: callback.Menu()})
	}
	if menu.HasNext() {
		nav = append(nav, Button{Text: "▶️", Data: callback.Page(menu.Category, menu.Page+1)})
	}
	if len(nav) > 0 {
		kb = append(kb, nav)
	}
	return kb
}

func menuTitle(menu lookup.Menu) string {
	title := "📂 " + menu.Category
	if menu.Category == catalogue.Root {
		title = "📂 Memes"
		if slices.ContainsFunc(menu.Options, isCategory) {
			title = "📂 Choose a category"
		}
	}
	if menu.Pages > 1 {
		title = fmt.Sprintf("%s (%d/%d)", title, menu.Page+1, menu.Pages)
	}
	return title
}

func isCategory(opt lookup.Option) bool { return opt.Kind == lookup.OptionCategory }
