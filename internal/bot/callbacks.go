package bot

import (
	"context"

	"memebox/internal/callback"
	"memebox/internal/lookup"
)

func (d *Dispatcher) handleMenuCallback(ctx context.Context, ev Event, _ callback.Payload) error {
	return d.showMenu(ctx, ev, d.lookup.Categories())
}

func (d *Dispatcher) handleCategoryCallback(ctx context.Context, ev Event, p callback.Payload) error {
	menu, err := d.lookup.Keys(p.Category, 0)
	if err != nil {
		return err
	}
	return d.showMenu(ctx, ev, menu)
}

func (d *Dispatcher) handlePageCallback(ctx context.Context, ev Event, p callback.Payload) error {
	menu, err := d.lookup.Keys(p.Category, p.Page)
	if err != nil {
		return err
	}
	return d.showMenu(ctx, ev, menu)
}

func (d *Dispatcher) handleMemeCallback(ctx context.Context, ev Event, p callback.Payload) error {
	asset, err := d.lookup.PlayInCategory(p.Category, string(p.Key))
	if err != nil {
		return err
	}
	if err := d.sendVoice(ctx, ev.Chat, asset); err != nil {
		return err
	}
	return d.messenger.AnswerCallback(ctx, ev.CallbackID, "")
}

// showMenu replaces the pressed menu in place and acknowledges the press.
func (d *Dispatcher) showMenu(ctx context.Context, ev Event, menu lookup.Menu) error {
	if err := d.messenger.EditMenu(ctx, ev.Chat, ev.MessageID, menuTitle(menu), menuKeyboard(menu)); err != nil {
		return err
	}
	return d.messenger.AnswerCallback(ctx, ev.CallbackID, "")
}
