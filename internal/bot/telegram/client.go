package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"memebox/internal/bot"
	"memebox/internal/config"
	"memebox/internal/logging"
)

// API is the subset of *tgbotapi.BotAPI the adapter calls.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdates(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Options configures a Client.
type Options struct {
	API         API
	BotName     string
	PollTimeout time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client talks to the Telegram Bot API.
type Client struct {
	api         API
	botName     string
	pollTimeout time.Duration
	http        *http.Client
	logger      *slog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

// Connect authenticates with token and returns a Client bound to the bot
// account it resolves to.
func Connect(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("telegram: config is required")
	}
	if err := cfg.RequireBot(); err != nil {
		return nil, err
	}
	logger = logging.NewComponentLogger(logger, "telegram")
	if err := tgbotapi.SetLogger(slogAdapter{logger: logger}); err != nil {
		return nil, fmt.Errorf("telegram: set logger: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.PollTimeout() + 15*time.Second}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Bot.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("telegram: authenticate: %w", err)
	}
	api.Debug = cfg.Bot.Debug

	logger.Info("telegram bot authenticated",
		logging.String(logging.FieldEventType, "bot_authenticated"),
		logging.String("bot", api.Self.UserName),
	)
	return New(Options{
		API:         api,
		BotName:     api.Self.UserName,
		PollTimeout: cfg.PollTimeout(),
		HTTPClient:  httpClient,
		Logger:      logger,
	}), nil
}

// New wraps an already authenticated API.
func New(opts Options) *Client {
	poll := opts.PollTimeout
	if poll <= 0 {
		poll = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		api:         opts.API,
		botName:     strings.TrimPrefix(opts.BotName, "@"),
		pollTimeout: poll,
		http:        httpClient,
		logger:      logger,
		minBackoff:  time.Second,
		maxBackoff:  time.Minute,
	}
}

// BotName is the account's username without the leading '@'.
func (c *Client) BotName() string {
	return c.botName
}

func (c *Client) SendText(_ context.Context, chat int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chat, text)
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram: send message: %w", err)
	}
	return sent.MessageID, nil
}

// SendPrompt replies to replyTo and forces a reply from the addressed user,
// so the audio they send back references the prompt.
func (c *Client) SendPrompt(_ context.Context, chat int64, replyTo int, text string) (int, error) {
	msg := tgbotapi.NewMessage(chat, text)
	msg.ReplyToMessageID = replyTo
	msg.ReplyMarkup = tgbotapi.ForceReply{ForceReply: true, Selective: true}
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram: send prompt: %w", err)
	}
	return sent.MessageID, nil
}

func (c *Client) SendMenu(_ context.Context, chat int64, text string, kb bot.Keyboard) (int, error) {
	msg := tgbotapi.NewMessage(chat, text)
	if markup := keyboardMarkup(kb); markup != nil {
		msg.ReplyMarkup = *markup
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram: send menu: %w", err)
	}
	return sent.MessageID, nil
}

func (c *Client) EditMenu(_ context.Context, chat int64, messageID int, text string, kb bot.Keyboard) error {
	markup := keyboardMarkup(kb)
	if markup == nil {
		markup = &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(chat, messageID, text, *markup)
	if _, err := c.api.Request(edit); err != nil {
		if isNotModified(err) {
			return nil
		}
		return fmt.Errorf("telegram: edit menu: %w", err)
	}
	return nil
}

func (c *Client) SendVoice(_ context.Context, chat int64, name string, r io.Reader) error {
	voice := tgbotapi.NewVoice(chat, tgbotapi.FileReader{Name: name, Reader: r})
	if _, err := c.api.Send(voice); err != nil {
		return fmt.Errorf("telegram: send voice: %w", err)
	}
	return nil
}

func (c *Client) AnswerInline(_ context.Context, queryID string, results []bot.InlineResult, cacheSeconds int) error {
	converted := make([]any, 0, len(results))
	for _, r := range results {
		converted = append(converted, inlineResult(r))
	}
	answer := tgbotapi.InlineConfig{
		InlineQueryID: queryID,
		Results:       converted,
		CacheTime:     cacheSeconds,
	}
	if _, err := c.api.Request(answer); err != nil {
		return fmt.Errorf("telegram: answer inline query: %w", err)
	}
	return nil
}

func (c *Client) AnswerCallback(_ context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

// Download fetches an uploaded file. The caller closes the body.
func (c *Client) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	link, err := c.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("telegram: resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: download file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("telegram: download file: unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

func keyboardMarkup(kb bot.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.SwitchInline != "" {
				query := b.SwitchInline
				buttons = append(buttons, tgbotapi.InlineKeyboardButton{Text: b.Text, SwitchInlineQueryCurrentChat: &query})
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, buttons)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func inlineResult(r bot.InlineResult) any {
	switch r.Kind {
	case bot.InlineArticle:
		article := tgbotapi.NewInlineQueryResultArticle(r.ID, r.Title, r.Text)
		article.Description = r.Description
		article.ReplyMarkup = keyboardMarkup(r.Keyboard)
		return article
	default:
		voice := tgbotapi.NewInlineQueryResultVoice(r.ID, r.URL, r.Title)
		voice.ReplyMarkup = keyboardMarkup(r.Keyboard)
		return voice
	}
}

// isNotModified reports the error Telegram returns when an edit would leave
// the message unchanged, which happens when a menu button is pressed twice.
func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Println(v ...any) {
	a.logger.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (a slogAdapter) Printf(format string, v ...any) {
	a.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
