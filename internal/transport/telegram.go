package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ErgoTechKG/wechat-cc/internal/config"
)

var ErrTelegramAPI = errors.New("telegram api error")

// Telegram is a Bot API transport using long polling. Only private chats
// are delivered; the chat id is the contact id. Receive must not be called
// concurrently.
type Telegram struct {
	endpoint    string
	token       string
	client      *http.Client
	pollTimeout time.Duration
	logger      *slog.Logger

	bot     *tgbotapi.BotAPI
	offset  int
	pending []Message
}

func NewTelegram(cfg config.TelegramConfig, logger *slog.Logger) *Telegram {
	poll := time.Duration(cfg.PollTimeoutSeconds) * time.Second
	if poll <= 0 {
		poll = 30 * time.Second
	}
	return &Telegram{
		endpoint:    strings.TrimRight(cfg.APIBase, "/") + "/bot%s/%s",
		token:       cfg.Token,
		client:      &http.Client{Timeout: poll + 5*time.Second},
		pollTimeout: poll,
		logger:      logger,
	}
}

// Start connects the bot, which verifies the token with getMe.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := await(ctx, func() (*tgbotapi.BotAPI, error) {
		return tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	})
	if err != nil {
		return apiError("getMe", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot online", "username", bot.Self.UserName, "name", bot.Self.FirstName)
	return nil
}

func (t *Telegram) Receive(ctx context.Context) (Message, error) {
	for len(t.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		if err := t.poll(ctx); err != nil {
			return Message{}, err
		}
	}
	m := t.pending[0]
	t.pending = t.pending[1:]
	return m, nil
}

func (t *Telegram) poll(ctx context.Context) error {
	if t.bot == nil {
		return fmt.Errorf("%w: getUpdates before start", ErrTelegramAPI)
	}
	cfg := tgbotapi.UpdateConfig{
		Offset:         t.offset,
		Timeout:        int(t.pollTimeout / time.Second),
		AllowedUpdates: []string{"message"},
	}
	// The client does not take a context; an abandoned poll ends with the
	// http timeout and its updates are redelivered since offset is unchanged.
	updates, err := await(ctx, func() ([]tgbotapi.Update, error) {
		return t.bot.GetUpdates(cfg)
	})
	if err != nil {
		return apiError("getUpdates", err)
	}

	for _, u := range updates {
		t.offset = u.UpdateID + 1
		if m, ok := t.message(u); ok {
			t.pending = append(t.pending, m)
		}
	}
	return nil
}

func (t *Telegram) message(u tgbotapi.Update) (Message, bool) {
	msg := u.Message
	if msg == nil || msg.Text == "" || msg.Chat == nil {
		return Message{}, false
	}
	if !msg.Chat.IsPrivate() {
		t.logger.Debug("skipping non-private chat", "chat_id", msg.Chat.ID)
		return Message{}, false
	}

	user := tgbotapi.User{ID: msg.Chat.ID, FirstName: "Unknown"}
	if msg.From != nil {
		user = *msg.From
	}
	nickname := user.FirstName
	if user.LastName != "" {
		nickname += " " + user.LastName
	}
	return Message{
		From: Contact{
			ID:         strconv.FormatInt(msg.Chat.ID, 10),
			Nickname:   nickname,
			RemarkName: user.UserName,
		},
		Text: msg.Text,
	}, true
}

func (t *Telegram) Send(ctx context.Context, to Contact, text string) error {
	if t.bot == nil {
		return fmt.Errorf("%w: sendMessage before start", ErrTelegramAPI)
	}
	chatID, err := strconv.ParseInt(to.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("sendMessage: chat id %q: %w", to.ID, err)
	}
	_, err = await(ctx, func() (tgbotapi.Message, error) {
		return t.bot.Send(tgbotapi.NewMessage(chatID, text))
	})
	if err != nil {
		return apiError("sendMessage", err)
	}
	return nil
}

// await runs fn and returns early when ctx is done.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}

func apiError(method string, err error) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return fmt.Errorf("%w: %s: %s", ErrTelegramAPI, method, tgErr.Message)
	}
	return fmt.Errorf("%s: %w", method, err)
}
