// SPDX-License-Identifier: MIT

package notify

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	xlog "github.com/aethradio/aether/internal/log"
)

// Telegram implements Notifier over the Bot API. All outbound calls share
// one limiter because Telegram enforces a global flood limit per bot.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewTelegram wraps an authorized bot client.
func NewTelegram(bot *tgbotapi.BotAPI) *Telegram {
	return &Telegram{
		bot: bot,
		// Telegram allows ~30 messages/second bot-wide.
		limiter: rate.NewLimiter(rate.Limit(25), 5),
		logger:  xlog.WithComponent("notify"),
	}
}

func (t *Telegram) SendMessage(ctx context.Context, chatID int64, text string, kb Keyboard) (MessageRef, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return MessageRef{}, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if kb != nil {
		msg.ReplyMarkup = toMarkup(kb)
	}
	sent, err := t.bot.Send(msg)
	if err != nil {
		return MessageRef{}, err
	}
	return MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (t *Telegram) EditMessage(ctx context.Context, ref MessageRef, text string, kb Keyboard) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if kb != nil {
		markup := toMarkup(kb)
		edit.ReplyMarkup = &markup
	}
	_, err := t.bot.Send(edit)
	return t.swallowEditRace(err)
}

func (t *Telegram) EditKeyboard(ctx context.Context, ref MessageRef, kb Keyboard) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(ref.ChatID, ref.MessageID, toMarkup(kb))
	_, err := t.bot.Send(edit)
	return t.swallowEditRace(err)
}

func (t *Telegram) DeleteMessage(ctx context.Context, ref MessageRef) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := t.bot.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID))
	return t.swallowEditRace(err)
}

func (t *Telegram) SendAudio(ctx context.Context, chatID int64, audio Audio) (MessageRef, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return MessageRef{}, err
	}
	msg := tgbotapi.NewAudio(chatID, tgbotapi.FilePath(audio.FilePath))
	msg.Title = audio.Title
	msg.Performer = audio.Artist
	msg.Duration = audio.Duration
	msg.Caption = audio.Caption
	msg.ParseMode = tgbotapi.ModeMarkdown
	if audio.Keyboard != nil {
		msg.ReplyMarkup = toMarkup(audio.Keyboard)
	}
	sent, err := t.bot.Send(msg)
	if err != nil {
		return MessageRef{}, err
	}
	return MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// AnswerCallback acknowledges a button press so the client stops spinning.
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) {
	if err := t.limiter.Wait(ctx); err != nil {
		return
	}
	if _, err := t.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		t.logger.Debug().Err(err).Msg("callback answer failed")
	}
}

// swallowEditRace drops the benign races every long-lived dashboard hits:
// edits of unchanged content and edits/deletes of messages users removed.
func (t *Telegram) swallowEditRace(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, benign := range []string{
		"message is not modified",
		"message to edit not found",
		"message to delete not found",
		"message can't be deleted",
	} {
		if strings.Contains(msg, benign) {
			t.logger.Debug().Str("reason", benign).Msg("ignoring stale message operation")
			return nil
		}
	}
	return err
}

func toMarkup(kb Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
