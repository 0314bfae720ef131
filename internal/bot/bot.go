// SPDX-License-Identifier: MIT

// Package bot is the Telegram front door: long-polling update intake,
// command routing and callback dispatch into the radio core.
package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/aethradio/aether/internal/genre"
	xlog "github.com/aethradio/aether/internal/log"
	"github.com/aethradio/aether/internal/notify"
	"github.com/aethradio/aether/internal/radio"
	"github.com/aethradio/aether/internal/vote"
)

// Acker answers callback queries so buttons stop spinning. Telegram keeps
// the spinner up for a minute on unanswered callbacks.
type Acker interface {
	AnswerCallback(ctx context.Context, callbackID, text string)
}

// Library is the listener-feedback store the router writes to. Satisfied
// by *store.Media; may be nil, which disables rating buttons' effects.
type Library interface {
	RateTrack(ctx context.Context, trackID string, userID int64, like bool) (likes, dislikes int, err error)
	BlacklistTrack(ctx context.Context, trackID string) error
}

// A track this disliked (and net-negative) stops coming back in searches.
const blacklistAfterDislikes = 3

// Bot routes Telegram updates into the orchestrator and vote engine.
type Bot struct {
	api      *tgbotapi.BotAPI
	notifier notify.Notifier
	acker    Acker
	radio    *radio.Orchestrator
	votes    *vote.Engine
	library  Library
	logger   zerolog.Logger
}

// New builds the bot router. acker and library may be nil.
func New(api *tgbotapi.BotAPI, notifier notify.Notifier, acker Acker, orch *radio.Orchestrator, votes *vote.Engine, library Library) *Bot {
	return &Bot{
		api:      api,
		notifier: notifier,
		acker:    acker,
		radio:    orch,
		votes:    votes,
		library:  library,
		logger:   xlog.WithComponent("bot"),
	}
}

// Run long-polls Telegram until the context ends.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.api.Self.UserName).Msg("bot polling started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, upd)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Msg("update handler panicked")
		}
	}()

	if upd.CallbackQuery != nil {
		b.handleCallback(ctx, upd.CallbackQuery)
		return
	}
	if upd.Message == nil || !upd.Message.IsCommand() {
		return
	}
	b.handleCommand(ctx, upd.Message)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start", "menu":
		b.send(ctx, chatID, welcomeText(), menuKeyboard())

	case "radio":
		query := strings.TrimSpace(msg.CommandArguments())
		display := query
		if query == "" {
			query = genre.RandomQuery
			display = ""
		}
		// Start replaces any running session for the chat.
		go b.radio.Start(ctx, chatID, query, display, nil)

	case "skip":
		if !b.radio.Skip(chatID) {
			b.send(ctx, chatID, "Nothing is playing. /radio to start.", nil)
		}

	case "stop":
		go b.radio.Stop(chatID)

	case "status":
		snap, ok := b.radio.StatusFor(chatID)
		if !ok {
			b.send(ctx, chatID, "No radio session in this chat. /radio to start.", nil)
			return
		}
		b.send(ctx, chatID, statusText(snap), nil)

	case "vote":
		b.openVote(ctx, chatID)

	default:
		b.send(ctx, chatID, "Unknown command. Try /radio, /skip, /stop, /status or /vote.", nil)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data

	switch {
	case data == radio.CallbackSkip:
		if b.radio.Skip(chatID) {
			b.ack(ctx, cb.ID, "Skipping…")
		} else {
			b.ack(ctx, cb.ID, "Nothing is playing")
		}

	case data == radio.CallbackStop:
		b.ack(ctx, cb.ID, "Stopping")
		go b.radio.Stop(chatID)

	case data == radio.CallbackVote:
		b.ack(ctx, cb.ID, "")
		b.openVote(ctx, chatID)

	case data == "radio:start":
		b.ack(ctx, cb.ID, "Tuning in")
		// The menu message the button lives on becomes the dashboard.
		anchor := notify.MessageRef{ChatID: chatID, MessageID: cb.Message.MessageID}
		go b.radio.Start(ctx, chatID, genre.RandomQuery, "", &anchor)

	case strings.HasPrefix(data, radio.CallbackRate+"|"):
		b.handleRating(ctx, cb)

	case strings.HasPrefix(data, vote.CallbackPrefix+"|"):
		key := strings.TrimPrefix(data, vote.CallbackPrefix+"|")
		if b.votes.RegisterVote(ctx, chatID, key, cb.From.ID) {
			b.ack(ctx, cb.ID, "Vote counted")
		} else {
			b.ack(ctx, cb.ID, "This vote is over")
		}

	default:
		b.logger.Debug().Str("data", data).Msg("unknown callback")
		b.ack(ctx, cb.ID, "")
	}
}

// openVote posts a placeholder and hands it to the engine as the ballot
// anchor, so the ballot replaces the placeholder instead of stacking a
// second message under it.
func (b *Bot) openVote(ctx context.Context, chatID int64) {
	if b.votes.InProgress(chatID) {
		return
	}
	ref, err := b.notifier.SendMessage(ctx, chatID, "🗳 Opening genre vote…", nil)
	if err != nil {
		b.votes.StartVote(ctx, chatID, nil)
		return
	}
	b.votes.StartVote(ctx, chatID, &ref)
}

// handleRating records one listener's verdict on a track, refreshes the
// tally on the audio message's keyboard, and blacklists tracks the chat
// has soured on.
func (b *Bot) handleRating(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	parts := strings.Split(cb.Data, "|")
	if len(parts) != 3 || b.library == nil || cb.From == nil {
		b.ack(ctx, cb.ID, "")
		return
	}
	trackID, like := parts[1], parts[2] == "up"

	likes, dislikes, err := b.library.RateTrack(ctx, trackID, cb.From.ID, like)
	if err != nil {
		b.logger.Warn().Err(err).Str("track_id", trackID).Msg("rating failed")
		b.ack(ctx, cb.ID, "Try again later")
		return
	}
	if like {
		b.ack(ctx, cb.ID, "👍 Noted")
	} else {
		b.ack(ctx, cb.ID, "👎 Noted")
	}

	if dislikes >= blacklistAfterDislikes && dislikes > likes {
		if err := b.library.BlacklistTrack(ctx, trackID); err != nil {
			b.logger.Warn().Err(err).Str("track_id", trackID).Msg("blacklist failed")
		} else {
			b.logger.Info().
				Str("event", "bot.track_blacklisted").
				Str("track_id", trackID).
				Int("dislikes", dislikes).
				Msg("track blacklisted by listener votes")
		}
	}

	ref := notify.MessageRef{ChatID: cb.Message.Chat.ID, MessageID: cb.Message.MessageID}
	if err := b.notifier.EditKeyboard(ctx, ref, radio.TrackKeyboard(trackID, likes, dislikes)); err != nil {
		b.logger.Debug().Err(err).Msg("rating keyboard refresh failed")
	}
}

func (b *Bot) ack(ctx context.Context, callbackID, text string) {
	if b.acker != nil {
		b.acker.AnswerCallback(ctx, callbackID, text)
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, kb notify.Keyboard) {
	if _, err := b.notifier.SendMessage(ctx, chatID, text, kb); err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func welcomeText() string {
	return "📻 *Aether Radio*\n\n" +
		"Unattended radio for this chat: genres by crowd vote, tracks back to back.\n\n" +
		"/radio [topic] — start the stream\n" +
		"/vote — open a genre vote\n" +
		"/skip — next track\n" +
		"/status — what's on\n" +
		"/stop — shut it down"
}

func menuKeyboard() notify.Keyboard {
	return notify.Keyboard{
		{
			{Label: "▶️ Start radio", Data: "radio:start"},
			{Label: "🗳 Vote genre", Data: radio.CallbackVote},
		},
	}
}

func statusText(snap radio.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("📻 *Radio status*\n\n")
	if snap.Current != nil {
		fmt.Fprintf(&sb, "▶️ Now playing: %s", snap.Current.DisplayName())
		if snap.Current.Duration > 0 {
			fmt.Fprintf(&sb, " (%s)", snap.Current.FormatDuration())
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("⏸ Between tracks\n")
	}
	if snap.DisplayName != "" && snap.DisplayName != genre.RandomQuery {
		fmt.Fprintf(&sb, "🎶 Genre: %s\n", snap.DisplayName)
	}
	fmt.Fprintf(&sb, "📄 Queue: %d tracks", snap.PlaylistLen)
	return sb.String()
}
