// SPDX-License-Identifier: MIT

package notify

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	xlog "github.com/aethradio/aether/internal/log"
)

// Noop logs every intent instead of talking to a chat platform. Used in
// dry-run mode and CI smoke runs.
type Noop struct {
	nextID atomic.Int64
	logger zerolog.Logger
}

// NewNoop builds the dry-run notifier.
func NewNoop() *Noop {
	return &Noop{logger: xlog.WithComponent("notify-dryrun")}
}

func (n *Noop) SendMessage(_ context.Context, chatID int64, text string, _ Keyboard) (MessageRef, error) {
	id := n.nextID.Add(1)
	n.logger.Info().Int64("chat_id", chatID).Str("text", text).Msg("send")
	return MessageRef{ChatID: chatID, MessageID: int(id)}, nil
}

func (n *Noop) EditMessage(_ context.Context, ref MessageRef, text string, _ Keyboard) error {
	n.logger.Debug().Int("message_id", ref.MessageID).Str("text", text).Msg("edit")
	return nil
}

func (n *Noop) EditKeyboard(_ context.Context, ref MessageRef, _ Keyboard) error {
	n.logger.Debug().Int("message_id", ref.MessageID).Msg("edit keyboard")
	return nil
}

func (n *Noop) DeleteMessage(_ context.Context, ref MessageRef) error {
	n.logger.Debug().Int("message_id", ref.MessageID).Msg("delete")
	return nil
}

func (n *Noop) SendAudio(_ context.Context, chatID int64, audio Audio) (MessageRef, error) {
	id := n.nextID.Add(1)
	n.logger.Info().
		Int64("chat_id", chatID).
		Str("file", audio.FilePath).
		Str("title", audio.Title).
		Msg("send audio")
	return MessageRef{ChatID: chatID, MessageID: int(id)}, nil
}
