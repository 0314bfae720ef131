// SPDX-License-Identifier: MIT

// Package notify abstracts the chat transport the radio core emits intents
// against: sending, editing and deleting messages, interactive keyboards,
// and audio payloads. The core never touches the transport directly.
package notify

import "context"

// MessageRef identifies one sent message for later edits or deletion.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Zero reports whether the ref points at nothing.
func (r MessageRef) Zero() bool { return r.MessageID == 0 }

// Button is one interactive choice; Data comes back in callbacks.
type Button struct {
	Label string
	Data  string
}

// Keyboard is rows of buttons rendered under a message.
type Keyboard [][]Button

// Row builds a single-row keyboard, the common case.
func Row(buttons ...Button) Keyboard { return Keyboard{buttons} }

// Audio is a track payload with presentation metadata.
type Audio struct {
	FilePath string
	Title    string
	Artist   string
	Duration int // seconds
	Caption  string
	Keyboard Keyboard
}

// Notifier is the transport contract the core consumes. Implementations
// must swallow "message gone" and "not modified" edit races: the core
// treats every messaging failure as non-fatal (it only loses a dashboard).
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb Keyboard) (MessageRef, error)
	EditMessage(ctx context.Context, ref MessageRef, text string, kb Keyboard) error
	EditKeyboard(ctx context.Context, ref MessageRef, kb Keyboard) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	SendAudio(ctx context.Context, chatID int64, audio Audio) (MessageRef, error)
}
