// SPDX-License-Identifier: MIT

package radio

import (
	"context"
	"fmt"
	"strings"

	"github.com/aethradio/aether/internal/notify"
	"github.com/aethradio/aether/internal/track"
)

// Callback payloads for the dashboard controls.
const (
	CallbackSkip = "skip"
	CallbackStop = "stop"
	CallbackVote = "startvote"

	// CallbackRate prefixes rating payloads: "rate|<trackID>|up" or
	// "rate|<trackID>|down".
	CallbackRate = "rate"
)

func controlsKeyboard() notify.Keyboard {
	return notify.Keyboard{
		{
			{Label: "⏭ Skip", Data: CallbackSkip},
			{Label: "⏹ Stop", Data: CallbackStop},
		},
		{
			{Label: "🗳 Vote genre", Data: CallbackVote},
		},
	}
}

// TrackKeyboard is the rating row attached to every delivered track.
// Counts render once any verdicts exist; the bot refreshes the keyboard
// after each rating callback.
func TrackKeyboard(trackID string, likes, dislikes int) notify.Keyboard {
	up, down := "👍", "👎"
	if likes > 0 {
		up = fmt.Sprintf("👍 %d", likes)
	}
	if dislikes > 0 {
		down = fmt.Sprintf("👎 %d", dislikes)
	}
	return notify.Row(
		notify.Button{Label: up, Data: fmt.Sprintf("%s|%s|up", CallbackRate, trackID)},
		notify.Button{Label: down, Data: fmt.Sprintf("%s|%s|down", CallbackRate, trackID)},
	)
}

func startingText(displayName string) string {
	return fmt.Sprintf("📻 *Aether Radio*\n\nTuning in: *%s*\nSearching for tracks…", escapeMarkdown(displayName))
}

func downloadingText(t track.Track, snap Snapshot) string {
	var b strings.Builder
	b.WriteString("📻 *Aether Radio*\n\n")
	fmt.Fprintf(&b, "⬇️ Downloading: %s\n", escapeMarkdown(t.DisplayName()))
	writeStatusFooter(&b, snap)
	return b.String()
}

func onAirText(t track.Track, snap Snapshot) string {
	var b strings.Builder
	b.WriteString("📻 *Aether Radio*\n\n")
	fmt.Fprintf(&b, "▶️ Now playing: *%s*", escapeMarkdown(t.DisplayName()))
	if t.Duration > 0 {
		fmt.Fprintf(&b, " (%s)", t.FormatDuration())
	}
	b.WriteString("\n")
	writeStatusFooter(&b, snap)
	return b.String()
}

func stoppedText() string {
	return "📻 *Aether Radio*\n\n⏹ Stream stopped. /radio to tune back in."
}

func writeStatusFooter(b *strings.Builder, snap Snapshot) {
	if snap.DisplayName != "" {
		fmt.Fprintf(b, "🎶 Genre: %s\n", escapeMarkdown(snap.DisplayName))
	}
	fmt.Fprintf(b, "📄 Queue: %d tracks", snap.PlaylistLen)
}

// updateDashboard edits the pinned status message in place. A dashboard
// that has gone away is dropped so later updates stop trying.
func (o *Orchestrator) updateDashboard(ctx context.Context, s *Session, text string) {
	s.mu.Lock()
	dash := s.dashboard
	s.mu.Unlock()
	if dash.Zero() {
		return
	}
	if err := o.notifier.EditMessage(ctx, dash, text, controlsKeyboard()); err != nil {
		s.logger.Warn().Err(err).Str("event", "radio.dashboard_lost").Msg("dashboard update failed, dropping it")
		s.mu.Lock()
		s.dashboard = notify.MessageRef{}
		s.mu.Unlock()
	}
}

// escapeMarkdown neutralizes the markup characters Telegram's legacy
// Markdown mode trips over in track titles.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")
	return r.Replace(s)
}
