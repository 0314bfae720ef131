// SPDX-License-Identifier: MIT

// Package track defines track metadata and the search/download contract the
// radio core consumes, together with the yt-dlp backed implementation.
package track

import (
	"fmt"
	"time"
)

// Track is the metadata the core needs from a source. Identifier is the
// stable string used for dedupe and re-fetch.
type Track struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Duration   int    `json:"duration"` // seconds; missing/negative treated as zero
	Identifier string `json:"identifier"`
	Source     string `json:"source,omitempty"`
}

// DisplayName returns "artist — title" for dashboards and captions.
func (t Track) DisplayName() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " — " + t.Title
}

// FormatDuration renders the duration as MM:SS; zero for missing/negative.
func (t Track) FormatDuration() string {
	d := t.Duration
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%02d:%02d", d/60, d%60)
}

// PlayDuration returns the nominal on-air time, treating missing or
// negative durations as zero.
func (t Track) PlayDuration() time.Duration {
	if t.Duration <= 0 {
		return 0
	}
	return time.Duration(t.Duration) * time.Second
}

// DownloadResult reports the outcome of a download. Operational failures
// are carried in the result, never as a Go error, so the session loop can
// compensate without unwinding.
type DownloadResult struct {
	Success  bool   `json:"success"`
	FilePath string `json:"file_path,omitempty"`
	Track    *Track `json:"track,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Failed builds a failure result with the given reason.
func Failed(reason string) DownloadResult {
	return DownloadResult{Success: false, Error: reason}
}
