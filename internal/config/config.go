// SPDX-License-Identifier: MIT

// Package config loads daemon settings from the environment with
// precedence ENV > defaults, and validates them before startup.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Config holds every tunable of the radio daemon.
type Config struct {
	// Transport
	BotToken   string // Telegram bot token (required unless DryRun)
	ListenAddr string // HTTP control surface listen address

	// Storage
	DataDir      string // Badger store and genre catalog live here
	DownloadsDir string // scratch space for downloaded audio
	CatalogPath  string // YAML genre catalog
	RedisAddr    string // optional; empty selects the in-memory cache

	// Radio tempo
	PlayWindow       time.Duration // ceiling for a single track's on-air time
	RefillThreshold  int           // refill playlist below this depth
	SearchLimit      int           // max results per search
	EmptyRetrySleep  time.Duration // sleep when the playlist stays empty
	FailBackoff      time.Duration // backoff after repeated refill failures
	DownloadTimeout  time.Duration // ceiling per download attempt
	DownloadRetries  int           // attempts in DownloadWithRetry
	MaxConcurrentDLs int           // bounded download concurrency

	// Voting tempo
	FirstVoteDelay time.Duration // first vote trigger after session start
	VoteWindow     time.Duration // how long a ballot stays open
	VoteRefresh    time.Duration // ballot keyboard refresh cadence
	VoteCleanup    time.Duration // delay before the result message is deleted
	ModeWindow     time.Duration // how long a winning genre stays in force

	// Observability
	LogLevel string

	// DryRun disables the Telegram transport; used by tests and CI smoke runs.
	DryRun bool
}

// Load reads the configuration from the environment.
func Load() Config {
	dataDir := ParseString("AETHER_DATA", "/var/lib/aether")
	return Config{
		BotToken:   ParseString("AETHER_BOT_TOKEN", ""),
		ListenAddr: ParseString("AETHER_LISTEN", ":8080"),

		DataDir:      dataDir,
		DownloadsDir: ParseString("AETHER_DOWNLOADS", filepath.Join(dataDir, "downloads")),
		CatalogPath:  ParseString("AETHER_CATALOG", filepath.Join(dataDir, "genres.yaml")),
		RedisAddr:    ParseString("AETHER_REDIS_ADDR", ""),

		PlayWindow:       ParseDuration("AETHER_PLAY_WINDOW", 90*time.Second),
		RefillThreshold:  ParseInt("AETHER_REFILL_THRESHOLD", 5),
		SearchLimit:      ParseInt("AETHER_SEARCH_LIMIT", 12),
		EmptyRetrySleep:  ParseDuration("AETHER_EMPTY_RETRY_SLEEP", 5*time.Second),
		FailBackoff:      ParseDuration("AETHER_FAIL_BACKOFF", 10*time.Second),
		DownloadTimeout:  ParseDuration("AETHER_DOWNLOAD_TIMEOUT", 90*time.Second),
		DownloadRetries:  ParseInt("AETHER_DOWNLOAD_RETRIES", 3),
		MaxConcurrentDLs: ParseInt("AETHER_MAX_CONCURRENT_DOWNLOADS", 1),

		FirstVoteDelay: ParseDuration("AETHER_FIRST_VOTE_DELAY", time.Minute),
		VoteWindow:     ParseDuration("AETHER_VOTE_WINDOW", 3*time.Minute),
		VoteRefresh:    ParseDuration("AETHER_VOTE_REFRESH", 30*time.Second),
		VoteCleanup:    ParseDuration("AETHER_VOTE_CLEANUP", 15*time.Second),
		ModeWindow:     ParseDuration("AETHER_MODE_WINDOW", 30*time.Minute),

		LogLevel: ParseString("AETHER_LOG_LEVEL", "info"),
		DryRun:   ParseBool("AETHER_DRY_RUN", false),
	}
}

// Validate reports the first configuration error found.
func (c Config) Validate() error {
	if c.BotToken == "" && !c.DryRun {
		return errors.New("config: AETHER_BOT_TOKEN is required")
	}
	if c.DataDir == "" {
		return errors.New("config: data dir must not be empty")
	}
	if c.RefillThreshold < 1 {
		return fmt.Errorf("config: refill threshold must be positive, got %d", c.RefillThreshold)
	}
	if c.SearchLimit < 1 {
		return fmt.Errorf("config: search limit must be positive, got %d", c.SearchLimit)
	}
	if c.DownloadRetries < 1 {
		return fmt.Errorf("config: download retries must be positive, got %d", c.DownloadRetries)
	}
	if c.MaxConcurrentDLs < 1 {
		return fmt.Errorf("config: max concurrent downloads must be positive, got %d", c.MaxConcurrentDLs)
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"play window", c.PlayWindow},
		{"download timeout", c.DownloadTimeout},
		{"vote window", c.VoteWindow},
		{"vote refresh", c.VoteRefresh},
		{"mode window", c.ModeWindow},
	} {
		if d.val <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", d.name, d.val)
		}
	}
	if c.VoteRefresh > c.VoteWindow {
		return fmt.Errorf("config: vote refresh (%s) must not exceed the vote window (%s)", c.VoteRefresh, c.VoteWindow)
	}
	return nil
}
