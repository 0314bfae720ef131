// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus instrumentation for the radio core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aether_sessions_active",
		Help: "Number of radio sessions currently on air",
	})

	tracksPlayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aether_tracks_played_total",
		Help: "Total number of tracks sent to chats",
	})

	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aether_downloads_total",
		Help: "Download attempts by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aether_download_duration_seconds",
		Help:    "Wall-clock duration of download attempts",
		Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 90},
	})

	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aether_searches_total",
		Help: "Track searches by outcome",
	}, []string{"outcome"}) // outcome=hit|miss|empty|error

	refillFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aether_refill_failures_total",
		Help: "Playlist refill cycles that produced no new tracks",
	})

	votesCast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aether_votes_cast_total",
		Help: "Ballots registered across all genre votes",
	})

	votesResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aether_votes_resolved_total",
		Help: "Genre votes resolved to a winner",
	})
)

// SessionStarted increments the active session gauge.
func SessionStarted() { sessionsActive.Inc() }

// SessionStopped decrements the active session gauge.
func SessionStopped() { sessionsActive.Dec() }

// RecordTrackPlayed counts one track sent to a chat.
func RecordTrackPlayed() { tracksPlayed.Inc() }

// RecordDownload counts one download attempt and its duration.
func RecordDownload(success bool, elapsed time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	downloadsTotal.WithLabelValues(outcome).Inc()
	downloadDuration.Observe(elapsed.Seconds())
}

// RecordSearch counts one search by outcome: "hit" (cache), "miss"
// (fetched), "empty" (no usable results) or "error".
func RecordSearch(outcome string) { searchesTotal.WithLabelValues(outcome).Inc() }

// RecordRefillFailure counts one refill cycle that yielded nothing new.
func RecordRefillFailure() { refillFailures.Inc() }

// RecordVoteCast counts one registered ballot.
func RecordVoteCast() { votesCast.Inc() }

// RecordVoteResolved counts one resolved vote.
func RecordVoteResolved() { votesResolved.Inc() }
