// SPDX-License-Identifier: MIT

package track

import "strings"

// Duration bounds for radio material: below two minutes is usually a
// teaser or cut, above ten minutes is usually a mix or compilation.
const (
	minRadioDuration = 120
	maxRadioDuration = 600
)

// bannedPhrases marks compilations, cuts and top-lists that make poor
// radio tracks regardless of the query.
var bannedPhrases = []string{
	"10 hours", "1 hour", "mix 20", "full album", "playlist",
	"compilation", "live", "stream", "24/7",
	"top 10", "top 5", "top 20", "top 50", "top 100",
	"best of", "greatest hits", "collection", "mashup",
	"minimix", "megamix", "medley", "intro", "outro", "teaser",
	"preview", "trailer",
}

// minusWords are appended to every search query to steer the source away
// from live streams and top-lists before filtering even starts.
const minusWords = `-live -radio -stream -24/7 -"10 hours" -"top 10" -"top 5" -"best of"`

// keepResult decides whether one search hit is usable radio material.
// A query explicitly asking for a "mix" re-admits mixes but never top-lists.
func keepResult(title string, durationSec int, isLive bool, query string) bool {
	if isLive {
		return false
	}
	if durationSec < minRadioDuration || durationSec > maxRadioDuration {
		return false
	}
	lower := strings.ToLower(title)
	for _, phrase := range bannedPhrases {
		if !strings.Contains(lower, phrase) {
			continue
		}
		if strings.Contains(strings.ToLower(query), "mix") && !strings.Contains(lower, "top") {
			continue
		}
		return false
	}
	return true
}
