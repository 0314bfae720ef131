// SPDX-License-Identifier: MIT

// Package genre holds the read-only genre catalog, the candidate sampling
// used by votes, and the prioritized search-query resolver.
package genre

import (
	"fmt"
	"math/rand"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// RandomQuery is the sentinel session query meaning "pick a new genre now".
const RandomQuery = "random"

// Subgenre narrows a genre to a concrete search term.
type Subgenre struct {
	Name   string `yaml:"name"`
	Search string `yaml:"search"`
}

// Genre is one catalog entry.
type Genre struct {
	Name      string     `yaml:"name"`
	Search    string     `yaml:"search"`
	Subgenres []Subgenre `yaml:"subgenres"`
}

// Catalog is an immutable snapshot of the configured genres. Replace the
// whole snapshot to change it; never mutate one in place.
type Catalog struct {
	genres map[string]Genre
	keys   []string // sorted for deterministic iteration
}

type catalogFile struct {
	Genres map[string]Genre `yaml:"genres"`
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genre: read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("genre: parse catalog: %w", err)
	}
	return FromMap(f.Genres), nil
}

// FromMap builds a catalog from an in-memory genre map.
func FromMap(genres map[string]Genre) *Catalog {
	keys := make([]string, 0, len(genres))
	for k := range genres {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cp := make(map[string]Genre, len(genres))
	for k, v := range genres {
		cp[k] = v
	}
	return &Catalog{genres: cp, keys: keys}
}

// Len returns the number of genres.
func (c *Catalog) Len() int { return len(c.keys) }

// Keys returns the genre keys in sorted order.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Get looks up one genre by key.
func (c *Catalog) Get(key string) (Genre, bool) {
	g, ok := c.genres[key]
	return g, ok
}

// DisplayName returns the human label for a genre key, falling back to the
// key itself for unknown genres.
func (c *Catalog) DisplayName(key string) string {
	if g, ok := c.genres[key]; ok && g.Name != "" {
		return g.Name
	}
	return key
}

// Sample draws min(n, Len) genre keys without replacement, sorted for
// deterministic ballot display order.
func (c *Catalog) Sample(n int, rng *rand.Rand) []string {
	if n > len(c.keys) {
		n = len(c.keys)
	}
	if n <= 0 {
		return nil
	}
	perm := rng.Perm(len(c.keys))
	out := make([]string, 0, n)
	for _, i := range perm[:n] {
		out = append(out, c.keys[i])
	}
	sort.Strings(out)
	return out
}

// RandomKey picks one genre key uniformly. ok is false for an empty catalog.
func (c *Catalog) RandomKey(rng *rand.Rand) (string, bool) {
	if len(c.keys) == 0 {
		return "", false
	}
	return c.keys[rng.Intn(len(c.keys))], true
}

// searchTerm resolves the concrete query for a genre key: a uniformly
// random subgenre's term when any exist, else the genre's own term, else
// the key itself.
func (c *Catalog) searchTerm(key string, rng *rand.Rand) string {
	g, ok := c.genres[key]
	if !ok {
		return key
	}
	if len(g.Subgenres) > 0 {
		sub := g.Subgenres[rng.Intn(len(g.Subgenres))]
		if sub.Search != "" {
			return sub.Search
		}
		if sub.Name != "" {
			return sub.Name
		}
	}
	if g.Search != "" {
		return g.Search
	}
	return key
}

// fallbackQueries keeps a misconfigured (empty) catalog on the air.
var fallbackQueries = []string{
	"popular music hits",
	"classic rock",
	"lofi hip hop beats",
	"jazz standards",
}

// ResolveQuery resolves the effective search query for a session, in
// priority order: an explicit query wins outright; the winning genre, when
// set and known, picks one of its search terms; otherwise a uniformly
// random genre does. An empty catalog degrades to a fixed fallback set.
func (c *Catalog) ResolveQuery(query, winningGenre string, rng *rand.Rand) string {
	if query != "" && query != RandomQuery {
		return query
	}
	if winningGenre != "" {
		if _, ok := c.genres[winningGenre]; ok {
			return c.searchTerm(winningGenre, rng)
		}
	}
	if key, ok := c.RandomKey(rng); ok {
		return c.searchTerm(key, rng)
	}
	return fallbackQueries[rng.Intn(len(fallbackQueries))]
}
