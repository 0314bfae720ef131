// SPDX-License-Identifier: MIT

package genre

import (
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *Catalog {
	return FromMap(map[string]Genre{
		"rock": {Name: "Rock", Search: "rock music", Subgenres: []Subgenre{
			{Name: "Classic Rock", Search: "classic rock 70s"},
			{Name: "Punk", Search: "punk rock"},
		}},
		"pop":   {Name: "Pop", Search: "pop hits"},
		"jazz":  {Name: "Jazz", Search: "jazz standards"},
		"house": {Name: "House", Search: "deep house"},
	})
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genres.yaml")
	data := `genres:
  rock:
    name: Rock
    search: rock music
    subgenres:
      - name: Grunge
        search: grunge 90s
  pop:
    name: Pop
    search: pop hits
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cat, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cat.Len())
	assert.Equal(t, []string{"pop", "rock"}, cat.Keys())

	rock, ok := cat.Get("rock")
	require.True(t, ok)
	assert.Equal(t, "Rock", rock.Name)
	require.Len(t, rock.Subgenres, 1)
	assert.Equal(t, "grunge 90s", rock.Subgenres[0].Search)
}

func TestSampleSortedWithoutReplacement(t *testing.T) {
	cat := testCatalog()
	rng := rand.New(rand.NewSource(1))

	sample := cat.Sample(3, rng)
	require.Len(t, sample, 3)
	assert.True(t, sort.StringsAreSorted(sample))

	seen := map[string]bool{}
	for _, k := range sample {
		assert.False(t, seen[k], "duplicate candidate %q", k)
		seen[k] = true
		_, ok := cat.Get(k)
		assert.True(t, ok)
	}

	// Asking for more than the catalog holds clamps to the catalog size.
	assert.Len(t, cat.Sample(10, rng), cat.Len())
}

func TestResolveQueryExplicitWins(t *testing.T) {
	cat := testCatalog()
	rng := rand.New(rand.NewSource(1))

	assert.Equal(t, "synthwave 80s", cat.ResolveQuery("synthwave 80s", "rock", rng))
}

func TestResolveQueryWinningGenre(t *testing.T) {
	cat := testCatalog()
	rng := rand.New(rand.NewSource(1))

	// pop has no subgenres, so the genre's own term is used.
	assert.Equal(t, "pop hits", cat.ResolveQuery(RandomQuery, "pop", rng))

	// rock resolves to one of its subgenre terms.
	got := cat.ResolveQuery(RandomQuery, "rock", rng)
	assert.Contains(t, []string{"classic rock 70s", "punk rock"}, got)
}

func TestResolveQueryUnknownWinnerFallsThrough(t *testing.T) {
	cat := testCatalog()
	rng := rand.New(rand.NewSource(1))

	got := cat.ResolveQuery(RandomQuery, "polka", rng)
	assert.NotEmpty(t, got)
	assert.NotEqual(t, RandomQuery, got)
}

func TestResolveQueryEmptyCatalogUsesFallback(t *testing.T) {
	cat := FromMap(nil)
	rng := rand.New(rand.NewSource(1))

	got := cat.ResolveQuery(RandomQuery, "", rng)
	assert.Contains(t, fallbackQueries, got)
}

func TestStoreReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genres.yaml")
	require.NoError(t, os.WriteFile(path, []byte("genres:\n  rock:\n    name: Rock\n"), 0o644))

	store := NewStore(path)
	assert.Equal(t, 1, store.Catalog().Len())

	require.NoError(t, os.WriteFile(path, []byte("genres:\n  rock:\n    name: Rock\n  pop:\n    name: Pop\n"), 0o644))
	require.NoError(t, store.Reload())
	assert.Equal(t, 2, store.Catalog().Len())
}

func TestStoreKeepsSnapshotOnBadReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genres.yaml")
	require.NoError(t, os.WriteFile(path, []byte("genres:\n  rock:\n    name: Rock\n"), 0o644))

	store := NewStore(path)
	require.NoError(t, os.WriteFile(path, []byte("genres: [broken"), 0o644))

	assert.Error(t, store.Reload())
	assert.Equal(t, 1, store.Catalog().Len())
}
