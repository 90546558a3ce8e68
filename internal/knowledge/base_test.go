package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbedded(t *testing.T) {
	base, err := LoadEmbedded()
	require.NoError(t, err)

	domains := map[string]int{}
	for _, r := range base.Records() {
		domains[r.Domain()]++
	}
	assert.Equal(t, 5, domains[DomainGeneral])
	assert.Equal(t, 4, domains[DomainScience])
	assert.Equal(t, 3, domains[DomainHistory])
	assert.Equal(t, 3, domains[DomainTechnology])
	assert.Equal(t, 4, domains[DomainCulture])
}

func TestBaseLookup(t *testing.T) {
	base, err := LoadEmbedded()
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name     string
		query    string
		contains string
	}{
		{"general fact", "What is AI?", "Artificial Intelligence (AI) is the simulation"},
		{"fact wins over topic", "what is python", "high-level, interpreted programming language"},
		{"technology topic", "Who created Python?", "Python was created in 1991 by Guido van Rossum."},
		{"science topic", "explain einstein theories", "Einstein theories (physics): General relativity: Gravity is"},
		{"history topic", "tell me about rome", "753 BCE - 476 CE"},
		{"underscored topic", "the industrial revolution", "Steam engine, Factory system, Mass production"},
		{"culture topic", "Jazz", "Louis Armstrong, Miles Davis, Duke Ellington"},
		{"science statements", "newton laws please", "Second law: Force equals mass times acceleration (F = ma)."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := base.Lookup(ctx, tt.query)
			require.NoError(t, err)
			assert.Contains(t, got, tt.contains)
		})
	}
}

func TestBaseLookupFailures(t *testing.T) {
	base, err := LoadEmbedded()
	require.NoError(t, err)

	_, err = base.Lookup(context.Background(), "Tell me about the Roman Empire")
	kind, ok := KindOf(err)
	require.True(t, ok, "expected a LookupError, got %v", err)
	assert.Equal(t, KindNotFound, kind)

	_, err = base.Lookup(context.Background(), "?!")
	kind, _ = KindOf(err)
	assert.Equal(t, KindMalformed, kind)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = base.Lookup(ctx, "jazz")
	kind, _ = KindOf(err)
	assert.Equal(t, KindTimeout, kind)
}

func TestBaseMatchesWholeWordsOnly(t *testing.T) {
	base := NewBase(TechnologyTopic{Category: "programming_languages", Topic: "go", Created: "2009"})

	_, err := base.Lookup(context.Background(), "good morning")
	assert.Error(t, err)

	got, err := base.Lookup(context.Background(), "tell me about go")
	require.NoError(t, err)
	assert.Equal(t, "Go was created in 2009.", got)
}

func TestBaseLongestNameWins(t *testing.T) {
	base := NewBase(
		TechnologyTopic{Category: "fields", Topic: "learning"},
		TechnologyTopic{Category: "artificial_intelligence", Topic: "machine_learning", Types: []string{"Supervised"}},
	)
	got, err := base.Lookup(context.Background(), "what about machine learning")
	require.NoError(t, err)
	assert.Equal(t, "Machine learning (artificial intelligence). Types: Supervised.", got)
}

func TestLoadDirSkipsMissingAndInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, GeneralFile),
		[]byte(`{"general_knowledge":{"what_is_go":"Go is a statically typed language."}}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, CultureFile), []byte(`{not json`), 0644))

	assert.True(t, DirHasDatabases(dir))

	base, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, base.Len())

	got, err := base.Lookup(context.Background(), "What is Go?")
	require.NoError(t, err)
	assert.Equal(t, "Go is a statically typed language.", got)
}

func TestLoadDirRejectsMissingDirectory(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestMergeOverridesByName(t *testing.T) {
	embedded, err := LoadEmbedded()
	require.NoError(t, err)
	override := NewBase(Fact{Key: "what_is_ai", Answer: "AI is whatever the override says."})

	merged := embedded.Merge(override)
	assert.Equal(t, embedded.Len(), merged.Len())

	got, err := merged.Lookup(context.Background(), "what is ai")
	require.NoError(t, err)
	assert.Equal(t, "AI is whatever the override says.", got)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "what s up", normalize("  What's   UP?! "))
	assert.Equal(t, "", normalize("..."))
}
