package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	a := Default()
	got := a.Tokenize("The running dogs, and the Cats' jumping!")
	require.Equal(t, []string{"run", "dog", "cat", "jump"}, got)
}

func TestTokenizeWithoutStemming(t *testing.T) {
	a := New([]string{"of"}, false)
	require.Equal(t, []string{"effects", "vitamin", "d3"}, a.Tokenize("Effects of vitamin-D3"))
}

func TestTokenizeEmpty(t *testing.T) {
	require.Empty(t, Default().Tokenize(" ,.;"))
	require.Empty(t, Default().Tokenize("the and of"))
}

func TestLoadStopWords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stop.txt")
	require.NoError(t, os.WriteFile(path, []byte("# list\nFoo\n\n bar \n"), 0o644))
	words, err := LoadStopWords(path)
	require.NoError(t, err)
	require.Equal(t, []string{"Foo", "bar"}, words)

	a := New(words, false)
	require.True(t, a.IsStopWord("foo"))
	require.Equal(t, []string{"baz"}, a.Tokenize("foo bar baz"))

	_, err = LoadStopWords(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
