// Package analysis turns free text into index terms: lower-casing,
// splitting on non-alphanumeric boundaries, stop-word removal and Snowball
// English stemming. It mirrors the preprocessing applied to the corpus so
// that ad-hoc queries land on the same vocabulary.
package analysis

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

var defaultStopWords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an",
	"and", "any", "are", "as", "at", "be", "because", "been", "before",
	"being", "below", "between", "both", "but", "by", "can", "could", "did",
	"do", "does", "doing", "down", "during", "each", "few", "for", "from",
	"further", "had", "has", "have", "having", "he", "her", "here", "hers",
	"herself", "him", "himself", "his", "how", "i", "if", "in", "into", "is",
	"it", "its", "itself", "just", "me", "more", "most", "my", "myself", "no",
	"nor", "not", "now", "of", "off", "on", "once", "only", "or", "other",
	"our", "ours", "ourselves", "out", "over", "own", "same", "she", "should",
	"so", "some", "such", "than", "that", "the", "their", "theirs", "them",
	"themselves", "then", "there", "these", "they", "this", "those",
	"through", "to", "too", "under", "until", "up", "very", "was", "we",
	"were", "what", "when", "where", "which", "while", "who", "whom", "why",
	"will", "with", "would", "you", "your", "yours", "yourself", "yourselves",
}

// Analyzer holds a stop-word set and the stemming switch.
type Analyzer struct {
	stopWords map[string]struct{}
	stem      bool
}

// New returns an analyzer. A nil stopWords slice selects the built-in
// English list.
func New(stopWords []string, stem bool) *Analyzer {
	if stopWords == nil {
		stopWords = defaultStopWords
	}
	set := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return &Analyzer{stopWords: set, stem: stem}
}

// Default is the built-in English stop list with stemming on.
func Default() *Analyzer {
	return New(nil, true)
}

// LoadStopWords reads one stop word per line. Blank lines and lines
// starting with # are skipped.
func LoadStopWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening stop-word list: %w", err)
	}
	defer f.Close()
	return readStopWords(f)
}

func readStopWords(r io.Reader) ([]string, error) {
	var words []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading stop-word list: %w", err)
	}
	return words, nil
}

// Tokenize returns the index terms of text in order of appearance.
func (a *Analyzer) Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if _, isStop := a.stopWords[word]; isStop {
			continue
		}
		if a.stem {
			word = english.Stem(word, true)
		}
		if word == "" {
			continue
		}
		terms = append(terms, word)
	}
	return terms
}

// IsStopWord reports whether word is removed by Tokenize.
func (a *Analyzer) IsStopWord(word string) bool {
	_, ok := a.stopWords[strings.ToLower(word)]
	return ok
}
