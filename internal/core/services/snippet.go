package services

import (
	"strings"
	"unicode"

	"github.com/bbalet/stopwords"
	"github.com/jdkato/prose/v2"
)

// snippetMaxRunes bounds the length of a search snippet.
const snippetMaxRunes = 200

// queryTerms returns the distinct content words of query.
func queryTerms(query, language string) map[string]bool {
	cleaned := stopwords.CleanString(query, language, false)
	terms := make(map[string]bool)
	for _, w := range words(cleaned) {
		terms[w] = true
	}
	// A query made only of stop words still matches on its words.
	if len(terms) == 0 {
		for _, w := range words(query) {
			terms[w] = true
		}
	}
	return terms
}

// bestSentence returns the sentence of text sharing the most terms with
// the query, the first one on ties, cut to snippetMaxRunes.
func bestSentence(text string, terms map[string]bool) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return truncateRunes(strings.Join(strings.Fields(text), " "), snippetMaxRunes)
	}

	best, bestScore := sentences[0], 0
	for _, s := range sentences {
		score := 0
		seen := make(map[string]bool)
		for _, w := range words(s) {
			if terms[w] && !seen[w] {
				seen[w] = true
				score++
			}
		}
		if score > bestScore {
			best, bestScore = s, score
		}
	}
	return truncateRunes(strings.Join(strings.Fields(best), " "), snippetMaxRunes)
}

func splitSentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil
	}
	var out []string
	for _, s := range doc.Sentences() {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// truncateRunes cuts s to at most n runes, ending with an ellipsis when cut.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
