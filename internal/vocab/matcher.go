// Package vocab detects which of a session's learned vocabulary words the
// learner actually used in a transcript, tolerating the mangling that speech
// recognition inflicts on a beginner's pronunciation.
//
// Detection proceeds in two stages per transcript token:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the token and for each vocabulary word. Overlapping codes make the word
//     a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the word with the
//     highest Jaro-Winkler similarity (case-insensitive) wins, provided its
//     score clears the phonetic threshold. When no phonetic candidate exists,
//     a secondary pass accepts a pure Jaro-Winkler match at a stricter fuzzy
//     threshold.
//
// Multi-word vocabulary ("pomme de terre") is supported: the matcher compares
// transcript n-grams against the full phrase and its individual tokens.
package vocab

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched word to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher matches transcript fragments against vocabulary words. All methods
// are safe for concurrent use; the Matcher is read-only after construction.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match finds the vocabulary word most phonetically similar to fragment.
// When matched is false, word is empty and confidence is 0.
func (m *Matcher) Match(fragment string, words []string) (word string, confidence float64, matched bool) {
	if len(words) == 0 || strings.TrimSpace(fragment) == "" {
		return "", 0, false
	}

	fragLower := strings.ToLower(strings.TrimSpace(fragment))
	fragTokens := strings.Fields(fragLower)
	fragCodes := codesForTokens(fragTokens)

	type candidate struct {
		word     string
		score    float64
		phonetic bool
	}

	var best candidate

	for _, w := range words {
		wLower := strings.ToLower(strings.TrimSpace(w))
		if wLower == "" {
			continue
		}
		wTokens := strings.Fields(wLower)

		wCodes := codesForTokens(wTokens)
		phoneticMatch := codesOverlap(fragCodes, wCodes)

		jwScore := bestJWScore(fragTokens, wTokens, fragLower, wLower)

		if phoneticMatch {
			if jwScore >= m.phoneticThreshold {
				if !best.phonetic || jwScore > best.score {
					best = candidate{word: w, score: jwScore, phonetic: true}
				}
			}
		} else if !best.phonetic {
			if jwScore >= m.fuzzyThreshold && jwScore > best.score {
				best = candidate{word: w, score: jwScore, phonetic: false}
			}
		}
	}

	if best.word != "" {
		return best.word, best.score, true
	}
	return "", 0, false
}

// DetectPracticed scans a transcript and returns the vocabulary words the
// learner used, each at most once, in first-use order. Transcript unigrams
// and bigrams are both tested so multi-word vocabulary is found.
func (m *Matcher) DetectPracticed(transcript string, words []string) []string {
	tokens := tokenize(transcript)
	if len(tokens) == 0 || len(words) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(words))
	var practiced []string

	consider := func(fragment string) {
		word, _, ok := m.Match(fragment, words)
		if ok && !seen[word] {
			seen[word] = true
			practiced = append(practiced, word)
		}
	}

	for i, tok := range tokens {
		consider(tok)
		if i+1 < len(tokens) {
			consider(tok + " " + tokens[i+1])
		}
	}
	return practiced
}

// tokenize lowercases and splits a transcript, trimming punctuation that
// smart formatting attaches to words.
func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !isWordRune(r)
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func isWordRune(r rune) bool {
	if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
		return true
	}
	// Accented letters common in French transcripts.
	return r > 127 || r == '\'' || r == '-'
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the
// fragment and the vocabulary word using three strategies: full strings,
// space-stripped strings, and best pairwise token score.
func bestJWScore(fragTokens, wordTokens []string, fragFull, wordFull string) float64 {
	score := matchr.JaroWinkler(fragFull, wordFull, false)

	if len(fragTokens) > 1 || len(wordTokens) > 1 {
		concat1 := strings.Join(fragTokens, "")
		concat2 := strings.Join(wordTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	for _, ft := range fragTokens {
		for _, wt := range wordTokens {
			if s := matchr.JaroWinkler(ft, wt, false); s > score {
				score = s
			}
		}
	}

	return score
}
