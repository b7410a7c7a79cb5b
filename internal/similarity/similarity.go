// File: internal/similarity/similarity.go
package similarity

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// DefaultCutoff is the acceptance threshold used when a caller does not
// configure one. Matches below it are discarded.
const DefaultCutoff = 0.8

// Ratio computes a normalized similarity score between two strings in [0,1],
// where 1.0 means identical. It is pure and deterministic: identical inputs
// always produce identical scores, which the golden-output tests rely on.
func Ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

// BestMatch returns the single highest-scoring candidate whose similarity to
// reference is at least cutoff. Ties are broken by earliest position in the
// candidate slice, so the result is stable for a given input ordering.
// ok is false when candidates is empty or nothing reaches the cutoff.
func BestMatch(reference string, candidates []string, cutoff float64) (match string, score float64, ok bool) {
	idx, score, ok := BestMatchIndex(reference, candidates, cutoff)
	if !ok {
		return "", 0, false
	}
	return candidates[idx], score, true
}

// BestMatchIndex is BestMatch returning the position of the winning candidate
// instead of its value, for callers that score a transformed view of their
// candidates but need the original entry back.
func BestMatchIndex(reference string, candidates []string, cutoff float64) (idx int, score float64, ok bool) {
	return BestMatchIndexFunc(reference, candidates, cutoff, Ratio)
}

// cutoffEpsilon absorbs float rounding in the normalized ratio so the cutoff
// stays inclusive: a score of exactly 2/10 off a ten rune string must pass a
// 0.8 cutoff.
const cutoffEpsilon = 1e-9

// BestMatchIndexFunc is BestMatchIndex with a caller-supplied scoring
// function.
func BestMatchIndexFunc(reference string, candidates []string, cutoff float64, score func(a, b string) float64) (idx int, best float64, ok bool) {
	best = -1.0
	idx = -1
	for i, c := range candidates {
		s := score(reference, c)
		if s < cutoff-cutoffEpsilon {
			continue
		}
		// Strict comparison keeps the earliest candidate on equal scores.
		if s > best {
			best = s
			idx = i
			ok = true
		}
	}
	if !ok {
		return -1, 0, false
	}
	return idx, best, true
}

// PartialRatio scores the best alignment of the shorter string inside the
// longer one: the maximum Ratio over every window of the longer string with
// the shorter string's rune length. A very short reference would align
// perfectly inside almost anything, so when the shorter string is under half
// the longer's length the plain Ratio is returned instead.
func PartialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == len(long) || len(short)*2 < len(long) {
		return Ratio(a, b)
	}

	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		if s := Ratio(string(short), string(long[i:i+len(short)])); s > best {
			best = s
		}
	}
	return best
}

// Score is the matcher the healing strategies use: the plain Ratio lifted by
// the windowed PartialRatio, so an abbreviated reference ("submit-btn") still
// reaches its expansion ("submit-button") without loosening the cutoff.
func Score(a, b string) float64 {
	r := Ratio(a, b)
	if p := PartialRatio(a, b); p > r {
		return p
	}
	return r
}
