package assistant

import (
	"strings"

	"github.com/samber/lo"
)

// duplicateThreshold is the word-overlap ratio at or above which two facts
// are treated as the same statement.
const duplicateThreshold = 0.9

// normalizeFact lowercases a fact and strips sentence punctuation so that
// trivial rephrasings compare equal word by word.
func normalizeFact(text string) []string {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	return strings.Fields(cleaned)
}

// factSimilarity returns |A ∩ B| / max(|A|, |B|) over the normalized word
// sets of two facts. Two empty facts are identical; one empty fact matches
// nothing.
func factSimilarity(a, b string) float64 {
	wordsA := lo.Uniq(normalizeFact(a))
	wordsB := lo.Uniq(normalizeFact(b))

	if len(wordsA) == 0 && len(wordsB) == 0 {
		return 1
	}
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	overlap := len(lo.Intersect(wordsA, wordsB))
	return float64(overlap) / float64(max(len(wordsA), len(wordsB)))
}

func isDuplicateFact(a, b string) bool {
	return factSimilarity(a, b) >= duplicateThreshold
}
