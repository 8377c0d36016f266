package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFactSimilarityIgnoresCaseAndPunctuation(t *testing.T) {
	assert.Equal(t, 1.0, factSimilarity("The user's name is Ana.", "the user's name is ana"))
	assert.Equal(t, 1.0, factSimilarity("Likes coffee, tea.", "likes coffee tea"))
}

func TestFactSimilarityIgnoresWordOrder(t *testing.T) {
	assert.Equal(t, 1.0, factSimilarity("prefers tea over coffee", "over coffee prefers tea"))
}

func TestFactSimilarityPartialOverlap(t *testing.T) {
	a := "one two three four five six seven eight nine ten"
	b := "one two three four five six seven eight nine"

	assert.InDelta(t, 0.9, factSimilarity(a, b), 1e-9)
	assert.True(t, isDuplicateFact(a, b))
}

func TestFactSimilarityBelowThreshold(t *testing.T) {
	assert.False(t, isDuplicateFact("The user's name is Ana", "The user lives in Lisbon"))
	assert.False(t, isDuplicateFact("Likes jazz", "Likes rock"))
}

func TestFactSimilarityEmptyFacts(t *testing.T) {
	assert.Equal(t, 1.0, factSimilarity("", "  "))
	assert.Equal(t, 0.0, factSimilarity("", "has words"))
	assert.Equal(t, 0.0, factSimilarity("has words", ""))
}

func TestNormalizeFactDeduplicatesNothing(t *testing.T) {
	// Repeated words still count once through the unique-set comparison.
	assert.Equal(t, 1.0, factSimilarity("very very nice", "very nice"))
}
