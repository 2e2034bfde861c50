package vecstore

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// EmbedFunc converts text into an embedding of the requested dimension.
// Implementations must be deterministic for a given input.
type EmbedFunc func(text string, dimension int) []float64

// HashingEmbed is the default embedding function: a hashing bag-of-words
// vector normalized to unit length. It makes no semantic-quality claims and
// exists so the store works without a configured embedding model.
func HashingEmbed(text string, dimension int) []float64 {
	vector := make([]float64, dimension)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vector
	}
	for _, token := range tokens {
		h := fnv.New64a()
		h.Write([]byte(token))
		vector[h.Sum64()%uint64(dimension)] += 1.0
	}
	return normalize(vector)
}

// tokenize splits text into lowercase word tokens.
func tokenize(text string) []string {
	var tokens []string
	var token strings.Builder

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			token.WriteRune(r)
		} else if token.Len() > 0 {
			tokens = append(tokens, token.String())
			token.Reset()
		}
	}
	if token.Len() > 0 {
		tokens = append(tokens, token.String())
	}

	return tokens
}
