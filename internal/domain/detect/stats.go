package detect

import (
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultBuckets is the number of hash buckets used by LexicalEntropy.
const DefaultBuckets = 10_000

// Burstiness returns the variance-to-mean ratio of sentence lengths, where
// sentences are the non-empty pieces of text split on '.' and length is the
// number of whitespace-separated words. A piece made only of spaces still
// counts, with length zero. Returns 0 when there are no sentences or the
// mean length is 0.
func Burstiness(text string) float64 {
	var lengths []float64
	for _, s := range strings.Split(text, ".") {
		if s == "" {
			continue
		}
		lengths = append(lengths, float64(len(strings.Fields(s))))
	}
	if len(lengths) == 0 {
		return 0
	}

	var sum float64
	for _, l := range lengths {
		sum += l
	}
	mean := sum / float64(len(lengths))
	if mean <= 0 {
		return 0
	}

	var sq float64
	for _, l := range lengths {
		d := l - mean
		sq += d * d
	}
	variance := sq / float64(len(lengths))
	return variance / mean
}

// LexicalEntropy hashes every whitespace-separated word into one of buckets
// bins and returns the Shannon entropy (natural log) of the bin counts.
// Collisions are tolerated; only the bucket count sets the scale.
func LexicalEntropy(text string, buckets int) float64 {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	counts := make(map[uint64]int, len(words))
	for _, w := range words {
		counts[xxhash.Sum64String(w)%uint64(buckets)]++
	}

	total := float64(len(words))
	var h float64
	for _, c := range counts {
		p := float64(c) / total
		h -= p * math.Log(p)
	}
	return h
}
