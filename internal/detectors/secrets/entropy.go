package secrets

import "math"

// entropy returns the Shannon entropy of s in bits per character.
func entropy(s string) float64 {
	if s == "" {
		return 0
	}
	count := map[rune]int{}
	n := 0
	for _, r := range s {
		count[r]++
		n++
	}
	H := 0.0
	for _, c := range count {
		p := float64(c) / float64(n)
		H += -p * math.Log2(p)
	}
	return H
}
