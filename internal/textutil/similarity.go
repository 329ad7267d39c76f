package textutil

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil or has zero norm.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// Coverage splits the top limit terms of target into those present in and
// missing from source, and returns the covered fraction.
func Coverage(source, target *Fingerprint, limit int) (ratio float64, matched, missing []string) {
	terms := target.TopTerms(limit)
	if len(terms) == 0 {
		return 0, nil, nil
	}
	for _, term := range terms {
		if source.Has(term) {
			matched = append(matched, term)
		} else {
			missing = append(missing, term)
		}
	}
	return float64(len(matched)) / float64(len(terms)), matched, missing
}
