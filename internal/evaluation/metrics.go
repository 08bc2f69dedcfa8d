package evaluation

import "math"

// RecallAtK is the fraction of relevant ids found in the top k retrieved.
// Returns 0.0 if relevant is empty.
func RecallAtK(relevant, retrieved []string, k int) float64 {
	if len(relevant) == 0 {
		return 0.0
	}

	set := idSet(relevant)
	found := 0
	for _, id := range topK(retrieved, k) {
		if _, ok := set[id]; ok {
			found++
			delete(set, id)
		}
	}
	return float64(found) / float64(len(relevant))
}

// MRRAtK is the reciprocal rank of the first relevant id in the top k,
// or 0.0 when none appears.
func MRRAtK(relevant, retrieved []string, k int) float64 {
	if len(relevant) == 0 {
		return 0.0
	}

	set := idSet(relevant)
	for i, id := range topK(retrieved, k) {
		if _, ok := set[id]; ok {
			return 1.0 / float64(i+1)
		}
	}
	return 0.0
}

// NDCGAtK is normalized discounted cumulative gain with binary relevance.
// Relevant ids listed earlier are not weighted higher.
func NDCGAtK(relevant, retrieved []string, k int) float64 {
	if len(relevant) == 0 || k <= 0 {
		return 0.0
	}

	set := idSet(relevant)
	dcg := 0.0
	for i, id := range topK(retrieved, k) {
		if _, ok := set[id]; ok {
			dcg += 1.0 / math.Log2(float64(i+2))
			delete(set, id)
		}
	}

	ideal := 0.0
	for i := 0; i < len(relevant) && i < k; i++ {
		ideal += 1.0 / math.Log2(float64(i+2))
	}
	return dcg / ideal
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func topK(ids []string, k int) []string {
	if k < 0 {
		k = 0
	}
	if k < len(ids) {
		return ids[:k]
	}
	return ids
}
