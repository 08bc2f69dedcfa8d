package evaluation

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadGoldenQueries reads a golden query set. Unknown fields are rejected so a
// misspelled key fails loudly instead of silently dropping a label.
func LoadGoldenQueries(path string) ([]GoldenQuery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open golden queries %s: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()

	var queries []GoldenQuery
	if err := dec.Decode(&queries); err != nil {
		return nil, fmt.Errorf("failed to parse golden queries %s: %w", path, err)
	}
	return queries, nil
}

var validDifficulties = map[string]bool{
	"easy":   true,
	"medium": true,
	"hard":   true,
}

// ValidateGoldenQueries checks that every golden query can be run and scored.
func ValidateGoldenQueries(queries []GoldenQuery) error {
	seen := make(map[string]struct{}, len(queries))

	for i, q := range queries {
		if q.ID == "" {
			return fmt.Errorf("query at index %d: missing id", i)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("query at index %d: duplicate id %q", i, q.ID)
		}
		seen[q.ID] = struct{}{}

		if !q.Kind.IsValid() {
			return fmt.Errorf("query %q: invalid kind %q", q.ID, q.Kind)
		}
		if q.Kind == KindNearby {
			if q.Lat == nil || q.Lon == nil {
				return fmt.Errorf("query %q: nearby queries need lat and lon", q.ID)
			}
		} else if q.Query == "" && len(q.Cities) == 0 {
			return fmt.Errorf("query %q: missing query text", q.ID)
		}
		if len(q.ExpectedIDs) == 0 {
			return fmt.Errorf("query %q: no expected_ids", q.ID)
		}
		if !validDifficulties[q.Difficulty] {
			return fmt.Errorf("query %q: invalid difficulty %q (must be easy/medium/hard)", q.ID, q.Difficulty)
		}
	}

	return nil
}
