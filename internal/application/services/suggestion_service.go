package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/pkg/utils"
)

const maxGramRunes = 20

type suggestionEntry struct {
	text       string
	folded     string
	compact    string
	tokens     []string
	kind       entities.SuggestionKind
	propertyID string
	city       string
	location   *entities.GeoPoint
	boost      float64
}

// suggestionIndex is an edge n-gram index built from one document generation
type suggestionIndex struct {
	generation uint64
	entries    []suggestionEntry
	grams      map[string][]int
}

func buildSuggestionIndex(snapshot *DocumentSnapshot) *suggestionIndex {
	idx := &suggestionIndex{
		generation: snapshot.Generation,
		grams:      make(map[string][]int),
	}

	cities := make(map[string]bool)
	for _, doc := range snapshot.All() {
		if key := utils.CompactKey(doc.City); key != "" && !cities[key] {
			cities[key] = true
			idx.add(suggestionEntry{
				text: doc.City,
				kind: entities.SuggestionKindCity,
				city: key,
			})
		}
		for _, name := range doc.Names() {
			idx.add(suggestionEntry{
				text:       name,
				kind:       entities.SuggestionKindProperty,
				propertyID: doc.ID,
				city:       utils.CompactKey(doc.City),
				location:   doc.Location,
				boost:      doc.Boost.PopularityScore,
			})
		}
	}
	return idx
}

func (idx *suggestionIndex) add(e suggestionEntry) {
	e.folded = utils.FoldText(e.text)
	e.tokens = utils.Tokenize(e.folded)
	e.compact = strings.Join(e.tokens, "")
	if len(e.tokens) == 0 {
		return
	}

	pos := len(idx.entries)
	idx.entries = append(idx.entries, e)

	seen := make(map[string]struct{})
	for _, source := range append([]string{e.folded, e.compact}, e.tokens...) {
		for _, gram := range utils.EdgeNGrams(source, 1, maxGramRunes) {
			if _, ok := seen[gram]; ok {
				continue
			}
			seen[gram] = struct{}{}
			idx.grams[gram] = append(idx.grams[gram], pos)
		}
	}
}

// candidates returns entries whose folded text or tokens start with the prefix
// or with every query token
func (idx *suggestionIndex) candidates(req *entities.SuggestRequest) []int {
	seen := make(map[int]struct{})
	var out []int
	collect := func(positions []int) {
		for _, p := range positions {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}

	collect(idx.grams[truncateRunes(req.Prefix, maxGramRunes)])
	collect(idx.grams[truncateRunes(strings.Join(req.Tokens, ""), maxGramRunes)])
	for _, tok := range req.Tokens {
		collect(idx.grams[truncateRunes(tok, maxGramRunes)])
	}
	return out
}

func matchQuality(e *suggestionEntry, req *entities.SuggestRequest) (int, bool) {
	query := strings.Join(req.Tokens, " ")
	compact := strings.Join(req.Tokens, "")
	switch {
	case e.folded == req.Prefix || (query != "" && (strings.Join(e.tokens, " ") == query || e.compact == compact)):
		return entities.MatchQualityExact, true
	case query != "" && strings.HasPrefix(strings.Join(e.tokens, " "), query):
		return entities.MatchQualityPhrasePrefix, true
	case allTokensPrefixed(e.tokens, req.Tokens) || (compact != "" && strings.HasPrefix(e.compact, compact)):
		return entities.MatchQualityTokenPrefix, true
	case strings.Contains(e.folded, req.Prefix):
		return entities.MatchQualitySubstring, true
	}
	return 0, false
}

func allTokensPrefixed(entryTokens, queryTokens []string) bool {
	if len(queryTokens) == 0 {
		return false
	}
	for _, q := range queryTokens {
		found := false
		for _, t := range entryTokens {
			if strings.HasPrefix(t, q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SuggestionService serves autocomplete from an index rebuilt per document generation
type SuggestionService struct {
	docs       *DocumentStore
	popularity *PopularityStore
	layer      *CacheLayer

	mu    sync.Mutex
	index *suggestionIndex
}

// NewSuggestionService creates a new suggestion service
func NewSuggestionService(docs *DocumentStore, popularity *PopularityStore, layer *CacheLayer) *SuggestionService {
	return &SuggestionService{docs: docs, popularity: popularity, layer: layer}
}

// SuggestionList is a suggest response
type SuggestionList struct {
	Suggestions []entities.Suggestion `json:"suggestions"`
	Meta        entities.ResponseMeta `json:"meta"`
}

// Suggest returns at most req.Limit suggestions with unique text
func (s *SuggestionService) Suggest(ctx context.Context, req *entities.SuggestRequest) (*SuggestionList, error) {
	start := time.Now()
	if req.Prefix == "" {
		return &SuggestionList{
			Suggestions: []entities.Suggestion{},
			Meta:        entities.ResponseMeta{Cache: entities.CacheStatusBypass},
		}, nil
	}

	suggestions, meta, err := fetchCached(ctx, s.layer, cacheRequest[[]entities.Suggestion]{
		tier:       TierSuggestions,
		hash:       req.CacheKey(),
		generation: s.popularity.Current().Generation,
		compute: func(ctx context.Context) ([]entities.Suggestion, []string, error) {
			return s.compute(req), nil, nil
		},
		tags: func(list []entities.Suggestion) []string {
			ids := make([]string, 0, len(list))
			for _, sg := range list {
				if sg.PropertyID != "" {
					ids = append(ids, sg.PropertyID)
				}
			}
			return ids
		},
		empty: func() []entities.Suggestion { return []entities.Suggestion{} },
	})
	if err != nil {
		return nil, err
	}
	if suggestions == nil {
		suggestions = []entities.Suggestion{}
	}

	meta.LatencyMs = time.Since(start).Milliseconds()
	return &SuggestionList{Suggestions: suggestions, Meta: meta}, nil
}

func (s *SuggestionService) currentIndex() *suggestionIndex {
	snapshot := s.docs.Current()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil || s.index.generation != snapshot.Generation {
		s.index = buildSuggestionIndex(snapshot)
	}
	return s.index
}

func (s *SuggestionService) compute(req *entities.SuggestRequest) []entities.Suggestion {
	if req.Limit <= 0 {
		return []entities.Suggestion{}
	}
	idx := s.currentIndex()
	popularity := s.popularity.Current()

	var positions []int
	if !req.Literal {
		positions = idx.candidates(req)
	}
	// literal substring fallback
	if len(positions) == 0 {
		positions = make([]int, len(idx.entries))
		for i := range idx.entries {
			positions[i] = i
		}
	}

	matches := make([]entities.Suggestion, 0, len(positions))
	for _, pos := range positions {
		e := &idx.entries[pos]
		quality, ok := matchQuality(e, req)
		if !ok {
			continue
		}

		sg := entities.Suggestion{
			Text:       e.text,
			Kind:       e.kind,
			PropertyID: e.propertyID,
			City:       e.city,
			Quality:    quality,
			Popularity: e.boost,
		}
		switch e.kind {
		case entities.SuggestionKindCity:
			if score, ok := popularity.DestinationScore(e.city); ok {
				sg.Popularity = score
			}
		case entities.SuggestionKindProperty:
			if score, ok := popularity.PropertyScore(e.propertyID); ok {
				sg.Popularity = score
			}
			if req.GeoHint != nil && e.location.Valid() {
				d := round(entities.DistanceKm(*req.GeoHint, *e.location), 3)
				sg.DistanceKm = &d
			}
		}
		matches = append(matches, sg)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Quality != b.Quality {
			return a.Quality > b.Quality
		}
		if a.Popularity != b.Popularity {
			return a.Popularity > b.Popularity
		}
		if req.GeoHint != nil && (a.DistanceKm != nil || b.DistanceKm != nil) {
			if a.DistanceKm == nil || b.DistanceKm == nil {
				return a.DistanceKm != nil
			}
			if *a.DistanceKm != *b.DistanceKm {
				return *a.DistanceKm < *b.DistanceKm
			}
		}
		if a.Text != b.Text {
			return a.Text < b.Text
		}
		return a.Kind < b.Kind
	})

	out := make([]entities.Suggestion, 0, req.Limit)
	seen := make(map[string]struct{})
	for _, sg := range matches {
		key := utils.FoldText(sg.Text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, sg)
		if len(out) == req.Limit {
			break
		}
	}
	return out
}
