package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/observability"
	"github.com/zatekoja/propertysearch/backend/pkg/config"
	"github.com/zatekoja/propertysearch/backend/pkg/utils"
)

// TextScores is the text stage output. A nil Relevance map means no text query
// was given and every document is a candidate.
type TextScores struct {
	Relevance map[string]float64
	Exact     map[string]bool
	Fallback  string
}

// Active reports whether text matching restricted the candidate set
func (t *TextScores) Active() bool {
	return t != nil && t.Relevance != nil
}

type boostedField struct {
	name  string
	boost float64
}

// TextRanker scores documents against the query with best-fields semantics
type TextRanker struct {
	index          providers.TextIndex
	ranking        config.RankingConfig
	candidateLimit int
	timeout        time.Duration
}

// NewTextRanker creates a new text ranker
func NewTextRanker(index providers.TextIndex, ranking config.RankingConfig, candidateLimit int, timeout time.Duration) *TextRanker {
	return &TextRanker{
		index:          index,
		ranking:        ranking,
		candidateLimit: candidateLimit,
		timeout:        timeout,
	}
}

func (r *TextRanker) fields(lang string, snapshot *DocumentSnapshot) []boostedField {
	descLang := ContentLanguage(lang)
	if !snapshot.HasDescriptionLanguage(descLang) {
		descLang = entities.DefaultLanguage
	}
	return []boostedField{
		{name: providers.TextFieldName, boost: r.ranking.NameBoost},
		{name: providers.TextFieldCity, boost: r.ranking.CityBoost},
		{name: providers.DescriptionField(descLang), boost: r.ranking.DescriptionBoost},
	}
}

// Rank returns relevance in [0, 1] per matching document, plus the exact name bonus
func (r *TextRanker) Rank(ctx context.Context, req *entities.SearchRequest, snapshot *DocumentSnapshot) *TextScores {
	if !req.HasText() {
		return &TextScores{}
	}

	fields := r.fields(req.Language, snapshot)

	scores, err := r.searchIndex(ctx, req.Tokens, fields)
	fallback := ""
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("query", req.Query).Msg("text index unavailable, matching locally")
		scores = r.matchLocally(req.Tokens, fields, snapshot)
		fallback = entities.FallbackTextLocalMatch
	}

	result := &TextScores{
		Relevance: make(map[string]float64, len(scores)),
		Exact:     make(map[string]bool),
		Fallback:  fallback,
	}
	for id, score := range scores {
		doc, ok := snapshot.Get(id)
		if !ok {
			continue
		}
		if isExactName(req.Query, doc) {
			result.Exact[id] = true
			score += r.ranking.ExactNameBoost
		}
		result.Relevance[id] = score
	}
	return result
}

func (r *TextRanker) searchIndex(ctx context.Context, tokens []string, fields []boostedField) (map[string]float64, error) {
	if r.index == nil {
		return nil, fmt.Errorf("no text index configured")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	perField := make([]map[string]float64, len(fields))
	g, gctx := errgroup.WithContext(ctx)
	for i, field := range fields {
		g.Go(func() error {
			hits, err := r.index.SearchField(gctx, providers.FieldQuery{
				Field:  field.name,
				Tokens: tokens,
				Limit:  r.candidateLimit,
			})
			if err != nil {
				return fmt.Errorf("field %s: %w", field.name, err)
			}
			perField[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return combineBestFields(perField, fields), nil
}

// combineBestFields normalizes each field by its max score and keeps the best
// boosted field per document, scaled into [0, 1]
func combineBestFields(perField []map[string]float64, fields []boostedField) map[string]float64 {
	maxBoost := 0.0
	for _, f := range fields {
		if f.boost > maxBoost {
			maxBoost = f.boost
		}
	}
	if maxBoost <= 0 {
		maxBoost = 1
	}

	out := make(map[string]float64)
	for i, hits := range perField {
		fieldMax := 0.0
		for _, s := range hits {
			if s > fieldMax {
				fieldMax = s
			}
		}
		if fieldMax <= 0 {
			continue
		}
		for id, s := range hits {
			v := (s / fieldMax) * fields[i].boost / maxBoost
			if v > out[id] {
				out[id] = v
			}
		}
	}
	return out
}

// matchLocally scores each field by the share of query tokens it contains
func (r *TextRanker) matchLocally(tokens []string, fields []boostedField, snapshot *DocumentSnapshot) map[string]float64 {
	perField := make([]map[string]float64, len(fields))
	for i := range fields {
		perField[i] = make(map[string]float64)
	}

	for _, doc := range snapshot.All() {
		for i, field := range fields {
			text := localFieldText(doc, field.name)
			if text == "" {
				continue
			}
			matched := 0
			for _, tok := range tokens {
				if strings.Contains(text, tok) {
					matched++
				}
			}
			if matched > 0 {
				perField[i][doc.ID] = float64(matched) / float64(len(tokens))
			}
		}
	}
	return combineBestFields(perField, fields)
}

func localFieldText(doc *entities.SearchDocument, field string) string {
	switch field {
	case providers.TextFieldName:
		return utils.FoldText(strings.Join(doc.Names(), " "))
	case providers.TextFieldCity:
		return utils.FoldText(doc.City)
	default:
		lang := strings.TrimPrefix(field, providers.DescriptionField(""))
		return utils.FoldText(doc.Description[lang])
	}
}

func isExactName(query string, doc *entities.SearchDocument) bool {
	for _, name := range doc.Names() {
		if strings.Join(utils.FoldAndTokenize(name), " ") == query {
			return true
		}
	}
	return false
}
