package search

import (
	"strings"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
	"github.com/zatekoja/propertysearch/backend/pkg/utils"
)

// documentFields projects a search document onto the indexed fields. Text is
// folded here so every backend matches folded query tokens.
func documentFields(doc *entities.SearchDocument) map[string]interface{} {
	fields := map[string]interface{}{
		providers.TextFieldName: utils.FoldText(strings.Join(doc.Names(), " ")),
		providers.TextFieldCity: utils.FoldText(doc.City),
		"property_type":         strings.ToLower(doc.PropertyType),
		"star_rating":           doc.StarRating,
		"rating_average":        doc.RatingAverage,
		"updated_at":            doc.UpdatedAt.Unix(),
	}
	for lang, text := range doc.Description {
		if folded := utils.FoldText(text); folded != "" {
			fields[providers.DescriptionField(lang)] = folded
		}
	}
	return fields
}

// foldTokens folds query tokens and drops empties
func foldTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if folded := utils.FoldText(tok); folded != "" {
			out = append(out, folded)
		}
	}
	return out
}
