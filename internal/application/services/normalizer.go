package services

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/pkg/config"
	apperrors "github.com/zatekoja/propertysearch/backend/pkg/errors"
	"github.com/zatekoja/propertysearch/backend/pkg/utils"
)

// LanguageDefault is recorded for languages without a dedicated tokenizer
const LanguageDefault = "default"

const maxQueryRunes = 200

var (
	currencyPattern    = regexp.MustCompile(`^[A-Za-z]{3}$`)
	supportedLanguages = map[string]struct{}{
		"vi": {}, "en": {}, "fr": {}, "de": {}, "es": {}, "id": {}, "th": {},
	}
)

// RawSearchParams holds request parameters exactly as received
type RawSearchParams struct {
	Query     string
	Language  string
	Page      string
	Size      string
	Sort      string
	MinPrice  string
	MaxPrice  string
	Currency  string
	Stars     string
	Amenities string
	Types     string
	MinRating string
	Cities    string
	Lat       string
	Lon       string
	Radius    string

	SessionID string
	UserID    string
}

// RawSuggestParams holds autocomplete parameters exactly as received
type RawSuggestParams struct {
	Query    string
	Language string
	Lat      string
	Lon      string
	Limit    string
}

// Normalizer turns raw parameters into canonical requests. Everything that can be
// clamped is clamped; only the currency code is rejected.
type Normalizer struct {
	cfg config.SearchConfig
}

// NewNormalizer creates a new normalizer
func NewNormalizer(cfg config.SearchConfig) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Normalize validates and canonicalizes a search request for the given class
func (n *Normalizer) Normalize(raw RawSearchParams, class entities.RequestClass) (*entities.SearchRequest, error) {
	query, tokens := normalizeQuery(raw.Query)

	req := &entities.SearchRequest{
		Class:     class,
		Query:     query,
		Tokens:    tokens,
		Language:  NormalizeLanguage(raw.Language),
		Page:      n.page(raw.Page),
		PageSize:  n.pageSize(raw.Size),
		Sort:      entities.ParseSortMode(raw.Sort),
		SessionID: raw.SessionID,
		UserID:    raw.UserID,
	}

	currency, err := n.currency(raw.Currency)
	if err != nil {
		return nil, err
	}
	req.Currency = currency

	filters := make(map[entities.FilterKind]entities.Filter)

	if f, ok := n.priceFilter(raw.MinPrice, raw.MaxPrice, currency); ok {
		filters[f.Kind()] = f
	}
	if stars := parseStars(raw.Stars); len(stars) > 0 {
		filters[entities.FilterKindStars] = entities.StarFilter{Stars: stars}
	}
	if ids := utils.DedupeSorted(splitList(raw.Amenities), false); len(ids) > 0 {
		filters[entities.FilterKindAmenities] = entities.AmenityFilter{AmenityIDs: ids}
	}
	if types := utils.DedupeSorted(splitList(raw.Types), false); len(types) > 0 {
		filters[entities.FilterKindPropertyTypes] = entities.PropertyTypeFilter{Types: types}
	}
	if rating, ok := parseFloat(raw.MinRating); ok {
		rating = round(clamp(rating, 0, 5), 2)
		if rating > 0 {
			filters[entities.FilterKindGuestRating] = entities.GuestRatingFilter{Min: rating}
		}
	}
	if cities := cityKeys(splitList(raw.Cities)); len(cities) > 0 {
		filters[entities.FilterKindCities] = entities.CityFilter{Cities: cities}
	}

	loc, hasLocation := n.locationFilter(raw.Lat, raw.Lon, raw.Radius)
	if hasLocation {
		filters[entities.FilterKindLocation] = loc
	} else if class == entities.RequestClassLocation {
		return nil, apperrors.NewValidationError("lat", "lat and lon are required for nearby search")
	}

	for _, kind := range entities.FilterKindOrder {
		if f, ok := filters[kind]; ok {
			req.Filters = append(req.Filters, f)
		}
	}

	switch {
	case req.Sort == entities.SortDistanceAsc && !hasLocation:
		req.Sort = entities.SortRelevance
	case strings.TrimSpace(raw.Sort) == "" && hasLocation && !req.HasText():
		req.Sort = entities.SortDistanceAsc
	}

	// facet counts do not depend on paging or order
	if class == entities.RequestClassFacets {
		req.Page = 0
		req.PageSize = 0
		req.Sort = entities.SortRelevance
	}

	return req, nil
}

// NormalizeSuggest canonicalizes an autocomplete request. It never fails.
func (n *Normalizer) NormalizeSuggest(raw RawSuggestParams) *entities.SuggestRequest {
	folded := utils.FoldText(truncateRunes(raw.Query, maxQueryRunes))
	lang := NormalizeLanguage(raw.Language)

	req := &entities.SuggestRequest{
		Prefix:   folded,
		Tokens:   utils.Tokenize(folded),
		Language: lang,
		Limit:    n.suggestLimit(raw.Limit),
		Literal:  lang == LanguageDefault || utils.HasSpecialCharacters(folded),
	}

	lat, latOK := parseFloat(raw.Lat)
	lon, lonOK := parseFloat(raw.Lon)
	if latOK && lonOK {
		req.GeoHint = &entities.GeoPoint{
			Latitude:  round(clamp(lat, -90, 90), 5),
			Longitude: round(clamp(lon, -180, 180), 5),
		}
	}
	return req
}

// NormalizeLanguage lowercases a language tag and maps unsupported ones to LanguageDefault.
// An empty tag means the default content language.
func NormalizeLanguage(raw string) string {
	lang := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if lang == "" {
		return entities.DefaultLanguage
	}
	if _, ok := supportedLanguages[lang]; ok {
		return lang
	}
	return LanguageDefault
}

// ContentLanguage maps a normalized language to the language used for localized fields
func ContentLanguage(lang string) string {
	if lang == LanguageDefault {
		return entities.DefaultLanguage
	}
	return lang
}

func normalizeQuery(raw string) (string, []string) {
	tokens := utils.FoldAndTokenize(truncateRunes(raw, maxQueryRunes))
	return strings.Join(tokens, " "), tokens
}

func (n *Normalizer) page(raw string) int {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 0 {
		return 0
	}
	if page > n.cfg.MaxPage {
		return n.cfg.MaxPage
	}
	return page
}

func (n *Normalizer) pageSize(raw string) int {
	size, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || size <= 0 {
		return n.cfg.DefaultPageSize
	}
	if size > n.cfg.MaxPageSize {
		return n.cfg.MaxPageSize
	}
	return size
}

func (n *Normalizer) suggestLimit(raw string) int {
	limit, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || limit <= 0 {
		limit = n.cfg.DefaultSuggestions
	}
	if limit > n.cfg.MaxSuggestions {
		return n.cfg.MaxSuggestions
	}
	return limit
}

func (n *Normalizer) currency(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return strings.ToUpper(n.cfg.DefaultCurrency), nil
	}
	if !currencyPattern.MatchString(raw) {
		return "", apperrors.NewValidationError("currency", "currency must be a three-letter ISO 4217 code")
	}
	return strings.ToUpper(raw), nil
}

func (n *Normalizer) priceFilter(rawMin, rawMax, currency string) (entities.PriceFilter, bool) {
	min, hasMin := parseFloat(rawMin)
	max, hasMax := parseFloat(rawMax)
	if !hasMin && !hasMax {
		return entities.PriceFilter{}, false
	}
	if !hasMin {
		min = 0
	}
	if !hasMax {
		max = math.Inf(1)
	}
	min = math.Max(0, min)
	max = math.Max(0, max)
	if min > max {
		min, max = max, min
	}
	return entities.PriceFilter{Min: round(min, 2), Max: round(max, 2), Currency: currency}, true
}

func (n *Normalizer) locationFilter(rawLat, rawLon, rawRadius string) (entities.LocationFilter, bool) {
	lat, latOK := parseFloat(rawLat)
	lon, lonOK := parseFloat(rawLon)
	if !latOK || !lonOK {
		return entities.LocationFilter{}, false
	}

	radius, ok := parseFloat(rawRadius)
	if !ok || radius <= 0 {
		radius = n.cfg.DefaultRadiusKm
	}
	radius = clamp(radius, n.cfg.MinRadiusKm, n.cfg.MaxRadiusKm)

	return entities.LocationFilter{
		Center: entities.GeoPoint{
			Latitude:  round(clamp(lat, -90, 90), 5),
			Longitude: round(clamp(lon, -180, 180), 5),
		},
		RadiusKm: round(radius, 2),
	}, true
}

func parseStars(raw string) []int {
	seen := make(map[int]struct{})
	stars := []int{}
	for _, part := range splitList(raw) {
		s, err := strconv.Atoi(part)
		if err != nil || s < 1 || s > 5 {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		stars = append(stars, s)
	}
	sort.Ints(stars)
	return stars
}

func cityKeys(values []string) []string {
	keys := make([]string, 0, len(values))
	for _, v := range values {
		if key := utils.CompactKey(v); key != "" {
			keys = append(keys, key)
		}
	}
	return utils.DedupeSorted(keys, false)
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseFloat reports false for empty, malformed, NaN and infinite values
func parseFloat(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round(v float64, places int) float64 {
	if math.IsInf(v, 0) {
		return v
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
