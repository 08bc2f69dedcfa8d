package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/zatekoja/propertysearch/backend/pkg/utils"
)

// SortMode selects the ordering of search hits
type SortMode string

const (
	SortRelevance   SortMode = "relevance"
	SortPriceAsc    SortMode = "price_asc"
	SortPriceDesc   SortMode = "price_desc"
	SortRatingDesc  SortMode = "rating_desc"
	SortDistanceAsc SortMode = "distance_asc"
	SortPopularity  SortMode = "popularity"
)

// ParseSortMode maps a raw value to a known sort mode, defaulting to relevance
func ParseSortMode(raw string) SortMode {
	switch mode := SortMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case SortPriceAsc, SortPriceDesc, SortRatingDesc, SortDistanceAsc, SortPopularity:
		return mode
	default:
		return SortRelevance
	}
}

// RequestClass identifies the operation a request was normalized for. Each class
// has its own cache tier.
type RequestClass string

const (
	RequestClassSearch   RequestClass = "search"
	RequestClassFacets   RequestClass = "facets"
	RequestClassLocation RequestClass = "location"
)

// FilterKind tags a filter variant
type FilterKind string

const (
	FilterKindPrice         FilterKind = "price"
	FilterKindStars         FilterKind = "stars"
	FilterKindAmenities     FilterKind = "amenities"
	FilterKindPropertyTypes FilterKind = "types"
	FilterKindGuestRating   FilterKind = "rating"
	FilterKindCities        FilterKind = "cities"
	FilterKindLocation      FilterKind = "geo"
)

// FilterKindOrder is the canonical order used for signatures
var FilterKindOrder = []FilterKind{
	FilterKindPrice,
	FilterKindStars,
	FilterKindAmenities,
	FilterKindPropertyTypes,
	FilterKindGuestRating,
	FilterKindCities,
	FilterKindLocation,
}

// Filter is a validated hard filter. Implementations are created by the normalizer only.
type Filter interface {
	Kind() FilterKind
	Matches(doc *SearchDocument) bool
	Canonical() string
}

// PriceFilter keeps properties with at least one room type priced within [Min, Max]
type PriceFilter struct {
	Min      float64
	Max      float64
	Currency string
}

func (f PriceFilter) Kind() FilterKind { return FilterKindPrice }

func (f PriceFilter) Matches(doc *SearchDocument) bool {
	return doc.HasPriceBetween(f.Min, f.Max, f.Currency)
}

func (f PriceFilter) Canonical() string {
	return "price=" + url.QueryEscape(f.Currency) + ":" + formatFloat(f.Min) + "-" + formatFloat(f.Max)
}

// StarFilter keeps properties whose star rating is in the set
type StarFilter struct {
	Stars []int
}

func (f StarFilter) Kind() FilterKind { return FilterKindStars }

func (f StarFilter) Matches(doc *SearchDocument) bool {
	for _, s := range f.Stars {
		if doc.StarRating == s {
			return true
		}
	}
	return false
}

func (f StarFilter) Canonical() string {
	parts := make([]string, len(f.Stars))
	for i, s := range f.Stars {
		parts[i] = strconv.Itoa(s)
	}
	return "stars=" + strings.Join(parts, ",")
}

// AmenityFilter keeps properties offering every listed amenity
type AmenityFilter struct {
	AmenityIDs []string
}

func (f AmenityFilter) Kind() FilterKind { return FilterKindAmenities }

func (f AmenityFilter) Matches(doc *SearchDocument) bool {
	for _, id := range f.AmenityIDs {
		if !doc.HasAmenity(id) {
			return false
		}
	}
	return true
}

func (f AmenityFilter) Canonical() string {
	return "amenities=" + joinEscaped(f.AmenityIDs)
}

// PropertyTypeFilter keeps properties of any listed type
type PropertyTypeFilter struct {
	Types []string
}

func (f PropertyTypeFilter) Kind() FilterKind { return FilterKindPropertyTypes }

func (f PropertyTypeFilter) Matches(doc *SearchDocument) bool {
	docType := strings.ToLower(doc.PropertyType)
	for _, t := range f.Types {
		if docType == t {
			return true
		}
	}
	return false
}

func (f PropertyTypeFilter) Canonical() string {
	return "types=" + joinEscaped(f.Types)
}

// GuestRatingFilter keeps properties rated at least Min
type GuestRatingFilter struct {
	Min float64
}

func (f GuestRatingFilter) Kind() FilterKind { return FilterKindGuestRating }

func (f GuestRatingFilter) Matches(doc *SearchDocument) bool {
	return doc.RatingAverage >= f.Min
}

func (f GuestRatingFilter) Canonical() string {
	return "rating=" + formatFloat(f.Min)
}

// CityFilter keeps properties in any listed city. Cities are compact keys.
type CityFilter struct {
	Cities []string
}

func (f CityFilter) Kind() FilterKind { return FilterKindCities }

func (f CityFilter) Matches(doc *SearchDocument) bool {
	city := utils.CompactKey(doc.City)
	for _, c := range f.Cities {
		if city == c {
			return true
		}
	}
	return false
}

func (f CityFilter) Canonical() string {
	return "cities=" + joinEscaped(f.Cities)
}

// LocationFilter keeps properties within RadiusKm of Center
type LocationFilter struct {
	Center   GeoPoint
	RadiusKm float64
}

func (f LocationFilter) Kind() FilterKind { return FilterKindLocation }

func (f LocationFilter) Matches(doc *SearchDocument) bool {
	if !doc.Location.Valid() {
		return false
	}
	return DistanceKm(f.Center, *doc.Location) <= f.RadiusKm
}

func (f LocationFilter) Canonical() string {
	return "geo=" + formatFloat(f.Center.Latitude) + "," + formatFloat(f.Center.Longitude) + "," + formatFloat(f.RadiusKm)
}

// SearchRequest is the canonical, immutable form of a search produced by the normalizer
type SearchRequest struct {
	Class    RequestClass
	Query    string
	Tokens   []string
	Language string
	Page     int
	PageSize int
	Sort     SortMode
	Currency string
	Filters  []Filter

	// Attribution only; not part of the signature.
	SessionID string
	UserID    string
}

// HasText reports whether the request carries a text query
func (r *SearchRequest) HasText() bool {
	return len(r.Tokens) > 0
}

// Filter returns the filter of the given kind if present
func (r *SearchRequest) Filter(kind FilterKind) (Filter, bool) {
	for _, f := range r.Filters {
		if f.Kind() == kind {
			return f, true
		}
	}
	return nil, false
}

// Location returns the location filter if present
func (r *SearchRequest) Location() *LocationFilter {
	if f, ok := r.Filter(FilterKindLocation); ok {
		loc := f.(LocationFilter)
		return &loc
	}
	return nil
}

// Cities returns the city filter values if present
func (r *SearchRequest) Cities() []string {
	if f, ok := r.Filter(FilterKindCities); ok {
		return f.(CityFilter).Cities
	}
	return nil
}

// MatchesHardFilters applies every non-location filter except the skipped kinds
func (r *SearchRequest) MatchesHardFilters(doc *SearchDocument, skip ...FilterKind) bool {
	for _, f := range r.Filters {
		kind := f.Kind()
		if kind == FilterKindLocation || containsKind(skip, kind) {
			continue
		}
		if !f.Matches(doc) {
			return false
		}
	}
	return true
}

// Offset returns the index of the first hit of the requested page
func (r *SearchRequest) Offset() int {
	return r.Page * r.PageSize
}

// Signature returns the canonical request signature. Equal signatures imply equal
// results for the same index and popularity state. Free-form values are query
// escaped so no value can forge a delimiter.
func (r *SearchRequest) Signature() string {
	var b strings.Builder
	b.WriteString("v1|class=")
	b.WriteString(string(r.Class))
	b.WriteString("|q=")
	b.WriteString(url.QueryEscape(r.Query))
	b.WriteString("|lang=")
	b.WriteString(url.QueryEscape(r.Language))
	b.WriteString("|page=")
	b.WriteString(strconv.Itoa(r.Page))
	b.WriteString("|size=")
	b.WriteString(strconv.Itoa(r.PageSize))
	b.WriteString("|sort=")
	b.WriteString(string(r.Sort))
	b.WriteString("|cur=")
	b.WriteString(url.QueryEscape(r.Currency))
	for _, f := range r.Filters {
		b.WriteString("|")
		b.WriteString(f.Canonical())
	}
	return b.String()
}

// CacheKey returns the hashed signature used as the cache key suffix
func (r *SearchRequest) CacheKey() string {
	hash := sha256.Sum256([]byte(r.Signature()))
	return hex.EncodeToString(hash[:])
}

func joinEscaped(values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = url.QueryEscape(v)
	}
	return strings.Join(escaped, ",")
}

func containsKind(kinds []FilterKind, kind FilterKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func formatFloat(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
