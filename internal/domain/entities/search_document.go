package entities

import (
	"math"
	"sort"
	"strings"
	"time"
)

// DefaultLanguage is used when a localized field has no entry for the requested language.
const DefaultLanguage = "en"

// GeoPoint represents a WGS84 coordinate
type GeoPoint struct {
	Latitude  float64 `json:"lat" db:"latitude"`
	Longitude float64 `json:"lon" db:"longitude"`
}

// Valid reports whether the point is present and within coordinate bounds
func (p *GeoPoint) Valid() bool {
	if p == nil {
		return false
	}
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// Amenity represents a property amenity
type Amenity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Featured bool   `json:"featured,omitempty"`
}

// RoomTypeSummary summarizes a bookable room type
type RoomTypeSummary struct {
	Name           string  `json:"name"`
	MaxOccupancy   int     `json:"max_occupancy"`
	AvailableCount int     `json:"available_count"`
	BasePrice      float64 `json:"base_price"`
	Currency       string  `json:"currency"`
}

// SearchBoost holds business signals used by ranking
type SearchBoost struct {
	PopularityScore float64   `json:"popularity_score"`
	ConversionRate  float64   `json:"conversion_rate"`
	ReviewScore     float64   `json:"review_score"`
	Promoted        bool      `json:"promoted"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SearchDocument is the denormalized, search-optimized projection of a property
type SearchDocument struct {
	ID            string            `json:"id" db:"id"`
	Name          map[string]string `json:"name" db:"name"`
	Description   map[string]string `json:"description" db:"description"`
	PropertyType  string            `json:"property_type" db:"property_type"`
	StarRating    int               `json:"star_rating" db:"star_rating"`
	City          string            `json:"city" db:"city"`
	CountryCode   string            `json:"country_code" db:"country_code"`
	Location      *GeoPoint         `json:"location,omitempty"`
	RatingAverage float64           `json:"rating_average" db:"rating_average"`
	RatingCount   int               `json:"rating_count" db:"rating_count"`
	Amenities     []Amenity         `json:"amenities" db:"amenities"`
	RoomTypes     []RoomTypeSummary `json:"room_types" db:"room_types"`
	Images        []string          `json:"images" db:"images"`
	Boost         SearchBoost       `json:"boost" db:"boost"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
}

// DisplayName returns the name for the language, falling back to the default language
// and then to the first language in lexical order.
func (d *SearchDocument) DisplayName(lang string) string {
	return localized(d.Name, lang)
}

// LocalizedDescription returns the description for the language with the same fallback as DisplayName
func (d *SearchDocument) LocalizedDescription(lang string) string {
	return localized(d.Description, lang)
}

// Names returns all localized names in language order
func (d *SearchDocument) Names() []string {
	langs := make([]string, 0, len(d.Name))
	for lang := range d.Name {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	names := make([]string, 0, len(langs))
	for _, lang := range langs {
		if name := strings.TrimSpace(d.Name[lang]); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// LowestPrice returns the lowest positive base price among room types priced in currency
func (d *SearchDocument) LowestPrice(currency string) (float64, bool) {
	lowest := 0.0
	found := false
	for _, room := range d.RoomTypes {
		if room.BasePrice <= 0 || !strings.EqualFold(room.Currency, currency) {
			continue
		}
		if !found || room.BasePrice < lowest {
			lowest = room.BasePrice
			found = true
		}
	}
	return lowest, found
}

// HasPriceBetween reports whether any room type in currency is priced within [min, max]
func (d *SearchDocument) HasPriceBetween(min, max float64, currency string) bool {
	for _, room := range d.RoomTypes {
		if room.BasePrice <= 0 || !strings.EqualFold(room.Currency, currency) {
			continue
		}
		if room.BasePrice >= min && room.BasePrice <= max {
			return true
		}
	}
	return false
}

// HasAmenity reports whether the property offers the amenity id
func (d *SearchDocument) HasAmenity(id string) bool {
	for _, amenity := range d.Amenities {
		if strings.EqualFold(amenity.ID, id) {
			return true
		}
	}
	return false
}

// Summary builds the hit payload for a search response
func (d *SearchDocument) Summary(lang, currency string) PropertySummary {
	summary := PropertySummary{
		ID:            d.ID,
		Name:          d.DisplayName(lang),
		PropertyType:  d.PropertyType,
		StarRating:    d.StarRating,
		City:          d.City,
		CountryCode:   d.CountryCode,
		RatingAverage: d.RatingAverage,
		RatingCount:   d.RatingCount,
		Promoted:      d.Boost.Promoted,
	}
	if d.Location.Valid() {
		loc := *d.Location
		summary.Location = &loc
	}
	if price, ok := d.LowestPrice(currency); ok {
		summary.LowestPrice = &Money{Amount: price, Currency: strings.ToUpper(currency)}
	}
	if len(d.Images) > 0 {
		summary.Thumbnail = d.Images[0]
	}
	return summary
}

func localized(values map[string]string, lang string) string {
	if v, ok := values[lang]; ok && v != "" {
		return v
	}
	if v, ok := values[DefaultLanguage]; ok && v != "" {
		return v
	}
	langs := make([]string, 0, len(values))
	for l := range values {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	for _, l := range langs {
		if values[l] != "" {
			return values[l]
		}
	}
	return ""
}

// Money is an amount in a currency
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// PropertySummary is the property view embedded in search hits
type PropertySummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	PropertyType  string    `json:"property_type"`
	StarRating    int       `json:"star_rating"`
	City          string    `json:"city"`
	CountryCode   string    `json:"country_code"`
	Location      *GeoPoint `json:"location,omitempty"`
	RatingAverage float64   `json:"rating_average"`
	RatingCount   int       `json:"rating_count"`
	LowestPrice   *Money    `json:"lowest_price,omitempty"`
	Thumbnail     string    `json:"thumbnail,omitempty"`
	Promoted      bool      `json:"promoted"`
}
