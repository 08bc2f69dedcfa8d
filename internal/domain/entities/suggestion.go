package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// SuggestionKind distinguishes city and property suggestions
type SuggestionKind string

const (
	SuggestionKindCity     SuggestionKind = "city"
	SuggestionKindProperty SuggestionKind = "property"
)

// Match quality levels, higher is better
const (
	MatchQualitySubstring    = 0
	MatchQualityTokenPrefix  = 1
	MatchQualityPhrasePrefix = 2
	MatchQualityExact        = 3
)

// Suggestion is one autocomplete entry
type Suggestion struct {
	Text       string         `json:"text"`
	Kind       SuggestionKind `json:"kind"`
	PropertyID string         `json:"property_id,omitempty"`
	City       string         `json:"city,omitempty"`
	Popularity float64        `json:"popularity"`
	Quality    int            `json:"quality"`
	DistanceKm *float64       `json:"distance_km,omitempty"`
}

// SuggestRequest is the normalized autocomplete request
type SuggestRequest struct {
	Prefix   string
	Tokens   []string
	Language string
	GeoHint  *GeoPoint
	Limit    int
	Literal  bool
}

// Signature returns the canonical request signature
func (r *SuggestRequest) Signature() string {
	var b strings.Builder
	b.WriteString("v1|suggest|q=")
	b.WriteString(r.Prefix)
	b.WriteString("|lang=")
	b.WriteString(r.Language)
	b.WriteString("|limit=")
	b.WriteString(strconv.Itoa(r.Limit))
	if r.GeoHint != nil {
		b.WriteString("|geo=")
		b.WriteString(formatFloat(r.GeoHint.Latitude))
		b.WriteString(",")
		b.WriteString(formatFloat(r.GeoHint.Longitude))
	}
	return b.String()
}

// CacheKey returns the hashed signature
func (r *SuggestRequest) CacheKey() string {
	hash := sha256.Sum256([]byte(r.Signature()))
	return hex.EncodeToString(hash[:])
}
