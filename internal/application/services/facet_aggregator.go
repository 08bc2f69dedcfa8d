package services

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/pkg/utils"
)

// Catch-all bucket values for single-valued facets
const (
	FacetValueUnpriced = "unpriced"
	FacetValueUnrated  = "0"
	FacetValueUnknown  = "unknown"
)

const facetCancelCheckEvery = 256

// FacetAggregator counts candidates per facet value. Each facet ignores its own filter.
type FacetAggregator struct {
	priceBounds []float64
}

// NewFacetAggregator creates an aggregator with ascending price bucket bounds
func NewFacetAggregator(priceBounds []float64) *FacetAggregator {
	bounds := append([]float64(nil), priceBounds...)
	sort.Float64s(bounds)
	return &FacetAggregator{priceBounds: bounds}
}

// Aggregate computes facets over the text and geo candidates. It returns the
// context error when the deadline passes mid-way.
func (a *FacetAggregator) Aggregate(ctx context.Context, req *entities.SearchRequest, candidates []*entities.SearchDocument) (*entities.FacetCounts, error) {
	price := newCounter()
	stars := newCounter()
	cities := newCounter()
	types := newCounter()
	amenities := newCounter()

	for i, doc := range candidates {
		if i%facetCancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		if req.MatchesHardFilters(doc, entities.FilterKindPrice) {
			price.add(a.priceBucket(doc, req.Currency))
		}
		if req.MatchesHardFilters(doc, entities.FilterKindStars) {
			stars.add(starBucket(doc.StarRating))
		}
		if req.MatchesHardFilters(doc, entities.FilterKindCities) {
			city := utils.CompactKey(doc.City)
			if city == "" {
				city = FacetValueUnknown
			}
			cities.add(city)
		}
		if req.MatchesHardFilters(doc, entities.FilterKindPropertyTypes) {
			t := strings.ToLower(strings.TrimSpace(doc.PropertyType))
			if t == "" {
				t = FacetValueUnknown
			}
			types.add(t)
		}
		if req.MatchesHardFilters(doc, entities.FilterKindAmenities) {
			amenities.total++
			seen := make(map[string]struct{}, len(doc.Amenities))
			for _, amenity := range doc.Amenities {
				id := strings.ToLower(amenity.ID)
				if _, dup := seen[id]; dup || id == "" {
					continue
				}
				seen[id] = struct{}{}
				amenities.counts[id]++
			}
		}
	}

	return &entities.FacetCounts{
		PriceRanges:   price.facet("price_ranges", a.priceOrder()),
		Stars:         stars.facet("stars", starOrder),
		Cities:        cities.facet("cities", nil),
		PropertyTypes: types.facet("property_types", nil),
		Amenities:     amenities.facet("amenities", nil),
	}, nil
}

func (a *FacetAggregator) priceBucket(doc *entities.SearchDocument, currency string) string {
	p, ok := doc.LowestPrice(currency)
	if !ok {
		return FacetValueUnpriced
	}
	lower := 0.0
	for _, bound := range a.priceBounds {
		if p < bound {
			return priceLabel(lower, bound)
		}
		lower = bound
	}
	return formatBound(lower) + "+"
}

// priceOrder lists every price bucket so empty ranges are still reported
func (a *FacetAggregator) priceOrder() []string {
	order := make([]string, 0, len(a.priceBounds)+2)
	lower := 0.0
	for _, bound := range a.priceBounds {
		order = append(order, priceLabel(lower, bound))
		lower = bound
	}
	order = append(order, formatBound(lower)+"+", FacetValueUnpriced)
	return order
}

func starBucket(stars int) string {
	if stars < 1 || stars > 5 {
		return FacetValueUnrated
	}
	return strconv.Itoa(stars)
}

var starOrder = []string{"5", "4", "3", "2", "1", FacetValueUnrated}

func priceLabel(lower, upper float64) string {
	return formatBound(lower) + "-" + formatBound(upper)
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type facetCounter struct {
	total  int
	counts map[string]int
}

func newCounter() *facetCounter {
	return &facetCounter{counts: make(map[string]int)}
}

func (c *facetCounter) add(value string) {
	c.total++
	c.counts[value]++
}

// facet emits buckets in fixed order when given, otherwise by count desc then value
func (c *facetCounter) facet(name string, order []string) entities.Facet {
	f := entities.Facet{Name: name, Total: c.total, Buckets: []entities.FacetBucket{}}

	if order != nil {
		for _, value := range order {
			f.Buckets = append(f.Buckets, entities.FacetBucket{Value: value, Count: c.counts[value]})
		}
		return f
	}

	for value, count := range c.counts {
		f.Buckets = append(f.Buckets, entities.FacetBucket{Value: value, Count: count})
	}
	sort.Slice(f.Buckets, func(i, j int) bool {
		if f.Buckets[i].Count != f.Buckets[j].Count {
			return f.Buckets[i].Count > f.Buckets[j].Count
		}
		return f.Buckets[i].Value < f.Buckets[j].Value
	})
	return f
}
