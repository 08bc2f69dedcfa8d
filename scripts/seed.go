package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/observability"
)

// Generates a synthetic catalogue for SEARCH_SEED_FILE. Ids are derived from
// the seed so the same flags always produce the same file.

type city struct {
	name      string
	latitude  float64
	longitude float64
	landmarks []string
}

var cities = []city{
	{"Hà Nội", 21.0285, 105.8542, []string{"Hoan Kiem", "Old Quarter", "West Lake", "Ba Dinh"}},
	{"Hồ Chí Minh", 10.7769, 106.7009, []string{"Ben Thanh", "Saigon River", "District 1", "Bui Vien"}},
	{"Đà Nẵng", 16.0544, 108.2022, []string{"My Khe", "Dragon Bridge", "Son Tra", "Han River"}},
	{"Hội An", 15.8801, 108.3380, []string{"Ancient Town", "An Bang", "Thu Bon", "Cua Dai"}},
	{"Huế", 16.4637, 107.5909, []string{"Imperial City", "Perfume River", "Thien Mu"}},
	{"Nha Trang", 12.2388, 109.1967, []string{"Tran Phu", "Hon Chong", "Vinpearl"}},
	{"Đà Lạt", 11.9404, 108.4583, []string{"Xuan Huong", "Pine Hill", "Valley of Love"}},
	{"Phú Quốc", 10.2899, 103.9840, []string{"Long Beach", "Sao Beach", "Duong Dong"}},
}

var (
	propertyTypes = []string{"hotel", "resort", "homestay", "apartment", "villa", "hostel"}
	nameSuffixes  = map[string][]string{
		"hotel":     {"Hotel", "Grand Hotel", "Boutique Hotel", "Central Hotel"},
		"resort":    {"Resort", "Beach Resort", "Resort & Spa"},
		"homestay":  {"Homestay", "House"},
		"apartment": {"Apartments", "Residences", "Serviced Apartment"},
		"villa":     {"Villa", "Garden Villas"},
		"hostel":    {"Hostel", "Backpackers"},
	}
	amenities = []entities.Amenity{
		{ID: "wifi", Name: "Free WiFi", Category: "general", Featured: true},
		{ID: "pool", Name: "Swimming pool", Category: "leisure", Featured: true},
		{ID: "spa", Name: "Spa", Category: "wellness"},
		{ID: "gym", Name: "Fitness center", Category: "wellness"},
		{ID: "parking", Name: "Parking", Category: "general"},
		{ID: "breakfast", Name: "Breakfast included", Category: "dining", Featured: true},
		{ID: "airport_shuttle", Name: "Airport shuttle", Category: "transport"},
		{ID: "restaurant", Name: "Restaurant", Category: "dining"},
		{ID: "beach_access", Name: "Beach access", Category: "leisure"},
	}
	roomNames = []string{"Standard", "Superior", "Deluxe", "Family Suite", "Dormitory Bed"}
)

var namespace = uuid.MustParse("6f1c2a9e-3b0d-4f5e-9a7c-2d8e1b4f6a30")

func main() {
	count := flag.Int("n", 500, "number of properties to generate")
	seed := flag.Uint64("seed", 1, "random seed")
	out := flag.String("out", "properties.json", "output file")
	flag.Parse()

	observability.InitLogger("property-search-seed", "development", "")

	rng := rand.New(rand.NewPCG(*seed, *seed))
	now := time.Now().UTC().Truncate(time.Second)

	docs := make([]*entities.SearchDocument, 0, *count)
	for i := 0; i < *count; i++ {
		docs = append(docs, generate(rng, *seed, i, now))
	}

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode catalogue")
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", *out).Msg("failed to write catalogue")
	}
	log.Info().Int("properties", len(docs)).Str("path", *out).Msg("catalogue written")
}

func generate(rng *rand.Rand, seed uint64, i int, now time.Time) *entities.SearchDocument {
	c := cities[rng.IntN(len(cities))]
	kind := propertyTypes[rng.IntN(len(propertyTypes))]
	suffixes := nameSuffixes[kind]
	landmark := c.landmarks[rng.IntN(len(c.landmarks))]
	name := fmt.Sprintf("%s %s", landmark, suffixes[rng.IntN(len(suffixes))])

	stars := 1 + rng.IntN(5)
	if kind == "resort" && stars < 4 {
		stars = 4
	}

	// about 2% of listings have no usable coordinates
	var location *entities.GeoPoint
	if rng.Float64() >= 0.02 {
		location = &entities.GeoPoint{
			Latitude:  c.latitude + (rng.Float64()-0.5)*0.12,
			Longitude: c.longitude + (rng.Float64()-0.5)*0.12,
		}
	}

	basePrice := float64(200000 * stars * (1 + rng.IntN(4)))
	rooms := make([]entities.RoomTypeSummary, 0, 3)
	for j, n := 0, 1+rng.IntN(3); j < n; j++ {
		rooms = append(rooms, entities.RoomTypeSummary{
			Name:           roomNames[(j+rng.IntN(2))%len(roomNames)],
			MaxOccupancy:   2 + j,
			AvailableCount: rng.IntN(8),
			BasePrice:      basePrice * (1 + 0.35*float64(j)),
			Currency:       "VND",
		})
	}

	picked := make([]entities.Amenity, 0, 5)
	for _, a := range amenities {
		if rng.Float64() < 0.25+0.1*float64(stars) {
			picked = append(picked, a)
		}
	}

	ratingCount := rng.IntN(2000)
	rating := 0.0
	if ratingCount > 0 {
		rating = 3 + rng.Float64()*2
	}

	return &entities.SearchDocument{
		ID: uuid.NewSHA1(namespace, []byte(fmt.Sprintf("%d/%d", seed, i))).String(),
		Name: map[string]string{
			"en": name,
			"vi": fmt.Sprintf("%s %s", name, c.name),
		},
		Description: map[string]string{
			"en": fmt.Sprintf("%s near %s in %s.", kind, landmark, c.name),
		},
		PropertyType:  kind,
		StarRating:    stars,
		City:          c.name,
		CountryCode:   "VN",
		Location:      location,
		RatingAverage: float64(int(rating*10)) / 10,
		RatingCount:   ratingCount,
		Amenities:     picked,
		RoomTypes:     rooms,
		Images:        []string{fmt.Sprintf("https://img.example.com/%d/%d.jpg", seed, i)},
		Boost: entities.SearchBoost{
			PopularityScore: rng.Float64(),
			ConversionRate:  rng.Float64() * 0.1,
			ReviewScore:     rating / 5,
			Promoted:        rng.Float64() < 0.05,
			UpdatedAt:       now,
		},
		UpdatedAt: now,
	}
}
