package extraction

// Restaurant is the raw record produced by the extraction worker for one
// restaurant mention. Every field is optional: the worker is untrusted and
// partial records are expected.
type Restaurant struct {
	NameHe          string   `json:"name_he"`
	NameEn          string   `json:"name_en"`
	Cuisine         string   `json:"cuisine"`
	City            string   `json:"city"`
	Neighborhood    string   `json:"neighborhood"`
	PriceRange      string   `json:"price_range"`
	HostOpinion     string   `json:"host_opinion"`
	HostComments    string   `json:"host_comments"`
	MenuItems       []string `json:"menu_items"`
	SpecialFeatures []string `json:"special_features"`
	// GoogleName is the cross-referenced Google Places name, present only
	// when the worker already enriched the record.
	GoogleName string `json:"google_name"`
}

// Result is the outcome of one extraction run over a video.
type Result struct {
	Restaurants []Restaurant
	Count       int
}
