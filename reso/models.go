package reso

// StandardPropertyFields is the default $select for RESO Property queries.
// Keeping the projection tight is what Bridge and MLS Grid both recommend
// for search traffic.
var StandardPropertyFields = []string{
	"ListingKey", "ListingId", "StandardStatus", "ListPrice",
	"StreetNumber", "StreetName", "StreetSuffix", "City", "StateOrProvince", "PostalCode",
	"UnparsedAddress", "Latitude", "Longitude",
	"PropertyType", "PropertySubType", "BedroomsTotal", "BathroomsFull", "BathroomsHalf",
	"LivingArea", "LotSizeAcres", "YearBuilt", "ListingContractDate",
	"CloseDate", "ClosePrice", "PublicRemarks", "ListingTerms",
	"PhotosCount", "PhotosChangeTimestamp", "ModificationTimestamp",
}

// StandardResources names the RESO resources this package knows how to query.
var StandardResources = map[string]string{
	"Property":    "Property listings for sale or lease",
	"Member":      "Agent/broker information",
	"Office":      "Brokerage information",
	"Media":       "Photos and other media",
	"OpenHouse":   "Open house events",
	"Team":        "Team information",
	"TeamMembers": "Team member associations",
}

// Media is one photo or attachment on a listing.
type Media struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
	Order   int    `json:"order"`
}

// Address holds the canonical location fields. Every field is a pointer:
// nil means the provider did not send it, which is different from empty.
type Address struct {
	StreetNumber *string  `json:"street_number"`
	StreetName   *string  `json:"street_name"`
	StreetSuffix *string  `json:"street_suffix"`
	City         *string  `json:"city"`
	State        *string  `json:"state"`
	PostalCode   *string  `json:"postal_code"`
	Unparsed     *string  `json:"unparsed"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

type PropertyDetails struct {
	Type          *string  `json:"type"`
	SubType       *string  `json:"sub_type"`
	Bedrooms      *int     `json:"bedrooms"`
	BathroomsFull *int     `json:"bathrooms_full"`
	BathroomsHalf *int     `json:"bathrooms_half"`
	SquareFeet    *float64 `json:"square_feet"`
	LotSizeAcres  *float64 `json:"lot_size_acres"`
	YearBuilt     *int     `json:"year_built"`
}

// ListingDetails carries listing lifecycle fields. Dates stay the ISO-8601
// strings the provider sent; this package never reinterprets them.
type ListingDetails struct {
	ListDate     *string  `json:"list_date"`
	CloseDate    *string  `json:"close_date"`
	ClosePrice   *float64 `json:"close_price"`
	Description  *string  `json:"description"`
	ListingTerms *string  `json:"listing_terms"`
	PhotosCount  *int     `json:"photos_count"`
	LastModified *string  `json:"last_modified"`
}

// Property is the canonical record every provider payload normalizes into.
type Property struct {
	MLSID         *string         `json:"mls_id"`
	ListingKey    *string         `json:"listing_key"`
	Status        *string         `json:"status"`
	ListPrice     *float64        `json:"list_price"`
	Address       Address         `json:"address"`
	Details       PropertyDetails `json:"property_details"`
	Listing       ListingDetails  `json:"listing_details"`
	Media         []Media         `json:"media,omitempty"`
	DistanceMiles *float64        `json:"distance_miles,omitempty"`
	Raw           map[string]any  `json:"raw_data,omitempty"`
}

// SearchResult pairs canonical records with the provider's own result count
// when the response carried one (@odata.count).
type SearchResult struct {
	Records  []Property `json:"records"`
	RawCount *int       `json:"raw_count,omitempty"`
}

// MarketStatistics aggregates one city's activity over a date window.
// Aggregates exclude null inputs; zero means "no data", mirroring how the
// counts behave.
type MarketStatistics struct {
	City             string  `json:"city"`
	PropertyType     string  `json:"property_type"`
	StartDate        string  `json:"start_date"`
	EndDate          string  `json:"end_date"`
	ActiveListings   int     `json:"active_listings"`
	SoldProperties   int     `json:"sold_properties"`
	AverageListPrice float64 `json:"average_list_price"`
	MedianListPrice  float64 `json:"median_list_price"`
	AverageSalePrice float64 `json:"average_sale_price"`
	MedianSalePrice  float64 `json:"median_sale_price"`
	AverageDOM       float64 `json:"average_days_on_market"`
	PriceToListRatio float64 `json:"price_to_list_ratio"`
}
