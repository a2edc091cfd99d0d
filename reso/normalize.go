package reso

import (
	"sort"
	"strconv"
	"strings"
)

// FieldMap selects the source key for each canonical field. Dotted paths
// traverse nested objects, which is how the non-RESO providers ship their
// payloads.
type FieldMap map[string]string

// RESOFieldMap covers Bridge, MLS Grid and any other RESO Web API dialect.
var RESOFieldMap = FieldMap{
	"mls_id":         "ListingId",
	"listing_key":    "ListingKey",
	"status":         "StandardStatus",
	"list_price":     "ListPrice",
	"street_number":  "StreetNumber",
	"street_name":    "StreetName",
	"street_suffix":  "StreetSuffix",
	"city":           "City",
	"state":          "StateOrProvince",
	"postal_code":    "PostalCode",
	"unparsed":       "UnparsedAddress",
	"latitude":       "Latitude",
	"longitude":      "Longitude",
	"type":           "PropertyType",
	"sub_type":       "PropertySubType",
	"bedrooms":       "BedroomsTotal",
	"bathrooms_full": "BathroomsFull",
	"bathrooms_half": "BathroomsHalf",
	"square_feet":    "LivingArea",
	"lot_size_acres": "LotSizeAcres",
	"year_built":     "YearBuilt",
	"list_date":      "ListingContractDate",
	"close_date":     "CloseDate",
	"close_price":    "ClosePrice",
	"description":    "PublicRemarks",
	"listing_terms":  "ListingTerms",
	"photos_count":   "PhotosCount",
	"last_modified":  "ModificationTimestamp",
	"media":          "Media",
	"media_url":      "MediaURL",
	"media_caption":  "ShortDescription",
	"media_order":    "Order",
}

// ATTOMFieldMap follows the property/listing snapshot payloads from the
// ATTOM gateway.
var ATTOMFieldMap = FieldMap{
	"mls_id":         "identifier.mlsId",
	"listing_key":    "identifier.attomId",
	"status":         "listing.status",
	"list_price":     "listing.listPrice",
	"unparsed":       "address.oneLine",
	"city":           "address.locality",
	"state":          "address.region",
	"postal_code":    "address.postal1",
	"latitude":       "address.latitude",
	"longitude":      "address.longitude",
	"type":           "use.propClass",
	"bedrooms":       "building.bedrooms",
	"bathrooms_full": "building.bathrooms.full",
	"square_feet":    "building.size",
	"year_built":     "building.yearBuilt",
	"close_price":    "sale.amount",
	"media":          "listing.photos",
	"media_url":      "href",
}

// EstatedFieldMap follows the Estated v4 property payload.
var EstatedFieldMap = FieldMap{
	"listing_key":    "id",
	"street_number":  "address.street_number",
	"street_name":    "address.street_name",
	"street_suffix":  "address.street_suffix",
	"city":           "address.city",
	"state":          "address.state",
	"postal_code":    "address.zip_code",
	"unparsed":       "address.formatted_street_address",
	"latitude":       "address.latitude",
	"longitude":      "address.longitude",
	"type":           "parcel.standardized_land_use_type",
	"bedrooms":       "structure.beds_count",
	"bathrooms_full": "structure.baths",
	"square_feet":    "structure.total_area_sq_ft",
	"year_built":     "structure.year_built",
}

// genericFieldMap is the fallback for providers without a published shape;
// it picks up the common flat names and leaves everything else in raw_data.
var genericFieldMap = FieldMap{
	"listing_key": "id",
	"mls_id":      "mls_id",
	"status":      "status",
	"list_price":  "price",
	"unparsed":    "address",
	"city":        "city",
	"state":       "state",
	"postal_code": "zip",
	"latitude":    "latitude",
	"longitude":   "longitude",
	"type":        "property_type",
	"bedrooms":    "bedrooms",
	"square_feet": "square_feet",
	"year_built":  "year_built",
}

// Normalize maps one raw provider record into the canonical schema. It is
// pure: no I/O, no mutation of the input. Fields the provider did not send
// stay nil; the full raw record rides along for anything the schema drops.
func Normalize(raw map[string]any, fm FieldMap) Property {
	if fm == nil {
		fm = RESOFieldMap
	}
	p := Property{
		MLSID:      fm.str(raw, "mls_id"),
		ListingKey: fm.str(raw, "listing_key"),
		Status:     fm.str(raw, "status"),
		ListPrice:  fm.float(raw, "list_price"),
		Address: Address{
			StreetNumber: fm.str(raw, "street_number"),
			StreetName:   fm.str(raw, "street_name"),
			StreetSuffix: fm.str(raw, "street_suffix"),
			City:         fm.str(raw, "city"),
			State:        fm.str(raw, "state"),
			PostalCode:   fm.str(raw, "postal_code"),
			Unparsed:     fm.str(raw, "unparsed"),
			Latitude:     fm.float(raw, "latitude"),
			Longitude:    fm.float(raw, "longitude"),
		},
		Details: PropertyDetails{
			Type:          fm.str(raw, "type"),
			SubType:       fm.str(raw, "sub_type"),
			Bedrooms:      fm.int(raw, "bedrooms"),
			BathroomsFull: fm.int(raw, "bathrooms_full"),
			BathroomsHalf: fm.int(raw, "bathrooms_half"),
			SquareFeet:    fm.float(raw, "square_feet"),
			LotSizeAcres:  fm.float(raw, "lot_size_acres"),
			YearBuilt:     fm.int(raw, "year_built"),
		},
		Listing: ListingDetails{
			ListDate:     fm.str(raw, "list_date"),
			CloseDate:    fm.str(raw, "close_date"),
			ClosePrice:   fm.float(raw, "close_price"),
			Description:  fm.str(raw, "description"),
			ListingTerms: fm.str(raw, "listing_terms"),
			PhotosCount:  fm.int(raw, "photos_count"),
			LastModified: fm.str(raw, "last_modified"),
		},
		Raw: raw,
	}
	p.Media = fm.media(raw)
	return p
}

func (fm FieldMap) lookup(raw map[string]any, canonical string) any {
	path, ok := fm[canonical]
	if !ok {
		return nil
	}
	return getPath(raw, path)
}

func (fm FieldMap) str(raw map[string]any, canonical string) *string {
	return toString(fm.lookup(raw, canonical))
}

func (fm FieldMap) float(raw map[string]any, canonical string) *float64 {
	return toFloat(fm.lookup(raw, canonical))
}

func (fm FieldMap) int(raw map[string]any, canonical string) *int {
	return toInt(fm.lookup(raw, canonical))
}

// media extracts the media attachments embedded in a listing record.
func (fm FieldMap) media(raw map[string]any) []Media {
	items, ok := fm.lookup(raw, "media").([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	recs := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			recs = append(recs, m)
		}
	}
	return mediaFromRecords(recs,
		fm.mediaKey("media_url", "MediaURL"),
		fm.mediaKey("media_caption", "ShortDescription"),
		fm.mediaKey("media_order", "Order"))
}

// mediaFromRecords converts raw media records, sorted ascending by their
// order value with the provider's original order as tiebreak.
func mediaFromRecords(recs []map[string]any, urlKey, captionKey, orderKey string) []Media {
	if len(recs) == 0 {
		return nil
	}
	out := make([]Media, 0, len(recs))
	for _, m := range recs {
		media := Media{}
		if u := toString(m[urlKey]); u != nil {
			media.URL = *u
		}
		if c := toString(m[captionKey]); c != nil {
			media.Caption = *c
		}
		if o := toInt(m[orderKey]); o != nil {
			media.Order = *o
		}
		out = append(out, media)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func (fm FieldMap) mediaKey(canonical, def string) string {
	if k, ok := fm[canonical]; ok {
		return k
	}
	return def
}

func getPath(raw map[string]any, path string) any {
	if raw == nil {
		return nil
	}
	parts := strings.Split(path, ".")
	var cur any = raw
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

func toString(v any) *string {
	switch t := v.(type) {
	case string:
		return &t
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		return &s
	case bool:
		s := strconv.FormatBool(t)
		return &s
	case []any:
		// RESO list fields (ListingTerms and friends) flatten to CSV
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return nil
		}
		s := strings.Join(parts, ",")
		return &s
	default:
		return nil
	}
}

func toFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case int:
		f := float64(t)
		return &f
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return &f
		}
		return nil
	default:
		return nil
	}
}

func toInt(v any) *int {
	switch t := v.(type) {
	case float64:
		n := int(t)
		return &n
	case int:
		return &t
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return &n
		}
		return nil
	default:
		return nil
	}
}
