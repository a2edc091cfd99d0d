package reso

import "testing"

func TestNormalizeRESORecord(t *testing.T) {
	raw := map[string]any{
		"ListingId":             "MLS123",
		"ListingKey":            "K1",
		"StandardStatus":        "Active",
		"ListPrice":             float64(450000),
		"StreetNumber":          "123",
		"StreetName":            "Main",
		"StreetSuffix":          "St",
		"City":                  "Austin",
		"StateOrProvince":       "TX",
		"PostalCode":            "78701",
		"Latitude":              float64(30.27),
		"Longitude":             float64(-97.74),
		"PropertyType":          "Residential",
		"BedroomsTotal":         float64(3),
		"BathroomsFull":         float64(2),
		"LivingArea":            float64(1850),
		"YearBuilt":             float64(1998),
		"PublicRemarks":         "Charming bungalow",
		"ListingTerms":          []any{"Cash", "Conventional"},
		"ModificationTimestamp": "2024-06-01T12:00:00Z",
		"Media": []any{
			map[string]any{"MediaURL": "https://cdn/2.jpg", "Order": float64(2)},
			map[string]any{"MediaURL": "https://cdn/1.jpg", "ShortDescription": "Front", "Order": float64(1)},
		},
	}

	p := Normalize(raw, RESOFieldMap)

	if p.MLSID == nil || *p.MLSID != "MLS123" {
		t.Errorf("MLSID = %v", p.MLSID)
	}
	if p.ListPrice == nil || *p.ListPrice != 450000 {
		t.Errorf("ListPrice = %v", p.ListPrice)
	}
	if p.Address.City == nil || *p.Address.City != "Austin" {
		t.Errorf("City = %v", p.Address.City)
	}
	if p.Details.Bedrooms == nil || *p.Details.Bedrooms != 3 {
		t.Errorf("Bedrooms = %v", p.Details.Bedrooms)
	}
	if p.Listing.ListingTerms == nil || *p.Listing.ListingTerms != "Cash,Conventional" {
		t.Errorf("ListingTerms = %v", p.Listing.ListingTerms)
	}
	if p.Listing.LastModified == nil || *p.Listing.LastModified != "2024-06-01T12:00:00Z" {
		t.Errorf("LastModified = %v", p.Listing.LastModified)
	}
	if len(p.Media) != 2 {
		t.Fatalf("media count = %d", len(p.Media))
	}
	if p.Media[0].URL != "https://cdn/1.jpg" || p.Media[0].Caption != "Front" {
		t.Errorf("media not ordered: first = %+v", p.Media[0])
	}
	if p.Raw == nil {
		t.Error("raw record dropped")
	}
}

func TestNormalizeMissingFieldsStayNil(t *testing.T) {
	p := Normalize(map[string]any{"ListingKey": "K2"}, RESOFieldMap)

	if p.ListPrice != nil {
		t.Errorf("missing price defaulted to %v", *p.ListPrice)
	}
	if p.Details.Bedrooms != nil {
		t.Errorf("missing bedrooms defaulted to %v", *p.Details.Bedrooms)
	}
	if p.Address.City != nil {
		t.Errorf("missing city defaulted to %q", *p.Address.City)
	}
	if p.Media != nil {
		t.Errorf("missing media defaulted to %v", p.Media)
	}
}

func TestNormalizeKeepsExplicitZero(t *testing.T) {
	// Zero bedrooms is a studio, not an unknown.
	p := Normalize(map[string]any{"BedroomsTotal": float64(0)}, RESOFieldMap)
	if p.Details.Bedrooms == nil || *p.Details.Bedrooms != 0 {
		t.Fatalf("Bedrooms = %v, want 0", p.Details.Bedrooms)
	}
}

func TestNormalizeIsPure(t *testing.T) {
	raw := map[string]any{"ListingKey": "K3", "ListPrice": float64(100)}
	a := Normalize(raw, RESOFieldMap)
	b := Normalize(raw, RESOFieldMap)
	if *a.ListingKey != *b.ListingKey || *a.ListPrice != *b.ListPrice {
		t.Fatal("same input produced different records")
	}
	if len(raw) != 2 {
		t.Fatalf("input mutated: %v", raw)
	}
}

func TestNormalizeNestedPaths(t *testing.T) {
	raw := map[string]any{
		"identifier": map[string]any{"mlsId": "A1", "attomId": float64(99)},
		"address": map[string]any{
			"oneLine":  "456 Oak Ave, Denver, CO 80203",
			"locality": "Denver",
			"region":   "CO",
			"latitude": float64(39.73),
		},
		"building": map[string]any{
			"bedrooms":  float64(4),
			"bathrooms": map[string]any{"full": float64(2)},
		},
	}

	p := Normalize(raw, ATTOMFieldMap)

	if p.MLSID == nil || *p.MLSID != "A1" {
		t.Errorf("MLSID = %v", p.MLSID)
	}
	if p.ListingKey == nil || *p.ListingKey != "99" {
		t.Errorf("ListingKey = %v", p.ListingKey)
	}
	if p.Address.City == nil || *p.Address.City != "Denver" {
		t.Errorf("City = %v", p.Address.City)
	}
	if p.Details.BathroomsFull == nil || *p.Details.BathroomsFull != 2 {
		t.Errorf("BathroomsFull = %v", p.Details.BathroomsFull)
	}
	if p.Address.PostalCode != nil {
		t.Errorf("absent postal code = %q", *p.Address.PostalCode)
	}
}

func TestMediaOrderDefaultsAndTiebreak(t *testing.T) {
	raw := map[string]any{
		"Media": []any{
			map[string]any{"MediaURL": "https://cdn/b.jpg"},
			map[string]any{"MediaURL": "https://cdn/a.jpg"},
			map[string]any{"MediaURL": "https://cdn/z.jpg", "Order": float64(-1)},
		},
	}
	p := Normalize(raw, RESOFieldMap)
	if len(p.Media) != 3 {
		t.Fatalf("media count = %d", len(p.Media))
	}
	// Explicit -1 sorts first; the unordered pair keeps provider order at 0.
	if p.Media[0].URL != "https://cdn/z.jpg" {
		t.Errorf("first = %q", p.Media[0].URL)
	}
	if p.Media[1].URL != "https://cdn/b.jpg" || p.Media[2].URL != "https://cdn/a.jpg" {
		t.Errorf("tiebreak broke provider order: %q, %q", p.Media[1].URL, p.Media[2].URL)
	}
}

func TestNormalizeNilMapFallsBackToRESO(t *testing.T) {
	p := Normalize(map[string]any{"StandardStatus": "Closed"}, nil)
	if p.Status == nil || *p.Status != "Closed" {
		t.Fatalf("Status = %v", p.Status)
	}
}
