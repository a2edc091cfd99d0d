package canon

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9\s]`)

// suffixes maps long street-suffix forms to their USPS abbreviations.
var suffixes = map[string]string{
	"STREET":    "ST",
	"ROAD":      "RD",
	"AVENUE":    "AVE",
	"BOULEVARD": "BLVD",
	"DRIVE":     "DR",
	"LANE":      "LN",
	"COURT":     "CT",
	"CIRCLE":    "CIR",
	"TERRACE":   "TER",
	"PLACE":     "PL",
	"PARKWAY":   "PKWY",
	"HIGHWAY":   "HWY",
}

// unitMarkers start the unit/suite tail dropped from a street line.
var unitMarkers = map[string]bool{
	"APT":   true,
	"UNIT":  true,
	"STE":   true,
	"SUITE": true,
}

// Canonicalize normalizes a US street address and derives a stable lookup
// key. Unit and suite designators are dropped so every unit of a building
// shares the parcel's identity, and street suffixes collapse to their
// USPS short forms so "Street" and "St" key identically.
func Canonicalize(line1, city, state, zip string) (normLine1, normCity, normState, normZip, key string) {
	if i := strings.Index(line1, "#"); i >= 0 {
		line1 = line1[:i]
	}
	toks := dropUnit(tokens(line1))
	for i, tok := range toks {
		if abbr, ok := suffixes[tok]; ok {
			toks[i] = abbr
		}
	}
	normLine1 = strings.Join(toks, " ")

	normCity = strings.Join(tokens(city), " ")
	normState = strings.ToUpper(strings.TrimSpace(state))
	if len(normState) > 2 {
		normState = stateAbbrev(normState)
	}
	normZip = trimZIP(zip)

	key = strings.ToLower(normLine1 + "|" + normCity + "|" + normState + "|" + normZip)
	return normLine1, normCity, normState, normZip, key
}

func tokens(s string) []string {
	return strings.Fields(nonAlnum.ReplaceAllString(strings.ToUpper(strings.TrimSpace(s)), " "))
}

// dropUnit cuts the token stream at the first unit marker. The leading
// token never counts: "Unit 5 Oak Ln" is a street named Unit.
func dropUnit(toks []string) []string {
	for i, tok := range toks {
		if i > 0 && unitMarkers[tok] {
			return toks[:i]
		}
	}
	return toks
}

func trimZIP(z string) string {
	z = strings.TrimSpace(z)
	if len(z) >= 5 {
		return z[:5]
	}
	return z
}

func stateAbbrev(s string) string {
	if v, ok := states[s]; ok {
		return v
	}
	return s
}

var states = map[string]string{
	"ALABAMA": "AL", "ALASKA": "AK", "ARIZONA": "AZ", "ARKANSAS": "AR",
	"CALIFORNIA": "CA", "COLORADO": "CO", "CONNECTICUT": "CT", "DELAWARE": "DE",
	"FLORIDA": "FL", "GEORGIA": "GA", "HAWAII": "HI", "IDAHO": "ID",
	"ILLINOIS": "IL", "INDIANA": "IN", "IOWA": "IA", "KANSAS": "KS",
	"KENTUCKY": "KY", "LOUISIANA": "LA", "MAINE": "ME", "MARYLAND": "MD",
	"MASSACHUSETTS": "MA", "MICHIGAN": "MI", "MINNESOTA": "MN", "MISSISSIPPI": "MS",
	"MISSOURI": "MO", "MONTANA": "MT", "NEBRASKA": "NE", "NEVADA": "NV",
	"NEW HAMPSHIRE": "NH", "NEW JERSEY": "NJ", "NEW MEXICO": "NM", "NEW YORK": "NY",
	"NORTH CAROLINA": "NC", "NORTH DAKOTA": "ND", "OHIO": "OH", "OKLAHOMA": "OK",
	"OREGON": "OR", "PENNSYLVANIA": "PA", "RHODE ISLAND": "RI", "SOUTH CAROLINA": "SC",
	"SOUTH DAKOTA": "SD", "TENNESSEE": "TN", "TEXAS": "TX", "UTAH": "UT",
	"VERMONT": "VT", "VIRGINIA": "VA", "WASHINGTON": "WA", "WEST VIRGINIA": "WV",
	"WISCONSIN": "WI", "WYOMING": "WY",
}
