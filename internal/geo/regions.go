// Package geo assigns museums to regions, either by point-in-polygon lookup
// against a boundary shapefile or by the state-level census region table.
package geo

import "strings"

// Census region names.
const (
	RegionNortheast = "Northeast"
	RegionMidwest   = "Midwest"
	RegionSouth     = "South"
	RegionWest      = "West"
)

var stateRegions = map[string]string{
	"CT": RegionNortheast, "ME": RegionNortheast, "MA": RegionNortheast,
	"NH": RegionNortheast, "RI": RegionNortheast, "VT": RegionNortheast,
	"NJ": RegionNortheast, "NY": RegionNortheast, "PA": RegionNortheast,

	"IL": RegionMidwest, "IN": RegionMidwest, "MI": RegionMidwest,
	"OH": RegionMidwest, "WI": RegionMidwest, "IA": RegionMidwest,
	"KS": RegionMidwest, "MN": RegionMidwest, "MO": RegionMidwest,
	"NE": RegionMidwest, "ND": RegionMidwest, "SD": RegionMidwest,

	"DE": RegionSouth, "FL": RegionSouth, "GA": RegionSouth,
	"MD": RegionSouth, "NC": RegionSouth, "SC": RegionSouth,
	"VA": RegionSouth, "DC": RegionSouth, "WV": RegionSouth,
	"AL": RegionSouth, "KY": RegionSouth, "MS": RegionSouth,
	"TN": RegionSouth, "AR": RegionSouth, "LA": RegionSouth,
	"OK": RegionSouth, "TX": RegionSouth,

	"AZ": RegionWest, "CO": RegionWest, "ID": RegionWest,
	"MT": RegionWest, "NV": RegionWest, "NM": RegionWest,
	"UT": RegionWest, "WY": RegionWest, "AK": RegionWest,
	"CA": RegionWest, "HI": RegionWest, "OR": RegionWest,
	"WA": RegionWest,
}

// RegionForState returns the census region for a two-letter state code, or ""
// for territories and unknown codes.
func RegionForState(state string) string {
	return stateRegions[strings.ToUpper(strings.TrimSpace(state))]
}
