package tables

import (
	"sort"
	"strings"
)

// UsStates maps US state full names to their abbreviations.
var UsStates = map[string]string{
	"alabama":        "AL",
	"alaska":         "AK",
	"arizona":        "AZ",
	"arkansas":       "AR",
	"california":     "CA",
	"colorado":       "CO",
	"connecticut":    "CT",
	"delaware":       "DE",
	"florida":        "FL",
	"georgia":        "GA",
	"hawaii":         "HI",
	"idaho":          "ID",
	"illinois":       "IL",
	"indiana":        "IN",
	"iowa":           "IA",
	"kansas":         "KS",
	"kentucky":       "KY",
	"louisiana":      "LA",
	"maine":          "ME",
	"maryland":       "MD",
	"massachusetts":  "MA",
	"michigan":       "MI",
	"minnesota":      "MN",
	"mississippi":    "MS",
	"missouri":       "MO",
	"montana":        "MT",
	"nebraska":       "NE",
	"nevada":         "NV",
	"new hampshire":  "NH",
	"new jersey":     "NJ",
	"new mexico":     "NM",
	"new york":       "NY",
	"north carolina": "NC",
	"north dakota":   "ND",
	"ohio":           "OH",
	"oklahoma":       "OK",
	"oregon":         "OR",
	"pennsylvania":   "PA",
	"rhode island":   "RI",
	"south carolina": "SC",
	"south dakota":   "SD",
	"tennessee":      "TN",
	"texas":          "TX",
	"utah":           "UT",
	"vermont":        "VT",
	"virginia":       "VA",
	"washington":     "WA",
	"west virginia":  "WV",
	"wisconsin":      "WI",
	"wyoming":        "WY",
}

// CaProvinces maps Canadian province and territory names to their codes.
var CaProvinces = map[string]string{
	"alberta":                   "AB",
	"british columbia":          "BC",
	"manitoba":                  "MB",
	"new brunswick":             "NB",
	"newfoundland and labrador": "NL",
	"nova scotia":               "NS",
	"ontario":                   "ON",
	"prince edward island":      "PE",
	"quebec":                    "QC",
	"saskatchewan":              "SK",
	"northwest territories":     "NT",
	"nunavut":                   "NU",
	"yukon":                     "YT",
}

// Codes returns the sorted abbreviations of a name-to-code map.
func Codes(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, code := range m {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// NormalizeRegion converts a US state or Canadian province name to its
// 2-letter code. Codes come back upper-cased; anything else is returned
// as-is.
func NormalizeRegion(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)

	if code, ok := UsStates[lower]; ok {
		return code
	}
	if code, ok := CaProvinces[lower]; ok {
		return code
	}

	upper := strings.ToUpper(s)
	for _, m := range []map[string]string{UsStates, CaProvinces} {
		for _, code := range m {
			if upper == code {
				return code
			}
		}
	}
	return s
}
