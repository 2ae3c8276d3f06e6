package domain

import (
	"sort"
	"strings"
)

// RegionCode identifies a marketplace locale
type RegionCode string

const (
	RegionUS RegionCode = "US"
	RegionUK RegionCode = "UK"
	RegionDE RegionCode = "DE"
	RegionFR RegionCode = "FR"
	RegionCA RegionCode = "CA"
	RegionJP RegionCode = "JP"
)

// Region is the static configuration of one marketplace locale
type Region struct {
	Code     RegionCode `json:"code"`
	Domain   string     `json:"domain"`
	Currency string     `json:"currency"`
	Name     string     `json:"name"`
	Language string     `json:"language"`
	// Suffix is the legacy marketplace identifier stored by older settings ("com", "co.uk", ...)
	Suffix string `json:"suffix"`
}

var regions = map[RegionCode]Region{
	RegionUS: {Code: RegionUS, Domain: "www.amazon.com", Currency: "$", Name: "United States", Language: "en-US,en;q=0.9", Suffix: "com"},
	RegionUK: {Code: RegionUK, Domain: "www.amazon.co.uk", Currency: "£", Name: "United Kingdom", Language: "en-GB,en;q=0.9", Suffix: "co.uk"},
	RegionDE: {Code: RegionDE, Domain: "www.amazon.de", Currency: "€", Name: "Germany", Language: "de-DE,de;q=0.9,en;q=0.5", Suffix: "de"},
	RegionFR: {Code: RegionFR, Domain: "www.amazon.fr", Currency: "€", Name: "France", Language: "fr-FR,fr;q=0.9,en;q=0.5", Suffix: "fr"},
	RegionCA: {Code: RegionCA, Domain: "www.amazon.ca", Currency: "$", Name: "Canada", Language: "en-CA,en;q=0.9", Suffix: "ca"},
	RegionJP: {Code: RegionJP, Domain: "www.amazon.co.jp", Currency: "¥", Name: "Japan", Language: "ja-JP,ja;q=0.9,en;q=0.5", Suffix: "co.jp"},
}

// LookupRegion resolves a region code or legacy marketplace suffix, case-insensitively
func LookupRegion(code string) (Region, error) {
	c := strings.TrimSpace(code)
	if r, ok := regions[RegionCode(strings.ToUpper(c))]; ok {
		return r, nil
	}
	lower := strings.ToLower(c)
	for _, r := range regions {
		if r.Suffix == lower {
			return r, nil
		}
	}
	return Region{}, ErrUnknownRegion
}

// MustRegion returns the region for a known code and panics otherwise.
// Only use with the RegionXX constants.
func MustRegion(code RegionCode) Region {
	r, ok := regions[code]
	if !ok {
		panic("domain: unknown region " + string(code))
	}
	return r
}

// Regions returns every configured region ordered by code
func Regions() []Region {
	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// BaseURL returns the https origin of the region's marketplace
func (r Region) BaseURL() string {
	return "https://" + r.Domain
}
