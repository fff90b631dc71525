package clicks

import (
	"net/http"
	"regexp"
	"strings"
)

var countryCode = regexp.MustCompile(`^[A-Z]{2}$`)

// HeaderGeoLocator reads visitor location from headers set by an edge
// proxy or CDN.
type HeaderGeoLocator struct {
	CountryHeaders []string
	CityHeaders    []string
}

// DefaultGeoLocator understands Cloudflare and generic proxy headers.
func DefaultGeoLocator() HeaderGeoLocator {
	return HeaderGeoLocator{
		CountryHeaders: []string{"CF-IPCountry", "X-Country-Code"},
		CityHeaders:    []string{"CF-IPCity", "X-City"},
	}
}

// Locate returns the country code and city, empty when unknown.
func (g HeaderGeoLocator) Locate(h http.Header) (country, city string) {
	for _, name := range g.CountryHeaders {
		if v := normalizeCountry(h.Get(name)); v != "" {
			country = v
			break
		}
	}
	for _, name := range g.CityHeaders {
		if v := cleanText(h.Get(name), maxCityLength); v != "" {
			city = v
			break
		}
	}
	return country, city
}

// normalizeCountry upper-cases ISO 3166 alpha-2 codes. Anything else,
// including the placeholders proxies use for unknown origin (XX) and
// Tor (T1), is dropped.
func normalizeCountry(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	if !countryCode.MatchString(v) {
		return ""
	}
	switch v {
	case "XX", "T1":
		return ""
	}
	return v
}
