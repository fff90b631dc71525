package clicks

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderGeoLocator(t *testing.T) {
	g := DefaultGeoLocator()

	tests := []struct {
		name    string
		headers map[string]string
		country string
		city    string
	}{
		{"cloudflare", map[string]string{"CF-IPCountry": "us", "CF-IPCity": "Austin"}, "US", "Austin"},
		{"generic proxy", map[string]string{"X-Country-Code": "IN", "X-City": "Pune"}, "IN", "Pune"},
		{"cloudflare wins", map[string]string{"CF-IPCountry": "DE", "X-Country-Code": "FR"}, "DE", ""},
		{"unknown placeholder falls through", map[string]string{"CF-IPCountry": "XX", "X-Country-Code": "BR"}, "BR", ""},
		{"tor", map[string]string{"CF-IPCountry": "T1"}, "", ""},
		{"nothing", map[string]string{}, "", ""},
		{"alpha-3 code", map[string]string{"CF-IPCountry": "USA"}, "", ""},
		{"oversized code", map[string]string{"CF-IPCountry": strings.Repeat("A", 200)}, "", ""},
		{"digits", map[string]string{"CF-IPCountry": "1A", "X-Country-Code": "gb"}, "GB", ""},
		{"oversized city", map[string]string{"X-City": strings.Repeat("c", 300)}, "", strings.Repeat("c", 128)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			country, city := g.Locate(h)
			assert.Equal(t, tt.country, country)
			assert.Equal(t, tt.city, city)
		})
	}
}
