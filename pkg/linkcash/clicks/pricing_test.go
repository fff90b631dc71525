package clicks

import (
	"math"
	"testing"

	"github.com/mikepea/linkcash/pkg/linkcash/config"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"github.com/stretchr/testify/assert"
)

func TestFlatRate(t *testing.T) {
	link := &models.Link{}
	assert.Equal(t, 0.005, FlatRate(DefaultFlatRate).Price(link, ClickContext{Country: "US"}))
}

func TestCountryRate(t *testing.T) {
	p := NewCountryRate(map[string]float64{"us": 0.01, "IN": 0.001}, 0.002)
	link := &models.Link{}

	assert.Equal(t, 0.01, p.Price(link, ClickContext{Country: "US"}))
	assert.Equal(t, 0.001, p.Price(link, ClickContext{Country: "in"}))
	assert.Equal(t, 0.002, p.Price(link, ClickContext{Country: "FR"}))
	assert.Equal(t, 0.002, p.Price(link, ClickContext{Country: models.Unknown}))
}

func TestAdGate(t *testing.T) {
	p := AdGate{Next: FlatRate(0.005)}

	withAds := &models.Link{Settings: models.LinkSettings{AdEnabled: true}}
	withoutAds := &models.Link{Settings: models.LinkSettings{AdEnabled: false}}

	assert.Equal(t, 0.005, p.Price(withAds, ClickContext{}))
	assert.Equal(t, 0.0, p.Price(withoutAds, ClickContext{}))
}

func TestNewPricer(t *testing.T) {
	link := &models.Link{Settings: models.LinkSettings{AdEnabled: false}}

	flat := NewPricer(config.PricingConfig{Policy: "flat", FlatRate: 0.005})
	assert.Equal(t, 0.005, flat.Price(link, ClickContext{}))

	country := NewPricer(config.PricingConfig{Policy: "country", DefaultRate: 0.001, CountryRates: map[string]float64{"de": 0.02}})
	assert.Equal(t, 0.02, country.Price(link, ClickContext{Country: "DE"}))

	gated := NewPricer(config.PricingConfig{Policy: "flat", FlatRate: 0.005, RespectAds: true})
	assert.Equal(t, 0.0, gated.Price(link, ClickContext{}))
}

func TestClampEarning(t *testing.T) {
	assert.Equal(t, 0.0, clampEarning(-1))
	assert.Equal(t, 0.0, clampEarning(math.NaN()))
	assert.Equal(t, 0.0, clampEarning(math.Inf(1)))
	assert.Equal(t, 0.25, clampEarning(0.25))
}
