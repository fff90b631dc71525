package clicks

import (
	"math"
	"strings"

	"github.com/mikepea/linkcash/pkg/linkcash/config"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
)

// DefaultFlatRate is the earning per click when no policy is configured.
const DefaultFlatRate = 0.005

// ClickContext is the information a pricing policy may look at.
type ClickContext struct {
	Country string
	Device  string
	Browser string
	Referer string
}

// Pricer decides what a click earns. Implementations must be
// deterministic and free of side effects.
type Pricer interface {
	Price(link *models.Link, click ClickContext) float64
}

// FlatRate pays the same amount for every click.
type FlatRate float64

func (f FlatRate) Price(*models.Link, ClickContext) float64 {
	return float64(f)
}

// CountryRate pays per visitor country, falling back to Default.
type CountryRate struct {
	Rates   map[string]float64
	Default float64
}

// NewCountryRate normalises country keys to upper case.
func NewCountryRate(rates map[string]float64, fallback float64) CountryRate {
	normalized := make(map[string]float64, len(rates))
	for k, v := range rates {
		normalized[strings.ToUpper(k)] = v
	}
	return CountryRate{Rates: normalized, Default: fallback}
}

func (c CountryRate) Price(_ *models.Link, click ClickContext) float64 {
	if rate, ok := c.Rates[strings.ToUpper(click.Country)]; ok {
		return rate
	}
	return c.Default
}

// AdGate pays nothing for links whose owner turned ads off.
type AdGate struct {
	Next Pricer
}

func (a AdGate) Price(link *models.Link, click ClickContext) float64 {
	if !link.Settings.AdEnabled {
		return 0
	}
	return a.Next.Price(link, click)
}

// NewPricer builds the configured pricing policy.
func NewPricer(cfg config.PricingConfig) Pricer {
	var p Pricer = FlatRate(cfg.FlatRate)
	if cfg.Policy == "country" {
		p = NewCountryRate(cfg.CountryRates, cfg.DefaultRate)
	}
	if cfg.RespectAds {
		p = AdGate{Next: p}
	}
	return p
}

func clampEarning(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
