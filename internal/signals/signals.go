// Package signals implements the risk providers backed by third-party data
// sources.
package signals

import "github.com/joffchandler/Sentinel-flight-ops/internal/risk"

// Default upstream endpoints.
const (
	DefaultWeatherURL       = "https://api.open-meteo.com/v1/forecast"
	DefaultSolarURL         = "https://services.swpc.noaa.gov/products/noaa-planetary-k-index.json"
	DefaultAirspaceProxyURL = "https://api.allorigins.win/get"
	DefaultOverpassURL      = "https://overpass-api.de/api/interpreter"
)

// Options configures the provider set.
type Options struct {
	Fetcher Fetcher

	WeatherURL       string
	NOTAMURL         string
	SolarURL         string
	AirspaceProxyURL string
	OverpassURL      string
}

func (o Options) withDefaults() Options {
	if o.WeatherURL == "" {
		o.WeatherURL = DefaultWeatherURL
	}
	if o.SolarURL == "" {
		o.SolarURL = DefaultSolarURL
	}
	if o.AirspaceProxyURL == "" {
		o.AirspaceProxyURL = DefaultAirspaceProxyURL
	}
	if o.OverpassURL == "" {
		o.OverpassURL = DefaultOverpassURL
	}
	return o
}

// Providers returns one provider per registered risk category.
func Providers(opts Options) []risk.Provider {
	opts = opts.withDefaults()
	return []risk.Provider{
		&Weather{fetcher: opts.Fetcher, baseURL: opts.WeatherURL},
		&NOTAMs{fetcher: opts.Fetcher, urlTemplate: opts.NOTAMURL},
		&SolarActivity{fetcher: opts.Fetcher, url: opts.SolarURL},
		&Airspace{fetcher: opts.Fetcher, proxyURL: opts.AirspaceProxyURL},
		&GroundHazards{fetcher: opts.Fetcher, baseURL: opts.OverpassURL},
		NearestCare{},
		&CredentialExpiry{},
	}
}
