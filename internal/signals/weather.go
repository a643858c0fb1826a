package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
)

const openMeteoTimeLayout = "2006-01-02T15:04"

// Weather classifies the hourly Open-Meteo forecast over the flight window
// against the organisation's wind and rain thresholds.
type Weather struct {
	fetcher Fetcher
	baseURL string
}

type openMeteoResponse struct {
	Hourly struct {
		Time          []string  `json:"time"`
		WindSpeed     []float64 `json:"wind_speed_10m"`
		WindGusts     []float64 `json:"wind_gusts_10m"`
		Precipitation []float64 `json:"precipitation"`
	} `json:"hourly"`
}

func (w *Weather) Category() risk.Category { return risk.CategoryWeather }

func (w *Weather) Evaluate(ctx context.Context, req risk.Request) risk.Finding {
	center := req.Area.Center()

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(center.Lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(center.Lon, 'f', 4, 64))
	q.Set("hourly", "wind_speed_10m,wind_gusts_10m,precipitation")
	q.Set("wind_speed_unit", "mph")
	q.Set("timezone", "UTC")
	q.Set("start_date", req.Window.Start.UTC().Format("2006-01-02"))
	q.Set("end_date", req.Window.End.UTC().Format("2006-01-02"))

	body, err := w.fetcher.Fetch(ctx, w.baseURL+"?"+q.Encode())
	if err != nil {
		return risk.Failed(risk.CategoryWeather, err.Error())
	}

	var forecast openMeteoResponse
	if err := json.Unmarshal(body, &forecast); err != nil {
		return risk.Failed(risk.CategoryWeather, fmt.Sprintf("invalid forecast: %v", err))
	}

	return classifyWeather(forecast, req.Window, req.Thresholds)
}

func classifyWeather(f openMeteoResponse, window risk.Window, th risk.Thresholds) risk.Finding {
	// Include the hour the window starts in.
	from := window.Start.UTC().Truncate(time.Hour)
	to := window.End.UTC()

	var (
		hours    int
		maxWind  float64
		maxGust  float64
		rainHour bool
	)
	for i, ts := range f.Hourly.Time {
		t, err := time.Parse(openMeteoTimeLayout, ts)
		if err != nil || t.Before(from) || t.After(to) {
			continue
		}
		hours++
		if i < len(f.Hourly.WindSpeed) && f.Hourly.WindSpeed[i] > maxWind {
			maxWind = f.Hourly.WindSpeed[i]
		}
		if i < len(f.Hourly.WindGusts) && f.Hourly.WindGusts[i] > maxGust {
			maxGust = f.Hourly.WindGusts[i]
		}
		if i < len(f.Hourly.Precipitation) && f.Hourly.Precipitation[i] > 0 {
			rainHour = true
		}
	}

	if hours == 0 {
		return risk.Failed(risk.CategoryWeather, "forecast does not cover the flight window")
	}

	detail := fmt.Sprintf("Max wind ~%.0fmph, gusts ~%.0fmph", maxWind, maxGust)
	if rainHour {
		detail += ", precipitation expected"
	}

	severity := risk.SeverityGreen
	switch {
	case maxWind >= th.WindRedMPH:
		severity = risk.SeverityRed
	case maxWind >= th.WindAmberMPH:
		severity = risk.SeverityAmber
	case rainHour && th.RainTriggersCaution:
		severity = risk.SeverityAmber
	}

	return risk.Finding{
		Category: risk.CategoryWeather,
		Severity: severity,
		Detail:   detail,
	}
}
