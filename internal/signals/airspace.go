package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"

	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
)

var airspaceHazardPattern = regexp.MustCompile(`(?i)(Restricted|Hazard|Warning|No Fly|NFZ)`)

// Airspace scans the drone safety map page for the area through a CORS
// proxy. A page without hazard markers still needs a manual review, so it
// is never better than amber.
type Airspace struct {
	fetcher  Fetcher
	proxyURL string
}

type proxyResponse struct {
	Contents string `json:"contents"`
}

func (a *Airspace) Category() risk.Category { return risk.CategoryAirspace }

// MapURL returns the drone safety map link for a point.
func MapURL(p risk.Point) string {
	return fmt.Sprintf("https://dronesafetymap.com/#lat=%.5f&lon=%.5f&z=12", p.Lat, p.Lon)
}

func (a *Airspace) Evaluate(ctx context.Context, req risk.Request) risk.Finding {
	mapURL := MapURL(req.Area.Center())

	body, err := a.fetcher.Fetch(ctx, a.proxyURL+"?url="+url.QueryEscape(mapURL))
	if err != nil {
		f := risk.Failed(risk.CategoryAirspace, err.Error())
		f.ReferenceLink = mapURL
		return f
	}

	var page proxyResponse
	if err := json.Unmarshal(body, &page); err != nil {
		f := risk.Failed(risk.CategoryAirspace, fmt.Sprintf("invalid proxy response: %v", err))
		f.ReferenceLink = mapURL
		return f
	}

	if airspaceHazardPattern.MatchString(page.Contents) {
		return risk.Finding{
			Category:      risk.CategoryAirspace,
			Severity:      risk.SeverityRed,
			Detail:        "Restricted zones or hazards detected on the drone safety map",
			ReferenceLink: mapURL,
		}
	}
	return risk.Finding{
		Category:      risk.CategoryAirspace,
		Severity:      risk.SeverityAmber,
		Detail:        "No obvious hazards detected (review manually)",
		ReferenceLink: mapURL,
	}
}
