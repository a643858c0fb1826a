package signals

import (
	"context"
	"fmt"

	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
)

// NearestCare links to the nearest accident and emergency departments.
type NearestCare struct{}

func (NearestCare) Category() risk.Category { return risk.CategoryNearestCare }

func (NearestCare) Evaluate(_ context.Context, req risk.Request) risk.Finding {
	c := req.Area.Center()
	return risk.Finding{
		Category: risk.CategoryNearestCare,
		Severity: risk.SeverityGreen,
		Detail:   "Nearest A+E search",
		ReferenceLink: fmt.Sprintf(
			"https://www.google.com/maps/search/nearest+accident+and+emergency+hospital/@%.5f,%.5f,10z",
			c.Lat, c.Lon,
		),
	}
}
