package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
)

// GroundHazards queries OpenStreetMap through Overpass for sensitive sites
// and infrastructure inside the area.
type GroundHazards struct {
	fetcher Fetcher
	baseURL string
}

type overpassResponse struct {
	Elements []struct {
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

func (g *GroundHazards) Category() risk.Category { return risk.CategoryGroundHazards }

func overpassQuery(b risk.BoundingBox) string {
	bbox := fmt.Sprintf("(%.5f,%.5f,%.5f,%.5f)", b.South, b.West, b.North, b.East)
	return "[out:json][timeout:10];(" +
		`nwr["amenity"="prison"]` + bbox + ";" +
		`nwr["landuse"="military"]` + bbox + ";" +
		`way["power"="line"]` + bbox + ";" +
		`way["railway"="rail"]` + bbox + ";" +
		");out tags 100;"
}

func (g *GroundHazards) Evaluate(ctx context.Context, req risk.Request) risk.Finding {
	target := g.baseURL + "?data=" + url.QueryEscape(overpassQuery(req.Area.Bounds()))

	body, err := g.fetcher.Fetch(ctx, target)
	if err != nil {
		return risk.Failed(risk.CategoryGroundHazards, err.Error())
	}

	var resp overpassResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return risk.Failed(risk.CategoryGroundHazards, fmt.Sprintf("invalid overpass response: %v", err))
	}
	return classifyHazards(resp)
}

func classifyHazards(resp overpassResponse) risk.Finding {
	red := map[string]bool{}
	amber := map[string]bool{}
	for _, el := range resp.Elements {
		switch {
		case el.Tags["amenity"] == "prison":
			red["prison"] = true
		case el.Tags["landuse"] == "military" || el.Tags["military"] != "":
			red["military site"] = true
		case el.Tags["power"] == "line":
			amber["power lines"] = true
		case el.Tags["railway"] == "rail":
			amber["railway"] = true
		}
	}

	f := risk.Finding{Category: risk.CategoryGroundHazards}
	switch {
	case len(red) > 0:
		f.Severity = risk.SeverityRed
		f.Detail = "Sensitive sites in area: " + joinKeys(red)
	case len(amber) > 0:
		f.Severity = risk.SeverityAmber
		f.Detail = "Ground hazards in area: " + joinKeys(amber)
	default:
		f.Severity = risk.SeverityGreen
		f.Detail = "No mapped ground hazards"
	}
	return f
}

func joinKeys(m map[string]bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
