package signals

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
)

var (
	notamRedPattern   = regexp.MustCompile(`(?i)\b(PROHIBITED|RESTRICTED AREA|DANGER AREA|TEMPORARY RESTRICTED|TDA|TRA|NO[- ]FLY|UAS PROHIBITED)\b`)
	notamAmberPattern = regexp.MustCompile(`(?i)\b(NOTAM|UAS|UNMANNED|DRONE|PARACHUT\w*|AEROBATIC\w*|CRANE|LASER|BALLOON|AIR DISPLAY)\b`)
)

// NOTAMs fetches NOTAM text for the area and classifies it by keyword. The
// url template may contain {lat}, {lon}, {start} and {end}.
type NOTAMs struct {
	fetcher     Fetcher
	urlTemplate string
}

func (n *NOTAMs) Category() risk.Category { return risk.CategoryNOTAMs }

func (n *NOTAMs) Evaluate(ctx context.Context, req risk.Request) risk.Finding {
	if n.urlTemplate == "" {
		return risk.Failed(risk.CategoryNOTAMs, "no NOTAM source configured")
	}

	center := req.Area.Center()
	target := strings.NewReplacer(
		"{lat}", strconv.FormatFloat(center.Lat, 'f', 4, 64),
		"{lon}", strconv.FormatFloat(center.Lon, 'f', 4, 64),
		"{start}", req.Window.Start.UTC().Format("2006-01-02T15:04:05Z"),
		"{end}", req.Window.End.UTC().Format("2006-01-02T15:04:05Z"),
	).Replace(n.urlTemplate)

	body, err := n.fetcher.Fetch(ctx, target)
	if err != nil {
		return risk.Failed(risk.CategoryNOTAMs, err.Error())
	}

	finding := ClassifyNOTAMText(string(body))
	finding.ReferenceLink = target
	return finding
}

// ClassifyNOTAMText maps NOTAM text to a finding: prohibited or restricted
// areas are red, any other aviation warning is amber.
func ClassifyNOTAMText(text string) risk.Finding {
	f := risk.Finding{Category: risk.CategoryNOTAMs}
	if m := notamRedPattern.FindString(text); m != "" {
		f.Severity = risk.SeverityRed
		f.Detail = fmt.Sprintf("Restriction NOTAM active (%s)", strings.ToUpper(m))
		return f
	}
	if m := notamAmberPattern.FindAllString(text, -1); len(m) > 0 {
		f.Severity = risk.SeverityAmber
		f.Detail = fmt.Sprintf("%d NOTAM warning(s) in area, review before flight", len(m))
		return f
	}
	f.Severity = risk.SeverityGreen
	f.Detail = "No NOTAMs detected"
	return f
}
