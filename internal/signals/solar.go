package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
)

const (
	kpRed   = 7.0
	kpAmber = 5.0
)

// SolarActivity reads the latest planetary K-index from NOAA SWPC. Strong
// geomagnetic storms degrade GNSS and compass performance.
type SolarActivity struct {
	fetcher Fetcher
	url     string
}

func (s *SolarActivity) Category() risk.Category { return risk.CategorySolarActivity }

func (s *SolarActivity) Evaluate(ctx context.Context, _ risk.Request) risk.Finding {
	body, err := s.fetcher.Fetch(ctx, s.url)
	if err != nil {
		return risk.Failed(risk.CategorySolarActivity, err.Error())
	}

	kp, err := latestKp(body)
	if err != nil {
		return risk.Failed(risk.CategorySolarActivity, err.Error())
	}

	f := risk.Finding{
		Category:      risk.CategorySolarActivity,
		ReferenceLink: "https://www.swpc.noaa.gov/products/planetary-k-index",
	}
	switch {
	case kp >= kpRed:
		f.Severity = risk.SeverityRed
		f.Detail = fmt.Sprintf("Kp-index %.1f, severe geomagnetic storm", kp)
	case kp >= kpAmber:
		f.Severity = risk.SeverityAmber
		f.Detail = fmt.Sprintf("Kp-index %.1f, geomagnetic storm", kp)
	default:
		f.Severity = risk.SeverityGreen
		f.Detail = fmt.Sprintf("Kp-index %.1f, low", kp)
	}
	return f
}

// latestKp accepts both SWPC layouts: a table with a header row, or a list
// of objects.
func latestKp(body []byte) (float64, error) {
	var table [][]any
	if err := json.Unmarshal(body, &table); err == nil && len(table) > 1 {
		col := -1
		for i, h := range table[0] {
			if name, ok := h.(string); ok && (name == "Kp" || name == "kp") {
				col = i
			}
		}
		if col == -1 {
			return 0, errors.New("K-index column missing")
		}
		last := table[len(table)-1]
		if col >= len(last) {
			return 0, errors.New("K-index row truncated")
		}
		return toFloat(last[col])
	}

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, fmt.Errorf("invalid K-index data: %w", err)
	}
	if len(rows) == 0 {
		return 0, errors.New("no K-index data")
	}
	last := rows[len(rows)-1]
	for _, key := range []string{"Kp", "kp", "kp_index"} {
		if v, ok := last[key]; ok {
			return toFloat(v)
		}
	}
	return 0, errors.New("K-index field missing")
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid K-index value %q", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("invalid K-index value %v", v)
}
