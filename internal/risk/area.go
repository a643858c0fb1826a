package risk

import (
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/validation"
)

// pointRadiusDeg is the half-size of the box searched around a single point.
const pointRadiusDeg = 0.01

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BoundingBox is a WGS84 rectangle.
type BoundingBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Area is the operating area of a flight: either a point or a bounding box.
type Area struct {
	Point *Point       `json:"point,omitempty"`
	Box   *BoundingBox `json:"box,omitempty"`
}

// Validate checks that exactly one shape is set and that coordinates are in range.
func (a Area) Validate() error {
	switch {
	case a.Point == nil && a.Box == nil:
		return validation.Required("location")
	case a.Point != nil && a.Box != nil:
		return validation.Invalid("location", "must be a point or a bounding box, not both")
	case a.Point != nil:
		if !validLat(a.Point.Lat) || !validLon(a.Point.Lon) {
			return validation.Invalid("location", "coordinates out of range")
		}
	default:
		b := a.Box
		if !validLat(b.South) || !validLat(b.North) || !validLon(b.West) || !validLon(b.East) {
			return validation.Invalid("location", "coordinates out of range")
		}
		if b.South > b.North || b.West > b.East {
			return validation.Invalid("location", "bounding box corners are inverted")
		}
	}
	return nil
}

// Center returns the point or the centre of the box.
func (a Area) Center() Point {
	if a.Point != nil {
		return *a.Point
	}
	if a.Box == nil {
		return Point{}
	}
	return Point{
		Lat: (a.Box.South + a.Box.North) / 2,
		Lon: (a.Box.West + a.Box.East) / 2,
	}
}

// Bounds returns the box, or a small box around the point.
func (a Area) Bounds() BoundingBox {
	if a.Box != nil {
		return *a.Box
	}
	c := a.Center()
	return BoundingBox{
		South: c.Lat - pointRadiusDeg,
		West:  c.Lon - pointRadiusDeg,
		North: c.Lat + pointRadiusDeg,
		East:  c.Lon + pointRadiusDeg,
	}
}

func validLat(v float64) bool { return v >= -90 && v <= 90 }
func validLon(v float64) bool { return v >= -180 && v <= 180 }

// Window is the planned flight time window.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks that both ends are set and ordered.
func (w Window) Validate() error {
	if w.Start.IsZero() {
		return validation.Required("flightWindow.start")
	}
	if w.End.IsZero() {
		return validation.Required("flightWindow.end")
	}
	if w.End.Before(w.Start) {
		return validation.Invalid("flightWindow.end", "must not be before start")
	}
	return nil
}

// Thresholds are the organisation's weather limits used by the weather provider.
type Thresholds struct {
	WindAmberMPH        float64 `json:"windAmberMph"`
	WindRedMPH          float64 `json:"windRedMph"`
	RainTriggersCaution bool    `json:"rainTriggersCaution"`
}

// DefaultThresholds apply to principals without an organisation.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WindAmberMPH:        15,
		WindRedMPH:          25,
		RainTriggersCaution: true,
	}
}

// Validate checks that the limits are positive and ordered.
func (t Thresholds) Validate() error {
	if t.WindAmberMPH <= 0 {
		return validation.Invalid("riskThresholds.windAmberMph", "must be positive")
	}
	if t.WindRedMPH <= t.WindAmberMPH {
		return validation.Invalid("riskThresholds.windRedMph", "must be greater than windAmberMph")
	}
	return nil
}

// Request carries everything a provider may need for one evaluation.
type Request struct {
	Area        Area
	Window      Window
	Credentials identity.CredentialSet
	Thresholds  Thresholds
}

// Validate checks the area and window.
func (r Request) Validate() error {
	if err := r.Area.Validate(); err != nil {
		return err
	}
	return r.Window.Validate()
}
