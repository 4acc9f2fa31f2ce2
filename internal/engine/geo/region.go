// Package geo defines the spatial query region a scan runs against.
package geo

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Circle is a query region: a radius in meters around a center point.
type Circle struct {
	Center  orb.Point
	RadiusM int
}

// NewCircle validates coordinates and builds a circular query region.
func NewCircle(lat, lng float64, radiusM int) (Circle, error) {
	if radiusM <= 0 {
		return Circle{}, fmt.Errorf("circle radius must be positive, got %d", radiusM)
	}
	if lat < -90 || lat > 90 {
		return Circle{}, fmt.Errorf("latitude %.4f out of range [-90, 90]", lat)
	}
	if lng < -180 || lng > 180 {
		return Circle{}, fmt.Errorf("longitude %.4f out of range [-180, 180]", lng)
	}
	return Circle{Center: orb.Point{lng, lat}, RadiusM: radiusM}, nil
}

// Lat returns the center latitude.
func (c Circle) Lat() float64 { return c.Center.Lat() }

// Lng returns the center longitude.
func (c Circle) Lng() float64 { return c.Center.Lon() }

// BuildRegion resolves a configured location mode into a query region.
// Only "circle" is supported today; the other recognized modes are
// rejected up front rather than silently scanning the wrong area.
func BuildRegion(mode string, lat, lng float64, radiusM int) (Circle, error) {
	switch mode {
	case "circle":
		return NewCircle(lat, lng, radiusM)
	case "region", "customArea":
		return Circle{}, fmt.Errorf("location mode %q is recognized but not supported, use \"circle\"", mode)
	default:
		return Circle{}, fmt.Errorf("unknown location mode %q", mode)
	}
}
