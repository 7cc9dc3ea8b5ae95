package geometry

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// EarthRadiusMeters is the mean Earth radius.
const EarthRadiusMeters = 6371008.8

const deg = math.Pi / 180

// Projection is an azimuthal equidistant projection centered on a city.
// Distances from the center are exact and, at city scale, Euclidean
// distance between projected points approximates ground distance in meters.
type Projection struct {
	center  orb.Point
	centerS s2.LatLng
	lon0    float64
	sinLat0 float64
	cosLat0 float64
}

// NewProjection builds a projection centered on a (lon, lat) point.
func NewProjection(center orb.Point) Projection {
	lat0 := center.Lat() * deg
	return Projection{
		center:  center,
		centerS: s2.LatLngFromDegrees(center.Lat(), center.Lon()),
		lon0:    center.Lon() * deg,
		sinLat0: math.Sin(lat0),
		cosLat0: math.Cos(lat0),
	}
}

// Center returns the projection center in (lon, lat).
func (p Projection) Center() orb.Point {
	return p.center
}

// Forward maps a (lon, lat) point to planar meters.
func (p Projection) Forward(pt orb.Point) orb.Point {
	c := p.centerS.Distance(s2.LatLngFromDegrees(pt.Lat(), pt.Lon())).Radians()
	if c == 0 {
		return orb.Point{0, 0}
	}
	lat := pt.Lat() * deg
	dLon := pt.Lon()*deg - p.lon0
	sinLat, cosLat := math.Sincos(lat)
	bearing := math.Atan2(
		math.Sin(dLon)*cosLat,
		p.cosLat0*sinLat-p.sinLat0*cosLat*math.Cos(dLon),
	)
	rho := c * EarthRadiusMeters
	return orb.Point{rho * math.Sin(bearing), rho * math.Cos(bearing)}
}

// Inverse maps planar meters back to (lon, lat).
func (p Projection) Inverse(pt orb.Point) orb.Point {
	rho := math.Hypot(pt[0], pt[1])
	if rho == 0 {
		return p.center
	}
	c := rho / EarthRadiusMeters
	bearing := math.Atan2(pt[0], pt[1])
	sinC, cosC := math.Sincos(c)
	lat := math.Asin(p.sinLat0*cosC + p.cosLat0*sinC*math.Cos(bearing))
	lon := p.lon0 + math.Atan2(math.Sin(bearing)*sinC*p.cosLat0, cosC-p.sinLat0*math.Sin(lat))
	return orb.Point{normalizeLon(lon / deg), lat / deg}
}

// ForwardPolygon projects a copy of poly.
func (p Projection) ForwardPolygon(poly orb.Polygon) orb.Polygon {
	return project.Polygon(poly.Clone(), p.Forward)
}

// ForwardMultiPolygon projects a copy of mp.
func (p Projection) ForwardMultiPolygon(mp orb.MultiPolygon) orb.MultiPolygon {
	return project.MultiPolygon(mp.Clone(), p.Forward)
}

// InverseMultiPolygon unprojects a copy of mp.
func (p Projection) InverseMultiPolygon(mp orb.MultiPolygon) orb.MultiPolygon {
	return project.MultiPolygon(mp.Clone(), p.Inverse)
}

func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
