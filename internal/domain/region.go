package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// Region is the part of the city closest to one station, clipped to the
// city boundary. A concave boundary can split it into several polygons.
// Polygon is empty when the station's cell misses the boundary.
type Region struct {
	OwnerStationID int              `json:"owner_station_id"`
	Polygon        orb.MultiPolygon `json:"polygon"`
	ColorIndex     int              `json:"color_index"`
	NeighborIDs    []int            `json:"neighbor_ids"`
	AreaM2         float64          `json:"area_m2"`

	// Planar is the clipped polygon in projected meters. It only lives for the
	// duration of a generation run and is never persisted.
	Planar orb.MultiPolygon `json:"-"`
}

// Empty reports whether the region has no area inside the boundary.
func (r Region) Empty() bool {
	for _, p := range r.Polygon {
		if len(p) > 0 && len(p[0]) > 0 {
			return false
		}
	}
	return true
}

// CityMapArtifact is the immutable output of one generation run.
type CityMapArtifact struct {
	GenerationID string       `json:"generation_id"`
	Slug         string       `json:"slug"`
	City         string       `json:"city"`
	Boundary     CityBoundary `json:"boundary"`
	Stations     []Station    `json:"stations"`
	Regions      []Region     `json:"regions"`
	// Lines are drawn under the regions in the viewer.
	Lines       orb.MultiLineString `json:"lines,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// Station returns the station with the given id.
func (a *CityMapArtifact) Station(id int) (Station, bool) {
	for _, s := range a.Stations {
		if s.ID == id {
			return s, true
		}
	}
	return Station{}, false
}

// NearestResult answers a click-to-measure query.
type NearestResult struct {
	Station        Station `json:"station"`
	DistanceMeters float64 `json:"distance_meters"`
	WalkingMinutes float64 `json:"walking_minutes"`
	// Inside is false when the point fell outside every region and the
	// closest station was used instead.
	Inside bool `json:"inside"`
}
