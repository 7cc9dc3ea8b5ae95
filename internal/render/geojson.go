// Package render turns artifacts into GeoJSON and a browsable HTML map.
package render

import (
	"github.com/paulmach/orb/geojson"

	"github.com/smartcity/stationmap/internal/domain"
)

// Palette holds the region fill colors, indexed by color index modulo its
// length.
var Palette = []string{
	"#e41a1c",
	"#377eb8",
	"#4daf4a",
	"#984ea3",
	"#ff7f00",
	"#ffd92f",
	"#a65628",
	"#f781bf",
}

// LineColor is the stroke of subway line features.
const LineColor = "#d62728"

// Fill returns the palette color of a color index.
func Fill(colorIndex int) string {
	if colorIndex < 0 {
		colorIndex = -colorIndex
	}
	return Palette[colorIndex%len(Palette)]
}

// FeatureCollection renders the boundary, every non-empty region, the
// subway lines and every station of an artifact, in that order. Features
// carry a "kind" property of "boundary", "region", "line" or "station".
func FeatureCollection(a *domain.CityMapArtifact) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	boundary := geojson.NewFeature(a.Boundary.Polygon)
	boundary.Properties["kind"] = "boundary"
	boundary.Properties["city"] = a.City
	fc.Append(boundary)

	byID := make(map[int]domain.Station, len(a.Stations))
	for _, s := range a.Stations {
		byID[s.ID] = s
	}

	for _, r := range a.Regions {
		if r.Empty() {
			continue
		}
		s := byID[r.OwnerStationID]
		f := geojson.NewFeature(r.Polygon)
		f.Properties["kind"] = "region"
		f.Properties["station_id"] = r.OwnerStationID
		f.Properties["name"] = s.Name
		f.Properties["lines"] = lines(s)
		f.Properties["color_index"] = r.ColorIndex
		f.Properties["fill"] = Fill(r.ColorIndex)
		f.Properties["neighbors"] = r.NeighborIDs
		f.Properties["area_m2"] = r.AreaM2
		fc.Append(f)
	}

	for _, ls := range a.Lines {
		if len(ls) < 2 {
			continue
		}
		f := geojson.NewFeature(ls)
		f.Properties["kind"] = "line"
		f.Properties["stroke"] = LineColor
		fc.Append(f)
	}

	for _, s := range a.Stations {
		f := geojson.NewFeature(s.Point())
		f.Properties["kind"] = "station"
		f.Properties["station_id"] = s.ID
		f.Properties["name"] = s.Name
		f.Properties["lines"] = lines(s)
		fc.Append(f)
	}
	return fc
}

func lines(s domain.Station) []string {
	if s.LineTags == nil {
		return []string{}
	}
	return s.LineTags
}
