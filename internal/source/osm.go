package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/smartcity/stationmap/internal/domain"
	"github.com/smartcity/stationmap/internal/logger"
)

const (
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"
	DefaultOverpassURL  = "https://overpass-api.de/api/interpreter"
	DefaultUserAgent    = "stationmap/1.0"
)

// OSM fetches city boundaries from Nominatim and stations and subway lines
// from Overpass.
type OSM struct {
	nominatimURL string
	overpassURL  string
	userAgent    string
	httpClient   *http.Client
}

// NewOSM creates an OpenStreetMap source. Empty arguments select the public
// endpoints.
func NewOSM(nominatimURL, overpassURL, userAgent string) *OSM {
	if nominatimURL == "" {
		nominatimURL = DefaultNominatimURL
	}
	if overpassURL == "" {
		overpassURL = DefaultOverpassURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &OSM{
		nominatimURL: strings.TrimRight(nominatimURL, "/"),
		overpassURL:  overpassURL,
		userAgent:    userAgent,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

// nominatimPlace is one Nominatim search result
type nominatimPlace struct {
	DisplayName string          `json:"display_name"`
	GeoJSON     json.RawMessage `json:"geojson"`
}

// overpassResponse is the Overpass JSON output
type overpassResponse struct {
	Elements []struct {
		Type string            `json:"type"`
		ID   int64             `json:"id"`
		Lat  float64           `json:"lat"`
		Lon  float64           `json:"lon"`
		Tags map[string]string `json:"tags"`
		// Geometry is set for ways queried with "out geom".
		Geometry []struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"geometry"`
	} `json:"elements"`
}

// FetchStations returns the named station nodes inside the city boundary.
func (s *OSM) FetchStations(ctx context.Context, city string) ([]domain.RawStationRecord, domain.CityBoundary, error) {
	boundary, err := s.fetchBoundary(ctx, city)
	if err != nil {
		return nil, domain.CityBoundary{}, err
	}

	b := boundary.Polygon.Bound()
	query := fmt.Sprintf(
		`[out:json][timeout:60];(node["railway"="station"](%[1]f,%[2]f,%[3]f,%[4]f);node["station"="subway"](%[1]f,%[2]f,%[3]f,%[4]f););out body;`,
		b.Min.Lat(), b.Min.Lon(), b.Max.Lat(), b.Max.Lon(),
	)
	var ov overpassResponse
	if err := s.overpass(ctx, query, &ov); err != nil {
		return nil, domain.CityBoundary{}, err
	}

	var recs []domain.RawStationRecord
	for _, el := range ov.Elements {
		name := strings.TrimSpace(el.Tags["name"])
		if el.Type != "node" || name == "" {
			continue
		}
		recs = append(recs, domain.RawStationRecord{
			Name:     name,
			Lat:      el.Lat,
			Lon:      el.Lon,
			LineTags: lineTags(el.Tags),
		})
	}
	recs = insideBoundary(recs, boundary)
	logger.L().Debug("osm_stations_fetched", "city", city, "elements", len(ov.Elements), "stations", len(recs))

	if len(recs) == 0 {
		return nil, domain.CityBoundary{}, fmt.Errorf("osm: no transit data for %q: %w", city, domain.ErrDataUnavailable)
	}
	return recs, boundary, nil
}

// FetchLines returns the subway ways crossing the bounding box of the
// boundary, with their full geometry.
func (s *OSM) FetchLines(ctx context.Context, city string, boundary domain.CityBoundary) (orb.MultiLineString, error) {
	if len(boundary.Outer()) == 0 {
		return nil, nil
	}
	b := boundary.Polygon.Bound()
	query := fmt.Sprintf(`[out:json][timeout:60];way["railway"="subway"](%f,%f,%f,%f);out geom;`,
		b.Min.Lat(), b.Min.Lon(), b.Max.Lat(), b.Max.Lon())

	var ov overpassResponse
	if err := s.overpass(ctx, query, &ov); err != nil {
		return nil, err
	}
	var lines orb.MultiLineString
	for _, el := range ov.Elements {
		if el.Type != "way" || len(el.Geometry) < 2 {
			continue
		}
		ls := make(orb.LineString, len(el.Geometry))
		for i, g := range el.Geometry {
			ls[i] = orb.Point{g.Lon, g.Lat}
		}
		lines = append(lines, ls)
	}
	logger.L().Debug("osm_lines_fetched", "city", city, "elements", len(ov.Elements), "lines", len(lines))
	return lines, nil
}

func (s *OSM) overpass(ctx context.Context, query string, out *overpassResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.overpassURL,
		strings.NewReader(url.Values{"data": {query}}.Encode()))
	if err != nil {
		return fmt.Errorf("osm: failed to create overpass request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := s.do(req, out); err != nil {
		return fmt.Errorf("osm: overpass: %w", err)
	}
	return nil
}

func (s *OSM) fetchBoundary(ctx context.Context, city string) (domain.CityBoundary, error) {
	q := url.Values{
		"q":               {city},
		"format":          {"jsonv2"},
		"polygon_geojson": {"1"},
		"limit":           {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.nominatimURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return domain.CityBoundary{}, fmt.Errorf("osm: failed to create nominatim request: %w", err)
	}

	var places []nominatimPlace
	if err := s.do(req, &places); err != nil {
		return domain.CityBoundary{}, fmt.Errorf("osm: nominatim: %w", err)
	}
	if len(places) == 0 || len(places[0].GeoJSON) == 0 {
		return domain.CityBoundary{}, fmt.Errorf("osm: city %q not found: %w", city, domain.ErrDataUnavailable)
	}

	boundary, err := boundaryFromGeoJSON(places[0].GeoJSON)
	if err != nil {
		return domain.CityBoundary{}, fmt.Errorf("osm: boundary of %q: %w", city, err)
	}
	logger.L().Debug("osm_boundary_fetched", "city", city, "place", places[0].DisplayName, "vertices", len(boundary.Outer()))
	return boundary, nil
}

func (s *OSM) do(req *http.Request, out any) error {
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// lineTags reads the line names of a station node.
func lineTags(tags map[string]string) []string {
	var out []string
	for _, key := range []string{"line", "route_ref"} {
		for _, v := range strings.Split(tags[key], ";") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}
