package render

import (
	"fmt"
	"html/template"
	"io"

	"github.com/smartcity/stationmap/internal/domain"
)

// Links are the API URLs the viewer page calls back into.
type Links struct {
	GeoJSON string
	Nearest string
}

type pageData struct {
	City        string
	Stations    int
	GeneratedAt string
	CenterLat   float64
	CenterLon   float64
	Links       Links
}

var page = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.City}} station coverage</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<style>
html, body, #map { height: 100%; margin: 0; }
.info { position: absolute; bottom: 20px; left: 10px; z-index: 1000; background: #fff;
        padding: 8px 12px; border-radius: 4px; font: 14px sans-serif; box-shadow: 0 1px 4px rgba(0,0,0,.3); }
</style>
</head>
<body>
<div id="map"></div>
<div class="info">
  <strong>{{.City}}</strong><br>
  {{.Stations}} stations, generated {{.GeneratedAt}}<br>
  <span id="nearest">Click the map to find the closest station.</span>
</div>
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<script>
const map = L.map('map').setView([{{.CenterLat}}, {{.CenterLon}}], 11);
L.tileLayer('https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png', {
  attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);

fetch({{.Links.GeoJSON}}).then(r => r.json()).then(fc => {
  L.geoJSON(fc, {
    filter: f => f.properties.kind === 'boundary' || f.properties.kind === 'region',
    style: f => f.properties.kind === 'boundary'
      ? { color: '#333', weight: 2, fill: false }
      : { color: '#555', weight: 1, fillColor: f.properties.fill, fillOpacity: 0.45 },
    onEachFeature: (f, layer) => {
      if (f.properties.kind === 'region') {
        const lines = f.properties.lines.length ? ' (' + f.properties.lines.join(', ') + ')' : '';
        layer.bindTooltip(f.properties.name + lines);
      }
    }
  }).addTo(map);
  const lines = L.geoJSON(fc, {
    filter: f => f.properties.kind === 'line',
    style: f => ({ color: f.properties.stroke, weight: 3, opacity: 0.8 })
  }).addTo(map);
  const stations = L.geoJSON(fc, {
    filter: f => f.properties.kind === 'station',
    pointToLayer: (f, latlng) => L.circleMarker(latlng, { radius: 4, color: '#000', fillOpacity: 1 })
      .bindTooltip(f.properties.name)
  }).addTo(map);
  L.control.layers(null, { 'Subway lines': lines, 'Stations': stations }, { collapsed: false }).addTo(map);
});

map.on('click', e => {
  const url = {{.Links.Nearest}} + '?lat=' + e.latlng.lat + '&lon=' + e.latlng.lng;
  fetch(url).then(r => r.json()).then(res => {
    if (!res.success) { return; }
    const d = res.data;
    document.getElementById('nearest').textContent =
      d.station.name + ': ' + Math.round(d.distance_meters) + ' m, ' + d.walking_minutes.toFixed(1) + ' min walk';
    L.popup().setLatLng(e.latlng).setContent(d.station.name).openOn(map);
  });
});
</script>
</body>
</html>
`))

// HTML writes the Leaflet viewer page of an artifact.
func HTML(w io.Writer, a *domain.CityMapArtifact, links Links) error {
	center := a.Boundary.Polygon.Bound().Center()
	data := pageData{
		City:        a.City,
		Stations:    len(a.Stations),
		GeneratedAt: a.GeneratedAt.Format("2006-01-02 15:04 MST"),
		CenterLat:   center.Lat(),
		CenterLon:   center.Lon(),
		Links:       links,
	}
	if err := page.Execute(w, data); err != nil {
		return fmt.Errorf("render: failed to execute map template: %w", err)
	}
	return nil
}
