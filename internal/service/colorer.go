package service

import (
	"slices"
	"sort"

	"github.com/paulmach/orb"

	"github.com/smartcity/stationmap/internal/domain"
	"github.com/smartcity/stationmap/internal/geometry"
)

// AdjacencyEpsilonMeters is the minimum shared boundary length for two
// regions to count as neighbors. Regions touching at a point are not.
const AdjacencyEpsilonMeters = 1.0

// Graph is the region adjacency graph keyed by station id. It is built once
// and never modified.
type Graph struct {
	ids   []int
	edges map[int][]int
}

// IDs returns the station ids of all regions, in region order.
func (g Graph) IDs() []int {
	return slices.Clone(g.ids)
}

// Neighbors returns the sorted ids adjacent to id.
func (g Graph) Neighbors(id int) []int {
	return slices.Clone(g.edges[id])
}

func (g Graph) Degree(id int) int {
	return len(g.edges[id])
}

// Adjacent reports whether a and b share a boundary.
func (g Graph) Adjacent(a, b int) bool {
	_, found := slices.BinarySearch(g.edges[a], b)
	return found
}

// BuildAdjacency links every pair of regions whose planar polygons share
// more than epsilon meters of boundary. Empty regions have no edges.
func BuildAdjacency(regions []domain.Region, backend geometry.Backend, epsilon float64) Graph {
	g := Graph{
		ids:   make([]int, len(regions)),
		edges: make(map[int][]int, len(regions)),
	}
	bounds := make([]orb.Bound, len(regions))
	for i, r := range regions {
		g.ids[i] = r.OwnerStationID
		if len(r.Planar) > 0 {
			bounds[i] = r.Planar.Bound().Pad(epsilon)
		}
	}

	for i := range regions {
		if len(regions[i].Planar) == 0 {
			continue
		}
		for j := i + 1; j < len(regions); j++ {
			if len(regions[j].Planar) == 0 || !bounds[i].Intersects(bounds[j]) {
				continue
			}
			if backend.BoundaryLength(regions[i].Planar, regions[j].Planar) > epsilon {
				a, b := regions[i].OwnerStationID, regions[j].OwnerStationID
				g.edges[a] = append(g.edges[a], b)
				g.edges[b] = append(g.edges[b], a)
			}
		}
	}
	for id := range g.edges {
		sort.Ints(g.edges[id])
	}
	return g
}

// GreedyColoring visits regions by descending degree, ties by ascending id,
// and gives each the smallest color no colored neighbor has.
func GreedyColoring(g Graph) map[int]int {
	order := g.IDs()
	sort.SliceStable(order, func(i, j int) bool {
		di, dj := g.Degree(order[i]), g.Degree(order[j])
		if di != dj {
			return di > dj
		}
		return order[i] < order[j]
	})

	colors := make(map[int]int, len(order))
	for _, id := range order {
		used := make(map[int]bool)
		for _, nb := range g.edges[id] {
			if c, ok := colors[nb]; ok {
				used[c] = true
			}
		}
		c := 0
		for used[c] {
			c++
		}
		colors[id] = c
	}
	return colors
}

// AdjacencyColorer assigns neighbor lists and colors to regions.
type AdjacencyColorer struct {
	backend geometry.Backend
	epsilon float64
}

// NewAdjacencyColorer creates a colorer using AdjacencyEpsilonMeters.
func NewAdjacencyColorer(backend geometry.Backend) *AdjacencyColorer {
	return &AdjacencyColorer{backend: backend, epsilon: AdjacencyEpsilonMeters}
}

// Color returns copies of regions with NeighborIDs and ColorIndex set, and
// the graph they were derived from.
func (c *AdjacencyColorer) Color(regions []domain.Region) ([]domain.Region, Graph) {
	g := BuildAdjacency(regions, c.backend, c.epsilon)
	colors := GreedyColoring(g)

	out := make([]domain.Region, len(regions))
	for i, r := range regions {
		r.NeighborIDs = g.Neighbors(r.OwnerStationID)
		if r.NeighborIDs == nil {
			r.NeighborIDs = []int{}
		}
		r.ColorIndex = colors[r.OwnerStationID]
		out[i] = r
	}
	return out, g
}
