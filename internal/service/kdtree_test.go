package service

import (
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func bruteNearest(items []kdItem, q orb.Point) int {
	best, bestD := -1, 0.0
	for _, it := range items {
		dx, dy := q[0]-it.p[0], q[1]-it.p[1]
		d := dx*dx + dy*dy
		if best < 0 || d < bestD || (d == bestD && it.idx < best) {
			best, bestD = it.idx, d
		}
	}
	return best
}

func TestKDNearestMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	items := make([]kdItem, 500)
	for i := range items {
		items[i] = kdItem{idx: i, p: orb.Point{rng.Float64() * 10000, rng.Float64() * 10000}}
	}
	ref := append([]kdItem(nil), items...)
	tree := buildKD(items, 0)

	for i := 0; i < 1000; i++ {
		q := orb.Point{rng.Float64()*12000 - 1000, rng.Float64()*12000 - 1000}
		got, _ := nearest(tree, q)
		assert.Equal(t, bruteNearest(ref, q), got, "query %v", q)
	}
}

func TestKDNearestTieGoesToLowestIndex(t *testing.T) {
	items := []kdItem{
		{idx: 3, p: orb.Point{10, 0}},
		{idx: 0, p: orb.Point{-10, 0}},
		{idx: 2, p: orb.Point{0, 10}},
		{idx: 1, p: orb.Point{0, -10}},
	}
	tree := buildKD(items, 0)

	got, d := nearest(tree, orb.Point{0, 0})
	assert.Equal(t, 0, got)
	assert.Equal(t, 100.0, d)
}

func TestKDNearestDuplicatePoints(t *testing.T) {
	items := []kdItem{
		{idx: 2, p: orb.Point{5, 5}},
		{idx: 1, p: orb.Point{5, 5}},
		{idx: 0, p: orb.Point{50, 50}},
	}
	got, _ := nearest(buildKD(items, 0), orb.Point{6, 6})
	assert.Equal(t, 1, got)
}

func TestKDEmpty(t *testing.T) {
	got, _ := nearest(buildKD(nil, 0), orb.Point{0, 0})
	assert.Equal(t, -1, got)
}
