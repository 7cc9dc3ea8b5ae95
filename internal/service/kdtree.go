package service

import (
	"math"

	"github.com/paulmach/orb"
)

// kdItem is a station site in projected meters. idx is the station's
// position in the artifact.
type kdItem struct {
	idx int
	p   orb.Point
}

type kdNode struct {
	item kdItem
	ax   int // 0:x, 1:y
	l    *kdNode
	r    *kdNode
}

// buildKD builds a 2-d tree by median split, alternating axes. It reorders
// items in place.
func buildKD(items []kdItem, depth int) *kdNode {
	if len(items) == 0 {
		return nil
	}
	ax := depth % 2
	mid := len(items) / 2
	selectNth(items, mid, ax)
	node := &kdNode{item: items[mid], ax: ax}
	node.l = buildKD(items[:mid], depth+1)
	node.r = buildKD(items[mid+1:], depth+1)
	return node
}

// selectNth partially orders a so that a[n] is in its sorted position.
func selectNth(a []kdItem, n, ax int) {
	lo, hi := 0, len(a)-1
	for lo < hi {
		p := partition(a, lo, hi, (lo+hi)/2, ax)
		if p == n {
			return
		}
		if n < p {
			hi = p - 1
		} else {
			lo = p + 1
		}
	}
}

func partition(a []kdItem, lo, hi, pivot, ax int) int {
	pv := a[pivot]
	a[pivot], a[hi] = a[hi], a[pivot]
	i := lo
	for j := lo; j < hi; j++ {
		if lessItem(a[j], pv, ax) {
			a[i], a[j] = a[j], a[i]
			i++
		}
	}
	a[i], a[hi] = a[hi], a[i]
	return i
}

func lessItem(x, y kdItem, ax int) bool {
	if x.p[ax] != y.p[ax] {
		return x.p[ax] < y.p[ax]
	}
	return x.idx < y.idx
}

// nearest returns the index of the item closest to q and the squared
// distance to it. Equally close items resolve to the lowest index.
func nearest(node *kdNode, q orb.Point) (int, float64) {
	best := -1
	bestD := math.Inf(1)
	var dfs func(n *kdNode)
	dfs = func(n *kdNode) {
		if n == nil {
			return
		}
		dx, dy := q[0]-n.item.p[0], q[1]-n.item.p[1]
		d := dx*dx + dy*dy
		if d < bestD || (d == bestD && n.item.idx < best) {
			best, bestD = n.item.idx, d
		}
		diff := q[n.ax] - n.item.p[n.ax]
		first, second := n.l, n.r
		if diff > 0 {
			first, second = n.r, n.l
		}
		dfs(first)
		// the far side can only hold an equal or closer point when the
		// splitting line is within the current best distance
		if diff*diff <= bestD {
			dfs(second)
		}
	}
	dfs(node)
	return best, bestD
}
