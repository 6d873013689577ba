package cluster

import (
	"errors"
	"fmt"

	"github.com/helixml/taxon/domain/search"
)

// ErrNoPoints indicates clustering was requested with no input.
var ErrNoPoints = errors.New("no points to cluster")

const maxIterations = 100

// KMeans partitions points into exactly k clusters using cosine distance.
// Seeding is farthest-point from the first point, so the result depends
// only on the input order, which callers keep sorted by ID.
func KMeans(points []Point, k int) (Outcome, error) {
	n := len(points)
	if n == 0 {
		return Outcome{}, ErrNoPoints
	}
	if k <= 0 {
		k = DefaultK(n)
	}
	if k > n {
		k = n
	}
	dim := len(points[0].vector)
	for _, p := range points {
		if len(p.vector) != dim {
			return Outcome{}, fmt.Errorf("point %s: %w", p.id, search.ErrDimensionMismatch)
		}
	}

	centroids := seed(points, k)
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, p := range points {
			c := nearest(p.vector, centroids)
			if assign[i] != c {
				assign[i] = c
				changed = true
			}
		}
		repairEmpty(points, assign, centroids)
		next, err := recompute(points, assign, k)
		if err != nil {
			return Outcome{}, err
		}
		centroids = next
		if !changed {
			break
		}
	}

	clusters := make([]Cluster, k)
	members := make([][]Member, k)
	for i, p := range points {
		c := assign[i]
		members[c] = append(members[c], NewMember(p.id, search.CosineDistance(p.vector, centroids[c])))
	}
	for c := 0; c < k; c++ {
		clusters[c] = NewCluster(c, centroids[c], members[c])
	}
	return NewOutcome(clusters, nil), nil
}

// seed picks k distinct points: the first point, then repeatedly the point
// farthest from every chosen seed. Ties go to the lower index.
func seed(points []Point, k int) [][]float64 {
	chosen := make([]bool, len(points))
	minDist := make([]float64, len(points))
	centroids := make([][]float64, 0, k)

	add := func(idx int) {
		chosen[idx] = true
		centroids = append(centroids, points[idx].Vector())
		for i, p := range points {
			d := search.CosineDistance(p.vector, points[idx].vector)
			if len(centroids) == 1 || d < minDist[i] {
				minDist[i] = d
			}
		}
	}

	add(0)
	for len(centroids) < k {
		best := -1
		for i := range points {
			if chosen[i] {
				continue
			}
			if best == -1 || minDist[i] > minDist[best] {
				best = i
			}
		}
		add(best)
	}
	return centroids
}

func nearest(v []float64, centroids [][]float64) int {
	best := 0
	bestDist := search.CosineDistance(v, centroids[0])
	for c := 1; c < len(centroids); c++ {
		if d := search.CosineDistance(v, centroids[c]); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// repairEmpty moves, for every empty cluster, the point farthest from its
// own centroid out of a cluster that has more than one member.
func repairEmpty(points []Point, assign []int, centroids [][]float64) {
	sizes := make([]int, len(centroids))
	for _, c := range assign {
		sizes[c]++
	}
	for c := range centroids {
		if sizes[c] > 0 {
			continue
		}
		far, farDist := -1, -1.0
		for i, p := range points {
			if sizes[assign[i]] < 2 {
				continue
			}
			if d := search.CosineDistance(p.vector, centroids[assign[i]]); d > farDist {
				far, farDist = i, d
			}
		}
		if far == -1 {
			return
		}
		sizes[assign[far]]--
		assign[far] = c
		sizes[c]++
		centroids[c] = points[far].Vector()
	}
}

func recompute(points []Point, assign []int, k int) ([][]float64, error) {
	groups := make([][][]float64, k)
	for i, p := range points {
		groups[assign[i]] = append(groups[assign[i]], p.vector)
	}
	centroids := make([][]float64, k)
	for c, g := range groups {
		mean, err := search.Mean(g)
		if err != nil {
			return nil, fmt.Errorf("centroid %d: %w", c, err)
		}
		centroids[c] = mean
	}
	return centroids, nil
}
