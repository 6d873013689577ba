package cluster

import (
	"fmt"

	"github.com/helixml/taxon/domain/search"
)

// DBSCAN groups points whose cosine distance is within epsilon, requiring
// minPoints neighbours (including the point itself) for a core point.
// Points reachable from no core point are returned as noise. Clusters are
// numbered in the order their first core point appears in the input.
func DBSCAN(points []Point, epsilon float64, minPoints int) (Outcome, error) {
	n := len(points)
	if n == 0 {
		return Outcome{}, ErrNoPoints
	}
	if minPoints < 1 {
		minPoints = 1
	}

	const (
		unvisited = -2
		noise     = -1
	)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	neighbours := func(i int) []int {
		var result []int
		for j := range points {
			if search.CosineDistance(points[i].vector, points[j].vector) <= epsilon {
				result = append(result, j)
			}
		}
		return result
	}

	next := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		seeds := neighbours(i)
		if len(seeds) < minPoints {
			labels[i] = noise
			continue
		}
		id := next
		next++
		labels[i] = id

		queue := append([]int(nil), seeds...)
		for q := 0; q < len(queue); q++ {
			j := queue[q]
			if labels[j] == noise {
				labels[j] = id
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = id
			if more := neighbours(j); len(more) >= minPoints {
				queue = append(queue, more...)
			}
		}
	}

	groups := make([][]int, next)
	var noisePoints []string
	for i, l := range labels {
		if l == noise {
			noisePoints = append(noisePoints, points[i].id)
			continue
		}
		groups[l] = append(groups[l], i)
	}

	clusters := make([]Cluster, next)
	for id, idx := range groups {
		vectors := make([][]float64, len(idx))
		for k, i := range idx {
			vectors[k] = points[i].vector
		}
		centroid, err := search.Mean(vectors)
		if err != nil {
			return Outcome{}, fmt.Errorf("centroid %d: %w", id, err)
		}
		members := make([]Member, len(idx))
		for k, i := range idx {
			members[k] = NewMember(points[i].id, search.CosineDistance(points[i].vector, centroid))
		}
		clusters[id] = NewCluster(id, centroid, members)
	}
	return NewOutcome(clusters, noisePoints), nil
}
