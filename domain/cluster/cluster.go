// Package cluster groups document vectors and defines the persisted
// cluster set.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrUnknownAlgorithm indicates an unsupported clustering algorithm name.
var ErrUnknownAlgorithm = errors.New("unknown clustering algorithm")

// Algorithm names a clustering algorithm.
type Algorithm string

// Algorithm values.
const (
	AlgorithmKMeans Algorithm = "kmeans"
	AlgorithmDBSCAN Algorithm = "dbscan"
)

// ParseAlgorithm accepts "kmeans"/"k-means" and "dbscan"/"density".
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "kmeans", "k-means":
		return AlgorithmKMeans, nil
	case "dbscan", "density", "density-based":
		return AlgorithmDBSCAN, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

// DefaultK returns max(1, round(sqrt(n/2))), capped at n.
func DefaultK(n int) int {
	if n <= 0 {
		return 0
	}
	k := int(math.Round(math.Sqrt(float64(n) / 2)))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// Point is one document's representative vector.
type Point struct {
	id     string
	vector []float64
}

// NewPoint creates a Point.
func NewPoint(id string, vector []float64) Point {
	v := make([]float64, len(vector))
	copy(v, vector)
	return Point{id: id, vector: v}
}

// ID returns the document ID.
func (p Point) ID() string { return p.id }

// Vector returns a copy of the point vector.
func (p Point) Vector() []float64 {
	v := make([]float64, len(p.vector))
	copy(v, p.vector)
	return v
}

// Member is a document in a cluster with its distance to the centroid.
type Member struct {
	documentID string
	distance   float64
}

// NewMember creates a Member.
func NewMember(documentID string, distance float64) Member {
	return Member{documentID: documentID, distance: distance}
}

// DocumentID returns the member document ID.
func (m Member) DocumentID() string { return m.documentID }

// Distance returns the cosine distance to the cluster centroid.
func (m Member) Distance() float64 { return m.distance }

// Cluster is a group of documents and the vector summarizing them.
type Cluster struct {
	id       int
	centroid []float64
	members  []Member
}

// NewCluster creates a Cluster. Members are sorted by document ID.
func NewCluster(id int, centroid []float64, members []Member) Cluster {
	c := make([]float64, len(centroid))
	copy(c, centroid)
	m := make([]Member, len(members))
	copy(m, members)
	sort.Slice(m, func(i, j int) bool { return m[i].documentID < m[j].documentID })
	return Cluster{id: id, centroid: c, members: m}
}

// ID returns the cluster ID. Stored IDs are never reused across builds.
func (c Cluster) ID() int { return c.id }

// Centroid returns a copy of the centroid.
func (c Cluster) Centroid() []float64 {
	v := make([]float64, len(c.centroid))
	copy(v, c.centroid)
	return v
}

// Members returns the members sorted by document ID.
func (c Cluster) Members() []Member {
	m := make([]Member, len(c.members))
	copy(m, c.members)
	return m
}

// Size returns the number of members.
func (c Cluster) Size() int { return len(c.members) }

// Contains reports whether documentID is a member.
func (c Cluster) Contains(documentID string) bool {
	i := sort.Search(len(c.members), func(i int) bool { return c.members[i].documentID >= documentID })
	return i < len(c.members) && c.members[i].documentID == documentID
}

// Closest returns up to n members nearest the centroid, ties broken by ID.
func (c Cluster) Closest(n int) []Member {
	m := c.Members()
	sort.SliceStable(m, func(i, j int) bool {
		if m[i].distance != m[j].distance {
			return m[i].distance < m[j].distance
		}
		return m[i].documentID < m[j].documentID
	})
	if n < len(m) && n >= 0 {
		m = m[:n]
	}
	return m
}

// Outcome is the result of one clustering run.
type Outcome struct {
	clusters []Cluster
	noise    []string
}

// NewOutcome creates an Outcome.
func NewOutcome(clusters []Cluster, noise []string) Outcome {
	return Outcome{clusters: clusters, noise: noise}
}

// Clusters returns the clusters ordered by ID.
func (o Outcome) Clusters() []Cluster {
	c := make([]Cluster, len(o.clusters))
	copy(c, o.clusters)
	return c
}

// Noise returns documents the algorithm left unclustered.
func (o Outcome) Noise() []string {
	n := make([]string, len(o.noise))
	copy(n, o.noise)
	return n
}

// Renumbered returns the outcome with cluster IDs shifted to start at base.
func (o Outcome) Renumbered(base int) Outcome {
	clusters := make([]Cluster, len(o.clusters))
	for i, c := range o.clusters {
		clusters[i] = Cluster{id: base + c.id, centroid: c.centroid, members: c.members}
	}
	return Outcome{clusters: clusters, noise: o.noise}
}

// MemberCount returns the total number of clustered documents.
func (o Outcome) MemberCount() int {
	total := 0
	for _, c := range o.clusters {
		total += c.Size()
	}
	return total
}

// Store persists the current cluster set.
type Store interface {
	// Replace swaps the whole cluster set for clusters in one transaction.
	Replace(ctx context.Context, clusters []Cluster) error
	// FindAll returns every cluster ordered by ID.
	FindAll(ctx context.Context) ([]Cluster, error)
	// Count returns the number of clusters.
	Count(ctx context.Context) (int64, error)
	// NextID returns the first ID no stored or previously stored cluster
	// has used.
	NextID(ctx context.Context) (int, error)
}
