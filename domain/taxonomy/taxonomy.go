// Package taxonomy holds cluster proposals and the canonical taxonomy the
// normalizer derives from them.
package taxonomy

import (
	"context"
	"sort"
)

// TagProposal is a candidate tag suggested for a cluster.
type TagProposal struct {
	name        string
	description string
}

// NewTagProposal creates a TagProposal.
func NewTagProposal(name, description string) TagProposal {
	return TagProposal{name: name, description: description}
}

// Name returns the tag name as proposed.
func (t TagProposal) Name() string { return t.name }

// Description returns the proposed description.
func (t TagProposal) Description() string { return t.description }

// Proposal is the category, subcategory and tags suggested for one cluster.
type Proposal struct {
	clusterID   int
	category    string
	subcategory string
	tags        []TagProposal
}

// NewProposal creates a Proposal.
func NewProposal(clusterID int, category, subcategory string, tags []TagProposal) Proposal {
	t := make([]TagProposal, len(tags))
	copy(t, tags)
	return Proposal{clusterID: clusterID, category: category, subcategory: subcategory, tags: t}
}

// ClusterID returns the cluster the proposal describes.
func (p Proposal) ClusterID() int { return p.clusterID }

// Category returns the proposed category.
func (p Proposal) Category() string { return p.category }

// Subcategory returns the proposed subcategory.
func (p Proposal) Subcategory() string { return p.subcategory }

// Tags returns the proposed tags.
func (p Proposal) Tags() []TagProposal {
	t := make([]TagProposal, len(p.tags))
	copy(t, p.tags)
	return t
}

// Tag is a canonical tag.
type Tag struct {
	name        string
	description string
}

// NewTag creates a Tag.
func NewTag(name, description string) Tag {
	return Tag{name: name, description: description}
}

// Name returns the canonical tag name.
func (t Tag) Name() string { return t.name }

// Description returns the tag description.
func (t Tag) Description() string { return t.description }

// EmbeddingText returns the text embedded for the tag.
func (t Tag) EmbeddingText(useDescription bool) string {
	if useDescription && t.description != "" {
		return t.name + ": " + t.description
	}
	return t.name
}

// Category is a canonical category with its subcategories.
type Category struct {
	name          string
	subcategories []string
}

// NewCategory creates a Category. Subcategories are sorted.
func NewCategory(name string, subcategories []string) Category {
	s := make([]string, len(subcategories))
	copy(s, subcategories)
	sort.Strings(s)
	return Category{name: name, subcategories: s}
}

// Name returns the category name.
func (c Category) Name() string { return c.name }

// Subcategories returns the sorted subcategory names.
func (c Category) Subcategories() []string {
	s := make([]string, len(c.subcategories))
	copy(s, c.subcategories)
	return s
}

// Taxonomy is the canonical vocabulary plus the tags mapped to each cluster.
type Taxonomy struct {
	categories  []Category
	tags        []Tag
	clusterTags map[int][]string
}

// NewTaxonomy creates a Taxonomy. Categories, tags and each cluster's tag
// list are sorted by name.
func NewTaxonomy(categories []Category, tags []Tag, clusterTags map[int][]string) Taxonomy {
	c := make([]Category, len(categories))
	copy(c, categories)
	sort.Slice(c, func(i, j int) bool { return c[i].name < c[j].name })
	t := make([]Tag, len(tags))
	copy(t, tags)
	sort.Slice(t, func(i, j int) bool { return t[i].name < t[j].name })
	ct := make(map[int][]string, len(clusterTags))
	for id, names := range clusterTags {
		n := make([]string, len(names))
		copy(n, names)
		sort.Strings(n)
		ct[id] = n
	}
	return Taxonomy{categories: c, tags: t, clusterTags: ct}
}

// Categories returns the categories sorted by name.
func (t Taxonomy) Categories() []Category {
	c := make([]Category, len(t.categories))
	copy(c, t.categories)
	return c
}

// Tags returns the tags sorted by name.
func (t Taxonomy) Tags() []Tag {
	c := make([]Tag, len(t.tags))
	copy(c, t.tags)
	return c
}

// Tag looks up a tag by canonical name.
func (t Taxonomy) Tag(name string) (Tag, bool) {
	for _, tag := range t.tags {
		if tag.name == name {
			return tag, true
		}
	}
	return Tag{}, false
}

// ClusterTags returns the canonical tags mapped to a cluster.
func (t Taxonomy) ClusterTags(clusterID int) []string {
	names := t.clusterTags[clusterID]
	c := make([]string, len(names))
	copy(c, names)
	return c
}

// ClusterIDs returns the clusters that have tags, sorted.
func (t Taxonomy) ClusterIDs() []int {
	ids := make([]int, 0, len(t.clusterTags))
	for id := range t.clusterTags {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// IsEmpty reports whether the taxonomy has no tags.
func (t Taxonomy) IsEmpty() bool { return len(t.tags) == 0 }

// ProposalStore persists proposals between the propose and normalize phases.
type ProposalStore interface {
	ReplaceProposals(ctx context.Context, proposals []Proposal) error
	FindProposals(ctx context.Context) ([]Proposal, error)
}

// Store persists the canonical taxonomy.
type Store interface {
	// Replace swaps the stored taxonomy for t in one transaction.
	Replace(ctx context.Context, t Taxonomy) error
	// Load returns the stored taxonomy, empty when none exists.
	Load(ctx context.Context) (Taxonomy, error)
}
