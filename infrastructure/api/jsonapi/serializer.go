package jsonapi

import (
	"strconv"
	"time"

	"github.com/helixml/taxon/application/service"
	"github.com/helixml/taxon/domain/assignment"
	"github.com/helixml/taxon/domain/cluster"
	"github.com/helixml/taxon/domain/pipeline"
	domainservice "github.com/helixml/taxon/domain/service"
	"github.com/helixml/taxon/domain/taxonomy"
)

// Resource types.
const (
	TypePhaseResult  = "phase_result"
	TypeTag          = "tag"
	TypeCategory     = "category"
	TypeCluster      = "cluster"
	TypeAssignment   = "assignment"
	TypeChunk        = "chunk"
	TypeDocumentTags = "document_tags"
)

// FailureAttributes describes one failed or skipped unit.
type FailureAttributes struct {
	Unit    string `json:"unit"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// PhaseResultAttributes represents the outcome of one pipeline phase.
type PhaseResultAttributes struct {
	Operation string              `json:"operation"`
	OK        bool                `json:"ok"`
	Kind      string              `json:"kind,omitempty"`
	Message   string              `json:"message,omitempty"`
	Processed int                 `json:"processed"`
	Skipped   int                 `json:"skipped"`
	Failed    int                 `json:"failed"`
	Counts    map[string]int      `json:"counts"`
	Failures  []FailureAttributes `json:"failures"`
}

// TagAttributes represents a taxonomy tag.
type TagAttributes struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CategoryAttributes represents a taxonomy category.
type CategoryAttributes struct {
	Name          string   `json:"name"`
	Subcategories []string `json:"subcategories"`
}

// MemberAttributes represents one cluster member.
type MemberAttributes struct {
	DocumentID string  `json:"document_id"`
	Distance   float64 `json:"distance"`
}

// ClusterAttributes represents a document cluster.
type ClusterAttributes struct {
	Size    int                `json:"size"`
	Members []MemberAttributes `json:"members"`
	Tags    []string           `json:"tags"`
}

// AssignmentAttributes represents a document tag assignment.
type AssignmentAttributes struct {
	DocumentID string  `json:"document_id"`
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// ChunkAttributes represents a search hit.
type ChunkAttributes struct {
	SourceFile string   `json:"source_file"`
	Index      int      `json:"index"`
	Total      int      `json:"total"`
	Text       string   `json:"text"`
	Tags       []string `json:"tags"`
	Score      float64  `json:"score"`
}

// DocumentTagsAttributes represents tag suggestions for one document.
type DocumentTagsAttributes struct {
	ClusterID       *int                   `json:"cluster_id"`
	ClusterDistance float64                `json:"cluster_distance"`
	Tags            []AssignmentAttributes `json:"tags"`
	Refined         bool                   `json:"refined"`
	RefineError     string                 `json:"refine_error,omitempty"`
	Persisted       bool                   `json:"persisted"`
}

// Serializer converts domain values to JSON:API resources.
type Serializer struct{}

// NewSerializer creates a Serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// PhaseResultResource converts a phase result to a resource.
func (s *Serializer) PhaseResultResource(result pipeline.Result) *Resource {
	summary := result.Summary()
	attrs := &PhaseResultAttributes{
		Operation: summary.Operation().Short(),
		OK:        result.OK(),
		Processed: summary.Processed(),
		Skipped:   summary.Skipped(),
		Failed:    summary.Failed(),
		Counts:    summary.Counts(),
		Failures:  []FailureAttributes{},
	}
	if f, ok := result.(pipeline.Failure); ok {
		attrs.Kind = string(f.Kind())
		attrs.Message = f.Message()
	}
	for _, u := range summary.Failures() {
		attrs.Failures = append(attrs.Failures, FailureAttributes{
			Unit:    u.Unit(),
			Kind:    string(u.Kind()),
			Message: u.Message(),
		})
	}
	return NewResource(TypePhaseResult, summary.Operation().String(), attrs)
}

// PhaseResultResources converts a sequence of phase results.
func (s *Serializer) PhaseResultResources(results []pipeline.Result) []*Resource {
	resources := make([]*Resource, len(results))
	for i, r := range results {
		resources[i] = s.PhaseResultResource(r)
	}
	return resources
}

// TagResources converts the taxonomy's tags.
func (s *Serializer) TagResources(t taxonomy.Taxonomy) []*Resource {
	tags := t.Tags()
	resources := make([]*Resource, len(tags))
	for i, tag := range tags {
		resources[i] = NewResource(TypeTag, tag.Name(), &TagAttributes{
			Name:        tag.Name(),
			Description: tag.Description(),
		})
	}
	return resources
}

// CategoryResources converts the taxonomy's categories.
func (s *Serializer) CategoryResources(t taxonomy.Taxonomy) []*Resource {
	categories := t.Categories()
	resources := make([]*Resource, len(categories))
	for i, c := range categories {
		resources[i] = NewResource(TypeCategory, c.Name(), &CategoryAttributes{
			Name:          c.Name(),
			Subcategories: c.Subcategories(),
		})
	}
	return resources
}

// ClusterResources converts clusters, attaching the taxonomy's tags for each.
func (s *Serializer) ClusterResources(clusters []cluster.Cluster, t taxonomy.Taxonomy) []*Resource {
	resources := make([]*Resource, len(clusters))
	for i, c := range clusters {
		members := c.Members()
		attrs := &ClusterAttributes{
			Size:    c.Size(),
			Members: make([]MemberAttributes, len(members)),
			Tags:    t.ClusterTags(c.ID()),
		}
		if attrs.Tags == nil {
			attrs.Tags = []string{}
		}
		for j, m := range members {
			attrs.Members[j] = MemberAttributes{DocumentID: m.DocumentID(), Distance: m.Distance()}
		}
		resources[i] = NewResource(TypeCluster, strconv.Itoa(c.ID()), attrs)
	}
	return resources
}

// AssignmentResources converts tag assignments.
func (s *Serializer) AssignmentResources(assignments []assignment.Assignment) []*Resource {
	resources := make([]*Resource, len(assignments))
	for i, a := range assignments {
		resources[i] = NewResource(TypeAssignment, a.DocumentID()+"#"+a.Tag(), assignmentAttributes(a))
	}
	return resources
}

// ChunkResources converts search matches.
func (s *Serializer) ChunkResources(matches []domainservice.ChunkMatch) []*Resource {
	resources := make([]*Resource, len(matches))
	for i, m := range matches {
		c := m.Chunk()
		resources[i] = NewResource(TypeChunk, c.ID(), &ChunkAttributes{
			SourceFile: c.SourceFile(),
			Index:      c.Index(),
			Total:      c.Total(),
			Text:       c.Text(),
			Tags:       c.Tags(),
			Score:      m.Score(),
		})
	}
	return resources
}

// DocumentTagsResource converts a new-document tagging result.
func (s *Serializer) DocumentTagsResource(result service.TagResult) *Resource {
	attrs := &DocumentTagsAttributes{
		ClusterDistance: result.ClusterDistance,
		Tags:            make([]AssignmentAttributes, len(result.Assignments)),
		Refined:         result.Refined,
		RefineError:     result.RefineError,
		Persisted:       result.Persisted,
	}
	if result.Clustered() {
		id := result.ClusterID
		attrs.ClusterID = &id
	}
	for i, a := range result.Assignments {
		attrs.Tags[i] = *assignmentAttributes(a)
	}
	return NewResource(TypeDocumentTags, result.DocumentID, attrs)
}

// TaxonomyMeta summarises the taxonomy for document meta.
func (s *Serializer) TaxonomyMeta(t taxonomy.Taxonomy, builtAt time.Time, built bool) Meta {
	meta := Meta{
		"tags":       len(t.Tags()),
		"categories": len(t.Categories()),
		"clusters":   len(t.ClusterIDs()),
	}
	if built {
		meta["built_at"] = NewDateTime(builtAt)
	}
	return meta
}

func assignmentAttributes(a assignment.Assignment) *AssignmentAttributes {
	return &AssignmentAttributes{
		DocumentID: a.DocumentID(),
		Tag:        a.Tag(),
		Confidence: a.Confidence(),
		Source:     string(a.Source()),
	}
}
