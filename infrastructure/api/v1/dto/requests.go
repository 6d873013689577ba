// Package dto holds the JSON:API request bodies accepted by the v1 API.
package dto

// Request is a JSON:API request document.
type Request[T any] struct {
	Data RequestData[T] `json:"data"`
}

// RequestData is the primary data of a request document.
type RequestData[T any] struct {
	Type       string `json:"type"`
	Attributes T      `json:"attributes"`
}

// ReprocessAttributes selects files to reprocess. No files means discover
// every file under the corpus root.
type ReprocessAttributes struct {
	Files []string `json:"files,omitempty"`
}

// ClustersAttributes overrides the configured clustering parameters.
type ClustersAttributes struct {
	Algorithm    *string  `json:"algorithm,omitempty"`
	K            *int     `json:"k,omitempty"`
	MaxDocuments *int     `json:"max_documents,omitempty"`
	Epsilon      *float64 `json:"epsilon,omitempty"`
	MinPoints    *int     `json:"min_points,omitempty"`
}

// ProposeAttributes overrides the proposal sample size.
type ProposeAttributes struct {
	SampleSize *int `json:"sample_size,omitempty"`
}

// EmbedTagsAttributes overrides whether tag descriptions are embedded.
type EmbedTagsAttributes struct {
	UseDescriptions *bool `json:"use_descriptions,omitempty"`
}

// AssignAttributes overrides the assignment thresholds.
type AssignAttributes struct {
	TopN          *int     `json:"top_n,omitempty"`
	MinConfidence *float64 `json:"min_confidence,omitempty"`
}

// RebuildAttributes overrides any parameter of a full taxonomy rebuild.
type RebuildAttributes struct {
	ClustersAttributes
	ProposeAttributes
	EmbedTagsAttributes
	AssignAttributes
}

// TagDocumentAttributes requests tag suggestions for one document.
type TagDocumentAttributes struct {
	Path               string   `json:"path"`
	TopN               *int     `json:"top_n,omitempty"`
	MinConfidence      *float64 `json:"min_confidence,omitempty"`
	MaxClusterDistance *float64 `json:"max_cluster_distance,omitempty"`
	Refine             bool     `json:"refine,omitempty"`
	Persist            bool     `json:"persist,omitempty"`
}

// SearchAttributes is a semantic search over indexed chunks.
type SearchAttributes struct {
	Query string `json:"query"`
	Limit *int   `json:"limit,omitempty"`
}

// Request types.
const (
	TypeReprocess   = "reprocess"
	TypeClusters    = "clusters"
	TypePropose     = "propose"
	TypeEmbedTags   = "embed_tags"
	TypeAssign      = "assign"
	TypeRebuild     = "rebuild"
	TypeTagDocument = "tag_document"
	TypeSearch      = "search"
)
