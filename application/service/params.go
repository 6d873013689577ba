package service

import "github.com/helixml/taxon/internal/config"

// BuildParamsFrom returns the clustering parameters configured in cfg.
func BuildParamsFrom(cfg config.TaxonomyConfig) BuildParams {
	return BuildParams{
		Algorithm:    cfg.Algorithm(),
		K:            cfg.K(),
		MaxDocuments: cfg.MaxDocuments(),
		Epsilon:      cfg.Epsilon(),
		MinPoints:    cfg.MinPoints(),
	}
}

// RebuildParamsFrom returns the full rebuild parameters configured in cfg.
func RebuildParamsFrom(cfg config.TaxonomyConfig) RebuildParams {
	return RebuildParams{
		Clusters:        BuildParamsFrom(cfg),
		SampleSize:      cfg.SampleSize(),
		UseDescriptions: cfg.UseDescriptions(),
		TopN:            cfg.TopN(),
		MinConfidence:   cfg.MinConfidence(),
	}
}

// TagParamsFrom returns new-document tagging parameters configured in cfg.
// Refinement and persistence are left off.
func TagParamsFrom(cfg config.TaxonomyConfig) TagParams {
	return TagParams{
		TopN:               cfg.TopN(),
		MinConfidence:      cfg.MinConfidence(),
		MaxClusterDistance: cfg.MaxClusterDistance(),
	}
}
