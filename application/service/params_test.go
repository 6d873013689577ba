package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/taxon/internal/config"
)

func TestRebuildParamsFrom_Defaults(t *testing.T) {
	params := RebuildParamsFrom(config.NewTaxonomyConfig())

	assert.Equal(t, config.DefaultAlgorithm, params.Clusters.Algorithm)
	assert.Equal(t, config.DefaultSampleSize, params.SampleSize)
	assert.Equal(t, config.DefaultTopN, params.TopN)
	assert.InDelta(t, config.DefaultMinConfidence, params.MinConfidence, 1e-9)
	assert.True(t, params.UseDescriptions)
	require.NoError(t, params.Validate())
}

func TestTagParamsFrom_Defaults(t *testing.T) {
	cfg := config.NewTaxonomyConfigWithOptions(
		config.WithThresholds(2, 0.5),
		config.WithMaxClusterDistance(0.4),
	)

	params := TagParamsFrom(cfg)

	assert.Equal(t, 2, params.TopN)
	assert.InDelta(t, 0.5, params.MinConfidence, 1e-9)
	assert.InDelta(t, 0.4, params.MaxClusterDistance, 1e-9)
	assert.False(t, params.LLMRefine)
	assert.False(t, params.Persist)
	_, err := params.Validate()
	require.NoError(t, err)
}
