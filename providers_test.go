package taxon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/helixml/taxon/internal/config"
)

func TestOpenAIConfig_LeavesRetriesToCallPolicy(t *testing.T) {
	e := config.NewEndpointWithOptions(config.WithBaseURL("http://localhost:11434/v1"), config.WithTimeout(time.Second))

	cfg := openAIConfig(e, nil)
	assert.Equal(t, -1, cfg.MaxRetries)
	assert.Equal(t, "http://localhost:11434/v1", cfg.BaseURL)
	assert.Equal(t, time.Second, cfg.Timeout)
}
