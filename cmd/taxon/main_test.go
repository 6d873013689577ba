package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/helixml/taxon/application/service"
	"github.com/helixml/taxon/domain/cluster"
	"github.com/helixml/taxon/domain/pipeline"
	"github.com/helixml/taxon/domain/task"
	"github.com/helixml/taxon/domain/taxonomy"
)

func sampleTaxonomy() (taxonomy.Taxonomy, []cluster.Cluster) {
	tax := taxonomy.NewTaxonomy(
		[]taxonomy.Category{taxonomy.NewCategory("Science", []string{"Space", "Geology"})},
		[]taxonomy.Tag{taxonomy.NewTag("stars", "bright things"), taxonomy.NewTag("basalt", "")},
		map[int][]string{0: {"stars"}, 1: {"basalt"}},
	)
	clusters := []cluster.Cluster{
		cluster.NewCluster(0, []float64{1, 0}, []cluster.Member{cluster.NewMember("a.md", 0.1)}),
		cluster.NewCluster(1, []float64{0, 1}, []cluster.Member{cluster.NewMember("b.md", 0.2), cluster.NewMember("c.md", 0.3)}),
	}
	return tax, clusters
}

func TestWriteExport_YAML(t *testing.T) {
	tax, clusters := sampleTaxonomy()
	builtAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := newTaxonomyExport(tax, clusters, builtAt, true, true)

	var buf bytes.Buffer
	require.NoError(t, writeExport(&buf, "yaml", doc))

	var decoded taxonomyExport
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.NotNil(t, decoded.BuiltAt)
	assert.True(t, builtAt.Equal(*decoded.BuiltAt))
	require.Len(t, decoded.Categories, 1)
	assert.Equal(t, []string{"Geology", "Space"}, decoded.Categories[0].Subcategories)
	assert.Equal(t, "basalt", decoded.Tags[0].Name)
	require.Len(t, decoded.Clusters, 2)
	assert.Equal(t, []string{"b.md", "c.md"}, decoded.Clusters[1].Documents)
}

func TestWriteExport_JSONOmitsDocumentsAndUnbuiltTime(t *testing.T) {
	tax, clusters := sampleTaxonomy()
	doc := newTaxonomyExport(tax, clusters, time.Time{}, false, false)

	var buf bytes.Buffer
	require.NoError(t, writeExport(&buf, "JSON", doc))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.NotContains(t, raw, "built_at")
	assert.NotContains(t, buf.String(), "documents")
	assert.Contains(t, buf.String(), `"bright things"`)
}

func TestWriteExport_UnknownFormat(t *testing.T) {
	err := writeExport(&bytes.Buffer{}, "toml", taxonomyExport{})
	assert.ErrorContains(t, err, "unsupported export format")
}

func TestWriteTaxonomyText(t *testing.T) {
	tax, clusters := sampleTaxonomy()
	var buf bytes.Buffer
	writeTaxonomyText(&buf, newTaxonomyExport(tax, clusters, time.Time{}, false, false))

	out := buf.String()
	assert.Contains(t, out, "has not been fully built")
	assert.Contains(t, out, "categories (1)")
	assert.Contains(t, out, "#1 (2 documents): basalt")
}

func TestPrintResults(t *testing.T) {
	tally := pipeline.NewTally(task.OperationReprocess)
	tally.AddProcessed(2)
	tally.Add(pipeline.CountChunks, 7)
	tally.Fail("broken.md", errors.New("unreadable"))
	ok := pipeline.Succeeded(tally.Summary())

	var buf bytes.Buffer
	require.NoError(t, printResults(&buf, ok))
	out := buf.String()
	assert.Contains(t, out, "reprocess: processed=2 skipped=0 failed=1")
	assert.Contains(t, out, "broken.md [internal]: unreadable")

	failed := pipeline.Failed(service.ErrNoClusters, pipeline.NewTally(task.OperationProposeTaxonomy).Summary())
	buf.Reset()
	err := printResults(&buf, ok, failed)
	assert.ErrorIs(t, err, errPhaseFailed)
	assert.Contains(t, buf.String(), "error [integrity]")
}

func TestClusterFlags_OnlyChangedFlagsOverride(t *testing.T) {
	var cf clusterFlags
	cmd := &cobra.Command{Use: "build", RunE: func(*cobra.Command, []string) error { return nil }}
	cf.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--k", "4"}))

	base := service.BuildParams{Algorithm: "dbscan", K: 0, Epsilon: 0.3, MinPoints: 2}
	got := cf.apply(cmd, base)

	assert.Equal(t, 4, got.K)
	assert.Equal(t, "dbscan", got.Algorithm)
	assert.InDelta(t, 0.3, got.Epsilon, 1e-9)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "a b c", excerpt("a\n b\t c", 10))
	assert.Equal(t, "héll...", excerpt(strings.Repeat("héllo", 3), 4))
}

func TestRootCommandRegistersEveryCommand(t *testing.T) {
	root := rootCmd()
	for _, path := range [][]string{
		{"reprocess"}, {"rebuild-index"}, {"clusters", "build"},
		{"taxonomy", "propose"}, {"taxonomy", "normalize"}, {"taxonomy", "show"}, {"taxonomy", "export"},
		{"tags", "embed"}, {"tags", "assign"}, {"tags", "list"},
		{"rebuild"}, {"tag"}, {"search"}, {"serve"}, {"version"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
