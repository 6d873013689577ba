package main

import (
	"github.com/spf13/cobra"

	"github.com/helixml/taxon/application/service"
	"github.com/helixml/taxon/internal/config"
)

// clusterFlags override the configured clustering parameters.
type clusterFlags struct {
	algorithm    string
	k            int
	maxDocuments int
	epsilon      float64
	minPoints    int
}

func (f *clusterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.algorithm, "algorithm", "", "Clustering algorithm: kmeans, dbscan")
	cmd.Flags().IntVar(&f.k, "k", 0, "Number of k-means clusters (0 picks one from the corpus size)")
	cmd.Flags().IntVar(&f.maxDocuments, "max-documents", 0, "Cluster at most this many documents (0 means all)")
	cmd.Flags().Float64Var(&f.epsilon, "epsilon", 0, "DBSCAN neighbourhood radius in cosine distance")
	cmd.Flags().IntVar(&f.minPoints, "min-points", 0, "DBSCAN core point threshold")
}

func (f *clusterFlags) apply(cmd *cobra.Command, p service.BuildParams) service.BuildParams {
	if cmd.Flags().Changed("algorithm") {
		p.Algorithm = f.algorithm
	}
	if cmd.Flags().Changed("k") {
		p.K = f.k
	}
	if cmd.Flags().Changed("max-documents") {
		p.MaxDocuments = f.maxDocuments
	}
	if cmd.Flags().Changed("epsilon") {
		p.Epsilon = f.epsilon
	}
	if cmd.Flags().Changed("min-points") {
		p.MinPoints = f.minPoints
	}
	return p
}

// assignFlags override the configured assignment thresholds.
type assignFlags struct {
	topN          int
	minConfidence float64
}

func (f *assignFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.topN, "top-n", 0, "Keep at most this many tags per document")
	cmd.Flags().Float64Var(&f.minConfidence, "min-confidence", 0, "Drop tags scoring below this confidence")
}

func (f *assignFlags) apply(cmd *cobra.Command, topN int, minConfidence float64) (int, float64) {
	if cmd.Flags().Changed("top-n") {
		topN = f.topN
	}
	if cmd.Flags().Changed("min-confidence") {
		minConfidence = f.minConfidence
	}
	return topN, minConfidence
}

func clustersCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "Manage document clusters",
	}

	var cf clusterFlags
	build := &cobra.Command{
		Use:   "build",
		Short: "Cluster the indexed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()
			params := cf.apply(cmd, service.BuildParamsFrom(s.client.Config().Taxonomy()))
			return printResults(cmd.OutOrStdout(), s.client.Pipeline().RebuildClusters(s.ctx, params))
		},
	}
	cf.register(build)

	cmd.AddCommand(build)
	return cmd
}

func taxonomyCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Propose, normalize and inspect the taxonomy",
	}

	var sampleSize int
	propose := &cobra.Command{
		Use:   "propose",
		Short: "Ask the LLM for tags describing each cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()
			n := s.client.Config().Taxonomy().SampleSize()
			if cmd.Flags().Changed("sample-size") {
				n = sampleSize
			}
			return printResults(cmd.OutOrStdout(), s.client.Pipeline().ProposeTaxonomy(s.ctx, n))
		},
	}
	propose.Flags().IntVar(&sampleSize, "sample-size", config.DefaultSampleSize, "Documents sampled per cluster")

	normalize := &cobra.Command{
		Use:   "normalize",
		Short: "Merge the cluster proposals into one taxonomy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()
			return printResults(cmd.OutOrStdout(), s.client.Pipeline().NormalizeTaxonomy(s.ctx))
		},
	}

	cmd.AddCommand(propose, normalize, showCmd(flags), exportCmd(flags))
	return cmd
}

func tagsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Embed and assign taxonomy tags",
	}

	var useDescriptions bool
	embed := &cobra.Command{
		Use:   "embed",
		Short: "Embed every taxonomy tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()
			use := s.client.Config().Taxonomy().UseDescriptions()
			if cmd.Flags().Changed("use-descriptions") {
				use = useDescriptions
			}
			return printResults(cmd.OutOrStdout(), s.client.Pipeline().EmbedTags(s.ctx, use))
		},
	}
	embed.Flags().BoolVar(&useDescriptions, "use-descriptions", false, "Embed \"name: description\" instead of the bare name")

	var af assignFlags
	assign := &cobra.Command{
		Use:   "assign",
		Short: "Assign tags to every indexed document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()
			tax := s.client.Config().Taxonomy()
			topN, minConfidence := af.apply(cmd, tax.TopN(), tax.MinConfidence())
			return printResults(cmd.OutOrStdout(), s.client.Pipeline().AssignTags(s.ctx, topN, minConfidence))
		},
	}
	af.register(assign)

	cmd.AddCommand(embed, assign, listCmd(flags))
	return cmd
}

func rebuildCmd(flags *globalFlags) *cobra.Command {
	var (
		cf              clusterFlags
		af              assignFlags
		sampleSize      int
		useDescriptions bool
	)

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Run clustering, proposal, normalization, tag embedding and assignment",
		Long: `Run clustering, proposal, normalization, tag embedding and assignment in order.

The rebuild stops at the first phase that fails. The taxonomy build time is
recorded only when every phase succeeds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()

			params := service.RebuildParamsFrom(s.client.Config().Taxonomy())
			params.Clusters = cf.apply(cmd, params.Clusters)
			params.TopN, params.MinConfidence = af.apply(cmd, params.TopN, params.MinConfidence)
			if cmd.Flags().Changed("sample-size") {
				params.SampleSize = sampleSize
			}
			if cmd.Flags().Changed("use-descriptions") {
				params.UseDescriptions = useDescriptions
			}
			return printResults(cmd.OutOrStdout(), s.client.Pipeline().RebuildTaxonomy(s.ctx, params)...)
		},
	}
	cf.register(cmd)
	af.register(cmd)
	cmd.Flags().IntVar(&sampleSize, "sample-size", config.DefaultSampleSize, "Documents sampled per cluster")
	cmd.Flags().BoolVar(&useDescriptions, "use-descriptions", false, "Embed \"name: description\" instead of the bare name")

	return cmd
}
