package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixml/taxon/application/service"
	domainservice "github.com/helixml/taxon/domain/service"
)

func tagCmd(flags *globalFlags) *cobra.Command {
	var (
		af                 assignFlags
		maxClusterDistance float64
		refine             bool
		persist            bool
	)

	cmd := &cobra.Command{
		Use:   "tag <file>",
		Short: "Suggest tags for one document using the current taxonomy",
		Long: `Suggest tags for one document using the current taxonomy.

The document is embedded but not added to the index. With --persist the
suggestions replace the document's stored assignments.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()

			params := service.TagParamsFrom(s.client.Config().Taxonomy())
			params.TopN, params.MinConfidence = af.apply(cmd, params.TopN, params.MinConfidence)
			if cmd.Flags().Changed("max-cluster-distance") {
				params.MaxClusterDistance = maxClusterDistance
			}
			params.LLMRefine = refine
			params.Persist = persist

			result, err := s.client.Pipeline().TagNew(s.ctx, args[0], params)
			if err != nil {
				return err
			}
			writeTagResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	af.register(cmd)
	cmd.Flags().Float64Var(&maxClusterDistance, "max-cluster-distance", 0, "Treat the document as unclustered beyond this cosine distance")
	cmd.Flags().BoolVar(&refine, "refine", false, "Ask the LLM to review the suggested tags")
	cmd.Flags().BoolVar(&persist, "persist", false, "Store the suggestions as the document's assignments")

	return cmd
}

func writeTagResult(w io.Writer, r service.TagResult) {
	if r.Clustered() {
		_, _ = fmt.Fprintf(w, "%s: cluster #%d (distance %.3f)\n", r.DocumentID, r.ClusterID, r.ClusterDistance)
	} else {
		_, _ = fmt.Fprintf(w, "%s: unclustered\n", r.DocumentID)
	}
	for _, a := range r.Assignments {
		_, _ = fmt.Fprintf(w, "  %-24s %.3f\n", a.Tag(), a.Confidence())
	}
	if len(r.Assignments) == 0 {
		_, _ = fmt.Fprintln(w, "  no tags above the confidence threshold")
	}
	switch {
	case r.Refined:
		_, _ = fmt.Fprintln(w, "  refined by LLM")
	case r.RefineError != "":
		_, _ = fmt.Fprintf(w, "  refinement failed: %s\n", r.RefineError)
	}
	if r.Persisted {
		_, _ = fmt.Fprintln(w, "  saved")
	}
}

func searchCmd(flags *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the chunks closest to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()

			matches, err := s.client.Pipeline().Search(s.ctx, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			writeMatches(cmd.OutOrStdout(), matches)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of chunks to return")

	return cmd
}

func writeMatches(w io.Writer, matches []domainservice.ChunkMatch) {
	if len(matches) == 0 {
		_, _ = fmt.Fprintln(w, "no matches")
		return
	}
	for i, m := range matches {
		c := m.Chunk()
		_, _ = fmt.Fprintf(w, "%d. %s [%d/%d] score %.3f\n", i+1, c.SourceFile(), c.Index()+1, c.Total(), m.Score())
		_, _ = fmt.Fprintf(w, "   %s\n", excerpt(c.Text(), 160))
	}
}

func excerpt(text string, maxRunes int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "..."
}
