package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/helixml/taxon/domain/assignment"
	"github.com/helixml/taxon/domain/cluster"
	"github.com/helixml/taxon/domain/query"
	"github.com/helixml/taxon/domain/taxonomy"
)

// taxonomyExport is the serialized form of the taxonomy.
type taxonomyExport struct {
	BuiltAt    *time.Time       `json:"built_at,omitempty" yaml:"built_at,omitempty"`
	Categories []categoryExport `json:"categories" yaml:"categories"`
	Tags       []tagExport      `json:"tags" yaml:"tags"`
	Clusters   []clusterExport  `json:"clusters,omitempty" yaml:"clusters,omitempty"`
}

type categoryExport struct {
	Name          string   `json:"name" yaml:"name"`
	Subcategories []string `json:"subcategories" yaml:"subcategories"`
}

type tagExport struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type clusterExport struct {
	ID        int      `json:"id" yaml:"id"`
	Size      int      `json:"size" yaml:"size"`
	Tags      []string `json:"tags" yaml:"tags"`
	Documents []string `json:"documents,omitempty" yaml:"documents,omitempty"`
}

func newTaxonomyExport(tax taxonomy.Taxonomy, clusters []cluster.Cluster, builtAt time.Time, built bool, withDocuments bool) taxonomyExport {
	out := taxonomyExport{
		Categories: []categoryExport{},
		Tags:       []tagExport{},
	}
	if built {
		at := builtAt.UTC()
		out.BuiltAt = &at
	}
	for _, c := range tax.Categories() {
		out.Categories = append(out.Categories, categoryExport{Name: c.Name(), Subcategories: c.Subcategories()})
	}
	for _, t := range tax.Tags() {
		out.Tags = append(out.Tags, tagExport{Name: t.Name(), Description: t.Description()})
	}
	for _, c := range clusters {
		ce := clusterExport{ID: c.ID(), Size: c.Size(), Tags: tax.ClusterTags(c.ID())}
		if withDocuments {
			for _, m := range c.Members() {
				ce.Documents = append(ce.Documents, m.DocumentID())
			}
		}
		out.Clusters = append(out.Clusters, ce)
	}
	return out
}

// writeExport encodes doc as yaml or json.
func writeExport(w io.Writer, format string, doc taxonomyExport) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported export format %q, use yaml or json", format)
	}
}

// writeTaxonomyText prints the taxonomy as an indented outline.
func writeTaxonomyText(w io.Writer, doc taxonomyExport) {
	if doc.BuiltAt != nil {
		_, _ = fmt.Fprintf(w, "built at %s\n", doc.BuiltAt.Format(time.RFC3339))
	} else {
		_, _ = fmt.Fprintln(w, "taxonomy has not been fully built")
	}
	_, _ = fmt.Fprintf(w, "\ncategories (%d)\n", len(doc.Categories))
	for _, c := range doc.Categories {
		_, _ = fmt.Fprintf(w, "  %s\n", c.Name)
		for _, s := range c.Subcategories {
			_, _ = fmt.Fprintf(w, "    %s\n", s)
		}
	}

	_, _ = fmt.Fprintf(w, "\ntags (%d)\n", len(doc.Tags))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, t := range doc.Tags {
		_, _ = fmt.Fprintf(tw, "  %s\t%s\n", t.Name, t.Description)
	}
	_ = tw.Flush()

	if len(doc.Clusters) > 0 {
		_, _ = fmt.Fprintf(w, "\nclusters (%d)\n", len(doc.Clusters))
		for _, c := range doc.Clusters {
			_, _ = fmt.Fprintf(w, "  #%d (%d documents): %s\n", c.ID, c.Size, strings.Join(c.Tags, ", "))
		}
	}
}

func showCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the taxonomy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()

			doc, err := loadExport(s, false)
			if err != nil {
				return err
			}
			writeTaxonomyText(cmd.OutOrStdout(), doc)
			return nil
		},
	}
}

func exportCmd(flags *globalFlags) *cobra.Command {
	var (
		format    string
		output    string
		documents bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the taxonomy as YAML or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()

			doc, err := loadExport(s, documents)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return writeExport(cmd.OutOrStdout(), format, doc)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			if err := writeExport(f, format, doc); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml, json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().BoolVar(&documents, "documents", false, "Include each cluster's member documents")

	return cmd
}

func loadExport(s session, withDocuments bool) (taxonomyExport, error) {
	p := s.client.Pipeline()
	tax, err := p.Taxonomy(s.ctx)
	if err != nil {
		return taxonomyExport{}, fmt.Errorf("load taxonomy: %w", err)
	}
	clusters, err := p.Clusters(s.ctx)
	if err != nil {
		return taxonomyExport{}, fmt.Errorf("load clusters: %w", err)
	}
	builtAt, built, err := p.LastTaxonomyBuild(s.ctx)
	if err != nil {
		return taxonomyExport{}, fmt.Errorf("load build time: %w", err)
	}
	return newTaxonomyExport(tax, clusters, builtAt, built, withDocuments), nil
}

func listCmd(flags *globalFlags) *cobra.Command {
	var (
		document string
		tag      string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored tag assignments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()

			var options []query.Option
			if document != "" {
				options = append(options, assignment.WithDocument(document))
			}
			if tag != "" {
				options = append(options, assignment.WithTag(tag))
			}
			if limit > 0 {
				options = append(options, query.WithLimit(limit))
			}
			assignments, err := s.client.Pipeline().Assignments(s.ctx, options...)
			if err != nil {
				return err
			}
			writeAssignments(cmd.OutOrStdout(), assignments)
			return nil
		},
	}
	cmd.Flags().StringVar(&document, "document", "", "Only this document")
	cmd.Flags().StringVar(&tag, "tag", "", "Only this tag")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows (0 means all)")

	return cmd
}

func writeAssignments(w io.Writer, assignments []assignment.Assignment) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DOCUMENT\tTAG\tCONFIDENCE\tSOURCE")
	for _, a := range assignments {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%.3f\t%s\n", a.DocumentID(), a.Tag(), a.Confidence(), a.Source())
	}
	_ = tw.Flush()
}
