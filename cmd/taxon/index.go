package main

import (
	"github.com/spf13/cobra"
)

func reprocessCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess [files...]",
		Short: "Index new and changed documents",
		Long: `Index new and changed documents.

With no arguments every document under the root matching the include globs
is considered and documents that disappeared are pruned. With arguments only
the named files are considered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()
			return printResults(cmd.OutOrStdout(), s.client.Pipeline().Reprocess(s.ctx, args))
		},
	}
}

func rebuildIndexCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-index",
		Short: "Drop the ledger and chunk index, then index every document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer s.close()
			return printResults(cmd.OutOrStdout(), s.client.Pipeline().RebuildIndex(s.ctx))
		},
	}
}
