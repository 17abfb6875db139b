package main

import (
	"github.com/spf13/cobra"
)

func newDemoCmd(g *globalOptions) *cobra.Command {
	load := &loadOptions{}
	query := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Load the sample table into an in-memory store and query it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.config.SetValue("kvstore.inMemory", true); err != nil {
				return err
			}
			store, err := g.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := loadSample(store, load); err != nil {
				return err
			}
			query.table = load.table
			return runQuery(cmd.Context(), g, store, query, cmd.OutOrStdout())
		},
	}
	addLoadFlags(cmd, load)
	addQueryFlags(cmd, query)
	return cmd
}
