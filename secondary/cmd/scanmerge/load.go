package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchbase/scanmerge/secondary/kvstore"
	"github.com/couchbase/scanmerge/secondary/logging"
)

type loadOptions struct {
	table    string
	rows     int
	accounts int
	seed     int64
	chunk    int
}

func newLoadCmd(g *globalOptions) *cobra.Command {
	opts := &loadOptions{}
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Create the sample events table and fill it",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := loadSample(store, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %v rows into %q\n", opts.rows, opts.table)
			return nil
		},
	}
	addLoadFlags(cmd, opts)
	return cmd
}

func addLoadFlags(cmd *cobra.Command, opts *loadOptions) {
	cmd.Flags().StringVar(&opts.table, "table", "events", "table name")
	cmd.Flags().IntVar(&opts.rows, "rows", 1000, "number of rows")
	cmd.Flags().IntVar(&opts.accounts, "accounts", 10, "number of distinct accounts")
	cmd.Flags().Int64Var(&opts.seed, "seed", 1, "random seed")
	cmd.Flags().IntVar(&opts.chunk, "chunk", 500, "rows per write batch")
}

func loadSample(store *kvstore.Store, opts *loadOptions) error {
	schema, err := eventsSchema()
	if err != nil {
		return err
	}
	err = store.CreateTable(opts.table, schema)
	if err != nil && !errors.Is(err, kvstore.ErrTableExists) {
		return err
	}

	rows := sampleRows(opts.rows, opts.accounts, opts.seed)
	chunk := opts.chunk
	if chunk <= 0 {
		chunk = len(rows)
	}
	defer logging.Timer("load %v rows into %v", len(rows), opts.table).End()
	for len(rows) > 0 {
		n := chunk
		if n > len(rows) {
			n = len(rows)
		}
		if err := store.Put(opts.table, rows[:n]...); err != nil {
			return err
		}
		rows = rows[n:]
	}
	return nil
}
