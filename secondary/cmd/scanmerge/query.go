package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"

	"github.com/couchbase/scanmerge/secondary/kvstore"
	"github.com/couchbase/scanmerge/secondary/logging"
	"github.com/couchbase/scanmerge/secondary/queryport/merge"
	"github.com/couchbase/scanmerge/secondary/rowcodec"
)

type queryOptions struct {
	table         string
	columns       []string
	sort          bool
	limit         int64
	offset        int64
	groupBy       string
	batchSize     int
	metricsAddr   string
	metricsLinger time.Duration
}

func newQueryCmd(g *globalOptions) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Merge the partition scans of a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return runQuery(cmd.Context(), g, store, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.table, "table", "events", "table name")
	addQueryFlags(cmd, opts)
	return cmd
}

func addQueryFlags(cmd *cobra.Command, opts *queryOptions) {
	flags := cmd.Flags()
	flags.StringSliceVar(&opts.columns, "columns", nil, "columns to print, all when empty")
	flags.BoolVar(&opts.sort, "sort", false, "deliver rows in primary key order")
	flags.Int64Var(&opts.limit, "limit", merge.NoLimit, "maximum rows (groups with --group-by), -1 for all")
	flags.Int64Var(&opts.offset, "offset", 0, "rows (groups with --group-by) to skip, implies --sort")
	flags.StringVar(&opts.groupBy, "group-by", "", "count rows per value of the leading key column")
	flags.IntVar(&opts.batchSize, "batch-size", 0, "rows per fetch, default from configuration")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	flags.DurationVar(&opts.metricsLinger, "metrics-linger", 0, "keep serving metrics this long after the query")
}

func runQuery(ctx context.Context, g *globalOptions, store *kvstore.Store, opts *queryOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	codec, err := store.Table(opts.table)
	if err != nil {
		return err
	}
	schema := codec.Schema()
	decoder, err := codec.NewDecoder(opts.columns...)
	if err != nil {
		return err
	}

	groupIdx := -1
	if opts.groupBy != "" {
		if schema.KeyColumns()[0].Name != opts.groupBy {
			return fmt.Errorf("--group-by must name the leading key column %q", schema.KeyColumns()[0].Name)
		}
		for i, col := range decoder.Columns() {
			if col.Name == opts.groupBy {
				groupIdx = i
			}
		}
		if groupIdx < 0 {
			return fmt.Errorf("--group-by column %q is not among --columns", opts.groupBy)
		}
	}

	batchSize := opts.batchSize
	if batchSize <= 0 {
		batchSize = g.config["queryport.merge.scan.batch_size"].Int()
	}
	handles, err := store.Scanners(opts.table, batchSize)
	if err != nil {
		return err
	}

	registry := gometrics.NewRegistry()
	if opts.metricsAddr != "" {
		srv := serveMetrics(opts.metricsAddr, registry)
		defer shutdownMetrics(srv, opts.metricsLinger)
	}

	scanStats := merge.NewScanStats(registry)
	m, err := merge.NewStreamMerger(handles, decoder, merge.Options{
		RequestId:            uuid.NewString(),
		Limit:                opts.limit,
		Offset:               opts.offset,
		Sort:                 opts.sort || groupIdx >= 0,
		DescendingKeyIndices: schema.DescendingKeyIndices(),
		GroupBySorted:        groupIdx >= 0,
		Stats:                scanStats,
		Config:               g.config,
	})
	if err != nil {
		for _, h := range handles {
			h.Close()
		}
		return err
	}
	defer m.Close()

	logging.Infof("query %v: table %v mode %v partitions %v", m.RequestId(), opts.table, m.Mode(), len(handles))
	if err := m.Start(ctx); err != nil {
		return err
	}

	if groupIdx >= 0 {
		err = printGroups(m, decoder.Columns(), groupIdx, out)
	} else {
		err = printRows(m, decoder.Columns(), out)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "requestId %v mode %v %v\n", m.RequestId(), m.Mode(), scanStats)
	return nil
}

func printRows(m *merge.StreamMerger, columns []rowcodec.Column, out io.Writer) error {
	table := tablewriter.NewWriter(out)
	table.SetAutoFormatHeaders(false)
	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.Name
	}
	table.SetHeader(header)

	for {
		ok, err := m.Advance()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		row := m.Current()
		line := make([]string, len(row.Values))
		for i, v := range row.Values {
			line[i] = formatValue(v)
		}
		table.Append(line)
	}
	table.Render()
	return nil
}

type groupCount struct {
	key    string
	rows   int64
	amount float64
}

func printGroups(m *merge.StreamMerger, columns []rowcodec.Column, groupIdx int, out io.Writer) error {
	amountIdx := -1
	for i, col := range columns {
		if col.Type == rowcodec.TypeDouble {
			amountIdx = i
			break
		}
	}

	op := merge.NewSortedGroupOperator(m, m.Limit(), m.Offset(),
		func(row merge.Row) string { return formatValue(row.Values[groupIdx]) },
		func() groupCount { return groupCount{} },
		func(acc groupCount, row merge.Row) groupCount {
			acc.rows++
			if amountIdx >= 0 {
				if f, ok := row.Values[amountIdx].(float64); ok {
					acc.amount += f
				}
			}
			return acc
		},
		func(key string, acc groupCount) groupCount {
			acc.key = key
			return acc
		})
	groups, err := op.All()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(out)
	table.SetAutoFormatHeaders(false)
	header := []string{columns[groupIdx].Name, "count"}
	if amountIdx >= 0 {
		header = append(header, "sum("+columns[amountIdx].Name+")")
	}
	table.SetHeader(header)
	for _, group := range groups {
		line := []string{group.key, strconv.FormatInt(group.rows, 10)}
		if amountIdx >= 0 {
			line = append(line, strconv.FormatFloat(group.amount, 'f', 2, 64))
		}
		table.Append(line)
	}
	table.Render()
	return nil
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case []byte:
		return hex.EncodeToString(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
