// Copyright 2014-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included
// in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
// in that file, in accordance with the Business Source License, use of this
// software will be governed by the Apache License, Version 2.0, included in
// the file licenses/APL2.txt.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchbase/scanmerge/secondary/common"
	"github.com/couchbase/scanmerge/secondary/kvstore"
	"github.com/couchbase/scanmerge/secondary/logging"
)

type globalOptions struct {
	configFile string
	logLevel   string
	dir        string
	inMemory   bool
	partitions int

	config common.Config
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "scanmerge",
		Short:         "Load partitioned tables and run merged scans over them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "yaml, json or toml configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "silent, fatal, error, warn, info, verbose, timing, debug or trace")
	flags.StringVar(&opts.dir, "dir", "scanmerge-data", "data directory")
	flags.BoolVar(&opts.inMemory, "in-memory", false, "keep data in memory only")
	flags.IntVar(&opts.partitions, "partitions", 0, "number of partitions of new stores")

	root.AddCommand(newLoadCmd(opts), newQueryCmd(opts), newDemoCmd(opts))
	return root
}

func (opts *globalOptions) setup(cmd *cobra.Command) error {
	var err error
	if opts.configFile != "" {
		opts.config, err = common.LoadConfigFile(opts.configFile)
	} else {
		opts.config, err = common.LoadConfigEnv()
	}
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("in-memory") {
		if err := opts.config.SetValue("kvstore.inMemory", opts.inMemory); err != nil {
			return err
		}
	}
	if opts.partitions > 0 {
		if err := opts.config.SetValue("kvstore.partitions", opts.partitions); err != nil {
			return err
		}
	}

	level := opts.logLevel
	if level == "" {
		level = opts.config["queryport.merge.log_level"].String()
	}
	logging.SetLogLevel(logging.Level(level))
	logging.SetLogWriter(cmd.ErrOrStderr())
	return nil
}

func (opts *globalOptions) openStore() (*kvstore.Store, error) {
	return kvstore.Open(opts.dir, opts.config)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
