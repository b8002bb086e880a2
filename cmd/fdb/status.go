package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ecmwf-go/fdb/internal/build"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "type:    %s\n", cfg.Type)
		fmt.Fprintf(out, "schema:  %s\n", cfg.Schema)
		fmt.Fprintf(out, "engine:  %s\n", cfg.Engine)
		fmt.Fprintf(out, "store:   %s\n", cfg.Store)
		fmt.Fprintf(out, "lanes:   %d\n", len(cfg.Lanes))
		fmt.Fprintf(out, "fdbs:    %d\n", len(cfg.FDBs))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats key=value [key=value...]",
	Short: "Print field and byte counts for a request",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		fdb, err := build.FDB(cfg)
		if err != nil {
			return err
		}
		defer fdb.Close()

		entries, err := fdb.List(cmd.Context(), parseRequest(args), true)
		if err != nil {
			return err
		}
		var bytes int64
		for _, e := range entries {
			bytes += e.Location.Length
		}
		fmt.Fprintf(cmd.OutOrStdout(), "fields: %d\nbytes:  %d\n", len(entries), bytes)
		return nil
	},
}
