package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ecmwf-go/fdb/internal/build"
)

var listCmd = &cobra.Command{
	Use:   "list key=value [key=value...]",
	Short: "List fields matching a request",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dedup := true // list is metadata-only; dedup=true mirrors the tool's default MARS-style "latest wins" view
		if noDedup, _ := cmd.Flags().GetBool("all-versions"); noDedup {
			dedup = false
		}

		fdb, err := build.FDB(cfg)
		if err != nil {
			return err
		}
		defer fdb.Close()

		entries, err := fdb.List(cmd.Context(), parseRequest(args), dedup)
		if err != nil {
			return err
		}

		raw, _ := cmd.Flags().GetBool("raw")
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer w.Flush()
		if raw {
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", e.IndexKeyCanonical, e.DatumKey, e.Location.Offset, e.Location.Length)
			}
			return nil
		}
		fmt.Fprintln(w, "INDEX\tDATUM\tURI\tOFFSET\tLENGTH")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", e.IndexKeyCanonical, e.DatumKey, e.Location.URI, e.Location.Offset, e.Location.Length)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().Bool("all-versions", false, "do not deduplicate; list every archived version")
}
