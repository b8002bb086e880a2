package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ecmwf-go/fdb/internal/build"
)

var purgeCmd = &cobra.Command{
	Use:   "purge key=value [key=value...]",
	Short: "Remove fully-masked index generations",
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

		doit, _ := cmd.Flags().GetBool("doit")
		purged, err := fdb.Purge(cmd.Context(), parseRequest(args), doit)
		if err != nil {
			return err
		}
		for _, p := range purged {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	purgeCmd.Flags().Bool("doit", false, "actually remove files (default is a dry run)")
}
