package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ecmwf-go/fdb/internal/build"
)

var wipeCmd = &cobra.Command{
	Use:   "wipe key=value [key=value...]",
	Short: "Remove a database and its store units",
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
		unsafeAll, _ := cmd.Flags().GetBool("unsafe-wipe-all")
		removed, err := fdb.Wipe(cmd.Context(), parseRequest(args), doit, unsafeAll)
		if err != nil {
			return err
		}
		for _, r := range removed {
			fmt.Fprintln(cmd.OutOrStdout(), r)
		}
		return nil
	},
}

func init() {
	wipeCmd.Flags().Bool("doit", false, "actually remove files (default is a dry run)")
	wipeCmd.Flags().Bool("unsafe-wipe-all", false, "permit an under-specified request to match multiple databases")
}
