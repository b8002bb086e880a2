package main

import (
	"github.com/spf13/cobra"

	"github.com/ecmwf-go/fdb/internal/build"
	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/pkg/dispatch"
	"github.com/ecmwf-go/fdb/pkg/key"
)

var controlCmd = &cobra.Command{
	Use:   "control key=value [key=value...]",
	Short: "Lock or unlock a capability on a database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		action, _ := cmd.Flags().GetString("action")
		if action == "" {
			return ferr.New(ferr.UserError, "--action is required")
		}
		enable, _ := cmd.Flags().GetBool("enable")

		fdb, err := build.FDB(cfg)
		if err != nil {
			return err
		}
		defer fdb.Close()

		var dbKey *key.Key
		all, _ := cmd.Flags().GetBool("all")
		if !all {
			sch, err := build.SchemaFor(cfg)
			if err != nil {
				return err
			}
			dbKeys, err := sch.ExpandFirstLevel(parseRequest(args))
			if err != nil {
				return err
			}
			if len(dbKeys) != 1 {
				return ferr.New(ferr.UserError, "control request must resolve to exactly one database, or pass --all")
			}
			dbKey = dbKeys[0]
		}

		return fdb.Control(cmd.Context(), dbKey, dispatch.ControlAction(action), enable)
	},
}

func init() {
	controlCmd.Flags().String("action", "", "capability to toggle: Archive, Retrieve, List, Wipe, UniqueRoot")
	controlCmd.Flags().Bool("enable", false, "enable the capability instead of disabling it")
}
