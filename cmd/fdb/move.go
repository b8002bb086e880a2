package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ecmwf-go/fdb/internal/build"
	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/pkg/dispatch"
	"github.com/ecmwf-go/fdb/pkg/lifecycle"
	"github.com/ecmwf-go/fdb/pkg/location"
	"github.com/ecmwf-go/fdb/pkg/store"
)

var moveCmd = &cobra.Command{
	Use:   "move key=value [key=value...]",
	Short: "Copy a database's store units to a new root and report the rewritten locations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMove(cmd, args, false)
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy key=value [key=value...]",
	Short: "Copy a database's store units to a new root, keeping the source",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMove(cmd, args, true)
	},
}

// runMove resolves matching locations and copies their payload bytes to
// dest. It reports the rewritten location mapping; rewriting the source
// catalogue's index entries to point at the new locations is left to the
// operator (the Catalogue model here publishes one index file per flush
// and has no in-place entry-replace primitive — see pkg/lifecycle's
// purge.go for the analogous masking-granularity note).
func runMove(cmd *cobra.Command, args []string, keepSource bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dest, _ := cmd.Flags().GetString("dest")
	if dest == "" {
		return ferr.New(ferr.UserError, "--dest is required")
	}
	threads, _ := cmd.Flags().GetInt("threads")

	fdb, err := build.FDB(cfg)
	if err != nil {
		return err
	}
	defer fdb.Close()

	local, ok := fdb.(*dispatch.Local)
	if !ok {
		return ferr.New(ferr.UserError, "move/copy requires a local configuration")
	}

	entries, err := fdb.List(cmd.Context(), parseRequest(args), false)
	if err != nil {
		return err
	}
	locs := make([]location.FieldLocation, 0, len(entries))
	for _, e := range entries {
		locs = append(locs, e.Location)
	}

	destStore, err := store.NewFileStore(dest, store.Unpacked)
	if err != nil {
		return err
	}
	defer destStore.Close()

	result, err := lifecycle.Move(cmd.Context(), locs, local.Store(), destStore, lifecycle.MoveRequest{
		DestURI:    dest,
		KeepSource: keepSource,
		Threads:    threads,
	})
	if err != nil {
		return err
	}
	for old, newLoc := range result.Rewritten {
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", old, newLoc.URI)
	}
	return nil
}

func init() {
	moveCmd.Flags().String("dest", "", "destination root directory")
	moveCmd.Flags().Int("threads", 4, "parallel copy workers")
	copyCmd.Flags().String("dest", "", "destination root directory")
	copyCmd.Flags().Int("threads", 4, "parallel copy workers")
}
