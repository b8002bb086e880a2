package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecmwf-go/fdb/internal/build"
	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/pkg/dispatch"
)

// overlayCmd mounts one database's entries under another, via
// dispatch.Local.Overlay's weak-backreference remap (no payload bytes
// are copied).
var overlayCmd = &cobra.Command{
	Use:   "overlay key=value [key=value...]",
	Short: "Mount a source request's fields under a remapped target key",
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
		local, ok := fdb.(*dispatch.Local)
		if !ok {
			return ferr.New(ferr.UserError, "overlay requires a local configuration")
		}

		target, _ := cmd.Flags().GetStringToString("set")
		if len(target) == 0 {
			return ferr.New(ferr.UserError, "--set kw=val,... is required to name the target remap")
		}

		req := parseRequest(args)
		entries, err := fdb.List(cmd.Context(), req, false)
		if err != nil {
			return err
		}
		sch, err := build.SchemaFor(cfg)
		if err != nil {
			return err
		}
		dbKeys, err := sch.ExpandFirstLevel(req)
		if err != nil {
			return err
		}
		if len(dbKeys) != 1 {
			return ferr.New(ferr.UserError, "overlay source request must resolve to exactly one database")
		}

		if err := local.Overlay(dbKeys[0], entries, target); err != nil {
			return err
		}
		return fdb.Flush(cmd.Context())
	},
}

// reindexCmd normalizes a database's on-disk state: purging fully-masked
// generations and flushing, so subsequent opens replay a minimal TOC.
var reindexCmd = &cobra.Command{
	Use:   "reindex key=value [key=value...]",
	Short: "Purge masked entries and flush a database's catalogue",
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

		if _, err := fdb.Purge(cmd.Context(), parseRequest(args), true); err != nil {
			return err
		}
		return fdb.Flush(cmd.Context())
	},
}

// whereCmd prints the filesystem root a local configuration archives
// new databases under.
var whereCmd = &cobra.Command{
	Use:   "where",
	Short: "Print the root directory new databases are archived under",
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
		local, ok := fdb.(*dispatch.Local)
		if !ok {
			return ferr.New(ferr.UserError, "where only reports a single root for a local configuration")
		}
		fmt.Fprintln(cmd.OutOrStdout(), local.Root())
		return nil
	},
}

// axesCmd prints the merged per-keyword value sets across every database
// matched by a request.
var axesCmd = &cobra.Command{
	Use:   "axes key=value [key=value...]",
	Short: "Print the merged axis summary for a request",
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
		local, ok := fdb.(*dispatch.Local)
		if !ok {
			return ferr.New(ferr.UserError, "axes only supports a local configuration")
		}

		axes, err := local.Axes(cmd.Context(), parseRequest(args))
		if err != nil {
			return err
		}
		kws := make([]string, 0, len(axes))
		for kw := range axes {
			kws = append(kws, kw)
		}
		sort.Strings(kws)
		for _, kw := range kws {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", kw, axes[kw])
		}
		return nil
	},
}

// hammerCmd archives synthetic fields at a fixed size as a throughput
// smoke test.
var hammerCmd = &cobra.Command{
	Use:   "hammer key=value [key=value...]",
	Short: "Archive synthetic fields in a loop and report throughput",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		sch, err := build.SchemaFor(cfg)
		if err != nil {
			return err
		}
		chains, err := expandArchiveChains(sch, parseRequest(args))
		if err != nil {
			return err
		}
		if len(chains) == 0 {
			return ferr.New(ferr.UserError, "hammer request must resolve to at least one field")
		}

		count, _ := cmd.Flags().GetInt("count")
		size, _ := cmd.Flags().GetInt("size")
		payload := make([]byte, size)

		fdb, err := build.FDB(cfg)
		if err != nil {
			return err
		}
		defer fdb.Close()

		start := time.Now()
		for i := 0; i < count; i++ {
			chain := chains[i%len(chains)]
			if err := fdb.Archive(cmd.Context(), dispatch.ArchiveRequest{Chain: chain, Payload: payload}); err != nil {
				return err
			}
		}
		if err := fdb.Flush(cmd.Context()); err != nil {
			return err
		}
		elapsed := time.Since(start)
		fmt.Fprintf(cmd.OutOrStdout(), "archived %d fields (%d bytes each) in %s\n", count, size, elapsed)
		return nil
	},
}

func init() {
	overlayCmd.Flags().StringToString("set", nil, "target remap keywords, e.g. --set expver=yyyy")
	hammerCmd.Flags().Int("count", 100, "number of fields to archive")
	hammerCmd.Flags().Int("size", 1024, "payload size per field, in bytes")
}
