package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ecmwf-go/fdb/internal/build"
)

var retrieveCmd = &cobra.Command{
	Use:     "retrieve key=value [key=value...]",
	Aliases: []string{"inspect"},
	Short:   "Retrieve the bytes of fields matching a request",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRetrieve(cmd, args)
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump key=value [key=value...]",
	Short: "Write matching field bytes to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRetrieve(cmd, args)
	},
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fdb, err := build.FDB(cfg)
	if err != nil {
		return err
	}
	defer fdb.Close()

	optimise, _ := cmd.Flags().GetBool("optimise")
	h, err := fdb.Retrieve(cmd.Context(), parseRequest(args), true, optimise)
	if err != nil {
		return err
	}
	defer h.Close()

	out := cmd.OutOrStdout()
	output, _ := cmd.Flags().GetString("output")
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	_, err = io.Copy(out, h)
	return err
}

func init() {
	retrieveCmd.Flags().String("output", "", "write bytes to this file instead of stdout")
	retrieveCmd.Flags().Bool("optimise", false, "merge fields in sorted, seekable order")
	dumpCmd.Flags().Bool("optimise", false, "merge fields in sorted, seekable order")
}
