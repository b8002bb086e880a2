package main

import (
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ecmwf-go/fdb/internal/build"
	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/internal/logging"
	"github.com/ecmwf-go/fdb/pkg/dispatch"
	"github.com/ecmwf-go/fdb/pkg/key"
	"github.com/ecmwf-go/fdb/pkg/schema"
)

var archiveCmd = &cobra.Command{
	Use:   "archive key=value [key=value...]",
	Short: "Archive a field under the given request",
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
		if len(chains) != 1 {
			return ferr.New(ferr.UserError, "archive request must resolve to exactly one field").With("matched", strconv.Itoa(len(chains)))
		}

		file, _ := cmd.Flags().GetString("file")
		var r io.Reader = os.Stdin
		if file != "" {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		payload, err := io.ReadAll(r)
		if err != nil {
			return err
		}

		fdb, err := build.FDB(cfg)
		if err != nil {
			return err
		}
		defer fdb.Close()

		if err := fdb.Archive(cmd.Context(), dispatch.ArchiveRequest{Chain: chains[0], Payload: payload}); err != nil {
			return err
		}
		if err := fdb.Flush(cmd.Context()); err != nil {
			return err
		}
		logging.WithComponent("cli").Info().Str("key", chains[0].String()).Int("bytes", len(payload)).Msg("archived field")
		return nil
	},
}

func init() {
	archiveCmd.Flags().String("file", "", "payload file to archive (defaults to stdin)")
}

// archiveVisitor collects every fully-resolved db/index/datum chain
// produced by schema expansion in archive mode.
type archiveVisitor struct {
	chains []*key.Chain
}

func (v *archiveVisitor) SelectDatabase(dbKey *key.Key) bool { return true }
func (v *archiveVisitor) SelectIndex(dbKey, indexKey *key.Key) bool { return true }
func (v *archiveVisitor) SelectDatum(dbKey, indexKey, datumKey *key.Key) bool {
	v.chains = append(v.chains, key.NewChain(dbKey, indexKey, datumKey))
	return true
}

func expandArchiveChains(sch *schema.Schema, req schema.Request) ([]*key.Chain, error) {
	v := &archiveVisitor{}
	if err := sch.Expand(req, schema.ModeArchive, v); err != nil {
		return nil, err
	}
	return v.chains, nil
}
