package main

import (
	"github.com/spf13/cobra"

	"github.com/ecmwf-go/fdb/internal/config"
	"github.com/ecmwf-go/fdb/internal/logging"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "fdb",
	Short: "Indexed object store for scientific field data",
	Long: `fdb archives and retrieves opaque binary fields addressed by a
multi-dimensional semantic key (class, expver, stream, date, time,
type, step, levtype, levelist, param, ...).`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate("fdb version " + Version + "\ncommit: " + Commit + "\n")

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "path to an FDB configuration file (overrides FDB5_CONFIG_FILE)")
	rootCmd.PersistentFlags().Bool("ignore-errors", false, "continue processing remaining requests after an error")
	rootCmd.PersistentFlags().Bool("raw", false, "print raw MARS-style output instead of a formatted table")
	rootCmd.PersistentFlags().Bool("all", false, "apply to every known database rather than matching a request")
	rootCmd.PersistentFlags().Int("minimum-keys", 0, "minimum number of keywords a request must specify")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(
		archiveCmd,
		listCmd,
		retrieveCmd,
		dumpCmd,
		statusCmd,
		wipeCmd,
		purgeCmd,
		statsCmd,
		controlCmd,
		moveCmd,
		copyCmd,
		overlayCmd,
		reindexCmd,
		whereCmd,
		axesCmd,
		hammerCmd,
	)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	logging.Init(logging.Config{Level: logging.Level(level), JSONOutput: jsonOut})
}

// loadConfig resolves the active configuration, honoring --config before
// falling back to the FDB5_CONFIG/FDB5_CONFIG_FILE/FDB_HOME chain.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Resolve()
}
