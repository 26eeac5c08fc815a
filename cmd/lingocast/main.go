package main

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
})

var rootCmd = &cobra.Command{
	Use:           "lingocast",
	Short:         "Broadcast a live transcript to listeners under a short session code",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			logger.SetLevel(log.DebugLevel)
		}
	}
	rootCmd.AddCommand(serveCmd, publishCmd, listenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("command failed", "err", err)
	}
}

// configureLogger applies the configured level and output format.
func configureLogger(level, format string) {
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	switch format {
	case "json":
		logger.SetFormatter(log.JSONFormatter)
	case "logfmt":
		logger.SetFormatter(log.LogfmtFormatter)
	default:
		logger.SetFormatter(log.TextFormatter)
	}
}
