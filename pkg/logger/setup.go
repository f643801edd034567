package logger

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Setup installs the default logger for cmd and returns it. Entries go to
// the command's error stream so printed output stays parseable; the
// log-source flag adds caller locations.
func Setup(cmd *cobra.Command, level string, json bool) (Logger, error) {
	source, err := cmd.Flags().GetBool("log-source")
	if err != nil {
		return nil, fmt.Errorf("failed to get log-source flag: %w", err)
	}
	cfg := DefaultConfig()
	cfg.Level = ParseLevel(level)
	cfg.JSON = json
	cfg.AddSource = source
	cfg.Output = cmd.ErrOrStderr()
	Init(cfg)
	return GetDefault(), nil
}
