package helpers

import (
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Output formats understood by commands printing structured data.
const (
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatTable = "table"
)

// ExtractCLIFlags collects the flags explicitly set on cmd, inherited ones
// included, keyed by flag name. Values keep their flag type so the
// configuration loader does not have to parse them again.
func ExtractCLIFlags(cmd *cobra.Command) map[string]any {
	out := make(map[string]any)
	visit := func(f *pflag.Flag) {
		raw := f.Value.String()
		switch f.Value.Type() {
		case "bool":
			if v, err := strconv.ParseBool(raw); err == nil {
				out[f.Name] = v
				return
			}
		case "int", "int64":
			if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
				out[f.Name] = int(v)
				return
			}
		}
		out[f.Name] = raw
	}
	cmd.InheritedFlags().Visit(visit)
	cmd.Flags().Visit(visit)
	return out
}

// DefaultFormat returns the table format on a terminal and JSON otherwise.
func DefaultFormat() string {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return FormatTable
	}
	return FormatJSON
}
