// Command watc compiles WebAssembly text into binary modules.
package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/watc/internal/config"
)

// version is overridden at link time.
var version = "dev"

// errFailed signals that diagnostics were already printed and the process
// should exit with status 1.
var errFailed = stderrors.New("compilation failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !stderrors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "watc: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "watc",
		Short:         "WebAssembly text format compiler",
		Long:          "watc compiles .wat files into .wasm binaries, reporting every diagnostic it can find.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.teardown()
		},
	}

	f := root.PersistentFlags()
	f.String("config", "", "config file (default: watc.toml or watc.yaml in the working directory)")
	f.String("color", config.ColorAuto, "colorize output (auto|always|never)")
	f.String("format", config.FormatPretty, "diagnostic format (pretty|short|json|msgpack)")
	f.Int("max-diagnostics", 0, "maximum diagnostics kept per file, 0 keeps all")
	f.IntP("jobs", "j", 0, "files compiled in parallel (default GOMAXPROCS)")
	f.Bool("warnings-as-errors", false, "fail on warnings")
	f.BoolP("verbose", "v", false, "log pipeline stages to stderr")

	root.AddCommand(
		newBuildCmd(a),
		newCheckCmd(a),
		newExportsCmd(a),
		newExploreCmd(a),
	)
	return root
}
