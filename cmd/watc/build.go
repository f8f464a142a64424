package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/watc/engine"
	"github.com/wippyai/watc/errors"
)

func newBuildCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [flags] <file.wat>...",
		Short: "Compile .wat files into .wasm binaries",
		Long: `Compile each file and write <name>.wasm next to it, or into --out-dir.
Files are compiled in parallel; diagnostics are printed in input order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBuild(cmd, args)
		},
	}
	cmd.Flags().StringP("out", "o", "", "output file (single input only)")
	cmd.Flags().String("out-dir", "", "directory for output files")
	cmd.Flags().Bool("verify", false, "check every output with wazero before writing it")
	return cmd
}

func (a *app) runBuild(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	out, _ := flags.GetString("out")
	if flags.Changed("out-dir") {
		a.cfg.OutputDir, _ = flags.GetString("out-dir")
	}
	if flags.Changed("verify") {
		a.cfg.Verify, _ = flags.GetBool("verify")
	}
	if out != "" && len(args) > 1 {
		return errors.InvalidInput(errors.PhaseConfig, "-o requires a single input file")
	}
	if out == "" {
		if err := checkOutputs(args, a.cfg.OutputDir); err != nil {
			return err
		}
	}
	if a.cfg.OutputDir != "" {
		if err := os.MkdirAll(a.cfg.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	ctx := cmd.Context()
	var verifier *engine.Engine
	if a.cfg.Verify {
		verifier = engine.New(ctx, nil)
		defer verifier.Close(ctx)
	}

	results, err := a.compileFiles(ctx, args, func(ctx context.Context, r *fileResult) {
		if verifier != nil {
			if err := verifier.Verify(ctx, r.res.Binary); err != nil {
				r.err = err
				return
			}
		}
		dst := out
		if dst == "" {
			dst = outputPath(r.path, a.cfg.OutputDir)
		}
		if err := os.WriteFile(dst, r.res.Binary, 0o644); err != nil {
			r.err = fmt.Errorf("write %s: %w", dst, err)
			return
		}
		r.output = dst
		a.log.Debug("wrote module", zap.String("file", dst), zap.Int("bytes", len(r.res.Binary)))
	})
	if err != nil {
		return err
	}
	return a.report(results)
}

// outputPath maps src.wat to src.wasm, in dir when it is set.
func outputPath(src, dir string) string {
	base := filepath.Base(src)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + ".wasm"
	if dir == "" {
		dir = filepath.Dir(src)
	}
	return filepath.Join(dir, name)
}

// checkOutputs rejects input lists where two files would be written to the
// same output path.
func checkOutputs(paths []string, dir string) error {
	seen := make(map[string]string, len(paths))
	for _, src := range paths {
		dst := outputPath(src, dir)
		if prev, ok := seen[dst]; ok {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path(dst).Value(src).
				Detail("%s and %s both write %s", prev, src, dst).Build()
		}
		seen[dst] = src
	}
	return nil
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file.wat>...",
		Short: "Compile without writing output and print diagnostics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := a.compileFiles(cmd.Context(), args, nil)
			if err != nil {
				return err
			}
			return a.report(results)
		},
	}
}
