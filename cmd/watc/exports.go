package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/watc/engine"
	"github.com/wippyai/watc/errors"
	"github.com/wippyai/watc/internal/config"
)

func newExportsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exports <file.wat|file.wasm>",
		Short: "List exported functions and memories",
		Long:  "List the exports of a binary module, compiling it first when given text.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExports(cmd.Context(), args[0])
		},
	}
}

func (a *app) runExports(ctx context.Context, path string) error {
	bin, err := a.loadBinary(path)
	if err != nil {
		return err
	}
	exports, err := engine.Exports(ctx, bin)
	if err != nil {
		return err
	}

	switch a.cfg.Format {
	case config.FormatJSON:
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(exports)
	case config.FormatMsgpack:
		return msgpack.NewEncoder(a.stdout).Encode(exports)
	}
	for _, x := range exports {
		fmt.Fprintln(a.stdout, x)
	}
	return nil
}

// loadBinary reads a .wasm file as is and compiles anything else. On
// compile failure the diagnostics are reported and errFailed returned.
func (a *app) loadBinary(path string) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".wasm") {
		bin, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Load(fmt.Sprintf("read %s", path), err)
		}
		return bin, nil
	}

	var r fileResult
	a.compileFile(path, &r)
	if r.failed() {
		return nil, a.report([]fileResult{r})
	}
	// stdout carries the export list in machine formats
	if a.textFormat() && len(r.res.Warnings()) > 0 {
		if err := a.renderText([]fileResult{r}); err != nil {
			return nil, err
		}
	}
	return r.res.Binary, nil
}
