package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/watc/diag"
	"github.com/wippyai/watc/errors"
	"github.com/wippyai/watc/internal/config"
	"github.com/wippyai/watc/wat"
)

// fileResult is the outcome of compiling one input file.
type fileResult struct {
	path   string
	res    *wat.Result
	err    error
	output string
}

func (r *fileResult) failed() bool {
	return r.err != nil || r.res == nil || !r.res.OK()
}

// fileReport is the machine-readable form of a fileResult.
type fileReport struct {
	File        string        `json:"file" msgpack:"file"`
	OK          bool          `json:"ok" msgpack:"ok"`
	Output      string        `json:"output,omitempty" msgpack:"output,omitempty"`
	Error       string        `json:"error,omitempty" msgpack:"error,omitempty"`
	Dropped     int           `json:"dropped,omitempty" msgpack:"dropped,omitempty"`
	Diagnostics []diag.Record `json:"diagnostics" msgpack:"diagnostics"`
}

// compileFiles compiles paths concurrently, bounded by the configured job
// count. after runs in the worker for every file that compiled cleanly.
// Results keep the input order.
func (a *app) compileFiles(ctx context.Context, paths []string, after func(context.Context, *fileResult)) ([]fileResult, error) {
	results := make([]fileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(a.cfg.Jobs, len(paths))))
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := &results[i]
			a.compileFile(path, r)
			if after != nil && !r.failed() {
				after(gctx, r)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (a *app) compileFile(path string, r *fileResult) {
	r.path = path
	src, err := os.ReadFile(path)
	if err != nil {
		r.err = errors.Load(fmt.Sprintf("read %s", path), err)
		return
	}
	r.res, r.err = wat.Compile(path, src, a.compileOptions()...)
	if r.res != nil {
		a.log.Debug("compiled file",
			zap.String("file", path),
			zap.Bool("ok", r.res.OK()),
			zap.Int("diagnostics", len(r.res.Diagnostics)))
	}
}

// report prints every result in the configured format and returns
// errFailed when any file failed.
func (a *app) report(results []fileResult) error {
	failed := false
	for i := range results {
		if results[i].failed() {
			failed = true
		}
	}

	var err error
	switch a.cfg.Format {
	case config.FormatJSON:
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(reports(results))
	case config.FormatMsgpack:
		err = msgpack.NewEncoder(a.stdout).Encode(reports(results))
	default:
		err = a.renderText(results)
	}
	if err != nil {
		return fmt.Errorf("write diagnostics: %w", err)
	}
	if failed {
		return errFailed
	}
	return nil
}

func (a *app) textFormat() bool {
	return a.cfg.Format == config.FormatPretty || a.cfg.Format == config.FormatShort
}

func (a *app) renderText(results []fileResult) error {
	opts := diag.RenderOptions{
		Color:   a.color,
		Short:   a.cfg.Format == config.FormatShort,
		Context: a.cfg.ContextLines,
	}
	for i := range results {
		r := &results[i]
		if r.res != nil {
			if err := r.res.Render(a.stderr, opts); err != nil {
				return err
			}
			if r.res.Dropped > 0 {
				fmt.Fprintf(a.stderr, "%s: %d more diagnostics not shown\n", r.path, r.res.Dropped)
			}
		}
		switch {
		case r.err != nil:
			fmt.Fprintf(a.stderr, "%s: %v\n", r.path, r.err)
		case r.output != "":
			fmt.Fprintf(a.stdout, "%s -> %s (%d bytes)\n", r.path, r.output, len(r.res.Binary))
		}
	}
	return nil
}

func reports(results []fileResult) []fileReport {
	out := make([]fileReport, len(results))
	for i := range results {
		r := &results[i]
		rep := fileReport{
			File:        r.path,
			OK:          !r.failed(),
			Output:      r.output,
			Diagnostics: []diag.Record{},
		}
		if r.err != nil {
			rep.Error = r.err.Error()
		}
		if r.res != nil {
			rep.Dropped = r.res.Dropped
			rep.Diagnostics = r.res.Diagnostics.Records()
		}
		out[i] = rep
	}
	return out
}
