package wat

import (
	"bytes"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/watc/diag"
	"github.com/wippyai/watc/errors"
	"github.com/wippyai/watc/wat/internal/encoder"
	"github.com/wippyai/watc/wat/internal/parser"
	"github.com/wippyai/watc/wat/internal/resolve"
	"github.com/wippyai/watc/wat/internal/token"
	"github.com/wippyai/watc/wat/internal/validate"
)

// Result is the outcome of one compilation.
type Result struct {
	// Source is the compiled text, kept for rendering diagnostics.
	Source *diag.Source
	// Binary holds the encoded module. It is nil unless OK reports true.
	Binary []byte
	// Diagnostics lists every kept diagnostic in discovery order.
	Diagnostics diag.List
	// Dropped counts diagnostics discarded by WithMaxDiagnostics.
	Dropped int
}

// OK reports whether the compilation produced a binary.
func (r *Result) OK() bool {
	return r.Binary != nil
}

// Errors returns the error-level diagnostics.
func (r *Result) Errors() diag.List {
	return r.Diagnostics.Filter(diag.SevError)
}

// Warnings returns the warnings.
func (r *Result) Warnings() diag.List {
	return r.Diagnostics.Filter(diag.SevWarning)
}

// Err returns the error diagnostics as an error, or nil on success.
func (r *Result) Err() error {
	if errs := r.Errors(); len(errs) > 0 {
		return errs
	}
	return nil
}

// Render writes every diagnostic with its source excerpt.
func (r *Result) Render(w io.Writer, opts diag.RenderOptions) error {
	return diag.NewRenderer(opts).Render(w, r.Source, r.Diagnostics)
}

// Compile translates WebAssembly text into a binary module.
//
// User mistakes never surface as the returned error: they are diagnostics
// on the Result, and Binary stays nil when any of them is an error. The
// error return is reserved for empty input and internal faults.
func Compile(filename string, source []byte, opts ...Option) (*Result, error) {
	o := buildOptions(opts)
	log := o.logger.With(zap.String("file", filename))

	if len(bytes.TrimSpace(source)) == 0 {
		return nil, errors.New(errors.PhaseLex, errors.KindInvalidInput).
			Path(filename).Detail("empty input").Build()
	}

	start := time.Now()
	src := diag.NewSource(filename, source)
	bag := diag.NewBag(o.maxDiagnostics)
	res := &Result{Source: src}

	mod := parser.New(token.NewLexer(src, bag), bag).Parse()
	stageDone(log, "parse", start, bag)

	// later stages over a broken module would only report cascades
	if !bag.HasErrors() {
		t := time.Now()
		resolve.Resolve(mod, bag)
		stageDone(log, "resolve", t, bag)
	}
	if !bag.HasErrors() {
		t := time.Now()
		validate.Validate(mod, bag)
		stageDone(log, "validate", t, bag)
	}
	if o.warningsAsErrors {
		bag.PromoteWarnings()
	}

	res.Diagnostics = bag.Items()
	res.Dropped = bag.Dropped()
	if bag.HasErrors() {
		log.Debug("compilation failed",
			zap.Int("errors", bag.ErrorCount()),
			zap.Duration("elapsed", time.Since(start)))
		return res, nil
	}

	t := time.Now()
	bin, err := encoder.Encode(mod)
	if err != nil {
		log.Error("encoder rejected a validated module", zap.Error(err))
		return res, err
	}
	stageDone(log, "encode", t, bag)

	res.Binary = bin
	log.Debug("compiled",
		zap.Int("bytes", len(bin)),
		zap.Int("warnings", len(res.Warnings())),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// CompileText compiles source and returns the binary. On failure the error
// is a compile_failed *errors.Error whose cause is the diag.List of error
// diagnostics.
func CompileText(source string, opts ...Option) ([]byte, error) {
	const name = "<input>"
	res, err := Compile(name, []byte(source), opts...)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, errors.CompileFailed(name, len(res.Errors()), res.Err())
	}
	return res.Binary, nil
}

func stageDone(log *zap.Logger, stage string, start time.Time, bag *diag.Bag) {
	log.Debug("stage done",
		zap.String("stage", stage),
		zap.Int("diagnostics", bag.Len()),
		zap.Duration("elapsed", time.Since(start)))
}
