package wat

import "go.uber.org/zap"

// Option configures a compilation.
type Option func(*options)

type options struct {
	logger           *zap.Logger
	maxDiagnostics   int
	warningsAsErrors bool
}

func buildOptions(opts []Option) options {
	o := options{logger: Logger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithMaxDiagnostics keeps at most n diagnostics. Errors beyond the limit
// still fail the compilation.
func WithMaxDiagnostics(n int) Option {
	return func(o *options) {
		o.maxDiagnostics = n
	}
}

// WithWarningsAsErrors promotes every warning to an error before encoding.
func WithWarningsAsErrors() Option {
	return func(o *options) {
		o.warningsAsErrors = true
	}
}

// WithLogger overrides the package logger for one compilation.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
