package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/watc/errors"
)

// Config holds configuration for engine creation.
type Config struct {
	// MemoryLimitPages caps declared memories in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// Engine wraps a wazero runtime used for decoding and validation only.
type Engine struct {
	runtime wazero.Runtime
}

// New creates an engine backed by the wazero interpreter.
func New(ctx context.Context, cfg *Config) *Engine {
	runtimeCfg := wazero.NewRuntimeConfigInterpreter().
		WithCoreFeatures(api.CoreFeaturesV2)
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return &Engine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}
}

// Close releases the runtime.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Kind is the kind of an exported entity.
type Kind string

const (
	KindFunc   Kind = "func"
	KindMemory Kind = "memory"
)

// Export describes one export of a module.
type Export struct {
	Name    string   `json:"name" msgpack:"name"`
	Kind    Kind     `json:"kind" msgpack:"kind"`
	Params  []string `json:"params,omitempty" msgpack:"params,omitempty"`
	Results []string `json:"results,omitempty" msgpack:"results,omitempty"`
}

func (x Export) String() string {
	if x.Kind != KindFunc {
		return x.Name + ": " + string(x.Kind)
	}
	return x.Name + ": func(" + strings.Join(x.Params, ", ") + ") -> " + results(x.Results)
}

func results(rs []string) string {
	switch len(rs) {
	case 0:
		return "()"
	case 1:
		return rs[0]
	}
	return "(" + strings.Join(rs, ", ") + ")"
}

// Verify decodes and validates bin without instantiating it.
func (e *Engine) Verify(ctx context.Context, bin []byte) error {
	compiled, err := e.compile(ctx, bin)
	if err != nil {
		return err
	}
	return compiled.Close(ctx)
}

// Exports lists exported functions and memories, sorted by name.
func (e *Engine) Exports(ctx context.Context, bin []byte) ([]Export, error) {
	compiled, err := e.compile(ctx, bin)
	if err != nil {
		return nil, err
	}
	defer compiled.Close(ctx)

	var out []Export
	for name, def := range compiled.ExportedFunctions() {
		out = append(out, Export{
			Name:    name,
			Kind:    KindFunc,
			Params:  typeNames(def.ParamTypes()),
			Results: typeNames(def.ResultTypes()),
		})
	}
	for name := range compiled.ExportedMemories() {
		out = append(out, Export{Name: name, Kind: KindMemory})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	debugf("module has %d exports", len(out))
	return out, nil
}

func (e *Engine) compile(ctx context.Context, bin []byte) (wazero.CompiledModule, error) {
	if len(bin) == 0 {
		return nil, errors.InvalidInput(errors.PhaseVerify, "empty binary")
	}
	compiled, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		Logger().Debug("wazero rejected module", zap.Int("bytes", len(bin)), zap.Error(err))
		rejected := errors.InvalidData(errors.PhaseVerify, nil, "module rejected by wazero")
		rejected.Cause = err
		return nil, rejected
	}
	return compiled, nil
}

func typeNames(ts []api.ValueType) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = api.ValueTypeName(t)
	}
	return out
}

// Verify checks bin with a throwaway engine.
func Verify(ctx context.Context, bin []byte) error {
	e := New(ctx, nil)
	defer e.Close(ctx)
	return e.Verify(ctx, bin)
}

// Exports lists the exports of bin with a throwaway engine.
func Exports(ctx context.Context, bin []byte) ([]Export, error) {
	e := New(ctx, nil)
	defer e.Close(ctx)
	return e.Exports(ctx, bin)
}
