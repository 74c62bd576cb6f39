// Package pipeline chains the compilation stages: source → tokens → AST →
// analyzed AST → chunk. Each stage is a Processor over a shared context; the
// first error aborts the chain.
package pipeline

import (
	"github.com/onsah/flux/internal/analyzer"
	"github.com/onsah/flux/internal/ast"
	"github.com/onsah/flux/internal/lexer"
	"github.com/onsah/flux/internal/modules"
	"github.com/onsah/flux/internal/parser"
	"github.com/onsah/flux/internal/token"
	"github.com/onsah/flux/internal/vm"
)

// PipelineContext carries one source unit through the stages.
type PipelineContext struct {
	Source  string
	File    string
	BaseDir string

	Tokens  []token.Token
	Program *ast.Program
	Chunk   *vm.Chunk

	Err error
}

func NewPipelineContext(source, file, baseDir string) *PipelineContext {
	return &PipelineContext{Source: source, File: file, BaseDir: baseDir}
}

// Processor is one stage of the pipeline.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

type Pipeline struct {
	processors []Processor
}

func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Run executes the stages in order, stopping at the first error: nothing is
// recovered locally, the error belongs to the caller.
func (p *Pipeline) Run(ctx *PipelineContext) *PipelineContext {
	for _, processor := range p.processors {
		ctx = processor.Process(ctx)
		if ctx.Err != nil {
			return ctx
		}
	}
	return ctx
}

type LexerProcessor struct{}

func (LexerProcessor) Process(ctx *PipelineContext) *PipelineContext {
	ctx.Tokens, ctx.Err = lexer.Scan(ctx.Source)
	return ctx
}

type ParserProcessor struct{}

func (ParserProcessor) Process(ctx *PipelineContext) *PipelineContext {
	ctx.Program, ctx.Err = parser.New(ctx.Tokens).Parse(ctx.File)
	return ctx
}

type AnalyzerProcessor struct {
	// Globals are names to treat as already defined (REPL continuity).
	Globals []string
}

func (p AnalyzerProcessor) Process(ctx *PipelineContext) *PipelineContext {
	ctx.Program, ctx.Err = analyzer.AnalyzeWith(ctx.Program, p.Globals)
	return ctx
}

type CompilerProcessor struct {
	Loader *modules.Loader
}

func (p CompilerProcessor) Process(ctx *PipelineContext) *PipelineContext {
	ctx.Chunk, ctx.Err = vm.NewCompiler(ctx.BaseDir, p.Loader).Compile(ctx.Program)
	return ctx
}

// Compile runs the full front end over one source unit.
func Compile(source, file, baseDir string, loader *modules.Loader) (*vm.Chunk, error) {
	ctx := New(
		LexerProcessor{},
		ParserProcessor{},
		AnalyzerProcessor{},
		CompilerProcessor{Loader: loader},
	).Run(NewPipelineContext(source, file, baseDir))
	return ctx.Chunk, ctx.Err
}

// CompileInteractive compiles a REPL line: the chunk prints its trailing
// value instead of returning it, so every line echoes its result. knownGlobals
// carries the VM's current global names so earlier vars stay resolvable.
func CompileInteractive(source string, loader *modules.Loader, knownGlobals []string) (*vm.Chunk, error) {
	ctx := New(
		LexerProcessor{},
		ParserProcessor{},
		AnalyzerProcessor{Globals: knownGlobals},
		CompilerProcessor{Loader: loader},
	).Run(NewPipelineContext(source, "", ""))
	chunk, err := ctx.Chunk, ctx.Err
	if err != nil {
		return nil, err
	}
	n := len(chunk.Instructions)
	if n > 0 && chunk.Instructions[n-1].Op == vm.OP_RETURN && chunk.Instructions[n-1].Flag {
		chunk.Instructions[n-1] = vm.Instruction{Op: vm.OP_PRINT}
		chunk.Instructions = append(chunk.Instructions, vm.Instruction{Op: vm.OP_RETURN})
	}
	return chunk, nil
}
