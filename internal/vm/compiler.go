package vm

import (
	"github.com/onsah/flux/internal/analyzer"
	"github.com/onsah/flux/internal/ast"
	"github.com/onsah/flux/internal/modules"
	"github.com/onsah/flux/internal/parser"
)

// Local is a variable resolved to a stack slot during compilation.
type Local struct {
	Name    string
	Depth   int // block depth where it was declared
	Closure int // closure nesting: 0 = top level
	Slot    int // stack slot relative to its frame's base
}

// closureScope is the emission target for one function body. The scope at
// index 0 is the top level and becomes the chunk's instruction stream.
//
// height simulates the frame's runtime stack height, temporaries included,
// so a local's slot is exactly where its value sits at runtime even when a
// block expression declares locals above call arguments already pushed.
type closureScope struct {
	instrs     []Instruction
	localStart int // index into Compiler.locals where this scope's locals begin
	height     int // simulated stack height of this frame
}

// Compiler walks an analyzed AST and emits a Chunk.
type Compiler struct {
	chunk  *Chunk
	scopes []*closureScope
	locals []Local
	depth  int

	// Import support
	baseDir string
	loader  *modules.Loader

	line int // line of the node being compiled, for errors
}

// NewCompiler creates a compiler for one source unit. baseDir is the
// directory relative imports resolve against.
func NewCompiler(baseDir string, loader *modules.Loader) *Compiler {
	if loader == nil {
		loader = modules.NewLoader()
	}
	return &Compiler{
		chunk:   NewChunk(),
		scopes:  []*closureScope{{}},
		baseDir: baseDir,
		loader:  loader,
	}
}

// Compile emits the whole program. The trailing expression's value is
// returned by the chunk's final Return.
func (c *Compiler) Compile(program *ast.Program) (*Chunk, error) {
	if err := c.compileBlockBody(program.Block); err != nil {
		return nil, err
	}
	c.emit(Instruction{Op: OP_RETURN, Flag: true})
	c.chunk.Instructions = c.scopes[0].instrs
	return c.chunk, nil
}

// CompileSource runs the whole front end over a source text: scan, parse,
// analyze, compile. Used for imports and by the pipeline.
func CompileSource(source, path, baseDir string, loader *modules.Loader) (*Chunk, error) {
	program, err := parser.ParseSource(source, path)
	if err != nil {
		return nil, err
	}
	if _, err := analyzer.Analyze(program); err != nil {
		return nil, err
	}
	return NewCompiler(baseDir, loader).Compile(program)
}

// Emission helpers

func (c *Compiler) scope() *closureScope {
	return c.scopes[len(c.scopes)-1]
}

func (c *Compiler) emit(instr Instruction) {
	s := c.scope()
	s.instrs = append(s.instrs, instr)
}

// next returns the index the next instruction will land on.
func (c *Compiler) next() int {
	return len(c.scope().instrs)
}

func (c *Compiler) emitPlaceholder() int {
	index := c.next()
	c.emit(Instruction{Op: OP_PLACEHOLDER})
	return index
}

// patch resolves the placeholder at index to jump to the current emission
// point.
func (c *Compiler) patch(index int, cond JumpCondition) error {
	return c.patchTo(index, c.next(), cond)
}

func (c *Compiler) patchTo(index, target int, cond JumpCondition) error {
	err := patchJump(c.scope().instrs, index, target-index, cond)
	if ce, ok := err.(*CompileError); ok && ce.Line == 0 {
		ce.Line = c.line
	}
	return err
}

func (c *Compiler) constant(value Value) (int, error) {
	idx, err := c.chunk.AddConstant(value)
	if ce, ok := err.(*CompileError); ok && ce.Line == 0 {
		ce.Line = c.line
	}
	return idx, err
}

// Scope management

func (c *Compiler) beginScope() {
	c.depth++
}

// adjust moves the simulated stack height of the current frame.
func (c *Compiler) adjust(n int) {
	c.scope().height += n
}

// endScope drops the locals of the closing block and emits a Pop for each.
func (c *Compiler) endScope() {
	c.depth--
	s := c.scope()
	for len(c.locals) > s.localStart && c.locals[len(c.locals)-1].Depth > c.depth {
		c.emit(Instruction{Op: OP_POP})
		c.locals = c.locals[:len(c.locals)-1]
		s.height--
	}
}

// endScopeCount drops the locals of the closing block without emitting Pops
// and returns how many there were. Block expressions use it together with
// ExitBlock, which does the popping at runtime while preserving the result;
// the caller adjusts the height at the ExitBlock site.
func (c *Compiler) endScopeCount() int {
	c.depth--
	s := c.scope()
	count := 0
	for len(c.locals) > s.localStart && c.locals[len(c.locals)-1].Depth > c.depth {
		c.locals = c.locals[:len(c.locals)-1]
		count++
	}
	return count
}

func (c *Compiler) beginClosure() {
	c.scopes = append(c.scopes, &closureScope{localStart: len(c.locals)})
	c.depth++
}

func (c *Compiler) endClosure() []Instruction {
	s := c.scope()
	c.locals = c.locals[:s.localStart]
	c.scopes = c.scopes[:len(c.scopes)-1]
	c.depth--
	return s.instrs
}

// declareLocal binds a name to the value currently on top of the simulated
// stack. For a let that is the just-compiled value; for function arguments
// the caller bumps the height first, since the VM pushes them.
func (c *Compiler) declareLocal(name string) {
	s := c.scope()
	c.locals = append(c.locals, Local{
		Name:    name,
		Depth:   c.depth,
		Closure: len(c.scopes) - 1,
		Slot:    s.height - 1,
	})
}

// resolveLocal finds the innermost local with the given name. The frame
// selector is 0 for top-level locals and 1 for locals of the current
// function; deeper selectors address enclosing functions and are only
// reachable when the analyzer's env rewrite is bypassed.
func (c *Compiler) resolveLocal(name string) (slot, frame int, ok bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		local := c.locals[i]
		if local.Name != name {
			continue
		}
		if local.Closure == 0 {
			return local.Slot, 0, true
		}
		return local.Slot, len(c.scopes) - local.Closure, true
	}
	return 0, 0, false
}
