package vm

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// Frame is a runtime record for one active call: the instruction pointer and
// where the call's local slot 0 sits on the value stack. The zero-th frame
// has no function and executes the chunk's top-level instructions.
type Frame struct {
	pc       int
	stackTop int
	fn       *UserFunction
}

// VM is the stack-based interpreter: one value stack, one frame stack, a
// globals map pre-populated with the natives, and the chunk being executed.
// Execution is single-threaded and deterministic.
type VM struct {
	id     string // instance id, shown in traces and internal errors
	stack  []Value
	frames []Frame

	globals map[string]Value
	chunk   *Chunk

	in    *bufio.Reader
	out   io.Writer
	trace io.Writer // nil disables tracing
}

// Option configures a VM at construction.
type Option func(*VM)

// WithOutput redirects program output (print, println, Print).
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithInput redirects the readline native.
func WithInput(r io.Reader) Option {
	return func(vm *VM) { vm.in = bufio.NewReader(r) }
}

// WithTrace enables instruction tracing to w.
func WithTrace(w io.Writer) Option {
	return func(vm *VM) { vm.trace = w }
}

// New creates a VM with the prelude installed. Each VM gets a fresh copy of
// the native bindings so modules and REPL sessions do not share mutations.
func New(opts ...Option) *VM {
	vm := &VM{
		id:      uuid.NewString(),
		globals: make(map[string]Value),
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}
	for _, opt := range opts {
		opt(vm)
	}
	registerNatives(vm.globals)
	return vm
}

// ID returns the VM's instance id.
func (vm *VM) ID() string { return vm.id }

// Globals exposes the global map; the REPL and module wrapping read it.
func (vm *VM) Globals() map[string]Value { return vm.globals }

// Run executes a chunk to completion and returns the terminal value: the
// value of the chunk's final Return.
func (vm *VM) Run(chunk *Chunk) (Value, error) {
	vm.chunk = chunk
	vm.frames = append(vm.frames, Frame{})
	for {
		if err := vm.execute(); err != nil {
			// A failed run leaves no partial state for the next REPL line.
			vm.stack = vm.stack[:0]
			vm.frames = vm.frames[:0]
			return NilVal(), err
		}
		if len(vm.frames) == 0 {
			return vm.popStack()
		}
		vm.frames[len(vm.frames)-1].pc++
	}
}

// instructions selects the stream of the current frame: the prototype's for
// a function frame, the chunk's for the base frame.
func (vm *VM) instructions() ([]Instruction, error) {
	frame, err := vm.currentFrame()
	if err != nil {
		return nil, err
	}
	if frame.fn != nil {
		return frame.fn.Proto.Instructions, nil
	}
	return vm.chunk.Instructions, nil
}

func (vm *VM) currentFrame() (*Frame, error) {
	if len(vm.frames) == 0 {
		return nil, &RuntimeError{Kind: EmptyFrame}
	}
	return &vm.frames[len(vm.frames)-1], nil
}

func (vm *VM) push(v Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) popStack() (Value, error) {
	if len(vm.stack) == 0 {
		return NilVal(), &RuntimeError{Kind: EmptyStack}
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

func (vm *VM) peek(depth int) (Value, error) {
	idx := len(vm.stack) - 1 - depth
	if idx < 0 {
		return NilVal(), &RuntimeError{Kind: EmptyStack}
	}
	return vm.stack[idx], nil
}

// frameChunk is the chunk whose pool and prototypes the current frame's
// instructions were compiled against: the prototype's owner for a function
// frame, the running chunk for the base frame.
func (vm *VM) frameChunk() *Chunk {
	if n := len(vm.frames); n > 0 && vm.frames[n-1].fn != nil {
		return vm.frames[n-1].fn.Proto.Chunk
	}
	return vm.chunk
}

func (vm *VM) constantAt(index int) (Value, error) {
	chunk := vm.frameChunk()
	if index < 0 || index >= len(chunk.Constants) {
		return NilVal(), &RuntimeError{Kind: InternalError,
			Message: fmt.Sprintf("constant index %d out of range [vm %s]", index, vm.id)}
	}
	return chunk.Constants[index], nil
}

// call dispatches Call: the callee is already popped, the arguments remain
// on the stack.
func (vm *VM) call(callee Value, argsLen int) error {
	if !callee.IsFunction() {
		return typeErrorf("%s is not callable", callee.Type)
	}
	if fn, ok := callee.UserFn(); ok {
		return vm.enterUser(fn, argsLen)
	}
	native, _ := callee.NativeFn()
	return vm.callNative(native, argsLen)
}

// enterUser pushes the callee frame. The closure's env table, when present,
// is appended as a hidden extra argument.
func (vm *VM) enterUser(fn *UserFunction, pushedArgs int) error {
	if pushedArgs != fn.ArgsLen() {
		return &RuntimeError{Kind: WrongNumberOfArgs, Expected: fn.ArgsLen(), Found: pushedArgs}
	}
	stackTop := len(vm.stack) - pushedArgs
	if fn.Env != nil {
		vm.push(TableVal(fn.Env))
	}
	vm.frames = append(vm.frames, Frame{pc: 0, stackTop: stackTop, fn: fn})
	return nil
}

// callNative pops the arguments back into source order and invokes the
// built-in. The native may re-enter the VM (new, for_each).
func (vm *VM) callNative(native *NativeFunction, pushedArgs int) error {
	if native.Arity != Variadic && int(native.Arity) != pushedArgs {
		return &RuntimeError{Kind: WrongNumberOfArgs, Expected: int(native.Arity), Found: pushedArgs}
	}
	args := make([]Value, pushedArgs)
	for i := pushedArgs - 1; i >= 0; i-- {
		v, err := vm.popStack()
		if err != nil {
			return err
		}
		args[i] = v
	}
	result, err := native.Fn(vm, args)
	if err != nil {
		return err
	}
	vm.push(result)
	frame, err := vm.currentFrame()
	if err != nil {
		return err
	}
	frame.pc++
	return nil
}

// callBlocking invokes a user function from native code and runs it to
// completion, returning its result. The frame discipline matches Run's outer
// loop so nested calls inside the callee behave normally.
func (vm *VM) callBlocking(callee Value, args []Value) (Value, error) {
	fn, ok := callee.UserFn()
	if !ok {
		return NilVal(), typeErrorf("%s is not callable", callee.Type)
	}
	for _, arg := range args {
		vm.push(arg)
	}
	if err := vm.enterUser(fn, len(args)); err != nil {
		return NilVal(), err
	}
	baseDepth := len(vm.frames) - 1
	for len(vm.frames) > baseDepth {
		if err := vm.execute(); err != nil {
			return NilVal(), err
		}
		if len(vm.frames) > baseDepth {
			vm.frames[len(vm.frames)-1].pc++
		}
	}
	return vm.popStack()
}

func (vm *VM) traceInstr(frame *Frame, instr Instruction) {
	fmt.Fprintf(vm.trace, "[vm %s] pc=%-4d sp=%-4d %s\n", vm.id, frame.pc, len(vm.stack), formatInstr(instr))
}
