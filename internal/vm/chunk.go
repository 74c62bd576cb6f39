package vm

import (
	"github.com/onsah/flux/internal/config"
)

// Chunk is the compiled artifact for one source unit: the top-level
// instruction stream, the constant pool, the function prototypes, and the
// pre-compiled chunks of imported modules. It is self-contained and owned by
// the VM for the duration of a run.
type Chunk struct {
	Instructions []Instruction
	Constants    []Value
	Protos       []*FuncProto
	Imports      map[string]*Chunk
}

// NewChunk returns a chunk whose constant pool is seeded with the native
// names, in registration order, so the prelude is addressable by constant
// index without a pool round-trip.
func NewChunk() *Chunk {
	c := &Chunk{
		Constants: make([]Value, 0, len(config.NativeNames)+16),
		Imports:   make(map[string]*Chunk),
	}
	for _, name := range config.NativeNames {
		c.Constants = append(c.Constants, StrVal(name))
	}
	return c
}

// AddConstant appends a value to the pool and returns its index. String
// constants are interned: a duplicate string reuses its earlier index.
func (c *Chunk) AddConstant(value Value) (int, error) {
	if value.Type == ValStr {
		if idx, ok := c.HasString(value.AsStr()); ok {
			return idx, nil
		}
	}
	if len(c.Constants) >= config.MaxConstants {
		return 0, &CompileError{Kind: TooManyConstants}
	}
	c.Constants = append(c.Constants, value)
	return len(c.Constants) - 1, nil
}

// HasString returns the pool index of an interned string constant.
func (c *Chunk) HasString(s string) (int, bool) {
	for i, constant := range c.Constants {
		if constant.Type == ValStr && constant.AsStr() == s {
			return i, true
		}
	}
	return 0, false
}

// AddProto installs a function prototype and returns its index.
func (c *Chunk) AddProto(proto *FuncProto) int {
	proto.Chunk = c
	c.Protos = append(c.Protos, proto)
	return len(c.Protos) - 1
}

// JumpCondition selects what a placeholder is patched into.
type JumpCondition uint8

const (
	JumpAlways JumpCondition = iota
	JumpWhenTrue
	JumpWhenFalse
)

// patchJump turns the placeholder at index in buf into a jump with the given
// offset (in instructions, signed byte range).
func patchJump(buf []Instruction, index, offset int, cond JumpCondition) error {
	if offset > config.MaxJump || offset < -config.MaxJump-1 {
		return &CompileError{Kind: TooLongToJump}
	}
	switch buf[index].Op {
	case OP_PLACEHOLDER, OP_JUMP, OP_JUMP_IF:
	default:
		return &CompileError{Kind: WrongPatch, Detail: buf[index].Op.String()}
	}
	switch cond {
	case JumpAlways:
		buf[index] = Instruction{Op: OP_JUMP, A: offset}
	case JumpWhenTrue:
		buf[index] = Instruction{Op: OP_JUMP_IF, A: offset, Flag: true}
	case JumpWhenFalse:
		buf[index] = Instruction{Op: OP_JUMP_IF, A: offset, Flag: false}
	}
	return nil
}
