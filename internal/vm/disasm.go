package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable representation of a chunk, its
// constant pool and every prototype.
func Disassemble(chunk *Chunk, name string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "== %s ==\n", name)
	for i, constant := range chunk.Constants {
		fmt.Fprintf(&sb, "const %3d  %s\n", i, constant)
	}
	disassembleStream(&sb, chunk.Instructions)

	for i, proto := range chunk.Protos {
		fmt.Fprintf(&sb, "== %s proto %d (args=%d env=%t) ==\n", name, i, proto.ArgsLen, proto.HasEnv)
		disassembleStream(&sb, proto.Instructions)
	}
	for modName := range chunk.Imports {
		sb.WriteString(Disassemble(chunk.Imports[modName], name+"/"+modName))
	}
	return sb.String()
}

func disassembleStream(sb *strings.Builder, instrs []Instruction) {
	for offset, instr := range instrs {
		fmt.Fprintf(sb, "%04d %s\n", offset, formatInstr(instr))
	}
}

func formatInstr(instr Instruction) string {
	switch instr.Op {
	case OP_NIL, OP_UNIT, OP_TRUE, OP_FALSE, OP_POP,
		OP_ADD, OP_SUB, OP_MUL, OP_DIV, OP_REM,
		OP_GT, OP_LT, OP_GE, OP_LE, OP_EQ, OP_NE,
		OP_NEG, OP_NOT, OP_GET_FIELD, OP_SET_FIELD,
		OP_REC, OP_PRINT, OP_PLACEHOLDER:
		return instr.Op.String()

	case OP_INT, OP_CONST, OP_GET_GLOBAL, OP_SET_GLOBAL,
		OP_GET_FIELD_IMM, OP_SET_FIELD_IMM, OP_TUPLE, OP_IMPORT,
		OP_JUMP:
		return fmt.Sprintf("%-16s %d", instr.Op, instr.A)

	case OP_GET_LOCAL, OP_SET_LOCAL:
		return fmt.Sprintf("%-16s slot=%d frame=%d", instr.Op, instr.A, instr.B)

	case OP_JUMP_IF:
		return fmt.Sprintf("%-16s %d when=%t", instr.Op, instr.A, instr.Flag)

	case OP_INIT_TABLE:
		return fmt.Sprintf("%-16s len=%d keyed=%t", instr.Op, instr.A, instr.Flag)

	case OP_GET_METHOD_IMM:
		return fmt.Sprintf("%-16s name=%d table=%d", instr.Op, instr.A, instr.B)

	case OP_FUNC_DEF:
		return fmt.Sprintf("%-16s proto=%d env=%t", instr.Op, instr.A, instr.Flag)

	case OP_CALL:
		return fmt.Sprintf("%-16s args=%d", instr.Op, instr.A)

	case OP_RETURN:
		return fmt.Sprintf("%-16s value=%t", instr.Op, instr.Flag)

	case OP_EXIT_BLOCK:
		return fmt.Sprintf("%-16s pop=%d value=%t", instr.Op, instr.A, instr.Flag)

	default:
		return instr.Op.String()
	}
}
