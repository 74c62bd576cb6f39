package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unsafe"
)

// ValueType identifies the variant stored in a Value.
type ValueType uint8

const (
	ValNil ValueType = iota
	ValUnit
	ValBool
	ValInt
	ValNumber
	ValStr
	ValTuple
	ValTable
	ValFunction
)

var valueTypeNames = [...]string{
	ValNil:      "nil",
	ValUnit:     "unit",
	ValBool:     "bool",
	ValInt:      "int",
	ValNumber:   "number",
	ValStr:      "string",
	ValTuple:    "tuple",
	ValTable:    "table",
	ValFunction: "function",
}

func (t ValueType) String() string { return valueTypeNames[t] }

// Value is a tagged variant. Small primitives live in Data (int64 bits,
// float64 bits, or bool); strings, tuples, tables and functions live in Obj.
// Tables and user functions are shared by reference; copying a Value never
// copies the heap object behind it.
type Value struct {
	Type ValueType
	Data uint64
	Obj  any // string, []Value, *Table, *UserFunction or *NativeFunction
}

// Constructors

func NilVal() Value  { return Value{Type: ValNil} }
func UnitVal() Value { return Value{Type: ValUnit} }

func BoolVal(b bool) Value {
	var data uint64
	if b {
		data = 1
	}
	return Value{Type: ValBool, Data: data}
}

func IntVal(i int64) Value {
	return Value{Type: ValInt, Data: uint64(i)}
}

func NumberVal(f float64) Value {
	return Value{Type: ValNumber, Data: math.Float64bits(f)}
}

func StrVal(s string) Value {
	return Value{Type: ValStr, Obj: s}
}

func TupleVal(elems []Value) Value {
	return Value{Type: ValTuple, Obj: elems}
}

func TableVal(t *Table) Value {
	return Value{Type: ValTable, Obj: t}
}

func UserFuncVal(f *UserFunction) Value {
	return Value{Type: ValFunction, Obj: f}
}

func NativeFuncVal(f *NativeFunction) Value {
	return Value{Type: ValFunction, Obj: f}
}

// Accessors

func (v Value) AsBool() bool      { return v.Data == 1 }
func (v Value) AsInt() int64      { return int64(v.Data) }
func (v Value) AsNumber() float64 { return math.Float64frombits(v.Data) }
func (v Value) AsStr() string     { return v.Obj.(string) }
func (v Value) AsTuple() []Value  { return v.Obj.([]Value) }
func (v Value) AsTable() *Table   { return v.Obj.(*Table) }

func (v Value) UserFn() (*UserFunction, bool) {
	f, ok := v.Obj.(*UserFunction)
	return f, ok
}

func (v Value) NativeFn() (*NativeFunction, bool) {
	f, ok := v.Obj.(*NativeFunction)
	return f, ok
}

func (v Value) IsNil() bool      { return v.Type == ValNil }
func (v Value) IsFunction() bool { return v.Type == ValFunction }

// IsTruthy: nil and false are falsy, everything else (including unit and 0)
// is truthy.
func (v Value) IsTruthy() bool {
	switch v.Type {
	case ValNil:
		return false
	case ValBool:
		return v.Data == 1
	default:
		return true
	}
}

// convertInt returns the integer reading of a value that can index the array
// part of a table: Int always, Number when it is integral.
func (v Value) convertInt() (int64, bool) {
	switch v.Type {
	case ValInt:
		return v.AsInt(), true
	case ValNumber:
		f := v.AsNumber()
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
	}
	return 0, false
}

// Equals implements the cross-rules: Int and Number never compare equal
// across tags, tuples compare element-wise, tables by identity and functions
// by identity or shared prototype.
func (v Value) Equals(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case ValNil, ValUnit:
		return true
	case ValBool, ValInt, ValNumber:
		return v.Data == other.Data
	case ValStr:
		return v.AsStr() == other.AsStr()
	case ValTuple:
		a, b := v.AsTuple(), other.AsTuple()
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equals(b[i]) {
				return false
			}
		}
		return true
	case ValTable:
		return v.Obj == other.Obj
	case ValFunction:
		if v.Obj == other.Obj {
			return true
		}
		fa, okA := v.UserFn()
		fb, okB := other.UserFn()
		return okA && okB && fa.Proto == fb.Proto
	default:
		return false
	}
}

// Hash is consistent with Equals. Numbers hash their IEEE-754 bit pattern
// (NaN keys are self-consistent within a run); tables and functions hash by
// identity.
func (v Value) Hash() uint32 {
	const prime = 16777619
	switch v.Type {
	case ValNil:
		return 1
	case ValUnit:
		return 2
	case ValBool, ValInt, ValNumber:
		h := uint32(v.Type) * prime
		return h ^ uint32(v.Data^(v.Data>>32))
	case ValStr:
		h := uint32(2166136261)
		for i := 0; i < len(v.AsStr()); i++ {
			h ^= uint32(v.AsStr()[i])
			h *= prime
		}
		return h
	case ValTuple:
		h := uint32(7)
		for _, elem := range v.AsTuple() {
			h = h*prime ^ elem.Hash()
		}
		return h
	case ValTable:
		return identityHash(v.Obj)
	case ValFunction:
		if f, ok := v.UserFn(); ok {
			return identityHash(f.Proto)
		}
		return identityHash(v.Obj)
	default:
		return 0
	}
}

func identityHash(obj any) uint32 {
	switch o := obj.(type) {
	case *Table:
		return uint32(uintptr(unsafe.Pointer(o)))
	case *FuncProto:
		return uint32(uintptr(unsafe.Pointer(o)))
	case *UserFunction:
		return uint32(uintptr(unsafe.Pointer(o)))
	case *NativeFunction:
		return uint32(uintptr(unsafe.Pointer(o)))
	default:
		return 0
	}
}

// String renders a value the way Print and the REPL show it.
func (v Value) String() string {
	switch v.Type {
	case ValNil:
		return "nil"
	case ValUnit:
		return "()"
	case ValBool:
		return strconv.FormatBool(v.Data == 1)
	case ValInt:
		return strconv.FormatInt(v.AsInt(), 10)
	case ValNumber:
		return strconv.FormatFloat(v.AsNumber(), 'g', -1, 64)
	case ValStr:
		return v.AsStr()
	case ValTuple:
		parts := make([]string, len(v.AsTuple()))
		for i, elem := range v.AsTuple() {
			parts[i] = elem.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case ValTable:
		return fmt.Sprintf("<table %p>", v.Obj)
	case ValFunction:
		if f, ok := v.NativeFn(); ok {
			return fmt.Sprintf("<native fn %s>", f.Name)
		}
		return "<fn>"
	default:
		return "<?>"
	}
}
