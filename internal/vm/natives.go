package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/onsah/flux/internal/config"
)

// natives returns the prelude, in the same order as config.NativeNames so
// each fresh chunk's seeded constant pool lines up with the globals. It is
// a function rather than a package-level var because its entries reference
// nativeNew, which transitively calls back into this package's VM
// construction path; a package-level var here would create an
// initialization cycle.
func natives() []*NativeFunction {
	return []*NativeFunction{
		{Name: "print", Arity: Variadic, Fn: nativePrint},
		{Name: "println", Arity: Variadic, Fn: nativePrintln},
		{Name: "readline", Arity: Exact(0), Fn: nativeReadline},
		{Name: "int", Arity: Exact(1), Fn: nativeInt},
		{Name: "number", Arity: Exact(1), Fn: nativeNumber},
		{Name: "assert", Arity: Exact(1), Fn: nativeAssert},
		{Name: "new", Arity: Variadic, Fn: nativeNew},
		{Name: "for_each", Arity: Exact(2), Fn: nativeForEach},
		{Name: "arity", Arity: Exact(1), Fn: nativeArity},
	}
}

// registerNatives copies the prelude bindings into a fresh globals map.
func registerNatives(globals map[string]Value) {
	for _, native := range natives() {
		globals[native.Name] = NativeFuncVal(native)
	}
}

func init() {
	// The analyzer's outermost scope and the chunk constant seeding both key
	// off config.NativeNames; a mismatch here would desynchronize them.
	natives := natives()
	if len(natives) != len(config.NativeNames) {
		panic("native registry out of sync with config.NativeNames")
	}
	for i, native := range natives {
		if native.Name != config.NativeNames[i] {
			panic("native registry out of sync with config.NativeNames")
		}
	}
}

func nativePrint(vm *VM, args []Value) (Value, error) {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = arg.String()
	}
	if _, err := fmt.Fprint(vm.out, strings.Join(parts, " ")); err != nil {
		return NilVal(), &RuntimeError{Kind: IOError}
	}
	return UnitVal(), nil
}

func nativePrintln(vm *VM, args []Value) (Value, error) {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = arg.String()
	}
	if _, err := fmt.Fprintln(vm.out, strings.Join(parts, " ")); err != nil {
		return NilVal(), &RuntimeError{Kind: IOError}
	}
	return UnitVal(), nil
}

func nativeReadline(vm *VM, _ []Value) (Value, error) {
	line, err := vm.in.ReadString('\n')
	if err != nil && line == "" {
		return NilVal(), &RuntimeError{Kind: IOError}
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return StrVal(line), nil
}

// nativeInt coerces to Int; values with no sensible integer reading yield
// nil rather than an error.
func nativeInt(_ *VM, args []Value) (Value, error) {
	value := args[0]
	switch value.Type {
	case ValBool:
		if value.AsBool() {
			return IntVal(1), nil
		}
		return IntVal(0), nil
	case ValNil:
		return IntVal(0), nil
	case ValInt:
		return value, nil
	case ValNumber:
		return IntVal(int64(math.Round(value.AsNumber()))), nil
	case ValStr:
		if i, err := strconv.ParseInt(strings.TrimSpace(value.AsStr()), 10, 64); err == nil {
			return IntVal(i), nil
		}
		return NilVal(), nil
	default:
		return NilVal(), nil
	}
}

func nativeNumber(_ *VM, args []Value) (Value, error) {
	value := args[0]
	switch value.Type {
	case ValBool:
		if value.AsBool() {
			return NumberVal(1), nil
		}
		return NumberVal(0), nil
	case ValNil:
		return NumberVal(0), nil
	case ValInt:
		return NumberVal(float64(value.AsInt())), nil
	case ValNumber:
		return value, nil
	case ValStr:
		if f, err := strconv.ParseFloat(strings.TrimSpace(value.AsStr()), 64); err == nil {
			return NumberVal(f), nil
		}
		return NilVal(), nil
	default:
		return NilVal(), nil
	}
}

func nativeAssert(_ *VM, args []Value) (Value, error) {
	if args[0].IsTruthy() {
		return UnitVal(), nil
	}
	return NilVal(), &RuntimeError{Kind: AssertionFailed, Value: args[0]}
}

// nativeNew builds an instance: a fresh table whose __class__ is the class
// argument. When the class (or its prototype chain) has an init function, it
// runs with the new table as self, followed by the remaining arguments.
func nativeNew(vm *VM, args []Value) (Value, error) {
	if len(args) < 1 {
		return NilVal(), &RuntimeError{Kind: ExpectedArgsAtLeast, Expected: 1}
	}
	klass := args[0]
	instance := NewTable()
	if err := instance.Set(StrVal(config.ClassKey), klass); err != nil {
		return NilVal(), err
	}

	init, err := getTableValue(StrVal(config.InitMethodName), klass)
	if err != nil {
		return NilVal(), err
	}
	if _, ok := init.UserFn(); ok {
		callArgs := append([]Value{TableVal(instance)}, args[1:]...)
		if _, err := vm.callBlocking(init, callArgs); err != nil {
			return NilVal(), err
		}
	}
	return TableVal(instance), nil
}

// nativeForEach applies a function to every value of a table: array part in
// index order, then the hash part. The table stays borrowed for the whole
// iteration, so the callback cannot mutate it.
func nativeForEach(vm *VM, args []Value) (Value, error) {
	fn, table := args[0], args[1]
	if !fn.IsFunction() {
		return NilVal(), typeErrorf("for_each expects a function, got %s", fn.Type)
	}
	if table.Type != ValTable {
		return NilVal(), typeErrorf("for_each expects a table, got %s", table.Type)
	}
	err := table.AsTable().ForEach(func(_, value Value) error {
		if native, ok := fn.NativeFn(); ok {
			_, err := native.Fn(vm, []Value{value})
			return err
		}
		_, err := vm.callBlocking(fn, []Value{value})
		return err
	})
	if err != nil {
		return NilVal(), err
	}
	return UnitVal(), nil
}

// nativeArity reports a function's declared arity: nil for variadic natives.
func nativeArity(_ *VM, args []Value) (Value, error) {
	fn := args[0]
	if user, ok := fn.UserFn(); ok {
		return IntVal(int64(user.ArgsLen())), nil
	}
	if native, ok := fn.NativeFn(); ok {
		if native.Arity == Variadic {
			return NilVal(), nil
		}
		return IntVal(int64(native.Arity)), nil
	}
	return NilVal(), typeErrorf("arity expects a function, got %s", fn.Type)
}
