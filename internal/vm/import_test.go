package vm

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeModule(t *testing.T, dir, name, source string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestImportRelativeModule(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "helpers.flux", `
		var double = fn(x) return x * 2; end;
		var tag = "helpers";
	`)
	source := `import helpers; return helpers.double(21);`
	chunk, err := CompileSource(source, filepath.Join(dir, "main.flux"), dir, nil)
	if err != nil {
		t.Fatalf("compile error: %s", err)
	}
	if _, ok := chunk.Imports["helpers"]; !ok {
		t.Fatalf("compiled chunk should hold the pre-loaded sub-chunk")
	}
	machine := New(WithOutput(&bytes.Buffer{}))
	result, err := machine.Run(chunk)
	if err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	testIntegerValue(t, result, 42)
}

func TestImportWithAlias(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "helpers.flux", `var answer = 42;`)
	source := `import helpers as h; return h.answer;`
	chunk, err := CompileSource(source, filepath.Join(dir, "main.flux"), dir, nil)
	if err != nil {
		t.Fatalf("compile error: %s", err)
	}
	machine := New(WithOutput(&bytes.Buffer{}))
	result, err := machine.Run(chunk)
	if err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	testIntegerValue(t, result, 42)
}

func TestImportNestedPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "util"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeModule(t, filepath.Join(dir, "util"), "strings.flux", `var sep = "-";`)
	source := `import util.strings; return strings.sep;`
	chunk, err := CompileSource(source, filepath.Join(dir, "main.flux"), dir, nil)
	if err != nil {
		t.Fatalf("compile error: %s", err)
	}
	machine := New(WithOutput(&bytes.Buffer{}))
	result, err := machine.Run(chunk)
	if err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	if result.Type != ValStr || result.AsStr() != "-" {
		t.Fatalf("got %s", result)
	}
}

func TestImportMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := CompileSource(`import nothing;`, filepath.Join(dir, "main.flux"), dir, nil)
	cerr, ok := err.(*CompileError)
	if !ok || cerr.Kind != CompileIOError {
		t.Fatalf("expected an io compile error, got %v", err)
	}
}

func TestImportBrokenModule(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "broken.flux", `let = ;`)
	_, err := CompileSource(`import broken;`, filepath.Join(dir, "main.flux"), dir, nil)
	cerr, ok := err.(*CompileError)
	if !ok || cerr.Kind != ModuleError || cerr.Module != "broken" {
		t.Fatalf("expected ModuleError{broken}, got %v", err)
	}
}

func TestImportRuntimeFailure(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "boom.flux", `var x = 1 / 0;`)
	chunk, err := CompileSource(`import boom;`, filepath.Join(dir, "main.flux"), dir, nil)
	if err != nil {
		t.Fatalf("compile error: %s", err)
	}
	machine := New(WithOutput(&bytes.Buffer{}))
	_, err = machine.Run(chunk)
	rerr, ok := err.(*RuntimeError)
	if !ok || rerr.Kind != ImportError || rerr.Module != "boom" {
		t.Fatalf("expected ImportError{boom}, got %v", err)
	}
	inner, ok := rerr.Inner.(*RuntimeError)
	if !ok || inner.Kind != DivideByZero {
		t.Fatalf("expected the inner DivideByZero, got %v", rerr.Inner)
	}
}

func TestDuplicateImportIsRejected(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "helpers.flux", `var x = 1;`)
	_, err := CompileSource("import helpers;\nimport helpers;", filepath.Join(dir, "main.flux"), dir, nil)
	cerr, ok := err.(*CompileError)
	if !ok || cerr.Kind != ModuleError {
		t.Fatalf("expected ModuleError for a duplicate import, got %v", err)
	}
}

func TestImportBundledStdlib(t *testing.T) {
	source := `import std.math; return math.abs(0 - 5);`
	chunk, err := CompileSource(source, "", "", nil)
	if err != nil {
		t.Fatalf("compile error: %s", err)
	}
	machine := New(WithOutput(&bytes.Buffer{}))
	result, err := machine.Run(chunk)
	if err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	testIntegerValue(t, result, 5)
}

func TestImportStdlibSqrt(t *testing.T) {
	source := `import std.math; return math.sqrt(9);`
	chunk, err := CompileSource(source, "", "", nil)
	if err != nil {
		t.Fatalf("compile error: %s", err)
	}
	machine := New(WithOutput(&bytes.Buffer{}))
	result, err := machine.Run(chunk)
	if err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	if result.Type != ValNumber {
		t.Fatalf("sqrt returns a number, got %s", result)
	}
	if diff := result.AsNumber() - 3.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("sqrt(9): got %g", result.AsNumber())
	}
}

func TestImportStdlibList(t *testing.T) {
	source := `import std.list; return list.sum({1, 2, 3, 4});`
	chunk, err := CompileSource(source, "", "", nil)
	if err != nil {
		t.Fatalf("compile error: %s", err)
	}
	machine := New(WithOutput(&bytes.Buffer{}))
	result, err := machine.Run(chunk)
	if err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	testIntegerValue(t, result, 10)
}

func TestImportsRunInFreshVM(t *testing.T) {
	// A module's vars must not leak into the importing VM's globals except
	// through the module table.
	dir := t.TempDir()
	writeModule(t, dir, "helpers.flux", `var hidden = 99;`)
	chunk, err := CompileSource(`import helpers; return helpers.hidden;`,
		filepath.Join(dir, "main.flux"), dir, nil)
	if err != nil {
		t.Fatalf("compile error: %s", err)
	}
	machine := New(WithOutput(&bytes.Buffer{}))
	result, err := machine.Run(chunk)
	if err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	testIntegerValue(t, result, 99)
	if _, leaked := machine.Globals()["hidden"]; leaked {
		t.Fatalf("module global leaked into the importing VM")
	}
}
