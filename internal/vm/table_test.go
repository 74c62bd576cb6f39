package vm

import (
	"testing"
)

func TestTableHybridLookup(t *testing.T) {
	table := NewArrayTable([]pair{
		{key: IntVal(0), value: StrVal("a")},
		{key: IntVal(1), value: StrVal("b")},
	})
	if got := table.Get(IntVal(0)); got.AsStr() != "a" {
		t.Fatalf("array part lookup failed: %s", got)
	}
	// An integral Number indexes the array part too.
	if got := table.Get(NumberVal(1)); got.AsStr() != "b" {
		t.Fatalf("integral number key should hit the array part: %s", got)
	}
	if got := table.Get(NumberVal(0.5)); !got.IsNil() {
		t.Fatalf("fractional key must miss the array part: %s", got)
	}
	if got := table.Get(IntVal(2)); !got.IsNil() {
		t.Fatalf("out of range key should be nil: %s", got)
	}

	if err := table.Set(StrVal("name"), IntVal(7)); err != nil {
		t.Fatalf("set failed: %s", err)
	}
	if got := table.Get(StrVal("name")); got.AsInt() != 7 {
		t.Fatalf("hash part lookup failed: %s", got)
	}
}

func TestTableMixedKeyTypes(t *testing.T) {
	table := NewTable()
	keys := []Value{
		StrVal("s"),
		IntVal(100),
		NumberVal(2.5),
		BoolVal(true),
		TupleVal([]Value{IntVal(1), StrVal("x")}),
	}
	for i, key := range keys {
		if err := table.Set(key, IntVal(int64(i))); err != nil {
			t.Fatalf("set: %s", err)
		}
	}
	for i, key := range keys {
		if got := table.Get(key); got.Type != ValInt || got.AsInt() != int64(i) {
			t.Fatalf("key %s: got %s, want %d", key, got, i)
		}
	}
	// Tuples are value keys: an equal tuple finds the entry.
	got := table.Get(TupleVal([]Value{IntVal(1), StrVal("x")}))
	if got.AsInt() != 4 {
		t.Fatalf("structurally equal tuple key should hit: %s", got)
	}
}

func TestTableSetOverwrites(t *testing.T) {
	table := NewTable()
	if err := table.Set(StrVal("k"), IntVal(1)); err != nil {
		t.Fatal(err)
	}
	if err := table.Set(StrVal("k"), IntVal(2)); err != nil {
		t.Fatal(err)
	}
	if got := table.Get(StrVal("k")); got.AsInt() != 2 {
		t.Fatalf("expected overwrite, got %s", got)
	}
	if table.Len() != 1 {
		t.Fatalf("expected a single entry, got %d", table.Len())
	}
}

func TestTableIterationOrder(t *testing.T) {
	table := NewArrayTable([]pair{
		{key: IntVal(0), value: IntVal(10)},
		{key: IntVal(1), value: IntVal(20)},
		{key: IntVal(2), value: IntVal(30)},
	})
	if err := table.Set(StrVal("x"), IntVal(40)); err != nil {
		t.Fatal(err)
	}

	var first []int64
	if err := table.ForEach(func(_, value Value) error {
		first = append(first, value.AsInt())
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	// Array entries come first, in index order.
	for i, want := range []int64{10, 20, 30} {
		if first[i] != want {
			t.Fatalf("array part out of order: %v", first)
		}
	}
	// The full order is stable across iterations within a run.
	var second []int64
	if err := table.ForEach(func(_, value Value) error {
		second = append(second, value.AsInt())
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("iteration lengths differ: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("iteration order is not stable: %v vs %v", first, second)
		}
	}
}

func TestTableMutationDuringIterationFails(t *testing.T) {
	table := NewTable()
	if err := table.Set(StrVal("a"), IntVal(1)); err != nil {
		t.Fatal(err)
	}
	err := table.ForEach(func(_, _ Value) error {
		return table.Set(StrVal("b"), IntVal(2))
	})
	rerr, ok := err.(*RuntimeError)
	if !ok || rerr.Kind != InternalError {
		t.Fatalf("expected InternalError on mutation during iteration, got %v", err)
	}
}

func TestForEachMutationFromScript(t *testing.T) {
	source := `
	let t = {1, 2, 3};
	for_each(fn(v) t.extra = v; end, t);`
	err := runVMError(t, source)
	rerr, ok := err.(*RuntimeError)
	if !ok || rerr.Kind != InternalError {
		t.Fatalf("expected InternalError, got %v", err)
	}
}

func TestPrototypeChainLookup(t *testing.T) {
	base := NewTable()
	if err := base.Set(StrVal("shared"), IntVal(99)); err != nil {
		t.Fatal(err)
	}
	child := NewTable()
	if err := child.Set(StrVal("__class__"), TableVal(base)); err != nil {
		t.Fatal(err)
	}
	got, err := getTableValue(StrVal("shared"), TableVal(child))
	if err != nil {
		t.Fatal(err)
	}
	if got.AsInt() != 99 {
		t.Fatalf("prototype chain lookup failed: %s", got)
	}
	// Missing on the whole chain is nil, never an error.
	got, err = getTableValue(StrVal("nope"), TableVal(child))
	if err != nil || !got.IsNil() {
		t.Fatalf("expected nil for a chain miss, got %s, %v", got, err)
	}
}
