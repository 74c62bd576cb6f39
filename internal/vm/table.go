package vm

import (
	"github.com/onsah/flux/internal/config"
)

type pair struct {
	key   Value
	value Value
}

// Table is the shared, interior-mutable associative container: a dense array
// part for tables built from positional literals, plus a generic hash part
// keyed by arbitrary values. Lookup checks the array part first, then the
// hash part; a miss falls back through the __class__ prototype chain (done by
// the VM, which needs to borrow the chained tables).
//
// Tables are aliased freely, so the single-writer rule is enforced at
// runtime: mutating a table while an iteration holds it borrowed is an
// internal-error condition, not a silent update.
type Table struct {
	array []pair
	hash  map[uint32][]pair

	// iterating counts live iterations borrowing the table.
	iterating int
}

func NewTable() *Table {
	return &Table{hash: make(map[uint32][]pair)}
}

// NewArrayTable builds a table whose array part holds the given pairs. Used
// by InitTable for positional literals; keys are Int(0)..Int(n-1).
func NewArrayTable(array []pair) *Table {
	return &Table{array: array, hash: make(map[uint32][]pair)}
}

// Get returns the value at key, or nil for a miss. The prototype chain is not
// consulted here.
func (t *Table) Get(key Value) Value {
	if i, ok := key.convertInt(); ok && i >= 0 && int(i) < len(t.array) {
		return t.array[i].value
	}
	for _, entry := range t.hash[key.Hash()] {
		if entry.key.Equals(key) {
			return entry.value
		}
	}
	return NilVal()
}

// Set inserts into the hash part. Mutation during iteration violates the
// exclusive-borrow rule and is reported rather than applied.
func (t *Table) Set(key, value Value) error {
	if t.iterating > 0 {
		return &RuntimeError{Kind: InternalError, Message: "table mutated while borrowed for iteration"}
	}
	h := key.Hash()
	bucket := t.hash[h]
	for i, entry := range bucket {
		if entry.key.Equals(key) {
			bucket[i].value = value
			return nil
		}
	}
	t.hash[h] = append(bucket, pair{key: key, value: value})
	return nil
}

// Klass returns the table bound at __class__, or nil.
func (t *Table) Klass() Value {
	return t.Get(StrVal(config.ClassKey))
}

// Len returns the number of entries across both parts.
func (t *Table) Len() int {
	n := len(t.array)
	for _, bucket := range t.hash {
		n += len(bucket)
	}
	return n
}

// ForEach visits array entries in index order, then hash entries in
// unspecified but stable-for-the-run order. The table counts as borrowed for
// the duration: the callback may read it but not mutate it.
func (t *Table) ForEach(visit func(key, value Value) error) error {
	t.iterating++
	defer func() { t.iterating-- }()

	for _, entry := range t.array {
		if err := visit(entry.key, entry.value); err != nil {
			return err
		}
	}
	for _, h := range t.sortedBuckets() {
		for _, entry := range t.hash[h] {
			if err := visit(entry.key, entry.value); err != nil {
				return err
			}
		}
	}
	return nil
}

// sortedBuckets fixes the hash-part visit order for the lifetime of the
// process: bucket hashes ascending. Entries within a bucket keep insertion
// order.
func (t *Table) sortedBuckets() []uint32 {
	hashes := make([]uint32, 0, len(t.hash))
	for h := range t.hash {
		hashes = append(hashes, h)
	}
	for i := 1; i < len(hashes); i++ {
		for j := i; j > 0 && hashes[j-1] > hashes[j]; j-- {
			hashes[j-1], hashes[j] = hashes[j], hashes[j-1]
		}
	}
	return hashes
}
