package merge

import "bytes"

// SortKey holds one order preserving encoding per physical primary key
// column, in table key order.
type SortKey [][]byte

// Row is one decoded result row. Values follow the projected schema, Key
// the physical primary key. A Row is never modified after decoding.
type Row struct {
	Values []interface{}
	Key    SortKey
}

// KeyOrder compares SortKeys column by column. Columns flagged descending
// compare reversed.
type KeyOrder struct {
	desc []bool
}

// NewKeyOrder builds the order for the given physical key column indices
// that sort descending.
func NewKeyOrder(descending []int) (KeyOrder, error) {
	max := -1
	for _, idx := range descending {
		if idx < 0 {
			return KeyOrder{}, ErrNegativeKeyIndex
		}
		if idx > max {
			max = idx
		}
	}
	desc := make([]bool, max+1)
	for _, idx := range descending {
		desc[idx] = true
	}
	return KeyOrder{desc: desc}, nil
}

// Descending reports whether key column i sorts descending.
func (o KeyOrder) Descending(i int) bool {
	return i < len(o.desc) && o.desc[i]
}

// Compare returns -int, 0 or +int depending on if key1 sorts before, equal
// to, or after key2. A key that is a prefix of the other sorts first.
func (o KeyOrder) Compare(key1, key2 SortKey) int {

	ln1, ln2 := len(key1), len(key2)
	ln := ln1
	if ln2 < ln {
		ln = ln2
	}

	for i := 0; i < ln; i++ {
		if r := bytes.Compare(key1[i], key2[i]); r != 0 {
			if o.Descending(i) {
				return -r
			}
			return r
		}
	}

	return ln1 - ln2
}
