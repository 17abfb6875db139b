// Copyright 2014-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included
// in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
// in that file, in accordance with the Business Source License, use of this
// software will be governed by the Apache License, Version 2.0, included in
// the file licenses/APL2.txt.

package rowcodec

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrSchema = errors.New("rowcodec.schema")
var ErrDecode = errors.New("rowcodec.decode")
var ErrEncode = errors.New("rowcodec.encode")

type ColumnType byte

const (
	TypeBool ColumnType = iota + 1
	TypeInt64
	TypeDouble
	TypeString
	TypeBinary
	TypeTimestamp
)

var typeNames = map[ColumnType]string{
	TypeBool:      "bool",
	TypeInt64:     "int64",
	TypeDouble:    "double",
	TypeString:    "string",
	TypeBinary:    "binary",
	TypeTimestamp: "timestamp",
}

func (t ColumnType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ColumnType(%d)", byte(t))
}

// ParseColumnType accepts the names printed by ColumnType.String.
func ParseColumnType(s string) (ColumnType, error) {
	for t, name := range typeNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown column type %q", ErrSchema, s)
}

// Column describes one table column. Key columns form the primary key in
// declaration order. A Descending key column is stored reversed so that
// ascending storage order is descending value order; only numeric and
// timestamp columns can be descending. Default is used when a stored row
// lacks the column.
type Column struct {
	Name       string
	Type       ColumnType
	Key        bool
	Descending bool
	Default    interface{}
}

type Schema struct {
	Columns []Column
	keys    []int
	index   map[string]int
}

// NewSchema validates the columns. At least one key column is required.
func NewSchema(columns ...Column) (*Schema, error) {
	s := &Schema{Columns: columns, index: make(map[string]int)}
	for i, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("%w: column %v has no name", ErrSchema, i)
		}
		if _, ok := s.index[col.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrSchema, col.Name)
		}
		if _, ok := typeNames[col.Type]; !ok {
			return nil, fmt.Errorf("%w: column %q has invalid type", ErrSchema, col.Name)
		}
		if col.Descending {
			if !col.Key {
				return nil, fmt.Errorf("%w: descending column %q is not a key", ErrSchema, col.Name)
			}
			switch col.Type {
			case TypeInt64, TypeDouble, TypeTimestamp:
			default:
				return nil, fmt.Errorf("%w: %v column %q cannot be descending",
					ErrSchema, col.Type, col.Name)
			}
		}
		if col.Default != nil {
			if col.Key {
				return nil, fmt.Errorf("%w: key column %q cannot have a default", ErrSchema, col.Name)
			}
			if _, err := toValue(col, col.Default); err != nil {
				return nil, fmt.Errorf("%w: default of %q: %v", ErrSchema, col.Name, err)
			}
		}
		s.index[col.Name] = i
		if col.Key {
			s.keys = append(s.keys, i)
		}
	}
	if len(s.keys) == 0 {
		return nil, fmt.Errorf("%w: no key column", ErrSchema)
	}
	return s, nil
}

func (s *Schema) Lookup(name string) (Column, bool) {
	i, ok := s.index[name]
	if !ok {
		return Column{}, false
	}
	return s.Columns[i], true
}

// KeyColumns returns the primary key columns in key order.
func (s *Schema) KeyColumns() []Column {
	cols := make([]Column, len(s.keys))
	for i, idx := range s.keys {
		cols[i] = s.Columns[idx]
	}
	return cols
}

// DescendingKeyIndices lists the positions, within the primary key, of
// the descending key columns.
func (s *Schema) DescendingKeyIndices() []int {
	var desc []int
	for i, idx := range s.keys {
		if s.Columns[idx].Descending {
			desc = append(desc, i)
		}
	}
	return desc
}

// Project returns the columns to deliver, in the requested order. No
// names selects every column.
func (s *Schema) Project(names ...string) ([]Column, error) {
	if len(names) == 0 {
		return append([]Column(nil), s.Columns...), nil
	}
	cols := make([]Column, 0, len(names))
	for _, name := range names {
		col, ok := s.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown column %q", ErrSchema, name)
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// ReverseSortEpoch is the instant descending timestamps are subtracted
// from, 9999-12-31T23:59:59.999Z.
var ReverseSortEpoch = time.Date(9999, 12, 31, 23, 59, 59, 999000000, time.UTC)

// ReverseTimestamp maps t to milliseconds before ReverseSortEpoch. Later
// instants map to smaller values.
func ReverseTimestamp(t time.Time) int64 {
	return ReverseSortEpoch.UnixMilli() - t.UnixMilli()
}

// FromReverseTimestamp undoes ReverseTimestamp.
func FromReverseTimestamp(ms int64) time.Time {
	return time.UnixMilli(ReverseSortEpoch.UnixMilli() - ms).UTC()
}
