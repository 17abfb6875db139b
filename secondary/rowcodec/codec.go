package rowcodec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
	"github.com/prataprc/collatejson"

	"github.com/couchbase/scanmerge/secondary/queryport/merge"
)

const keyBufferMin = 64

// Codec maps rows of one table between their typed form and the stored
// form: an order preserving primary key and a JSON document, optionally
// snappy compressed.
type Codec struct {
	schema   *Schema
	compress bool
}

func NewCodec(schema *Schema, compress bool) *Codec {
	return &Codec{schema: schema, compress: compress}
}

func (c *Codec) Schema() *Schema {
	return c.schema
}

// EncodeRow returns the stored key and document for a row given by
// column name. Key columns are mandatory, other columns may be absent.
func (c *Codec) EncodeRow(values map[string]interface{}) (key, doc []byte, err error) {
	stored := make(map[string]interface{}, len(values))
	for name := range values {
		if _, ok := c.schema.Lookup(name); !ok {
			return nil, nil, fmt.Errorf("%w: unknown column %q", ErrEncode, name)
		}
	}
	for _, col := range c.schema.Columns {
		v, ok := values[col.Name]
		if !ok || v == nil {
			if col.Key {
				return nil, nil, fmt.Errorf("%w: missing key column %q", ErrEncode, col.Name)
			}
			continue
		}
		value, err := toValue(col, v)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrEncode, err)
		}
		stored[col.Name] = toStored(col, value)
	}

	if key, err = c.storedKey(stored); err != nil {
		return nil, nil, err
	}
	if doc, err = json.Marshal(stored); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	if c.compress {
		doc = snappy.Encode(nil, doc)
	}
	return key, doc, nil
}

// EncodeKey returns the stored primary key for the given key values.
func (c *Codec) EncodeKey(values map[string]interface{}) ([]byte, error) {
	stored := make(map[string]interface{})
	for _, col := range c.schema.KeyColumns() {
		v, ok := values[col.Name]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: missing key column %q", ErrEncode, col.Name)
		}
		value, err := toValue(col, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncode, err)
		}
		stored[col.Name] = toStored(col, value)
	}
	return c.storedKey(stored)
}

func (c *Codec) storedKey(stored map[string]interface{}) ([]byte, error) {
	codec := collatejson.NewCodec(16)
	var key []byte
	for _, col := range c.schema.KeyColumns() {
		code, err := encodeCollate(codec, stored[col.Name])
		if err != nil {
			return nil, fmt.Errorf("%w: key column %q: %v", ErrEncode, col.Name, err)
		}
		key = append(key, code...)
	}
	return key, nil
}

func encodeCollate(codec *collatejson.Codec, v interface{}) ([]byte, error) {
	text, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	size := 3 * len(text)
	if size < keyBufferMin {
		size = keyBufferMin
	}
	return codec.Encode(text, make([]byte, 0, size))
}

// Decoder turns stored documents into merge rows carrying the projected
// columns and the sort key of the primary key.
type Decoder struct {
	codec      *Codec
	projection []Column
	defaults   []interface{}
}

// NewDecoder projects the named columns, every column when none given.
func (c *Codec) NewDecoder(columns ...string) (*Decoder, error) {
	projection, err := c.schema.Project(columns...)
	if err != nil {
		return nil, err
	}
	d := &Decoder{codec: c, projection: projection, defaults: make([]interface{}, len(projection))}
	for i, col := range projection {
		if col.Default != nil {
			if d.defaults[i], err = toValue(col, col.Default); err != nil {
				return nil, err
			}
		}
	}
	return d, nil
}

func (d *Decoder) Columns() []Column {
	return d.projection
}

func (d *Decoder) Decode(raw merge.RawRow) (merge.Row, error) {
	data := []byte(raw)
	if d.codec.compress {
		var err error
		if data, err = snappy.Decode(nil, raw); err != nil {
			return merge.Row{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}

	var doc map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return merge.Row{}, fmt.Errorf("%w: %v", ErrDecode, err)
	} else if doc == nil {
		return merge.Row{}, fmt.Errorf("%w: not a document", ErrDecode)
	}

	row := merge.Row{Values: make([]interface{}, len(d.projection))}
	for i, col := range d.projection {
		v, ok := doc[col.Name]
		if !ok || v == nil {
			if col.Key {
				return merge.Row{}, fmt.Errorf("%w: missing key column %q", ErrDecode, col.Name)
			}
			row.Values[i] = d.defaults[i]
			continue
		}
		value, err := fromStored(col, v)
		if err != nil {
			return merge.Row{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		row.Values[i] = value
	}

	keyCols := d.codec.schema.KeyColumns()
	row.Key = make(merge.SortKey, len(keyCols))
	codec := collatejson.NewCodec(16)
	for i, col := range keyCols {
		v, ok := doc[col.Name]
		if !ok || v == nil {
			return merge.Row{}, fmt.Errorf("%w: missing key column %q", ErrDecode, col.Name)
		}
		value, err := fromStored(col, v)
		if err != nil {
			return merge.Row{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if row.Key[i], err = encodeCollate(codec, collatable(col, value)); err != nil {
			return merge.Row{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}
	return row, nil
}
