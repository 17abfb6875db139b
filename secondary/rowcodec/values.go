package rowcodec

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// toValue converts v to the Go type of col: bool, int64, float64,
// string, []byte or time.Time. Accepts the types produced by
// encoding/json with UseNumber and native Go values.
func toValue(col Column, v interface{}) (interface{}, error) {
	switch col.Type {
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}

	case TypeInt64:
		return toInt64(v)

	case TypeDouble:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, err
			}
			return f, nil
		}

	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}

	case TypeBinary:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			raw, err := base64.StdEncoding.DecodeString(b)
			if err != nil {
				return nil, err
			}
			return raw, nil
		}

	case TypeTimestamp:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, err
			}
			return parsed.UTC(), nil
		default:
			ms, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			return time.UnixMilli(ms.(int64)).UTC(), nil
		}
	}
	return nil, fmt.Errorf("%v value %v (%T) for column %q", col.Type, v, v, col.Name)
}

func toInt64(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return nil, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case json.Number:
		i, err := strconv.ParseInt(string(n), 10, 64)
		if err != nil {
			return nil, err
		}
		return i, nil
	}
	return nil, fmt.Errorf("%v (%T) is not an integer", v, v)
}

// toStored maps a typed value to its stored JSON form, reversing
// descending key columns.
func toStored(col Column, v interface{}) interface{} {
	switch col.Type {
	case TypeInt64:
		n := v.(int64)
		if col.Descending {
			return ^n
		}
		return n
	case TypeDouble:
		f := v.(float64)
		if col.Descending {
			return -f
		}
		return f
	case TypeTimestamp:
		t := v.(time.Time)
		if col.Descending {
			return ReverseTimestamp(t)
		}
		return t.UnixMilli()
	}
	return v
}

// fromStored undoes toStored.
func fromStored(col Column, v interface{}) (interface{}, error) {
	if col.Type == TypeTimestamp {
		ms, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if col.Descending {
			return FromReverseTimestamp(ms.(int64)), nil
		}
		return time.UnixMilli(ms.(int64)).UTC(), nil
	}

	value, err := toValue(col, v)
	if err != nil || !col.Descending {
		return value, err
	}
	switch col.Type {
	case TypeInt64:
		return ^value.(int64), nil
	case TypeDouble:
		return -value.(float64), nil
	}
	return value, nil
}

// collatable is the JSON form used for order preserving key encoding.
func collatable(col Column, v interface{}) interface{} {
	switch col.Type {
	case TypeTimestamp:
		return v.(time.Time).UnixMilli()
	case TypeBinary:
		return hex.EncodeToString(v.([]byte))
	}
	return v
}
