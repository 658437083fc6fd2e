package types

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

/*
Fixed width value encoding shared by records and index keys.
Every column occupies exactly ColumnDef.Width() bytes so that keys can be
compared in place inside a page and records can live in fixed size slots.
*/

func ValueToBytes(val any, col ColumnDef) ([]byte, error) {
	buf := make([]byte, col.Width())

	switch col.Type {
	case TypeInt:
		i, err := toInt64(val)
		if err != nil {
			return nil, err
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, errors.Newf("value %d overflows INT column %s", i, col.Name)
		}
		binary.LittleEndian.PutUint32(buf, uint32(int32(i)))

	case TypeBigInt:
		i, err := toInt64(val)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint64(buf, uint64(i))

	case TypeFloat:
		f, err := toFloat64(val)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint64(buf, math.Float64bits(f))

	case TypeString:
		var s []byte
		switch v := val.(type) {
		case string:
			s = []byte(v)
		case []byte:
			s = v
		default:
			return nil, errors.Newf("cannot convert %T to VARCHAR", val)
		}
		if len(s) > col.Len {
			return nil, errors.Newf("string of %d bytes exceeds column %s width %d", len(s), col.Name, col.Len)
		}
		copy(buf, s)

	default:
		return nil, errors.Newf("unsupported type %s", col.Type)
	}

	return buf, nil
}

// EncodeRow concatenates the encoded values of all columns in schema order.
func EncodeRow(cols []ColumnDef, values []any) ([]byte, error) {
	if len(cols) != len(values) {
		return nil, errors.Newf("column count (%d) != value count (%d)", len(cols), len(values))
	}
	out := make([]byte, 0, 64)
	for i, col := range cols {
		b, err := ValueToBytes(values[i], col)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", col.Name)
		}
		out = append(out, b...)
	}
	return out, nil
}

// EncodeInt is a shorthand for a single INT key column.
func EncodeInt(v int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return buf
}

func DecodeInt(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b[:4]))
}

func EncodeBigInt(v int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return buf
}

func toInt64(val any) (int64, error) {
	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint32:
		return int64(v), nil
	default:
		return 0, errors.Newf("cannot convert %T to integer", val)
	}
}

func toFloat64(val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, errors.Newf("cannot convert %T to FLOAT", val)
	}
}

// BytesToValue decodes one column value. Strings lose their zero padding.
func BytesToValue(b []byte, col ColumnDef) (any, error) {
	w := col.Width()
	if len(b) < w {
		return nil, errors.Newf("not enough bytes for column %s: %d < %d", col.Name, len(b), w)
	}

	switch col.Type {
	case TypeInt:
		return int32(binary.LittleEndian.Uint32(b)), nil
	case TypeBigInt:
		return int64(binary.LittleEndian.Uint64(b)), nil
	case TypeFloat:
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	case TypeString:
		s := b[:w]
		end := len(s)
		for end > 0 && s[end-1] == 0 {
			end--
		}
		return string(s[:end]), nil
	}
	return nil, errors.Newf("unknown type %s", col.Type)
}

// DecodeRow is the inverse of EncodeRow.
func DecodeRow(row []byte, cols []ColumnDef) ([]any, error) {
	out := make([]any, len(cols))
	offset := 0

	for i, col := range cols {
		val, err := BytesToValue(row[offset:], col)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s at offset %d", col.Name, offset)
		}
		out[i] = val
		offset += col.Width()
	}

	if offset != len(row) {
		return nil, errors.Newf("extra bytes at end of row: expected %d bytes, got %d", offset, len(row))
	}
	return out, nil
}
