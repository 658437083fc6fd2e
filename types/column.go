package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
)

type ColumnType uint8

const (
	TypeInt    ColumnType = iota + 1 // int32, 4 bytes
	TypeBigInt                       // int64, 8 bytes
	TypeFloat                        // float64, 8 bytes
	TypeString                       // fixed width, zero padded
)

// ColumnMeta is the (type, width) pair persisted in index file headers.
type ColumnMeta struct {
	Type ColumnType
	Len  int
}

func (t ColumnType) FixedWidth() int {
	switch t {
	case TypeInt:
		return 4
	case TypeBigInt, TypeFloat:
		return 8
	default:
		return 0
	}
}

func (t ColumnType) String() string {
	switch t {
	case TypeInt:
		return "INT"
	case TypeBigInt:
		return "BIGINT"
	case TypeFloat:
		return "FLOAT"
	case TypeString:
		return "VARCHAR"
	default:
		return fmt.Sprintf("ColumnType(%d)", uint8(t))
	}
}

func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToUpper(s) {
	case "INT":
		return TypeInt, nil
	case "BIGINT":
		return TypeBigInt, nil
	case "FLOAT":
		return TypeFloat, nil
	case "VARCHAR", "STRING", "CHAR":
		return TypeString, nil
	}
	return 0, errors.Newf("unsupported type %s", s)
}

func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ColumnType) UnmarshalText(b []byte) error {
	parsed, err := ParseColumnType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// CompareColumn compares two encoded values of the same column.
func CompareColumn(a, b []byte, meta ColumnMeta) int {
	switch meta.Type {
	case TypeInt:
		x := int32(binary.LittleEndian.Uint32(a))
		y := int32(binary.LittleEndian.Uint32(b))
		return cmpOrdered(x, y)
	case TypeBigInt:
		x := int64(binary.LittleEndian.Uint64(a))
		y := int64(binary.LittleEndian.Uint64(b))
		return cmpOrdered(x, y)
	case TypeFloat:
		x := math.Float64frombits(binary.LittleEndian.Uint64(a))
		y := math.Float64frombits(binary.LittleEndian.Uint64(b))
		return cmpOrdered(x, y)
	default:
		return bytes.Compare(a[:meta.Len], b[:meta.Len])
	}
}

func cmpOrdered[T int32 | int64 | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// FormatValue renders one encoded column value.
func FormatValue(b []byte, meta ColumnMeta) string {
	switch meta.Type {
	case TypeInt:
		return fmt.Sprintf("%d", int32(binary.LittleEndian.Uint32(b)))
	case TypeBigInt:
		return fmt.Sprintf("%d", int64(binary.LittleEndian.Uint64(b)))
	case TypeFloat:
		return fmt.Sprintf("%g", math.Float64frombits(binary.LittleEndian.Uint64(b)))
	default:
		return fmt.Sprintf("%q", string(bytes.TrimRight(b[:meta.Len], "\x00")))
	}
}
