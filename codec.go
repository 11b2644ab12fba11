package cff

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// EncodedSize returns the size of the encoded column in bytes.
func EncodedSize(c *Column) int {
	switch c.Type {
	case Int32:
		return 4 * len(c.Int32s)
	case Float64:
		return 8 * len(c.Float64s)
	case String:
		n := (len(c.Strings) + 1) * offsetWidth
		for _, s := range c.Strings {
			n += len(s)
		}
		return n
	}
	return 0
}

// EncodeColumn appends the encoded values of c to dst.
func EncodeColumn(dst []byte, c *Column) ([]byte, error) {
	switch c.Type {
	case Int32:
		for _, v := range c.Int32s {
			dst = binary.LittleEndian.AppendUint32(dst, uint32(v))
		}
	case Float64:
		for _, v := range c.Float64s {
			dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
		}
	case String:
		return encodeStrings(dst, c)
	default:
		return dst, columnError(SchemaError, c.Name, fmt.Sprintf("unsupported type %s", c.Type))
	}
	return dst, nil
}

func encodeStrings(dst []byte, c *Column) ([]byte, error) {
	var off uint64
	dst = binary.LittleEndian.AppendUint32(dst, 0)
	for i, s := range c.Strings {
		if !utf8.ValidString(s) {
			return dst, columnError(InvalidUtf8, c.Name, fmt.Sprintf("value %d", i))
		}
		off += uint64(len(s))
		if off > math.MaxUint32 {
			return dst, columnError(ValueOutOfRange, c.Name, "string data exceeds 4GiB")
		}
		dst = binary.LittleEndian.AppendUint32(dst, uint32(off))
	}
	for _, s := range c.Strings {
		dst = append(dst, s...)
	}
	return dst, nil
}

// DecodeColumn decodes rows values of type typ from data.
func DecodeColumn(name string, typ Type, data []byte, rows int) (Column, error) {
	col := Column{Name: name, Type: typ}

	switch typ {
	case Int32, Float64:
		if rows < 0 || len(data)/typ.width() != rows || len(data)%typ.width() != 0 {
			return col, columnError(SizeMismatch, name,
				fmt.Sprintf("expected %d values of %d bytes, got %d bytes", rows, typ.width(), len(data)))
		}
	case String:
	default:
		return col, columnError(SchemaError, name, fmt.Sprintf("unsupported type %s", typ))
	}

	switch typ {
	case Int32:
		col.Int32s = make([]int32, rows)
		for i := range col.Int32s {
			col.Int32s[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
		}
	case Float64:
		col.Float64s = make([]float64, rows)
		for i := range col.Float64s {
			col.Float64s[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
	case String:
		vals, err := decodeStrings(data, rows)
		if err != nil {
			return col, withColumn(err, name)
		}
		col.Strings = vals
	}
	return col, nil
}

func decodeStrings(data []byte, rows int) ([]string, error) {
	if rows < 0 || (len(data)/offsetWidth)-1 < rows {
		return nil, newError(OffsetOutOfRange, fmt.Sprintf("offset array of %d entries exceeds %d bytes", rows+1, len(data)))
	}

	offs := data[:(rows+1)*offsetWidth]
	blob := data[len(offs):]

	if first := binary.LittleEndian.Uint32(offs); first != 0 {
		return nil, newError(OffsetOutOfRange, fmt.Sprintf("first offset is %d, must be 0", first))
	}

	prev := uint32(0)
	for i := 1; i <= rows; i++ {
		next := binary.LittleEndian.Uint32(offs[i*offsetWidth:])
		if next < prev {
			return nil, newError(OffsetOutOfRange, fmt.Sprintf("offset %d (%d) is less than offset %d (%d)", i, next, i-1, prev))
		}
		if uint64(next) > uint64(len(blob)) {
			return nil, newError(OffsetOutOfRange, fmt.Sprintf("offset %d (%d) exceeds data length %d", i, next, len(blob)))
		}
		prev = next
	}
	if uint64(prev) != uint64(len(blob)) {
		return nil, newError(OffsetOutOfRange, fmt.Sprintf("last offset %d does not match data length %d", prev, len(blob)))
	}

	vals := make([]string, rows)
	for i := range vals {
		b := blob[binary.LittleEndian.Uint32(offs[i*offsetWidth:]):binary.LittleEndian.Uint32(offs[(i+1)*offsetWidth:])]
		if !utf8.Valid(b) {
			return nil, newError(InvalidUtf8, fmt.Sprintf("value %d", i))
		}
		vals[i] = string(b)
	}
	return vals, nil
}
