package cff

import "fmt"

var magic = []byte{'C', 'F', 'F', '1'}

// Version is the only supported format version.
const Version = 1

const (
	fixedHeaderSize = 20 // magic + version + row count + column count
	columnMetaSize  = 29 // name len + type + offset + compressed size + uncompressed size
	offsetWidth     = 4  // width of a string offset entry
)

// Type is a column data type tag.
type Type uint8

// Supported column types.
const (
	Int32   Type = 1
	Float64 Type = 2
	String  Type = 3
)

func (t Type) isValid() bool {
	return t >= Int32 && t <= String
}

// width returns the fixed value width, or 0 for variable-width types.
func (t Type) width() int {
	switch t {
	case Int32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

// String returns the type name.
func (t Type) String() string {
	switch t {
	case Int32:
		return "INT32"
	case Float64:
		return "FLOAT64"
	case String:
		return "STRING"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
}

// ColumnDescriptor holds the persisted metadata of a single column.
type ColumnDescriptor struct {
	Name             string
	Type             Type
	Offset           uint64 // absolute block offset within the file
	CompressedSize   uint64 // block size in the file
	UncompressedSize uint64 // size of the encoded column
}

// End returns the position right after the column's block.
func (d ColumnDescriptor) End() uint64 { return d.Offset + d.CompressedSize }

func (d ColumnDescriptor) String() string {
	return fmt.Sprintf("Column(name=%s, type=%s, offset=%d, compressed=%d, uncompressed=%d)",
		d.Name, d.Type, d.Offset, d.CompressedSize, d.UncompressedSize)
}
