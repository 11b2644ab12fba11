package cff

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// validate checks the structural consistency of a parsed header.
func (h *Header) validate() error {
	if len(h.Columns) == 0 {
		return newError(SchemaError, "no columns")
	}

	seen := make(map[string]struct{}, len(h.Columns))
	for i, c := range h.Columns {
		if c.Name == "" {
			return newError(SchemaError, fmt.Sprintf("column %d has an empty name", i))
		}
		if !utf8.ValidString(c.Name) {
			return newError(SchemaError, fmt.Sprintf("column %d name %q is not valid UTF-8", i, c.Name))
		}
		if _, ok := seen[c.Name]; ok {
			return columnError(SchemaError, c.Name, "duplicate column name")
		}
		seen[c.Name] = struct{}{}

		if !c.Type.isValid() {
			return columnError(SchemaError, c.Name, fmt.Sprintf("unknown type tag %d", uint8(c.Type)))
		}
	}
	return nil
}

// validateBlock checks that a column's block lies within a source of the
// given size, after a header of headerSize bytes, and that its declared
// uncompressed size is plausible for numRows values.
func (d *ColumnDescriptor) validateBlock(numRows uint64, headerSize, size int64) error {
	if d.Offset < uint64(headerSize) {
		return columnError(OffsetOutOfBounds, d.Name, fmt.Sprintf("offset %d overlaps header of %d bytes", d.Offset, headerSize))
	}
	if d.Offset > uint64(size) || d.CompressedSize > uint64(size)-d.Offset {
		return columnError(OffsetOutOfBounds, d.Name, fmt.Sprintf("block [%d, +%d) exceeds file size %d", d.Offset, d.CompressedSize, size))
	}

	if w := d.Type.width(); w != 0 {
		if numRows > math.MaxUint64/uint64(w) || d.UncompressedSize != numRows*uint64(w) {
			return columnError(SizeMismatch, d.Name, fmt.Sprintf("uncompressed size %d does not match %d rows of %d bytes", d.UncompressedSize, numRows, w))
		}
		return nil
	}

	// string columns: offset array plus at most 4GiB of data
	if numRows >= math.MaxUint64/offsetWidth-1 {
		return columnError(SizeMismatch, d.Name, fmt.Sprintf("row count %d is too large", numRows))
	}
	minSize := (numRows + 1) * offsetWidth
	if d.UncompressedSize < minSize {
		return columnError(SizeMismatch, d.Name, fmt.Sprintf("uncompressed size %d is smaller than the offset array of %d bytes", d.UncompressedSize, minSize))
	}
	if d.UncompressedSize-minSize > math.MaxUint32 {
		return columnError(SizeMismatch, d.Name, fmt.Sprintf("uncompressed size %d exceeds the addressable string data", d.UncompressedSize))
	}
	return nil
}
