package cff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Header is the file header, holding the row count and one descriptor per column.
type Header struct {
	NumRows uint64
	Columns []ColumnDescriptor
}

// Size returns the encoded header size in bytes.
func (h *Header) Size() int64 {
	n := int64(fixedHeaderSize)
	for _, c := range h.Columns {
		n += columnMetaSize + int64(len(c.Name))
	}
	return n
}

// Descriptor returns the descriptor and the position of the named column.
func (h *Header) Descriptor(name string) (ColumnDescriptor, int, bool) {
	for i, c := range h.Columns {
		if c.Name == name {
			return c, i, true
		}
	}
	return ColumnDescriptor{}, -1, false
}

// AppendBinary appends the encoded header to dst.
func (h *Header) AppendBinary(dst []byte) []byte {
	dst = append(dst, magic...)
	dst = binary.LittleEndian.AppendUint32(dst, Version)
	dst = binary.LittleEndian.AppendUint64(dst, h.NumRows)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(h.Columns)))

	for _, c := range h.Columns {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(c.Name)))
		dst = append(dst, c.Name...)
		dst = append(dst, byte(c.Type))
		dst = binary.LittleEndian.AppendUint64(dst, c.Offset)
		dst = binary.LittleEndian.AppendUint64(dst, c.CompressedSize)
		dst = binary.LittleEndian.AppendUint64(dst, c.UncompressedSize)
	}
	return dst
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (h *Header) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, h.Size())), nil
}

// ReadHeader parses and validates the header of a file of the given size.
// It does not read any column data.
func ReadHeader(r io.ReaderAt, size int64) (*Header, error) {
	hr := &headerReader{r: r, size: size, tmp: make([]byte, columnMetaSize)}

	if size < int64(len(magic)) {
		return nil, newError(TruncatedHeader, fmt.Sprintf("file size %d is too small", size))
	}
	if err := hr.read(hr.tmp[:len(magic)]); err != nil {
		return nil, err
	}
	if !bytes.Equal(hr.tmp[:len(magic)], magic) {
		return nil, newError(BadMagic, fmt.Sprintf("%q", hr.tmp[:len(magic)]))
	}

	if err := hr.read(hr.tmp[:fixedHeaderSize-len(magic)]); err != nil {
		return nil, err
	}
	if v := binary.LittleEndian.Uint32(hr.tmp[0:]); v != Version {
		return nil, newError(UnsupportedVersion, fmt.Sprintf("version %d", v))
	}

	h := &Header{NumRows: binary.LittleEndian.Uint64(hr.tmp[4:])}
	numCols := binary.LittleEndian.Uint32(hr.tmp[12:])
	if numCols == 0 {
		return nil, newError(SchemaError, "no columns")
	}

	// each column needs at least columnMetaSize bytes
	if uint64(numCols)*columnMetaSize > uint64(size-hr.pos) {
		return nil, newError(TruncatedHeader, fmt.Sprintf("%d columns do not fit into %d bytes", numCols, size-hr.pos))
	}

	h.Columns = make([]ColumnDescriptor, 0, int(numCols))
	for i := 0; i < int(numCols); i++ {
		c, err := hr.readColumn()
		if err != nil {
			return nil, err
		}
		h.Columns = append(h.Columns, c)
	}

	if err := h.validate(); err != nil {
		return nil, err
	}
	return h, nil
}

type headerReader struct {
	r    io.ReaderAt
	size int64
	pos  int64
	tmp  []byte
}

func (hr *headerReader) read(p []byte) error {
	if hr.pos+int64(len(p)) > hr.size {
		return newError(TruncatedHeader, fmt.Sprintf("need %d bytes at offset %d, file size is %d", len(p), hr.pos, hr.size))
	}

	n, err := hr.r.ReadAt(p, hr.pos)
	hr.pos += int64(n)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &Error{Kind: TruncatedHeader, Err: err}
}

func (hr *headerReader) readColumn() (ColumnDescriptor, error) {
	var c ColumnDescriptor

	if err := hr.read(hr.tmp[:4]); err != nil {
		return c, err
	}
	nameLen := int64(binary.LittleEndian.Uint32(hr.tmp))
	if hr.pos+nameLen+columnMetaSize-4 > hr.size {
		return c, newError(TruncatedHeader, fmt.Sprintf("column name of %d bytes at offset %d exceeds file size %d", nameLen, hr.pos, hr.size))
	}

	name := make([]byte, int(nameLen))
	if err := hr.read(name); err != nil {
		return c, err
	}
	c.Name = string(name)

	if err := hr.read(hr.tmp[:columnMetaSize-4]); err != nil {
		return c, err
	}
	c.Type = Type(hr.tmp[0])
	c.Offset = binary.LittleEndian.Uint64(hr.tmp[1:])
	c.CompressedSize = binary.LittleEndian.Uint64(hr.tmp[9:])
	c.UncompressedSize = binary.LittleEndian.Uint64(hr.tmp[17:])
	return c, nil
}
