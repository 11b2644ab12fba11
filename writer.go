package cff

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"
)

// WriterOptions define writer specific options.
type WriterOptions struct {
	// Level is the zlib compression level, between zlib.HuffmanOnly and
	// zlib.BestCompression. Zero selects the default.
	// Default: 6.
	Level int
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}

	if oo.Level == 0 || oo.Level < zlib.HuffmanOnly || oo.Level > zlib.BestCompression {
		oo.Level = DefaultCompressionLevel
	}

	return &oo
}

// Writer instances can write a table. Columns are encoded and compressed as
// they are appended, the file is emitted on Close, once all column offsets
// are known.
type Writer struct {
	w io.Writer
	o *WriterOptions

	header Header
	rows   int // row count, fixed by the first column
	names  map[string]struct{}
	blocks [][]byte // compressed blocks, in column order
	cmp    *compressor

	buf    []byte // encoding buffer
	closed bool
}

// NewWriter wraps a writer and returns a Writer.
func NewWriter(w io.Writer, o *WriterOptions) *Writer {
	return &Writer{
		w:     w,
		o:     o.norm(),
		names: make(map[string]struct{}),
	}
}

// Append encodes and compresses a column. All columns must have the same
// number of values.
func (w *Writer) Append(col Column) error {
	if w.closed {
		return ErrClosed
	}

	if err := validateColumn(&col, len(w.header.Columns)); err != nil {
		return &Error{Kind: SchemaError, Err: err}
	}
	if _, ok := w.names[col.Name]; ok {
		return columnError(SchemaError, col.Name, "duplicate column name")
	}
	if n := col.Len(); len(w.header.Columns) != 0 && n != w.rows {
		return columnError(SchemaError, col.Name, fmt.Sprintf("has %d rows, expected %d", n, w.rows))
	}

	if w.cmp == nil {
		cmp, err := newCompressor(w.o.Level)
		if err != nil {
			return err
		}
		w.cmp = cmp
	}

	var err error
	if w.buf, err = EncodeColumn(w.buf[:0], &col); err != nil {
		return err
	}
	block, err := w.cmp.Compress(w.buf)
	if err != nil {
		return fmt.Errorf("cff: compress column %q: %w", col.Name, err)
	}

	if len(w.header.Columns) == 0 {
		w.rows = col.Len()
	}
	w.names[col.Name] = struct{}{}
	w.blocks = append(w.blocks, block)
	w.header.Columns = append(w.header.Columns, ColumnDescriptor{
		Name:             col.Name,
		Type:             col.Type,
		CompressedSize:   uint64(len(block)),
		UncompressedSize: uint64(len(w.buf)),
	})
	return nil
}

// Close computes the column offsets and writes the header, followed by all
// column blocks. At least one column must have been appended.
func (w *Writer) Close() error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true

	if len(w.header.Columns) == 0 {
		return newError(SchemaError, "no columns")
	}

	w.header.NumRows = uint64(w.rows)
	offset := uint64(w.header.Size())
	for i := range w.header.Columns {
		w.header.Columns[i].Offset = offset
		offset += w.header.Columns[i].CompressedSize
	}

	if _, err := w.w.Write(w.header.AppendBinary(w.buf[:0])); err != nil {
		return err
	}
	for _, block := range w.blocks {
		if _, err := w.w.Write(block); err != nil {
			return err
		}
	}

	w.blocks = nil
	w.buf = nil
	return nil
}

// Header returns the header of the written file. It is only complete after
// Close.
func (w *Writer) Header() Header {
	h := Header{NumRows: w.header.NumRows}
	h.Columns = append(h.Columns, w.header.Columns...)
	return h
}

// WriteTable validates t, writes all of its columns and closes the writer.
func (w *Writer) WriteTable(t *Table) error {
	if w.closed {
		return ErrClosed
	}
	if err := t.Validate(); err != nil {
		return err
	}

	for _, col := range t.Columns {
		if err := w.Append(col); err != nil {
			return err
		}
	}
	return w.Close()
}

// Encode returns t in the file format.
func Encode(t *Table, o *WriterOptions) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := NewWriter(buf, o).WriteTable(t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes t to the named file, creating or truncating it. The
// write is not atomic: on failure, the file may be left incomplete.
func WriteFile(name string, t *Table, o *WriterOptions) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := NewWriter(f, o).WriteTable(t); err != nil {
		return err
	}
	return f.Close()
}
