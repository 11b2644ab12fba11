package cff

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"golang.org/x/exp/mmap"
	"golang.org/x/sync/errgroup"
)

// ReaderOptions define reader specific options.
type ReaderOptions struct {
	// Concurrency is the maximum number of columns decoded in parallel
	// by a single read call.
	// Default: 1.
	Concurrency int
}

func (o *ReaderOptions) norm() *ReaderOptions {
	var oo ReaderOptions
	if o != nil {
		oo = *o
	}

	if oo.Concurrency < 1 {
		oo.Concurrency = 1
	}

	return &oo
}

// Reader instances can read full tables or selected columns. Readers only
// issue ReadAt calls and are safe for concurrent use.
type Reader struct {
	r    io.ReaderAt
	size int64
	o    *ReaderOptions

	header     *Header
	headerSize int64

	closer io.Closer
	mu     sync.RWMutex // guards closed and the source against Close
	closed bool
}

// NewReader parses the header of a file of the given size. It does not
// read any column data.
func NewReader(r io.ReaderAt, size int64, o *ReaderOptions) (*Reader, error) {
	header, err := ReadHeader(r, size)
	if err != nil {
		return nil, err
	}

	return &Reader{
		r:          r,
		size:       size,
		o:          o.norm(),
		header:     header,
		headerSize: header.Size(),
	}, nil
}

// Open opens the named file for reading. The file is memory-mapped and
// must be released by calling Close.
func Open(name string, o *ReaderOptions) (*Reader, error) {
	f, err := mmap.Open(name)
	if err != nil {
		return nil, err
	}

	r, err := NewReader(f, int64(f.Len()), o)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Close releases the underlying file, if the reader was created by Open.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	r.closed = true

	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// NumRows returns the number of rows.
func (r *Reader) NumRows() uint64 { return r.header.NumRows }

// NumColumns returns the number of columns.
func (r *Reader) NumColumns() int { return len(r.header.Columns) }

// Columns returns the column descriptors, in file order.
func (r *Reader) Columns() []ColumnDescriptor {
	return append([]ColumnDescriptor(nil), r.header.Columns...)
}

// Names returns the column names, in file order.
func (r *Reader) Names() []string {
	names := make([]string, len(r.header.Columns))
	for i, c := range r.header.Columns {
		names[i] = c.Name
	}
	return names
}

// Descriptor returns the descriptor of the named column.
func (r *Reader) Descriptor(name string) (ColumnDescriptor, bool) {
	d, _, ok := r.header.Descriptor(name)
	return d, ok
}

// HeaderSize returns the size of the header in bytes.
func (r *Reader) HeaderSize() int64 { return r.headerSize }

// TrailingBytes returns the number of bytes after the last column block.
// Trailing bytes are tolerated.
func (r *Reader) TrailingBytes() int64 {
	end := uint64(r.headerSize)
	for _, c := range r.header.Columns {
		if e := c.End(); e > end && c.Offset <= c.End() {
			end = e
		}
	}
	if end >= uint64(r.size) {
		return 0
	}
	return r.size - int64(end)
}

// Schema returns the column types, by name.
func (r *Reader) Schema() map[string]Type {
	schema := make(map[string]Type, len(r.header.Columns))
	for _, c := range r.header.Columns {
		schema[c.Name] = c.Type
	}
	return schema
}

// Info returns a human readable summary of the file: the row and column
// counts followed by one line per column descriptor.
func (r *Reader) Info() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rows: %d\n", r.header.NumRows)
	fmt.Fprintf(&b, "Columns: %d\n", len(r.header.Columns))
	b.WriteString("\nSchema:\n")
	for _, c := range r.header.Columns {
		b.WriteString("  ")
		b.WriteString(c.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// ReadColumn reads a single column.
func (r *Reader) ReadColumn(name string) (Column, error) {
	t, err := r.ReadColumns(name)
	if err != nil {
		return Column{}, err
	}
	return t.Columns[0], nil
}

// ReadAll reads all columns.
func (r *Reader) ReadAll() (*Table, error) {
	return r.ReadColumns()
}

// ReadColumns reads the named columns, in the given order. If no names are
// given, all columns are read in file order. Blocks of columns which are not
// requested are never read. Either all requested columns are returned or
// none. Requesting the same name twice is a SchemaError, unknown names fail
// with UnknownColumn.
//
// Close waits for pending reads to complete.
func (r *Reader) ReadColumns(names ...string) (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}

	descs, err := r.resolve(names)
	if err != nil {
		return nil, err
	}

	// validate all requested blocks before reading any of them
	for i := range descs {
		if err := descs[i].validateBlock(r.header.NumRows, r.headerSize, r.size); err != nil {
			return nil, err
		}
	}

	if r.header.NumRows > uint64(math.MaxInt) {
		return nil, newError(SchemaError, fmt.Sprintf("row count %d is too large", r.header.NumRows))
	}
	rows := int(r.header.NumRows)

	cols := make([]Column, len(descs))
	if r.o.Concurrency < 2 || len(descs) < 2 {
		for i := range descs {
			if cols[i], err = r.readColumn(&descs[i], rows); err != nil {
				return nil, err
			}
		}
		return &Table{Columns: cols}, nil
	}

	var g errgroup.Group
	g.SetLimit(r.o.Concurrency)
	for i := range descs {
		g.Go(func() (err error) {
			cols[i], err = r.readColumn(&descs[i], rows)
			return
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Table{Columns: cols}, nil
}

// resolve maps names to descriptors.
func (r *Reader) resolve(names []string) ([]ColumnDescriptor, error) {
	if len(names) == 0 {
		return r.Columns(), nil
	}

	descs := make([]ColumnDescriptor, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		d, _, ok := r.header.Descriptor(name)
		if !ok {
			return nil, columnError(UnknownColumn, name, "not found")
		}
		if _, ok := seen[name]; ok {
			return nil, columnError(SchemaError, name, "requested more than once")
		}
		seen[name] = struct{}{}
		descs = append(descs, d)
	}
	return descs, nil
}

func (r *Reader) readColumn(d *ColumnDescriptor, rows int) (Column, error) {
	raw := fetchBuffer(int(d.CompressedSize))
	defer releaseBuffer(raw)

	if n, err := r.r.ReadAt(raw, int64(d.Offset)); n < len(raw) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Column{}, &Error{Kind: TruncatedBlock, Column: d.Name, Msg: fmt.Sprintf("read %d of %d bytes", n, len(raw)), Err: err}
	}

	plain, err := decompress(raw, d.UncompressedSize)
	if err != nil {
		return Column{}, withColumn(err, d.Name)
	}
	return DecodeColumn(d.Name, d.Type, plain, rows)
}

// --------------------------------------------------------------------

var bufPool sync.Pool

func fetchBuffer(sz int) []byte {
	if v := bufPool.Get(); v != nil {
		if p := v.([]byte); sz <= cap(p) {
			return p[:sz]
		}
	}
	return make([]byte, sz)
}

func releaseBuffer(p []byte) {
	if cap(p) != 0 {
		bufPool.Put(p)
	}
}
