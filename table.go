package cff

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
)

// Column is a named sequence of values. Depending on Type, exactly one of
// Int32s, Float64s or Strings holds the values.
type Column struct {
	Name string
	Type Type

	Int32s   []int32
	Float64s []float64
	Strings  []string
}

// Int32Column creates an Int32 column.
func Int32Column(name string, values ...int32) Column {
	return Column{Name: name, Type: Int32, Int32s: values}
}

// Float64Column creates a Float64 column.
func Float64Column(name string, values ...float64) Column {
	return Column{Name: name, Type: Float64, Float64s: values}
}

// StringColumn creates a String column.
func StringColumn(name string, values ...string) Column {
	return Column{Name: name, Type: String, Strings: values}
}

// Len returns the number of values.
func (c *Column) Len() int {
	switch c.Type {
	case Int32:
		return len(c.Int32s)
	case Float64:
		return len(c.Float64s)
	case String:
		return len(c.Strings)
	}
	return 0
}

// Value returns the i-th value as an int32, float64 or string.
func (c *Column) Value(i int) interface{} {
	switch c.Type {
	case Int32:
		return c.Int32s[i]
	case Float64:
		return c.Float64s[i]
	case String:
		return c.Strings[i]
	}
	return nil
}

// Append converts v to the column's type and appends it. Integers outside
// the int32 range fail with ValueOutOfRange.
func (c *Column) Append(v interface{}) error {
	switch c.Type {
	case Int32:
		n, err := toInt32(v)
		if err != nil {
			return withColumn(err, c.Name)
		}
		c.Int32s = append(c.Int32s, n)
	case Float64:
		f, err := toFloat64(v)
		if err != nil {
			return withColumn(err, c.Name)
		}
		c.Float64s = append(c.Float64s, f)
	case String:
		c.Strings = append(c.Strings, toString(v))
	default:
		return columnError(SchemaError, c.Name, fmt.Sprintf("unsupported type %s", c.Type))
	}
	return nil
}

// --------------------------------------------------------------------

// Table is an ordered set of equally sized columns.
type Table struct {
	Columns []Column
}

// NewTable creates a table from columns.
func NewTable(cols ...Column) *Table {
	return &Table{Columns: cols}
}

// NumRows returns the number of rows, as given by the first column.
func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// Names returns the column names, in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Project returns a table containing only the named columns, in the given
// order. Column values are shared, not copied.
func (t *Table) Project(names ...string) (*Table, error) {
	p := &Table{Columns: make([]Column, 0, len(names))}
	for _, name := range names {
		c, ok := t.Column(name)
		if !ok {
			return nil, columnError(UnknownColumn, name, "not found")
		}
		p.Columns = append(p.Columns, *c)
	}
	return p, nil
}

// Validate checks that the table has at least one column, that all column
// names are non-empty, valid and unique, that all types are supported, and
// that all columns have the same length. All problems are reported in a
// single SchemaError.
func (t *Table) Validate() error {
	var merr *multierror.Error

	if len(t.Columns) == 0 {
		merr = multierror.Append(merr, fmt.Errorf("no columns"))
	}

	rows := t.NumRows()
	seen := make(map[string]struct{}, len(t.Columns))
	for i := range t.Columns {
		c := &t.Columns[i]
		if err := validateColumn(c, i); err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		if _, ok := seen[c.Name]; ok {
			merr = multierror.Append(merr, fmt.Errorf("duplicate column name %q", c.Name))
		}
		seen[c.Name] = struct{}{}

		if n := c.Len(); n != rows {
			merr = multierror.Append(merr, fmt.Errorf("column %q has %d rows, expected %d", c.Name, n, rows))
		}
	}

	if err := merr.ErrorOrNil(); err != nil {
		return &Error{Kind: SchemaError, Err: err}
	}
	return nil
}

func validateColumn(c *Column, pos int) error {
	if c.Name == "" {
		return fmt.Errorf("column %d has an empty name", pos)
	}
	if !utf8.ValidString(c.Name) {
		return fmt.Errorf("column %d name %q is not valid UTF-8", pos, c.Name)
	}
	if uint64(len(c.Name)) > math.MaxUint32 {
		return fmt.Errorf("column %d name is too long", pos)
	}
	if !c.Type.isValid() {
		return fmt.Errorf("column %q has unsupported type %s", c.Name, c.Type)
	}
	return nil
}

// --------------------------------------------------------------------

// Records returns the table as a slice of rows, mapping column names to
// values. On tables which fail Validate, the number of rows is given by the
// longest column and rows only contain the columns long enough to hold them.
func (t *Table) Records() []map[string]interface{} {
	size := 0
	for i := range t.Columns {
		if n := t.Columns[i].Len(); n > size {
			size = n
		}
	}

	rows := make([]map[string]interface{}, size)
	for i := range rows {
		row := make(map[string]interface{}, len(t.Columns))
		for j := range t.Columns {
			if c := &t.Columns[j]; i < c.Len() {
				row[c.Name] = c.Value(i)
			}
		}
		rows[i] = row
	}
	return rows
}

// FromRecords builds a table from row-oriented records. The column order is
// given by names. The type of each column is inferred from its first
// non-nil, non-empty value: booleans and integers become Int32, floats
// become Float64 and everything else becomes String. Columns without any
// such value become String.
func FromRecords(names []string, records []map[string]interface{}) (*Table, error) {
	t := &Table{Columns: make([]Column, len(names))}
	for i, name := range names {
		t.Columns[i] = Column{Name: name, Type: inferType(name, records)}
	}

	for i, rec := range records {
		for j := range t.Columns {
			c := &t.Columns[j]
			if err := c.Append(rec[c.Name]); err != nil {
				if e, ok := err.(*Error); ok {
					e.Msg = fmt.Sprintf("row %d: %s", i, e.Msg)
				}
				return nil, err
			}
		}
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// FromStrings builds a table from rows of text cells, as read from a
// delimited text source. Cells are converted with ParseValue before the
// column types are inferred, see FromRecords.
func FromStrings(names []string, rows [][]string) (*Table, error) {
	records := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		if len(row) != len(names) {
			return nil, newError(SchemaError, fmt.Sprintf("row %d has %d cells, expected %d", i, len(row), len(names)))
		}

		rec := make(map[string]interface{}, len(names))
		for j, name := range names {
			rec[name] = ParseValue(row[j])
		}
		records[i] = rec
	}
	return FromRecords(names, records)
}

// ParseValue converts a text cell into a typed value. Empty cells stay
// empty strings. Cells without a decimal point are parsed as int64, cells
// with one as float64. Anything which fails to parse is returned unchanged.
func ParseValue(s string) interface{} {
	if s == "" {
		return s
	}

	trimmed := strings.TrimSpace(s)
	if !strings.Contains(trimmed, ".") {
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return n
		}
		return s
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return s
}

func inferType(name string, records []map[string]interface{}) Type {
	for _, rec := range records {
		v := rec[name]
		if v == nil || v == "" {
			continue
		}

		switch reflect.ValueOf(v).Kind() {
		case reflect.Bool,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return Int32
		case reflect.Float32, reflect.Float64:
			return Float64
		default:
			return String
		}
	}
	return String
}

func toInt32(v interface{}) (int32, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, newError(ValueOutOfRange, fmt.Sprintf("%d does not fit into int32", n))
		}
		return int32(n), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := rv.Uint()
		if n > math.MaxInt32 {
			return 0, newError(ValueOutOfRange, fmt.Sprintf("%d does not fit into int32", n))
		}
		return int32(n), nil
	}
	return 0, newError(SchemaError, fmt.Sprintf("cannot store %T value %v as %s", v, v, Int32))
}

func toFloat64(v interface{}) (float64, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	return 0, newError(SchemaError, fmt.Sprintf("cannot store %T value %v as %s", v, v, Float64))
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}
