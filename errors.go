package cff

import (
	"errors"
	"strconv"
)

// ErrClosed is returned when a closed writer or reader is used.
var ErrClosed = errors.New("cff: is closed")

// ErrorKind classifies format and codec failures. Kinds implement the error
// interface, so errors.Is(err, cff.BadMagic) reports whether err is of a
// particular kind.
type ErrorKind uint8

// Error kinds.
const (
	BadMagic ErrorKind = iota + 1
	UnsupportedVersion
	TruncatedHeader
	TruncatedBlock
	OffsetOutOfBounds
	SchemaError
	ValueOutOfRange
	DecompressionFailed
	SizeMismatch
	OffsetOutOfRange
	InvalidUtf8
	UnknownColumn
)

var kindNames = [...]string{
	BadMagic:            "bad magic",
	UnsupportedVersion:  "unsupported version",
	TruncatedHeader:     "truncated header",
	TruncatedBlock:      "truncated block",
	OffsetOutOfBounds:   "offset out of bounds",
	SchemaError:         "schema error",
	ValueOutOfRange:     "value out of range",
	DecompressionFailed: "decompression failed",
	SizeMismatch:        "size mismatch",
	OffsetOutOfRange:    "offset out of range",
	InvalidUtf8:         "invalid utf-8",
	UnknownColumn:       "unknown column",
}

// String returns the kind name.
func (k ErrorKind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Error implements the error interface.
func (k ErrorKind) Error() string { return "cff: " + k.String() }

// Error is returned by all codec, reader and writer operations.
type Error struct {
	Kind   ErrorKind
	Column string // the affected column, if any
	Msg    string
	Err    error // the underlying cause, if any
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func columnError(kind ErrorKind, column, msg string) *Error {
	return &Error{Kind: kind, Column: column, Msg: msg}
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := "cff: " + e.Kind.String()
	if e.Column != "" {
		s += ": column " + strconv.Quote(e.Column)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is e's kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

// KindOf returns the kind of err, or 0 if err is not a cff error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k ErrorKind
	if errors.As(err, &k) {
		return k
	}
	return 0
}

// withColumn annotates a cff error with a column name unless it already has one.
func withColumn(err error, column string) error {
	var e *Error
	if errors.As(err, &e) && e.Column == "" {
		c := *e
		c.Column = column
		return &c
	}
	return err
}
