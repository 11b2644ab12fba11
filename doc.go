/*
Package cff implements CFF, a columnar file format which stores each column
of a table in its own compressed block, so that readers can decode a subset
of columns without fetching the rest of the file.

Data Structure Documentation

File

A file contains a header followed by one compressed block per column, in
column order, without gaps.

    File layout:
    +--------+---------+---------+---------+
    | header | block 1 |   ...   | block n |
    +--------+---------+---------+---------+

    Header:
    +--------------+------------------+----------------------+-------------------------+----------+-------+----------+
    | magic "CFF1" | version (4 bytes)| row count (8 bytes)  | column count (4 bytes)  | column 1 |  ...  | column n |
    +--------------+------------------+----------------------+-------------------------+----------+-------+----------+

    Column metadata:
    +---------------------+----------------+------------------+-------------------+---------------------------+-----------------------------+
    | name len (4 bytes)  | name (varlen)  | type (1 byte)    | offset (8 bytes)  | compressed size (8 bytes) | uncompressed size (8 bytes) |
    +---------------------+----------------+------------------+-------------------+---------------------------+-----------------------------+

All integers are little-endian. The offset is the absolute position of the
column's block within the file.

Block

A block is the zlib-compressed encoding of a column's values. Int32 and
Float64 columns are encoded as flat arrays of 4-byte and 8-byte values.
String columns are encoded as an offset array followed by the concatenated
UTF-8 bytes of all values.

    String encoding:
    +---------------------+-------+-------------------------+----------------+
    | offset 0 (4 bytes)  |  ...  | offset n (4 bytes)      | data (varlen)  |
    +---------------------+-------+-------------------------+----------------+

Value i spans data[offset i:offset i+1].
*/
package cff
