package calvin

import (
	"math"

	"github.com/grailbio/microarray/encoding/affyio"
	"github.com/pkg/errors"
)

// Cursor decodes the rows of a data set one at a time, in order. The row
// buffer is reused, so values returned by Bytes are only valid until the next
// call to Next.
type Cursor struct {
	ds   *DataSet
	buf  []byte
	row  uint32
	read bool
}

// NewCursor creates a cursor over the rows of ds. It fails if a column has a
// type tag outside the closed set of Calvin types, or a width too small for
// its type.
func NewCursor(ds *DataSet) (*Cursor, error) {
	for _, c := range ds.Columns {
		if c.Type < Int8 || c.Type > WString {
			return nil, errors.Wrapf(ErrUnknownTypeTag, "data set %s: column %s has type %d", ds.Name, c.Name, c.Type)
		}
		if int(c.Size) < minWidth(c.Type) {
			return nil, errors.Errorf("data set %s: column %s of type %v is %d bytes wide", ds.Name, c.Name, c.Type, c.Size)
		}
	}
	return &Cursor{ds: ds, buf: make([]byte, ds.RowWidth)}, nil
}

func minWidth(t Type) int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	}
	return 4
}

// DataSet returns the data set the cursor reads.
func (c *Cursor) DataSet() *DataSet { return c.ds }

// Row returns the number of rows decoded so far.
func (c *Cursor) Row() int { return int(c.row) }

// SeekToFirstRow positions the underlying stream at the first row.
func (c *Cursor) SeekToFirstRow() error {
	c.row = 0
	c.read = false
	return errors.Wrapf(c.ds.s.SeekTo(int64(c.ds.FirstRow)), "data set %s: seek to first row", c.ds.Name)
}

// Next decodes the next row into the row buffer. It returns ErrRowExhausted
// once all RowCount rows have been decoded.
func (c *Cursor) Next() error {
	if c.row >= c.ds.RowCount {
		return errors.Wrapf(ErrRowExhausted, "data set %s has %d rows", c.ds.Name, c.ds.RowCount)
	}
	if err := c.ds.s.ReadFull(c.buf); err != nil {
		return errors.Wrapf(err, "data set %s: row %d", c.ds.Name, c.row)
	}
	c.row++
	c.read = true
	return nil
}

func (c *Cursor) field(col int) []byte {
	if !c.read {
		panic("calvin: field access before Next")
	}
	off := c.ds.Offsets[col]
	return c.buf[off : off+int(c.ds.Columns[col].Size)]
}

// Bytes returns the raw bytes of a column in the current row.
func (c *Cursor) Bytes(col int) []byte { return c.field(col) }

// Int8 decodes a one byte signed column.
func (c *Cursor) Int8(col int) int8 { return int8(c.field(col)[0]) }

// Uint8 decodes a one byte unsigned column.
func (c *Cursor) Uint8(col int) uint8 { return c.field(col)[0] }

// Int16 decodes a two byte signed column.
func (c *Cursor) Int16(col int) int16 { return affyio.Int16(c.field(col)) }

// Uint16 decodes a two byte unsigned column.
func (c *Cursor) Uint16(col int) uint16 { return uint16(affyio.Int16(c.field(col))) }

// Int32 decodes a four byte signed column.
func (c *Cursor) Int32(col int) int32 { return int32(affyio.Uint32(c.field(col))) }

// Uint32 decodes a four byte unsigned column.
func (c *Cursor) Uint32(col int) uint32 { return affyio.Uint32(c.field(col)) }

// Float32 decodes a four byte float column.
func (c *Cursor) Float32(col int) float32 {
	return math.Float32frombits(affyio.Uint32(c.field(col)))
}

// String decodes a length-prefixed byte string column. The length is
// clamped to the column width.
func (c *Cursor) String(col int) string {
	b := c.field(col)
	n := int(affyio.Uint32(b))
	if n > len(b)-4 || n < 0 {
		n = len(b) - 4
	}
	return string(b[4 : 4+n])
}

// WString decodes a length-prefixed UTF-16 string column.
func (c *Cursor) WString(col int) string {
	b := c.field(col)
	n := 2 * int(affyio.Uint32(b))
	if n > len(b)-4 || n < 0 {
		n = len(b) - 4
	}
	return affyio.DecodeString16(b[4 : 4+n])
}

// Value decodes a column according to its type tag.
func (c *Cursor) Value(col int) interface{} {
	switch c.ds.Columns[col].Type {
	case Int8:
		return c.Int8(col)
	case Uint8:
		return c.Uint8(col)
	case Int16:
		return c.Int16(col)
	case Uint16:
		return c.Uint16(col)
	case Int32:
		return c.Int32(col)
	case Uint32:
		return c.Uint32(col)
	case Float:
		return c.Float32(col)
	case String:
		return c.String(col)
	default:
		return c.WString(col)
	}
}
