// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package xda reads Affymetrix XDA (binary, version 4) CEL files.
//
// An XDA CEL file is a flat little-endian record: a fixed header with the
// chip geometry and three free-text blocks, followed by four arrays whose
// element counts are stored in the header: cell intensities, masked cell
// coordinates, outlier cell coordinates and sub-grid geometry.
package xda

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/grailbio/microarray/encoding/affyio"
	"github.com/pkg/errors"
)

const (
	// Magic is the first int32 of every XDA CEL file.
	Magic = 64
	// Version is the only supported XDA CEL version.
	Version = 4
)

// Cell is the summarized intensity of one probe cell.
type Cell struct {
	Mean   float32
	Stdev  float32
	Pixels int16
}

// Coord identifies a cell by its column (X) and row (Y).
type Coord struct {
	X, Y int16
}

// SubGrid describes the geometry of one sub-grid of the scanned image.
type SubGrid struct {
	Row, Col                 int32
	UpperLeftX, UpperLeftY   float32
	UpperRightX, UpperRightY float32
	LowerLeftX, LowerLeftY   float32
	LowerRightX, LowerRightY float32
	LeftCell, TopCell        int32
	RightCell, BottomCell    int32
}

const (
	cellSize    = 10
	coordSize   = 4
	subGridSize = 56
)

// CEL is a decoded XDA CEL file. It is immutable once returned by Read.
type CEL struct {
	Name       string
	Version    int32
	Rows       int32
	Cols       int32
	NumCells   int32
	Header     string
	Algorithm  string
	Parameters string
	CellMargin int32
	NumOutlier uint32
	NumMasked  uint32
	NumSubGrid int32

	// The arrays below are nil when the file was read with HeaderOnly.
	Cells    []Cell
	Masked   []Coord
	Outliers []Coord
	SubGrids []SubGrid
}

// Opts controls Read.
type Opts struct {
	// HeaderOnly stops decoding after the header, leaving the arrays unread.
	// It bounds memory when many files are open at once.
	HeaderOnly bool
}

// Read decodes an XDA CEL file from s. The name is used in error messages
// and summaries only.
func Read(s *affyio.Stream, name string, opts Opts) (*CEL, error) {
	s.SetOrder(binary.LittleEndian)
	c := &CEL{Name: name}
	magic, err := s.ReadInt32()
	if err != nil {
		return nil, errors.Wrapf(err, "%s: read magic", name)
	}
	if magic != Magic {
		return nil, errors.Wrapf(affyio.ErrBadMagic, "XDA CEL file %s magic number is %d while it should be %d", name, magic, Magic)
	}
	if c.Version, err = s.ReadInt32(); err != nil {
		return nil, errors.Wrapf(err, "%s: read version", name)
	}
	if c.Version != Version {
		return nil, errors.Wrapf(affyio.ErrUnsupportedVersion, "XDA CEL file %s has version %d", name, c.Version)
	}
	for _, p := range []*int32{&c.Rows, &c.Cols, &c.NumCells} {
		if *p, err = s.ReadInt32(); err != nil {
			return nil, errors.Wrapf(err, "%s: read geometry", name)
		}
	}
	for _, p := range []*string{&c.Header, &c.Algorithm, &c.Parameters} {
		b, err := s.ReadString8()
		if err != nil {
			return nil, errors.Wrapf(err, "%s: read text block", name)
		}
		*p = string(b)
	}
	if c.CellMargin, err = s.ReadInt32(); err != nil {
		return nil, errors.Wrapf(err, "%s: read cell margin", name)
	}
	if c.NumOutlier, err = s.ReadUint32(); err != nil {
		return nil, errors.Wrapf(err, "%s: read outlier count", name)
	}
	if c.NumMasked, err = s.ReadUint32(); err != nil {
		return nil, errors.Wrapf(err, "%s: read masked count", name)
	}
	if c.NumSubGrid, err = s.ReadInt32(); err != nil {
		return nil, errors.Wrapf(err, "%s: read sub-grid count", name)
	}
	if c.NumCells != c.Rows*c.Cols {
		return nil, errors.Errorf("XDA CEL file %s has %d cells but %dx%d geometry", name, c.NumCells, c.Rows, c.Cols)
	}
	if c.NumCells < 0 || c.NumSubGrid < 0 {
		return nil, errors.Errorf("XDA CEL file %s has negative array lengths", name)
	}
	if opts.HeaderOnly {
		return c, nil
	}

	if err := c.readCells(s); err != nil {
		return nil, errors.Wrapf(err, "%s: read cells", name)
	}
	if c.Masked, err = c.readCoords(s, c.NumMasked); err != nil {
		return nil, errors.Wrapf(err, "%s: read masked cells", name)
	}
	if c.Outliers, err = c.readCoords(s, c.NumOutlier); err != nil {
		return nil, errors.Wrapf(err, "%s: read outlier cells", name)
	}
	if err := c.readSubGrids(s); err != nil {
		return nil, errors.Wrapf(err, "%s: read sub-grids", name)
	}
	if !s.AtEnd() {
		return nil, errors.Wrapf(affyio.ErrTrailingData, "XDA CEL reader did not reach the end of file %s at position %d", name, s.Offset())
	}
	return c, nil
}

func (c *CEL) readCells(s *affyio.Stream) error {
	if err := s.CheckCount("cells", int64(c.NumCells), cellSize); err != nil {
		return err
	}
	buf := make([]byte, int(c.NumCells)*cellSize)
	if err := s.ReadFull(buf); err != nil {
		return err
	}
	c.Cells = make([]Cell, c.NumCells)
	for i := range c.Cells {
		b := buf[i*cellSize:]
		c.Cells[i] = Cell{
			Mean:   math.Float32frombits(binary.LittleEndian.Uint32(b)),
			Stdev:  math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
			Pixels: int16(binary.LittleEndian.Uint16(b[8:])),
		}
	}
	return nil
}

func (c *CEL) readCoords(s *affyio.Stream, n uint32) ([]Coord, error) {
	if err := s.CheckCount("coordinates", int64(n), coordSize); err != nil {
		return nil, err
	}
	buf := make([]byte, int(n)*coordSize)
	if err := s.ReadFull(buf); err != nil {
		return nil, err
	}
	coords := make([]Coord, n)
	for i := range coords {
		b := buf[i*coordSize:]
		coords[i] = Coord{
			X: int16(binary.LittleEndian.Uint16(b)),
			Y: int16(binary.LittleEndian.Uint16(b[2:])),
		}
		if coords[i].X < 0 || int32(coords[i].X) >= c.Cols || coords[i].Y < 0 || int32(coords[i].Y) >= c.Rows {
			return nil, errors.Errorf("cell (%d,%d) outside %dx%d grid", coords[i].X, coords[i].Y, c.Cols, c.Rows)
		}
	}
	return coords, nil
}

func (c *CEL) readSubGrids(s *affyio.Stream) error {
	if err := s.CheckCount("sub-grids", int64(c.NumSubGrid), subGridSize); err != nil {
		return err
	}
	buf := make([]byte, int(c.NumSubGrid)*subGridSize)
	if err := s.ReadFull(buf); err != nil {
		return err
	}
	c.SubGrids = make([]SubGrid, c.NumSubGrid)
	for i := range c.SubGrids {
		if err := binary.Read(bytes.NewReader(buf[i*subGridSize:(i+1)*subGridSize]), binary.LittleEndian, &c.SubGrids[i]); err != nil {
			return err
		}
	}
	return nil
}

// DatHeader returns the scanner DAT header embedded in the free-text header,
// that is the text following "DatHeader=[...]" up to the end of that line.
func (c *CEL) DatHeader() (string, error) {
	i := strings.Index(c.Header, "\nDatHeader=[")
	if i < 0 {
		return "", errors.Errorf("XDA CEL file %s is missing DAT header", c.Name)
	}
	rest := c.Header[i+12:]
	j := strings.IndexByte(rest, ']')
	if j < 0 {
		return "", errors.Errorf("XDA CEL file %s is missing DAT header", c.Name)
	}
	rest = rest[j+1:]
	k := strings.IndexByte(rest, '\n')
	if k < 0 {
		return "", errors.Errorf("XDA CEL file %s is missing DAT header", c.Name)
	}
	return rest[:k], nil
}

// Print renders c in the textual CEL version 3 layout. Per-cell lines are
// only written when verbose is set.
func (c *CEL) Print(w io.Writer, verbose bool) error {
	p := &printer{w: w}
	p.printf("[CEL]\nVersion=3\n")
	p.printf("\n[HEADER]\n%s", c.Header)
	p.printf("\n[INTENSITY]\nNumberCells=%d\nCellHeader=X\tY\tMEAN\tSTDV\tNPIXELS\n", c.NumCells)
	if !verbose {
		p.printf("... use --verbose to visualize Cell Entries ...\n")
	} else {
		for i, cell := range c.Cells {
			p.printf("%3d\t%3d\t%.1f\t%.1f\t%3d\n", int32(i)%c.Cols, int32(i)/c.Cols, cell.Mean, cell.Stdev, cell.Pixels)
		}
	}
	printCoords := func(section string, n uint32, coords []Coord, what string) {
		p.printf("\n[%s]\nNumberCells=%d\nCellHeader=X\tY\n", section, n)
		if !verbose {
			p.printf("... use --verbose to visualize %s Entries ...\n", what)
			return
		}
		for _, xy := range coords {
			p.printf("%d\t%d\n", xy.X, xy.Y)
		}
	}
	printCoords("MASKS", c.NumMasked, c.Masked, "Masked")
	printCoords("OUTLIERS", c.NumOutlier, c.Outliers, "Outlier")
	p.printf("\n[MODIFIED]\nNumberCells=0\nCellHeader=X\tY\tORIGMEAN\n")
	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
