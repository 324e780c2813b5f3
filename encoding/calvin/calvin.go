// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package calvin reads Affymetrix Command Console (AGCC, also known as
// "Calvin") generic data files, such as CHP genotype results and CEL
// intensities.
//
// A Calvin file starts with a small file header, followed by a recursive
// data header (typed parameters plus the headers of the files it was derived
// from), followed by a forward-linked list of data groups. Each group holds a
// forward-linked list of data sets, and each data set is a table of
// fixed-width typed rows. Reading a file decodes all of the structure
// eagerly but leaves row payloads on disk; rows are decoded on demand with a
// Cursor.
package calvin

import (
	"math"
	"path"
	"strings"

	"github.com/grailbio/microarray/encoding/affyio"
	"github.com/pkg/errors"
)

const (
	// Magic is the first byte of every Calvin file.
	Magic = 59
	// Version is the only supported file version.
	Version = 1

	dropPrefix = "affymetrix-algorithm-param-apt-opt-cel"
)

var (
	// ErrUnknownTypeTag is returned for an unrecognized parameter MIME type or
	// column type tag.
	ErrUnknownTypeTag = errors.New("unknown type tag")
	// ErrRowExhausted is returned by Cursor.Next after the last row.
	ErrRowExhausted = errors.New("no more rows in data set")
)

// Type is the value type of a parameter or a column.
type Type int8

// The closed set of Calvin value types. Column type tags use the same
// numbering.
const (
	Int8 Type = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Float
	String
	WString
)

var typeNames = [...]string{"int8", "uint8", "int16", "uint16", "int32", "uint32", "float", "string", "wstring"}

// String implements fmt.Stringer.
func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "invalid"
	}
	return typeNames[t]
}

var mimeTypes = map[string]Type{
	"text/x-calvin-integer-8":           Int8,
	"text/x-calvin-unsigned-integer-8":  Uint8,
	"text/x-calvin-integer-16":          Int16,
	"text/x-calvin-unsigned-integer-16": Uint16,
	"text/x-calvin-integer-32":          Int32,
	"text/x-calvin-unsigned-integer-32": Uint32,
	"text/x-calvin-float":               Float,
	"text/ascii":                        String,
	"text/plain":                        WString,
}

// Parameter is one typed name/value pair.
type Parameter struct {
	Name     string
	MIMEType string
	Type     Type
	// Value holds the raw bytes. Numeric values occupy a 4-byte big-endian
	// slot; text/plain values are big-endian UTF-16.
	Value []byte
	// Dropped is set when the value was discarded at read time.
	Dropped bool
}

func (p *Parameter) scalar() (uint32, error) {
	if len(p.Value) < 4 {
		return 0, errors.Errorf("parameter %s: %d-byte value is too short for %v", p.Name, len(p.Value), p.Type)
	}
	return affyio.Uint32(p.Value), nil
}

// Int returns the value of a signed or unsigned integer parameter.
func (p *Parameter) Int() (int64, error) {
	v, err := p.scalar()
	if err != nil {
		return 0, err
	}
	switch p.Type {
	case Int8:
		return int64(int8(v)), nil
	case Uint8:
		return int64(uint8(v)), nil
	case Int16:
		return int64(int16(v)), nil
	case Uint16:
		return int64(uint16(v)), nil
	case Int32:
		return int64(int32(v)), nil
	case Uint32:
		return int64(v), nil
	}
	return 0, errors.Errorf("parameter %s has type %v, not an integer", p.Name, p.Type)
}

// Float returns the value of a float parameter.
func (p *Parameter) Float() (float32, error) {
	if p.Type != Float {
		return 0, errors.Errorf("parameter %s has type %v, not float", p.Name, p.Type)
	}
	v, err := p.scalar()
	return math.Float32frombits(v), err
}

// Text returns the value of a text/ascii or text/plain parameter.
func (p *Parameter) Text() (string, error) {
	switch p.Type {
	case String:
		return strings.TrimRight(string(p.Value), "\x00"), nil
	case WString:
		return affyio.DecodeString16(p.Value), nil
	}
	return "", errors.Errorf("parameter %s has type %v, not text", p.Name, p.Type)
}

// DataHeader describes a file and, recursively, the files it was generated
// from.
type DataHeader struct {
	TypeID     string
	GUID       string
	DateTime   string
	Locale     string
	Parameters []Parameter
	Parents    []DataHeader
}

// Find returns the parameter with the given name, or nil.
func (h *DataHeader) Find(name string) *Parameter {
	return findParameter(h.Parameters, name)
}

// FindParent returns the first direct parent with the given type id, or nil.
func (h *DataHeader) FindParent(typeID string) *DataHeader {
	for i := range h.Parents {
		if h.Parents[i].TypeID == typeID {
			return &h.Parents[i]
		}
	}
	return nil
}

// NumParameters returns the number of parameters in the whole header tree.
func (h *DataHeader) NumParameters() int {
	n := len(h.Parameters)
	for i := range h.Parents {
		n += h.Parents[i].NumParameters()
	}
	return n
}

func findParameter(params []Parameter, name string) *Parameter {
	for i := range params {
		if params[i].Name == name {
			return &params[i]
		}
	}
	return nil
}

// Column describes one column of a data set.
type Column struct {
	Name string
	Type Type
	Size int32
}

// DataSet is a table of fixed-width rows. Only its layout is decoded; rows
// are read with a Cursor.
type DataSet struct {
	FirstRow   uint32
	Next       uint32
	Name       string
	Parameters []Parameter
	Columns    []Column
	RowCount   uint32
	// Offsets[i] is the byte offset of column i within a row.
	Offsets  []int
	RowWidth int

	s *affyio.Stream
}

// Column returns the index of the named column, or -1.
func (ds *DataSet) Column(name string) int {
	for i, c := range ds.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Find returns the data set parameter with the given name, or nil.
func (ds *DataSet) Find(name string) *Parameter {
	return findParameter(ds.Parameters, name)
}

// DataGroup is a named list of data sets.
type DataGroup struct {
	Next     uint32
	FirstSet uint32
	Name     string
	Sets     []DataSet
}

// Set returns the named data set of the group, or nil.
func (g *DataGroup) Set(name string) *DataSet {
	for i := range g.Sets {
		if g.Sets[i].Name == name {
			return &g.Sets[i]
		}
	}
	return nil
}

// File is a decoded Calvin file. Its data sets keep a reference to the
// stream they were read from, so the stream must stay open for as long as
// rows are being decoded.
type File struct {
	Path        string
	Magic       uint8
	Version     uint8
	FirstGroup  uint32
	Header      DataHeader
	Groups      []DataGroup
	Size        int64
	DisplayName string
}

// Group returns the named data group, or nil.
func (f *File) Group(name string) *DataGroup {
	for i := range f.Groups {
		if f.Groups[i].Name == name {
			return &f.Groups[i]
		}
	}
	return nil
}

// Opts controls Read.
type Opts struct {
	// DropAlgorithmParams discards the values of the per-CEL algorithm
	// parameters that apt copies into every CHP header. There are thousands
	// of them when a file is the result of a batch run.
	DropAlgorithmParams bool
}

// DefaultOpts keeps every parameter.
var DefaultOpts = Opts{}

// Read decodes the structure of a Calvin file. The path is recorded for
// presentation only.
func Read(s *affyio.Stream, filePath string, opts Opts) (*File, error) {
	f := &File{Path: filePath}
	var err error
	if f.Magic, err = s.ReadUint8(); err != nil {
		return nil, errors.Wrapf(err, "%s: read magic", filePath)
	}
	if f.Magic != Magic {
		return nil, errors.Wrapf(affyio.ErrBadMagic, "AGCC file %s magic number is %d while it should be %d", filePath, f.Magic, Magic)
	}
	if f.Version, err = s.ReadUint8(); err != nil {
		return nil, errors.Wrapf(err, "%s: read version", filePath)
	}
	if f.Version != Version {
		return nil, errors.Wrapf(affyio.ErrUnsupportedVersion, "AGCC file %s has version %d", filePath, f.Version)
	}
	nGroups, err := s.ReadInt32()
	if err != nil {
		return nil, errors.Wrapf(err, "%s: read group count", filePath)
	}
	if f.FirstGroup, err = s.ReadUint32(); err != nil {
		return nil, errors.Wrapf(err, "%s: read first group offset", filePath)
	}
	r := reader{s: s, opts: opts}
	if err := r.header(&f.Header); err != nil {
		return nil, errors.Wrapf(err, "%s: read data header", filePath)
	}
	if err := s.SeekTo(int64(f.FirstGroup)); err != nil {
		return nil, errors.Wrapf(err, "%s", filePath)
	}
	if nGroups < 0 {
		return nil, errors.Errorf("%s: negative group count %d", filePath, nGroups)
	}
	if err := s.CheckCount("data groups", int64(nGroups), minGroupSize); err != nil {
		return nil, errors.Wrapf(err, "%s", filePath)
	}
	f.Groups = make([]DataGroup, nGroups)
	for i := range f.Groups {
		if err := r.group(&f.Groups[i]); err != nil {
			return nil, errors.Wrapf(err, "%s: read data group %d", filePath, i)
		}
	}
	if !s.AtEnd() {
		return nil, errors.Wrapf(affyio.ErrTrailingData, "AGCC reader did not reach the end of file %s at position %d", filePath, s.Offset())
	}
	if f.Size, err = s.Size(); err != nil {
		return nil, errors.Wrapf(err, "%s", filePath)
	}
	f.DisplayName = DisplayName(filePath)
	return f, nil
}

// DisplayName derives a sample name from a CHP file path: the base name
// without the ".chp" extension and without a trailing genotyping algorithm
// suffix.
func DisplayName(filePath string) string {
	name := path.Base(filePath)
	if !strings.HasSuffix(name, ".chp") {
		return name
	}
	name = strings.TrimSuffix(name, ".chp")
	for _, alg := range []string{".AxiomGT1", ".birdseed-v2", ".brlmm-p"} {
		if strings.HasSuffix(name, alg) {
			return strings.TrimSuffix(name, alg)
		}
	}
	return name
}

// Smallest encodings of the counted structures: every string empty and every
// list empty.
const (
	minParameterSize = 3 * 4
	minHeaderSize    = 6 * 4
	minGroupSize     = 4 * 4
	minDataSetSize   = 6 * 4
	minColumnSize    = 4 + 1 + 4
)

type reader struct {
	s    *affyio.Stream
	opts Opts
}

func (r *reader) count(what string) (int, error) {
	n, err := r.s.ReadInt32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.Errorf("negative %s count %d at offset %d", what, n, r.s.Offset()-4)
	}
	return int(n), nil
}

func (r *reader) parameter(p *Parameter) (err error) {
	if p.Name, err = r.s.ReadString16(); err != nil {
		return err
	}
	if p.Value, err = r.s.ReadString8(); err != nil {
		return err
	}
	if p.MIMEType, err = r.s.ReadString16(); err != nil {
		return err
	}
	t, ok := mimeTypes[p.MIMEType]
	if !ok {
		return errors.Wrapf(ErrUnknownTypeTag, "parameter %s: MIME type %q not allowed", p.Name, p.MIMEType)
	}
	p.Type = t
	if r.opts.DropAlgorithmParams && strings.HasPrefix(p.Name, dropPrefix) {
		p.Value = nil
		p.Dropped = true
	}
	return nil
}

func (r *reader) parameters() ([]Parameter, error) {
	n, err := r.count("parameter")
	if err != nil {
		return nil, err
	}
	if err := r.s.CheckCount("parameters", int64(n), minParameterSize); err != nil {
		return nil, err
	}
	params := make([]Parameter, n)
	for i := range params {
		if err := r.parameter(&params[i]); err != nil {
			return nil, errors.Wrapf(err, "parameter %d", i)
		}
	}
	return params, nil
}

func (r *reader) header(h *DataHeader) error {
	typeID, err := r.s.ReadString8()
	if err != nil {
		return err
	}
	guid, err := r.s.ReadString8()
	if err != nil {
		return err
	}
	h.TypeID, h.GUID = string(typeID), string(guid)
	if h.DateTime, err = r.s.ReadString16(); err != nil {
		return err
	}
	if h.Locale, err = r.s.ReadString16(); err != nil {
		return err
	}
	if h.Parameters, err = r.parameters(); err != nil {
		return err
	}
	n, err := r.count("parent")
	if err != nil {
		return err
	}
	if err := r.s.CheckCount("parent headers", int64(n), minHeaderSize); err != nil {
		return err
	}
	h.Parents = make([]DataHeader, n)
	for i := range h.Parents {
		if err := r.header(&h.Parents[i]); err != nil {
			return errors.Wrapf(err, "parent header %d", i)
		}
	}
	return nil
}

func (r *reader) group(g *DataGroup) (err error) {
	if g.Next, err = r.s.ReadUint32(); err != nil {
		return err
	}
	if g.FirstSet, err = r.s.ReadUint32(); err != nil {
		return err
	}
	n, err := r.count("data set")
	if err != nil {
		return err
	}
	if g.Name, err = r.s.ReadString16(); err != nil {
		return err
	}
	if err := r.s.SeekTo(int64(g.FirstSet)); err != nil {
		return err
	}
	if err := r.s.CheckCount("data sets", int64(n), minDataSetSize); err != nil {
		return err
	}
	g.Sets = make([]DataSet, n)
	for i := range g.Sets {
		if err := r.dataSet(&g.Sets[i]); err != nil {
			return errors.Wrapf(err, "group %s: data set %d", g.Name, i)
		}
	}
	if g.Next != 0 {
		return r.s.SeekTo(int64(g.Next))
	}
	return nil
}

func (r *reader) dataSet(ds *DataSet) (err error) {
	ds.s = r.s
	if ds.FirstRow, err = r.s.ReadUint32(); err != nil {
		return err
	}
	if ds.Next, err = r.s.ReadUint32(); err != nil {
		return err
	}
	if ds.Name, err = r.s.ReadString16(); err != nil {
		return err
	}
	if ds.Parameters, err = r.parameters(); err != nil {
		return err
	}
	nCols, err := r.s.ReadUint32()
	if err != nil {
		return err
	}
	if err := r.s.CheckCount("columns", int64(nCols), minColumnSize); err != nil {
		return err
	}
	ds.Columns = make([]Column, nCols)
	ds.Offsets = make([]int, nCols)
	for i := range ds.Columns {
		c := &ds.Columns[i]
		if c.Name, err = r.s.ReadString16(); err != nil {
			return err
		}
		t, err := r.s.ReadInt8()
		if err != nil {
			return err
		}
		c.Type = Type(t)
		if c.Size, err = r.s.ReadInt32(); err != nil {
			return err
		}
		if c.Size < 0 {
			return errors.Errorf("column %s has negative width %d", c.Name, c.Size)
		}
		ds.Offsets[i] = ds.RowWidth
		ds.RowWidth += int(c.Size)
	}
	if ds.RowCount, err = r.s.ReadUint32(); err != nil {
		return err
	}
	if ds.Next != 0 {
		return r.s.SeekTo(int64(ds.Next))
	}
	return nil
}
