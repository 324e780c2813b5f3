package affytest

import "math"

// Param is a Calvin parameter fixture.
type Param struct {
	Name  string
	MIME  string
	Value []byte
}

// IntParam returns a text/x-calvin-integer-32 parameter.
func IntParam(name string, v int32) Param {
	return Param{Name: name, MIME: "text/x-calvin-integer-32", Value: Scalar(uint32(v))}
}

// Int8Param returns a text/x-calvin-integer-8 parameter.
func Int8Param(name string, v int8) Param {
	return Param{Name: name, MIME: "text/x-calvin-integer-8", Value: Scalar(uint32(uint8(v)))}
}

// FloatParam returns a text/x-calvin-float parameter.
func FloatParam(name string, v float32) Param {
	return Param{Name: name, MIME: "text/x-calvin-float", Value: Scalar(math.Float32bits(v))}
}

// ASCIIParam returns a text/ascii parameter.
func ASCIIParam(name, v string) Param {
	return Param{Name: name, MIME: "text/ascii", Value: []byte(v)}
}

// TextParam returns a text/plain (UTF-16) parameter.
func TextParam(name, v string) Param {
	return Param{Name: name, MIME: "text/plain", Value: Wide(v)}
}

// Header is a Calvin data header fixture.
type Header struct {
	TypeID, GUID, DateTime, Locale string
	Params                         []Param
	Parents                        []Header
}

// Column is a Calvin column fixture.
type Column struct {
	Name string
	Type int8
	Size int32
}

// Set is a Calvin data set fixture. Each row must be exactly as wide as the
// sum of the column sizes.
type Set struct {
	Name    string
	Params  []Param
	Columns []Column
	Rows    [][]byte
	// Gap is a number of filler bytes between the set header and its rows.
	Gap int
}

// Group is a Calvin data group fixture.
type Group struct {
	Name string
	Sets []Set
}

// CalvinFile lays out a complete Calvin file. Each data set's rows follow its
// header, and every forward link points just past the structure it ends.
func CalvinFile(h Header, groups []Group) []byte {
	b := New()
	b.U8(59).U8(1).I32(int32(len(groups)))
	firstGroup := b.Len()
	b.U32(0)
	b.header(h)
	b.PutU32(firstGroup, uint32(b.Len()))
	for gi, g := range groups {
		next := b.Len()
		b.U32(0)
		firstSet := b.Len()
		b.U32(0)
		b.I32(int32(len(g.Sets))).Str16(g.Name)
		b.PutU32(firstSet, uint32(b.Len()))
		for _, s := range g.Sets {
			firstRow := b.Len()
			b.U32(0)
			nextSet := b.Len()
			b.U32(0)
			b.Str16(s.Name)
			b.params(s.Params)
			b.U32(uint32(len(s.Columns)))
			for _, c := range s.Columns {
				b.Str16(c.Name).I8(c.Type).I32(c.Size)
			}
			b.U32(uint32(len(s.Rows)))
			b.Raw(make([]byte, s.Gap))
			b.PutU32(firstRow, uint32(b.Len()))
			for _, r := range s.Rows {
				b.Raw(r)
			}
			b.PutU32(nextSet, uint32(b.Len()))
		}
		if gi+1 < len(groups) {
			b.PutU32(next, uint32(b.Len()))
		}
	}
	return b.Bytes()
}

func (b *Builder) params(params []Param) {
	b.I32(int32(len(params)))
	for _, p := range params {
		b.Str16(p.Name)
		b.I32(int32(len(p.Value))).Raw(p.Value)
		b.Str16(p.MIME)
	}
}

func (b *Builder) header(h Header) {
	b.Str8(h.TypeID).Str8(h.GUID).Str16(h.DateTime).Str16(h.Locale)
	b.params(h.Params)
	b.I32(int32(len(h.Parents)))
	for _, p := range h.Parents {
		b.header(p)
	}
}

// IDWidth is the probe set name capacity of the genotype fixtures.
const IDWidth = 16

// GenotypeColumns returns the column layout of an apt Genotype data set.
// Axiom files store log ratio and strength; older arrays store the two
// allele signals.
func GenotypeColumns(axiom bool) []Column {
	third, fourth := "Signal A", "Signal B"
	if axiom {
		third, fourth = "Log Ratio", "Strength"
	}
	return []Column{
		{Name: "ProbeSetName", Type: 7, Size: 4 + IDWidth},
		{Name: "Call", Type: 1, Size: 1},
		{Name: "Confidence", Type: 6, Size: 4},
		{Name: third, Type: 6, Size: 4},
		{Name: fourth, Type: 6, Size: 4},
		{Name: "Forced Call", Type: 1, Size: 1},
	}
}

// GenotypeRow encodes one row for the GenotypeColumns layout.
func GenotypeRow(id string, call uint8, conf, v1, v2 float32) []byte {
	b := New()
	b.I32(int32(len(id)))
	pad := make([]byte, IDWidth)
	copy(pad, id)
	b.Raw(pad).U8(call).F32(conf).F32(v1).F32(v2).U8(call)
	return b.Bytes()
}

// GenotypeCHP returns a minimal CHP file with one Genotype data set.
func GenotypeCHP(axiom bool, rows ...[]byte) []byte {
	return CalvinFile(Header{
		TypeID: "affymetrix-multi-data-type-analysis",
		GUID:   "0000-guid",
		Locale: "en-US",
		Params: []Param{ASCIIParam("program-name", "apt-probeset-genotype")},
	}, []Group{{
		Name: "MultiData",
		Sets: []Set{{Name: "Genotype", Columns: GenotypeColumns(axiom), Rows: rows}},
	}})
}
