package genotype

import (
	"io"

	"github.com/grailbio/microarray/encoding/calvin"
	"github.com/pkg/errors"
)

const (
	multiDataType = "affymetrix-multi-data-type-analysis"
	multiData     = "MultiData"
	genotypeSet   = "Genotype"
)

type binarySample struct {
	file   *calvin.File
	cursor *calvin.Cursor
	// axiom is set when intensities are stored as log ratio and strength
	// rather than as the two allele signals.
	axiom bool
}

// BinarySource reads CHP files in lockstep, one row of each per probe set.
type BinarySource struct {
	samples []binarySample
	names   []string
}

// NewBinarySource prepares a lockstep reader over the Genotype data sets of
// the given CHP files. The files' streams must stay open until the source is
// no longer used.
func NewBinarySource(files []*calvin.File) (*BinarySource, error) {
	src := &BinarySource{
		samples: make([]binarySample, len(files)),
		names:   make([]string, len(files)),
	}
	for i, f := range files {
		if f.Header.TypeID != multiDataType {
			return nil, errors.Errorf("AGCC file %s does not contain multi data type analysis", f.Path)
		}
		if len(f.Groups) == 0 || f.Groups[0].Name != multiData {
			return nil, errors.Errorf("AGCC file %s does not contain multi data", f.Path)
		}
		if len(f.Groups[0].Sets) == 0 || f.Groups[0].Sets[0].Name != genotypeSet {
			return nil, errors.Errorf("AGCC file %s does not contain genotype data", f.Path)
		}
		ds := &f.Groups[0].Sets[0]
		col := func(i int) string {
			if i < len(ds.Columns) {
				return ds.Columns[i].Name
			}
			return ""
		}
		if col(0) != "ProbeSetName" || col(1) != "Call" || col(2) != "Confidence" || col(5) != "Forced Call" {
			return nil, errors.Errorf("AGCC file %s does not contain genotype data in the expected format", f.Path)
		}
		if err := checkColumnTypes(ds); err != nil {
			return nil, errors.Wrapf(err, "AGCC file %s", f.Path)
		}
		s := &src.samples[i]
		switch {
		case col(3) == "Log Ratio" && col(4) == "Strength":
			s.axiom = true
		case col(3) == "Signal A" && col(4) == "Signal B":
		default:
			return nil, errors.Errorf("AGCC file %s does not contain intensities in the expected format", f.Path)
		}
		var err error
		if s.cursor, err = calvin.NewCursor(ds); err != nil {
			return nil, errors.Wrapf(err, "%s", f.Path)
		}
		if err := s.cursor.SeekToFirstRow(); err != nil {
			return nil, errors.Wrapf(err, "%s", f.Path)
		}
		s.file = f
		src.names[i] = f.DisplayName
	}
	return src, nil
}

// genotypeTypes lists the accepted types of the first five Genotype columns.
var genotypeTypes = [][]calvin.Type{
	{calvin.String},
	{calvin.Int8, calvin.Uint8},
	{calvin.Float},
	{calvin.Float},
	{calvin.Float},
}

func checkColumnTypes(ds *calvin.DataSet) error {
	for i, types := range genotypeTypes {
		c := ds.Columns[i]
		ok := false
		for _, t := range types {
			ok = ok || c.Type == t
		}
		if !ok {
			return errors.Errorf("genotype column %s has type %v", c.Name, c.Type)
		}
	}
	return nil
}

// Samples implements Source.
func (src *BinarySource) Samples() []string { return src.names }

// Fields implements Source.
func (src *BinarySource) Fields() Fields { return Calls | Confidences | Intensities }

// Next implements Source.
func (src *BinarySource) Next(r *Record) error {
	for i := range src.samples {
		c := src.samples[i].cursor
		if c.Row() >= int(c.DataSet().RowCount) {
			return io.EOF
		}
	}
	for i := range src.samples {
		s := &src.samples[i]
		c := s.cursor
		if err := c.Next(); err != nil {
			return errors.Wrapf(err, "%s", s.file.Path)
		}
		if err := checkID(r, c.String(0), i == 0); err != nil {
			return errors.Wrapf(err, "%s row %d", s.file.Path, c.Row())
		}
		call, err := DecodeCall(c.Uint8(1))
		if err != nil {
			return errors.Wrapf(err, "%s probe set %s", s.file.Path, r.ProbeSetID)
		}
		r.Calls[i] = call
		r.Conf[i] = c.Float32(2)
		if s.axiom {
			r.Delta[i], r.Size[i] = c.Float32(3), c.Float32(4)
			r.NormX[i], r.NormY[i] = ToSignal(r.Delta[i], r.Size[i])
		} else {
			r.NormX[i], r.NormY[i] = c.Float32(3), c.Float32(4)
			r.Delta[i], r.Size[i] = FromSignal(r.NormX[i], r.NormY[i])
		}
	}
	return nil
}

// Close implements Source.
func (src *BinarySource) Close() error { return nil }
