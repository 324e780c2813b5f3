// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package vcf writes genotype records as VCFv4.2 text, either plain or
// BGZF-compressed. Records are written in the order they are given; the
// writer never seeks back.
package vcf

import (
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bgzf"
	"github.com/pkg/errors"
)

// Value types of INFO and FORMAT fields.
const (
	Integer = "Integer"
	Float   = "Float"
	String  = "String"
)

// Contig is a ##contig header line.
type Contig struct {
	Name   string
	Length uint64
}

// Def is an ##INFO or ##FORMAT header line.
type Def struct {
	ID          string
	Number      string
	Type        string
	Description string
}

func (d Def) line(kind string) string {
	return "##" + kind + "=<ID=" + d.ID + ",Number=" + d.Number + ",Type=" + d.Type +
		",Description=\"" + d.Description + "\">"
}

// Header is the meta-information and sample list of a VCF file.
type Header struct {
	Contigs []Contig
	Infos   []Def
	Formats []Def
	// Meta holds extra "##key=value" lines, written after the definitions.
	Meta    [][2]string
	Samples []string
}

// AddMeta appends a ##key=value line.
func (h *Header) AddMeta(key, value string) {
	h.Meta = append(h.Meta, [2]string{key, value})
}

// HasFormat reports whether the FORMAT field id is defined.
func (h *Header) HasFormat(id string) bool {
	for _, d := range h.Formats {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (h *Header) lines() []string {
	lines := []string{
		"##fileformat=VCFv4.2",
		`##FILTER=<ID=PASS,Description="All filters passed">`,
	}
	for _, c := range h.Contigs {
		lines = append(lines, "##contig=<ID="+c.Name+",length="+strconv.FormatUint(c.Length, 10)+">")
	}
	for _, d := range h.Infos {
		lines = append(lines, d.line("INFO"))
	}
	for _, d := range h.Formats {
		lines = append(lines, d.line("FORMAT"))
	}
	for _, m := range h.Meta {
		lines = append(lines, "##"+m[0]+"="+m[1])
	}
	cols := "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO"
	if len(h.Samples) > 0 {
		cols += "\tFORMAT\t" + strings.Join(h.Samples, "\t")
	}
	return append(lines, cols)
}

// Info is one INFO key/value pair. Value must be an int, int32, string,
// float32 or float64.
type Info struct {
	Key   string
	Value interface{}
}

// Format is a per-sample float FORMAT field.
type Format struct {
	ID     string
	Values []float32
}

// Missing is the allele index of a missing genotype.
const Missing = -1

// Record is one VCF data line.
type Record struct {
	ID    string
	Chrom string
	// Pos is 0-based; it is written 1-based.
	Pos     uint64
	Alleles []string
	Info    []Info
	// GT holds one unphased diploid genotype per sample, or nil when the
	// file has no genotypes.
	GT     [][2]int
	Format []Format
}

// Opts configures a Writer.
type Opts struct {
	// Compress selects BGZF output.
	Compress bool
	// Parallelism is the number of BGZF compression goroutines.
	Parallelism int
}

// Writer writes a VCF file.
type Writer struct {
	h     *Header
	out   *tsv.Writer
	bgzfw *bgzf.Writer
	buf   []byte
}

// NewWriter writes the header to w and returns a writer for the records.
func NewWriter(w io.Writer, h *Header, opts Opts) (*Writer, error) {
	vw := &Writer{h: h}
	if opts.Compress {
		parallelism := opts.Parallelism
		if parallelism <= 0 {
			parallelism = 1
		}
		vw.bgzfw = bgzf.NewWriter(w, parallelism)
		w = vw.bgzfw
	}
	vw.out = tsv.NewWriter(w)
	for _, line := range h.lines() {
		vw.out.WriteString(line)
		if err := vw.out.EndLine(); err != nil {
			return nil, errors.Wrap(err, "write VCF header")
		}
	}
	return vw, nil
}

func (w *Writer) appendFloat(b []byte, v float64) []byte {
	if math.IsNaN(v) {
		return append(b, '.')
	}
	return strconv.AppendFloat(b, v, 'g', 6, 32)
}

func (w *Writer) info(r *Record) (string, error) {
	if len(r.Info) == 0 {
		return ".", nil
	}
	b := w.buf[:0]
	for i, kv := range r.Info {
		if i > 0 {
			b = append(b, ';')
		}
		b = append(b, kv.Key...)
		b = append(b, '=')
		switch v := kv.Value.(type) {
		case int:
			b = strconv.AppendInt(b, int64(v), 10)
		case int32:
			b = strconv.AppendInt(b, int64(v), 10)
		case string:
			b = append(b, v...)
		case float32:
			b = w.appendFloat(b, float64(v))
		case float64:
			b = w.appendFloat(b, v)
		default:
			return "", errors.Errorf("INFO %s: unsupported value type %T", kv.Key, v)
		}
	}
	w.buf = b
	return string(b), nil
}

func (w *Writer) sample(r *Record, i int) string {
	b := w.buf[:0]
	if r.GT != nil {
		for j, a := range r.GT[i] {
			if j > 0 {
				b = append(b, '/')
			}
			if a == Missing {
				b = append(b, '.')
			} else {
				b = strconv.AppendInt(b, int64(a), 10)
			}
		}
	}
	for j, f := range r.Format {
		if j > 0 || r.GT != nil {
			b = append(b, ':')
		}
		b = w.appendFloat(b, float64(f.Values[i]))
	}
	w.buf = b
	return string(b)
}

// Write appends a record. Every per-sample slice must have one entry per
// header sample.
func (w *Writer) Write(r *Record) error {
	n := len(w.h.Samples)
	if r.GT != nil && len(r.GT) != n {
		return errors.Errorf("%s: %d genotypes for %d samples", r.ID, len(r.GT), n)
	}
	for _, f := range r.Format {
		if len(f.Values) != n {
			return errors.Errorf("%s: %d %s values for %d samples", r.ID, len(f.Values), f.ID, n)
		}
	}
	if len(r.Alleles) == 0 {
		return errors.Errorf("%s: no alleles", r.ID)
	}
	info, err := w.info(r)
	if err != nil {
		return err
	}
	id := r.ID
	if id == "" {
		id = "."
	}
	alt := "."
	if len(r.Alleles) > 1 {
		alt = strings.Join(r.Alleles[1:], ",")
	}
	w.out.WriteString(r.Chrom)
	w.out.WriteUint32(uint32(r.Pos + 1))
	w.out.WriteString(id)
	w.out.WriteString(r.Alleles[0])
	w.out.WriteString(alt)
	w.out.WriteString(".")
	w.out.WriteString(".")
	w.out.WriteString(info)
	if n > 0 {
		keys := make([]string, 0, len(r.Format)+1)
		if r.GT != nil {
			keys = append(keys, "GT")
		}
		for _, f := range r.Format {
			keys = append(keys, f.ID)
		}
		w.out.WriteString(strings.Join(keys, ":"))
		for i := 0; i < n; i++ {
			w.out.WriteString(w.sample(r, i))
		}
	}
	return w.out.EndLine()
}

// Close flushes buffered output and, for BGZF output, writes the end of
// file marker. It does not close the underlying writer.
func (w *Writer) Close() error {
	err := w.out.Flush()
	if w.bgzfw != nil {
		if e := w.bgzfw.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
