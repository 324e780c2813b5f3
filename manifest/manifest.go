// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package manifest reads Affymetrix NetAffx annotation files (annot.csv),
// which give the genomic position, strand, flank sequence and alleles of
// each probe set.
package manifest

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"
)

// ErrManifestFormat is returned for an annotation file that lacks a
// required column or is otherwise malformed.
var ErrManifestFormat = errors.New("malformed manifest")

// Null is the token NetAffx writes for an absent value.
const Null = "---"

const versionPrefix = "#%netaffx-annotation-tabular-format-version="

// Strand of a probe set. Unknown is used when the annotation has none.
type Strand int8

const (
	Unknown Strand = -1
	Forward Strand = 0
	Reverse Strand = 1
)

func parseStrand(s string) Strand {
	switch s {
	case "+":
		return Forward
	case "-":
		return Reverse
	}
	return Unknown
}

// Record is one probe set of the manifest. Absent string fields are empty.
type Record struct {
	ProbeSetID string
	AffySNPID  string
	DbSNPRSID  string
	Chromosome string
	// Position is the 1-based physical position, 0 if absent.
	Position int
	Strand   Strand
	// Flank is the flank sequence with the bracketed alleles in
	// Allele A/Allele B order.
	Flank   string
	AlleleA string
	AlleleB string
}

// Manifest is a loaded annotation file.
type Manifest struct {
	Records []Record
	index   map[string]int
}

// Lookup returns the record of a probe set.
func (m *Manifest) Lookup(id string) (*Record, bool) {
	i, ok := m.index[id]
	if !ok {
		return nil, false
	}
	return &m.Records[i], true
}

const (
	colProbeSetID  = "Probe Set ID"
	colAffySNPID   = "Affy SNP ID"
	colDbSNPRSID   = "dbSNP RS ID"
	colChromosome  = "Chromosome"
	colPosition    = "Physical Position"
	colPositionEnd = "Position End"
	colStrand      = "Strand"
	colFlank       = "Flank"
	colAlleleA     = "Allele A"
	colAlleleB     = "Allele B"
)

// table is an annotation file positioned after its header line.
type table struct {
	comments   []string
	nullStrand string
	header     []string
	cols       map[string]int
	r          *tsv.Reader
}

func openTable(in io.Reader, lookup bool) (*table, error) {
	br := bufio.NewReader(in)
	t := &table{nullStrand: Null, cols: map[string]int{}}
	for {
		c, err := br.Peek(1)
		if err != nil || c[0] != '#' {
			break
		}
		line, err := br.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		switch line {
		case versionPrefix + "1.0":
			t.nullStrand = Null
		case versionPrefix + "1.5":
			t.nullStrand = "+"
		}
		t.comments = append(t.comments, line)
		if err != nil {
			break
		}
	}
	t.r = tsv.NewReader(br)
	t.r.Comma = ','
	t.r.LazyQuotes = true
	t.r.FieldsPerRecord = -1
	t.r.ReuseRecord = false
	header, err := t.r.Reader.Read()
	if err == io.EOF {
		return nil, errors.Wrap(ErrManifestFormat, "empty file")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read manifest header")
	}
	t.header = header
	for i, name := range header {
		if _, ok := t.cols[name]; !ok {
			t.cols[name] = i
		}
	}
	if i, ok := t.cols[colProbeSetID]; !ok || i != 0 {
		return nil, errors.Wrapf(ErrManifestFormat, "%s is not the first column", colProbeSetID)
	}
	required := []string{colFlank, colAlleleA, colAlleleB}
	if lookup {
		required = append(required, colDbSNPRSID, colChromosome, colPosition, colStrand)
	}
	for _, name := range required {
		if _, ok := t.cols[name]; !ok {
			return nil, errors.Wrapf(ErrManifestFormat, "%s missing", name)
		}
	}
	return t, nil
}

// next returns the next data row, or io.EOF.
func (t *table) next() ([]string, error) {
	row, err := t.r.Reader.Read()
	if err != nil {
		if err != io.EOF {
			err = errors.Wrap(err, "read manifest")
		}
		return nil, err
	}
	if len(row) < len(t.header) {
		return nil, errors.Wrapf(ErrManifestFormat, "probe set %s has %d columns, expected %d", row[0], len(row), len(t.header))
	}
	return row, nil
}

// get returns the named column of row, or "" if the column is absent or
// holds the null token.
func (t *table) get(row []string, name string) string {
	i, ok := t.cols[name]
	if !ok || row[i] == Null {
		return ""
	}
	return row[i]
}

// Read loads a manifest for probe set lookup.
func Read(in io.Reader) (*Manifest, error) {
	t, err := openTable(in, true)
	if err != nil {
		return nil, err
	}
	m := &Manifest{index: map[string]int{}}
	for {
		row, err := t.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rec := Record{
			ProbeSetID: row[0],
			AffySNPID:  t.get(row, colAffySNPID),
			DbSNPRSID:  t.get(row, colDbSNPRSID),
			Chromosome: t.get(row, colChromosome),
			Strand:     parseStrand(t.get(row, colStrand)),
			Flank:      t.get(row, colFlank),
			AlleleA:    t.get(row, colAlleleA),
			AlleleB:    t.get(row, colAlleleB),
		}
		if p := t.get(row, colPosition); p != "" {
			if rec.Position, err = strconv.Atoi(p); err != nil {
				return nil, errors.Wrapf(ErrManifestFormat, "probe set %s: physical position %q", rec.ProbeSetID, p)
			}
		}
		rec.Flank = orderFlank(rec.Flank, rec.AlleleA, rec.AlleleB)
		if _, ok := m.index[rec.ProbeSetID]; !ok {
			m.index[rec.ProbeSetID] = len(m.Records)
		}
		m.Records = append(m.Records, rec)
	}
	return m, nil
}

// orderFlank swaps the bracketed alleles of flank when they are written in
// B/A order.
func orderFlank(flank, a, b string) string {
	left := strings.IndexByte(flank, '[')
	middle := strings.IndexByte(flank, '/')
	right := strings.IndexByte(flank, ']')
	if left < 0 || middle < left || right < middle || a == b {
		return flank
	}
	if flank[left+1:middle] == b && flank[middle+1:right] == a {
		return flank[:left+1] + a + "/" + b + flank[right:]
	}
	return flank
}
