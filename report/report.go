// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package report reads and writes the per-sample summaries that accompany a
// genotyping run: the computed genders of an apt report.txt file and the
// scanner DAT headers of CEL files.
package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"
)

// Gender codes, as written to sex files.
const (
	Unknown = 0
	Male    = 1
	Female  = 2
)

// Sample is one line of a report file.
type Sample struct {
	CELFile string
	Gender  int
}

func parseGender(s string) int {
	switch s {
	case "male":
		return Male
	case "female":
		return Female
	}
	return Unknown
}

// ReadGenders reads the computed genders of an apt-probeset-genotype
// report.txt file. Its second column must be computed_gender.
func ReadGenders(in io.Reader) ([]Sample, error) {
	r := tsv.NewReader(in)
	r.Comment = '#'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	header, err := r.Reader.Read()
	if err == io.EOF || (err == nil && len(header) < 2) {
		return nil, errors.New("missing information in report file")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read report header")
	}
	if header[1] != "computed_gender" {
		return nil, errors.Errorf("second column of report file is %s, not computed_gender", header[1])
	}
	var samples []Sample
	for {
		row, err := r.Reader.Read()
		if err == io.EOF {
			return samples, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "read report")
		}
		if len(row) < 2 {
			return nil, errors.Errorf("missing information in report file line %d", len(samples)+2)
		}
		samples = append(samples, Sample{CELFile: row[0], Gender: parseGender(row[1])})
	}
}

// WriteSex writes one "sample<TAB>gender code" line per sample, with the
// ".CEL" extension removed from the sample names.
func WriteSex(w io.Writer, samples []Sample) error {
	out := tsv.NewWriter(w)
	for _, s := range samples {
		out.WriteString(strings.TrimSuffix(s.CELFile, ".CEL"))
		out.WriteString(strconv.Itoa(s.Gender))
		if err := out.EndLine(); err != nil {
			return err
		}
	}
	return out.Flush()
}
