// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package fasta reads reference sequences used to orient marker alleles.
// See http://www.htslib.org/doc/faidx.html. A FASTA file holds named
// sequences that may be wrapped over several lines:
//
// >chr7
// ACGTAC
// GAGGAC
// >chr8
// ACGT
//
// The sequence name is the text after '>' up to the first space.
package fasta

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Fasta is a set of named sequences.
type Fasta interface {
	// Get returns the bases of seqName in the 0-based half-open interval
	// [start, end). It is safe for concurrent use.
	Get(seqName string, start, end uint64) (string, error)

	// Len returns the length of seqName.
	Len(seqName string) (uint64, error)

	// SeqNames returns the sequence names in file order.
	SeqNames() []string
}

func checkRange(seqName string, start, end, length uint64) error {
	if end <= start {
		return errors.Errorf("%s: start %d must be less than end %d", seqName, start, end)
	}
	if end > length {
		return errors.Errorf("%s: end %d is past the sequence length %d", seqName, end, length)
	}
	return nil
}

type memFasta struct {
	seqs  map[string][]byte
	names []string
}

// New reads all sequences from r into memory.
func New(r io.Reader) (Fasta, error) {
	f := &memFasta{seqs: map[string][]byte{}}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<20), 1<<30)
	var (
		name string
		seq  []byte
		open bool
	)
	flush := func() {
		if open {
			f.seqs[name] = seq
			f.names = append(f.names, name)
		}
	}
	for sc.Scan() {
		line := bytes.TrimRight(sc.Bytes(), "\r")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			flush()
			name = string(bytes.SplitN(line[1:], []byte{' '}, 2)[0])
			if _, dup := f.seqs[name]; dup || name == "" {
				return nil, errors.Errorf("malformed FASTA: sequence name %q", name)
			}
			seq, open = nil, true
			continue
		}
		if !open {
			return nil, errors.New("malformed FASTA: sequence data before the first name")
		}
		seq = append(seq, line...)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read FASTA")
	}
	flush()
	return f, nil
}

func (f *memFasta) Get(seqName string, start, end uint64) (string, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found: %s", seqName)
	}
	if err := checkRange(seqName, start, end, uint64(len(s))); err != nil {
		return "", err
	}
	return string(s[start:end]), nil
}

func (f *memFasta) Len(seqName string) (uint64, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found: %s", seqName)
	}
	return uint64(len(s)), nil
}

func (f *memFasta) SeqNames() []string { return f.names }
