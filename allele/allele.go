// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package allele orients the two alleles of a marker against the reference
// genome and lays them out as VCF REF/ALT alleles.
//
// Marker flanks are written as LEFT[A/B]RIGHT, where A and B are the two
// alleles in the order of the annotation's Allele A and Allele B columns.
// An insertion/deletion marker has "-" as one of its alleles.
package allele

import (
	"strings"

	"github.com/grailbio/microarray/encoding/fasta"
	"github.com/pkg/errors"
)

// ErrMalformedFlank is returned for a flank that is not of the form
// LEFT[A/B]RIGHT.
var ErrMalformedFlank = errors.New("flank sequence is malformed")

// Flank is a parsed flank sequence.
type Flank struct {
	Left, A, B, Right string
}

// ParseFlank parses s, uppercasing it.
func ParseFlank(s string) (Flank, error) {
	s = strings.ToUpper(s)
	left := strings.IndexByte(s, '[')
	middle := strings.IndexByte(s, '/')
	right := strings.IndexByte(s, ']')
	if left < 0 || middle < left || right < middle {
		return Flank{}, errors.Wrapf(ErrMalformedFlank, "%s", s)
	}
	return Flank{Left: s[:left], A: s[left+1 : middle], B: s[middle+1 : right], Right: s[right+1:]}, nil
}

// String implements fmt.Stringer.
func (f Flank) String() string {
	return f.Left + "[" + f.A + "/" + f.B + "]" + f.Right
}

// IsIndel reports whether one of the alleles is a deletion.
func (f Flank) IsIndel() bool { return f.A == "-" || f.B == "-" }

// WithAllele returns the flank with allele A (i == 1) or allele B (i == 2)
// in place of the brackets. A "-" allele contributes no bases.
func (f Flank) WithAllele(i int) string {
	a := f.A
	if i == 2 {
		a = f.B
	}
	if a == "-" {
		a = ""
	}
	return f.Left + a + f.Right
}

var complement [256]byte

func init() {
	for i := range complement {
		complement[i] = byte(i)
	}
	for _, p := range []string{"AT", "CG", "RY", "KM", "BV", "DH"} {
		complement[p[0]], complement[p[1]] = p[1], p[0]
		lo0, lo1 := p[0]+'a'-'A', p[1]+'a'-'A'
		complement[lo0], complement[lo1] = lo1, lo0
	}
}

// ReverseComplement returns the reverse complement of s. Bases outside the
// IUPAC alphabet, and "-", are kept as they are.
func ReverseComplement(s string) string {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		b[len(s)-1-i] = complement[s[i]]
	}
	return string(b)
}

// ReverseComplement returns the flank as read from the other strand. Allele
// A stays first.
func (f Flank) ReverseComplement() Flank {
	return Flank{
		Left:  ReverseComplement(f.Right),
		A:     ReverseComplement(f.A),
		B:     ReverseComplement(f.B),
		Right: ReverseComplement(f.Left),
	}
}

// BIndex values returned by AlleleBIndex.
const (
	// BIsRef means allele B matches the reference.
	BIsRef = 0
	// AIsRef means allele A matches the reference.
	AIsRef = 1
	// NeitherRef means the reference matches neither allele and is written
	// as a third allele.
	NeitherRef = 2
)

// AlleleBIndex returns the VCF allele index of allele B given the reference
// base. If both alleles match the reference, B wins.
func AlleleBIndex(ref byte, a, b string) int {
	switch {
	case len(b) > 0 && b[0] == ref:
		return BIsRef
	case len(a) > 0 && a[0] == ref:
		return AIsRef
	}
	return NeitherRef
}

// AlleleAIndex returns the VCF allele index of allele A given the index of
// allele B.
func AlleleAIndex(bIdx int) int {
	if bIdx == AIsRef {
		return 0
	}
	return 1
}

// ToVCF returns the VCF alleles, REF first.
func ToVCF(ref, a, b string, bIdx int) ([]string, error) {
	switch bIdx {
	case BIsRef:
		return []string{b, a}, nil
	case AIsRef:
		return []string{a, b}, nil
	case NeitherRef:
		return []string{ref, a, b}, nil
	}
	return nil, errors.Errorf("invalid allele B index %d", bIdx)
}

// SNP orients a single nucleotide marker at the 0-based position pos. It
// returns the VCF alleles and the index of allele B among them.
func SNP(f Flank, ref fasta.Fasta, chrom string, pos uint64) (alleles []string, bIdx int, err error) {
	base, err := fasta.Base(ref, chrom, pos)
	if err != nil {
		return nil, 0, err
	}
	bIdx = AlleleBIndex(base, f.A, f.B)
	alleles, err = ToVCF(string(base), f.A, f.B, bIdx)
	return alleles, bIdx, err
}
