// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package genotype iterates over per-probe-set genotype calls, confidences
// and allele intensities for a set of samples, either from CHP files or from
// the tab-delimited tables written by apt-probeset-genotype.
//
// Intensities are exposed in two equivalent spaces: the raw allele signals
// (NormX, NormY) and the contrast/size pair (Delta, Size), where
// Delta = log2(NormX) - log2(NormY) and Size = (log2(NormX) + log2(NormY)) / 2.
package genotype

import (
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrProbeSetMismatch is returned when the sources being read in lockstep
	// disagree on the current probe set.
	ErrProbeSetMismatch = errors.New("probe set mismatch")
	// ErrMissingCompanionLine is returned when a "-A" summary line is not
	// immediately followed by the matching "-B" line.
	ErrMissingCompanionLine = errors.New("missing companion summary line")
	// ErrInvalidCall is returned for a genotype call code outside the known
	// set.
	ErrInvalidCall = errors.New("invalid genotype call")
)

// Call is a genotype call. The numeric values match the codes apt writes to
// its calls table.
type Call int8

const (
	// NoCall means the genotyping algorithm did not make a call.
	NoCall Call = -1
	// AA is homozygous for allele A.
	AA Call = 0
	// AB is heterozygous.
	AB Call = 1
	// BB is homozygous for allele B.
	BB Call = 2
)

// String implements fmt.Stringer.
func (c Call) String() string {
	switch c {
	case NoCall:
		return "NC"
	case AA:
		return "AA"
	case AB:
		return "AB"
	case BB:
		return "BB"
	}
	return "invalid"
}

const invalid Call = -2

// binaryCalls maps the low four bits of a CHP call code to a Call.
var binaryCalls = [16]Call{
	invalid, invalid, invalid, invalid, invalid, invalid, AA, BB,
	AB, invalid, invalid, NoCall, invalid, invalid, invalid, invalid,
}

// DecodeCall decodes a CHP call byte. Only the low four bits are
// significant.
func DecodeCall(code byte) (Call, error) {
	c := binaryCalls[code&0x0F]
	if c == invalid {
		return NoCall, errors.Wrapf(ErrInvalidCall, "call code %d", code)
	}
	return c, nil
}

func parseCall(v int64) (Call, error) {
	if v < int64(NoCall) || v > int64(BB) {
		return NoCall, errors.Wrapf(ErrInvalidCall, "call %d", v)
	}
	return Call(v), nil
}

// Fields is a bit set of the per-sample values a Source provides.
type Fields uint8

const (
	// Calls is set when genotype calls are available.
	Calls Fields = 1 << iota
	// Confidences is set when call confidences are available.
	Confidences
	// Intensities is set when allele intensities are available.
	Intensities
)

// Record holds the values of one probe set for all samples. The slices are
// reused from one step to the next.
type Record struct {
	ProbeSetID string
	Calls      []Call
	Conf       []float32
	NormX      []float32
	NormY      []float32
	Delta      []float32
	Size       []float32
}

// NewRecord allocates a record for n samples.
func NewRecord(n int) *Record {
	return &Record{
		Calls: make([]Call, n),
		Conf:  make([]float32, n),
		NormX: make([]float32, n),
		NormY: make([]float32, n),
		Delta: make([]float32, n),
		Size:  make([]float32, n),
	}
}

// Source yields one Record per probe set.
type Source interface {
	// Samples returns the sample names, in column order.
	Samples() []string
	// Fields reports which values Next fills in.
	Fields() Fields
	// Next fills r with the next probe set. It returns io.EOF after the last
	// one.
	Next(r *Record) error
	// Close releases the source. It does not close the underlying files.
	Close() error
}

// FromSignal converts a pair of allele signals to contrast and size.
func FromSignal(a, b float32) (delta, size float32) {
	log2a := math.Log2(float64(a))
	log2b := math.Log2(float64(b))
	return float32(log2a - log2b), float32((log2a + log2b) * 0.5)
}

// ToSignal converts contrast and size back to a pair of allele signals.
func ToSignal(delta, size float32) (a, b float32) {
	return float32(math.Exp2(float64(size) + float64(delta)*0.5)),
		float32(math.Exp2(float64(size) - float64(delta)*0.5))
}

// checkID records the first probe set id seen in a step and verifies that
// later ones agree with it.
func checkID(r *Record, id string, first bool) error {
	if first {
		r.ProbeSetID = id
		return nil
	}
	if r.ProbeSetID != id {
		return errors.Wrapf(ErrProbeSetMismatch, "%s vs %s", r.ProbeSetID, id)
	}
	return nil
}
