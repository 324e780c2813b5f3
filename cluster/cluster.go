// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package cluster loads the per-probe-set genotype cluster posteriors written
// by apt-probeset-genotype and derives B allele frequency and log R ratio
// from them.
//
// Two file dialects are accepted. The brlmm-p/AxiomGT1 dialect starts with
// the header "id\tBB\tAB\tAA\tCV" and stores, per cluster, seven
// comma-separated values in (contrast, size) space. The birdseed dialect has
// no tabs; clusters are separated by ';' and hold space-separated values in
// allele signal space, with the heterozygous cluster omitted for haploid
// probe sets.
package cluster

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrModelFormat is returned for a malformed model file.
var ErrModelFormat = errors.New("malformed SNP posterior models")

const brlmmHeader = "id\tBB\tAB\tAA\tCV"

// Cluster is the Gaussian posterior of one genotype cluster.
type Cluster struct {
	MeanX    float32
	VarX     float32
	NObsMean float32
	NObsVar  float32
	MeanY    float32
	VarY     float32
	CovarXY  float32
}

var nanCluster = Cluster{
	MeanX:    float32(math.NaN()),
	VarX:     float32(math.NaN()),
	NObsMean: float32(math.NaN()),
	NObsVar:  float32(math.NaN()),
	MeanY:    float32(math.NaN()),
	VarY:     float32(math.NaN()),
	CovarXY:  float32(math.NaN()),
}

// Model holds the three genotype clusters of a probe set.
type Model struct {
	ProbeSetID string
	// CopyNumber is 2 unless the id carried an explicit marker.
	CopyNumber int
	AA, AB, BB Cluster
}

// Haploid reports whether the model belongs to the haploid bucket.
func (m *Model) Haploid() bool { return m.CopyNumber != 2 }

type bucket struct {
	models []Model
	index  map[string]int
}

func (b *bucket) get(id string) *Model {
	if i, ok := b.index[id]; ok {
		return &b.models[i]
	}
	return nil
}

// Models is a loaded model file.
type Models struct {
	// Birdseed is set for the birdseed dialect, whose clusters live in
	// allele signal space rather than in (contrast, size) space.
	Birdseed bool
	haploid  bucket
	diploid  bucket
}

// Get returns the model for id in the given ploidy bucket, or nil.
func (ms *Models) Get(haploid bool, id string) *Model {
	if haploid {
		return ms.haploid.get(id)
	}
	return ms.diploid.get(id)
}

// Lookup returns the model for id, preferring the diploid bucket. It returns
// nil if neither bucket holds id.
func (ms *Models) Lookup(id string) *Model {
	if m := ms.diploid.get(id); m != nil {
		return m
	}
	return ms.haploid.get(id)
}

// Len returns the number of haploid and diploid models.
func (ms *Models) Len() (haploid, diploid int) {
	return len(ms.haploid.models), len(ms.diploid.models)
}

type dialect struct {
	clusterSep, fieldSep, copyNumberSep byte
	minFields                           int
}

var (
	brlmm    = dialect{clusterSep: '\t', fieldSep: ',', copyNumberSep: ':', minFields: 7}
	birdseed = dialect{clusterSep: ';', fieldSep: ' ', copyNumberSep: '-', minFields: 6}
)

// Read parses a model file. Lines starting with '#' before the first data
// line are skipped.
func Read(r io.Reader) (*Models, error) {
	ms := &Models{
		haploid: bucket{index: map[string]int{}},
		diploid: bucket{index: map[string]int{}},
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var (
		d       dialect
		started bool
		lineNum int
	)
	for sc.Scan() {
		lineNum++
		line := strings.TrimRight(sc.Text(), "\r")
		if !started {
			if strings.HasPrefix(line, "#") {
				continue
			}
			started = true
			if line == brlmmHeader {
				d = brlmm
				continue
			}
			if strings.IndexByte(line, '\t') >= 0 {
				return nil, errors.Wrapf(ErrModelFormat, "line %d: unrecognized header %q", lineNum, line)
			}
			d = birdseed
			ms.Birdseed = true
		}
		if line == "" {
			continue
		}
		if err := ms.parseLine(d, line); err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNum)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !started {
		return nil, errors.Wrap(ErrModelFormat, "missing information in SNP models file")
	}
	return ms, nil
}

func (ms *Models) parseLine(d dialect, line string) error {
	cols := strings.Split(line, string(d.clusterSep))
	m := Model{ProbeSetID: cols[0], CopyNumber: 2}
	if n := len(m.ProbeSetID); n >= 2 && m.ProbeSetID[n-2] == d.copyNumberSep {
		m.CopyNumber = 0
		if c := m.ProbeSetID[n-1]; c >= '0' && c <= '9' {
			m.CopyNumber = int(c - '0')
		}
		m.ProbeSetID = m.ProbeSetID[:n-2]
	}
	noAB := d == birdseed && m.CopyNumber == 1
	want := 4
	if noAB {
		want = 3
	}
	if len(cols) < want {
		return errors.Wrapf(ErrModelFormat, "missing clusters for probe set %s", m.ProbeSetID)
	}
	var err error
	if d == birdseed {
		if m.AA, err = parseCluster(d, cols[1]); err != nil {
			return errors.Wrapf(err, "probe set %s", m.ProbeSetID)
		}
		if noAB {
			m.AB = nanCluster
			m.BB, err = parseCluster(d, cols[2])
		} else {
			if m.AB, err = parseCluster(d, cols[2]); err == nil {
				m.BB, err = parseCluster(d, cols[3])
			}
		}
	} else {
		if m.BB, err = parseCluster(d, cols[1]); err == nil {
			if m.AB, err = parseCluster(d, cols[2]); err == nil {
				m.AA, err = parseCluster(d, cols[3])
			}
		}
	}
	if err != nil {
		return errors.Wrapf(err, "probe set %s", m.ProbeSetID)
	}
	b := &ms.diploid
	if m.Haploid() {
		b = &ms.haploid
	}
	// The first model of a probe set wins.
	if _, ok := b.index[m.ProbeSetID]; !ok {
		b.index[m.ProbeSetID] = len(b.models)
	}
	b.models = append(b.models, m)
	return nil
}

func parseCluster(d dialect, s string) (Cluster, error) {
	var fields []string
	if d.fieldSep == ' ' {
		fields = strings.Fields(s)
	} else {
		fields = strings.Split(s, string(d.fieldSep))
	}
	if len(fields) < d.minFields {
		return Cluster{}, errors.Wrapf(ErrModelFormat, "%d values in cluster %q, expected %d", len(fields), s, d.minFields)
	}
	var v [7]float32
	for i := 0; i < d.minFields; i++ {
		f, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 32)
		if err != nil {
			return Cluster{}, errors.Wrapf(ErrModelFormat, "cluster %q: %v", s, err)
		}
		v[i] = float32(f)
	}
	if d == birdseed {
		return Cluster{
			MeanX:    v[0],
			MeanY:    v[1],
			VarX:     v[2],
			CovarXY:  v[3],
			VarY:     v[4],
			NObsMean: v[5],
			NObsVar:  v[5],
		}, nil
	}
	return Cluster{
		MeanX:    v[0],
		VarX:     v[1],
		NObsMean: v[2],
		NObsVar:  v[3],
		MeanY:    v[4],
		VarY:     v[5],
		CovarXY:  v[6],
	}, nil
}
