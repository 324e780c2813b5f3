// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package assemble joins genotype records with the marker manifest, the
// reference genome and the cluster models into VCF records.
package assemble

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/log"
	"github.com/grailbio/microarray/allele"
	"github.com/grailbio/microarray/cluster"
	"github.com/grailbio/microarray/encoding/fasta"
	"github.com/grailbio/microarray/encoding/vcf"
	"github.com/grailbio/microarray/genotype"
	"github.com/grailbio/microarray/manifest"
	"github.com/pkg/errors"
)

// minAdjustSamples is the sample count below which adjusting clusters is
// discouraged.
const minAdjustSamples = 100

// Opts controls Run.
type Opts struct {
	// AdjustClusters recenters each cluster model on the samples being
	// converted before computing BAF and LRR.
	AdjustClusters bool
	// Verbose logs every skipped marker and missing model.
	Verbose bool
}

// DefaultOpts is the default configuration.
var DefaultOpts = Opts{}

// Sink receives the assembled records in order.
type Sink interface {
	Write(r *vcf.Record) error
}

// Stats counts the markers seen by Run.
type Stats struct {
	Total int
	// MissingReference counts indels whose alleles could not be placed on
	// the reference.
	MissingReference int
	// MissingModels counts markers without a cluster model.
	MissingModels int
	// Skipped counts markers without a usable position, strand or flank.
	Skipped int
}

// String renders the summary line. The models column is included only when
// models were given.
func (s Stats) String(withModels bool) string {
	if withModels {
		return fmt.Sprintf("Lines   total/missing-reference/missing-models/skipped:\t%d/%d/%d/%d",
			s.Total, s.MissingReference, s.MissingModels, s.Skipped)
	}
	return fmt.Sprintf("Lines   total/missing-reference/skipped:\t%d/%d/%d",
		s.Total, s.MissingReference, s.Skipped)
}

type assembler struct {
	opts   Opts
	m      *manifest.Manifest
	models *cluster.Models
	ref    fasta.Fasta
	src    genotype.Source
	fields genotype.Fields
	n      int

	gt       [][2]int
	baf, lrr []float32
	stats    Stats
}

// Run writes one record per marker to sink. When src is nil, the records
// follow the manifest. Otherwise they follow src, and a probe set missing
// from the manifest is an error for CHP sources and counted as skipped for
// text tables. models may be nil.
func Run(ctx context.Context, opts Opts, m *manifest.Manifest, models *cluster.Models,
	src genotype.Source, ref fasta.Fasta, sink Sink) (Stats, error) {
	a := &assembler{opts: opts, m: m, models: models, ref: ref, src: src}
	if src != nil {
		a.n = len(src.Samples())
		a.fields = src.Fields()
	}
	if opts.AdjustClusters {
		if models == nil || a.fields&genotype.Intensities == 0 || a.fields&genotype.Calls == 0 {
			return Stats{}, errors.New("adjusting clusters requires models, calls and intensities")
		}
		if a.n < minAdjustSamples {
			log.Printf("Warning: adjusting clusters with %d sample(s) is not recommended", a.n)
		}
	}
	a.gt = make([][2]int, a.n)
	a.baf = make([]float32, a.n)
	a.lrr = make([]float32, a.n)

	_, text := src.(*genotype.TextSource)
	var gr *genotype.Record
	if src != nil {
		gr = genotype.NewRecord(a.n)
	}
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return a.stats, err
		}
		var mr *manifest.Record
		if src == nil {
			if i == len(m.Records) {
				break
			}
			mr = &m.Records[i]
		} else {
			err := src.Next(gr)
			if err == io.EOF {
				break
			}
			if err != nil {
				return a.stats, err
			}
			var ok bool
			if mr, ok = m.Lookup(gr.ProbeSetID); !ok {
				if !text {
					return a.stats, errors.Errorf("probe set %s not found in manifest file", gr.ProbeSetID)
				}
				a.stats.Total++
				a.stats.Skipped++
				if opts.Verbose {
					log.Printf("Skipping probe set %s missing from the manifest", gr.ProbeSetID)
				}
				continue
			}
		}
		a.stats.Total++
		rec, err := a.record(mr, gr)
		if err != nil {
			return a.stats, err
		}
		if rec == nil {
			continue
		}
		if err := sink.Write(rec); err != nil {
			return a.stats, errors.Wrapf(err, "write %s", mr.ProbeSetID)
		}
	}
	log.Printf("%s", a.stats.String(models != nil))
	return a.stats, nil
}

// record assembles the record of one marker. It returns nil for a marker
// that cannot be placed on the reference.
func (a *assembler) record(mr *manifest.Record, gr *genotype.Record) (*vcf.Record, error) {
	chrom, ok := fasta.ResolveName(a.ref, mr.Chromosome)
	if !ok || mr.Position < 1 || mr.Strand == manifest.Unknown || mr.Flank == "" {
		if a.opts.Verbose {
			log.Printf("Skipping unlocalized marker %s", mr.ProbeSetID)
		}
		a.stats.Skipped++
		return nil, nil
	}
	flank, err := allele.ParseFlank(mr.Flank)
	if err != nil {
		return nil, errors.Wrapf(err, "probe set %s", mr.ProbeSetID)
	}
	if mr.Strand == manifest.Reverse {
		flank = flank.ReverseComplement()
	}

	rec := &vcf.Record{ID: mr.ProbeSetID, Chrom: chrom, Pos: uint64(mr.Position - 1)}
	var bIdx int
	if flank.IsIndel() {
		in, err := allele.Indel(flank, a.ref, chrom, rec.Pos)
		if err != nil {
			return nil, errors.Wrapf(err, "probe set %s", mr.ProbeSetID)
		}
		if !in.Resolved {
			if a.opts.Verbose {
				log.Printf("Unable to determine alleles for indel %s", mr.ProbeSetID)
			}
			a.stats.MissingReference++
		}
		rec.Pos, rec.Alleles, bIdx = in.Pos, in.Alleles(), in.BIndex
	} else {
		if rec.Alleles, bIdx, err = allele.SNP(flank, a.ref, chrom, rec.Pos); err != nil {
			return nil, errors.Wrapf(err, "probe set %s", mr.ProbeSetID)
		}
	}
	aIdx := allele.AlleleAIndex(bIdx)
	rec.Info = []vcf.Info{{Key: "ALLELE_A", Value: aIdx}, {Key: "ALLELE_B", Value: bIdx}}
	if mr.DbSNPRSID != "" {
		rec.Info = append(rec.Info, vcf.Info{Key: "DBSNP_RS_ID", Value: mr.DbSNPRSID})
	}
	if mr.AffySNPID != "" {
		rec.Info = append(rec.Info, vcf.Info{Key: "AFFY_SNP_ID", Value: mr.AffySNPID})
	}

	if gr != nil {
		if a.fields&genotype.Calls != 0 {
			if err := a.genotypes(gr.Calls, aIdx, bIdx); err != nil {
				return nil, errors.Wrapf(err, "probe set %s", mr.ProbeSetID)
			}
			rec.GT = a.gt
		}
		if a.fields&genotype.Confidences != 0 {
			rec.Format = append(rec.Format, vcf.Format{ID: "CONF", Values: gr.Conf})
		}
		if a.fields&genotype.Intensities != 0 {
			rec.Format = append(rec.Format,
				vcf.Format{ID: "NORMX", Values: gr.NormX},
				vcf.Format{ID: "NORMY", Values: gr.NormY},
				vcf.Format{ID: "DELTA", Values: gr.Delta},
				vcf.Format{ID: "SIZE", Values: gr.Size},
			)
		}
	}
	if a.models != nil {
		a.applyModel(rec, mr.ProbeSetID, gr)
	}
	return rec, nil
}

// genotypes fills a.gt from the calls.
func (a *assembler) genotypes(calls []genotype.Call, aIdx, bIdx int) error {
	lo, hi := aIdx, bIdx
	if lo > hi {
		lo, hi = hi, lo
	}
	for i, c := range calls {
		switch c {
		case genotype.NoCall:
			a.gt[i] = [2]int{vcf.Missing, vcf.Missing}
		case genotype.AA:
			a.gt[i] = [2]int{aIdx, aIdx}
		case genotype.AB:
			a.gt[i] = [2]int{lo, hi}
		case genotype.BB:
			a.gt[i] = [2]int{bIdx, bIdx}
		default:
			return errors.Wrapf(genotype.ErrInvalidCall, "genotype %d", c)
		}
	}
	return nil
}

// applyModel adds the cluster statistics of the marker and, when
// intensities are available, its BAF and LRR.
func (a *assembler) applyModel(rec *vcf.Record, id string, gr *genotype.Record) {
	haploid := a.models.Get(true, id)
	diploid := a.models.Get(false, id)
	if haploid != nil {
		rec.Info = appendClusterInfo(rec.Info, haploid, true)
	}
	if diploid != nil {
		rec.Info = appendClusterInfo(rec.Info, diploid, false)
	}
	model := diploid
	if model == nil {
		model = haploid
	}
	if model == nil {
		a.stats.MissingModels++
		if a.opts.Verbose {
			log.Printf("Warning: SNP model for Probe Set ID %s was not found", id)
		}
		return
	}
	if gr == nil || a.fields&genotype.Intensities == 0 {
		return
	}
	birdseed := a.models.Birdseed
	if a.opts.AdjustClusters {
		adjusted := *model
		if birdseed {
			adjusted.Adjust(gr.Calls, gr.NormX, gr.NormY)
		} else {
			adjusted.Adjust(gr.Calls, gr.Delta, gr.Size)
		}
		model = &adjusted
	}
	cluster.Project(model.Centers(birdseed), gr.NormX, gr.NormY, a.baf, a.lrr)
	rec.Format = append(rec.Format,
		vcf.Format{ID: "BAF", Values: a.baf},
		vcf.Format{ID: "LRR", Values: a.lrr},
	)
}
