package assemble

import (
	"github.com/grailbio/microarray/cluster"
	"github.com/grailbio/microarray/encoding/fasta"
	"github.com/grailbio/microarray/encoding/vcf"
	"github.com/grailbio/microarray/genotype"
)

// clusterStat is one of the per-cluster statistics written as INFO fields.
type clusterStat struct {
	name string
	// desc is formatted with the genotype class and the ploidy.
	desc  func(class, ploidy string) string
	value func(c *cluster.Cluster) float32
}

var clusterStats = []clusterStat{
	{"meanX", func(g, p string) string { return "Mean of normalized DELTA for " + g + " " + p + " cluster" },
		func(c *cluster.Cluster) float32 { return c.MeanX }},
	{"varX", func(g, p string) string { return "Variance of normalized DELTA for " + g + " " + p + " cluster" },
		func(c *cluster.Cluster) float32 { return c.VarX }},
	{"nObsMean", func(g, p string) string { return "Number of " + g + " calls in training set for " + p + " mean" },
		func(c *cluster.Cluster) float32 { return c.NObsMean }},
	{"nObsVar", func(g, p string) string { return "Number of " + g + " calls in training set for " + p + " variance" },
		func(c *cluster.Cluster) float32 { return c.NObsVar }},
	{"meanY", func(g, p string) string { return "Mean of normalized SIZE for " + g + " " + p + " cluster" },
		func(c *cluster.Cluster) float32 { return c.MeanY }},
	{"varY", func(g, p string) string { return "Variance of normalized SIZE for " + g + " " + p + " cluster" },
		func(c *cluster.Cluster) float32 { return c.VarY }},
	{"covarXY", func(g, p string) string { return "Covariance for " + g + " " + p + " cluster" },
		func(c *cluster.Cluster) float32 { return c.CovarXY }},
}

var classes = [3]string{"AA", "AB", "BB"}

// clusterKey returns the INFO key of a statistic. Haploid models get a ".1"
// suffix.
func clusterKey(stat, class string, haploid bool) string {
	if haploid {
		return stat + "_" + class + ".1"
	}
	return stat + "_" + class
}

func clusterDefs(haploid bool) []vcf.Def {
	ploidy := "diploid"
	if haploid {
		ploidy = "haploid"
	}
	defs := make([]vcf.Def, 0, len(clusterStats)*len(classes))
	for _, s := range clusterStats {
		for _, g := range classes {
			defs = append(defs, vcf.Def{
				ID:          clusterKey(s.name, g, haploid),
				Number:      "1",
				Type:        vcf.Float,
				Description: s.desc(g, ploidy),
			})
		}
	}
	return defs
}

// appendClusterInfo appends the 21 statistics of m to info.
func appendClusterInfo(info []vcf.Info, m *cluster.Model, haploid bool) []vcf.Info {
	clusters := [3]*cluster.Cluster{&m.AA, &m.AB, &m.BB}
	for _, s := range clusterStats {
		for i, g := range classes {
			info = append(info, vcf.Info{Key: clusterKey(s.name, g, haploid), Value: s.value(clusters[i])})
		}
	}
	return info
}

// NewHeader builds the VCF header for a conversion. Contigs come from ref.
// Cluster statistics are declared when withModels is set, and the FORMAT
// fields follow the values the source provides.
func NewHeader(ref fasta.Fasta, fields genotype.Fields, samples []string, withModels bool) (*vcf.Header, error) {
	h := &vcf.Header{Samples: samples}
	for _, name := range ref.SeqNames() {
		n, err := ref.Len(name)
		if err != nil {
			return nil, err
		}
		h.Contigs = append(h.Contigs, vcf.Contig{Name: name, Length: n})
	}
	h.Infos = []vcf.Def{
		{ID: "ALLELE_A", Number: "1", Type: vcf.Integer, Description: "A allele"},
		{ID: "ALLELE_B", Number: "1", Type: vcf.Integer, Description: "B allele"},
		{ID: "DBSNP_RS_ID", Number: "1", Type: vcf.String, Description: "dbSNP RS ID"},
		{ID: "AFFY_SNP_ID", Number: "1", Type: vcf.String, Description: "Affymetrix SNP ID"},
	}
	if withModels {
		h.Infos = append(h.Infos, clusterDefs(false)...)
		h.Infos = append(h.Infos, clusterDefs(true)...)
	}
	if fields&genotype.Calls != 0 {
		h.Formats = append(h.Formats, vcf.Def{ID: "GT", Number: "1", Type: vcf.String, Description: "Genotype"})
	}
	if fields&genotype.Confidences != 0 {
		h.Formats = append(h.Formats, vcf.Def{ID: "CONF", Number: "1", Type: vcf.Float, Description: "Genotype confidences"})
	}
	if fields&genotype.Intensities != 0 {
		h.Formats = append(h.Formats,
			vcf.Def{ID: "NORMX", Number: "1", Type: vcf.Float, Description: "Normalized X intensity"},
			vcf.Def{ID: "NORMY", Number: "1", Type: vcf.Float, Description: "Normalized Y intensity"},
			vcf.Def{ID: "DELTA", Number: "1", Type: vcf.Float, Description: "Normalized contrast value"},
			vcf.Def{ID: "SIZE", Number: "1", Type: vcf.Float, Description: "Normalized size value"},
		)
		if withModels {
			h.Formats = append(h.Formats,
				vcf.Def{ID: "BAF", Number: "1", Type: vcf.Float, Description: "B Allele Frequency"},
				vcf.Def{ID: "LRR", Number: "1", Type: vcf.Float, Description: "Log R Ratio"},
			)
		}
	}
	return h, nil
}
