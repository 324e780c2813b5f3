package allele_test

import (
	"strings"
	"testing"

	"github.com/grailbio/microarray/allele"
	"github.com/grailbio/microarray/encoding/fasta"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlank(t *testing.T) {
	f, err := allele.ParseFlank("acgT[a/g]ttc")
	require.NoError(t, err)
	assert.Equal(t, allele.Flank{Left: "ACGT", A: "A", B: "G", Right: "TTC"}, f)
	assert.Equal(t, "ACGT[A/G]TTC", f.String())
	assert.False(t, f.IsIndel())
	assert.Equal(t, "ACGTATTC", f.WithAllele(1))
	assert.Equal(t, "ACGTGTTC", f.WithAllele(2))

	for _, s := range []string{"ACGT", "AC]G/T[A", "AC[GT]A", "AC[G/TA"} {
		_, err := allele.ParseFlank(s)
		assert.Equal(t, allele.ErrMalformedFlank, errors.Cause(err), s)
	}
}

func TestReverseComplement(t *testing.T) {
	assert.Equal(t, "NACGTRYKMBVDH", allele.ReverseComplement("DHBVKMRYACGTN"))
	assert.Equal(t, "acgt", allele.ReverseComplement("acgt"))

	f, err := allele.ParseFlank("AAC[A/-]GGT")
	require.NoError(t, err)
	rc := f.ReverseComplement()
	assert.Equal(t, "ACC[T/-]GTT", rc.String())
	assert.True(t, rc.IsIndel())
	assert.Equal(t, "ACCGTT", rc.WithAllele(2))
	assert.Equal(t, f, rc.ReverseComplement())
}

func TestAlleleIndices(t *testing.T) {
	for _, tt := range []struct {
		ref      byte
		a, b     string
		bIdx     int
		aIdx     int
		expected []string
	}{
		{'G', "A", "G", allele.BIsRef, 1, []string{"G", "A"}},
		{'A', "A", "G", allele.AIsRef, 0, []string{"A", "G"}},
		{'C', "A", "G", allele.NeitherRef, 1, []string{"C", "A", "G"}},
		{'A', "A", "A", allele.BIsRef, 1, []string{"A", "A"}},
	} {
		bIdx := allele.AlleleBIndex(tt.ref, tt.a, tt.b)
		assert.Equal(t, tt.bIdx, bIdx)
		assert.Equal(t, tt.aIdx, allele.AlleleAIndex(bIdx))
		got, err := allele.ToVCF(string(tt.ref), tt.a, tt.b, bIdx)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got)
	}
	_, err := allele.ToVCF("A", "A", "G", 3)
	assert.Error(t, err)
}

// 0-based:       0123456789012345
const refSeq = ">chr1\nTTTACGTCAGGTTACC\n"

func reference(t *testing.T) fasta.Fasta {
	ref, err := fasta.New(strings.NewReader(refSeq))
	require.NoError(t, err)
	return ref
}

func TestSNP(t *testing.T) {
	f, err := allele.ParseFlank("TTA[C/T]GTC")
	require.NoError(t, err)
	alleles, bIdx, err := allele.SNP(f, reference(t), "chr1", 4)
	require.NoError(t, err)
	assert.Equal(t, allele.AIsRef, bIdx)
	assert.Equal(t, []string{"C", "T"}, alleles)

	_, _, err = allele.SNP(f, reference(t), "chr2", 4)
	assert.Error(t, err)
}

func TestIndel(t *testing.T) {
	ref := reference(t)
	for _, tt := range []struct {
		name  string
		flank string
		pos   uint64
		want  allele.IndelAlleles
		vcf   []string
	}{
		{
			// The reference carries CAG at 7..9.
			name:  "reference has insertion, A is deletion",
			flank: "ACGT[-/CAG]GTTA",
			pos:   7,
			want:  allele.IndelAlleles{Pos: 6, A: "T", B: "TCAG", BIndex: allele.BIsRef, Resolved: true},
			vcf:   []string{"TCAG", "T"},
		},
		{
			name:  "reference has insertion, B is deletion",
			flank: "ACGT[CAG/-]GTTA",
			pos:   7,
			want:  allele.IndelAlleles{Pos: 6, A: "TCAG", B: "T", BIndex: allele.AIsRef, Resolved: true},
			vcf:   []string{"TCAG", "T"},
		},
		{
			name:  "reference lacks insertion",
			flank: "TTTAC[-/AA]GTCA",
			pos:   4,
			want:  allele.IndelAlleles{Pos: 4, A: "C", B: "CAA", BIndex: allele.AIsRef, Resolved: true},
			vcf:   []string{"C", "CAA"},
		},
		{
			name:  "reference lacks insertion, B is deletion",
			flank: "TTTAC[AA/-]GTCA",
			pos:   4,
			want:  allele.IndelAlleles{Pos: 4, A: "CAA", B: "C", BIndex: allele.BIsRef, Resolved: true},
			vcf:   []string{"C", "CAA"},
		},
		{
			name:  "unresolved",
			flank: "GGGG[-/TT]GGGG",
			pos:   4,
			want:  allele.IndelAlleles{Pos: 4, A: "N", B: "NTT", BIndex: allele.AIsRef},
			vcf:   []string{"N", "NTT"},
		},
	} {
		f, err := allele.ParseFlank(tt.flank)
		require.NoError(t, err, tt.name)
		got, err := allele.Indel(f, ref, "chr1", tt.pos)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
		assert.Equal(t, tt.vcf, got.Alleles(), tt.name)
	}

	f, err := allele.ParseFlank("AC[A/G]TT")
	require.NoError(t, err)
	_, err = allele.Indel(f, ref, "chr1", 3)
	assert.Equal(t, allele.ErrMalformedFlank, errors.Cause(err))
}
