package vcf

import (
	"bytes"
	"io/ioutil"
	"math"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader() *Header {
	h := &Header{
		Contigs: []Contig{{"chr1", 248956422}},
		Infos: []Def{
			{ID: "ALLELE_A", Number: "1", Type: Integer, Description: "A allele"},
			{ID: "AFFY_SNP_ID", Number: "1", Type: String, Description: "Affymetrix SNP ID"},
		},
		Formats: []Def{
			{ID: "GT", Number: "1", Type: String, Description: "Genotype"},
			{ID: "CONF", Number: "1", Type: Float, Description: "Genotype confidences"},
		},
		Samples: []string{"s1", "s2"},
	}
	h.AddMeta("CSV", "annot.csv")
	return h
}

const testHeaderText = `##fileformat=VCFv4.2
##FILTER=<ID=PASS,Description="All filters passed">
##contig=<ID=chr1,length=248956422>
##INFO=<ID=ALLELE_A,Number=1,Type=Integer,Description="A allele">
##INFO=<ID=AFFY_SNP_ID,Number=1,Type=String,Description="Affymetrix SNP ID">
##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">
##FORMAT=<ID=CONF,Number=1,Type=Float,Description="Genotype confidences">
##CSV=annot.csv
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	s1	s2
`

func testRecord() *Record {
	return &Record{
		ID:      "AX-1",
		Chrom:   "chr1",
		Pos:     99,
		Alleles: []string{"C", "T"},
		Info:    []Info{{"ALLELE_A", 1}, {"AFFY_SNP_ID", "Affx-1"}, {"meanX_AA", float32(0.25)}},
		GT:      [][2]int{{0, 1}, {Missing, Missing}},
		Format:  []Format{{"CONF", []float32{0.0125, float32(math.NaN())}}},
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, testHeader(), Opts{})
	require.NoError(t, err)
	require.NoError(t, w.Write(testRecord()))
	require.NoError(t, w.Write(&Record{
		Chrom:   "chr1",
		Pos:     0,
		Alleles: []string{"A"},
		GT:      [][2]int{{0, 0}, {0, 0}},
		Format:  []Format{{"CONF", []float32{1, 2}}},
	}))
	require.NoError(t, w.Close())
	assert.Equal(t, testHeaderText+
		"chr1\t100\tAX-1\tC\tT\t.\t.\tALLELE_A=1;AFFY_SNP_ID=Affx-1;meanX_AA=0.25\tGT:CONF\t0/1:0.0125\t./.:.\n"+
		"chr1\t1\t.\tA\t.\t.\t.\t.\tGT:CONF\t0/0:1\t0/0:2\n",
		buf.String())
}

func TestWriterSitesOnly(t *testing.T) {
	var buf bytes.Buffer
	h := &Header{Infos: testHeader().Infos}
	w, err := NewWriter(&buf, h, Opts{})
	require.NoError(t, err)
	require.NoError(t, w.Write(&Record{ID: "AX-2", Chrom: "2", Pos: 9, Alleles: []string{"G", "GA", "T"}}))
	require.NoError(t, w.Close())
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Equal(t, "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO", lines[len(lines)-2])
	assert.Equal(t, "2\t10\tAX-2\tG\tGA,T\t.\t.\t.", lines[len(lines)-1])
}

func TestWriterErrors(t *testing.T) {
	w, err := NewWriter(ioutil.Discard, testHeader(), Opts{})
	require.NoError(t, err)
	r := testRecord()
	r.GT = r.GT[:1]
	assert.Error(t, w.Write(r))
	r = testRecord()
	r.Format[0].Values = nil
	assert.Error(t, w.Write(r))
	r = testRecord()
	r.Info = append(r.Info, Info{"BAD", []int{1}})
	assert.Error(t, w.Write(r))
	r = testRecord()
	r.Alleles = nil
	assert.Error(t, w.Write(r))
}

func TestWriterBGZF(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, testHeader(), Opts{Compress: true, Parallelism: 2})
	require.NoError(t, err)
	require.NoError(t, w.Write(testRecord()))
	require.NoError(t, w.Close())

	zr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	data, err := ioutil.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), testHeaderText))
	assert.True(t, strings.HasSuffix(string(data), "0/1:0.0125\t./.:.\n"))
}
