package cmd

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCSV = `#%netaffx-annotation-tabular-format-version=1.5
"Probe Set ID","Affy SNP ID","dbSNP RS ID","Chromosome","Physical Position","Position End","Strand","Flank","Allele A","Allele B"
"AX-1","Affx-1","rs1","1","5","5","+","TTA[C/T]GTC","C","T"
"AX-3","---","---","1","10","10","-","GAC[C/A]TGA","C","A"
`

func writeFiles(t *testing.T, dir string, files map[string]string) {
	for name, data := range files {
		require.NoError(t, ioutil.WriteFile(filepath.Join(dir, name), []byte(data), 0600))
	}
}

func TestConvertText(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	writeFiles(t, dir, map[string]string{
		"annot.csv": testCSV,
		"ref.fa":    ">chr1\nTTTACGTCAGGTTACC\n",
		"calls.txt": "probeset_id\ts1.CEL\ts2.CEL\nAX-1\t1\t-1\nAX-3\t2\t0\n",
	})
	out := filepath.Join(dir, "out.vcf")
	f := convertFlags{
		csv:       filepath.Join(dir, "annot.csv"),
		ref:       filepath.Join(dir, "ref.fa"),
		calls:     filepath.Join(dir, "calls.txt"),
		output:    out,
		noVersion: true,
	}
	require.NoError(t, convert(ctx, f, nil))
	data, err := ioutil.ReadFile(out)
	require.NoError(t, err)
	vcf := string(data)
	assert.True(t, strings.HasPrefix(vcf, "##fileformat=VCFv4.2\n"))
	assert.Contains(t, vcf, "##contig=<ID=chr1,length=16>\n")
	assert.Contains(t, vcf, "##CSV=annot.csv\n")
	assert.NotContains(t, vcf, "bio-affy2vcfVersion")
	assert.Contains(t, vcf, "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\ts1\ts2\n")
	assert.Contains(t, vcf, "chr1\t5\tAX-1\tC\tT\t.\t.\tALLELE_A=0;ALLELE_B=1;DBSNP_RS_ID=rs1;AFFY_SNP_ID=Affx-1\tGT\t0/1\t./.\n")
}

func TestConvertFlags(t *testing.T) {
	base := convertFlags{csv: "a.csv", ref: "ref.fa"}
	assert.NoError(t, base.validate(0))

	for _, f := range []convertFlags{
		{csv: "a.csv"},
		{ref: "ref.fa"},
		{csv: "a.csv", ref: "ref.fa", adjustClusters: true, summary: "s.txt"},
		{csv: "a.csv", ref: "ref.fa", adjustClusters: true, models: "m.txt"},
		{csv: "a.csv", ref: "ref.fa", outputType: "b"},
	} {
		assert.Error(t, f.validate(0), "%+v", f)
	}
	f := base
	f.calls = "calls.txt"
	assert.Error(t, f.validate(2))
	f = base
	f.adjustClusters, f.models = true, "m.txt"
	assert.NoError(t, f.validate(2))
}

func TestListFiles(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	writeFiles(t, dir, map[string]string{"b.CHP": "", "a.chp": "", "c.txt": ""})
	paths, err := listFiles(ctx, dir, "chp")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.chp"), filepath.Join(dir, "b.CHP")}, paths)

	paths, err = listFiles(ctx, "x/s1.chp", "chp")
	require.NoError(t, err)
	assert.Equal(t, []string{"x/s1.chp"}, paths)

	_, err = listFiles(ctx, dir, "cel")
	assert.Error(t, err)
}

func TestSex(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	writeFiles(t, dir, map[string]string{
		"report.txt": "#%guid=0\ncel_files\tcomputed_gender\ns1.CEL\tfemale\ns2.CEL\tmale\n",
	})
	out := filepath.Join(dir, "sex.txt")
	require.NoError(t, sex(ctx, filepath.Join(dir, "report.txt"), out))
	data, err := ioutil.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "s1\t2\ns2\t1\n", string(data))
}

func TestFlank(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	writeFiles(t, dir, map[string]string{"annot.csv": testCSV})
	out := filepath.Join(dir, "flank.fa")
	require.NoError(t, flank(ctx, filepath.Join(dir, "annot.csv"), "", out, false))
	data, err := ioutil.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, ">AX-1:1\nTTACGTC\n>AX-1:2\nTTATGTC\n>AX-3:1\nGACCTGA\n>AX-3:2\nGACATGA\n", string(data))
}
