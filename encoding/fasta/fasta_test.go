package fasta_test

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/microarray/encoding/fasta"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const (
	fastaData  = ">seq1\nACGTA\nCGTAC\nGT\n>chr2 A viral sequence\nacgt\nACGT\n"
	fastaIndex = "seq1\t12\t6\t5\t6\nchr2\t8\t44\t4\t5\n"
)

func both(t *testing.T) map[string]fasta.Fasta {
	unindexed, err := fasta.New(strings.NewReader(fastaData))
	assert.NoError(t, err)
	indexed, err := fasta.NewIndexed(strings.NewReader(fastaData), strings.NewReader(fastaIndex))
	assert.NoError(t, err)
	return map[string]fasta.Fasta{"unindexed": unindexed, "indexed": indexed}
}

func TestGet(t *testing.T) {
	tests := []struct {
		seq        string
		start, end uint64
		want       string
		err        string
	}{
		{"seq1", 1, 2, "C", ""},
		{"seq1", 1, 6, "CGTAC", ""},
		{"seq1", 0, 12, "ACGTACGTACGT", ""},
		{"seq1", 4, 11, "ACGTACG", ""},
		{"seq1", 10, 12, "GT", ""},
		{"chr2", 0, 8, "acgtACGT", ""},
		{"chr2", 2, 5, "gtA", ""},
		{"seq0", 0, 1, "", "sequence not found"},
		{"seq1", 10, 13, "", "past the sequence length"},
		{"seq1", 4, 3, "", "must be less than end"},
	}
	for name, f := range both(t) {
		for _, tt := range tests {
			got, err := f.Get(tt.seq, tt.start, tt.end)
			if tt.err != "" {
				assert.HasSubstr(t, err.Error(), tt.err)
				continue
			}
			assert.NoError(t, err)
			expect.EQ(t, got, tt.want, "%s %+v", name, tt)
		}
	}
}

func TestLenAndNames(t *testing.T) {
	for name, f := range both(t) {
		n, err := f.Len("seq1")
		assert.NoError(t, err)
		expect.EQ(t, n, uint64(12), name)
		n, err = f.Len("chr2")
		assert.NoError(t, err)
		expect.EQ(t, n, uint64(8), name)
		_, err = f.Len("seq0")
		expect.True(t, err != nil, name)
		expect.EQ(t, f.SeqNames(), []string{"seq1", "chr2"}, name)
	}
}

func TestMalformed(t *testing.T) {
	_, err := fasta.New(strings.NewReader("ACGT\n>seq1\nACGT\n"))
	expect.True(t, err != nil)
	_, err = fasta.New(strings.NewReader(">seq1\nA\n>seq1\nC\n"))
	expect.True(t, err != nil)
	_, err = fasta.NewIndexed(strings.NewReader(fastaData), strings.NewReader("seq1\t12\t6\n"))
	expect.True(t, err != nil)
	_, err = fasta.NewIndexed(strings.NewReader(fastaData), strings.NewReader("seq1\t12\t6\t0\t1\n"))
	expect.True(t, err != nil)
}

func TestBase(t *testing.T) {
	for name, f := range both(t) {
		b, err := fasta.Base(f, "chr2", 1)
		assert.NoError(t, err)
		expect.EQ(t, b, byte('C'), name)
		b, err = fasta.Base(f, "seq1", 11)
		assert.NoError(t, err)
		expect.EQ(t, b, byte('T'), name)
		_, err = fasta.Base(f, "seq1", 12)
		expect.True(t, err != nil, name)
	}
}

func TestResolveName(t *testing.T) {
	f, err := fasta.New(strings.NewReader(">1\nA\n>chrX\nC\n>MT\nG\n"))
	assert.NoError(t, err)
	for _, tt := range []struct {
		in, want string
		ok       bool
	}{
		{"1", "1", true},
		{"chr1", "1", true},
		{"X", "chrX", true},
		{"23", "chrX", true},
		{"XY", "chrX", true},
		{"M", "MT", true},
		{"chrM", "MT", true},
		{"26", "MT", true},
		{"Y", "", false},
		{"", "", false},
	} {
		got, ok := fasta.ResolveName(f, tt.in)
		expect.EQ(t, ok, tt.ok, tt.in)
		expect.EQ(t, got, tt.want, tt.in)
	}
}

func TestOpen(t *testing.T) {
	ctx := vcontext.Background()
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	plain := filepath.Join(tmpdir, "plain.fa")
	assert.NoError(t, ioutil.WriteFile(plain, []byte(fastaData), 0644))
	indexed := filepath.Join(tmpdir, "indexed.fa")
	assert.NoError(t, ioutil.WriteFile(indexed, []byte(fastaData), 0644))
	assert.NoError(t, ioutil.WriteFile(indexed+".fai", []byte(fastaIndex), 0644))

	for _, path := range []string{plain, indexed} {
		ref, err := fasta.Open(ctx, path)
		assert.NoError(t, err)
		got, err := ref.Get("seq1", 3, 8)
		assert.NoError(t, err)
		expect.EQ(t, got, "TACGT", path)
		expect.EQ(t, ref.SeqNames(), []string{"seq1", "chr2"}, path)
		assert.NoError(t, ref.Close(ctx))
	}

	_, err := fasta.Open(ctx, filepath.Join(tmpdir, "missing.fa"))
	expect.True(t, err != nil)
}
