package fasta

import (
	"context"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// Reference is a FASTA file opened by path. When a faidx index sits next to
// the file, bases are read on demand; otherwise the whole file is loaded.
type Reference struct {
	Fasta
	Path string
	f    file.File
}

// Open opens the reference at path.
func Open(ctx context.Context, path string) (ref *Reference, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open reference", path)
	}
	ref = &Reference{Path: path}
	if idx, ierr := file.Open(ctx, path+".fai"); ierr == nil {
		defer file.CloseAndReport(ctx, idx, &err)
		if ref.Fasta, err = NewIndexed(f.Reader(ctx), idx.Reader(ctx)); err != nil {
			_ = f.Close(ctx)
			return nil, errors.E(err, "index", path+".fai")
		}
		ref.f = f
		return ref, nil
	}
	log.Debug.Printf("no index for %s, loading it into memory", path)
	defer file.CloseAndReport(ctx, f, &err)
	r, _ := compress.NewReader(f.Reader(ctx))
	defer func() {
		if e := r.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if ref.Fasta, err = New(r); err != nil {
		return nil, errors.E(err, "read reference", path)
	}
	return ref, nil
}

// Close releases the file held by an indexed reference.
func (r *Reference) Close(ctx context.Context) error {
	if r.f == nil {
		return nil
	}
	return r.f.Close(ctx)
}

// Base returns the uppercased base of seqName at the 0-based position pos.
func Base(f Fasta, seqName string, pos uint64) (byte, error) {
	s, err := f.Get(seqName, pos, pos+1)
	if err != nil {
		return 0, err
	}
	c := s[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	return c, nil
}

var contigAliases = map[string][]string{
	"23":   {"X", "chrX"},
	"25":   {"X", "chrX"},
	"XX":   {"X", "chrX"},
	"XY":   {"X", "chrX"},
	"PAR":  {"X", "chrX"},
	"24":   {"Y", "chrY"},
	"26":   {"MT", "chrM"},
	"MT":   {"chrM"},
	"M":    {"MT", "chrM"},
	"chrM": {"MT"},
}

// ResolveName maps a chromosome name as written in an annotation file to a
// sequence name of f. It tries the name itself, the name with a "chr" prefix
// removed or added, and the usual aliases of the sex and mitochondrial
// chromosomes.
func ResolveName(f Fasta, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	has := func(n string) bool {
		_, err := f.Len(n)
		return err == nil
	}
	if has(name) {
		return name, true
	}
	if strings.HasPrefix(name, "chr") {
		if has(name[3:]) {
			return name[3:], true
		}
	} else if has("chr" + name) {
		return "chr" + name, true
	}
	for _, alias := range contigAliases[name] {
		if has(alias) {
			return alias, true
		}
	}
	return "", false
}
