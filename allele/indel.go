package allele

import (
	"strings"

	"github.com/grailbio/microarray/encoding/fasta"
	"github.com/pkg/errors"
)

// contextLen is the number of right flank bases compared with the
// reference when placing an indel.
const contextLen = 10

// IndelAlleles is an insertion/deletion marker placed on the reference.
type IndelAlleles struct {
	// Pos is the 0-based position of the anchor base.
	Pos uint64
	// A and B are the two alleles with the anchor base prepended.
	A, B string
	// BIndex is the VCF index of allele B.
	BIndex int
	// Resolved is false when the reference matched neither arrangement;
	// the anchor is then 'N' and allele A is written as REF.
	Resolved bool
}

// Alleles returns the VCF alleles, REF first.
func (in IndelAlleles) Alleles() []string {
	if in.BIndex == BIsRef {
		return []string{in.B, in.A}
	}
	return []string{in.A, in.B}
}

// Indel places an indel marker annotated at the 0-based position pos. When
// the reference carries the inserted sequence, pos is its first base and the
// record moves to the base before it; when the reference lacks it, pos is
// the base preceding the insertion point. Both arrangements are checked
// against the last left flank base and the start of the right flank.
func Indel(f Flank, ref fasta.Fasta, chrom string, pos uint64) (IndelAlleles, error) {
	ins, aIsDel := f.B, true
	if f.B == "-" {
		ins, aIsDel = f.A, false
	}
	if ins == "-" || ins == "" || (f.A != "-" && f.B != "-") {
		return IndelAlleles{}, errors.Wrapf(ErrMalformedFlank, "not an indel: %s", f)
	}
	length, err := ref.Len(chrom)
	if err != nil {
		return IndelAlleles{}, err
	}
	left := ""
	if n := len(f.Left); n > 0 {
		left = f.Left[n-1:]
	}
	right := f.Right
	if len(right) > contextLen {
		right = right[:contextLen]
	}
	matches := func(start int64, seq string) (bool, error) {
		if start < 0 || uint64(start)+uint64(len(seq)) > length || len(seq) == 0 {
			return false, nil
		}
		s, err := ref.Get(chrom, uint64(start), uint64(start)+uint64(len(seq)))
		if err != nil {
			return false, err
		}
		return strings.EqualFold(s, seq), nil
	}
	p := int64(pos)
	hasIns, err := matches(p-int64(len(left)), left+ins+right)
	if err != nil {
		return IndelAlleles{}, err
	}
	lacksIns, err := matches(p+1-int64(len(left)), left+right)
	if err != nil {
		return IndelAlleles{}, err
	}

	out := IndelAlleles{Pos: pos, Resolved: true}
	refIsDel := 1
	switch {
	case lacksIns:
	case hasIns:
		if pos == 0 {
			out.Resolved = false
			break
		}
		refIsDel = 0
		out.Pos = pos - 1
	default:
		out.Resolved = false
	}
	anchor := byte('N')
	if out.Resolved {
		if anchor, err = fasta.Base(ref, chrom, out.Pos); err != nil {
			return IndelAlleles{}, err
		}
	}
	del, insAllele := string(anchor), string(anchor)+ins
	if aIsDel {
		out.A, out.B = del, insAllele
	} else {
		out.A, out.B = insAllele, del
	}
	switch {
	case !out.Resolved:
		out.BIndex = AIsRef
	case aIsDel:
		out.BIndex = refIsDel
	default:
		out.BIndex = 1 - refIsDel
	}
	return out, nil
}
