package manifest

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/microarray/allele"
	"github.com/pkg/errors"
)

// WriteFlankFasta writes two FASTA records per probe set with a flank:
// "<id>:1" holds the flank with its first bracketed allele and "<id>:2" the
// flank with its second one. Aligning these records and passing the result
// to Realign places the probe sets on a new reference.
func WriteFlankFasta(in io.Reader, out io.Writer) error {
	t, err := openTable(in, false)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	for {
		row, err := t.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		flank := t.get(row, colFlank)
		if flank == "" {
			continue
		}
		f, err := allele.ParseFlank(flank)
		if err != nil {
			return errors.Wrapf(err, "probe set %s", row[0])
		}
		for i := 1; i <= 2; i++ {
			w.WriteString(">" + row[0] + ":" + strconv.Itoa(i) + "\n")
			w.WriteString(f.WithAllele(i) + "\n")
		}
	}
	return w.Flush()
}

// RealignStats counts the probe sets seen by Realign.
type RealignStats struct {
	Total    int
	Unmapped int
}

// RealignOpts controls Realign.
type RealignOpts struct {
	// Verbose logs every probe set that could not be placed.
	Verbose bool
}

// alignments reads the SAM records of consecutive flank alignments.
type alignments struct {
	r       *sam.Reader
	pending *sam.Record
	eof     bool
}

func markerOf(name string) string {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		return name[:i]
	}
	return name
}

func (a *alignments) peek() (*sam.Record, error) {
	if a.pending == nil && !a.eof {
		rec, err := a.r.Read()
		if err == io.EOF {
			a.eof = true
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		a.pending = rec
	}
	return a.pending, nil
}

// group returns the records of the given probe set.
func (a *alignments) group(id string) ([]*sam.Record, error) {
	var recs []*sam.Record
	for {
		rec, err := a.peek()
		if err != nil {
			return nil, err
		}
		if rec == nil || markerOf(rec.Name) != id {
			break
		}
		recs = append(recs, rec)
		a.pending = nil
	}
	if len(recs) == 0 {
		found := "end of file"
		if a.pending != nil {
			found = a.pending.Name
		}
		return nil, errors.Errorf("expected alignments for probe set %s, found %s", id, found)
	}
	return recs, nil
}

// queryToRef maps a 0-based query offset through the record's CIGAR to a
// 0-based reference position.
func queryToRef(rec *sam.Record, offset int) (int, bool) {
	q, r := 0, rec.Pos
	for _, op := range rec.Cigar {
		n := op.Len()
		c := op.Type().Consumes()
		if c.Query > 0 && offset < q+n {
			if c.Reference == 0 {
				return 0, false
			}
			return r + offset - q, true
		}
		q += c.Query * n
		r += c.Reference * n
	}
	return 0, false
}

// placement is where a probe set's flank aligned.
type placement struct {
	chrom    string
	position int
	strand   Strand
	// idx is 1 or 2 for the flank allele whose alignment was used.
	idx int
}

// place picks the first primary alignment among recs that maps the allele
// position, and returns the 1-based position of the allele's first base, or
// of the base preceding the insertion point for an empty allele.
func place(f allele.Flank, recs []*sam.Record) (placement, bool) {
	for _, rec := range recs {
		if rec.Flags&(sam.Secondary|sam.Supplementary|sam.Unmapped) != 0 || rec.Ref == nil {
			continue
		}
		idx, err := strconv.Atoi(rec.Name[strings.LastIndexByte(rec.Name, ':')+1:])
		if err != nil || (idx != 1 && idx != 2) {
			continue
		}
		a := f.A
		if idx == 2 {
			a = f.B
		}
		n := len(a)
		if a == "-" {
			n = 0
		}
		total := len(f.Left) + n + len(f.Right)
		var offset int
		reverse := rec.Flags&sam.Reverse != 0
		switch {
		case !reverse && n > 0:
			offset = len(f.Left)
		case !reverse:
			offset = len(f.Left) - 1
		case n > 0:
			offset = total - len(f.Left) - n
		default:
			offset = total - len(f.Left) - 1
		}
		if offset < 0 {
			continue
		}
		pos, ok := queryToRef(rec, offset)
		if !ok {
			continue
		}
		p := placement{chrom: rec.Ref.Name(), position: pos + 1, strand: Forward, idx: idx}
		if reverse {
			p.strand = Reverse
		}
		return p, true
	}
	return placement{}, false
}

func quote(s string) string {
	return `"` + strings.Replace(s, `"`, `""`, -1) + `"`
}

// Realign rewrites a manifest with the Chromosome, Physical Position,
// Position End and Strand of each probe set taken from the alignments of its
// flank records, as written by WriteFlankFasta. Comment and header lines are
// copied. Probe sets without a flank or without a usable alignment get null
// coordinates.
func Realign(in, alignmentsIn io.Reader, out io.Writer, opts RealignOpts) (stats RealignStats, err error) {
	t, err := openTable(in, true)
	if err != nil {
		return stats, err
	}
	sr, err := sam.NewReader(alignmentsIn)
	if err != nil {
		return stats, errors.Wrap(err, "read alignment header")
	}
	al := &alignments{r: sr}
	w := bufio.NewWriter(out)
	for _, c := range t.comments {
		w.WriteString(c + "\n")
	}
	writeRow := func(row []string) {
		for i, v := range row {
			if i > 0 {
				w.WriteByte(',')
			}
			w.WriteString(quote(v))
		}
		w.WriteByte('\n')
	}
	writeRow(t.header)

	for {
		row, err := t.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, err
		}
		stats.Total++
		id := row[0]
		var (
			p      placement
			placed bool
			f      allele.Flank
		)
		flank := t.get(row, colFlank)
		if flank == "" {
			if opts.Verbose {
				log.Printf("Missing flank sequence for marker %s", id)
			}
		} else {
			if f, err = allele.ParseFlank(flank); err != nil {
				return stats, errors.Wrapf(err, "probe set %s", id)
			}
			recs, err := al.group(id)
			if err != nil {
				return stats, err
			}
			if p, placed = place(f, recs); !placed && opts.Verbose {
				log.Printf("Unable to determine position for marker %s", id)
			}
		}
		if !placed {
			stats.Unmapped++
		}

		set := func(name, v string) {
			if i, ok := t.cols[name]; ok {
				row[i] = v
			}
		}
		if placed {
			set(colChromosome, p.chrom)
			set(colPosition, strconv.Itoa(p.position))
			var span int
			if p.idx > 1 {
				span = len(f.B) + 1
			} else {
				span = len(f.A) + 1
				if f.A == "-" {
					span++
				}
			}
			set(colPositionEnd, strconv.Itoa(p.position+span-2))
			if p.strand == Reverse {
				set(colStrand, "-")
			} else {
				set(colStrand, "+")
			}
		} else {
			set(colChromosome, Null)
			set(colPosition, Null)
			set(colPositionEnd, Null)
			set(colStrand, t.nullStrand)
		}
		writeRow(row)
	}
	log.Printf("Lines   total/unmapped:\t%d/%d", stats.Total, stats.Unmapped)
	return stats, w.Flush()
}
