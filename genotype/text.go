package genotype

import (
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"
)

// table is one apt output table. It supports a single line of look-ahead.
type table struct {
	name    string
	r       *tsv.Reader
	pending []string
}

func newTable(name string, in io.Reader) (*table, []string, error) {
	r := tsv.NewReader(in)
	r.Comment = '#'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.ReuseRecord = false
	t := &table{name: name, r: r}
	header, err := t.next()
	if err == io.EOF {
		return nil, nil, errors.Errorf("%s table is empty", name)
	}
	if err != nil {
		return nil, nil, err
	}
	if header[0] != "probeset_id" {
		return nil, nil, errors.Errorf("malformed first line of %s table: %s", name, strings.Join(header, "\t"))
	}
	return t, header, nil
}

func (t *table) peek() ([]string, error) {
	if t.pending == nil {
		rec, err := t.r.Reader.Read()
		if err != nil {
			if err != io.EOF {
				err = errors.Wrapf(err, "%s table", t.name)
			}
			return nil, err
		}
		t.pending = rec
	}
	return t.pending, nil
}

func (t *table) next() ([]string, error) {
	rec, err := t.peek()
	t.pending = nil
	return rec, err
}

// row reads the next line and checks its width.
func (t *table) row(nSamples int) ([]string, error) {
	rec, err := t.next()
	if err != nil {
		return nil, err
	}
	if len(rec) != 1+nSamples {
		return nil, errors.Errorf("expected %d columns but %d columns found in the %s table", 1+nSamples, len(rec), t.name)
	}
	return rec, nil
}

func (t *table) atEnd() bool {
	_, err := t.peek()
	return err == io.EOF
}

// TextSource reads the calls, confidences and summary tables written by
// apt-probeset-genotype in lockstep.
type TextSource struct {
	calls, confidences, summary *table
	names                       []string
}

// TextInputs names the tables of a TextSource. Any of them may be nil.
type TextInputs struct {
	Calls       io.Reader
	Confidences io.Reader
	Summary     io.Reader
}

// NewTextSource reads the table headers. Sample names come from the first
// table present, with any ".CEL" extension removed. All tables present must
// have the same number of samples.
func NewTextSource(in TextInputs) (*TextSource, error) {
	src := &TextSource{}
	var err error
	open := func(name string, r io.Reader) (*table, error) {
		if r == nil {
			return nil, nil
		}
		t, header, err := newTable(name, r)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(header)-1)
		for i, h := range header[1:] {
			names[i] = sampleName(h)
		}
		if src.names == nil {
			src.names = names
		} else if len(names) != len(src.names) {
			return nil, errors.Errorf("%s table has %d samples while %d were expected", name, len(names), len(src.names))
		}
		return t, nil
	}
	if src.calls, err = open("calls", in.Calls); err != nil {
		return nil, err
	}
	if src.confidences, err = open("confidences", in.Confidences); err != nil {
		return nil, err
	}
	if src.summary, err = open("summary", in.Summary); err != nil {
		return nil, err
	}
	if src.names == nil {
		return nil, errors.New("no calls, confidences or summary table given")
	}
	return src, nil
}

func sampleName(s string) string {
	if i := strings.LastIndexByte(s, '.'); i >= 0 && s[i+1:] == "CEL" {
		return s[:i]
	}
	return s
}

// Samples implements Source.
func (src *TextSource) Samples() []string { return src.names }

// Fields implements Source.
func (src *TextSource) Fields() Fields {
	var f Fields
	if src.calls != nil {
		f |= Calls
	}
	if src.confidences != nil {
		f |= Confidences
	}
	if src.summary != nil {
		f |= Intensities
	}
	return f
}

// Next implements Source.
func (src *TextSource) Next(r *Record) error {
	n := len(src.names)
	first := true
	if src.calls != nil {
		rec, err := src.calls.row(n)
		if err != nil {
			return err
		}
		for i, v := range rec[1:] {
			code, err := strconv.ParseInt(v, 10, 8)
			if err != nil {
				return errors.Wrapf(err, "calls table, probe set %s", rec[0])
			}
			if r.Calls[i], err = parseCall(code); err != nil {
				return errors.Wrapf(err, "calls table, probe set %s", rec[0])
			}
		}
		if err := checkID(r, rec[0], first); err != nil {
			return err
		}
		first = false
	}
	if src.confidences != nil {
		rec, err := src.confidences.row(n)
		if err != nil {
			return err
		}
		if err := parseFloats(r.Conf, rec, "confidences"); err != nil {
			return err
		}
		if err := checkID(r, rec[0], first); err != nil {
			return err
		}
		first = false
	}
	if src.summary != nil {
		id, err := src.nextSummary(r, n)
		if err != nil {
			return err
		}
		if err := checkID(r, id, first); err != nil {
			return err
		}
	}
	return nil
}

// nextSummary reads one "-A"/"-B" pair of summary lines and returns the
// probe set id they share.
func (src *TextSource) nextSummary(r *Record, n int) (string, error) {
	a, err := src.summary.row(n)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(a[0], "-A") {
		return "", errors.Wrapf(ErrMissingCompanionLine, "found probe set %s while a -A was expected", a[0])
	}
	id := strings.TrimSuffix(a[0], "-A")
	b, err := src.summary.peek()
	if err == io.EOF {
		return "", errors.Wrapf(ErrMissingCompanionLine, "summary table ended after %s", a[0])
	}
	if err != nil {
		return "", err
	}
	if b[0] != id+"-B" {
		return "", errors.Wrapf(ErrMissingCompanionLine, "found probe set %s after %s", b[0], a[0])
	}
	if err := parseFloats(r.NormX, a, "summary"); err != nil {
		return "", err
	}
	if b, err = src.summary.row(n); err != nil {
		return "", err
	}
	if err := parseFloats(r.NormY, b, "summary"); err != nil {
		return "", err
	}
	for i := range r.NormX {
		r.Delta[i], r.Size[i] = FromSignal(r.NormX[i], r.NormY[i])
	}
	return id, nil
}

func parseFloats(dst []float32, rec []string, name string) error {
	for i, v := range rec[1:] {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return errors.Wrapf(err, "%s table, probe set %s", name, rec[0])
		}
		dst[i] = float32(f)
	}
	return nil
}

// Close implements Source. It logs a warning for every table that still
// has unread lines.
func (src *TextSource) Close() error {
	for _, t := range []*table{src.calls, src.confidences, src.summary} {
		if t != nil && !t.atEnd() {
			log.Error.Printf("Warning: end of %s table was not reached", t.name)
		}
	}
	return nil
}
