package report

import (
	"io"
	"path"
	"strings"
	"unicode"

	"github.com/grailbio/base/tsv"
	"github.com/grailbio/microarray/container"
	"github.com/pkg/errors"
)

// ErrDatHeader is returned for a DAT header that does not follow the fixed
// scanner layout.
var ErrDatHeader = errors.New("DAT header malformed")

// DatHeaderColumns names the fields returned by ParseDatHeader.
var DatHeaderColumns = []string{
	"DAT Name", "CLS", "RWS", "XIN", "YIN", "VE", "Temp", "Power", "Date", "Scanner", "Num", "ChipType",
}

// fixedFields lists the width and stride of the fixed-width fields that
// follow "CLS=" in a DAT header.
var fixedFields = []struct{ width, stride int }{
	{5, 9},   // CLS
	{5, 9},   // RWS
	{3, 7},   // XIN
	{3, 6},   // YIN
	{3, 3},   // VE
	{7, 7},   // Temp
	{4, 4},   // Power
	{18, 18}, // Date
}

// ParseDatHeader splits a scanner DAT header, as stored in CEL files after
// "DatHeader=[lo..hi]", into the fields named by DatHeaderColumns.
func ParseDatHeader(h string) ([]string, error) {
	if len(h) < 2 {
		return nil, ErrDatHeader
	}
	s := h[2:]
	colon := strings.Index(s, ":CLS=")
	if colon < 0 {
		if colon = strings.IndexByte(s, ':'); colon < 0 {
			return nil, ErrDatHeader
		}
	}
	fields := make([]string, 0, len(DatHeaderColumns))
	fields = append(fields, s[:colon])
	s = s[colon+5:]
	for _, f := range fixedFields {
		if len(s) < f.stride || len(s) < f.width {
			return nil, errors.Wrapf(ErrDatHeader, "truncated at field %s", DatHeaderColumns[len(fields)])
		}
		fields = append(fields, strings.TrimRightFunc(s[:f.width], unicode.IsSpace))
		s = s[f.stride:]
	}
	// Scanner id.
	i := strings.IndexByte(s, ' ')
	if i < 0 || len(s) < i+2 {
		return nil, errors.Wrap(ErrDatHeader, "missing scanner")
	}
	fields = append(fields, s[:i])
	s = s[i+2:]
	// Scanner number, then a blank field before the chip type.
	if i = strings.Index(s, "\x14 "); i < 0 {
		return nil, errors.Wrap(ErrDatHeader, "missing scanner number")
	}
	fields = append(fields, strings.TrimRightFunc(s[:i], unicode.IsSpace))
	s = s[i+2:]
	if i = strings.Index(s, "\x14 "); i < 0 {
		return nil, errors.Wrap(ErrDatHeader, "missing chip type")
	}
	s = s[i+2:]
	i = strings.Index(s, ".1sq")
	if i < 0 {
		return nil, errors.Wrap(ErrDatHeader, "missing chip type")
	}
	return append(fields, s[:i]), nil
}

// DatHeader returns the DAT header of a Calvin or XDA CEL file.
func DatHeader(c *container.Container) (string, error) {
	if c.XDA != nil {
		return c.XDA.DatHeader()
	}
	f := c.Calvin
	if f.Header.TypeID != "affymetrix-calvin-intensity" {
		return "", errors.Errorf("AGCC CEL file %s does not contain calvin intensities", c.Path)
	}
	if len(f.Header.Parents) == 0 || f.Header.Parents[0].TypeID != "affymetrix-calvin-scan-acquisition" {
		return "", errors.Errorf("AGCC CEL file %s is missing scan acquisition information", c.Path)
	}
	p := f.Header.Parents[0].Find("affymetrix-partial-dat-header")
	if p == nil {
		return "", errors.Errorf("AGCC CEL file %s is missing DAT header", c.Path)
	}
	return p.Text()
}

// CELSummary writes one line per CEL file with its DAT header fields,
// preceded by a header line.
func CELSummary(cs []*container.Container, w io.Writer) error {
	out := tsv.NewWriter(w)
	out.WriteString("cel_files")
	for _, col := range DatHeaderColumns {
		out.WriteString(col)
	}
	if err := out.EndLine(); err != nil {
		return err
	}
	for _, c := range cs {
		h, err := DatHeader(c)
		if err != nil {
			return err
		}
		fields, err := ParseDatHeader(h)
		if err != nil {
			return errors.Wrapf(err, "%s", c.Path)
		}
		out.WriteString(path.Base(c.Path))
		for _, f := range fields {
			out.WriteString(f)
		}
		if err := out.EndLine(); err != nil {
			return err
		}
	}
	return out.Flush()
}
