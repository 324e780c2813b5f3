package calvin

import (
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"
)

// The first and second letters of each call code, indexed by its low four
// bits.
const (
	callFirst  = "......ABA..N...."
	callSecond = "......ABB..C...."
)

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err == nil {
		_, p.err = fmt.Fprintf(p.w, format, args...)
	}
}

// Print writes a textual dump of the file structure to w. Rows of the
// Genotype data set are included only when verbose is set.
func (f *File) Print(w io.Writer, verbose bool) error {
	p := &printer{w: w}
	p.printf("#%%File=%s\n#%%FileSize=%d\n#%%Magic=%d\n#%%Version=%d\n", f.Path, f.Size, f.Magic, f.Version)
	p.header(&f.Header)
	for i := range f.Groups {
		g := &f.Groups[i]
		p.printf("#%%GroupName=%s\n", g.Name)
		for j := range g.Sets {
			if err := p.dataSet(&g.Sets[j], verbose); err != nil {
				return err
			}
		}
	}
	return p.err
}

func (p *printer) header(h *DataHeader) {
	if h.GUID != "" {
		p.printf("#%%FileIdentifier=%s\n", h.GUID)
	}
	p.printf("#%%FileTypeIdentifier=%s\n#%%FileLocale=%s\n", h.TypeID, h.Locale)
	p.parameters(h.Parameters)
	for i := range h.Parents {
		p.header(&h.Parents[i])
	}
}

func (p *printer) parameters(params []Parameter) {
	for i := range params {
		param := &params[i]
		if param.Dropped {
			continue
		}
		p.printf("#%%%s=%s\n", param.Name, FormatValue(param))
	}
}

// FormatValue renders a parameter value the way the dump shows it. Values
// that cannot be decoded are rendered empty.
func FormatValue(p *Parameter) string {
	switch p.Type {
	case Float:
		v, err := p.Float()
		if err != nil {
			return ""
		}
		return strconv.FormatFloat(float64(v), 'f', 6, 32)
	case String, WString:
		s, _ := p.Text()
		return s
	default:
		v, err := p.Int()
		if err != nil {
			return ""
		}
		return strconv.FormatInt(v, 10)
	}
}

func (p *printer) dataSet(ds *DataSet, verbose bool) error {
	p.printf("#%%SetName=%s\n#%%Columns=%d\n#%%Rows=%d\n", ds.Name, len(ds.Columns), ds.RowCount)
	p.parameters(ds.Parameters)
	for i, c := range ds.Columns {
		sep := '\t'
		if i+1 == len(ds.Columns) {
			sep = '\n'
		}
		p.printf("%s%c", c.Name, sep)
	}
	if ds.RowCount == 0 {
		return nil
	}
	if !verbose {
		p.printf("... use --verbose to visualize Data Set ...\n")
		return nil
	}
	if ds.Name != "Genotype" {
		p.printf("... can only visualize Genotype Data Set ...\n")
		return nil
	}
	render := make([]func(c *Cursor, col int) string, len(ds.Columns))
	for i, c := range ds.Columns {
		switch c.Name {
		case "ProbeSetName":
			render[i] = (*Cursor).String
		case "Call", "Forced Call":
			render[i] = formatCall
		case "Confidence", "Log Ratio", "Strength", "Signal A", "Signal B":
			render[i] = formatFloat
		default:
			return errors.Wrapf(ErrUnknownTypeTag, "unknown column %s in AGCC file with type %d", c.Name, c.Type)
		}
	}
	cur, err := NewCursor(ds)
	if err != nil {
		return err
	}
	if err := cur.SeekToFirstRow(); err != nil {
		return err
	}
	for r := uint32(0); r < ds.RowCount; r++ {
		if err := cur.Next(); err != nil {
			return err
		}
		for i := range ds.Columns {
			sep := '\t'
			if i+1 == len(ds.Columns) {
				sep = '\n'
			}
			p.printf("%s%c", render[i](cur, i), sep)
		}
	}
	return p.err
}

func formatCall(c *Cursor, col int) string {
	code := c.Uint8(col) & 0x0F
	return string([]byte{callFirst[code], callSecond[code]})
}

func formatFloat(c *Cursor, col int) string {
	return strconv.FormatFloat(float64(c.Float32(col)), 'g', 6, 32)
}

// ChipSummaryKeys lists, in output order, the chip summary statistics that
// apt stores in CHP headers as "affymetrix-chipsummary-<key>".
var ChipSummaryKeys = []string{
	"computed_gender",
	"call_rate",
	"total_call_rate",
	"het_rate",
	"total_het_rate",
	"hom_rate",
	"total_hom_rate",
	"cluster_distance_mean",
	"cluster_distance_stdev",
	"allele_summarization_mean",
	"allele_summarization_stdev",
	"allele_deviation_mean",
	"allele_deviation_stdev",
	"allele_mad_residuals_mean",
	"allele_mad_residuals_stdev",
	"cn-probe-chrXY-ratio_gender_meanX",
	"cn-probe-chrXY-ratio_gender_meanY",
	"cn-probe-chrXY-ratio_gender_ratio",
	"cn-probe-chrXY-ratio_gender",
	"pm_mean",
}

// ChipSummary writes one tab-separated line of chip summary statistics per
// CHP file, preceded by a header line.
func ChipSummary(files []*File, w io.Writer) error {
	out := tsv.NewWriter(w)
	out.WriteString("chp_files")
	for _, key := range ChipSummaryKeys {
		out.WriteString(key)
	}
	if err := out.EndLine(); err != nil {
		return err
	}
	for _, f := range files {
		out.WriteString(path.Base(f.Path))
		for _, key := range ChipSummaryKeys {
			param := f.Header.Find("affymetrix-chipsummary-" + key)
			if param == nil {
				return errors.Errorf("AGCC file %s is missing chip summary parameter %s", f.Path, key)
			}
			switch param.Type {
			case Float:
				v, err := param.Float()
				if err != nil {
					return errors.Wrapf(err, "%s", f.Path)
				}
				out.WriteString(strconv.FormatFloat(float64(v), 'f', 5, 32))
			case String, WString:
				s, _ := param.Text()
				out.WriteString(s)
			default:
				return errors.Errorf("unable to print parameter %s of type %v from AGCC file %s", param.Name, param.Type, f.Path)
			}
		}
		if err := out.EndLine(); err != nil {
			return err
		}
	}
	return out.Flush()
}
