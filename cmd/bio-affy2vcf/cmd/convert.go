package cmd

import (
	"context"
	"fmt"
	"os"
	"path"
	"runtime"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/microarray/assemble"
	"github.com/grailbio/microarray/cluster"
	"github.com/grailbio/microarray/container"
	"github.com/grailbio/microarray/encoding/fasta"
	"github.com/grailbio/microarray/encoding/vcf"
	"github.com/grailbio/microarray/genotype"
	"github.com/grailbio/microarray/manifest"
	"v.io/x/lib/cmdline"
)

type convertFlags struct {
	csv, ref                    string
	calls, confidences, summary string
	models, chps                string
	output, outputType          string
	threads                     int
	adjustClusters, noVersion   bool
	verbose                     bool
}

func newCmdConvert() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "convert",
		Short:    "Convert apt-probeset-genotype output to VCF",
		ArgsName: "[A.chp ...]",
		Long: `
Genotypes come either from CHP files, given as arguments or with --chps, or
from the tab-delimited --calls, --confidences and --summary tables. With
neither, one record per manifest marker is written.`,
	}
	var f convertFlags
	cmd.Flags.StringVar(&f.csv, "csv", "", "CSV manifest file")
	cmd.Flags.StringVar(&f.ref, "fasta-ref", "", "Reference sequence in FASTA format")
	cmd.Flags.StringVar(&f.calls, "calls", "", "apt-probeset-genotype calls output")
	cmd.Flags.StringVar(&f.confidences, "confidences", "", "apt-probeset-genotype confidences output")
	cmd.Flags.StringVar(&f.summary, "summary", "", "apt-probeset-genotype summary output")
	cmd.Flags.StringVar(&f.models, "models", "", "apt-probeset-genotype SNP models output")
	cmd.Flags.StringVar(&f.chps, "chps", "", "Directory of input CHP files, or a single CHP file")
	cmd.Flags.BoolVar(&f.adjustClusters, "adjust-clusters", false, "Adjust cluster centers in (Contrast, Size) space (requires --models)")
	cmd.Flags.BoolVar(&f.noVersion, "no-version", false, "Do not append version and command line to the header")
	cmd.Flags.StringVar(&f.output, "output", "-", "Output VCF path")
	cmd.Flags.StringVar(&f.outputType, "output-type", "", `"z" for BGZF-compressed VCF, "v" for plain VCF. By default, z if the output ends in .gz`)
	cmd.Flags.IntVar(&f.threads, "threads", 0, "Number of output compression threads; 0 = runtime.NumCPU()")
	cmd.Flags.BoolVar(&f.verbose, "verbose", false, "Log every skipped marker")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		return convert(vcontext.Background(), f, argv)
	})
	return cmd
}

func (f convertFlags) validate(nchps int) error {
	if f.csv == "" || f.ref == "" {
		return fmt.Errorf("convert requires --csv and --fasta-ref")
	}
	if f.adjustClusters && f.models == "" {
		return fmt.Errorf("--adjust-clusters requires --models")
	}
	if f.adjustClusters && nchps == 0 && f.summary == "" {
		return fmt.Errorf("--adjust-clusters requires --summary or CHP files")
	}
	if nchps > 0 && (f.calls != "" || f.confidences != "" || f.summary != "") {
		return fmt.Errorf("cannot load tables --calls, --confidences, --summary if CHP files are provided instead")
	}
	switch f.outputType {
	case "", "v", "z":
	default:
		return fmt.Errorf("unknown output type %q", f.outputType)
	}
	return nil
}

func convert(ctx context.Context, f convertFlags, chps []string) (err error) {
	if f.chps != "" {
		listed, err := listFiles(ctx, f.chps, "chp")
		if err != nil {
			return err
		}
		chps = append(chps, listed...)
	}
	if err := f.validate(len(chps)); err != nil {
		return err
	}
	if err := raiseFileLimit(len(chps)); err != nil {
		return err
	}
	opts := assemble.DefaultOpts
	opts.AdjustClusters = f.adjustClusters
	opts.Verbose = f.verbose

	log.Printf("Reading CSV file %s", f.csv)
	csvIn, err := openText(ctx, f.csv)
	if err != nil {
		return err
	}
	m, err := manifest.Read(csvIn)
	closeAll(csvIn)
	if err != nil {
		return errors.E(err, f.csv)
	}

	var src genotype.Source
	if len(chps) > 0 {
		cs, err := container.OpenAll(ctx, chps)
		if err != nil {
			return err
		}
		defer container.CloseAll(ctx, cs) // nolint: errcheck
		files, err := container.CalvinFiles(cs)
		if err != nil {
			return err
		}
		if src, err = genotype.NewBinarySource(files); err != nil {
			return err
		}
	} else if f.calls != "" || f.confidences != "" || f.summary != "" {
		calls, err := openText(ctx, f.calls)
		if err != nil {
			return err
		}
		confidences, err := openText(ctx, f.confidences)
		if err != nil {
			closeAll(calls)
			return err
		}
		summary, err := openText(ctx, f.summary)
		if err != nil {
			closeAll(calls, confidences)
			return err
		}
		defer closeAll(calls, confidences, summary)
		in := genotype.TextInputs{}
		if calls != nil {
			in.Calls = calls
		}
		if confidences != nil {
			in.Confidences = confidences
		}
		if summary != nil {
			in.Summary = summary
		}
		if src, err = genotype.NewTextSource(in); err != nil {
			return err
		}
	}
	if src != nil {
		defer func() {
			if e := src.Close(); e != nil && err == nil {
				err = e
			}
		}()
	}

	ref, err := fasta.Open(ctx, f.ref)
	if err != nil {
		return err
	}
	defer ref.Close(ctx) // nolint: errcheck

	var models *cluster.Models
	if f.models != "" {
		log.Printf("Reading SNP file %s", f.models)
		in, err := openText(ctx, f.models)
		if err != nil {
			return err
		}
		models, err = cluster.Read(in)
		closeAll(in)
		if err != nil {
			return errors.E(err, f.models)
		}
	}

	var (
		fields  genotype.Fields
		samples []string
	)
	if src != nil {
		fields, samples = src.Fields(), src.Samples()
	}
	h, err := assemble.NewHeader(ref, fields, samples, models != nil)
	if err != nil {
		return err
	}
	h.AddMeta("CSV", path.Base(f.csv))
	if f.models != "" {
		h.AddMeta("SNP", path.Base(f.models))
	}
	if !f.noVersion {
		h.AddMeta("bio-affy2vcfVersion", version)
		h.AddMeta("bio-affy2vcfCommand", strings.Join(os.Args, " "))
	}

	log.Printf("Writing VCF file")
	out, err := createOutput(ctx, f.output, true)
	if err != nil {
		return err
	}
	defer func() {
		if e := out.Close(); e != nil && err == nil {
			err = e
		}
	}()
	threads := f.threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	w, err := vcf.NewWriter(out, h, vcf.Opts{
		Compress:    f.outputType == "z" || (f.outputType == "" && strings.HasSuffix(f.output, ".gz")),
		Parallelism: threads,
	})
	if err != nil {
		return err
	}
	if _, err = assemble.Run(ctx, opts, m, models, src, ref, w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
