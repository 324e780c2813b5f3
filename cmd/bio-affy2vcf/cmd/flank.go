package cmd

import (
	"context"
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/microarray/manifest"
	"v.io/x/lib/cmdline"
)

func newCmdFlank() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "flank",
		Short: "Write manifest flank sequences as FASTA, or realign a manifest from their alignments",
		Long: `
Without --sam-flank, writes two FASTA records per probe set, one for each
allele of its flank. Once aligned to a new reference, pass the SAM output
with --sam-flank to rewrite the manifest coordinates.`,
	}
	csv := cmd.Flags.String("csv", "", "CSV manifest file")
	samFlank := cmd.Flags.String("sam-flank", "", "SAM alignments of the flank sequences")
	outPath := cmd.Flags.String("output", "-", "Output path")
	verbose := cmd.Flags.Bool("verbose", false, "Log every probe set that could not be placed")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("flank takes no arguments, but got %v", argv)
		}
		if *csv == "" {
			return fmt.Errorf("flank requires --csv")
		}
		return flank(vcontext.Background(), *csv, *samFlank, *outPath, *verbose)
	})
	return cmd
}

func flank(ctx context.Context, csvPath, samPath, outPath string, verbose bool) (err error) {
	in, err := openText(ctx, csvPath)
	if err != nil {
		return err
	}
	defer closeAll(in)
	out, err := createOutput(ctx, outPath, false)
	if err != nil {
		return err
	}
	defer func() {
		if e := out.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if samPath == "" {
		if err = manifest.WriteFlankFasta(in, out); err != nil {
			return errors.E(err, csvPath)
		}
		return nil
	}
	alignments, err := openText(ctx, samPath)
	if err != nil {
		return err
	}
	defer closeAll(alignments)
	stats, err := manifest.Realign(in, alignments, out, manifest.RealignOpts{Verbose: verbose})
	if err != nil {
		return errors.E(err, csvPath)
	}
	log.Printf("Lines   total/unmapped:\t%d/%d", stats.Total, stats.Unmapped)
	return nil
}
