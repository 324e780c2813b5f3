package cmd

import (
	"context"
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/microarray/container"
	"github.com/grailbio/microarray/encoding/calvin"
	"github.com/grailbio/microarray/report"
	"v.io/x/lib/cmdline"
)

func newCmdView() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "view",
		Short:    "Print the structure of a CHP or CEL file",
		ArgsName: "path",
	}
	verbose := cmd.Flags.Bool("verbose", false, "Also print data rows and cell entries")
	outPath := cmd.Flags.String("output", "-", "Output path")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("view takes one pathname argument, but got %v", argv)
		}
		return view(vcontext.Background(), argv[0], *outPath, *verbose)
	})
	return cmd
}

func view(ctx context.Context, path, outPath string, verbose bool) (err error) {
	c, err := container.Open(ctx, path, container.Opts{})
	if err != nil {
		return err
	}
	defer func() {
		if e := c.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	out, err := createOutput(ctx, outPath, false)
	if err != nil {
		return err
	}
	if c.XDA != nil {
		err = c.XDA.Print(out, verbose)
	} else {
		err = c.Calvin.Print(out, verbose)
	}
	if e := out.Close(); e != nil && err == nil {
		err = e
	}
	return err
}

func newCmdChipSummary() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "chipsummary",
		Short:    "Write the chip summary statistics of CHP files as a table",
		ArgsName: "[A.chp ...]",
	}
	chps := cmd.Flags.String("chps", "", "Directory of input CHP files, or a single CHP file")
	outPath := cmd.Flags.String("output", "-", "Output path")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		ctx := vcontext.Background()
		return summarize(ctx, argv, *chps, "chp", *outPath, func(cs []*container.Container, out *output) error {
			files, err := container.CalvinFiles(cs)
			if err != nil {
				return err
			}
			return calvin.ChipSummary(files, out)
		})
	})
	return cmd
}

func newCmdCELSummary() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "celsummary",
		Short:    "Write the DAT headers of CEL files as a table",
		ArgsName: "[A.CEL ...]",
	}
	cels := cmd.Flags.String("cels", "", "Directory of input CEL files, or a single CEL file")
	outPath := cmd.Flags.String("output", "-", "Output path")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		ctx := vcontext.Background()
		return summarize(ctx, argv, *cels, "cel", *outPath, func(cs []*container.Container, out *output) error {
			return report.CELSummary(cs, out)
		})
	})
	return cmd
}

// summarize opens the given files plus those found in dir, and writes fn's
// table to outPath.
func summarize(ctx context.Context, paths []string, dir, ext, outPath string,
	fn func([]*container.Container, *output) error) (err error) {
	if dir != "" {
		listed, err := listFiles(ctx, dir, ext)
		if err != nil {
			return err
		}
		paths = append(paths, listed...)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no %s files given", ext)
	}
	if err := raiseFileLimit(len(paths)); err != nil {
		return err
	}
	cs, err := container.OpenAll(ctx, paths)
	if err != nil {
		return err
	}
	defer func() {
		if e := container.CloseAll(ctx, cs); e != nil && err == nil {
			err = e
		}
	}()
	out, err := createOutput(ctx, outPath, false)
	if err != nil {
		return err
	}
	err = fn(cs, out)
	if e := out.Close(); e != nil && err == nil {
		err = e
	}
	return err
}
