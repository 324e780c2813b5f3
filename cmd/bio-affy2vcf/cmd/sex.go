package cmd

import (
	"context"
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/microarray/report"
	"v.io/x/lib/cmdline"
)

func newCmdSex() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "sex",
		Short:    "Write the computed genders of an apt-probeset-genotype report as a sex file",
		ArgsName: "report.txt",
	}
	outPath := cmd.Flags.String("output", "-", "Output path")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("sex takes one report path, but got %v", argv)
		}
		return sex(vcontext.Background(), argv[0], *outPath)
	})
	return cmd
}

func sex(ctx context.Context, reportPath, outPath string) (err error) {
	in, err := openText(ctx, reportPath)
	if err != nil {
		return err
	}
	samples, err := report.ReadGenders(in)
	closeAll(in)
	if err != nil {
		return errors.E(err, reportPath)
	}
	out, err := createOutput(ctx, outPath, false)
	if err != nil {
		return err
	}
	err = report.WriteSex(out, samples)
	if e := out.Close(); e != nil && err == nil {
		err = e
	}
	return err
}
