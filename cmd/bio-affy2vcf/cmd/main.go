package cmd

import (
	"v.io/x/lib/cmdline"
)

// Run parses the command line and runs the selected subcommand.
func Run() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-affy2vcf",
			Short:    "Tools for converting Affymetrix CHP and CEL files",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdConvert(),
				newCmdView(),
				newCmdChipSummary(),
				newCmdCELSummary(),
				newCmdSex(),
				newCmdFlank(),
			},
		})
}
