package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/rcf"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <part|file> <routes>",
	Short: "Rewrite a route-command file in canonical form",
	Long: `Import a route-command file and write the design back out: site
configuration first, then every net with its routes re-exported from the
reconstructed route trees.

Examples:
  fabric export xc7a35t design.rcf
  fabric export -o canonical.rcf xc7a35t design.rcf`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	addImportFlags(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"file to write (default standard output)")
}

func runExport(cmd *cobra.Command, args []string) error {
	d, err := importRoutes(cmd, args[0], args[1])
	if err != nil {
		return err
	}
	if exportOutput == "" {
		return rcf.Write(cmd.OutOrStdout(), d)
	}

	f, err := os.Create(exportOutput)
	if err != nil {
		return errors.Wrap(err, "creating route file")
	}
	if err := rcf.Write(f, d); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "closing route file")
}
