package cmd

import (
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <part|file>",
	Short: "Show statistics of a device",
	Long: `Load a device and print the size of its routing graph.

The argument is a device database (.fdb), a device description (.xdlrc) or a
part name looked up in the device directory.

Examples:
  fabric info xc7a35t
  fabric info -d /srv/parts xc7a35t
  fabric info report.xdlrc`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	dev, err := openDevice(cmd, args[0])
	if err != nil {
		return err
	}
	printStats(cmd.OutOrStdout(), dev)
	return nil
}
