package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceFabric/internal/config"
)

var (
	// Global flags
	verbose    bool
	configFile string
	deviceDir  string

	cfg *config.Config
	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "fabric",
	Short: "FPGA routing fabric builder and route converter",
	Long: `Build routing-fabric models from device descriptions, inspect them, and
convert physical net routes between route-command files and route trees.

Examples:
  fabric build xc7a35t.xdlrc                  # Build and cache a device database
  fabric info xc7a35t                         # Show statistics of a cached part
  fabric import xc7a35t design.rcf            # Reconstruct the routes of a design
  fabric export xc7a35t design.rcf -o out.rcf # Write the routes back in canonical form`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"configuration file (default ~/.config/opentracefabric/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&deviceDir, "device-dir", "d", "",
		"directory holding device databases and descriptions")
}

func setup(cmd *cobra.Command, args []string) error {
	log.SetOutput(cmd.ErrOrStderr())
	log.SetLevel(logrus.InfoLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	c, err := config.Load(configFile, log)
	if err != nil {
		return err
	}
	if deviceDir != "" {
		c.DeviceDir = deviceDir
	}
	cfg = c
	return nil
}
