package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/builder"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/devicedb"
)

var (
	buildOutput string
	buildName   string
)

var buildCmd = &cobra.Command{
	Use:   "build <description>",
	Short: "Build a device database from a device description",
	Long: `Parse a device description, repair its reachability, index it in reverse
and write the result as a device database.

The database is written next to the description unless --output is given.

Examples:
  fabric build xc7a35t.xdlrc
  fabric build --name xc7a35t -o /srv/parts/xc7a35t.fdb report.xdlrc`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "",
		"database file to write")
	buildCmd.Flags().StringVar(&buildName, "name", "",
		"part name overriding the one in the description")
}

func runBuild(cmd *cobra.Command, args []string) error {
	src := args[0]
	out := buildOutput
	if out == "" {
		out = strings.TrimSuffix(src, filepath.Ext(src)) + devicedb.Extension
	}

	opts := cfg.BuilderOptions(log)
	opts.Name = buildName
	dev, err := builder.BuildFile(context.Background(), src, opts)
	if err != nil {
		return err
	}
	if err := devicedb.Save(out, dev); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	printStats(w, dev)
	fmt.Fprintf(w, "Wrote %s\n", out)
	return nil
}
