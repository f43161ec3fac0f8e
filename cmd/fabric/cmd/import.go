package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/markkurossi/tabulate"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/design"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/rcf"
)

var (
	skipUnreachable bool
	concurrency     int
)

var importCmd = &cobra.Command{
	Use:   "import <part|file> <routes>",
	Short: "Reconstruct the routes of a route-command file",
	Long: `Load a device, apply the declarations of a route-command file and
reconstruct every net route on the device. Prints one line per net.

Any error rejects the whole file unless --skip-unreachable is given, in which
case nets whose searches fail are left unrouted.

Examples:
  fabric import xc7a35t design.rcf
  fabric import --skip-unreachable -j 8 xc7a35t.fdb design.rcf`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	addImportFlags(importCmd)
}

func addImportFlags(c *cobra.Command) {
	c.Flags().BoolVar(&skipUnreachable, "skip-unreachable", false,
		"leave nets with unreachable targets unrouted")
	c.Flags().IntVarP(&concurrency, "jobs", "j", 0,
		"nets reconstructed at once (default import_concurrency)")
}

// importRoutes loads the device and imports the route file into a new design
// named after the file.
func importRoutes(cmd *cobra.Command, part, path string) (*design.Design, error) {
	dev, err := openDevice(cmd, part)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	d := design.New(name, dev)

	jobs := cfg.ImportConcurrency
	if concurrency > 0 {
		jobs = concurrency
	}
	im := rcf.NewImporter(d, rcf.Options{
		Route:           cfg.RouteOptions(log),
		Concurrency:     jobs,
		SkipUnreachable: skipUnreachable,
		Logger:          log,
	})
	if err := im.ImportFile(context.Background(), path); err != nil {
		return nil, err
	}
	return d, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	d, err := importRoutes(cmd, args[0], args[1])
	if err != nil {
		return err
	}

	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Net").SetAlign(tabulate.ML)
	tab.Header("Type").SetAlign(tabulate.ML)
	tab.Header("Trees").SetAlign(tabulate.MR)
	tab.Header("Wires").SetAlign(tabulate.MR)
	tab.Header("Site routes").SetAlign(tabulate.MR)
	tab.Header("Implicit sinks").SetAlign(tabulate.MR)

	routed := 0
	for _, net := range d.Nets() {
		row := tab.Row()
		row.Column(net.Name)
		row.Column(net.Type.String())
		if !net.Routed() {
			for i := 0; i < 4; i++ {
				row.Column("-").SetFormat(tabulate.FmtItalic)
			}
			continue
		}
		routed++
		wires := 0
		for _, tree := range net.Trees {
			wires += tree.Len()
		}
		row.Column(fmt.Sprint(len(net.Trees)))
		row.Column(fmt.Sprint(wires))
		row.Column(fmt.Sprint(len(net.SiteRoutes)))
		row.Column(fmt.Sprint(len(net.ImplicitSinks)))
	}

	w := cmd.OutOrStdout()
	tab.Print(w)
	fmt.Fprintf(w, "Routed %d of %d net(s) on %s\n", routed, len(d.Nets()), d.Device.Name)
	return nil
}
