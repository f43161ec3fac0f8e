package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/markkurossi/tabulate"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/builder"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/devicedb"
)

// openDevice loads a device named by a database file, a description file or
// a part name looked up in the device directory.
func openDevice(cmd *cobra.Command, arg string) (*device.Device, error) {
	var s *spinner.Spinner
	if !verbose {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond,
			spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = " loading " + arg
		s.Start()
		defer s.Stop()
	}

	switch strings.ToLower(filepath.Ext(arg)) {
	case devicedb.Extension:
		return devicedb.Load(arg)
	case ".xdlrc":
		return builder.BuildFile(context.Background(), arg, cfg.BuilderOptions(log))
	}
	repo := device.NewMemoryRepository(
		devicedb.DirLoader(cfg.DeviceDir, cfg.BuilderOptions(log)), cfg.RepositoryCapacity)
	return repo.Get(arg)
}

func printStats(w io.Writer, dev *device.Device) {
	st := dev.Stats()
	fmt.Fprintf(w, "Device %s: %d rows x %d columns\n\n", dev.Name, dev.Rows, dev.Columns)

	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Item").SetAlign(tabulate.ML)
	tab.Header("Count").SetAlign(tabulate.MR)
	for _, item := range []struct {
		label string
		count int
	}{
		{"Tiles", st.Tiles},
		{"Sites", st.Sites},
		{"Site types", st.SiteTypes},
		{"Wire names", st.WireNames},
		{"Wires", st.Wires},
		{"Connections", st.Connections},
		{"PIPs", st.PIPs},
		{"Unique arrays", st.UniqueArrays},
		{"Array references", st.SharedRefs},
	} {
		row := tab.Row()
		row.Column(item.label)
		row.Column(fmt.Sprint(item.count))
	}
	tab.Print(w)

	indexed := "no"
	if dev.Indexed() {
		indexed = "yes"
	}
	fmt.Fprintf(w, "Reverse index: %s\n", indexed)
}
