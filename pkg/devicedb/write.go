// Package devicedb persists built devices. A database is a bzip2 stream of
// text lines: the wire-name table, one table of every distinct connection
// array, then the site templates and tiles referring to those arrays by
// index. Loading interns the arrays again, so the loaded device shares
// storage exactly like the one that was saved.
package devicedb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/pkg/errors"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
)

const (
	magic   = "fabricdb"
	version = 1

	// Extension is the file extension of device databases.
	Extension = ".fdb"
)

// arrayTable numbers distinct connection arrays in order of first use.
type arrayTable struct {
	index map[string]int
	lines []string
}

func (t *arrayTable) ref(conns []device.WireConnection) int {
	line := encodeConnections(conns)
	if i, ok := t.index[line]; ok {
		return i
	}
	i := len(t.lines)
	t.index[line] = i
	t.lines = append(t.lines, line)
	return i
}

func encodeConnections(conns []device.WireConnection) string {
	parts := make([]string, len(conns))
	for i, c := range conns {
		pip := 0
		if c.PIP {
			pip = 1
		}
		parts[i] = fmt.Sprintf("%d,%d,%d,%d", c.Wire, c.RowOffset, c.ColumnOffset, pip)
	}
	return strings.Join(parts, " ")
}

func sortedWires(m map[device.WireID][]device.WireConnection) []device.WireID {
	out := make([]device.WireID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Write encodes dev to w.
func Write(w io.Writer, dev *device.Device) error {
	bz, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		return errors.Wrap(err, "bzip2 writer")
	}
	bw := bufio.NewWriter(bz)

	arrays := &arrayTable{index: make(map[string]int)}
	var body strings.Builder
	for _, tmpl := range dev.Templates() {
		writeTemplate(&body, tmpl, arrays)
	}
	for _, tile := range dev.Tiles() {
		writeTile(&body, tile, arrays)
	}

	indexed := 0
	if dev.Indexed() {
		indexed = 1
	}
	fmt.Fprintf(bw, "%s %d\n", magic, version)
	fmt.Fprintf(bw, "device %s %d %d %d\n", dev.Name, dev.Rows, dev.Columns, indexed)
	names := dev.Wires.Names()
	fmt.Fprintf(bw, "wires %d\n", len(names))
	for _, name := range names {
		fmt.Fprintln(bw, name)
	}
	fmt.Fprintf(bw, "arrays %d\n", len(arrays.lines))
	for _, line := range arrays.lines {
		fmt.Fprintln(bw, line)
	}
	bw.WriteString(body.String())
	fmt.Fprintln(bw, "eof")

	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "writing device database")
	}
	return errors.Wrap(bz.Close(), "closing bzip2 stream")
}

func writeTemplate(w io.Writer, tmpl *device.SiteTemplate, arrays *arrayTable) {
	names := tmpl.Wires.Names()
	fmt.Fprintf(w, "template %s %d\n", tmpl.Name, len(names))
	for _, name := range names {
		fmt.Fprintln(w, name)
	}
	for _, p := range tmpl.Pins() {
		fmt.Fprintf(w, "pin %s %s %d\n", p.Name, p.Direction, p.Wire)
	}
	for _, bel := range tmpl.BELs() {
		pins := make([]string, 0, len(bel.Pins))
		for name := range bel.Pins {
			pins = append(pins, name)
		}
		sort.Strings(pins)
		for _, name := range pins {
			p := bel.Pins[name]
			fmt.Fprintf(w, "belpin %s %s %s %d\n", bel.Name, p.Name, p.Direction, p.Wire)
		}
	}
	pips := tmpl.SitePIPs()
	edges := make([]device.Edge, 0, len(pips))
	for e := range pips {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	for _, e := range edges {
		fmt.Fprintf(w, "sitepip %d %d %s %s\n", e.From, e.To, pips[e].Element, pips[e].Option)
	}
	for _, e := range tmpl.Routethroughs() {
		fmt.Fprintf(w, "rt %d %d\n", e.From, e.To)
	}
	for _, id := range tmpl.SourceWires() {
		fmt.Fprintf(w, "adj %d %d\n", id, arrays.ref(tmpl.Connections(id)))
	}
	rev := tmpl.ReverseTable()
	for _, id := range sortedWires(rev) {
		fmt.Fprintf(w, "rev %d %d\n", id, arrays.ref(rev[id]))
	}
	fmt.Fprintln(w, "end")
}

func writeTile(w io.Writer, tile *device.Tile, arrays *arrayTable) {
	fmt.Fprintf(w, "tile %d %d %s %s\n", tile.Row, tile.Column, tile.Name, tile.Type)
	if ids := tile.Wires(); len(ids) > 0 {
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(w, "declare %s\n", strings.Join(parts, " "))
	}
	for _, s := range tile.Sites {
		bonded := s.Bonded
		if bonded == "" {
			bonded = "-"
		}
		alts := "-"
		if len(s.Alternatives) > 0 {
			alts = strings.Join(s.Alternatives, ",")
		}
		fmt.Fprintf(w, "site %s %s %s %s\n", s.Name, s.Type.Name, bonded, alts)
		for _, pin := range s.PinNames() {
			wire, _ := s.PinWire(pin)
			fmt.Fprintf(w, "pinwire %s %s %d\n", s.Name, pin, wire.ID)
		}
	}
	for _, id := range tile.SourceWires() {
		fmt.Fprintf(w, "adj %d %d\n", id, arrays.ref(tile.Connections(id)))
	}
	rev := tile.ReverseTable()
	for _, id := range sortedWires(rev) {
		fmt.Fprintf(w, "rev %d %d\n", id, arrays.ref(rev[id]))
	}
	fmt.Fprintln(w, "end")
}

// Save writes dev to path.
func Save(path string, dev *device.Device) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating device database")
	}
	if err := Write(f, dev); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "closing device database")
}
