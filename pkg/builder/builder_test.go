package builder_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/OpenTraceLab/OpenTraceFabric/internal/fabrictest"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/builder"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/xdlrc"
)

// rawGraph records the edges and wire classes exactly as the description
// states them, keyed by "TILE/WIRE".
type rawGraph struct {
	tile   string
	wire   string
	edges  map[string][]string
	sinks  map[string]bool
	source map[string]bool
}

func newRawGraph() *rawGraph {
	return &rawGraph{
		edges:  make(map[string][]string),
		sinks:  make(map[string]bool),
		source: make(map[string]bool),
	}
}

func (g *rawGraph) observe(ev *xdlrc.Event) {
	switch ev.Kind {
	case xdlrc.KindTile:
		g.tile = ev.Name
	case xdlrc.KindWire:
		g.wire = g.tile + "/" + ev.Name
	case xdlrc.KindConn:
		g.edges[g.wire] = append(g.edges[g.wire], ev.Target+"/"+ev.Wire)
	case xdlrc.KindPIP:
		g.sinks[g.tile+"/"+ev.From] = true
		g.source[g.tile+"/"+ev.To] = true
	case xdlrc.KindSitePin:
		name := g.tile + "/" + ev.Wire
		if ev.Direction == "input" {
			g.sinks[name] = true
		} else {
			g.source[name] = true
		}
	}
}

func buildRecorded(t *testing.T, opts builder.Options) (*device.Device, *rawGraph) {
	t.Helper()
	opts.Logger = fabrictest.Logger()
	b := builder.New(opts)
	raw := newRawGraph()
	err := xdlrc.NewParser(strings.NewReader(fabrictest.Description), "fabric.xdlrc").Parse(xdlrc.HandlerFunc(func(ev *xdlrc.Event) error {
		raw.observe(ev)
		return b.Handle(ev)
	}))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	dev, err := b.Finish(context.Background())
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	return dev, raw
}

func hasDirectEdge(dev *device.Device, from, to device.Wire) bool {
	for _, c := range dev.Connections(from) {
		if !c.PIP && from.Follow(c) == to {
			return true
		}
	}
	return false
}

func TestBuildFixture(t *testing.T) {
	dev := fabrictest.Device(t)
	if dev.Name != "xctest" {
		t.Errorf("expected part name xctest, got %q", dev.Name)
	}
	if !dev.Indexed() {
		t.Fatal("reverse index not built")
	}
	st := dev.Stats()
	if st.Tiles != 9 || st.Sites != 2 || st.SiteTypes != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	ref, ok := dev.SitePinAt(fabrictest.Wire(t, dev, "CLB_X4Y3/CLB_A1"))
	if !ok || ref.Site.Name != "SLICE_X4Y3" || ref.Pin.Name != "A1" {
		t.Fatalf("site pin not bound: %+v", ref)
	}
	if ref.Pin.Direction != device.DirectionInput {
		t.Errorf("expected input pin, got %s", ref.Pin.Direction)
	}
}

func TestRepairCompleteness(t *testing.T) {
	dev, raw := buildRecorded(t, builder.Options{Filename: "fabric.xdlrc"})
	checked := 0
	for w1 := range raw.source {
		seen := map[string]bool{w1: true}
		queue := []string{w1}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range raw.edges[cur] {
				if seen[next] {
					continue
				}
				seen[next] = true
				queue = append(queue, next)
				if !raw.sinks[next] {
					continue
				}
				checked++
				from := fabrictest.Wire(t, dev, w1)
				to := fabrictest.Wire(t, dev, next)
				if !hasDirectEdge(dev, from, to) {
					t.Errorf("no direct edge %s -> %s after repair", w1, next)
				}
			}
		}
	}
	if checked == 0 {
		t.Fatal("fixture exercised no reachable sinks")
	}
}

func TestRepairMinimality(t *testing.T) {
	dev, raw := buildRecorded(t, builder.Options{Filename: "fabric.xdlrc"})
	for _, tile := range dev.Tiles() {
		for _, id := range tile.SourceWires() {
			from := tile.Wire(id)
			for _, c := range tile.Connections(id) {
				if c.PIP {
					continue
				}
				to := from.Follow(c)
				if !raw.source[dev.FullName(from)] {
					t.Errorf("non-PIP edge from non-source %s", dev.FullName(from))
				}
				if !raw.sinks[dev.FullName(to)] {
					t.Errorf("non-PIP edge %s -> non-sink %s", dev.FullName(from), dev.FullName(to))
				}
			}
		}
	}
}

func TestRepairBypassesAlias(t *testing.T) {
	dev := fabrictest.Device(t)
	beg := fabrictest.Wire(t, dev, "INT_X3Y3/NN2BEG0")
	end := fabrictest.Wire(t, dev, "INT_X3Y1/NN2END0")
	if !hasDirectEdge(dev, beg, end) {
		t.Fatal("NN2BEG0 not connected to NN2END0")
	}
	mid := fabrictest.Wire(t, dev, "INT_X3Y2/NN2A0")
	if conns := dev.Connections(mid); len(conns) != 0 {
		t.Errorf("alias wire kept %d connections", len(conns))
	}
	for _, c := range dev.Connections(beg) {
		if beg.Follow(c) == mid {
			t.Error("edge to alias wire not removed")
		}
	}
	rev := dev.ReverseConnections(end)
	found := false
	for _, c := range rev {
		if end.Follow(c) == beg && !c.PIP && c.RowOffset == 2 {
			found = true
		}
	}
	if !found {
		t.Errorf("added edge missing from reverse index: %v", rev)
	}
}

func TestRepairVisitLimit(t *testing.T) {
	dev, _ := buildRecorded(t, builder.Options{Filename: "fabric.xdlrc", RepairVisitLimit: 1})
	beg := fabrictest.Wire(t, dev, "INT_X3Y3/NN2BEG0")
	end := fabrictest.Wire(t, dev, "INT_X3Y1/NN2END0")
	if hasDirectEdge(dev, beg, end) {
		t.Fatal("search went past the visit limit")
	}
}

func TestSiteTemplate(t *testing.T) {
	dev := fabrictest.Device(t)
	tmpl, ok := dev.Template("SLICE", false)
	if !ok {
		t.Fatal("SLICE template missing")
	}
	if n := len(tmpl.Pins()); n != 3 {
		t.Errorf("expected 3 pins, got %d", n)
	}
	if n := len(tmpl.BELs()); n != 2 {
		t.Errorf("expected 2 BELs, got %d", n)
	}
	id := func(name string) device.WireID {
		w, ok := tmpl.Wires.Lookup(name)
		if !ok {
			t.Fatalf("template wire %s missing", name)
		}
		return w
	}
	pip, ok := tmpl.SitePIPAt(id("OUTMUX.LUT"), id("OUTMUX.OUT"))
	if !ok || pip.String() != "OUTMUX:LUT" {
		t.Errorf("site PIP not recorded: %v %v", pip, ok)
	}
	if !tmpl.Configurable("OUTMUX") {
		t.Error("OUTMUX should be configurable")
	}
	if !tmpl.IsRoutethrough(id("LUT.A1"), id("LUT.O")) {
		t.Error("LUT routethrough not resolved")
	}
	if len(tmpl.ReverseConnections(id("LUT.A1"))) != 1 {
		t.Errorf("template reverse index wrong: %v", tmpl.ReverseConnections(id("LUT.A1")))
	}
}

func TestBuildMalformed(t *testing.T) {
	cases := []struct {
		name  string
		input string
		line  int
		check func(error) bool
	}{
		{
			name:  "unknown tile",
			input: "(tiles 1 1\n(tile 0 0 T0 INT 0\n(wire W 1 (conn NOPE W))))",
			line:  3,
			check: isMalformed,
		},
		{
			name:  "undeclared wire",
			input: "(tiles 1 2\n(tile 0 0 T0 INT 0 (wire W 1\n(conn T1 MISSING)))\n(tile 0 1 T1 INT 0 (wire X 0)))",
			line:  3,
			check: isMalformed,
		},
		{
			name:  "unknown routethrough site type",
			input: "(tiles 1 1\n(tile 0 0 T0 INT 0\n(pip T0 A -> B\n(_ROUTETHROUGH-A-B NOPE))))",
			line:  4,
			check: isMalformed,
		},
		{
			name:  "tile outside grid",
			input: "(tiles 1 1\n(tile 2 0 T0 INT 0))",
			line:  2,
			check: func(err error) bool {
				var inconsistent *device.InconsistentDeviceError
				return errors.As(err, &inconsistent)
			},
		},
		{
			name:  "no grid",
			input: "(primitive_defs 0)",
			line:  0,
			check: isMalformed,
		},
		{
			name:  "negative grid",
			input: "(tiles -1 5)",
			line:  1,
			check: isMalformed,
		},
		{
			name:  "empty grid",
			input: "\n(tiles 4 0)",
			line:  2,
			check: isMalformed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := builder.Build(context.Background(), strings.NewReader(tc.input), builder.Options{
				Filename: "bad.xdlrc",
				Logger:   fabrictest.Logger(),
			})
			if err == nil {
				t.Fatal("expected an error")
			}
			if !tc.check(err) {
				t.Fatalf("unexpected error type %T: %v", err, err)
			}
			want := "bad.xdlrc: "
			if tc.line > 0 {
				want = fmt.Sprintf("bad.xdlrc:%d: ", tc.line)
			}
			if !strings.HasPrefix(err.Error(), want) {
				t.Errorf("expected prefix %q, got %v", want, err)
			}
		})
	}
}

func TestHandleRejectsBadGrid(t *testing.T) {
	b := builder.New(builder.Options{Filename: "bad.xdlrc", Logger: fabrictest.Logger()})
	err := b.Handle(&xdlrc.Event{Kind: xdlrc.KindTiles, Line: 7, Row: -3, Column: 2})
	if !isMalformed(err) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "bad.xdlrc:7: ") {
		t.Errorf("unexpected location: %v", err)
	}
}

func isMalformed(err error) bool {
	var malformed *device.MalformedInputError
	return errors.As(err, &malformed)
}
