package rcf_test

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/OpenTraceLab/OpenTraceFabric/internal/fabrictest"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/design"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/rcf"
)

const intersite = `
NET m
SINKS m SLICE_X4Y3/A1
INTERSITE m SLICE_X4Y3/A1
LUT_RTS SLICE_X4Y3/LUT/A1/O
SITE_PIPS SLICE_X4Y3 OUTMUX:LUT
ROUTE m INT_X2Y3/EE2BEG0 INT_X3Y3/EE2END0 IMUX_B0
`

const intrasite = `
NET n
SOURCE n SLICE_X1Y3/LUT/O
SINKS n SLICE_X1Y3/FF/D
INTRASITE n
`

func importString(t *testing.T, dev *device.Device, src string, opts rcf.Options) (*design.Design, error) {
	t.Helper()
	d := design.New("top", dev)
	if opts.Filename == "" {
		opts.Filename = "routes.rcf"
	}
	opts.Logger = fabrictest.Logger()
	err := rcf.NewImporter(d, opts).Import(context.Background(), strings.NewReader(src))
	return d, err
}

func mustNet(t *testing.T, d *design.Design, name string) *design.Net {
	t.Helper()
	n, ok := d.Net(name)
	if !ok {
		t.Fatalf("net %s not declared", name)
	}
	return n
}

func TestParse(t *testing.T) {
	src := "# header\n\nNET GND GND\r\nROUTE GND { A/B C } { D/E }  # trailing\nSITE_PIPS S X:Y Z:W"
	f, err := rcf.Parse("p.rcf", strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var cmds []*rcf.Command
	for _, l := range f.Lines {
		if l.Command != nil {
			cmds = append(cmds, l.Command)
		}
	}
	if len(cmds) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(cmds))
	}
	if cmds[0].Net == nil || cmds[0].Net.Name != "GND" || cmds[0].Net.Type != "GND" {
		t.Errorf("unexpected NET %+v", cmds[0].Net)
	}
	want := []string{"{", "A/B", "C", "}", "{", "D/E", "}"}
	if cmds[1].Route == nil || !reflect.DeepEqual(cmds[1].Route.Tokens, want) {
		t.Errorf("unexpected ROUTE %+v", cmds[1].Route)
	}
	if cmds[2].SitePIPs == nil || len(cmds[2].SitePIPs.PIPs) != 2 {
		t.Errorf("unexpected SITE_PIPS %+v", cmds[2].SitePIPs)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		line int
	}{
		{"NET\n", 1},
		{"NET a\nFOO bar\n", 2},
		{"NET a\n\nSINKS a\n", 3},
	}
	for _, test := range tests {
		_, err := rcf.Parse("bad.rcf", strings.NewReader(test.src))
		var malformed *device.MalformedInputError
		if !errors.As(err, &malformed) {
			t.Fatalf("%q: expected MalformedInputError, got %v", test.src, err)
		}
		if malformed.File != "bad.rcf" || malformed.Line != test.line {
			t.Errorf("%q: error at %s, want line %d", test.src, malformed.Location, test.line)
		}
	}
}

func TestImportFixture(t *testing.T) {
	dev := fabrictest.Device(t)
	for _, concurrency := range []int{1, 4} {
		d, err := importString(t, dev, fabrictest.Routes, rcf.Options{Concurrency: concurrency})
		if err != nil {
			t.Fatalf("concurrency=%d: Import: %v", concurrency, err)
		}
		net1 := mustNet(t, d, "net1")
		if len(net1.Trees) != 1 || net1.Trees[0].Len() != 2 {
			t.Errorf("net1: unexpected trees %v", net1.Trees)
		}
		if net1.Line != 3 {
			t.Errorf("net1: route line %d", net1.Line)
		}
		clk := mustNet(t, d, "clk")
		if len(clk.Trees) != 1 || clk.Trees[0].Len() != 4 {
			t.Errorf("clk: unexpected trees %v", clk.Trees)
		}

		gnd := mustNet(t, d, "GND")
		if gnd.Type != design.NetGND || len(gnd.Trees) != 2 {
			t.Fatalf("GND: type %s with %d trees", gnd.Type, len(gnd.Trees))
		}
		if len(gnd.SiteRoutes) != 2 {
			t.Fatalf("GND: expected 2 site routes, got %d", len(gnd.SiteRoutes))
		}
		for i, sr := range gnd.SiteRoutes {
			if len(sr.ExitPins) != 1 || sr.ExitPins[0].Name != "A" {
				t.Errorf("GND site route %d leaves through %v", i, sr.ExitPins)
			}
		}
		want := []design.PinRef{
			{Site: "SLICE_X1Y3", BEL: "FF", Pin: "D"},
			{Site: "SLICE_X4Y3", BEL: "FF", Pin: "D"},
		}
		if !reflect.DeepEqual(gnd.ImplicitSinks, want) {
			t.Errorf("GND: implicit sinks %v", gnd.ImplicitSinks)
		}
	}
}

func TestImportIntraSite(t *testing.T) {
	dev := fabrictest.Device(t)
	d, err := importString(t, dev, intersite+intrasite, rcf.Options{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	m := mustNet(t, d, "m")
	if len(m.SiteRoutes) != 1 {
		t.Fatalf("m: expected one site route, got %d", len(m.SiteRoutes))
	}
	if exits := m.SiteRoutes[0].ExitPins; len(exits) != 1 || exits[0].Name != "A" {
		t.Errorf("m: routethrough exits %v", exits)
	}

	n := mustNet(t, d, "n")
	if len(n.Trees) != 0 || len(n.SiteRoutes) != 1 {
		t.Fatalf("n: %d trees, %d site routes", len(n.Trees), len(n.SiteRoutes))
	}
	sr := n.SiteRoutes[0]
	if len(sr.Sinks) != 1 || sr.Sinks[0].BEL != "FF" || len(sr.ExitPins) != 0 {
		t.Errorf("n: sinks %v exits %v", sr.Sinks, sr.ExitPins)
	}
}

func TestImportChecksSource(t *testing.T) {
	dev := fabrictest.Device(t)
	src := `
NET p
SOURCE p SLICE_X1Y3/A
ROUTE p CLB_X1Y3/CLB_A INT_X2Y3/LOGIC_OUTS0 EE2BEG0 INT_X3Y3/EE2END0

NET q
SOURCE q SLICE_X1Y3/LUT/O
SITE_PIPS SLICE_X1Y3 OUTMUX:LUT
ROUTE q CLB_X1Y3/CLB_A INT_X2Y3/LOGIC_OUTS0
`
	d, err := importString(t, dev, src, rcf.Options{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if p := mustNet(t, d, "p"); len(p.Trees) != 1 {
		t.Errorf("p: expected one tree, got %d", len(p.Trees))
	}
	q := mustNet(t, d, "q")
	if len(q.Trees) != 1 || len(q.SiteRoutes) != 1 {
		t.Fatalf("q: %d trees, %d site routes", len(q.Trees), len(q.SiteRoutes))
	}
	if exits := q.SiteRoutes[0].ExitPins; len(exits) != 1 || exits[0].Name != "A" {
		t.Errorf("q: source exits %v", exits)
	}
}

func TestImportErrors(t *testing.T) {
	dev := fabrictest.Device(t)
	malformed := func(err error) bool {
		var e *device.MalformedInputError
		return errors.As(err, &e)
	}
	unreachable := func(err error) bool {
		var e *device.UnreachableTargetError
		return errors.As(err, &e)
	}
	invalid := func(err error) bool {
		var e *device.RouteValidationError
		return errors.As(err, &e)
	}
	tests := []struct {
		name  string
		src   string
		line  int
		check func(error) bool
	}{
		{"unknown net", "ROUTE nope INT_X2Y3/EE2BEG0\n", 1, malformed},
		{"unknown wire", "NET a\n\nROUTE a INT_X2Y3/EE2BEG0 NOPE\n", 3, malformed},
		{"unknown tile", "NET a\nROUTE a INT_X9Y9/EE2BEG0\n", 2, malformed},
		{"unknown site pin", "NET a\nSINKS a SLICE_X1Y3/Z9\n", 2, malformed},
		{"unknown site pip", "SITE_PIPS SLICE_X1Y3 OUTMUX:CARRY\n", 1, malformed},
		{"bad site pip", "SITE_PIPS SLICE_X1Y3 OUTMUX\n", 1, malformed},
		{"bad routethrough", "LUT_RTS SLICE_X1Y3/LUT\n", 1, malformed},
		{"unknown static source", "STATIC_SOURCES SLICE_X1Y3/LUT/Q\n", 1, malformed},
		{"output intersite pin", "NET a\nINTERSITE a SLICE_X1Y3/A\n", 2, malformed},
		{"bad net type", "NET a POWER\n", 1, malformed},
		{"duplicate net", "NET a\nNET a\n", 2, malformed},
		{"routed twice", "NET a\nROUTE a INT_X2Y3/EE2BEG0\nROUTE a INT_X2Y3/EE2BEG0\n", 3, malformed},
		{"unreachable", "NET a\nROUTE a INT_X2Y3/EE2BEG0 INT_X3Y1/NN2END0\n", 2, unreachable},
		{"undeclared sink", "NET a\nROUTE a INT_X3Y3/EE2END0 IMUX_B0\n", 2, invalid},
		{"missing sink", "NET a\nSINKS a SLICE_X1Y3/A1\nROUTE a INT_X2Y3/EE2BEG0 INT_X3Y3/EE2END0\n", 3, invalid},
		{"missing BEL sink", "NET a\nSOURCE a SLICE_X1Y3/LUT/O\nSINKS a SLICE_X4Y3/FF/D\nINTRASITE a\n", 4, unreachable},
		{"route away from site pin source", "NET a\nSOURCE a SLICE_X4Y3/A\nROUTE a INT_X2Y3/EE2BEG0 INT_X3Y3/EE2END0\n", 3, malformed},
		{"route away from BEL source", "NET a\nSOURCE a SLICE_X1Y3/LUT/O\nSITE_PIPS SLICE_X1Y3 OUTMUX:LUT\nROUTE a INT_X2Y3/EE2BEG0 INT_X3Y3/EE2END0\n", 4, malformed},
		{"route from another site", "NET a\nSOURCE a SLICE_X4Y3/LUT/O\nSITE_PIPS SLICE_X4Y3 OUTMUX:LUT\nROUTE a CLB_X1Y3/CLB_A INT_X2Y3/LOGIC_OUTS0\n", 4, malformed},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := importString(t, dev, test.src, rcf.Options{})
			if err == nil {
				t.Fatal("expected an error")
			}
			if !test.check(err) {
				t.Fatalf("unexpected error type %T: %v", err, err)
			}
			prefix := fmt.Sprintf("routes.rcf:%d: ", test.line)
			if !strings.HasPrefix(err.Error(), prefix) {
				t.Errorf("error %q does not start with %q", err, prefix)
			}
		})
	}
}

func TestImportAbortsWholeFile(t *testing.T) {
	dev := fabrictest.Device(t)
	src := fabrictest.Routes + "NET bad\nROUTE bad INT_X2Y3/EE2BEG0 INT_X3Y1/NN2END0\n"

	d, err := importString(t, dev, src, rcf.Options{Concurrency: 2})
	if err == nil {
		t.Fatal("expected the file to be rejected")
	}
	for _, n := range d.Nets() {
		if n.Routed() {
			t.Errorf("net %s kept a route from a rejected file", n.Name)
		}
	}

	d, err = importString(t, dev, src, rcf.Options{SkipUnreachable: true})
	if err != nil {
		t.Fatalf("SkipUnreachable: %v", err)
	}
	if !mustNet(t, d, "net1").Routed() || mustNet(t, d, "bad").Routed() {
		t.Error("SkipUnreachable routed the wrong nets")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	dev := fabrictest.Device(t)
	d, err := importString(t, dev, fabrictest.Routes+intersite+intrasite, rcf.Options{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	var buf bytes.Buffer
	if err := rcf.Write(&buf, d); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	for _, line := range []string{
		"ROUTE clk HCLK_X1Y0/HCLK_ROOT HCLK_X1Y0/HCLK_SPINE_R <2>HCLK_LEAF HCLK_X3Y0/HCLK_OUT0\n",
		"NET GND GND\n",
		"STATIC_SOURCES SLICE_X1Y3/LUT/O\n",
		"LUT_RTS SLICE_X4Y3/LUT/A1/O\n",
		"SITE_PIPS SLICE_X4Y3 OUTMUX:LUT\n",
		"INTRASITE n\n",
	} {
		if !strings.Contains(out, line) {
			t.Errorf("output lacks %q:\n%s", line, out)
		}
	}

	again, err := importString(t, dev, out, rcf.Options{Filename: "written.rcf"})
	if err != nil {
		t.Fatalf("re-import: %v\n%s", err, out)
	}
	for _, n := range d.Nets() {
		m := mustNet(t, again, n.Name)
		if len(m.Trees) != len(n.Trees) || len(m.SiteRoutes) != len(n.SiteRoutes) {
			t.Fatalf("net %s: shape changed in the round trip", n.Name)
		}
		for i := range n.Trees {
			if !reflect.DeepEqual(n.Trees[i].Edges(), m.Trees[i].Edges()) {
				t.Errorf("net %s tree %d changed in the round trip", n.Name, i)
			}
		}
		if !reflect.DeepEqual(n.ImplicitSinks, m.ImplicitSinks) {
			t.Errorf("net %s: implicit sinks %v became %v", n.Name, n.ImplicitSinks, m.ImplicitSinks)
		}
	}
}
