package design_test

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"

	"github.com/OpenTraceLab/OpenTraceFabric/internal/fabrictest"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/design"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
)

func TestParsePinRef(t *testing.T) {
	tests := []struct {
		in   string
		want design.PinRef
		ok   bool
	}{
		{"SLICE_X1Y3/A1", design.PinRef{Site: "SLICE_X1Y3", Pin: "A1"}, true},
		{"SLICE_X1Y3/LUT/O", design.PinRef{Site: "SLICE_X1Y3", BEL: "LUT", Pin: "O"}, true},
		{"SLICE_X1Y3", design.PinRef{}, false},
		{"SLICE_X1Y3//O", design.PinRef{}, false},
		{"a/b/c/d", design.PinRef{}, false},
	}
	for _, test := range tests {
		got, err := design.ParsePinRef(test.in)
		if (err == nil) != test.ok {
			t.Fatalf("ParsePinRef(%q): unexpected error state %v", test.in, err)
		}
		if got != test.want {
			t.Errorf("ParsePinRef(%q) = %+v, want %+v", test.in, got, test.want)
		}
		if test.ok && got.String() != test.in {
			t.Errorf("String() = %q, want %q", got.String(), test.in)
		}
	}
}

func TestNetType(t *testing.T) {
	for _, s := range []string{"WIRE", "VCC", "GND"} {
		typ, ok := design.ParseNetType(s)
		if !ok || typ.String() != s {
			t.Errorf("ParseNetType(%q) = %v, %v", s, typ, ok)
		}
		if typ.Static() != (s != "WIRE") {
			t.Errorf("%s: Static() = %v", s, typ.Static())
		}
	}
	if _, ok := design.ParseNetType("POWER"); ok {
		t.Error("unknown net type accepted")
	}
}

func TestNets(t *testing.T) {
	d := design.New("top", fabrictest.Device(t))
	for _, name := range []string{"b", "a", "c"} {
		if _, err := d.AddNet(name, design.NetWire); err != nil {
			t.Fatalf("AddNet(%s): %v", name, err)
		}
	}
	_, err := d.AddNet("a", design.NetGND)
	var malformed *device.MalformedInputError
	if !errors.As(err, &malformed) {
		t.Fatalf("duplicate net: expected MalformedInputError, got %v", err)
	}
	var names []string
	for _, n := range d.Nets() {
		names = append(names, n.Name)
	}
	if !reflect.DeepEqual(names, []string{"b", "a", "c"}) {
		t.Errorf("nets out of declaration order: %v", names)
	}
}

func TestSiteConfig(t *testing.T) {
	d := design.New("top", fabrictest.Device(t))
	cfg, err := d.Site("SLICE_X4Y3")
	if err != nil {
		t.Fatalf("Site: %v", err)
	}
	if again, _ := d.Site("SLICE_X4Y3"); again != cfg {
		t.Error("Site created a second configuration")
	}
	if !cfg.Empty() {
		t.Error("new configuration not empty")
	}

	pip := device.SitePIP{Element: "OUTMUX", Option: "LUT"}
	if err := cfg.UseSitePIP(pip); err != nil {
		t.Fatalf("UseSitePIP: %v", err)
	}
	if !cfg.UsesSitePIP(pip) || cfg.UsesSitePIP(device.SitePIP{Element: "OUTMUX", Option: "FF"}) {
		t.Error("site PIP selection wrong")
	}
	if err := cfg.UseSitePIP(device.SitePIP{Element: "OUTMUX", Option: "CARRY"}); err == nil {
		t.Error("unknown site PIP accepted")
	}

	if err := cfg.ActivateRoutethrough("LUT", "A1", ""); err != nil {
		t.Fatalf("ActivateRoutethrough: %v", err)
	}
	if got := cfg.Routethroughs(); !reflect.DeepEqual(got, []string{"LUT/A1/O"}) {
		t.Errorf("Routethroughs = %v", got)
	}
	in, _ := cfg.Site.Type.BELPin("LUT", "A1")
	out, _ := cfg.Site.Type.BELPin("LUT", "O")
	if !cfg.RoutethroughActive(in.Wire, out.Wire) {
		t.Error("routethrough not active")
	}
	for _, bad := range [][3]string{{"FF", "D", ""}, {"LUT", "A1", "A1"}, {"LUT", "Z", ""}} {
		if err := cfg.ActivateRoutethrough(bad[0], bad[1], bad[2]); err == nil {
			t.Errorf("ActivateRoutethrough(%v) accepted", bad)
		}
	}

	if err := cfg.AddStaticSource("LUT", "O"); err != nil {
		t.Fatalf("AddStaticSource: %v", err)
	}
	if err := cfg.AddStaticSource("LUT", "O"); err != nil || len(cfg.StaticSources) != 1 {
		t.Errorf("static source added twice: %v", err)
	}
	if err := cfg.AddStaticSource("LUT", "A1"); err == nil {
		t.Error("input pin accepted as static source")
	}

	var none *design.SiteConfig
	if none.UsesSitePIP(pip) || none.RoutethroughActive(in.Wire, out.Wire) {
		t.Error("nil configuration selects something")
	}
	if d.SiteConfig("SLICE_X1Y3") != nil {
		t.Error("unconfigured site has a configuration")
	}
	if _, err := d.Site("SLICE_X9Y9"); err == nil {
		t.Error("unknown site accepted")
	}
}

func TestResolvePins(t *testing.T) {
	dev := fabrictest.Device(t)
	d := design.New("top", dev)

	w, err := d.SitePinWire(design.PinRef{Site: "SLICE_X4Y3", Pin: "A1"})
	if err != nil {
		t.Fatalf("SitePinWire: %v", err)
	}
	if got := dev.FullName(w); got != "CLB_X4Y3/CLB_A1" {
		t.Errorf("SitePinWire = %s", got)
	}
	site, p, err := d.BELPin(design.PinRef{Site: "SLICE_X1Y3", BEL: "FF", Pin: "D"})
	if err != nil {
		t.Fatalf("BELPin: %v", err)
	}
	if site.Name != "SLICE_X1Y3" || p.Direction != device.DirectionInput {
		t.Errorf("unexpected BEL pin %s %+v", site.Name, p)
	}

	bad := []design.PinRef{
		{Site: "SLICE_X4Y3", Pin: "Z9"},
		{Site: "NOPE", Pin: "A1"},
		{Site: "SLICE_X4Y3", BEL: "LUT", Pin: "A1"},
	}
	for _, ref := range bad {
		if _, err := d.SitePinWire(ref); err == nil {
			t.Errorf("SitePinWire(%s) accepted", ref)
		}
	}
	if _, _, err := d.BELPin(design.PinRef{Site: "SLICE_X4Y3", Pin: "A1"}); err == nil {
		t.Error("site pin accepted as BEL pin")
	}
}
