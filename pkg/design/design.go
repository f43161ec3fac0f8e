// Package design holds the nets of a placed design and the per-site
// configuration their intra-site routes depend on.
package design

import (
	"sort"
	"strings"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/route"
)

// NetType distinguishes signal nets from the two static nets.
type NetType int

const (
	NetWire NetType = iota
	NetVCC
	NetGND
)

func (t NetType) String() string {
	switch t {
	case NetVCC:
		return "VCC"
	case NetGND:
		return "GND"
	}
	return "WIRE"
}

// Static reports whether nets of this type are driven by constant sources.
func (t NetType) Static() bool {
	return t == NetVCC || t == NetGND
}

// ParseNetType parses WIRE, VCC or GND.
func ParseNetType(s string) (NetType, bool) {
	switch strings.ToUpper(s) {
	case "WIRE":
		return NetWire, true
	case "VCC":
		return NetVCC, true
	case "GND":
		return NetGND, true
	}
	return NetWire, false
}

// Net is one net of the design together with its physical route.
type Net struct {
	Name   string
	Type   NetType
	Source *PinRef
	Sinks  []PinRef
	// Intersite lists the input site pins whose intra-site continuation is
	// routed from the site pin.
	Intersite []PinRef
	// Intrasite marks a net that never leaves its source site.
	Intrasite bool

	Trees         []*route.Tree
	SiteRoutes    []*route.SiteRoute
	ImplicitSinks []PinRef

	// Line is the line of the route in its source file, 0 when unknown.
	Line int
}

// Routed reports whether the net has any physical route.
func (n *Net) Routed() bool {
	return len(n.Trees) > 0 || len(n.SiteRoutes) > 0
}

// HasSink reports whether ref is a declared sink.
func (n *Net) HasSink(ref PinRef) bool {
	for _, s := range n.Sinks {
		if s == ref {
			return true
		}
	}
	return false
}

// SiteConfig is the active configuration of one site.
type SiteConfig struct {
	Site          *device.Site
	StaticSources []*device.BELPin

	pips map[device.SitePIP]bool
	rts  map[device.Edge]bool
}

func newSiteConfig(site *device.Site) *SiteConfig {
	return &SiteConfig{
		Site: site,
		pips: make(map[device.SitePIP]bool),
		rts:  make(map[device.Edge]bool),
	}
}

// UseSitePIP selects the mux option pip.
func (c *SiteConfig) UseSitePIP(pip device.SitePIP) error {
	for _, known := range c.Site.Type.SitePIPs() {
		if known == pip {
			c.pips[pip] = true
			return nil
		}
	}
	return &device.MalformedInputError{Kind: "site PIP", Name: c.Site.Name + "/" + pip.String()}
}

// UsesSitePIP reports whether pip is selected. A nil config selects nothing.
func (c *SiteConfig) UsesSitePIP(pip device.SitePIP) bool {
	return c != nil && c.pips[pip]
}

// ActivateRoutethrough enables the routethrough of bel from pin in to pin
// out. An empty out enables every routethrough leaving in.
func (c *SiteConfig) ActivateRoutethrough(bel, in, out string) error {
	tmpl := c.Site.Type
	name := c.Site.Name + "/" + bel + "/" + in
	inPin, ok := tmpl.BELPin(bel, in)
	if !ok {
		return &device.MalformedInputError{Kind: "BEL pin", Name: name}
	}
	if out != "" {
		outPin, ok := tmpl.BELPin(bel, out)
		if !ok {
			return &device.MalformedInputError{Kind: "BEL pin", Name: c.Site.Name + "/" + bel + "/" + out}
		}
		if !tmpl.IsRoutethrough(inPin.Wire, outPin.Wire) {
			return &device.MalformedInputError{Kind: "routethrough", Name: name + "/" + out}
		}
		c.rts[device.Edge{From: inPin.Wire, To: outPin.Wire}] = true
		return nil
	}
	found := false
	for _, e := range tmpl.Routethroughs() {
		if e.From == inPin.Wire {
			c.rts[e] = true
			found = true
		}
	}
	if !found {
		return &device.MalformedInputError{Kind: "routethrough", Name: name}
	}
	return nil
}

// RoutethroughActive reports whether the routethrough in -> out is enabled.
func (c *SiteConfig) RoutethroughActive(in, out device.WireID) bool {
	return c != nil && c.rts[device.Edge{From: in, To: out}]
}

// AddStaticSource records that bel/pin drives a constant.
func (c *SiteConfig) AddStaticSource(bel, pin string) error {
	p, ok := c.Site.Type.BELPin(bel, pin)
	if !ok {
		return &device.MalformedInputError{Kind: "BEL pin", Name: c.Site.Name + "/" + bel + "/" + pin}
	}
	if p.Direction == device.DirectionInput {
		return &device.MalformedInputError{Kind: "BEL pin", Name: c.Site.Name + "/" + bel + "/" + pin, Reason: "a static source must be an output"}
	}
	for _, s := range c.StaticSources {
		if s == p {
			return nil
		}
	}
	c.StaticSources = append(c.StaticSources, p)
	return nil
}

// SitePIPs returns the selected mux options sorted by element and option.
func (c *SiteConfig) SitePIPs() []device.SitePIP {
	out := make([]device.SitePIP, 0, len(c.pips))
	for p := range c.pips {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Routethroughs returns the enabled routethroughs as "BEL/IN/OUT", sorted.
func (c *SiteConfig) Routethroughs() []string {
	tmpl := c.Site.Type
	out := make([]string, 0, len(c.rts))
	for e := range c.rts {
		in, _ := tmpl.BELPinAt(e.From)
		o, _ := tmpl.BELPinAt(e.To)
		if in == nil || o == nil {
			continue
		}
		out = append(out, in.BEL+"/"+in.Name+"/"+o.Name)
	}
	sort.Strings(out)
	return out
}

// Empty reports whether the site carries no configuration at all.
func (c *SiteConfig) Empty() bool {
	return len(c.pips) == 0 && len(c.rts) == 0 && len(c.StaticSources) == 0
}

var _ route.SiteConfig = (*SiteConfig)(nil)

// Design is a set of nets placed on one device.
type Design struct {
	Name   string
	Device *device.Device

	nets  map[string]*Net
	order []string
	sites map[string]*SiteConfig
}

// New creates an empty design on dev.
func New(name string, dev *device.Device) *Design {
	return &Design{
		Name:   name,
		Device: dev,
		nets:   make(map[string]*Net),
		sites:  make(map[string]*SiteConfig),
	}
}

// AddNet declares a net. Names are unique.
func (d *Design) AddNet(name string, typ NetType) (*Net, error) {
	if _, ok := d.nets[name]; ok {
		return nil, &device.MalformedInputError{Kind: "net", Name: name, Reason: "declared twice"}
	}
	n := &Net{Name: name, Type: typ}
	d.nets[name] = n
	d.order = append(d.order, name)
	return n, nil
}

// Net looks up a declared net.
func (d *Design) Net(name string) (*Net, bool) {
	n, ok := d.nets[name]
	return n, ok
}

// Nets returns the nets in declaration order.
func (d *Design) Nets() []*Net {
	out := make([]*Net, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.nets[name])
	}
	return out
}

// Site returns the configuration of the named site, creating it on first
// use.
func (d *Design) Site(name string) (*SiteConfig, error) {
	if c, ok := d.sites[name]; ok {
		return c, nil
	}
	site, ok := d.Device.Site(name)
	if !ok {
		return nil, &device.MalformedInputError{Kind: "site", Name: name}
	}
	c := newSiteConfig(site)
	d.sites[name] = c
	return c, nil
}

// SiteConfig returns the configuration of the named site, or nil when the
// design never configured it.
func (d *Design) SiteConfig(name string) *SiteConfig {
	return d.sites[name]
}

// Sites returns every configured site sorted by name.
func (d *Design) Sites() []*SiteConfig {
	out := make([]*SiteConfig, 0, len(d.sites))
	for _, c := range d.sites {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Site.Name < out[j].Site.Name })
	return out
}

// SitePin resolves a site pin reference.
func (d *Design) SitePin(ref PinRef) (*device.Site, *device.SitePinTemplate, error) {
	if ref.IsBELPin() {
		return nil, nil, &device.MalformedInputError{Kind: "site pin", Name: ref.String(), Reason: "BEL pin where a site pin is expected"}
	}
	site, ok := d.Device.Site(ref.Site)
	if !ok {
		return nil, nil, &device.MalformedInputError{Kind: "site", Name: ref.Site}
	}
	p, ok := site.Type.Pin(ref.Pin)
	if !ok {
		return nil, nil, &device.MalformedInputError{Kind: "site pin", Name: ref.String()}
	}
	return site, p, nil
}

// SitePinWire returns the tile wire attached to a site pin.
func (d *Design) SitePinWire(ref PinRef) (device.Wire, error) {
	site, _, err := d.SitePin(ref)
	if err != nil {
		return device.Wire{}, err
	}
	w, ok := site.PinWire(ref.Pin)
	if !ok {
		return device.Wire{}, &device.MalformedInputError{Kind: "site pin", Name: ref.String(), Reason: "not bound to a tile wire"}
	}
	return w, nil
}

// BELPin resolves a BEL pin reference.
func (d *Design) BELPin(ref PinRef) (*device.Site, *device.BELPin, error) {
	if !ref.IsBELPin() {
		return nil, nil, &device.MalformedInputError{Kind: "BEL pin", Name: ref.String(), Reason: "site pin where a BEL pin is expected"}
	}
	site, ok := d.Device.Site(ref.Site)
	if !ok {
		return nil, nil, &device.MalformedInputError{Kind: "site", Name: ref.Site}
	}
	p, ok := site.Type.BELPin(ref.BEL, ref.Pin)
	if !ok {
		return nil, nil, &device.MalformedInputError{Kind: "BEL pin", Name: ref.String()}
	}
	return site, p, nil
}
