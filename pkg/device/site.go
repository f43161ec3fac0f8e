package device

import (
	"sort"
)

// Direction of a pin.
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
	DirectionInout
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	default:
		return "inout"
	}
}

// ParseDirection converts a device-description pin direction.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "input", "in":
		return DirectionInput, true
	case "output", "out":
		return DirectionOutput, true
	case "inout", "bidir":
		return DirectionInout, true
	}
	return 0, false
}

// SitePinTemplate is an externally visible pin of a site type. Wire is the
// intra-site wire the pin drives (input) or is driven by (output).
type SitePinTemplate struct {
	Name      string
	Direction Direction
	Wire      WireID
}

// BELPin is a pin of a BEL inside a site type.
type BELPin struct {
	BEL       string
	Name      string
	Direction Direction
	Wire      WireID
}

// BEL is a configurable logic primitive inside a site type.
type BEL struct {
	Name string
	Pins map[string]*BELPin
}

// SitePIP identifies one option of a configurable site mux.
type SitePIP struct {
	Element string
	Option  string
}

func (p SitePIP) String() string {
	return p.Element + ":" + p.Option
}

// Edge is an intra-site connection between two template wires.
type Edge struct {
	From WireID
	To   WireID
}

// SiteTemplate describes everything shared by all sites of one type: the
// intra-site wire graph, its pins and BELs, the configurable muxes and the
// BEL routethroughs.
type SiteTemplate struct {
	Name  string
	Wires *WireTable

	pins          map[string]*SitePinTemplate
	bels          map[string]*BEL
	wirePins      map[WireID]*SitePinTemplate
	wireBELPins   map[WireID]*BELPin
	adjacency     map[WireID][]WireConnection
	reverse       map[WireID][]WireConnection
	sitePIPs      map[Edge]SitePIP
	muxOptions    map[string]map[string]struct{}
	routethroughs map[Edge]struct{}
}

// NewSiteTemplate creates an empty template for a site type.
func NewSiteTemplate(name string) *SiteTemplate {
	return &SiteTemplate{
		Name:          name,
		Wires:         NewWireTable(),
		pins:          make(map[string]*SitePinTemplate),
		bels:          make(map[string]*BEL),
		wirePins:      make(map[WireID]*SitePinTemplate),
		wireBELPins:   make(map[WireID]*BELPin),
		adjacency:     make(map[WireID][]WireConnection),
		sitePIPs:      make(map[Edge]SitePIP),
		muxOptions:    make(map[string]map[string]struct{}),
		routethroughs: make(map[Edge]struct{}),
	}
}

// ElementWireName is the intra-site wire name of an element pin.
func ElementWireName(element, pin string) string {
	return element + "." + pin
}

// AddPin registers an external site pin backed by wire.
func (t *SiteTemplate) AddPin(name string, dir Direction, wire WireID) *SitePinTemplate {
	p := &SitePinTemplate{Name: name, Direction: dir, Wire: wire}
	t.pins[name] = p
	t.wirePins[wire] = p
	return p
}

// AddBELPin registers a pin of the named BEL.
func (t *SiteTemplate) AddBELPin(bel, pin string, dir Direction, wire WireID) *BELPin {
	b, ok := t.bels[bel]
	if !ok {
		b = &BEL{Name: bel, Pins: make(map[string]*BELPin)}
		t.bels[bel] = b
	}
	p := &BELPin{BEL: bel, Name: pin, Direction: dir, Wire: wire}
	b.Pins[pin] = p
	t.wireBELPins[wire] = p
	return p
}

// AddSitePIP records that the edge from -> to is option opt of mux element.
func (t *SiteTemplate) AddSitePIP(from, to WireID, pip SitePIP) {
	t.sitePIPs[Edge{From: from, To: to}] = pip
	opts, ok := t.muxOptions[pip.Element]
	if !ok {
		opts = make(map[string]struct{})
		t.muxOptions[pip.Element] = opts
	}
	opts[pip.Option] = struct{}{}
}

// AddRoutethrough records a BEL routethrough from an input pin wire to an
// output pin wire.
func (t *SiteTemplate) AddRoutethrough(in, out WireID) {
	t.routethroughs[Edge{From: in, To: out}] = struct{}{}
}

// Pin returns the named site pin.
func (t *SiteTemplate) Pin(name string) (*SitePinTemplate, bool) {
	p, ok := t.pins[name]
	return p, ok
}

// Pins returns the site pins sorted by name.
func (t *SiteTemplate) Pins() []*SitePinTemplate {
	out := make([]*SitePinTemplate, 0, len(t.pins))
	for _, p := range t.pins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BEL returns the named BEL.
func (t *SiteTemplate) BEL(name string) (*BEL, bool) {
	b, ok := t.bels[name]
	return b, ok
}

// BELs returns the BELs sorted by name.
func (t *SiteTemplate) BELs() []*BEL {
	out := make([]*BEL, 0, len(t.bels))
	for _, b := range t.bels {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BELPin resolves bel/pin.
func (t *SiteTemplate) BELPin(bel, pin string) (*BELPin, bool) {
	b, ok := t.bels[bel]
	if !ok {
		return nil, false
	}
	p, ok := b.Pins[pin]
	return p, ok
}

// PinAt returns the site pin backed by wire.
func (t *SiteTemplate) PinAt(wire WireID) (*SitePinTemplate, bool) {
	p, ok := t.wirePins[wire]
	return p, ok
}

// BELPinAt returns the BEL pin backed by wire.
func (t *SiteTemplate) BELPinAt(wire WireID) (*BELPin, bool) {
	p, ok := t.wireBELPins[wire]
	return p, ok
}

// SitePIPAt returns the mux option implemented by the edge from -> to.
func (t *SiteTemplate) SitePIPAt(from, to WireID) (SitePIP, bool) {
	p, ok := t.sitePIPs[Edge{From: from, To: to}]
	return p, ok
}

// SitePIPs returns every configurable edge with its mux option.
func (t *SiteTemplate) SitePIPs() map[Edge]SitePIP {
	return t.sitePIPs
}

// Configurable reports whether the mux element has more than one distinct
// option. Single-input muxes are fixed connections, however many edges the
// one option drives.
func (t *SiteTemplate) Configurable(element string) bool {
	return len(t.muxOptions[element]) > 1
}

// IsRoutethrough reports whether in -> out is a BEL routethrough.
func (t *SiteTemplate) IsRoutethrough(in, out WireID) bool {
	_, ok := t.routethroughs[Edge{From: in, To: out}]
	return ok
}

// Routethroughs returns every routethrough edge.
func (t *SiteTemplate) Routethroughs() []Edge {
	out := make([]Edge, 0, len(t.routethroughs))
	for e := range t.routethroughs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Connections returns the intra-site forward adjacency of wire.
func (t *SiteTemplate) Connections(wire WireID) []WireConnection {
	return t.adjacency[wire]
}

// ReverseConnections returns the intra-site reverse adjacency of wire.
func (t *SiteTemplate) ReverseConnections(wire WireID) []WireConnection {
	return t.reverse[wire]
}

// SetConnections replaces the adjacency of wire. conns should be interned.
func (t *SiteTemplate) SetConnections(wire WireID, conns []WireConnection) {
	if len(conns) == 0 {
		delete(t.adjacency, wire)
		return
	}
	t.adjacency[wire] = conns
}

// ReverseTable exposes the intra-site reverse adjacency.
func (t *SiteTemplate) ReverseTable() map[WireID][]WireConnection {
	return t.reverse
}

// SetReverse installs a complete reverse adjacency table.
func (t *SiteTemplate) SetReverse(reverse map[WireID][]WireConnection) {
	t.reverse = reverse
}

// SourceWires returns the wires with outgoing intra-site connections, sorted.
func (t *SiteTemplate) SourceWires() []WireID {
	return sortedKeys(t.adjacency)
}

// SitePinRef names one pin of a site instance.
type SitePinRef struct {
	Site *Site
	Pin  *SitePinTemplate
}

// Site is a placed instance of a site template inside a tile.
type Site struct {
	Name         string
	Type         *SiteTemplate
	Alternatives []string
	Bonded       string
	Row          int32
	Column       int32

	pinWires map[string]WireID
}

// NewSite creates a site of type t located in the tile at row, col.
func NewSite(name string, t *SiteTemplate, row, col int32) *Site {
	return &Site{
		Name:     name,
		Type:     t,
		Row:      row,
		Column:   col,
		pinWires: make(map[string]WireID),
	}
}

// SetPinWire binds site pin name to the tile wire it is attached to.
func (s *Site) SetPinWire(pin string, wire WireID) {
	s.pinWires[pin] = wire
}

// PinWire returns the tile wire of site pin name.
func (s *Site) PinWire(pin string) (Wire, bool) {
	id, ok := s.pinWires[pin]
	if !ok {
		return Wire{}, false
	}
	return Wire{Row: s.Row, Column: s.Column, ID: id}, true
}

// PinNames returns the external pin names in sorted order.
func (s *Site) PinNames() []string {
	out := make([]string, 0, len(s.pinWires))
	for name := range s.pinWires {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// InternalWire returns the intra-site wire, addressed in the site's tile,
// for a template wire id.
func (s *Site) InternalWire(id WireID) Wire {
	return Wire{Row: s.Row, Column: s.Column, ID: id}
}

func sortedKeys(m map[WireID][]WireConnection) []WireID {
	out := make([]WireID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
