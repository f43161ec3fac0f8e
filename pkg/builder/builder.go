package builder

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/xdlrc"
)

// DefaultRepairVisitLimit bounds the per-wire search of the repair pass.
const DefaultRepairVisitLimit = 10000

// Options configures a Builder.
type Options struct {
	// Filename is reported in error locations.
	Filename string
	// Name overrides the part name announced by the description.
	Name string
	// RepairVisitLimit bounds the wires visited from one source wire during
	// the repair pass.
	RepairVisitLimit int
	// ReverseWorkers is the size of the reverse-index worker pool.
	ReverseWorkers int
	Logger         logrus.FieldLogger
}

func (o *Options) setDefaults() {
	if o.RepairVisitLimit <= 0 {
		o.RepairVisitLimit = DefaultRepairVisitLimit
	}
	if o.ReverseWorkers <= 0 {
		o.ReverseWorkers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

type rawConn struct {
	tile   *device.Tile
	from   device.WireID
	target string
	wire   string
	line   int
}

type routethroughDecl struct {
	siteType string
	in, out  string
	line     int
}

type sitePinDecl struct {
	tile *device.Tile
	site *device.Site
	name string
	dir  device.Direction
	wire device.WireID
	line int
}

type elementPin struct {
	name string
	dir  device.Direction
	wire device.WireID
}

type elementState struct {
	name    string
	bel     bool
	cfg     bool
	pins    []elementPin
	line    int
	started bool
}

// Builder turns device-description events into a routing-ready Device.
// Events are consumed through Handle in document order; Finish runs the
// reachability repair and builds the reverse index.
type Builder struct {
	opts Options
	log  logrus.FieldLogger

	name   string
	family string
	dev    *device.Device

	tile *device.Tile
	wire device.WireID
	site *device.Site

	raw       map[*device.Tile]map[device.WireID][]device.WireConnection
	conns     []rawConn
	pipSrc    map[*device.Tile]map[device.WireID]struct{}
	pipDst    map[*device.Tile]map[device.WireID]struct{}
	sitePins  []sitePinDecl
	rts       []routethroughDecl
	tmpl      *device.SiteTemplate
	tmplRaw   map[device.WireID][]device.WireConnection
	element   elementState
	defined   map[string]bool
	lastLine  int
	phaseTime time.Time
}

// New creates a builder.
func New(opts Options) *Builder {
	opts.setDefaults()
	return &Builder{
		opts:      opts,
		log:       opts.Logger,
		name:      opts.Name,
		wire:      device.NoWire,
		raw:       make(map[*device.Tile]map[device.WireID][]device.WireConnection),
		pipSrc:    make(map[*device.Tile]map[device.WireID]struct{}),
		pipDst:    make(map[*device.Tile]map[device.WireID]struct{}),
		defined:   make(map[string]bool),
		phaseTime: time.Now(),
	}
}

// Handle consumes one event. It implements xdlrc.Handler.
func (b *Builder) Handle(ev *xdlrc.Event) error {
	b.lastLine = ev.Line
	if err := b.dispatch(ev); err != nil {
		return device.Locate(err, device.Location{File: b.opts.Filename, Line: ev.Line})
	}
	return nil
}

func (b *Builder) dispatch(ev *xdlrc.Event) error {
	switch ev.Kind {
	case xdlrc.KindDevice:
		if b.name == "" {
			b.name = ev.Name
		}
		b.family = ev.Type
		return nil

	case xdlrc.KindTiles:
		if b.dev != nil {
			return &device.MalformedInputError{Kind: "tiles", Reason: "grid declared twice"}
		}
		if ev.Row <= 0 || ev.Column <= 0 {
			return &device.MalformedInputError{Kind: "tiles", Reason: fmt.Sprintf("bad grid size %dx%d", ev.Row, ev.Column)}
		}
		b.dev = device.New(b.name, ev.Row, ev.Column)
		b.log.WithFields(logrus.Fields{"device": b.name, "rows": ev.Row, "columns": ev.Column}).
			Debug("device grid declared")
		return nil

	case xdlrc.KindTile:
		if err := b.requireGrid(); err != nil {
			return err
		}
		t := device.NewTile(ev.Row, ev.Column, ev.Name, ev.Type)
		if err := b.dev.AddTile(t); err != nil {
			return err
		}
		b.tile = t
		b.wire = device.NoWire
		return nil

	case xdlrc.KindTileEnd:
		b.tile, b.site, b.wire = nil, nil, device.NoWire
		return nil

	case xdlrc.KindWire:
		if err := b.requireTile("wire"); err != nil {
			return err
		}
		b.wire = b.dev.Wires.Intern(ev.Name)
		b.tile.Declare(b.wire)
		return nil

	case xdlrc.KindConn:
		if err := b.requireTile("conn"); err != nil {
			return err
		}
		if b.wire == device.NoWire {
			return &device.MalformedInputError{Kind: "conn", Name: ev.Target + "/" + ev.Wire, Reason: "connection outside a wire"}
		}
		b.conns = append(b.conns, rawConn{tile: b.tile, from: b.wire, target: ev.Target, wire: ev.Wire, line: ev.Line})
		return nil

	case xdlrc.KindPIP:
		if err := b.requireTile("pip"); err != nil {
			return err
		}
		from := b.dev.Wires.Intern(ev.From)
		to := b.dev.Wires.Intern(ev.To)
		b.tile.Declare(from)
		b.tile.Declare(to)
		b.addRaw(b.tile, from, device.WireConnection{Wire: to, PIP: true})
		mark(b.pipSrc, b.tile, from)
		mark(b.pipDst, b.tile, to)
		return nil

	case xdlrc.KindRoutethrough:
		b.rts = append(b.rts, routethroughDecl{siteType: ev.Type, in: ev.From, out: ev.To, line: ev.Line})
		return nil

	case xdlrc.KindSite:
		if err := b.requireTile("site"); err != nil {
			return err
		}
		tmpl, _ := b.dev.Template(ev.Type, true)
		s := device.NewSite(ev.Name, tmpl, b.tile.Row, b.tile.Column)
		s.Bonded = ev.Bonded
		s.Alternatives = ev.Alternatives
		if err := b.dev.AddSite(s); err != nil {
			return err
		}
		b.tile.AddSite(s)
		b.site = s
		return nil

	case xdlrc.KindSitePin:
		if b.site == nil {
			return &device.MalformedInputError{Kind: "site pin", Name: ev.Name, Reason: "pin outside a site"}
		}
		dir, ok := device.ParseDirection(ev.Direction)
		if !ok {
			return &device.MalformedInputError{Kind: "direction", Name: ev.Direction}
		}
		id := b.dev.Wires.Intern(ev.Wire)
		b.tile.Declare(id)
		b.site.SetPinWire(ev.Name, id)
		b.sitePins = append(b.sitePins, sitePinDecl{
			tile: b.tile, site: b.site, name: ev.Name, dir: dir, wire: id, line: ev.Line,
		})
		return nil

	case xdlrc.KindPrimitiveDef:
		if err := b.requireGrid(); err != nil {
			return err
		}
		if b.defined[ev.Name] {
			return &device.MalformedInputError{Kind: "primitive_def", Name: ev.Name, Reason: "defined twice"}
		}
		b.defined[ev.Name] = true
		b.tmpl, _ = b.dev.Template(ev.Name, true)
		b.tmplRaw = make(map[device.WireID][]device.WireConnection)
		return nil

	case xdlrc.KindPrimitivePin:
		if err := b.requireTemplate(); err != nil {
			return err
		}
		dir, ok := device.ParseDirection(ev.Direction)
		if !ok {
			return &device.MalformedInputError{Kind: "direction", Name: ev.Direction}
		}
		wire := b.tmpl.Wires.Intern(device.ElementWireName(ev.Wire, ev.Wire))
		b.tmpl.AddPin(ev.Name, dir, wire)
		return nil

	case xdlrc.KindElement:
		if err := b.requireTemplate(); err != nil {
			return err
		}
		b.element = elementState{name: ev.Name, bel: ev.BEL, line: ev.Line, started: true}
		return nil

	case xdlrc.KindElementPin:
		if !b.element.started {
			return &device.MalformedInputError{Kind: "element pin", Name: ev.Name, Reason: "pin outside an element"}
		}
		dir, ok := device.ParseDirection(ev.Direction)
		if !ok {
			return &device.MalformedInputError{Kind: "direction", Name: ev.Direction}
		}
		wire := b.tmpl.Wires.Intern(device.ElementWireName(b.element.name, ev.Name))
		b.element.pins = append(b.element.pins, elementPin{name: ev.Name, dir: dir, wire: wire})
		if b.element.bel {
			b.tmpl.AddBELPin(b.element.name, ev.Name, dir, wire)
		}
		return nil

	case xdlrc.KindElementCfg:
		b.element.cfg = true
		return nil

	case xdlrc.KindElementConn:
		if err := b.requireTemplate(); err != nil {
			return err
		}
		from := b.tmpl.Wires.Intern(device.ElementWireName(ev.From, ev.FromPin))
		to := b.tmpl.Wires.Intern(device.ElementWireName(ev.To, ev.ToPin))
		b.tmplRaw[from] = append(b.tmplRaw[from], device.WireConnection{Wire: to})
		return nil

	case xdlrc.KindElementEnd:
		b.finishElement()
		b.element = elementState{}
		return nil

	case xdlrc.KindPrimitiveDefEnd:
		if err := b.requireTemplate(); err != nil {
			return err
		}
		for wire, conns := range b.tmplRaw {
			b.tmpl.SetConnections(wire, b.dev.Store.Intern(conns))
		}
		b.tmpl, b.tmplRaw = nil, nil
		return nil
	}
	return &device.MalformedInputError{Kind: "event", Name: ev.Kind.String(), Reason: "unsupported event"}
}

// finishElement turns a completed non-BEL element into intra-site edges:
// configurable muxes become site PIPs, everything else a fixed connection.
func (b *Builder) finishElement() {
	el := b.element
	if el.bel {
		return
	}
	var ins, outs []elementPin
	for _, p := range el.pins {
		switch p.dir {
		case device.DirectionInput:
			ins = append(ins, p)
		case device.DirectionOutput:
			outs = append(outs, p)
		}
	}
	if len(ins) == 0 || len(outs) == 0 {
		return
	}
	for _, in := range ins {
		for _, out := range outs {
			if el.cfg {
				b.tmplRaw[in.wire] = append(b.tmplRaw[in.wire], device.WireConnection{Wire: out.wire, PIP: true})
				b.tmpl.AddSitePIP(in.wire, out.wire, device.SitePIP{Element: el.name, Option: in.name})
			} else {
				b.tmplRaw[in.wire] = append(b.tmplRaw[in.wire], device.WireConnection{Wire: out.wire})
			}
		}
	}
}

func (b *Builder) addRaw(t *device.Tile, from device.WireID, c device.WireConnection) {
	table, ok := b.raw[t]
	if !ok {
		table = make(map[device.WireID][]device.WireConnection)
		b.raw[t] = table
	}
	table[from] = append(table[from], c)
}

func mark(sets map[*device.Tile]map[device.WireID]struct{}, t *device.Tile, w device.WireID) {
	set, ok := sets[t]
	if !ok {
		set = make(map[device.WireID]struct{})
		sets[t] = set
	}
	set[w] = struct{}{}
}

func (b *Builder) requireGrid() error {
	if b.dev == nil {
		return &device.MalformedInputError{Kind: "tiles", Reason: "tile grid must be declared first"}
	}
	return nil
}

func (b *Builder) requireTile(what string) error {
	if b.tile == nil {
		return &device.MalformedInputError{Kind: what, Reason: "declared outside a tile"}
	}
	return nil
}

func (b *Builder) requireTemplate() error {
	if b.tmpl == nil {
		return &device.MalformedInputError{Kind: "primitive_def", Reason: "element declared outside a primitive definition"}
	}
	return nil
}

// Finish resolves deferred references, runs the reachability repair and
// builds the reverse index. The builder must not be used afterwards.
func (b *Builder) Finish(ctx context.Context) (*device.Device, error) {
	if b.dev == nil {
		return nil, &device.MalformedInputError{
			Location: device.Location{File: b.opts.Filename, Line: b.lastLine},
			Kind:     "tiles",
			Reason:   "description declares no tile grid",
		}
	}
	log := b.log.WithField("device", b.dev.Name)
	log.WithFields(logrus.Fields{
		"tiles":   len(b.dev.Tiles()),
		"sites":   b.dev.SiteCount(),
		"wires":   b.dev.Wires.Len(),
		"elapsed": time.Since(b.phaseTime).Round(time.Millisecond),
	}).Info("device description consumed")

	if err := b.resolveConnections(); err != nil {
		return nil, err
	}
	if err := b.bindSitePins(); err != nil {
		return nil, err
	}
	if err := b.resolveRoutethroughs(); err != nil {
		return nil, err
	}

	start := time.Now()
	stats, err := b.repair()
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"added":     stats.added,
		"removed":   stats.removed,
		"truncated": stats.truncated,
		"elapsed":   time.Since(start).Round(time.Millisecond),
	}).Info("reachability repair complete")

	start = time.Now()
	if err := b.dev.BuildReverseIndex(ctx, b.opts.ReverseWorkers); err != nil {
		return nil, errors.Wrap(err, "reverse index")
	}
	st := b.dev.Store.Stats()
	log.WithFields(logrus.Fields{
		"workers": b.opts.ReverseWorkers,
		"arrays":  st.Unique,
		"hits":    st.Hits,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("reverse index built")

	dev := b.dev
	b.dev = nil
	return dev, nil
}

func (b *Builder) resolveConnections() error {
	for _, rc := range b.conns {
		loc := device.Location{File: b.opts.Filename, Line: rc.line}
		target, ok := b.dev.TileByName(rc.target)
		if !ok {
			return &device.MalformedInputError{Location: loc, Kind: "tile", Name: rc.target}
		}
		id, ok := b.dev.Wires.Lookup(rc.wire)
		if !ok || !target.HasWire(id) {
			return &device.MalformedInputError{Location: loc, Kind: "wire", Name: rc.target + "/" + rc.wire}
		}
		b.addRaw(rc.tile, rc.from, device.WireConnection{
			Wire:         id,
			RowOffset:    target.Row - rc.tile.Row,
			ColumnOffset: target.Column - rc.tile.Column,
		})
	}
	b.conns = nil
	return nil
}

func (b *Builder) bindSitePins() error {
	for _, sp := range b.sitePins {
		tmpl := sp.site.Type
		pin, ok := tmpl.Pin(sp.name)
		if !ok {
			if b.defined[tmpl.Name] {
				return &device.MalformedInputError{
					Location: device.Location{File: b.opts.Filename, Line: sp.line},
					Kind:     "site pin",
					Name:     sp.site.Name + "/" + sp.name,
					Reason:   "not a pin of site type " + tmpl.Name,
				}
			}
			// Site types without a primitive definition get their pins
			// from the instances.
			wire := tmpl.Wires.Intern(device.ElementWireName(sp.name, sp.name))
			pin = tmpl.AddPin(sp.name, sp.dir, wire)
		}
		sp.tile.BindSitePin(sp.wire, device.SitePinRef{Site: sp.site, Pin: pin})
	}
	return nil
}

// resolveRoutethroughs maps each routethrough, declared on site pins, onto
// the input and output pin of the BEL that implements it.
func (b *Builder) resolveRoutethroughs() error {
	seen := make(map[routethroughDecl]bool)
	for _, rt := range b.rts {
		key := routethroughDecl{siteType: rt.siteType, in: rt.in, out: rt.out}
		if seen[key] {
			continue
		}
		seen[key] = true
		loc := device.Location{File: b.opts.Filename, Line: rt.line}
		tmpl, ok := b.dev.Template(rt.siteType, false)
		if !ok {
			return &device.MalformedInputError{Location: loc, Kind: "site type", Name: rt.siteType}
		}
		in, ok := tmpl.Pin(rt.in)
		if !ok {
			return &device.MalformedInputError{Location: loc, Kind: "site pin", Name: rt.siteType + "/" + rt.in}
		}
		out, ok := tmpl.Pin(rt.out)
		if !ok {
			return &device.MalformedInputError{Location: loc, Kind: "site pin", Name: rt.siteType + "/" + rt.out}
		}
		belIn, belOut, ok := findRoutethroughBEL(tmpl, in.Wire, out.Wire)
		if !ok {
			return &device.InconsistentDeviceError{
				Location: loc,
				Tile:     rt.siteType,
				Wire:     rt.in + "->" + rt.out,
				Reason:   "no BEL connects the routethrough pins",
			}
		}
		tmpl.AddRoutethrough(belIn.Wire, belOut.Wire)
		conns := append(append([]device.WireConnection(nil), tmpl.Connections(belIn.Wire)...),
			device.WireConnection{Wire: belOut.Wire, PIP: true})
		tmpl.SetConnections(belIn.Wire, b.dev.Store.Intern(conns))
	}
	return nil
}

// findRoutethroughBEL looks for a BEL with an input pin reachable from in and
// an output pin from which out is reachable, following intra-site edges that
// do not cross a BEL.
func findRoutethroughBEL(tmpl *device.SiteTemplate, in, out device.WireID) (*device.BELPin, *device.BELPin, bool) {
	inputs := make(map[string]*device.BELPin)
	walkIntraSite(tmpl, in, forwardEdges(tmpl), func(w device.WireID) bool {
		if p, ok := tmpl.BELPinAt(w); ok {
			if p.Direction == device.DirectionInput {
				if _, dup := inputs[p.BEL]; !dup {
					inputs[p.BEL] = p
				}
			}
			return false
		}
		return true
	})
	var belIn, belOut *device.BELPin
	walkIntraSite(tmpl, out, backwardEdges(tmpl), func(w device.WireID) bool {
		if belOut != nil {
			return false
		}
		if p, ok := tmpl.BELPinAt(w); ok {
			if p.Direction == device.DirectionOutput {
				if candidate, ok := inputs[p.BEL]; ok {
					belIn, belOut = candidate, p
				}
			}
			return false
		}
		return true
	})
	return belIn, belOut, belOut != nil
}

func forwardEdges(tmpl *device.SiteTemplate) func(device.WireID) []device.WireID {
	return func(w device.WireID) []device.WireID {
		var out []device.WireID
		for _, c := range tmpl.Connections(w) {
			out = append(out, c.Wire)
		}
		return out
	}
}

func backwardEdges(tmpl *device.SiteTemplate) func(device.WireID) []device.WireID {
	rev := make(map[device.WireID][]device.WireID)
	for _, w := range tmpl.SourceWires() {
		for _, c := range tmpl.Connections(w) {
			rev[c.Wire] = append(rev[c.Wire], w)
		}
	}
	return func(w device.WireID) []device.WireID { return rev[w] }
}

// walkIntraSite visits wires breadth-first from start; visit returns whether
// to expand the wire.
func walkIntraSite(tmpl *device.SiteTemplate, start device.WireID, next func(device.WireID) []device.WireID, visit func(device.WireID) bool) {
	seen := map[device.WireID]bool{start: true}
	queue := []device.WireID{start}
	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]
		if w != start && !visit(w) {
			continue
		}
		for _, n := range next(w) {
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
}
