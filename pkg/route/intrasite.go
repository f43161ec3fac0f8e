package route

import (
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
)

// SiteConfig is the active configuration of one site: which mux options are
// selected and which BEL routethroughs are in use.
type SiteConfig interface {
	UsesSitePIP(pip device.SitePIP) bool
	RoutethroughActive(in, out device.WireID) bool
}

// Mode selects the success criteria of a search rooted at a BEL pin.
type Mode int

const (
	// ModeNormal accepts declared BEL sinks and exits through site pins.
	ModeNormal Mode = iota
	// ModeContained forbids leaving the site.
	ModeContained
	// ModeStatic accepts every BEL input it reaches, declared or not.
	ModeStatic
)

func (m Mode) String() string {
	switch m {
	case ModeContained:
		return "contained"
	case ModeStatic:
		return "static"
	}
	return "normal"
}

// SiteRoute is the intra-site part of a net in one site. Tree wires carry
// the site's coordinates and template-local wire ids.
type SiteRoute struct {
	Site          *device.Site
	Tree          *Tree
	Sinks         []*device.BELPin
	ImplicitSinks []*device.BELPin
	ExitPins      []*device.SitePinTemplate
}

// WireName names an intra-site wire of the route.
func (sr *SiteRoute) WireName(w device.Wire) string {
	return sr.Site.Name + "/" + sr.Site.Type.Wires.Name(w.ID)
}

type reach int

const (
	reachPass reach = iota
	reachBlock
	reachSink
	reachImplicit
	reachExit
)

// FromSitePin routes from an input site pin into the site. It succeeds on
// every declared BEL sink and on output site pins reached through
// routethroughs.
func (r *Reconstructor) FromSitePin(net string, site *device.Site, pin string, cfg SiteConfig, declared func(*device.BELPin) bool) (*SiteRoute, error) {
	tmpl := site.Type
	p, ok := tmpl.Pin(pin)
	if !ok {
		return nil, &device.MalformedInputError{Kind: "site pin", Name: site.Name + "/" + pin}
	}
	if p.Direction == device.DirectionOutput {
		return nil, &device.MalformedInputError{Kind: "site pin", Name: site.Name + "/" + pin, Reason: "not an input pin"}
	}
	return r.walkSite(net, site, p.Wire, cfg, func(w device.WireID) reach {
		if bp, ok := tmpl.BELPinAt(w); ok {
			if bp.Direction != device.DirectionOutput && declared != nil && declared(bp) {
				return reachSink
			}
			return reachPass
		}
		if sp, ok := tmpl.PinAt(w); ok && sp.Direction != device.DirectionInput {
			return reachExit
		}
		return reachPass
	})
}

// FromBELPin routes from an output BEL pin to the BEL sinks of its site and
// out through site pins, subject to mode.
func (r *Reconstructor) FromBELPin(net string, site *device.Site, bel, pin string, cfg SiteConfig, declared func(*device.BELPin) bool, mode Mode) (*SiteRoute, error) {
	tmpl := site.Type
	bp, ok := tmpl.BELPin(bel, pin)
	if !ok {
		return nil, &device.MalformedInputError{Kind: "BEL pin", Name: site.Name + "/" + bel + "/" + pin}
	}
	if bp.Direction == device.DirectionInput {
		return nil, &device.MalformedInputError{Kind: "BEL pin", Name: site.Name + "/" + bel + "/" + pin, Reason: "not an output pin"}
	}
	return r.walkSite(net, site, bp.Wire, cfg, func(w device.WireID) reach {
		if p, ok := tmpl.BELPinAt(w); ok {
			if p.Direction == device.DirectionOutput {
				return reachPass
			}
			if declared != nil && declared(p) {
				return reachSink
			}
			if mode == ModeStatic {
				return reachImplicit
			}
			return reachPass
		}
		if sp, ok := tmpl.PinAt(w); ok && sp.Direction != device.DirectionInput {
			if mode == ModeContained {
				return reachBlock
			}
			return reachExit
		}
		return reachPass
	})
}

// siteEdgeActive decides whether an intra-site edge may be used: fixed
// wires always, single-option muxes always, configurable muxes and
// routethroughs only when the site configuration selects them.
func siteEdgeActive(tmpl *device.SiteTemplate, from device.WireID, c device.WireConnection, cfg SiteConfig) bool {
	if !c.PIP {
		return true
	}
	if tmpl.IsRoutethrough(from, c.Wire) {
		return cfg != nil && cfg.RoutethroughActive(from, c.Wire)
	}
	pip, ok := tmpl.SitePIPAt(from, c.Wire)
	if !ok {
		return false
	}
	if !tmpl.Configurable(pip.Element) {
		return true
	}
	return cfg != nil && cfg.UsesSitePIP(pip)
}

func (r *Reconstructor) walkSite(net string, site *device.Site, start device.WireID, cfg SiteConfig, classify func(device.WireID) reach) (*SiteRoute, error) {
	tmpl := site.Type
	type step struct {
		from device.WireID
		conn device.WireConnection
	}
	prev := make(map[device.WireID]step)
	seen := map[device.WireID]bool{start: true}
	queue := []device.WireID{start}
	var ends []device.WireID
	kinds := make(map[device.WireID]reach)
	unreachable := func(visited int) error {
		return &device.UnreachableTargetError{
			Net:     net,
			From:    site.Name + "/" + tmpl.Wires.Name(start),
			Target:  "a sink of the net",
			Visited: visited,
			Limit:   r.opts.VisitLimit,
		}
	}
	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]
		for _, c := range tmpl.Connections(w) {
			if seen[c.Wire] || !siteEdgeActive(tmpl, w, c, cfg) {
				continue
			}
			if len(seen) >= r.opts.VisitLimit {
				return nil, unreachable(len(seen) + 1)
			}
			seen[c.Wire] = true
			prev[c.Wire] = step{from: w, conn: c}
			switch k := classify(c.Wire); k {
			case reachPass:
				queue = append(queue, c.Wire)
			case reachBlock:
			default:
				ends = append(ends, c.Wire)
				kinds[c.Wire] = k
			}
		}
	}
	if len(ends) == 0 {
		return nil, unreachable(len(seen))
	}

	root := NewTree(site.InternalWire(start))
	sr := &SiteRoute{Site: site, Tree: root}
	for _, end := range ends {
		var path []device.WireConnection
		for w := end; w != start; w = prev[w].from {
			path = append(path, prev[w].conn)
		}
		node := root
		for i := len(path) - 1; i >= 0; i-- {
			node = node.AddConnection(path[i])
		}
		node.Terminal = true
		switch kinds[end] {
		case reachSink:
			p, _ := tmpl.BELPinAt(end)
			sr.Sinks = append(sr.Sinks, p)
		case reachImplicit:
			p, _ := tmpl.BELPinAt(end)
			sr.ImplicitSinks = append(sr.ImplicitSinks, p)
		case reachExit:
			p, _ := tmpl.PinAt(end)
			sr.ExitPins = append(sr.ExitPins, p)
		}
	}
	root.Prune(root.Terminals())
	return sr, nil
}
