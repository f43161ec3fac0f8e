package rcf

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/design"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/route"
)

// reconstruct rebuilds the physical route of one net: the inter-site trees
// from its tokens, then the intra-site routes at its source, its static
// sources and its intersite pins. It only reads the design.
func (im *Importer) reconstruct(j job) (*result, error) {
	d := im.design
	dev := d.Device
	net := j.net
	res := &result{}

	if len(j.tokens) > 0 {
		if net.Type.Static() {
			trees, err := im.rec.RouteGroups(net.Name, j.tokens)
			if err != nil {
				return nil, err
			}
			res.trees = trees
		} else {
			tree, err := im.rec.Route(net.Name, j.tokens)
			if err != nil {
				return nil, err
			}
			res.trees = []*route.Tree{tree}
		}
	}

	// Site-pin sinks and intersite pins are the legitimate tree endpoints.
	allowed := make(map[device.Wire]bool)
	sinkWires := make(map[device.Wire]string)
	for _, s := range net.Sinks {
		if s.IsBELPin() {
			continue
		}
		w, err := d.SitePinWire(s)
		if err != nil {
			return nil, err
		}
		allowed[w] = true
		sinkWires[w] = s.String()
	}
	for _, p := range net.Intersite {
		w, err := d.SitePinWire(p)
		if err != nil {
			return nil, err
		}
		allowed[w] = true
		sinkWires[w] = p.String()
	}
	for _, tree := range res.trees {
		terminals := tree.Terminals()
		for w := range allowed {
			terminals[w] = true
		}
		if n := tree.Prune(terminals); n > 0 {
			im.log.WithFields(logrus.Fields{"net": net.Name, "removed": n}).Debug("pruned dead branches")
		}
		if err := route.ValidateTree(dev, net.Name, tree, allowed); err != nil {
			return nil, err
		}
	}

	if net.Source != nil && net.Source.IsBELPin() && !net.Type.Static() {
		mode := route.ModeNormal
		if net.Intrasite {
			mode = route.ModeContained
		}
		site, _, err := d.BELPin(*net.Source)
		if err != nil {
			return nil, err
		}
		sr, err := im.rec.FromBELPin(net.Name, site, net.Source.BEL, net.Source.Pin, d.SiteConfig(site.Name), declaredSinks(net, site), mode)
		if err != nil {
			return nil, err
		}
		res.siteRoutes = append(res.siteRoutes, sr)
	}
	if err := im.checkSource(net, res); err != nil {
		return nil, err
	}

	if net.Type.Static() {
		for _, tree := range res.trees {
			sr, err := im.staticSource(net, tree)
			if err != nil {
				return nil, err
			}
			if sr == nil {
				continue
			}
			res.siteRoutes = append(res.siteRoutes, sr)
			for _, p := range sr.ImplicitSinks {
				res.implicit = append(res.implicit, design.PinRef{Site: sr.Site.Name, BEL: p.BEL, Pin: p.Name})
			}
		}
	}

	for _, p := range net.Intersite {
		site, _, err := d.SitePin(p)
		if err != nil {
			return nil, err
		}
		sr, err := im.rec.FromSitePin(net.Name, site, p.Pin, d.SiteConfig(site.Name), declaredSinks(net, site))
		if err != nil {
			return nil, err
		}
		res.siteRoutes = append(res.siteRoutes, sr)
	}

	if len(sinkWires) > 0 {
		if err := route.ValidateCoverage(net.Name, res.trees, sinkWires); err != nil {
			return nil, err
		}
	}
	if err := checkBELSinks(net, res); err != nil {
		return nil, err
	}
	im.log.WithFields(logrus.Fields{
		"net":   net.Name,
		"trees": len(res.trees),
		"sites": len(res.siteRoutes),
	}).Debug("net reconstructed")
	return res, nil
}

// checkSource requires the route of a net with a declared source to start
// where that source leaves its site: on the source pin itself, or for a BEL
// pin on one of the site pins its intra-site route exits through.
func (im *Importer) checkSource(net *design.Net, res *result) error {
	if net.Source == nil || net.Type.Static() || len(res.trees) == 0 {
		return nil
	}
	dev := im.design.Device
	root := res.trees[0].Wire
	mismatch := &device.MalformedInputError{
		Kind:   "route",
		Name:   net.Name,
		Reason: "starts at " + dev.FullName(root) + ", not at source " + net.Source.String(),
	}
	if !net.Source.IsBELPin() {
		w, err := im.design.SitePinWire(*net.Source)
		if err != nil {
			return err
		}
		if w != root {
			return mismatch
		}
		return nil
	}
	ref, ok := dev.SitePinAt(root)
	if !ok || ref.Site.Name != net.Source.Site || len(res.siteRoutes) == 0 {
		return mismatch
	}
	for _, exit := range res.siteRoutes[0].ExitPins {
		if exit == ref.Pin {
			return nil
		}
	}
	return mismatch
}

// staticSource finds the constant source driving tree. A tree rooted on an
// output site pin must be fed by one of that site's static sources through
// that pin; other roots are tie-off wires and need no intra-site route.
func (im *Importer) staticSource(net *design.Net, tree *route.Tree) (*route.SiteRoute, error) {
	d := im.design
	ref, ok := d.Device.SitePinAt(tree.Wire)
	if !ok || ref.Pin.Direction == device.DirectionInput {
		return nil, nil
	}
	site := ref.Site
	cfg := d.SiteConfig(site.Name)
	var sources []*device.BELPin
	if cfg != nil {
		sources = cfg.StaticSources
	}
	for _, src := range sources {
		sr, err := im.rec.FromBELPin(net.Name, site, src.BEL, src.Name, cfg, declaredSinks(net, site), route.ModeStatic)
		if err != nil {
			continue
		}
		for _, exit := range sr.ExitPins {
			if exit == ref.Pin {
				return sr, nil
			}
		}
	}
	return nil, &device.UnreachableTargetError{
		Net:    net.Name,
		From:   "static sources of " + site.Name,
		Target: site.Name + "/" + ref.Pin.Name,
	}
}

// declaredSinks matches the BEL pins of site that net declares as sinks.
func declaredSinks(net *design.Net, site *device.Site) func(*device.BELPin) bool {
	return func(p *device.BELPin) bool {
		return net.HasSink(design.PinRef{Site: site.Name, BEL: p.BEL, Pin: p.Name})
	}
}

// checkBELSinks requires every declared BEL sink to be reached by one of
// the net's intra-site routes.
func checkBELSinks(net *design.Net, res *result) error {
	reached := make(map[design.PinRef]bool)
	for _, sr := range res.siteRoutes {
		for _, p := range sr.Sinks {
			reached[design.PinRef{Site: sr.Site.Name, BEL: p.BEL, Pin: p.Name}] = true
		}
		for _, p := range sr.ImplicitSinks {
			reached[design.PinRef{Site: sr.Site.Name, BEL: p.BEL, Pin: p.Name}] = true
		}
	}
	var missing []string
	for _, s := range net.Sinks {
		if s.IsBELPin() && !reached[s] {
			missing = append(missing, s.String())
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &device.RouteValidationError{Net: net.Name, Missing: missing}
	}
	return nil
}
