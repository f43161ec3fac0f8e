package rcf

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/design"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/route"
)

// RouteTokens serializes the inter-site trees of net. Static nets get one
// "{ }" group per tree.
func RouteTokens(d *design.Design, net *design.Net) []string {
	if len(net.Trees) == 0 {
		return nil
	}
	if net.Type.Static() {
		return route.ExportGroups(d.Device, net.Trees)
	}
	return route.Export(d.Device, net.Trees[0])
}

// Write serializes the site configuration and the nets of d. Reading the
// output back with an Importer reproduces the same routes.
func Write(w io.Writer, d *design.Design) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# design %s on %s\n", d.Name, d.Device.Name)

	for _, cfg := range d.Sites() {
		if pips := cfg.SitePIPs(); len(pips) > 0 {
			names := make([]string, len(pips))
			for i, p := range pips {
				names[i] = p.String()
			}
			fmt.Fprintf(bw, "SITE_PIPS %s %s\n", cfg.Site.Name, strings.Join(names, " "))
		}
		if rts := cfg.Routethroughs(); len(rts) > 0 {
			names := make([]string, len(rts))
			for i, rt := range rts {
				names[i] = cfg.Site.Name + "/" + rt
			}
			fmt.Fprintf(bw, "LUT_RTS %s\n", strings.Join(names, " "))
		}
		if len(cfg.StaticSources) > 0 {
			names := make([]string, len(cfg.StaticSources))
			for i, p := range cfg.StaticSources {
				names[i] = cfg.Site.Name + "/" + p.BEL + "/" + p.Name
			}
			fmt.Fprintf(bw, "STATIC_SOURCES %s\n", strings.Join(names, " "))
		}
	}

	for _, net := range d.Nets() {
		fmt.Fprintln(bw)
		if net.Type == design.NetWire {
			fmt.Fprintf(bw, "NET %s\n", net.Name)
		} else {
			fmt.Fprintf(bw, "NET %s %s\n", net.Name, net.Type)
		}
		if net.Source != nil {
			fmt.Fprintf(bw, "SOURCE %s %s\n", net.Name, net.Source)
		}
		if len(net.Sinks) > 0 {
			fmt.Fprintf(bw, "SINKS %s %s\n", net.Name, joinPins(net.Sinks))
		}
		if len(net.Intersite) > 0 {
			fmt.Fprintf(bw, "INTERSITE %s %s\n", net.Name, joinPins(net.Intersite))
		}
		if net.Intrasite {
			fmt.Fprintf(bw, "INTRASITE %s\n", net.Name)
		}
		if tokens := RouteTokens(d, net); len(tokens) > 0 {
			fmt.Fprintf(bw, "ROUTE %s %s\n", net.Name, strings.Join(tokens, " "))
		}
	}
	return bw.Flush()
}

func joinPins(pins []design.PinRef) string {
	names := make([]string, len(pins))
	for i, p := range pins {
		names[i] = p.String()
	}
	return strings.Join(names, " ")
}
