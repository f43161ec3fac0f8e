package rcf

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/design"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/route"
)

// Options configures an Importer.
type Options struct {
	// Filename is used in error positions.
	Filename string
	Route    route.Options
	// Concurrency is the number of nets reconstructed at once.
	Concurrency int
	// SkipUnreachable leaves a net unrouted when one of its searches fails
	// instead of rejecting the whole file.
	SkipUnreachable bool
	Logger          logrus.FieldLogger
}

func (o *Options) setDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Route.Logger == nil {
		o.Route.Logger = o.Logger
	}
}

// Importer applies route-command files to a design.
type Importer struct {
	design *design.Design
	rec    *route.Reconstructor
	opts   Options
	log    logrus.FieldLogger
}

// NewImporter creates an importer for d.
func NewImporter(d *design.Design, opts Options) *Importer {
	opts.setDefaults()
	return &Importer{
		design: d,
		rec:    route.New(d.Device, opts.Route),
		opts:   opts,
		log:    opts.Logger.WithField("file", opts.Filename),
	}
}

// ImportFile imports the file at path.
func (im *Importer) ImportFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening route file")
	}
	defer f.Close()
	if im.opts.Filename == "" {
		im.opts.Filename = path
		im.log = im.opts.Logger.WithField("file", path)
	}
	return im.Import(ctx, f)
}

type job struct {
	net    *design.Net
	tokens []string
	line   int
}

type result struct {
	trees      []*route.Tree
	siteRoutes []*route.SiteRoute
	implicit   []design.PinRef
}

// Import reads one file. Declarations are applied first, then every routed
// net is reconstructed. Routes are attached to the nets only when the whole
// file succeeded; on error the design should be discarded.
func (im *Importer) Import(ctx context.Context, r io.Reader) error {
	file, err := Parse(im.opts.Filename, r)
	if err != nil {
		return err
	}
	jobs, err := im.declare(file)
	if err != nil {
		return err
	}

	results := make([]*result, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Concurrency)
	for i, j := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := im.reconstruct(j)
			if err == nil {
				results[i] = res
				return nil
			}
			err = device.Locate(err, device.Location{File: im.opts.Filename, Line: j.line})
			var unreachable *device.UnreachableTargetError
			if im.opts.SkipUnreachable && errors.As(err, &unreachable) {
				im.log.WithField("net", j.net.Name).Warn(err)
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	routed := 0
	for i, j := range jobs {
		res := results[i]
		if res == nil {
			continue
		}
		j.net.Trees = res.trees
		j.net.SiteRoutes = res.siteRoutes
		j.net.ImplicitSinks = res.implicit
		j.net.Line = j.line
		routed++
	}
	im.log.WithFields(logrus.Fields{
		"nets":   len(im.design.Nets()),
		"routed": routed,
	}).Info("route file imported")
	return nil
}

// declare applies every non-route command and collects the nets to
// reconstruct.
func (im *Importer) declare(file *File) ([]job, error) {
	var jobs []job
	byNet := make(map[string]int)
	addJob := func(n *design.Net, line int) *job {
		if i, ok := byNet[n.Name]; ok {
			return &jobs[i]
		}
		byNet[n.Name] = len(jobs)
		jobs = append(jobs, job{net: n, line: line})
		return &jobs[len(jobs)-1]
	}
	for _, line := range file.Lines {
		if line.Command == nil {
			continue
		}
		var err error
		switch c := line.Command; {
		case c.Net != nil:
			err = im.declareNet(c.Net)
		case c.Source != nil:
			err = im.declareSource(c.Source)
		case c.Sinks != nil:
			err = im.declareSinks(c.Sinks)
		case c.Intersite != nil:
			err = im.declareIntersite(c.Intersite)
		case c.Intrasite != nil:
			var n *design.Net
			if n, err = im.net(c.Intrasite.Net); err == nil {
				n.Intrasite = true
				addJob(n, line.Pos.Line)
			}
		case c.SitePIPs != nil:
			err = im.declareSitePIPs(c.SitePIPs)
		case c.Routethroughs != nil:
			err = im.declareRoutethroughs(c.Routethroughs)
		case c.Static != nil:
			err = im.declareStatic(c.Static)
		case c.Route != nil:
			var n *design.Net
			if n, err = im.net(c.Route.Net); err == nil {
				j := addJob(n, line.Pos.Line)
				if j.tokens != nil {
					err = &device.MalformedInputError{Kind: "net", Name: n.Name, Reason: "routed twice"}
				} else {
					j.tokens = c.Route.Tokens
					j.line = line.Pos.Line
				}
			}
		}
		if err != nil {
			return nil, device.Locate(err, device.Location{File: im.opts.Filename, Line: line.Pos.Line})
		}
	}
	return jobs, nil
}

func (im *Importer) net(name string) (*design.Net, error) {
	n, ok := im.design.Net(name)
	if !ok {
		return nil, &device.MalformedInputError{Kind: "net", Name: name}
	}
	return n, nil
}

func (im *Importer) declareNet(c *NetDecl) error {
	typ := design.NetWire
	if c.Type != "" {
		var ok bool
		if typ, ok = design.ParseNetType(c.Type); !ok {
			return &device.MalformedInputError{Kind: "net type", Name: c.Type}
		}
	}
	_, err := im.design.AddNet(c.Name, typ)
	return err
}

// pin parses and resolves a pin reference against the device.
func (im *Importer) pin(s string) (design.PinRef, error) {
	ref, err := design.ParsePinRef(s)
	if err != nil {
		return ref, err
	}
	if ref.IsBELPin() {
		_, _, err = im.design.BELPin(ref)
	} else {
		_, _, err = im.design.SitePin(ref)
	}
	return ref, err
}

func (im *Importer) declareSource(c *SourceDecl) error {
	n, err := im.net(c.Net)
	if err != nil {
		return err
	}
	ref, err := im.pin(c.Pin)
	if err != nil {
		return err
	}
	n.Source = &ref
	return nil
}

func (im *Importer) declareSinks(c *SinksDecl) error {
	n, err := im.net(c.Net)
	if err != nil {
		return err
	}
	for _, s := range c.Pins {
		ref, err := im.pin(s)
		if err != nil {
			return err
		}
		if !n.HasSink(ref) {
			n.Sinks = append(n.Sinks, ref)
		}
	}
	return nil
}

func (im *Importer) declareIntersite(c *IntersiteDecl) error {
	n, err := im.net(c.Net)
	if err != nil {
		return err
	}
	for _, s := range c.Pins {
		ref, err := design.ParsePinRef(s)
		if err != nil {
			return err
		}
		_, p, err := im.design.SitePin(ref)
		if err != nil {
			return err
		}
		if p.Direction == device.DirectionOutput {
			return &device.MalformedInputError{Kind: "site pin", Name: s, Reason: "not an input pin"}
		}
		n.Intersite = append(n.Intersite, ref)
	}
	return nil
}

func (im *Importer) declareSitePIPs(c *SitePIPsDecl) error {
	cfg, err := im.design.Site(c.Site)
	if err != nil {
		return err
	}
	for _, s := range c.PIPs {
		element, option, ok := strings.Cut(s, ":")
		if !ok || element == "" || option == "" {
			return &device.MalformedInputError{Kind: "site PIP", Name: s, Reason: "expected ELEMENT:OPTION"}
		}
		if err := cfg.UseSitePIP(device.SitePIP{Element: element, Option: option}); err != nil {
			return err
		}
	}
	return nil
}

func (im *Importer) declareRoutethroughs(c *LUTRTsDecl) error {
	for _, s := range c.Routethroughs {
		parts := strings.Split(s, "/")
		if len(parts) != 3 && len(parts) != 4 {
			return &device.MalformedInputError{Kind: "routethrough", Name: s, Reason: "expected SITE/BEL/IN[/OUT]"}
		}
		cfg, err := im.design.Site(parts[0])
		if err != nil {
			return err
		}
		out := ""
		if len(parts) == 4 {
			out = parts[3]
		}
		if err := cfg.ActivateRoutethrough(parts[1], parts[2], out); err != nil {
			return err
		}
	}
	return nil
}

func (im *Importer) declareStatic(c *StaticDecl) error {
	for _, s := range c.Pins {
		ref, err := design.ParsePinRef(s)
		if err != nil {
			return err
		}
		if !ref.IsBELPin() {
			return &device.MalformedInputError{Kind: "BEL pin", Name: s, Reason: "expected SITE/BEL/PIN"}
		}
		cfg, err := im.design.Site(ref.Site)
		if err != nil {
			return err
		}
		if err := cfg.AddStaticSource(ref.BEL, ref.Pin); err != nil {
			return err
		}
	}
	return nil
}
