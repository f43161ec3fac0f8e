package route

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
)

// Reconstructor maps serialized route tokens onto paths through a device.
// It only reads the device, so one Reconstructor may serve concurrent
// callers.
type Reconstructor struct {
	dev  *device.Device
	opts Options
	log  logrus.FieldLogger
}

// New creates a reconstructor for dev.
func New(dev *device.Device, opts Options) *Reconstructor {
	opts.setDefaults()
	return &Reconstructor{dev: dev, opts: opts, log: opts.Logger}
}

// Device returns the device routes are reconstructed on.
func (r *Reconstructor) Device() *device.Device {
	return r.dev
}

// Route reconstructs one route tree. tokens[0] must be a tile-qualified
// wire; the rest are wire names, "{" and "}" branch markers and "<N>name"
// clock hops. The returned tree is not pruned.
func (r *Reconstructor) Route(net string, tokens []string) (*Tree, error) {
	if len(tokens) == 0 {
		return nil, &device.MalformedInputError{Kind: "route", Name: net, Reason: "no wires"}
	}
	root, err := r.dev.LookupWire(tokens[0])
	if err != nil {
		return nil, err
	}
	s := &session{r: r, net: net, tokens: tokens, pos: 1}
	tree := NewTree(root)
	if err := s.sequence(tree, 0); err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{"net": net, "nodes": tree.Len()}).Debug("route reconstructed")
	return tree, nil
}

// RouteGroups reconstructs the independent trees of a static net, written as
// "{ first tokens... } { first tokens... }". A token list that does not start
// with "{" is a single group.
func (r *Reconstructor) RouteGroups(net string, tokens []string) ([]*Tree, error) {
	groups, err := SplitGroups(net, tokens)
	if err != nil {
		return nil, err
	}
	trees := make([]*Tree, 0, len(groups))
	for _, g := range groups {
		t, err := r.Route(net, g)
		if err != nil {
			return nil, err
		}
		trees = append(trees, t)
	}
	return trees, nil
}

// SplitGroups splits "{ a b } { c d }" into its top-level groups.
func SplitGroups(net string, tokens []string) ([][]string, error) {
	if len(tokens) == 0 || tokens[0] != "{" {
		return [][]string{tokens}, nil
	}
	var groups [][]string
	depth, start := 0, 0
	for i, tok := range tokens {
		switch tok {
		case "{":
			if depth == 0 {
				start = i + 1
			}
			depth++
		case "}":
			depth--
			if depth < 0 {
				return nil, &device.MalformedInputError{Kind: "route", Name: net, Reason: "unbalanced '}'"}
			}
			if depth == 0 {
				groups = append(groups, tokens[start:i])
			}
		default:
			if depth == 0 {
				return nil, &device.MalformedInputError{Kind: "route", Name: net, Reason: "token " + tok + " outside a group"}
			}
		}
	}
	if depth != 0 {
		return nil, &device.MalformedInputError{Kind: "route", Name: net, Reason: "unterminated group"}
	}
	return groups, nil
}

type session struct {
	r      *Reconstructor
	net    string
	tokens []string
	pos    int
}

// sequence consumes tokens from cur until the branch at depth closes.
func (s *session) sequence(cur *Tree, depth int) error {
	for s.pos < len(s.tokens) {
		tok := s.tokens[s.pos]
		s.pos++
		switch {
		case tok == "{":
			if err := s.sequence(cur, depth+1); err != nil {
				return err
			}
		case tok == "}":
			if depth == 0 {
				return &device.MalformedInputError{Kind: "route", Name: s.net, Reason: "unbalanced '}'"}
			}
			return s.finish(cur)
		case strings.HasPrefix(tok, "<"):
			next, err := s.clockHop(cur, tok)
			if err != nil {
				return err
			}
			cur = next
		default:
			next, err := s.search(cur, tok)
			if err != nil {
				return err
			}
			cur = next
		}
	}
	if depth > 0 {
		return &device.MalformedInputError{Kind: "route", Name: s.net, Reason: "unterminated branch"}
	}
	return s.finish(cur)
}

// finish marks the end of a branch. A leaf is extended while its wire has a
// single non-PIP successor, up to the next site pin.
func (s *session) finish(cur *Tree) error {
	if !cur.IsLeaf() {
		return nil
	}
	dev := s.r.dev
	for steps := 0; steps < s.r.opts.VisitLimit; steps++ {
		if _, ok := dev.SitePinAt(cur.Wire); ok && cur.Parent() != nil {
			break
		}
		conns := dev.Connections(cur.Wire)
		if len(conns) != 1 || conns[0].PIP {
			break
		}
		next := cur.Wire.Follow(conns[0])
		if cur.OnPath(next) || dev.TileOf(next) == nil {
			break
		}
		cur = cur.AddConnection(conns[0])
	}
	cur.Terminal = true
	return nil
}

// target resolves a route token to a wire id and an optional tile.
func (s *session) target(tok string) (device.WireID, *device.Tile, error) {
	dev := s.r.dev
	tileName, wireName, qualified := strings.Cut(tok, "/")
	if !qualified {
		wireName = tok
	}
	id, ok := dev.Wires.Lookup(wireName)
	if !ok {
		return device.NoWire, nil, &device.MalformedInputError{Kind: "wire", Name: tok}
	}
	if !qualified {
		return id, nil, nil
	}
	tile, ok := dev.TileByName(tileName)
	if !ok {
		return device.NoWire, nil, &device.MalformedInputError{Kind: "tile", Name: tileName}
	}
	if !tile.HasWire(id) {
		return device.NoWire, nil, &device.MalformedInputError{Kind: "wire", Name: tok}
	}
	return id, tile, nil
}

type hop struct {
	from device.Wire
	conn device.WireConnection
}

// search finds the wire named by tok breadth-first from cur. Non-PIP edges
// are followed freely. PIPs out of cur are crossed. A PIP out of a wire
// reached from cur through non-PIP edges only ends the search when it lands
// on the target, since the route names the end of every PIP it uses.
func (s *session) search(cur *Tree, tok string) (*Tree, error) {
	id, tile, err := s.target(tok)
	if err != nil {
		return nil, err
	}
	dev := s.r.dev
	limit := s.r.opts.VisitLimit
	start := cur.Wire
	prev := map[device.Wire]hop{}
	visited := map[device.Wire]bool{start: true}
	// crossed holds the wires reached through the PIP out of start.
	crossed := map[device.Wire]bool{}
	queue := []device.Wire{start}
	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]
		longLine := s.r.opts.LongLine(dev.WireName(w))
		for _, c := range dev.Connections(w) {
			if c.PIP && crossed[w] {
				continue
			}
			if longLine && !c.PIP && c.SameTile() {
				continue
			}
			next := w.Follow(c)
			if visited[next] || cur.OnPath(next) {
				continue
			}
			if next.ID == id && (tile == nil || (next.Row == tile.Row && next.Column == tile.Column)) {
				prev[next] = hop{from: w, conn: c}
				return graft(cur, start, next, prev), nil
			}
			if c.PIP && w != start {
				continue
			}
			if len(visited) >= limit {
				return nil, s.unreachable(start, tok, len(visited)+1)
			}
			visited[next] = true
			prev[next] = hop{from: w, conn: c}
			if c.PIP || crossed[w] {
				crossed[next] = true
			}
			queue = append(queue, next)
		}
	}
	return nil, s.unreachable(start, tok, len(visited))
}

func (s *session) unreachable(from device.Wire, tok string, visited int) error {
	return &device.UnreachableTargetError{
		Net:     s.net,
		From:    s.r.dev.FullName(from),
		Target:  tok,
		Visited: visited,
		Limit:   s.r.opts.VisitLimit,
	}
}

// graft adds the path start..end recorded in prev below cur.
func graft(cur *Tree, start, end device.Wire, prev map[device.Wire]hop) *Tree {
	var path []device.WireConnection
	for w := end; w != start; w = prev[w].from {
		path = append(path, prev[w].conn)
	}
	node := cur
	for i := len(path) - 1; i >= 0; i-- {
		node = node.AddConnection(path[i])
	}
	return node
}

// clockHop handles "<N>name": walk N tiles along the spine direction given
// by the previous wire's name and land on name in the destination tile.
func (s *session) clockHop(cur *Tree, tok string) (*Tree, error) {
	dev := s.r.dev
	end := strings.Index(tok, ">")
	if end < 0 {
		return nil, &device.MalformedInputError{Kind: "clock hop", Name: tok, Reason: "missing '>'"}
	}
	n, err := strconv.Atoi(tok[1:end])
	if err != nil || n <= 0 {
		return nil, &device.MalformedInputError{Kind: "clock hop", Name: tok, Reason: "bad distance"}
	}
	name := tok[end+1:]
	id, ok := dev.Wires.Lookup(name)
	if !ok {
		return nil, &device.MalformedInputError{Kind: "wire", Name: name}
	}
	prevName := dev.WireName(cur.Wire)
	var rule *ClockRule
	for i := range s.r.opts.ClockRules {
		if s.r.opts.ClockRules[i].Pattern.MatchString(prevName) {
			rule = &s.r.opts.ClockRules[i]
			break
		}
	}
	if rule == nil {
		return nil, &device.MalformedInputError{Kind: "clock hop", Name: tok, Reason: "no spine direction for " + prevName}
	}
	row, col := cur.Wire.Row, cur.Wire.Column
	for i := 0; i < n; i++ {
		row += rule.RowStep
		col += rule.ColumnStep
		if dev.Tile(row, col) == nil {
			return nil, s.unreachable(cur.Wire, tok, i+1)
		}
	}
	dest := dev.Tile(row, col)
	if !dest.HasWire(id) {
		return nil, &device.MalformedInputError{Kind: "wire", Name: dest.Name + "/" + name}
	}
	conn := cur.Wire.Offset(dest.Wire(id), false)
	return cur.addClockHop(conn, n), nil
}
