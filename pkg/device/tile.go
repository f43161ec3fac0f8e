package device

// Tile is one grid cell of the device. Its adjacency table maps a wire id to
// the interned array of outgoing connections.
type Tile struct {
	Row    int32
	Column int32
	Name   string
	Type   string
	Sites  []*Site

	wires    map[WireID][]WireConnection
	reverse  map[WireID][]WireConnection
	sitePins map[WireID]SitePinRef
	declared map[WireID]struct{}
}

// NewTile creates an empty tile.
func NewTile(row, col int32, name, typ string) *Tile {
	return &Tile{
		Row:      row,
		Column:   col,
		Name:     name,
		Type:     typ,
		wires:    make(map[WireID][]WireConnection),
		sitePins: make(map[WireID]SitePinRef),
		declared: make(map[WireID]struct{}),
	}
}

// Wire addresses id inside this tile.
func (t *Tile) Wire(id WireID) Wire {
	return Wire{Row: t.Row, Column: t.Column, ID: id}
}

// Declare records that the tile contains wire id, even if it has no
// outgoing connections.
func (t *Tile) Declare(id WireID) {
	t.declared[id] = struct{}{}
}

// HasWire reports whether the tile declares id.
func (t *Tile) HasWire(id WireID) bool {
	if _, ok := t.declared[id]; ok {
		return true
	}
	_, ok := t.wires[id]
	return ok
}

// Wires returns every declared wire of the tile in id order.
func (t *Tile) Wires() []WireID {
	seen := make(map[WireID][]WireConnection, len(t.declared))
	for id := range t.declared {
		seen[id] = nil
	}
	for id := range t.wires {
		seen[id] = nil
	}
	return sortedKeys(seen)
}

// Connections returns the outgoing connections of id.
func (t *Tile) Connections(id WireID) []WireConnection {
	return t.wires[id]
}

// ReverseConnections returns the incoming connections of id, expressed as
// connections pointing back at their sources.
func (t *Tile) ReverseConnections(id WireID) []WireConnection {
	return t.reverse[id]
}

// SourceWires returns the wires with outgoing connections in id order.
func (t *Tile) SourceWires() []WireID {
	return sortedKeys(t.wires)
}

// ConnectionTable exposes the forward adjacency. Callers must not modify it.
func (t *Tile) ConnectionTable() map[WireID][]WireConnection {
	return t.wires
}

// SetConnectionTable replaces the whole forward adjacency in one step.
func (t *Tile) SetConnectionTable(table map[WireID][]WireConnection) {
	t.wires = table
}

// SetConnections replaces the adjacency of one wire. conns should be interned.
func (t *Tile) SetConnections(id WireID, conns []WireConnection) {
	if len(conns) == 0 {
		delete(t.wires, id)
		return
	}
	t.wires[id] = conns
}

// ReverseTable exposes the reverse adjacency. Callers must not modify it.
func (t *Tile) ReverseTable() map[WireID][]WireConnection {
	return t.reverse
}

// SetReverse installs a complete reverse table.
func (t *Tile) SetReverse(reverse map[WireID][]WireConnection) {
	t.reverse = reverse
}

// AddSite attaches a site to the tile.
func (t *Tile) AddSite(s *Site) {
	t.Sites = append(t.Sites, s)
}

// BindSitePin records that wire id is the external wire of a site pin.
func (t *Tile) BindSitePin(id WireID, ref SitePinRef) {
	t.sitePins[id] = ref
	t.Declare(id)
}

// SitePinAt returns the site pin attached to wire id.
func (t *Tile) SitePinAt(id WireID) (SitePinRef, bool) {
	ref, ok := t.sitePins[id]
	return ref, ok
}

// Site returns the named site of the tile.
func (t *Tile) Site(name string) (*Site, bool) {
	for _, s := range t.Sites {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}
