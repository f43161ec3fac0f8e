package device

import (
	"fmt"
	"sort"
	"strings"
)

// Device is a loaded FPGA part: the tile grid, the global wire-name table,
// the site templates and the interning store shared by all adjacency arrays.
// After Build completes a Device is read-only and safe for concurrent use.
type Device struct {
	Name    string
	Rows    int32
	Columns int32
	Wires   *WireTable
	Store   *ConnectionStore

	tiles     []*Tile
	tileNames map[string]*Tile
	sites     map[string]*Site
	templates map[string]*SiteTemplate
	indexed   bool
}

// New creates an empty device with a rows x cols grid.
func New(name string, rows, cols int32) *Device {
	return &Device{
		Name:      name,
		Rows:      rows,
		Columns:   cols,
		Wires:     NewWireTable(),
		Store:     NewConnectionStore(),
		tiles:     make([]*Tile, int(rows)*int(cols)),
		tileNames: make(map[string]*Tile),
		sites:     make(map[string]*Site),
		templates: make(map[string]*SiteTemplate),
	}
}

// InBounds reports whether row, col lies inside the grid.
func (d *Device) InBounds(row, col int32) bool {
	return row >= 0 && col >= 0 && row < d.Rows && col < d.Columns
}

// TileIndex returns the flat index of row, col.
func (d *Device) TileIndex(row, col int32) int {
	return int(row)*int(d.Columns) + int(col)
}

// AddTile places t on the grid.
func (d *Device) AddTile(t *Tile) error {
	if !d.InBounds(t.Row, t.Column) {
		return &InconsistentDeviceError{
			Tile:   t.Name,
			Reason: fmt.Sprintf("position (%d,%d) outside %dx%d grid", t.Row, t.Column, d.Rows, d.Columns),
		}
	}
	if _, dup := d.tileNames[t.Name]; dup {
		return &InconsistentDeviceError{Tile: t.Name, Reason: "duplicate tile name"}
	}
	d.tiles[d.TileIndex(t.Row, t.Column)] = t
	d.tileNames[t.Name] = t
	return nil
}

// Tile returns the tile at row, col, or nil.
func (d *Device) Tile(row, col int32) *Tile {
	if !d.InBounds(row, col) {
		return nil
	}
	return d.tiles[d.TileIndex(row, col)]
}

// TileOf returns the tile owning w.
func (d *Device) TileOf(w Wire) *Tile {
	return d.Tile(w.Row, w.Column)
}

// TileByName looks a tile up by name.
func (d *Device) TileByName(name string) (*Tile, bool) {
	t, ok := d.tileNames[name]
	return t, ok
}

// Tiles returns all tiles in row-major order, skipping empty cells.
func (d *Device) Tiles() []*Tile {
	out := make([]*Tile, 0, len(d.tileNames))
	for _, t := range d.tiles {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// AddSite registers a site by name.
func (d *Device) AddSite(s *Site) error {
	if _, dup := d.sites[s.Name]; dup {
		return &InconsistentDeviceError{Tile: s.Name, Reason: "duplicate site name"}
	}
	d.sites[s.Name] = s
	return nil
}

// Site looks a site up by name.
func (d *Device) Site(name string) (*Site, bool) {
	s, ok := d.sites[name]
	return s, ok
}

// SiteCount returns the number of sites.
func (d *Device) SiteCount() int {
	return len(d.sites)
}

// Template returns the site template of a site type, creating it when
// create is set.
func (d *Device) Template(name string, create bool) (*SiteTemplate, bool) {
	t, ok := d.templates[name]
	if !ok && create {
		t = NewSiteTemplate(name)
		d.templates[name] = t
		ok = true
	}
	return t, ok
}

// Templates returns the site templates sorted by name.
func (d *Device) Templates() []*SiteTemplate {
	out := make([]*SiteTemplate, 0, len(d.templates))
	for _, t := range d.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Connections returns the forward adjacency of w.
func (d *Device) Connections(w Wire) []WireConnection {
	t := d.TileOf(w)
	if t == nil {
		return nil
	}
	return t.Connections(w.ID)
}

// ReverseConnections returns the reverse adjacency of w. It is empty until
// the reverse index has been built.
func (d *Device) ReverseConnections(w Wire) []WireConnection {
	t := d.TileOf(w)
	if t == nil {
		return nil
	}
	return t.ReverseConnections(w.ID)
}

// WireName returns the name of w's wire id.
func (d *Device) WireName(w Wire) string {
	return d.Wires.Name(w.ID)
}

// FullName returns "TILE/WIRE" for w.
func (d *Device) FullName(w Wire) string {
	t := d.TileOf(w)
	if t == nil {
		return fmt.Sprintf("?(%d,%d)/%s", w.Row, w.Column, d.Wires.Name(w.ID))
	}
	return t.Name + "/" + d.Wires.Name(w.ID)
}

// LookupWire resolves "TILE/WIRE".
func (d *Device) LookupWire(fullName string) (Wire, error) {
	tileName, wireName, ok := strings.Cut(fullName, "/")
	if !ok {
		return Wire{}, &MalformedInputError{Kind: "wire", Name: fullName, Reason: "expected TILE/WIRE"}
	}
	t, ok := d.TileByName(tileName)
	if !ok {
		return Wire{}, &MalformedInputError{Kind: "tile", Name: tileName}
	}
	id, ok := d.Wires.Lookup(wireName)
	if !ok || !t.HasWire(id) {
		return Wire{}, &MalformedInputError{Kind: "wire", Name: fullName}
	}
	return t.Wire(id), nil
}

// SitePinAt returns the site pin whose external wire is w.
func (d *Device) SitePinAt(w Wire) (SitePinRef, bool) {
	t := d.TileOf(w)
	if t == nil {
		return SitePinRef{}, false
	}
	return t.SitePinAt(w.ID)
}

// Indexed reports whether the reverse index is available.
func (d *Device) Indexed() bool {
	return d.indexed
}

// MarkIndexed declares the reverse tables installed with SetReverse
// complete. Loaders restoring a saved index call it instead of
// BuildReverseIndex.
func (d *Device) MarkIndexed() {
	d.indexed = true
}

// Stats summarizes the size of a device.
type Stats struct {
	Tiles        int
	Sites        int
	SiteTypes    int
	WireNames    int
	Wires        int
	Connections  int
	PIPs         int
	UniqueArrays int
	SharedRefs   int
}

// Stats walks the graph and counts its contents.
func (d *Device) Stats() Stats {
	st := Stats{
		Sites:     len(d.sites),
		SiteTypes: len(d.templates),
		WireNames: d.Wires.Len(),
	}
	for _, t := range d.Tiles() {
		st.Tiles++
		st.Wires += len(t.Wires())
		for _, conns := range t.wires {
			st.SharedRefs++
			st.Connections += len(conns)
			for _, c := range conns {
				if c.PIP {
					st.PIPs++
				}
			}
		}
	}
	st.UniqueArrays = d.Store.Stats().Unique
	return st
}
