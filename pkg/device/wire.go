package device

import (
	"fmt"
	"sync"
)

// WireID is the device-wide identifier of a wire name.
type WireID int32

// NoWire marks the absence of a wire.
const NoWire WireID = -1

// Wire addresses one wire instance: a wire id scoped to the tile at
// (Row, Column). For intra-site wires the coordinates are those of the site's
// tile and the id is local to the site template.
type Wire struct {
	Row    int32
	Column int32
	ID     WireID
}

// Follow returns the wire reached from w through c.
func (w Wire) Follow(c WireConnection) Wire {
	return Wire{
		Row:    w.Row + c.RowOffset,
		Column: w.Column + c.ColumnOffset,
		ID:     c.Wire,
	}
}

// Offset returns the connection that leads from w to other.
func (w Wire) Offset(other Wire, pip bool) WireConnection {
	return WireConnection{
		Wire:         other.ID,
		RowOffset:    other.Row - w.Row,
		ColumnOffset: other.Column - w.Column,
		PIP:          pip,
	}
}

func (w Wire) String() string {
	return fmt.Sprintf("(%d,%d)#%d", w.Row, w.Column, w.ID)
}

// WireConnection is a directed edge to a wire relative to the owning tile.
// Because the target is expressed as row/column offsets, identical local
// wiring in different tiles produces equal connection values.
type WireConnection struct {
	Wire         WireID
	RowOffset    int32
	ColumnOffset int32
	PIP          bool
}

// Reverse returns the connection pointing back to from.
func (c WireConnection) Reverse(from WireID) WireConnection {
	return WireConnection{
		Wire:         from,
		RowOffset:    -c.RowOffset,
		ColumnOffset: -c.ColumnOffset,
		PIP:          c.PIP,
	}
}

// SameTile reports whether c stays inside the owning tile.
func (c WireConnection) SameTile() bool {
	return c.RowOffset == 0 && c.ColumnOffset == 0
}

func (c WireConnection) less(o WireConnection) bool {
	if c.Wire != o.Wire {
		return c.Wire < o.Wire
	}
	if c.RowOffset != o.RowOffset {
		return c.RowOffset < o.RowOffset
	}
	if c.ColumnOffset != o.ColumnOffset {
		return c.ColumnOffset < o.ColumnOffset
	}
	return !c.PIP && o.PIP
}

// WireTable maps wire names to stable ids. Ids are handed out in order of
// first registration and never reused.
type WireTable struct {
	mu    sync.RWMutex
	ids   map[string]WireID
	names []string
}

// NewWireTable creates an empty table.
func NewWireTable() *WireTable {
	return &WireTable{ids: make(map[string]WireID)}
}

// Intern returns the id for name, registering it if needed.
func (t *WireTable) Intern(name string) WireID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[name]; ok {
		return id
	}
	id := WireID(len(t.names))
	t.names = append(t.names, name)
	t.ids[name] = id
	return id
}

// Lookup returns the id registered for name.
func (t *WireTable) Lookup(name string) (WireID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.ids[name]
	return id, ok
}

// Name returns the name of id, or "" when id was never registered.
func (t *WireTable) Name(id WireID) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id < 0 || int(id) >= len(t.names) {
		return ""
	}
	return t.names[id]
}

// Len returns the number of registered names.
func (t *WireTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names)
}

// Names returns a copy of the table in id order.
func (t *WireTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}
