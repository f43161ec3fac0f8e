package builder

import (
	"sort"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
)

type repairStats struct {
	added     int
	removed   int
	truncated int
}

type tileChanges struct {
	add  map[device.WireID][]device.WireConnection
	drop map[device.WireID]map[device.WireConnection]bool
}

// repair rewrites the non-PIP edges so that every one of them leads from a
// source-capable wire to a sink-capable wire. A source-capable wire gains a
// direct edge to each sink-capable wire it reached through chains of non-PIP
// edges; all other non-PIP edges are dropped. Changes are computed against
// the unrepaired graph and installed tile by tile.
func (b *Builder) repair() (repairStats, error) {
	var stats repairStats
	tiles := b.dev.Tiles()
	changes := make(map[*device.Tile]*tileChanges)

	for _, t := range tiles {
		table := b.raw[t]
		if len(table) == 0 {
			continue
		}
		ch := &tileChanges{
			add:  make(map[device.WireID][]device.WireConnection),
			drop: make(map[device.WireID]map[device.WireConnection]bool),
		}
		changes[t] = ch
		for _, id := range sortedWires(table) {
			from := t.Wire(id)
			source := b.sourceCapable(t, id)
			existing := make(map[device.WireConnection]bool)
			for _, c := range table[id] {
				if c.PIP {
					continue
				}
				target := b.dev.TileOf(from.Follow(c))
				if target == nil {
					return stats, &device.InconsistentDeviceError{
						Tile:   t.Name,
						Wire:   b.dev.Wires.Name(id),
						Reason: "connection leaves the tile grid",
					}
				}
				if source && b.sinkCapable(target, c.Wire) {
					existing[c] = true
					continue
				}
				if ch.drop[id] == nil {
					ch.drop[id] = make(map[device.WireConnection]bool)
				}
				ch.drop[id][c] = true
			}
			if !source {
				continue
			}
			sinks, truncated, err := b.reachableSinks(from)
			if err != nil {
				return stats, err
			}
			if truncated {
				stats.truncated++
				b.log.WithField("wire", b.dev.FullName(from)).Debug("repair search truncated at visit limit")
			}
			for _, s := range sinks {
				c := from.Offset(s, false)
				if existing[c] {
					continue
				}
				existing[c] = true
				ch.add[id] = append(ch.add[id], c)
			}
		}
	}

	for _, t := range tiles {
		ch, ok := changes[t]
		if !ok {
			continue
		}
		table := make(map[device.WireID][]device.WireConnection, len(b.raw[t]))
		for id, conns := range b.raw[t] {
			kept := make([]device.WireConnection, 0, len(conns)+len(ch.add[id]))
			for _, c := range conns {
				if ch.drop[id][c] {
					stats.removed++
					continue
				}
				kept = append(kept, c)
			}
			kept = append(kept, ch.add[id]...)
			stats.added += len(ch.add[id])
			if interned := b.dev.Store.Intern(kept); interned != nil {
				table[id] = interned
			}
		}
		t.SetConnectionTable(table)
	}
	b.raw = nil
	return stats, nil
}

// reachableSinks walks non-PIP edges breadth-first from start and returns
// every sink-capable wire found. The walk stops after RepairVisitLimit wires.
func (b *Builder) reachableSinks(start device.Wire) ([]device.Wire, bool, error) {
	visited := map[device.Wire]bool{start: true}
	queue := []device.Wire{start}
	var sinks []device.Wire
	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]
		t := b.dev.TileOf(w)
		for _, c := range b.raw[t][w.ID] {
			if c.PIP {
				continue
			}
			next := w.Follow(c)
			if visited[next] {
				continue
			}
			nt := b.dev.TileOf(next)
			if nt == nil {
				return nil, false, &device.InconsistentDeviceError{
					Tile:   t.Name,
					Wire:   b.dev.Wires.Name(w.ID),
					Reason: "connection leaves the tile grid",
				}
			}
			if len(visited) >= b.opts.RepairVisitLimit {
				return sinks, true, nil
			}
			visited[next] = true
			if b.sinkCapable(nt, next.ID) {
				sinks = append(sinks, next)
			}
			queue = append(queue, next)
		}
	}
	return sinks, false, nil
}

// sinkCapable: a site input pin or the start of a PIP.
func (b *Builder) sinkCapable(t *device.Tile, id device.WireID) bool {
	if _, ok := b.pipSrc[t][id]; ok {
		return true
	}
	if ref, ok := t.SitePinAt(id); ok && ref.Pin.Direction != device.DirectionOutput {
		return true
	}
	return false
}

// sourceCapable: a site output pin or the end of a PIP.
func (b *Builder) sourceCapable(t *device.Tile, id device.WireID) bool {
	if _, ok := b.pipDst[t][id]; ok {
		return true
	}
	if ref, ok := t.SitePinAt(id); ok && ref.Pin.Direction != device.DirectionInput {
		return true
	}
	return false
}

func sortedWires(table map[device.WireID][]device.WireConnection) []device.WireID {
	ids := make([]device.WireID, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
