package device

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// BuildReverseIndex derives the reverse adjacency of every tile and every
// site template. Work is split into independent partitions by destination
// tile range and by site template; each partition scans the whole forward
// graph and keeps only edges landing in its range. The call returns once
// every partition finished, or with the first partition error, in which case
// no reverse table is installed.
func (d *Device) BuildReverseIndex(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	tiles := d.Tiles()
	parts := partitionTiles(len(d.tiles), workers)
	tileResults := make([]map[int]map[WireID][]WireConnection, len(parts))
	templates := d.Templates()
	siteResults := make([]map[WireID][]WireConnection, len(templates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range parts {
		i, p := i, p
		g.Go(func() error {
			res, err := d.reverseTiles(ctx, tiles, p.lo, p.hi)
			if err != nil {
				return err
			}
			tileResults[i] = res
			return nil
		})
	}
	for i, t := range templates {
		i, t := i, t
		g.Go(func() error {
			siteResults[i] = d.reverseTemplate(t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, res := range tileResults {
		for idx, table := range res {
			d.tiles[idx].SetReverse(table)
		}
	}
	for i, t := range templates {
		t.SetReverse(siteResults[i])
	}
	d.indexed = true
	return nil
}

type tileRange struct {
	lo, hi int
}

func partitionTiles(n, workers int) []tileRange {
	if n == 0 {
		return nil
	}
	if workers > n {
		workers = n
	}
	size := (n + workers - 1) / workers
	var out []tileRange
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		out = append(out, tileRange{lo: lo, hi: hi})
	}
	return out
}

// reverseTiles collects the reversed edges whose destination tile index lies
// in [lo, hi).
func (d *Device) reverseTiles(ctx context.Context, tiles []*Tile, lo, hi int) (map[int]map[WireID][]WireConnection, error) {
	acc := make(map[int]map[WireID][]WireConnection)
	for _, src := range tiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for wire, conns := range src.wires {
			for _, c := range conns {
				row := src.Row + c.RowOffset
				col := src.Column + c.ColumnOffset
				if !d.InBounds(row, col) {
					return nil, &InconsistentDeviceError{
						Tile:   src.Name,
						Wire:   d.Wires.Name(wire),
						Reason: fmt.Sprintf("connection to (%d,%d) outside the grid", row, col),
					}
				}
				idx := d.TileIndex(row, col)
				if idx < lo || idx >= hi {
					continue
				}
				if d.tiles[idx] == nil {
					return nil, &InconsistentDeviceError{
						Tile:   src.Name,
						Wire:   d.Wires.Name(wire),
						Reason: fmt.Sprintf("connection to empty grid cell (%d,%d)", row, col),
					}
				}
				table, ok := acc[idx]
				if !ok {
					table = make(map[WireID][]WireConnection)
					acc[idx] = table
				}
				table[c.Wire] = append(table[c.Wire], c.Reverse(wire))
			}
		}
	}
	for _, table := range acc {
		for wire, conns := range table {
			table[wire] = d.Store.Intern(conns)
		}
	}
	for idx := lo; idx < hi; idx++ {
		if _, ok := acc[idx]; !ok && d.tiles[idx] != nil {
			acc[idx] = map[WireID][]WireConnection{}
		}
	}
	return acc, nil
}

func (d *Device) reverseTemplate(t *SiteTemplate) map[WireID][]WireConnection {
	table := make(map[WireID][]WireConnection)
	for wire, conns := range t.adjacency {
		for _, c := range conns {
			table[c.Wire] = append(table[c.Wire], c.Reverse(wire))
		}
	}
	for wire, conns := range table {
		table[wire] = d.Store.Intern(conns)
	}
	return table
}
