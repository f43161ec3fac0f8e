package device

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
)

// gridDevice builds a rows x cols device with tiles named T_X<col>Y<row> and
// a few wires per tile wired to their east and south neighbours.
func gridDevice(t *testing.T, rows, cols int32) *Device {
	t.Helper()
	d := New("test", rows, cols)
	out := d.Wires.Intern("OUT")
	east := d.Wires.Intern("EAST")
	south := d.Wires.Intern("SOUTH")
	for r := int32(0); r < rows; r++ {
		for c := int32(0); c < cols; c++ {
			tile := NewTile(r, c, tileName(r, c), "INT")
			for _, id := range []WireID{out, east, south} {
				tile.Declare(id)
			}
			if err := d.AddTile(tile); err != nil {
				t.Fatalf("AddTile: %v", err)
			}
		}
	}
	for _, tile := range d.Tiles() {
		conns := []WireConnection{{Wire: east, PIP: true}, {Wire: south, PIP: true}}
		tile.SetConnections(out, d.Store.Intern(conns))
		if tile.Column+1 < cols {
			tile.SetConnections(east, d.Store.Intern([]WireConnection{{Wire: out, ColumnOffset: 1}}))
		}
		if tile.Row+1 < rows {
			tile.SetConnections(south, d.Store.Intern([]WireConnection{{Wire: out, RowOffset: 1}}))
		}
	}
	return d
}

func tileName(r, c int32) string {
	return fmt.Sprintf("T_X%dY%d", c, r)
}

func TestReverseIndexCorrectness(t *testing.T) {
	for _, workers := range []int{1, 3, 16} {
		d := gridDevice(t, 4, 5)
		if err := d.BuildReverseIndex(context.Background(), workers); err != nil {
			t.Fatalf("workers=%d: BuildReverseIndex: %v", workers, err)
		}
		if !d.Indexed() {
			t.Fatal("device not marked indexed")
		}
		forward := 0
		for _, tile := range d.Tiles() {
			for _, wire := range tile.SourceWires() {
				from := tile.Wire(wire)
				for _, c := range tile.Connections(wire) {
					forward++
					to := from.Follow(c)
					want := c.Reverse(wire)
					found := false
					for _, rc := range d.ReverseConnections(to) {
						if rc == want {
							found = true
						}
					}
					if !found {
						t.Fatalf("workers=%d: reverse of %v -> %v missing", workers, from, to)
					}
				}
			}
		}
		reverse := 0
		for _, tile := range d.Tiles() {
			for _, wire := range tile.Wires() {
				reverse += len(tile.ReverseConnections(wire))
			}
		}
		if forward != reverse {
			t.Fatalf("workers=%d: %d forward edges but %d reverse edges", workers, forward, reverse)
		}
	}
}

func TestReverseIndexSharesArrays(t *testing.T) {
	d := gridDevice(t, 3, 3)
	if err := d.BuildReverseIndex(context.Background(), 2); err != nil {
		t.Fatalf("BuildReverseIndex: %v", err)
	}
	east := mustID(t, d, "EAST")
	a := d.Tile(0, 0).ReverseConnections(east)
	b := d.Tile(2, 2).ReverseConnections(east)
	if !sameArray(a, b) {
		t.Fatalf("identical reverse arrays not shared: %v %v", a, b)
	}
}

func TestReverseIndexTemplates(t *testing.T) {
	d := New("test", 1, 1)
	tmpl, _ := d.Template("SLICE", true)
	in := tmpl.Wires.Intern("A1.A1")
	lut := tmpl.Wires.Intern("A6LUT.A1")
	tmpl.SetConnections(in, d.Store.Intern([]WireConnection{{Wire: lut}}))
	if err := d.BuildReverseIndex(context.Background(), 1); err != nil {
		t.Fatalf("BuildReverseIndex: %v", err)
	}
	rev := tmpl.ReverseConnections(lut)
	if len(rev) != 1 || rev[0].Wire != in || rev[0].PIP {
		t.Fatalf("unexpected template reverse %v", rev)
	}
}

func TestReverseIndexOutOfGrid(t *testing.T) {
	d := gridDevice(t, 2, 2)
	out := mustID(t, d, "OUT")
	d.Tile(1, 1).SetConnections(out, d.Store.Intern([]WireConnection{{Wire: out, RowOffset: 5}}))
	err := d.BuildReverseIndex(context.Background(), 4)
	var inconsistent *InconsistentDeviceError
	if !errors.As(err, &inconsistent) {
		t.Fatalf("expected InconsistentDeviceError, got %v", err)
	}
	if d.Indexed() {
		t.Fatal("failed build must not mark the device indexed")
	}
	if len(d.Tile(0, 1).ReverseConnections(out)) != 0 {
		t.Fatal("failed build must not install partial results")
	}
}

func mustID(t *testing.T, d *Device, name string) WireID {
	t.Helper()
	id, ok := d.Wires.Lookup(name)
	if !ok {
		t.Fatalf("wire %s not registered", name)
	}
	return id
}
