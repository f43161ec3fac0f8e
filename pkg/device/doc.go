// Package device models the routing fabric of an FPGA as a grid of tiles
// connected by wires and programmable switches.
//
// # Overview
//
// A Device owns:
//   - a WireTable mapping wire names to device-wide WireIDs
//   - a grid of Tiles, each with a sparse adjacency table from a WireID to
//     the array of outgoing WireConnections
//   - SiteTemplates, one per site type, each holding the intra-site wire
//     graph of BEL pins, site pins and internal muxes
//   - a ConnectionStore that interns adjacency arrays so that tiles with
//     identical local wiring share one allocation
//
// Wires are plain values (Wire: row, column, id). A WireConnection stores the
// target wire id plus row/column offsets relative to the owning tile, which
// is what makes sharing between tiles possible:
//
//	from := tile.Wire(id)
//	for _, c := range tile.Connections(id) {
//		to := from.Follow(c)
//		fmt.Println(dev.FullName(from), "->", dev.FullName(to), c.PIP)
//	}
//
// # Lifecycle
//
// Devices are populated by the builder package. Once the builder has
// finished the reachability repair and BuildReverseIndex has run, the graph
// is immutable and may be read from any number of goroutines.
//
// # Errors
//
// MalformedInputError, UnreachableTargetError, InconsistentDeviceError and
// RouteValidationError form the error taxonomy shared by the builder, route
// and rcf packages. Each carries a Location that importers fill in with
// Locate.
package device
