// Package fabrictest provides a small device description and route file
// shared by the package tests.
//
// The fabric is a 4x5 grid. Row 3 carries two SLICE sites joined by
// interconnect tiles; rows 1 and 2 hold a two-hop vertical line whose middle
// wire is an alias that the repair pass bypasses; row 0 is a horizontal clock
// spine.
package fabrictest

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/builder"
	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
)

// Description is the device description of the test fabric.
const Description = `# test fabric
(xdl_resource_report v0.2 xctest fabric
(tiles 4 5
	(tile 0 1 HCLK_X1Y0 HCLK 0
		(wire HCLK_ROOT 0)
		(wire HCLK_SPINE_R 0)
		(pip HCLK_X1Y0 HCLK_ROOT -> HCLK_SPINE_R)
	)
	(tile 0 2 HCLK_X2Y0 HCLK 0
		(wire HCLK_SPINE 0)
	)
	(tile 0 3 HCLK_X3Y0 HCLK 0
		(wire HCLK_LEAF 0)
		(wire HCLK_OUT0 0)
		(pip HCLK_X3Y0 HCLK_LEAF -> HCLK_OUT0)
	)
	(tile 1 3 INT_X3Y1 INT 0
		(wire NN2END0 1
			(conn INT_X3Y2 NN2A0)
		)
		(wire IMUX_B1 0)
		(pip INT_X3Y1 NN2END0 -> IMUX_B1)
	)
	(tile 2 3 INT_X3Y2 INT 0
		(wire NN2A0 2
			(conn INT_X3Y3 NN2BEG0)
			(conn INT_X3Y1 NN2END0)
		)
	)
	(tile 3 1 CLB_X1Y3 CLB 1
		(primitive_site SLICE_X1Y3 SLICE internal 3
			(pinwire A1 input CLB_A1)
			(pinwire B1 input CLB_B1)
			(pinwire A output CLB_A)
		)
		(wire CLB_A1 0)
		(wire CLB_B1 0)
		(wire CLB_A 1
			(conn INT_X2Y3 LOGIC_OUTS0)
		)
		(pip CLB_X1Y3 CLB_A1 -> CLB_A (_ROUTETHROUGH-A1-A SLICE))
	)
	(tile 3 2 INT_X2Y3 INT 0
		(wire LOGIC_OUTS0 1
			(conn CLB_X1Y3 CLB_A)
		)
		(wire EE2BEG0 1
			(conn INT_X3Y3 EE2END0)
		)
		(pip INT_X2Y3 LOGIC_OUTS0 -> EE2BEG0)
	)
	(tile 3 3 INT_X3Y3 INT 0
		(wire EE2END0 1
			(conn INT_X2Y3 EE2BEG0)
		)
		(wire IMUX_B0 1
			(conn CLB_X4Y3 CLB_A1)
		)
		(wire LOGIC_OUTS1 1
			(conn CLB_X4Y3 CLB_A)
		)
		(wire NN2BEG0 1
			(conn INT_X3Y2 NN2A0)
		)
		(pip INT_X3Y3 EE2END0 -> IMUX_B0)
		(pip INT_X3Y3 LOGIC_OUTS1 -> NN2BEG0)
		(pip INT_X3Y3 EE2END0 -> NN2BEG0)
	)
	(tile 3 4 CLB_X4Y3 CLB 1
		(primitive_site SLICE_X4Y3 SLICE internal 3
			(pinwire A1 input CLB_A1)
			(pinwire B1 input CLB_B1)
			(pinwire A output CLB_A)
		)
		(wire CLB_A1 1
			(conn INT_X3Y3 IMUX_B0)
		)
		(wire CLB_B1 0)
		(wire CLB_A 1
			(conn INT_X3Y3 LOGIC_OUTS1)
		)
		(pip CLB_X4Y3 CLB_A1 -> CLB_A (_ROUTETHROUGH-A1-A SLICE))
	)
)
(primitive_defs 1
	(primitive_def SLICE 3 6
		(pin A1 A1 input)
		(pin B1 B1 input)
		(pin A A output)
		(element A1 1
			(pin A1 output)
			(conn A1 A1 ==> LUT A1)
		)
		(element B1 1
			(pin B1 output)
			(conn B1 B1 ==> FF D)
		)
		(element LUT 2 # BEL
			(pin A1 input)
			(pin O output)
			(conn LUT O ==> OUTMUX LUT)
			(conn LUT O ==> FF D)
			(conn LUT A1 <== A1 A1)
		)
		(element FF 2 # BEL
			(pin D input)
			(pin Q output)
			(cfg FF LATCH)
			(conn FF Q ==> OUTMUX FF)
			(conn FF D <== B1 B1)
			(conn FF D <== LUT O)
		)
		(element OUTMUX 3
			(pin LUT input)
			(pin FF input)
			(pin OUT output)
			(cfg LUT FF)
			(conn OUTMUX OUT ==> A A)
		)
		(element A 1
			(pin A input)
			(conn A A <== OUTMUX OUT)
		)
	)
)
(summary tiles=9)
)
`

// Routes is a route-command file for the test fabric: a single-hop net, a
// clock net crossing the spine and a ground net with two static sources.
const Routes = `# routes for the test fabric
NET net1
ROUTE net1 INT_X2Y3/EE2BEG0 INT_X3Y3/EE2END0

NET clk
ROUTE clk HCLK_X1Y0/HCLK_ROOT HCLK_SPINE_R <2>HCLK_LEAF HCLK_OUT0

NET GND GND
SINKS GND SLICE_X4Y3/A1
SITE_PIPS SLICE_X1Y3 OUTMUX:LUT
SITE_PIPS SLICE_X4Y3 OUTMUX:LUT
STATIC_SOURCES SLICE_X1Y3/LUT/O SLICE_X4Y3/LUT/O
ROUTE GND { CLB_X1Y3/CLB_A INT_X2Y3/LOGIC_OUTS0 EE2BEG0 INT_X3Y3/EE2END0 IMUX_B0 } { CLB_X4Y3/CLB_A INT_X3Y3/LOGIC_OUTS1 NN2BEG0 INT_X3Y1/NN2END0 IMUX_B1 }
`

// Logger returns a logger that discards everything.
func Logger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

// Device builds the test fabric.
func Device(t testing.TB) *device.Device {
	t.Helper()
	dev, err := builder.Build(context.Background(), strings.NewReader(Description), builder.Options{
		Filename:       "fabric.xdlrc",
		ReverseWorkers: 2,
		Logger:         Logger(),
	})
	if err != nil {
		t.Fatalf("building test fabric: %v", err)
	}
	return dev
}

// Wire resolves "TILE/WIRE" on dev.
func Wire(t testing.TB, dev *device.Device, name string) device.Wire {
	t.Helper()
	w, err := dev.LookupWire(name)
	if err != nil {
		t.Fatalf("LookupWire(%s): %v", name, err)
	}
	return w
}
