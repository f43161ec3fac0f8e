package xdlrc

import "fmt"

// Kind discriminates the variants of Event.
type Kind int

const (
	// KindDevice: Name (part), Type (family).
	KindDevice Kind = iota
	// KindTiles: Row (rows), Column (columns).
	KindTiles
	// KindTile: Row, Column, Name, Type.
	KindTile
	KindTileEnd
	// KindWire: Name.
	KindWire
	// KindConn: Target (tile name), Wire.
	KindConn
	// KindPIP: From (start wire), To (end wire).
	KindPIP
	// KindRoutethrough: Type (site type), From (input pin), To (output pin).
	KindRoutethrough
	// KindSite: Name, Type, Bonded, Alternatives.
	KindSite
	// KindSitePin: Name, Direction, Wire (external tile wire).
	KindSitePin
	// KindPrimitiveDef: Name (site type).
	KindPrimitiveDef
	// KindPrimitivePin: Name, Wire (internal element name), Direction.
	KindPrimitivePin
	// KindElement: Name, BEL.
	KindElement
	// KindElementPin: Name, Direction.
	KindElementPin
	// KindElementCfg: Options.
	KindElementCfg
	// KindElementConn: From, FromPin, To, ToPin, oriented driver to load.
	KindElementConn
	KindElementEnd
	KindPrimitiveDefEnd
)

var kindNames = [...]string{
	"device", "tiles", "tile", "tile-end", "wire", "conn", "pip",
	"routethrough", "site", "site-pin", "primitive-def", "primitive-pin",
	"element", "element-pin", "element-cfg", "element-conn", "element-end",
	"primitive-def-end",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is one parse event of a device description. Which fields are set
// depends on Kind; see the Kind constants.
type Event struct {
	Kind Kind
	Line int

	Row    int32
	Column int32

	Name      string
	Type      string
	Target    string
	Wire      string
	From      string
	FromPin   string
	To        string
	ToPin     string
	Direction string
	Bonded    string
	BEL       bool

	Options      []string
	Alternatives []string
}

// Handler consumes events in document order.
type Handler interface {
	Handle(ev *Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ev *Event) error

// Handle calls f(ev).
func (f HandlerFunc) Handle(ev *Event) error {
	return f(ev)
}
