package xdlrc

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
)

const routethroughPrefix = "_ROUTETHROUGH-"

// Parser walks a device description and emits events to a Handler in
// document order.
type Parser struct {
	lexer    *Lexer
	filename string
	pushed   *Token
	handler  Handler
}

// NewParser creates a parser reading from r. filename is only used in error
// messages.
func NewParser(r io.Reader, filename string) *Parser {
	return &Parser{lexer: NewLexer(r), filename: filename}
}

// ParseFile parses the device description at path.
func ParseFile(path string, h Handler) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "xdlrc: opening device description")
	}
	defer file.Close()
	return NewParser(file, path).Parse(h)
}

// Parse consumes the whole input.
func (p *Parser) Parse(h Handler) error {
	p.handler = h
	for {
		tok, err := p.next()
		if err != nil {
			return err
		}
		switch tok.Type {
		case TokenEOF:
			return nil
		case TokenLeftParen:
			head, err := p.symbol()
			if err != nil {
				return err
			}
			if err := p.topLevel(head); err != nil {
				return err
			}
		default:
			return p.unexpected(tok)
		}
	}
}

func (p *Parser) topLevel(head Token) error {
	switch head.Value {
	case "xdl_resource_report":
		args, err := p.atoms()
		if err != nil {
			return err
		}
		if len(args) >= 3 {
			if err := p.emit(&Event{Kind: KindDevice, Line: head.Line, Name: args[1], Type: args[2]}); err != nil {
				return err
			}
		}
		return p.children(func(child Token) error { return p.topLevel(child) })

	case "tiles":
		args, err := p.atoms()
		if err != nil {
			return err
		}
		if len(args) < 2 {
			return p.malformed(head, "tiles needs row and column counts")
		}
		rows, err := p.parseInt32(head, args[0])
		if err != nil {
			return err
		}
		cols, err := p.parseInt32(head, args[1])
		if err != nil {
			return err
		}
		if rows <= 0 || cols <= 0 {
			return p.malformed(head, "grid size must be positive, got "+args[0]+"x"+args[1])
		}
		if err := p.emit(&Event{Kind: KindTiles, Line: head.Line, Row: rows, Column: cols}); err != nil {
			return err
		}
		return p.children(func(child Token) error {
			if child.Value == "tile" {
				return p.tile(child)
			}
			return p.skip()
		})

	case "primitive_defs":
		if _, err := p.atoms(); err != nil {
			return err
		}
		return p.children(func(child Token) error {
			if child.Value == "primitive_def" {
				return p.primitiveDef(child)
			}
			return p.skip()
		})
	}
	return p.skip()
}

func (p *Parser) tile(head Token) error {
	args, err := p.atoms()
	if err != nil {
		return err
	}
	if len(args) < 4 {
		return p.malformed(head, "tile needs row, column, name and type")
	}
	row, err := p.parseInt32(head, args[0])
	if err != nil {
		return err
	}
	col, err := p.parseInt32(head, args[1])
	if err != nil {
		return err
	}
	ev := &Event{Kind: KindTile, Line: head.Line, Row: row, Column: col, Name: args[2], Type: args[3]}
	if err := p.emit(ev); err != nil {
		return err
	}
	err = p.children(func(child Token) error {
		switch child.Value {
		case "primitive_site":
			return p.site(child)
		case "wire":
			return p.wire(child)
		case "pip":
			return p.pip(child)
		}
		return p.skip()
	})
	if err != nil {
		return err
	}
	return p.emit(&Event{Kind: KindTileEnd, Line: p.lexer.Line()})
}

func (p *Parser) site(head Token) error {
	args, err := p.atoms()
	if err != nil {
		return err
	}
	if len(args) < 3 {
		return p.malformed(head, "primitive_site needs name, type and bonding")
	}
	ev := &Event{Kind: KindSite, Line: head.Line, Name: args[0], Type: args[1], Bonded: args[2]}
	var pins []*Event
	err = p.children(func(child Token) error {
		switch child.Value {
		case "pinwire":
			pa, err := p.atoms()
			if err != nil {
				return err
			}
			if len(pa) < 3 {
				return p.malformed(child, "pinwire needs name, direction and wire")
			}
			pins = append(pins, &Event{Kind: KindSitePin, Line: child.Line, Name: pa[0], Direction: pa[1], Wire: pa[2]})
			return p.close()
		case "alternatives":
			alts, err := p.atoms()
			if err != nil {
				return err
			}
			ev.Alternatives = append(ev.Alternatives, alts...)
			return p.close()
		}
		return p.skip()
	})
	if err != nil {
		return err
	}
	if err := p.emit(ev); err != nil {
		return err
	}
	for _, pin := range pins {
		if err := p.emit(pin); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) wire(head Token) error {
	args, err := p.atoms()
	if err != nil {
		return err
	}
	if len(args) < 1 {
		return p.malformed(head, "wire needs a name")
	}
	if err := p.emit(&Event{Kind: KindWire, Line: head.Line, Name: args[0]}); err != nil {
		return err
	}
	return p.children(func(child Token) error {
		if child.Value != "conn" {
			return p.skip()
		}
		ca, err := p.atoms()
		if err != nil {
			return err
		}
		if len(ca) < 2 {
			return p.malformed(child, "conn needs tile and wire")
		}
		if err := p.emit(&Event{Kind: KindConn, Line: child.Line, Target: ca[0], Wire: ca[1]}); err != nil {
			return err
		}
		return p.close()
	})
}

func (p *Parser) pip(head Token) error {
	args, err := p.atoms()
	if err != nil {
		return err
	}
	if len(args) < 4 {
		return p.malformed(head, "pip needs tile, start, direction and end")
	}
	start, arrow, end := args[1], args[2], args[3]
	if err := p.emit(&Event{Kind: KindPIP, Line: head.Line, From: start, To: end}); err != nil {
		return err
	}
	if arrow == "==" {
		if err := p.emit(&Event{Kind: KindPIP, Line: head.Line, From: end, To: start}); err != nil {
			return err
		}
	}
	return p.children(func(child Token) error {
		if !strings.HasPrefix(child.Value, routethroughPrefix) {
			return p.skip()
		}
		pins := strings.SplitN(strings.TrimPrefix(child.Value, routethroughPrefix), "-", 2)
		if len(pins) != 2 {
			return p.malformed(child, "routethrough needs input and output pins")
		}
		ra, err := p.atoms()
		if err != nil {
			return err
		}
		if len(ra) < 1 {
			return p.malformed(child, "routethrough needs a site type")
		}
		ev := &Event{Kind: KindRoutethrough, Line: child.Line, Type: ra[0], From: pins[0], To: pins[1]}
		if err := p.emit(ev); err != nil {
			return err
		}
		return p.close()
	})
}

func (p *Parser) primitiveDef(head Token) error {
	args, err := p.atoms()
	if err != nil {
		return err
	}
	if len(args) < 1 {
		return p.malformed(head, "primitive_def needs a name")
	}
	if err := p.emit(&Event{Kind: KindPrimitiveDef, Line: head.Line, Name: args[0]}); err != nil {
		return err
	}
	err = p.children(func(child Token) error {
		switch child.Value {
		case "pin":
			pa, err := p.atoms()
			if err != nil {
				return err
			}
			if len(pa) < 3 {
				return p.malformed(child, "pin needs name, internal name and direction")
			}
			ev := &Event{Kind: KindPrimitivePin, Line: child.Line, Name: pa[0], Wire: pa[1], Direction: pa[2]}
			if err := p.emit(ev); err != nil {
				return err
			}
			return p.close()
		case "element":
			return p.element(child)
		}
		return p.skip()
	})
	if err != nil {
		return err
	}
	return p.emit(&Event{Kind: KindPrimitiveDefEnd, Line: p.lexer.Line()})
}

func (p *Parser) element(head Token) error {
	var args []string
	bel := false
	for {
		tok, err := p.nextRaw()
		if err != nil {
			return err
		}
		if tok.Type == TokenComment {
			if strings.Contains(tok.Value, "BEL") {
				bel = true
			}
			continue
		}
		if tok.Type == TokenSymbol || tok.Type == TokenString {
			args = append(args, tok.Value)
			continue
		}
		p.unread(tok)
		break
	}
	if len(args) < 1 {
		return p.malformed(head, "element needs a name")
	}
	name := args[0]
	if err := p.emit(&Event{Kind: KindElement, Line: head.Line, Name: name, BEL: bel}); err != nil {
		return err
	}
	err := p.children(func(child Token) error {
		switch child.Value {
		case "pin":
			pa, err := p.atoms()
			if err != nil {
				return err
			}
			if len(pa) < 2 {
				return p.malformed(child, "element pin needs name and direction")
			}
			if err := p.emit(&Event{Kind: KindElementPin, Line: child.Line, Name: pa[0], Direction: pa[1]}); err != nil {
				return err
			}
			return p.close()
		case "cfg":
			opts, err := p.atoms()
			if err != nil {
				return err
			}
			if err := p.emit(&Event{Kind: KindElementCfg, Line: child.Line, Options: opts}); err != nil {
				return err
			}
			return p.close()
		case "conn":
			ca, err := p.atoms()
			if err != nil {
				return err
			}
			if len(ca) < 5 {
				return p.malformed(child, "conn needs element, pin, direction, element, pin")
			}
			ev := &Event{Kind: KindElementConn, Line: child.Line}
			switch ca[2] {
			case "==>":
				ev.From, ev.FromPin, ev.To, ev.ToPin = ca[0], ca[1], ca[3], ca[4]
			case "<==":
				ev.From, ev.FromPin, ev.To, ev.ToPin = ca[3], ca[4], ca[0], ca[1]
			default:
				return p.malformed(child, "unknown conn direction "+ca[2])
			}
			if err := p.emit(ev); err != nil {
				return err
			}
			return p.close()
		}
		return p.skip()
	})
	if err != nil {
		return err
	}
	return p.emit(&Event{Kind: KindElementEnd, Line: p.lexer.Line()})
}

// children calls fn for each nested list until the enclosing list closes.
// fn is entered with the list head consumed and must consume the rest of the
// list including its ')'.
func (p *Parser) children(fn func(head Token) error) error {
	for {
		tok, err := p.next()
		if err != nil {
			return err
		}
		switch tok.Type {
		case TokenRightParen:
			return nil
		case TokenLeftParen:
			head, err := p.symbol()
			if err != nil {
				return err
			}
			if err := fn(head); err != nil {
				return err
			}
		case TokenEOF:
			return p.malformed(tok, "unexpected end of input")
		default:
			return p.unexpected(tok)
		}
	}
}

// atoms reads the symbols up to the next list boundary, which is left
// unconsumed.
func (p *Parser) atoms() ([]string, error) {
	var out []string
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenSymbol || tok.Type == TokenString {
			out = append(out, tok.Value)
			continue
		}
		p.unread(tok)
		return out, nil
	}
}

// close consumes the rest of a list whose children are of no interest.
func (p *Parser) close() error {
	return p.children(func(Token) error { return p.skip() })
}

// skip consumes the remainder of the current list, nested lists included.
func (p *Parser) skip() error {
	depth := 1
	for depth > 0 {
		tok, err := p.next()
		if err != nil {
			return err
		}
		switch tok.Type {
		case TokenLeftParen:
			depth++
		case TokenRightParen:
			depth--
		case TokenEOF:
			return p.malformed(tok, "unexpected end of input")
		}
	}
	return nil
}

func (p *Parser) symbol() (Token, error) {
	tok, err := p.next()
	if err != nil {
		return tok, err
	}
	if tok.Type != TokenSymbol {
		return tok, p.unexpected(tok)
	}
	return tok, nil
}

func (p *Parser) next() (Token, error) {
	for {
		tok, err := p.nextRaw()
		if err != nil || tok.Type != TokenComment {
			return tok, err
		}
	}
}

func (p *Parser) nextRaw() (Token, error) {
	if p.pushed != nil {
		tok := *p.pushed
		p.pushed = nil
		return tok, nil
	}
	tok, err := p.lexer.NextToken()
	if err != nil {
		return tok, errors.Wrapf(err, "xdlrc: %s", p.filename)
	}
	return tok, nil
}

func (p *Parser) unread(tok Token) {
	p.pushed = &tok
}

func (p *Parser) emit(ev *Event) error {
	return p.handler.Handle(ev)
}

func (p *Parser) parseInt32(at Token, s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, p.malformed(at, "expected integer, got "+s)
	}
	return int32(v), nil
}

func (p *Parser) unexpected(tok Token) error {
	return &device.MalformedInputError{
		Location: device.Location{File: p.filename, Line: tok.Line},
		Kind:     "token",
		Name:     tok.Value,
		Reason:   "unexpected " + tok.Type.String(),
	}
}

func (p *Parser) malformed(at Token, reason string) error {
	return &device.MalformedInputError{
		Location: device.Location{File: p.filename, Line: at.Line},
		Reason:   reason,
	}
}
