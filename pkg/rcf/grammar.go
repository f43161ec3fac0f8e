// Package rcf reads and writes route-command files: the line-oriented
// route exchange format of the place-and-route tool.
package rcf

import (
	"io"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
)

// Lexer tokenizes route-command files. Commands end at a newline; every
// other whitespace-separated run is a word except the branch braces.
var Lexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[ \t\r]+`},
	{Name: "EOL", Pattern: `\n`},
	{Name: "Brace", Pattern: `[{}]`},
	{Name: "Word", Pattern: `[^\s{}#]+`},
})

// File is a parsed route-command file.
type File struct {
	Lines []*Line `@@*`
}

// Line is one line of the file. Blank and comment-only lines have no
// command.
type Line struct {
	Pos     lexer.Position
	Command *Command `@@? EOL`
}

// Command is one of the file's statements.
type Command struct {
	Net           *NetDecl       `  @@`
	Source        *SourceDecl    `| @@`
	Sinks         *SinksDecl     `| @@`
	Route         *RouteDecl     `| @@`
	Intersite     *IntersiteDecl `| @@`
	Intrasite     *IntrasiteDecl `| @@`
	SitePIPs      *SitePIPsDecl  `| @@`
	Routethroughs *LUTRTsDecl    `| @@`
	Static        *StaticDecl    `| @@`
}

// NetDecl declares a net: NET name [WIRE|VCC|GND].
type NetDecl struct {
	Name string `"NET" @Word`
	Type string `@( "WIRE" | "VCC" | "GND" )?`
}

// SourceDecl names the driver of a net: SOURCE net pin.
type SourceDecl struct {
	Net string `"SOURCE" @Word`
	Pin string `@Word`
}

// SinksDecl adds sinks to a net: SINKS net pin...
type SinksDecl struct {
	Net  string   `"SINKS" @Word`
	Pins []string `@Word+`
}

// RouteDecl carries the serialized route of a net.
type RouteDecl struct {
	Net    string   `"ROUTE" @Word`
	Tokens []string `@( Word | Brace )+`
}

// IntersiteDecl lists the input site pins a net continues through.
type IntersiteDecl struct {
	Net  string   `"INTERSITE" @Word`
	Pins []string `@Word+`
}

// IntrasiteDecl marks a net routed entirely inside its source site.
type IntrasiteDecl struct {
	Net string `"INTRASITE" @Word`
}

// SitePIPsDecl selects mux options of a site: SITE_PIPS site ELEMENT:OPTION...
type SitePIPsDecl struct {
	Site string   `"SITE_PIPS" @Word`
	PIPs []string `@Word+`
}

// LUTRTsDecl enables BEL routethroughs: LUT_RTS site/bel/in[/out]...
type LUTRTsDecl struct {
	Routethroughs []string `"LUT_RTS" @Word+`
}

// StaticDecl lists constant-source BEL pins: STATIC_SOURCES site/bel/pin...
type StaticDecl struct {
	Pins []string `"STATIC_SOURCES" @Word+`
}

var parser = participle.MustBuild[File](
	participle.Lexer(Lexer),
	participle.Elide("Comment", "Whitespace"),
	participle.UseLookahead(2),
)

// Parse parses a route-command file. Syntax errors are reported as
// MalformedInputError carrying filename and line.
func Parse(filename string, r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", filename)
	}
	// The last command may lack its newline.
	data = append(data, '\n')
	f, err := parser.ParseBytes(filename, data)
	if err != nil {
		var perr participle.Error
		if errors.As(err, &perr) {
			return nil, &device.MalformedInputError{
				Location: device.Location{File: filename, Line: perr.Position().Line},
				Reason:   perr.Message(),
			}
		}
		return nil, errors.Wrapf(err, "parsing %s", filename)
	}
	return f, nil
}
