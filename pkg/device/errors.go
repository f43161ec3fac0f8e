package device

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Location identifies where an input problem was found. Zero values mean
// the position is unknown.
type Location struct {
	File string
	Line int
}

func (l Location) String() string {
	switch {
	case l.File != "" && l.Line > 0:
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	case l.File != "":
		return l.File
	case l.Line > 0:
		return fmt.Sprintf("line %d", l.Line)
	}
	return ""
}

// Locate fills in the position of err when it is one of the package error
// types and has no position yet. It returns err unchanged otherwise.
func Locate(err error, loc Location) error {
	var target interface{ locate(Location) }
	if errors.As(err, &target) {
		target.locate(loc)
	}
	return err
}

func (l *Location) locate(loc Location) {
	if l.File == "" {
		l.File = loc.File
	}
	if l.Line == 0 {
		l.Line = loc.Line
	}
}

func withLocation(loc Location, msg string) string {
	if s := loc.String(); s != "" {
		return s + ": " + msg
	}
	return msg
}

// MalformedInputError reports an unknown token or a reference to a tile,
// wire, site, BEL, pin or net that does not exist in the loaded device.
type MalformedInputError struct {
	Location
	Kind   string
	Name   string
	Reason string
}

func (e *MalformedInputError) Error() string {
	var b strings.Builder
	b.WriteString("malformed input")
	if e.Kind != "" {
		fmt.Fprintf(&b, ": %s %q", e.Kind, e.Name)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return withLocation(e.Location, b.String())
}

// UnreachableTargetError reports a bounded search that ran out of wires or
// exceeded its visit limit.
type UnreachableTargetError struct {
	Location
	Net     string
	From    string
	Target  string
	Visited int
	Limit   int
}

func (e *UnreachableTargetError) Error() string {
	msg := fmt.Sprintf("net %q: %s unreachable from %s", e.Net, e.Target, e.From)
	if e.Limit > 0 && e.Visited > e.Limit {
		msg += fmt.Sprintf(" (visit limit %d exceeded)", e.Limit)
	} else {
		msg += fmt.Sprintf(" (%d wires visited)", e.Visited)
	}
	return withLocation(e.Location, msg)
}

// InconsistentDeviceError reports a violated structural invariant of the
// wire graph.
type InconsistentDeviceError struct {
	Location
	Tile   string
	Wire   string
	Reason string
}

func (e *InconsistentDeviceError) Error() string {
	msg := "inconsistent device"
	if e.Tile != "" {
		msg += fmt.Sprintf(": tile %s", e.Tile)
	}
	if e.Wire != "" {
		msg += fmt.Sprintf(" wire %s", e.Wire)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return withLocation(e.Location, msg)
}

// RouteValidationError reports a reconstructed route that misses declared
// sinks or reaches undeclared ones.
type RouteValidationError struct {
	Location
	Net        string
	Missing    []string
	Undeclared []string
}

func (e *RouteValidationError) Error() string {
	msg := fmt.Sprintf("net %q: invalid route", e.Net)
	if len(e.Missing) > 0 {
		msg += fmt.Sprintf(": missing sinks [%s]", strings.Join(e.Missing, " "))
	}
	if len(e.Undeclared) > 0 {
		msg += fmt.Sprintf(": undeclared sinks [%s]", strings.Join(e.Undeclared, " "))
	}
	return withLocation(e.Location, msg)
}
