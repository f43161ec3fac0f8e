package design

import (
	"strings"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
)

// PinRef names a site pin ("SITE/PIN") or a BEL pin ("SITE/BEL/PIN").
type PinRef struct {
	Site string
	BEL  string
	Pin  string
}

// ParsePinRef parses the textual pin forms used in route files.
func ParsePinRef(s string) (PinRef, error) {
	parts := strings.Split(s, "/")
	for _, p := range parts {
		if p == "" {
			return PinRef{}, &device.MalformedInputError{Kind: "pin", Name: s, Reason: "empty path element"}
		}
	}
	switch len(parts) {
	case 2:
		return PinRef{Site: parts[0], Pin: parts[1]}, nil
	case 3:
		return PinRef{Site: parts[0], BEL: parts[1], Pin: parts[2]}, nil
	}
	return PinRef{}, &device.MalformedInputError{Kind: "pin", Name: s, Reason: "expected SITE/PIN or SITE/BEL/PIN"}
}

// IsBELPin reports whether the reference names a BEL pin.
func (p PinRef) IsBELPin() bool {
	return p.BEL != ""
}

func (p PinRef) String() string {
	if p.BEL != "" {
		return p.Site + "/" + p.BEL + "/" + p.Pin
	}
	return p.Site + "/" + p.Pin
}
