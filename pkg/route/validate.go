package route

import (
	"sort"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
)

// ValidateTree checks that every leaf of tree ending on an input site pin is
// one of the allowed sink wires.
func ValidateTree(dev *device.Device, net string, tree *Tree, allowed map[device.Wire]bool) error {
	var undeclared []string
	for _, leaf := range tree.Leaves() {
		ref, ok := dev.SitePinAt(leaf.Wire)
		if !ok || ref.Pin.Direction == device.DirectionOutput {
			continue
		}
		if !allowed[leaf.Wire] {
			undeclared = append(undeclared, ref.Site.Name+"/"+ref.Pin.Name)
		}
	}
	if len(undeclared) > 0 {
		sort.Strings(undeclared)
		return &device.RouteValidationError{Net: net, Undeclared: undeclared}
	}
	return nil
}

// ValidateCoverage checks that every sink wire, keyed to its display name,
// appears in at least one of the trees.
func ValidateCoverage(net string, trees []*Tree, sinks map[device.Wire]string) error {
	var missing []string
	for w, name := range sinks {
		covered := false
		for _, t := range trees {
			if t.Contains(w) {
				covered = true
				break
			}
		}
		if !covered {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &device.RouteValidationError{Net: net, Missing: missing}
	}
	return nil
}
