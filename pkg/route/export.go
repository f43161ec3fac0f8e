package route

import (
	"strconv"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
)

// Export serializes tree into route tokens. Every emitted wire is
// tile-qualified; a node with several children wraps all but the last child
// in "{ }". Plain non-PIP hops inside a single-child chain are left out, the
// reader finds them again by search.
func Export(dev *device.Device, tree *Tree) []string {
	tokens := []string{dev.FullName(tree.Wire)}
	return exportChildren(dev, tree, tokens)
}

// ExportGroups serializes the trees of a static net, one "{ }" group each.
func ExportGroups(dev *device.Device, trees []*Tree) []string {
	var tokens []string
	for _, t := range trees {
		tokens = append(tokens, "{")
		tokens = append(tokens, Export(dev, t)...)
		tokens = append(tokens, "}")
	}
	return tokens
}

func exportChildren(dev *device.Device, n *Tree, tokens []string) []string {
	children := n.Children()
	for i, c := range children {
		last := i == len(children)-1
		if !last {
			tokens = append(tokens, "{")
		}
		tokens = exportNode(dev, c, tokens)
		if !last {
			tokens = append(tokens, "}")
		}
	}
	return tokens
}

func exportNode(dev *device.Device, n *Tree, tokens []string) []string {
	switch {
	case n.Clock > 0:
		tokens = append(tokens, "<"+strconv.Itoa(n.Clock)+">"+dev.WireName(n.Wire))
	case !collapsible(dev, n):
		tokens = append(tokens, dev.FullName(n.Wire))
	}
	return exportChildren(dev, n, tokens)
}

// collapsible reports whether n is a plain alias hop between two non-PIP
// connections.
func collapsible(dev *device.Device, n *Tree) bool {
	if n.Conn == nil || n.Conn.PIP || n.Terminal || len(n.Children()) != 1 {
		return false
	}
	child := n.Children()[0]
	if child.Conn.PIP || child.Clock > 0 {
		return false
	}
	if parent := n.Parent(); parent == nil || len(parent.Children()) != 1 {
		return false
	}
	_, pin := dev.SitePinAt(n.Wire)
	return !pin
}
