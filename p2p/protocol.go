package p2p

import "fmt"

// Cap is the structure of a peer capability: one sub-protocol that a node
// declares support for in its greeting. Two capabilities are considered the
// same sub-protocol only if both name and version match exactly.
type Cap struct {
	Name    string
	Version uint
}

func (cap Cap) String() string {
	return fmt.Sprintf("%s/%d", cap.Name, cap.Version)
}

// capsByNameAndVersion defines the canonical ordering of a capability list as
// it appears in an outbound greeting. Ordering is for display only; it has no
// effect on compatibility decisions.
type capsByNameAndVersion []Cap

func (cs capsByNameAndVersion) Len() int      { return len(cs) }
func (cs capsByNameAndVersion) Swap(i, j int) { cs[i], cs[j] = cs[j], cs[i] }
func (cs capsByNameAndVersion) Less(i, j int) bool {
	return cs[i].Name < cs[j].Name || (cs[i].Name == cs[j].Name && cs[i].Version < cs[j].Version)
}
