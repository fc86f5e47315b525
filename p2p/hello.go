package p2p

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
)

// Hello is the initial greeting message of the base protocol. Each side of a
// connection transmits exactly one Hello declaring its identity and the
// sub-protocols it is willing to speak. A Hello is immutable once built.
type Hello struct {
	Version    uint64
	Name       string
	Caps       []Cap
	ListenPort uint64
	ID         NodeID

	// Ignore additional list elements for forward compatibility.
	Rest []rlp.RawValue `rlp:"tail"`
}

func (h *Hello) String() string {
	return fmt.Sprintf("Hello{v%d %s caps=%v port=%d id=%x}", h.Version, h.Name, h.Caps, h.ListenPort, h.ID[:8])
}

// NewHello constructs the greeting this node sends when a connection is
// established. All fields come from the configuration; building cannot fail.
func NewHello(cfg *Config) *Hello {
	h := &Hello{
		Version:    cfg.protocolVersion(),
		Name:       cfg.Name,
		Caps:       append([]Cap(nil), cfg.Caps...),
		ListenPort: uint64(cfg.listenPort()),
		ID:         PubkeyID(cfg.PrivateKey.PubKey()),
	}
	sort.Sort(capsByNameAndVersion(h.Caps))
	return h
}
