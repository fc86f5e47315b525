package p2p

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

// NodeID is the uncompressed secp256k1 public key identifying a node on the
// network. It is carried verbatim in the greeting.
type NodeID [64]byte

func (n NodeID) String() string {
	return fmt.Sprintf("%x", n[:])
}

// TerminalString returns a shortened hex string for terminal logging.
func (n NodeID) TerminalString() string {
	return hex.EncodeToString(n[:8])
}

// PubkeyID derives the node identifier from a secp256k1 public key by
// dropping the uncompressed-encoding prefix byte.
func PubkeyID(pub *btcec.PublicKey) NodeID {
	var id NodeID
	copy(id[:], pub.SerializeUncompressed()[1:])
	return id
}

// GenerateNodeKey creates a fresh node private key.
func GenerateNodeKey() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey()
}

// LoadNodeKey reads a hex-encoded private key from the given file.
func LoadNodeKey(file string) (*btcec.PrivateKey, error) {
	buf, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(buf)))
	if err != nil {
		return nil, fmt.Errorf("invalid hex in node key file %s: %v", file, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("node key file %s: need 32 bytes, have %d", file, len(raw))
	}
	key, _ := btcec.PrivKeyFromBytes(raw)
	return key, nil
}

// SaveNodeKey writes the private key to the given file, hex encoded.
func SaveNodeKey(file string, key *btcec.PrivateKey) error {
	enc := hex.EncodeToString(key.Serialize())
	return os.WriteFile(file, []byte(enc), 0600)
}
