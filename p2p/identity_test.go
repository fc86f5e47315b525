package p2p

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPubkeyID(t *testing.T) {
	key, err := GenerateNodeKey()
	if err != nil {
		t.Fatal(err)
	}
	id := PubkeyID(key.PubKey())
	if id == (NodeID{}) {
		t.Error("derived empty node ID")
	}
	if id != PubkeyID(key.PubKey()) {
		t.Error("PubkeyID is not deterministic")
	}
	if len(id.TerminalString()) != 16 {
		t.Errorf("terminal string %q has wrong length", id.TerminalString())
	}
}

func TestNodeKeyRoundTrip(t *testing.T) {
	key, err := GenerateNodeKey()
	if err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(t.TempDir(), "nodekey")
	if err := SaveNodeKey(file, key); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadNodeKey(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if PubkeyID(loaded.PubKey()) != PubkeyID(key.PubKey()) {
		t.Error("loaded key has different identity")
	}
}

func TestLoadNodeKeyRejectsGarbage(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nodekey")
	if err := os.WriteFile(file, []byte("not hex at all"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadNodeKey(file); err == nil {
		t.Error("no error for invalid key file")
	}
}
