package p2p

import (
	"reflect"
	"testing"
)

func TestNewHello(t *testing.T) {
	key, err := GenerateNodeKey()
	if err != nil {
		t.Fatal(err)
	}
	cfg := &Config{
		PrivateKey: key,
		Name:       "helios/v0.1.0/linux-amd64/go1.21",
		Caps:       []Cap{{"shh", 2}, {"eth", 62}, {"eth", 63}},
		ListenAddr: "127.0.0.1:30303",
	}
	h := NewHello(cfg)

	if h.Version != baseProtocolVersion {
		t.Errorf("version = %d, want %d", h.Version, baseProtocolVersion)
	}
	if h.Name != cfg.Name {
		t.Errorf("name = %q, want %q", h.Name, cfg.Name)
	}
	wantCaps := []Cap{{"eth", 62}, {"eth", 63}, {"shh", 2}}
	if !reflect.DeepEqual(h.Caps, wantCaps) {
		t.Errorf("caps = %v, want %v", h.Caps, wantCaps)
	}
	if h.ListenPort != 30303 {
		t.Errorf("listen port = %d, want 30303", h.ListenPort)
	}
	if h.ID != PubkeyID(key.PubKey()) {
		t.Errorf("ID does not match configured key")
	}
}

func TestNewHelloDoesNotShareCaps(t *testing.T) {
	key, _ := GenerateNodeKey()
	cfg := &Config{
		PrivateKey: key,
		Caps:       []Cap{{"shh", 2}, {"eth", 62}},
	}
	h := NewHello(cfg)
	h.Caps[0] = Cap{"bzz", 0}
	if cfg.Caps[0] != (Cap{"shh", 2}) || cfg.Caps[1] != (Cap{"eth", 62}) {
		t.Errorf("greeting shares or reorders the configured capability slice: %v", cfg.Caps)
	}
}

func TestNewHelloVersionOverride(t *testing.T) {
	key, _ := GenerateNodeKey()
	h := NewHello(&Config{PrivateKey: key, ProtocolVersion: 5})
	if h.Version != 5 {
		t.Errorf("version = %d, want 5", h.Version)
	}
	if h.ListenPort != 0 {
		t.Errorf("listen port = %d, want 0 for non-listening node", h.ListenPort)
	}
}
