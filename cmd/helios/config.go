package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/btcsuite/btcd/btcec/v2"
	log "github.com/inconshreveable/log15"
	"github.com/urfave/cli/v2"

	"github.com/helios-eth/helios/p2p"
)

const clientVersion = "0.1.0"

// defaultCaps is what a node announces when the config does not name any
// capabilities.
var defaultCaps = []p2p.Cap{{Name: "eth", Version: 62}, {Name: "eth", Version: 63}}

type config struct {
	Server    p2p.Config
	Bootnodes []string
}

// fileConfig is the TOML representation of the tunable settings.
type fileConfig struct {
	Name       string    `toml:"name"`
	ListenAddr string    `toml:"listen_addr"`
	MaxPeers   int       `toml:"max_peers"`
	NodeKey    string    `toml:"node_key"`
	Caps       []capToml `toml:"caps"`
	Bootnodes  []string  `toml:"bootnodes"`
}

type capToml struct {
	Name    string `toml:"name"`
	Version uint   `toml:"version"`
}

func defaultClientName() string {
	return fmt.Sprintf("helios/v%s/%s-%s/%s", clientVersion, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

// makeConfig assembles the node configuration from the command line and the
// optional TOML file. File settings win over flags; fields the file does not
// mention keep their flag values.
func makeConfig(ctx *cli.Context) (*config, error) {
	fc := fileConfig{
		Name:       ctx.String(nameFlag.Name),
		ListenAddr: ctx.String(listenAddrFlag.Name),
		MaxPeers:   ctx.Int(maxPeersFlag.Name),
		NodeKey:    ctx.String(nodeKeyFlag.Name),
	}
	if file := ctx.String(configFlag.Name); file != "" {
		if _, err := toml.DecodeFile(file, &fc); err != nil {
			return nil, fmt.Errorf("config file %s: %v", file, err)
		}
	}

	caps := defaultCaps
	if len(fc.Caps) > 0 {
		caps = make([]p2p.Cap, len(fc.Caps))
		for i, c := range fc.Caps {
			caps[i] = p2p.Cap{Name: c.Name, Version: c.Version}
		}
	}

	key, err := nodeKey(fc.NodeKey)
	if err != nil {
		return nil, err
	}

	return &config{
		Server: p2p.Config{
			PrivateKey: key,
			Name:       fc.Name,
			Caps:       caps,
			ListenAddr: fc.ListenAddr,
			MaxPeers:   fc.MaxPeers,
		},
		Bootnodes: fc.Bootnodes,
	}, nil
}

// nodeKey loads the key from file, creating and persisting a fresh one when
// the file does not exist yet. An empty path means an ephemeral key.
func nodeKey(file string) (*btcec.PrivateKey, error) {
	if file == "" {
		return p2p.GenerateNodeKey()
	}
	key, err := p2p.LoadNodeKey(file)
	if err == nil {
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	key, err = p2p.GenerateNodeKey()
	if err != nil {
		return nil, err
	}
	if err := p2p.SaveNodeKey(file, key); err != nil {
		log.Warn("Could not persist node key", "file", file, "err", err)
	}
	return key, nil
}
