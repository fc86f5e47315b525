package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/inconshreveable/log15"
	"github.com/urfave/cli/v2"

	"github.com/helios-eth/helios/p2p"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	listenAddrFlag = &cli.StringFlag{
		Name:  "addr",
		Usage: "Network listening address",
		Value: ":30303",
	}
	nodeKeyFlag = &cli.StringFlag{
		Name:  "nodekey",
		Usage: "P2P node key file (created if missing)",
	}
	nameFlag = &cli.StringFlag{
		Name:  "name",
		Usage: "Client name advertised to peers",
		Value: defaultClientName(),
	}
	maxPeersFlag = &cli.IntFlag{
		Name:  "maxpeers",
		Usage: "Maximum number of network peers",
		Value: 25,
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=crit, 1=error, 2=warn, 3=info, 4=debug",
		Value: 3,
	}
)

var app = &cli.App{
	Name:   "helios",
	Usage:  "wire protocol node",
	Flags:  []cli.Flag{configFlag, listenAddrFlag, nodeKeyFlag, nameFlag, maxPeersFlag, verbosityFlag},
	Action: run,
	Commands: []*cli.Command{
		{
			Name:      "genkey",
			Usage:     "Generate a node key and write it to the given file",
			ArgsUsage: "<file>",
			Action:    genkey,
		},
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	setupLogging(ctx.Int(verbosityFlag.Name))

	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	srv := &p2p.Server{Config: cfg.Server}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("could not start node: %v", err)
	}
	defer srv.Stop()

	for _, addr := range cfg.Bootnodes {
		if err := srv.AddPeer(addr); err != nil {
			log.Warn("Bootnode dial failed", "addr", addr, "err", err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("Shutting down")
	return nil
}

func genkey(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("need a key file as the only argument")
	}
	key, err := p2p.GenerateNodeKey()
	if err != nil {
		return err
	}
	file := ctx.Args().First()
	if err := p2p.SaveNodeKey(file, key); err != nil {
		return err
	}
	fmt.Printf("node ID: %s\n", p2p.PubkeyID(key.PubKey()))
	return nil
}

func setupLogging(verbosity int) {
	lvl := log.Lvl(verbosity)
	if lvl > log.LvlDebug {
		lvl = log.LvlDebug
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat())))
}
