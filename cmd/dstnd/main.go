package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/dstn-labs/dstn/internal/consensus"
	"github.com/dstn-labs/dstn/internal/kv"
	"github.com/dstn-labs/dstn/internal/node"
)

func runNode(dataDir string) (*node.Node, error) {
	log.Info("initializing dstn node components")

	store, err := kv.OpenLevelDB(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb backend at %s: %w", dataDir, err)
	}
	log.Info("kv backend opened", "datadir", dataDir)

	n, err := node.Boot(store, consensus.LocalAttester{})
	if err != nil {
		return nil, fmt.Errorf("failed to boot node: %w", err)
	}
	log.Info("node booted successfully")

	if err := n.Start(); err != nil {
		return nil, fmt.Errorf("failed to start slot driver: %w", err)
	}
	log.Info("slot driver started")

	return n, nil
}

func run(c *cli.Context) error {
	dataDir := c.String("datadir")

	n, err := runNode(dataDir)
	if err != nil {
		return fmt.Errorf("node initialization failed: %w", err)
	}

	log.Info("node running, press ctrl+C to stop")
	shutdownChannel := make(chan os.Signal, 1)
	signal.Notify(shutdownChannel, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdownChannel
	log.Info("caught signal, starting graceful shutdown", "signal", sig)

	log.Info("stopping slot driver")
	n.Stop()
	if err := n.Close(); err != nil {
		log.Error("error closing kv backend", "err", err)
	}
	log.Info("dstn node shut down gracefully")
	return nil
}

func main() {
	app := &cli.App{
		Name:  "dstnd",
		Usage: "run a dstn proof-of-stake node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "datadir",
				Value: "./data",
				Usage: "directory for the persistent key-value backend",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Crit("dstnd failed", "err", err)
	}
}
