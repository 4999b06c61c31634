// Command facet-node runs the derivation pipeline described in spec §2: it
// reads L1 blocks, derives L2 blocks from them, and drives an execution
// engine to build and import them, resuming from wherever its local store
// last left off. Wiring mirrors how cmd/geth assembles its node.Node from
// cmd/utils flags, one level simpler: there is no stack to register
// services on here, just the pipeline's own collaborators.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/facet-protocol/facet-node/beacon"
	"github.com/facet-protocol/facet-node/core/builder"
	"github.com/facet-protocol/facet-node/core/collector"
	"github.com/facet-protocol/facet-node/core/mint"
	"github.com/facet-protocol/facet-node/engine"
	"github.com/facet-protocol/facet-node/internal/config"
	"github.com/facet-protocol/facet-node/internal/exitcode"
	"github.com/facet-protocol/facet-node/internal/flags"
	"github.com/facet-protocol/facet-node/internal/metrics"
	"github.com/facet-protocol/facet-node/l1"
	"github.com/facet-protocol/facet-node/params"
	"github.com/facet-protocol/facet-node/pipeline"
	"github.com/facet-protocol/facet-node/prefetch"
	"github.com/facet-protocol/facet-node/proposer"
	"github.com/facet-protocol/facet-node/storage"
)

// version is overwritten at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	app := &cli.App{
		Name:  "facet-node",
		Usage: "derives and proposes L2 blocks from an L1 chain",
		Commands: []*cli.Command{
			runCommand,
			versionCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("facet-node exiting", "err", err)
		os.Exit(exitcode.For(err))
	}
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "print the facet-node version",
	Action: func(ctx *cli.Context) error {
		fmt.Println(version)
		return nil
	},
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "start the derivation pipeline",
	Flags: flags.RunFlags,
	Action: func(cliCtx *cli.Context) error {
		flags.ApplyEnv(cliCtx)
		return run(cliCtx.Context)
	},
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l1Client, err := l1.Dial(ctx, cfg.L1RPCURL, l1.DefaultRetryPolicy())
	if err != nil {
		return fmt.Errorf("facet-node: dialing l1 rpc: %w", err)
	}

	execReader, err := l1.Dial(ctx, cfg.NonAuthGethRPCURL, l1.DefaultRetryPolicy())
	if err != nil {
		return fmt.Errorf("facet-node: dialing non-auth execution rpc: %w", err)
	}

	engineClient, err := engine.Dial(ctx, cfg.GethRPCURL, cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("facet-node: dialing engine rpc: %w", err)
	}

	store, err := storage.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("facet-node: opening store at %s: %w", cfg.StorePath, err)
	}
	defer store.Close()

	beaconClient := beacon.New(cfg.BeaconBaseURL, cfg.BeaconAPIKey)
	blobProvider := beacon.NewRollingProvider(beaconClient)

	fetcher := prefetch.New(l1Client, cfg.PrefetchThreads, cfg.PrefetchForward, cfg.PrefetchTimeout)
	defer fetcher.Shutdown()

	registry, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("facet-node: building priority registry: %w", err)
	}

	col := collector.New(cfg.ChainSpec.ChainID, blobProvider)
	bld := builder.New(cfg.ChainSpec.ChainID, registry, cfg.EnableSigVerify)
	mintCtl := mint.New(params.DefaultMintConstants())
	prop := proposer.New(cfg.ChainSpec, engineClient, execReader)

	p := pipeline.New(cfg.ChainSpec, fetcher, col, bld, mintCtl, prop, store, blobProvider)

	genesis, err := resolveGenesis(mintCtl, store, cfg.Genesis)
	if err != nil {
		return fmt.Errorf("facet-node: resolving genesis: %w", err)
	}

	serveMetrics()

	log.Info("facet-node starting", "version", version, "network", cfg.Network, "chain_id", cfg.ChainSpec.ChainID)
	return p.Run(ctx, genesis)
}

// resolveGenesis bootstraps a fresh store's mint state via
// core/mint.Controller.Bootstrap. It queries the store first so a restart
// against a non-empty store never re-runs the bootstrap math on stale
// GENESIS_* inputs; pipeline.Run performs the same empty-store check and
// will simply ignore the value this returns once the store has a head.
func resolveGenesis(mintCtl *mint.Controller, store *storage.Store, g config.GenesisConfig) (pipeline.Genesis, error) {
	if _, err := store.HeadL2Block(); err == nil {
		return pipeline.Genesis{}, nil
	}

	mintState, err := mintCtl.Bootstrap(
		g.HistoricalTotalMinted,
		g.PreForkRatePerGas,
		g.PreviousL1BaseFee,
		g.ParentL1Number,
		g.RemainingPreForkPeriods,
	)
	if err != nil {
		return pipeline.Genesis{}, fmt.Errorf("bootstrapping mint state: %w", err)
	}

	return pipeline.Genesis{
		ParentHash:      g.ParentHash,
		ParentNumber:    g.ParentNumber,
		ParentTimestamp: g.ParentTimestamp,
		ParentL1Number:  g.ParentL1Number,
		PrevRandao:      g.PrevRandao,
		GasLimit:        g.GasLimit,
		Mint:            mintState,
	}, nil
}

func serveMetrics() {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		addr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", "err", err)
		}
	}()
}
