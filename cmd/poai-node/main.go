// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// poai-node is the PoAI consensus node's entry point: it loads a config
// file, wires storage through to the engine, starts the tick loop and
// message router, and runs until interrupted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/equa-labs/poai-node/internal/ai"
	"github.com/equa-labs/poai-node/internal/cache"
	"github.com/equa-labs/poai-node/internal/chain"
	"github.com/equa-labs/poai-node/internal/color"
	"github.com/equa-labs/poai-node/internal/common"
	"github.com/equa-labs/poai-node/internal/config"
	"github.com/equa-labs/poai-node/internal/efficiency"
	"github.com/equa-labs/poai-node/internal/engine"
	"github.com/equa-labs/poai-node/internal/network"
	"github.com/equa-labs/poai-node/internal/pattern"
	"github.com/equa-labs/poai-node/internal/peervalidator"
	"github.com/equa-labs/poai-node/internal/rotation"
	"github.com/equa-labs/poai-node/internal/storage"
	blocksync "github.com/equa-labs/poai-node/internal/sync"
	"github.com/equa-labs/poai-node/internal/validator"
	"github.com/equa-labs/poai-node/internal/voting"
	"github.com/equa-labs/poai-node/internal/xlog"
)

var (
	configPath = flag.String("config", "", "Path to TOML config file (defaults applied for any field it omits)")

	validatorAddress = flag.String("validator-address", "", "This node's validator address, hex-encoded (required)")
	colorChecker     = flag.String("color-checker", "", "Address of the color-state checker validator for reward splitting (required)")

	dataDir     = flag.String("data-dir", "", "Overrides config data_dir")
	useMemStore = flag.Bool("mem-store", false, "Use an in-memory store instead of the on-disk LevelDB store (for demos/tests)")

	enableSync  = flag.Bool("sync", false, "Run a BlockSynchronizer pass against connected peers on startup")
	peerAddrHex = flag.String("connect", "", "Comma-free hex address of a single loopback peer to connect to (demo wiring; real transport is out of scope)")
)

func main() {
	flag.Parse()

	if *validatorAddress == "" {
		xlog.Error("missing required flag", "flag", "validator-address")
		os.Exit(1)
	}
	if *colorChecker == "" {
		xlog.Error("missing required flag", "flag", "color-checker")
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			xlog.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	xlog.Info("poai-node starting", "validator", *validatorAddress, "data_dir", cfg.DataDir)

	self := common.HexToAddress(*validatorAddress)
	colorCheckerAddr := common.HexToAddress(*colorChecker)

	store, closeStore := openStore(cfg, *useMemStore)
	defer closeStore()

	c := chain.New(store)
	if c.GetHeight() == 0 {
		if _, err := c.CreateGenesis(nil); err != nil {
			xlog.Error("failed to create genesis block", "error", err)
			os.Exit(1)
		}
		xlog.Info("genesis block created")
	}

	blockCache := cache.New(cache.Config{
		BlockCapacity: cfg.BlockCacheCapacity,
		TxCapacity:    cfg.TxCacheCapacity,
		ColorCapacity: cfg.ColorCacheCapacity,
		Window:        cfg.CacheWindow(),
	})
	effCalc := efficiency.New(cfg.MaxBlockSize, cfg.MinThreshold)
	aiModel := &ai.FakeService{}
	patternAnalyzer := pattern.New()
	colorTracker := color.New()
	// keys resolves senders to public keys for transaction signature
	// verification. This node has no peer key-exchange mechanism yet, so
	// the registry starts empty; operators wire in known keys out of band
	// until one is built.
	keys := validator.NewKeyRegistry()
	val := validator.New(blockCache, effCalc, aiModel, patternAnalyzer, colorTracker, keys)

	rot := rotation.New(cfg.BuilderTimeoutBlocks)

	vset := engine.NewValidatorSet(validator.EligibilityConfig{
		MinUptime:        0.5,
		MinScore:         0.5,
		MinParticipation: cfg.MinParticipation,
	})
	vset.Register(self)

	net := network.NewLoopbackAdapter(self)
	if *peerAddrHex != "" {
		peerAddr := common.HexToAddress(*peerAddrHex)
		net.Connect(network.NewLoopbackAdapter(peerAddr))
		vset.Register(peerAddr)
	}

	vm := voting.NewManager(cfg.VotingWindow(), cfg.MinParticipation, cfg.Quorum, net, vset)
	pv := peervalidator.New(net, vset, cfg.PeerResponseDeadline(), cfg.MinParticipation, cfg.PeerMajority)

	eng := engine.New(engine.Config{
		TickInterval:    cfg.TickInterval(),
		MaxTxPerBlock:   cfg.MaxTxPerBlock,
		AIThreshold:     cfg.AIThreshold,
		BaseBlockReward: cfg.BaseBlockReward,
		Self:            self,
		ColorChecker:    colorCheckerAddr,
	}, c, val, rot, vm, pv, net, vset)

	var syncer *blocksync.Synchronizer
	if *enableSync {
		requester := blocksync.NewNetRequester(net, self)
		syncer = blocksync.New(c, net, requester, eng, cfg.MaxBlocksPerSync, cfg.PeerResponseDeadline())
		eng.AttachSynchronizer(syncer, requester)
	}

	eng.Start()
	xlog.Info("engine started", "tick_interval", cfg.TickInterval())

	if syncer != nil {
		go func() {
			if err := syncer.StartSync(context.Background()); err != nil {
				xlog.Warn("startup sync failed", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	statsTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-sigCh:
			xlog.Info("received shutdown signal")
			eng.Stop()
			return
		case <-statsTicker.C:
			s := eng.Stats()
			xlog.Info("engine stats",
				"blocks_proposed", s.BlocksProposed,
				"blocks_accepted", s.BlocksAccepted,
				"blocks_rejected", s.BlocksRejected,
				"voting_rounds", s.VotingRounds,
				"height", s.LastTickHeight)
		}
	}
}

// openStore builds the node's persistence layer: LevelDB on disk by default,
// or an in-memory store for demos and tests. The returned close func must be
// deferred by the caller to flush and release the underlying handle.
func openStore(cfg *config.Config, mem bool) (storage.Store, func()) {
	if mem {
		s := storage.NewMemoryStore()
		return s, func() { _ = s.Close() }
	}
	s, err := storage.OpenLevelDB(cfg.DataDir)
	if err != nil {
		xlog.Error("failed to open data directory", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	return s, func() { _ = s.Close() }
}
