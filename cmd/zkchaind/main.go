// zkchaind is the zkchain full node daemon: it runs the proof-of-work
// consensus engine over an account ledger and ZK-rollup contract
// registry, gossips blocks and transactions over a thin pubsub mesh, and
// optionally mines draft blocks and hosts a wallet keystore.
//
// Usage:
//
//	zkchaind [--mine --coinbase=...]  Run node
//	zkchaind --help                  Show help
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/klingnet-chain/zkchain/config"
	"github.com/klingnet-chain/zkchain/internal/chain"
	"github.com/klingnet-chain/zkchain/internal/kv"
	klog "github.com/klingnet-chain/zkchain/internal/log"
	"github.com/klingnet-chain/zkchain/internal/mempool"
	"github.com/klingnet-chain/zkchain/internal/p2pstub"
	"github.com/klingnet-chain/zkchain/internal/wallet"
	"github.com/klingnet-chain/zkchain/pkg/block"
	"github.com/klingnet-chain/zkchain/pkg/crypto"
	"github.com/klingnet-chain/zkchain/pkg/tx"
	"github.com/klingnet-chain/zkchain/pkg/types"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
)

const (
	mempoolCapacity    = 5000
	blockSyncBatch     = 256
	syncLoopInterval   = 15 * time.Second
	mineStabilizeDelay = 2 * time.Second
	mineReportInterval = 5 * time.Second
)

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if cfg.Network == config.Testnet {
		types.SetAddressHRP(types.TestnetHRP)
	} else {
		types.SetAddressHRP(types.MainnetHRP)
	}

	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating logs dir: %v\n", err)
			os.Exit(1)
		}
		logFile = logsDir + "/zkchain.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := klog.WithComponent("node")

	genesis := config.GenesisFor(cfg.Network)
	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("network", string(cfg.Network)).
		Uint64("block_time", genesis.Params.BlockTime).
		Msg("starting zkchain node")

	store, err := kv.OpenBadger(cfg.StateDir())
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StateDir()).Msg("failed to open state store")
	}
	defer store.Close()

	ch, err := chain.New(store, genesis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open chain")
	}
	if height, err := ch.GetHeight(); err == nil {
		logger.Info().Uint64("height", height).Msg("chain opened")
	}

	pool := mempool.New(ch, mempoolCapacity)

	var node *p2pstub.Node
	var syncer *p2pstub.Syncer
	if cfg.P2P.Enabled {
		node = p2pstub.New(p2pstub.Config{
			ListenAddr: cfg.P2P.ListenAddr,
			Port:       cfg.P2P.Port,
			Seeds:      cfg.P2P.Seeds,
			MaxPeers:   cfg.P2P.MaxPeers,
			Rendezvous: genesis.ChainID,
		})
		node.SetBlockHandler(func(from peer.ID, data []byte) {
			handleGossipBlock(ch, pool, logger, from, data)
		})
		node.SetTxHandler(func(from peer.ID, data []byte) {
			handleGossipTx(pool, logger, from, data)
		})
		if err := node.Start(); err != nil {
			logger.Fatal().Err(err).Msg("failed to start p2p node")
		}
		defer node.Stop()
		logger.Info().Str("peer_id", node.ID().String()).Msg("p2p node listening")

		syncer = p2pstub.NewSyncer(node)
		syncer.RegisterHeightHandler(func() (uint64, string) {
			height, _ := ch.GetHeight()
			tipHash := ""
			if tip, err := ch.GetTip(); err == nil && tip != nil {
				tipHash = tip.Hash().String()
			}
			return height, tipHash
		})
		syncer.RegisterBlockRangeHandler(func(from uint64, max uint32) []*block.Block {
			if max == 0 || max > blockSyncBatch {
				max = blockSyncBatch
			}
			until := from + uint64(max)
			blocks, err := ch.GetBlocks(from, &until)
			if err != nil {
				return nil
			}
			return blocks
		})
	}

	if cfg.Wallet.Enabled {
		ks, err := wallet.NewKeystore(cfg.KeystoreDir())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open wallet keystore")
		}
		names, err := ks.List()
		if err != nil {
			logger.Warn().Err(err).Msg("failed to list wallets")
		}
		logger.Info().Str("path", cfg.KeystoreDir()).Int("wallets", len(names)).
			Msg("wallet keystore ready")
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	if node != nil && syncer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSyncLoop(ctx, ch, node, syncer, pool, logger)
		}()
	}

	if cfg.Mining.Enabled {
		coinbase, err := types.ParseAddress(cfg.Mining.Coinbase)
		if err != nil {
			logger.Fatal().Err(err).Str("coinbase", cfg.Mining.Coinbase).Msg("invalid coinbase address")
		}
		threads := cfg.Mining.Threads
		if threads < 1 {
			threads = 1
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			runMiner(ctx, ch, pool, node, coinbase, threads, logger)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	cancel()
	wg.Wait()
}

// processBlock applies a received block against the chain's current tip,
// also handling the single-block-fork case where b replaces the current
// tip rather than extending past it. Deeper reorgs are left to the sync
// loop, which fetches and replays a full competing range via Extend.
func processBlock(ch *chain.Chain, b *block.Block) error {
	height, err := ch.GetHeight()
	if err != nil {
		return fmt.Errorf("get height: %w", err)
	}
	switch {
	case b.Header.Number == height:
		return ch.ApplyBlock(b, true)
	case height > 0 && b.Header.Number == height-1:
		ok, err := ch.WillExtend(height-1, []*block.Header{b.Header}, true)
		if err != nil {
			return fmt.Errorf("will extend: %w", err)
		}
		if !ok {
			return fmt.Errorf("competing block at height %d has insufficient work", b.Header.Number)
		}
		return ch.Extend(height-1, []*block.Block{b})
	case b.Header.Number > height:
		return fmt.Errorf("block %d is ahead of local height %d, needs sync", b.Header.Number, height)
	default:
		return fmt.Errorf("block %d is stale (local height %d)", b.Header.Number, height)
	}
}

func handleGossipBlock(ch *chain.Chain, pool *mempool.Pool, logger zerolog.Logger, from peer.ID, data []byte) {
	var b block.Block
	if err := json.Unmarshal(data, &b); err != nil {
		logger.Warn().Err(err).Str("peer", from.String()).Msg("dropping malformed block gossip")
		return
	}
	if err := processBlock(ch, &b); err != nil {
		logger.Debug().Err(err).Str("peer", from.String()).Uint64("number", b.Header.Number).
			Msg("rejected gossiped block")
		return
	}
	pool.RemoveConfirmed(b.Body)
	logger.Info().Uint64("number", b.Header.Number).Str("peer", from.String()).Msg("applied gossiped block")
}

func handleGossipTx(pool *mempool.Pool, logger zerolog.Logger, from peer.ID, data []byte) {
	var td tx.TransactionAndDelta
	if err := json.Unmarshal(data, &td); err != nil {
		logger.Warn().Err(err).Str("peer", from.String()).Msg("dropping malformed tx gossip")
		return
	}
	if _, err := pool.Add(td); err != nil {
		logger.Debug().Err(err).Str("peer", from.String()).Msg("rejected gossiped transaction")
	}
}

// runSyncLoop periodically asks every connected peer for its height and,
// when a peer is ahead, fetches and replays the missing range.
func runSyncLoop(ctx context.Context, ch *chain.Chain, node *p2pstub.Node, syncer *p2pstub.Syncer, pool *mempool.Pool, logger zerolog.Logger) {
	pollPeers := func() {
		for _, p := range node.PeerList() {
			reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			resp, err := syncer.RequestHeight(reqCtx, p)
			cancel()
			if err != nil {
				continue
			}
			if err := syncFromPeer(ctx, ch, syncer, pool, p, resp.Height, logger); err != nil {
				logger.Debug().Err(err).Str("peer", p.String()).Msg("sync from peer failed")
			}
		}
	}

	pollPeers()
	ticker := time.NewTicker(syncLoopInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollPeers()
		}
	}
}

func syncFromPeer(ctx context.Context, ch *chain.Chain, syncer *p2pstub.Syncer, pool *mempool.Pool, p peer.ID, peerHeight uint64, logger zerolog.Logger) error {
	localHeight, err := ch.GetHeight()
	if err != nil {
		return err
	}
	if peerHeight <= localHeight {
		return nil
	}

	for from := localHeight; from < peerHeight; {
		reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		blocks, err := syncer.RequestBlockRange(reqCtx, p, from, blockSyncBatch)
		cancel()
		if err != nil {
			return fmt.Errorf("request block range from %d: %w", from, err)
		}
		if len(blocks) == 0 {
			return nil
		}

		headers := make([]*block.Header, len(blocks))
		for i, b := range blocks {
			headers[i] = b.Header
		}
		extend, err := ch.WillExtend(from, headers, true)
		if err != nil {
			return fmt.Errorf("will extend from %d: %w", from, err)
		}
		if !extend {
			return fmt.Errorf("peer range from %d carries insufficient work", from)
		}
		if err := ch.Extend(from, blocks); err != nil {
			return fmt.Errorf("extend from %d: %w", from, err)
		}
		for _, b := range blocks {
			pool.RemoveConfirmed(b.Body)
		}
		logger.Info().Uint64("from", from).Int("count", len(blocks)).Str("peer", p.String()).
			Msg("synced block range")
		from += uint64(len(blocks))
	}
	return nil
}

// runMiner repeatedly drafts a block against the current tip and
// searches for a nonce that meets its target, broadcasting and applying
// every block it finds. It waits mineStabilizeDelay after losing a race
// (the tip moved under it) before retrying, so it does not spin tightly
// against a faster peer.
func runMiner(ctx context.Context, ch *chain.Chain, pool *mempool.Pool, node *p2pstub.Node, coinbase types.Address, threads int, logger zerolog.Logger) {
	logger.Info().Str("coinbase", coinbase.String()).Int("threads", threads).Msg("miner starting")
	lastReport := time.Now()
	var attempts uint64

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		height, err := ch.GetHeight()
		if err != nil {
			logger.Error().Err(err).Msg("miner: get height")
			time.Sleep(mineStabilizeDelay)
			continue
		}

		bp, err := ch.DraftBlock(uint64(time.Now().Unix()), pool.Pending(), coinbase)
		if err != nil {
			logger.Debug().Err(err).Msg("miner: draft block")
			time.Sleep(mineStabilizeDelay)
			continue
		}

		key, err := ch.PowKey(bp.Block.Header.Number)
		if err != nil {
			logger.Error().Err(err).Msg("miner: pow key")
			time.Sleep(mineStabilizeDelay)
			continue
		}

		header := bp.Block.Header
		target := header.Pow.Target
		found := false
		for nonce := uint64(0); ; nonce++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if nonce%4096 == 0 {
				if h, err := ch.GetHeight(); err == nil && h != height {
					break // tip moved; redraft against the new one
				}
			}
			header.Pow.Nonce = nonce
			if crypto.MeetsTarget(crypto.SeededHash(key, header.SigningBytes()), target) {
				found = true
				attempts += nonce + 1
				break
			}
			if nonce == ^uint64(0) {
				break
			}
		}
		if !found {
			time.Sleep(mineStabilizeDelay)
			continue
		}

		if err := ch.ApplyBlock(bp.Block, true); err != nil {
			logger.Debug().Err(err).Msg("miner: lost race applying block")
			time.Sleep(mineStabilizeDelay)
			continue
		}
		pool.RemoveConfirmed(bp.Block.Body)

		if node != nil {
			if data, err := json.Marshal(bp.Block); err == nil {
				if err := node.BroadcastBlock(data); err != nil {
					logger.Warn().Err(err).Msg("miner: broadcast block")
				}
			}
		}

		logger.Info().Uint64("number", bp.Block.Header.Number).Uint64("nonce", header.Pow.Nonce).
			Msg("mined block")

		if time.Since(lastReport) > mineReportInterval {
			logger.Debug().Uint64("hashes", attempts).Msg("miner throughput")
			attempts = 0
			lastReport = time.Now()
		}
	}
}
