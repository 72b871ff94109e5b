package node

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/casper-network/highway/internal/admin"
	"github.com/casper-network/highway/internal/config"
	"github.com/casper-network/highway/internal/crypto"
	"github.com/casper-network/highway/internal/eventloop"
	"github.com/casper-network/highway/internal/execution"
	"github.com/casper-network/highway/internal/highway"
	"github.com/casper-network/highway/internal/highway/finality"
	"github.com/casper-network/highway/internal/highway/model"
	"github.com/casper-network/highway/internal/highway/state"
	"github.com/casper-network/highway/internal/mempool"
	"github.com/casper-network/highway/internal/p2p"
	"github.com/casper-network/highway/internal/storage"
	hwsync "github.com/casper-network/highway/internal/sync"
	"github.com/casper-network/highway/internal/telemetry"
	"go.uber.org/zap"
)

// Node is the top-level Highway node: it owns and manages every subsystem
// a single active validator needs, from storage up through the p2p
// network.
type Node struct {
	cfg     *config.Config
	genesis *config.GenesisDoc
	privKey crypto.PrivateKey
	signer  *crypto.Signer
	vidx    model.ValidatorIndex

	store       storage.StateStore
	view        *state.State
	mempoolBuf  *mempool.Buffer
	executor    execution.Executor
	loop        *eventloop.Loop
	host        *p2p.Host
	gossip      *p2p.Gossip
	catchup     *hwsync.Catchup
	metrics     *telemetry.Metrics
	metricsSrv  *telemetry.MetricsServer
	adminServer *admin.Server

	svcMgr *ServiceManager
	logger *zap.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

// NewNode wires every subsystem without starting any of them.
func NewNode(cfg *config.Config, genesis *config.GenesisDoc, privKey crypto.PrivateKey, logger *zap.Logger) (*Node, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	nodeID := nodeIDFromKey(privKey)
	logger = logger.With(zap.String("node_id", nodeID))

	pubKeys, err := genesisPublicKeys(genesis)
	if err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}
	vidx, err := localValidatorIndex(pubKeys, privKey)
	if err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}

	// 1. Storage.
	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("node: open store: %w", err)
	}

	// 2. Genesis-seeded state view.
	view, err := genesis.ToState()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("node: build state: %w", err)
	}

	// 3. Execution adapter and mempool buffer feeding a ValueProvider.
	wasmAdapter, err := execution.NewWASMAdapter(cfg.Execution, store, logger.Named("execution"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("node: create execution adapter: %w", err)
	}
	var executor execution.Executor = wasmAdapter
	mempoolBuf := mempool.NewBuffer(cfg.Mempool, store, logger.Named("mempool"))
	valueProvider := execution.NewProvider(executor, mempoolBuf, cfg.Highway.MaxBlockSize, logger.Named("execution"))

	// 4. Signer, scheduler, finality detector.
	signer := crypto.NewSigner(privKey)
	detector := finality.NewDetector(cfg.Highway.RoundExp, state.Weight(cfg.Highway.FaultTolerance))
	now := model.Timestamp(0)
	av, seedEffects := highway.New(vidx, signer, cfg.Highway.RoundExp, now, view, logger.Named("highway"))

	// 5. Metrics.
	metrics := telemetry.NopMetrics()
	var metricsSrv *telemetry.MetricsServer
	if cfg.Telemetry.Enabled {
		metrics = telemetry.NewMetrics("highway")
		metricsSrv = telemetry.NewMetricsServer(cfg.Telemetry.Addr, metrics, logger.Named("metrics"))
	}

	// 6. P2P host, gossip emitter, and the catch-up path it backs.
	host, err := p2p.NewHost(context.Background(), p2p.HostConfig{
		PrivateKey:    privKey,
		ListenAddr:    cfg.P2P.ListenAddr,
		MaxPeers:      cfg.P2P.MaxPeers,
		Seeds:         cfg.P2P.Seeds,
		EnableScoring: cfg.P2P.PeerScoring,
		Logger:        logger.Named("p2p"),
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("node: create p2p host: %w", err)
	}

	archive := p2p.NewVoteArchive()
	gossip := p2p.NewGossip(host, pubKeys, archive, signer, logger.Named("p2p"))

	// 7. Event loop — the single-writer serialization point for av.
	loop := eventloop.New(av, view, detector, signer, gossip, valueProvider, eventloop.NewWallClock(genesis.GenesisTime), logger.Named("eventloop"))
	loop.Seed(context.Background(), seedEffects)

	// 8. Catch-up: fetches and verifies votes missing from view's
	// ancestry from whichever peer is connected, through the same
	// libp2p host gossip uses.
	voteSync := p2p.NewVoteSync(host, archive, view.Panorama, logger.Named("sync"))
	provider := p2p.NewCatchupProvider(voteSync, host.PeerMgr())
	verifier := hwsync.NewVerifier(pubKeys, signer)
	fetcher := hwsync.NewFetcher(provider, view)
	catchup := hwsync.NewCatchup(fetcher, verifier, loop, logger.Named("sync"))

	// 9. Admin server.
	adminSrv := admin.NewServer(cfg.RPC.HTTPAddr, view, mempoolBuf, catchup, logger.Named("admin"))

	return &Node{
		cfg:         cfg,
		genesis:     genesis,
		privKey:     privKey,
		signer:      signer,
		vidx:        vidx,
		store:       store,
		view:        view,
		mempoolBuf:  mempoolBuf,
		executor:    executor,
		loop:        loop,
		host:        host,
		gossip:      gossip,
		catchup:     catchup,
		metrics:     metrics,
		metricsSrv:  metricsSrv,
		adminServer: adminSrv,
		svcMgr:      NewServiceManager(logger),
		logger:      logger,
		done:        make(chan struct{}),
	}, nil
}

// Start boots every subsystem in dependency order and runs the scheduler's
// event loop on its own goroutine.
func (n *Node) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.logger.Info("node starting",
		zap.String("moniker", n.cfg.Moniker),
		zap.String("chain_id", n.cfg.ChainID),
	)

	if err := n.host.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("node: start p2p host: %w", err)
	}

	if err := n.gossip.Start(ctx, n.loop, n.signer); err != nil {
		n.host.Stop()
		cancel()
		return fmt.Errorf("node: start gossip: %w", err)
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.loop.Run(ctx)
	}()

	if n.metricsSrv != nil {
		go n.metricsSrv.Start()
	}

	if err := n.adminServer.Start(ctx); err != nil {
		n.logger.Warn("admin server failed to start", zap.Error(err))
	}

	n.logger.Info("node started successfully",
		zap.Int("validator_index", int(n.vidx)),
	)

	return nil
}

// Stop gracefully shuts down every subsystem in reverse order.
func (n *Node) Stop() error {
	n.logger.Info("node stopping")

	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()

	if n.adminServer != nil {
		n.adminServer.Stop()
	}
	if n.metricsSrv != nil {
		n.metricsSrv.Stop()
	}
	if n.gossip != nil {
		n.gossip.Stop()
	}
	if n.host != nil {
		n.host.Stop()
	}
	if n.store != nil {
		n.store.Close()
	}
	if closer, ok := n.executor.(interface{ Close() error }); ok {
		closer.Close()
	}

	n.logger.Info("node stopped")
	close(n.done)
	return nil
}

// Wait blocks until the node is stopped.
func (n *Node) Wait() error {
	<-n.done
	return nil
}

// Store returns the node's state store (for testing).
func (n *Node) Store() storage.StateStore {
	return n.store
}

// View returns the node's state view (for testing).
func (n *Node) View() *state.State {
	return n.view
}

// Catchup returns the node's catch-up coordinator (for testing).
func (n *Node) Catchup() *hwsync.Catchup {
	return n.catchup
}

func nodeIDFromKey(privKey crypto.PrivateKey) string {
	if privKey == nil {
		return "unknown"
	}
	pubKey := privKey.Public().(crypto.PublicKey)
	addr := crypto.AddressFromPubKey(pubKey)
	return hex.EncodeToString(addr[:8])
}

func openStore(cfg config.StorageConfig) (storage.StateStore, error) {
	if cfg.Backend == "memory" {
		return storage.NewMemStore(), nil
	}
	return storage.Open(cfg.DBPath)
}

// localValidatorIndex finds the ValidatorIndex genesis assigned to privKey,
// matching its public key against the genesis validator list in order —
// the same dense indexing state.State uses.
func localValidatorIndex(pubKeys []ed25519.PublicKey, privKey crypto.PrivateKey) (model.ValidatorIndex, error) {
	pub := privKey.Public().(crypto.PublicKey)
	for i, pk := range pubKeys {
		if ed25519.PublicKey(pk).Equal(ed25519.PublicKey(pub)) {
			return model.ValidatorIndex(i), nil
		}
	}
	return 0, fmt.Errorf("node: local key not found among genesis validators")
}

func genesisPublicKeys(genesis *config.GenesisDoc) ([]ed25519.PublicKey, error) {
	raw, err := genesis.PublicKeys()
	if err != nil {
		return nil, err
	}
	out := make([]ed25519.PublicKey, len(raw))
	for i, b := range raw {
		out[i] = ed25519.PublicKey(b[:])
	}
	return out, nil
}
