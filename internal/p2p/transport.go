package p2p

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/casper-network/highway/internal/eventloop"
	"github.com/casper-network/highway/internal/highway/model"
	"go.uber.org/zap"
)

// Compile-time check that Gossip implements eventloop.Emitter.
var _ eventloop.Emitter = (*Gossip)(nil)

// Gossip publishes NewVertex effects to the votes topic and, once started,
// feeds signature-verified remote votes into a Loop. It implements
// eventloop.Emitter, generalizing the teacher's P2PTransport from
// Proposal/Vote/Timeout framing to the scheduler's single SignedWireVote
// vertex kind.
type Gossip struct {
	host    *Host
	pubKeys []ed25519.PublicKey // indexed by model.ValidatorIndex
	archive *VoteArchive
	hasher  eventloop.Hasher
	metrics *Metrics
	logger  *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGossip creates a Gossip emitter. pubKeys must be indexed by the same
// dense ValidatorIndex the local state.State uses, so a SignedWireVote's
// Creator field can be checked against the right key. archive and hasher
// may both be nil: a node that never serves catch-up requests needs
// neither.
func NewGossip(host *Host, pubKeys []ed25519.PublicKey, archive *VoteArchive, hasher eventloop.Hasher, logger *zap.Logger) *Gossip {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := host.metrics
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Gossip{
		host:    host,
		pubKeys: pubKeys,
		archive: archive,
		hasher:  hasher,
		metrics: metrics,
		logger:  logger,
	}
}

// EmitVertex implements eventloop.Emitter: it gossips a signed vote on the
// votes topic and archives it so a lagging peer can later fetch it by
// hash through VoteSync.
func (g *Gossip) EmitVertex(ctx context.Context, v model.SignedWireVote) error {
	data, err := EncodeVote(v)
	if err != nil {
		return fmt.Errorf("p2p: encode vote: %w", err)
	}
	if g.archive != nil && g.hasher != nil {
		g.archive.Record(g.hasher.Hash(v), v)
	}
	g.metrics.MessagesSent.WithLabelValues("vote").Inc()
	return g.host.gossip.Publish(ctx, TopicVotes, data)
}

// Start subscribes to the votes topic and feeds verified remote votes into
// loop via SubmitRemoteVote, hashing each with hasher exactly as the loop
// hashes its own locally-produced votes.
func (g *Gossip) Start(ctx context.Context, loop *eventloop.Loop, hasher eventloop.Hasher) error {
	sub, err := g.host.gossip.Subscribe(TopicVotes)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.readLoop(ctx, sub, loop, hasher)
	}()

	return nil
}

// Stop shuts down the gossip read loop.
func (g *Gossip) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()
}

func (g *Gossip) readLoop(ctx context.Context, sub *pubsub.Subscription, loop *eventloop.Loop, hasher eventloop.Hasher) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			g.logger.Warn("gossip subscription error", zap.Error(err))
			return
		}

		if msg.ReceivedFrom == g.host.ID() {
			continue // skip our own messages
		}

		g.handleMessage(msg.Data, loop, hasher)
	}
}

func (g *Gossip) handleMessage(data []byte, loop *eventloop.Loop, hasher eventloop.Hasher) {
	msgType, sv, err := DecodeMessage(data)
	if err != nil {
		g.metrics.MessagesRejected.WithLabelValues("decode_error").Inc()
		g.logger.Debug("failed to decode message", zap.Error(err))
		return
	}
	if msgType != MsgVote {
		return
	}

	creator := int(sv.Vote.Creator)
	if creator < 0 || creator >= len(g.pubKeys) {
		g.metrics.MessagesRejected.WithLabelValues("unknown_validator").Inc()
		return
	}
	if !ed25519.Verify(g.pubKeys[creator], sv.Vote.SigningPayload(), sv.Signature) {
		g.metrics.MessagesRejected.WithLabelValues("invalid_signature").Inc()
		return
	}

	g.metrics.MessagesReceived.WithLabelValues("vote").Inc()
	h := hasher.Hash(sv)
	if g.archive != nil {
		g.archive.Record(h, sv)
	}
	loop.SubmitRemoteVote(sv, h)
}
