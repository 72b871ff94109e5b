package p2p

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/casper-network/highway/internal/highway/model"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"go.uber.org/zap"
)

// VoteSyncProtocol is the libp2p stream protocol a catching-up node uses
// to request individual votes and a peer's current head panorama.
// Unlike the votes topic, which is fan-out gossip, this is a direct
// request/response exchange with one peer.
const VoteSyncProtocol = protocol.ID("/highway/votesync/1.0.0")

const (
	reqKindVote byte = 1
	reqKindHead byte = 2
)

// VoteArchive retains every vote a node has gossiped or admitted, keyed by
// hash, so it can serve catch-up requests from lagging peers. State's own
// vote store (internal/highway/state) intentionally drops a vote's
// signature once admitted — the scheduler never re-verifies a vote it
// already trusts — so the archive is the one place a signed copy survives
// for other nodes to fetch.
type VoteArchive struct {
	mu    sync.RWMutex
	votes map[model.VoteHash]model.SignedWireVote
}

// NewVoteArchive creates an empty archive.
func NewVoteArchive() *VoteArchive {
	return &VoteArchive{votes: make(map[model.VoteHash]model.SignedWireVote)}
}

// Record stores sv under h, overwriting nothing (a hash is immutable once
// produced).
func (a *VoteArchive) Record(h model.VoteHash, sv model.SignedWireVote) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.votes[h]; ok {
		return
	}
	a.votes[h] = sv
}

// Get returns the archived vote for h, if any.
func (a *VoteArchive) Get(h model.VoteHash) (model.SignedWireVote, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	sv, ok := a.votes[h]
	return sv, ok
}

// HeadPanoramaFunc returns the panorama a VoteSync server advertises to
// peers requesting its head.
type HeadPanoramaFunc func() model.Panorama

// VoteSync serves and issues vote-catch-up requests over direct libp2p
// streams.
type VoteSync struct {
	host    *Host
	archive *VoteArchive
	head    HeadPanoramaFunc
	logger  *zap.Logger
}

// NewVoteSync registers a stream handler on host answering vote and
// head-panorama requests out of archive.
func NewVoteSync(h *Host, archive *VoteArchive, head HeadPanoramaFunc, logger *zap.Logger) *VoteSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	vs := &VoteSync{host: h, archive: archive, head: head, logger: logger}
	h.LibP2PHost().SetStreamHandler(VoteSyncProtocol, vs.handleStream)
	return vs
}

func (vs *VoteSync) handleStream(s network.Stream) {
	defer s.Close()

	r := bufio.NewReader(s)
	kind, err := r.ReadByte()
	if err != nil {
		return
	}

	switch kind {
	case reqKindVote:
		var hashBuf [32]byte
		if _, err := readFull(r, hashBuf[:]); err != nil {
			return
		}
		sv, ok := vs.archive.Get(model.VoteHash(hashBuf))
		if !ok {
			writeFrame(s, nil)
			return
		}
		payload, err := EncodeVote(sv)
		if err != nil {
			vs.logger.Warn("votesync: encode vote for peer request", zap.Error(err))
			writeFrame(s, nil)
			return
		}
		writeFrame(s, payload)

	case reqKindHead:
		if vs.head == nil {
			writeFrame(s, nil)
			return
		}
		payload := EncodePanorama(vs.head())
		writeFrame(s, payload)

	default:
		vs.logger.Debug("votesync: unknown request kind", zap.Uint8("kind", kind))
	}
}

// FetchVote requests a single vote from target over a direct stream.
func (vs *VoteSync) FetchVote(ctx context.Context, target peer.ID, h model.VoteHash) (model.SignedWireVote, error) {
	resp, err := vs.request(ctx, target, reqKindVote, h[:])
	if err != nil {
		return model.SignedWireVote{}, err
	}
	if len(resp) == 0 {
		return model.SignedWireVote{}, fmt.Errorf("p2p: peer %s does not have vote %s", target, h)
	}
	_, sv, err := DecodeMessage(resp)
	return sv, err
}

// FetchHeadPanorama requests target's current head panorama over a
// direct stream.
func (vs *VoteSync) FetchHeadPanorama(ctx context.Context, target peer.ID) (model.Panorama, error) {
	resp, err := vs.request(ctx, target, reqKindHead, nil)
	if err != nil {
		return nil, err
	}
	return DecodePanorama(resp)
}

func (vs *VoteSync) request(ctx context.Context, target peer.ID, kind byte, arg []byte) ([]byte, error) {
	if target == "" {
		return nil, errors.New("p2p: no peer available for catch-up request")
	}

	s, err := vs.host.LibP2PHost().NewStream(ctx, target, VoteSyncProtocol)
	if err != nil {
		return nil, fmt.Errorf("p2p: open votesync stream: %w", err)
	}
	defer s.Close()

	req := append([]byte{kind}, arg...)
	if _, err := s.Write(req); err != nil {
		return nil, fmt.Errorf("p2p: write votesync request: %w", err)
	}

	return readFrame(bufio.NewReader(s))
}

func writeFrame(s network.Stream, payload []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	s.Write(lenBuf[:])
	if len(payload) > 0 {
		s.Write(payload)
	}
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := readFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, nil
	}
	if n > MaxMessageSize {
		return nil, fmt.Errorf("p2p: votesync response too large: %d", n)
	}
	buf := make([]byte, n)
	if _, err := readFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// CatchupProvider adapts VoteSync into internal/sync.VoteProvider by
// picking a connected peer for each request — sync.Fetcher itself is
// peer-agnostic, it just needs somewhere to ask.
type CatchupProvider struct {
	vs      *VoteSync
	peerMgr *PeerManager
}

// NewCatchupProvider builds a sync.VoteProvider-shaped adapter over vs.
func NewCatchupProvider(vs *VoteSync, peerMgr *PeerManager) *CatchupProvider {
	return &CatchupProvider{vs: vs, peerMgr: peerMgr}
}

func (p *CatchupProvider) pickPeer() (peer.ID, error) {
	peers := p.peerMgr.ConnectedPeers()
	if len(peers) == 0 {
		return "", errors.New("p2p: no connected peers to catch up from")
	}
	return peers[0], nil
}

// FetchVote implements internal/sync.VoteProvider.
func (p *CatchupProvider) FetchVote(ctx context.Context, h model.VoteHash) (model.SignedWireVote, error) {
	target, err := p.pickPeer()
	if err != nil {
		return model.SignedWireVote{}, err
	}
	return p.vs.FetchVote(ctx, target, h)
}

// FetchHeadPanorama implements internal/sync.VoteProvider.
func (p *CatchupProvider) FetchHeadPanorama(ctx context.Context) (model.Panorama, error) {
	target, err := p.pickPeer()
	if err != nil {
		return nil, err
	}
	return p.vs.FetchHeadPanorama(ctx, target)
}

// EncodePanorama serializes a panorama as [count(4) [idx(4) kind(1) hash(32)]...],
// the same entry layout EncodeVote uses for a vote's own panorama field.
func EncodePanorama(p model.Panorama) []byte {
	indices := make([]model.ValidatorIndex, 0, len(p))
	for idx := range p {
		indices = append(indices, idx)
	}

	buf := make([]byte, 0, 4+len(indices)*37)
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(indices)))
	buf = append(buf, tmp[:]...)
	for _, idx := range indices {
		obs := p[idx]
		binary.LittleEndian.PutUint32(tmp[:], uint32(idx))
		buf = append(buf, tmp[:]...)
		buf = append(buf, byte(obs.Kind))
		buf = append(buf, obs.Hash[:]...)
	}
	return buf
}

// DecodePanorama parses the wire format EncodePanorama produces.
func DecodePanorama(data []byte) (model.Panorama, error) {
	if len(data) < 4 {
		return nil, errors.New("p2p: panorama payload too small")
	}
	count := int(binary.LittleEndian.Uint32(data[:4]))
	off := 4

	p := make(model.Panorama, count)
	for range count {
		if len(data) < off+4+1+32 {
			return nil, errors.New("p2p: panorama payload truncated")
		}
		idx := model.ValidatorIndex(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
		kind := model.ObservationKind(data[off])
		off++
		var h model.VoteHash
		copy(h[:], data[off:off+32])
		off += 32
		p[idx] = model.Observation{Kind: kind, Hash: h}
	}
	return p, nil
}
