package p2pstub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klingnet-chain/zkchain/pkg/block"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

const (
	heightProtocol = protocol.ID("/zkchain/height/1.0.0")
	syncProtocol   = protocol.ID("/zkchain/sync/1.0.0")

	requestReadTimeout   = 5 * time.Second
	responseReadTimeout  = 30 * time.Second
	maxSyncResponseBytes = 16 * 1024 * 1024
)

// HeightResponse carries a peer's chain height and tip hash.
type HeightResponse struct {
	Height  uint64 `json:"height"`
	TipHash string `json:"tip_hash"`
}

// SyncResponse carries a contiguous run of blocks a peer has sent in
// response to a range request.
type SyncResponse struct {
	Blocks []*block.Block `json:"blocks"`
}

// Syncer answers and issues chain-height and block-range requests over
// dedicated libp2p streams, outside the gossip mesh.
type Syncer struct {
	node *Node
}

// NewSyncer returns a Syncer bound to node's host.
func NewSyncer(node *Node) *Syncer { return &Syncer{node: node} }

// RegisterHeightHandler answers height requests with heightFn's result.
func (s *Syncer) RegisterHeightHandler(heightFn func() (uint64, string)) {
	s.node.host.SetStreamHandler(heightProtocol, func(stream network.Stream) {
		defer stream.Close()
		height, tip := heightFn()
		_ = json.NewEncoder(stream).Encode(&HeightResponse{Height: height, TipHash: tip})
	})
}

// RequestHeight queries peerID for its chain height and tip hash.
func (s *Syncer) RequestHeight(ctx context.Context, peerID peer.ID) (*HeightResponse, error) {
	stream, err := s.node.host.NewStream(ctx, peerID, heightProtocol)
	if err != nil {
		return nil, fmt.Errorf("p2pstub: open height stream: %w", err)
	}
	defer stream.Close()
	stream.CloseWrite()
	_ = stream.SetReadDeadline(time.Now().Add(requestReadTimeout))

	var resp HeightResponse
	if err := json.NewDecoder(io.LimitReader(stream, 1024)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("p2pstub: read height response: %w", err)
	}
	return &resp, nil
}

// RegisterBlockRangeHandler answers block-range requests with
// provider's result. The request body is just the from-height and max
// count, encoded as a JSON object {"from_height", "max_blocks"}.
func (s *Syncer) RegisterBlockRangeHandler(provider func(fromHeight uint64, max uint32) []*block.Block) {
	s.node.host.SetStreamHandler(syncProtocol, func(stream network.Stream) {
		defer stream.Close()
		var req struct {
			FromHeight uint64 `json:"from_height"`
			MaxBlocks  uint32 `json:"max_blocks"`
		}
		_ = stream.SetReadDeadline(time.Now().Add(requestReadTimeout))
		if err := json.NewDecoder(io.LimitReader(stream, 256)).Decode(&req); err != nil {
			return
		}
		blocks := provider(req.FromHeight, req.MaxBlocks)
		_ = json.NewEncoder(stream).Encode(&SyncResponse{Blocks: blocks})
	})
}

// RequestBlockRange asks peerID for up to max blocks starting at from.
func (s *Syncer) RequestBlockRange(ctx context.Context, peerID peer.ID, from uint64, max uint32) ([]*block.Block, error) {
	stream, err := s.node.host.NewStream(ctx, peerID, syncProtocol)
	if err != nil {
		return nil, fmt.Errorf("p2pstub: open sync stream: %w", err)
	}
	defer stream.Close()

	req := struct {
		FromHeight uint64 `json:"from_height"`
		MaxBlocks  uint32 `json:"max_blocks"`
	}{FromHeight: from, MaxBlocks: max}
	if err := json.NewEncoder(stream).Encode(&req); err != nil {
		return nil, fmt.Errorf("p2pstub: write sync request: %w", err)
	}
	stream.CloseWrite()
	_ = stream.SetReadDeadline(time.Now().Add(responseReadTimeout))

	var resp SyncResponse
	if err := json.NewDecoder(io.LimitReader(stream, maxSyncResponseBytes)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("p2pstub: read sync response: %w", err)
	}
	return resp.Blocks, nil
}
