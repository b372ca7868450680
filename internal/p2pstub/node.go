// Package p2pstub wires blocks and transactions onto a libp2p-pubsub
// gossip mesh. It is deliberately thin next to a full networking stack:
// two gossip topics, mDNS/seed peer discovery, and a request/response
// protocol for chain height and block-range sync — no DHT, no ban
// scoring, no per-sub-chain topic multiplexing.
package p2pstub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
)

const (
	topicBlocks = "zkchain/blocks/1"
	topicTxs    = "zkchain/txs/1"

	maxGossipMessageBytes = 4 * 1024 * 1024
)

// Config holds node-level gossip settings.
type Config struct {
	ListenAddr string
	Port       int
	Seeds      []string
	MaxPeers   int
	NoDiscover bool
	Rendezvous string // isolates mDNS discovery per network/chain ID
}

// Node is a thin libp2p host running one GossipSub mesh for blocks and
// one for transactions.
type Node struct {
	cfg    Config
	host   host.Host
	pubsub *pubsub.PubSub
	ctx    context.Context
	cancel context.CancelFunc

	topicBlocks *pubsub.Topic
	topicTxs    *pubsub.Topic
	subBlocks   *pubsub.Subscription
	subTxs      *pubsub.Subscription

	blockHandler func(peer.ID, []byte)
	txHandler    func(peer.ID, []byte)

	mu    sync.RWMutex
	peers map[peer.ID]struct{}
}

// New creates a Node that has not yet been started.
func New(cfg Config) *Node {
	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		peers:  make(map[peer.ID]struct{}),
	}
}

// SetBlockHandler sets the callback invoked for every block gossip
// message received from a peer.
func (n *Node) SetBlockHandler(fn func(peer.ID, []byte)) { n.blockHandler = fn }

// SetTxHandler sets the callback invoked for every transaction gossip
// message received from a peer.
func (n *Node) SetTxHandler(fn func(peer.ID, []byte)) { n.txHandler = fn }

// ID returns the node's peer ID.
func (n *Node) ID() peer.ID { return n.host.ID() }

// Start creates the libp2p host, joins both gossip topics, and begins
// peer discovery.
func (n *Node) Start() error {
	addr := fmt.Sprintf("/ip4/%s/tcp/%d", n.cfg.ListenAddr, n.cfg.Port)
	h, err := libp2p.New(libp2p.ListenAddrStrings(addr))
	if err != nil {
		return fmt.Errorf("p2pstub: create libp2p host: %w", err)
	}
	n.host = h
	h.Network().Notify(&connNotifier{node: n})

	ps, err := pubsub.NewGossipSub(n.ctx, h, pubsub.WithMaxMessageSize(maxGossipMessageBytes))
	if err != nil {
		h.Close()
		return fmt.Errorf("p2pstub: create pubsub: %w", err)
	}
	n.pubsub = ps

	if n.topicBlocks, err = ps.Join(topicBlocks); err != nil {
		h.Close()
		return fmt.Errorf("p2pstub: join blocks topic: %w", err)
	}
	if n.subBlocks, err = n.topicBlocks.Subscribe(); err != nil {
		h.Close()
		return fmt.Errorf("p2pstub: subscribe blocks topic: %w", err)
	}
	if n.topicTxs, err = ps.Join(topicTxs); err != nil {
		h.Close()
		return fmt.Errorf("p2pstub: join txs topic: %w", err)
	}
	if n.subTxs, err = n.topicTxs.Subscribe(); err != nil {
		h.Close()
		return fmt.Errorf("p2pstub: subscribe txs topic: %w", err)
	}

	go n.readLoop(n.subBlocks, n.blockHandler)
	go n.readLoop(n.subTxs, n.txHandler)

	n.connectSeeds()
	if !n.cfg.NoDiscover {
		n.startMDNS() // mDNS failure is non-fatal; seeds still work.
	}

	return nil
}

// Stop tears down subscriptions, topics, and the host.
func (n *Node) Stop() error {
	n.cancel()
	if n.subBlocks != nil {
		n.subBlocks.Cancel()
	}
	if n.subTxs != nil {
		n.subTxs.Cancel()
	}
	if n.host != nil {
		return n.host.Close()
	}
	return nil
}

func (n *Node) readLoop(sub *pubsub.Subscription, handler func(peer.ID, []byte)) {
	for {
		msg, err := sub.Next(n.ctx)
		if err != nil {
			return // context cancelled on Stop
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}
		if handler != nil {
			handler(msg.ReceivedFrom, msg.Data)
		}
	}
}

// BroadcastBlock gossips data (an encoded block) to the blocks topic.
func (n *Node) BroadcastBlock(data []byte) error {
	return n.topicBlocks.Publish(n.ctx, data)
}

// BroadcastTx gossips data (an encoded transaction) to the txs topic.
func (n *Node) BroadcastTx(data []byte) error {
	return n.topicTxs.Publish(n.ctx, data)
}

// PeerList returns the peer IDs currently connected.
func (n *Node) PeerList() []peer.ID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]peer.ID, 0, len(n.peers))
	for p := range n.peers {
		out = append(out, p)
	}
	return out
}

func (n *Node) connectSeeds() {
	for _, s := range n.cfg.Seeds {
		addr := s
		go func() {
			ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
			defer cancel()
			if err := connectMultiaddr(ctx, n.host, addr); err != nil {
				return
			}
		}()
	}
}

func (n *Node) startMDNS() {
	rendezvous := n.cfg.Rendezvous
	if rendezvous == "" {
		rendezvous = "zkchain"
	}
	svc := mdns.NewMdnsService(n.host, rendezvous, &mdnsNotifee{host: n.host})
	_ = svc.Start()
}

func (n *Node) addPeer(p peer.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers[p] = struct{}{}
}

func (n *Node) removePeer(p peer.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.peers, p)
}
