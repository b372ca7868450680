package p2pstub

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

const mdnsConnectTimeout = 5 * time.Second

// connNotifier tracks connection lifecycle events so Node.peers reflects
// the live connection set.
type connNotifier struct {
	node *Node
}

func (cn *connNotifier) Connected(_ network.Network, conn network.Conn) {
	remote := conn.RemotePeer()
	if remote == cn.node.host.ID() {
		return
	}
	cn.node.addPeer(remote)
}

func (cn *connNotifier) Disconnected(net network.Network, conn network.Conn) {
	remote := conn.RemotePeer()
	if len(net.ConnsToPeer(remote)) == 0 {
		cn.node.removePeer(remote)
	}
}

func (cn *connNotifier) Listen(network.Network, multiaddr.Multiaddr)      {}
func (cn *connNotifier) ListenClose(network.Network, multiaddr.Multiaddr) {}

// mdnsNotifee connects to peers discovered on the local network.
type mdnsNotifee struct {
	host host.Host
}

func (m *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == m.host.ID() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mdnsConnectTimeout)
	defer cancel()
	_ = m.host.Connect(ctx, pi)
}

// connectMultiaddr parses a multiaddr string and connects the host to it.
func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	maddr, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("parse seed multiaddr %q: %w", addr, err)
	}
	pi, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("resolve seed peer info %q: %w", addr, err)
	}
	return h.Connect(ctx, *pi)
}
