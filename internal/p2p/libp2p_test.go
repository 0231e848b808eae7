package p2p

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goatnetwork/goat-escrow/internal/config"
	"github.com/goatnetwork/goat-escrow/internal/state"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/protocol"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNode(t *testing.T, ctx context.Context) (host.Host, *pubsub.PubSub) {
	t.Helper()
	config.AppConfig.Libp2pPort = 0
	config.AppConfig.DbDir = t.TempDir()
	node, ps, err := createNodeWithPubSub(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { node.Close() })
	return node, ps
}

func fullAddr(node host.Host) string {
	return fmt.Sprintf("%s/p2p/%s", node.Addrs()[0], node.ID())
}

func TestPrivateKeyIsPersisted(t *testing.T) {
	config.AppConfig.DbDir = t.TempDir()
	first, err := loadOrCreatePrivateKey(privKeyFile)
	require.NoError(t, err)
	second, err := loadOrCreatePrivateKey(privKeyFile)
	require.NoError(t, err)
	assert.True(t, first.Equals(second))
}

func TestBootNodeHandshake(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	boot, _ := newTestNode(t, ctx)
	done := make(chan struct{})
	boot.SetStreamHandler(protocol.ID(handshakeProtocol), func(s network.Stream) {
		handleHandshake(s, boot)
		s.Close()
		close(done)
	})

	node, _ := newTestNode(t, ctx)
	connectToBootNode(ctx, node, fullAddr(boot))

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("handshake not received")
	}
	assert.Equal(t, network.Connected, node.Network().Connectedness(boot.ID()))
}

func TestEventsAreGossiped(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	peerNode, peerPS := newTestNode(t, ctx)
	peerTopic, err := peerPS.Join(eventTopicName)
	require.NoError(t, err)
	sub, err := peerTopic.Subscribe()
	require.NoError(t, err)

	node, ps := newTestNode(t, ctx)
	st := &state.State{EventBus: state.NewEventBus()}
	lp := NewLibP2PService(st)
	lp.topic, err = ps.Join(eventTopicName)
	require.NoError(t, err)
	connectToBootNode(ctx, node, fullAddr(peerNode))
	go lp.broadcastEvents(ctx, node)

	// wait until the peer's subscription is known before publishing
	require.Eventually(t, func() bool {
		return len(lp.topic.ListPeers()) > 0
	}, 10*time.Second, 50*time.Millisecond)

	ev := state.NewEvent(state.ContractPaused, 1_700_000_000, state.PauseData{Reason: "incident"})
	st.PublishEvents([]state.Event{ev})

	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	got, err := decodeEvent(msg.Data)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, "pause", got.Name)
}
