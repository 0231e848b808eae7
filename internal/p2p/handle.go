package p2p

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goatnetwork/goat-escrow/internal/metrics"
	"github.com/goatnetwork/goat-escrow/internal/state"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	log "github.com/sirupsen/logrus"
)

const dataTypeEscrowEvent = "EscrowEvent"

func handleHandshake(s network.Stream, node host.Host) {
	buf := make([]byte, 1024)
	n, err := s.Read(buf)
	if err != nil {
		log.Errorf("Error reading handshake message: %v", err)
		return
	}

	handshakeMsg := buf[:n]
	if !bytes.Equal(handshakeMsg, []byte(expectedHandshake)) {
		log.Warn("Invalid handshake message received, closing connection")
		s.Reset()
		node.Network().ClosePeer(s.Conn().RemotePeer())
		return
	}

	if _, err = s.Write(handshakeMsg); err != nil {
		log.Errorf("Error writing handshake response: %v", err)
		return
	}
	log.Debugf("Handshake successful with %s", s.Conn().RemotePeer())
}

func eventMessage(ev state.Event) Message[state.Event] {
	return Message[state.Event]{
		MessageType: MessageTypeEscrowEvent,
		RequestId:   ev.ID,
		DataType:    dataTypeEscrowEvent,
		Data:        ev,
	}
}

func (lp *LibP2PService) PublishMessage(ctx context.Context, msg any) error {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if lp.topic == nil {
		return fmt.Errorf("event topic is nil")
	}
	return lp.topic.Publish(ctx, msgBytes)
}

// broadcastEvents drains the event bus subscription onto the gossip topic.
func (lp *LibP2PService) broadcastEvents(ctx context.Context, node host.Host) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-lp.events:
			ev, ok := raw.(state.Event)
			if !ok {
				continue
			}
			if err := lp.PublishMessage(ctx, eventMessage(ev)); err != nil {
				lp.logger.Errorf("Failed to publish event %s: %v", ev.Name, err)
				continue
			}
			metrics.EventsPublished.WithLabelValues(ev.Name, "p2p").Inc()
			lp.logger.Debugf("Gossiped event %s (%s) to %d peers", ev.Name, ev.ID, len(node.Network().Peers()))
		}
	}
}

func (lp *LibP2PService) handlePubSubMessages(ctx context.Context, sub *pubsub.Subscription, node host.Host) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				lp.logger.Info("Context cancelled, exiting handlePubSubMessages")
				return
			}
			lp.logger.Errorf("Error reading message from pubsub: %v", err)
			continue
		}
		if msg.ReceivedFrom == node.ID() {
			continue
		}

		ev, err := decodeEvent(msg.Data)
		if err != nil {
			lp.logger.Warnf("Dropping message from %s: %v", msg.ReceivedFrom, err)
			continue
		}
		metrics.EventsReceived.WithLabelValues(ev.Name).Inc()
		lp.logger.Debugf("Received event %s (%s) from %s", ev.Name, ev.ID, msg.ReceivedFrom)
	}
}

func decodeEvent(data []byte) (EscrowEvent, error) {
	var rawMsg Message[json.RawMessage]
	if err := json.Unmarshal(data, &rawMsg); err != nil {
		return EscrowEvent{}, err
	}
	if rawMsg.MessageType != MessageTypeEscrowEvent || rawMsg.DataType != dataTypeEscrowEvent {
		return EscrowEvent{}, fmt.Errorf("unexpected message type %d/%s", rawMsg.MessageType, rawMsg.DataType)
	}
	var ev EscrowEvent
	if err := json.Unmarshal(rawMsg.Data, &ev); err != nil {
		return EscrowEvent{}, err
	}
	return ev, nil
}

func (lp *LibP2PService) handleHeartbeatMessages(ctx context.Context, sub *pubsub.Subscription, node host.Host) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			lp.logger.Errorf("Error reading heartbeat message from pubsub: %v", err)
			continue
		}
		if msg.ReceivedFrom == node.ID() {
			continue
		}

		var hbMsg Message[HeartbeatMessage]
		if err := json.Unmarshal(msg.Data, &hbMsg); err != nil {
			lp.logger.Errorf("Error unmarshaling heartbeat message: %v", err)
			continue
		}
		lp.logger.Debugf("Received heartbeat from %d-%s: %s", hbMsg.Data.Timestamp, hbMsg.Data.PeerID, hbMsg.Data.Message)
	}
}

func startHeartbeat(ctx context.Context, node host.Host, topic *pubsub.Topic) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hbMsg := Message[HeartbeatMessage]{
				MessageType: MessageTypeHeartbeat,
				DataType:    "HeartbeatMessage",
				Data: HeartbeatMessage{
					PeerID:    node.ID().String(),
					Message:   "heartbeat",
					Timestamp: time.Now().Unix(),
				},
			}
			msgBytes, err := json.Marshal(hbMsg)
			if err != nil {
				log.Errorf("Failed to marshal heartbeat message: %v", err)
				continue
			}
			if err := topic.Publish(ctx, msgBytes); err != nil {
				log.Errorf("Failed to publish heartbeat message: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
