package p2p

import "encoding/json"

// Message is the gossip envelope. Data is decoded lazily by the receiver
// according to DataType.
type Message[T any] struct {
	MessageType MessageType `json:"msg_type"`
	RequestId   string      `json:"request_id"`
	DataType    string      `json:"data_type"`
	Data        T           `json:"data"`
}

type HeartbeatMessage struct {
	PeerID    string `json:"peer_id"`
	Message   string `json:"message"`
	Timestamp int64  `json:"ts"`
}

// EscrowEvent is the receiving side of a gossiped state.Event; the payload
// stays raw because peers only index it.
type EscrowEvent struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Timestamp uint64          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type MessageType int

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeEscrowEvent
	MessageTypeHeartbeat
)
