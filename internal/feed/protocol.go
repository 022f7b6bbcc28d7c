package feed

import (
	"encoding/json"
	"fmt"
)

// Subprotocols. The zstd variant carries the same JSON, compressed, in
// binary frames.
const (
	ProtocolJSON = "json.feed.v1"
	ProtocolZstd = "zstd.json.feed.v1"
)

// Upstream message types for internal routing
type (
	joinGroupRequest struct {
		group string
		ackID *uint64
	}
	leaveGroupRequest struct {
		group string
		ackID *uint64
	}
	pingRequest struct{}
)

type upstreamMessage struct {
	Type  string  `json:"type"`
	Group string  `json:"group"`
	AckID *uint64 `json:"ackId"`
}

// parseUpstreamMessage parses a JSON-encoded upstream message.
func parseUpstreamMessage(data []byte) (any, error) {
	var msg upstreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal upstream message: %w", err)
	}

	switch msg.Type {
	case "joinGroup":
		return &joinGroupRequest{group: msg.Group, ackID: msg.AckID}, nil
	case "leaveGroup":
		return &leaveGroupRequest{group: msg.Group, ackID: msg.AckID}, nil
	case "ping":
		return &pingRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

// Message is a downstream frame. Only the fields relevant to Type are set.
type Message struct {
	Type         string   `json:"type"`
	Event        string   `json:"event,omitempty"`
	ConnectionID string   `json:"connectionId,omitempty"`
	Groups       []string `json:"groups,omitempty"`
	AckID        *uint64  `json:"ackId,omitempty"`
	Success      *bool    `json:"success,omitempty"`
	Group        string   `json:"group,omitempty"`
	Data         any      `json:"data,omitempty"`
}

func buildConnectedMessage(connectionID string, groups []string) Message {
	return Message{Type: "system", Event: "connected", ConnectionID: connectionID, Groups: groups}
}

func buildAckMessage(ackID uint64, success bool) Message {
	return Message{Type: "ack", AckID: &ackID, Success: &success}
}

func buildDataMessage(group string, data any) Message {
	return Message{Type: "message", Group: group, Data: data}
}

func buildPongMessage() Message {
	return Message{Type: "pong"}
}

func mustMarshal(m Message) []byte {
	data, _ := json.Marshal(m)
	return data
}
