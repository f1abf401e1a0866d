package ws

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound message types. Anything else is rejected with an ERROR frame.
const (
	typeRegister   = "REGISTER"
	typeUnregister = "UNREGISTER"
	typePing       = "PING"
)

// Outbound message types.
const (
	typeConnectionEstablished = "CONNECTION_ESTABLISHED"
	typeRegistered            = "REGISTERED"
	typeUnregistered          = "UNREGISTERED"
	typePong                  = "PONG"
	typeError                 = "ERROR"
)

type inboundMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// decodeInbound parses a client frame. It fails closed: bad JSON, an unknown
// type, or a REGISTER/UNREGISTER without a userId all return an error the
// caller turns into an ERROR frame.
func decodeInbound(payload []byte) (inboundMessage, error) {
	var msg inboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return inboundMessage{}, fmt.Errorf("malformed message")
	}
	msg.UserID = strings.TrimSpace(msg.UserID)

	switch msg.Type {
	case typeRegister, typeUnregister:
		if msg.UserID == "" {
			return inboundMessage{}, fmt.Errorf("%s requires a userId", msg.Type)
		}
	case typePing:
	default:
		return inboundMessage{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
	return msg, nil
}

type outboundMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func encodeOutbound(msg outboundMessage) []byte {
	payload, err := json.Marshal(msg)
	if err != nil {
		// outboundMessage has no unmarshalable fields.
		panic(err)
	}
	return payload
}

func connectionEstablishedFrame() []byte {
	return encodeOutbound(outboundMessage{
		Type:    typeConnectionEstablished,
		Message: "Connection established",
	})
}

func registeredFrame(rawUserID string) []byte {
	return encodeOutbound(outboundMessage{
		Type:    typeRegistered,
		Message: "Registered for alerts",
		UserID:  rawUserID,
	})
}

func unregisteredFrame(rawUserID string) []byte {
	return encodeOutbound(outboundMessage{
		Type:    typeUnregistered,
		Message: "Unregistered from alerts",
		UserID:  rawUserID,
	})
}

func pongFrame(timestampMs int64) []byte {
	return encodeOutbound(outboundMessage{Type: typePong, Timestamp: timestampMs})
}

func errorFrame(message string) []byte {
	return encodeOutbound(outboundMessage{Type: typeError, Message: message})
}
