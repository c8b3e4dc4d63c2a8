package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Decode failure classes. The transport maps these onto in-band error frames
// (BAD_MESSAGE and UNSUPPORTED respectively).
var (
	ErrBadMessage  = errors.New("bad message")
	ErrUnsupported = errors.New("unsupported message type")
)

// Decode parses one client text frame and validates the fields the message
// type requires. The opaque signaling payload is kept as raw JSON.
func Decode(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}

	switch msg.Type {
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrBadMessage)

	case TypeHeartbeatPing:
		// ts is echoed back as-is; absent is tolerated.

	case TypeDiscoveryClaim, TypeDiscoveryResolve:
		if msg.Name == "" {
			return nil, fmt.Errorf("%w: %s requires name", ErrBadMessage, msg.Type)
		}

	case TypeSignalSend:
		if msg.ToPeerID == "" {
			return nil, fmt.Errorf("%w: signal.send requires toPeerId", ErrBadMessage)
		}
		if !isJSONObject(msg.Payload) {
			return nil, fmt.Errorf("%w: signal.send payload must be an object", ErrBadMessage)
		}

	case TypeSignalAck:
		if msg.DeliveryID == "" || msg.ToPeerID == "" {
			return nil, fmt.Errorf("%w: signal.ack requires deliveryId and toPeerId", ErrBadMessage)
		}

	default:
		return &msg, fmt.Errorf("%w: %q", ErrUnsupported, msg.Type)
	}

	return &msg, nil
}

// Encode marshals a server frame. Frames are plain structs, so a failure here
// means a programming error; callers log and drop.
func Encode(frame any) ([]byte, error) {
	return json.Marshal(frame)
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}
