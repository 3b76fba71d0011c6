package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode serializes a message into a single text frame.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// MarshalJSON writes the envelope form {"id"?, "command", "data"?}.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Packet == nil {
		return nil, fmt.Errorf("message has no packet")
	}

	command := m.Packet.Command()
	w := wireMessage{ID: m.ID, Command: &command}

	payload, ok := payloadOf(m.Packet)
	if ok {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", command, err)
		}
		w.Data = data
	}

	return json.Marshal(w)
}

// payloadOf returns the value serialized under "data". Variants whose
// payload is a bare scalar unwrap here.
func payloadOf(p Packet) (any, bool) {
	switch v := p.(type) {
	case New, RoomLeave:
		return nil, false
	case SocialOnline:
		return v.Count, true
	case RoomJoin:
		return v.RoomID, true
	case RoomKick:
		return v.Reason, true
	case RoomBracketSwitch:
		return v.Bracket, true
	case GamePacket:
		return v.Data, len(v.Data) > 0
	case Unrecognized:
		return v.Data, len(v.Data) > 0
	default:
		return v, true
	}
}

// Outbound wraps a packet for sending. Client messages carry no id.
func Outbound(p Packet) Message {
	return Message{Packet: p}
}

// WithID wraps a packet with a server-style id.
func WithID(id uint64, p Packet) Message {
	return Message{ID: &id, Packet: p}
}

// Batch wraps messages into a single Packets message.
func Batch(msgs ...Message) Message {
	return Message{Packet: Packets{Packets: msgs}}
}

// Authorize builds the authorization request for a fresh session.
func Authorize(sig Signature, token string) ServerAuthorize {
	return ServerAuthorize{
		Handling:  DefaultHandling(),
		Signature: sig,
		Token:     token,
	}
}

func Presence(status string) SocialPresence {
	return SocialPresence{Status: status}
}

func DirectMessage(recipient, msg string) SocialDMSend {
	return SocialDMSend{Recipient: recipient, Msg: msg}
}

func Chat(content string) RoomChatSend {
	return RoomChatSend{Content: content}
}
