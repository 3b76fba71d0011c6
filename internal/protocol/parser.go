package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
)

// ErrMalformed is returned for frames that are not valid JSON, lack a
// command tag, or carry a payload that does not fit a known tag.
var ErrMalformed = errors.New("malformed message")

// Message is one envelope on the wire.
// ID is assigned by the server on inbound messages and is nil otherwise.
type Message struct {
	ID     *uint64
	Packet Packet
}

// Command returns the tag of the wrapped packet.
func (m Message) Command() string {
	if m.Packet == nil {
		return ""
	}
	return m.Packet.Command()
}

// wireMessage is the JSON shape of a Message.
type wireMessage struct {
	ID      *uint64         `json:"id,omitempty"`
	Command *string         `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Decode parses a single text frame.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		if errors.Is(err, ErrMalformed) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return m, nil
}

// UnmarshalJSON decodes an envelope, recursing into batches.
func (m *Message) UnmarshalJSON(b []byte) error {
	var w wireMessage
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if w.Command == nil || *w.Command == "" {
		return fmt.Errorf("%w: missing command", ErrMalformed)
	}

	pkt, err := decodePayload(*w.Command, w.Data)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformed, *w.Command, err)
	}

	m.ID = w.ID
	m.Packet = pkt
	return nil
}

// decodePayload maps a tag and its raw payload onto a Packet variant.
func decodePayload(command string, data json.RawMessage) (Packet, error) {
	switch command {
	case CmdNew:
		return New{}, nil
	case CmdPackets:
		var p Packets
		return p, into(data, &p)
	case CmdSession:
		var p Session
		return p, into(data, &p)
	case CmdPing:
		var p Ping
		if len(data) == 0 {
			return p, nil
		}
		return p, into(data, &p)
	case CmdKick:
		var p Kick
		return p, into(data, &p)
	case CmdNope:
		var p Nope
		return p, into(data, &p)

	case CmdServerAuthorize:
		// Requests carry the token; acks never do.
		if _, _, _, err := jsonparser.Get(data, "token"); err == nil {
			var p ServerAuthorize
			return p, into(data, &p)
		}
		var p ServerAuthorizeAck
		return p, into(data, &p)
	case CmdServerMigrate:
		var p ServerMigrate
		return p, into(data, &p)
	case CmdServerMigrated:
		return ServerMigrated{}, nil

	case CmdSocialOnline:
		var p SocialOnline
		return p, into(data, &p.Count)
	case CmdSocialPresence:
		var p SocialPresence
		return p, into(data, &p)
	case CmdSocialDM:
		if _, _, _, err := jsonparser.Get(data, "recipient"); err == nil {
			var p SocialDMSend
			return p, into(data, &p)
		}
		var p SocialDM
		return p, into(data, &p)
	case CmdSocialInvite:
		var p SocialInvite
		return p, into(data, &p)
	case CmdSocialNotification:
		var p SocialNotification
		return p, into(data, &p)

	case CmdRoomJoin:
		var p RoomJoin
		return p, into(data, &p.RoomID)
	case CmdRoomLeave:
		return RoomLeave{}, nil
	case CmdRoomKick:
		var p RoomKick
		if len(data) == 0 {
			return p, nil
		}
		return p, into(data, &p.Reason)
	case CmdRoomUpdate:
		var p RoomUpdate
		return p, into(data, &p)
	case CmdRoomChat:
		var p RoomChat
		return p, into(data, &p)
	case CmdRoomChatSend:
		var p RoomChatSend
		return p, into(data, &p)
	case CmdRoomBracketSwitch:
		var p RoomBracketSwitch
		return p, into(data, &p.Bracket)
	}

	if IsGameCommand(command) {
		return GamePacket{Tag: command, Data: cloneRaw(data)}, nil
	}
	return Unrecognized{Tag: command, Data: cloneRaw(data)}, nil
}

// into unmarshals a required payload.
func into(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(data, v)
}

func cloneRaw(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), data...)
}

// Flatten expands batches depth-first, preserving order. A non-batch
// message is returned as a single-element slice.
func Flatten(m Message) []Message {
	batch, ok := m.Packet.(Packets)
	if !ok {
		return []Message{m}
	}
	out := make([]Message, 0, len(batch.Packets))
	for _, child := range batch.Packets {
		out = append(out, Flatten(child)...)
	}
	return out
}
