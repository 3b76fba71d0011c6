// Package protocol implements the Ribbon wire format: a JSON envelope
// carrying a command tag, an optional server-assigned id, and a payload
// whose shape depends on the tag. Batches nest further envelopes.
package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/buger/jsonparser"
)

// Command tags understood by the codec.
const (
	CmdNew     = "new"
	CmdPackets = "packets"
	CmdSession = "session"
	CmdPing    = "ping"
	CmdKick    = "kick"
	CmdNope    = "nope"

	CmdServerAuthorize = "server.authorize"
	CmdServerMigrate   = "server.migrate"
	CmdServerMigrated  = "server.migrated"

	CmdSocialOnline       = "social.online"
	CmdSocialPresence     = "social.presence"
	CmdSocialDM           = "social.dm"
	CmdSocialInvite       = "social.invite"
	CmdSocialNotification = "social.notification"

	CmdRoomJoin          = "room.join"
	CmdRoomLeave         = "room.leave"
	CmdRoomKick          = "room.kick"
	CmdRoomUpdate        = "room.update"
	CmdRoomChat          = "room.chat"
	CmdRoomChatSend      = "room.chat.send"
	CmdRoomBracketSwitch = "room.bracket.switch"
)

// gameCommands are game lifecycle tags. Their payloads are kept opaque.
var gameCommands = map[string]bool{
	"game.ready":        true,
	"game.start":        true,
	"game.advance":      true,
	"game.score":        true,
	"game.end":          true,
	"game.abort":        true,
	"game.match":        true,
	"game.spectate":     true,
	"game.replay":       true,
	"game.replay.state": true,
	"game.replay.board": true,
}

// IsGameCommand reports whether tag belongs to the game lifecycle family.
func IsGameCommand(tag string) bool {
	return gameCommands[tag]
}

// Packet is a single Ribbon packet. The set of implementations is closed;
// tags the codec does not know decode to Unrecognized.
type Packet interface {
	Command() string
	isPacket()
}

// Bracket values for RoomBracketSwitch.
const (
	BracketPlayer    = "player"
	BracketSpectator = "spectator"
)

// User identifies an account as it appears in chat and bootstrap payloads.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
}

// InitialAction is the initial hold/rotate behaviour in a Handling profile.
type InitialAction string

const (
	InitialTap  InitialAction = "tap"
	InitialHold InitialAction = "hold"
	InitialOff  InitialAction = "off"
)

// Handling is the input timing profile presented during authorization.
type Handling struct {
	ARR      int           `json:"arr"`
	DAS      int           `json:"das"`
	DCD      int           `json:"dcd"`
	SDF      int           `json:"sdf"`
	SafeLock bool          `json:"safelock"`
	Cancel   bool          `json:"cancel"`
	May20G   bool          `json:"may20g"`
	IHS      InitialAction `json:"ihs"`
	IRS      InitialAction `json:"irs"`
}

// DefaultHandling returns the fixed profile every session authorizes with.
func DefaultHandling() Handling {
	return Handling{
		ARR:      2,
		DAS:      10,
		DCD:      0,
		SDF:      6,
		SafeLock: true,
		Cancel:   false,
		May20G:   true,
		IHS:      InitialTap,
		IRS:      InitialTap,
	}
}

// Signature is the server environment blob. It is carried verbatim and
// never modified; accessors only read from it.
type Signature struct {
	raw json.RawMessage
}

// NewSignature wraps a copy of raw.
func NewSignature(raw []byte) Signature {
	return Signature{raw: append(json.RawMessage(nil), raw...)}
}

// Raw returns the original bytes.
func (s Signature) Raw() json.RawMessage {
	return s.raw
}

// IsZero reports whether no signature has been set.
func (s Signature) IsZero() bool {
	return len(s.raw) == 0
}

// Version returns the "version" field, or "" if absent.
func (s Signature) Version() string {
	v, err := jsonparser.GetString(s.raw, "version")
	if err != nil {
		return ""
	}
	return v
}

// MarshalJSON emits the blob unchanged.
func (s Signature) MarshalJSON() ([]byte, error) {
	if len(s.raw) == 0 {
		return []byte("null"), nil
	}
	return s.raw, nil
}

// UnmarshalJSON stores a copy of b. A JSON null leaves the signature unset.
func (s *Signature) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		s.raw = nil
		return nil
	}
	s.raw = append(json.RawMessage(nil), b...)
	return nil
}

// Connection control

type New struct{}

// Packets is a batch. Children are processed in order as if they had
// arrived individually.
type Packets struct {
	Packets []Message `json:"packets"`
}

type Session struct {
	RibbonID string `json:"ribbonid"`
	TokenID  string `json:"tokenid"`
}

// Ping carries the highest message id the client has admitted.
type Ping struct {
	RecvID uint64 `json:"recvid"`
}

type Kick struct {
	Reason string `json:"reason"`
}

type Nope struct {
	Reason string `json:"reason"`
}

// Server

// ServerAuthorize is sent by the client once a session exists.
type ServerAuthorize struct {
	Handling  Handling  `json:"handling"`
	Signature Signature `json:"signature"`
	Token     string    `json:"token"`
}

type ServerWorker struct {
	Name string `json:"name"`
	Flag string `json:"flag"`
}

// ServerAuthorizeAck is the server's answer to ServerAuthorize.
type ServerAuthorizeAck struct {
	Success     bool          `json:"success"`
	Maintenance bool          `json:"maintenance"`
	Worker      *ServerWorker `json:"worker,omitempty"`
}

type ServerMigrate struct {
	Endpoint string `json:"endpoint"`
	Name     string `json:"name,omitempty"`
	Flag     string `json:"flag,omitempty"`
}

type ServerMigrated struct{}

// Social

type SocialOnline struct {
	Count int
}

type SocialPresence struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

type DMData struct {
	Content string `json:"content"`
	User    string `json:"user"`
	System  bool   `json:"system"`
}

// SocialDM is an inbound direct message.
type SocialDM struct {
	ID     string `json:"id"`
	Stream string `json:"stream"`
	Data   DMData `json:"data"`
	TS     string `json:"ts"`
}

// Sender returns the id of the account that wrote the message.
func (d SocialDM) Sender() string {
	return d.Data.User
}

// SocialDMSend is an outbound direct message.
type SocialDMSend struct {
	Recipient string `json:"recipient"`
	Msg       string `json:"msg"`
}

type SocialInvite struct {
	Sender   string `json:"sender"`
	RoomID   string `json:"roomid"`
	RoomName string `json:"roomname"`
}

// NotificationFriend is the notification type raised by a friend request.
const NotificationFriend = "friend"

type SocialNotification struct {
	ID   string          `json:"_id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	Seen bool            `json:"seen"`
	TS   string          `json:"ts,omitempty"`
}

// FriendRequester returns the id of the account that friended us.
func (n SocialNotification) FriendRequester() (string, bool) {
	if n.Type != NotificationFriend {
		return "", false
	}
	id, err := jsonparser.GetString(n.Data, "relationship", "from", "_id")
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

// Room

type RoomJoin struct {
	RoomID string
}

type RoomLeave struct{}

type RoomKick struct {
	Reason string
}

type RoomOptions struct {
	BoardWidth      int     `json:"boardwidth"`
	Gravity         float64 `json:"g"`
	GravityIncrease float64 `json:"gincrease"`
}

type RoomUpdate struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Options RoomOptions `json:"options"`
}

type RoomChat struct {
	Content string `json:"content"`
	User    User   `json:"user"`
	System  bool   `json:"system"`
}

type RoomChatSend struct {
	Content string `json:"content"`
	Pinned  bool   `json:"pinned"`
}

type RoomBracketSwitch struct {
	Bracket string
}

// GamePacket is a game lifecycle packet whose payload is not interpreted.
type GamePacket struct {
	Tag  string
	Data json.RawMessage
}

// Unrecognized carries a packet whose tag is not known.
type Unrecognized struct {
	Tag  string
	Data json.RawMessage
}

func (New) Command() string                { return CmdNew }
func (Packets) Command() string            { return CmdPackets }
func (Session) Command() string            { return CmdSession }
func (Ping) Command() string               { return CmdPing }
func (Kick) Command() string               { return CmdKick }
func (Nope) Command() string               { return CmdNope }
func (ServerAuthorize) Command() string    { return CmdServerAuthorize }
func (ServerAuthorizeAck) Command() string { return CmdServerAuthorize }
func (ServerMigrate) Command() string      { return CmdServerMigrate }
func (ServerMigrated) Command() string     { return CmdServerMigrated }
func (SocialOnline) Command() string       { return CmdSocialOnline }
func (SocialPresence) Command() string     { return CmdSocialPresence }
func (SocialDM) Command() string           { return CmdSocialDM }
func (SocialDMSend) Command() string       { return CmdSocialDM }
func (SocialInvite) Command() string       { return CmdSocialInvite }
func (SocialNotification) Command() string { return CmdSocialNotification }
func (RoomJoin) Command() string           { return CmdRoomJoin }
func (RoomLeave) Command() string          { return CmdRoomLeave }
func (RoomKick) Command() string           { return CmdRoomKick }
func (RoomUpdate) Command() string         { return CmdRoomUpdate }
func (RoomChat) Command() string           { return CmdRoomChat }
func (RoomChatSend) Command() string       { return CmdRoomChatSend }
func (RoomBracketSwitch) Command() string  { return CmdRoomBracketSwitch }
func (p GamePacket) Command() string       { return p.Tag }
func (p Unrecognized) Command() string     { return p.Tag }

func (New) isPacket()                {}
func (Packets) isPacket()            {}
func (Session) isPacket()            {}
func (Ping) isPacket()               {}
func (Kick) isPacket()               {}
func (Nope) isPacket()               {}
func (ServerAuthorize) isPacket()    {}
func (ServerAuthorizeAck) isPacket() {}
func (ServerMigrate) isPacket()      {}
func (ServerMigrated) isPacket()     {}
func (SocialOnline) isPacket()       {}
func (SocialPresence) isPacket()     {}
func (SocialDM) isPacket()           {}
func (SocialDMSend) isPacket()       {}
func (SocialInvite) isPacket()       {}
func (SocialNotification) isPacket() {}
func (RoomJoin) isPacket()           {}
func (RoomLeave) isPacket()          {}
func (RoomKick) isPacket()           {}
func (RoomUpdate) isPacket()         {}
func (RoomChat) isPacket()           {}
func (RoomChatSend) isPacket()       {}
func (RoomBracketSwitch) isPacket()  {}
func (GamePacket) isPacket()         {}
func (Unrecognized) isPacket()       {}
