package ribbon

import (
	"fmt"

	"github.com/lfbot-project/lfbot/internal/protocol"
)

// Phase is the progress of the session handshake.
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseAwaitingSession
	PhaseSessionEstablished
	PhaseAuthorizationSent
	PhaseAuthorized
	PhaseMigrating
	PhaseClosed
)

var phaseStrings = map[Phase]string{
	PhaseUnauthenticated:    "unauthenticated",
	PhaseAwaitingSession:    "awaiting_session",
	PhaseSessionEstablished: "session_established",
	PhaseAuthorizationSent:  "authorization_sent",
	PhaseAuthorized:         "authorized",
	PhaseMigrating:          "migrating",
	PhaseClosed:             "closed",
}

func (p Phase) String() string {
	if s, ok := phaseStrings[p]; ok {
		return s
	}
	return "unknown"
}

// MarshalJSON serializes Phase as its string form.
func (p Phase) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// ConnState is the lifecycle of the physical socket.
type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnOpen
	ConnClosing
)

var connStateStrings = map[ConnState]string{
	ConnDisconnected: "disconnected",
	ConnConnecting:   "connecting",
	ConnOpen:         "open",
	ConnClosing:      "closing",
}

func (s ConnState) String() string {
	if str, ok := connStateStrings[s]; ok {
		return str
	}
	return "unknown"
}

// MarshalJSON serializes ConnState as its string form.
func (s ConnState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Room is the projection of the last room.update we saw.
type Room struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	BoardWidth      int     `json:"board_width"`
	Gravity         float64 `json:"gravity"`
	GravityIncrease float64 `json:"gravity_increase"`
}

func roomFromUpdate(u protocol.RoomUpdate) *Room {
	return &Room{
		ID:              u.ID,
		Name:            u.Name,
		BoardWidth:      u.Options.BoardWidth,
		Gravity:         u.Options.Gravity,
		GravityIncrease: u.Options.GravityIncrease,
	}
}

// Required room settings for the bot to play.
const (
	RequiredBoardWidth      = 4
	RequiredGravity         = 0
	RequiredGravityIncrease = 0
)

// Violation returns the first setting that prevents the bot from playing,
// formatted as the fix the host should apply, or "" if none.
func (r *Room) Violation() string {
	switch {
	case r.BoardWidth != RequiredBoardWidth:
		return fmt.Sprintf("options.boardwidth=%d", RequiredBoardWidth)
	case r.Gravity != RequiredGravity:
		return fmt.Sprintf("options.g=%d", RequiredGravity)
	case r.GravityIncrease != RequiredGravityIncrease:
		return fmt.Sprintf("options.gincrease=%d", RequiredGravityIncrease)
	}
	return ""
}

// state is the per-client connection record. Every field is guarded by
// Client.mu.
type state struct {
	endpoint   string
	session    *protocol.Session
	signature  protocol.Signature
	token      string
	user       protocol.User
	migrating  bool
	recvCursor uint64
	room       *Room
	phase      Phase
	conn       ConnState
	heartbeat  *heartbeat
}

// Snapshot is a copy of the connection record safe to hand out.
type Snapshot struct {
	Endpoint         string            `json:"endpoint"`
	Conn             ConnState         `json:"conn"`
	Phase            Phase             `json:"phase"`
	Epoch            string            `json:"epoch,omitempty"`
	Session          *protocol.Session `json:"session,omitempty"`
	User             protocol.User     `json:"user"`
	Migrating        bool              `json:"migrating"`
	RecvCursor       uint64            `json:"recv_cursor"`
	Room             *Room             `json:"room,omitempty"`
	HeartbeatRunning bool              `json:"heartbeat_running"`
	SignatureVersion string            `json:"signature_version,omitempty"`
}

func (s *state) snapshot() Snapshot {
	snap := Snapshot{
		Endpoint:         s.endpoint,
		Conn:             s.conn,
		Phase:            s.phase,
		User:             s.user,
		Migrating:        s.migrating,
		RecvCursor:       s.recvCursor,
		HeartbeatRunning: s.heartbeat != nil,
		SignatureVersion: s.signature.Version(),
	}
	if s.session != nil {
		sess := *s.session
		snap.Session = &sess
	}
	if s.room != nil {
		room := *s.room
		snap.Room = &room
	}
	return snap
}
