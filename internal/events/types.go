// Package events defines the event types published by the ribbon client
// and the bus that fans them out to telemetry, the journal, and the CLI.
package events

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Connection lifecycle
	EventConnected          EventType = "connected"
	EventSessionEstablished EventType = "session_established"
	EventAuthorized         EventType = "authorized"
	EventMigrating          EventType = "migrating"
	EventMigrated           EventType = "migrated"
	EventDisconnected       EventType = "disconnected"
	EventKicked             EventType = "kicked"

	// Room
	EventRoomUpdated EventType = "room_updated"
	EventRoomLeft    EventType = "room_left"
	EventJoinCommand EventType = "join_command"

	// Social
	EventInviteAccepted EventType = "invite_accepted"
	EventDMReplied      EventType = "dm_replied"
	EventFriendAccepted EventType = "friend_accepted"

	// System
	EventShutdown EventType = "shutdown"
)

// RibbonEvents lists every event type emitted by the ribbon client.
var RibbonEvents = []EventType{
	EventConnected,
	EventSessionEstablished,
	EventAuthorized,
	EventMigrating,
	EventMigrated,
	EventDisconnected,
	EventKicked,
	EventRoomUpdated,
	EventRoomLeft,
	EventJoinCommand,
	EventInviteAccepted,
	EventDMReplied,
	EventFriendAccepted,
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Epoch   string
	Payload interface{}
}

// ConnectionPayload accompanies connection lifecycle events.
type ConnectionPayload struct {
	Endpoint string `json:"endpoint"`
	Reason   string `json:"reason,omitempty"`
}

// SessionPayload is emitted once a session id is known or authorized.
type SessionPayload struct {
	RibbonID string `json:"ribbon_id"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// RoomPayload carries the cached room settings.
type RoomPayload struct {
	RoomID          string  `json:"room_id"`
	Name            string  `json:"name,omitempty"`
	BoardWidth      int     `json:"board_width"`
	Gravity         float64 `json:"gravity"`
	GravityIncrease float64 `json:"gravity_increase"`
	Reason          string  `json:"reason,omitempty"`
}

// SocialPayload covers invites, direct messages and friend requests.
type SocialPayload struct {
	UserID  string `json:"user_id"`
	RoomID  string `json:"room_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// JoinCommandPayload records the outcome of a join request in room chat.
type JoinCommandPayload struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Accepted  bool   `json:"accepted"`
	Violation string `json:"violation,omitempty"`
}

// KickPayload is emitted for session-level kicks and rejections.
type KickPayload struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
}
