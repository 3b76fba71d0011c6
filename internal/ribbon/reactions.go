package ribbon

import (
	"context"
	"time"

	"github.com/lfbot-project/lfbot/internal/events"
	"github.com/lfbot-project/lfbot/internal/protocol"
)

const friendAcceptTimeout = 15 * time.Second

// react applies the reaction rules to one admitted, non-batch message.
func (c *Client) react(ep *epoch, msg protocol.Message) {
	switch p := msg.Packet.(type) {
	case protocol.Session:
		c.onSession(ep, p)
	case protocol.ServerAuthorizeAck:
		c.onAuthorized(ep, p)
	case protocol.ServerMigrate:
		c.onMigrate(ep, p)
	case protocol.ServerMigrated:
		c.onMigrated(ep)
	case protocol.SocialDM:
		c.onDirectMessage(ep, p)
	case protocol.SocialInvite:
		c.onInvite(ep, p)
	case protocol.SocialNotification:
		c.onNotification(ep, p)
	case protocol.RoomUpdate:
		c.onRoomUpdate(ep, p)
	case protocol.RoomLeave:
		c.onRoomLeft(ep, "left")
	case protocol.RoomKick:
		c.onRoomLeft(ep, p.Reason)
	case protocol.RoomChat:
		c.onRoomChat(ep, p)
	case protocol.Kick:
		c.onKick(ep, p.Command(), p.Reason)
	case protocol.Nope:
		c.onKick(ep, p.Command(), p.Reason)
	default:
		ep.log.Debug().Str("command", msg.Command()).Msg("no reaction")
	}
}

func (c *Client) onSession(ep *epoch, p protocol.Session) {
	c.mu.Lock()
	sess := p
	c.st.session = &sess
	c.st.phase = PhaseSessionEstablished
	sig := c.st.signature
	token := c.st.token
	c.mu.Unlock()

	ep.log.Info().Str("ribbon_id", p.RibbonID).Msg("session established")
	c.emit(ep, events.EventSessionEstablished, events.SessionPayload{RibbonID: p.RibbonID})

	if err := c.send(ep, protocol.Authorize(sig, token)); err != nil {
		ep.log.Warn().Err(err).Msg("failed to send authorization")
		return
	}

	c.mu.Lock()
	if c.st.phase == PhaseSessionEstablished {
		c.st.phase = PhaseAuthorizationSent
	}
	c.mu.Unlock()
}

func (c *Client) onAuthorized(ep *epoch, p protocol.ServerAuthorizeAck) {
	if !p.Success {
		ep.log.Error().Bool("maintenance", p.Maintenance).Msg("authorization rejected by server")
		ep.end(ErrUnauthorized)
		return
	}

	c.mu.Lock()
	c.st.phase = PhaseAuthorized
	user := c.st.user
	ribbonID := ""
	if c.st.session != nil {
		ribbonID = c.st.session.RibbonID
	}
	c.mu.Unlock()
	ep.authorized.Store(true)

	logEvt := ep.log.Info().Str("user", user.Username)
	if p.Worker != nil {
		logEvt = logEvt.Str("worker", p.Worker.Name)
	}
	logEvt.Msg("authorized")

	c.emit(ep, events.EventAuthorized, events.SessionPayload{
		RibbonID: ribbonID,
		UserID:   user.ID,
		Username: user.Username,
	})

	c.startHeartbeat(ep)

	if err := c.send(ep, protocol.Presence(c.opts.PresenceStatus)); err != nil {
		ep.log.Warn().Err(err).Msg("failed to send presence")
	}
}

func (c *Client) onMigrate(ep *epoch, p protocol.ServerMigrate) {
	c.mu.Lock()
	c.st.migrating = true
	c.st.endpoint = p.Endpoint
	c.st.phase = PhaseMigrating
	c.mu.Unlock()

	c.stopHeartbeat()
	ep.end(errMigrate)

	ep.log.Info().Str("endpoint", p.Endpoint).Str("worker", p.Name).Msg("migrating")
	c.emit(ep, events.EventMigrating, events.ConnectionPayload{Endpoint: p.Endpoint})
}

// onMigrated acknowledges a resumed session. The server only sends it for a
// session it still holds, so the epoch counts as authorized.
func (c *Client) onMigrated(ep *epoch) {
	c.mu.Lock()
	c.st.phase = PhaseAuthorized
	endpoint := c.st.endpoint
	c.mu.Unlock()
	ep.authorized.Store(true)

	c.startHeartbeat(ep)
	ep.log.Info().Str("endpoint", endpoint).Msg("migration complete")
	c.emit(ep, events.EventMigrated, events.ConnectionPayload{Endpoint: endpoint})
}

func (c *Client) onDirectMessage(ep *epoch, p protocol.SocialDM) {
	if p.Data.System || p.Sender() == c.selfID() {
		return
	}
	if err := c.send(ep, protocol.DirectMessage(p.Sender(), c.opts.DMReply)); err != nil {
		ep.log.Warn().Err(err).Str("user", p.Sender()).Msg("failed to reply to direct message")
		return
	}
	c.emit(ep, events.EventDMReplied, events.SocialPayload{UserID: p.Sender(), Message: p.Data.Content})
}

func (c *Client) onInvite(ep *epoch, p protocol.SocialInvite) {
	ep.log.Info().Str("room", p.RoomID).Str("from", p.Sender).Msg("invited to room")

	if err := c.send(ep, protocol.RoomJoin{RoomID: p.RoomID}); err != nil {
		ep.log.Warn().Err(err).Str("room", p.RoomID).Msg("failed to join room")
		return
	}
	if c.opts.InviteGreeting != "" {
		if err := c.send(ep, protocol.Chat(c.opts.InviteGreeting)); err != nil {
			ep.log.Warn().Err(err).Msg("failed to greet room")
		}
	}
	c.emit(ep, events.EventInviteAccepted, events.SocialPayload{UserID: p.Sender, RoomID: p.RoomID})
}

// onNotification accepts friend requests. The HTTP call runs detached
// from the reaction and its result is only logged.
func (c *Client) onNotification(ep *epoch, p protocol.SocialNotification) {
	requester, ok := p.FriendRequester()
	if !ok {
		ep.log.Debug().Str("type", p.Type).Msg("ignoring notification")
		return
	}
	if c.friends == nil {
		ep.log.Warn().Str("user", requester).Msg("friend request received but no accepter configured")
		return
	}

	ctx := context.WithoutCancel(ep.ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, friendAcceptTimeout)
		defer cancel()

		if err := c.friends.AcceptFriend(ctx, requester); err != nil {
			ep.log.Warn().Err(err).Str("user", requester).Msg("failed to accept friend request")
			return
		}
		ep.log.Info().Str("user", requester).Msg("friend request accepted")
		c.emit(ep, events.EventFriendAccepted, events.SocialPayload{UserID: requester})
	}()
}

func (c *Client) onRoomUpdate(ep *epoch, p protocol.RoomUpdate) {
	room := roomFromUpdate(p)

	c.mu.Lock()
	c.st.room = room
	c.mu.Unlock()

	ep.log.Debug().
		Str("room", room.ID).
		Int("board_width", room.BoardWidth).
		Float64("g", room.Gravity).
		Float64("gincrease", room.GravityIncrease).
		Msg("room updated")
	c.emit(ep, events.EventRoomUpdated, roomPayload(room, ""))
}

func (c *Client) onRoomLeft(ep *epoch, reason string) {
	c.mu.Lock()
	room := c.st.room
	c.st.room = nil
	c.mu.Unlock()

	if room == nil {
		return
	}
	ep.log.Info().Str("room", room.ID).Str("reason", reason).Msg("left room")
	c.emit(ep, events.EventRoomLeft, roomPayload(room, reason))
}

// onRoomChat handles the join command. The bot only takes a player slot
// when the room's settings are ones it can play; otherwise it names the
// first setting the host must change.
func (c *Client) onRoomChat(ep *epoch, p protocol.RoomChat) {
	if p.System || p.User.ID == c.selfID() {
		return
	}
	if p.Content != c.opts.JoinCommand {
		return
	}

	c.mu.Lock()
	var room *Room
	if c.st.room != nil {
		r := *c.st.room
		room = &r
	}
	c.mu.Unlock()

	var violation string
	if room == nil {
		violation = "room settings unknown"
	} else {
		violation = room.Violation()
	}

	payload := events.JoinCommandPayload{
		UserID:    p.User.ID,
		Username:  p.User.Username,
		Accepted:  violation == "",
		Violation: violation,
	}

	var err error
	if violation != "" {
		ep.log.Info().Str("user", p.User.Username).Str("fix", violation).Msg("join refused")
		err = c.send(ep, protocol.Chat("can't play here, please set "+violation))
	} else {
		ep.log.Info().Str("user", p.User.Username).Msg("joining as player")
		err = c.send(ep, protocol.RoomBracketSwitch{Bracket: protocol.BracketPlayer})
	}
	if err != nil {
		ep.log.Warn().Err(err).Msg("failed to answer join command")
		return
	}
	c.emit(ep, events.EventJoinCommand, payload)
}

func (c *Client) onKick(ep *epoch, command, reason string) {
	ep.log.Warn().Str("command", command).Str("reason", reason).Msg("rejected by server")
	c.emit(ep, events.EventKicked, events.KickPayload{Command: command, Reason: reason})
}

func (c *Client) selfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.user.ID
}

func roomPayload(r *Room, reason string) events.RoomPayload {
	return events.RoomPayload{
		RoomID:          r.ID,
		Name:            r.Name,
		BoardWidth:      r.BoardWidth,
		Gravity:         r.Gravity,
		GravityIncrease: r.GravityIncrease,
		Reason:          reason,
	}
}
