// Package ribbon implements the Ribbon session client: the socket
// lifecycle, the session handshake and migration, the heartbeat, the
// ordering filter, and the reactions the bot performs on inbound packets.
package ribbon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"github.com/lfbot-project/lfbot/internal/events"
	"github.com/lfbot-project/lfbot/internal/protocol"
	"github.com/lfbot-project/lfbot/internal/util"
)

var (
	// ErrSendFailure means a frame could not be written; the epoch ends.
	ErrSendFailure = errors.New("send failure")
	// ErrSocketClosed is a normal or going-away close from the server.
	ErrSocketClosed = errors.New("socket closed")
	// ErrConnectionLost is any other read or dial failure.
	ErrConnectionLost = errors.New("connection lost")
	// ErrUnauthorized means the server rejected server.authorize.
	ErrUnauthorized = errors.New("authorization rejected")
	// ErrNotConnected is returned by Send when there is no usable socket.
	ErrNotConnected = errors.New("not connected")

	errMigrate   = errors.New("migrating")
	errReconnect = errors.New("reconnect requested")
	errDial      = errors.New("dial failed")
)

// FriendAccepter accepts friend requests over the HTTP API.
type FriendAccepter interface {
	AcceptFriend(ctx context.Context, userID string) error
}

// Recorder receives client counters. telemetry.Metrics implements it.
type Recorder interface {
	FrameReceived(command string)
	FrameSent(command string)
	MessageDropped(reason string)
	DecodeFailed()
	Reconnecting(reason string)
	HeartbeatSent()
	SetConnected(connected bool)
}

type nopRecorder struct{}

func (nopRecorder) FrameReceived(string)  {}
func (nopRecorder) FrameSent(string)      {}
func (nopRecorder) MessageDropped(string) {}
func (nopRecorder) DecodeFailed()         {}
func (nopRecorder) Reconnecting(string)   {}
func (nopRecorder) HeartbeatSent()        {}
func (nopRecorder) SetConnected(bool)     {}

// ReconnectPolicy controls re-dialing after failures. Migrations always
// re-dial immediately and are not subject to it.
type ReconnectPolicy struct {
	Enabled     bool
	MinDelay    time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultReconnectPolicy returns the policy used when none is configured.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:     true,
		MinDelay:    500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 10,
	}
}

// Defaults applied by NewClient when the options leave them empty.
const (
	DefaultJoinCommand = "~join"
	DefaultDMReply     = "hi! invite me to a custom room and type ~join in chat to play"
)

// Options configures a Client.
type Options struct {
	// BaseURL is scheme and host, e.g. "wss://tetr.io". The endpoint path
	// is appended to it on every dial.
	BaseURL   string
	Endpoint  string
	Token     string
	Signature protocol.Signature
	User      protocol.User

	PresenceStatus string
	DMReply        string
	JoinCommand    string
	InviteGreeting string
	Farewell       string

	// HeartbeatInterval overrides HeartbeatInterval. Zero keeps the default.
	HeartbeatInterval time.Duration
	Reconnect         ReconnectPolicy

	Dialer  Dialer
	Friends FriendAccepter
	Bus     *events.EventBus
	Metrics Recorder
}

// Client owns one Ribbon session across any number of socket epochs.
type Client struct {
	opts              Options
	heartbeatInterval time.Duration

	dialer  Dialer
	friends FriendAccepter
	bus     *events.EventBus
	metrics Recorder
	logger  zerolog.Logger

	mu  sync.Mutex
	st  state
	cur *epoch

	// spawn runs one reaction. Tests replace it to run inline.
	spawn func(func())
}

// epoch is a single physical connection.
type epoch struct {
	id     string
	conn   Transport
	ctx    context.Context
	cancel context.CancelCauseFunc
	log    zerolog.Logger

	writeMu    sync.Mutex
	closing    atomic.Bool
	authorized atomic.Bool
	wg         sync.WaitGroup
}

func newEpoch(parent context.Context, conn Transport, logger zerolog.Logger) *epoch {
	ctx, cancel := context.WithCancelCause(parent)
	id := uuid.NewString()
	return &epoch{
		id:     id,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		log:    util.EpochLogger(logger, id),
	}
}

// end marks the epoch as closing and records why. The first cause wins.
func (ep *epoch) end(cause error) {
	ep.closing.Store(true)
	ep.cancel(cause)
}

// NewClient creates a client. Dialer defaults to WebsocketDialer.
func NewClient(opts Options) *Client {
	if opts.PresenceStatus == "" {
		opts.PresenceStatus = "away"
	}
	if opts.JoinCommand == "" {
		opts.JoinCommand = DefaultJoinCommand
	}
	if opts.DMReply == "" {
		opts.DMReply = DefaultDMReply
	}

	c := &Client{
		opts:              opts,
		heartbeatInterval: HeartbeatInterval,
		dialer:            opts.Dialer,
		friends:           opts.Friends,
		bus:               opts.Bus,
		metrics:           opts.Metrics,
		logger:            util.ComponentLogger("ribbon"),
		st: state{
			endpoint:  opts.Endpoint,
			signature: opts.Signature,
			token:     opts.Token,
			user:      opts.User,
		},
		spawn: func(f func()) { go f() },
	}
	if opts.HeartbeatInterval > 0 {
		c.heartbeatInterval = opts.HeartbeatInterval
	}
	if c.dialer == nil {
		c.dialer = WebsocketDialer{}
	}
	if c.metrics == nil {
		c.metrics = nopRecorder{}
	}
	return c
}

// Run connects and serves the session until the server closes it cleanly,
// authorization is rejected, reconnects are exhausted, or ctx is done.
// A clean close and ctx cancellation return nil.
func (c *Client) Run(ctx context.Context) error {
	policy := c.opts.Reconnect
	b := &backoff.Backoff{
		Min:    policy.MinDelay,
		Max:    policy.MaxDelay,
		Factor: 2,
		Jitter: true,
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		authorized, cause := c.runEpoch(ctx)
		if authorized {
			b.Reset()
		}

		if ctx.Err() != nil {
			c.setClosed()
			return nil
		}

		switch {
		case errors.Is(cause, ErrUnauthorized):
			c.setClosed()
			return cause

		case errors.Is(cause, errMigrate):
			c.metrics.Reconnecting("migrate")
			continue

		case errors.Is(cause, errReconnect):
			c.prepareResume()
			c.metrics.Reconnecting("requested")
			continue

		case c.isMigrating() && !errors.Is(cause, errDial):
			// The server dropped us mid-migration; follow it. A failed dial
			// goes through the backoff like any other failure.
			c.metrics.Reconnecting("migrate")
			continue

		case errors.Is(cause, ErrSocketClosed):
			c.logger.Info().Msg("server closed the connection")
			c.setClosed()
			return nil
		}

		if !policy.Enabled {
			c.setClosed()
			return cause
		}
		if policy.MaxAttempts > 0 && int(b.Attempt()) >= policy.MaxAttempts {
			c.setClosed()
			return fmt.Errorf("giving up after %d reconnect attempts: %w", policy.MaxAttempts, cause)
		}

		c.prepareResume()
		delay := b.Duration()
		c.metrics.Reconnecting("failure")
		c.logger.Warn().
			Err(cause).
			Dur("delay", delay).
			Int("attempt", int(b.Attempt())).
			Msg("connection failed, reconnecting")

		select {
		case <-ctx.Done():
			c.setClosed()
			return nil
		case <-time.After(delay):
		}
	}
}

// runEpoch dials the current endpoint and serves it until it ends. It
// reports whether the epoch reached Authorized and why it ended.
func (c *Client) runEpoch(ctx context.Context) (bool, error) {
	c.mu.Lock()
	url := c.opts.BaseURL + c.st.endpoint
	c.st.conn = ConnConnecting
	c.mu.Unlock()

	c.logger.Info().Str("url", url).Msg("connecting")

	conn, err := c.dialer.Dial(ctx, url)
	if err != nil {
		c.mu.Lock()
		c.st.conn = ConnDisconnected
		c.mu.Unlock()
		return false, fmt.Errorf("%w: %w: %w", ErrConnectionLost, errDial, err)
	}

	ep := newEpoch(ctx, conn, c.logger)

	c.mu.Lock()
	c.cur = ep
	c.st.conn = ConnOpen
	endpoint := c.st.endpoint
	c.mu.Unlock()

	c.metrics.SetConnected(true)
	ep.log.Info().Str("endpoint", endpoint).Msg("connected")
	c.emit(ep, events.EventConnected, events.ConnectionPayload{Endpoint: endpoint})

	// Closing the socket is what unblocks the read loop.
	closed := make(chan struct{})
	go func() {
		<-ep.ctx.Done()
		c.mu.Lock()
		if c.cur == ep {
			c.st.conn = ConnClosing
		}
		c.mu.Unlock()
		conn.Close()
		close(closed)
	}()

	if err := c.handshake(ep); err == nil {
		ep.end(c.readLoop(ep))
	}

	ep.end(ErrConnectionLost)
	<-closed
	ep.wg.Wait()
	c.stopHeartbeat()

	cause := context.Cause(ep.ctx)

	c.mu.Lock()
	if c.cur == ep {
		c.cur = nil
	}
	c.st.conn = ConnDisconnected
	if !c.st.migrating {
		c.st.phase = PhaseUnauthenticated
	}
	c.mu.Unlock()

	c.metrics.SetConnected(false)
	ep.log.Info().Str("reason", cause.Error()).Msg("disconnected")
	c.emit(ep, events.EventDisconnected, events.ConnectionPayload{Endpoint: endpoint, Reason: cause.Error()})

	return ep.authorized.Load(), cause
}

// handshake sends the opening packet: Session when resuming a stored
// session, New otherwise.
func (c *Client) handshake(ep *epoch) error {
	var open protocol.Packet

	c.mu.Lock()
	if c.st.migrating && c.st.session != nil {
		open = *c.st.session
	} else {
		open = protocol.New{}
		c.st.session = nil
		c.st.recvCursor = 0
	}
	c.st.migrating = false
	c.st.phase = PhaseAwaitingSession
	c.mu.Unlock()

	return c.send(ep, open)
}

// readLoop decodes frames until the socket fails and returns the reason.
func (c *Client) readLoop(ep *epoch) error {
	for {
		data, err := ep.conn.ReadMessage()
		if err != nil {
			if ep.closing.Load() {
				return context.Cause(ep.ctx)
			}
			if errors.Is(err, ErrSocketClosed) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.metrics.DecodeFailed()
			ep.log.Warn().Err(err).Int("size", len(data)).Msg("dropping undecodable frame")
			continue
		}

		c.metrics.FrameReceived(msg.Command())
		ep.log.Debug().Str("command", msg.Command()).RawJSON("frame", data).Msg("recv")

		c.dispatch(ep, msg)
	}
}

// dispatch expands batches in order and hands each admitted message to
// its own goroutine. Admission and cursor commit happen together, in
// arrival order.
func (c *Client) dispatch(ep *epoch, msg protocol.Message) {
	if batch, ok := msg.Packet.(protocol.Packets); ok {
		for _, child := range batch.Packets {
			c.dispatch(ep, child)
		}
		return
	}

	c.mu.Lock()
	ok, cursor := admit(c.st.recvCursor, msg)
	c.st.recvCursor = cursor
	c.mu.Unlock()

	if !ok {
		c.metrics.MessageDropped("stale")
		ep.log.Debug().
			Str("command", msg.Command()).
			Uint64("id", *msg.ID).
			Uint64("cursor", cursor).
			Msg("dropping stale message")
		return
	}

	ep.wg.Add(1)
	c.spawn(func() {
		defer ep.wg.Done()
		c.react(ep, msg)
	})
}

// send writes one packet on ep. A write error ends the epoch.
func (c *Client) send(ep *epoch, p protocol.Packet) error {
	if ep == nil || ep.closing.Load() {
		return ErrNotConnected
	}

	command := p.Command()
	data, err := protocol.Encode(protocol.Outbound(p))
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", command, err)
	}

	if command == protocol.CmdPing {
		ep.log.Trace().RawJSON("frame", data).Msg("send")
	} else {
		ep.log.Debug().Str("command", command).RawJSON("frame", data).Msg("send")
	}

	ep.writeMu.Lock()
	err = ep.conn.WriteMessage(data)
	ep.writeMu.Unlock()

	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrSendFailure, command, err)
		ep.end(err)
		return err
	}

	c.metrics.FrameSent(command)
	return nil
}

// prepareResume arranges for the next handshake to resume the stored
// session, if there is one.
func (c *Client) prepareResume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.session != nil {
		c.st.migrating = true
		c.st.phase = PhaseMigrating
	}
}

func (c *Client) isMigrating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.migrating
}

func (c *Client) setClosed() {
	c.mu.Lock()
	c.st.phase = PhaseClosed
	c.st.conn = ConnDisconnected
	c.mu.Unlock()
}

func (c *Client) current() *epoch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *Client) emit(ep *epoch, eventType events.EventType, payload interface{}) {
	if c.bus == nil {
		return
	}
	c.bus.Emit(context.WithoutCancel(ep.ctx), events.Event{
		Type:    eventType,
		Source:  "ribbon",
		Epoch:   ep.id,
		Payload: payload,
	})
}

// Snapshot returns a copy of the connection state.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.st.snapshot()
	if c.cur != nil {
		snap.Epoch = c.cur.id
	}
	return snap
}

// Send writes p on the current connection.
func (c *Client) Send(ctx context.Context, p protocol.Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.send(c.current(), p)
}

// Chat posts content to the current room.
func (c *Client) Chat(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("empty chat message")
	}
	return c.Send(ctx, protocol.Chat(content))
}

// JoinRoom asks to join the room with the given code.
func (c *Client) JoinRoom(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fmt.Errorf("room code required")
	}
	return c.Send(ctx, protocol.RoomJoin{RoomID: code})
}

// LeaveRoom leaves the current room.
func (c *Client) LeaveRoom(ctx context.Context) error {
	return c.Send(ctx, protocol.RoomLeave{})
}

// SwitchBracket moves the bot between players and spectators.
func (c *Client) SwitchBracket(ctx context.Context, bracket string) error {
	switch bracket {
	case protocol.BracketPlayer, protocol.BracketSpectator:
	default:
		return fmt.Errorf("unknown bracket %q", bracket)
	}
	return c.Send(ctx, protocol.RoomBracketSwitch{Bracket: bracket})
}

// Reconnect drops the current socket and resumes the session on a new one.
func (c *Client) Reconnect() error {
	ep := c.current()
	if ep == nil {
		return ErrNotConnected
	}
	ep.log.Info().Msg("reconnect requested")
	ep.end(errReconnect)
	return nil
}

// Farewell says goodbye in the current room and leaves it. It is a no-op
// outside a room.
func (c *Client) Farewell(ctx context.Context) error {
	c.mu.Lock()
	inRoom := c.st.room != nil
	c.mu.Unlock()

	if !inRoom {
		return nil
	}
	if c.opts.Farewell != "" {
		if err := c.Chat(ctx, c.opts.Farewell); err != nil {
			return err
		}
	}
	return c.LeaveRoom(ctx)
}
