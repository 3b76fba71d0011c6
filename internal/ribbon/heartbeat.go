package ribbon

import (
	"sync"
	"time"

	"github.com/lfbot-project/lfbot/internal/protocol"
)

// HeartbeatInterval is the fixed ping period of an authorized session.
const HeartbeatInterval = 5 * time.Second

// heartbeat is the handle of one running ping loop.
type heartbeat struct {
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newHeartbeat() *heartbeat {
	return &heartbeat{
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (h *heartbeat) stop() {
	h.once.Do(func() { close(h.stopCh) })
}

func (h *heartbeat) stopped() bool {
	select {
	case <-h.stopCh:
		return true
	default:
		return false
	}
}

// startHeartbeat installs a new ping loop on ep, stopping whichever loop
// was installed before.
func (c *Client) startHeartbeat(ep *epoch) {
	hb := newHeartbeat()

	c.mu.Lock()
	old := c.st.heartbeat
	c.st.heartbeat = hb
	c.mu.Unlock()

	if old != nil {
		old.stop()
	}

	go c.runHeartbeat(ep, hb)
	ep.log.Debug().Dur("interval", c.heartbeatInterval).Msg("heartbeat started")
}

// stopHeartbeat removes and stops the installed loop, if any.
func (c *Client) stopHeartbeat() {
	c.mu.Lock()
	hb := c.st.heartbeat
	c.st.heartbeat = nil
	c.mu.Unlock()

	if hb != nil {
		hb.stop()
	}
}

func (c *Client) runHeartbeat(ep *epoch, hb *heartbeat) {
	defer close(hb.done)

	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-hb.stopCh:
			return
		case <-ep.ctx.Done():
			return
		case <-ticker.C:
			if hb.stopped() {
				return
			}

			c.mu.Lock()
			cursor := c.st.recvCursor
			c.mu.Unlock()

			if err := c.send(ep, protocol.Ping{RecvID: cursor}); err != nil {
				ep.log.Warn().Err(err).Msg("heartbeat send failed")
				return
			}
			c.metrics.HeartbeatSent()
		}
	}
}
