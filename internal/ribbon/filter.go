package ribbon

import "github.com/lfbot-project/lfbot/internal/protocol"

// exempt packets are never dropped by the ordering filter.
func exempt(p protocol.Packet) bool {
	switch p.(type) {
	case protocol.Ping, protocol.Session, protocol.Packets:
		return true
	}
	return false
}

// admit applies the ordering filter to one message given the current
// receive cursor. It returns whether the message should be processed and
// the cursor after committing it. Messages without an id always pass and
// leave the cursor alone; an admitted id advances the cursor to
// max(cursor, id). Ids equal to the cursor pass.
func admit(cursor uint64, msg protocol.Message) (bool, uint64) {
	if msg.ID == nil {
		return true, cursor
	}
	id := *msg.ID
	if id < cursor {
		return exempt(msg.Packet), cursor
	}
	return true, id
}
