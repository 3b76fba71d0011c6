package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKnownCommands(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  Packet
	}{
		{"new", `{"command":"new"}`, New{}},
		{"session", `{"command":"session","data":{"ribbonid":"r1","tokenid":"t1"}}`, Session{RibbonID: "r1", TokenID: "t1"}},
		{"ping", `{"command":"ping","data":{"recvid":42}}`, Ping{RecvID: 42}},
		{"kick", `{"command":"kick","data":{"reason":"banned"}}`, Kick{Reason: "banned"}},
		{"nope", `{"command":"nope","data":{"reason":"ratelimited"}}`, Nope{Reason: "ratelimited"}},
		{"authorize ack", `{"command":"server.authorize","data":{"success":true,"maintenance":false}}`, ServerAuthorizeAck{Success: true}},
		{"migrate", `{"command":"server.migrate","data":{"endpoint":"/ribbon/next"}}`, ServerMigrate{Endpoint: "/ribbon/next"}},
		{"migrated", `{"command":"server.migrated","data":{}}`, ServerMigrated{}},
		{"online", `{"command":"social.online","data":1234}`, SocialOnline{Count: 1234}},
		{"dm", `{"command":"social.dm","data":{"id":"d1","stream":"s","data":{"content":"hi","user":"u2","system":false},"ts":"2024-01-01T00:00:00Z"}}`,
			SocialDM{ID: "d1", Stream: "s", Data: DMData{Content: "hi", User: "u2"}, TS: "2024-01-01T00:00:00Z"}},
		{"dm send", `{"command":"social.dm","data":{"recipient":"u2","msg":"hello"}}`, SocialDMSend{Recipient: "u2", Msg: "hello"}},
		{"invite", `{"command":"social.invite","data":{"sender":"u3","roomid":"ABCD","roomname":"fun"}}`, SocialInvite{Sender: "u3", RoomID: "ABCD", RoomName: "fun"}},
		{"room join", `{"command":"room.join","data":"ABCD"}`, RoomJoin{RoomID: "ABCD"}},
		{"room leave", `{"command":"room.leave"}`, RoomLeave{}},
		{"room kick", `{"command":"room.kick","data":"host kicked you"}`, RoomKick{Reason: "host kicked you"}},
		{"room update", `{"command":"room.update","data":{"id":"ABCD","name":"fun","options":{"boardwidth":4,"g":0,"gincrease":0}}}`,
			RoomUpdate{ID: "ABCD", Name: "fun", Options: RoomOptions{BoardWidth: 4}}},
		{"room chat", `{"command":"room.chat","data":{"content":"~join","user":{"_id":"u2","username":"osk","role":"user"},"system":false}}`,
			RoomChat{Content: "~join", User: User{ID: "u2", Username: "osk", Role: "user"}}},
		{"bracket", `{"command":"room.bracket.switch","data":"player"}`, RoomBracketSwitch{Bracket: BracketPlayer}},
		{"game", `{"command":"game.start","data":{"frame":0}}`, GamePacket{Tag: "game.start", Data: json.RawMessage(`{"frame":0}`)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Decode([]byte(tc.frame))
			require.NoError(t, err)
			assert.Nil(t, m.ID)
			assert.Equal(t, tc.want, m.Packet)
		})
	}
}

func TestDecodeKeepsID(t *testing.T) {
	m, err := Decode([]byte(`{"id":7,"command":"social.online","data":3}`))
	require.NoError(t, err)
	require.NotNil(t, m.ID)
	assert.Equal(t, uint64(7), *m.ID)
	assert.Equal(t, CmdSocialOnline, m.Command())
}

func TestDecodeAuthorizeRequest(t *testing.T) {
	frame := `{"command":"server.authorize","data":{"handling":{"arr":2,"das":10,"dcd":0,"sdf":6,"safelock":true,"cancel":false,"may20g":true,"ihs":"tap","irs":"tap"},"signature":{"version":"6.2.0","mode":"production"},"token":"secret"}}`

	m, err := Decode([]byte(frame))
	require.NoError(t, err)

	req, ok := m.Packet.(ServerAuthorize)
	require.True(t, ok, "expected ServerAuthorize, got %T", m.Packet)
	assert.Equal(t, DefaultHandling(), req.Handling)
	assert.Equal(t, "secret", req.Token)
	assert.Equal(t, "6.2.0", req.Signature.Version())
}

func TestRoundTrip(t *testing.T) {
	sig := NewSignature([]byte(`{"version":"6.2.0","client":{"branch":"main"}}`))

	msgs := []Message{
		Outbound(New{}),
		WithID(1, Session{RibbonID: "r", TokenID: "t"}),
		Outbound(Ping{RecvID: 9}),
		WithID(2, Kick{Reason: "x"}),
		WithID(3, Nope{Reason: "y"}),
		Outbound(Authorize(sig, "tok")),
		WithID(4, ServerAuthorizeAck{Success: true, Worker: &ServerWorker{Name: "w1", Flag: "US"}}),
		WithID(5, ServerMigrate{Endpoint: "/a/b", Name: "eu"}),
		WithID(6, ServerMigrated{}),
		WithID(7, SocialOnline{Count: 10}),
		Outbound(Presence("away")),
		WithID(8, SocialDM{ID: "d", Stream: "s", Data: DMData{Content: "c", User: "u", System: true}, TS: "t"}),
		Outbound(DirectMessage("u", "m")),
		WithID(9, SocialInvite{Sender: "u", RoomID: "R", RoomName: "n"}),
		WithID(10, SocialNotification{ID: "n1", Type: NotificationFriend, Data: json.RawMessage(`{"relationship":{"from":{"_id":"u9"}}}`), TS: "t"}),
		Outbound(RoomJoin{RoomID: "R"}),
		Outbound(RoomLeave{}),
		WithID(11, RoomKick{Reason: "bye"}),
		WithID(12, RoomUpdate{ID: "R", Name: "n", Options: RoomOptions{BoardWidth: 6, Gravity: 0.02, GravityIncrease: 0.0035}}),
		WithID(13, RoomChat{Content: "hi", User: User{ID: "u", Username: "name"}}),
		Outbound(Chat("hello")),
		Outbound(RoomBracketSwitch{Bracket: BracketSpectator}),
		WithID(14, GamePacket{Tag: "game.end", Data: json.RawMessage(`{"leaderboard":[]}`)}),
		WithID(15, Unrecognized{Tag: "league.update", Data: json.RawMessage(`[1,2]`)}),
		WithID(16, Unrecognized{Tag: "notify"}),
		WithID(17, Packets{Packets: []Message{WithID(18, SocialOnline{Count: 1}), Outbound(New{})}}),
		Batch(WithID(19, RoomLeave{})),
	}

	for _, m := range msgs {
		t.Run(m.Command(), func(t *testing.T) {
			frame, err := Encode(m)
			require.NoError(t, err)

			got, err := Decode(frame)
			require.NoError(t, err, "frame: %s", frame)
			assert.Equal(t, m, got)
		})
	}
}

func TestEncodeWireShape(t *testing.T) {
	frame, err := Encode(Outbound(New{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"new"}`, string(frame))

	frame, err = Encode(Outbound(RoomBracketSwitch{Bracket: BracketPlayer}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"room.bracket.switch","data":"player"}`, string(frame))

	frame, err = Encode(WithID(3, SocialOnline{Count: 5}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"command":"social.online","data":5}`, string(frame))
}

func TestEncodeSignatureVerbatim(t *testing.T) {
	raw := `{"zeta":1,"alpha":{"nested":[true,null]},"version":"1.0"}`
	frame, err := Encode(Outbound(Authorize(NewSignature([]byte(raw)), "tok")))
	require.NoError(t, err)

	var envelope struct {
		Data struct {
			Signature json.RawMessage `json:"signature"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &envelope))
	assert.Equal(t, raw, string(envelope.Data.Signature))
}

func TestDecodeUnknownCommand(t *testing.T) {
	m, err := Decode([]byte(`{"id":3,"command":"league.leaderboard","data":{"x":1}}`))
	require.NoError(t, err)

	u, ok := m.Packet.(Unrecognized)
	require.True(t, ok)
	assert.Equal(t, "league.leaderboard", u.Tag)
	assert.JSONEq(t, `{"x":1}`, string(u.Data))
}

func TestDecodeMalformed(t *testing.T) {
	frames := map[string]string{
		"not json":        `{"command":`,
		"missing command": `{"data":{}}`,
		"empty command":   `{"command":""}`,
		"wrong payload":   `{"command":"session","data":"oops"}`,
		"missing payload": `{"command":"server.migrate"}`,
		"bad id":          `{"id":"seven","command":"new"}`,
		"bad child":       `{"command":"packets","data":{"packets":[{"data":1}]}}`,
	}

	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(frame))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestFlattenPreservesOrder(t *testing.T) {
	frame := `{"command":"packets","data":{"packets":[
		{"id":1,"command":"social.online","data":1},
		{"command":"packets","data":{"packets":[
			{"id":2,"command":"social.online","data":2},
			{"id":3,"command":"social.online","data":3}
		]}},
		{"id":4,"command":"social.online","data":4}
	]}}`

	m, err := Decode([]byte(frame))
	require.NoError(t, err)

	flat := Flatten(m)
	require.Len(t, flat, 4)
	for i, child := range flat {
		require.NotNil(t, child.ID)
		assert.Equal(t, uint64(i+1), *child.ID)
		assert.Equal(t, SocialOnline{Count: i + 1}, child.Packet)
	}
}

func TestFlattenSingle(t *testing.T) {
	m := WithID(5, Ping{RecvID: 1})
	assert.Equal(t, []Message{m}, Flatten(m))
}

func TestFriendRequester(t *testing.T) {
	n := SocialNotification{
		Type: NotificationFriend,
		Data: json.RawMessage(`{"relationship":{"from":{"_id":"5e8f","username":"osk"},"to":{"_id":"me"}}}`),
	}
	id, ok := n.FriendRequester()
	assert.True(t, ok)
	assert.Equal(t, "5e8f", id)

	n.Type = "announcement"
	_, ok = n.FriendRequester()
	assert.False(t, ok)

	n = SocialNotification{Type: NotificationFriend, Data: json.RawMessage(`{}`)}
	_, ok = n.FriendRequester()
	assert.False(t, ok)
}

func TestSignature(t *testing.T) {
	var s Signature
	assert.True(t, s.IsZero())
	assert.Equal(t, "", s.Version())

	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	s = NewSignature([]byte(`{"version":"6.2.0"}`))
	assert.False(t, s.IsZero())
	assert.Equal(t, "6.2.0", s.Version())
}

func TestUnsetSignatureSurvivesRoundTrip(t *testing.T) {
	frame, err := Encode(Outbound(Authorize(Signature{}, "tok")))
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"signature":null`)

	m, err := Decode(frame)
	require.NoError(t, err)
	req, ok := m.Packet.(ServerAuthorize)
	require.True(t, ok, "expected ServerAuthorize, got %T", m.Packet)
	assert.True(t, req.Signature.IsZero())
	assert.Nil(t, req.Signature.Raw())
	assert.Equal(t, Authorize(Signature{}, "tok"), req)

	var s Signature
	require.NoError(t, s.UnmarshalJSON([]byte(" null ")))
	assert.True(t, s.IsZero())
}
