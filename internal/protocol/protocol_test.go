package protocol

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecode_Valid(t *testing.T) {
	env, err := Decode([]byte(`{"action":"join","identifier":"abc","room_id":"r1","payload":"r2"}`))
	require.NoError(t, err)
	assert.Equal(t, ActionJoin, env.Action)
	assert.Equal(t, "abc", env.Identifier)
	assert.Equal(t, "r1", env.RoomID)
	assert.Equal(t, "r1", env.RoomRef())
}

func TestDecode_MissingOptionalKeys(t *testing.T) {
	env, err := Decode([]byte(`{"action":"get_rooms"}`))
	require.NoError(t, err)
	assert.Empty(t, env.Identifier)
	assert.Empty(t, env.RoomID)
	assert.Empty(t, env.Payload)
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{"action":`))
	assert.ErrorIs(t, err, ErrInvalidJSON)

	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestDecode_InvalidEnvelope(t *testing.T) {
	for _, in := range []string{
		`{"identifier":"abc"}`,
		`{"action":""}`,
		`{"action":42}`,
		`[1,2,3]`,
		`"register"`,
	} {
		_, err := Decode([]byte(in))
		assert.ErrorIs(t, err, ErrInvalidEnvelope, "input %s", in)
	}
}

func TestRoomRefFallsBackToPayload(t *testing.T) {
	env, err := Decode([]byte(`{"action":"join","identifier":"abc","payload":"r2"}`))
	require.NoError(t, err)
	assert.Equal(t, "r2", env.RoomRef())

	env, err = Decode([]byte(`{"action":"join","identifier":"abc","payload":{"x":1}}`))
	require.NoError(t, err)
	assert.Empty(t, env.RoomRef())
}

func TestRegisterPort(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{`4000`, 4000},
		{`"4001"`, 4001},
		{`{"udp_port": 4002}`, 4002},
		{`{"udp_port": "4003"}`, 4003},
		{` 65535 `, 65535},
	}
	for _, tc := range cases {
		in, want := tc.in, tc.want
		got, err := RegisterPort(json.RawMessage(in))
		require.NoError(t, err, "input %s", in)
		assert.Equal(t, want, got)
	}
}

func TestRegisterPortRejects(t *testing.T) {
	for _, in := range []string{``, `null`, `0`, `70000`, `"abc"`, `{"port":1}`, `1.5`, `[1]`} {
		_, err := RegisterPort(json.RawMessage(in))
		assert.ErrorIs(t, err, ErrInvalidEnvelope, "input %q", in)
	}
}

func TestDecodeSend(t *testing.T) {
	p, err := DecodeSend(json.RawMessage(`{"message":{"text":"hi"}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hi"}`, string(p.Message))

	_, err = DecodeSend(json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	_, err = DecodeSend(json.RawMessage(`{"message":null}`))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	_, err = DecodeSend(nil)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestDecodeSendTo(t *testing.T) {
	p, err := DecodeSendTo(json.RawMessage(`{"recipients":["a","b"],"message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, p.Recipients)
	assert.Equal(t, `"hi"`, string(p.Message))

	p, err = DecodeSendTo(json.RawMessage(`{"recipients":["a",""],"message":"hi"}`))
	require.NoError(t, err, "blank recipient ids are left for delivery to ignore")
	assert.Equal(t, []string{"a", ""}, p.Recipients)

	for _, in := range []string{
		`{"message":"hi"}`,
		`{"recipients":[],"message":"hi"}`,
		`{"recipients":["a"]}`,
		`{"recipients":"a","message":"hi"}`,
	} {
		_, err := DecodeSendTo(json.RawMessage(in))
		assert.ErrorIs(t, err, ErrInvalidEnvelope, "input %s", in)
	}
}

func TestDecodeLookup(t *testing.T) {
	var p LookupPayload
	require.NoError(t, DecodePayload(json.RawMessage(`{"ids":[1,2]}`), &p))
	assert.Equal(t, []int64{1, 2}, p.IDs)

	assert.ErrorIs(t, DecodePayload(json.RawMessage(`{"ids":[]}`), &p), ErrInvalidEnvelope)
}

func TestReplyBytes(t *testing.T) {
	assert.JSONEq(t, `{"success":true,"message":"abc"}`, string(Success("abc").Bytes()))
	assert.JSONEq(t, `{"success":false,"message":"unknown action"}`, string(Failure("unknown action").Bytes()))
	assert.JSONEq(t, `{"success":false,"message":"internal error"}`, string(Success(make(chan int)).Bytes()))
}

func TestPayloadString(t *testing.T) {
	assert.Equal(t, "lounge", PayloadString(json.RawMessage(`"lounge"`)))
	assert.Equal(t, "", PayloadString(json.RawMessage(`12`)))
	assert.Equal(t, "", PayloadString(nil))
}

// Property: any envelope produced by Encode decodes back to the same action and identifiers.
func TestPropertyEncodeDecode(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		env := Envelope{
			Action:     rapid.SampledFrom([]string{ActionRegister, ActionJoin, ActionSend, ActionSendTo}).Draw(t, "action"),
			Identifier: rapid.StringMatching(`[a-f0-9-]{0,36}`).Draw(t, "identifier"),
			RoomID:     rapid.StringMatching(`[a-f0-9-]{0,36}`).Draw(t, "room_id"),
		}
		port := rapid.IntRange(1, 65535).Draw(t, "port")
		env.Payload = json.RawMessage(fmt.Sprintf("%d", port))

		data, err := Encode(env)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Action != env.Action || got.Identifier != env.Identifier || got.RoomID != env.RoomID {
			t.Fatalf("round trip mismatch: %+v vs %+v", got, env)
		}
		gotPort, err := RegisterPort(got.Payload)
		if err != nil || gotPort != port {
			t.Fatalf("port %d decoded as %d (%v)", port, gotPort, err)
		}
	})
}
