package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_ControlFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{
			name:  "protos request",
			frame: Frame{Operation: OpProtos},
			want:  "protos,,,",
		},
		{
			name:  "auth with key",
			frame: Frame{Operation: OpAuth, Payload: []byte("k")},
			want:  "auth,,,k",
		},
		{
			name:  "subscribe",
			frame: Frame{Operation: OpSub, Topic: "~/pose/info", TypeName: "gazebo.msgs.PosesStamped"},
			want:  "sub,~/pose/info,gazebo.msgs.PosesStamped,",
		},
		{
			name:  "throttle",
			frame: Frame{Operation: OpThrottle, Topic: "~/pose/info", Payload: []byte("10")},
			want:  "throttle,~/pose/info,,10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestEncode_RejectsBadHeaderFields(t *testing.T) {
	_, err := Encode(Frame{Operation: "sub", Topic: "a,b"})
	assert.Error(t, err)

	_, err = Encode(Frame{Operation: "sub", TypeName: "caf\xc3\xa9"})
	assert.Error(t, err)
}

func TestDecode_RoundTripArbitraryPayload(t *testing.T) {
	// Payload with embedded comma bytes and invalid UTF-8
	payload := []byte{0xff, 0xfe, ',', 0x00, ',', 0x80, 'x'}

	raw, err := Encode(Frame{
		Operation: OpAsset,
		Topic:     "model://pine_tree/meshes/pine_tree.dae",
		TypeName:  "gazebo.msgs.Response",
		Payload:   payload,
	})
	require.NoError(t, err)

	frame, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, OpAsset, frame.Operation)
	assert.Equal(t, "model://pine_tree/meshes/pine_tree.dae", frame.Topic)
	assert.Equal(t, "gazebo.msgs.Response", frame.TypeName)
	assert.Equal(t, payload, frame.Payload)
}

func TestDecode_EmptyFields(t *testing.T) {
	frame, err := Decode([]byte("worlds,,,"))
	require.NoError(t, err)
	assert.Equal(t, OpWorlds, frame.Operation)
	assert.Empty(t, frame.Topic)
	assert.Empty(t, frame.TypeName)
	assert.Empty(t, frame.Payload)
}

func TestDecode_MalformedHeader(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no separators", "authorized"},
		{"one separator", "pub,topic"},
		{"two separators", "pub,topic,type"},
		{"empty buffer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestDecode_NonASCIIHeader(t *testing.T) {
	raw := append([]byte("pub,t\x80pic,type,"), 0x01)
	_, err := Decode(raw)
	assert.Error(t, err)
}

func TestDecode_PayloadSlicedFromRawBuffer(t *testing.T) {
	// A payload that itself looks like a frame header must not be re-split.
	raw := []byte("pub,~/scene,gazebo.msgs.Scene,a,b,c")
	frame, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "a,b,c", string(frame.Payload))
}
