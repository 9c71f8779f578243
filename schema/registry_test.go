package schema

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlob = `{
	"types": [
		{
			"name": "gazebo.msgs.Vector3d",
			"fields": [
				{"name": "x", "type": "double"},
				{"name": "y", "type": "double"},
				{"name": "z", "type": "double"}
			]
		},
		{
			"name": "gazebo.msgs.Pose",
			"fields": [
				{"name": "name", "type": "string"},
				{"name": "id", "type": "uint32"},
				{"name": "position", "type": "gazebo.msgs.Vector3d"}
			]
		},
		{
			"name": "gazebo.msgs.PosesStamped",
			"fields": [
				{"name": "pose", "type": "gazebo.msgs.Pose", "repeated": true}
			]
		},
		{
			"name": "gazebo.msgs.Response",
			"fields": [
				{"name": "id", "type": "int32"},
				{"name": "request", "type": "string"},
				{"name": "response", "type": "string"},
				{"name": "data", "type": "bytes"}
			]
		},
		{
			"name": "gazebo.msgs.ImageStamped",
			"raw": true
		},
		{
			"name": "gazebo.msgs.WorldControl",
			"fields": [
				{"name": "pause", "type": "bool"},
				{"name": "multi_step", "type": "uint32"}
			]
		},
		{
			"name": "gazebo.msgs.WorldStatistics",
			"fields": [
				{"name": "iterations", "type": "uint64"},
				{"name": "real_time_factor", "type": "double"}
			]
		}
	]
}`

func loadedRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Load([]byte(testBlob)))
	return r
}

func TestRegistry_LoadOncePerSession(t *testing.T) {
	r := loadedRegistry(t)
	assert.True(t, r.Loaded())

	// A second load in the same session is rejected
	err := r.Load([]byte(testBlob))
	assert.Error(t, err)

	// After Reset the next session can load again
	r.Reset()
	assert.False(t, r.Loaded())
	assert.NoError(t, r.Load([]byte(testBlob)))
}

func TestRegistry_LoadRejectsBadBlobs(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{"not json", "pb \x00\x01"},
		{"no types", `{"types": []}`},
		{"duplicate type", `{"types": [{"name": "a.B"}, {"name": "a.B"}]}`},
		{"unnamed type", `{"types": [{"fields": []}]}`},
		{"undefined reference", `{"types": [{"name": "a.B", "fields": [{"name": "f", "type": "a.Missing"}]}]}`},
		{"duplicate field", `{"types": [{"name": "a.B", "fields": [{"name": "f", "type": "bool"}, {"name": "f", "type": "bool"}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			assert.Error(t, r.Load([]byte(tt.blob)))
		})
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := loadedRegistry(t)

	td, ok := r.Lookup("gazebo.msgs.Pose")
	require.True(t, ok)
	assert.Len(t, td.Fields, 3)

	_, ok = r.Lookup("gazebo.msgs.Nope")
	assert.False(t, ok)

	names := r.TypeNames()
	assert.Contains(t, names, "gazebo.msgs.Vector3d")
	assert.Contains(t, names, "gazebo.msgs.Response")
}

func TestRegistry_IsImage(t *testing.T) {
	r := loadedRegistry(t)

	assert.True(t, r.IsImage("gazebo.msgs.ImageStamped"))
	// Naming convention applies even for types absent from the schema
	assert.True(t, r.IsImage("gazebo.msgs.Image"))
	assert.False(t, r.IsImage("gazebo.msgs.Pose"))
	assert.False(t, r.IsImage("gazebo.msgs.Nope"))
}

func TestRegistry_DecodeTypedPayload(t *testing.T) {
	r := loadedRegistry(t)

	payload := []byte(`{
		"pose": [
			{"name": "pine_tree", "id": 7, "position": {"x": 1.5, "y": -2, "z": 0}}
		]
	}`)

	msg, err := r.Decode("gazebo.msgs.PosesStamped", payload)
	require.NoError(t, err)

	poses, ok := msg["pose"].([]any)
	require.True(t, ok)
	require.Len(t, poses, 1)

	pose, ok := poses[0].(Message)
	require.True(t, ok)
	assert.Equal(t, "pine_tree", pose["name"])
	assert.Equal(t, uint64(7), pose["id"])

	position, ok := pose["position"].(Message)
	require.True(t, ok)
	assert.Equal(t, 1.5, position["x"])
	assert.Equal(t, -2.0, position["y"])
}

func TestRegistry_DecodeBytesField(t *testing.T) {
	r := loadedRegistry(t)

	// "data" carries base64 on the wire, []byte in memory
	payload := []byte(`{"id": 1, "request": "entity_info", "response": "success", "data": "AAECw/8="}`)
	msg, err := r.Decode("gazebo.msgs.Response", payload)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x02, 0xc3, 0xff}, msg["data"])
	assert.Equal(t, int64(1), msg["id"])
}

func TestRegistry_DecodeErrors(t *testing.T) {
	r := loadedRegistry(t)

	tests := []struct {
		name     string
		typeName string
		payload  string
	}{
		{"unknown type", "gazebo.msgs.Nope", `{}`},
		{"undeclared field", "gazebo.msgs.Pose", `{"bogus": 1}`},
		{"type mismatch", "gazebo.msgs.WorldControl", `{"pause": "yes"}`},
		{"negative unsigned", "gazebo.msgs.WorldControl", `{"multi_step": -1}`},
		{"int32 overflow", "gazebo.msgs.Response", `{"id": 4294967296}`},
		{"uint32 overflow", "gazebo.msgs.WorldControl", `{"multi_step": 4294967296}`},
		{"uint64 overflow", "gazebo.msgs.WorldStatistics", `{"iterations": 18446744073709551616}`},
		{"bad base64", "gazebo.msgs.Response", `{"data": "!!!"}`},
		{"not an object", "gazebo.msgs.Pose", `[1, 2]`},
		{"image bypass violated", "gazebo.msgs.ImageStamped", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Decode(tt.typeName, []byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestRegistry_DecodeUint64FullRange(t *testing.T) {
	r := loadedRegistry(t)

	// Simulation iteration counters use the whole uint64 range; values above
	// MaxInt64 are still valid input.
	payload := []byte(`{"iterations": 18446744073709551615, "real_time_factor": 1}`)
	msg, err := r.Decode("gazebo.msgs.WorldStatistics", payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), msg["iterations"])

	payload = []byte(`{"iterations": 9223372036854775808}`)
	msg, err = r.Decode("gazebo.msgs.WorldStatistics", payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxInt64)+1, msg["iterations"])

	encoded, err := r.Encode("gazebo.msgs.WorldStatistics", Message{
		"iterations": uint64(math.MaxUint64),
	})
	require.NoError(t, err)
	decoded, err := r.Decode("gazebo.msgs.WorldStatistics", encoded)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), decoded["iterations"])
}

func TestRegistry_DecodeBeforeLoad(t *testing.T) {
	r := NewRegistry()
	_, err := r.Decode("gazebo.msgs.Pose", []byte(`{}`))
	assert.Error(t, err)
}

func TestRegistry_EncodeRoundTrip(t *testing.T) {
	r := loadedRegistry(t)

	msg := Message{
		"name":     "box",
		"id":       uint64(3),
		"position": Message{"x": 0.5, "y": 1.0, "z": 2.0},
	}

	payload, err := r.Encode("gazebo.msgs.Pose", msg)
	require.NoError(t, err)

	decoded, err := r.Decode("gazebo.msgs.Pose", payload)
	require.NoError(t, err)
	assert.Equal(t, "box", decoded["name"])
	assert.Equal(t, uint64(3), decoded["id"])

	position, ok := decoded["position"].(Message)
	require.True(t, ok)
	assert.Equal(t, 0.5, position["x"])
}

func TestRegistry_EncodeRejectsUndeclaredFields(t *testing.T) {
	r := loadedRegistry(t)

	_, err := r.Encode("gazebo.msgs.WorldControl", Message{"step_size": 0.001})
	assert.Error(t, err)
}
