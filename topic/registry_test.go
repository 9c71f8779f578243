package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gazebo-web/gzweb-sub000/schema"
)

func TestRegistry_LastWriterWins(t *testing.T) {
	r := NewRegistry()

	var got []string
	r.Register(&Subscription{
		Name:     "~/pose/info",
		Callback: func(schema.Message) { got = append(got, "first") },
	})
	r.Register(&Subscription{
		Name:     "~/pose/info",
		Callback: func(schema.Message) { got = append(got, "second") },
	})

	assert.Equal(t, []string{"~/pose/info"}, r.Names())

	delivered := r.Dispatch("~/pose/info", schema.Message{})
	assert.True(t, delivered)
	assert.Equal(t, []string{"second"}, got)
}

func TestRegistry_RemoveInvokesTeardown(t *testing.T) {
	r := NewRegistry()

	tornDown := false
	r.Register(&Subscription{
		Name:     "~/world_stats",
		Callback: func(schema.Message) {},
		Teardown: func() { tornDown = true },
	})

	assert.True(t, r.Remove("~/world_stats"))
	assert.True(t, tornDown)
	assert.Empty(t, r.Names())

	// Removing again reports absence
	assert.False(t, r.Remove("~/world_stats"))
}

func TestRegistry_DispatchUnknownTopicIsDropped(t *testing.T) {
	r := NewRegistry()
	// Late frame after unsubscribe: dropped, not an error
	assert.False(t, r.Dispatch("~/pose/info", schema.Message{"x": 1.0}))
}

func TestRegistry_SubscribeUnsubscribeSequences(t *testing.T) {
	r := NewRegistry()
	cb := func(schema.Message) {}

	r.Register(&Subscription{Name: "a", Callback: cb})
	r.Register(&Subscription{Name: "b", Callback: cb})
	r.Register(&Subscription{Name: "c", Callback: cb})
	r.Remove("b")
	r.Register(&Subscription{Name: "a", Callback: cb})

	assert.Equal(t, []string{"a", "c"}, r.Names())
	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Subscribed("a"))
	assert.False(t, r.Subscribed("b"))
}

func TestRegistry_AdvertisedReplacedWholesale(t *testing.T) {
	r := NewRegistry()

	r.SetAdvertised([]AdvertisedTopic{
		{Name: "~/pose/info", MessageTypeName: "gazebo.msgs.PosesStamped"},
		{Name: "~/world_stats", MessageTypeName: "gazebo.msgs.WorldStatistics"},
	})

	msgType, ok := r.TypeOf("~/pose/info")
	require.True(t, ok)
	assert.Equal(t, "gazebo.msgs.PosesStamped", msgType)

	// The next update supersedes the previous set entirely
	r.SetAdvertised([]AdvertisedTopic{
		{Name: "~/camera/image", MessageTypeName: "gazebo.msgs.ImageStamped"},
	})

	_, ok = r.TypeOf("~/pose/info")
	assert.False(t, ok)

	advertised := r.Advertised()
	require.Len(t, advertised, 1)
	assert.Equal(t, "~/camera/image", advertised[0].Name)
}

func TestRegistry_ClearEmptiesEverything(t *testing.T) {
	r := NewRegistry()

	tornDown := false
	r.Register(&Subscription{
		Name:     "~/pose/info",
		Callback: func(schema.Message) {},
		Teardown: func() { tornDown = true },
	})
	r.SetAdvertised([]AdvertisedTopic{{Name: "~/pose/info", MessageTypeName: "gazebo.msgs.PosesStamped"}})

	r.Clear()

	assert.Empty(t, r.Names())
	assert.Empty(t, r.Advertised())
	// Disconnect clears without running teardown hooks
	assert.False(t, tornDown)
}
