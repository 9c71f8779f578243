package gzclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gzerrors "github.com/gazebo-web/gzweb-sub000/errors"
)

func TestAssetChannel_LastCallerWins(t *testing.T) {
	ch := newAssetChannel()

	ch.register("model://box", func(string, []byte, error) {})
	ch.register("model://box", func(string, []byte, error) {})
	assert.Equal(t, 1, ch.outstanding())

	_, ok := ch.take("model://box")
	require.True(t, ok)
	assert.Equal(t, 0, ch.outstanding())

	_, ok = ch.take("model://box")
	assert.False(t, ok)
}

func TestAssetChannel_CancelOnlyRemovesOwnRegistration(t *testing.T) {
	ch := newAssetChannel()

	var delivered string
	first := ch.register("model://box", func(string, []byte, error) {
		delivered = "first"
	})
	ch.register("model://box", func(string, []byte, error) {
		delivered = "second"
	})

	// A failed send withdraws the first caller's registration; the second
	// caller's must survive.
	ch.cancel("model://box", first)
	assert.Equal(t, 1, ch.outstanding())

	cb, ok := ch.take("model://box")
	require.True(t, ok)
	cb("model://box", nil, nil)
	assert.Equal(t, "second", delivered)

	// Cancelling a registration that was already taken is a no-op.
	ch.cancel("model://box", first)
	assert.Equal(t, 0, ch.outstanding())
}

func TestAssetChannel_CancelOwnRegistration(t *testing.T) {
	ch := newAssetChannel()

	token := ch.register("model://box", func(string, []byte, error) {})
	ch.cancel("model://box", token)
	assert.Equal(t, 0, ch.outstanding())

	_, ok := ch.take("model://box")
	assert.False(t, ok)
}

func TestAssetChannel_FailAll(t *testing.T) {
	ch := newAssetChannel()

	errs := make(map[string]error)
	ch.register("model://a", func(uri string, _ []byte, err error) { errs[uri] = err })
	ch.register("model://b", func(uri string, _ []byte, err error) { errs[uri] = err })

	ch.failAll(gzerrors.ErrConnectionLost)
	assert.Equal(t, 0, ch.outstanding())
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs["model://a"], gzerrors.ErrConnectionLost)
	assert.ErrorIs(t, errs["model://b"], gzerrors.ErrConnectionLost)
}
