package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestWrapFormat(t *testing.T) {
	base := errors.New("socket closed")
	err := Wrap(base, "Client", "Connect", "dial ws://sim:7681")

	assert.Equal(t, "Client.Connect: dial ws://sim:7681 failed: socket closed", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Nil(t, Wrap(nil, "Client", "Connect", "dial"))
}

func TestClassifiedWrappers(t *testing.T) {
	base := errors.New("boom")

	transient := WrapTransient(base, "Client", "readLoop", "read frame")
	invalid := WrapInvalid(base, "wire", "Decode", "parse header")
	fatal := WrapFatal(base, "Client", "handleHandshake", "authorize session")

	assert.True(t, IsTransient(transient))
	assert.False(t, IsInvalid(transient))
	assert.True(t, IsInvalid(invalid))
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsTransient(fatal))

	// Classification survives further fmt wrapping.
	outer := fmt.Errorf("outer context: %w", fatal)
	assert.True(t, IsFatal(outer))
	assert.ErrorIs(t, outer, base)

	var ce *ClassifiedError
	require.ErrorAs(t, invalid, &ce)
	assert.Equal(t, ErrorInvalid, ce.Class)
	assert.Equal(t, "wire", ce.Component)
	assert.Equal(t, "Decode", ce.Operation)

	assert.Nil(t, WrapTransient(nil, "c", "m", "a"))
	assert.Nil(t, WrapInvalid(nil, "c", "m", "a"))
	assert.Nil(t, WrapFatal(nil, "c", "m", "a"))
}

func TestSentinelClassification(t *testing.T) {
	assert.True(t, IsTransient(ErrConnectionLost))
	assert.True(t, IsTransient(ErrNotConnected))
	assert.True(t, IsTransient(ErrFetchFailed))
	assert.True(t, IsTransient(context.DeadlineExceeded))

	assert.True(t, IsFatal(ErrUnauthorized))
	assert.True(t, IsFatal(ErrSchemaMissing))

	assert.True(t, IsInvalid(ErrMalformedFrame))
	assert.True(t, IsInvalid(ErrHeaderNotASCII))
	assert.True(t, IsInvalid(ErrUnknownType))
	assert.True(t, IsInvalid(ErrDecodeFailed))

	assert.False(t, IsTransient(nil))
	assert.False(t, IsFatal(nil))
	assert.False(t, IsInvalid(nil))
}

func TestTransientPatternMatching(t *testing.T) {
	assert.True(t, IsTransient(errors.New("dial tcp: i/o timeout")))
	assert.True(t, IsTransient(errors.New("connection refused")))
	assert.True(t, IsTransient(errors.New("service unavailable")))
	assert.False(t, IsTransient(errors.New("schema blob defines no types")))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorFatal, Classify(ErrUnauthorized))
	assert.Equal(t, ErrorInvalid, Classify(ErrMalformedFrame))
	assert.Equal(t, ErrorTransient, Classify(errors.New("something else")))
	assert.Equal(t, ErrorTransient, Classify(nil))
}

func TestRetryConfigShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.True(t, cfg.ShouldRetry(ErrConnectionLost, 0))
	assert.True(t, cfg.ShouldRetry(ErrConnectionLost, cfg.MaxRetries-1))
	assert.False(t, cfg.ShouldRetry(ErrConnectionLost, cfg.MaxRetries))
	assert.False(t, cfg.ShouldRetry(ErrUnauthorized, 0))
	assert.False(t, cfg.ShouldRetry(nil, 0))
}

func TestRetryConfigConversion(t *testing.T) {
	rc := RetryConfig{
		MaxRetries:    5,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 1.5,
	}

	cfg := rc.ToRetryConfig()
	assert.Equal(t, 6, cfg.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 2*time.Second, cfg.MaxDelay)
	assert.Equal(t, 1.5, cfg.Multiplier)
	assert.True(t, cfg.AddJitter)
}
