package gzclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/gazebo-web/gzweb-sub000/metric"
	"github.com/gazebo-web/gzweb-sub000/pkg/retry"
)

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client) error

// WithKey sets the authorization key sent in the auth frame after the
// socket opens. Without a key the client starts the handshake with a
// protos frame directly.
func WithKey(key string) ClientOption {
	return func(c *Client) error {
		c.key = key
		return nil
	}
}

// WithDialer sets a custom websocket dialer (TLS config, proxy, buffers)
func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *Client) error {
		if dialer == nil {
			return fmt.Errorf("dialer cannot be nil")
		}
		c.dialer = dialer
		return nil
	}
}

// WithHandshakeTimeout sets the websocket handshake timeout
func WithHandshakeTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.handshakeTimeout = d
		return nil
	}
}

// WithLogger sets a custom structured logger; nil restores slog.Default()
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics wires the client into a metrics registry, exporting session,
// frame, topic and asset metrics.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		if registry != nil {
			c.metrics = registry.Core
		}
		return nil
	}
}

// WithPublishRateLimit caps outbound publish frames at limit events per
// second with the given burst. Publishes above the limit are rejected, not
// queued.
func WithPublishRateLimit(limit rate.Limit, burst int) ClientOption {
	return func(c *Client) error {
		if burst < 1 {
			return fmt.Errorf("publish rate limit burst must be >= 1, got %d", burst)
		}
		c.publishLimiter = rate.NewLimiter(limit, burst)
		return nil
	}
}

// WithReconnect enables automatic reconnection after a socket error, using
// the given backoff configuration. A zero-value config uses retry.Reconnect().
// Reconnection is off by default: retry is a decision for the caller.
func WithReconnect(cfg retry.Config) ClientOption {
	return func(c *Client) error {
		if cfg.MaxAttempts == 0 {
			cfg = retry.Reconnect()
		}
		c.reconnect = true
		c.reconnectCfg = cfg
		return nil
	}
}
