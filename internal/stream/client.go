// Package stream consumes the upstream shred-entry gRPC stream and
// republishes frames to the pipeline.
package stream

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"shredcopy/internal/observability"
)

const subscribeMethod = "/shredstream.ShredstreamProxy/SubscribeEntries"

// ConnState is a surfaced connection state change.
type ConnState int

const (
	StateConnected ConnState = iota
	StateDisconnected
	StateError
	StateMaxReconnectAttemptsReached
)

// StateChange carries a state transition to the observer.
type StateChange struct {
	State  ConnState
	Detail string
}

// Client subscribes to the shred stream with fixed-delay reconnects.
type Client struct {
	endpoint       string
	reconnectDelay time.Duration
	maxAttempts    int // 0 = unbounded
	log            *logrus.Entry
	metrics        *observability.Metrics
	onState        func(StateChange)

	frames chan Frame
}

// Options configures a Client. OnState and Metrics are optional.
type Options struct {
	Endpoint       string
	ReconnectDelay time.Duration
	MaxAttempts    int
	Logger         *logrus.Logger
	Metrics        *observability.Metrics
	OnState        func(StateChange)
	Depth          int
}

// NewClient creates a stream client.
func NewClient(opts Options) *Client {
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	depth := opts.Depth
	if depth <= 0 {
		depth = 256
	}
	return &Client{
		endpoint:       opts.Endpoint,
		reconnectDelay: delay,
		maxAttempts:    opts.MaxAttempts,
		log:            opts.Logger.WithField("component", "stream"),
		metrics:        opts.Metrics,
		onState:        opts.OnState,
		frames:         make(chan Frame, depth),
	}
}

// Frames is the received-frame channel. Closed when Run returns.
func (c *Client) Frames() <-chan Frame {
	return c.frames
}

// Run connects and consumes until ctx is cancelled or the reconnect cap is
// exhausted.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.frames)

	conn, err := grpc.NewClient(c.endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithInitialWindowSize(1<<24),
		grpc.WithInitialConnWindowSize(1<<24),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(64*1024*1024),
			grpc.ForceCodec(rawCodec{}),
		),
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.consume(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.setState(StateDisconnected, "")
		if err != nil {
			c.log.WithError(err).Warn("stream disconnected")
			c.setState(StateError, err.Error())
		}

		attempts++
		if c.metrics != nil {
			c.metrics.StreamReconnects.Inc()
		}
		if c.maxAttempts > 0 && attempts >= c.maxAttempts {
			c.setState(StateMaxReconnectAttemptsReached, "")
			c.log.WithField("attempts", attempts).Error("reconnect cap reached, giving up")
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

// consume opens the subscription and forwards frames until the stream ends.
func (c *Client) consume(ctx context.Context, conn *grpc.ClientConn) error {
	desc := &grpc.StreamDesc{
		StreamName:    "SubscribeEntries",
		ServerStreams: true,
	}
	st, err := conn.NewStream(ctx, desc, subscribeMethod)
	if err != nil {
		return err
	}
	if err := st.SendMsg(subscribeEntriesRequest{}); err != nil {
		return err
	}
	if err := st.CloseSend(); err != nil {
		return err
	}

	c.setState(StateConnected, "")
	c.log.WithField("endpoint", c.endpoint).Info("shred stream connected")
	if c.metrics != nil {
		c.metrics.StreamConnected.Set(1)
		defer c.metrics.StreamConnected.Set(0)
	}

	for {
		var msg entryMessage
		if err := st.RecvMsg(&msg); err != nil {
			return err
		}
		select {
		case c.frames <- Frame{Slot: msg.Slot, Payload: msg.Entries}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) setState(s ConnState, detail string) {
	if c.onState != nil {
		c.onState(StateChange{State: s, Detail: detail})
	}
}
