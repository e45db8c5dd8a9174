// Package relayer moves envelopes from bridge delivery queues to a
// destination-side executor. It owns no delivery guarantees itself: a
// failed delivery is logged and counted, and any retry is the transport's
// concern.
package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/GenerationSoftware/ERC5164/protocol"
	"github.com/GenerationSoftware/ERC5164/transport/bridgesim"
)

// Coordinator drains one or more bridges into a single executor target.
type Coordinator struct {
	lggr       logger.Logger
	bridges    []bridgesim.Bridge
	target     bridgesim.Target
	monitoring Monitoring

	doneCh  chan struct{}
	running bool
	cancel  context.CancelFunc
}

type Option func(*Coordinator)

func WithLogger(lggr logger.Logger) Option {
	return func(c *Coordinator) {
		c.lggr = lggr
	}
}

func WithBridge(bridge bridgesim.Bridge) Option {
	return func(c *Coordinator) {
		c.bridges = append(c.bridges, bridge)
	}
}

func WithTarget(target bridgesim.Target) Option {
	return func(c *Coordinator) {
		c.target = target
	}
}

func WithMonitoring(monitoring Monitoring) Option {
	return func(c *Coordinator) {
		c.monitoring = monitoring
	}
}

func NewCoordinator(options ...Option) (*Coordinator, error) {
	c := &Coordinator{
		doneCh:     make(chan struct{}),
		monitoring: NoopMonitoring{},
	}

	for _, opt := range options {
		opt(c)
	}

	var errs []error
	if c.lggr == nil {
		errs = append(errs, fmt.Errorf("logger is not set"))
	}
	if c.target == nil {
		errs = append(errs, fmt.Errorf("target is not set"))
	}
	if len(c.bridges) == 0 {
		errs = append(errs, fmt.Errorf("at least one bridge is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return c, nil
}

func (c *Coordinator) Start(ctx context.Context) error {
	if c.running {
		return fmt.Errorf("coordinator already running")
	}

	c.running = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go c.run(ctx)

	c.lggr.Infow("coordinator started", "bridges", len(c.bridges))
	return nil
}

func (c *Coordinator) Stop() error {
	if !c.running {
		return fmt.Errorf("coordinator not started")
	}

	c.lggr.Infow("coordinator stopping")
	c.cancel()
	<-c.doneCh
	c.lggr.Infow("coordinator stopped")
	return nil
}

// IsRunning returns whether the coordinator is running.
func (c *Coordinator) IsRunning() bool {
	return c.running
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.doneCh)
	defer func() {
		c.running = false
	}()

	g, ctx := errgroup.WithContext(ctx)
	for _, bridge := range c.bridges {
		g.Go(func() error {
			return c.drain(ctx, bridge)
		})
	}
	if err := g.Wait(); err != nil {
		c.lggr.Errorw("coordinator drain loop exited", "error", err)
	}
}

func (c *Coordinator) drain(ctx context.Context, bridge bridgesim.Bridge) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-bridge.Deliveries():
			if !ok {
				c.lggr.Warnw("bridge delivery channel closed")
				return nil
			}
			c.deliver(ctx, bridge, d)
		}
	}
}

func (c *Coordinator) deliver(ctx context.Context, bridge bridgesim.Bridge, d bridgesim.Delivery) {
	metrics := c.monitoring.Metrics()
	start := time.Now()
	err := bridge.Deliver(ctx, c.target, d)
	metrics.RecordDeliveryLatency(ctx, time.Since(start))

	var callFailed *protocol.CallFailedError
	switch {
	case err == nil:
		metrics.IncrementMessagesDelivered(ctx)
	case errors.Is(err, protocol.ErrAlreadyExecuted):
		// The transport redelivered a consumed identifier. Expected under
		// at-least-once transports; the executor held the line.
		metrics.IncrementReplaysRejected(ctx)
		c.lggr.Infow("delivery rejected as replay", "error", err)
	case errors.Is(err, protocol.ErrSenderUnauthorized):
		metrics.IncrementAuthRejected(ctx)
		c.lggr.Warnw("delivery failed provenance check", "error", err)
	case errors.As(err, &callFailed):
		metrics.IncrementCallsFailed(ctx)
		c.lggr.Warnw("delivery aborted on failed call",
			"index", callFailed.Index,
			"error", err,
		)
	default:
		c.lggr.Errorw("delivery failed", "error", err)
	}
}
