package delivery

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Additional-Code/relay/internal/config"
)

var meter = otel.Meter("github.com/Additional-Code/relay/delivery")

// Dispatcher sends notifications best-effort: every call is bounded by a
// timeout, detached from the caller's cancellation, and failures are only logged.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   *zap.Logger
	failed   metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewDispatcher wraps notifier with the configured delivery timeout.
func NewDispatcher(notifier Notifier, cfg config.Config, logger *zap.Logger) *Dispatcher {
	failed, err := meter.Int64Counter("relay.deliveries.failed",
		metric.WithDescription("Notifications that could not be delivered"))
	if err != nil {
		logger.Warn("create delivery failure counter", zap.Error(err))
	}
	latency, err := meter.Float64Histogram("relay.delivery.duration",
		metric.WithDescription("Time spent handing a notification to the delivery channel"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("create delivery latency histogram", zap.Error(err))
	}
	timeout := cfg.Relay.DeliveryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{notifier: notifier, timeout: timeout, logger: logger, failed: failed, latency: latency}
}

// Notify delivers n and reports whether it went through.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) bool {
	if n.Recipient == 0 {
		return false
	}
	sendCtx, cancel := d.detach(ctx)
	defer cancel()

	start := time.Now()
	err := d.notifier.Send(sendCtx, n)
	d.observe(ctx, string(n.Kind), time.Since(start))
	if err != nil {
		d.logger.Error("notification not delivered",
			zap.Int64("recipient", n.Recipient),
			zap.String("kind", string(n.Kind)),
			zap.String("order_number", n.OrderNumber),
			zap.Error(err),
		)
		d.countFailure(ctx, string(n.Kind))
		return false
	}
	return true
}

// NotifyAll delivers notifications concurrently and waits for all of them.
// The result is index-aligned with ns.
func (d *Dispatcher) NotifyAll(ctx context.Context, ns ...Notification) []bool {
	delivered := make([]bool, len(ns))
	var g errgroup.Group
	for i := range ns {
		g.Go(func() error {
			delivered[i] = d.Notify(ctx, ns[i])
			return nil
		})
	}
	_ = g.Wait()
	return delivered
}

// Retract disables a previously delivered action.
func (d *Dispatcher) Retract(ctx context.Context, recipient int64, ref ActionRef) bool {
	if recipient == 0 {
		return false
	}
	sendCtx, cancel := d.detach(ctx)
	defer cancel()

	if err := d.notifier.RetractAction(sendCtx, recipient, ref); err != nil {
		d.logger.Warn("action not retracted",
			zap.Int64("recipient", recipient),
			zap.String("order_number", ref.OrderNumber),
			zap.Error(err),
		)
		d.countFailure(ctx, "retract")
		return false
	}
	return true
}

func (d *Dispatcher) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
}

func (d *Dispatcher) countFailure(ctx context.Context, kind string) {
	if d.failed == nil {
		return
	}
	d.failed.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (d *Dispatcher) observe(ctx context.Context, kind string, elapsed time.Duration) {
	if d.latency == nil {
		return
	}
	d.latency.Record(context.WithoutCancel(ctx), elapsed.Seconds(), metric.WithAttributes(attribute.String("kind", kind)))
}
