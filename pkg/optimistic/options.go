package optimistic

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/mohallaa/mohallaa/pkg/toast"
)

// Policy decides what happens to an action whose target is busy.
type Policy int

const (
	// PolicyDropWhileBusy rejects the action with ErrTargetBusy.
	// This is the default policy.
	PolicyDropWhileBusy Policy = iota

	// PolicySupersede cancels the pending action, which resolves as
	// superseded, and proceeds immediately.
	PolicySupersede

	// PolicyQueue waits for the pending action to resolve.
	PolicyQueue
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case PolicyDropWhileBusy:
		return "drop"
	case PolicySupersede:
		return "supersede"
	case PolicyQueue:
		return "queue"
	default:
		return "unknown"
	}
}

// ParsePolicy converts a policy name to a Policy.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "", "drop":
		return PolicyDropWhileBusy, true
	case "supersede":
		return PolicySupersede, true
	case "queue":
		return PolicyQueue, true
	default:
		return PolicyDropWhileBusy, false
	}
}

// DefaultTimeout bounds how long a commit may stay pending.
const DefaultTimeout = 30 * time.Second

// defaultQueueMax is used when Queue is given a non-positive size.
const defaultQueueMax = 10

type config struct {
	name     string
	policy   Policy
	queueMax int
	timeout  time.Duration
	notifier toast.Notifier
	logger   *slog.Logger
	registry *Registry
	limiter  *rate.Limiter
	metrics  *Metrics
	tracer   trace.Tracer
}

// Option configures a Coordinator.
type Option func(*config)

// WithName names the coordinator in logs, metrics and spans.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// DropWhileBusy rejects actions for busy targets. This is the default.
func DropWhileBusy() Option {
	return func(c *config) { c.policy = PolicyDropWhileBusy }
}

// Supersede lets a new action cancel and replace the pending one.
func Supersede() Option {
	return func(c *config) { c.policy = PolicySupersede }
}

// Queue serializes actions per target, holding at most max waiters.
func Queue(max int) Option {
	if max <= 0 {
		max = defaultQueueMax
	}
	return func(c *config) {
		c.policy = PolicyQueue
		c.queueMax = max
	}
}

// WithPolicy sets the policy directly; max applies to PolicyQueue.
func WithPolicy(p Policy, max int) Option {
	switch p {
	case PolicySupersede:
		return Supersede()
	case PolicyQueue:
		return Queue(max)
	default:
		return DropWhileBusy()
	}
}

// WithTimeout bounds commits. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithNotifier sets where outcome notifications go.
func WithNotifier(n toast.Notifier) Option {
	return func(c *config) { c.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithRegistry shares a Registry between coordinators.
func WithRegistry(r *Registry) Option {
	return func(c *config) { c.registry = r }
}

// WithRateLimit allows at most perSecond actions per second with the given
// burst. Excess actions are dropped with ErrBudgetExceeded.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *config) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMetrics records outcomes and commit latency.
func WithMetrics(m *Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithTracer sets the tracer used for action spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *config) { c.tracer = t }
}
