package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
	"github.com/mohallaa/mohallaa/pkg/toast"
)

const tracerName = "github.com/mohallaa/mohallaa/pkg/optimistic"

// Coordinator runs optimistic actions against a State. Actions sharing a
// target are serialized according to the coordinator's Policy.
type Coordinator[S any] struct {
	state    *State[S]
	cfg      config
	registry *Registry
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a Coordinator mutating state.
func New[S any](state *State[S], opts ...Option) *Coordinator[S] {
	cfg := config{
		name:     "default",
		policy:   PolicyDropWhileBusy,
		queueMax: defaultQueueMax,
		timeout:  DefaultTimeout,
		notifier: toast.Discard,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = NewRegistry()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.notifier == nil {
		cfg.notifier = toast.Discard
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(tracerName)
	}

	return &Coordinator[S]{
		state:    state,
		cfg:      cfg,
		registry: cfg.registry,
		logger:   cfg.logger.With("component", "optimistic", "coordinator", cfg.name),
		tracer:   cfg.tracer,
	}
}

// State returns the state cell the coordinator mutates.
func (c *Coordinator[S]) State() *State[S] { return c.state }

// Policy returns the coordinator's same-target policy.
func (c *Coordinator[S]) Policy() Policy { return c.cfg.policy }

// Busy reports whether target has a pending action.
func (c *Coordinator[S]) Busy(target string) bool {
	return target != "" && c.registry.Busy(target)
}

// InFlight returns the number of targets with a pending action.
func (c *Coordinator[S]) InFlight() int { return c.registry.Pending() }

// base is the state recorded for a superseded target, tagged with the State
// it belongs to since a Registry may be shared.
type base[S any] struct {
	state *State[S]
	value S
}

// pending is an applied action awaiting its commit.
type pending[S any] struct {
	action   Action[S]
	token    uint64
	snapshot S
	span     trace.Span
	ctx      context.Context
}

// Run applies a, commits it and reconciles the state with the result. It
// blocks until the action resolves. The returned error is nil only for
// OutcomeConfirmed and OutcomeSuperseded.
func (c *Coordinator[S]) Run(ctx context.Context, a Action[S]) (Outcome, error) {
	a = withID(a)
	p, err := c.begin(ctx, a)
	if err != nil {
		return OutcomeDropped, err
	}
	return c.finish(p)
}

// Go is Run without blocking. Unless the coordinator queues, the action has
// been applied (or dropped) when Go returns. The channel receives exactly
// one Result.
func (c *Coordinator[S]) Go(ctx context.Context, a Action[S]) <-chan Result {
	out := make(chan Result, 1)
	a = withID(a)

	if c.cfg.policy == PolicyQueue {
		go func() {
			p, err := c.begin(ctx, a)
			if err != nil {
				out <- Result{ID: a.ID, Outcome: OutcomeDropped, Err: err}
				return
			}
			o, err := c.finish(p)
			out <- Result{ID: p.action.ID, Outcome: o, Err: err}
		}()
		return out
	}

	p, err := c.begin(ctx, a)
	if err != nil {
		out <- Result{ID: a.ID, Outcome: OutcomeDropped, Err: err}
		return out
	}
	go func() {
		o, err := c.finish(p)
		out <- Result{ID: p.action.ID, Outcome: o, Err: err}
	}()
	return out
}

func withID[S any](a Action[S]) Action[S] {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return a
}

// begin claims the target and applies the action.
func (c *Coordinator[S]) begin(ctx context.Context, a Action[S]) (*pending[S], error) {
	if a.Apply == nil || a.Commit == nil {
		return nil, ErrInvalidAction
	}
	if c.cfg.limiter != nil && !c.cfg.limiter.Allow() {
		c.drop(a, ErrBudgetExceeded)
		return nil, ErrBudgetExceeded
	}

	spanCtx, span := c.tracer.Start(ctx, "optimistic.run", trace.WithAttributes(
		attribute.String("optimistic.coordinator", c.cfg.name),
		attribute.String("optimistic.action_id", a.ID),
		attribute.String("optimistic.target", a.Target),
		attribute.String("optimistic.policy", c.cfg.policy.String()),
	))

	var (
		token    uint64
		snapshot S
		fire     func()
		applied  bool
	)
	defer func() {
		if !applied {
			c.release(a.Target, token)
		}
	}()

	if c.cfg.policy == PolicySupersede && a.Target != "" {
		var cancelPrior context.CancelFunc
		// Claim and apply under the state lock so that no pending action on
		// the target can resolve in between.
		_, _, fire = c.state.apply(func(cur S) S {
			snapshot = cur
			token, cancelPrior = c.registry.supersede(a.Target, func(prior any) any {
				if b, ok := prior.(base[S]); ok && b.state == c.state {
					snapshot = b.value
				}
				return base[S]{state: c.state, value: snapshot}
			})
			return a.Apply(cur)
		})
		if cancelPrior != nil {
			cancelPrior()
		}
	} else {
		var err error
		if token, err = c.acquire(ctx, a.Target); err != nil {
			span.End()
			c.drop(a, err)
			return nil, err
		}
		snapshot, _, fire = c.state.apply(a.Apply)
	}
	applied = true
	fire()

	c.cfg.metrics.addInflight(c.cfg.name, 1)
	c.logger.Debug("action applied", "id", a.ID, "target", a.Target)

	return &pending[S]{
		action:   a,
		token:    token,
		snapshot: snapshot,
		span:     span,
		ctx:      spanCtx,
	}, nil
}

func (c *Coordinator[S]) acquire(ctx context.Context, target string) (uint64, error) {
	if target == "" {
		return 0, nil
	}
	switch c.cfg.policy {
	case PolicyQueue:
		return c.registry.enqueue(ctx, target, c.cfg.queueMax)
	default:
		tok, ok := c.registry.tryAcquire(target)
		if !ok {
			return 0, ErrTargetBusy
		}
		return tok, nil
	}
}

func (c *Coordinator[S]) release(target string, token uint64) {
	if target == "" {
		return
	}
	c.registry.release(target, token)
}

func (c *Coordinator[S]) drop(a Action[S], err error) {
	c.cfg.metrics.observeOutcome(c.cfg.name, OutcomeDropped)
	c.logger.Debug("action dropped", "id", a.ID, "target", a.Target, "error", err)
}

// finish commits p and reconciles the state.
func (c *Coordinator[S]) finish(p *pending[S]) (outcome Outcome, err error) {
	a := p.action
	start := time.Now()

	defer func() {
		c.release(a.Target, p.token)
		c.cfg.metrics.addInflight(c.cfg.name, -1)
		c.cfg.metrics.observeCommit(c.cfg.name, time.Since(start))
		c.cfg.metrics.observeOutcome(c.cfg.name, outcome)

		p.span.SetAttributes(attribute.String("optimistic.outcome", outcome.String()))
		if err != nil {
			p.span.RecordError(err)
			p.span.SetStatus(codes.Error, err.Error())
		} else {
			p.span.SetStatus(codes.Ok, "")
		}
		p.span.End()
	}()

	var (
		commitCtx context.Context
		cancel    context.CancelFunc
	)
	if c.cfg.timeout > 0 {
		commitCtx, cancel = context.WithTimeout(p.ctx, c.cfg.timeout)
	} else {
		commitCtx, cancel = context.WithCancel(p.ctx)
	}
	defer cancel()
	if a.Target != "" {
		c.registry.setCancel(a.Target, p.token, cancel)
	}

	confirm, commitErr := commit(commitCtx, a.Commit)
	if commitErr != nil && errors.Is(commitCtx.Err(), context.DeadlineExceeded) && p.ctx.Err() == nil {
		commitErr = fmt.Errorf("%w: %w", ErrTimeout, commitErr)
	}

	resolved := false
	_, _, fire := c.state.applyIf(func(cur S) (S, bool) {
		if a.Target != "" && !c.registry.settle(a.Target, p.token) {
			if commitErr == nil {
				// Displaced but accepted by the server: later rollbacks
				// must keep this action's effect.
				c.registry.rebase(a.Target, func(prior any) any {
					b, ok := prior.(base[S])
					if !ok || b.state != c.state {
						return prior
					}
					b.value = a.Apply(b.value)
					if confirm != nil {
						b.value = confirm(b.value)
					}
					return b
				})
			}
			return cur, false
		}
		resolved = true
		switch {
		case commitErr != nil:
			return a.revert(cur, p.snapshot), true
		case confirm != nil:
			return confirm(cur), true
		default:
			return cur, false
		}
	})
	fire()

	if !resolved {
		c.logger.Debug("action superseded", "id", a.ID, "target", a.Target)
		return OutcomeSuperseded, nil
	}

	if commitErr != nil {
		c.logger.Warn("action rolled back", "id", a.ID, "target", a.Target, "error", commitErr)
		c.notifyError(a.Messages.Error, commitErr)
		return OutcomeRolledBack, commitErr
	}

	c.logger.Debug("action confirmed", "id", a.ID, "target", a.Target)
	if m := a.Messages.Success; !m.IsZero() {
		c.cfg.notifier.Notify(toast.TypeSuccess, m.Title, m.Text)
	}
	return OutcomeConfirmed, nil
}

func (c *Coordinator[S]) notifyError(m Message, err error) {
	if m.IsZero() {
		return
	}
	text := m.Text
	if text == "" {
		text = apperrors.UserMessage(err)
	}
	c.cfg.notifier.Notify(toast.TypeError, m.Title, text)
}

type commitResult[S any] struct {
	confirm Confirm[S]
	err     error
}

// commit runs fn in its own goroutine so that a commit ignoring its context
// cannot hold the action past cancellation.
func commit[S any](ctx context.Context, fn func(context.Context) (Confirm[S], error)) (Confirm[S], error) {
	done := make(chan commitResult[S], 1)
	go func() {
		var res commitResult[S]
		defer func() {
			if r := recover(); r != nil {
				res = commitResult[S]{err: &errCommitPanic{value: r}}
			}
			done <- res
		}()
		res.confirm, res.err = fn(ctx)
	}()

	select {
	case res := <-done:
		return res.confirm, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
