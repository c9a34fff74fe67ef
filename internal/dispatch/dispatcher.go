// Package dispatch maps job types to the handlers that perform them and keeps
// every handler failure inside the dispatcher boundary.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"scheduler/internal/domain"
)

// Outcome is what a handler reports: a result on success or an error on failure.
type Outcome struct {
	Result domain.Result
	Err    error
}

// Succeed reports a successful run.
func Succeed(result domain.Result) Outcome {
	if result == nil {
		result = domain.Result{}
	}
	return Outcome{Result: result}
}

// Fail reports a failed run. A nil err is still treated as a failure.
func Fail(err error) Outcome {
	if err == nil {
		err = errors.New("handler reported failure")
	}
	return Outcome{Err: err}
}

// Handler performs one job. Handlers are synchronous and single-shot.
type Handler interface {
	Handle(ctx context.Context, params domain.Params) Outcome
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, params domain.Params) Outcome

func (f HandlerFunc) Handle(ctx context.Context, params domain.Params) Outcome {
	return f(ctx, params)
}

// HandlerError is a failure reported by, or recovered from, a handler.
// Its message is the handler's own so it can be recorded verbatim.
type HandlerError struct {
	Type domain.JobType
	Err  error
}

func (e *HandlerError) Error() string { return e.Err.Error() }

func (e *HandlerError) Unwrap() []error { return []error{domain.ErrHandler, e.Err} }

// Dispatcher holds the handler lookup table.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[domain.JobType]Handler

	timeout time.Duration
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each invocation. Zero leaves handlers unbounded.
// A handler that ignores its context keeps running in the background after
// the deadline; its late outcome is discarded.
func WithTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.timeout = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(dp *Dispatcher) { dp.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(dp *Dispatcher) {
		if tracer != nil {
			dp.tracer = tracer
		}
	}
}

// New creates a dispatcher with no handlers registered.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[domain.JobType]Handler),
		logger:   zerolog.Nop(),
		tracer:   otel.Tracer("scheduler/dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register binds handler to jobType, replacing any previous binding.
func (d *Dispatcher) Register(jobType domain.JobType, handler Handler) error {
	jobType = domain.ParseJobType(string(jobType))
	if jobType == "" {
		return fmt.Errorf("%w: job type is required", domain.ErrValidation)
	}
	if handler == nil {
		return fmt.Errorf("%w: handler for %q is nil", domain.ErrValidation, jobType)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[jobType] = handler
	return nil
}

// Types returns the registered job types in sorted order.
func (d *Dispatcher) Types() []domain.JobType {
	d.mu.RLock()
	defer d.mu.RUnlock()
	types := make([]domain.JobType, 0, len(d.handlers))
	for t := range d.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Invoke runs the handler registered for jobType. It never panics: an unknown
// type is a validation error and anything the handler raises comes back as an error.
func (d *Dispatcher) Invoke(ctx context.Context, jobType domain.JobType, params domain.Params) (domain.Result, error) {
	jobType = domain.ParseJobType(string(jobType))

	ctx, span := d.tracer.Start(ctx, "job.invoke", trace.WithAttributes(
		attribute.String("job.type", string(jobType)),
	))
	defer span.End()

	d.mu.RLock()
	handler, ok := d.handlers[jobType]
	d.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("%w: unknown job type %q", domain.ErrValidation, jobType)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := d.call(ctx, jobType, handler, params)
	if out.Err != nil {
		err := out.Err
		if !errors.Is(err, domain.ErrValidation) {
			err = &HandlerError{Type: jobType, Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if out.Result == nil {
		out.Result = domain.Result{}
	}
	return out.Result, nil
}

func (d *Dispatcher) call(ctx context.Context, jobType domain.JobType, handler Handler, params domain.Params) Outcome {
	if d.timeout <= 0 {
		return d.safeHandle(ctx, jobType, handler, params)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		done <- d.safeHandle(ctx, jobType, handler, params)
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		d.logger.Warn().Str("job_type", string(jobType)).Dur("timeout", d.timeout).Msg("dispatch: handler did not return before deadline")
		return Fail(ctx.Err())
	}
}

func (d *Dispatcher) safeHandle(ctx context.Context, jobType domain.JobType, handler Handler, params domain.Params) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("job_type", string(jobType)).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("dispatch: handler panicked")
			out = Fail(fmt.Errorf("panic in %s handler: %v", jobType, r))
		}
	}()
	return handler.Handle(ctx, params)
}
