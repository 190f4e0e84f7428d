package question

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/zhouzirui/askmore/backend/internal/metrics"
	"github.com/zhouzirui/askmore/backend/internal/model/question"
)

const (
	DefaultMaxAttempts     = 4
	DefaultNumQuestions    = 3
	DefaultNumAnswers      = 3
	defaultInitialInterval = time.Second
	defaultMaxInterval     = 30 * time.Second
)

// Generator performs one generation call and returns the parsed, unvalidated
// response tree.
type Generator interface {
	Generate(ctx context.Context, query string, numQuestions, numAnswers int) (any, error)
}

// Sleeper suspends the caller between attempts. It returns early with the
// context error when ctx ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Request describes one resilient generation.
type Request struct {
	Query        string
	NumQuestions int
	NumAnswers   int
	// MaxAttempts overrides the orchestrator budget when positive.
	MaxAttempts int
	// Observer, when set, receives every state transition.
	Observer func(Event)
}

// State is a step of the retry state machine.
type State string

const (
	StateAttempting State = "attempting"
	StateBackoff    State = "backoff"
	StateSucceeded  State = "succeeded"
	StateFallback   State = "fallback"
)

// Event reports a state transition to a request Observer.
type Event struct {
	State       State
	Attempt     int
	MaxAttempts int
	Kind        question.ErrorKind
	Err         error
	Delay       time.Duration
}

// Result is what the orchestrator hands back. Questions is never empty.
type Result struct {
	Questions       question.Set
	Attempts        int
	Fallback        bool
	FallbackVersion string
	LastErrorKind   question.ErrorKind
}

// Orchestrator drives a Generator and a Validator through bounded attempts
// with exponential backoff and falls back to a static set on exhaustion.
type Orchestrator struct {
	generator   Generator
	validator   *Validator
	sleeper     Sleeper
	logger      *zap.Logger
	maxAttempts int
	newBackOff  func() backoff.BackOff
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithValidator replaces the default lenient validator.
func WithValidator(v *Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithSleeper injects the backoff sleep source.
func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) { o.sleeper = s }
}

// WithLogger sets the logger used for attempt failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMaxAttempts sets the default attempt budget.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithInitialInterval changes the first backoff delay; later delays double.
func WithInitialInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.newBackOff = func() backoff.BackOff { return newExponential(d) }
	}
}

// NewOrchestrator builds an orchestrator around gen.
func NewOrchestrator(gen Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		generator:   gen,
		validator:   NewValidator(false),
		sleeper:     timerSleeper{},
		logger:      zap.NewNop(),
		maxAttempts: DefaultMaxAttempts,
		newBackOff:  func() backoff.BackOff { return newExponential(defaultInitialInterval) },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func newExponential(initial time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initial),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(defaultMaxInterval),
		backoff.WithMaxElapsedTime(0),
	)
	b.Reset()
	return b
}

// GenerateWithResilience returns a usable question set for query. It never
// fails; see Generate for the details of the attempt.
func (o *Orchestrator) GenerateWithResilience(ctx context.Context, query string, numQuestions, numAnswers int) question.Set {
	return o.Generate(ctx, Request{Query: query, NumQuestions: numQuestions, NumAnswers: numAnswers}).Questions
}

// Generate runs the retry state machine for req.
func (o *Orchestrator) Generate(ctx context.Context, req Request) Result {
	started := time.Now()
	defer func() { metrics.GenerationDuration.Observe(time.Since(started).Seconds()) }()

	req.Query = strings.TrimSpace(req.Query)
	req.NumQuestions = clamp(orDefault(req.NumQuestions, DefaultNumQuestions), question.MinQuestions, question.MaxQuestions)
	req.NumAnswers = clamp(orDefault(req.NumAnswers, DefaultNumAnswers), question.MinAnswers, question.MaxAnswers)
	maxAttempts := o.maxAttempts
	if req.MaxAttempts > 0 {
		maxAttempts = req.MaxAttempts
	}

	policy := o.newBackOff()
	limits := Limits{NumQuestions: req.NumQuestions, NumAnswers: req.NumAnswers}

	var (
		state    = StateAttempting
		attempt  int
		delay    time.Duration
		lastErr  error
		lastKind question.ErrorKind
		set      question.Set
	)
	for {
		switch state {
		case StateAttempting:
			attempt++
			o.notify(req, Event{State: StateAttempting, Attempt: attempt, MaxAttempts: maxAttempts})

			var err error
			set, err = o.attempt(ctx, req, limits)
			if err == nil {
				metrics.GenerationAttempts.WithLabelValues("success", "").Inc()
				state = StateSucceeded
				continue
			}

			lastErr, lastKind = err, question.KindOf(err)
			metrics.GenerationAttempts.WithLabelValues("failure", string(lastKind)).Inc()
			o.logger.Warn("question generation attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.String("kind", string(lastKind)),
				zap.Error(err),
			)

			if attempt >= maxAttempts || ctx.Err() != nil {
				state = StateFallback
				continue
			}
			if delay = policy.NextBackOff(); delay == backoff.Stop {
				state = StateFallback
				continue
			}
			state = StateBackoff
			o.notify(req, Event{
				State:       StateBackoff,
				Attempt:     attempt,
				MaxAttempts: maxAttempts,
				Kind:        lastKind,
				Err:         err,
				Delay:       delay,
			})

		case StateBackoff:
			if err := o.sleeper.Sleep(ctx, delay); err != nil {
				o.logger.Info("question generation cancelled during backoff",
					zap.Int("attempt", attempt), zap.Error(err))
				state = StateFallback
				continue
			}
			state = StateAttempting

		case StateSucceeded:
			o.notify(req, Event{State: StateSucceeded, Attempt: attempt, MaxAttempts: maxAttempts})
			return Result{Questions: set, Attempts: attempt, LastErrorKind: lastKind}

		case StateFallback:
			metrics.GenerationFallbacks.Inc()
			o.logger.Error("question generation exhausted, serving fallback set",
				zap.Int("attempts", attempt),
				zap.String("last_kind", string(lastKind)),
				zap.String("fallback_version", FallbackVersion()),
			)
			o.notify(req, Event{
				State:       StateFallback,
				Attempt:     attempt,
				MaxAttempts: maxAttempts,
				Kind:        lastKind,
				Err:         lastErr,
			})
			return Result{
				Questions:       Fallback(req.NumQuestions),
				Attempts:        attempt,
				Fallback:        true,
				FallbackVersion: FallbackVersion(),
				LastErrorKind:   lastKind,
			}
		}
	}
}

func (o *Orchestrator) attempt(ctx context.Context, req Request, limits Limits) (question.Set, error) {
	raw, err := o.generator.Generate(ctx, req.Query, req.NumQuestions, req.NumAnswers)
	if err != nil {
		return question.Set{}, err
	}
	return o.validator.Validate(raw, limits)
}

func (o *Orchestrator) notify(req Request, ev Event) {
	if req.Observer != nil {
		req.Observer(ev)
	}
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
