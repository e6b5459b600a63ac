// Package expect polls remote state until it matches or a deadline passes.
//
//	deadline = now + Timeout
//	loop:
//	    value = probe()              // one or more RPCs, raced against the deadline
//	    if matches(value) != negated: ok
//	    if now >= deadline:           AssertionError
//	    sleep(PollInterval)
//
// hidden, disabled and unchecked are visible, enabled and checked with the
// negation flipped, so Not().ToBeHidden() is ToBeVisible().
package expect

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"

	"mini-playwright/config"
	"mini-playwright/errext"
	"mini-playwright/log"
)

const (
	DefaultTimeout      = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// Options configure one assertion. Zero values select the defaults.
type Options struct {
	Timeout      time.Duration
	PollInterval time.Duration
	Logger       *log.Logger
}

// NewOptions takes the assertion defaults from cfg.
func NewOptions(cfg config.Config) Options {
	return Options{Timeout: cfg.ExpectTimeout, PollInterval: cfg.ExpectPollInterval}
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Predicate is one evaluation of remote state.
type Predicate func(ctx context.Context) (bool, error)

// errDeadline marks a Retry that ran out of time.
var errDeadline = errors.New("deadline reached")

// Retry evaluates predicate until it returns true. A poll that starts at the
// deadline is still evaluated. It returns an error
// matching errext.ErrAssertionTimeout once opts.Timeout has elapsed, the
// predicate's own error as soon as it fails, or ctx.Err() if ctx ends first.
func Retry(ctx context.Context, predicate Predicate, opts Options) error {
	opts = opts.withDefaults()
	deadline := time.Now().Add(opts.Timeout)

	for attempt := 1; ; attempt++ {
		// The poll at the deadline still counts; it gets one poll interval
		// to answer.
		bound := deadline
		final := !time.Now().Before(deadline)
		if final {
			bound = time.Now().Add(opts.PollInterval)
		}

		ok, err := evaluate(ctx, predicate, bound)
		switch {
		case errors.Is(err, errDeadline):
			return fmt.Errorf("%w after %v", errext.ErrAssertionTimeout, opts.Timeout)
		case err != nil:
			return err
		case ok:
			opts.Logger.Debugf("expect", "satisfied on attempt %d", attempt)
			return nil
		case final:
			return fmt.Errorf("%w after %v", errext.ErrAssertionTimeout, opts.Timeout)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w after %v", errext.ErrAssertionTimeout, opts.Timeout)
		}
		opts.Logger.Tracef("expect", "attempt %d unmet, %v left", attempt, remaining)

		wait := opts.PollInterval
		if wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

type evalResult struct {
	ok  bool
	err error
}

// evaluate runs predicate bounded by deadline. A predicate still waiting on
// the driver at the deadline counts as unmet.
func evaluate(ctx context.Context, predicate Predicate, deadline time.Time) (bool, error) {
	evalCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	done := make(chan evalResult, 1)
	go func() {
		ok, err := predicate(evalCtx)
		done <- evalResult{ok, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(r.err, context.DeadlineExceeded) && evalCtx.Err() != nil {
			return false, errDeadline
		}
		return r.ok, r.err
	case <-evalCtx.Done():
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return false, errDeadline
	}
}

// Target is what assertions poll. *client.Locator implements it.
type Target interface {
	Selector() string
	IsVisible(ctx context.Context) (bool, error)
	IsEnabled(ctx context.Context) (bool, error)
	IsChecked(ctx context.Context) (bool, error)
	IsEditable(ctx context.Context) (bool, error)
	IsFocused(ctx context.Context) (bool, error)
	InnerText(ctx context.Context) (string, error)
	InputValue(ctx context.Context) (string, error)
}

// Expectation is a single assertion about a Target. It is a value: Not
// returns a flipped copy and leaves the receiver untouched.
type Expectation struct {
	target  Target
	opts    Options
	negated bool
}

// That starts an assertion on target.
func That(target Target, opts Options) Expectation {
	return Expectation{target: target, opts: opts.withDefaults()}
}

func (e Expectation) Not() Expectation {
	e.negated = !e.negated
	return e
}

func (e Expectation) WithTimeout(d time.Duration) Expectation {
	e.opts.Timeout = d
	e.opts = e.opts.withDefaults()
	return e
}

func (e Expectation) WithPollInterval(d time.Duration) Expectation {
	e.opts.PollInterval = d
	e.opts = e.opts.withDefaults()
	return e
}

func (e Expectation) ToBeVisible(ctx context.Context) error {
	return e.state(ctx, "to be visible", e.target.IsVisible)
}

func (e Expectation) ToBeHidden(ctx context.Context) error {
	return e.Not().ToBeVisible(ctx)
}

func (e Expectation) ToBeEnabled(ctx context.Context) error {
	return e.state(ctx, "to be enabled", e.target.IsEnabled)
}

func (e Expectation) ToBeDisabled(ctx context.Context) error {
	return e.Not().ToBeEnabled(ctx)
}

func (e Expectation) ToBeChecked(ctx context.Context) error {
	return e.state(ctx, "to be checked", e.target.IsChecked)
}

func (e Expectation) ToBeUnchecked(ctx context.Context) error {
	return e.Not().ToBeChecked(ctx)
}

func (e Expectation) ToBeEditable(ctx context.Context) error {
	return e.state(ctx, "to be editable", e.target.IsEditable)
}

func (e Expectation) ToBeFocused(ctx context.Context) error {
	return e.state(ctx, "to be focused", e.target.IsFocused)
}

// ToHaveText compares the trimmed inner text with the trimmed expected text.
func (e Expectation) ToHaveText(ctx context.Context, expected string) error {
	expected = strings.TrimSpace(expected)
	return e.text(ctx, "to have text", expected, e.target.InnerText, func(actual string) (bool, error) {
		return actual == expected, nil
	})
}

// ToHaveTextRegex matches pattern (ECMAScript syntax) anywhere in the trimmed inner text.
func (e Expectation) ToHaveTextRegex(ctx context.Context, pattern string) error {
	return e.regex(ctx, "to have text matching", pattern, e.target.InnerText)
}

func (e Expectation) ToContainText(ctx context.Context, expected string) error {
	return e.text(ctx, "to contain text", expected, e.target.InnerText, func(actual string) (bool, error) {
		return strings.Contains(actual, expected), nil
	})
}

func (e Expectation) ToContainTextRegex(ctx context.Context, pattern string) error {
	return e.regex(ctx, "to contain text matching", pattern, e.target.InnerText)
}

// ToHaveValue compares the trimmed input value with the trimmed expected value.
func (e Expectation) ToHaveValue(ctx context.Context, expected string) error {
	expected = strings.TrimSpace(expected)
	return e.text(ctx, "to have value", expected, e.target.InputValue, func(actual string) (bool, error) {
		return actual == expected, nil
	})
}

func (e Expectation) ToHaveValueRegex(ctx context.Context, pattern string) error {
	return e.regex(ctx, "to have value matching", pattern, e.target.InputValue)
}

// observed is the last value a probe saw. An abandoned probe may still write
// it after Retry has returned.
type observed struct {
	mu sync.Mutex
	v  string
}

func (o *observed) set(v string) {
	o.mu.Lock()
	o.v = v
	o.mu.Unlock()
}

func (o *observed) get() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.v
}

func (e Expectation) state(ctx context.Context, assertion string, probe func(context.Context) (bool, error)) error {
	last := &observed{}
	return e.run(ctx, assertion, "", last.get, func(ctx context.Context) (bool, error) {
		v, err := probe(ctx)
		if err != nil {
			return false, err
		}
		last.set(strconv.FormatBool(v))
		return v, nil
	})
}

func (e Expectation) text(ctx context.Context, assertion, expected string,
	probe func(context.Context) (string, error), matches func(string) (bool, error),
) error {
	last := &observed{}
	return e.run(ctx, assertion, expected, last.get, func(ctx context.Context) (bool, error) {
		v, err := probe(ctx)
		if err != nil {
			return false, err
		}
		v = strings.TrimSpace(v)
		last.set(v)
		return matches(v)
	})
}

func (e Expectation) regex(ctx context.Context, assertion, pattern string, probe func(context.Context) (string, error)) error {
	re, err := regexp2.Compile(pattern, regexp2.ECMAScript)
	if err != nil {
		return errext.InvalidArgument("invalid regex %q: %v", pattern, err)
	}
	re.MatchTimeout = e.opts.Timeout
	return e.text(ctx, assertion, pattern, probe, re.MatchString)
}

// run applies negation and turns a timeout into an AssertionError.
func (e Expectation) run(ctx context.Context, assertion, expected string, actual func() string, probe Predicate) error {
	negated := e.negated
	err := Retry(ctx, func(ctx context.Context) (bool, error) {
		ok, err := probe(ctx)
		if err != nil {
			return false, err
		}
		return ok != negated, nil
	}, e.opts)

	if errors.Is(err, errext.ErrAssertionTimeout) {
		return &errext.AssertionError{
			Assertion: assertion,
			Selector:  e.target.Selector(),
			Expected:  expected,
			Actual:    actual(),
			Negated:   negated,
			Timeout:   e.opts.Timeout,
		}
	}
	return err
}
