package health

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the binary verdict of a probe or of a whole report.
// The zero value is Down.
type Status int

const (
	Down Status = iota
	Up
)

func (s Status) String() string {
	if s == Up {
		return "up"
	}
	return "down"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Checker performs the raw dependency operation. nil = reachable.
type Checker interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Checker.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Result is the outcome of one probe invocation.
type Result struct {
	Name     string
	Status   Status
	Detail   string // empty when Up
	Duration time.Duration
}

// Spec registers one dependency probe.
type Spec struct {
	Name    string
	Timeout time.Duration
	Check   Checker
}

// detail strings end up in logs; keep them to a line.
const maxDetailLen = 200

// Run executes the check under the spec's own timeout and never fails: errors,
// panics and deadline expiry all become a Down result. Run returns as soon as
// the deadline passes even if the check has not noticed its cancelled context yet.
func (s Spec) Run(ctx context.Context) Result {
	start := time.Now()
	res := Result{Name: s.Name, Status: Down}

	if s.Check == nil {
		res.Detail = "no check configured"
		return res
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(parent, s.Timeout)
	defer cancel()

	// buffered so a check that outlives the deadline can still finish and exit
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- s.Check.Check(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	res.Duration = time.Since(start)

	if err == nil {
		res.Status = Up
		return res
	}
	res.Detail = describe(ctx, parent, err, s.Timeout, res.Duration)
	return res
}

// describe turns a check failure into a one-line detail. The caller's context
// is consulted first so a deadline it imposed is not reported as the probe's.
func describe(ctx, parent context.Context, err error, timeout, elapsed time.Duration) string {
	switch {
	case errors.Is(parent.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("caller deadline exceeded after %s", elapsed.Round(time.Millisecond))
	case errors.Is(parent.Err(), context.Canceled):
		return "canceled"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("timed out after %s", timeout)
	}
	msg := err.Error()
	if msg == "" {
		msg = fmt.Sprintf("%T", err)
	}
	if len(msg) > maxDetailLen {
		msg = msg[:maxDetailLen] + "..."
	}
	return msg
}
