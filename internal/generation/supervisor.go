// Package generation runs language-model generation under a hard time bound
// and applies the answer acceptance policy.
package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"medrag/internal/domain"
)

// DefaultTimeout bounds a single generation.
const DefaultTimeout = 1500 * time.Second

// Worker executes a Job in isolation. Implementations must stop promptly
// once ctx is done.
type Worker interface {
	Run(ctx context.Context, job Job) (string, error)
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context, job Job) (string, error)

func (f WorkerFunc) Run(ctx context.Context, job Job) (string, error) { return f(ctx, job) }

// InProcess runs jobs on a goroutine inside this process.
func InProcess(r *Runner) Worker { return WorkerFunc(r.Run) }

// Supervisor runs one job at a time on its worker and gives up after the
// timeout. A late result from an abandoned worker is discarded.
type Supervisor struct {
	name    string
	worker  Worker
	timeout time.Duration
	slot    chan struct{}
	logger  *slog.Logger
}

func NewSupervisor(name string, worker Worker, timeout time.Duration, logger *slog.Logger) *Supervisor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		name:    name,
		worker:  worker,
		timeout: timeout,
		slot:    make(chan struct{}, 1),
		logger:  logger.With("component", "generation", "backend", name),
	}
}

type outcome struct {
	answer string
	err    error
}

// ErrTimeout is returned by Complete when the backend did not produce an
// answer within the timeout.
var ErrTimeout = errors.New("generation timed out")

// Generate returns the worker's answer, or TimeoutMessage if it does not
// finish within the timeout. Waiting for a busy backend and running the
// worker are each bounded by the timeout.
func (s *Supervisor) Generate(ctx context.Context, job Job) (string, error) {
	answer, err := s.run(ctx, job)
	if errors.Is(err, ErrTimeout) {
		return TimeoutMessage, nil
	}
	return answer, err
}

// Name identifies the supervised backend.
func (s *Supervisor) Name() string { return s.name }

// Complete runs a plain prompt on the general backend under the same slot
// and timeout as Generate, so other model users such as translation never
// run beside a generation. A timeout is reported as ErrTimeout.
func (s *Supervisor) Complete(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	return s.run(ctx, Job{Kind: Completion, Prompt: prompt, Options: &opts})
}

func (s *Supervisor) run(ctx context.Context, job Job) (string, error) {
	wait := time.NewTimer(s.timeout)
	defer wait.Stop()
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-wait.C:
		s.logger.Warn("backend still busy, giving up", "kind", job.Kind, "waited", s.timeout)
		return "", ErrTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// buffered so an abandoned worker never blocks on send
	done := make(chan outcome, 1)
	started := time.Now()
	go func() {
		// the slot is held until the worker has actually stopped
		defer func() { <-s.slot }()
		answer, err := s.worker.Run(runCtx, job)
		done <- outcome{answer, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if errors.Is(o.err, context.DeadlineExceeded) && runCtx.Err() != nil && ctx.Err() == nil {
				return "", s.timedOut(started)
			}
			return "", o.err
		}
		s.logger.Debug("generation finished", "kind", job.Kind, "elapsed", time.Since(started))
		return o.answer, nil
	case <-runCtx.Done():
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "", s.timedOut(started)
	}
}

func (s *Supervisor) timedOut(started time.Time) error {
	s.logger.Warn("generation timed out, worker terminated", "timeout", s.timeout, "elapsed", time.Since(started))
	return ErrTimeout
}

// Timeout returns the configured time bound.
func (s *Supervisor) Timeout() time.Duration { return s.timeout }
