// Package action runs configured HTTP actions in the background with
// bounded concurrency, retries, and a non-blocking submission queue. It is
// isolated from the Ingest Pipeline and Transition Engine: a stalled or
// failing action can never stall ingestion.
package action

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jxs/hawkeye/internal/config"
)

// Metrics is the subset of the process-wide registry the executor writes
// to. Defined here (rather than depending on internal/metrics directly) to
// keep the executor testable without a Prometheus registry.
type Metrics interface {
	ActionDispatched(actionDesc string)
	ActionFailed(actionDesc string)
	ActionDropped()
}

// noopMetrics discards every observation; used when the caller does not
// wire a registry (e.g. in unit tests that only care about HTTP behavior).
type noopMetrics struct{}

func (noopMetrics) ActionDispatched(string) {}
func (noopMetrics) ActionFailed(string)     {}
func (noopMetrics) ActionDropped()          {}

// job is one action submitted for execution.
type job struct {
	action config.Action
}

// Executor runs Actions with bounded worker concurrency. Submit never
// blocks: once the queue is full, the oldest pending job is dropped.
type Executor struct {
	client      *http.Client
	logger      *slog.Logger
	metrics     Metrics
	parallelism int
	queueMax    int

	mu      sync.Mutex
	pending []job

	notify chan struct{}
	wg     sync.WaitGroup
}

// New builds an Executor with the given worker count and bounded queue
// depth. Call Run to start the worker pool; it returns once ctx is
// cancelled and every worker has exited. Cancelling ctx aborts in-flight
// attempts and pending backoff waits.
func New(parallelism, queueMax int, logger *slog.Logger, metrics Metrics) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Executor{
		client:      &http.Client{},
		logger:      logger,
		metrics:     metrics,
		parallelism: parallelism,
		queueMax:    queueMax,
		notify:      make(chan struct{}, 1),
	}
}

// Submit enqueues actions for dispatch. It never blocks: if the queue is at
// queueMax capacity, the oldest pending job is dropped and
// actions_dropped_total is incremented.
func (e *Executor) Submit(actions []config.Action) {
	e.mu.Lock()
	for _, a := range actions {
		if len(e.pending) >= e.queueMax {
			e.pending = e.pending[1:]
			e.metrics.ActionDropped()
		}
		e.pending = append(e.pending, job{action: a})
	}
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Run starts parallelism worker goroutines and blocks until ctx is
// cancelled. Each worker pulls pending jobs and executes them independently;
// actions within a single Submit call may complete in any order.
func (e *Executor) Run(ctx context.Context) {
	for i := 0; i < e.parallelism; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
	e.wg.Wait()
}

func (e *Executor) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		j, ok := e.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-e.notify:
				continue
			}
		}

		e.execute(ctx, j.action)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (e *Executor) dequeue() (job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) == 0 {
		return job{}, false
	}
	j := e.pending[0]
	e.pending = e.pending[1:]
	return j, true
}

// backoff returns the wait before retrying after the given 1-indexed
// attempt: min(30s, 2^attempt * 250ms).
func backoff(attempt int) time.Duration {
	const ceiling = 30 * time.Second
	const base = 250 * time.Millisecond

	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}

func (e *Executor) execute(ctx context.Context, a config.Action) {
	e.metrics.ActionDispatched(a.Description)

	attempts := a.Retries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff(attempt)):
			case <-ctx.Done():
				return
			}
		}

		err := e.attempt(ctx, a)
		if err == nil {
			return
		}
		lastErr = err
	}

	e.metrics.ActionFailed(a.Description)
	e.logger.Warn("action failed after exhausting retries",
		slog.String("action", a.Description),
		slog.Int("attempts", attempts),
		slog.String("error", lastErr.Error()),
	)
}

func (e *Executor) attempt(ctx context.Context, a config.Action) error {
	attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(a.Timeout)*time.Second)
	defer cancel()

	var body *bytes.Reader
	if a.Body != "" {
		body = bytes.NewReader([]byte(a.Body))
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(attemptCtx, a.Method, a.URL, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}
	if a.Authorization != nil && a.Authorization.Basic != nil {
		req.SetBasicAuth(a.Authorization.Basic.Username, a.Authorization.Basic.Password)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return fmt.Errorf("non-success status %d", resp.StatusCode)
	}
	return nil
}

// basicAuthHeader is exposed for tests that want to assert on the exact
// header value without constructing a full request.
func basicAuthHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}
