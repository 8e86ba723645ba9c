// Package supervisor wires every stage together and owns the process
// lifecycle: startup order, signal-triggered shutdown, and exit codes.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jxs/hawkeye/internal/action"
	"github.com/jxs/hawkeye/internal/compare"
	"github.com/jxs/hawkeye/internal/config"
	"github.com/jxs/hawkeye/internal/ingest"
	httpserver "github.com/jxs/hawkeye/internal/http"
	"github.com/jxs/hawkeye/internal/metrics"
	"github.com/jxs/hawkeye/internal/slate"
	"github.com/jxs/hawkeye/internal/transition"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exit codes per spec.md §6's exit-code table.
const (
	ExitClean              = 0
	ExitConfigurationError = 1
	ExitFatalPipeline      = 2
	ExitPanic              = 3
)

// drainGrace is how long the supervisor waits for in-flight frames/actions
// to settle after a shutdown signal before stopping the remaining stages.
const drainGrace = 2 * time.Second

// shutdownWatchdog force-exits the process if an orderly shutdown takes
// longer than this, per spec.md §5's "no task may block shutdown beyond 5s".
const shutdownWatchdog = 5 * time.Second

// runState backs the /status endpoint's "ready"|"running"|"failed" field.
type runState int32

const (
	stateReady runState = iota
	stateRunning
	stateFailed
)

func (s runState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case stateFailed:
		return "failed"
	default:
		return "ready"
	}
}

// Supervisor owns every stage's lifecycle: construction order, running the
// pipeline, and tearing everything down on signal or fatal error.
type Supervisor struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *metrics.Registry
	library  *slate.Library
	engine   *transition.Engine
	matcher  *transition.Matcher
	executor *action.Executor
	pipeline *ingest.Pipeline
	server   *httpserver.Server

	state runState
}

// New constructs every stage in dependency order: Slate Library, then
// transition Matcher, then Action Executor, then Comparator and Transition
// Engine, then Ingest Pipeline, then Observability Server. It does not start
// anything — call Run for that.
func New(cfg *config.Config, logger *slog.Logger) (*Supervisor, error) {
	s := &Supervisor{cfg: cfg, logger: logger, state: stateReady}

	s.registry = metrics.New()

	urls := slateURLs(cfg)
	library, err := slate.Load(urls)
	if err != nil {
		return nil, fmt.Errorf("loading slate library: %w", err)
	}
	s.library = library
	s.logger.Info("loaded slate library", slog.Int("slates", library.Len()), slog.Any("ids", library.IDs()))

	matcher, err := transition.NewMatcher(cfg.Transitions, library.IDByURL())
	if err != nil {
		return nil, fmt.Errorf("resolving transition rules: %w", err)
	}
	s.matcher = matcher

	s.executor = action.New(cfg.ActionParallelism, config.DefaultActionQueueMax, logger, s.registry)

	comparator := compare.New(library, cfg.MatchThreshold)

	s.engine = transition.New(cfg.StableFrames, s.onTransitionEvent)

	s.pipeline = ingest.New(
		ingest.Config{
			IngestPort:         cfg.Source.IngestPort,
			SamplingInterval:   time.Duration(cfg.SamplingIntervalMS) * time.Millisecond,
			StreamStallTimeout: time.Duration(config.DefaultStreamStallSeconds) * time.Second,
			MaxDecodeRestarts:  config.DefaultMaxDecodeRestarts,
		},
		logger,
		s.registry,
		func(_ time.Time, fp slate.Fingerprint) {
			s.onSample(comparator, fp)
		},
		s.onFatal,
	)

	s.server = httpserver.NewServer(httpserver.DefaultServerConfig(), logger)
	s.registerObservabilityRoutes()

	return s, nil
}

// slateURLs collects every distinct slate URL referenced by the
// configuration's transitions, in declaration order.
func slateURLs(cfg *config.Config) []string {
	var urls []string
	seen := make(map[string]bool)
	add := func(d config.FrameDescriptor) {
		if d.FrameType == config.FrameSlate && d.SlateContext != nil && !seen[d.SlateContext.URL] {
			seen[d.SlateContext.URL] = true
			urls = append(urls, d.SlateContext.URL)
		}
	}
	for _, t := range cfg.Transitions {
		add(t.From)
		add(t.To)
	}
	return urls
}

// onSample runs on the sampler's ticker goroutine: classify, feed the
// transition engine, and record the always-present best-score gauge.
func (s *Supervisor) onSample(comparator *compare.Comparator, fp slate.Fingerprint) {
	c := comparator.Classify(fp)
	s.registry.SlateMatchScore.Set(c.Score)
	if c.IsSlate {
		s.registry.SlateMatches.WithLabelValues(c.SlateID).Inc()
	}

	kind := transition.Content
	if c.IsSlate {
		kind = transition.Slate
	}
	s.engine.Observe(transition.Classification{Kind: kind, SlateID: c.SlateID})

	switch kind {
	case transition.Content:
		s.registry.CurrentState.Set(metrics.StateContent)
	case transition.Slate:
		s.registry.CurrentState.Set(metrics.StateSlate)
	}
}

// onTransitionEvent runs synchronously from Engine.Observe. It must stay
// non-blocking: Submit queues the actions and returns immediately.
func (s *Supervisor) onTransitionEvent(ev transition.Event) {
	s.registry.Transitions.WithLabelValues(ev.From.Kind.String(), ev.To.Kind.String()).Inc()

	actions, ok := s.matcher.Match(ev)
	if !ok {
		s.registry.TransitionsUnmatched.Inc()
		s.logger.Debug("transition with no matching rule",
			slog.String("from", ev.From.Kind.String()), slog.String("to", ev.To.Kind.String()))
		return
	}
	s.executor.Submit(actions)
}

// onFatal is invoked by the ingest pipeline when its restart budget is
// exhausted. It flips /status to "failed"; Run observes the error and
// exits with ExitFatalPipeline.
func (s *Supervisor) onFatal(err error) {
	atomic.StoreInt32((*int32)(&s.state), int32(stateFailed))
	s.logger.Error("pipeline escalated a fatal error", slog.String("error", err.Error()))
}

// registerObservabilityRoutes wires /healthcheck, /status, and /metrics
// onto the Observability Server's router, once every stage they report on
// exists.
func (s *Supervisor) registerObservabilityRoutes() {
	router := s.server.Router()

	router.Get("/healthcheck", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		snap := s.engine.Snapshot()
		resp := struct {
			State   string `json:"state"`
			Current string `json:"current"`
			SlateID string `json:"slate_id,omitempty"`
		}{
			State:   runState(atomic.LoadInt32((*int32)(&s.state))).String(),
			Current: snap.Current.Kind.String(),
		}
		if snap.Current.Kind == transition.Slate {
			resp.SlateID = snap.Current.SlateID
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	router.Handle("/metrics", promhttp.HandlerFor(s.registry.Gatherer(), promhttp.HandlerOpts{}))
}

// Run starts every stage and blocks until ctx is cancelled or a fatal
// pipeline error escalates. It returns the exit code spec.md §6 assigns to
// the outcome; the caller (cmd/hawkeye) is responsible for os.Exit.
func (s *Supervisor) Run(ctx context.Context) int {
	// runCtx is not a child of ctx's cancellation, so stages keep running
	// through drainGrace after a signal and stop only when cancel is called.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	atomic.StoreInt32((*int32)(&s.state), int32(stateRunning))

	executorDone := make(chan struct{})
	go func() {
		s.executor.Run(runCtx)
		close(executorDone)
	}()

	pipelineDone := make(chan error, 1)
	go func() {
		pipelineDone <- s.pipeline.Run(runCtx)
	}()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- s.server.ListenAndServe(runCtx)
	}()

	var pipelineErr error
	pipelineStopped := false
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining")
		time.Sleep(drainGrace)
	case pipelineErr = <-pipelineDone:
		// Fatal pipeline escalation; onFatal already flipped state to failed.
		pipelineStopped = true
	}

	cancel()

	done := make(chan struct{})
	go func() {
		<-executorDone
		if !pipelineStopped {
			<-pipelineDone
		}
		<-serverDone
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownWatchdog):
		s.logger.Error("shutdown exceeded watchdog, forcing exit")
		return ExitFatalPipeline
	}

	if pipelineErr != nil {
		return ExitFatalPipeline
	}
	return ExitClean
}
