package ingest

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/jxs/hawkeye/internal/slate"
)

// mpegTSPayloadType is the static RTP payload type RFC 3551 assigns to MP2T
// (MPEG2 Transport Stream, payload format per RFC 2250). Datagrams with any
// other payload type are dropped.
const mpegTSPayloadType = 33

// Metrics is the subset of the process-wide registry the pipeline writes
// to, mirroring internal/action.Metrics's dependency-inversion shape so
// this package stays independently testable.
type Metrics interface {
	FrameReceived()
	FrameSampled()
	FrameDecodeError()
}

type noopMetrics struct{}

func (noopMetrics) FrameReceived()    {}
func (noopMetrics) FrameSampled()     {}
func (noopMetrics) FrameDecodeError() {}

// Config configures one Pipeline run.
type Config struct {
	IngestPort         int
	SamplingInterval   time.Duration
	StreamStallTimeout time.Duration
	MaxDecodeRestarts  int
	FFmpegPath         string
}

// Pipeline wires the RTP receiver, MPEG-TS depacketizer, ffmpeg decoder, and
// sampler into the linear data flow described in spec.md §4.3: UDP
// datagrams -> depacketizer -> decoder -> sampler -> onSample.
type Pipeline struct {
	cfg     Config
	logger  *slog.Logger
	metrics Metrics
	onFatal func(error)

	conn *net.UDPConn

	sampler *Sampler
}

// New constructs a Pipeline. Call Run to bind the UDP socket and start
// processing; Run blocks until ctx is cancelled or a fatal error escalates
// (restart budget exhausted, or bind failure).
func New(cfg Config, logger *slog.Logger, metrics Metrics, onSample func(time.Time, slate.Fingerprint), onFatal func(error)) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	p := &Pipeline{cfg: cfg, logger: logger, metrics: metrics, onFatal: onFatal}
	p.sampler = NewSampler(cfg.SamplingInterval, func(at time.Time, fp slate.Fingerprint) {
		metrics.FrameSampled()
		if onSample != nil {
			onSample(at, fp)
		}
	})
	return p
}

// Run binds the ingest UDP port and processes datagrams until ctx is
// cancelled. A decode stall (no frame for StreamStallTimeout while
// datagrams keep arriving) restarts the decode stage, up to
// MaxDecodeRestarts times within 60 seconds; exceeding that budget escalates
// to onFatal.
func (p *Pipeline) Run(ctx context.Context) error {
	addr := &net.UDPAddr{Port: p.cfg.IngestPort}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("binding ingest port %d: %w", p.cfg.IngestPort, err)
	}
	p.conn = conn
	defer conn.Close()

	restarts := newRestartBudget(p.cfg.MaxDecodeRestarts, 60*time.Second)

	for {
		stageErr := p.runStage(ctx, conn, restarts)
		if ctx.Err() != nil {
			p.sampler.Close()
			return nil
		}
		if stageErr == nil {
			continue
		}

		if !restarts.allow() {
			err := fmt.Errorf("decode stage failed permanently: %w", stageErr)
			p.logger.Error("fatal pipeline escalation", slog.String("error", err.Error()))
			if p.onFatal != nil {
				p.onFatal(err)
			}
			p.sampler.Close()
			return err
		}
		p.logger.Warn("restarting decode stage after stall", slog.String("error", stageErr.Error()))
	}
}

// runStage runs one generation of depacketizer+decoder over the UDP socket,
// returning when a stall is detected (triggering a restart) or ctx is
// cancelled (clean shutdown).
func (p *Pipeline) runStage(ctx context.Context, conn *net.UDPConn, restarts *restartBudget) error {
	var lastFrameAtNano atomic.Int64
	var lastDatagramAt time.Time

	decoder, err := NewDecoder(p.cfg.FFmpegPath, p.logger,
		func(img image.Image) {
			lastFrameAtNano.Store(time.Now().UnixNano())
			p.sampler.Submit(img)
		},
		func(err error) {
			p.metrics.FrameDecodeError()
			p.logger.Debug("frame decode error", slog.String("error", err.Error()))
		},
	)
	if err != nil {
		return fmt.Errorf("starting decoder: %w", err)
	}
	defer decoder.Close()

	depack := NewDepacketizer(p.logger, func(s Sample) {
		if err := decoder.Feed(s.AnnexB); err != nil {
			p.logger.Debug("feeding decoder", slog.String("error", err.Error()))
		}
	})
	defer depack.Close()

	stallTicker := time.NewTicker(p.cfg.StreamStallTimeout)
	defer stallTicker.Stop()

	datagramCh := make(chan []byte, 64)
	readErrCh := make(chan error, 1)
	go p.readDatagrams(conn, datagramCh, readErrCh)

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErrCh:
			return fmt.Errorf("udp read: %w", err)

		case datagram := <-datagramCh:
			lastDatagramAt = time.Now()
			p.metrics.FrameReceived()
			p.handleDatagram(datagram, depack)

		case <-stallTicker.C:
			if lastDatagramAt.IsZero() {
				continue // no traffic yet; not a stall
			}
			if time.Since(lastDatagramAt) > p.cfg.StreamStallTimeout {
				continue // upstream itself went quiet; not a decode stall
			}
			lastFrame := lastFrameAtNano.Load()
			if lastFrame == 0 || time.Since(time.Unix(0, lastFrame)) > p.cfg.StreamStallTimeout {
				restarts.record()
				return fmt.Errorf("no decoded frame for %s while datagrams arrive", p.cfg.StreamStallTimeout)
			}
		}
	}
}

func (p *Pipeline) readDatagrams(conn *net.UDPConn, out chan<- []byte, errCh chan<- error) {
	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			errCh <- err
			return
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		out <- datagram
	}
}

func (p *Pipeline) handleDatagram(datagram []byte, depack *Depacketizer) {
	pkt, err := parseRTP(datagram)
	if err != nil {
		p.logger.Debug("dropping malformed RTP datagram", slog.String("error", err.Error()))
		return
	}
	if pkt.payloadType != mpegTSPayloadType {
		return
	}
	if err := depack.Write(pkt.payload); err != nil {
		p.logger.Debug("depacketizer write failed", slog.String("error", err.Error()))
	}
}

// restartBudget tracks decode-stage restarts within a sliding window,
// implementing "at most MaxDecodeRestarts within 60s" from spec.md §4.3.
type restartBudget struct {
	max     int
	window  time.Duration
	history []time.Time
}

func newRestartBudget(max int, window time.Duration) *restartBudget {
	return &restartBudget{max: max, window: window}
}

func (b *restartBudget) record() {
	b.history = append(b.history, time.Now())
}

func (b *restartBudget) allow() bool {
	cutoff := time.Now().Add(-b.window)
	kept := b.history[:0]
	for _, t := range b.history {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.history = kept
	return len(b.history) <= b.max
}
