package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
)

// Sample is one demuxed H.264 access unit in Annex-B form.
type Sample struct {
	PTS        int64
	DTS        int64
	AnnexB     []byte
	IsKeyframe bool
}

// Depacketizer feeds raw MPEG-TS bytes into mediacommon's streaming reader
// and emits decoded H.264 access units. Unlike a general-purpose daemon that
// demuxes every elementary stream type, the Watcher's ingest contract names
// a single fixed codec (source.codec == "h264"), so only the video track is
// wired up; any other track mediacommon reports is logged and ignored.
type Depacketizer struct {
	logger *slog.Logger
	onData func(Sample)

	reader *mpegts.Reader

	pipeMu     sync.Mutex
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter

	initDone chan struct{}
	initOnce sync.Once
	initErr  error

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDepacketizer starts the background reader goroutine and returns a
// Depacketizer ready to accept Write calls. onData is invoked synchronously
// from that goroutine for every decoded access unit.
func NewDepacketizer(logger *slog.Logger, onData func(Sample)) *Depacketizer {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()

	d := &Depacketizer{
		logger:     logger,
		onData:     onData,
		pipeReader: pr,
		pipeWriter: pw,
		initDone:   make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}

	go d.run()
	return d
}

func (d *Depacketizer) run() {
	defer d.pipeReader.Close()

	d.reader = &mpegts.Reader{R: d.pipeReader}

	if err := d.reader.Initialize(); err != nil {
		d.initOnce.Do(func() {
			d.initErr = fmt.Errorf("initializing mpegts reader: %w", err)
			close(d.initDone)
		})
		return
	}

	var videoFound bool
	for _, track := range d.reader.Tracks() {
		if _, ok := track.Codec.(*mpegts.CodecH264); ok {
			videoFound = true
			d.reader.OnDataH264(track, func(pts, dts int64, au [][]byte) error {
				d.handleH264(pts, dts, au)
				return nil
			})
			continue
		}
		d.logger.Debug("ignoring non-video track", slog.Uint64("pid", uint64(track.PID)))
	}

	d.initOnce.Do(func() {
		if !videoFound {
			d.initErr = fmt.Errorf("no h264 video track found in stream")
		}
		close(d.initDone)
	})

	d.reader.OnDecodeError(func(err error) {
		d.logger.Debug("mpeg-ts decode error", slog.String("error", err.Error()))
	})

	for {
		select {
		case <-d.ctx.Done():
			return
		default:
			if err := d.reader.Read(); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
					return
				}
				d.logger.Info("mpeg-ts reader stopped", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (d *Depacketizer) handleH264(pts, dts int64, au [][]byte) {
	if len(au) == 0 {
		return
	}

	isKeyframe := h264.IsRandomAccess(au)
	annexB, err := h264.AnnexB(au).Marshal()
	if err != nil || len(annexB) == 0 {
		return
	}

	if d.onData != nil {
		d.onData(Sample{PTS: pts, DTS: dts, AnnexB: annexB, IsKeyframe: isKeyframe})
	}
}

// Write forwards raw MPEG-TS bytes (RTP payloads in arrival order) into the
// demuxer.
func (d *Depacketizer) Write(data []byte) error {
	d.pipeMu.Lock()
	defer d.pipeMu.Unlock()
	_, err := d.pipeWriter.Write(data)
	if err != nil {
		return fmt.Errorf("writing to depacketizer pipe: %w", err)
	}
	return nil
}

// WaitInitialized blocks until the reader discovers tracks or fails.
func (d *Depacketizer) WaitInitialized(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.initDone:
		return d.initErr
	}
}

// Close stops the depacketizer and releases its pipe.
func (d *Depacketizer) Close() {
	d.cancel()
	d.pipeWriter.Close()
}
