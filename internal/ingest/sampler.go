package ingest

import (
	"image"
	"sync/atomic"
	"time"

	"github.com/jxs/hawkeye/internal/slate"
)

// sampledFrame pairs a monotonic timestamp with the frame it was derived
// from; fingerprinting happens lazily in the ticker goroutine so a burst of
// decoded frames only costs one luminance resize per tick, not one per
// frame.
type sampledFrame struct {
	at  time.Time
	img image.Image
}

// Sampler holds the single most recently decoded frame and emits its
// fingerprint at most once per samplingInterval. It never buffers: a frame
// arriving between ticks overwrites whatever is currently held (drop-oldest
// backpressure), so a slow comparator cannot make the pipeline queue memory
// unboundedly.
type Sampler struct {
	interval time.Duration
	latest   atomic.Pointer[sampledFrame]
	onSample func(time.Time, slate.Fingerprint)
	stop     chan struct{}
	done     chan struct{}
}

// NewSampler builds a Sampler that calls onSample at most once every
// interval with the most recently submitted frame's fingerprint.
func NewSampler(interval time.Duration, onSample func(time.Time, slate.Fingerprint)) *Sampler {
	s := &Sampler{
		interval: interval,
		onSample: onSample,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Submit hands the sampler a newly decoded frame, overwriting any frame
// submitted since the last tick.
func (s *Sampler) Submit(img image.Image) {
	s.latest.Store(&sampledFrame{at: time.Now(), img: img})
}

func (s *Sampler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			frame := s.latest.Swap(nil)
			if frame == nil {
				continue
			}
			fp := slate.Compute(frame.img)
			if s.onSample != nil {
				s.onSample(frame.at, fp)
			}
		}
	}
}

// Close stops the sampler's ticker goroutine.
func (s *Sampler) Close() {
	close(s.stop)
	<-s.done
}
