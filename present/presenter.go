// Package present hands processed and raw frames to two display surfaces.
//
// The playback tick only copies frames into a one-slot mailbox and returns.
// A separate loop started with Run drains the mailbox and shows the processed
// frame first, then the raw one. When displays fall behind, the pending pair
// is replaced by the newer one.
package present

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
	"gocv.io/x/gocv"
)

// Display is a surface able to show a single frame
type Display interface {
	Show(frame gocv.Mat)
}

// FrameBuffers holds the most recent processed and raw frames
type FrameBuffers struct {
	Processed gocv.Mat
	Raw       gocv.Mat
}

// Empty reports whether nothing was buffered yet
func (fb *FrameBuffers) Empty() bool {
	return fb.Processed.Empty() || fb.Raw.Empty()
}

func (fb *FrameBuffers) clone() *FrameBuffers {
	return &FrameBuffers{
		Processed: fb.Processed.Clone(),
		Raw:       fb.Raw.Clone(),
	}
}

// Close releases both frames
func (fb *FrameBuffers) Close() {
	fb.Processed.Close()
	fb.Raw.Close()
}

// Presenter implements the dual display delivery
type Presenter struct {
	processedView Display
	rawView       Display
	logger        zerolog.Logger

	mu      sync.Mutex
	last    FrameBuffers
	pending *FrameBuffers
	closed  bool
	wake    chan struct{}

	delivered atomic.Int64
	dropped   atomic.Int64
}

// New creates Presenter which shows processed frames on processedView and raw frames on rawView
func New(processedView, rawView Display) *Presenter {
	return &Presenter{
		processedView: processedView,
		rawView:       rawView,
		logger:        log.With().Str("component", "present").Logger(),
		last: FrameBuffers{
			Processed: gocv.NewMat(),
			Raw:       gocv.NewMat(),
		},
		wake: make(chan struct{}, 1),
	}
}

// Present copies both frames into the buffers and queues them for display.
// Never blocks on the displays.
func (p *Presenter) Present(processed, raw gocv.Mat) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	processed.CopyTo(&p.last.Processed)
	raw.CopyTo(&p.last.Raw)
	p.enqueue(p.last.clone())
}

// Redeliver queues the last presented pair again. No-op before the first Present.
func (p *Presenter) Redeliver() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.last.Empty() {
		return
	}
	p.enqueue(p.last.clone())
}

// enqueue must be called with mu held
func (p *Presenter) enqueue(pair *FrameBuffers) {
	if p.pending != nil {
		p.pending.Close()
		p.dropped.Inc()
	}
	p.pending = pair
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Presenter) take() *FrameBuffers {
	p.mu.Lock()
	defer p.mu.Unlock()
	pair := p.pending
	p.pending = nil
	return pair
}

// Run shows queued pairs until ctx is done, then releases all buffered frames.
// Displays are only touched from the goroutine calling Run.
func (p *Presenter) Run(ctx context.Context) {
	defer p.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			pair := p.take()
			if pair == nil {
				continue
			}
			p.processedView.Show(pair.Processed)
			p.rawView.Show(pair.Raw)
			pair.Close()
			p.delivered.Inc()
		}
	}
}

func (p *Presenter) shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.pending != nil {
		p.pending.Close()
		p.pending = nil
	}
	p.last.Close()
	p.logger.Debug().Int64("delivered", p.delivered.Load()).Int64("dropped", p.dropped.Load()).Msg("Presenter stopped")
}

// Delivered is the number of pairs shown so far
func (p *Presenter) Delivered() int64 {
	return p.delivered.Load()
}

// Dropped is the number of pairs replaced before they were shown
func (p *Presenter) Dropped() int64 {
	return p.dropped.Load()
}
