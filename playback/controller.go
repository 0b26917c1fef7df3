// Package playback drives the frame loop: pull a frame, track subjects, annotate,
// record and present, then schedule the next tick.
//
// Commands which touch the source or the writer (Start, Quit) execute on the
// scheduler's worker, the same context that runs ticks. Pause, Resume and
// SetObfuscation only flip atomic flags read at the next tick.
package playback

import (
	"image"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
	"gocv.io/x/gocv"

	"github.com/LdDl/trackblur/annotate"
	"github.com/LdDl/trackblur/config"
	"github.com/LdDl/trackblur/tracking"
)

// Source yields frames in order. Read returns false once the stream is exhausted.
type Source interface {
	Read(dst *gocv.Mat) bool
	FPS() float64
	Close() error
}

// Sink records frames in the order they are written
type Sink interface {
	Write(frame gocv.Mat) error
	Close() error
}

// Media opens the resources of one session
type Media interface {
	OpenSource() (Source, error)
	OpenSink(fps float64, size image.Point) (Sink, error)
}

// Tracker produces detections with persistent identities for a frame
type Tracker interface {
	Track(frame gocv.Mat) ([]tracking.Detection, error)
	Reset()
}

// Registry is the track registry as seen by the controller
type Registry interface {
	annotate.Selector
	Reset()
}

// Presenter receives processed and raw frames once per tick.
// Present must copy what it keeps: both Mats are reused by the next tick.
type Presenter interface {
	Present(processed, raw gocv.Mat)
	Redeliver()
}

// Controller is the playback state machine
type Controller struct {
	media     Media
	tracker   Tracker
	registry  Registry
	annotator *annotate.Annotator
	presenter Presenter
	scheduler Scheduler
	logger    zerolog.Logger

	state         atomic.Int32
	obfuscate     atomic.Bool
	framesRead    atomic.Int64
	framesWritten atomic.Int64

	// Owned by the scheduler's worker
	session    *session
	generation uint64
}

type session struct {
	source    Source
	sink      Sink
	interval  time.Duration
	frame     gocv.Mat
	processed gocv.Mat
	raw       gocv.Mat
}

// NewController creates controller in Stopped state
func NewController(media Media, tracker Tracker, registry Registry, presenter Presenter, scheduler Scheduler) *Controller {
	return &Controller{
		media:     media,
		tracker:   tracker,
		registry:  registry,
		annotator: annotate.New(),
		presenter: presenter,
		scheduler: scheduler,
		logger:    log.With().Str("component", "playback").Logger(),
	}
}

// Start opens the source and the writer and begins playback from the first frame.
// Registry and tracker are reset. Starting while running or paused replaces the current run.
// If the source can't be opened nothing changes and an error wrapping ErrSourceOpen is returned.
func (c *Controller) Start() error {
	var err error
	c.scheduler.Do(func() {
		err = c.start()
	})
	return err
}

func (c *Controller) start() error {
	source, err := c.media.OpenSource()
	if err != nil {
		c.logger.Error().Err(err).Msg("Source can't be opened, playback not started")
		return &OpenError{Kind: ErrSourceOpen, Err: err}
	}
	fps := config.SanitizeFPS(source.FPS())

	// The writer of a previous run may point at the same file: close it before reopening
	c.generation++
	c.release()

	sink, err := c.media.OpenSink(fps, config.OutputSize())
	if err != nil {
		closeLogged(c.logger, "source", source)
		c.state.Store(int32(Stopped))
		c.logger.Error().Err(err).Msg("Sink can't be opened, playback not started")
		return &OpenError{Kind: ErrSinkOpen, Err: err}
	}

	c.registry.Reset()
	c.tracker.Reset()
	c.framesRead.Store(0)
	c.framesWritten.Store(0)
	c.session = &session{
		source:    source,
		sink:      sink,
		interval:  config.FrameInterval(fps),
		frame:     gocv.NewMat(),
		processed: gocv.NewMat(),
		raw:       gocv.NewMat(),
	}
	c.state.Store(int32(Running))
	c.logger.Info().Float64("fps", fps).Dur("interval", c.session.interval).Msg("Playback started")

	gen := c.generation
	c.scheduler.After(0, func() { c.tick(gen) })
	return nil
}

// Pause freezes playback on the current frame. Only valid while running.
func (c *Controller) Pause() {
	if c.state.CompareAndSwap(int32(Running), int32(Paused)) {
		c.logger.Info().Msg("Playback paused")
	}
}

// Resume continues a paused playback
func (c *Controller) Resume() {
	if c.state.CompareAndSwap(int32(Paused), int32(Running)) {
		c.logger.Info().Msg("Playback resumed")
	}
}

// SetObfuscation switches obfuscation of selected identities on or off.
// Allowed in any state, takes effect on the next processed frame.
func (c *Controller) SetObfuscation(enabled bool) {
	if c.obfuscate.Swap(enabled) != enabled {
		c.logger.Info().Bool("enabled", enabled).Msg("Obfuscation toggled")
	}
}

// Quit stops playback and releases the source and the writer. Safe to call repeatedly.
func (c *Controller) Quit() {
	c.scheduler.Do(func() {
		c.generation++
		c.release()
		if State(c.state.Swap(int32(Stopped))) != Stopped {
			c.logger.Info().Msg("Playback stopped by operator")
		}
	})
}

// Status returns current flags and counters
func (c *Controller) Status() Status {
	return Status{
		State:         State(c.state.Load()),
		Obfuscating:   c.obfuscate.Load(),
		FramesRead:    c.framesRead.Load(),
		FramesWritten: c.framesWritten.Load(),
	}
}

func (c *Controller) tick(gen uint64) {
	if gen != c.generation || c.session == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("Tick panicked, stopping playback")
			c.finish()
		}
	}()

	switch State(c.state.Load()) {
	case Running:
		if !c.advance() {
			c.logger.Info().Int64("frames", c.framesWritten.Load()).Msg("Stream exhausted")
			c.finish()
			return
		}
	case Paused:
		c.presenter.Redeliver()
	default:
		return
	}
	c.scheduler.After(c.session.interval, func() { c.tick(gen) })
}

// advance processes one source frame. Returns false at end of stream.
func (c *Controller) advance() bool {
	s := c.session
	if !s.source.Read(&s.frame) || s.frame.Empty() {
		return false
	}
	c.framesRead.Inc()

	gocv.Resize(s.frame, &s.processed, config.OutputSize(), 0, 0, gocv.InterpolationLinear)
	s.processed.CopyTo(&s.raw)

	detections, err := c.tracker.Track(s.processed)
	if err != nil {
		c.logger.Warn().Err(err).Int64("frame", c.framesRead.Load()).Msg("Tracker failed, frame passes through")
		detections = nil
	}
	c.logger.Debug().Int64("frame", c.framesRead.Load()).Int("detections", len(detections)).Msg("Frame tracked")

	c.annotator.Annotate(&s.processed, detections, c.registry, c.obfuscate.Load())

	if err := s.sink.Write(s.processed); err != nil {
		c.logger.Error().Err(err).Int64("frame", c.framesRead.Load()).Msg("Output write failed")
	} else {
		c.framesWritten.Inc()
	}
	c.presenter.Present(s.processed, s.raw)
	return true
}

func (c *Controller) finish() {
	c.release()
	c.state.Store(int32(Stopped))
}

// release closes session resources. No-op without a session.
func (c *Controller) release() {
	s := c.session
	if s == nil {
		return
	}
	c.session = nil
	closeLogged(c.logger, "source", s.source)
	closeLogged(c.logger, "sink", s.sink)
	s.frame.Close()
	s.processed.Close()
	s.raw.Close()
}

type closer interface {
	Close() error
}

func closeLogged(logger zerolog.Logger, name string, res closer) {
	if err := res.Close(); err != nil {
		logger.Warn().Err(err).Str("resource", name).Msg("Release failed")
	}
}
