package playback

import (
	"image"
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	"github.com/LdDl/trackblur/config"
	"github.com/LdDl/trackblur/registry"
	"github.com/LdDl/trackblur/tracking"
)

// manualScheduler runs queued tasks only when the test steps it
type manualScheduler struct {
	queue  []func()
	delays []time.Duration
}

func (m *manualScheduler) After(delay time.Duration, task func()) {
	m.queue = append(m.queue, task)
	m.delays = append(m.delays, delay)
}

func (m *manualScheduler) Do(task func()) { task() }

func (m *manualScheduler) Close() {}

func (m *manualScheduler) step() bool {
	if len(m.queue) == 0 {
		return false
	}
	task := m.queue[0]
	m.queue = m.queue[1:]
	task()
	return true
}

func (m *manualScheduler) drain(t *testing.T) {
	t.Helper()
	for i := 0; m.step(); i++ {
		require.Less(t, i, 1000, "scheduler did not settle")
	}
}

type stubSource struct {
	frames []gocv.Mat
	next   int
	reads  int
	closed int
	fps    float64
}

func (s *stubSource) Read(dst *gocv.Mat) bool {
	s.reads++
	if s.next >= len(s.frames) {
		return false
	}
	s.frames[s.next].CopyTo(dst)
	s.next++
	return true
}

func (s *stubSource) FPS() float64 { return s.fps }

func (s *stubSource) Close() error {
	s.closed++
	return nil
}

type stubSink struct {
	frames []gocv.Mat
	closed int
	fps    float64
	size   image.Point
}

func (s *stubSink) Write(frame gocv.Mat) error {
	s.frames = append(s.frames, frame.Clone())
	return nil
}

func (s *stubSink) Close() error {
	s.closed++
	return nil
}

type stubMedia struct {
	sources   []*stubSource
	sinks     []*stubSink
	sourceErr error
	sinkErr   error
	makeSrc   func() *stubSource
}

func (m *stubMedia) OpenSource() (Source, error) {
	if m.sourceErr != nil {
		return nil, m.sourceErr
	}
	src := m.makeSrc()
	m.sources = append(m.sources, src)
	return src, nil
}

func (m *stubMedia) OpenSink(fps float64, size image.Point) (Sink, error) {
	if m.sinkErr != nil {
		return nil, m.sinkErr
	}
	sink := &stubSink{fps: fps, size: size}
	m.sinks = append(m.sinks, sink)
	return sink, nil
}

// stubTracker returns detections keyed by 1-based frame number
type stubTracker struct {
	byFrame map[int][]tracking.Detection
	calls   int
	resets  int
	err     error
}

func (s *stubTracker) Track(frame gocv.Mat) ([]tracking.Detection, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.byFrame[s.calls], nil
}

func (s *stubTracker) Reset() {
	s.resets++
	s.calls = 0
}

type presented struct {
	processed []byte
	raw       []byte
}

type stubPresenter struct {
	pairs       []presented
	redelivered int
}

func (p *stubPresenter) Present(processed, raw gocv.Mat) {
	p.pairs = append(p.pairs, presented{processed: processed.ToBytes(), raw: raw.ToBytes()})
}

func (p *stubPresenter) Redeliver() {
	if len(p.pairs) == 0 {
		return
	}
	p.redelivered++
	p.pairs = append(p.pairs, p.pairs[len(p.pairs)-1])
}

func noiseFrames(t *testing.T, count, rows, cols int) []gocv.Mat {
	t.Helper()
	rng := rand.New(rand.NewSource(int64(count*rows + cols)))
	frames := make([]gocv.Mat, count)
	for i := range frames {
		data := make([]byte, rows*cols*3)
		rng.Read(data)
		wrapped, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC3, data)
		require.NoError(t, err)
		frames[i] = wrapped.Clone()
		wrapped.Close()
	}
	t.Cleanup(func() {
		for i := range frames {
			frames[i].Close()
		}
	})
	return frames
}

func regionBytes(frame gocv.Mat, rect image.Rectangle) []byte {
	roi := frame.Region(rect)
	defer roi.Close()
	cloned := roi.Clone()
	defer cloned.Close()
	return cloned.ToBytes()
}

func pixelVariance(data []byte) float64 {
	values := make([]float64, len(data))
	for i, b := range data {
		values[i] = float64(b)
	}
	return stat.Variance(values, nil)
}

type fixture struct {
	media     *stubMedia
	tracker   *stubTracker
	registry  *registry.Registry
	presenter *stubPresenter
	scheduler *manualScheduler
	ctrl      *Controller
	frames    []gocv.Mat
}

func newFixture(t *testing.T, count int, fps float64) *fixture {
	t.Helper()
	f := &fixture{
		tracker:   &stubTracker{byFrame: map[int][]tracking.Detection{}},
		registry:  registry.New(),
		presenter: &stubPresenter{},
		scheduler: &manualScheduler{},
		frames:    noiseFrames(t, count, config.OutputHeight, config.OutputWidth),
	}
	f.media = &stubMedia{makeSrc: func() *stubSource {
		return &stubSource{frames: f.frames, fps: fps}
	}}
	f.ctrl = NewController(f.media, f.tracker, f.registry, f.presenter, f.scheduler)
	t.Cleanup(func() {
		for _, sink := range f.media.sinks {
			for i := range sink.frames {
				sink.frames[i].Close()
			}
		}
	})
	return f
}

func TestStartSourceOpenFailure(t *testing.T) {
	f := newFixture(t, 1, 30)
	f.media.sourceErr = errors.New("no such file")
	f.registry.Observe(5)

	err := f.ctrl.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceOpen))
	assert.Contains(t, err.Error(), "no such file")

	assert.Equal(t, Stopped, f.ctrl.Status().State)
	assert.Empty(t, f.scheduler.queue)
	assert.Equal(t, []tracking.ID{5}, f.registry.Known(), "failed start must not reset the registry")
	assert.Zero(t, f.tracker.resets)
}

func TestStartSinkOpenFailure(t *testing.T) {
	f := newFixture(t, 1, 30)
	f.media.sinkErr = errors.New("disk full")

	err := f.ctrl.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSinkOpen))
	assert.Equal(t, Stopped, f.ctrl.Status().State)
	require.Len(t, f.media.sources, 1)
	assert.Equal(t, 1, f.media.sources[0].closed)
}

func TestRunUntilExhausted(t *testing.T) {
	f := newFixture(t, 3, 25)
	require.NoError(t, f.ctrl.Start())
	assert.Equal(t, Running, f.ctrl.Status().State)

	f.scheduler.drain(t)

	src := f.media.sources[0]
	sink := f.media.sinks[0]
	assert.Equal(t, 4, src.reads, "three frames plus the end-of-stream read")
	assert.Equal(t, 1, src.closed)
	assert.Equal(t, 1, sink.closed)
	assert.Len(t, sink.frames, 3)
	assert.Equal(t, 25.0, sink.fps)
	assert.Equal(t, image.Pt(config.OutputWidth, config.OutputHeight), sink.size)
	assert.Len(t, f.presenter.pairs, 3)

	status := f.ctrl.Status()
	assert.Equal(t, Stopped, status.State)
	assert.EqualValues(t, 3, status.FramesRead)
	assert.EqualValues(t, 3, status.FramesWritten)

	// Ticks after the end are no-ops
	f.ctrl.tick(f.ctrl.generation)
	assert.Equal(t, 4, src.reads)
	assert.Empty(t, f.scheduler.queue)
}

func TestTickInterval(t *testing.T) {
	cases := []struct {
		fps  float64
		want time.Duration
	}{
		{25, 40 * time.Millisecond},
		{0, time.Second / 30},
		{-5, time.Second / 30},
	}
	for _, tc := range cases {
		f := newFixture(t, 2, tc.fps)
		require.NoError(t, f.ctrl.Start())
		f.scheduler.drain(t)

		require.Len(t, f.scheduler.delays, 3)
		assert.Equal(t, time.Duration(0), f.scheduler.delays[0])
		assert.Equal(t, tc.want, f.scheduler.delays[1])
		assert.Equal(t, tc.want, f.scheduler.delays[2])
		assert.Equal(t, config.SanitizeFPS(tc.fps), f.media.sinks[0].fps)
	}
}

func TestFramesAreResized(t *testing.T) {
	f := newFixture(t, 0, 30)
	big := noiseFrames(t, 2, 480, 640)
	f.media.makeSrc = func() *stubSource {
		return &stubSource{frames: big, fps: 30}
	}
	require.NoError(t, f.ctrl.Start())
	f.scheduler.drain(t)

	sink := f.media.sinks[0]
	require.Len(t, sink.frames, 2)
	for _, frame := range sink.frames {
		assert.Equal(t, config.OutputWidth, frame.Cols())
		assert.Equal(t, config.OutputHeight, frame.Rows())
	}
}

func TestPauseRedeliversWithoutAdvancing(t *testing.T) {
	f := newFixture(t, 5, 30)
	require.NoError(t, f.ctrl.Start())
	require.True(t, f.scheduler.step())
	require.True(t, f.scheduler.step())

	src := f.media.sources[0]
	sink := f.media.sinks[0]
	readsBefore := src.reads
	writesBefore := len(sink.frames)
	last := f.presenter.pairs[len(f.presenter.pairs)-1]

	f.ctrl.Pause()
	assert.Equal(t, Paused, f.ctrl.Status().State)

	require.True(t, f.scheduler.step())
	require.True(t, f.scheduler.step())

	assert.Equal(t, readsBefore, src.reads, "paused tick must not read the source")
	assert.Len(t, sink.frames, writesBefore, "paused tick must not write output")
	assert.Equal(t, 2, f.presenter.redelivered)
	assert.Equal(t, last, f.presenter.pairs[len(f.presenter.pairs)-1])
	assert.Len(t, f.scheduler.queue, 1, "paused playback keeps ticking")

	f.ctrl.Resume()
	assert.Equal(t, Running, f.ctrl.Status().State)
	require.True(t, f.scheduler.step())
	assert.Equal(t, readsBefore+1, src.reads)
	assert.Len(t, sink.frames, writesBefore+1)
}

func TestPauseResumeGuards(t *testing.T) {
	f := newFixture(t, 2, 30)

	f.ctrl.Pause()
	assert.Equal(t, Stopped, f.ctrl.Status().State, "pause does nothing while stopped")
	f.ctrl.Resume()
	assert.Equal(t, Stopped, f.ctrl.Status().State, "resume does nothing while stopped")

	require.NoError(t, f.ctrl.Start())
	f.ctrl.Resume()
	assert.Equal(t, Running, f.ctrl.Status().State)

	f.ctrl.SetObfuscation(true)
	f.ctrl.Pause()
	status := f.ctrl.Status()
	assert.Equal(t, Paused, status.State)
	assert.True(t, status.Obfuscating, "obfuscation is independent of pause")
}

func TestQuit(t *testing.T) {
	f := newFixture(t, 5, 30)
	require.NoError(t, f.ctrl.Start())
	require.True(t, f.scheduler.step())
	f.ctrl.Pause()

	f.ctrl.Quit()
	f.ctrl.Quit()

	src := f.media.sources[0]
	sink := f.media.sinks[0]
	assert.Equal(t, Stopped, f.ctrl.Status().State)
	assert.Equal(t, 1, src.closed)
	assert.Equal(t, 1, sink.closed)

	// Tick scheduled before quit fires and does nothing
	readsBefore := src.reads
	f.scheduler.drain(t)
	assert.Equal(t, readsBefore, src.reads)
	assert.Len(t, sink.frames, 1)
}

func TestRestartResetsEverything(t *testing.T) {
	f := newFixture(t, 5, 30)
	f.tracker.byFrame[1] = []tracking.Detection{{Box: image.Rect(10, 10, 50, 90), Class: "person", ID: 3}}

	require.NoError(t, f.ctrl.Start())
	require.True(t, f.scheduler.step())
	require.True(t, f.scheduler.step())
	f.registry.SetSelected(3, true)
	require.Equal(t, []tracking.ID{3}, f.registry.Known())

	require.NoError(t, f.ctrl.Start())

	require.Len(t, f.media.sources, 2)
	require.Len(t, f.media.sinks, 2)
	assert.Equal(t, 1, f.media.sources[0].closed)
	assert.Equal(t, 1, f.media.sinks[0].closed)
	assert.Empty(t, f.registry.Known())
	assert.Empty(t, f.registry.Selected())
	assert.Equal(t, 2, f.tracker.resets)
	assert.EqualValues(t, 0, f.ctrl.Status().FramesRead)

	f.scheduler.drain(t)
	assert.Equal(t, 6, f.media.sources[1].reads, "second run starts from the first frame")
	assert.Len(t, f.media.sinks[1].frames, 5)
	assert.Len(t, f.media.sinks[0].frames, 2, "stale tick of the first run must not write")
}

func TestTrackerErrorPassesFrameThrough(t *testing.T) {
	f := newFixture(t, 2, 30)
	f.tracker.err = errors.New("inference failed")

	require.NoError(t, f.ctrl.Start())
	f.scheduler.drain(t)

	sink := f.media.sinks[0]
	require.Len(t, sink.frames, 2)
	assert.Equal(t, f.frames[0].ToBytes(), sink.frames[0].ToBytes())
	assert.Equal(t, f.frames[1].ToBytes(), sink.frames[1].ToBytes())
}

func TestSelectiveObfuscationScenario(t *testing.T) {
	f := newFixture(t, 10, 30)
	box := image.Rect(120, 60, 260, 300)
	for frame := 2; frame <= 8; frame++ {
		f.tracker.byFrame[frame] = []tracking.Detection{{Box: box, Class: "person", ID: 7}}
	}

	require.NoError(t, f.ctrl.Start())
	for i := 0; i < 4; i++ {
		require.True(t, f.scheduler.step())
	}
	f.registry.SetSelected(7, true)
	f.ctrl.SetObfuscation(true)
	f.scheduler.drain(t)

	src := f.media.sources[0]
	sink := f.media.sinks[0]
	require.Len(t, sink.frames, 10, "every source frame is recorded")
	assert.Equal(t, 11, src.reads)
	assert.Equal(t, 1, src.closed, "source released after the end-of-stream read")
	assert.Equal(t, Stopped, f.ctrl.Status().State)

	interior := box.Inset(4)
	topEdge := image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+1)
	for i, out := range sink.frames {
		frameNo := i + 1
		in := f.frames[i]
		switch {
		case frameNo == 1 || frameNo >= 9:
			assert.Equal(t, in.ToBytes(), out.ToBytes(), "frame %d must pass through", frameNo)
		case frameNo <= 4:
			assert.Equal(t, regionBytes(in, interior), regionBytes(out, interior), "frame %d interior kept", frameNo)
			assert.NotEqual(t, regionBytes(in, topEdge), regionBytes(out, topEdge), "frame %d outlined", frameNo)
		default:
			before := pixelVariance(regionBytes(in, box))
			after := pixelVariance(regionBytes(out, box))
			assert.Less(t, after, before/10, "frame %d blurred", frameNo)
		}
	}

	// Raw view always shows the untouched frame
	require.Len(t, f.presenter.pairs, 10)
	for i, pair := range f.presenter.pairs {
		assert.Equal(t, f.frames[i].ToBytes(), pair.raw)
	}
}
