package present

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type shown struct {
	view string
	data []byte
}

type journal struct {
	mu      sync.Mutex
	entries []shown
	notify  chan struct{}
}

func newJournal() *journal {
	return &journal{notify: make(chan struct{}, 64)}
}

func (j *journal) record(view string, frame gocv.Mat) {
	j.mu.Lock()
	j.entries = append(j.entries, shown{view: view, data: frame.ToBytes()})
	j.mu.Unlock()
	j.notify <- struct{}{}
}

func (j *journal) snapshot() []shown {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]shown(nil), j.entries...)
}

func (j *journal) waitFor(t *testing.T, count int) []shown {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if entries := j.snapshot(); len(entries) >= count {
			return entries
		}
		select {
		case <-j.notify:
		case <-deadline:
			t.Fatalf("expected %d shown frames, got %d", count, len(j.snapshot()))
		}
	}
}

type view struct {
	name    string
	journal *journal
	gate    chan struct{}
}

func (v *view) Show(frame gocv.Mat) {
	if v.gate != nil {
		<-v.gate
	}
	v.journal.record(v.name, frame)
}

func solidFrame(t *testing.T, value float64) gocv.Mat {
	t.Helper()
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(value, value, value, 0), 8, 8, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })
	return frame
}

func startPresenter(t *testing.T, p *Presenter) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestPresentOrder(t *testing.T) {
	t.Parallel()
	j := newJournal()
	p := New(&view{name: "processed", journal: j}, &view{name: "raw", journal: j})
	startPresenter(t, p)

	processed := solidFrame(t, 10)
	raw := solidFrame(t, 20)
	p.Present(processed, raw)

	entries := j.waitFor(t, 2)
	require.Len(t, entries, 2)
	assert.Equal(t, "processed", entries[0].view)
	assert.Equal(t, processed.ToBytes(), entries[0].data)
	assert.Equal(t, "raw", entries[1].view)
	assert.Equal(t, raw.ToBytes(), entries[1].data)
}

func TestPresentCopiesFrames(t *testing.T) {
	t.Parallel()
	j := newJournal()
	p := New(&view{name: "processed", journal: j}, &view{name: "raw", journal: j})

	processed := solidFrame(t, 1)
	raw := solidFrame(t, 2)
	p.Present(processed, raw)
	want := processed.ToBytes()

	// Caller reuses its Mats right after Present
	processed.SetTo(gocv.NewScalar(99, 99, 99, 0))

	startPresenter(t, p)
	entries := j.waitFor(t, 2)
	assert.Equal(t, want, entries[0].data)
}

func TestRedeliverRepeatsLastPair(t *testing.T) {
	t.Parallel()
	j := newJournal()
	p := New(&view{name: "processed", journal: j}, &view{name: "raw", journal: j})
	startPresenter(t, p)

	p.Present(solidFrame(t, 30), solidFrame(t, 40))
	first := j.waitFor(t, 2)

	p.Redeliver()
	entries := j.waitFor(t, 4)
	assert.Equal(t, first[0], entries[2])
	assert.Equal(t, first[1], entries[3])
}

func TestRedeliverBeforePresent(t *testing.T) {
	t.Parallel()
	j := newJournal()
	p := New(&view{name: "processed", journal: j}, &view{name: "raw", journal: j})
	startPresenter(t, p)

	p.Redeliver()
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, j.snapshot())
	assert.Zero(t, p.Dropped())
}

func TestSlowDisplayDropsStalePairs(t *testing.T) {
	t.Parallel()
	j := newJournal()
	gate := make(chan struct{})
	p := New(&view{name: "processed", journal: j, gate: gate}, &view{name: "raw", journal: j})

	// Nothing drains the mailbox yet: every Present returns immediately
	finished := make(chan struct{})
	go func() {
		for i := 1; i <= 5; i++ {
			p.Present(solidFrame(t, float64(i)), solidFrame(t, float64(i+100)))
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("Present blocked")
	}
	assert.EqualValues(t, 4, p.Dropped())

	close(gate)
	startPresenter(t, p)
	entries := j.waitFor(t, 2)
	latest := solidFrame(t, 5)
	assert.Equal(t, latest.ToBytes(), entries[0].data, "only the newest pair is shown")

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, j.snapshot(), 2)
	assert.EqualValues(t, 1, p.Delivered())
}

func TestPresentAfterShutdown(t *testing.T) {
	t.Parallel()
	j := newJournal()
	p := New(&view{name: "processed", journal: j}, &view{name: "raw", journal: j})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	assert.NotPanics(t, func() {
		p.Present(solidFrame(t, 1), solidFrame(t, 2))
		p.Redeliver()
	})
	assert.Empty(t, j.snapshot())
}
