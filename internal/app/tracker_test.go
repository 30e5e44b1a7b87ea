// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/ring_tracker/internal/fusion"
	"github.com/relabs-tech/ring_tracker/internal/imu"
	"github.com/relabs-tech/ring_tracker/internal/transport"
)

const stationary = "0,0,16384,0,0,0"

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// scriptSource delivers frames, then returns end (io.EOF or a transport
// error). With end nil it blocks until closed.
type scriptSource struct {
	frames []imu.Frame
	end    error

	next   int
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
}

func newScriptSource(n int, end error) *scriptSource {
	s := &scriptSource{end: end, done: make(chan struct{})}
	for k := 0; k < n; k++ {
		s.frames = append(s.frames, imu.Frame{Text: stationary, At: t0.Add(time.Duration(k) * 10 * time.Millisecond)})
	}
	return s
}

func (s *scriptSource) NextFrame() (imu.Frame, error) {
	if s.closed.Load() {
		return imu.Frame{}, imu.ErrSourceClosed
	}
	if s.next < len(s.frames) {
		f := s.frames[s.next]
		s.next++
		return f, nil
	}
	if s.end != nil {
		return imu.Frame{}, s.end
	}
	<-s.done
	return imu.Frame{}, imu.ErrSourceClosed
}

func (s *scriptSource) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})
	return nil
}

type recordingRenderer struct {
	mu     sync.Mutex
	seen   []fusion.Snapshot
	closed bool
}

func (r *recordingRenderer) Name() string { return "recorder" }

func (r *recordingRenderer) Render(s fusion.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
	return nil
}

func (r *recordingRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func runAsync(ctx context.Context, t *testing.T, tr *Tracker) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- tr.Run(ctx) }()
	return errCh
}

func waitRun(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("tracker did not stop")
		return nil
	}
}

func newTestTracker(src imu.FrameSource) (*Tracker, *fusion.State, *fusion.Engine) {
	state := fusion.NewState()
	engine := fusion.NewEngine(state, false)
	return NewTracker(state, engine, src), state, engine
}

func TestTrackerEndsCleanlyOnSourceEOF(t *testing.T) {
	src := newScriptSource(50, io.EOF)
	tr, state, engine := newTestTracker(src)
	rec := &recordingRenderer{}
	tr.AddConsumer(rec, time.Millisecond)

	err := waitRun(t, runAsync(context.Background(), t, tr))
	require.NoError(t, err)

	assert.False(t, state.Running())
	assert.Equal(t, uint64(50), engine.Stats().Accepted)
	assert.True(t, state.Snapshot().Initialized)
	assert.True(t, src.closed.Load())
	assert.True(t, rec.closed)
}

func TestTrackerReturnsTransportFailure(t *testing.T) {
	linkDown := errors.New("link down")
	src := newScriptSource(3, linkDown)
	tr, state, _ := newTestTracker(src)

	err := waitRun(t, runAsync(context.Background(), t, tr))
	require.Error(t, err)
	assert.ErrorIs(t, err, linkDown)
	assert.False(t, state.Running())
}

func TestTrackerQuitControlStopsEverything(t *testing.T) {
	src := newScriptSource(10, nil)
	tr, state, _ := newTestTracker(src)
	rec := &recordingRenderer{}
	tr.AddConsumer(rec, 2*time.Millisecond)

	serviceDone := make(chan struct{})
	tr.AddService(func(ctx context.Context) error {
		<-ctx.Done()
		close(serviceDone)
		return nil
	})

	errCh := runAsync(context.Background(), t, tr)
	require.Eventually(t, func() bool { return rec.count() >= 3 }, 2*time.Second, time.Millisecond)

	tr.Controls().Quit()
	require.NoError(t, waitRun(t, errCh))

	assert.False(t, state.Running())
	assert.True(t, src.closed.Load())
	assert.True(t, rec.closed)
	select {
	case <-serviceDone:
	default:
		t.Fatal("service still running")
	}

	// Stop is idempotent
	tr.Stop()
}

func TestTrackerQuitDuringReplayIsOrderly(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	tr, state, engine := newTestTracker(transport.NewReplaySource(pr, false))

	errCh := runAsync(context.Background(), t, tr)
	_, err := pw.Write([]byte("1000000000\t" + stationary + "\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return engine.Stats().Accepted == 1 }, 2*time.Second, time.Millisecond)

	tr.Controls().Quit()
	require.NoError(t, waitRun(t, errCh))
	assert.False(t, state.Running())
}

func TestTrackerStopsOnContextCancel(t *testing.T) {
	src := newScriptSource(0, nil)
	tr, state, _ := newTestTracker(src)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(ctx, t, tr)
	cancel()

	require.NoError(t, waitRun(t, errCh))
	assert.False(t, state.Running())
}

func TestTrackerServiceFailureEndsRun(t *testing.T) {
	src := newScriptSource(0, nil)
	tr, state, _ := newTestTracker(src)
	bad := errors.New("port in use")
	tr.AddService(func(ctx context.Context) error { return bad })

	err := waitRun(t, runAsync(context.Background(), t, tr))
	assert.ErrorIs(t, err, bad)
	assert.False(t, state.Running())
}

func TestTrackerResetControl(t *testing.T) {
	state := fusion.NewState()
	engine := fusion.NewEngine(state, false)
	tr := NewTracker(state, engine, newScriptSource(0, nil))

	// roll the ring and shake it sideways so velocity and position move
	frames := []string{stationary, "8000,0,14000,0,0,0", "8000,0,14000,0,0,0", "-8000,4000,14000,0,0,0"}
	for k, text := range frames {
		require.NoError(t, engine.HandleFrame(imu.Frame{Text: text, At: t0.Add(time.Duration(k) * 10 * time.Millisecond)}))
	}
	before := state.Snapshot()

	tr.Controls().Reset()

	after := state.Snapshot()
	assert.Zero(t, after.X)
	assert.Zero(t, after.Y)
	assert.Zero(t, after.Z)
	assert.Zero(t, after.VX)
	assert.Zero(t, after.VY)
	assert.Zero(t, after.VZ)
	assert.Equal(t, before.Roll, after.Roll)
	assert.Equal(t, before.Pitch, after.Pitch)
	assert.Equal(t, before.AxG, after.AxG)
	assert.True(t, after.Running)
}
