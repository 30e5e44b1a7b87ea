// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/ring_tracker/internal/config"
	"github.com/relabs-tech/ring_tracker/internal/imu"
)

type nopWriteCloser struct {
	strings.Builder
	closed bool
}

func (w *nopWriteCloser) Close() error {
	w.closed = true
	return nil
}

func TestLineSourceSkipsBlankLinesAndEndsOnEOF(t *testing.T) {
	stream := "0,0,16384,0,0,0\r\n\n   \n1,2,3\n5,5,5,5,5,5"
	src := newLineSource("test", io.NopCloser(strings.NewReader(stream)))
	stamp := time.Unix(100, 0)
	src.now = func() time.Time { return stamp }

	var got []string
	for {
		f, err := src.NextFrame()
		if err != nil {
			assert.ErrorIs(t, err, io.EOF)
			break
		}
		assert.Equal(t, stamp, f.At)
		got = append(got, f.Text)
	}
	assert.Equal(t, []string{"0,0,16384,0,0,0", "1,2,3", "5,5,5,5,5,5"}, got)
}

func TestTCPSource(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("10,20,16384,1,2,3\n$PIMU,0,0,16384,0,0,0*00\n"))
	}()

	src, err := NewTCPSource(ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer src.Close()

	f, err := src.NextFrame()
	require.NoError(t, err)
	assert.Equal(t, "10,20,16384,1,2,3", f.Text)
	assert.WithinDuration(t, time.Now(), f.At, 5*time.Second)

	f, err = src.NextFrame()
	require.NoError(t, err)
	assert.Equal(t, "$PIMU,0,0,16384,0,0,0*00", f.Text)

	// peer hung up: transport failure
	_, err = src.NextFrame()
	require.Error(t, err)
	assert.False(t, errors.Is(err, imu.ErrSourceClosed))
}

func TestTCPSourceCloseUnblocks(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	src, err := NewTCPSource(ln.Addr().String(), time.Second)
	require.NoError(t, err)
	conn := <-accepted
	defer conn.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := src.NextFrame()
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, src.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, imu.ErrSourceClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("NextFrame did not return after Close")
	}
}

func TestTCPSourceDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewTCPSource(addr, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestRecordThenReplay(t *testing.T) {
	frames := []imu.Frame{
		{Text: "0,0,16384,0,0,0", At: time.Unix(0, 1_000_000_000)},
		{Text: "1,2,3", At: time.Unix(0, 1_010_000_000)},
		{Text: "0,0,16384,0,0,131", At: time.Unix(0, 1_030_000_000)},
	}

	out := &nopWriteCloser{}
	rec := NewRecordingSource(&sliceSource{frames: frames}, out)
	for range frames {
		_, err := rec.NextFrame()
		require.NoError(t, err)
	}
	_, err := rec.NextFrame()
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, rec.Close())
	assert.True(t, out.closed)

	var slept []time.Duration
	rp := NewReplaySource(io.NopCloser(strings.NewReader(out.String())), true)
	rp.after = func(d time.Duration) <-chan time.Time {
		slept = append(slept, d)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	for _, want := range frames {
		got, err := rp.NextFrame()
		require.NoError(t, err)
		assert.Equal(t, want.Text, got.Text)
		assert.True(t, want.At.Equal(got.At))
	}
	_, err = rp.NextFrame()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, slept)
}

func TestReplayCloseMidStream(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	rp := NewReplaySource(pr, false)

	go func() {
		_, _ = pw.Write([]byte("1000000000\t0,0,16384,0,0,0\n"))
	}()
	f, err := rp.NextFrame()
	require.NoError(t, err)
	assert.Equal(t, "0,0,16384,0,0,0", f.Text)

	// the next read blocks on the pipe until Close
	errCh := make(chan error, 1)
	go func() {
		_, err := rp.NextFrame()
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, rp.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, imu.ErrSourceClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("NextFrame did not return after Close")
	}

	_, err = rp.NextFrame()
	assert.ErrorIs(t, err, imu.ErrSourceClosed)
}

func TestReplayCloseDuringRealtimeGap(t *testing.T) {
	recording := "1000000000\t0,0,16384,0,0,0\n" + "3601000000000\t0,0,16384,0,0,0\n"
	rp := NewReplaySource(io.NopCloser(strings.NewReader(recording)), true)
	rp.after = func(time.Duration) <-chan time.Time { return nil } // never fires

	_, err := rp.NextFrame()
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := rp.NextFrame()
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, rp.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, imu.ErrSourceClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("realtime wait did not end on Close")
	}
}

type fakeMessage struct {
	mqtt.Message
	payload string
}

func (m fakeMessage) Payload() []byte { return []byte(m.payload) }

func TestMQTTSourceDeliversBufferedFramesBeforeLoss(t *testing.T) {
	s := &MQTTSource{
		frames: make(chan imu.Frame, mqttFrameBuffer),
		lost:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	for _, text := range []string{"1,1,1,1,1,1", "2,2,2,2,2,2", "3,3,3,3,3,3"} {
		s.onMessage(nil, fakeMessage{payload: text})
	}
	s.lost <- errors.New("broker went away")

	var got []string
	for {
		f, err := s.NextFrame()
		if err != nil {
			assert.ErrorContains(t, err, "broker went away")
			assert.NotErrorIs(t, err, imu.ErrSourceClosed)
			break
		}
		got = append(got, f.Text)
	}
	assert.Equal(t, []string{"1,1,1,1,1,1", "2,2,2,2,2,2", "3,3,3,3,3,3"}, got)

	// the loss stays reported
	_, err := s.NextFrame()
	assert.ErrorContains(t, err, "broker went away")
}

func TestReplayRejectsCorruptRecording(t *testing.T) {
	rp := NewReplaySource(io.NopCloser(strings.NewReader("not a record\n")), false)
	_, err := rp.NextFrame()
	require.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF))
}

func TestOpenReplayWithRecording(t *testing.T) {
	dir := t.TempDir()
	replay := filepath.Join(dir, "in.log")
	record := filepath.Join(dir, "out.log")
	require.NoError(t, os.WriteFile(replay, []byte("5\t0,0,16384,0,0,0\n"), 0o644))

	cfg := config.Default()
	cfg.FrameSource = config.SourceReplay
	cfg.ReplayFile = replay
	cfg.RecordFile = record

	src, err := Open(cfg)
	require.NoError(t, err)

	f, err := src.NextFrame()
	require.NoError(t, err)
	assert.Equal(t, "0,0,16384,0,0,0", f.Text)
	require.NoError(t, src.Close())

	data, err := os.ReadFile(record)
	require.NoError(t, err)
	assert.Equal(t, "5\t0,0,16384,0,0,0\n", string(data))
}

func TestOpenMock(t *testing.T) {
	cfg := config.Default()
	cfg.FrameSource = config.SourceMock
	cfg.IMUSampleInterval = 1

	src, err := Open(cfg)
	require.NoError(t, err)
	defer src.Close()

	f, err := src.NextFrame()
	require.NoError(t, err)
	_, err = imu.ParseFrame(f.Text)
	assert.NoError(t, err)
}

type sliceSource struct {
	frames []imu.Frame
	next   int
}

func (s *sliceSource) NextFrame() (imu.Frame, error) {
	if s.next >= len(s.frames) {
		return imu.Frame{}, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *sliceSource) Close() error { return nil }
