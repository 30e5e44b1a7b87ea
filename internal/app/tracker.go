// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/ring_tracker/internal/config"
	"github.com/relabs-tech/ring_tracker/internal/fusion"
	"github.com/relabs-tech/ring_tracker/internal/imu"
	"github.com/relabs-tech/ring_tracker/internal/transport"
)

// Renderer consumes snapshots of the motion state at its own cadence.
type Renderer interface {
	Name() string
	Render(s fusion.Snapshot) error
}

// Consumer pairs a renderer with the period it is fed at.
type Consumer struct {
	Renderer Renderer
	Interval time.Duration
}

// Service is a long-running task that must return once ctx is done.
type Service func(ctx context.Context) error

// Controls are the discrete control events any surface can raise.
type Controls struct {
	Reset func()
	Quit  func()
}

// Tracker owns the pipeline: one ingestion task pulling frames into the
// engine, consumer tasks reading snapshots, and auxiliary services. Every
// task watches the shared running flag; the tracker waits for all of them.
type Tracker struct {
	state  *fusion.State
	engine *fusion.Engine
	source imu.FrameSource

	consumers []Consumer
	services  []Service

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewTracker wires an engine and its state to a frame source.
func NewTracker(state *fusion.State, engine *fusion.Engine, source imu.FrameSource) *Tracker {
	return &Tracker{
		state:  state,
		engine: engine,
		source: source,
		stopCh: make(chan struct{}),
	}
}

// AddConsumer registers a renderer fed every interval.
func (t *Tracker) AddConsumer(r Renderer, interval time.Duration) {
	t.consumers = append(t.consumers, Consumer{Renderer: r, Interval: interval})
}

// AddService registers an auxiliary task.
func (t *Tracker) AddService(s Service) {
	t.services = append(t.services, s)
}

// Controls returns the reset and quit events bound to this tracker.
func (t *Tracker) Controls() Controls {
	return Controls{Reset: t.state.ResetPosition, Quit: t.Stop}
}

// Stop clears the running flag and wakes Run. Safe to call from any
// goroutine, any number of times.
func (t *Tracker) Stop() {
	t.state.Stop()
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Run blocks until the pipeline ends: on Stop, on ctx cancellation, at the
// end of a finite source, or on a transport failure, which is returned.
func (t *Tracker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer t.Stop()
		return t.ingest()
	})

	// closes the source so a blocked NextFrame returns
	g.Go(func() error {
		select {
		case <-t.stopCh:
		case <-gctx.Done():
			t.Stop()
		}
		if err := t.source.Close(); err != nil {
			log.Printf("tracker: closing frame source: %v", err)
		}
		return nil
	})

	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()
	go func() {
		select {
		case <-t.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	for _, c := range t.consumers {
		g.Go(func() error {
			runConsumer(runCtx, t.state, c)
			return nil
		})
	}
	for _, s := range t.services {
		g.Go(func() error {
			return s(runCtx)
		})
	}

	err := g.Wait()
	t.closeConsumers()

	stats := t.engine.Stats()
	log.Printf("tracker: stopped (accepted=%d rejected=%d anomalies=%d)", stats.Accepted, stats.Rejected, stats.Anomalies)
	return err
}

func (t *Tracker) closeConsumers() {
	for _, c := range t.consumers {
		if closer, ok := c.Renderer.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				log.Printf("tracker: closing %s: %v", c.Renderer.Name(), err)
			}
		}
	}
}

// ingest is the ingestion context: one frame at a time, straight into the
// engine. Rejected frames and processing anomalies are dropped; only the
// transport can end the loop with an error.
func (t *Tracker) ingest() error {
	for t.state.Running() {
		f, err := t.source.NextFrame()
		if err != nil {
			if errors.Is(err, imu.ErrSourceClosed) && !t.state.Running() {
				return nil
			}
			if err == io.EOF {
				log.Println("tracker: frame source finished")
				return nil
			}
			return fmt.Errorf("frame source: %w", err)
		}
		_ = t.engine.HandleFrame(f) // dropped frames are counted by the engine
	}
	return nil
}

// runConsumer is one consumer context: a fixed-period loop taking a
// snapshot per tick until the running flag clears or ctx ends.
func runConsumer(ctx context.Context, state *fusion.State, c Consumer) {
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !state.Running() {
			return
		}
		if err := c.Renderer.Render(state.Snapshot()); err != nil {
			log.Printf("%s: %v", c.Renderer.Name(), err)
		}
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// RunTracker builds the pipeline described by cfg and runs it until
// SIGINT/SIGTERM, a quit control, the end of the source, or a transport
// failure.
func RunTracker(cfg *config.Config) error {
	log.Printf("tracker: starting (frame source %s)", cfg.FrameSource)

	state := fusion.NewState()
	engine := fusion.NewEngine(state, cfg.LogRejectedFrames)

	src, err := transport.Open(cfg)
	if err != nil {
		return fmt.Errorf("open frame source: %w", err)
	}

	t := NewTracker(state, engine, src)
	controls := t.Controls()

	if cfg.ConsoleLogInterval > 0 {
		t.AddConsumer(NewConsole(os.Stdout, cfg.PositionScale), ms(cfg.ConsoleLogInterval))
	}
	if cfg.ConsoleKeys {
		// stdin reads cannot be interrupted, so this one is not awaited
		go WatchKeys(os.Stdin, controls)
		log.Println("tracker: keys: r=reset position, q=quit")
	}
	if cfg.WebServerPort > 0 {
		web := NewWeb(state, engine, controls, cfg.PositionScale, ms(cfg.RenderInterval))
		t.AddService(web.Serve(fmt.Sprintf(":%d", cfg.WebServerPort)))
	}
	if cfg.MQTTPublishState {
		pub, err := NewStatePublisher(cfg.MQTTBroker, cfg.MQTTClientIDTracker, cfg.TopicState, cfg.TopicReset, controls)
		if err != nil {
			src.Close()
			t.closeConsumers()
			return err
		}
		t.AddConsumer(pub, ms(cfg.MQTTPublishInterval))
	}
	if cfg.DisplayEnable {
		disp, err := NewDisplay(cfg.PositionScale)
		if err != nil {
			src.Close()
			t.closeConsumers()
			return err
		}
		t.AddConsumer(disp, ms(cfg.DisplayUpdateInterval))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return t.Run(ctx)
}
